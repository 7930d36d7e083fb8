package store

import "github.com/brettbedarf/bastion"

// Nop accepts every hook and keeps nothing. Every allocation starts at 0.
type Nop struct{}

func (Nop) Allocate(int64) (int64, error) { return 0, nil }
func (Nop) Persist(int64, []byte) error   { return nil }
func (Nop) Release(int64, int64) error    { return nil }

var _ bastion.BackingStore = Nop{}
