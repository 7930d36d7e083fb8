package store

import "github.com/brettbedarf/bastion"

type BuiltinStoreType = string

const (
	NopStoreType     BuiltinStoreType = "nop"
	ExtentsStoreType BuiltinStoreType = "extents"
)

// RegisterBuiltins registers all built-in stores by default
// or only the specific ones if names are provided
func RegisterBuiltins(r *Registry, names ...BuiltinStoreType) {
	if len(names) == 0 {
		names = append(names, NopStoreType, ExtentsStoreType)
	}

	for _, name := range names {
		switch name {
		case NopStoreType:
			r.Register(name, ProviderFunc(func(int64) (bastion.BackingStore, error) {
				return Nop{}, nil
			}))
		case ExtentsStoreType:
			r.Register(name, ProviderFunc(func(totalSize int64) (bastion.BackingStore, error) {
				return NewExtents(totalSize)
			}))
		}
	}
}
