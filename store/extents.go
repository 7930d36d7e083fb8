package store

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/brettbedarf/bastion"
	"github.com/brettbedarf/bastion/internal/util"
)

var (
	ErrNoSpace       = errors.New("no space left on volume")
	ErrUnknownExtent = errors.New("unknown extent")
	ErrOverflow      = errors.New("write overflows extent")
	ErrInvalidSize   = errors.New("invalid extent size")
)

// Extents is an in-memory first-fit allocator over a volume of fixed size.
// Persisted bytes are kept per extent so they can be inspected.
//
// INVARIANT: free extents are sorted by offset, never overlap and never touch
type Extents struct {
	mu    sync.Mutex
	total int64
	free  []bastion.Extent
	used  map[int64]int64  // offset -> size of live allocations
	data  map[int64][]byte // offset of live allocation -> persisted bytes
}

// NewExtents returns an empty volume of total bytes
func NewExtents(total int64) (*Extents, error) {
	if total < 0 {
		return nil, fmt.Errorf("%w: volume size %d", ErrInvalidSize, total)
	}
	e := &Extents{total: total}
	e.reset()
	return e, nil
}

func (e *Extents) reset() {
	e.free = e.free[:0]
	if e.total > 0 {
		e.free = append(e.free, bastion.Extent{Offset: 0, Size: e.total})
	}
	e.used = map[int64]int64{}
	e.data = map[int64][]byte{}
}

// Reset frees every allocation
func (e *Extents) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
	return nil
}

// Allocate carves size bytes out of the first free extent large enough
func (e *Extents) Allocate(size int64) (int64, error) {
	logger := util.GetLogger("Store.Extents")
	if size <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i, f := range e.free {
		if f.Size < size {
			continue
		}
		off := f.Offset
		if f.Size == size {
			e.free = slices.Delete(e.free, i, i+1)
		} else {
			e.free[i] = bastion.Extent{Offset: off + size, Size: f.Size - size}
		}
		e.used[off] = size
		logger.Trace().Int64("offset", off).Int64("size", size).Msg("Allocated")
		return off, nil
	}
	return 0, fmt.Errorf("%w: need %d bytes", ErrNoSpace, size)
}

// Persist stores p at offset, which must lie inside one live allocation
func (e *Extents) Persist(offset int64, p []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	start, size, ok := e.containing(offset)
	if !ok {
		return fmt.Errorf("%w: offset %d", ErrUnknownExtent, offset)
	}
	rel := offset - start
	if rel+int64(len(p)) > size {
		return fmt.Errorf("%w: %d bytes at %d in %d+%d", ErrOverflow, len(p), offset, start, size)
	}

	buf := e.data[start]
	if need := rel + int64(len(p)); int64(len(buf)) < need {
		grown := make([]byte, need)
		copy(grown, buf)
		buf = grown
	}
	copy(buf[rel:], p)
	e.data[start] = buf
	return nil
}

// containing returns the live allocation holding offset
func (e *Extents) containing(offset int64) (start, size int64, ok bool) {
	for s, n := range e.used {
		if offset >= s && offset < s+n {
			return s, n, true
		}
	}
	return 0, 0, false
}

// Release returns an allocation to the free list, merging it with its
// neighbors. offset and size must match a prior Allocate exactly.
func (e *Extents) Release(offset, size int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if n, ok := e.used[offset]; !ok || n != size {
		return fmt.Errorf("%w: %d+%d", ErrUnknownExtent, offset, size)
	}
	delete(e.used, offset)
	delete(e.data, offset)

	i, _ := slices.BinarySearchFunc(e.free, offset, func(f bastion.Extent, off int64) int {
		return cmp.Compare(f.Offset, off)
	})
	e.free = slices.Insert(e.free, i, bastion.Extent{Offset: offset, Size: size})

	// Merge with the following then the preceding extent
	if i+1 < len(e.free) && e.free[i].Offset+e.free[i].Size == e.free[i+1].Offset {
		e.free[i].Size += e.free[i+1].Size
		e.free = slices.Delete(e.free, i+1, i+2)
	}
	if i > 0 && e.free[i-1].Offset+e.free[i-1].Size == e.free[i].Offset {
		e.free[i-1].Size += e.free[i].Size
		e.free = slices.Delete(e.free, i, i+1)
	}
	return nil
}

// Used returns the number of allocated bytes
func (e *Extents) Used() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	var n int64
	for _, size := range e.used {
		n += size
	}
	return n
}

// Free returns a copy of the free list
func (e *Extents) Free() []bastion.Extent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.free)
}

// Data returns a copy of the bytes persisted to the allocation at offset
func (e *Extents) Data(offset int64) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.used[offset]; !ok {
		return nil, false
	}
	return slices.Clone(e.data[offset]), true
}

var (
	_ bastion.BackingStore = (*Extents)(nil)
	_ bastion.Resetter     = (*Extents)(nil)
)
