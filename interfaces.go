// Package bastion contains core domain types and interfaces for the bastion
// in-memory filesystem
package bastion

// BackingStore defines the hooks the core filesystem calls so file data can be
// mirrored onto some medium. Implementations are owned by a single FileSystem
// and are called synchronously from its operations.
type BackingStore interface {
	// Allocate reserves size bytes and returns the start offset of the reservation
	Allocate(size int64) (offset int64, err error)

	// Persist writes p starting at offset. The range always lies inside an
	// extent previously returned by Allocate
	Persist(offset int64, p []byte) error

	// Release frees an extent previously returned by Allocate
	Release(offset, size int64) error
}

// Resetter is implemented by stores that hold state which must be dropped
// when the filesystem is reformatted
type Resetter interface {
	Reset() error
}

// Extent is the allocation handle a file carries for its BackingStore space
type Extent struct {
	Offset int64
	Size   int64
}

// StoreProvider builds BackingStore instances for a volume of totalSize bytes
type StoreProvider interface {
	NewStore(totalSize int64) (BackingStore, error)
}
