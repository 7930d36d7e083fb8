package filesystem

import "github.com/brettbedarf/bastion"

// FD is a file descriptor. Every file is assigned one at creation and keeps
// it for its lifetime; a session over the file is keyed by the same value.
type FD uint64

// File is a byte buffer with a capacity that grows one block at a time.
//
// INVARIANT: len(content) <= size
// INVARIANT: size only grows, in blockSize increments
type File struct {
	fd        FD
	size      int64 // capacity in bytes
	blockSize int64
	content   []byte
	extent    bastion.Extent // BackingStore allocation
}

// newFile returns an empty file with one block of capacity
func newFile(fd FD, blockSize int64, extent bastion.Extent) *File {
	return &File{
		fd:        fd,
		size:      blockSize,
		blockSize: blockSize,
		content:   []byte{},
		extent:    extent,
	}
}

// FD returns the descriptor assigned when the file was created
func (f *File) FD() FD {
	return f.fd
}

// Size returns the capacity
func (f *File) Size() int64 {
	return f.size
}

// Len returns the length of the written content
func (f *File) Len() int64 {
	return int64(len(f.content))
}

// Extent returns the backing store allocation handle
func (f *File) Extent() bastion.Extent {
	return f.extent
}

// planWrite returns the capacity a write of n bytes at off needs. Growth is
// evaluated once per write: at most one block is added. ok is false when a
// single block is not enough, in which case the write must be refused.
func (f *File) planWrite(off, n int64) (size int64, ok bool) {
	size = f.size
	if max(f.Len(), off+n) > size {
		size += f.blockSize
	}
	return size, max(f.Len(), off+n) <= size
}

// spliced returns the content with [off, off+len(p)) replaced by p, keeping
// whatever follows the window. A gap between the current end and off is zero
// filled. Caller must have validated the write with planWrite.
func (f *File) spliced(off int64, p []byte) []byte {
	end := off + int64(len(p))
	out := make([]byte, max(end, f.Len()))
	copy(out, f.content)
	copy(out[off:end], p)
	return out
}

// commit installs content produced by spliced along with its capacity
func (f *File) commit(content []byte, size int64, extent bastion.Extent) {
	f.content = content
	f.size = size
	f.extent = extent
}

// slice returns a copy of content[off:off+n] clamped to the written content
func (f *File) slice(off, n int64) []byte {
	start := min(off, f.Len())
	end := min(off+n, f.Len())
	out := make([]byte, end-start)
	copy(out, f.content[start:end])
	return out
}

// Bytes returns a copy of the written content
func (f *File) Bytes() []byte {
	return f.slice(0, f.Len())
}
