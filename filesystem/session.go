package filesystem

import (
	"sync/atomic"

	"github.com/brettbedarf/bastion"
	"github.com/puzpuzpuz/xsync/v4"
)

// Session is the live binding of a descriptor to a file, a mode and an offset.
//
// INVARIANT: 0 <= offset <= capacity of the file
type Session struct {
	fd     FD
	node   NodeID // Non-owning reference to the file node
	mode   bastion.OpenMode
	offset int64
}

func (s *Session) FD() FD {
	return s.fd
}

// Node returns the file the session is bound to
func (s *Session) Node() NodeID {
	return s.node
}

func (s *Session) Mode() bastion.OpenMode {
	return s.mode
}

func (s *Session) Offset() int64 {
	return s.offset
}

// descriptorTable maps live descriptors to sessions and hands out new
// descriptors from a counter that starts at 0 and never goes backwards
type descriptorTable struct {
	sessions *xsync.Map[FD, *Session]
	nextFD   atomic.Uint64
}

func newDescriptorTable() *descriptorTable {
	return &descriptorTable{sessions: xsync.NewMap[FD, *Session]()}
}

// allocate returns a descriptor that has never been returned before
func (t *descriptorTable) allocate() FD {
	return FD(t.nextFD.Add(1) - 1)
}

// open inserts a session at offset 0
func (t *descriptorTable) open(fd FD, node NodeID, mode bastion.OpenMode) *Session {
	s := &Session{fd: fd, node: node, mode: mode}
	t.sessions.Store(fd, s)
	return s
}

func (t *descriptorTable) lookup(fd FD) (*Session, bool) {
	return t.sessions.Load(fd)
}

// isOpen reports whether f currently has a live session
func (t *descriptorTable) isOpen(f *File) bool {
	_, ok := t.sessions.Load(f.fd)
	return ok
}

// close removes the session for fd, returning it
func (t *descriptorTable) close(fd FD) (*Session, bool) {
	return t.sessions.LoadAndDelete(fd)
}

func (t *descriptorTable) len() int {
	return t.sessions.Size()
}

// live returns a snapshot of all live sessions
func (t *descriptorTable) live() []*Session {
	out := make([]*Session, 0, t.sessions.Size())
	t.sessions.Range(func(_ FD, s *Session) bool {
		out = append(out, s)
		return true
	})
	return out
}
