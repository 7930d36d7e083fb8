package filesystem

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"

	"github.com/brettbedarf/bastion"
	"github.com/brettbedarf/bastion/internal/util"
)

// Open opens the file at p relative to cwd.
//
// Read mode binds a session to the existing file under the descriptor it was
// created with. Write mode always creates a fresh empty file with a new
// descriptor, replacing any closed file of the same name.
func (fs *FileSystem) Open(cwd NodeID, p string, mode bastion.OpenMode) (fd FD, err error) {
	logger := util.GetLogger("FS.Open")
	defer func() { fs.record("open", err) }()

	fail := func(err error) (FD, error) {
		return 0, bastion.NewError("open", p, err)
	}

	// "/" and "///" name the root itself
	if p != "" && len(splitPath(p)) == 0 {
		return fail(bastion.ErrIsADirectory)
	}
	parent, name, err := fs.resolveParent(cwd, p)
	if err != nil {
		return fail(err)
	}

	var existing *Node
	if id, ok := parent.FindChild(name); ok {
		existing, _ = fs.nodes.Load(id)
	}
	if existing != nil {
		switch existing.kind {
		case bastion.DirNode:
			return fail(bastion.ErrIsADirectory)
		case bastion.FileNode:
			if fs.fds.isOpen(existing.file) {
				return fail(bastion.ErrAlreadyOpen)
			}
		}
	}

	switch mode {
	case bastion.ReadMode:
		if existing == nil {
			return fail(bastion.ErrNoSuchEntry)
		}
		s := fs.fds.open(existing.file.fd, existing.id, mode)
		fs.metrics.SetOpenSessions(fs.fds.len())
		logger.Debug().Str("path", p).Uint64("fd", uint64(s.fd)).Msg("Opened for reading")
		return s.fd, nil

	case bastion.WriteMode:
		if !validName(name) {
			return fail(bastion.ErrInvalidArgument)
		}
		blockSize := fs.cfg.BlockSize
		off, err := fs.store.Allocate(blockSize)
		if err != nil {
			logger.Error().Err(err).Str("path", p).Msg("Failed to allocate file")
			return fail(err)
		}
		ext := bastion.Extent{Offset: off, Size: blockSize}
		if existing != nil {
			if err := fs.forget(existing); err != nil {
				logger.Error().Err(err).Str("path", p).Msg("Failed to release replaced file")
				if rerr := fs.store.Release(ext.Offset, ext.Size); rerr != nil {
					logger.Error().Err(rerr).Msg("Failed to roll back allocation")
				}
				return fail(err)
			}
			parent.RemoveChild(name)
		}

		n := newFileNode(fs.newID(), name, newFile(fs.fds.allocate(), blockSize, ext), fs.now())
		fs.nodes.Store(n.id, n)
		parent.AddChild(name, n)
		s := fs.fds.open(n.file.fd, n.id, mode)
		fs.metrics.SetOpenSessions(fs.fds.len())
		logger.Debug().Str("path", p).Uint64("fd", uint64(s.fd)).Bool("replaced", existing != nil).
			Msg("Opened for writing")
		return s.fd, nil

	default:
		return fail(fmt.Errorf("%w: mode %q", bastion.ErrInvalidArgument, mode))
	}
}

// session returns the live session for fd and the file it is bound to
func (fs *FileSystem) session(fd FD) (*Session, *File, bool) {
	s, ok := fs.fds.lookup(fd)
	if !ok {
		return nil, nil, false
	}
	n, ok := fs.nodes.Load(s.node)
	if !ok || n.kind != bastion.FileNode {
		return nil, nil, false
	}
	return s, n.file, true
}

func fdTarget(fd FD) string {
	return strconv.FormatUint(uint64(fd), 10)
}

// Read returns up to n bytes at the session offset and advances the offset by
// n. The bound is checked against capacity; bytes past the written content
// are not returned.
func (fs *FileSystem) Read(fd FD, n int64) (data []byte, err error) {
	defer func() { fs.record("read", err) }()

	s, f, ok := fs.session(fd)
	if !ok || s.mode != bastion.ReadMode {
		return nil, bastion.NewError("read", fdTarget(fd), bastion.ErrNotOpenForReading)
	}
	if n < 0 {
		return nil, bastion.NewError("read", fdTarget(fd), bastion.ErrInvalidArgument)
	}
	if n > f.size-s.offset {
		return nil, bastion.NewError("read", fdTarget(fd),
			fmt.Errorf("%w: only %d bytes left", bastion.ErrOutOfRange, f.size-s.offset))
	}
	data = f.slice(s.offset, n)
	s.offset += n
	return data, nil
}

// Write splices p into the file at the session offset, growing capacity by at
// most one block, and advances the offset by len(p). A write that one block of
// growth cannot hold is refused.
func (fs *FileSystem) Write(fd FD, p []byte) (n int, err error) {
	logger := util.GetLogger("FS.Write")
	defer func() { fs.record("write", err) }()

	s, f, ok := fs.session(fd)
	if !ok || s.mode != bastion.WriteMode {
		return 0, bastion.NewError("write", fdTarget(fd), bastion.ErrNotOpenForWriting)
	}
	size, ok := f.planWrite(s.offset, int64(len(p)))
	if !ok {
		return 0, bastion.NewError("write", fdTarget(fd),
			fmt.Errorf("%w: %d bytes exceed one block of growth", bastion.ErrOutOfRange, len(p)))
	}

	ext := f.extent
	if size != f.size {
		off, err := fs.store.Allocate(size)
		if err != nil {
			logger.Error().Err(err).Int64("size", size).Msg("Failed to grow file")
			return 0, bastion.NewError("write", fdTarget(fd), err)
		}
		ext = bastion.Extent{Offset: off, Size: size}
	}

	content := f.spliced(s.offset, p)
	if err := fs.store.Persist(ext.Offset, content); err != nil {
		logger.Error().Err(err).Uint64("fd", uint64(fd)).Msg("Failed to persist write")
		if ext != f.extent {
			if rerr := fs.store.Release(ext.Offset, ext.Size); rerr != nil {
				logger.Error().Err(rerr).Msg("Failed to roll back growth")
			}
		}
		return 0, bastion.NewError("write", fdTarget(fd), err)
	}
	if ext != f.extent {
		if err := fs.store.Release(f.extent.Offset, f.extent.Size); err != nil {
			// The new extent already holds the data
			logger.Warn().Err(err).Msg("Failed to release previous extent")
		}
	}

	f.commit(content, size, ext)
	s.offset += int64(len(p))
	logger.Trace().Uint64("fd", uint64(fd)).Int("n", len(p)).Int64("offset", s.offset).Msg("Wrote")
	return len(p), nil
}

// Seek moves the session offset by delta, relative to its current position,
// and returns the new offset. The target must stay within [0, capacity].
func (fs *FileSystem) Seek(fd FD, delta int64) (offset int64, err error) {
	defer func() { fs.record("seek", err) }()

	s, f, ok := fs.session(fd)
	if !ok {
		return 0, bastion.NewError("seek", fdTarget(fd), bastion.ErrNotOpen)
	}
	target := s.offset + delta
	if target < 0 || target > f.size {
		return s.offset, bastion.NewError("seek", fdTarget(fd),
			fmt.Errorf("%w: only %d bytes left", bastion.ErrOutOfRange, f.size-s.offset))
	}
	s.offset = target
	return s.offset, nil
}

// Close ends the session on fd. The file stays in the tree unless it, or a
// directory above it, was removed while open, in which case it is released now.
func (fs *FileSystem) Close(fd FD) (err error) {
	logger := util.GetLogger("FS.Close")
	defer func() { fs.record("close", err) }()

	s, ok := fs.fds.close(fd)
	if !ok {
		return bastion.NewError("close", fdTarget(fd), bastion.ErrNotOpen)
	}
	fs.metrics.SetOpenSessions(fs.fds.len())

	if n, ok := fs.nodes.Load(s.node); ok && fs.orphaned(n) {
		if err := fs.forget(n); err != nil {
			logger.Error().Err(err).Uint64("fd", uint64(fd)).Msg("Failed to release removed file")
			return bastion.NewError("close", fdTarget(fd), err)
		}
		// Still listed when only an ancestor was removed
		if parent, ok := fs.nodes.Load(n.parent); ok && !n.detached {
			parent.RemoveChild(n.name)
		}
	}
	logger.Debug().Uint64("fd", uint64(fd)).Msg("Closed")
	return nil
}

// Sessions returns the live sessions ordered by descriptor
func (fs *FileSystem) Sessions() []*Session {
	live := fs.fds.live()
	slices.SortFunc(live, func(a, b *Session) int { return cmp.Compare(a.fd, b.fd) })
	return live
}
