package filesystem

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/brettbedarf/bastion"
	"github.com/brettbedarf/bastion/config"
	"github.com/brettbedarf/bastion/internal/metrics"
	"github.com/brettbedarf/bastion/internal/util"
	"github.com/brettbedarf/bastion/store"
	"github.com/google/uuid"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/puzpuzpuz/xsync/v4"
)

// RootID is the handle of the root directory
const RootID NodeID = fuse.FUSE_ROOT_ID

// FileSystem owns the directory tree, the descriptor table and the descriptor
// counter. It runs every operation synchronously and is not safe for
// concurrent use.
type FileSystem struct {
	cfg       *config.Config
	store     bastion.BackingStore
	metrics   metrics.Collector
	now       func() time.Time
	volume    uuid.UUID
	totalSize int64
	lastID    atomic.Uint64             // Last NodeID assigned
	nodes     *xsync.Map[NodeID, *Node] // Node arena; includes orphaned nodes still referenced by a session
	fds       *descriptorTable
}

// Option customizes a FileSystem at construction
type Option func(*FileSystem)

// WithStore sets the backing store hooks. Defaults to [store.Nop].
func WithStore(s bastion.BackingStore) Option {
	return func(fs *FileSystem) { fs.store = s }
}

// WithMetrics sets the operation collector
func WithMetrics(c metrics.Collector) Option {
	return func(fs *FileSystem) { fs.metrics = c }
}

// WithClock sets the source of creation timestamps
func WithClock(now func() time.Time) Option {
	return func(fs *FileSystem) { fs.now = now }
}

// NewFS returns a freshly formatted FileSystem. cfg must be valid, see
// [config.Config.Validate].
func NewFS(cfg *config.Config, opts ...Option) *FileSystem {
	fs := &FileSystem{
		cfg:     cfg,
		store:   store.Nop{},
		metrics: metrics.NopCollector{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(fs)
	}
	fs.Initialize()
	return fs
}

// Initialize formats the volume: every file and directory is dropped, the
// descriptor table is emptied and the descriptor counter restarts at 0.
func (fs *FileSystem) Initialize() {
	logger := util.GetLogger("FS.Initialize")

	if r, ok := fs.store.(bastion.Resetter); ok {
		if err := r.Reset(); err != nil {
			logger.Error().Err(err).Msg("Failed to reset backing store")
		}
	}

	fs.nodes = xsync.NewMap[NodeID, *Node]()
	fs.lastID.Store(uint64(RootID))
	fs.nodes.Store(RootID, newDirNode(RootID, "/", RootID, fs.now()))
	fs.fds = newDescriptorTable()
	fs.totalSize = fs.cfg.TotalSize
	fs.volume = uuid.New()

	fs.metrics.RecordOp("initialize", nil)
	fs.metrics.SetOpenSessions(0)
	logger.Info().Str("volume", fs.volume.String()).Int64("totalSize", fs.totalSize).Msg("Formatted volume")
}

// Root returns the root directory handle
func (fs *FileSystem) Root() NodeID {
	return RootID
}

// Volume returns the identifier assigned by the last format
func (fs *FileSystem) Volume() uuid.UUID {
	return fs.volume
}

// TotalSize returns the volume overhead constant
func (fs *FileSystem) TotalSize() int64 {
	return fs.totalSize
}

// OpenSessions returns the number of live descriptors
func (fs *FileSystem) OpenSessions() int {
	return fs.fds.len()
}

// Node returns the node behind id
func (fs *FileSystem) Node(id NodeID) (*Node, bool) {
	return fs.nodes.Load(id)
}

// newID returns an unused NodeID
func (fs *FileSystem) newID() NodeID {
	return NodeID(fs.lastID.Add(1))
}

// dirNode returns the directory behind id
func (fs *FileSystem) dirNode(id NodeID) (*Node, error) {
	n, ok := fs.nodes.Load(id)
	if !ok {
		return nil, bastion.ErrNoSuchEntry
	}
	switch n.kind {
	case bastion.DirNode:
		return n, nil
	case bastion.FileNode:
		return nil, bastion.ErrNotADirectory
	default:
		panic(fmt.Sprintf("unknown node kind %v", n.kind))
	}
}

// forget releases the extent of a detached file and drops it from the arena.
// The node stays in the arena if the release fails.
func (fs *FileSystem) forget(n *Node) error {
	if n.kind == bastion.FileNode {
		ext := n.file.extent
		if err := fs.store.Release(ext.Offset, ext.Size); err != nil {
			return fmt.Errorf("release %s extent %d+%d: %w", n.name, ext.Offset, ext.Size, err)
		}
	}
	fs.nodes.Delete(n.id)
	return nil
}

// orphaned reports whether n or one of its ancestors has been removed
func (fs *FileSystem) orphaned(n *Node) bool {
	for cur := n; !cur.detached; {
		if cur.id == RootID {
			return false
		}
		parent, ok := fs.nodes.Load(cur.parent)
		if !ok {
			return true
		}
		cur = parent
	}
	return true
}

// releaseFiles forgets every closed file below d and drops its entry. The
// directories stay so a cursor inside them remains usable. Open files are
// released when their session closes.
func (fs *FileSystem) releaseFiles(d *Node) error {
	for _, e := range d.entries() {
		if e.name == ParentName {
			continue
		}
		child, ok := fs.nodes.Load(e.id)
		if !ok {
			continue
		}
		switch child.kind {
		case bastion.DirNode:
			if err := fs.releaseFiles(child); err != nil {
				return err
			}
		case bastion.FileNode:
			if fs.fds.isOpen(child.file) {
				continue
			}
			if err := fs.forget(child); err != nil {
				return err
			}
			d.RemoveChild(e.name)
		}
	}
	return nil
}

// record reports op to the metrics collector and passes err through
func (fs *FileSystem) record(op string, err error) error {
	fs.metrics.RecordOp(op, err)
	return err
}

// pathOf returns the absolute path of id.
//
// Returns an error if the node or an ancestor is detached with the path
// up to the first detached node
func (fs *FileSystem) pathOf(id NodeID) (string, error) {
	var parts []string
	cur := id
	for cur != RootID {
		n, ok := fs.nodes.Load(cur)
		if !ok {
			return "", fmt.Errorf("unknown node: %d", cur)
		}
		parts = append(parts, n.name)
		if n.detached {
			return reversePath(parts), fmt.Errorf("detached node: %s", n.name)
		}
		cur = n.parent
	}
	return reversePath(parts), nil
}

func reversePath(parts []string) string {
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteString("/")
		b.WriteString(parts[i])
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

// nodeInfo is a snapshot of a node implementing [bastion.NodeInfo]
type nodeInfo struct {
	name  string
	id    NodeID
	kind  bastion.NodeKind
	path  string
	size  int64
	ctime time.Time
}

func (i nodeInfo) Name() string           { return i.name }
func (i nodeInfo) NodeID() uint64         { return uint64(i.id) }
func (i nodeInfo) Kind() bastion.NodeKind { return i.kind }
func (i nodeInfo) Path() string           { return i.path }
func (i nodeInfo) Size() int64            { return i.size }
func (i nodeInfo) Ctime() time.Time       { return i.ctime }

var _ bastion.NodeInfo = nodeInfo{}

// Info returns a snapshot of the node behind id. Detached nodes report the
// path they had below their removed ancestor.
func (fs *FileSystem) Info(id NodeID) (bastion.NodeInfo, error) {
	n, ok := fs.nodes.Load(id)
	if !ok {
		return nil, bastion.NewError("info", fmt.Sprint(id), bastion.ErrNoSuchEntry)
	}
	// NOTE: pathOf fails for detached nodes but still returns the partial path
	p, _ := fs.pathOf(id)
	info := nodeInfo{name: n.name, id: n.id, kind: n.kind, path: p, ctime: n.ctime}
	if n.kind == bastion.FileNode {
		info.size = n.file.size
	}
	return info, nil
}
