package filesystem

import (
	"strings"
	"time"

	"github.com/brettbedarf/bastion"
	"github.com/brettbedarf/bastion/internal/util"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// DirEntry is one listing entry of a directory
type DirEntry struct {
	Name string
	ID   NodeID
	Kind bastion.NodeKind
}

// TreeEntry is one line of a recursive listing
type TreeEntry struct {
	DirEntry
	Depth int
	Size  int64 // Capacity for files, 0 for directories
	Ctime time.Time
}

// splitPath splits p on "/" dropping empty segments, so "a//b/" is "a/b"
func splitPath(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
}

// walk resolves comps one directory at a time starting at start
func (fs *FileSystem) walk(start NodeID, comps []string) (NodeID, error) {
	cur := start
	for _, name := range comps {
		dir, err := fs.dirNode(cur)
		if err != nil {
			return 0, err
		}
		next, ok := dir.FindChild(name)
		if !ok {
			return 0, bastion.ErrNoSuchEntry
		}
		cur = next
	}
	return cur, nil
}

// startOf returns where resolution of p begins: the root for absolute paths,
// base otherwise
func startOf(base NodeID, p string) NodeID {
	if strings.HasPrefix(p, "/") {
		return RootID
	}
	return base
}

// resolveParent resolves every component of p but the last, which must be a
// directory, and returns it along with the last component
func (fs *FileSystem) resolveParent(base NodeID, p string) (*Node, string, error) {
	comps := splitPath(p)
	if len(comps) == 0 {
		return nil, "", bastion.ErrInvalidArgument
	}
	id, err := fs.walk(startOf(base, p), comps[:len(comps)-1])
	if err != nil {
		return nil, "", err
	}
	dir, err := fs.dirNode(id)
	if err != nil {
		return nil, "", err
	}
	return dir, comps[len(comps)-1], nil
}

// validName reports whether name may be given to a new node
func validName(name string) bool {
	return name != "" && name != "." && name != ParentName && !strings.Contains(name, "/")
}

// ResolvePath walks p from base. Every component but the last must be a
// directory; the last may be either kind. An empty path resolves to base.
func (fs *FileSystem) ResolvePath(base NodeID, p string) (NodeID, error) {
	id, err := fs.walk(startOf(base, p), splitPath(p))
	if err != nil {
		return 0, bastion.NewError("resolve", p, err)
	}
	return id, nil
}

// ResolveDir is [FileSystem.ResolvePath] for a path that must name a directory
func (fs *FileSystem) ResolveDir(base NodeID, p string) (id NodeID, err error) {
	defer func() { fs.record("cd", err) }()

	id, err = fs.walk(startOf(base, p), splitPath(p))
	if err == nil {
		_, err = fs.dirNode(id)
	}
	if err != nil {
		return 0, bastion.NewError("cd", p, err)
	}
	return id, nil
}

// FindChild looks up name directly under dir
func (fs *FileSystem) FindChild(dir NodeID, name string) (NodeID, bool) {
	d, err := fs.dirNode(dir)
	if err != nil {
		return 0, false
	}
	return d.FindChild(name)
}

// List returns the entries of dir in insertion order, ".." included
func (fs *FileSystem) List(dir NodeID) (entries []DirEntry, err error) {
	defer func() { fs.record("ls", err) }()

	d, err := fs.dirNode(dir)
	if err != nil {
		return nil, bastion.NewError("ls", "", err)
	}
	raw := d.entries()
	entries = make([]DirEntry, 0, len(raw))
	for _, e := range raw {
		kind := bastion.DirNode
		if n, ok := fs.nodes.Load(e.id); ok {
			kind = n.kind
		}
		entries = append(entries, DirEntry{Name: e.name, ID: e.id, Kind: kind})
	}
	return entries, nil
}

// Mkdir creates an empty directory at p relative to cwd
func (fs *FileSystem) Mkdir(cwd NodeID, p string) (id NodeID, err error) {
	logger := util.GetLogger("FS.Mkdir")
	defer func() { fs.record("mkdir", err) }()

	parent, name, err := fs.resolveParent(cwd, p)
	if err != nil {
		return 0, bastion.NewError("mkdir", p, err)
	}
	if _, exists := parent.FindChild(name); exists {
		return 0, bastion.NewError("mkdir", p, bastion.ErrAlreadyExists)
	}
	if !validName(name) {
		return 0, bastion.NewError("mkdir", p, bastion.ErrInvalidArgument)
	}

	dir := newDirNode(fs.newID(), name, parent.id, fs.now())
	fs.nodes.Store(dir.id, dir)
	parent.AddChild(name, dir)
	logger.Debug().Str("path", p).Uint64("id", uint64(dir.id)).Msg("Created directory")
	return dir.id, nil
}

// Rmdir removes the entry at p from its parent. The ".." entry can never be
// removed. Removal is not recursive: the entry is dropped and the directories
// below a removed directory are orphaned, while the closed files below it are
// released. Files may be removed this way too.
func (fs *FileSystem) Rmdir(cwd NodeID, p string) (err error) {
	logger := util.GetLogger("FS.Rmdir")
	defer func() { fs.record("rmdir", err) }()

	parent, name, err := fs.resolveParent(cwd, p)
	if err != nil {
		return bastion.NewError("rmdir", p, err)
	}
	if name == ParentName {
		return bastion.NewError("rmdir", p, bastion.ErrCannotRemove)
	}
	id, ok := parent.FindChild(name)
	if !ok {
		return bastion.NewError("rmdir", p, bastion.ErrNoSuchEntry)
	}
	n, ok := fs.nodes.Load(id)
	if !ok {
		return bastion.NewError("rmdir", p, bastion.ErrNoSuchEntry)
	}

	// Files without a session go right away; an open file stays in the arena
	// until its session is closed
	if n.kind == bastion.FileNode && !fs.fds.isOpen(n.file) {
		if err := fs.forget(n); err != nil {
			logger.Error().Err(err).Str("path", p).Msg("Failed to release removed file")
			return bastion.NewError("rmdir", p, err)
		}
	}
	parent.RemoveChild(name)
	n.detached = true
	if n.kind == bastion.DirNode {
		if err := fs.releaseFiles(n); err != nil {
			logger.Error().Err(err).Str("path", p).Msg("Failed to release files below removed directory")
		}
	}
	logger.Debug().Str("path", p).Str("kind", n.kind.String()).Msg("Removed entry")
	return nil
}

// Cat returns the full content of the file at p
func (fs *FileSystem) Cat(cwd NodeID, p string) (content []byte, err error) {
	defer func() { fs.record("cat", err) }()

	id, err := fs.walk(startOf(cwd, p), splitPath(p))
	if err != nil {
		return nil, bastion.NewError("cat", p, err)
	}
	n, _ := fs.nodes.Load(id)
	if n == nil || n.kind != bastion.FileNode {
		return nil, bastion.NewError("cat", p, bastion.ErrNotAFile)
	}
	return n.file.Bytes(), nil
}

// Tree lists dir depth first. ".." entries are listed but never descended.
func (fs *FileSystem) Tree(dir NodeID) (entries []TreeEntry, err error) {
	defer func() { fs.record("tree", err) }()

	d, err := fs.dirNode(dir)
	if err != nil {
		return nil, bastion.NewError("tree", "", err)
	}
	return fs.appendTree(nil, d, 0), nil
}

func (fs *FileSystem) appendTree(out []TreeEntry, d *Node, depth int) []TreeEntry {
	for _, e := range d.entries() {
		n, ok := fs.nodes.Load(e.id)
		if !ok {
			continue
		}
		te := TreeEntry{
			DirEntry: DirEntry{Name: e.name, ID: e.id, Kind: n.kind},
			Depth:    depth,
			Ctime:    n.ctime,
		}
		switch n.kind {
		case bastion.FileNode:
			te.Size = n.file.size
			out = append(out, te)
		case bastion.DirNode:
			out = append(out, te)
			if e.name != ParentName {
				out = fs.appendTree(out, n, depth+1)
			}
		}
	}
	return out
}

// Stat returns the attributes of the node at p
func (fs *FileSystem) Stat(cwd NodeID, p string) (attr fuse.Attr, err error) {
	defer func() { fs.record("stat", err) }()

	id, err := fs.walk(startOf(cwd, p), splitPath(p))
	if err != nil {
		return fuse.Attr{}, bastion.NewError("stat", p, err)
	}
	n, ok := fs.nodes.Load(id)
	if !ok {
		return fuse.Attr{}, bastion.NewError("stat", p, bastion.ErrNoSuchEntry)
	}
	return attrOf(n), nil
}
