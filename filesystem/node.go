package filesystem

import (
	"time"

	"github.com/brettbedarf/bastion"
)

// NodeID is a stable handle into the FileSystem node arena
type NodeID uint64

// ParentName is the synthetic entry every directory holds for its parent
const ParentName = ".."

// entry is one (name, child) pair of a directory listing
type entry struct {
	name string
	id   NodeID
}

// Node is a tagged variant over directories and files. Exactly one of
// children (DirNode) and file (FileNode) is meaningful, selected by kind.
type Node struct {
	id       NodeID
	name     string // Name of the node (last part of the path)
	parent   NodeID // Back-reference only; the root is its own parent
	kind     bastion.NodeKind
	ctime    time.Time
	children []entry // DirNode: insertion ordered, includes ".."
	file     *File   // FileNode
	detached bool    // Removed from its parent's listing
}

// newDirNode creates a directory holding only its ".." entry
func newDirNode(id NodeID, name string, parent NodeID, ctime time.Time) *Node {
	return &Node{
		id:       id,
		name:     name,
		parent:   parent,
		kind:     bastion.DirNode,
		ctime:    ctime,
		children: []entry{{name: ParentName, id: parent}},
	}
}

// newFileNode creates a file node around f
//
// NOTE: Parent node is responsible for adding itself to the returned Node's
// parent ref when linking as its child
func newFileNode(id NodeID, name string, f *File, ctime time.Time) *Node {
	return &Node{
		id:    id,
		name:  name,
		kind:  bastion.FileNode,
		ctime: ctime,
		file:  f,
	}
}

func (n *Node) ID() NodeID {
	return n.id
}

func (n *Node) Name() string {
	return n.name
}

func (n *Node) Kind() bastion.NodeKind {
	return n.kind
}

func (n *Node) IsDir() bool {
	return n.kind == bastion.DirNode
}

// AddChild appends (name, child) to the listing and sets the child's parent to
// this node. It does not check for duplicate names; callers keep names unique.
func (n *Node) AddChild(name string, child *Node) {
	n.children = append(n.children, entry{name: name, id: child.id})
	child.parent = n.id
	child.detached = false
}

// FindChild returns the first entry named name in insertion order
func (n *Node) FindChild(name string) (NodeID, bool) {
	for _, e := range n.children {
		if e.name == name {
			return e.id, true
		}
	}
	return 0, false
}

// RemoveChild drops the first entry named name and reports whether one existed
func (n *Node) RemoveChild(name string) (NodeID, bool) {
	for i, e := range n.children {
		if e.name == name {
			n.children = append(n.children[:i:i], n.children[i+1:]...)
			return e.id, true
		}
	}
	return 0, false
}

// entries returns a copy of the listing
func (n *Node) entries() []entry {
	out := make([]entry, len(n.children))
	copy(out, n.children)
	return out
}
