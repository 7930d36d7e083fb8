package bastion

import (
	"fmt"
	"time"
)

// NodeKind valid kinds are DirNode and FileNode
type NodeKind uint8

const (
	DirNode NodeKind = iota + 1
	FileNode
)

func (k NodeKind) String() string {
	switch k {
	case DirNode:
		return "dir"
	case FileNode:
		return "file"
	default:
		return fmt.Sprintf("NodeKind(%d)", uint8(k))
	}
}

// NodeInfo provides read-only access to node information for external consumers
type NodeInfo interface {
	// Name returns the node's name (last path component)
	Name() string

	// NodeID returns the stable arena handle of the node
	NodeID() uint64

	// Kind reports whether the node is a directory or a file
	Kind() NodeKind

	// Path returns the absolute path to the node
	Path() string

	// Size returns the capacity in bytes for files and 0 for directories
	Size() int64

	// Ctime returns the creation time
	Ctime() time.Time
}

// OpenMode valid modes are ReadMode "r" and WriteMode "w"
type OpenMode string

const (
	ReadMode  OpenMode = "r"
	WriteMode OpenMode = "w"
)

// ParseOpenMode validates a mode token as typed by a user
func ParseOpenMode(s string) (OpenMode, error) {
	switch m := OpenMode(s); m {
	case ReadMode, WriteMode:
		return m, nil
	default:
		return "", fmt.Errorf("%q is not a valid flag: %w", s, ErrInvalidArgument)
	}
}
