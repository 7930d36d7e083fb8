package filesystem

import (
	"os"
	"syscall"

	"github.com/brettbedarf/bastion"
	"github.com/hanwen/go-fuse/v2/fuse"
)

type SysAttrType uint32

const (
	DirAttr  SysAttrType = syscall.S_IFDIR
	FileAttr SysAttrType = syscall.S_IFREG
)

// Permission bits reported for each kind; no access control is enforced
const (
	dirPerms  = 0o755
	filePerms = 0o644
)

// attrOf builds the wire attributes of n
func attrOf(n *Node) fuse.Attr {
	attr := newDefaultAttr(n)
	switch n.kind {
	case bastion.DirNode:
		attr.Mode = uint32(DirAttr) | dirPerms
		attr.Nlink = 2
	case bastion.FileNode:
		attr.Mode = uint32(FileAttr) | filePerms
		attr.Size = uint64(n.file.Len())
		attr.Blksize = uint32(n.file.blockSize)
		// Blocks counts 512-byte units of allocated capacity
		attr.Blocks = uint64(n.file.size+511) / 512
	}
	return attr
}

// newDefaultAttr returns the attributes shared by every node kind
// NOTE: Make sure to set the Mode field appropriately
func newDefaultAttr(n *Node) fuse.Attr {
	sec := uint64(n.ctime.Unix())
	nsec := uint32(n.ctime.Nanosecond())
	return fuse.Attr{
		Ino:   uint64(n.id),
		Nlink: 1,
		Owner: fuse.Owner{
			Uid: uint32(os.Getuid()),
			Gid: uint32(os.Getgid()),
		},
		Atime:     sec,
		Mtime:     sec,
		Ctime:     sec,
		Atimensec: nsec,
		Mtimensec: nsec,
		Ctimensec: nsec,
		Blksize:   4096, // preferred size for fs ops
		// Only non-zero for device files (see S_IFCHR and S_IFBLK) (N/A)
		Rdev: 0,
	}
}
