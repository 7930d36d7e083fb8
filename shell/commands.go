package shell

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/brettbedarf/bastion"
	"github.com/brettbedarf/bastion/filesystem"
)

// DateFormat is the layout of creation dates in tree output
const DateFormat = "2006-01-02 15:04:05"

type command struct {
	name    string
	aliases []string
	usage   string
	help    string
	minArgs int
	maxArgs int // -1 for no limit
	run     func(s *Shell, args []string) error
}

// commands is filled in init since help refers back to it
var commands []command

func init() {
	commands = []command{
		{name: "mkfs", usage: "mkfs", help: "Format the volume", run: (*Shell).cmdMkfs},
		{name: "open", usage: "open <path> <r|w>", help: "Open a file, printing its descriptor", minArgs: 2, maxArgs: 2, run: (*Shell).cmdOpen},
		{name: "read", usage: "read <fd> <size>", help: "Read size bytes from the descriptor offset", minArgs: 2, maxArgs: 2, run: (*Shell).cmdRead},
		{name: "write", usage: "write <fd> <string>", help: "Write a string at the descriptor offset", minArgs: 2, maxArgs: -1, run: (*Shell).cmdWrite},
		{name: "seek", usage: "seek <fd> <delta>", help: "Move the descriptor offset by delta bytes", minArgs: 2, maxArgs: 2, run: (*Shell).cmdSeek},
		{name: "close", usage: "close <fd>", help: "Close a descriptor", minArgs: 1, maxArgs: 1, run: (*Shell).cmdClose},
		{name: "mkdir", usage: "mkdir <dir>", help: "Create a directory", minArgs: 1, maxArgs: 1, run: (*Shell).cmdMkdir},
		{name: "rmdir", usage: "rmdir <dir>", help: "Remove a directory entry", minArgs: 1, maxArgs: 1, run: (*Shell).cmdRmdir},
		{name: "cd", usage: "cd [dir]", help: "Change directory; no argument goes to /", maxArgs: 1, run: (*Shell).cmdCd},
		{name: "ls", usage: "ls [dir]", help: "List a directory", maxArgs: 1, run: (*Shell).cmdLs},
		{name: "cat", usage: "cat <file>", help: "Print a file", minArgs: 1, maxArgs: 1, run: (*Shell).cmdCat},
		{name: "tree", usage: "tree [dir]", help: "List a directory recursively with file sizes and dates", maxArgs: 1, run: (*Shell).cmdTree},
		{name: "pwd", usage: "pwd", help: "Print the current directory", run: (*Shell).cmdPwd},
		{name: "stat", usage: "stat <path>", help: "Print node attributes", minArgs: 1, maxArgs: 1, run: (*Shell).cmdStat},
		{name: "fds", usage: "fds", help: "List open descriptors", run: (*Shell).cmdFds},
		{name: "info", usage: "info", help: "Show volume information", run: (*Shell).cmdInfo},
		{name: "import", usage: "import <src> <dest>", help: "Import a host file (not supported)", minArgs: 2, maxArgs: 2, run: unsupported("import")},
		{name: "export", usage: "export <src> <dest>", help: "Export to a host file (not supported)", minArgs: 2, maxArgs: 2, run: unsupported("export")},
		{name: "help", aliases: []string{"?"}, usage: "help", help: "Show this help", run: (*Shell).cmdHelp},
		{name: "exit", aliases: []string{"quit", "q"}, usage: "exit", help: "Exit", run: func(*Shell, []string) error { return ErrQuit }},
	}
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
		for _, a := range c.aliases {
			if a == name {
				return c, true
			}
		}
	}
	return command{}, false
}

func usageError(c command) error {
	return bastion.NewError(c.name, "", fmt.Errorf("%w: usage: %s", bastion.ErrInvalidArgument, c.usage))
}

func parseFD(op, s string) (filesystem.FD, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, bastion.NewError(op, s, fmt.Errorf("%w: not a descriptor", bastion.ErrInvalidArgument))
	}
	return filesystem.FD(n), nil
}

func parseInt(op, s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, bastion.NewError(op, s, fmt.Errorf("%w: not a number", bastion.ErrInvalidArgument))
	}
	return n, nil
}

func (s *Shell) cmdMkfs([]string) error {
	s.fs.Initialize()
	s.cwd = s.fs.Root()
	return nil
}

func (s *Shell) cmdOpen(args []string) error {
	mode, err := bastion.ParseOpenMode(args[1])
	if err != nil {
		return bastion.NewError("open", args[0], err)
	}
	fd, err := s.fs.Open(s.cwd, args[0], mode)
	if err != nil {
		return err
	}
	s.printf("Success, fd = %d\n", fd)
	return nil
}

func (s *Shell) cmdRead(args []string) error {
	fd, err := parseFD("read", args[0])
	if err != nil {
		return err
	}
	n, err := parseInt("read", args[1])
	if err != nil {
		return err
	}
	data, err := s.fs.Read(fd, n)
	if err != nil {
		return err
	}
	s.println(string(data))
	return nil
}

func (s *Shell) cmdWrite(args []string) error {
	fd, err := parseFD("write", args[0])
	if err != nil {
		return err
	}
	_, err = s.fs.Write(fd, []byte(strings.Join(args[1:], " ")))
	return err
}

func (s *Shell) cmdSeek(args []string) error {
	fd, err := parseFD("seek", args[0])
	if err != nil {
		return err
	}
	delta, err := parseInt("seek", args[1])
	if err != nil {
		return err
	}
	_, err = s.fs.Seek(fd, delta)
	return err
}

func (s *Shell) cmdClose(args []string) error {
	fd, err := parseFD("close", args[0])
	if err != nil {
		return err
	}
	return s.fs.Close(fd)
}

func (s *Shell) cmdMkdir(args []string) error {
	_, err := s.fs.Mkdir(s.cwd, args[0])
	return err
}

func (s *Shell) cmdRmdir(args []string) error {
	return s.fs.Rmdir(s.cwd, args[0])
}

func (s *Shell) cmdCd(args []string) error {
	if len(args) == 0 {
		s.cwd = s.fs.Root()
		return nil
	}
	id, err := s.fs.ResolveDir(s.cwd, args[0])
	if err != nil {
		return err
	}
	s.cwd = id
	return nil
}

// dirArg resolves an optional directory argument, defaulting to the cwd
func (s *Shell) dirArg(op string, args []string) (filesystem.NodeID, error) {
	if len(args) == 0 {
		return s.cwd, nil
	}
	id, err := s.fs.ResolvePath(s.cwd, args[0])
	if err != nil {
		return 0, err
	}
	if n, ok := s.fs.Node(id); !ok || !n.IsDir() {
		return 0, bastion.NewError(op, args[0], bastion.ErrNotADirectory)
	}
	return id, nil
}

func (s *Shell) cmdLs(args []string) error {
	dir, err := s.dirArg("ls", args)
	if err != nil {
		return err
	}
	entries, err := s.fs.List(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		s.println(e.Name)
	}
	return nil
}

func (s *Shell) cmdCat(args []string) error {
	content, err := s.fs.Cat(s.cwd, args[0])
	if err != nil {
		return err
	}
	s.println(string(content))
	return nil
}

func (s *Shell) cmdTree(args []string) error {
	dir, err := s.dirArg("tree", args)
	if err != nil {
		return err
	}
	entries, err := s.fs.Tree(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		indent := strings.Repeat("\t", e.Depth)
		switch e.Kind {
		case bastion.FileNode:
			s.printf("%s%s %d %s\n", indent, e.Name, e.Size, e.Ctime.Format(DateFormat))
		default:
			s.printf("%s%s\n", indent, e.Name)
		}
	}
	return nil
}

func (s *Shell) cmdPwd([]string) error {
	info, err := s.fs.Info(s.cwd)
	if err != nil {
		return err
	}
	s.println(info.Path())
	return nil
}

func (s *Shell) cmdStat(args []string) error {
	attr, err := s.fs.Stat(s.cwd, args[0])
	if err != nil {
		return err
	}
	kind := bastion.FileNode
	mode := os.FileMode(attr.Mode & 0o777)
	if attr.Mode&uint32(filesystem.DirAttr) == uint32(filesystem.DirAttr) {
		kind = bastion.DirNode
		mode |= os.ModeDir
	}
	s.printf("%s: %s inode=%d size=%d blocks=%d blksize=%d mode=%s\n",
		args[0], kind, attr.Ino, attr.Size, attr.Blocks, attr.Blksize, mode)
	return nil
}

func (s *Shell) cmdFds([]string) error {
	for _, sess := range s.fs.Sessions() {
		path := "?"
		if info, err := s.fs.Info(sess.Node()); err == nil {
			path = info.Path()
		}
		s.printf("%d\t%s\t%d\t%s\n", sess.FD(), sess.Mode(), sess.Offset(), path)
	}
	return nil
}

func (s *Shell) cmdInfo([]string) error {
	s.printf("volume: %s\n", s.fs.Volume())
	s.printf("total size: %d\n", s.fs.TotalSize())
	s.printf("open descriptors: %d\n", s.fs.OpenSessions())
	return nil
}

func unsupported(op string) func(*Shell, []string) error {
	return func(_ *Shell, args []string) error {
		return bastion.NewError(op, args[0], bastion.ErrUnsupported)
	}
}

func (s *Shell) cmdHelp([]string) error {
	s.println("Commands:")
	for _, c := range commands {
		s.printf("  %-22s %s\n", c.usage, c.help)
	}
	return nil
}
