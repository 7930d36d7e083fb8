package filesystem

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/brettbedarf/bastion"
	"github.com/brettbedarf/bastion/config"
	"github.com/brettbedarf/bastion/internal/mocks"
	"github.com/brettbedarf/bastion/store"
	"github.com/google/go-cmp/cmp"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func createTestConfig() *config.Config {
	return config.NewDefaultConfig()
}

func fixedClock() time.Time { return testTime }

func newTestFS(t *testing.T, opts ...Option) *FileSystem {
	t.Helper()
	return NewFS(createTestConfig(), append([]Option{WithClock(fixedClock)}, opts...)...)
}

// writeFile creates name under dir with content and closes it
func writeFile(t *testing.T, fs *FileSystem, dir NodeID, name, content string) {
	t.Helper()
	fd, err := fs.Open(dir, name, bastion.WriteMode)
	require.NoError(t, err)
	_, err = fs.Write(fd, []byte(content))
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))
}

func sessionOffset(t *testing.T, fs *FileSystem, fd FD) int64 {
	t.Helper()
	s, _, ok := fs.session(fd)
	require.True(t, ok)
	return s.Offset()
}

// recordingCollector keeps every RecordOp call
type recordingCollector struct {
	ops      []string
	errs     []error
	sessions int
}

func (c *recordingCollector) RecordOp(op string, err error) {
	c.ops = append(c.ops, op)
	c.errs = append(c.errs, err)
}

func (c *recordingCollector) SetOpenSessions(n int) { c.sessions = n }

func TestInitialize_FreshRoot(t *testing.T) {
	fs := newTestFS(t)

	root, ok := fs.Node(fs.Root())
	require.True(t, ok)
	assert.True(t, root.IsDir())
	up, ok := root.FindChild(ParentName)
	require.True(t, ok)
	assert.Equal(t, RootID, up, "root is its own parent")
	assert.Equal(t, int64(config.DefaultTotalSize), fs.TotalSize())
	assert.Zero(t, fs.OpenSessions())
}

func TestInitialize_Idempotent(t *testing.T) {
	fs := newTestFS(t)
	_, err := fs.Mkdir(RootID, "foo")
	require.NoError(t, err)
	fd, err := fs.Open(RootID, "a", bastion.WriteMode)
	require.NoError(t, err)
	assert.Equal(t, FD(0), fd)
	before := fs.Volume()

	fs.Initialize()
	first, err := fs.List(RootID)
	require.NoError(t, err)
	fs.Initialize()
	second, err := fs.List(RootID)
	require.NoError(t, err)

	want := []DirEntry{{Name: ParentName, ID: RootID, Kind: bastion.DirNode}}
	if diff := cmp.Diff(want, first); diff != "" {
		t.Errorf("listing after format mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second format differs (-first +second):\n%s", diff)
	}
	assert.Zero(t, fs.OpenSessions())
	assert.NotEqual(t, before, fs.Volume())

	// Descriptor counter restarts
	fd, err = fs.Open(RootID, "b", bastion.WriteMode)
	require.NoError(t, err)
	assert.Equal(t, FD(0), fd)
}

func TestInitialize_ResetsStore(t *testing.T) {
	ms := &mocks.MockResettableStore{}
	ms.On("Reset").Return(nil).Twice()

	fs := newTestFS(t, WithStore(ms))
	fs.Initialize()

	ms.AssertExpectations(t)
}

func TestOpen_DescriptorUniqueness(t *testing.T) {
	fs := newTestFS(t)
	live := map[FD]string{}

	for _, name := range []string{"a", "b", "c"} {
		fd, err := fs.Open(RootID, name, bastion.WriteMode)
		require.NoError(t, err)
		require.NotContains(t, live, fd)
		live[fd] = name
	}
	require.NoError(t, fs.Close(1))
	delete(live, 1)

	// Reopening for write allocates a new descriptor, never a freed one
	fd, err := fs.Open(RootID, "b", bastion.WriteMode)
	require.NoError(t, err)
	assert.Equal(t, FD(3), fd)
	assert.NotContains(t, live, fd)
	live[fd] = "b"

	seen := map[FD]bool{}
	for _, s := range fs.Sessions() {
		assert.False(t, seen[s.FD()], "duplicate live descriptor %d", s.FD())
		seen[s.FD()] = true
	}
	assert.Len(t, seen, len(live))
}

func TestOpen_ReadReturnsCreationDescriptor(t *testing.T) {
	fs := newTestFS(t)
	writeFile(t, fs, RootID, "a", "x") // fd 0
	writeFile(t, fs, RootID, "b", "y") // fd 1

	fd, err := fs.Open(RootID, "a", bastion.ReadMode)
	require.NoError(t, err)
	assert.Equal(t, FD(0), fd)
	require.NoError(t, fs.Close(fd))

	fd, err = fs.Open(RootID, "b", bastion.ReadMode)
	require.NoError(t, err)
	assert.Equal(t, FD(1), fd)
}

func TestReadAfterWrite(t *testing.T) {
	fs := newTestFS(t)
	writeFile(t, fs, RootID, "a", "hello")

	fd, err := fs.Open(RootID, "a", bastion.ReadMode)
	require.NoError(t, err)
	data, err := fs.Read(fd, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, int64(5), sessionOffset(t, fs, fd))
}

func TestOpen_WriteTruncates(t *testing.T) {
	fs := newTestFS(t)
	writeFile(t, fs, RootID, "a", "xxxx")
	writeFile(t, fs, RootID, "b", "keep")

	fd, err := fs.Open(RootID, "a", bastion.WriteMode)
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))

	content, err := fs.Cat(RootID, "a")
	require.NoError(t, err)
	assert.Empty(t, content)

	// The replacement goes to the end of the listing and names stay unique
	entries, err := fs.List(RootID)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{ParentName, "b", "a"}, names)
}

func TestOpen_DoubleOpenRejected(t *testing.T) {
	fs := newTestFS(t)

	fd, err := fs.Open(RootID, "a", bastion.WriteMode)
	require.NoError(t, err)

	for _, mode := range []bastion.OpenMode{bastion.WriteMode, bastion.ReadMode} {
		_, err = fs.Open(RootID, "a", mode)
		assert.ErrorIs(t, err, bastion.ErrAlreadyOpen, "mode %s", mode)
	}
	assert.EqualError(t, err, "open: a: file is already open")
	assert.Equal(t, 1, fs.OpenSessions())

	require.NoError(t, fs.Close(fd))
	_, err = fs.Open(RootID, "a", bastion.ReadMode)
	assert.NoError(t, err)
}

func TestOpen_Errors(t *testing.T) {
	fs := newTestFS(t)
	_, err := fs.Mkdir(RootID, "dir")
	require.NoError(t, err)
	writeFile(t, fs, RootID, "file", "x")

	tests := []struct {
		name    string
		path    string
		mode    bastion.OpenMode
		wantErr error
	}{
		{"directory for read", "dir", bastion.ReadMode, bastion.ErrIsADirectory},
		{"directory for write", "dir", bastion.WriteMode, bastion.ErrIsADirectory},
		{"parent entry", "..", bastion.WriteMode, bastion.ErrIsADirectory},
		{"root for read", "/", bastion.ReadMode, bastion.ErrIsADirectory},
		{"root with repeated slashes", "///", bastion.WriteMode, bastion.ErrIsADirectory},
		{"missing for read", "nope", bastion.ReadMode, bastion.ErrNoSuchEntry},
		{"invalid mode", "file", bastion.OpenMode("x"), bastion.ErrInvalidArgument},
		{"empty path", "", bastion.WriteMode, bastion.ErrInvalidArgument},
		{"dot name", ".", bastion.WriteMode, bastion.ErrInvalidArgument},
		{"file as directory", "file/x", bastion.WriteMode, bastion.ErrNotADirectory},
		{"missing parent", "nope/x", bastion.WriteMode, bastion.ErrNoSuchEntry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fs.Open(RootID, tt.path, tt.mode)
			assert.ErrorIs(t, err, tt.wantErr)
			var fsErr *bastion.Error
			require.ErrorAs(t, err, &fsErr)
			assert.Equal(t, "open", fsErr.Op)
		})
	}
	assert.Zero(t, fs.OpenSessions())
}

func TestOpen_NestedPath(t *testing.T) {
	fs := newTestFS(t)
	dir, err := fs.Mkdir(RootID, "docs")
	require.NoError(t, err)

	writeFile(t, fs, RootID, "/docs/readme", "hi")

	content, err := fs.Cat(dir, "readme")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(content))
}

func TestRead_Errors(t *testing.T) {
	fs := newTestFS(t)
	wfd, err := fs.Open(RootID, "a", bastion.WriteMode)
	require.NoError(t, err)

	_, err = fs.Read(wfd, 1)
	assert.ErrorIs(t, err, bastion.ErrNotOpenForReading, "write session")

	_, err = fs.Read(42, 1)
	assert.ErrorIs(t, err, bastion.ErrNotOpenForReading, "unknown descriptor")
	assert.EqualError(t, err, "read: 42: not open for reading")

	require.NoError(t, fs.Close(wfd))
	rfd, err := fs.Open(RootID, "a", bastion.ReadMode)
	require.NoError(t, err)
	_, err = fs.Read(rfd, -1)
	assert.ErrorIs(t, err, bastion.ErrInvalidArgument)

	// offset+n must not wrap around
	_, err = fs.Seek(rfd, 1)
	require.NoError(t, err)
	_, err = fs.Read(rfd, math.MaxInt64)
	assert.ErrorIs(t, err, bastion.ErrOutOfRange)
	assert.Equal(t, int64(1), sessionOffset(t, fs, rfd))
}

func TestRead_BoundedByCapacity(t *testing.T) {
	fs := newTestFS(t)
	writeFile(t, fs, RootID, "a", "hello")

	fd, err := fs.Open(RootID, "a", bastion.ReadMode)
	require.NoError(t, err)

	// Past the content but within capacity succeeds with what there is
	data, err := fs.Read(fd, 100)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, int64(100), sessionOffset(t, fs, fd))

	data, err = fs.Read(fd, 3996)
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.Equal(t, int64(4096), sessionOffset(t, fs, fd))

	_, err = fs.Read(fd, 1)
	assert.ErrorIs(t, err, bastion.ErrOutOfRange)
	assert.Equal(t, int64(4096), sessionOffset(t, fs, fd), "offset unchanged on failure")
}

func TestWrite_Errors(t *testing.T) {
	fs := newTestFS(t)
	writeFile(t, fs, RootID, "a", "x")
	rfd, err := fs.Open(RootID, "a", bastion.ReadMode)
	require.NoError(t, err)

	_, err = fs.Write(rfd, []byte("y"))
	assert.ErrorIs(t, err, bastion.ErrNotOpenForWriting)

	_, err = fs.Write(99, []byte("y"))
	assert.ErrorIs(t, err, bastion.ErrNotOpenForWriting)
}

func TestWrite_SpliceAndOffset(t *testing.T) {
	fs := newTestFS(t)
	fd, err := fs.Open(RootID, "a", bastion.WriteMode)
	require.NoError(t, err)

	n, err := fs.Write(fd, []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Equal(t, int64(11), sessionOffset(t, fs, fd))

	_, err = fs.Seek(fd, -5)
	require.NoError(t, err)
	_, err = fs.Write(fd, []byte("WORLD"))
	require.NoError(t, err)

	_, err = fs.Seek(fd, -11)
	require.NoError(t, err)
	_, err = fs.Write(fd, []byte("J"))
	require.NoError(t, err)

	content, err := fs.Cat(RootID, "a")
	require.NoError(t, err)
	assert.Equal(t, "Jello WORLD", string(content))
	assert.Equal(t, int64(1), sessionOffset(t, fs, fd))
}

func TestWrite_GrowsOneBlock(t *testing.T) {
	fs := newTestFS(t)
	fd, err := fs.Open(RootID, "a", bastion.WriteMode)
	require.NoError(t, err)

	_, err = fs.Write(fd, make([]byte, 4000))
	require.NoError(t, err)
	_, err = fs.Write(fd, make([]byte, 200))
	require.NoError(t, err)

	id, ok := fs.FindChild(RootID, "a")
	require.True(t, ok)
	n, _ := fs.Node(id)
	assert.Equal(t, int64(8192), n.file.Size())
	assert.Equal(t, int64(4200), n.file.Len())
}

func TestWrite_RejectsMoreThanOneBlockOfGrowth(t *testing.T) {
	fs := newTestFS(t)
	fd, err := fs.Open(RootID, "a", bastion.WriteMode)
	require.NoError(t, err)
	_, err = fs.Write(fd, []byte("abc"))
	require.NoError(t, err)

	_, err = fs.Write(fd, make([]byte, 2*4096))
	assert.ErrorIs(t, err, bastion.ErrOutOfRange)

	id, _ := fs.FindChild(RootID, "a")
	n, _ := fs.Node(id)
	assert.Equal(t, int64(4096), n.file.Size(), "capacity unchanged")
	assert.Equal(t, "abc", string(n.file.Bytes()), "content unchanged")
	assert.Equal(t, int64(3), sessionOffset(t, fs, fd), "offset unchanged")
}

func TestSeek(t *testing.T) {
	fs := newTestFS(t)
	fd, err := fs.Open(RootID, "a", bastion.WriteMode)
	require.NoError(t, err)

	off, err := fs.Seek(fd, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), off)

	off, err = fs.Seek(fd, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(20), off, "seek is relative")

	_, err = fs.Seek(fd, 4096)
	assert.ErrorIs(t, err, bastion.ErrOutOfRange)
	_, err = fs.Seek(fd, -21)
	assert.ErrorIs(t, err, bastion.ErrOutOfRange)
	assert.Equal(t, int64(20), sessionOffset(t, fs, fd), "offset unchanged on failure")

	off, err = fs.Seek(fd, 4076)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), off, "capacity is reachable")

	_, err = fs.Seek(7, 0)
	assert.ErrorIs(t, err, bastion.ErrNotOpen)
}

func TestClose(t *testing.T) {
	fs := newTestFS(t)
	fd, err := fs.Open(RootID, "a", bastion.WriteMode)
	require.NoError(t, err)

	require.NoError(t, fs.Close(fd))
	err = fs.Close(fd)
	assert.ErrorIs(t, err, bastion.ErrNotOpen)
	assert.EqualError(t, err, "close: 0: not open")

	// The file persists after close
	_, ok := fs.FindChild(RootID, "a")
	assert.True(t, ok)
}

func TestMkdirThenCd(t *testing.T) {
	fs := newTestFS(t)
	start := RootID

	foo, err := fs.Mkdir(start, "foo")
	require.NoError(t, err)
	cwd, err := fs.ResolveDir(start, "foo")
	require.NoError(t, err)
	assert.Equal(t, foo, cwd)

	back, err := fs.ResolveDir(cwd, "..")
	require.NoError(t, err)
	assert.Equal(t, start, back)
}

func TestMkdir_Errors(t *testing.T) {
	fs := newTestFS(t)
	_, err := fs.Mkdir(RootID, "foo")
	require.NoError(t, err)
	writeFile(t, fs, RootID, "file", "")

	tests := []struct {
		path    string
		wantErr error
	}{
		{"foo", bastion.ErrAlreadyExists},
		{"file", bastion.ErrAlreadyExists},
		{"..", bastion.ErrAlreadyExists},
		{".", bastion.ErrInvalidArgument},
		{"", bastion.ErrInvalidArgument},
		{"missing/bar", bastion.ErrNoSuchEntry},
		{"file/bar", bastion.ErrNotADirectory},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := fs.Mkdir(RootID, tt.path)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.EqualError(t, func() error { _, err := fs.Mkdir(RootID, "foo"); return err }(),
		"mkdir: foo: file exists")
}

func TestDirectoryBackEdges(t *testing.T) {
	fs := newTestFS(t)
	a, err := fs.Mkdir(RootID, "a")
	require.NoError(t, err)
	_, err = fs.Mkdir(a, "b")
	require.NoError(t, err)
	_, err = fs.Mkdir(RootID, "/a/b/c")
	require.NoError(t, err)
	_, err = fs.Mkdir(RootID, "d")
	require.NoError(t, err)

	var walk func(dir NodeID)
	walk = func(dir NodeID) {
		entries, err := fs.List(dir)
		require.NoError(t, err)
		for _, e := range entries {
			if e.Name == ParentName || e.Kind != bastion.DirNode {
				continue
			}
			up, ok := fs.FindChild(e.ID, ParentName)
			require.True(t, ok)
			assert.Equal(t, dir, up, "parent of %s", e.Name)
			walk(e.ID)
		}
	}
	walk(RootID)

	up, ok := fs.FindChild(RootID, ParentName)
	require.True(t, ok)
	assert.Equal(t, RootID, up)
}

func TestRmdir_ParentEntryGuard(t *testing.T) {
	fs := newTestFS(t)
	sub, err := fs.Mkdir(RootID, "sub")
	require.NoError(t, err)

	for _, tc := range []struct {
		cwd  NodeID
		path string
	}{{RootID, ".."}, {sub, ".."}, {RootID, "sub/.."}} {
		err := fs.Rmdir(tc.cwd, tc.path)
		assert.ErrorIs(t, err, bastion.ErrCannotRemove, tc.path)
	}
	assert.EqualError(t, fs.Rmdir(RootID, ".."), "rmdir: ..: cannot remove that directory")

	_, ok := fs.FindChild(sub, ParentName)
	assert.True(t, ok)
}

func TestRmdir_Errors(t *testing.T) {
	fs := newTestFS(t)

	assert.ErrorIs(t, fs.Rmdir(RootID, "missing"), bastion.ErrNoSuchEntry)
	assert.ErrorIs(t, fs.Rmdir(RootID, ""), bastion.ErrInvalidArgument)
}

func TestRmdir_OrphansSubtree(t *testing.T) {
	fs := newTestFS(t)
	a, err := fs.Mkdir(RootID, "a")
	require.NoError(t, err)
	b, err := fs.Mkdir(a, "b")
	require.NoError(t, err)

	require.NoError(t, fs.Rmdir(RootID, "a"))

	_, ok := fs.FindChild(RootID, "a")
	assert.False(t, ok)

	// Removal is not recursive: the structure below stays as it was
	up, ok := fs.FindChild(b, ParentName)
	require.True(t, ok)
	assert.Equal(t, a, up)
	info, err := fs.Info(b)
	require.NoError(t, err)
	assert.Equal(t, "/a/b", info.Path())
}

func TestRmdir_File(t *testing.T) {
	s, err := store.NewExtents(1 << 20)
	require.NoError(t, err)
	fs := newTestFS(t, WithStore(s))
	writeFile(t, fs, RootID, "a", "data")
	id, _ := fs.FindChild(RootID, "a")
	require.Equal(t, int64(4096), s.Used())

	require.NoError(t, fs.Rmdir(RootID, "a"))

	_, ok := fs.Node(id)
	assert.False(t, ok, "closed file is dropped")
	assert.Zero(t, s.Used())
}

func TestRmdir_OpenFileReleasedOnClose(t *testing.T) {
	s, err := store.NewExtents(1 << 20)
	require.NoError(t, err)
	fs := newTestFS(t, WithStore(s))
	fd, err := fs.Open(RootID, "a", bastion.WriteMode)
	require.NoError(t, err)
	id, _ := fs.FindChild(RootID, "a")

	require.NoError(t, fs.Rmdir(RootID, "a"))
	_, ok := fs.FindChild(RootID, "a")
	assert.False(t, ok)

	// The live session keeps working on the removed file
	_, err = fs.Write(fd, []byte("still here"))
	require.NoError(t, err)
	assert.Equal(t, int64(4096), s.Used())

	require.NoError(t, fs.Close(fd))
	_, ok = fs.Node(id)
	assert.False(t, ok)
	assert.Zero(t, s.Used())
}

func TestRmdir_ReleasesFilesBelowRemovedDirectory(t *testing.T) {
	s, err := store.NewExtents(1 << 20)
	require.NoError(t, err)
	fs := newTestFS(t, WithStore(s))
	a, err := fs.Mkdir(RootID, "a")
	require.NoError(t, err)
	b, err := fs.Mkdir(a, "b")
	require.NoError(t, err)
	writeFile(t, fs, b, "closed", "data")
	closedID, _ := fs.FindChild(b, "closed")
	fd, err := fs.Open(a, "open", bastion.WriteMode)
	require.NoError(t, err)
	openID, _ := fs.FindChild(a, "open")
	require.Equal(t, int64(2*4096), s.Used())

	require.NoError(t, fs.Rmdir(RootID, "a"))

	_, ok := fs.Node(closedID)
	assert.False(t, ok, "closed file below the removed directory is dropped")
	_, ok = fs.FindChild(b, "closed")
	assert.False(t, ok)
	_, ok = fs.Node(b)
	assert.True(t, ok, "directories stay")
	assert.Equal(t, int64(4096), s.Used())

	require.NoError(t, fs.Close(fd))
	_, ok = fs.Node(openID)
	assert.False(t, ok, "open file is dropped on close")
	assert.Zero(t, s.Used())

	// A file created through a cursor left inside the orphan goes on close too
	fd, err = fs.Open(b, "late", bastion.WriteMode)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), s.Used())
	require.NoError(t, fs.Close(fd))
	_, ok = fs.FindChild(b, "late")
	assert.False(t, ok)
	assert.Zero(t, s.Used())
}

func TestResolvePath(t *testing.T) {
	fs := newTestFS(t)
	a, err := fs.Mkdir(RootID, "a")
	require.NoError(t, err)
	b, err := fs.Mkdir(a, "b")
	require.NoError(t, err)
	writeFile(t, fs, b, "f", "")
	f, _ := fs.FindChild(b, "f")

	tests := []struct {
		name    string
		base    NodeID
		path    string
		want    NodeID
		wantErr error
	}{
		{"empty is base", b, "", b, nil},
		{"relative", RootID, "a/b", b, nil},
		{"duplicate slashes", RootID, "a//b/", b, nil},
		{"absolute from anywhere", b, "/a", a, nil},
		{"root", b, "/", RootID, nil},
		{"up and down", b, "../../a/b/f", f, nil},
		{"last may be a file", RootID, "a/b/f", f, nil},
		{"missing", RootID, "a/x", 0, bastion.ErrNoSuchEntry},
		{"file in the middle", RootID, "a/b/f/g", 0, bastion.ErrNotADirectory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fs.ResolvePath(tt.base, tt.path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = fs.ResolveDir(RootID, "a/b/f")
	assert.ErrorIs(t, err, bastion.ErrNotADirectory)
}

func TestList(t *testing.T) {
	fs := newTestFS(t)
	docs, err := fs.Mkdir(RootID, "docs")
	require.NoError(t, err)
	writeFile(t, fs, RootID, "notes", "n")
	notes, _ := fs.FindChild(RootID, "notes")

	got, err := fs.List(RootID)
	require.NoError(t, err)
	want := []DirEntry{
		{Name: ParentName, ID: RootID, Kind: bastion.DirNode},
		{Name: "docs", ID: docs, Kind: bastion.DirNode},
		{Name: "notes", ID: notes, Kind: bastion.FileNode},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}

	_, err = fs.List(notes)
	assert.ErrorIs(t, err, bastion.ErrNotADirectory)
}

func TestTree(t *testing.T) {
	fs := newTestFS(t)
	a, err := fs.Mkdir(RootID, "a")
	require.NoError(t, err)
	writeFile(t, fs, a, "f", "hello")
	f, _ := fs.FindChild(a, "f")

	got, err := fs.Tree(RootID)
	require.NoError(t, err)
	want := []TreeEntry{
		{DirEntry: DirEntry{Name: ParentName, ID: RootID, Kind: bastion.DirNode}, Depth: 0, Ctime: testTime},
		{DirEntry: DirEntry{Name: "a", ID: a, Kind: bastion.DirNode}, Depth: 0, Ctime: testTime},
		{DirEntry: DirEntry{Name: ParentName, ID: RootID, Kind: bastion.DirNode}, Depth: 1, Ctime: testTime},
		{DirEntry: DirEntry{Name: "f", ID: f, Kind: bastion.FileNode}, Depth: 1, Size: 4096, Ctime: testTime},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Tree mismatch (-want +got):\n%s", diff)
	}
}

func TestCat(t *testing.T) {
	fs := newTestFS(t)
	_, err := fs.Mkdir(RootID, "dir")
	require.NoError(t, err)
	writeFile(t, fs, RootID, "a", "content")

	got, err := fs.Cat(RootID, "a")
	require.NoError(t, err)
	assert.Equal(t, "content", string(got))

	_, err = fs.Cat(RootID, "dir")
	assert.ErrorIs(t, err, bastion.ErrNotAFile)
	_, err = fs.Cat(RootID, "missing")
	assert.ErrorIs(t, err, bastion.ErrNoSuchEntry)
}

func TestStat(t *testing.T) {
	fs := newTestFS(t)
	dir, err := fs.Mkdir(RootID, "dir")
	require.NoError(t, err)
	writeFile(t, fs, RootID, "a", "hello")
	file, _ := fs.FindChild(RootID, "a")

	attr, err := fs.Stat(RootID, "dir")
	require.NoError(t, err)
	assert.Equal(t, uint64(dir), attr.Ino)
	assert.Equal(t, uint32(fuse.S_IFDIR|0o755), attr.Mode)
	assert.Equal(t, uint32(2), attr.Nlink)
	assert.Equal(t, uint64(testTime.Unix()), attr.Ctime)

	attr, err = fs.Stat(RootID, "a")
	require.NoError(t, err)
	assert.Equal(t, uint64(file), attr.Ino)
	assert.Equal(t, uint32(fuse.S_IFREG|0o644), attr.Mode)
	assert.Equal(t, uint64(5), attr.Size)
	assert.Equal(t, uint64(8), attr.Blocks)
	assert.Equal(t, uint32(4096), attr.Blksize)

	_, err = fs.Stat(RootID, "missing")
	assert.ErrorIs(t, err, bastion.ErrNoSuchEntry)
}

func TestInfo(t *testing.T) {
	fs := newTestFS(t)
	a, err := fs.Mkdir(RootID, "a")
	require.NoError(t, err)
	writeFile(t, fs, a, "f", "x")
	f, _ := fs.FindChild(a, "f")

	root, err := fs.Info(RootID)
	require.NoError(t, err)
	assert.Equal(t, "/", root.Path())

	info, err := fs.Info(f)
	require.NoError(t, err)
	assert.Equal(t, "f", info.Name())
	assert.Equal(t, "/a/f", info.Path())
	assert.Equal(t, bastion.FileNode, info.Kind())
	assert.Equal(t, int64(4096), info.Size())
	assert.Equal(t, uint64(f), info.NodeID())
	assert.Equal(t, testTime, info.Ctime())

	_, err = fs.Info(999)
	assert.ErrorIs(t, err, bastion.ErrNoSuchEntry)
}

func TestSessions_Ordered(t *testing.T) {
	fs := newTestFS(t)
	for _, name := range []string{"c", "b", "a"} {
		_, err := fs.Open(RootID, name, bastion.WriteMode)
		require.NoError(t, err)
	}
	require.NoError(t, fs.Close(1))

	var fds []FD
	for _, s := range fs.Sessions() {
		fds = append(fds, s.FD())
	}
	assert.Equal(t, []FD{0, 2}, fds)
}

func TestStoreHooks_CreateWriteGrow(t *testing.T) {
	ms := &mocks.MockBackingStore{}
	ms.On("Allocate", int64(4096)).Return(int64(0), nil).Once()
	ms.On("Persist", int64(0), []byte("hello")).Return(nil).Once()
	ms.On("Allocate", int64(8192)).Return(int64(4096), nil).Once()
	ms.On("Persist", int64(4096), mock.MatchedBy(func(p []byte) bool { return len(p) == 4101 })).Return(nil).Once()
	ms.On("Release", int64(0), int64(4096)).Return(nil).Once()

	fs := newTestFS(t, WithStore(ms))
	fd, err := fs.Open(RootID, "a", bastion.WriteMode)
	require.NoError(t, err)
	_, err = fs.Write(fd, []byte("hello"))
	require.NoError(t, err)
	_, err = fs.Write(fd, make([]byte, 4096))
	require.NoError(t, err)

	ms.AssertExpectations(t)
	id, _ := fs.FindChild(RootID, "a")
	n, _ := fs.Node(id)
	assert.Equal(t, bastion.Extent{Offset: 4096, Size: 8192}, n.file.Extent())
}

func TestStoreHooks_ReplaceReleasesOld(t *testing.T) {
	ms := &mocks.MockBackingStore{}
	ms.On("Allocate", int64(4096)).Return(int64(0), nil).Once()
	ms.On("Allocate", int64(4096)).Return(int64(4096), nil).Once()
	ms.On("Release", int64(0), int64(4096)).Return(nil).Once()

	fs := newTestFS(t, WithStore(ms))
	fd, err := fs.Open(RootID, "a", bastion.WriteMode)
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))
	_, err = fs.Open(RootID, "a", bastion.WriteMode)
	require.NoError(t, err)

	ms.AssertExpectations(t)
}

func TestStoreHooks_AllocateFailure(t *testing.T) {
	ms := &mocks.MockBackingStore{}
	storeErr := errors.New("disk full")
	ms.On("Allocate", int64(4096)).Return(nil, storeErr)

	fs := newTestFS(t, WithStore(ms))
	_, err := fs.Open(RootID, "a", bastion.WriteMode)

	assert.ErrorIs(t, err, storeErr)
	_, ok := fs.FindChild(RootID, "a")
	assert.False(t, ok, "nothing is created")
	assert.Zero(t, fs.OpenSessions())
}

func TestStoreHooks_PersistFailureLeavesFileUnchanged(t *testing.T) {
	ms := &mocks.MockBackingStore{}
	storeErr := errors.New("io error")
	ms.On("Allocate", int64(4096)).Return(int64(0), nil)
	ms.On("Persist", mock.Anything, mock.Anything).Return(storeErr)

	fs := newTestFS(t, WithStore(ms))
	fd, err := fs.Open(RootID, "a", bastion.WriteMode)
	require.NoError(t, err)

	_, err = fs.Write(fd, []byte("lost"))
	assert.ErrorIs(t, err, storeErr)

	content, err := fs.Cat(RootID, "a")
	require.NoError(t, err)
	assert.Empty(t, content)
	assert.Zero(t, sessionOffset(t, fs, fd))
}

func TestMetrics_RecordsOps(t *testing.T) {
	c := &recordingCollector{}
	fs := newTestFS(t, WithMetrics(c))

	fd, err := fs.Open(RootID, "a", bastion.WriteMode)
	require.NoError(t, err)
	assert.Equal(t, 1, c.sessions)
	_, err = fs.Read(fd, 1)
	require.Error(t, err)
	require.NoError(t, fs.Close(fd))
	assert.Zero(t, c.sessions)

	assert.Equal(t, []string{"initialize", "open", "read", "close"}, c.ops)
	assert.ErrorIs(t, c.errs[2], bastion.ErrNotOpenForReading)
	assert.NoError(t, c.errs[3])
}
