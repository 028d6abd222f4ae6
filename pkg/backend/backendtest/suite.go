package backendtest

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"path"
	"sort"
	"syscall"
	"testing"
	"time"

	"github.com/marmos91/godfs/pkg/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SessionTestSuite checks the backend.Session and backend.File contracts.
//
// Usage:
//
//	func TestMyBackend(t *testing.T) {
//	    suite := &backendtest.SessionTestSuite{
//	        NewSession: func(t *testing.T) (backend.Session, string) {
//	            return connect(t), "/scratch"
//	        },
//	    }
//	    suite.Run(t)
//	}
type SessionTestSuite struct {
	// NewSession returns a connected session and an absolute scratch
	// directory the test may use. The directory need not exist yet. The
	// suite disconnects the session when the test ends.
	NewSession func(t *testing.T) (backend.Session, string)
}

// Run executes all tests in the suite.
func (suite *SessionTestSuite) Run(t *testing.T) {
	t.Run("WriteThenRead", suite.testWriteThenRead)
	t.Run("OverwriteReplaces", suite.testOverwriteReplaces)
	t.Run("ReadAtKeepsCursor", suite.testReadAtKeepsCursor)
	t.Run("SeekTellAvailable", suite.testSeekTellAvailable)
	t.Run("TellOnWriteHandle", suite.testTellOnWriteHandle)
	t.Run("WrongDirection", suite.testWrongDirection)
	t.Run("UseAfterClose", suite.testUseAfterClose)
	t.Run("OpenMissing", suite.testOpenMissing)
	t.Run("CreateOverDirectory", suite.testCreateOverDirectory)
	t.Run("PathInfo", suite.testPathInfo)
	t.Run("ListDirectory", suite.testListDirectory)
	t.Run("Exists", suite.testExists)
	t.Run("MkdirNested", suite.testMkdirNested)
	t.Run("Rename", suite.testRename)
	t.Run("Delete", suite.testDelete)
	t.Run("Chmod", suite.testChmod)
	t.Run("Utime", suite.testUtime)
	t.Run("Truncate", suite.testTruncate)
	t.Run("WorkingDirectory", suite.testWorkingDirectory)
	t.Run("StatFs", suite.testStatFs)
	t.Run("Copy", suite.testCopy)
}

func ctx() context.Context {
	return context.Background()
}

func (suite *SessionTestSuite) session(t *testing.T) (backend.Session, string) {
	t.Helper()
	s, dir := suite.NewSession(t)
	t.Cleanup(func() { _ = s.Disconnect(context.Background()) })
	require.NoError(t, s.Mkdir(ctx(), dir))
	return s, dir
}

// WriteFile creates p on s with data.
func WriteFile(t *testing.T, s backend.Session, p string, data []byte) {
	t.Helper()
	f, err := s.OpenFile(ctx(), p, backend.OpenFlags{Write: true})
	require.NoError(t, err)
	if len(data) > 0 {
		n, err := io.Copy(backend.NewWriter(ctx(), f), bytesReader(data))
		require.NoError(t, err)
		require.Equal(t, int64(len(data)), n)
	}
	require.NoError(t, f.Close(ctx()))
}

// ReadFile returns the whole content of p on s.
func ReadFile(t *testing.T, s backend.Session, p string) []byte {
	t.Helper()
	f, err := s.OpenFile(ctx(), p, backend.OpenFlags{})
	require.NoError(t, err)
	defer func() { _ = f.Close(ctx()) }()

	data, err := io.ReadAll(backend.NewReader(ctx(), f))
	require.NoError(t, err)
	return data
}

func bytesReader(b []byte) io.Reader {
	return &sliceReader{b: b}
}

// sliceReader hands out at most 7 bytes per Read to exercise short chunks.
type sliceReader struct {
	b []byte
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if len(r.b) == 0 {
		return 0, io.EOF
	}
	n := copy(p[:min(len(p), 7)], r.b)
	r.b = r.b[n:]
	return n, nil
}

func assertErrno(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var be *backend.Error
	assert.True(t, errors.As(err, &be), "expected *backend.Error, got %T: %v", err, err)
	assert.NotZero(t, backend.Errno(err))
}

func (suite *SessionTestSuite) testWriteThenRead(t *testing.T) {
	s, dir := suite.session(t)
	p := path.Join(dir, "hello.txt")

	WriteFile(t, s, p, []byte("hello, world"))
	assert.Equal(t, []byte("hello, world"), ReadFile(t, s, p))

	empty := path.Join(dir, "empty")
	WriteFile(t, s, empty, nil)
	assert.Empty(t, ReadFile(t, s, empty))
}

func (suite *SessionTestSuite) testOverwriteReplaces(t *testing.T) {
	s, dir := suite.session(t)
	p := path.Join(dir, "f")

	WriteFile(t, s, p, []byte("a much longer first version"))
	WriteFile(t, s, p, []byte("short"))

	assert.Equal(t, []byte("short"), ReadFile(t, s, p))
}

func (suite *SessionTestSuite) testReadAtKeepsCursor(t *testing.T) {
	s, dir := suite.session(t)
	p := path.Join(dir, "f")
	WriteFile(t, s, p, []byte("0123456789"))

	f, err := s.OpenFile(ctx(), p, backend.OpenFlags{})
	require.NoError(t, err)
	defer f.Close(ctx())

	buf := make([]byte, 3)
	n, err := f.ReadAt(ctx(), buf, 5)
	require.NoError(t, err)
	assert.Equal(t, "567", string(buf[:n]))

	pos, err := f.Tell(ctx())
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos)

	n, err = f.Read(ctx(), buf)
	require.NoError(t, err)
	assert.Equal(t, "012", string(buf[:n]))

	n, err = f.ReadAt(ctx(), make([]byte, 4), 10)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}

func (suite *SessionTestSuite) testSeekTellAvailable(t *testing.T) {
	s, dir := suite.session(t)
	p := path.Join(dir, "f")
	WriteFile(t, s, p, []byte("abcdefghij"))

	f, err := s.OpenFile(ctx(), p, backend.OpenFlags{})
	require.NoError(t, err)
	defer f.Close(ctx())

	avail, err := f.Available(ctx())
	require.NoError(t, err)
	assert.Equal(t, int64(10), avail)

	require.NoError(t, f.Seek(ctx(), 7))
	pos, err := f.Tell(ctx())
	require.NoError(t, err)
	assert.Equal(t, int64(7), pos)

	avail, err = f.Available(ctx())
	require.NoError(t, err)
	assert.Equal(t, int64(3), avail)

	buf := make([]byte, 10)
	n, err := f.Read(ctx(), buf)
	require.NoError(t, err)
	assert.Equal(t, "hij", string(buf[:n]))

	n, err = f.Read(ctx(), buf)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)

	assertErrno(t, f.Seek(ctx(), -1))
}

func (suite *SessionTestSuite) testTellOnWriteHandle(t *testing.T) {
	s, dir := suite.session(t)

	f, err := s.OpenFile(ctx(), path.Join(dir, "f"), backend.OpenFlags{Write: true})
	require.NoError(t, err)
	defer f.Close(ctx())

	_, err = f.Write(ctx(), []byte("12345"))
	require.NoError(t, err)

	pos, err := f.Tell(ctx())
	require.NoError(t, err)
	assert.Equal(t, int64(5), pos)
	assert.True(t, f.Writable())
}

func (suite *SessionTestSuite) testWrongDirection(t *testing.T) {
	s, dir := suite.session(t)
	p := path.Join(dir, "f")
	WriteFile(t, s, p, []byte("data"))

	r, err := s.OpenFile(ctx(), p, backend.OpenFlags{})
	require.NoError(t, err)
	defer r.Close(ctx())
	assert.False(t, r.Writable())
	_, err = r.Write(ctx(), []byte("x"))
	assertErrno(t, err)

	w, err := s.OpenFile(ctx(), path.Join(dir, "g"), backend.OpenFlags{Write: true})
	require.NoError(t, err)
	defer w.Close(ctx())
	_, err = w.Read(ctx(), make([]byte, 1))
	assertErrno(t, err)
	assertErrno(t, w.Seek(ctx(), 0))
}

func (suite *SessionTestSuite) testUseAfterClose(t *testing.T) {
	s, dir := suite.session(t)
	p := path.Join(dir, "f")
	WriteFile(t, s, p, []byte("data"))

	f, err := s.OpenFile(ctx(), p, backend.OpenFlags{})
	require.NoError(t, err)
	require.NoError(t, f.Close(ctx()))

	_, err = f.Read(ctx(), make([]byte, 1))
	assertErrno(t, err)
	assertErrno(t, f.Close(ctx()))
}

func (suite *SessionTestSuite) testOpenMissing(t *testing.T) {
	s, dir := suite.session(t)

	_, err := s.OpenFile(ctx(), path.Join(dir, "missing"), backend.OpenFlags{})
	assertErrno(t, err)
	assert.True(t, backend.IsNotExist(err))
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = s.OpenFile(ctx(), dir, backend.OpenFlags{})
	assertErrno(t, err)
}

func (suite *SessionTestSuite) testCreateOverDirectory(t *testing.T) {
	s, dir := suite.session(t)
	p := path.Join(dir, "empty")
	require.NoError(t, s.Mkdir(ctx(), p))

	_, err := s.OpenFile(ctx(), p, backend.OpenFlags{Write: true})
	assert.Equal(t, syscall.EISDIR, backend.Errno(err))

	fi, err := s.GetPathInfo(ctx(), p)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

func (suite *SessionTestSuite) testPathInfo(t *testing.T) {
	s, dir := suite.session(t)
	p := path.Join(dir, "f")
	WriteFile(t, s, p, []byte("12345"))

	fi, err := s.GetPathInfo(ctx(), p)
	require.NoError(t, err)
	assert.Equal(t, backend.KindFile, fi.Kind)
	assert.Equal(t, "f", fi.Name)
	assert.Equal(t, int64(5), fi.Size)
	assert.False(t, fi.ModTime.IsZero())

	di, err := s.GetPathInfo(ctx(), dir)
	require.NoError(t, err)
	assert.True(t, di.IsDir())
	assert.True(t, di.Permissions.IsDir())

	_, err = s.GetPathInfo(ctx(), path.Join(dir, "nope"))
	assert.True(t, backend.IsNotExist(err))
}

func (suite *SessionTestSuite) testListDirectory(t *testing.T) {
	s, dir := suite.session(t)
	WriteFile(t, s, path.Join(dir, "b"), []byte("bb"))
	WriteFile(t, s, path.Join(dir, "a"), []byte("a"))
	require.NoError(t, s.Mkdir(ctx(), path.Join(dir, "sub")))

	entries, err := s.ListDirectory(ctx(), dir)
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"a", "b", "sub"}, names)

	empty, err := s.ListDirectory(ctx(), path.Join(dir, "sub"))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = s.ListDirectory(ctx(), path.Join(dir, "missing"))
	assert.True(t, backend.IsNotExist(err))
}

func (suite *SessionTestSuite) testExists(t *testing.T) {
	s, dir := suite.session(t)
	WriteFile(t, s, path.Join(dir, "f"), nil)

	ok, err := s.Exists(ctx(), path.Join(dir, "f"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx(), path.Join(dir, "missing"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func (suite *SessionTestSuite) testMkdirNested(t *testing.T) {
	s, dir := suite.session(t)
	p := path.Join(dir, "a", "b", "c")

	require.NoError(t, s.Mkdir(ctx(), p))
	require.NoError(t, s.Mkdir(ctx(), p))

	fi, err := s.GetPathInfo(ctx(), p)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

func (suite *SessionTestSuite) testRename(t *testing.T) {
	s, dir := suite.session(t)
	src := path.Join(dir, "src")
	dst := path.Join(dir, "dst")
	WriteFile(t, s, src, []byte("moved"))

	require.NoError(t, s.Rename(ctx(), src, dst))

	ok, err := s.Exists(ctx(), src)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []byte("moved"), ReadFile(t, s, dst))

	assertErrno(t, s.Rename(ctx(), path.Join(dir, "missing"), path.Join(dir, "x")))
}

func (suite *SessionTestSuite) testDelete(t *testing.T) {
	s, dir := suite.session(t)
	sub := path.Join(dir, "sub")
	require.NoError(t, s.Mkdir(ctx(), sub))
	WriteFile(t, s, path.Join(sub, "f"), []byte("x"))

	assertErrno(t, s.Delete(ctx(), sub, false))

	require.NoError(t, s.Delete(ctx(), sub, true))
	ok, err := s.Exists(ctx(), sub)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, backend.IsNotExist(s.Delete(ctx(), sub, true)))
}

func (suite *SessionTestSuite) testChmod(t *testing.T) {
	s, dir := suite.session(t)
	p := path.Join(dir, "f")
	WriteFile(t, s, p, nil)

	require.NoError(t, s.Chmod(ctx(), p, 0600))

	fi, err := s.GetPathInfo(ctx(), p)
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0600), fi.Permissions.Perm())
}

func (suite *SessionTestSuite) testUtime(t *testing.T) {
	s, dir := suite.session(t)
	p := path.Join(dir, "f")
	WriteFile(t, s, p, nil)

	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	atime := time.Date(2021, 6, 7, 8, 9, 10, 0, time.UTC)
	require.NoError(t, s.Utime(ctx(), p, mtime, atime))

	fi, err := s.GetPathInfo(ctx(), p)
	require.NoError(t, err)
	assert.True(t, mtime.Equal(fi.ModTime), "mtime %v != %v", fi.ModTime, mtime)
}

func (suite *SessionTestSuite) testTruncate(t *testing.T) {
	s, dir := suite.session(t)
	p := path.Join(dir, "f")
	WriteFile(t, s, p, []byte("0123456789"))

	require.NoError(t, s.Truncate(ctx(), p, 4))
	assert.Equal(t, []byte("0123"), ReadFile(t, s, p))

	fi, err := s.GetPathInfo(ctx(), p)
	require.NoError(t, err)
	assert.Equal(t, int64(4), fi.Size)
}

func (suite *SessionTestSuite) testWorkingDirectory(t *testing.T) {
	s, dir := suite.session(t)

	require.NoError(t, s.SetWorkingDirectory(dir))
	assert.Equal(t, dir, s.GetWorkingDirectory())

	WriteFile(t, s, "relative.txt", []byte("rel"))
	assert.Equal(t, []byte("rel"), ReadFile(t, s, path.Join(dir, "relative.txt")))

	require.NoError(t, s.Mkdir(ctx(), "child"))
	require.NoError(t, s.SetWorkingDirectory("child"))
	assert.Equal(t, path.Join(dir, "child"), s.GetWorkingDirectory())
}

func (suite *SessionTestSuite) testStatFs(t *testing.T) {
	s, _ := suite.session(t)

	st, err := s.StatFs(ctx())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, st.Capacity, int64(0))
	assert.GreaterOrEqual(t, st.Used, int64(0))
	assert.GreaterOrEqual(t, st.Remaining, int64(0))
}

func (suite *SessionTestSuite) testCopy(t *testing.T) {
	src, srcDir := suite.session(t)
	dst, dstDir := suite.session(t)

	data := make([]byte, 200*1024+3)
	for i := range data {
		data[i] = byte(i * 7)
	}
	WriteFile(t, src, path.Join(srcDir, "big"), data)

	err := backend.Copy(ctx(), src, path.Join(srcDir, "big"), dst, path.Join(dstDir, "copy"), backend.CopyOptions{BufferSize: 4096})
	require.NoError(t, err)
	assert.Equal(t, data, ReadFile(t, dst, path.Join(dstDir, "copy")))

	err = backend.Copy(ctx(), src, srcDir, dst, path.Join(dstDir, "dir"), backend.CopyOptions{})
	assertErrno(t, err)
	ok, err := dst.Exists(ctx(), path.Join(dstDir, "dir"))
	require.NoError(t, err)
	assert.False(t, ok)
}
