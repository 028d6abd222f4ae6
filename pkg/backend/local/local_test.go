package local

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"testing"

	"github.com/marmos91/godfs/pkg/backend"
	"github.com/marmos91/godfs/pkg/backend/backendtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T, root string) backend.Session {
	t.Helper()
	b, err := New(Config{Root: root})
	require.NoError(t, err)

	s, err := b.Connect(context.Background(), backend.ConnectParams{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Disconnect(context.Background()) })
	return s
}

func TestLocalBackend_Rooted(t *testing.T) {
	suite := &backendtest.SessionTestSuite{
		NewSession: func(t *testing.T) (backend.Session, string) {
			return newSession(t, t.TempDir()), "/scratch"
		},
	}
	suite.Run(t)
}

func TestLocalBackend_Unrooted(t *testing.T) {
	suite := &backendtest.SessionTestSuite{
		NewSession: func(t *testing.T) (backend.Session, string) {
			return newSession(t, ""), filepath.ToSlash(t.TempDir())
		},
	}
	suite.Run(t)
}

func TestConnect_MissingRoot(t *testing.T) {
	b, err := New(Config{Root: filepath.Join(t.TempDir(), "missing")})
	require.NoError(t, err)

	_, err = b.Connect(context.Background(), backend.ConnectParams{})
	assert.True(t, backend.IsNotExist(err))
}

func TestConnect_WorkingDirectory(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	assert.Equal(t, filepath.ToSlash(wd), newSession(t, "").GetWorkingDirectory())
	assert.Equal(t, "/", newSession(t, t.TempDir()).GetWorkingDirectory())
}

func TestRootedPathsStayBelowRoot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := newSession(t, root)

	backendtest.WriteFile(t, s, "/../../escape.txt", []byte("x"))

	_, err := os.Stat(filepath.Join(root, "escape.txt"))
	require.NoError(t, err)

	fi, err := s.GetPathInfo(ctx, "/escape.txt")
	require.NoError(t, err)
	assert.Equal(t, "/escape.txt", fi.Path)
}

func TestWriteFileAtomic(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := newSession(t, root)
	aw, ok := s.(backend.AtomicWriter)
	require.True(t, ok)

	require.NoError(t, aw.WriteFileAtomic(ctx, "/nested/dir/f", strings.NewReader("atomic")))

	data, err := os.ReadFile(filepath.Join(root, "nested", "dir", "f"))
	require.NoError(t, err)
	assert.Equal(t, "atomic", string(data))

	info, err := os.Stat(filepath.Join(root, "nested", "dir", "f"))
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(filePerm), info.Mode().Perm())
}

type failingReader struct {
	n int
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.n > 0 {
		n := min(r.n, len(p))
		r.n -= n
		return n, nil
	}
	return 0, errors.New("source went away")
}

func TestWriteFileAtomic_FailureLeavesNothing(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := newSession(t, root)

	err := s.(backend.AtomicWriter).WriteFileAtomic(ctx, "/f", &failingReader{n: 1024})
	require.Error(t, err)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "no destination or temp file may remain")
}

func TestWriteFileAtomic_KeepsExistingMode(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := newSession(t, root)
	require.NoError(t, os.WriteFile(filepath.Join(root, "f"), []byte("old"), 0600))

	require.NoError(t, s.(backend.AtomicWriter).WriteFileAtomic(ctx, "/f", strings.NewReader("new")))

	info, err := os.Stat(filepath.Join(root, "f"))
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0600), info.Mode().Perm())
}

func TestPathInfo_LocalAttributes(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, t.TempDir())
	backendtest.WriteFile(t, s, "/f", []byte("abc"))

	fi, err := s.GetPathInfo(ctx, "/f")
	require.NoError(t, err)
	assert.Equal(t, int16(1), fi.Replication)
	assert.False(t, fi.AccessTime.IsZero())

	if runtime.GOOS == "linux" {
		if u, err := user.LookupId(strconv.Itoa(os.Getuid())); err == nil {
			assert.Equal(t, u.Username, fi.Owner)
		}
	}
}

func TestChown_Unchanged(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, t.TempDir())
	backendtest.WriteFile(t, s, "/f", nil)

	require.NoError(t, s.Chown(ctx, "/f", "", ""))
	assert.Equal(t, syscall.EINVAL, backend.Errno(s.Chown(ctx, "/f", "no-such-user-godfs", "")))
}

func TestSetReplication(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, t.TempDir())
	backendtest.WriteFile(t, s, "/f", nil)

	require.NoError(t, s.SetReplication(ctx, "/f", 3))
	assert.Equal(t, syscall.EINVAL, backend.Errno(s.SetReplication(ctx, "/f", 0)))
	assert.True(t, backend.IsNotExist(s.SetReplication(ctx, "/missing", 1)))
}

func TestTruncate_Grows(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, t.TempDir())
	backendtest.WriteFile(t, s, "/f", []byte("ab"))

	require.NoError(t, s.Truncate(ctx, "/f", 4))
	assert.Equal(t, []byte("ab\x00\x00"), backendtest.ReadFile(t, s, "/f"))
}

func TestDelete_Root(t *testing.T) {
	s := newSession(t, t.TempDir())
	assert.Equal(t, syscall.EPERM, backend.Errno(s.Delete(context.Background(), "/", true)))
}

func TestClose_FlushesBufferedWrites(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := newSession(t, root)

	f, err := s.OpenFile(ctx, "/f", backend.OpenFlags{Write: true, BufferSize: 1024})
	require.NoError(t, err)
	_, err = f.Write(ctx, []byte("buffered"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "f"))
	require.NoError(t, err)
	assert.Empty(t, data)

	require.NoError(t, f.Flush(ctx))
	data, err = os.ReadFile(filepath.Join(root, "f"))
	require.NoError(t, err)
	assert.Equal(t, "buffered", string(data))

	require.NoError(t, f.Close(ctx))
	_, err = f.Write(ctx, []byte("x"))
	assert.Equal(t, syscall.EBADF, backend.Errno(err))
}

func TestRead_EOF(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, t.TempDir())
	backendtest.WriteFile(t, s, "/f", []byte("ab"))

	f, err := s.OpenFile(ctx, "/f", backend.OpenFlags{})
	require.NoError(t, err)
	defer f.Close(ctx)

	buf := make([]byte, 8)
	n, err := f.Read(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.Read(ctx, buf)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
}
