package cluster

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/marmos91/godfs/pkg/backend"
	"github.com/marmos91/godfs/pkg/backend/backendtest"
	"github.com/marmos91/godfs/pkg/content"
	contentfs "github.com/marmos91/godfs/pkg/content/fs"
	contentmemory "github.com/marmos91/godfs/pkg/content/memory"
	"github.com/marmos91/godfs/pkg/gc"
	"github.com/marmos91/godfs/pkg/metadata"
	metadatabadger "github.com/marmos91/godfs/pkg/metadata/badger"
	metadatamemory "github.com/marmos91/godfs/pkg/metadata/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryBackend(t *testing.T, cfg Config) (*Backend, *contentmemory.MemoryContentStore) {
	t.Helper()
	data, err := contentmemory.NewMemoryContentStore(context.Background(), contentmemory.MemoryContentStoreConfig{})
	require.NoError(t, err)

	b := New(cfg, metadatamemory.NewMemoryMetadataStore(metadatamemory.MemoryMetadataStoreConfig{}), data)
	t.Cleanup(func() { _ = b.Close() })
	return b, data
}

func connect(t *testing.T, b backend.Backend, user string) backend.Session {
	t.Helper()
	s, err := b.Connect(context.Background(), backend.ConnectParams{Host: "namenode", Port: 8020, User: user})
	require.NoError(t, err)
	return s
}

func contentCount(t *testing.T, data content.Store) int64 {
	t.Helper()
	stats, err := data.Stats(context.Background())
	require.NoError(t, err)
	return stats.ContentCount
}

func TestClusterBackend_Memory(t *testing.T) {
	suite := &backendtest.SessionTestSuite{
		NewSession: func(t *testing.T) (backend.Session, string) {
			b, _ := newMemoryBackend(t, Config{})
			return connect(t, b, "alice"), "/scratch"
		},
	}
	suite.Run(t)
}

func TestClusterBackend_Persistent(t *testing.T) {
	suite := &backendtest.SessionTestSuite{
		NewSession: func(t *testing.T) (backend.Session, string) {
			ctx := context.Background()

			meta, err := metadatabadger.NewBadgerMetadataStore(ctx, metadatabadger.BadgerMetadataStoreConfig{DBPath: t.TempDir()})
			require.NoError(t, err)
			data, err := contentfs.NewFSContentStore(ctx, contentfs.FSContentStoreConfig{Path: t.TempDir()})
			require.NoError(t, err)

			b := New(Config{}, meta, data)
			t.Cleanup(func() { _ = b.Close() })
			return connect(t, b, "alice"), "/scratch"
		},
	}
	suite.Run(t)
}

func TestConnect_Address(t *testing.T) {
	ctx := context.Background()
	b, _ := newMemoryBackend(t, Config{Address: "namenode:8020"})

	_, err := b.Connect(ctx, backend.ConnectParams{Host: "other", Port: 8020})
	assert.Equal(t, syscall.ECONNREFUSED, backend.Errno(err))

	_, err = b.Connect(ctx, backend.ConnectParams{Host: "namenode", Port: 9000})
	assert.Equal(t, syscall.ECONNREFUSED, backend.Errno(err))

	s, err := b.Connect(ctx, backend.ConnectParams{Host: "namenode"})
	require.NoError(t, err)
	require.NoError(t, s.Disconnect(ctx))
}

func TestConnect_MaxSessions(t *testing.T) {
	ctx := context.Background()
	b, _ := newMemoryBackend(t, Config{MaxSessions: 1})

	first := connect(t, b, "alice")
	assert.Equal(t, 1, b.Sessions())

	_, err := b.Connect(ctx, backend.ConnectParams{Host: "namenode"})
	assert.Equal(t, syscall.ECONNREFUSED, backend.Errno(err))

	require.NoError(t, first.Disconnect(ctx))
	assert.Equal(t, 0, b.Sessions())

	second := connect(t, b, "bob")
	require.NoError(t, second.Disconnect(ctx))
}

func TestConnect_CanceledContext(t *testing.T) {
	b, _ := newMemoryBackend(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Connect(ctx, backend.ConnectParams{Host: "namenode"})
	assert.Equal(t, syscall.ECANCELED, backend.Errno(err))
	assert.Equal(t, 0, b.Sessions())
}

func TestSession_HomeDirectory(t *testing.T) {
	b, _ := newMemoryBackend(t, Config{})
	s := connect(t, b, "alice")
	assert.Equal(t, "/user/alice", s.GetWorkingDirectory())
}

func TestSession_Disconnect(t *testing.T) {
	ctx := context.Background()
	b, _ := newMemoryBackend(t, Config{})
	s := connect(t, b, "alice")

	require.NoError(t, s.Mkdir(ctx, "/d"))
	f, err := s.OpenFile(ctx, "/d/f", backend.OpenFlags{Write: true})
	require.NoError(t, err)

	require.NoError(t, s.Disconnect(ctx))
	assert.Equal(t, syscall.ENOTCONN, backend.Errno(s.Disconnect(ctx)))

	_, err = s.GetPathInfo(ctx, "/d")
	assert.Equal(t, syscall.ENOTCONN, backend.Errno(err))
	assert.Equal(t, syscall.ENOTCONN, backend.Errno(s.SetWorkingDirectory("/")))

	// Files opened before the disconnect can still be closed.
	_, err = f.Write(ctx, []byte("late"))
	require.NoError(t, err)
	require.NoError(t, f.Close(ctx))
}

func TestCreate_DefaultsAndFlags(t *testing.T) {
	ctx := context.Background()
	b, _ := newMemoryBackend(t, Config{DefaultReplication: 2})
	s := connect(t, b, "alice")

	f, err := s.OpenFile(ctx, "/a/b/defaults", backend.OpenFlags{Write: true})
	require.NoError(t, err)
	require.NoError(t, f.Close(ctx))

	fi, err := s.GetPathInfo(ctx, "/a/b/defaults")
	require.NoError(t, err)
	assert.Equal(t, int16(2), fi.Replication)
	assert.Equal(t, DefaultBlockSize, fi.BlockSize)
	assert.Equal(t, "alice", fi.Owner)
	assert.Equal(t, DefaultGroup, fi.Group)

	parent, err := s.GetPathInfo(ctx, "/a/b")
	require.NoError(t, err)
	assert.True(t, parent.IsDir())

	f, err = s.OpenFile(ctx, "/explicit", backend.OpenFlags{Write: true, Replication: 5, BlockSize: 1 << 20})
	require.NoError(t, err)
	require.NoError(t, f.Close(ctx))

	fi, err = s.GetPathInfo(ctx, "/explicit")
	require.NoError(t, err)
	assert.Equal(t, int16(5), fi.Replication)
	assert.Equal(t, int64(1<<20), fi.BlockSize)

	_, err = s.OpenFile(ctx, "/bad", backend.OpenFlags{Write: true, Replication: -1})
	assert.Equal(t, syscall.EINVAL, backend.Errno(err))

	_, err = s.OpenFile(ctx, "/", backend.OpenFlags{Write: true})
	assert.Equal(t, syscall.EISDIR, backend.Errno(err))
}

func TestWrite_SpillsWhenBufferFills(t *testing.T) {
	ctx := context.Background()
	b, data := newMemoryBackend(t, Config{})
	s := connect(t, b, "alice")

	f, err := s.OpenFile(ctx, "/f", backend.OpenFlags{Write: true, BufferSize: 4})
	require.NoError(t, err)

	n, err := f.Write(ctx, []byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	pos, err := f.Tell(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), pos)

	id := f.(*file).id
	size, err := data.Size(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(8), size, "two full buffers should have been spilled")

	fi, err := s.GetPathInfo(ctx, "/f")
	require.NoError(t, err)
	assert.Equal(t, int64(0), fi.Size, "size is published on flush")

	require.NoError(t, f.Flush(ctx))
	fi, err = s.GetPathInfo(ctx, "/f")
	require.NoError(t, err)
	assert.Equal(t, int64(10), fi.Size)

	require.NoError(t, f.Close(ctx))
	assert.Equal(t, []byte("0123456789"), backendtest.ReadFile(t, s, "/f"))
}

func TestContent_FreedOnOverwriteAndDelete(t *testing.T) {
	ctx := context.Background()
	b, data := newMemoryBackend(t, Config{})
	s := connect(t, b, "alice")

	backendtest.WriteFile(t, s, "/dir/a", []byte("first"))
	backendtest.WriteFile(t, s, "/dir/b", []byte("other"))
	assert.Equal(t, int64(2), contentCount(t, data))

	backendtest.WriteFile(t, s, "/dir/a", []byte("second"))
	assert.Equal(t, int64(2), contentCount(t, data))

	require.NoError(t, s.Delete(ctx, "/dir", true))
	assert.Equal(t, int64(0), contentCount(t, data))
}

func TestCollectGarbage(t *testing.T) {
	ctx := context.Background()
	b, data := newMemoryBackend(t, Config{})
	s := connect(t, b, "alice")

	backendtest.WriteFile(t, s, "/kept", []byte("kept"))
	require.NoError(t, data.WriteAt(ctx, "orphan", []byte("lost"), 0))
	require.Equal(t, int64(2), contentCount(t, data))

	stats, err := b.CollectGarbage(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.OrphanedCount)
	assert.Zero(t, stats.DeletedCount)
	assert.Equal(t, int64(2), contentCount(t, data), "dry run deletes nothing")

	stats, err = b.CollectGarbage(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.ReferencedCount)
	assert.Equal(t, uint64(1), stats.DeletedCount)
	assert.Equal(t, int64(1), contentCount(t, data))
	assert.Equal(t, []byte("kept"), backendtest.ReadFile(t, s, "/kept"))
}

func TestCollectGarbage_Background(t *testing.T) {
	ctx := context.Background()
	b, data := newMemoryBackend(t, Config{GC: gc.Config{Interval: 10 * time.Millisecond}})
	require.NotNil(t, b.collector)

	require.NoError(t, data.WriteAt(ctx, "orphan", []byte("lost"), 0))
	assert.Eventually(t, func() bool {
		ok, err := data.Exists(ctx, "orphan")
		return err == nil && !ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, b.Close())
}

func TestClose_StaleAfterRemove(t *testing.T) {
	ctx := context.Background()
	b, data := newMemoryBackend(t, Config{})
	s := connect(t, b, "alice")

	f, err := s.OpenFile(ctx, "/f", backend.OpenFlags{Write: true})
	require.NoError(t, err)
	_, err = f.Write(ctx, []byte("orphan"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "/f", false))

	err = f.Close(ctx)
	assert.Equal(t, syscall.ESTALE, backend.Errno(err))
	assert.Equal(t, int64(0), contentCount(t, data))
	assert.Equal(t, syscall.EBADF, backend.Errno(f.Close(ctx)))
}

func TestClose_StaleAfterReplace(t *testing.T) {
	ctx := context.Background()
	b, _ := newMemoryBackend(t, Config{})
	s := connect(t, b, "alice")

	first, err := s.OpenFile(ctx, "/f", backend.OpenFlags{Write: true})
	require.NoError(t, err)
	backendtest.WriteFile(t, s, "/f", []byte("winner"))

	_, err = first.Write(ctx, []byte("loser"))
	require.NoError(t, err)
	assert.Equal(t, syscall.ESTALE, backend.Errno(first.Close(ctx)))

	assert.Equal(t, []byte("winner"), backendtest.ReadFile(t, s, "/f"))
}

func TestSetReplication(t *testing.T) {
	ctx := context.Background()
	b, _ := newMemoryBackend(t, Config{})
	s := connect(t, b, "alice")
	backendtest.WriteFile(t, s, "/d/f", nil)

	require.NoError(t, s.SetReplication(ctx, "/d/f", 1))
	fi, err := s.GetPathInfo(ctx, "/d/f")
	require.NoError(t, err)
	assert.Equal(t, int16(1), fi.Replication)

	assert.Equal(t, syscall.EINVAL, backend.Errno(s.SetReplication(ctx, "/d/f", 0)))
	assert.Equal(t, syscall.EISDIR, backend.Errno(s.SetReplication(ctx, "/d", 2)))
	assert.Equal(t, syscall.ENOENT, backend.Errno(s.SetReplication(ctx, "/missing", 2)))
}

func TestChown(t *testing.T) {
	ctx := context.Background()
	b, _ := newMemoryBackend(t, Config{})
	s := connect(t, b, "alice")
	backendtest.WriteFile(t, s, "/f", nil)

	require.NoError(t, s.Chown(ctx, "/f", "bob", ""))
	fi, err := s.GetPathInfo(ctx, "/f")
	require.NoError(t, err)
	assert.Equal(t, "bob", fi.Owner)
	assert.Equal(t, DefaultGroup, fi.Group)

	require.NoError(t, s.Chown(ctx, "/f", "", "staff"))
	fi, err = s.GetPathInfo(ctx, "/f")
	require.NoError(t, err)
	assert.Equal(t, "bob", fi.Owner)
	assert.Equal(t, "staff", fi.Group)
}

func TestTruncate_CannotGrow(t *testing.T) {
	ctx := context.Background()
	b, _ := newMemoryBackend(t, Config{})
	s := connect(t, b, "alice")
	backendtest.WriteFile(t, s, "/f", []byte("abc"))

	assert.Equal(t, syscall.EINVAL, backend.Errno(s.Truncate(ctx, "/f", 10)))
	require.NoError(t, s.Mkdir(ctx, "/d"))
	assert.Equal(t, syscall.EISDIR, backend.Errno(s.Truncate(ctx, "/d", 0)))
}

func TestRename_DestinationExists(t *testing.T) {
	ctx := context.Background()
	b, _ := newMemoryBackend(t, Config{})
	s := connect(t, b, "alice")
	backendtest.WriteFile(t, s, "/a", []byte("a"))
	backendtest.WriteFile(t, s, "/b", []byte("b"))

	assert.Equal(t, syscall.EEXIST, backend.Errno(s.Rename(ctx, "/a", "/b")))
}

func TestStatFs_TracksUsage(t *testing.T) {
	ctx := context.Background()
	data, err := contentmemory.NewMemoryContentStore(ctx, contentmemory.MemoryContentStoreConfig{MaxBytes: 100})
	require.NoError(t, err)
	b := New(Config{}, metadatamemory.NewMemoryMetadataStore(metadatamemory.MemoryMetadataStoreConfig{}), data)
	t.Cleanup(func() { _ = b.Close() })
	s := connect(t, b, "alice")

	backendtest.WriteFile(t, s, "/f", make([]byte, 30))

	st, err := s.StatFs(ctx)
	require.NoError(t, err)
	assert.Equal(t, backend.FsStats{Capacity: 100, Used: 30, Remaining: 70}, st)
}

func TestRename_WhileOpenForWriting(t *testing.T) {
	ctx := context.Background()
	b, data := newMemoryBackend(t, Config{})
	s := connect(t, b, "alice")

	f, err := s.OpenFile(ctx, "/a", backend.OpenFlags{Write: true})
	require.NoError(t, err)
	_, err = f.Write(ctx, []byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Flush(ctx))

	require.NoError(t, s.Rename(ctx, "/a", "/b"))
	_, err = f.Write(ctx, []byte(" world"))
	require.NoError(t, err)
	require.NoError(t, f.Close(ctx))

	fi, err := s.GetPathInfo(ctx, "/b")
	require.NoError(t, err)
	assert.Equal(t, int64(11), fi.Size)
	assert.Equal(t, []byte("hello world"), backendtest.ReadFile(t, s, "/b"))
	assert.Equal(t, int64(1), contentCount(t, data))
}

func TestRename_ParentWhileOpenForWriting(t *testing.T) {
	ctx := context.Background()
	b, _ := newMemoryBackend(t, Config{})
	s := connect(t, b, "alice")

	f, err := s.OpenFile(ctx, "/d/f", backend.OpenFlags{Write: true})
	require.NoError(t, err)
	_, err = f.Write(ctx, []byte("moved"))
	require.NoError(t, err)

	require.NoError(t, s.Rename(ctx, "/d", "/e"))
	require.NoError(t, f.Close(ctx))

	assert.Equal(t, []byte("moved"), backendtest.ReadFile(t, s, "/e/f"))
}

func TestRead_SurvivesOverwrite(t *testing.T) {
	ctx := context.Background()
	b, data := newMemoryBackend(t, Config{})
	s := connect(t, b, "alice")

	backendtest.WriteFile(t, s, "/f", []byte("old"))
	r, err := s.OpenFile(ctx, "/f", backend.OpenFlags{})
	require.NoError(t, err)

	backendtest.WriteFile(t, s, "/f", []byte("new"))
	assert.Equal(t, int64(2), contentCount(t, data), "old content stays while a reader holds it")

	buf := make([]byte, 8)
	n, err := r.Read(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, "old", string(buf[:n]))

	require.NoError(t, r.Close(ctx))
	assert.Equal(t, int64(1), contentCount(t, data))
	assert.Equal(t, []byte("new"), backendtest.ReadFile(t, s, "/f"))
}

func TestCollectGarbage_SkipsOpenContent(t *testing.T) {
	ctx := context.Background()
	b, data := newMemoryBackend(t, Config{})
	s := connect(t, b, "alice")

	backendtest.WriteFile(t, s, "/f", []byte("held"))
	r, err := s.OpenFile(ctx, "/f", backend.OpenFlags{})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "/f", false))

	stats, err := b.CollectGarbage(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.InUseCount)
	assert.Zero(t, stats.DeletedCount)

	buf := make([]byte, 8)
	n, err := r.Read(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, "held", string(buf[:n]))

	require.NoError(t, r.Close(ctx))
	assert.Equal(t, int64(0), contentCount(t, data))
}

// createHook runs once, right after the content store first sees a new ID.
type createHook struct {
	*contentmemory.MemoryContentStore
	once func(id metadata.ContentID)
}

func (h *createHook) WriteAt(ctx context.Context, id metadata.ContentID, p []byte, off int64) error {
	err := h.MemoryContentStore.WriteAt(ctx, id, p, off)
	if hook := h.once; hook != nil && len(p) == 0 && off == 0 {
		h.once = nil
		hook(id)
	}
	return err
}

func TestCollectGarbage_DuringCreate(t *testing.T) {
	ctx := context.Background()
	mem, err := contentmemory.NewMemoryContentStore(ctx, contentmemory.MemoryContentStoreConfig{})
	require.NoError(t, err)
	data := &createHook{MemoryContentStore: mem}

	b := New(Config{}, metadatamemory.NewMemoryMetadataStore(metadatamemory.MemoryMetadataStoreConfig{}), data)
	t.Cleanup(func() { _ = b.Close() })
	s := connect(t, b, "alice")

	var collected *gc.Stats
	data.once = func(metadata.ContentID) {
		collected, err = b.CollectGarbage(ctx, false)
	}

	backendtest.WriteFile(t, s, "/empty", nil)
	require.NoError(t, err)
	require.NotNil(t, collected)
	assert.Zero(t, collected.OrphanedCount)
	assert.Zero(t, collected.DeletedCount)

	assert.Empty(t, backendtest.ReadFile(t, s, "/empty"))
	ok, err := mem.Exists(ctx, mustContentID(t, b, "/empty"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func mustContentID(t *testing.T, b *Backend, p string) metadata.ContentID {
	t.Helper()
	e, err := b.meta.Get(context.Background(), p)
	require.NoError(t, err)
	return e.ContentID
}
