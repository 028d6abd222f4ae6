// Package testing provides a conformance suite for metadata.Store
// implementations.
package testing

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/godfs/pkg/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite tests the metadata.Store contract, not implementation
// details, so it runs unchanged against every store.
//
// Usage:
//
//	func TestMyStore(t *testing.T) {
//	    suite := &metadatatesting.StoreTestSuite{
//	        NewStore: func() metadata.Store { return mystore.New() },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test.
	NewStore func() metadata.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("Root", suite.testRoot)
	t.Run("CreateAndGet", suite.testCreateAndGet)
	t.Run("CreateRequiresParent", suite.testCreateRequiresParent)
	t.Run("CreateOverwrite", suite.testCreateOverwrite)
	t.Run("CreateOverDirectory", suite.testCreateOverDirectory)
	t.Run("Update", suite.testUpdate)
	t.Run("MkdirAll", suite.testMkdirAll)
	t.Run("MkdirAllThroughFile", suite.testMkdirAllThroughFile)
	t.Run("ListSorted", suite.testListSorted)
	t.Run("ListEmpty", suite.testListEmpty)
	t.Run("ListFile", suite.testListFile)
	t.Run("RenameFile", suite.testRenameFile)
	t.Run("RenameDirectory", suite.testRenameDirectory)
	t.Run("RenameErrors", suite.testRenameErrors)
	t.Run("RemoveFile", suite.testRemoveFile)
	t.Run("RemoveNonEmpty", suite.testRemoveNonEmpty)
	t.Run("RemoveRecursive", suite.testRemoveRecursive)
	t.Run("RelativePath", suite.testRelativePath)
	t.Run("Usage", suite.testUsage)
	t.Run("ContentIDs", suite.testContentIDs)
}

func (suite *StoreTestSuite) newStore(t *testing.T) metadata.Store {
	t.Helper()
	store := suite.NewStore()
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func ctx() context.Context {
	return context.Background()
}

func fileEntry(p string, size int64, id metadata.ContentID) *metadata.Entry {
	now := time.Unix(1700000000, 0)
	return &metadata.Entry{
		Path:        p,
		Kind:        metadata.KindFile,
		Size:        size,
		Mode:        0644,
		Owner:       "alice",
		Group:       "staff",
		ModTime:     now,
		AccessTime:  now,
		Replication: 3,
		BlockSize:   128 << 20,
		ContentID:   id,
	}
}

func mustMkdirAll(t *testing.T, store metadata.Store, p string) {
	t.Helper()
	require.NoError(t, store.MkdirAll(ctx(), p, metadata.Entry{Owner: "alice", Group: "staff"}))
}

func mustCreate(t *testing.T, store metadata.Store, e *metadata.Entry) {
	t.Helper()
	_, err := store.Create(ctx(), e, false)
	require.NoError(t, err)
}

func assertCode(t *testing.T, err error, code metadata.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, metadata.IsCode(err, code), "expected code %d, got %v", code, err)
}

func (suite *StoreTestSuite) testRoot(t *testing.T) {
	store := suite.newStore(t)

	root, err := store.Get(ctx(), "/")
	require.NoError(t, err)
	assert.True(t, root.IsDir())
	assert.Equal(t, "/", root.Path)
}

func (suite *StoreTestSuite) testCreateAndGet(t *testing.T) {
	store := suite.newStore(t)
	want := fileEntry("/hello.txt", 42, "c-1")

	prev, err := store.Create(ctx(), want, false)
	require.NoError(t, err)
	assert.Nil(t, prev)

	got, err := store.Get(ctx(), "/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, want.Path, got.Path)
	assert.Equal(t, metadata.KindFile, got.Kind)
	assert.Equal(t, int64(42), got.Size)
	assert.Equal(t, uint32(0644), got.Mode)
	assert.Equal(t, "alice", got.Owner)
	assert.Equal(t, "staff", got.Group)
	assert.True(t, want.ModTime.Equal(got.ModTime))
	assert.True(t, want.AccessTime.Equal(got.AccessTime))
	assert.Equal(t, int16(3), got.Replication)
	assert.Equal(t, int64(128<<20), got.BlockSize)
	assert.Equal(t, metadata.ContentID("c-1"), got.ContentID)

	_, err = store.Get(ctx(), "/missing")
	assertCode(t, err, metadata.ErrNotFound)
}

func (suite *StoreTestSuite) testCreateRequiresParent(t *testing.T) {
	store := suite.newStore(t)

	_, err := store.Create(ctx(), fileEntry("/no/such/dir/f", 0, ""), false)
	assertCode(t, err, metadata.ErrNotFound)

	mustCreate(t, store, fileEntry("/plain", 0, ""))
	_, err = store.Create(ctx(), fileEntry("/plain/child", 0, ""), false)
	assertCode(t, err, metadata.ErrNotDirectory)
}

func (suite *StoreTestSuite) testCreateOverwrite(t *testing.T) {
	store := suite.newStore(t)
	mustCreate(t, store, fileEntry("/f", 10, "old"))

	_, err := store.Create(ctx(), fileEntry("/f", 20, "new"), false)
	assertCode(t, err, metadata.ErrAlreadyExists)

	prev, err := store.Create(ctx(), fileEntry("/f", 20, "new"), true)
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, metadata.ContentID("old"), prev.ContentID)

	got, err := store.Get(ctx(), "/f")
	require.NoError(t, err)
	assert.Equal(t, metadata.ContentID("new"), got.ContentID)
	assert.Equal(t, int64(20), got.Size)
}

func (suite *StoreTestSuite) testCreateOverDirectory(t *testing.T) {
	store := suite.newStore(t)
	mustMkdirAll(t, store, "/d")

	_, err := store.Create(ctx(), fileEntry("/d", 0, ""), true)
	assertCode(t, err, metadata.ErrIsDirectory)
}

func (suite *StoreTestSuite) testUpdate(t *testing.T) {
	store := suite.newStore(t)
	mustCreate(t, store, fileEntry("/f", 1, "c"))

	updated := fileEntry("/f", 99, "c")
	updated.Mode = 0600
	require.NoError(t, store.Update(ctx(), updated))

	got, err := store.Get(ctx(), "/f")
	require.NoError(t, err)
	assert.Equal(t, int64(99), got.Size)
	assert.Equal(t, uint32(0600), got.Mode)

	assertCode(t, store.Update(ctx(), fileEntry("/missing", 0, "")), metadata.ErrNotFound)

	asDir := fileEntry("/f", 0, "")
	asDir.Kind = metadata.KindDirectory
	assertCode(t, store.Update(ctx(), asDir), metadata.ErrInvalidArgument)
}

func (suite *StoreTestSuite) testMkdirAll(t *testing.T) {
	store := suite.newStore(t)
	mustMkdirAll(t, store, "/a/b/c")

	for _, p := range []string{"/a", "/a/b", "/a/b/c"} {
		e, err := store.Get(ctx(), p)
		require.NoError(t, err, p)
		assert.True(t, e.IsDir(), p)
		assert.Equal(t, "alice", e.Owner)
	}

	// Idempotent
	mustMkdirAll(t, store, "/a/b/c")
	mustMkdirAll(t, store, "/a/b/c/")
}

func (suite *StoreTestSuite) testMkdirAllThroughFile(t *testing.T) {
	store := suite.newStore(t)
	mustCreate(t, store, fileEntry("/f", 0, ""))

	err := store.MkdirAll(ctx(), "/f/sub", metadata.Entry{})
	assertCode(t, err, metadata.ErrNotDirectory)

	_, err = store.Get(ctx(), "/f/sub")
	assertCode(t, err, metadata.ErrNotFound)
}

func (suite *StoreTestSuite) testListSorted(t *testing.T) {
	store := suite.newStore(t)
	mustMkdirAll(t, store, "/dir/sub")
	mustCreate(t, store, fileEntry("/dir/zeta", 1, "z"))
	mustCreate(t, store, fileEntry("/dir/alpha", 2, "a"))
	mustCreate(t, store, fileEntry("/dir/sub/deep", 3, "d"))

	entries, err := store.List(ctx(), "/dir")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	names := []string{entries[0].Path, entries[1].Path, entries[2].Path}
	assert.Equal(t, []string{"/dir/alpha", "/dir/sub", "/dir/zeta"}, names)
	assert.True(t, entries[1].IsDir())
}

func (suite *StoreTestSuite) testListEmpty(t *testing.T) {
	store := suite.newStore(t)
	mustMkdirAll(t, store, "/empty")

	entries, err := store.List(ctx(), "/empty")
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func (suite *StoreTestSuite) testListFile(t *testing.T) {
	store := suite.newStore(t)
	mustCreate(t, store, fileEntry("/f", 0, ""))

	_, err := store.List(ctx(), "/f")
	assertCode(t, err, metadata.ErrNotDirectory)

	_, err = store.List(ctx(), "/missing")
	assertCode(t, err, metadata.ErrNotFound)
}

func (suite *StoreTestSuite) testRenameFile(t *testing.T) {
	store := suite.newStore(t)
	mustMkdirAll(t, store, "/src")
	mustMkdirAll(t, store, "/dst")
	mustCreate(t, store, fileEntry("/src/f", 5, "c"))

	require.NoError(t, store.Rename(ctx(), "/src/f", "/dst/g"))

	_, err := store.Get(ctx(), "/src/f")
	assertCode(t, err, metadata.ErrNotFound)

	got, err := store.Get(ctx(), "/dst/g")
	require.NoError(t, err)
	assert.Equal(t, metadata.ContentID("c"), got.ContentID)

	srcEntries, err := store.List(ctx(), "/src")
	require.NoError(t, err)
	assert.Empty(t, srcEntries)
}

func (suite *StoreTestSuite) testRenameDirectory(t *testing.T) {
	store := suite.newStore(t)
	mustMkdirAll(t, store, "/a/b")
	mustCreate(t, store, fileEntry("/a/b/f", 1, "c"))

	require.NoError(t, store.Rename(ctx(), "/a", "/z"))

	got, err := store.Get(ctx(), "/z/b/f")
	require.NoError(t, err)
	assert.Equal(t, "/z/b/f", got.Path)

	entries, err := store.List(ctx(), "/z/b")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "/z/b/f", entries[0].Path)

	_, err = store.Get(ctx(), "/a/b")
	assertCode(t, err, metadata.ErrNotFound)
}

func (suite *StoreTestSuite) testRenameErrors(t *testing.T) {
	store := suite.newStore(t)
	mustMkdirAll(t, store, "/a/b")
	mustCreate(t, store, fileEntry("/f", 0, ""))
	mustCreate(t, store, fileEntry("/g", 0, ""))

	assertCode(t, store.Rename(ctx(), "/missing", "/x"), metadata.ErrNotFound)
	assertCode(t, store.Rename(ctx(), "/f", "/g"), metadata.ErrAlreadyExists)
	assertCode(t, store.Rename(ctx(), "/a", "/a/b/c"), metadata.ErrInvalidArgument)
	assertCode(t, store.Rename(ctx(), "/f", "/nope/f"), metadata.ErrNotFound)
	assertCode(t, store.Rename(ctx(), "/", "/root"), metadata.ErrInvalidArgument)

	// Renaming onto itself is a no-op
	require.NoError(t, store.Rename(ctx(), "/f", "/f"))
}

func (suite *StoreTestSuite) testRemoveFile(t *testing.T) {
	store := suite.newStore(t)
	mustCreate(t, store, fileEntry("/f", 3, "c-f"))

	freed, err := store.Remove(ctx(), "/f", false)
	require.NoError(t, err)
	assert.Equal(t, []metadata.ContentID{"c-f"}, freed)

	_, err = store.Get(ctx(), "/f")
	assertCode(t, err, metadata.ErrNotFound)

	_, err = store.Remove(ctx(), "/f", false)
	assertCode(t, err, metadata.ErrNotFound)
}

func (suite *StoreTestSuite) testRemoveNonEmpty(t *testing.T) {
	store := suite.newStore(t)
	mustMkdirAll(t, store, "/d")
	mustCreate(t, store, fileEntry("/d/f", 0, ""))

	_, err := store.Remove(ctx(), "/d", false)
	assertCode(t, err, metadata.ErrNotEmpty)

	_, err = store.Remove(ctx(), "/", true)
	assertCode(t, err, metadata.ErrInvalidArgument)
}

func (suite *StoreTestSuite) testRemoveRecursive(t *testing.T) {
	store := suite.newStore(t)
	mustMkdirAll(t, store, "/a/b/c")
	mustCreate(t, store, fileEntry("/a/one", 1, "c1"))
	mustCreate(t, store, fileEntry("/a/b/c/two", 2, "c2"))
	mustCreate(t, store, fileEntry("/a/b/empty", 0, ""))

	freed, err := store.Remove(ctx(), "/a", true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []metadata.ContentID{"c1", "c2"}, freed)

	for _, p := range []string{"/a", "/a/b", "/a/b/c", "/a/b/c/two"} {
		_, err := store.Get(ctx(), p)
		assertCode(t, err, metadata.ErrNotFound)
	}

	root, err := store.List(ctx(), "/")
	require.NoError(t, err)
	assert.Empty(t, root)
}

func (suite *StoreTestSuite) testRelativePath(t *testing.T) {
	store := suite.newStore(t)

	_, err := store.Get(ctx(), "relative")
	assertCode(t, err, metadata.ErrInvalidArgument)
}

func (suite *StoreTestSuite) testUsage(t *testing.T) {
	store := suite.newStore(t)
	mustMkdirAll(t, store, "/d")
	mustCreate(t, store, fileEntry("/d/a", 10, "a"))
	mustCreate(t, store, fileEntry("/d/b", 5, "b"))

	u, err := store.Usage(ctx())
	require.NoError(t, err)
	assert.Equal(t, int64(2), u.Files)
	assert.Equal(t, int64(2), u.Directories) // root and /d
	assert.Equal(t, int64(15), u.Bytes)
}

func (suite *StoreTestSuite) testContentIDs(t *testing.T) {
	store := suite.newStore(t)
	mustMkdirAll(t, store, "/d/e")
	mustCreate(t, store, fileEntry("/d/a", 1, "id-a"))
	mustCreate(t, store, fileEntry("/d/e/b", 1, "id-b"))
	mustCreate(t, store, fileEntry("/d/empty", 0, ""))

	ids, err := store.ContentIDs(ctx())
	require.NoError(t, err)
	assert.ElementsMatch(t, []metadata.ContentID{"id-a", "id-b"}, ids)

	_, err = store.Remove(ctx(), "/d/a", false)
	require.NoError(t, err)
	ids, err = store.ContentIDs(ctx())
	require.NoError(t, err)
	assert.ElementsMatch(t, []metadata.ContentID{"id-b"}, ids)
}
