package testing

import (
	"errors"
	"io"
	"testing"

	"github.com/marmos91/godfs/pkg/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunReadTests executes all read-side tests.
func (suite *StoreTestSuite) RunReadTests(t *testing.T) {
	t.Run("ReadAt_Middle", suite.testReadAtMiddle)
	t.Run("ReadAt_ShortAtEnd", suite.testReadAtShortAtEnd)
	t.Run("ReadAt_PastEnd", suite.testReadAtPastEnd)
	t.Run("ReadAt_NotFound", suite.testReadAtNotFound)
	t.Run("Size_NotFound", suite.testSizeNotFound)
	t.Run("Exists", suite.testExists)
	t.Run("Stats", suite.testStats)
	t.Run("ListContent", suite.testListContent)
}

func (suite *StoreTestSuite) testReadAtMiddle(t *testing.T) {
	store := suite.newStore(t)
	id := generateTestID("read-middle")
	mustWriteAt(t, store, id, []byte("0123456789"), 0)
	flush(t, store, id)

	buf := make([]byte, 4)
	n, err := store.ReadAt(testContext(), id, buf, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte("3456"), buf)
}

func (suite *StoreTestSuite) testReadAtShortAtEnd(t *testing.T) {
	store := suite.newStore(t)
	id := generateTestID("read-short")
	mustWriteAt(t, store, id, []byte("hello"), 0)

	buf := make([]byte, 16)
	n, err := store.ReadAt(testContext(), id, buf, 2)
	if err != nil {
		assert.True(t, errors.Is(err, io.EOF), "short read may only report io.EOF, got %v", err)
	}
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte("llo"), buf[:n])
}

func (suite *StoreTestSuite) testReadAtPastEnd(t *testing.T) {
	store := suite.newStore(t)
	id := generateTestID("read-past-end")
	mustWriteAt(t, store, id, []byte("abc"), 0)

	buf := make([]byte, 4)
	n, err := store.ReadAt(testContext(), id, buf, 3)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)

	n, err = store.ReadAt(testContext(), id, buf, 100)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}

func (suite *StoreTestSuite) testReadAtNotFound(t *testing.T) {
	store := suite.newStore(t)

	_, err := store.ReadAt(testContext(), generateTestID("missing"), make([]byte, 1), 0)
	AssertErrorIs(t, content.ErrContentNotFound, err)
}

func (suite *StoreTestSuite) testSizeNotFound(t *testing.T) {
	store := suite.newStore(t)

	_, err := store.Size(testContext(), generateTestID("missing"))
	AssertErrorIs(t, content.ErrContentNotFound, err)
}

func (suite *StoreTestSuite) testExists(t *testing.T) {
	store := suite.newStore(t)
	id := generateTestID("exists")

	assertContentExists(t, store, id, false)
	mustWriteAt(t, store, id, []byte("x"), 0)
	assertContentExists(t, store, id, true)
	flush(t, store, id)
	assertContentExists(t, store, id, true)
}

func (suite *StoreTestSuite) testStats(t *testing.T) {
	store := suite.newStore(t)
	mustWriteAt(t, store, generateTestID("stats-a"), generateTestData(100), 0)
	mustWriteAt(t, store, generateTestID("stats-b"), generateTestData(50), 0)
	flush(t, store, generateTestID("stats-a"))
	flush(t, store, generateTestID("stats-b"))

	stats, err := store.Stats(testContext())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.UsedSize, int64(150))
	assert.GreaterOrEqual(t, stats.ContentCount, int64(2))
	assert.GreaterOrEqual(t, stats.TotalSize, stats.UsedSize)
	assert.GreaterOrEqual(t, stats.AvailableSize, int64(0))
}

func (suite *StoreTestSuite) testListContent(t *testing.T) {
	store := suite.newStore(t)
	lister, ok := store.(content.Lister)
	if !ok {
		t.Skip("store does not implement content.Lister")
	}

	a, b := generateTestID("list-a"), generateTestID("list-b")
	mustWriteAt(t, store, a, []byte("a"), 0)
	mustWriteAt(t, store, b, []byte("b"), 0)
	flush(t, store, a)
	flush(t, store, b)

	ids, err := lister.ListContent(testContext())
	require.NoError(t, err)
	assert.Contains(t, ids, a)
	assert.Contains(t, ids, b)

	mustDelete(t, store, a)
	ids, err = lister.ListContent(testContext())
	require.NoError(t, err)
	assert.NotContains(t, ids, a)
	assert.Contains(t, ids, b)
}
