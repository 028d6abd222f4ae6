package testing

import (
	"testing"

	"github.com/marmos91/godfs/pkg/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunWriteTests executes all write-side tests.
func (suite *StoreTestSuite) RunWriteTests(t *testing.T) {
	t.Run("WriteAt_CreateNew", suite.testWriteAtCreateNew)
	t.Run("WriteAt_Empty", suite.testWriteAtEmpty)
	t.Run("WriteAt_Append", suite.testWriteAtAppend)
	t.Run("WriteAt_Overwrite", suite.testWriteAtOverwrite)
	t.Run("WriteAt_SparseFile", suite.testWriteAtSparseFile)
	t.Run("WriteAt_NegativeOffset", suite.testWriteAtNegativeOffset)
	t.Run("WriteAt_Large", suite.testWriteAtLarge)
	t.Run("Truncate_Shrink", suite.testTruncateShrink)
	t.Run("Truncate_Grow", suite.testTruncateGrow)
	t.Run("Truncate_NotFound", suite.testTruncateNotFound)
	t.Run("Delete_Success", suite.testDeleteSuccess)
	t.Run("Delete_Idempotent", suite.testDeleteIdempotent)
}

func (suite *StoreTestSuite) testWriteAtCreateNew(t *testing.T) {
	store := suite.newStore(t)
	id := generateTestID("write-new")
	data := []byte("Hello, World!")

	mustWriteAt(t, store, id, data, 0)

	assertContentEquals(t, store, id, data)
	assert.Equal(t, int64(len(data)), mustGetSize(t, store, id))
}

func (suite *StoreTestSuite) testWriteAtEmpty(t *testing.T) {
	store := suite.newStore(t)
	id := generateTestID("write-empty")

	mustWriteAt(t, store, id, nil, 0)
	flush(t, store, id)

	assertContentExists(t, store, id, true)
	assert.Equal(t, int64(0), mustGetSize(t, store, id))
}

func (suite *StoreTestSuite) testWriteAtAppend(t *testing.T) {
	store := suite.newStore(t)
	id := generateTestID("write-append")

	mustWriteAt(t, store, id, []byte("Hello"), 0)
	mustWriteAt(t, store, id, []byte(", "), 5)
	mustWriteAt(t, store, id, []byte("World"), 7)
	flush(t, store, id)

	assertContentEquals(t, store, id, []byte("Hello, World"))
}

func (suite *StoreTestSuite) testWriteAtOverwrite(t *testing.T) {
	store := suite.newStore(t)
	id := generateTestID("write-overwrite")

	mustWriteAt(t, store, id, []byte("Hello, World!"), 0)
	flush(t, store, id)
	mustWriteAt(t, store, id, []byte("Go"), 7)

	assertContentEquals(t, store, id, []byte("Hello, Gorld!"))

	// Rewriting the head must not truncate the tail
	mustWriteAt(t, store, id, []byte("J"), 0)
	assertContentEquals(t, store, id, []byte("Jello, Gorld!"))
}

func (suite *StoreTestSuite) testWriteAtSparseFile(t *testing.T) {
	store := suite.newStore(t)
	id := generateTestID("write-sparse")

	mustWriteAt(t, store, id, []byte("end"), 5)

	expected := append(make([]byte, 5), []byte("end")...)
	assertContentEquals(t, store, id, expected)
}

func (suite *StoreTestSuite) testWriteAtNegativeOffset(t *testing.T) {
	store := suite.newStore(t)

	err := store.WriteAt(testContext(), generateTestID("write-negative"), []byte("x"), -1)
	AssertErrorIs(t, content.ErrInvalidOffset, err)
}

func (suite *StoreTestSuite) testWriteAtLarge(t *testing.T) {
	store := suite.newStore(t)
	id := generateTestID("write-large")
	data := generateTestData(1 << 20)

	const chunk = 64 * 1024
	for off := 0; off < len(data); off += chunk {
		mustWriteAt(t, store, id, data[off:off+chunk], int64(off))
	}
	flush(t, store, id)

	assertContentEquals(t, store, id, data)
}

func (suite *StoreTestSuite) testTruncateShrink(t *testing.T) {
	store := suite.newStore(t)
	id := generateTestID("truncate-shrink")
	mustWriteAt(t, store, id, []byte("0123456789"), 0)

	mustTruncate(t, store, id, 4)
	assertContentEquals(t, store, id, []byte("0123"))

	mustTruncate(t, store, id, 0)
	assert.Equal(t, int64(0), mustGetSize(t, store, id))
}

func (suite *StoreTestSuite) testTruncateGrow(t *testing.T) {
	store := suite.newStore(t)
	id := generateTestID("truncate-grow")
	mustWriteAt(t, store, id, []byte("ab"), 0)

	mustTruncate(t, store, id, 5)
	assertContentEquals(t, store, id, []byte{'a', 'b', 0, 0, 0})
}

func (suite *StoreTestSuite) testTruncateNotFound(t *testing.T) {
	store := suite.newStore(t)

	err := store.Truncate(testContext(), generateTestID("truncate-missing"), 3)
	AssertErrorIs(t, content.ErrContentNotFound, err)
}

func (suite *StoreTestSuite) testDeleteSuccess(t *testing.T) {
	store := suite.newStore(t)
	id := generateTestID("delete")
	mustWriteAt(t, store, id, []byte("bye"), 0)
	flush(t, store, id)

	mustDelete(t, store, id)

	assertContentExists(t, store, id, false)
	_, err := store.Size(testContext(), id)
	require.Error(t, err)
	AssertErrorIs(t, content.ErrContentNotFound, err)
}

func (suite *StoreTestSuite) testDeleteIdempotent(t *testing.T) {
	store := suite.newStore(t)
	id := generateTestID("delete-twice")

	mustDelete(t, store, id)
	mustWriteAt(t, store, id, []byte("x"), 0)
	mustDelete(t, store, id)
	mustDelete(t, store, id)
	assertContentExists(t, store, id, false)
}
