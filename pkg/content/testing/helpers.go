package testing

import (
	"errors"
	"io"
	"testing"

	"github.com/marmos91/godfs/pkg/content"
	"github.com/marmos91/godfs/pkg/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorIs checks if the error matches the expected error using errors.Is.
func AssertErrorIs(t *testing.T, expected error, actual error) {
	t.Helper()
	if !errors.Is(actual, expected) {
		t.Errorf("Expected error %v, got %v", expected, actual)
	}
}

// mustWriteAt writes data at offset and fails the test if it errors.
func mustWriteAt(t *testing.T, store content.Store, id metadata.ContentID, data []byte, offset int64) {
	t.Helper()
	err := store.WriteAt(testContext(), id, data, offset)
	require.NoError(t, err, "WriteAt should succeed")
}

// mustReadAll reads the whole content through ReadAt.
func mustReadAll(t *testing.T, store content.Store, id metadata.ContentID) []byte {
	t.Helper()
	size := mustGetSize(t, store, id)
	buf := make([]byte, size)
	if size == 0 {
		return buf
	}

	n, err := store.ReadAt(testContext(), id, buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		require.NoError(t, err, "ReadAt should succeed")
	}
	require.Equal(t, int(size), n, "ReadAt should return the whole content")
	return buf
}

// mustGetSize gets content size and fails the test if it errors.
func mustGetSize(t *testing.T, store content.Store, id metadata.ContentID) int64 {
	t.Helper()
	size, err := store.Size(testContext(), id)
	require.NoError(t, err, "Size should succeed")
	return size
}

// mustDelete deletes content and fails the test if it errors.
func mustDelete(t *testing.T, store content.Store, id metadata.ContentID) {
	t.Helper()
	err := store.Delete(testContext(), id)
	require.NoError(t, err, "Delete should succeed")
}

// mustTruncate truncates content and fails the test if it errors.
func mustTruncate(t *testing.T, store content.Store, id metadata.ContentID, size int64) {
	t.Helper()
	err := store.Truncate(testContext(), id, size)
	require.NoError(t, err, "Truncate should succeed")
}

// assertContentExists checks if content exists.
func assertContentExists(t *testing.T, store content.Store, id metadata.ContentID, expected bool) {
	t.Helper()
	exists, err := store.Exists(testContext(), id)
	require.NoError(t, err, "Exists should not error")
	assert.Equal(t, expected, exists, "Content existence mismatch")
}

// assertContentEquals checks if content matches expected data.
func assertContentEquals(t *testing.T, store content.Store, id metadata.ContentID, expected []byte) {
	t.Helper()
	actual := mustReadAll(t, store, id)
	assert.Equal(t, expected, actual, "Content data mismatch")
}

// flush uploads buffered writes on stores that buffer them.
func flush(t *testing.T, store content.Store, id metadata.ContentID) {
	t.Helper()
	if f, ok := store.(content.Flusher); ok {
		require.NoError(t, f.FlushWrites(testContext(), id))
	}
}

// generateTestData creates test data of specified size.
func generateTestData(size int) []byte {
	data := make([]byte, size)
	for i := 0; i < size; i++ {
		data[i] = byte(i % 256)
	}
	return data
}

// generateTestID generates a unique test content ID.
func generateTestID(name string) metadata.ContentID {
	return metadata.ContentID("test-" + name)
}
