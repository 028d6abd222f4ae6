package memory

import (
	"context"
	"testing"

	"github.com/marmos91/godfs/pkg/metadata"
	metadatatesting "github.com/marmos91/godfs/pkg/metadata/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemoryMetadataStore runs the complete Store suite against the
// in-memory implementation.
func TestMemoryMetadataStore(t *testing.T) {
	suite := &metadatatesting.StoreTestSuite{
		NewStore: func() metadata.Store {
			return NewMemoryMetadataStore(MemoryMetadataStoreConfig{})
		},
	}
	suite.Run(t)
}

func TestMemoryMetadataStore_MaxFiles(t *testing.T) {
	ctx := context.Background()
	// Root counts as one entry
	store := NewMemoryMetadataStore(MemoryMetadataStoreConfig{MaxFiles: 3})

	require.NoError(t, store.MkdirAll(ctx, "/a/b", metadata.Entry{}))

	_, err := store.Create(ctx, &metadata.Entry{Path: "/a/f", Kind: metadata.KindFile}, false)
	assert.True(t, metadata.IsCode(err, metadata.ErrNoSpace))

	err = store.MkdirAll(ctx, "/x/y", metadata.Entry{})
	assert.True(t, metadata.IsCode(err, metadata.ErrNoSpace))

	_, err = store.Get(ctx, "/x")
	assert.True(t, metadata.IsCode(err, metadata.ErrNotFound), "partial MkdirAll must not leave ancestors behind")
}

func TestMemoryMetadataStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryMetadataStore(MemoryMetadataStoreConfig{})

	_, err := store.Create(ctx, &metadata.Entry{Path: "/f", Kind: metadata.KindFile, Size: 1}, false)
	require.NoError(t, err)

	got, err := store.Get(ctx, "/f")
	require.NoError(t, err)
	got.Size = 1000

	again, err := store.Get(ctx, "/f")
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.Size)
}
