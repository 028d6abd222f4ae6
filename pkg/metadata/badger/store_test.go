package badger

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/godfs/pkg/metadata"
	metadatatesting "github.com/marmos91/godfs/pkg/metadata/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBadgerMetadataStore runs the complete Store suite against BadgerDB
// running in memory.
func TestBadgerMetadataStore(t *testing.T) {
	suite := &metadatatesting.StoreTestSuite{
		NewStore: func() metadata.Store {
			store, err := NewBadgerMetadataStore(context.Background(), BadgerMetadataStoreConfig{InMemory: true})
			if err != nil {
				t.Fatalf("Failed to create BadgerMetadataStore: %v", err)
			}
			return store
		},
	}
	suite.Run(t)
}

func TestBadgerMetadataStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	mtime := time.Unix(1710000000, 123)

	store, err := NewBadgerMetadataStore(ctx, BadgerMetadataStoreConfig{DBPath: dir})
	require.NoError(t, err)

	require.NoError(t, store.MkdirAll(ctx, "/data", metadata.Entry{Owner: "hdfs"}))
	_, err = store.Create(ctx, &metadata.Entry{
		Path:        "/data/file",
		Kind:        metadata.KindFile,
		Size:        7,
		ModTime:     mtime,
		Replication: 2,
		ContentID:   "c-7",
	}, false)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewBadgerMetadataStore(ctx, BadgerMetadataStoreConfig{DBPath: dir})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "/data/file")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Size)
	assert.Equal(t, int16(2), got.Replication)
	assert.Equal(t, metadata.ContentID("c-7"), got.ContentID)
	assert.True(t, mtime.Equal(got.ModTime))
	assert.True(t, got.AccessTime.IsZero())

	dirEntry, err := reopened.Get(ctx, "/data")
	require.NoError(t, err)
	assert.Equal(t, "hdfs", dirEntry.Owner)
}

func TestBadgerMetadataStore_RequiresPath(t *testing.T) {
	_, err := NewBadgerMetadataStore(context.Background(), BadgerMetadataStoreConfig{})
	assert.Error(t, err)
}

func TestEntryEncodingRoundTrip(t *testing.T) {
	in := &metadata.Entry{
		Path:        "/x",
		Kind:        metadata.KindDirectory,
		Mode:        0750,
		Owner:       "o",
		Group:       "g",
		ModTime:     time.Unix(5, 6),
		Replication: -1,
		BlockSize:   1 << 40,
	}

	data, err := encodeEntry(in)
	require.NoError(t, err)

	out, err := decodeEntry("/x", data)
	require.NoError(t, err)
	assert.Equal(t, in.Kind, out.Kind)
	assert.Equal(t, in.Mode, out.Mode)
	assert.Equal(t, in.Owner, out.Owner)
	assert.Equal(t, in.Group, out.Group)
	assert.True(t, in.ModTime.Equal(out.ModTime))
	assert.Equal(t, in.Replication, out.Replication)
	assert.Equal(t, in.BlockSize, out.BlockSize)
}
