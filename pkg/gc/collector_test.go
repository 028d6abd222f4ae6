package gc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marmos91/godfs/pkg/content"
	contentmemory "github.com/marmos91/godfs/pkg/content/memory"
	"github.com/marmos91/godfs/pkg/metadata"
	metadatamemory "github.com/marmos91/godfs/pkg/metadata/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unlistable hides the Lister implementation of the wrapped store.
type unlistable struct{ content.Store }

// failingDelete rejects deletes of one ID.
type failingDelete struct {
	*contentmemory.MemoryContentStore
	reject metadata.ContentID
}

func (f *failingDelete) Delete(ctx context.Context, id metadata.ContentID) error {
	if id == f.reject {
		return errors.New("delete refused")
	}
	return f.MemoryContentStore.Delete(ctx, id)
}

func newStores(t *testing.T) (metadata.Store, *contentmemory.MemoryContentStore) {
	t.Helper()
	data, err := contentmemory.NewMemoryContentStore(context.Background(), contentmemory.MemoryContentStoreConfig{})
	require.NoError(t, err)
	return metadatamemory.NewMemoryMetadataStore(metadatamemory.MemoryMetadataStoreConfig{}), data
}

// seed stores one referenced file and the given orphans.
func seed(t *testing.T, meta metadata.Store, data content.Store, orphans ...metadata.ContentID) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, meta.MkdirAll(ctx, "/dir", metadata.Entry{Mode: 0o755}))
	_, err := meta.Create(ctx, &metadata.Entry{
		Path:      "/dir/file",
		Kind:      metadata.KindFile,
		Size:      4,
		Mode:      0o644,
		ContentID: "live",
	}, false)
	require.NoError(t, err)
	require.NoError(t, data.WriteAt(ctx, "live", []byte("live"), 0))

	for _, id := range orphans {
		require.NoError(t, data.WriteAt(ctx, id, []byte("lost"), 0))
	}
}

func listContent(t *testing.T, data content.Lister) []metadata.ContentID {
	t.Helper()
	ids, err := data.ListContent(context.Background())
	require.NoError(t, err)
	return ids
}

func TestNewCollector_RequiresLister(t *testing.T) {
	meta, data := newStores(t)

	_, err := NewCollector(meta, unlistable{data}, Config{})
	assert.ErrorIs(t, err, ErrNotListable)
}

func TestNewCollector_Defaults(t *testing.T) {
	meta, data := newStores(t)

	c, err := NewCollector(meta, data, Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchSize, c.config.BatchSize)
}

func TestRunNow_DeletesOrphans(t *testing.T) {
	meta, data := newStores(t)
	seed(t, meta, data, "orphan-1", "orphan-2", "orphan-3")

	c, err := NewCollector(meta, data, Config{BatchSize: 2})
	require.NoError(t, err)

	stats, err := c.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(4), stats.ExistingCount)
	assert.Equal(t, uint64(1), stats.ReferencedCount)
	assert.Equal(t, uint64(3), stats.OrphanedCount)
	assert.Equal(t, uint64(3), stats.DeletedCount)
	assert.Zero(t, stats.FailedCount)
	assert.False(t, stats.EndTime.IsZero())

	assert.Equal(t, []metadata.ContentID{"live"}, listContent(t, data))
}

func TestRunNow_NothingToDo(t *testing.T) {
	meta, data := newStores(t)
	seed(t, meta, data)

	c, err := NewCollector(meta, data, Config{})
	require.NoError(t, err)

	stats, err := c.RunNow(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.OrphanedCount)
	assert.Contains(t, stats.Summary(), "orphaned=0")
}

func TestRunNow_DryRun(t *testing.T) {
	meta, data := newStores(t)
	seed(t, meta, data, "orphan")

	c, err := NewCollector(meta, data, Config{DryRun: true})
	require.NoError(t, err)

	stats, err := c.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.OrphanedCount)
	assert.Zero(t, stats.DeletedCount)
	assert.Len(t, listContent(t, data), 2)
}

func TestRunNow_CountsFailures(t *testing.T) {
	meta, mem := newStores(t)
	data := &failingDelete{MemoryContentStore: mem, reject: "stuck"}
	seed(t, meta, data, "stuck", "gone")

	c, err := NewCollector(meta, data, Config{})
	require.NoError(t, err)

	stats, err := c.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.DeletedCount)
	assert.Equal(t, uint64(1), stats.FailedCount)
	assert.ElementsMatch(t, []metadata.ContentID{"live", "stuck"}, listContent(t, mem))
}

func TestRunNow_SkipsContentInUse(t *testing.T) {
	meta, data := newStores(t)
	seed(t, meta, data, "held", "orphan")

	held := func(id metadata.ContentID) bool { return id == "held" }
	c, err := NewCollector(meta, data, Config{}, WithInUse(held))
	require.NoError(t, err)

	stats, err := c.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.InUseCount)
	assert.Equal(t, uint64(1), stats.DeletedCount)
	assert.Contains(t, stats.Summary(), "in_use=1")
	assert.ElementsMatch(t, []metadata.ContentID{"live", "held"}, listContent(t, data))
}

func TestRunNow_CanceledContext(t *testing.T) {
	meta, data := newStores(t)
	seed(t, meta, data, "orphan")

	c, err := NewCollector(meta, data, Config{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.RunNow(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, listContent(t, data), 2)
}

func TestStartStop(t *testing.T) {
	meta, data := newStores(t)
	seed(t, meta, data, "orphan")

	c, err := NewCollector(meta, data, Config{Interval: 5 * time.Millisecond})
	require.NoError(t, err)
	c.Start()
	c.Start()

	assert.Eventually(t, func() bool {
		return len(listContent(t, data)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.Stop(context.Background()))
	require.NoError(t, c.Stop(context.Background()))
}

func TestStop_WithoutStart(t *testing.T) {
	meta, data := newStores(t)

	c, err := NewCollector(meta, data, Config{Interval: time.Hour})
	require.NoError(t, err)
	require.NoError(t, c.Stop(context.Background()))

	// Start after Stop does not launch a worker.
	c.Start()
	assert.False(t, c.started)
}

func TestStart_ZeroIntervalIsNoop(t *testing.T) {
	meta, data := newStores(t)

	c, err := NewCollector(meta, data, Config{})
	require.NoError(t, err)
	c.Start()
	assert.False(t, c.started)
	require.NoError(t, c.Stop(context.Background()))
}
