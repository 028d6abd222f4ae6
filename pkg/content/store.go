// Package content defines block storage for file bytes addressed by ContentID.
//
// A content store knows nothing about paths, ownership or directories: the
// metadata store owns the namespace and records which ContentID holds each
// file's bytes. The cluster backend combines the two.
package content

import (
	"context"

	"github.com/marmos91/godfs/pkg/metadata"
)

// Store manages the raw bytes of files.
//
// Semantics shared by every implementation:
//   - WriteAt creates the content if it does not exist and zero-fills gaps
//   - ReadAt returns io.EOF when offset is at or beyond the end; a short read
//     at the end of content may return either nil or io.EOF alongside n > 0
//   - Truncate and Size fail with ErrContentNotFound for unknown IDs
//   - Delete is idempotent
//
// Implementations must be safe for concurrent use. Concurrent writes to the
// same ContentID are last-write-wins.
type Store interface {
	// ReadAt reads len(p) bytes starting at offset.
	ReadAt(ctx context.Context, id metadata.ContentID, p []byte, offset int64) (int, error)

	// WriteAt writes data at offset, extending the content as needed.
	WriteAt(ctx context.Context, id metadata.ContentID, data []byte, offset int64) error

	// Truncate shrinks or zero-extends the content to size bytes.
	Truncate(ctx context.Context, id metadata.ContentID, size int64) error

	// Size returns the current length of the content.
	Size(ctx context.Context, id metadata.ContentID) (int64, error)

	// Exists reports whether content is stored under id.
	Exists(ctx context.Context, id metadata.ContentID) (bool, error)

	// Delete removes the content. Deleting unknown content succeeds.
	Delete(ctx context.Context, id metadata.ContentID) error

	// Stats returns capacity and usage figures.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases resources held by the store.
	Close() error
}

// Flusher is implemented by stores that buffer writes. FlushWrites makes
// every buffered write to id durable. Callers must flush before a written
// file becomes readable.
type Flusher interface {
	FlushWrites(ctx context.Context, id metadata.ContentID) error
}

// Lister is implemented by stores that can enumerate what they hold. The
// garbage collector needs it to find content no file refers to.
type Lister interface {
	// ListContent returns the ID of every durable content item. Writes
	// still buffered in memory are not included.
	ListContent(ctx context.Context) ([]metadata.ContentID, error)
}

// Stats describes a content store's capacity and usage.
type Stats struct {
	// TotalSize is the capacity in bytes. Unbounded stores report the
	// largest int64.
	TotalSize int64

	// UsedSize is the number of bytes currently stored.
	UsedSize int64

	// AvailableSize is TotalSize minus UsedSize, floored at 0.
	AvailableSize int64

	// ContentCount is the number of stored content items.
	ContentCount int64
}

// Unbounded is the TotalSize reported by stores without a capacity limit.
const Unbounded = int64(^uint64(0) >> 1)

// NewStats fills AvailableSize from total and used.
func NewStats(total, used, count int64) *Stats {
	avail := total - used
	if avail < 0 {
		avail = 0
	}
	return &Stats{
		TotalSize:     total,
		UsedSize:      used,
		AvailableSize: avail,
		ContentCount:  count,
	}
}
