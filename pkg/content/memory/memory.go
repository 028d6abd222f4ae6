package memory

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"

	"github.com/marmos91/godfs/pkg/content"
	"github.com/marmos91/godfs/pkg/metadata"
)

// MemoryContentStore implements content.Store using in-memory storage.
//
// Characteristics:
//   - Fast: All operations are memory-speed
//   - Volatile: Data lost on restart
//   - Memory-bound: Limited by available RAM, or by MaxBytes when set
//   - Thread-safe: Protected by RWMutex
//
// Copying data on read and write prevents data races with caller-owned
// buffers.
type MemoryContentStore struct {
	// data stores the actual file content keyed by ContentID
	data map[metadata.ContentID][]byte

	// used is the sum of len(data[id]) over all ids
	used int64

	maxBytes int64

	// mu protects concurrent access to data map
	mu sync.RWMutex
}

// MemoryContentStoreConfig configures a MemoryContentStore.
type MemoryContentStoreConfig struct {
	// MaxBytes caps the total stored bytes. 0 means unlimited.
	MaxBytes int64 `mapstructure:"max_bytes"`
}

// NewMemoryContentStore creates a new, empty in-memory content store.
func NewMemoryContentStore(ctx context.Context, cfg MemoryContentStoreConfig) (*MemoryContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &MemoryContentStore{
		data:     make(map[metadata.ContentID][]byte),
		maxBytes: cfg.MaxBytes,
	}, nil
}

// ReadAt copies content bytes starting at offset into p.
func (s *MemoryContentStore) ReadAt(ctx context.Context, id metadata.ContentID, p []byte, offset int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if offset < 0 {
		return 0, fmt.Errorf("read %s at %d: %w", id, offset, content.ErrInvalidOffset)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.data[id]
	if !exists {
		return 0, fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
	}
	if offset >= int64(len(data)) {
		return 0, io.EOF
	}

	n := copy(p, data[offset:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt writes data at offset, growing (and zero-filling) the content as
// needed.
func (s *MemoryContentStore) WriteAt(ctx context.Context, id metadata.ContentID, data []byte, offset int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if offset < 0 {
		return fmt.Errorf("write %s at %d: %w", id, offset, content.ErrInvalidOffset)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.data[id]
	end := offset + int64(len(data))
	if end > int64(len(existing)) {
		if err := s.reserveLocked(end - int64(len(existing))); err != nil {
			return fmt.Errorf("write %s: %w", id, err)
		}
		grown := make([]byte, end)
		copy(grown, existing)
		existing = grown
	}

	copy(existing[offset:], data)
	s.data[id] = existing
	return nil
}

// Truncate resizes existing content.
func (s *MemoryContentStore) Truncate(ctx context.Context, id metadata.ContentID, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if size < 0 {
		return fmt.Errorf("truncate %s to %d: %w", id, size, content.ErrInvalidOffset)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.data[id]
	if !exists {
		return fmt.Errorf("truncate failed for %s: %w", id, content.ErrContentNotFound)
	}

	cur := int64(len(existing))
	switch {
	case size < cur:
		s.data[id] = append([]byte(nil), existing[:size]...)
		s.used -= cur - size
	case size > cur:
		if err := s.reserveLocked(size - cur); err != nil {
			return fmt.Errorf("truncate %s: %w", id, err)
		}
		grown := make([]byte, size)
		copy(grown, existing)
		s.data[id] = grown
	}
	return nil
}

// reserveLocked accounts for n additional bytes.
func (s *MemoryContentStore) reserveLocked(n int64) error {
	if s.maxBytes > 0 && s.used+n > s.maxBytes {
		return content.ErrStorageFull
	}
	s.used += n
	return nil
}

// Size returns the length of the content.
func (s *MemoryContentStore) Size(ctx context.Context, id metadata.ContentID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.data[id]
	if !exists {
		return 0, fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
	}
	return int64(len(data)), nil
}

// Exists reports whether content is stored under id.
func (s *MemoryContentStore) Exists(ctx context.Context, id metadata.ContentID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.data[id]
	return exists, nil
}

// Delete removes the content. Unknown ids are ignored.
func (s *MemoryContentStore) Delete(ctx context.Context, id metadata.ContentID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.used -= int64(len(s.data[id]))
	delete(s.data, id)
	return nil
}

// Stats reports usage against MaxBytes (or content.Unbounded).
func (s *MemoryContentStore) Stats(ctx context.Context) (*content.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	total := content.Unbounded
	if s.maxBytes > 0 {
		total = s.maxBytes
	}
	return content.NewStats(total, s.used, int64(len(s.data))), nil
}

// Close drops all content.
func (s *MemoryContentStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[metadata.ContentID][]byte)
	s.used = 0
	return nil
}

// ListContent returns every stored ID in sorted order.
func (s *MemoryContentStore) ListContent(ctx context.Context) ([]metadata.ContentID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.data)), nil
}
