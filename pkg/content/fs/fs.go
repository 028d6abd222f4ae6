package fs

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/marmos91/godfs/internal/logger"
	"github.com/marmos91/godfs/pkg/content"
	"github.com/marmos91/godfs/pkg/metadata"
)

// FSContentStore implements content.Store on the local filesystem, one file
// per ContentID under a base directory.
//
// Open descriptors are kept in an LRU cache so sequential WriteAt/ReadAt calls
// on the same content do not reopen the file every time.
//
// Thread Safety:
// Accesses to the same ContentID are serialized through the FDCache file
// locks. Different ContentIDs proceed in parallel.
type FSContentStore struct {
	basePath string
	fdCache  *FDCache
}

// FSContentStoreConfig configures an FSContentStore.
type FSContentStoreConfig struct {
	// Path is the directory holding content files. Created if missing.
	Path string `mapstructure:"path" validate:"required"`

	// FDCacheSize bounds the number of cached open descriptors (default: 512).
	FDCacheSize int `mapstructure:"fd_cache_size"`
}

// NewFSContentStore creates the base directory if needed and returns a store
// rooted there.
func NewFSContentStore(ctx context.Context, cfg FSContentStoreConfig) (*FSContentStore, error) {
	// ========================================================================
	// Step 1: Check context before filesystem operation
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("fs content store: path is required")
	}

	// ========================================================================
	// Step 2: Create the base directory if it doesn't exist
	// ========================================================================

	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	cacheSize := cfg.FDCacheSize
	if cacheSize == 0 {
		cacheSize = 512
	}

	logger.Debug("FS content store opened: path=%s fd_cache=%d", cfg.Path, cacheSize)

	return &FSContentStore{
		basePath: cfg.Path,
		fdCache:  NewFDCache(cacheSize),
	}, nil
}

// getFilePath maps a content ID to its file. IDs are hex-encoded so any byte
// sequence is a safe file name.
func (r *FSContentStore) getFilePath(id metadata.ContentID) string {
	return filepath.Join(r.basePath, hex.EncodeToString([]byte(id)))
}

// openFile returns a cached read-write descriptor, opening (and optionally
// creating) the file on a cache miss. Callers hold the file lock.
func (r *FSContentStore) openFile(id metadata.ContentID, create bool) (*os.File, error) {
	if f, ok := r.fdCache.Get(id); ok {
		return f, nil
	}

	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}

	f, err := os.OpenFile(r.getFilePath(id), flags, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
		}
		return nil, fmt.Errorf("failed to open content: %w", err)
	}

	if err := r.fdCache.Put(id, f); err != nil {
		logger.Warn("FS content store: fd cache put failed for %s: %v", id, err)
	}
	return f, nil
}

// ReadAt reads from the content file at offset.
func (r *FSContentStore) ReadAt(ctx context.Context, id metadata.ContentID, p []byte, offset int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if offset < 0 {
		return 0, fmt.Errorf("read %s at %d: %w", id, offset, content.ErrInvalidOffset)
	}

	r.fdCache.LockFile(id)
	defer r.fdCache.UnlockFile(id)

	f, err := r.openFile(id, false)
	if err != nil {
		return 0, err
	}

	n, err := f.ReadAt(p, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("failed to read content: %w", err)
	}
	return n, err
}

// WriteAt writes data at offset, creating the file when needed. Writing
// past the end leaves a zero-filled hole.
func (r *FSContentStore) WriteAt(ctx context.Context, id metadata.ContentID, data []byte, offset int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if offset < 0 {
		return fmt.Errorf("write %s at %d: %w", id, offset, content.ErrInvalidOffset)
	}

	r.fdCache.LockFile(id)
	defer r.fdCache.UnlockFile(id)

	f, err := r.openFile(id, true)
	if err != nil {
		return err
	}

	if _, err := f.WriteAt(data, offset); err != nil {
		return fmt.Errorf("failed to write content: %w", mapNoSpace(err))
	}
	return nil
}

// Truncate resizes an existing content file.
func (r *FSContentStore) Truncate(ctx context.Context, id metadata.ContentID, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if size < 0 {
		return fmt.Errorf("truncate %s to %d: %w", id, size, content.ErrInvalidOffset)
	}

	r.fdCache.LockFile(id)
	defer r.fdCache.UnlockFile(id)

	f, err := r.openFile(id, false)
	if err != nil {
		return fmt.Errorf("truncate failed for %s: %w", id, err)
	}
	if err := f.Truncate(size); err != nil {
		return fmt.Errorf("failed to truncate content: %w", mapNoSpace(err))
	}
	return nil
}

// FlushWrites fsyncs the content file if it is open.
func (r *FSContentStore) FlushWrites(ctx context.Context, id metadata.ContentID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.fdCache.LockFile(id)
	defer r.fdCache.UnlockFile(id)

	f, ok := r.fdCache.Get(id)
	if !ok {
		return nil
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync content: %w", err)
	}
	return nil
}

// Size stats the content file.
func (r *FSContentStore) Size(ctx context.Context, id metadata.ContentID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	info, err := os.Stat(r.getFilePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
		}
		return 0, fmt.Errorf("failed to stat content: %w", err)
	}
	return info.Size(), nil
}

// Exists reports whether the content file exists.
func (r *FSContentStore) Exists(ctx context.Context, id metadata.ContentID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := os.Stat(r.getFilePath(id))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check content existence: %w", err)
}

// Delete removes the content file. Missing files are ignored.
func (r *FSContentStore) Delete(ctx context.Context, id metadata.ContentID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.fdCache.LockFile(id)
	defer r.fdCache.UnlockFile(id)

	if err := r.fdCache.Remove(id); err != nil {
		logger.Debug("FS content store: closing %s before delete: %v", id, err)
	}

	if err := os.Remove(r.getFilePath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete content: %w", err)
	}
	return nil
}

// Stats sums the stored files and reports the capacity of the underlying
// filesystem.
func (r *FSContentStore) Stats(ctx context.Context) (*content.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list content directory: %w", err)
	}

	var used, count int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed concurrently
			continue
		}
		used += info.Size()
		count++
	}

	total, avail, err := diskSpace(r.basePath)
	if err != nil {
		return content.NewStats(content.Unbounded, used, count), nil
	}

	stats := content.NewStats(total, used, count)
	stats.AvailableSize = avail
	return stats, nil
}

// ListContent decodes the content IDs from the file names in the store
// directory. Files that are not hex-encoded IDs are ignored.
func (r *FSContentStore) ListContent(ctx context.Context) ([]metadata.ContentID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list content directory: %w", err)
	}

	ids := make([]metadata.ContentID, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		raw, err := hex.DecodeString(e.Name())
		if err != nil {
			continue
		}
		ids = append(ids, metadata.ContentID(raw))
	}
	return ids, nil
}

// Close closes every cached descriptor. Content files stay on disk.
func (r *FSContentStore) Close() error {
	return r.fdCache.Close()
}

func mapNoSpace(err error) error {
	if isNoSpace(err) {
		return fmt.Errorf("%w: %v", content.ErrStorageFull, err)
	}
	return err
}
