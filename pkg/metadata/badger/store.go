package badger

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/godfs/internal/logger"
	"github.com/marmos91/godfs/pkg/metadata"
)

// BadgerMetadataStore implements metadata.Store using BadgerDB for persistence.
//
// Key Features:
//   - Persistent namespace that survives restarts
//   - ACID transactions: multi-key operations (rename, recursive remove)
//     either fully apply or not at all
//   - Directory listings via prefix scans over a child index
//
// Thread Safety:
// All operations are protected by a single read-write mutex (mu). Badger
// transactions are already isolated, but serializing writers avoids
// ErrConflict retries on hot directories.
type BadgerMetadataStore struct {
	mu sync.RWMutex
	db *badger.DB
}

// BadgerMetadataStoreConfig contains configuration for creating a BadgerDB
// metadata store.
type BadgerMetadataStoreConfig struct {
	// DBPath is the directory where BadgerDB stores its files.
	// Required unless InMemory is set.
	DBPath string `mapstructure:"db_path"`

	// InMemory keeps the database in RAM. Useful for tests.
	InMemory bool `mapstructure:"in_memory"`

	// BlockCacheSizeMB sizes Badger's block cache (default: 64MB)
	BlockCacheSizeMB int64 `mapstructure:"block_cache_mb"`

	// IndexCacheSizeMB sizes Badger's index cache (default: 32MB)
	IndexCacheSizeMB int64 `mapstructure:"index_cache_mb"`
}

// NewBadgerMetadataStore opens (or creates) a store and seeds the root
// directory on first use.
func NewBadgerMetadataStore(ctx context.Context, config BadgerMetadataStoreConfig) (*BadgerMetadataStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if config.DBPath == "" && !config.InMemory {
		return nil, fmt.Errorf("badger metadata store: db_path is required")
	}

	// ========================================================================
	// Step 1: Prepare BadgerDB options
	// ========================================================================

	opts := badger.DefaultOptions(config.DBPath)
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}

	// Namespace records are small: compression is not worth it
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	blockCacheMB := config.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}
	indexCacheMB := config.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 32
	}
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)
	opts = opts.WithIndexCacheSize(indexCacheMB << 20)

	// ========================================================================
	// Step 2: Open BadgerDB
	// ========================================================================

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	store := &BadgerMetadataStore{db: db}

	// ========================================================================
	// Step 3: Seed the root directory
	// ========================================================================

	err = db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(keyEntry("/")); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return putEntry(txn, metadata.RootEntry())
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize namespace root: %w", err)
	}

	logger.Debug("Badger metadata store opened: path=%s in_memory=%v", config.DBPath, config.InMemory)
	return store, nil
}

// ============================================================================
// Transaction helpers
// ============================================================================

func ioError(p string, err error) error {
	return metadata.NewStoreError(metadata.ErrIOError, p, "badger: %v", err)
}

func getEntry(txn *badger.Txn, p string) (*metadata.Entry, error) {
	item, err := txn.Get(keyEntry(p))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, metadata.NewStoreError(metadata.ErrNotFound, p, "no such file or directory")
	}
	if err != nil {
		return nil, ioError(p, err)
	}

	var e *metadata.Entry
	err = item.Value(func(val []byte) error {
		var derr error
		e, derr = decodeEntry(p, val)
		return derr
	})
	if err != nil {
		return nil, ioError(p, err)
	}
	return e, nil
}

func exists(txn *badger.Txn, p string) (bool, error) {
	_, err := txn.Get(keyEntry(p))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, ioError(p, err)
	}
	return true, nil
}

// putEntry writes the entry record and, for non-root entries, the child index.
func putEntry(txn *badger.Txn, e *metadata.Entry) error {
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	if err := txn.Set(keyEntry(e.Path), data); err != nil {
		return err
	}
	if e.Path == "/" {
		return nil
	}
	return txn.Set(keyChild(metadata.Parent(e.Path), path.Base(e.Path)), nil)
}

func deleteEntry(txn *badger.Txn, p string) error {
	if err := txn.Delete(keyEntry(p)); err != nil {
		return err
	}
	return txn.Delete(keyChild(metadata.Parent(p), path.Base(p)))
}

// childNames scans the child index of dir. Keys come back sorted, so names do too.
func childNames(txn *badger.Txn, dir string) []string {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = keyChildPrefix(dir)

	it := txn.NewIterator(opts)
	defer it.Close()

	prefixLen := len(opts.Prefix)
	var names []string
	for it.Rewind(); it.Valid(); it.Next() {
		key := it.Item().Key()
		if len(key) <= prefixLen {
			continue
		}
		names = append(names, string(key[prefixLen:]))
	}
	return names
}

// subtree returns dir and every path below it, parents before children.
func subtree(txn *badger.Txn, p string) []string {
	out := []string{p}
	for i := 0; i < len(out); i++ {
		for _, name := range childNames(txn, out[i]) {
			out = append(out, path.Join(out[i], name))
		}
	}
	return out
}

func checkParent(txn *badger.Txn, p string) error {
	parent, err := getEntry(txn, metadata.Parent(p))
	if err != nil {
		if metadata.IsCode(err, metadata.ErrNotFound) {
			return metadata.NewStoreError(metadata.ErrNotFound, metadata.Parent(p), "parent directory does not exist")
		}
		return err
	}
	if !parent.IsDir() {
		return metadata.NewStoreError(metadata.ErrNotDirectory, parent.Path, "parent is not a directory")
	}
	return nil
}

// ============================================================================
// metadata.Store implementation
// ============================================================================

// Get returns the entry at p.
func (s *BadgerMetadataStore) Get(ctx context.Context, p string) (*metadata.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := metadata.CleanPath(p)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var e *metadata.Entry
	err = s.db.View(func(txn *badger.Txn) error {
		var gerr error
		e, gerr = getEntry(txn, p)
		return gerr
	})
	return e, err
}

// Create inserts entry, optionally replacing an existing file.
func (s *BadgerMetadataStore) Create(ctx context.Context, entry *metadata.Entry, overwrite bool) (*metadata.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := metadata.CleanPath(entry.Path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var previous *metadata.Entry
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := checkParent(txn, p); err != nil {
			return err
		}

		existing, err := getEntry(txn, p)
		switch {
		case err == nil:
			if existing.IsDir() {
				return metadata.NewStoreError(metadata.ErrIsDirectory, p, "a directory exists at this path")
			}
			if !overwrite || entry.Kind == metadata.KindDirectory {
				return metadata.NewStoreError(metadata.ErrAlreadyExists, p, "entry already exists")
			}
			previous = existing
		case !metadata.IsCode(err, metadata.ErrNotFound):
			return err
		}

		stored := *entry
		stored.Path = p
		return putEntry(txn, &stored)
	})
	if err != nil {
		return nil, err
	}
	return previous, nil
}

// Update replaces the attributes of an existing entry.
func (s *BadgerMetadataStore) Update(ctx context.Context, entry *metadata.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := metadata.CleanPath(entry.Path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		existing, err := getEntry(txn, p)
		if err != nil {
			return err
		}
		if existing.Kind != entry.Kind {
			return metadata.NewStoreError(metadata.ErrInvalidArgument, p, "entry kind cannot change")
		}
		stored := *entry
		stored.Path = p
		return putEntry(txn, &stored)
	})
}

// MkdirAll creates p and its missing ancestors in one transaction.
func (s *BadgerMetadataStore) MkdirAll(ctx context.Context, p string, template metadata.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := metadata.CleanPath(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		for _, dir := range append(metadata.Ancestors(p), p) {
			e, err := getEntry(txn, dir)
			if err == nil {
				if !e.IsDir() {
					return metadata.NewStoreError(metadata.ErrNotDirectory, dir, "path component is a file")
				}
				continue
			}
			if !metadata.IsCode(err, metadata.ErrNotFound) {
				return err
			}
			if err := putEntry(txn, metadata.DirectoryFrom(dir, template)); err != nil {
				return err
			}
		}
		return nil
	})
}

// List returns the children of directory p sorted by name.
func (s *BadgerMetadataStore) List(ctx context.Context, p string) ([]metadata.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := metadata.CleanPath(p)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []metadata.Entry{}
	err = s.db.View(func(txn *badger.Txn) error {
		dir, err := getEntry(txn, p)
		if err != nil {
			return err
		}
		if !dir.IsDir() {
			return metadata.NewStoreError(metadata.ErrNotDirectory, p, "not a directory")
		}

		for i, name := range childNames(txn, p) {
			if i%100 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			child, err := getEntry(txn, path.Join(p, name))
			if err != nil {
				return err
			}
			out = append(out, *child)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Rename moves oldPath, with its subtree, to newPath atomically.
func (s *BadgerMetadataStore) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	oldPath, err := metadata.CleanPath(oldPath)
	if err != nil {
		return err
	}
	newPath, err = metadata.CleanPath(newPath)
	if err != nil {
		return err
	}
	if oldPath == "/" || newPath == "/" {
		return metadata.NewStoreError(metadata.ErrInvalidArgument, oldPath, "cannot rename the root directory")
	}
	if oldPath == newPath {
		return nil
	}
	if metadata.IsWithin(newPath, oldPath) {
		return metadata.NewStoreError(metadata.ErrInvalidArgument, newPath, "cannot move a directory into itself")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := getEntry(txn, oldPath); err != nil {
			return err
		}
		taken, err := exists(txn, newPath)
		if err != nil {
			return err
		}
		if taken {
			return metadata.NewStoreError(metadata.ErrAlreadyExists, newPath, "destination exists")
		}
		if err := checkParent(txn, newPath); err != nil {
			return err
		}

		moved := subtree(txn, oldPath)
		entries := make([]*metadata.Entry, 0, len(moved))
		for _, p := range moved {
			e, err := getEntry(txn, p)
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		for _, p := range moved {
			if err := deleteEntry(txn, p); err != nil {
				return ioError(p, err)
			}
		}
		for _, e := range entries {
			e.Path = metadata.Rebase(e.Path, oldPath, newPath)
			if err := putEntry(txn, e); err != nil {
				return ioError(e.Path, err)
			}
		}
		return nil
	})
}

// Remove deletes p and, when recursive, everything below it.
func (s *BadgerMetadataStore) Remove(ctx context.Context, p string, recursive bool) ([]metadata.ContentID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := metadata.CleanPath(p)
	if err != nil {
		return nil, err
	}
	if p == "/" {
		return nil, metadata.NewStoreError(metadata.ErrInvalidArgument, p, "cannot remove the root directory")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var freed []metadata.ContentID
	err = s.db.Update(func(txn *badger.Txn) error {
		e, err := getEntry(txn, p)
		if err != nil {
			return err
		}
		if e.IsDir() && !recursive && len(childNames(txn, p)) > 0 {
			return metadata.NewStoreError(metadata.ErrNotEmpty, p, "directory not empty")
		}

		for _, victim := range subtree(txn, p) {
			ve, err := getEntry(txn, victim)
			if err != nil {
				return err
			}
			if ve.ContentID != "" {
				freed = append(freed, ve.ContentID)
			}
			if err := deleteEntry(txn, victim); err != nil {
				return ioError(victim, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return freed, nil
}

// Usage scans every entry record.
func (s *BadgerMetadataStore) Usage(ctx context.Context) (metadata.Usage, error) {
	if err := ctx.Err(); err != nil {
		return metadata.Usage{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var u metadata.Usage
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixEntry)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			p := string(item.Key()[len(prefixEntry):])
			err := item.Value(func(val []byte) error {
				e, err := decodeEntry(p, val)
				if err != nil {
					return err
				}
				if e.IsDir() {
					u.Directories++
				} else {
					u.Files++
					u.Bytes += e.Size
				}
				return nil
			})
			if err != nil {
				return ioError(p, err)
			}
		}
		return nil
	})
	return u, err
}

// ContentIDs scans every entry in one read transaction.
func (s *BadgerMetadataStore) ContentIDs(ctx context.Context) ([]metadata.ContentID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []metadata.ContentID
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixEntry)

		it := txn.NewIterator(opts)
		defer it.Close()

		n := 0
		for it.Rewind(); it.Valid(); it.Next() {
			if n++; n%1000 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}

			item := it.Item()
			p := string(item.Key()[len(prefixEntry):])
			err := item.Value(func(val []byte) error {
				e, err := decodeEntry(p, val)
				if err != nil {
					return err
				}
				if !e.IsDir() && e.ContentID != "" {
					ids = append(ids, e.ContentID)
				}
				return nil
			})
			if err != nil {
				return ioError(p, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Close flushes and closes the database.
func (s *BadgerMetadataStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
