package memory

import (
	"context"
	"path"
	"sort"
	"sync"

	"github.com/marmos91/godfs/pkg/metadata"
)

// MemoryMetadataStore implements metadata.Store using in-memory maps.
//
// Characteristics:
//   - Fast: every operation is a map lookup
//   - Volatile: the namespace is lost when the process exits
//   - Thread-safe: protected by a single RWMutex
//
// Entries are keyed by clean absolute path. A second map indexes the names of
// each directory's children so listings and recursive removals never scan the
// whole namespace.
type MemoryMetadataStore struct {
	mu       sync.RWMutex
	entries  map[string]*metadata.Entry
	children map[string]map[string]struct{}
	maxFiles int64
}

// MemoryMetadataStoreConfig configures a MemoryMetadataStore.
type MemoryMetadataStoreConfig struct {
	// MaxFiles caps the number of entries (files and directories).
	// 0 means unlimited.
	MaxFiles int64 `mapstructure:"max_files"`
}

// NewMemoryMetadataStore creates a store holding only the root directory.
func NewMemoryMetadataStore(cfg MemoryMetadataStoreConfig) *MemoryMetadataStore {
	root := metadata.RootEntry()
	return &MemoryMetadataStore{
		entries:  map[string]*metadata.Entry{"/": root},
		children: map[string]map[string]struct{}{"/": {}},
		maxFiles: cfg.MaxFiles,
	}
}

func clone(e *metadata.Entry) *metadata.Entry {
	c := *e
	return &c
}

// Get returns a copy of the entry at p.
func (s *MemoryMetadataStore) Get(ctx context.Context, p string) (*metadata.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := metadata.CleanPath(p)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[p]
	if !ok {
		return nil, metadata.NewStoreError(metadata.ErrNotFound, p, "no such file or directory")
	}
	return clone(e), nil
}

// parentDirLocked checks that the parent of p exists and is a directory.
func (s *MemoryMetadataStore) parentDirLocked(p string) error {
	parent := metadata.Parent(p)
	pe, ok := s.entries[parent]
	if !ok {
		return metadata.NewStoreError(metadata.ErrNotFound, parent, "parent directory does not exist")
	}
	if !pe.IsDir() {
		return metadata.NewStoreError(metadata.ErrNotDirectory, parent, "parent is not a directory")
	}
	return nil
}

func (s *MemoryMetadataStore) insertLocked(e *metadata.Entry) {
	s.entries[e.Path] = e
	if e.IsDir() {
		if _, ok := s.children[e.Path]; !ok {
			s.children[e.Path] = make(map[string]struct{})
		}
	}
	if e.Path != "/" {
		s.children[metadata.Parent(e.Path)][path.Base(e.Path)] = struct{}{}
	}
}

func (s *MemoryMetadataStore) deleteLocked(p string) {
	delete(s.entries, p)
	delete(s.children, p)
	if kids, ok := s.children[metadata.Parent(p)]; ok {
		delete(kids, path.Base(p))
	}
}

func (s *MemoryMetadataStore) checkCapacityLocked(extra int) error {
	if s.maxFiles > 0 && int64(len(s.entries)+extra) > s.maxFiles {
		return metadata.NewStoreError(metadata.ErrNoSpace, "", "entry limit of %d reached", s.maxFiles)
	}
	return nil
}

// Create inserts entry, optionally replacing an existing file.
func (s *MemoryMetadataStore) Create(ctx context.Context, entry *metadata.Entry, overwrite bool) (*metadata.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := metadata.CleanPath(entry.Path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.parentDirLocked(p); err != nil {
		return nil, err
	}

	var previous *metadata.Entry
	if existing, ok := s.entries[p]; ok {
		if existing.IsDir() {
			return nil, metadata.NewStoreError(metadata.ErrIsDirectory, p, "a directory exists at this path")
		}
		if !overwrite || entry.Kind == metadata.KindDirectory {
			return nil, metadata.NewStoreError(metadata.ErrAlreadyExists, p, "entry already exists")
		}
		previous = clone(existing)
	} else if err := s.checkCapacityLocked(1); err != nil {
		return nil, err
	}

	stored := clone(entry)
	stored.Path = p
	s.insertLocked(stored)
	return previous, nil
}

// Update replaces the attributes of an existing entry.
func (s *MemoryMetadataStore) Update(ctx context.Context, entry *metadata.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := metadata.CleanPath(entry.Path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[p]
	if !ok {
		return metadata.NewStoreError(metadata.ErrNotFound, p, "no such file or directory")
	}
	if existing.Kind != entry.Kind {
		return metadata.NewStoreError(metadata.ErrInvalidArgument, p, "entry kind cannot change")
	}

	stored := clone(entry)
	stored.Path = p
	s.entries[p] = stored
	return nil
}

// MkdirAll creates p and its missing ancestors.
func (s *MemoryMetadataStore) MkdirAll(ctx context.Context, p string, template metadata.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := metadata.CleanPath(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	missing := 0
	for _, dir := range append(metadata.Ancestors(p), p) {
		if e, ok := s.entries[dir]; ok {
			if !e.IsDir() {
				return metadata.NewStoreError(metadata.ErrNotDirectory, dir, "path component is a file")
			}
			continue
		}
		missing++
	}
	if missing == 0 {
		return nil
	}
	if err := s.checkCapacityLocked(missing); err != nil {
		return err
	}

	for _, dir := range append(metadata.Ancestors(p), p) {
		if _, ok := s.entries[dir]; !ok {
			s.insertLocked(metadata.DirectoryFrom(dir, template))
		}
	}
	return nil
}

// List returns the children of directory p sorted by name.
func (s *MemoryMetadataStore) List(ctx context.Context, p string) ([]metadata.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := metadata.CleanPath(p)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[p]
	if !ok {
		return nil, metadata.NewStoreError(metadata.ErrNotFound, p, "no such file or directory")
	}
	if !e.IsDir() {
		return nil, metadata.NewStoreError(metadata.ErrNotDirectory, p, "not a directory")
	}

	names := make([]string, 0, len(s.children[p]))
	for name := range s.children[p] {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]metadata.Entry, 0, len(names))
	for _, name := range names {
		out = append(out, *s.entries[path.Join(p, name)])
	}
	return out, nil
}

// subtreeLocked returns p and every path below it, parents before children.
func (s *MemoryMetadataStore) subtreeLocked(p string) []string {
	out := []string{p}
	for i := 0; i < len(out); i++ {
		for name := range s.children[out[i]] {
			out = append(out, path.Join(out[i], name))
		}
	}
	return out
}

// Rename moves oldPath, with its subtree, to newPath.
func (s *MemoryMetadataStore) Rename(ctx context.Context, oldPath, newPath string) error {
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

	if _, ok := s.entries[oldPath]; !ok {
		return metadata.NewStoreError(metadata.ErrNotFound, oldPath, "no such file or directory")
	}
	if _, ok := s.entries[newPath]; ok {
		return metadata.NewStoreError(metadata.ErrAlreadyExists, newPath, "destination exists")
	}
	if err := s.parentDirLocked(newPath); err != nil {
		return err
	}

	moved := s.subtreeLocked(oldPath)
	entries := make([]*metadata.Entry, 0, len(moved))
	for _, p := range moved {
		entries = append(entries, s.entries[p])
	}
	for i := len(moved) - 1; i >= 0; i-- {
		s.deleteLocked(moved[i])
	}
	for _, e := range entries {
		e.Path = metadata.Rebase(e.Path, oldPath, newPath)
		s.insertLocked(e)
	}
	return nil
}

// Remove deletes p and, when recursive, everything below it.
func (s *MemoryMetadataStore) Remove(ctx context.Context, p string, recursive bool) ([]metadata.ContentID, error) {
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

	e, ok := s.entries[p]
	if !ok {
		return nil, metadata.NewStoreError(metadata.ErrNotFound, p, "no such file or directory")
	}
	if e.IsDir() && len(s.children[p]) > 0 && !recursive {
		return nil, metadata.NewStoreError(metadata.ErrNotEmpty, p, "directory not empty")
	}

	var freed []metadata.ContentID
	doomed := s.subtreeLocked(p)
	for i := len(doomed) - 1; i >= 0; i-- {
		if id := s.entries[doomed[i]].ContentID; id != "" {
			freed = append(freed, id)
		}
		s.deleteLocked(doomed[i])
	}
	return freed, nil
}

// Usage counts entries and file bytes.
func (s *MemoryMetadataStore) Usage(ctx context.Context) (metadata.Usage, error) {
	if err := ctx.Err(); err != nil {
		return metadata.Usage{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var u metadata.Usage
	for _, e := range s.entries {
		if e.IsDir() {
			u.Directories++
			continue
		}
		u.Files++
		u.Bytes += e.Size
	}
	return u, nil
}

// ContentIDs collects the content IDs of all files under the read lock.
func (s *MemoryMetadataStore) ContentIDs(ctx context.Context) ([]metadata.ContentID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []metadata.ContentID
	for _, e := range s.entries {
		if !e.IsDir() && e.ContentID != "" {
			ids = append(ids, e.ContentID)
		}
	}
	return ids, nil
}

// Close is a no-op.
func (s *MemoryMetadataStore) Close() error {
	return nil
}
