// Package metadata defines the namespace store of the in-process cluster
// backend: the tree of directories and files, their attributes, and the
// content ID that locates each file's bytes in a content store.
//
// Two implementations exist:
//   - memory: volatile, map based
//   - badger: persistent, backed by BadgerDB
//
// Both are exercised by the shared conformance suite in metadata/testing.
package metadata

import (
	"context"
	"time"
)

// ContentID locates a file's bytes in a content store.
type ContentID string

// EntryKind distinguishes files from directories.
type EntryKind uint32

const (
	KindFile EntryKind = iota
	KindDirectory
)

// Entry is one node of the namespace.
type Entry struct {
	// Path is the absolute, clean path of the entry. "/" is the root.
	Path string

	Kind EntryKind

	// Size is the logical file size in bytes. Always 0 for directories.
	Size int64

	// Mode holds the permission bits.
	Mode uint32

	Owner string
	Group string

	ModTime    time.Time
	AccessTime time.Time

	Replication int16
	BlockSize   int64

	// ContentID is empty for directories and for files that were never written.
	ContentID ContentID
}

// IsDir reports whether the entry is a directory.
func (e *Entry) IsDir() bool {
	return e.Kind == KindDirectory
}

// Usage summarizes what a store holds.
type Usage struct {
	Files       int64
	Directories int64
	Bytes       int64
}

// Store persists the namespace.
//
// All paths are absolute. Implementations clean them and reject relative
// paths with ErrInvalidArgument. The root directory always exists.
//
// Thread Safety:
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the entry at path, or ErrNotFound.
	Get(ctx context.Context, path string) (*Entry, error)

	// Create inserts a file or directory entry. The parent must exist and be a
	// directory. An existing file is replaced only when overwrite is true, in
	// which case the replaced entry is returned so its content can be freed.
	// Existing directories are never replaced.
	Create(ctx context.Context, entry *Entry, overwrite bool) (*Entry, error)

	// Update replaces the attributes of an existing entry. Kind and Path must
	// match the stored entry.
	Update(ctx context.Context, entry *Entry) error

	// MkdirAll creates path and every missing ancestor using template for the
	// attributes. Existing directories are left untouched.
	MkdirAll(ctx context.Context, path string, template Entry) error

	// List returns the direct children of a directory, sorted by name.
	List(ctx context.Context, path string) ([]Entry, error)

	// Rename moves an entry, and its subtree for directories. The destination
	// must not exist and its parent must be a directory.
	Rename(ctx context.Context, oldPath, newPath string) error

	// Remove deletes an entry. Non-empty directories require recursive.
	// The content IDs of every removed file are returned for reclamation.
	Remove(ctx context.Context, path string, recursive bool) ([]ContentID, error)

	// Usage reports entry counts and the sum of file sizes.
	Usage(ctx context.Context) (Usage, error)

	// ContentIDs returns the content ID of every file that has one, read
	// from a single consistent view of the namespace.
	ContentIDs(ctx context.Context) ([]ContentID, error)

	Close() error
}
