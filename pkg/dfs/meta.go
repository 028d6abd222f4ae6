package dfs

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/marmos91/godfs/internal/logger"
	"github.com/marmos91/godfs/pkg/backend"
)

// Kind tells files and directories apart.
type Kind = backend.Kind

const (
	KindFile      = backend.KindFile
	KindDirectory = backend.KindDirectory
)

// DirEntry describes one entry of a directory listing.
type DirEntry struct {
	Kind        Kind
	Name        string
	Size        int64
	ModTime     time.Time
	AccessTime  time.Time
	Replication int16
	BlockSize   int64
	Owner       string
	Group       string
	Permissions fs.FileMode
}

// StatResult describes a single path.
type StatResult struct {
	Kind        Kind
	Size        int64
	ModTime     time.Time
	AccessTime  time.Time
	Replication int16
	BlockSize   int64
}

// IsDir reports whether the path is a directory.
func (s *StatResult) IsDir() bool { return s.Kind == KindDirectory }

func toDirEntry(fi *backend.FileInfo) DirEntry {
	return DirEntry{
		Kind:        fi.Kind,
		Name:        fi.Name,
		Size:        fi.Size,
		ModTime:     fi.ModTime,
		AccessTime:  fi.AccessTime,
		Replication: fi.Replication,
		BlockSize:   fi.BlockSize,
		Owner:       fi.Owner,
		Group:       fi.Group,
		Permissions: fi.Permissions.Perm(),
	}
}

func toStatResult(fi *backend.FileInfo) *StatResult {
	return &StatResult{
		Kind:        fi.Kind,
		Size:        fi.Size,
		ModTime:     fi.ModTime,
		AccessTime:  fi.AccessTime,
		Replication: fi.Replication,
		BlockSize:   fi.BlockSize,
	}
}

// Existence is the outcome of Lookup.
type Existence uint8

const (
	// ExistenceError means the backend could not answer; Lookup returns
	// the error alongside.
	ExistenceError Existence = iota
	Exists
	Absent
)

func (e Existence) String() string {
	switch e {
	case Exists:
		return "exists"
	case Absent:
		return "absent"
	default:
		return "error"
	}
}

// opErr wraps a backend error from a namespace operation.
func opErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var handleErr *InvalidHandleError
	if errors.As(err, &handleErr) {
		return err
	}
	return &OpError{newOpError(op, path, err)}
}

// Lookup reports whether path exists, keeping "absent" apart from "the
// backend failed".
func (c *Conn) Lookup(ctx context.Context, path string) (Existence, error) {
	const op = "exists"
	var found bool
	err := c.do(op, func(s backend.Session) error {
		var err error
		found, err = s.Exists(ctx, path)
		return err
	})
	switch {
	case err != nil:
		return ExistenceError, opErr(op, path, err)
	case found:
		return Exists, nil
	default:
		return Absent, nil
	}
}

// Exists reports whether path exists. An absent path is (false, nil); the
// error is only set when the backend could not answer.
func (c *Conn) Exists(ctx context.Context, path string) (bool, error) {
	e, err := c.Lookup(ctx, path)
	return e == Exists, err
}

// Stat describes path. An absent path yields (nil, nil).
func (c *Conn) Stat(ctx context.Context, path string) (*StatResult, error) {
	const op = "stat"
	var fi *backend.FileInfo
	err := c.do(op, func(s backend.Session) error {
		var err error
		fi, err = s.GetPathInfo(ctx, path)
		return err
	})
	switch {
	case backend.IsNotExist(err):
		return nil, nil
	case err != nil:
		return nil, opErr(op, path, err)
	}
	return toStatResult(fi), nil
}

// ListDirectory returns the entries of the directory at path in one backend
// round trip. The order is whatever the backend returns. An empty directory
// yields an empty, non-nil slice.
func (c *Conn) ListDirectory(ctx context.Context, path string) ([]DirEntry, error) {
	const op = "list"
	var infos []backend.FileInfo
	err := c.do(op, func(s backend.Session) error {
		var err error
		infos, err = s.ListDirectory(ctx, path)
		return err
	})
	if err != nil {
		return nil, opErr(op, path, err)
	}

	entries := make([]DirEntry, 0, len(infos))
	for i := range infos {
		entries = append(entries, toDirEntry(&infos[i]))
	}
	return entries, nil
}

// Rename moves oldPath to newPath. Like the other boolean operations it
// returns false with an *OpError carrying the backend errno on failure.
func (c *Conn) Rename(ctx context.Context, oldPath, newPath string) (bool, error) {
	const op = "rename"
	err := c.do(op, func(s backend.Session) error { return s.Rename(ctx, oldPath, newPath) })
	return err == nil, opErr(op, oldPath, err)
}

// Delete removes path. Non-empty directories need recursive.
func (c *Conn) Delete(ctx context.Context, path string, recursive bool) (bool, error) {
	const op = "delete"
	err := c.do(op, func(s backend.Session) error { return s.Delete(ctx, path, recursive) })
	return err == nil, opErr(op, path, err)
}

// Mkdir creates path and any missing parents. An existing directory is not
// an error. Backend diagnostics are muted for the call.
func (c *Conn) Mkdir(ctx context.Context, path string) (bool, error) {
	const op = "mkdir"
	ctx = logger.Suppress(ctx)
	err := c.do(op, func(s backend.Session) error { return s.Mkdir(ctx, path) })
	return err == nil, opErr(op, path, err)
}

// Utime sets the modification and access times of path. A zero time leaves
// that field unchanged.
func (c *Conn) Utime(ctx context.Context, path string, mtime, atime time.Time) (bool, error) {
	const op = "utime"
	err := c.do(op, func(s backend.Session) error { return s.Utime(ctx, path, mtime, atime) })
	return err == nil, opErr(op, path, err)
}

// Chmod sets the permission bits of path.
func (c *Conn) Chmod(ctx context.Context, path string, perm fs.FileMode) (bool, error) {
	const op = "chmod"
	err := c.do(op, func(s backend.Session) error { return s.Chmod(ctx, path, perm) })
	return err == nil, opErr(op, path, err)
}

// Chown sets the owner and group of path. An empty value is left unchanged.
func (c *Conn) Chown(ctx context.Context, path, owner, group string) (bool, error) {
	const op = "chown"
	err := c.do(op, func(s backend.Session) error { return s.Chown(ctx, path, owner, group) })
	return err == nil, opErr(op, path, err)
}

// SetReplication changes the replication factor of an existing file.
func (c *Conn) SetReplication(ctx context.Context, path string, replication int16) (bool, error) {
	const op = "setrep"
	err := c.do(op, func(s backend.Session) error { return s.SetReplication(ctx, path, replication) })
	return err == nil, opErr(op, path, err)
}

// Truncate cuts the file at path to size bytes.
func (c *Conn) Truncate(ctx context.Context, path string, size Offset) (bool, error) {
	const op = "truncate"
	err := c.do(op, func(s backend.Session) error { return s.Truncate(ctx, path, size) })
	return err == nil, opErr(op, path, err)
}

func (c *Conn) statFs(ctx context.Context, op string) (backend.FsStats, error) {
	var st backend.FsStats
	err := c.do(op, func(s backend.Session) error {
		var err error
		st, err = s.StatFs(ctx)
		return err
	})
	return st, opErr(op, "", err)
}

// Capacity returns the raw capacity of the filesystem in bytes.
func (c *Conn) Capacity(ctx context.Context) (int64, error) {
	st, err := c.statFs(ctx, "capacity")
	if err != nil {
		return -1, err
	}
	return st.Capacity, nil
}

// Used returns the bytes in use across the filesystem.
func (c *Conn) Used(ctx context.Context) (int64, error) {
	st, err := c.statFs(ctx, "used")
	if err != nil {
		return -1, err
	}
	return st.Used, nil
}

// GetWorkingDirectory returns the directory relative paths resolve against.
// ok is false when c is not usable.
func (c *Conn) GetWorkingDirectory(ctx context.Context) (dir string, ok bool) {
	err := c.do("getcwd", func(s backend.Session) error {
		dir = s.GetWorkingDirectory()
		return nil
	})
	return dir, err == nil && dir != ""
}

// SetWorkingDirectory changes the directory relative paths resolve
// against. path need not exist.
func (c *Conn) SetWorkingDirectory(ctx context.Context, path string) (bool, error) {
	const op = "chdir"
	err := c.do(op, func(s backend.Session) error { return s.SetWorkingDirectory(path) })
	return err == nil, opErr(op, path, err)
}
