package hdfs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"sync"
	"syscall"
	"time"

	gohdfs "github.com/colinmarc/hdfs/v2"
	"github.com/marmos91/godfs/internal/logger"
	"github.com/marmos91/godfs/pkg/backend"
)

const (
	filePerm = 0644
	dirPerm  = 0755
)

// session wraps one namenode client. The client is not safe for concurrent
// use, so every call, including those made through open files, holds mu.
type session struct {
	client *gohdfs.Client
	user   string

	replication int16
	blockSize   int64

	mu     sync.Mutex
	cwd    string
	closed bool
}

// lock acquires the session and resolves p. Callers must unlock s.mu.
func (s *session) lock(op, p string) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", backend.ErrnoError(op, p, syscall.ENOTCONN)
	}
	return backend.ResolvePath(s.cwd, p), nil
}

func toFileInfo(p string, fi os.FileInfo) *backend.FileInfo {
	out := &backend.FileInfo{
		Path:        p,
		Name:        path.Base(p),
		Size:        fi.Size(),
		ModTime:     fi.ModTime(),
		AccessTime:  fi.ModTime(),
		Permissions: fi.Mode().Perm(),
	}
	if fi.IsDir() {
		out.Kind = backend.KindDirectory
		out.Permissions |= fs.ModeDir
	}

	if hfi, ok := fi.(*gohdfs.FileInfo); ok {
		out.AccessTime = hfi.AccessTime()
		out.Owner = hfi.Owner()
		out.Group = hfi.OwnerGroup()
		if st, ok := hfi.Sys().(*gohdfs.FileStatus); ok {
			out.Replication = int16(st.GetBlockReplication())
			out.BlockSize = int64(st.GetBlocksize())
		}
	}
	return out
}

// OpenFile implements backend.Session. Writing replaces any existing file.
func (s *session) OpenFile(ctx context.Context, p string, flags backend.OpenFlags) (backend.File, error) {
	const op = "open"
	p, err := s.lock(op, p)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	if !flags.Write {
		r, err := s.client.Open(p)
		if err != nil {
			return nil, backend.NewError(op, p, err)
		}
		if r.Stat().IsDir() {
			_ = r.Close()
			return nil, backend.Errorf(op, p, syscall.EISDIR, "cannot open a directory")
		}
		return &file{s: s, path: p, r: r}, nil
	}

	replication := int(flags.Replication)
	if replication == 0 {
		replication = int(s.replication)
	}
	blockSize := flags.BlockSize
	if blockSize == 0 {
		blockSize = s.blockSize
	}

	// CreateFile refuses existing paths, so truncation is remove + create.
	// Remove would also take an empty directory, which the other backends
	// refuse to replace.
	switch fi, err := s.client.Stat(p); {
	case err == nil && fi.IsDir():
		return nil, backend.Errorf(op, p, syscall.EISDIR, "cannot open a directory")
	case err == nil:
		if err := s.client.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, backend.NewError(op, p, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, backend.NewError(op, p, err)
	}

	w, err := s.client.CreateFile(p, replication, blockSize, filePerm)
	if err != nil {
		return nil, backend.NewError(op, p, err)
	}
	logger.DebugCtx(ctx, "hdfs: created %s (replication %d, block size %d)", p, replication, blockSize)
	return &file{s: s, path: p, w: w}, nil
}

// GetPathInfo implements backend.Session.
func (s *session) GetPathInfo(ctx context.Context, p string) (*backend.FileInfo, error) {
	const op = "stat"
	p, err := s.lock(op, p)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	fi, err := s.client.Stat(p)
	if err != nil {
		return nil, backend.NewError(op, p, err)
	}
	return toFileInfo(p, fi), nil
}

// ListDirectory implements backend.Session. The namenode returns entries
// sorted by name.
func (s *session) ListDirectory(ctx context.Context, p string) ([]backend.FileInfo, error) {
	const op = "list"
	p, err := s.lock(op, p)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	entries, err := s.client.ReadDir(p)
	if err != nil {
		return nil, backend.NewError(op, p, err)
	}

	out := make([]backend.FileInfo, 0, len(entries))
	for _, fi := range entries {
		out = append(out, *toFileInfo(path.Join(p, fi.Name()), fi))
	}
	return out, nil
}

// Exists implements backend.Session.
func (s *session) Exists(ctx context.Context, p string) (bool, error) {
	const op = "exists"
	p, err := s.lock(op, p)
	if err != nil {
		return false, err
	}
	defer s.mu.Unlock()

	_, err = s.client.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, backend.NewError(op, p, err)
	}
}

// Rename implements backend.Session.
func (s *session) Rename(ctx context.Context, oldPath, newPath string) error {
	const op = "rename"
	oldPath, err := s.lock(op, oldPath)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()
	newPath = backend.ResolvePath(s.cwd, newPath)

	if err := s.client.Rename(oldPath, newPath); err != nil {
		return backend.NewError(op, oldPath, err)
	}
	return nil
}

// Delete implements backend.Session.
func (s *session) Delete(ctx context.Context, p string, recursive bool) error {
	const op = "delete"
	p, err := s.lock(op, p)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if recursive {
		err = s.client.RemoveAll(p)
	} else {
		err = s.client.Remove(p)
	}
	if err != nil {
		return backend.NewError(op, p, err)
	}
	return nil
}

// Mkdir implements backend.Session.
func (s *session) Mkdir(ctx context.Context, p string) error {
	const op = "mkdir"
	p, err := s.lock(op, p)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if err := s.client.MkdirAll(p, dirPerm); err != nil {
		return backend.NewError(op, p, err)
	}
	return nil
}

// Utime implements backend.Session. The namenode always sets both times, so
// a zero time is replaced with the current value first.
func (s *session) Utime(ctx context.Context, p string, mtime, atime time.Time) error {
	const op = "utime"
	p, err := s.lock(op, p)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if mtime.IsZero() || atime.IsZero() {
		fi, err := s.client.Stat(p)
		if err != nil {
			return backend.NewError(op, p, err)
		}
		current := toFileInfo(p, fi)
		if mtime.IsZero() {
			mtime = current.ModTime
		}
		if atime.IsZero() {
			atime = current.AccessTime
		}
	}

	if err := s.client.Chtimes(p, atime, mtime); err != nil {
		return backend.NewError(op, p, err)
	}
	return nil
}

// Chmod implements backend.Session.
func (s *session) Chmod(ctx context.Context, p string, perm fs.FileMode) error {
	const op = "chmod"
	p, err := s.lock(op, p)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if err := s.client.Chmod(p, perm.Perm()); err != nil {
		return backend.NewError(op, p, err)
	}
	return nil
}

// Chown implements backend.Session. The namenode sets both fields, so an
// empty owner or group is filled from the current value.
func (s *session) Chown(ctx context.Context, p, owner, group string) error {
	const op = "chown"
	p, err := s.lock(op, p)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if owner == "" || group == "" {
		fi, err := s.client.Stat(p)
		if err != nil {
			return backend.NewError(op, p, err)
		}
		current := toFileInfo(p, fi)
		if owner == "" {
			owner = current.Owner
		}
		if group == "" {
			group = current.Group
		}
	}

	if err := s.client.Chown(p, owner, group); err != nil {
		return backend.NewError(op, p, err)
	}
	return nil
}

// SetReplication implements backend.Session. The Go client has no RPC for
// it.
func (s *session) SetReplication(ctx context.Context, p string, replication int16) error {
	return backend.Errorf("setrep", p, syscall.ENOTSUP, "changing replication is not supported by the hdfs client")
}

// Truncate implements backend.Session. HDFS may finish truncation in the
// background; the call returns once the namenode has accepted it.
func (s *session) Truncate(ctx context.Context, p string, size int64) error {
	const op = "truncate"
	p, err := s.lock(op, p)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	done, err := s.client.Truncate(p, size)
	if err != nil {
		return backend.NewError(op, p, err)
	}
	if !done {
		logger.DebugCtx(ctx, "hdfs: truncate of %s continues in the background", p)
	}
	return nil
}

// StatFs implements backend.Session.
func (s *session) StatFs(ctx context.Context) (backend.FsStats, error) {
	const op = "statfs"
	if _, err := s.lock(op, "/"); err != nil {
		return backend.FsStats{}, err
	}
	defer s.mu.Unlock()

	info, err := s.client.StatFs()
	if err != nil {
		return backend.FsStats{}, backend.NewError(op, "", err)
	}
	return backend.FsStats{
		Capacity:  int64(info.Capacity),
		Used:      int64(info.Used),
		Remaining: int64(info.Remaining),
	}, nil
}

// GetWorkingDirectory implements backend.Session.
func (s *session) GetWorkingDirectory() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwd
}

// SetWorkingDirectory implements backend.Session.
func (s *session) SetWorkingDirectory(p string) error {
	p, err := s.lock("chdir", p)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	s.cwd = p
	return nil
}

// Disconnect implements backend.Session. Files still open are invalidated
// by the client closing underneath them.
func (s *session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return backend.ErrnoError("disconnect", "", syscall.ENOTCONN)
	}
	s.closed = true

	if err := s.client.Close(); err != nil {
		return backend.NewError("disconnect", "", err)
	}
	logger.DebugCtx(ctx, "hdfs: session closed for %s", s.user)
	return nil
}
