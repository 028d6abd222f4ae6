package local

import (
	"bufio"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"os/user"
	"path"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/marmos91/godfs/pkg/backend"
	"github.com/natefinch/atomic"
)

const (
	filePerm = 0644
	dirPerm  = 0755

	defaultBufferSize = 64 << 10
)

type session struct {
	b *Backend

	mu     sync.Mutex
	cwd    string
	closed bool
}

// resolve returns the session path and host path for p.
func (s *session) resolve(op, p string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", "", backend.ErrnoError(op, p, syscall.ENOTCONN)
	}
	abs := backend.ResolvePath(s.cwd, p)
	return abs, s.b.hostPath(abs), nil
}

func toFileInfo(p string, fi fs.FileInfo) *backend.FileInfo {
	out := &backend.FileInfo{
		Path:        p,
		Name:        path.Base(p),
		Size:        fi.Size(),
		ModTime:     fi.ModTime(),
		AccessTime:  fi.ModTime(),
		Replication: 1,
		Permissions: fi.Mode().Perm(),
	}
	if fi.IsDir() {
		out.Kind = backend.KindDirectory
		out.Permissions |= fs.ModeDir
		out.Size = 0
	}
	fillSys(out, fi)
	return out
}

// OpenFile implements backend.Session. Writing creates missing parent
// directories and truncates an existing file.
func (s *session) OpenFile(ctx context.Context, p string, flags backend.OpenFlags) (backend.File, error) {
	const op = "open"
	p, host, err := s.resolve(op, p)
	if err != nil {
		return nil, err
	}

	if !flags.Write {
		f, err := os.Open(host)
		if err != nil {
			return nil, backend.NewError(op, p, err)
		}
		info, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, backend.NewError(op, p, err)
		}
		if info.IsDir() {
			_ = f.Close()
			return nil, backend.Errorf(op, p, syscall.EISDIR, "cannot open a directory")
		}
		return &file{path: p, f: f}, nil
	}

	if err := os.MkdirAll(filepath.Dir(host), dirPerm); err != nil {
		return nil, backend.NewError(op, p, err)
	}
	f, err := os.OpenFile(host, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return nil, backend.NewError(op, p, err)
	}

	size := int(flags.BufferSize)
	if size <= 0 {
		size = defaultBufferSize
	}
	return &file{path: p, f: f, writable: true, w: bufio.NewWriterSize(f, size)}, nil
}

// WriteFileAtomic implements backend.AtomicWriter. The destination appears
// only after r has been fully consumed.
func (s *session) WriteFileAtomic(ctx context.Context, p string, r io.Reader) error {
	const op = "create"
	p, host, err := s.resolve(op, p)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(host), dirPerm); err != nil {
		return backend.NewError(op, p, err)
	}

	_, statErr := os.Stat(host)
	if err := atomic.WriteFile(host, r); err != nil {
		return backend.NewError(op, p, err)
	}

	// atomic.WriteFile keeps the mode of a file it replaces but leaves new
	// files at the temp file's 0600.
	if errors.Is(statErr, fs.ErrNotExist) {
		if err := os.Chmod(host, filePerm); err != nil {
			return backend.NewError(op, p, err)
		}
	}
	return nil
}

// GetPathInfo implements backend.Session.
func (s *session) GetPathInfo(ctx context.Context, p string) (*backend.FileInfo, error) {
	const op = "stat"
	p, host, err := s.resolve(op, p)
	if err != nil {
		return nil, err
	}

	fi, err := os.Stat(host)
	if err != nil {
		return nil, backend.NewError(op, p, err)
	}
	return toFileInfo(p, fi), nil
}

// ListDirectory implements backend.Session. Entries are sorted by name.
// Entries removed between the listing and their stat are skipped.
func (s *session) ListDirectory(ctx context.Context, p string) ([]backend.FileInfo, error) {
	const op = "list"
	p, host, err := s.resolve(op, p)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(host)
	if err != nil {
		return nil, backend.NewError(op, p, err)
	}

	out := make([]backend.FileInfo, 0, len(entries))
	for _, e := range entries {
		fi, err := os.Stat(filepath.Join(host, e.Name()))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, backend.NewError(op, path.Join(p, e.Name()), err)
		}
		out = append(out, *toFileInfo(path.Join(p, e.Name()), fi))
	}
	return out, nil
}

// Exists implements backend.Session.
func (s *session) Exists(ctx context.Context, p string) (bool, error) {
	const op = "exists"
	p, host, err := s.resolve(op, p)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(host)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, backend.NewError(op, p, err)
	}
}

// Rename implements backend.Session with rename(2) semantics: an existing
// destination file is replaced.
func (s *session) Rename(ctx context.Context, oldPath, newPath string) error {
	const op = "rename"
	oldPath, oldHost, err := s.resolve(op, oldPath)
	if err != nil {
		return err
	}
	_, newHost, err := s.resolve(op, newPath)
	if err != nil {
		return err
	}

	if err := os.Rename(oldHost, newHost); err != nil {
		return backend.NewError(op, oldPath, err)
	}
	return nil
}

// Delete implements backend.Session.
func (s *session) Delete(ctx context.Context, p string, recursive bool) error {
	const op = "delete"
	p, host, err := s.resolve(op, p)
	if err != nil {
		return err
	}
	if p == "/" {
		return backend.Errorf(op, p, syscall.EPERM, "refusing to delete the root")
	}

	if !recursive {
		if err := os.Remove(host); err != nil {
			return backend.NewError(op, p, err)
		}
		return nil
	}

	// RemoveAll succeeds on missing paths; deleting nothing is ENOENT here.
	if _, err := os.Lstat(host); err != nil {
		return backend.NewError(op, p, err)
	}
	if err := os.RemoveAll(host); err != nil {
		return backend.NewError(op, p, err)
	}
	return nil
}

// Mkdir implements backend.Session.
func (s *session) Mkdir(ctx context.Context, p string) error {
	const op = "mkdir"
	p, host, err := s.resolve(op, p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(host, dirPerm); err != nil {
		return backend.NewError(op, p, err)
	}
	return nil
}

// Utime implements backend.Session. A zero time leaves that field unchanged.
func (s *session) Utime(ctx context.Context, p string, mtime, atime time.Time) error {
	const op = "utime"
	p, host, err := s.resolve(op, p)
	if err != nil {
		return err
	}
	if err := os.Chtimes(host, atime, mtime); err != nil {
		return backend.NewError(op, p, err)
	}
	return nil
}

// Chmod implements backend.Session.
func (s *session) Chmod(ctx context.Context, p string, perm fs.FileMode) error {
	const op = "chmod"
	p, host, err := s.resolve(op, p)
	if err != nil {
		return err
	}
	if err := os.Chmod(host, perm.Perm()); err != nil {
		return backend.NewError(op, p, err)
	}
	return nil
}

// Chown implements backend.Session. Owner and group are names or numeric
// IDs; empty leaves that field unchanged.
func (s *session) Chown(ctx context.Context, p, owner, group string) error {
	const op = "chown"
	p, host, err := s.resolve(op, p)
	if err != nil {
		return err
	}

	uid, err := lookupID(owner, func(name string) (string, error) {
		u, err := user.Lookup(name)
		if err != nil {
			return "", err
		}
		return u.Uid, nil
	})
	if err != nil {
		return backend.Errorf(op, p, syscall.EINVAL, "unknown owner %q: %v", owner, err)
	}
	gid, err := lookupID(group, func(name string) (string, error) {
		g, err := user.LookupGroup(name)
		if err != nil {
			return "", err
		}
		return g.Gid, nil
	})
	if err != nil {
		return backend.Errorf(op, p, syscall.EINVAL, "unknown group %q: %v", group, err)
	}

	if err := os.Chown(host, uid, gid); err != nil {
		return backend.NewError(op, p, err)
	}
	return nil
}

// lookupID resolves a user or group name to its numeric ID. Empty maps to
// -1, which os.Chown treats as unchanged.
func lookupID(name string, lookup func(string) (string, error)) (int, error) {
	if name == "" {
		return -1, nil
	}
	if id, err := strconv.Atoi(name); err == nil {
		return id, nil
	}
	raw, err := lookup(name)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(raw)
}

// SetReplication implements backend.Session. Local files have exactly one
// replica, so the call only checks that p exists.
func (s *session) SetReplication(ctx context.Context, p string, replication int16) error {
	const op = "setrep"
	p, host, err := s.resolve(op, p)
	if err != nil {
		return err
	}
	if replication <= 0 {
		return backend.Errorf(op, p, syscall.EINVAL, "replication must be positive, got %d", replication)
	}
	if _, err := os.Stat(host); err != nil {
		return backend.NewError(op, p, err)
	}
	return nil
}

// Truncate implements backend.Session.
func (s *session) Truncate(ctx context.Context, p string, size int64) error {
	const op = "truncate"
	p, host, err := s.resolve(op, p)
	if err != nil {
		return err
	}
	if err := os.Truncate(host, size); err != nil {
		return backend.NewError(op, p, err)
	}
	return nil
}

// StatFs implements backend.Session for the filesystem holding the root.
func (s *session) StatFs(ctx context.Context) (backend.FsStats, error) {
	const op = "statfs"
	_, host, err := s.resolve(op, "/")
	if err != nil {
		return backend.FsStats{}, err
	}

	st, err := statFs(host)
	if err != nil {
		return backend.FsStats{}, backend.NewError(op, "/", err)
	}
	return st, nil
}

// GetWorkingDirectory implements backend.Session.
func (s *session) GetWorkingDirectory() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwd
}

// SetWorkingDirectory implements backend.Session.
func (s *session) SetWorkingDirectory(p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return backend.ErrnoError("chdir", p, syscall.ENOTCONN)
	}
	s.cwd = backend.ResolvePath(s.cwd, p)
	return nil
}

// Disconnect implements backend.Session. Open files stay usable until closed.
func (s *session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return backend.ErrnoError("disconnect", "", syscall.ENOTCONN)
	}
	s.closed = true
	return nil
}
