package cluster

import (
	"context"
	"io/fs"
	"path"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/godfs/internal/logger"
	"github.com/marmos91/godfs/pkg/backend"
	"github.com/marmos91/godfs/pkg/content"
	"github.com/marmos91/godfs/pkg/metadata"
)

// session is one client connection to the cluster.
type session struct {
	b    *Backend
	user string

	mu     sync.Mutex
	cwd    string
	closed bool
}

// resolve checks the session is live and makes p absolute.
func (s *session) resolve(op, p string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", backend.ErrnoError(op, p, syscall.ENOTCONN)
	}
	return backend.ResolvePath(s.cwd, p), nil
}

func toFileInfo(e *metadata.Entry) *backend.FileInfo {
	fi := &backend.FileInfo{
		Path:        e.Path,
		Name:        path.Base(e.Path),
		Size:        e.Size,
		ModTime:     e.ModTime,
		AccessTime:  e.AccessTime,
		Replication: e.Replication,
		BlockSize:   e.BlockSize,
		Owner:       e.Owner,
		Group:       e.Group,
		Permissions: fs.FileMode(e.Mode).Perm(),
	}
	if e.IsDir() {
		fi.Kind = backend.KindDirectory
		fi.Permissions |= fs.ModeDir
	}
	return fi
}

// OpenFile implements backend.Session.
func (s *session) OpenFile(ctx context.Context, p string, flags backend.OpenFlags) (backend.File, error) {
	const op = "open"
	p, err := s.resolve(op, p)
	if err != nil {
		return nil, err
	}

	bufSize := flags.BufferSize
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	if !flags.Write {
		entry, err := s.b.meta.Get(ctx, p)
		if err != nil {
			return nil, backend.NewError(op, p, err)
		}
		if entry.IsDir() {
			return nil, backend.Errorf(op, p, syscall.EISDIR, "cannot open a directory")
		}
		f := &file{s: s, path: p, id: entry.ContentID}
		s.b.handles.add(f)
		return f, nil
	}

	return s.create(ctx, p, flags, int(bufSize))
}

// create replaces p with a fresh, empty file and returns a write handle.
// Missing parent directories are created, as HDFS does.
func (s *session) create(ctx context.Context, p string, flags backend.OpenFlags, bufSize int) (backend.File, error) {
	const op = "create"

	if p == "/" {
		return nil, backend.Errorf(op, p, syscall.EISDIR, "cannot open a directory")
	}
	if flags.Replication < 0 || flags.BlockSize < 0 {
		return nil, backend.Errorf(op, p, syscall.EINVAL, "replication and block size must not be negative")
	}

	replication := flags.Replication
	if replication == 0 {
		replication = s.b.cfg.DefaultReplication
	}
	blockSize := flags.BlockSize
	if blockSize == 0 {
		blockSize = s.b.cfg.DefaultBlockSize
	}

	if err := s.b.meta.MkdirAll(ctx, metadata.Parent(p), s.dirTemplate()); err != nil {
		return nil, backend.NewError(op, p, err)
	}

	// The entry goes in before any content exists, so garbage collection
	// never sees the new content unreferenced.
	id := metadata.ContentID(uuid.NewString())
	now := time.Now()
	previous, err := s.b.meta.Create(ctx, &metadata.Entry{
		Path:        p,
		Kind:        metadata.KindFile,
		Mode:        0644,
		Owner:       s.user,
		Group:       DefaultGroup,
		ModTime:     now,
		AccessTime:  now,
		Replication: replication,
		BlockSize:   blockSize,
		ContentID:   id,
	}, true)
	if err != nil {
		return nil, backend.NewError(op, p, err)
	}
	if previous != nil {
		s.b.freeContent(ctx, previous.ContentID)
	}

	f := &file{
		s:        s,
		path:     p,
		id:       id,
		writable: true,
		buf:      make([]byte, 0, bufSize),
	}
	s.b.handles.add(f)

	if err := s.b.data.WriteAt(ctx, id, nil, 0); err != nil {
		s.b.handles.remove(f)
		if _, rmErr := s.b.meta.Remove(ctx, p, false); rmErr != nil {
			logger.WarnCtx(ctx, "cluster: failed to remove %s after content error: %v", p, rmErr)
		}
		return nil, backend.NewError(op, p, err)
	}
	return f, nil
}

func (s *session) dirTemplate() metadata.Entry {
	return metadata.Entry{Owner: s.user, Group: DefaultGroup, Mode: 0755}
}

// GetPathInfo implements backend.Session.
func (s *session) GetPathInfo(ctx context.Context, p string) (*backend.FileInfo, error) {
	const op = "stat"
	p, err := s.resolve(op, p)
	if err != nil {
		return nil, err
	}

	entry, err := s.b.meta.Get(ctx, p)
	if err != nil {
		return nil, backend.NewError(op, p, err)
	}
	return toFileInfo(entry), nil
}

// ListDirectory implements backend.Session. Entries come back sorted by name.
func (s *session) ListDirectory(ctx context.Context, p string) ([]backend.FileInfo, error) {
	const op = "list"
	p, err := s.resolve(op, p)
	if err != nil {
		return nil, err
	}

	entries, err := s.b.meta.List(ctx, p)
	if err != nil {
		return nil, backend.NewError(op, p, err)
	}

	out := make([]backend.FileInfo, 0, len(entries))
	for i := range entries {
		out = append(out, *toFileInfo(&entries[i]))
	}
	return out, nil
}

// Exists implements backend.Session.
func (s *session) Exists(ctx context.Context, p string) (bool, error) {
	const op = "exists"
	p, err := s.resolve(op, p)
	if err != nil {
		return false, err
	}

	_, err = s.b.meta.Get(ctx, p)
	switch {
	case err == nil:
		return true, nil
	case metadata.IsCode(err, metadata.ErrNotFound):
		return false, nil
	default:
		return false, backend.NewError(op, p, err)
	}
}

// Rename implements backend.Session. The destination must not exist.
func (s *session) Rename(ctx context.Context, oldPath, newPath string) error {
	const op = "rename"
	oldPath, err := s.resolve(op, oldPath)
	if err != nil {
		return err
	}
	newPath, err = s.resolve(op, newPath)
	if err != nil {
		return err
	}

	err = s.b.handles.rename(oldPath, newPath, func() error {
		return s.b.meta.Rename(ctx, oldPath, newPath)
	})
	if err != nil {
		return backend.NewError(op, oldPath, err)
	}
	return nil
}

// Delete implements backend.Session, freeing the content of every removed file.
func (s *session) Delete(ctx context.Context, p string, recursive bool) error {
	const op = "delete"
	p, err := s.resolve(op, p)
	if err != nil {
		return err
	}

	freed, err := s.b.meta.Remove(ctx, p, recursive)
	if err != nil {
		return backend.NewError(op, p, err)
	}
	s.b.freeContent(ctx, freed...)
	return nil
}

// Mkdir implements backend.Session.
func (s *session) Mkdir(ctx context.Context, p string) error {
	const op = "mkdir"
	p, err := s.resolve(op, p)
	if err != nil {
		return err
	}

	if err := s.b.meta.MkdirAll(ctx, p, s.dirTemplate()); err != nil {
		return backend.NewError(op, p, err)
	}
	return nil
}

// update applies fn to the entry at p and stores the result.
func (s *session) update(ctx context.Context, op, p string, fn func(e *metadata.Entry) error) error {
	p, err := s.resolve(op, p)
	if err != nil {
		return err
	}

	entry, err := s.b.meta.Get(ctx, p)
	if err != nil {
		return backend.NewError(op, p, err)
	}
	if err := fn(entry); err != nil {
		return backend.NewError(op, p, err)
	}
	if err := s.b.meta.Update(ctx, entry); err != nil {
		return backend.NewError(op, p, err)
	}
	return nil
}

// Utime implements backend.Session. A zero time leaves that field unchanged.
func (s *session) Utime(ctx context.Context, p string, mtime, atime time.Time) error {
	return s.update(ctx, "utime", p, func(e *metadata.Entry) error {
		if !mtime.IsZero() {
			e.ModTime = mtime
		}
		if !atime.IsZero() {
			e.AccessTime = atime
		}
		return nil
	})
}

// Chmod implements backend.Session.
func (s *session) Chmod(ctx context.Context, p string, perm fs.FileMode) error {
	return s.update(ctx, "chmod", p, func(e *metadata.Entry) error {
		e.Mode = uint32(perm.Perm())
		return nil
	})
}

// Chown implements backend.Session. Empty owner or group leaves it unchanged.
func (s *session) Chown(ctx context.Context, p, owner, group string) error {
	return s.update(ctx, "chown", p, func(e *metadata.Entry) error {
		if owner != "" {
			e.Owner = owner
		}
		if group != "" {
			e.Group = group
		}
		return nil
	})
}

// SetReplication implements backend.Session. Only files carry a replication
// factor.
func (s *session) SetReplication(ctx context.Context, p string, replication int16) error {
	const op = "setrep"
	return s.update(ctx, op, p, func(e *metadata.Entry) error {
		if e.IsDir() {
			return backend.ErrnoError(op, e.Path, syscall.EISDIR)
		}
		if replication <= 0 {
			return backend.Errorf(op, e.Path, syscall.EINVAL, "replication must be positive, got %d", replication)
		}
		e.Replication = replication
		return nil
	})
}

// Truncate implements backend.Session. Files can only shrink.
func (s *session) Truncate(ctx context.Context, p string, size int64) error {
	const op = "truncate"
	return s.update(ctx, op, p, func(e *metadata.Entry) error {
		if e.IsDir() {
			return backend.ErrnoError(op, e.Path, syscall.EISDIR)
		}
		if size < 0 || size > e.Size {
			return backend.Errorf(op, e.Path, syscall.EINVAL, "cannot truncate %d byte file to %d", e.Size, size)
		}
		if e.ContentID != "" {
			if err := s.b.data.Truncate(ctx, e.ContentID, size); err != nil {
				return err
			}
		}
		e.Size = size
		e.ModTime = time.Now()
		return nil
	})
}

// StatFs implements backend.Session from the content store's figures.
func (s *session) StatFs(ctx context.Context) (backend.FsStats, error) {
	const op = "statfs"
	if _, err := s.resolve(op, "/"); err != nil {
		return backend.FsStats{}, err
	}

	stats, err := s.b.data.Stats(ctx)
	if err != nil {
		return backend.FsStats{}, backend.NewError(op, "", err)
	}
	return backend.FsStats{
		Capacity:  stats.TotalSize,
		Used:      stats.UsedSize,
		Remaining: stats.AvailableSize,
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
	s.b.release()

	logger.DebugCtx(ctx, "cluster: session closed for %s", s.user)
	return nil
}

// flushContent makes buffered writes to id durable when the store buffers.
func (s *session) flushContent(ctx context.Context, id metadata.ContentID) error {
	if f, ok := s.b.data.(content.Flusher); ok {
		return f.FlushWrites(ctx, id)
	}
	return nil
}
