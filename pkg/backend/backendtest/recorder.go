// Package backendtest provides test helpers for code built on
// backend.Backend: a Recorder that counts calls and open resources, and a
// conformance suite every Backend implementation should pass.
package backendtest

import (
	"context"
	"io"
	"io/fs"
	"sync"
	"time"

	"github.com/marmos91/godfs/pkg/backend"
)

// Recorder wraps a Backend and keeps track of every call made through it,
// along with the sessions and files currently open.
//
// Hooks run before the wrapped call and may fail it by returning an error,
// which is returned to the caller without reaching the inner backend.
type Recorder struct {
	inner backend.Backend

	mu           sync.Mutex
	calls        map[string]int
	openSessions int
	openFiles    int

	// BeforeConnect, when set, runs before every Connect.
	BeforeConnect func(params backend.ConnectParams) error

	// BeforeOpen, when set, runs before every OpenFile.
	BeforeOpen func(path string, flags backend.OpenFlags) error
}

// NewRecorder wraps inner.
func NewRecorder(inner backend.Backend) *Recorder {
	return &Recorder{inner: inner, calls: make(map[string]int)}
}

// Calls returns how many times the named method was invoked, e.g.
// "Connect", "OpenFile", "Read", "Disconnect".
func (r *Recorder) Calls(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

// OpenSessions returns sessions connected and not yet disconnected.
func (r *Recorder) OpenSessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openSessions
}

// OpenFiles returns files opened and not yet closed.
func (r *Recorder) OpenFiles() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openFiles
}

// TotalCalls returns the number of calls across all methods.
func (r *Recorder) TotalCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, n := range r.calls {
		total += n
	}
	return total
}

func (r *Recorder) record(method string) {
	r.mu.Lock()
	r.calls[method]++
	r.mu.Unlock()
}

func (r *Recorder) adjust(sessions, files int) {
	r.mu.Lock()
	r.openSessions += sessions
	r.openFiles += files
	r.mu.Unlock()
}

// Name implements backend.Backend.
func (r *Recorder) Name() string {
	return r.inner.Name()
}

// Connect implements backend.Backend.
func (r *Recorder) Connect(ctx context.Context, params backend.ConnectParams) (backend.Session, error) {
	r.record("Connect")
	if r.BeforeConnect != nil {
		if err := r.BeforeConnect(params); err != nil {
			return nil, err
		}
	}

	s, err := r.inner.Connect(ctx, params)
	if err != nil {
		return nil, err
	}
	r.adjust(1, 0)

	rs := &recordedSession{r: r, inner: s}
	if aw, ok := s.(backend.AtomicWriter); ok {
		return &atomicSession{recordedSession: rs, aw: aw}, nil
	}
	return rs, nil
}

type recordedSession struct {
	r     *Recorder
	inner backend.Session

	once sync.Once
}

func (s *recordedSession) OpenFile(ctx context.Context, path string, flags backend.OpenFlags) (backend.File, error) {
	s.r.record("OpenFile")
	if s.r.BeforeOpen != nil {
		if err := s.r.BeforeOpen(path, flags); err != nil {
			return nil, err
		}
	}

	f, err := s.inner.OpenFile(ctx, path, flags)
	if err != nil {
		return nil, err
	}
	s.r.adjust(0, 1)
	return &recordedFile{r: s.r, inner: f}, nil
}

func (s *recordedSession) GetPathInfo(ctx context.Context, path string) (*backend.FileInfo, error) {
	s.r.record("GetPathInfo")
	return s.inner.GetPathInfo(ctx, path)
}

func (s *recordedSession) ListDirectory(ctx context.Context, path string) ([]backend.FileInfo, error) {
	s.r.record("ListDirectory")
	return s.inner.ListDirectory(ctx, path)
}

func (s *recordedSession) Exists(ctx context.Context, path string) (bool, error) {
	s.r.record("Exists")
	return s.inner.Exists(ctx, path)
}

func (s *recordedSession) Rename(ctx context.Context, oldPath, newPath string) error {
	s.r.record("Rename")
	return s.inner.Rename(ctx, oldPath, newPath)
}

func (s *recordedSession) Delete(ctx context.Context, path string, recursive bool) error {
	s.r.record("Delete")
	return s.inner.Delete(ctx, path, recursive)
}

func (s *recordedSession) Mkdir(ctx context.Context, path string) error {
	s.r.record("Mkdir")
	return s.inner.Mkdir(ctx, path)
}

func (s *recordedSession) Utime(ctx context.Context, path string, mtime, atime time.Time) error {
	s.r.record("Utime")
	return s.inner.Utime(ctx, path, mtime, atime)
}

func (s *recordedSession) Chmod(ctx context.Context, path string, perm fs.FileMode) error {
	s.r.record("Chmod")
	return s.inner.Chmod(ctx, path, perm)
}

func (s *recordedSession) Chown(ctx context.Context, path, owner, group string) error {
	s.r.record("Chown")
	return s.inner.Chown(ctx, path, owner, group)
}

func (s *recordedSession) SetReplication(ctx context.Context, path string, replication int16) error {
	s.r.record("SetReplication")
	return s.inner.SetReplication(ctx, path, replication)
}

func (s *recordedSession) Truncate(ctx context.Context, path string, size int64) error {
	s.r.record("Truncate")
	return s.inner.Truncate(ctx, path, size)
}

func (s *recordedSession) StatFs(ctx context.Context) (backend.FsStats, error) {
	s.r.record("StatFs")
	return s.inner.StatFs(ctx)
}

func (s *recordedSession) GetWorkingDirectory() string {
	s.r.record("GetWorkingDirectory")
	return s.inner.GetWorkingDirectory()
}

func (s *recordedSession) SetWorkingDirectory(path string) error {
	s.r.record("SetWorkingDirectory")
	return s.inner.SetWorkingDirectory(path)
}

// Disconnect forwards to the inner session. The session stops counting as
// open after its first Disconnect, even if that call fails.
func (s *recordedSession) Disconnect(ctx context.Context) error {
	s.r.record("Disconnect")
	s.once.Do(func() { s.r.adjust(-1, 0) })
	return s.inner.Disconnect(ctx)
}

// atomicSession is used when the inner session is a backend.AtomicWriter,
// so wrapping does not change which path Copy takes.
type atomicSession struct {
	*recordedSession
	aw backend.AtomicWriter
}

func (s *atomicSession) WriteFileAtomic(ctx context.Context, path string, r io.Reader) error {
	s.r.record("WriteFileAtomic")
	return s.aw.WriteFileAtomic(ctx, path, r)
}

type recordedFile struct {
	r     *Recorder
	inner backend.File

	once sync.Once
}

func (f *recordedFile) Read(ctx context.Context, p []byte) (int, error) {
	f.r.record("Read")
	return f.inner.Read(ctx, p)
}

func (f *recordedFile) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	f.r.record("ReadAt")
	return f.inner.ReadAt(ctx, p, off)
}

func (f *recordedFile) Write(ctx context.Context, p []byte) (int, error) {
	f.r.record("Write")
	return f.inner.Write(ctx, p)
}

func (f *recordedFile) Flush(ctx context.Context) error {
	f.r.record("Flush")
	return f.inner.Flush(ctx)
}

func (f *recordedFile) Seek(ctx context.Context, off int64) error {
	f.r.record("Seek")
	return f.inner.Seek(ctx, off)
}

func (f *recordedFile) Tell(ctx context.Context) (int64, error) {
	f.r.record("Tell")
	return f.inner.Tell(ctx)
}

func (f *recordedFile) Available(ctx context.Context) (int64, error) {
	f.r.record("Available")
	return f.inner.Available(ctx)
}

// Close forwards to the inner file. The file stops counting as open after
// its first Close, even if that call fails.
func (f *recordedFile) Close(ctx context.Context) error {
	f.r.record("Close")
	f.once.Do(func() { f.r.adjust(0, -1) })
	return f.inner.Close(ctx)
}

func (f *recordedFile) Path() string   { return f.inner.Path() }
func (f *recordedFile) Writable() bool { return f.inner.Writable() }
