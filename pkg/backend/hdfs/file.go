package hdfs

import (
	"context"
	"errors"
	"io"
	"syscall"

	gohdfs "github.com/colinmarc/hdfs/v2"
	"github.com/marmos91/godfs/pkg/backend"
)

// file is an open HDFS stream: exactly one of r and w is set.
//
// Every method holds the session lock, which also guards the file's own
// state.
type file struct {
	s    *session
	path string

	r *gohdfs.FileReader
	w *gohdfs.FileWriter

	written int64
	closed  bool
}

func (f *file) Path() string   { return f.path }
func (f *file) Writable() bool { return f.w != nil }

// acquire locks the session and checks the handle is usable in the given
// direction. On success the caller must unlock f.s.mu.
func (f *file) acquire(op string, wantWritable bool) error {
	f.s.mu.Lock()
	switch {
	case f.s.closed:
		f.s.mu.Unlock()
		return backend.ErrnoError(op, f.path, syscall.ENOTCONN)
	case f.closed, f.Writable() != wantWritable:
		f.s.mu.Unlock()
		return backend.ErrnoError(op, f.path, syscall.EBADF)
	}
	return nil
}

func (f *file) Read(ctx context.Context, p []byte) (int, error) {
	if err := f.acquire("read", false); err != nil {
		return 0, err
	}
	defer f.s.mu.Unlock()

	n, err := f.r.Read(p)
	if err != nil && err != io.EOF {
		return n, backend.NewError("read", f.path, err)
	}
	return n, err
}

func (f *file) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := f.acquire("pread", false); err != nil {
		return 0, err
	}
	defer f.s.mu.Unlock()

	if off < 0 {
		return 0, backend.Errorf("pread", f.path, syscall.EINVAL, "negative offset %d", off)
	}
	if off >= f.r.Stat().Size() {
		return 0, io.EOF
	}

	n, err := f.r.ReadAt(p, off)
	if errors.Is(err, io.EOF) {
		if n > 0 {
			return n, nil
		}
		return 0, io.EOF
	}
	if err != nil {
		return n, backend.NewError("pread", f.path, err)
	}
	return n, nil
}

func (f *file) Write(ctx context.Context, p []byte) (int, error) {
	if err := f.acquire("write", true); err != nil {
		return 0, err
	}
	defer f.s.mu.Unlock()

	n, err := f.w.Write(p)
	f.written += int64(n)
	if err != nil {
		return n, backend.NewError("write", f.path, err)
	}
	return n, nil
}

// Flush makes written data visible to new readers (hflush). Flushing a
// read handle is a no-op.
func (f *file) Flush(ctx context.Context) error {
	if err := f.acquire("flush", f.Writable()); err != nil {
		return err
	}
	defer f.s.mu.Unlock()

	if f.w == nil {
		return nil
	}
	if err := f.w.Flush(); err != nil {
		return backend.NewError("flush", f.path, err)
	}
	return nil
}

func (f *file) Seek(ctx context.Context, off int64) error {
	if err := f.acquire("seek", false); err != nil {
		return err
	}
	defer f.s.mu.Unlock()

	size := f.r.Stat().Size()
	if off < 0 || off > size {
		return backend.Errorf("seek", f.path, syscall.EINVAL, "offset %d outside file of %d bytes", off, size)
	}
	if _, err := f.r.Seek(off, io.SeekStart); err != nil {
		return backend.NewError("seek", f.path, err)
	}
	return nil
}

// Tell returns the read cursor, or the bytes written so far.
func (f *file) Tell(ctx context.Context) (int64, error) {
	if err := f.acquire("tell", f.Writable()); err != nil {
		return 0, err
	}
	defer f.s.mu.Unlock()

	if f.w != nil {
		return f.written, nil
	}
	pos, err := f.r.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, backend.NewError("tell", f.path, err)
	}
	return pos, nil
}

func (f *file) Available(ctx context.Context) (int64, error) {
	if err := f.acquire("available", false); err != nil {
		return 0, err
	}
	defer f.s.mu.Unlock()

	pos, err := f.r.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, backend.NewError("available", f.path, err)
	}
	return max(f.r.Stat().Size()-pos, 0), nil
}

// Close completes the file on the namenode. For writers this can fail with
// ErrReplicating when the last block is not yet sufficiently replicated;
// the data may then be incomplete.
func (f *file) Close(ctx context.Context) error {
	if err := f.acquire("close", f.Writable()); err != nil {
		return err
	}
	defer f.s.mu.Unlock()
	f.closed = true

	var err error
	if f.w != nil {
		err = f.w.Close()
	} else {
		err = f.r.Close()
	}
	if err != nil {
		return backend.NewError("close", f.path, err)
	}
	return nil
}
