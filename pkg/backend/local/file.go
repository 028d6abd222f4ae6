package local

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"syscall"

	"github.com/marmos91/godfs/pkg/backend"
)

type file struct {
	path     string
	f        *os.File
	writable bool

	mu      sync.Mutex
	w       *bufio.Writer
	written int64
	closed  bool
}

func (f *file) Path() string   { return f.path }
func (f *file) Writable() bool { return f.writable }

func (f *file) check(op string, wantWritable bool) error {
	if f.closed || f.writable != wantWritable {
		return backend.ErrnoError(op, f.path, syscall.EBADF)
	}
	return nil
}

func (f *file) Read(ctx context.Context, p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check("read", false); err != nil {
		return 0, err
	}
	n, err := f.f.Read(p)
	if err != nil && err != io.EOF {
		return n, backend.NewError("read", f.path, err)
	}
	return n, err
}

// ReadAt reports io.EOF only when nothing could be read.
func (f *file) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check("pread", false); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, backend.Errorf("pread", f.path, syscall.EINVAL, "negative offset %d", off)
	}

	n, err := f.f.ReadAt(p, off)
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
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check("write", true); err != nil {
		return 0, err
	}
	n, err := f.w.Write(p)
	f.written += int64(n)
	if err != nil {
		return n, backend.NewError("write", f.path, err)
	}
	return n, nil
}

// Flush hands buffered bytes to the kernel. Flushing a read handle is a no-op.
func (f *file) Flush(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return backend.ErrnoError("flush", f.path, syscall.EBADF)
	}
	if !f.writable {
		return nil
	}
	if err := f.w.Flush(); err != nil {
		return backend.NewError("flush", f.path, err)
	}
	return nil
}

func (f *file) Seek(ctx context.Context, off int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check("seek", false); err != nil {
		return err
	}

	info, err := f.f.Stat()
	if err != nil {
		return backend.NewError("seek", f.path, err)
	}
	if off < 0 || off > info.Size() {
		return backend.Errorf("seek", f.path, syscall.EINVAL, "offset %d outside file of %d bytes", off, info.Size())
	}
	if _, err := f.f.Seek(off, io.SeekStart); err != nil {
		return backend.NewError("seek", f.path, err)
	}
	return nil
}

// Tell returns the read cursor, or the bytes accepted so far on a write
// handle.
func (f *file) Tell(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, backend.ErrnoError("tell", f.path, syscall.EBADF)
	}
	if f.writable {
		return f.written, nil
	}
	pos, err := f.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, backend.NewError("tell", f.path, err)
	}
	return pos, nil
}

func (f *file) Available(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check("available", false); err != nil {
		return 0, err
	}
	info, err := f.f.Stat()
	if err != nil {
		return 0, backend.NewError("available", f.path, err)
	}
	pos, err := f.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, backend.NewError("available", f.path, err)
	}
	return max(info.Size()-pos, 0), nil
}

// Close flushes a write handle and releases the descriptor. The handle is
// released even when the flush fails.
func (f *file) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return backend.ErrnoError("close", f.path, syscall.EBADF)
	}
	f.closed = true

	var flushErr error
	if f.writable {
		flushErr = f.w.Flush()
		f.w = nil
	}
	closeErr := f.f.Close()
	if err := errors.Join(flushErr, closeErr); err != nil {
		return backend.NewError("close", f.path, err)
	}
	return nil
}
