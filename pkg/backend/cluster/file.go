package cluster

import (
	"context"
	"errors"
	"io"
	"sync"
	"syscall"
	"time"

	"github.com/marmos91/godfs/pkg/backend"
	"github.com/marmos91/godfs/pkg/content"
	"github.com/marmos91/godfs/pkg/metadata"
)

// file is an open cluster file.
//
// Read handles track a cursor over the content. Write handles append into
// buf and spill it to the content store whenever it fills; the namespace
// learns the new size on Flush and Close.
type file struct {
	s        *session
	path     string
	id       metadata.ContentID
	writable bool

	mu      sync.Mutex
	pos     int64 // read cursor, or bytes handed to the content store
	buf     []byte
	pending int64 // bytes accepted by Write, including buf
	closed  bool
}

func (f *file) Path() string   { return f.path }
func (f *file) Writable() bool { return f.writable }

func (f *file) check(op string, wantWritable bool) error {
	if f.closed {
		return backend.ErrnoError(op, f.path, syscall.EBADF)
	}
	if f.writable != wantWritable {
		return backend.ErrnoError(op, f.path, syscall.EBADF)
	}
	return nil
}

// readAt reads from content, treating a file with no content as empty.
func (f *file) readAt(ctx context.Context, p []byte, off int64) (int, error) {
	if f.id == "" {
		return 0, io.EOF
	}
	n, err := f.s.b.data.ReadAt(ctx, f.id, p, off)
	if errors.Is(err, io.EOF) {
		if n > 0 {
			return n, nil
		}
		return 0, io.EOF
	}
	if err != nil {
		return n, backend.NewError("read", f.path, err)
	}
	return n, nil
}

// Read implements backend.File.
func (f *file) Read(ctx context.Context, p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check("read", false); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}

	n, err := f.readAt(ctx, p, f.pos)
	f.pos += int64(n)
	return n, err
}

// ReadAt implements backend.File. The cursor does not move.
func (f *file) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check("pread", false); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, backend.Errorf("pread", f.path, syscall.EINVAL, "negative offset %d", off)
	}
	if len(p) == 0 {
		return 0, nil
	}
	return f.readAt(ctx, p, off)
}

// Write implements backend.File. Data is buffered until the buffer fills.
func (f *file) Write(ctx context.Context, p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check("write", true); err != nil {
		return 0, err
	}

	written := 0
	for len(p) > 0 {
		room := cap(f.buf) - len(f.buf)
		if room == 0 {
			if err := f.spill(ctx); err != nil {
				return written, err
			}
			continue
		}
		n := min(room, len(p))
		f.buf = append(f.buf, p[:n]...)
		p = p[n:]
		written += n
		f.pending += int64(n)
	}
	return written, nil
}

// spill hands buf to the content store.
func (f *file) spill(ctx context.Context) error {
	if len(f.buf) == 0 {
		return nil
	}
	if err := f.s.b.data.WriteAt(ctx, f.id, f.buf, f.pos); err != nil {
		return backend.NewError("write", f.path, err)
	}
	f.pos += int64(len(f.buf))
	f.buf = f.buf[:0]
	return nil
}

// commit spills, flushes the store and publishes size and mtime on the
// entry the handle was opened on, wherever it has been renamed to.
func (f *file) commit(ctx context.Context, op string) error {
	if err := f.spill(ctx); err != nil {
		return backend.NewError(op, f.path, err)
	}
	if err := f.s.flushContent(ctx, f.id); err != nil {
		return backend.NewError(op, f.path, err)
	}

	return f.s.b.handles.withPath(f, func(p string) error {
		entry, err := f.s.b.meta.Get(ctx, p)
		if err != nil && !metadata.IsCode(err, metadata.ErrNotFound) {
			return backend.NewError(op, f.path, err)
		}
		if entry == nil || entry.ContentID != f.id {
			// Whoever removed or replaced the entry freed our content.
			return backend.Errorf(op, f.path, syscall.ESTALE, "file was replaced or removed while open for writing")
		}

		entry.Size = f.pos
		entry.ModTime = time.Now()
		if err := f.s.b.meta.Update(ctx, entry); err != nil {
			return backend.NewError(op, f.path, err)
		}
		return nil
	})
}

// Flush implements backend.File. Flushing a read handle is a no-op.
func (f *file) Flush(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return backend.ErrnoError("flush", f.path, syscall.EBADF)
	}
	if !f.writable {
		return nil
	}
	return f.commit(ctx, "flush")
}

// Seek implements backend.File. Write handles cannot seek.
func (f *file) Seek(ctx context.Context, off int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check("seek", false); err != nil {
		return err
	}

	size, err := f.size(ctx)
	if err != nil {
		return backend.NewError("seek", f.path, err)
	}
	if off < 0 || off > size {
		return backend.Errorf("seek", f.path, syscall.EINVAL, "offset %d outside file of %d bytes", off, size)
	}
	f.pos = off
	return nil
}

func (f *file) size(ctx context.Context) (int64, error) {
	if f.id == "" {
		return 0, nil
	}
	size, err := f.s.b.data.Size(ctx, f.id)
	if errors.Is(err, content.ErrContentNotFound) {
		return 0, nil
	}
	return size, err
}

// Tell implements backend.File.
func (f *file) Tell(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, backend.ErrnoError("tell", f.path, syscall.EBADF)
	}
	if f.writable {
		return f.pending, nil
	}
	return f.pos, nil
}

// Available implements backend.File.
func (f *file) Available(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check("available", false); err != nil {
		return 0, err
	}
	size, err := f.size(ctx)
	if err != nil {
		return 0, backend.NewError("available", f.path, err)
	}
	return max(size-f.pos, 0), nil
}

// Close implements backend.File. Write handles commit before closing; the
// handle is released even when the commit fails.
func (f *file) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return backend.ErrnoError("close", f.path, syscall.EBADF)
	}
	f.closed = true

	var err error
	if f.writable {
		err = f.commit(ctx, "close")
		f.buf = nil
	}
	if id, ok := f.s.b.handles.remove(f); ok {
		f.s.b.deleteContent(ctx, id)
	}
	return err
}
