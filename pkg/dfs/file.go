package dfs

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"
	"github.com/marmos91/godfs/internal/logger"
	"github.com/marmos91/godfs/pkg/backend"
)

// Mode is the access mode of a File, fixed when it is opened.
type Mode uint8

const (
	// ModeRead opens an existing file for reading.
	ModeRead Mode = iota + 1
	// ModeWrite creates the file, or truncates it if it exists.
	ModeWrite
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "r"
	case ModeWrite:
		return "w"
	default:
		return "invalid"
	}
}

// ParseMode converts an open mode string. Only "r" and "w" are accepted;
// append ("a") is rejected explicitly rather than downgraded to write.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "r":
		return ModeRead, nil
	case "w":
		return ModeWrite, nil
	case "a":
		return 0, &UnsupportedModeError{Mode: s, Reason: "append is not supported"}
	default:
		return 0, &UnsupportedModeError{Mode: s, Reason: "unknown open mode"}
	}
}

// OpenOptions carry the per-file overrides. Zero means the backend default;
// other values are passed to the backend unchecked.
type OpenOptions struct {
	BufferSize  int32
	Replication int16
	BlockSize   int64
}

// OpenOption sets one field of OpenOptions.
type OpenOption func(*OpenOptions)

// WithBufferSize sets the backend I/O buffer size.
func WithBufferSize(n int32) OpenOption {
	return func(o *OpenOptions) { o.BufferSize = n }
}

// WithReplication sets the replication factor of a file being written.
func WithReplication(n int16) OpenOption {
	return func(o *OpenOptions) { o.Replication = n }
}

// WithBlockSize sets the block size of a file being written.
func WithBlockSize(n int64) OpenOption {
	return func(o *OpenOptions) { o.BlockSize = n }
}

// File is an open file on a Conn. It is valid until Close, or until its
// Conn is disconnected. The zero value is not usable.
type File struct {
	tag  handleTag
	id   uuid.UUID
	conn *Conn
	path string
	mode Mode
	opts OpenOptions

	// guarded by conn.mu
	f      backend.File
	closed bool
}

// Open opens path on c. mode is "r" for reading or "w" to create or
// truncate. Any other mode fails with *UnsupportedModeError before the
// backend is contacted. A backend failure is returned as *OpenError.
func (c *Conn) Open(ctx context.Context, path, mode string, opts ...OpenOption) (*File, error) {
	const op = "open"

	m, err := ParseMode(mode)
	if err != nil {
		return nil, err
	}
	var o OpenOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := c.lock(op); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()

	var bf backend.File
	err = c.observe(op, func() error {
		var err error
		bf, err = c.session.OpenFile(ctx, path, backend.OpenFlags{
			Write:       m == ModeWrite,
			BufferSize:  o.BufferSize,
			Replication: o.Replication,
			BlockSize:   o.BlockSize,
		})
		return err
	})
	if err != nil {
		return nil, &OpenError{newOpError(op, path, err)}
	}

	f := &File{
		tag:  fileTag,
		id:   uuid.New(),
		conn: c,
		path: path,
		mode: m,
		opts: o,
		f:    bf,
	}
	c.files[f] = struct{}{}
	c.client.metrics.HandleOpened(m.String())
	logger.DebugCtx(ctx, "dfs: %s opened %s (%s) as %s", c.id, path, m, f.id)
	return f, nil
}

// Path returns the path passed to Open.
func (f *File) Path() string { return f.path }

// Mode returns the access mode.
func (f *File) Mode() Mode { return f.mode }

// Options returns the overrides the file was opened with.
func (f *File) Options() OpenOptions { return f.opts }

// Conn returns the connection the file was opened on.
func (f *File) Conn() *Conn { return f.conn }

func (f *File) valid() bool {
	return f != nil && f.tag == fileTag && f.conn.valid()
}

// lock validates f and acquires its connection. On success the caller must
// call f.conn.mu.Unlock.
func (f *File) lock(op string) error {
	if !f.valid() {
		return &InvalidHandleError{Op: op, Handle: "file", Reason: "not created by Open"}
	}
	f.conn.mu.Lock()
	switch {
	case f.conn.released:
		f.conn.mu.Unlock()
		return &InvalidHandleError{Op: op, Handle: "file", Reason: "connection released"}
	case f.closed:
		f.conn.mu.Unlock()
		return &InvalidHandleError{Op: op, Handle: "file", Reason: "file closed"}
	}
	return nil
}

// do runs fn against the backend file under the connection lock. Handle
// errors are returned as they are; backend errors are converted by wrap.
func (f *File) do(op string, wrap func(opError) error, fn func(bf backend.File) error) error {
	if err := f.lock(op); err != nil {
		return err
	}
	defer f.conn.mu.Unlock()

	if err := f.conn.observe(op, func() error { return fn(f.f) }); err != nil {
		return wrap(newOpError(op, f.path, err))
	}
	return nil
}

func readError(e opError) error  { return &ReadError{e} }
func writeError(e opError) error { return &WriteError{e} }
func flushError(e opError) error { return &FlushError{e} }
func seekError(e opError) error  { return &SeekError{e} }
func metaError(e opError) error  { return &OpError{e} }

func clampReadSize(n int) int {
	if n <= 0 || n > MaxReadSize {
		return MaxReadSize
	}
	return n
}

// Read reads up to maxSize bytes from the current position. maxSize <= 0 or
// above MaxReadSize is treated as MaxReadSize. At end of file Read returns
// an empty slice and a nil error. Backend failures are *ReadErrors.
func (f *File) Read(ctx context.Context, maxSize int) ([]byte, error) {
	buf := make([]byte, clampReadSize(maxSize))
	var n int
	err := f.do("read", readError, func(bf backend.File) error {
		var err error
		n, err = bf.Read(ctx, buf)
		return ignoreEOF(err)
	})
	return f.readResult(buf, n, err)
}

// Pread reads up to maxSize bytes at offset without moving the file
// position. Size clamping and end of file behave as in Read.
func (f *File) Pread(ctx context.Context, offset Offset, maxSize int) ([]byte, error) {
	buf := make([]byte, clampReadSize(maxSize))
	var n int
	err := f.do("pread", readError, func(bf backend.File) error {
		var err error
		n, err = bf.ReadAt(ctx, buf, offset)
		return ignoreEOF(err)
	})
	return f.readResult(buf, n, err)
}

func ignoreEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (f *File) readResult(buf []byte, n int, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	f.conn.client.metrics.RecordBytes("read", int64(n))
	return buf[:n], nil
}

// Write writes p and returns the number of bytes the backend accepted,
// which may be less than len(p). Bytes accepted before a failure are not
// rolled back. Backend failures are *WriteErrors.
func (f *File) Write(ctx context.Context, p []byte) (int, error) {
	const op = "write"
	var n int
	err := f.do(op, writeError, func(bf backend.File) error {
		var err error
		n, err = bf.Write(ctx, p)
		if n > 0 {
			f.conn.client.metrics.RecordBytes("write", int64(n))
		}
		return err
	})
	return n, err
}

// Flush pushes buffered writes to the backend. Flushing a read handle is a
// no-op. Backend failures are *FlushErrors.
func (f *File) Flush(ctx context.Context) error {
	const op = "flush"
	return f.do(op, flushError, func(bf backend.File) error { return bf.Flush(ctx) })
}

// Seek moves the read position to the absolute offset. Seeking is defined
// for read handles; on write handles the backend decides, and the shipped
// backends refuse with EBADF. Failures are *SeekErrors.
func (f *File) Seek(ctx context.Context, offset Offset) error {
	const op = "seek"
	return f.do(op, seekError, func(bf backend.File) error { return bf.Seek(ctx, offset) })
}

// Tell returns the current position, or -1 if it cannot be determined.
// Use Position to learn why.
func (f *File) Tell(ctx context.Context) Offset {
	pos, err := f.Position(ctx)
	if err != nil {
		return -1
	}
	return pos
}

// Position returns the current position: the read cursor for read handles,
// the bytes written so far for write handles.
func (f *File) Position(ctx context.Context) (Offset, error) {
	const op = "tell"
	var pos int64
	err := f.do(op, seekError, func(bf backend.File) error {
		var err error
		pos, err = bf.Tell(ctx)
		return err
	})
	if err != nil {
		return -1, err
	}
	return pos, nil
}

// Available returns the bytes left between the read position and the end
// of the file.
func (f *File) Available(ctx context.Context) (int64, error) {
	const op = "available"
	var n int64
	err := f.do(op, metaError, func(bf backend.File) error {
		var err error
		n, err = bf.Available(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Close releases the file. For write handles it completes the file on the
// backend; a *CloseError then means the data may not be persisted. f is
// released even when Close fails.
func (f *File) Close(ctx context.Context) error {
	if err := f.lock("close"); err != nil {
		return err
	}
	defer f.conn.mu.Unlock()
	return f.closeLocked(ctx)
}

// closeLocked closes f with f.conn.mu held.
func (f *File) closeLocked(ctx context.Context) error {
	const op = "close"
	f.closed = true
	delete(f.conn.files, f)
	f.conn.client.metrics.HandleClosed(f.mode.String())

	err := f.conn.observe(op, func() error { return f.f.Close(ctx) })
	if err != nil {
		logger.WarnCtx(ctx, "dfs: close %s failed: %v", f.path, err)
		return &CloseError{newOpError(op, f.path, err)}
	}
	return nil
}
