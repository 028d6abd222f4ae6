package backend

import (
	"context"
	"errors"
	"io"
	"syscall"

	"github.com/marmos91/godfs/internal/logger"
	"github.com/marmos91/godfs/internal/ratelimiter"
)

// DefaultCopyBufferSize is the chunk size used when CopyOptions leaves it unset.
const DefaultCopyBufferSize = 64 * 1024

// ErrPartialCopy is joined into Copy errors raised after the destination
// was created, when bytes may have been left behind.
var ErrPartialCopy = errors.New("destination partially written")

// CopyOptions tune Copy.
type CopyOptions struct {
	// BufferSize is the chunk moved per read/write round trip.
	BufferSize int

	// Limiter caps the transfer rate. nil means unlimited.
	Limiter *ratelimiter.RateLimiter
}

// Copy streams the regular file srcPath on src to dstPath on dst, replacing
// any existing destination.
//
// Directories are refused with EISDIR. When dst implements AtomicWriter the
// destination only appears once the whole stream has been read; otherwise a
// failure may leave a partially written destination behind, which the caller
// is responsible for cleaning up. Such errors match ErrPartialCopy.
func Copy(ctx context.Context, src Session, srcPath string, dst Session, dstPath string, opts CopyOptions) error {
	const op = "copy"

	bufSize := opts.BufferSize
	if bufSize <= 0 {
		bufSize = DefaultCopyBufferSize
	}

	// ========================================================================
	// Step 1: Check the source is a regular file
	// ========================================================================

	info, err := src.GetPathInfo(ctx, srcPath)
	if err != nil {
		return NewError(op, srcPath, err)
	}
	if info.IsDir() {
		return Errorf(op, srcPath, syscall.EISDIR, "source is a directory")
	}

	// ========================================================================
	// Step 2: Open the source
	// ========================================================================

	in, err := src.OpenFile(ctx, srcPath, OpenFlags{BufferSize: int32(bufSize)})
	if err != nil {
		return NewError(op, srcPath, err)
	}
	defer func() {
		if cerr := in.Close(ctx); cerr != nil {
			logger.DebugCtx(ctx, "copy: closing source %s: %v", srcPath, cerr)
		}
	}()

	reader := opts.Limiter.Reader(ctx, NewReader(ctx, in))

	// ========================================================================
	// Step 3: Stream into the destination
	// ========================================================================

	if aw, ok := dst.(AtomicWriter); ok {
		if err := aw.WriteFileAtomic(ctx, dstPath, reader); err != nil {
			return NewError(op, dstPath, err)
		}
		logger.DebugCtx(ctx, "copy: %s -> %s (atomic, %d bytes)", srcPath, dstPath, info.Size)
		return nil
	}

	out, err := dst.OpenFile(ctx, dstPath, OpenFlags{Write: true, BufferSize: int32(bufSize)})
	if err != nil {
		return NewError(op, dstPath, err)
	}

	written, copyErr := copyBuffer(ctx, NewWriter(ctx, out), reader, make([]byte, bufSize))
	closeErr := out.Close(ctx)
	if copyErr != nil {
		return NewError(op, dstPath, errors.Join(ErrPartialCopy, copyErr, closeErr))
	}
	if closeErr != nil {
		return NewError(op, dstPath, errors.Join(ErrPartialCopy, closeErr))
	}

	logger.DebugCtx(ctx, "copy: %s -> %s (%d bytes)", srcPath, dstPath, written)
	return nil
}

// copyBuffer is io.CopyBuffer with a cancellation check per chunk.
// Short writes are retried until the chunk is fully accepted.
func copyBuffer(ctx context.Context, w io.Writer, r io.Reader, buf []byte) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, rerr := r.Read(buf)
		for off := 0; off < n; {
			m, werr := w.Write(buf[off:n])
			if werr != nil {
				return total, werr
			}
			if m == 0 {
				return total, io.ErrShortWrite
			}
			off += m
			total += int64(m)
		}

		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}

// NewReader adapts a File to io.Reader, binding ctx to every call.
func NewReader(ctx context.Context, f File) io.Reader {
	return &fileReader{ctx: ctx, f: f}
}

// NewWriter adapts a File to io.Writer, binding ctx to every call.
func NewWriter(ctx context.Context, f File) io.Writer {
	return &fileWriter{ctx: ctx, f: f}
}

type fileReader struct {
	ctx context.Context
	f   File
}

func (r *fileReader) Read(p []byte) (int, error) {
	return r.f.Read(r.ctx, p)
}

type fileWriter struct {
	ctx context.Context
	f   File
}

func (w *fileWriter) Write(p []byte) (int, error) {
	return w.f.Write(w.ctx, p)
}
