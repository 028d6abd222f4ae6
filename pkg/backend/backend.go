// Package backend defines the contract every remote filesystem client must
// satisfy to be driven by the dfs facade.
//
// A Backend knows how to reach one kind of filesystem (HDFS, the local disk,
// an in-process cluster) and hands out Sessions. A Session is a live
// connection to one filesystem instance and produces Files. All three layers
// report failures as *Error values carrying an errno, so callers can react to
// ENOENT or EACCES without knowing which backend they are talking to.
//
// Backends perform all real I/O. The facade above them only marshals
// parameters, validates handles and translates errors.
package backend

import (
	"context"
	"io"
	"io/fs"
	"time"
)

// Port is a TCP port. Zero means "use the backend default".
type Port = uint16

// ConnectParams identify the filesystem instance a Session talks to.
type ConnectParams struct {
	// Host is the namenode host or address. Empty selects the local filesystem.
	Host string

	// Port is ignored by backends that have no notion of a port.
	Port Port

	// User is the identity to act as. Empty means the process user.
	User string
}

// Backend creates Sessions for one kind of filesystem.
type Backend interface {
	// Name is the scheme this backend serves (e.g. "hdfs", "file").
	Name() string

	// Connect opens a Session. Unreachable or unauthenticated targets fail
	// with an *Error wrapping the cause.
	Connect(ctx context.Context, params ConnectParams) (Session, error)
}

// OpenFlags control how OpenFile opens a path.
//
// Zero values for BufferSize, Replication and BlockSize select backend
// defaults. Non-zero values are forwarded unchanged.
type OpenFlags struct {
	// Write opens the file for writing, creating it or truncating it.
	// There is no append mode.
	Write bool

	BufferSize  int32
	Replication int16
	BlockSize   int64
}

// Kind distinguishes files from directories.
type Kind uint8

const (
	KindFile Kind = iota
	KindDirectory
)

func (k Kind) String() string {
	if k == KindDirectory {
		return "directory"
	}
	return "file"
}

// FileInfo describes one filesystem entry at the time it was queried.
type FileInfo struct {
	// Path is the absolute path of the entry inside the filesystem.
	Path string
	// Name is the last element of Path.
	Name string

	Kind        Kind
	Size        int64
	ModTime     time.Time
	AccessTime  time.Time
	Replication int16
	BlockSize   int64
	Owner       string
	Group       string
	Permissions fs.FileMode
}

// IsDir reports whether the entry is a directory.
func (fi *FileInfo) IsDir() bool {
	return fi.Kind == KindDirectory
}

// FsStats reports filesystem capacity in bytes.
type FsStats struct {
	Capacity  int64
	Used      int64
	Remaining int64
}

// Session is a connected filesystem instance.
//
// Relative paths passed to any method resolve against the working directory.
// Implementations may serialize calls internally; callers must not assume
// anything about concurrency beyond what the implementation documents.
type Session interface {
	// OpenFile opens path for reading or, with flags.Write, for writing.
	OpenFile(ctx context.Context, path string, flags OpenFlags) (File, error)

	// GetPathInfo stats a single path. A missing path yields an *Error with
	// Errno ENOENT, so errors.Is(err, fs.ErrNotExist) holds.
	GetPathInfo(ctx context.Context, path string) (*FileInfo, error)

	// ListDirectory returns the entries of a directory in backend order.
	ListDirectory(ctx context.Context, path string) ([]FileInfo, error)

	// Exists returns (false, nil) for a missing path and an error only when
	// the question could not be answered.
	Exists(ctx context.Context, path string) (bool, error)

	Rename(ctx context.Context, oldPath, newPath string) error
	Delete(ctx context.Context, path string, recursive bool) error

	// Mkdir creates path and any missing ancestors. An existing directory
	// is not an error.
	Mkdir(ctx context.Context, path string) error

	Utime(ctx context.Context, path string, mtime, atime time.Time) error
	Chmod(ctx context.Context, path string, perm fs.FileMode) error
	Chown(ctx context.Context, path, owner, group string) error
	SetReplication(ctx context.Context, path string, replication int16) error
	Truncate(ctx context.Context, path string, size int64) error
	StatFs(ctx context.Context) (FsStats, error)

	GetWorkingDirectory() string
	// SetWorkingDirectory changes the base for relative paths. The target
	// need not exist.
	SetWorkingDirectory(path string) error

	// Disconnect releases every resource tied to the session.
	Disconnect(ctx context.Context) error
}

// File is an open file. Read handles move a cursor; write handles append at
// the end of what they have written so far.
type File interface {
	// Read fills p from the current position. At end of file it returns
	// (0, io.EOF).
	Read(ctx context.Context, p []byte) (int, error)

	// ReadAt reads from an absolute offset without moving the cursor.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)

	// Write may accept fewer bytes than len(p).
	Write(ctx context.Context, p []byte) (int, error)

	Flush(ctx context.Context) error

	// Seek moves the cursor of a read handle to an absolute offset.
	Seek(ctx context.Context, off int64) error

	// Tell returns the current offset.
	Tell(ctx context.Context) (int64, error)

	// Available returns the bytes left before end of file.
	Available(ctx context.Context) (int64, error)

	// Close flushes pending writes and releases the file. Errors here mean
	// written data may have been lost.
	Close(ctx context.Context) error

	Path() string
	Writable() bool
}

// AtomicWriter is implemented by sessions that can publish a whole file in
// one step, leaving no partial destination behind when the source fails.
type AtomicWriter interface {
	WriteFileAtomic(ctx context.Context, path string, r io.Reader) error
}
