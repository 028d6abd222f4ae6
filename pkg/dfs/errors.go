package dfs

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"syscall"

	"github.com/marmos91/godfs/pkg/backend"
)

// opError is the common shape of every backend-derived error returned by
// this package: the operation, the path it applied to, the errno reported
// by the backend and the backend error itself.
type opError struct {
	Op    string
	Path  string
	Errno syscall.Errno
	Err   error
}

func newOpError(op, path string, err error) opError {
	return opError{Op: op, Path: path, Errno: backend.Errno(err), Err: err}
}

func (e *opError) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg + ": " + e.Errno.Error()
}

func (e *opError) Unwrap() error {
	return e.Err
}

// ConnectionError reports a failed connect or disconnect.
type ConnectionError struct {
	Host string
	Port Port
	opError
}

func (e *ConnectionError) Error() string {
	target := e.Host
	if target == "" {
		target = "local filesystem"
	} else if e.Port != 0 {
		target = net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
	}
	return fmt.Sprintf("%s %s: %v", e.Op, target, e.Err)
}

// UnsupportedModeError is returned by Open for any mode other than "r" or
// "w". It is raised before the backend is contacted.
type UnsupportedModeError struct {
	Mode   string
	Reason string
}

func (e *UnsupportedModeError) Error() string {
	return fmt.Sprintf("open mode %q: %s", e.Mode, e.Reason)
}

// OpenError reports that the backend could not open a path.
type OpenError struct{ opError }

// ReadError reports a backend failure during Read or Pread. Reaching the end
// of the file is not an error.
type ReadError struct{ opError }

// WriteError reports a backend failure during Write. Bytes accepted before
// the failure stay written.
type WriteError struct{ opError }

// FlushError reports a backend failure during Flush.
type FlushError struct{ opError }

// CloseError reports a failure while closing a file. For write handles the
// data may not have been persisted in full.
type CloseError struct{ opError }

// SeekError reports a failure from Seek or Position.
type SeekError struct{ opError }

// OpError reports a failed namespace operation such as Stat, Rename or Mkdir.
type OpError struct{ opError }

// TransferError reports a failed Get, Put or Move. Err may wrap a
// ConnectionError for the implicit local connection.
type TransferError struct {
	Direction string
	Src       string
	Dst       string
	Errno     syscall.Errno
	Err       error
}

func newTransferError(direction, src, dst string, err error) *TransferError {
	return &TransferError{Direction: direction, Src: src, Dst: dst, Errno: backend.Errno(err), Err: err}
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s -> %s: %v", e.Direction, e.Src, e.Dst, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// InvalidHandleError reports use of a Conn or File that was released,
// closed, or not created by this package.
type InvalidHandleError struct {
	Op     string
	Handle string // "connection" or "file"
	Reason string
}

func (e *InvalidHandleError) Error() string {
	return fmt.Sprintf("%s: invalid %s handle: %s", e.Op, e.Handle, e.Reason)
}

// Is lets errors.Is(err, fs.ErrClosed) and errors.Is(err, syscall.EBADF)
// match invalid handles.
func (e *InvalidHandleError) Is(target error) bool {
	return target == syscall.EBADF || target == fs.ErrClosed
}

// ErrnoOf returns the errno carried by any error from this package, or the
// closest errno for other errors. nil maps to 0.
func ErrnoOf(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var (
		modeErr     *UnsupportedModeError
		handleErr   *InvalidHandleError
		transferErr *TransferError
	)
	switch {
	case errors.As(err, &modeErr):
		return syscall.EINVAL
	case errors.As(err, &handleErr):
		return syscall.EBADF
	case errors.As(err, &transferErr) && transferErr.Errno != 0:
		return transferErr.Errno
	}
	return backend.Errno(err)
}
