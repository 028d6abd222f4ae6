package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"
)

// Error is the failure type returned by every backend operation.
//
// Errno is always set, so callers can branch on a stable code no matter which
// backend produced the error. Err holds the backend's own error, when any.
type Error struct {
	Op    string
	Path  string
	Errno syscall.Errno
	Err   error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v (errno %d)", msg, e.Err, int(e.Errno))
	}
	return fmt.Sprintf("%s: %v (errno %d)", msg, e.Errno, int(e.Errno))
}

// Unwrap exposes both the cause and the errno, so errors.Is matches the
// original error as well as fs.ErrNotExist and friends via syscall.Errno.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Errno}
	}
	return []error{e.Err, e.Errno}
}

// NewError wraps err for op on path, deriving the errno from err.
// A nil err yields nil.
func NewError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) && be.Op == op && be.Path == path {
		return be
	}
	return &Error{Op: op, Path: path, Errno: Errno(err), Err: err}
}

// Errorf builds an *Error with an explicit errno.
func Errorf(op, path string, errno syscall.Errno, format string, args ...any) error {
	return &Error{Op: op, Path: path, Errno: errno, Err: fmt.Errorf(format, args...)}
}

// ErrnoError builds an *Error carrying only an errno.
func ErrnoError(op, path string, errno syscall.Errno) error {
	return &Error{Op: op, Path: path, Errno: errno}
}

// Errno maps any error to the closest errno. nil maps to 0.
//
// syscall.Errno values, possibly wrapped in *os.PathError or *Error, are
// returned as is. The io/fs sentinel errors map to their POSIX equivalents.
// Context errors map to ETIMEDOUT and ECANCELED. Everything else is EIO.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}

	var be *Error
	if errors.As(err, &be) && be.Errno != 0 {
		return be.Errno
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		err = pathErr.Err
	}

	switch {
	case errors.Is(err, fs.ErrInvalid):
		return syscall.EINVAL
	case errors.Is(err, fs.ErrPermission):
		return syscall.EACCES
	case errors.Is(err, fs.ErrExist):
		return syscall.EEXIST
	case errors.Is(err, fs.ErrNotExist):
		return syscall.ENOENT
	case errors.Is(err, fs.ErrClosed):
		return syscall.EBADF
	case errors.Is(err, context.DeadlineExceeded):
		return syscall.ETIMEDOUT
	case errors.Is(err, context.Canceled):
		return syscall.ECANCELED
	default:
		return syscall.EIO
	}
}

// IsNotExist reports whether err means the path is absent.
func IsNotExist(err error) bool {
	return err != nil && Errno(err) == syscall.ENOENT
}
