package metadata

import (
	"errors"
	"fmt"
	"syscall"
)

// StoreError represents a domain error from namespace operations.
//
// These are business logic errors (entry not found, directory not empty, ...)
// as opposed to infrastructure errors (disk failure, corrupted database).
// Backends translate the Code to an errno with Errno.
type StoreError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Path is the namespace path related to the error (if applicable)
	Path string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Path != "" {
		return e.Message + ": " + e.Path
	}
	return e.Message
}

// Errno maps the error category to a POSIX errno.
func (e *StoreError) Errno() syscall.Errno {
	switch e.Code {
	case ErrNotFound:
		return syscall.ENOENT
	case ErrAlreadyExists:
		return syscall.EEXIST
	case ErrNotEmpty:
		return syscall.ENOTEMPTY
	case ErrIsDirectory:
		return syscall.EISDIR
	case ErrNotDirectory:
		return syscall.ENOTDIR
	case ErrInvalidArgument:
		return syscall.EINVAL
	case ErrNoSpace:
		return syscall.ENOSPC
	default:
		return syscall.EIO
	}
}

// Unwrap lets errors.Is(err, syscall.ENOENT) and errors.Is(err,
// fs.ErrNotExist) match store errors.
func (e *StoreError) Unwrap() error {
	return e.Errno()
}

// ErrorCode represents the category of a store error.
type ErrorCode int

const (
	// ErrNotFound indicates the requested entry doesn't exist
	ErrNotFound ErrorCode = iota

	// ErrAlreadyExists indicates an entry with the name already exists
	ErrAlreadyExists

	// ErrNotEmpty indicates a directory is not empty (cannot be removed)
	ErrNotEmpty

	// ErrIsDirectory indicates operation expected a file but got a directory
	ErrIsDirectory

	// ErrNotDirectory indicates operation expected a directory but got a file
	ErrNotDirectory

	// ErrInvalidArgument indicates invalid parameters were provided
	// Examples: relative path, renaming a directory into itself
	ErrInvalidArgument

	// ErrIOError indicates the store itself failed
	ErrIOError

	// ErrNoSpace indicates a configured limit was reached
	ErrNoSpace
)

// NewStoreError builds a StoreError.
func NewStoreError(code ErrorCode, path, format string, args ...any) *StoreError {
	return &StoreError{Code: code, Message: fmt.Sprintf(format, args...), Path: path}
}

// IsCode reports whether err is a StoreError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Code == code
}
