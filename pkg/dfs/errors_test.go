package dfs

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
	"testing"

	"github.com/marmos91/godfs/pkg/backend"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	cause := backend.ErrnoError("open", "/f", syscall.ENOENT)

	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			"connection",
			&ConnectionError{Host: "nn", Port: 8020, opError: newOpError("connect", "", syscall.ECONNREFUSED)},
			"connect nn:8020: connection refused",
		},
		{
			"local connection",
			&ConnectionError{opError: newOpError("connect", "", syscall.ENOENT)},
			"connect local filesystem: no such file or directory",
		},
		{
			"open",
			&OpenError{newOpError("open", "/f", cause)},
			"open /f: " + cause.Error(),
		},
		{
			"errno only",
			&OpError{opError{Op: "stat", Path: "/f", Errno: syscall.EIO}},
			"stat /f: input/output error",
		},
		{
			"mode",
			&UnsupportedModeError{Mode: "a", Reason: "append is not supported"},
			`open mode "a": append is not supported`,
		},
		{
			"handle",
			&InvalidHandleError{Op: "read", Handle: "file", Reason: "file closed"},
			"read: invalid file handle: file closed",
		},
		{
			"transfer",
			newTransferError("get", "/r", "/l", cause),
			"get /r -> /l: " + cause.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrnoOf(t *testing.T) {
	enoent := backend.ErrnoError("stat", "/x", syscall.ENOENT)

	tests := []struct {
		name string
		err  error
		want syscall.Errno
	}{
		{"nil", nil, 0},
		{"read error", &ReadError{newOpError("read", "/x", syscall.EBADF)}, syscall.EBADF},
		{"op error", &OpError{newOpError("stat", "/x", enoent)}, syscall.ENOENT},
		{"mode", &UnsupportedModeError{Mode: "a"}, syscall.EINVAL},
		{"handle", &InvalidHandleError{}, syscall.EBADF},
		{"transfer", newTransferError("put", "/a", "/b", enoent), syscall.ENOENT},
		{"wrapped", fmt.Errorf("context: %w", &CloseError{newOpError("close", "/x", syscall.EIO)}), syscall.EIO},
		{"foreign", errors.New("boom"), syscall.EIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrnoOf(tt.err))
		})
	}
}

func TestErrorsUnwrapToBackend(t *testing.T) {
	cause := backend.ErrnoError("open", "/f", syscall.ENOENT)
	err := error(&OpenError{newOpError("open", "/f", cause)})

	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.ErrorIs(t, err, syscall.ENOENT)

	var be *backend.Error
	assert.ErrorAs(t, err, &be)
	assert.Equal(t, cause, be)

	var readErr *ReadError
	assert.False(t, errors.As(err, &readErr), "error kinds stay distinct")
}
