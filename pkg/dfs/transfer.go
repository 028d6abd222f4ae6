package dfs

import (
	"bytes"
	"context"
	"errors"
	"syscall"

	"github.com/marmos91/godfs/internal/logger"
	"github.com/marmos91/godfs/pkg/backend"
)

// Get copies the remote file remotePath to localPath on the local
// filesystem through an implicit local connection, which is released
// whatever the outcome. Every failure is a *TransferError.
//
// The local backend writes the destination atomically, so a failed Get
// leaves no file at localPath.
func (c *Conn) Get(ctx context.Context, remotePath, localPath string) error {
	const dir = "get"
	if !c.valid() {
		return newTransferError(dir, remotePath, localPath, &InvalidHandleError{Op: dir, Handle: "connection", Reason: "not created by Connect"})
	}

	local, err := c.client.Connect(ctx, c.client.localHost, 0)
	if err != nil {
		return newTransferError(dir, remotePath, localPath, err)
	}

	err = transfer(ctx, dir, c, remotePath, local, localPath)
	if derr := local.Disconnect(ctx); derr != nil {
		err = errors.Join(err, derr)
	}
	if err != nil {
		return newTransferError(dir, remotePath, localPath, err)
	}
	return nil
}

// Put copies the local file localPath to remotePath through an implicit
// local connection, which is released whatever the outcome. Every failure
// is a *TransferError.
//
// The remote side is not transactional. When the copy fails after the
// remote file was created, Put removes it; if that removal fails too, the
// partial file stays and the removal error is joined into the result.
func (c *Conn) Put(ctx context.Context, localPath, remotePath string) error {
	const dir = "put"
	if !c.valid() {
		return newTransferError(dir, localPath, remotePath, &InvalidHandleError{Op: dir, Handle: "connection", Reason: "not created by Connect"})
	}

	local, err := c.client.Connect(ctx, c.client.localHost, 0)
	if err != nil {
		return newTransferError(dir, localPath, remotePath, err)
	}

	err = transfer(ctx, dir, local, localPath, c, remotePath)
	if derr := local.Disconnect(ctx); derr != nil {
		err = errors.Join(err, derr)
	}
	if err != nil {
		return newTransferError(dir, localPath, remotePath, err)
	}
	return nil
}

// Move copies srcPath on c to dstPath on dst, then deletes the source. dst
// may be c itself. A failed copy leaves the source in place.
func (c *Conn) Move(ctx context.Context, srcPath string, dst *Conn, dstPath string) error {
	const dir = "move"
	if dst == c && srcPath == dstPath {
		return newTransferError(dir, srcPath, dstPath, backend.Errorf(dir, srcPath, syscall.EINVAL, "source and destination are the same file"))
	}
	if err := transfer(ctx, dir, c, srcPath, dst, dstPath); err != nil {
		return newTransferError(dir, srcPath, dstPath, err)
	}
	if _, err := c.Delete(ctx, srcPath, false); err != nil {
		return newTransferError(dir, srcPath, dstPath, err)
	}
	return nil
}

// transfer runs backend.Copy with both connections locked, in a fixed
// order so that concurrent transfers in opposite directions cannot
// deadlock.
func transfer(ctx context.Context, op string, src *Conn, srcPath string, dst *Conn, dstPath string) error {
	if !src.valid() {
		return &InvalidHandleError{Op: op, Handle: "connection", Reason: "not created by Connect"}
	}
	if !dst.valid() {
		return &InvalidHandleError{Op: op, Handle: "connection", Reason: "not created by Connect"}
	}

	first, second := src, dst
	if bytes.Compare(first.id[:], second.id[:]) > 0 {
		first, second = second, first
	}
	if err := first.lock(op); err != nil {
		return err
	}
	defer first.mu.Unlock()
	if second != first {
		if err := second.lock(op); err != nil {
			return err
		}
		defer second.mu.Unlock()
	}

	opts := src.client.copyOptions()
	err := dst.observe(op, func() error {
		return backend.Copy(ctx, src.session, srcPath, dst.session, dstPath, opts)
	})
	if err == nil {
		if fi, serr := dst.session.GetPathInfo(ctx, dstPath); serr == nil {
			src.client.metrics.RecordBytes(op, fi.Size)
		}
		return nil
	}

	if errors.Is(err, backend.ErrPartialCopy) {
		if rerr := dst.session.Delete(ctx, dstPath, false); rerr != nil && !backend.IsNotExist(rerr) {
			logger.WarnCtx(ctx, "dfs: %s left a partial file at %s: %v", op, dstPath, rerr)
			err = errors.Join(err, rerr)
		} else {
			logger.DebugCtx(ctx, "dfs: %s removed partial file %s", op, dstPath)
		}
	}
	return err
}
