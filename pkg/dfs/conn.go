package dfs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/godfs/internal/logger"
	"github.com/marmos91/godfs/pkg/backend"
)

// handleTag marks values built by this package. A zero or foreign tag
// means the handle was not produced by Connect or Open.
type handleTag uint32

const (
	connTag handleTag = 0x64667343 // "dfsC"
	fileTag handleTag = 0x64667346 // "dfsF"
)

// Conn is a connection to one filesystem. It must be released with
// Disconnect. The zero value is not usable.
type Conn struct {
	tag     handleTag
	id      uuid.UUID
	client  *Client
	backend string
	host    string
	port    Port

	// mu serializes backend calls on the session and on every file opened
	// from it, and guards the fields below.
	mu       sync.Mutex
	session  backend.Session
	released bool
	files    map[*File]struct{}
}

// ID identifies the connection in logs.
func (c *Conn) ID() uuid.UUID { return c.id }

// Host returns the host passed to Connect.
func (c *Conn) Host() string { return c.host }

// Port returns the port passed to Connect.
func (c *Conn) Port() Port { return c.port }

// Backend returns the scheme of the backend serving the connection.
func (c *Conn) Backend() string { return c.backend }

// valid reports whether c was built by Connect. It does not take the lock:
// the tag never changes after construction.
func (c *Conn) valid() bool {
	return c != nil && c.tag == connTag && c.client != nil
}

// lock validates c and acquires it for one backend call. On success the
// caller must call c.mu.Unlock.
func (c *Conn) lock(op string) error {
	if !c.valid() {
		return &InvalidHandleError{Op: op, Handle: "connection", Reason: "not created by Connect"}
	}
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return &InvalidHandleError{Op: op, Handle: "connection", Reason: "connection released"}
	}
	return nil
}

// do runs fn against the session under the connection lock and records the
// call. Errors returned by fn are passed through unchanged.
func (c *Conn) do(op string, fn func(s backend.Session) error) error {
	if err := c.lock(op); err != nil {
		return err
	}
	defer c.mu.Unlock()

	return c.observe(op, func() error { return fn(c.session) })
}

// observe times fn and reports it to the client metrics.
func (c *Conn) observe(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	c.client.metrics.ObserveOperation(op, c.backend, time.Since(start), err)
	return err
}

// Released reports whether Disconnect has been called.
func (c *Conn) Released() bool {
	if !c.valid() {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

// Disconnect closes every File still open on c, then releases the backend
// session. c is released even when an error is returned; further use of c
// or its Files fails with *InvalidHandleError.
//
// A backend failure to disconnect is returned as a *ConnectionError. Errors
// from closing files are *CloseErrors joined to it.
func (c *Conn) Disconnect(ctx context.Context) error {
	const op = "disconnect"
	if err := c.lock(op); err != nil {
		return err
	}
	defer c.mu.Unlock()

	c.released = true
	defer c.client.metrics.ConnectionClosed(c.backend)

	var errs []error
	for f := range c.files {
		if err := f.closeLocked(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	err := c.observe(op, func() error { return c.session.Disconnect(ctx) })
	if err != nil {
		errs = append([]error{c.client.connectionError(op, c.host, c.port, err)}, errs...)
	}
	switch len(errs) {
	case 0:
	case 1:
		logger.WarnCtx(ctx, "dfs: connection %s released with error: %v", c.id, errs[0])
		return errs[0]
	default:
		logger.WarnCtx(ctx, "dfs: connection %s released with %d errors", c.id, len(errs))
		return errors.Join(errs...)
	}
	logger.DebugCtx(ctx, "dfs: connection %s released", c.id)
	return nil
}
