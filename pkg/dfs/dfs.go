// Package dfs is a typed, handle-based client for remote filesystems.
//
// A Client routes connections through a registry.Registry of backends. Conn
// and File values are handles: they can only be created by this package,
// carry the state needed to validate themselves, and fail with an
// *InvalidHandleError once released. Every operation is a single pass to the
// backend plus argument conversion and error translation; there is no
// caching and no retry.
//
// Calls on one Conn, including those made through its Files, are
// serialized. Distinct Conns proceed in parallel.
//
// Example usage:
//
//	client := dfs.New(reg)
//	conn, err := client.Connect(ctx, "namenode", 8020)
//	if err != nil {
//		return err
//	}
//	defer conn.Disconnect(ctx)
//
//	f, err := conn.Open(ctx, "/data/in.txt", "r")
//	...
package dfs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/godfs/internal/logger"
	"github.com/marmos91/godfs/internal/ratelimiter"
	"github.com/marmos91/godfs/pkg/backend"
	"github.com/marmos91/godfs/pkg/metrics"
	"github.com/marmos91/godfs/pkg/registry"
)

// Port is a backend port. 0 selects the backend's default.
type Port = backend.Port

// Offset is a byte position or size within a file.
type Offset = int64

// MaxReadSize caps the bytes returned by a single Read or Pread.
const MaxReadSize = 2 << 20

// Client opens connections. It holds no per-connection state and is safe
// for concurrent use.
type Client struct {
	reg       *registry.Registry
	metrics   metrics.ClientMetrics
	localHost string

	limiter     *ratelimiter.RateLimiter
	copyBufSize int
}

// Option configures a Client.
type Option func(*Client)

// WithMetrics sets the metrics sink. nil keeps the no-op default.
func WithMetrics(m metrics.ClientMetrics) Option {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithLocalHost sets the host used for the implicit local connection of Get
// and Put. The default is "", which the registry maps to the local backend.
func WithLocalHost(host string) Option {
	return func(c *Client) {
		c.localHost = host
	}
}

// WithTransferLimiter caps the bandwidth of Get, Put and Move. nil means
// unlimited.
func WithTransferLimiter(l *ratelimiter.RateLimiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithTransferBufferSize sets the chunk size used by Get, Put and Move.
// Values <= 0 select backend.DefaultCopyBufferSize.
func WithTransferBufferSize(n int) Option {
	return func(c *Client) {
		c.copyBufSize = n
	}
}

// New creates a Client over reg.
func New(reg *registry.Registry, opts ...Option) *Client {
	c := &Client{
		reg:     reg,
		metrics: metrics.NewNoopClientMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConnectOption configures a single Connect call.
type ConnectOption func(*backend.ConnectParams)

// WithUser connects as the named user instead of the backend's default.
func WithUser(name string) ConnectOption {
	return func(p *backend.ConnectParams) {
		p.User = name
	}
}

// Connect opens a connection to host:port.
//
// An empty host, or one starting with "file://", selects the local
// filesystem and port is ignored. Otherwise host is either a bare name for
// the registry's default backend or a "scheme://host:port" URL. Any failure
// is returned as a *ConnectionError.
func (c *Client) Connect(ctx context.Context, host string, port Port, opts ...ConnectOption) (*Conn, error) {
	start := time.Now()

	b, params, err := c.reg.Resolve(host, port)
	if err != nil {
		return nil, c.connectionError("connect", host, port, err)
	}
	for _, opt := range opts {
		opt(&params)
	}

	s, err := b.Connect(ctx, params)
	c.metrics.ObserveOperation("connect", b.Name(), time.Since(start), err)
	if err != nil {
		logger.DebugCtx(ctx, "dfs: connect %s via %s failed: %v", host, b.Name(), err)
		return nil, c.connectionError("connect", host, port, err)
	}

	conn := &Conn{
		tag:     connTag,
		id:      uuid.New(),
		client:  c,
		backend: b.Name(),
		host:    host,
		port:    port,
		session: s,
		files:   make(map[*File]struct{}),
	}
	c.metrics.ConnectionOpened(conn.backend)
	logger.DebugCtx(ctx, "dfs: connection %s opened to %q via %s", conn.id, host, conn.backend)
	return conn, nil
}

func (c *Client) connectionError(op, host string, port Port, err error) *ConnectionError {
	return &ConnectionError{Host: host, Port: port, opError: newOpError(op, "", err)}
}

func (c *Client) copyOptions() backend.CopyOptions {
	return backend.CopyOptions{BufferSize: c.copyBufSize, Limiter: c.limiter}
}
