// Package cluster implements an in-process distributed filesystem: a
// metadata.Store holds the namespace and a content.Store holds file bytes.
//
// It behaves like a single-namenode HDFS deployment as far as the client API
// can tell: replication and block size are recorded per file, the working
// directory starts at /user/<name>, and writers publish their size on close.
//
// Open handles keep their content alive: a reader of a file that is
// overwritten or deleted goes on reading the old bytes until it closes, and
// a writer keeps writing to its file across renames.
package cluster

import (
	"context"
	"fmt"
	"net"
	"os/user"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/marmos91/godfs/internal/logger"
	"github.com/marmos91/godfs/pkg/backend"
	"github.com/marmos91/godfs/pkg/content"
	"github.com/marmos91/godfs/pkg/gc"
	"github.com/marmos91/godfs/pkg/metadata"
)

// Defaults applied when OpenFlags leave a field at zero.
const (
	DefaultReplication int16 = 3
	DefaultBlockSize   int64 = 128 << 20
	DefaultBufferSize  int32 = 64 << 10
	DefaultGroup             = "supergroup"
)

// Config configures a cluster Backend.
type Config struct {
	// Address restricts which host:port the cluster answers on. Empty
	// accepts any address. A port of 0 in ConnectParams matches any port.
	Address string `mapstructure:"address" yaml:"address"`

	// MaxSessions caps concurrently connected sessions. 0 means unlimited.
	MaxSessions int `mapstructure:"max_sessions" yaml:"max_sessions" validate:"gte=0"`

	// DefaultReplication is recorded for files created with replication 0.
	DefaultReplication int16 `mapstructure:"default_replication" yaml:"default_replication" validate:"gte=0"`

	// DefaultBlockSize is recorded for files created with block size 0.
	DefaultBlockSize int64 `mapstructure:"default_block_size" yaml:"default_block_size" validate:"gte=0"`

	// GC configures orphaned content collection. A non-zero interval
	// runs it in the background for the life of the Backend.
	GC gc.Config `mapstructure:"gc" yaml:"gc"`
}

// Backend serves sessions over one namespace and one content store.
type Backend struct {
	cfg  Config
	meta metadata.Store
	data content.Store

	handles   *handles
	collector *gc.Collector

	mu       sync.Mutex
	sessions int
}

// New assembles a cluster from its stores. The Backend owns both stores
// and closes them in Close.
func New(cfg Config, meta metadata.Store, data content.Store) *Backend {
	if cfg.DefaultReplication == 0 {
		cfg.DefaultReplication = DefaultReplication
	}
	if cfg.DefaultBlockSize == 0 {
		cfg.DefaultBlockSize = DefaultBlockSize
	}
	b := &Backend{cfg: cfg, meta: meta, data: data, handles: newHandles()}

	if cfg.GC.Interval > 0 {
		c, err := gc.NewCollector(meta, data, cfg.GC, gc.WithInUse(b.handles.inUse))
		if err != nil {
			logger.Warn("cluster: background garbage collection disabled: %v", err)
		} else {
			b.collector = c
			c.Start()
		}
	}
	return b
}

// CollectGarbage deletes content no file refers to and no handle holds
// open. With dryRun set it only reports what would be deleted.
func (b *Backend) CollectGarbage(ctx context.Context, dryRun bool) (*gc.Stats, error) {
	cfg := b.cfg.GC
	cfg.DryRun = dryRun

	c, err := gc.NewCollector(b.meta, b.data, cfg, gc.WithInUse(b.handles.inUse))
	if err != nil {
		return nil, err
	}
	return c.RunNow(ctx)
}

// Name implements backend.Backend.
func (b *Backend) Name() string {
	return "cluster"
}

// Connect implements backend.Backend.
func (b *Backend) Connect(ctx context.Context, params backend.ConnectParams) (backend.Session, error) {
	const op = "connect"
	target := net.JoinHostPort(params.Host, strconv.Itoa(int(params.Port)))

	if err := ctx.Err(); err != nil {
		return nil, backend.NewError(op, target, err)
	}
	if !b.accepts(params) {
		return nil, backend.Errorf(op, target, syscall.ECONNREFUSED, "no cluster listening at %s", target)
	}

	b.mu.Lock()
	if b.cfg.MaxSessions > 0 && b.sessions >= b.cfg.MaxSessions {
		b.mu.Unlock()
		return nil, backend.Errorf(op, target, syscall.ECONNREFUSED, "session limit of %d reached", b.cfg.MaxSessions)
	}
	b.sessions++
	b.mu.Unlock()

	name := params.User
	if name == "" {
		name = currentUser()
	}

	logger.Debug("cluster: session opened for %s at %s", name, target)

	return &session{
		b:    b,
		user: name,
		cwd:  backend.DefaultHomeDir(name),
	}, nil
}

// accepts reports whether params address this cluster.
func (b *Backend) accepts(params backend.ConnectParams) bool {
	if b.cfg.Address == "" {
		return true
	}
	host, port, err := net.SplitHostPort(b.cfg.Address)
	if err != nil {
		host, port = b.cfg.Address, ""
	}
	if params.Host != host {
		return false
	}
	return params.Port == 0 || port == "" || strconv.Itoa(int(params.Port)) == port
}

func (b *Backend) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sessions > 0 {
		b.sessions--
	}
}

// Sessions returns the number of connected sessions.
func (b *Backend) Sessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessions
}

// Close stops background collection and closes both stores.
func (b *Backend) Close() error {
	if b.collector != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := b.collector.Stop(ctx)
		cancel()
		if err != nil {
			logger.Warn("cluster: garbage collector did not stop: %v", err)
		}
	}

	metaErr := b.meta.Close()
	dataErr := b.data.Close()
	if metaErr != nil {
		return fmt.Errorf("close metadata store: %w", metaErr)
	}
	if dataErr != nil {
		return fmt.Errorf("close content store: %w", dataErr)
	}
	return nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "nobody"
}
