// Package local serves the machine's own filesystem through the backend
// contract. It is what the dfs facade connects to when no host is given, and
// the implicit endpoint of every get and put.
package local

import (
	"context"
	"os"
	"path/filepath"
	"syscall"

	"github.com/marmos91/godfs/internal/logger"
	"github.com/marmos91/godfs/pkg/backend"
)

// Name is the scheme served by this backend.
const Name = "file"

// Config configures the local Backend.
type Config struct {
	// Root confines every session below a host directory. Paths seen by
	// callers are relative to it, so "/" names Root itself. Empty means the
	// whole filesystem.
	Root string `mapstructure:"root" yaml:"root"`
}

// Backend hands out sessions over the local filesystem.
type Backend struct {
	root string
}

// New creates a local Backend. Root is made absolute but need not exist
// until a session uses it.
func New(cfg Config) (*Backend, error) {
	root := cfg.Root
	if root == "" {
		root = string(filepath.Separator)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, backend.NewError("init", root, err)
	}
	return &Backend{root: abs}, nil
}

// Name implements backend.Backend.
func (b *Backend) Name() string {
	return Name
}

// Root returns the host directory sessions are confined to.
func (b *Backend) Root() string {
	return b.root
}

// Connect implements backend.Backend. Host and Port are ignored.
//
// Unrooted sessions start in the process working directory; rooted ones
// start at "/".
func (b *Backend) Connect(ctx context.Context, params backend.ConnectParams) (backend.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, backend.NewError("connect", b.root, err)
	}

	info, err := os.Stat(b.root)
	if err != nil {
		return nil, backend.NewError("connect", b.root, err)
	}
	if !info.IsDir() {
		return nil, backend.ErrnoError("connect", b.root, syscall.ENOTDIR)
	}

	cwd := "/"
	if b.unrooted() {
		if wd, err := os.Getwd(); err == nil {
			cwd = filepath.ToSlash(wd)
		}
	}

	logger.Debug("local: session opened at %s (cwd %s)", b.root, cwd)
	return &session{b: b, cwd: cwd}, nil
}

func (b *Backend) unrooted() bool {
	return b.root == string(filepath.Separator)
}

// hostPath maps a clean, absolute session path to the host filesystem.
func (b *Backend) hostPath(p string) string {
	if b.unrooted() {
		return filepath.FromSlash(p)
	}
	return filepath.Join(b.root, filepath.FromSlash(p))
}
