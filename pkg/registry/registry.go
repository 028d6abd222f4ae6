// Package registry maps filesystem schemes to the backends that serve them
// and turns the host argument of a connect call into a backend plus its
// connection parameters.
package registry

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/marmos91/godfs/pkg/backend"
)

// LocalScheme is the scheme of the local filesystem backend. Connecting to
// an empty host, or to "file://", always routes there.
const LocalScheme = "file"

// DefaultHost is the host name that selects the default backend without
// naming a namenode, leaving the backend to use its own configuration.
const DefaultHost = "default"

// Registry holds the backends a client can connect through.
//
// Example usage:
//
//	reg := NewRegistry()
//	reg.Register(local.New(local.Config{}))
//	reg.Register(hdfs.New(hdfs.Config{}))
//	reg.SetDefault("hdfs")
//
//	b, params, _ := reg.Resolve("namenode", 8020) // hdfs, {Host: "namenode", Port: 8020}
type Registry struct {
	mu            sync.RWMutex
	backends      map[string]backend.Backend
	defaultScheme string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]backend.Backend),
	}
}

// Register adds a backend under its Name. The first non-local backend
// registered becomes the default.
// Returns an error if a backend with the same name already exists.
func (r *Registry) Register(b backend.Backend) error {
	if b == nil {
		return fmt.Errorf("cannot register nil backend")
	}
	name := b.Name()
	if name == "" {
		return fmt.Errorf("cannot register backend with empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[name]; exists {
		return fmt.Errorf("backend %q already registered", name)
	}

	r.backends[name] = b
	if r.defaultScheme == "" && name != LocalScheme {
		r.defaultScheme = name
	}
	return nil
}

// SetDefault selects the backend used for hosts given without a scheme.
// Returns an error if no backend is registered under scheme.
func (r *Registry) SetDefault(scheme string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[scheme]; !exists {
		return fmt.Errorf("backend %q not found", scheme)
	}
	r.defaultScheme = scheme
	return nil
}

// Default returns the scheme of the default backend, or "" when none is set.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultScheme
}

// Get retrieves a backend by scheme.
// Returns nil, error if not found.
func (r *Registry) Get(scheme string) (backend.Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, exists := r.backends[scheme]
	if !exists {
		return nil, fmt.Errorf("backend %q not found", scheme)
	}
	return b, nil
}

// Local retrieves the local filesystem backend.
func (r *Registry) Local() (backend.Backend, error) {
	return r.Get(LocalScheme)
}

// Schemes returns all registered schemes, sorted.
// The returned slice is a copy and safe to modify.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemes := make([]string, 0, len(r.backends))
	for name := range r.backends {
		schemes = append(schemes, name)
	}
	slices.Sort(schemes)
	return schemes
}

// CountBackends returns the number of registered backends.
func (r *Registry) CountBackends() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.backends)
}

// Resolve picks the backend for host and builds its connection parameters.
//
// Accepted forms:
//   - "" or "file://..." selects the local backend; port is ignored
//   - "scheme://host[:port]" selects the backend registered for scheme; a
//     port in the URL is used when port is 0
//   - "default" selects the default backend with no host, so it falls back
//     to its own configuration
//   - any other value is a host name for the default backend
func (r *Registry) Resolve(host string, port backend.Port) (backend.Backend, backend.ConnectParams, error) {
	switch {
	case host == "":
		b, err := r.Local()
		return b, backend.ConnectParams{}, err

	case strings.Contains(host, "://"):
		scheme, h, p := backend.SplitURL(host)
		if scheme == "" {
			return nil, backend.ConnectParams{}, fmt.Errorf("malformed filesystem URL %q", host)
		}
		if scheme == LocalScheme {
			b, err := r.Local()
			return b, backend.ConnectParams{}, err
		}
		if port == 0 && p != "" {
			n, err := strconv.ParseUint(p, 10, 16)
			if err != nil {
				return nil, backend.ConnectParams{}, fmt.Errorf("invalid port in %q: %w", host, err)
			}
			port = backend.Port(n)
		}
		b, err := r.Get(scheme)
		return b, backend.ConnectParams{Host: h, Port: port}, err
	}

	scheme := r.Default()
	if scheme == "" {
		return nil, backend.ConnectParams{}, fmt.Errorf("no default backend for host %q", host)
	}
	b, err := r.Get(scheme)
	if host == DefaultHost {
		return b, backend.ConnectParams{Port: port}, err
	}
	return b, backend.ConnectParams{Host: host, Port: port}, err
}

// Close closes every registered backend that implements io.Closer and
// returns the joined errors.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, b := range r.backends {
		if c, ok := b.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close backend %q: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}
