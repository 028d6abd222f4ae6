package dfs

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/marmos91/godfs/internal/logger"
	"github.com/marmos91/godfs/pkg/backend"
	"github.com/marmos91/godfs/pkg/backend/backendtest"
	"github.com/marmos91/godfs/pkg/backend/cluster"
	"github.com/marmos91/godfs/pkg/backend/local"
	contentmemory "github.com/marmos91/godfs/pkg/content/memory"
	metadatamemory "github.com/marmos91/godfs/pkg/metadata/memory"
	"github.com/marmos91/godfs/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testHost      = "localhost"
	testPort Port = 9000

	// Capacity of the remote content store.
	testCapacity = 1 << 30
)

// testEnv is a client over an in-process cluster answering at
// localhost:9000, the unrooted local filesystem, and a "faulty" backend
// whose failures tests can switch on.
type testEnv struct {
	client  *Client
	remote  *backendtest.Recorder
	local   *backendtest.Recorder
	faulty  *faultyBackend
	metrics *countingMetrics
}

func newCluster(t *testing.T, address string) *cluster.Backend {
	t.Helper()
	data, err := contentmemory.NewMemoryContentStore(context.Background(), contentmemory.MemoryContentStoreConfig{MaxBytes: testCapacity})
	require.NoError(t, err)

	b := cluster.New(cluster.Config{Address: address}, metadatamemory.NewMemoryMetadataStore(metadatamemory.MemoryMetadataStoreConfig{}), data)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	lb, err := local.New(local.Config{})
	require.NoError(t, err)

	env := &testEnv{
		remote:  backendtest.NewRecorder(newCluster(t, "localhost:9000")),
		local:   backendtest.NewRecorder(lb),
		faulty:  &faultyBackend{Backend: newCluster(t, "")},
		metrics: newCountingMetrics(),
	}

	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(env.local))
	require.NoError(t, reg.Register(env.remote))
	require.NoError(t, reg.Register(env.faulty))

	env.client = New(reg, append([]Option{WithMetrics(env.metrics)}, opts...)...)
	return env
}

// connect opens a connection to the cluster and releases it at cleanup if
// the test did not.
func (e *testEnv) connect(t *testing.T, opts ...ConnectOption) *Conn {
	t.Helper()
	return e.dial(t, testHost, testPort, opts...)
}

func (e *testEnv) dial(t *testing.T, host string, port Port, opts ...ConnectOption) *Conn {
	t.Helper()
	c, err := e.client.Connect(context.Background(), host, port, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		if !c.Released() {
			_ = c.Disconnect(context.Background())
		}
	})
	return c
}

func writeFile(t *testing.T, c *Conn, path string, data []byte) {
	t.Helper()
	ctx := context.Background()

	f, err := c.Open(ctx, path, "w")
	require.NoError(t, err)
	for off := 0; off < len(data); {
		n, err := f.Write(ctx, data[off:])
		require.NoError(t, err)
		require.Positive(t, n)
		off += n
	}
	require.NoError(t, f.Close(ctx))
}

func readFile(t *testing.T, c *Conn, path string) []byte {
	t.Helper()
	ctx := context.Background()

	f, err := c.Open(ctx, path, "r")
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close(ctx)) }()

	out := []byte{}
	for {
		chunk, err := f.Read(ctx, 0)
		require.NoError(t, err)
		if len(chunk) == 0 {
			return out
		}
		out = append(out, chunk...)
	}
}

// ============================================================================
// Fault injection
// ============================================================================

// faultyBackend wraps a backend and fails selected calls with the
// configured errors. It also records whether Mkdir ran with suppressed
// diagnostics.
type faultyBackend struct {
	backend.Backend

	mu              sync.Mutex
	disconnectErr   error
	closeErr        error
	existsErr       error
	writeErr        error
	mkdirSuppressed []bool
}

func (b *faultyBackend) Name() string { return "faulty" }

func (b *faultyBackend) set(fn func(b *faultyBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func (b *faultyBackend) get() faultyBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	return faultyBackend{
		disconnectErr:   b.disconnectErr,
		closeErr:        b.closeErr,
		existsErr:       b.existsErr,
		writeErr:        b.writeErr,
		mkdirSuppressed: append([]bool(nil), b.mkdirSuppressed...),
	}
}

func (b *faultyBackend) Connect(ctx context.Context, params backend.ConnectParams) (backend.Session, error) {
	s, err := b.Backend.Connect(ctx, params)
	if err != nil {
		return nil, err
	}
	return &faultySession{Session: s, b: b}, nil
}

type faultySession struct {
	backend.Session
	b *faultyBackend
}

func (s *faultySession) OpenFile(ctx context.Context, path string, flags backend.OpenFlags) (backend.File, error) {
	f, err := s.Session.OpenFile(ctx, path, flags)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: f, b: s.b}, nil
}

func (s *faultySession) Exists(ctx context.Context, path string) (bool, error) {
	if err := s.b.get().existsErr; err != nil {
		return false, err
	}
	return s.Session.Exists(ctx, path)
}

func (s *faultySession) Mkdir(ctx context.Context, path string) error {
	s.b.set(func(b *faultyBackend) {
		b.mkdirSuppressed = append(b.mkdirSuppressed, logger.IsSuppressed(ctx))
	})
	return s.Session.Mkdir(ctx, path)
}

func (s *faultySession) Disconnect(ctx context.Context) error {
	err := s.Session.Disconnect(ctx)
	if ferr := s.b.get().disconnectErr; ferr != nil {
		return ferr
	}
	return err
}

type faultyFile struct {
	backend.File
	b *faultyBackend
}

func (f *faultyFile) Write(ctx context.Context, p []byte) (int, error) {
	if err := f.b.get().writeErr; err != nil {
		return 0, err
	}
	return f.File.Write(ctx, p)
}

func (f *faultyFile) Close(ctx context.Context) error {
	err := f.File.Close(ctx)
	if ferr := f.b.get().closeErr; ferr != nil {
		return ferr
	}
	return err
}

// ============================================================================
// Metrics
// ============================================================================

type countingMetrics struct {
	mu          sync.Mutex
	ops         map[string]int
	errs        map[string]int
	bytes       map[string]int64
	connections int
	handles     int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{ops: map[string]int{}, errs: map[string]int{}, bytes: map[string]int64{}}
}

func (m *countingMetrics) ObserveOperation(op, _ string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops[op]++
	if err != nil {
		m.errs[op]++
	}
}

func (m *countingMetrics) RecordBytes(direction string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytes[direction] += n
}

func (m *countingMetrics) ConnectionOpened(string) { m.add(&m.connections, 1) }
func (m *countingMetrics) ConnectionClosed(string) { m.add(&m.connections, -1) }
func (m *countingMetrics) HandleOpened(string)     { m.add(&m.handles, 1) }
func (m *countingMetrics) HandleClosed(string)     { m.add(&m.handles, -1) }

func (m *countingMetrics) add(field *int, delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*field += delta
}

func (m *countingMetrics) snapshot() (ops, errs map[string]int, bytes map[string]int64, conns, handles int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ops, m.errs, m.bytes, m.connections, m.handles
}

// ============================================================================
// Connection Manager
// ============================================================================

func TestConnectDisconnect_LeavesNothingOpen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	targets := []struct {
		name string
		host string
		port Port
	}{
		{"host and port", testHost, testPort},
		{"default port", testHost, 0},
		{"url", "cluster://localhost:9000", 0},
		{"local sentinel", "", 9000},
		{"file url", "file:///", 0},
	}

	for _, tt := range targets {
		t.Run(tt.name, func(t *testing.T) {
			c, err := env.client.Connect(ctx, tt.host, tt.port)
			require.NoError(t, err)
			require.NoError(t, c.Disconnect(ctx))

			assert.True(t, c.Released())
			assert.Zero(t, env.remote.OpenSessions())
			assert.Zero(t, env.local.OpenSessions())
		})
	}

	_, _, _, conns, _ := env.metrics.snapshot()
	assert.Zero(t, conns)
}

func TestConnect_LocalSentinel(t *testing.T) {
	env := newTestEnv(t)

	c := env.dial(t, "", 0)
	assert.Equal(t, registry.LocalScheme, c.Backend())
	assert.Equal(t, 1, env.local.Calls("Connect"))
	assert.Zero(t, env.remote.Calls("Connect"))
}

func TestConnect_Unreachable(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.client.Connect(context.Background(), "otherhost", testPort)
	require.Error(t, err)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "connect", connErr.Op)
	assert.Equal(t, "otherhost", connErr.Host)
	assert.Equal(t, syscall.ECONNREFUSED, connErr.Errno)
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
	assert.Contains(t, err.Error(), "otherhost:9000")
	assert.Zero(t, env.remote.OpenSessions())
}

func TestConnect_UnknownScheme(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.client.Connect(context.Background(), "gopher://host", 0)
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
}

func TestConnect_WithUser(t *testing.T) {
	env := newTestEnv(t)
	c := env.connect(t, WithUser("bob"))

	cwd, ok := c.GetWorkingDirectory(context.Background())
	require.True(t, ok)
	assert.Equal(t, "/user/bob", cwd)
}

func TestConnect_Handles(t *testing.T) {
	env := newTestEnv(t)
	a := env.connect(t)
	b := env.connect(t)

	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, testHost, a.Host())
	assert.Equal(t, testPort, a.Port())
	assert.Equal(t, "cluster", a.Backend())
}

func TestDisconnect_ReleasedEvenOnFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	boom := errors.New("namenode went away")
	env.faulty.set(func(b *faultyBackend) { b.disconnectErr = boom })

	c, err := env.client.Connect(ctx, "faulty://nn", 0)
	require.NoError(t, err)

	err = c.Disconnect(ctx)
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "disconnect", connErr.Op)
	assert.ErrorIs(t, err, boom)
	assert.True(t, c.Released())

	var handleErr *InvalidHandleError
	assert.ErrorAs(t, c.Disconnect(ctx), &handleErr)
	_, err = c.Stat(ctx, "/")
	assert.ErrorAs(t, err, &handleErr)
}

func TestDisconnect_ClosesOpenFiles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.connect(t)

	w, err := c.Open(ctx, "/data/pending.txt", "w")
	require.NoError(t, err)
	_, err = w.Write(ctx, []byte("not yet closed"))
	require.NoError(t, err)
	r, err := c.Open(ctx, "/data/pending.txt", "r")
	require.NoError(t, err)

	require.NoError(t, c.Disconnect(ctx))
	assert.Zero(t, env.remote.OpenFiles())
	assert.Zero(t, env.remote.OpenSessions())

	var handleErr *InvalidHandleError
	_, err = r.Read(ctx, 10)
	assert.ErrorAs(t, err, &handleErr)
	_, err = w.Write(ctx, []byte("x"))
	assert.ErrorAs(t, err, &handleErr)
	assert.ErrorAs(t, w.Close(ctx), &handleErr)
	assert.Equal(t, int64(-1), w.Tell(ctx))

	// The write handle was completed on the way out.
	c2 := env.connect(t)
	assert.Equal(t, []byte("not yet closed"), readFile(t, c2, "/data/pending.txt"))

	_, _, _, _, handles := env.metrics.snapshot()
	assert.Zero(t, handles)
}

func TestDisconnect_JoinsCloseErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c, err := env.client.Connect(ctx, "faulty://nn", 0)
	require.NoError(t, err)
	_, err = c.Open(ctx, "/a", "w")
	require.NoError(t, err)

	env.faulty.set(func(b *faultyBackend) { b.closeErr = errors.New("replication not satisfied") })
	err = c.Disconnect(ctx)

	var closeErr *CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, "/a", closeErr.Path)
	assert.True(t, c.Released())
}

func TestForeignHandles(t *testing.T) {
	ctx := context.Background()
	var handleErr *InvalidHandleError

	var zero Conn
	_, err := zero.Stat(ctx, "/")
	require.ErrorAs(t, err, &handleErr)
	assert.Equal(t, "connection", handleErr.Handle)
	assert.ErrorIs(t, err, fs.ErrClosed)
	assert.ErrorIs(t, err, syscall.EBADF)

	var nilConn *Conn
	_, err = nilConn.Open(ctx, "/x", "r")
	assert.ErrorAs(t, err, &handleErr)
	assert.ErrorAs(t, nilConn.Disconnect(ctx), &handleErr)
	assert.True(t, nilConn.Released())

	var zeroFile File
	_, err = zeroFile.Read(ctx, 1)
	require.ErrorAs(t, err, &handleErr)
	assert.Equal(t, "file", handleErr.Handle)
	assert.ErrorAs(t, zeroFile.Close(ctx), &handleErr)

	for _, f := range []*File{nil, &zeroFile} {
		_, err = f.Read(ctx, 1)
		assert.ErrorAs(t, err, &handleErr)
		_, err = f.Pread(ctx, 0, 1)
		assert.ErrorAs(t, err, &handleErr)
		_, err = f.Write(ctx, []byte("x"))
		assert.ErrorAs(t, err, &handleErr)
		assert.ErrorAs(t, f.Flush(ctx), &handleErr)
		assert.ErrorAs(t, f.Seek(ctx, 0), &handleErr)
		assert.Equal(t, Offset(-1), f.Tell(ctx))
		_, err = f.Position(ctx)
		assert.ErrorAs(t, err, &handleErr)
		_, err = f.Available(ctx)
		assert.ErrorAs(t, err, &handleErr)
		assert.ErrorAs(t, f.Close(ctx), &handleErr)
	}
}

func TestMetrics_Recorded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.connect(t)

	writeFile(t, c, "/m", []byte("12345"))
	assert.Equal(t, []byte("12345"), readFile(t, c, "/m"))
	_, err := c.Open(ctx, "/missing", "r")
	require.Error(t, err)
	require.NoError(t, c.Disconnect(ctx))

	ops, errs, bytes, conns, handles := env.metrics.snapshot()
	assert.Equal(t, 1, ops["connect"])
	assert.Equal(t, 3, ops["open"])
	assert.Equal(t, 1, errs["open"])
	assert.Equal(t, 1, ops["disconnect"])
	assert.Equal(t, int64(5), bytes["write"])
	assert.Equal(t, int64(5), bytes["read"])
	assert.Zero(t, conns)
	assert.Zero(t, handles)
}
