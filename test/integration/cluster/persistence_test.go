//go:build integration

package cluster_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/marmos91/godfs/pkg/config"
	"github.com/marmos91/godfs/pkg/dfs"
)

// TestClusterPersistence_Integration runs the cluster backend over BadgerDB
// metadata and on-disk content, restarts it, and checks that files written
// before the restart are still readable.
//
// Prerequisites:
//   - None (BadgerDB is embedded, no external services needed)
//   - Run with: go test -tags=integration ./test/integration/cluster/...
func TestClusterPersistence_Integration(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cfg := config.GetDefaultConfig()
	cfg.Backends.Cluster.Metadata.Type = "badger"
	cfg.Backends.Cluster.Metadata.Badger = map[string]any{"db_path": filepath.Join(dir, "metadata")}
	cfg.Backends.Cluster.Content.Type = "filesystem"
	cfg.Backends.Cluster.Content.Filesystem = map[string]any{"path": filepath.Join(dir, "content")}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Invalid config: %v", err)
	}

	payload := []byte("persisted across restarts")

	// Phase 1: write a file and shut everything down
	withConn(t, cfg, func(conn *dfs.Conn) {
		f, err := conn.Open(ctx, "/persist/file.txt", "w")
		if err != nil {
			t.Fatalf("Open for write failed: %v", err)
		}
		if _, err := f.Write(ctx, payload); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if err := f.Close(ctx); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if ok, err := conn.Chmod(ctx, "/persist/file.txt", 0o600); !ok {
			t.Fatalf("Chmod failed: %v", err)
		}
	})

	// Phase 2: reopen the same stores and read it back
	withConn(t, cfg, func(conn *dfs.Conn) {
		st, err := conn.Stat(ctx, "/persist/file.txt")
		if err != nil || st == nil {
			t.Fatalf("Stat after restart failed: %v", err)
		}
		if st.Size != int64(len(payload)) {
			t.Errorf("Expected size %d, got %d", len(payload), st.Size)
		}

		entries, err := conn.ListDirectory(ctx, "/persist")
		if err != nil {
			t.Fatalf("ListDirectory failed: %v", err)
		}
		if len(entries) != 1 || entries[0].Permissions != 0o600 {
			t.Errorf("Unexpected listing after restart: %+v", entries)
		}

		f, err := conn.Open(ctx, "/persist/file.txt", "r")
		if err != nil {
			t.Fatalf("Open for read failed: %v", err)
		}
		defer f.Close(ctx)

		data, err := f.Read(ctx, dfs.MaxReadSize)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if string(data) != string(payload) {
			t.Errorf("Expected %q, got %q", payload, data)
		}

		used, err := conn.Used(ctx)
		if err != nil {
			t.Fatalf("Used failed: %v", err)
		}
		if used < int64(len(payload)) {
			t.Errorf("Expected at least %d bytes used, got %d", len(payload), used)
		}
	})
}

func withConn(t *testing.T, cfg *config.Config, fn func(conn *dfs.Conn)) {
	t.Helper()
	ctx := context.Background()

	reg, err := config.InitializeRegistry(ctx, cfg)
	if err != nil {
		t.Fatalf("InitializeRegistry failed: %v", err)
	}
	defer func() {
		if err := reg.Close(); err != nil {
			t.Errorf("Registry close failed: %v", err)
		}
	}()

	client := config.NewClient(cfg, reg, config.InitializeMetrics(cfg).ClientMetrics)
	conn, err := client.Connect(ctx, "default", 0)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Disconnect(ctx)

	fn(conn)
}
