package config

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/marmos91/godfs/pkg/content"
	"github.com/marmos91/godfs/pkg/metadata"
)

func TestCreateContentStore_Filesystem(t *testing.T) {
	ctx := context.Background()
	cfg := &ContentConfig{
		Type: "filesystem",
		Filesystem: map[string]any{
			"path":          t.TempDir(),
			"fd_cache_size": "16", // weakly typed, as env vars arrive
		},
	}

	store, err := CreateContentStore(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to create filesystem content store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	exerciseContentStore(t, store)
}

func TestCreateContentStore_FilesystemMissingPath(t *testing.T) {
	cfg := &ContentConfig{
		Type:       "filesystem",
		Filesystem: map[string]any{},
	}

	_, err := CreateContentStore(context.Background(), cfg)
	if err == nil {
		t.Fatal("Expected error for missing path")
	}
	if !strings.Contains(err.Error(), "path is required") {
		t.Errorf("Expected 'path is required' error, got: %v", err)
	}
}

func TestCreateContentStore_Memory(t *testing.T) {
	cfg := &ContentConfig{
		Type:   "memory",
		Memory: map[string]any{"max_bytes": 1024},
	}

	store, err := CreateContentStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create memory content store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	exerciseContentStore(t, store)
}

func TestCreateContentStore_S3MissingFields(t *testing.T) {
	tests := []struct {
		name    string
		options map[string]any
		want    string
	}{
		{"no bucket", map[string]any{"region": "us-east-1"}, "bucket is required"},
		{"no region", map[string]any{"bucket": "data"}, "region is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateContentStore(context.Background(), &ContentConfig{Type: "s3", S3: tt.options})
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestNewS3Client_Endpoint(t *testing.T) {
	client, err := NewS3Client(context.Background(), S3ContentStoreOptions{
		Region:          "us-east-1",
		Endpoint:        "http://localhost:4566",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	if err != nil {
		t.Fatalf("NewS3Client failed: %v", err)
	}

	opts := client.Options()
	if opts.BaseEndpoint == nil || *opts.BaseEndpoint != "http://localhost:4566" {
		t.Errorf("Expected custom base endpoint, got %v", opts.BaseEndpoint)
	}
	if !opts.UsePathStyle {
		t.Error("Expected path-style addressing with a custom endpoint")
	}
	if opts.Region != "us-east-1" {
		t.Errorf("Expected region us-east-1, got %q", opts.Region)
	}
}

func TestCreateContentStore_UnknownType(t *testing.T) {
	_, err := CreateContentStore(context.Background(), &ContentConfig{Type: "tape"})
	if err == nil {
		t.Fatal("Expected error for unknown store type")
	}
	if !strings.Contains(err.Error(), "unknown content store type") {
		t.Errorf("Expected 'unknown content store type' error, got: %v", err)
	}
}

func TestCreateMetadataStore_Memory(t *testing.T) {
	cfg := &MetadataConfig{
		Type:   "memory",
		Memory: map[string]any{"max_files": 10},
	}

	store, err := CreateMetadataStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create memory metadata store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	exerciseMetadataStore(t, store)
}

func TestCreateMetadataStore_Badger(t *testing.T) {
	cfg := &MetadataConfig{
		Type:   "badger",
		Badger: map[string]any{"db_path": t.TempDir()},
	}

	store, err := CreateMetadataStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create badger metadata store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	exerciseMetadataStore(t, store)
}

func TestCreateMetadataStore_BadgerMissingPath(t *testing.T) {
	_, err := CreateMetadataStore(context.Background(), &MetadataConfig{Type: "badger"})
	if err == nil {
		t.Fatal("Expected error for missing db_path")
	}
	if !strings.Contains(err.Error(), "db_path is required") {
		t.Errorf("Expected 'db_path is required' error, got: %v", err)
	}
}

func TestCreateMetadataStore_UnknownType(t *testing.T) {
	_, err := CreateMetadataStore(context.Background(), &MetadataConfig{Type: "postgres"})
	if err == nil {
		t.Fatal("Expected error for unknown store type")
	}
	if !strings.Contains(err.Error(), "unknown metadata store type") {
		t.Errorf("Expected 'unknown metadata store type' error, got: %v", err)
	}
}

func TestCreateContentStore_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := &ContentConfig{
		Type: "filesystem",
		Filesystem: map[string]any{
			"path": t.TempDir(),
		},
	}

	_, err := CreateContentStore(ctx, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context canceled error, got: %v", err)
	}
}

func TestCreateMetadataStore_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := CreateMetadataStore(ctx, &MetadataConfig{Type: "memory"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled error, got: %v", err)
	}
}

// exerciseContentStore checks that a factory-built store round-trips bytes.
func exerciseContentStore(t *testing.T, store content.Store) {
	t.Helper()
	ctx := context.Background()
	id := metadata.ContentID("factory-test")

	if err := store.WriteAt(ctx, id, []byte("hello"), 0); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}
	buf := make([]byte, 5)
	n, err := store.ReadAt(ctx, id, buf, 0)
	if (err != nil && !errors.Is(err, io.EOF)) || n != 5 || string(buf) != "hello" {
		t.Fatalf("ReadAt = %d, %q, %v", n, buf[:n], err)
	}
}

// exerciseMetadataStore checks that a factory-built store holds entries.
func exerciseMetadataStore(t *testing.T, store metadata.Store) {
	t.Helper()
	ctx := context.Background()

	if err := store.MkdirAll(ctx, "/a/b", metadata.Entry{Mode: 0o755}); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	entry, err := store.Get(ctx, "/a/b")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !entry.IsDir() {
		t.Errorf("Expected /a/b to be a directory, got %+v", entry)
	}
}
