package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_DefaultConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "info"

backends:
  cluster:
    content:
      type: "filesystem"
      filesystem:
        path: "/tmp/godfs-test-content"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected normalized level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Backends.Default != "cluster" {
		t.Errorf("Expected default backend 'cluster', got %q", cfg.Backends.Default)
	}
	if !cfg.Backends.Cluster.Enabled {
		t.Error("Expected the default backend to be enabled")
	}
	if cfg.Backends.Cluster.Metadata.Type != "memory" {
		t.Errorf("Expected default metadata type 'memory', got %q", cfg.Backends.Cluster.Metadata.Type)
	}
	if got := cfg.Backends.Cluster.Content.Filesystem["path"]; got != "/tmp/godfs-test-content" {
		t.Errorf("Expected explicit content path to be kept, got %v", got)
	}
	if cfg.Transfer.BufferSize != DefaultTransferBufferSize {
		t.Errorf("Expected default buffer size %d, got %d", DefaultTransferBufferSize, cfg.Transfer.BufferSize)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// A non-existent explicit path keeps us away from ~/.config/godfs/
	nonExistentPath := filepath.Join(t.TempDir(), "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Backends.Cluster.Content.Type != "memory" {
		t.Errorf("Expected default content type 'memory', got %q", cfg.Backends.Cluster.Content.Type)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid.yaml", `
logging:
  level: INFO
  invalid yaml here [[[
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
[logging]
level = "WARN"
format = "json"

[backends]
default = "hdfs"

[backends.hdfs]
conf_dir = "/etc/hadoop/conf"
user = "hdfs"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format 'json', got %q", cfg.Logging.Format)
	}
	if !cfg.Backends.HDFS.Enabled {
		t.Error("Expected hdfs to be enabled as the default backend")
	}
	if cfg.Backends.HDFS.ConfDir != "/etc/hadoop/conf" {
		t.Errorf("Expected conf_dir from file, got %q", cfg.Backends.HDFS.ConfDir)
	}
	if cfg.Backends.HDFS.User != "hdfs" {
		t.Errorf("Expected user 'hdfs', got %q", cfg.Backends.HDFS.User)
	}
	if cfg.Backends.Cluster.Enabled {
		t.Error("Expected cluster to stay disabled")
	}
}

func TestLoad_JSONC(t *testing.T) {
	configPath := writeConfig(t, "config.jsonc", `{
  // comments and trailing commas are allowed
  "logging": {"level": "debug",},
  "client": {"host": "namenode", "port": 8020, "user": "alice"},
  "backends": {
    "cluster": {
      "address": "namenode:8020",
      "max_sessions": 4,
      "gc": {"interval": "1h", "dry_run": true},
    },
  },
  "transfer": {"bandwidth_bytes_per_sec": 1048576},
}`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load JSONC config: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Client.Host != "namenode" || cfg.Client.Port != 8020 || cfg.Client.User != "alice" {
		t.Errorf("Unexpected client section: %+v", cfg.Client)
	}
	if cfg.Backends.Cluster.Address != "namenode:8020" {
		t.Errorf("Expected cluster address from squashed section, got %q", cfg.Backends.Cluster.Address)
	}
	if cfg.Backends.Cluster.MaxSessions != 4 {
		t.Errorf("Expected max_sessions 4, got %d", cfg.Backends.Cluster.MaxSessions)
	}
	if gc := cfg.Backends.Cluster.GC; gc.Interval != time.Hour || !gc.DryRun {
		t.Errorf("Expected gc interval 1h with dry run, got %+v", gc)
	}
	if cfg.Transfer.BandwidthBytesPerSec != 1<<20 {
		t.Errorf("Expected bandwidth 1MiB/s, got %d", cfg.Transfer.BandwidthBytesPerSec)
	}
}

func TestLoad_InvalidJSONC(t *testing.T) {
	configPath := writeConfig(t, "config.hujson", `{"logging": {`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error with invalid JSONC, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
logging:
  format: "xml"
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for unknown log format")
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Output != "stderr" {
		t.Errorf("Expected default log output 'stderr', got %q", cfg.Logging.Output)
	}
	if cfg.Backends.Default != "cluster" {
		t.Errorf("Expected default backend 'cluster', got %q", cfg.Backends.Default)
	}
	if cfg.Backends.HDFS.Enabled {
		t.Error("Expected hdfs disabled by default")
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected metrics disabled by default")
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Expected default metrics port %d, got %d", DefaultMetricsPort, cfg.Metrics.Port)
	}
}

func TestConfigExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if ConfigExists() {
		t.Fatal("Expected no config in a fresh config home")
	}
	if _, err := InitConfig(false); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	if !ConfigExists() {
		t.Fatal("Expected config to exist after InitConfig")
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()

	if !filepath.IsAbs(path) {
		t.Errorf("Expected absolute path, got %q", path)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("Expected filename 'config.yaml', got %q", filepath.Base(path))
	}
}

func TestGetConfigDir(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	if dir := GetConfigDir(); dir != filepath.Join(xdg, "godfs") {
		t.Errorf("Expected %q, got %q", filepath.Join(xdg, "godfs"), dir)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("GODFS_LOGGING_LEVEL", "ERROR")
	t.Setenv("GODFS_CLIENT_USER", "envuser")
	t.Setenv("GODFS_METRICS_PORT", "9191")

	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"

metrics:
  port: 9090
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.Client.User != "envuser" {
		t.Errorf("Expected user from env var even without a file entry, got %q", cfg.Client.User)
	}
	if cfg.Metrics.Port != 9191 {
		t.Errorf("Expected port 9191 from env var, got %d", cfg.Metrics.Port)
	}
}
