package config

import (
	"path/filepath"
	"strings"

	"github.com/marmos91/godfs/pkg/backend/cluster"
	"github.com/marmos91/godfs/pkg/backend/hdfs"
	"github.com/marmos91/godfs/pkg/registry"
)

// DefaultTransferBufferSize is the chunk size used by Get, Put and Move.
const DefaultTransferBufferSize = 64 << 10

// DefaultMetricsPort is the port of the Prometheus endpoint.
const DefaultMetricsPort = 9090

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Store-specific defaults are handled by store implementations
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyClientDefaults(&cfg.Client)
	applyBackendsDefaults(&cfg.Backends)
	applyTransferDefaults(&cfg.Transfer)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

// applyClientDefaults points the CLI at the default backend. "file://"
// selects the local filesystem instead.
func applyClientDefaults(cfg *ClientConfig) {
	if cfg.Host == "" {
		cfg.Host = registry.DefaultHost
	}
}

// applyBackendsDefaults picks a default backend and fills the cluster
// stores. With nothing configured the cluster backend is enabled over
// in-memory stores, so a fresh install works without a namenode.
func applyBackendsDefaults(cfg *BackendsConfig) {
	if cfg.Default == "" {
		if cfg.HDFS.Enabled && !cfg.Cluster.Enabled {
			cfg.Default = hdfs.Name
		} else {
			cfg.Default = "cluster"
		}
	}
	// The default backend is always registered.
	switch cfg.Default {
	case hdfs.Name:
		cfg.HDFS.Enabled = true
	case "cluster":
		cfg.Cluster.Enabled = true
	}

	if cfg.HDFS.Properties == nil {
		cfg.HDFS.Properties = make(map[string]string)
	}

	applyClusterDefaults(&cfg.Cluster)
}

// applyClusterDefaults sets cluster backend and store defaults.
func applyClusterDefaults(cfg *ClusterConfig) {
	if cfg.DefaultReplication == 0 {
		cfg.DefaultReplication = cluster.DefaultReplication
	}
	if cfg.DefaultBlockSize == 0 {
		cfg.DefaultBlockSize = cluster.DefaultBlockSize
	}

	applyMetadataDefaults(&cfg.Metadata)
	applyContentDefaults(&cfg.Content)
}

// applyMetadataDefaults sets metadata store defaults.
func applyMetadataDefaults(cfg *MetadataConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}

	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}

	// Apply defaults for all store types (for config file generation)
	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = filepath.Join(getDataDir(), "metadata")
	}
}

// applyContentDefaults sets content store defaults.
func applyContentDefaults(cfg *ContentConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}

	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	if _, ok := cfg.Memory["max_bytes"]; !ok {
		cfg.Memory["max_bytes"] = int64(1 << 30) // 1GB
	}
	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = filepath.Join(getDataDir(), "content")
	}
}

// applyTransferDefaults sets transfer defaults.
func applyTransferDefaults(cfg *TransferConfig) {
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultTransferBufferSize
	}
	// BandwidthBytesPerSec defaults to 0 (unlimited)
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}

// getDataDir returns the directory holding persistent cluster state.
func getDataDir() string {
	return filepath.Join(getConfigDir(), "data")
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
