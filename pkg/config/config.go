package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/godfs/pkg/backend/cluster"
	"github.com/marmos91/godfs/pkg/backend/hdfs"
	"github.com/marmos91/godfs/pkg/backend/local"
	"github.com/spf13/viper"
	"github.com/tailscale/hujson"
)

// Config represents the complete godfs client configuration.
//
// This structure captures all configurable aspects of a client process:
//   - Logging configuration
//   - Client identity and the host used for local transfers
//   - Backend selection and backend-specific settings
//   - Transfer tuning for Get, Put and Move
//   - Metrics exposition
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (GODFS_*)
//  3. Configuration file (YAML, TOML, or JSON with comments)
//  4. Default values (lowest priority)
//
// Store Configuration Pattern:
// The cluster backend is assembled from a metadata store and a content
// store. Each store section holds a Type plus one map per implementation,
// and only the map matching Type is decoded.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Client holds settings applied to every connection
	Client ClientConfig `mapstructure:"client" yaml:"client"`

	// Backends selects and configures the filesystem backends
	Backends BackendsConfig `mapstructure:"backends" yaml:"backends"`

	// Transfer tunes whole-file copies
	Transfer TransferConfig `mapstructure:"transfer" yaml:"transfer"`

	// Metrics controls the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ClientConfig holds settings that apply to every connection.
type ClientConfig struct {
	// Host and Port are the target used by the CLI when no --host is given.
	// "default" selects the default backend and "file://" the local
	// filesystem.
	Host string `mapstructure:"host" yaml:"host"`
	Port uint16 `mapstructure:"port" yaml:"port"`

	// User is the identity sent to backends that support one. Empty means
	// the process user.
	User string `mapstructure:"user" yaml:"user"`

	// LocalHost is the host used for the local side of Get and Put.
	// Empty selects the local filesystem backend.
	LocalHost string `mapstructure:"local_host" yaml:"local_host"`
}

// BackendsConfig selects the default backend and configures each one.
type BackendsConfig struct {
	// Default is the scheme used for hosts given without one
	// Valid values: hdfs, cluster
	Default string `mapstructure:"default" yaml:"default" validate:"required,oneof=hdfs cluster"`

	HDFS    HDFSConfig    `mapstructure:"hdfs" yaml:"hdfs"`
	Local   LocalConfig   `mapstructure:"local" yaml:"local"`
	Cluster ClusterConfig `mapstructure:"cluster" yaml:"cluster"`
}

// HDFSConfig configures the HDFS backend. The embedded hdfs.Config is used
// as is.
type HDFSConfig struct {
	Enabled     bool `mapstructure:"enabled" yaml:"enabled"`
	hdfs.Config `mapstructure:",squash" yaml:",inline"`
}

// LocalConfig configures the local filesystem backend, which is always
// registered.
type LocalConfig struct {
	local.Config `mapstructure:",squash" yaml:",inline"`
}

// ClusterConfig configures the in-process cluster backend and the stores it
// is built from.
type ClusterConfig struct {
	Enabled        bool `mapstructure:"enabled" yaml:"enabled"`
	cluster.Config `mapstructure:",squash" yaml:",inline"`

	// Metadata specifies the namespace store
	Metadata MetadataConfig `mapstructure:"metadata" yaml:"metadata"`

	// Content specifies the content store
	Content ContentConfig `mapstructure:"content" yaml:"content"`
}

// MetadataConfig specifies metadata store configuration.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type MetadataConfig struct {
	// Type specifies which metadata store implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory" yaml:"memory,omitempty"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger,omitempty"`
}

// ContentConfig specifies content store configuration.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type ContentConfig struct {
	// Type specifies which content store implementation to use
	// Valid values: memory, filesystem, s3
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory filesystem s3"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory" yaml:"memory,omitempty"`

	// Filesystem contains filesystem-specific configuration
	// Only used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem" yaml:"filesystem,omitempty"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3,omitempty"`
}

// TransferConfig tunes Get, Put and Move.
type TransferConfig struct {
	// BufferSize is the chunk size used when streaming between sessions
	BufferSize int `mapstructure:"buffer_size" yaml:"buffer_size" validate:"gte=0"`

	// BandwidthBytesPerSec caps transfer throughput. 0 means unlimited.
	BandwidthBytesPerSec uint `mapstructure:"bandwidth_bytes_per_sec" yaml:"bandwidth_bytes_per_sec"`

	// BurstBytes is the token bucket size. 0 means one second of traffic.
	BurstBytes uint `mapstructure:"burst_bytes" yaml:"burst_bytes"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (GODFS_*)
//  2. Configuration file
//  3. Default values
//
// Files ending in .jsonc or .hujson may contain comments and trailing
// commas; they are standardized to JSON before parsing.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the GODFS_ prefix and underscores
	// Example: GODFS_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("GODFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if configPath != "" {
		if isJSONC(configPath) {
			v.SetConfigType("json")
			return
		}
		v.SetConfigFile(configPath)
		return
	}

	// Default location: $XDG_CONFIG_HOME/godfs/config.{yaml,toml}
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// bindEnvKeys registers the scalar keys with viper. AutomaticEnv only
// consults the environment for keys viper already knows about, so a key
// missing from the config file would otherwise never pick up GODFS_*.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"logging.level", "logging.format", "logging.output",
		"client.host", "client.port", "client.user", "client.local_host",
		"backends.default",
		"backends.hdfs.enabled", "backends.hdfs.conf_dir", "backends.hdfs.user",
		"backends.local.root",
		"backends.cluster.enabled", "backends.cluster.address",
		"backends.cluster.metadata.type", "backends.cluster.content.type",
		"transfer.buffer_size", "transfer.bandwidth_bytes_per_sec", "transfer.burst_bytes",
		"metrics.enabled", "metrics.port",
	} {
		_ = v.BindEnv(key)
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper, configPath string) error {
	if configPath != "" && isJSONC(configPath) {
		return readJSONC(v, configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is acceptable - use defaults
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// readJSONC feeds a JSON-with-comments file to viper as plain JSON.
func readJSONC(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("invalid JSONC in %s: %w", path, err)
	}

	if err := v.ReadConfig(bytes.NewReader(standardized)); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func isJSONC(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonc", ".hujson":
		return true
	}
	return false
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "godfs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "godfs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
