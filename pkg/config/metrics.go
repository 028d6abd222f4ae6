package config

import (
	"github.com/marmos91/godfs/internal/ratelimiter"
	"github.com/marmos91/godfs/pkg/dfs"
	"github.com/marmos91/godfs/pkg/metrics"
	promMetrics "github.com/marmos91/godfs/pkg/metrics/prometheus"
	"github.com/marmos91/godfs/pkg/registry"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// ClientMetrics is the collector for facade operations (never nil, uses noop if disabled)
	ClientMetrics metrics.ClientMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns no-op metrics implementations (zero overhead)
//
// InitializeMetrics must run before InitializeRegistry so that stores
// created there (S3) pick up the registry.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			ClientMetrics: metrics.NewNoopClientMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Metrics.Port,
	})

	return &MetricsResult{
		Server:        server,
		ClientMetrics: promMetrics.NewClientMetrics(),
	}
}

// NewClient builds a dfs.Client over reg using the client and transfer
// sections of cfg.
func NewClient(cfg *Config, reg *registry.Registry, m metrics.ClientMetrics) *dfs.Client {
	opts := []dfs.Option{
		dfs.WithMetrics(m),
		dfs.WithLocalHost(cfg.Client.LocalHost),
		dfs.WithTransferBufferSize(cfg.Transfer.BufferSize),
	}
	if limiter := ratelimiter.New(cfg.Transfer.BandwidthBytesPerSec, cfg.Transfer.BurstBytes); limiter != nil {
		opts = append(opts, dfs.WithTransferLimiter(limiter))
	}
	return dfs.New(reg, opts...)
}
