package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/godfs/internal/logger"
	"github.com/marmos91/godfs/pkg/backend/cluster"
	"github.com/marmos91/godfs/pkg/backend/hdfs"
	"github.com/marmos91/godfs/pkg/backend/local"
	"github.com/marmos91/godfs/pkg/registry"
)

// InitializeRegistry creates a fully configured Registry from the provided configuration.
//
// This function orchestrates the complete initialization process:
//  1. Registers the local filesystem backend (always present)
//  2. Builds the cluster stores and registers the cluster backend, if enabled
//  3. Registers the HDFS backend, if enabled
//  4. Selects cfg.Backends.Default as the default scheme
//
// On failure every backend created so far is closed.
//
// Example:
//
//	cfg, _ := config.Load("config.yaml")
//	reg, err := config.InitializeRegistry(ctx, cfg)
//	if err != nil {
//	    log.Fatalf("Failed to initialize registry: %v", err)
//	}
//	defer reg.Close()
func InitializeRegistry(ctx context.Context, cfg *Config) (*registry.Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}
	logger.Debug("Initializing registry from configuration")

	reg := registry.NewRegistry()
	fail := func(err error) (*registry.Registry, error) {
		return nil, errors.Join(err, reg.Close())
	}

	localBackend, err := local.New(cfg.Backends.Local.Config)
	if err != nil {
		return fail(fmt.Errorf("failed to create local backend: %w", err))
	}
	if err := reg.Register(localBackend); err != nil {
		return fail(err)
	}

	if cfg.Backends.Cluster.Enabled {
		clusterBackend, err := createClusterBackend(ctx, &cfg.Backends.Cluster)
		if err != nil {
			return fail(fmt.Errorf("failed to create cluster backend: %w", err))
		}
		if err := reg.Register(clusterBackend); err != nil {
			return fail(errors.Join(err, clusterBackend.Close()))
		}
		logger.Debug("Cluster backend registered (metadata: %s, content: %s)",
			cfg.Backends.Cluster.Metadata.Type, cfg.Backends.Cluster.Content.Type)
	}

	if cfg.Backends.HDFS.Enabled {
		if err := reg.Register(hdfs.New(cfg.Backends.HDFS.Config)); err != nil {
			return fail(err)
		}
		logger.Debug("HDFS backend registered")
	}

	if err := reg.SetDefault(cfg.Backends.Default); err != nil {
		return fail(err)
	}
	logger.Debug("Registered %d backend(s), default %q", reg.CountBackends(), reg.Default())

	return reg, nil
}

// createClusterBackend builds the cluster's stores and assembles the
// backend. The backend owns the stores from then on.
func createClusterBackend(ctx context.Context, cfg *ClusterConfig) (*cluster.Backend, error) {
	meta, err := CreateMetadataStore(ctx, &cfg.Metadata)
	if err != nil {
		return nil, err
	}

	data, err := CreateContentStore(ctx, &cfg.Content)
	if err != nil {
		return nil, errors.Join(err, meta.Close())
	}

	return cluster.New(cfg.Config, meta, data), nil
}
