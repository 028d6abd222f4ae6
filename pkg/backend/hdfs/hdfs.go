// Package hdfs connects to a Hadoop Distributed File System namenode through
// the pure Go client github.com/colinmarc/hdfs/v2.
//
// Hadoop XML configuration (core-site.xml, hdfs-site.xml) is loaded once per
// Backend, the first time a session is opened, and merged with the
// properties given in Config. Nothing is read from or written to the process
// environment after that.
package hdfs

import (
	"context"
	"fmt"
	"maps"
	"net"
	"os/user"
	"strconv"
	"sync"
	"syscall"

	gohdfs "github.com/colinmarc/hdfs/v2"
	"github.com/colinmarc/hdfs/v2/hadoopconf"
	"github.com/marmos91/godfs/internal/logger"
	"github.com/marmos91/godfs/pkg/backend"
)

// Name is the scheme served by this backend.
const Name = "hdfs"

// DefaultPort is the namenode RPC port used when ConnectParams leave it at 0.
const DefaultPort backend.Port = 8020

// Config configures the HDFS Backend.
type Config struct {
	// ConfDir is a Hadoop configuration directory. Empty means
	// HADOOP_CONF_DIR, then HADOOP_HOME/conf.
	ConfDir string `mapstructure:"conf_dir" yaml:"conf_dir"`

	// Properties override keys from the XML configuration, e.g.
	// "fs.defaultFS" or "dfs.namenode.rpc-address.ns.nn1".
	Properties map[string]string `mapstructure:"properties" yaml:"properties"`

	// User is the identity used when ConnectParams carry none. Empty means
	// the process user.
	User string `mapstructure:"user" yaml:"user"`

	// DefaultReplication and DefaultBlockSize replace the namenode's server
	// defaults for files opened with 0. Zero keeps the server defaults.
	DefaultReplication int16 `mapstructure:"default_replication" yaml:"default_replication" validate:"gte=0"`
	DefaultBlockSize   int64 `mapstructure:"default_block_size" yaml:"default_block_size" validate:"gte=0"`

	// UseDatanodeHostname dials datanodes by hostname instead of IP, which
	// is needed when they sit behind NAT.
	UseDatanodeHostname bool `mapstructure:"use_datanode_hostname" yaml:"use_datanode_hostname"`
}

// Backend opens HDFS sessions.
type Backend struct {
	cfg Config

	once    sync.Once
	conf    hadoopconf.HadoopConf
	confErr error
}

// New creates an HDFS Backend. No configuration is read until the first
// Connect.
func New(cfg Config) *Backend {
	return &Backend{cfg: cfg}
}

// Name implements backend.Backend.
func (b *Backend) Name() string {
	return Name
}

// HadoopConf returns the merged Hadoop configuration, loading it on first
// use. Calling it again returns the same configuration.
func (b *Backend) HadoopConf() (hadoopconf.HadoopConf, error) {
	b.once.Do(func() {
		b.conf, b.confErr = b.loadConf()
	})
	return b.conf, b.confErr
}

func (b *Backend) loadConf() (hadoopconf.HadoopConf, error) {
	var (
		conf hadoopconf.HadoopConf
		err  error
	)
	if b.cfg.ConfDir != "" {
		conf, err = hadoopconf.Load(b.cfg.ConfDir)
	} else {
		conf, err = hadoopconf.LoadFromEnvironment()
	}
	if err != nil {
		return nil, fmt.Errorf("load hadoop configuration: %w", err)
	}
	return MergeProperties(conf, b.cfg.Properties), nil
}

// MergeProperties returns conf with props applied on top. Neither input is
// modified, and merging the same props again yields the same result.
func MergeProperties(conf hadoopconf.HadoopConf, props map[string]string) hadoopconf.HadoopConf {
	out := make(hadoopconf.HadoopConf, len(conf)+len(props))
	maps.Copy(out, conf)
	maps.Copy(out, props)
	return out
}

// Connect implements backend.Backend.
//
// An explicit host overrides the namenodes listed in the configuration.
// The namenode is queried for its server defaults before the session is
// returned, so an unreachable cluster fails here rather than on first use.
func (b *Backend) Connect(ctx context.Context, params backend.ConnectParams) (backend.Session, error) {
	const op = "connect"

	conf, err := b.HadoopConf()
	if err != nil {
		return nil, backend.NewError(op, params.Host, err)
	}

	// ========================================================================
	// Step 1: Build client options
	// ========================================================================

	opts := gohdfs.ClientOptionsFromConf(conf)
	if addr := namenodeAddress(params); addr != "" {
		opts.Addresses = []string{addr}
	}
	if len(opts.Addresses) == 0 {
		return nil, backend.Errorf(op, params.Host, syscall.EDESTADDRREQ, "no namenode address given or configured")
	}
	opts.User = b.userFor(params)
	opts.UseDatanodeHostname = opts.UseDatanodeHostname || b.cfg.UseDatanodeHostname

	target := opts.Addresses[0]
	if err := ctx.Err(); err != nil {
		return nil, backend.NewError(op, target, err)
	}

	// ========================================================================
	// Step 2: Dial and fetch server defaults
	// ========================================================================

	client, err := gohdfs.NewClient(opts)
	if err != nil {
		return nil, backend.NewError(op, target, err)
	}

	defaults, err := client.ServerDefaults()
	if err != nil {
		_ = client.Close()
		return nil, backend.NewError(op, target, err)
	}

	replication := int16(defaults.Replication)
	if b.cfg.DefaultReplication > 0 {
		replication = b.cfg.DefaultReplication
	}
	blockSize := defaults.BlockSize
	if b.cfg.DefaultBlockSize > 0 {
		blockSize = b.cfg.DefaultBlockSize
	}

	logger.Info("hdfs: connected to %s as %s", target, opts.User)

	return &session{
		client:      client,
		user:        opts.User,
		cwd:         backend.DefaultHomeDir(opts.User),
		replication: replication,
		blockSize:   blockSize,
	}, nil
}

// namenodeAddress returns host:port for params, or "" when no host is given.
func namenodeAddress(params backend.ConnectParams) string {
	if params.Host == "" {
		return ""
	}
	port := params.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(params.Host, strconv.Itoa(int(port)))
}

func (b *Backend) userFor(params backend.ConnectParams) string {
	if params.User != "" {
		return params.User
	}
	if b.cfg.User != "" {
		return b.cfg.User
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}
