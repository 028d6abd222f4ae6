package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

const configHeader = `# godfs Configuration File
#
# Values set here are overridden by GODFS_* environment variables
# (for example GODFS_LOGGING_LEVEL=DEBUG) and by command-line flags.
# The same settings may be written as TOML, or as JSON with comments
# in a .jsonc file passed with --config.

`

// sectionComments documents each top-level section of the generated file.
var sectionComments = map[string]string{
	"logging":  "Log level (DEBUG, INFO, WARN, ERROR), format (text, json) and output (stdout, stderr, or a file path).",
	"client":   "Default connection target for the CLI, the user sent to backends,\nand the host used for the local side of get/put (empty = local filesystem).",
	"backends": "The default backend serves hosts given without a scheme (hdfs or cluster).\nThe cluster backend keeps its namespace in a metadata store (memory, badger)\nand file bytes in a content store (memory, filesystem, s3).\nA non-zero cluster gc.interval deletes orphaned content in the background.",
	"transfer": "Chunk size and optional bandwidth cap for get, put and mv.",
	"metrics":  "Prometheus endpoint served on /metrics while the CLI runs.",
}

// InitConfig writes a default configuration file to the default location
// and returns its path. An existing file is only replaced when force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to path, creating
// parent directories as needed. The file is replaced atomically.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	data, err := renderDefaultConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// renderDefaultConfig encodes GetDefaultConfig as commented YAML.
func renderDefaultConfig() ([]byte, error) {
	var node yaml.Node
	if err := node.Encode(GetDefaultConfig()); err != nil {
		return nil, fmt.Errorf("failed to encode default config: %w", err)
	}

	root := &node
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i]
		if comment, ok := sectionComments[key.Value]; ok {
			key.HeadComment = "# " + strings.ReplaceAll(comment, "\n", "\n# ")
		}
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("failed to encode default config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode default config: %w", err)
	}

	return buf.Bytes(), nil
}
