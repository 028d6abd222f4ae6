package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	b := &cfg.Backends

	switch b.Default {
	case "hdfs":
		if !b.HDFS.Enabled {
			return fmt.Errorf("backends.default: hdfs is the default backend but backends.hdfs.enabled is false")
		}
	case "cluster":
		if !b.Cluster.Enabled {
			return fmt.Errorf("backends.default: cluster is the default backend but backends.cluster.enabled is false")
		}
	}

	if b.Cluster.Enabled {
		if b.Cluster.Metadata.Type == "badger" && stringOption(b.Cluster.Metadata.Badger, "db_path") == "" &&
			b.Cluster.Metadata.Badger["in_memory"] != true {
			return fmt.Errorf("backends.cluster.metadata.badger: db_path is required")
		}
		if b.Cluster.Content.Type == "filesystem" && stringOption(b.Cluster.Content.Filesystem, "path") == "" {
			return fmt.Errorf("backends.cluster.content.filesystem: path is required")
		}
		if b.Cluster.Content.Type == "s3" && stringOption(b.Cluster.Content.S3, "bucket") == "" {
			return fmt.Errorf("backends.cluster.content.s3: bucket is required")
		}
	}

	if cfg.Transfer.BurstBytes > 0 && cfg.Transfer.BandwidthBytesPerSec == 0 {
		return fmt.Errorf("transfer: burst_bytes is set but bandwidth_bytes_per_sec is 0")
	}

	return nil
}

func stringOption(options map[string]any, key string) string {
	s, _ := options[key].(string)
	return s
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		// Return the first validation error with context
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
