package s3

import (
	"errors"
	"io"
	"time"

	"github.com/marmos91/godfs/pkg/content"
)

// Metrics provides observability for S3 operations.
//
// This is optional: if not provided, metrics collection is skipped. See
// pkg/metrics for the Prometheus implementation.
type Metrics interface {
	// ObserveOperation records an S3 operation with its duration and outcome
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records bytes transferred for read/write operations
	RecordBytes(operation string, bytes int64)

	// RecordFlushOperation records the upload of a write buffer
	RecordFlushOperation(reason string, bytes int64, duration time.Duration, err error)
}

// noopMetrics is a default no-op metrics implementation
type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, time.Duration, error)            {}
func (noopMetrics) RecordBytes(string, int64)                                {}
func (noopMetrics) RecordFlushOperation(string, int64, time.Duration, error) {}

func isContentNotFound(err error) bool {
	return errors.Is(err, content.ErrContentNotFound)
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
