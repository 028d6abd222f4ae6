package metrics

import (
	"time"

	"github.com/marmos91/godfs/pkg/content/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// s3Metrics is the Prometheus implementation of the s3.Metrics interface.
//
// This implementation collects metrics about S3 operations including:
//   - Operation counts and latency (GetObject, PutObject, etc.)
//   - Bytes transferred
//   - Write buffer uploads by reason
type s3Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
	flushOperations   *prometheus.CounterVec
	flushBytes        *prometheus.HistogramVec
}

// NewS3Metrics creates a new Prometheus-backed s3.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// causes the S3 content store to use its built-in no-op implementation.
func NewS3Metrics() s3.Metrics {
	if !IsEnabled() {
		return nil // S3 content store will use noopMetrics
	}
	return newS3Metrics(GetRegistry())
}

func newS3Metrics(reg prometheus.Registerer) *s3Metrics {
	return &s3Metrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "godfs_s3_operations_total",
				Help: "Total number of S3 operations by operation type and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "godfs_s3_operation_duration_seconds",
				Help: "Duration of S3 operations in seconds",
				Buckets: []float64{
					0.01,  // 10ms
					0.025, // 25ms
					0.05,  // 50ms
					0.1,   // 100ms
					0.25,  // 250ms
					0.5,   // 500ms
					1.0,   // 1s
					2.5,   // 2.5s
					5.0,   // 5s
					10.0,  // 10s
					30.0,  // 30s
				},
			},
			[]string{"operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "godfs_s3_bytes_transferred_total",
				Help: "Total bytes transferred in S3 operations",
			},
			[]string{"operation"}, // read or write
		),
		errorsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "godfs_s3_errors_total",
				Help: "Total number of S3 operation errors by operation type",
			},
			[]string{"operation"},
		),
		flushOperations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "godfs_s3_flush_operations_total",
				Help: "Total number of write buffer uploads by reason and status",
			},
			[]string{"reason", "status"},
		),
		flushBytes: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "godfs_s3_flush_bytes",
				Help: "Size of uploaded write buffers in bytes by reason",
				Buckets: []float64{
					4096,      // 4KB
					65536,     // 64KB
					524288,    // 512KB
					1048576,   // 1MB
					5242880,   // 5MB
					10485760,  // 10MB
					52428800,  // 50MB
					104857600, // 100MB
				},
			},
			[]string{"reason"},
		),
	}
}

// ObserveOperation implements s3.Metrics.
func (m *s3Metrics) ObserveOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		m.errorsTotal.WithLabelValues(operation).Inc()
	}

	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordBytes implements s3.Metrics.
func (m *s3Metrics) RecordBytes(operation string, bytes int64) {
	m.bytesTransferred.WithLabelValues(operation).Add(float64(bytes))
}

// RecordFlushOperation implements s3.Metrics.
//
// Records a complete upload of a write buffer with:
//   - reason: Why the upload was triggered (flush, close, threshold)
//   - bytes: Total bytes uploaded
//   - duration: Total upload duration
//   - err: Error if the upload failed
func (m *s3Metrics) RecordFlushOperation(reason string, bytes int64, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	m.flushOperations.WithLabelValues(reason, status).Inc()
	m.flushBytes.WithLabelValues(reason).Observe(float64(bytes))

	// Record overall flush duration as an operation
	m.operationDuration.WithLabelValues("flush").Observe(duration.Seconds())
}
