// Package prometheus holds the Prometheus implementations of the metrics
// interfaces consumed by the client.
package prometheus

import (
	"time"

	"github.com/marmos91/godfs/pkg/backend"
	"github.com/marmos91/godfs/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// clientMetrics is the Prometheus implementation of metrics.ClientMetrics.
type clientMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
	activeConnections *prometheus.GaugeVec
	openHandles       *prometheus.GaugeVec
}

// NewClientMetrics creates a new Prometheus-backed ClientMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewClientMetrics() metrics.ClientMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopClientMetrics()
	}
	return newClientMetrics(metrics.GetRegistry())
}

func newClientMetrics(reg prometheus.Registerer) *clientMetrics {
	return &clientMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "godfs_client_operations_total",
				Help: "Total number of client operations by operation, backend, and status",
			},
			[]string{"operation", "backend", "status", "error_code"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "godfs_client_operation_duration_milliseconds",
				Help: "Duration of client operations in milliseconds",
				Buckets: []float64{
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
				},
			},
			[]string{"operation", "backend"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "godfs_client_bytes_transferred_total",
				Help: "Total bytes moved through file handles and transfers",
			},
			[]string{"direction"},
		),
		activeConnections: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "godfs_client_active_connections",
				Help: "Current number of open connections per backend",
			},
			[]string{"backend"},
		),
		openHandles: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "godfs_client_open_handles",
				Help: "Current number of open file handles by mode",
			},
			[]string{"mode"},
		),
	}
}

func (m *clientMetrics) ObserveOperation(operation, backendName string, duration time.Duration, err error) {
	status, code := "success", ""
	if err != nil {
		status, code = "error", backend.Errno(err).Error()
	}

	m.operationsTotal.WithLabelValues(operation, backendName, status, code).Inc()
	m.operationDuration.WithLabelValues(operation, backendName).Observe(duration.Seconds() * 1000) // Convert to milliseconds
}

func (m *clientMetrics) RecordBytes(direction string, bytes int64) {
	if bytes > 0 {
		m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
	}
}

func (m *clientMetrics) ConnectionOpened(backendName string) {
	m.activeConnections.WithLabelValues(backendName).Inc()
}

func (m *clientMetrics) ConnectionClosed(backendName string) {
	m.activeConnections.WithLabelValues(backendName).Dec()
}

func (m *clientMetrics) HandleOpened(mode string) {
	m.openHandles.WithLabelValues(mode).Inc()
}

func (m *clientMetrics) HandleClosed(mode string) {
	m.openHandles.WithLabelValues(mode).Dec()
}
