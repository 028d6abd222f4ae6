// Package metrics collects client-side Prometheus metrics: operation
// latency and errors per backend, bytes moved by reads, writes and
// transfers, open connections and file handles, and S3 content store
// traffic of the cluster backend.
//
// Collection is off until InitRegistry is called. Until then the
// constructors return nil or no-op implementations, and callers such as
// dfs.New fall back to NewNoopClientMetrics.
//
//	metrics.InitRegistry()
//	client := dfs.New(reg, dfs.WithMetrics(prometheus.NewClientMetrics()))
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the process-wide registry, with the Go runtime and
// process collectors already registered. Later calls are no-ops.
func InitRegistry() {
	registryOnce.Do(func() {
		r := prometheus.NewRegistry()
		r.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: "godfs"}),
		)
		registry = r
	})
}

// GetRegistry returns the registry, or nil while metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}

// Handler serves the registry in the Prometheus exposition format. While
// metrics are disabled it answers 503.
func Handler() http.Handler {
	r := GetRegistry()
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics collection is disabled", http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(r, promhttp.HandlerOpts{
		Registry:          r,
		EnableOpenMetrics: true,
	})
}
