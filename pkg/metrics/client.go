package metrics

import "time"

// ClientMetrics provides observability for filesystem client operations.
//
// Implementations can collect metrics about operation latency and outcome,
// bytes moved through file handles, and the number of open connections and
// handles. This interface is optional - if not provided to the client, a
// no-op implementation is used with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	client := dfs.New(reg, dfs.WithMetrics(prometheus.NewClientMetrics()))
//
//	// Without metrics (no-op)
//	client := dfs.New(reg)
type ClientMetrics interface {
	// ObserveOperation records a completed client operation.
	//
	// Parameters:
	//   - operation: Operation name (e.g., "open", "read", "list")
	//   - backend: Scheme of the backend that served it (e.g., "hdfs")
	//   - duration: Time taken to complete the operation
	//   - err: Error if the operation failed, nil if successful
	ObserveOperation(operation, backend string, duration time.Duration, err error)

	// RecordBytes records bytes moved through a file handle or a transfer.
	//
	// Parameters:
	//   - direction: "read", "write", "get" or "put"
	//   - bytes: Number of bytes transferred
	RecordBytes(direction string, bytes int64)

	// ConnectionOpened and ConnectionClosed track live connections per backend.
	ConnectionOpened(backend string)
	ConnectionClosed(backend string)

	// HandleOpened and HandleClosed track open file handles by mode ("r" or "w").
	HandleOpened(mode string)
	HandleClosed(mode string)
}

type noopClientMetrics struct{}

// NewNoopClientMetrics returns a ClientMetrics that discards everything.
func NewNoopClientMetrics() ClientMetrics {
	return noopClientMetrics{}
}

func (noopClientMetrics) ObserveOperation(string, string, time.Duration, error) {}
func (noopClientMetrics) RecordBytes(string, int64)                             {}
func (noopClientMetrics) ConnectionOpened(string)                               {}
func (noopClientMetrics) ConnectionClosed(string)                               {}
func (noopClientMetrics) HandleOpened(string)                                   {}
func (noopClientMetrics) HandleClosed(string)                                   {}
