package ratelimiter

import (
	"context"
	"io"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles a byte stream using the token bucket algorithm.
//
// One token is one byte. Transfers call WaitN with the size of each chunk
// before moving it, so the sustained throughput never exceeds the configured
// bytes per second while short bursts up to the bucket size pass immediately.
//
// A nil *RateLimiter is valid and never blocks, which lets callers keep the
// limiter optional without nil checks at every call site.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter allowing bytesPerSecond sustained throughput.
//
// Parameters:
//   - bytesPerSecond: Maximum sustained rate. 0 disables limiting.
//   - burst: Bucket capacity in bytes. 0 defaults to one second of traffic.
//
// Returns nil when bytesPerSecond is 0.
func New(bytesPerSecond, burst uint) *RateLimiter {
	if bytesPerSecond == 0 {
		return nil
	}
	if burst == 0 {
		burst = bytesPerSecond
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), int(burst)),
	}
}

// WaitN blocks until n bytes may be transferred or ctx is cancelled.
//
// Requests larger than the bucket are split into burst-sized waits, since the
// underlying limiter rejects a single reservation above its burst.
func (r *RateLimiter) WaitN(ctx context.Context, n int) error {
	if r == nil || n <= 0 {
		return nil
	}

	burst := r.limiter.Burst()
	for n > 0 {
		chunk := n
		if chunk > burst {
			chunk = burst
		}
		if err := r.limiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// AllowN reports whether n bytes may be transferred right now, consuming the
// tokens if so.
func (r *RateLimiter) AllowN(n uint) bool {
	if r == nil {
		return true
	}
	return r.limiter.AllowN(time.Now(), int(n))
}

// SetLimit updates the sustained rate. 0 removes the limit.
func (r *RateLimiter) SetLimit(bytesPerSecond uint) {
	if r == nil {
		return
	}
	if bytesPerSecond == 0 {
		r.limiter.SetLimit(rate.Inf)
		return
	}
	r.limiter.SetLimit(rate.Limit(bytesPerSecond))
}

// Tokens returns the bytes currently available without waiting.
func (r *RateLimiter) Tokens() float64 {
	if r == nil {
		return 0
	}
	return r.limiter.Tokens()
}

// Reader wraps src so that every Read waits for its byte count.
func (r *RateLimiter) Reader(ctx context.Context, src io.Reader) io.Reader {
	if r == nil {
		return src
	}
	return &limitedReader{ctx: ctx, src: src, limiter: r}
}

type limitedReader struct {
	ctx     context.Context
	src     io.Reader
	limiter *RateLimiter
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.src.Read(p)
	if n > 0 {
		if waitErr := l.limiter.WaitN(l.ctx, n); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}
