package ratelimiter

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"
)

// TestNew verifies limiter creation with different parameters.
func TestNew(t *testing.T) {
	tests := []struct {
		name           string
		bytesPerSecond uint
		burst          uint
		wantNil        bool
		wantBurst      int
	}{
		{name: "standard rate", bytesPerSecond: 1024, burst: 4096, wantBurst: 4096},
		{name: "default burst", bytesPerSecond: 512, burst: 0, wantBurst: 512},
		{name: "unlimited (zero rate)", bytesPerSecond: 0, burst: 0, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := New(tt.bytesPerSecond, tt.burst)
			if tt.wantNil {
				if limiter != nil {
					t.Fatal("New() should return nil for an unlimited rate")
				}
				return
			}
			if limiter == nil {
				t.Fatal("New() returned nil")
			}
			if got := limiter.limiter.Burst(); got != tt.wantBurst {
				t.Fatalf("burst = %d, want %d", got, tt.wantBurst)
			}
		})
	}
}

// TestNilLimiter verifies that a nil limiter never blocks.
func TestNilLimiter(t *testing.T) {
	var limiter *RateLimiter

	if err := limiter.WaitN(context.Background(), 1<<30); err != nil {
		t.Fatalf("nil limiter WaitN returned %v", err)
	}
	if !limiter.AllowN(1 << 20) {
		t.Fatal("nil limiter should allow everything")
	}
	limiter.SetLimit(10)

	src := bytes.NewReader([]byte("payload"))
	if limiter.Reader(context.Background(), src) != io.Reader(src) {
		t.Fatal("nil limiter should return the source reader unchanged")
	}
}

// TestWaitNSplitsLargeRequests verifies that requests above the burst
// are split instead of failing.
func TestWaitNSplitsLargeRequests(t *testing.T) {
	// 1000 B/s with a 100 byte bucket: 300 bytes need ~200ms after the burst
	limiter := New(1000, 100)

	start := time.Now()
	if err := limiter.WaitN(context.Background(), 300); err != nil {
		t.Fatalf("WaitN returned %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < 150*time.Millisecond || elapsed > 400*time.Millisecond {
		t.Fatalf("wait time %v outside expected range 150ms-400ms", elapsed)
	}
}

// TestWaitNContextCancellation verifies that WaitN respects cancellation.
func TestWaitNContextCancellation(t *testing.T) {
	limiter := New(10, 10)
	if !limiter.AllowN(10) {
		t.Fatal("initial burst should be available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := limiter.WaitN(ctx, 10); err == nil {
		t.Fatal("WaitN should fail when the context expires first")
	}
}

// TestAllowN verifies burst accounting.
func TestAllowN(t *testing.T) {
	limiter := New(10, 10)

	if !limiter.AllowN(5) {
		t.Fatal("AllowN(5) should succeed with burst of 10")
	}
	if !limiter.AllowN(5) {
		t.Fatal("AllowN(5) should succeed, total 10 within burst")
	}
	if limiter.AllowN(1) {
		t.Fatal("AllowN(1) should fail after burst exhausted")
	}
}

// TestSetLimitUnlimited verifies that a zero limit removes throttling.
func TestSetLimitUnlimited(t *testing.T) {
	limiter := New(1, 1)
	limiter.AllowN(1)
	limiter.SetLimit(0)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := limiter.WaitN(ctx, 1); err != nil {
		t.Fatalf("WaitN after SetLimit(0) returned %v", err)
	}
}

// TestReader verifies that the wrapping reader passes data through intact.
func TestReader(t *testing.T) {
	limiter := New(1<<20, 1<<20)
	payload := bytes.Repeat([]byte("godfs"), 1000)

	got, err := io.ReadAll(limiter.Reader(context.Background(), bytes.NewReader(payload)))
	if err != nil {
		t.Fatalf("ReadAll returned %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("limited reader altered the stream")
	}
}

// TestTokens verifies that Tokens reflects consumption.
func TestTokens(t *testing.T) {
	limiter := New(10, 10)

	initial := limiter.Tokens()
	if initial < 9 || initial > 10 {
		t.Fatalf("initial tokens %f outside expected range 9-10", initial)
	}

	limiter.AllowN(5)

	remaining := limiter.Tokens()
	if remaining < 4 || remaining > 6 {
		t.Fatalf("remaining tokens %f outside expected range 4-6", remaining)
	}
}

// BenchmarkWaitN measures the unthrottled fast path.
func BenchmarkWaitN(b *testing.B) {
	limiter := New(1<<40, 1<<30)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = limiter.WaitN(ctx, 4096)
	}
}
