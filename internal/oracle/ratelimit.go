// ratelimit.go adapts the bot's token-bucket limiter to oracle polling:
// both price feeds are rate-limited independently so a misbehaving
// funding/liquidation loop cannot hammer either upstream provider into
// its own rate limit, which would otherwise surface as spurious
// InvalidPriceFeed/StalePrice failures.
package oracle

import (
	"context"
	"sync"
	"time"
)

// tokenBucket is a smooth-refill token-bucket rate limiter.
type tokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64
	lastTime time.Time
}

func newTokenBucket(capacity, ratePerSecond float64) *tokenBucket {
	return &tokenBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

// wait blocks until a token is available or ctx is cancelled.
func (tb *tokenBucket) wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.lastTime).Seconds()
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTime = now

		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}

		waitFor := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitFor):
		}
	}
}

// RateLimitedPrimary wraps a PrimaryReader with a token-bucket limiter
// (RateLimitedSecondary does the same for a SecondaryReader). Both
// readers in a Reconciler should be wrapped independently —
// one feed's backpressure must never stall the other.
type RateLimitedPrimary struct {
	reader PrimaryReader
	bucket *tokenBucket
}

// NewRateLimitedPrimary wraps reader with a limiter allowing burst
// requests up to capacity, refilling at ratePerSecond.
func NewRateLimitedPrimary(reader PrimaryReader, capacity, ratePerSecond float64) *RateLimitedPrimary {
	return &RateLimitedPrimary{reader: reader, bucket: newTokenBucket(capacity, ratePerSecond)}
}

// Read waits for a token, then delegates to the wrapped reader.
func (r *RateLimitedPrimary) Read(ctx context.Context) (PrimarySample, error) {
	if err := r.bucket.wait(ctx); err != nil {
		return PrimarySample{}, err
	}
	return r.reader.Read(ctx)
}

// RateLimitedSecondary is the SecondaryReader equivalent of RateLimitedPrimary.
type RateLimitedSecondary struct {
	reader SecondaryReader
	bucket *tokenBucket
}

// NewRateLimitedSecondary wraps reader with a token-bucket limiter.
func NewRateLimitedSecondary(reader SecondaryReader, capacity, ratePerSecond float64) *RateLimitedSecondary {
	return &RateLimitedSecondary{reader: reader, bucket: newTokenBucket(capacity, ratePerSecond)}
}

// Read waits for a token, then delegates to the wrapped reader.
func (r *RateLimitedSecondary) Read(ctx context.Context) (SecondarySample, error) {
	if err := r.bucket.wait(ctx); err != nil {
		return SecondarySample{}, err
	}
	return r.reader.Read(ctx)
}
