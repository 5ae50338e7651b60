package engine

import "github.com/muhammadchandra19/execution-engine/internal/usecase/ratelimit"

// Option configures optional engine behavior.
type Option func(*Engine)

// WithRateLimiter throttles submits through the given token bucket.
func WithRateLimiter(limiter *ratelimit.TokenBucket) Option {
	return func(e *Engine) {
		e.limiter = limiter
	}
}

// WithSnapshotStore enables the periodic position snapshot loop.
func WithSnapshotStore(store SnapshotStore) Option {
	return func(e *Engine) {
		e.snapshots = store
	}
}

// WithFlattenOnReject flattens all positions when an order is rejected.
// Flatten orders themselves are exempt, their rejections never recurse.
func WithFlattenOnReject() Option {
	return func(e *Engine) {
		e.flattenOnReject = true
	}
}
