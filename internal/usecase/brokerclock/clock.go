package brokerclock

import (
	"sync"
	"time"
)

// alpha is the smoothing factor for the skew estimate. Small enough to ride
// out single delayed events, large enough to track a drifting broker clock.
const alpha = 0.1

// Clock estimates the offset between the broker's clock and the local clock
// from observed event timestamps and maps broker times onto the local
// timeline. All methods are safe for concurrent use.
type Clock struct {
	mu      sync.Mutex
	skew    time.Duration
	samples int
	nowFn   func() time.Time
}

// NewClock creates a clock with no skew observed yet.
func NewClock() *Clock {
	return &Clock{nowFn: time.Now}
}

// Observe records a broker timestamp together with the local receive time
// and updates the skew estimate.
func (c *Clock) Observe(brokerTime, localTime time.Time) {
	if brokerTime.IsZero() || localTime.IsZero() {
		return
	}

	offset := brokerTime.Sub(localTime)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.samples == 0 {
		c.skew = offset
	} else {
		c.skew = time.Duration(float64(c.skew)*(1-alpha) + float64(offset)*alpha)
	}
	c.samples++
}

// Skew returns the current broker minus local offset estimate.
func (c *Clock) Skew() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.skew
}

// Samples returns how many observations contributed to the estimate.
func (c *Clock) Samples() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.samples
}

// Normalize maps a broker timestamp onto the local timeline. A zero broker
// time normalizes to the current local time.
func (c *Clock) Normalize(brokerTime time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	if brokerTime.IsZero() {
		return c.nowFn()
	}
	return brokerTime.Add(-c.skew)
}
