package timing

import "time"

// Clock is a monotonic millisecond tick counter. The counter wraps at 2^32;
// callers compare times with Elapsed, never with absolute ordering.
type Clock interface {
	Millis() uint32
}

// Elapsed returns the milliseconds between since and now, tolerating wraparound.
func Elapsed(now, since uint32) uint32 {
	return now - since
}

// MonotonicClock derives milliseconds from the Go monotonic clock.
type MonotonicClock struct {
	start time.Time
}

func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

func (c *MonotonicClock) Millis() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// ManualClock is advanced explicitly; used by simulations and tests.
type ManualClock struct {
	Now uint32
}

func (c *ManualClock) Millis() uint32 {
	return c.Now
}

// Advance moves the clock forward by ms.
func (c *ManualClock) Advance(ms uint32) {
	c.Now += ms
}
