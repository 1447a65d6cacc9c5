// Package clock provides the two notions of time used by the commerce
// components: a logical sequence for ordering local writes, and a wall clock
// for user-visible timestamps.
package clock

import (
	"sync/atomic"
	"time"
)

// Sequencer hands out strictly increasing sequence numbers.
type Sequencer interface {
	Next() int64
	Current() int64
}

// Logical is a monotonic logical clock.
//
// Every locally issued write is tagged with Next(). Sequence numbers order
// writes issued by one component; they are never compared with wall time.
//
// Safe for concurrent use.
type Logical struct {
	seq atomic.Int64
}

// NewLogical creates a clock starting at 0. The first Next() returns 1.
func NewLogical() *Logical {
	return &Logical{}
}

// NewLogicalAt creates a clock starting at a specific sequence number.
func NewLogicalAt(start int64) *Logical {
	c := &Logical{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Logical) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Logical) Current() int64 {
	return c.seq.Load()
}

// Wall supplies user-visible timestamps.
type Wall interface {
	Now() time.Time
}

// System is the real wall clock, in UTC.
type System struct{}

// Now returns the current UTC time.
func (System) Now() time.Time {
	return time.Now().UTC()
}
