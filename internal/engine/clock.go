package engine

import "sync/atomic"

// Clock hands out the sequence numbers of the requests issued during one
// evaluation. Requests for sibling sources are issued concurrently, so the
// sequence records issue order while results are still kept in plan order.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next issues the next sequence number. Concurrent callers never share one.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current is the last issued sequence number, 0 before the first request.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
