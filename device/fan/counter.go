package fan

import (
	"sync"
	"sync/atomic"
)

// EdgeCounter is the edge-domain state of one tachometer: the number of
// accepted edges in the open window and the tick of the last accepted edge.
//
// OnEdge is the only writer of the debounce state. The window handler only
// ever touches the count, through Swap.
//
// The count is 32 bits wide per window. With the default 10 tick debounce at
// 64µs per tick no more than ~1562 edges/s can be accepted, so a window would
// need to last about a month to overflow it.
type EdgeCounter struct {
	threshold uint32

	count    atomic.Uint32
	rejected atomic.Uint64

	mu     sync.Mutex
	last   uint32
	primed bool
}

func NewEdgeCounter(debounceTicks uint32) *EdgeCounter {
	return &EdgeCounter{threshold: debounceTicks}
}

// OnEdge accepts the edge at tick unless it came less than the debounce
// threshold after the previous accepted edge. The first edge is always
// accepted.
func (c *EdgeCounter) OnEdge(tick uint32) bool {
	c.mu.Lock()
	if c.primed && tick-c.last < c.threshold {
		c.mu.Unlock()
		c.rejected.Add(1)
		return false
	}
	c.last = tick
	c.primed = true
	c.count.Add(1)
	c.mu.Unlock()
	return true
}

// Swap returns the edges counted so far and restarts the count at zero in one
// atomic step.
func (c *EdgeCounter) Swap() uint32 {
	return c.count.Swap(0)
}

// Pending is the count of the still open window.
func (c *EdgeCounter) Pending() uint32 {
	return c.count.Load()
}

// Rejected is the total number of edges dropped by the debounce filter.
func (c *EdgeCounter) Rejected() uint64 {
	return c.rejected.Load()
}
