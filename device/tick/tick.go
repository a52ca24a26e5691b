// Package tick models the board's free-running timer: a wrapping 32-bit
// counter advancing once per prescaled clock period.
package tick

import (
	"time"
)

// Clock is a free-running tick counter. The value wraps to zero after
// math.MaxUint32; callers only ever look at differences.
type Clock interface {
	Ticks() uint32
}

// Elapsed returns the ticks between two readings of a wrapping counter.
func Elapsed(from, to uint32) uint32 {
	return to - from
}

// FromDuration converts a monotonic timestamp to ticks of the given period,
// keeping only the low 32 bits the way the hardware counter would.
func FromDuration(d time.Duration, period time.Duration) uint32 {
	if period <= 0 {
		return 0
	}
	return uint32(uint64(d) / uint64(period))
}

// ToDuration is the inverse of FromDuration for a tick delta.
func ToDuration(ticks uint32, period time.Duration) time.Duration {
	return time.Duration(ticks) * period
}

// Manual is a Clock driven by hand, for tests and simulations.
type Manual struct {
	now uint32
}

func (m *Manual) Ticks() uint32 {
	return m.now
}

func (m *Manual) Set(v uint32) {
	m.now = v
}

func (m *Manual) Advance(n uint32) uint32 {
	m.now += n
	return m.now
}
