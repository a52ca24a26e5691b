//go:build !linux
// +build !linux

package tick

import (
	"time"
)

var epoch = time.Now()

type Monotonic struct {
	Period time.Duration
}

func NewMonotonic(period time.Duration) *Monotonic {
	return &Monotonic{Period: period}
}

func (m *Monotonic) Ticks() uint32 {
	return FromDuration(m.Now(), m.Period)
}

func (m *Monotonic) Now() time.Duration {
	return time.Since(epoch)
}
