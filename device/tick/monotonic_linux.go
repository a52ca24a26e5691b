//go:build linux
// +build linux

package tick

import (
	"time"

	"golang.org/x/sys/unix"
)

// Monotonic derives ticks from CLOCK_MONOTONIC_RAW, which is not slewed by NTP
// and uses the same time base as gpio chardev event timestamps.
type Monotonic struct {
	Period time.Duration
}

func NewMonotonic(period time.Duration) *Monotonic {
	return &Monotonic{Period: period}
}

func (m *Monotonic) Ticks() uint32 {
	return FromDuration(m.Now(), m.Period)
}

// Now returns the raw monotonic time since boot.
func (m *Monotonic) Now() time.Duration {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC_RAW, &ts); err != nil {
		return time.Duration(time.Now().UnixNano())
	}
	return time.Duration(ts.Nano())
}
