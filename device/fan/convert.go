package fan

import (
	"math"
	"time"
)

// RPM is a fan speed in revolutions per minute.
type RPM uint32

const (
	secondsPerMinute = 60
	microsPerSecond  = 1000000
)

// ToRPM converts the edges counted over one window to revolutions per minute:
//
//	rpm = edges * 60 / (ppr * window_seconds)
//
// It works in whole microseconds with integer floor division. The result
// saturates at math.MaxUint32.
func ToRPM(edges uint32, ppr uint32, window time.Duration) RPM {
	us := uint64(window / time.Microsecond)
	if edges == 0 || ppr == 0 || us == 0 {
		return 0
	}
	rpm := uint64(edges) * secondsPerMinute * microsPerSecond / (uint64(ppr) * us)
	if rpm > math.MaxUint32 {
		return math.MaxUint32
	}
	return RPM(rpm)
}
