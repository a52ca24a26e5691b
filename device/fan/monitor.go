package fan

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"fantach/config"
	"fantach/log"
)

type fanAlarm struct {
	low     int
	alarm   bool
	limiter *rate.Limiter
}

// Monitor raises a stall alarm for a fan whose raw RPM stayed at or below
// the minimum for several consecutive windows. Alarms are data: callers poll
// Alarmed or AnyAlarm and decide what to do about it.
type Monitor struct {
	minRPM       RPM
	stallWindows int
	repeat       time.Duration

	mu    sync.Mutex
	fans  map[int]*fanAlarm
	names map[int]string
}

func NewMonitor(cfg config.MonitorConfig) *Monitor {
	if cfg.StallWindows < 1 {
		cfg.StallWindows = 1
	}
	repeat := time.Duration(cfg.AlarmRepeatMs) * time.Millisecond
	if repeat <= 0 {
		repeat = time.Minute
	}
	return &Monitor{
		minRPM:       RPM(cfg.MinRPM),
		stallWindows: cfg.StallWindows,
		repeat:       repeat,
		fans:         make(map[int]*fanAlarm),
		names:        make(map[int]string),
	}
}

func (m *Monitor) state(fan int) *fanAlarm {
	st, ok := m.fans[fan]
	if !ok {
		st = &fanAlarm{limiter: rate.NewLimiter(rate.Every(m.repeat), 1)}
		m.fans[fan] = st
	}
	return st
}

func (m *Monitor) OnWindow(r Reading) {
	// the first window includes spin-up, ignore it
	if r.Windows <= 1 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.names[r.Fan] = r.Name
	st := m.state(r.Fan)
	flog := log.Fan(r.Fan)

	if r.Recent <= m.minRPM {
		st.low++
		if st.low < m.stallWindows {
			return
		}
		if st.limiter.Allow() { // spam control
			flog.Error().Msgf("ALARM: %s speed %d RPM at or below %d RPM for %d windows",
				r.Name, r.Recent, m.minRPM, st.low)
		}
		st.alarm = true
		return
	}

	if st.alarm {
		flog.Info().Msgf("%s speed %d RPM is back above %d RPM", r.Name, r.Recent, m.minRPM)
		st.limiter = rate.NewLimiter(rate.Every(m.repeat), 1)
	}
	st.alarm = false
	st.low = 0
}

func (m *Monitor) Alarmed(fan int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.fans[fan]
	return ok && st.alarm
}

func (m *Monitor) AnyAlarm() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, st := range m.fans {
		if st.alarm {
			return true
		}
	}
	return false
}

// Alarms lists the fans currently in alarm by index.
func (m *Monitor) Alarms() map[int]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[int]string)
	for i, st := range m.fans {
		if st.alarm {
			out[i] = m.names[i]
		}
	}
	return out
}
