package edge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"fantach/device/tick"
)

// bounceTicks is how far behind a real edge the simulated contact bounce lands.
const bounceTicks = 2

// Sim produces the pulse train of a fan spinning at a set speed. It keeps its
// own virtual tick counter, so the ticks it hands out are exact regardless of
// goroutine scheduling. With bounce enabled every edge is followed by a
// spurious one a couple of ticks later.
type Sim struct {
	ppr    uint32
	period time.Duration
	bounce bool

	rpm atomic.Uint32

	mu   sync.Mutex
	at   time.Duration // virtual time of the next edge
	done chan struct{}
	wg   sync.WaitGroup
}

func NewSim(rpm uint32, ppr uint32, period time.Duration, bounce bool) *Sim {
	s := &Sim{ppr: ppr, period: period, bounce: bounce}
	s.rpm.Store(rpm)
	return s
}

func (s *Sim) String() string {
	return "sim"
}

func (s *Sim) SetRPM(rpm uint32) {
	s.rpm.Store(rpm)
}

func (s *Sim) RPM() uint32 {
	return s.rpm.Load()
}

// EdgeInterval is the time between two genuine edges at the current speed,
// zero when the simulated fan is stopped.
func (s *Sim) EdgeInterval() time.Duration {
	rpm := s.rpm.Load()
	if rpm == 0 || s.ppr == 0 {
		return 0
	}
	return time.Minute / time.Duration(uint64(rpm)*uint64(s.ppr))
}

// Step advances virtual time by one edge interval and returns the ticks of the
// edges seen in that step, bounce included.
func (s *Sim) Step() []uint32 {
	interval := s.EdgeInterval()
	if interval == 0 {
		return nil
	}

	s.mu.Lock()
	s.at += interval
	t := tick.FromDuration(s.at, s.period)
	s.mu.Unlock()

	if s.bounce {
		return []uint32{t, t + bounceTicks}
	}
	return []uint32{t}
}

func (s *Sim) Start(ctx context.Context, h Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return ErrAlreadyStarted
	}
	done := make(chan struct{})
	s.done = done

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, done, h)
	}()
	return nil
}

func (s *Sim) run(ctx context.Context, done <-chan struct{}, h Handler) {
	const idle = 50 * time.Millisecond

	first := s.EdgeInterval()
	if first == 0 {
		first = idle
	}
	timer := time.NewTimer(first)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-timer.C:
		}

		for _, t := range s.Step() {
			h.OnEdge(t)
		}

		next := s.EdgeInterval()
		if next == 0 {
			next = idle
		}
		timer.Reset(next)
	}
}

func (s *Sim) Close() error {
	s.mu.Lock()
	if s.done == nil {
		s.mu.Unlock()
		return nil
	}
	select {
	case <-s.done:
		s.mu.Unlock()
		return nil
	default:
	}
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}
