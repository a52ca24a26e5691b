package edge

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/go-errors/errors"
	"gobot.io/x/gobot/sysfs"

	"fantach/device/tick"
	"fantach/log"
)

const DefaultPollInterval = 200 * time.Microsecond

type digitalPin interface {
	Export() error
	Unexport() error
	Direction(string) error
	Read() (int, error)
}

// rising turns a stream of sampled levels into rising-edge events. The first
// sample only primes it.
type rising struct {
	prev   int
	primed bool
}

func (r *rising) step(level int) bool {
	edge := r.primed && r.prev == 0 && level != 0
	r.prev = level
	r.primed = true
	return edge
}

// Sysfs samples an exported sysfs gpio value file and detects rising edges in
// software. It is the fallback for kernels without the gpio chardev and only
// suits slow fans: the edge is timestamped at the poll, not at the transition.
type Sysfs struct {
	num   int
	poll  time.Duration
	clock tick.Clock
	pin   digitalPin

	mu   sync.Mutex
	done chan struct{}
	wg   sync.WaitGroup
}

func NewSysfs(num int, poll time.Duration, clock tick.Clock) *Sysfs {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Sysfs{num: num, poll: poll, clock: clock, pin: sysfs.NewDigitalPin(num)}
}

func (s *Sysfs) String() string {
	return "sysfs:" + strconv.Itoa(s.num)
}

func (s *Sysfs) Start(ctx context.Context, h Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return ErrAlreadyStarted
	}
	if err := s.pin.Export(); err != nil {
		return errors.WrapPrefix(err, s.String(), 0)
	}
	if err := s.pin.Direction("in"); err != nil {
		_ = s.pin.Unexport()
		return errors.WrapPrefix(err, s.String(), 0)
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

func (s *Sysfs) run(ctx context.Context, done <-chan struct{}, h Handler) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	var det rising
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
		}

		v, err := s.pin.Read()
		if err != nil {
			failures++
			if failures < 2 || failures%1000 == 0 { // Don't spam the log
				log.Errorf("%s: read failed (%d times): %v", s, failures, err)
			}
			continue
		}
		failures = 0
		if det.step(v) {
			h.OnEdge(s.clock.Ticks())
		}
	}
}

func (s *Sysfs) Close() error {
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
	return s.pin.Unexport()
}
