package fan

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-errors/errors"

	"fantach/device/edge"
	"fantach/log"
)

var (
	ErrAlreadyStarted = errors.Errorf("tachometer already started")
	ErrInvalidIndex   = errors.Errorf("invalid fan index")
	ErrNoDrive        = errors.Errorf("fan has no pwm drive")
)

const (
	DefaultPulsesPerRev  = 2
	DefaultDebounceTicks = 10
	DefaultHistorySize   = 5
	DefaultWindow        = time.Second
)

// Reading is what foreground code sees of a tachometer: the last completed
// window and the median of the recent ones.
type Reading struct {
	Fan      int       `json:"fan"`
	Name     string    `json:"name"`
	Recent   RPM       `json:"rpm"`
	Filtered RPM       `json:"filtered"`
	Samples  int       `json:"samples"`
	History  []RPM     `json:"history"`
	Edges    uint32    `json:"edges"`
	Rejected uint64    `json:"rejected"`
	Windows  uint64    `json:"windows"`
	Valid    bool      `json:"valid"` // false until the first window completes
	At       time.Time `json:"at"`
}

// WindowListener is notified once per completed window, from the window
// timer goroutine. OnWindow must not block.
type WindowListener interface {
	OnWindow(r Reading)
}

// snapshot is the published state. A new one is built for every window and
// never modified afterwards, so a reader holding one can't see a torn update.
type snapshot struct {
	recent   RPM
	history  []RPM
	edges    uint32
	rejected uint64
	windows  uint64
	at       time.Time
}

type Options struct {
	Index         int
	Name          string
	PulsesPerRev  uint32
	DebounceTicks uint32
	HistorySize   int
	Window        time.Duration
}

// Tachometer turns the edges of one source into RPM readings, one per
// measurement window.
type Tachometer struct {
	index  int
	name   string
	ppr    uint32
	window time.Duration
	source edge.Source

	counter *EdgeCounter

	// window handler state
	winMu   sync.Mutex
	ring    *Ring
	windows uint64

	published atomic.Pointer[snapshot]

	listeners []WindowListener
	started   atomic.Bool
	wg        sync.WaitGroup
}

func New(opts Options, source edge.Source) *Tachometer {
	if opts.PulsesPerRev == 0 {
		opts.PulsesPerRev = DefaultPulsesPerRev
	}
	if opts.HistorySize < 1 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Name == "" {
		opts.Name = "fan" + strconv.Itoa(opts.Index)
	}

	return &Tachometer{
		index:   opts.Index,
		name:    opts.Name,
		ppr:     opts.PulsesPerRev,
		window:  opts.Window,
		source:  source,
		counter: NewEdgeCounter(opts.DebounceTicks),
		ring:    NewRing(opts.HistorySize),
	}
}

func (t *Tachometer) Index() int {
	return t.index
}

func (t *Tachometer) Name() string {
	return t.name
}

func (t *Tachometer) Window() time.Duration {
	return t.window
}

func (t *Tachometer) Source() edge.Source {
	return t.source
}

// Counter is the edge handler to feed when driving the tachometer by hand.
func (t *Tachometer) Counter() *EdgeCounter {
	return t.counter
}

// Register adds a window listener. Listeners are fixed once Start is called.
func (t *Tachometer) Register(l WindowListener) error {
	if t.started.Load() {
		return ErrAlreadyStarted
	}
	t.listeners = append(t.listeners, l)
	return nil
}

// Start requests the edge input and starts the window timer. It may be
// called once; the tachometer runs until ctx is done.
func (t *Tachometer) Start(ctx context.Context) error {
	if !t.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if t.source != nil {
		if err := t.source.Start(ctx, t.counter); err != nil {
			return errors.WrapPrefix(err, t.name, 0)
		}
	}

	t.wg.Add(1)
	go t.run(ctx)

	log.Infof("%s: measuring on %v, window %v, %d pulses/rev", t.name, t.source, t.window, t.ppr)
	return nil
}

func (t *Tachometer) run(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if t.source != nil {
				if err := t.source.Close(); err != nil {
					log.Errorf("%s: closing %v: %v", t.name, t.source, err)
				}
			}
			return
		case <-ticker.C:
			t.CloseWindow()
		}
	}
}

// Wait blocks until the window timer has stopped and the source is closed.
func (t *Tachometer) Wait() {
	t.wg.Wait()
}

// CloseWindow ends the open measurement window: it takes the edge count,
// converts it, records it in the history and publishes the result. The
// window timer calls it once per interval; calls are serialized.
func (t *Tachometer) CloseWindow() Reading {
	t.winMu.Lock()
	defer t.winMu.Unlock()

	edges := t.counter.Swap()
	rpm := ToRPM(edges, t.ppr, t.window)

	t.ring.Push(rpm)
	t.windows++

	snap := &snapshot{
		recent:   rpm,
		history:  t.ring.Values(),
		edges:    edges,
		rejected: t.counter.Rejected(),
		windows:  t.windows,
		at:       time.Now(),
	}
	t.published.Store(snap)

	r := t.reading(snap)
	for _, l := range t.listeners {
		l.OnWindow(r)
	}
	return r
}

// Recent is the raw RPM of the last completed window, 0 before the first.
func (t *Tachometer) Recent() RPM {
	if snap := t.published.Load(); snap != nil {
		return snap.recent
	}
	return 0
}

// Filtered is the median of the samples in the history, 0 before the first
// window.
func (t *Tachometer) Filtered() RPM {
	if snap := t.published.Load(); snap != nil {
		return Median(snap.history)
	}
	return 0
}

func (t *Tachometer) Reading() Reading {
	return t.reading(t.published.Load())
}

func (t *Tachometer) reading(snap *snapshot) Reading {
	r := Reading{Fan: t.index, Name: t.name}
	if snap == nil {
		return r
	}

	r.Recent = snap.recent
	r.Filtered = Median(snap.history)
	r.Samples = len(snap.history)
	r.History = append([]RPM(nil), snap.history...)
	r.Edges = snap.edges
	r.Rejected = snap.rejected
	r.Windows = snap.windows
	r.Valid = true
	r.At = snap.at
	return r
}
