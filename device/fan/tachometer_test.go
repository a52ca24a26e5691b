package fan

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fantach/device/edge"
)

// oneToOne makes the RPM of a window equal to its edge count.
func oneToOne(history int) *Tachometer {
	return New(Options{PulsesPerRev: 1, Window: time.Minute, HistorySize: history}, nil)
}

func feed(t *Tachometer, edges int) {
	c := t.Counter()
	var tick uint32
	for i := 0; i < edges; i++ {
		tick += 100
		c.OnEdge(tick)
	}
}

type windowRecorder struct {
	mu       sync.Mutex
	readings []Reading
}

func (w *windowRecorder) OnWindow(r Reading) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.readings = append(w.readings, r)
}

func (w *windowRecorder) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.readings)
}

func TestReadBeforeFirstWindow(t *testing.T) {
	tach := oneToOne(5)

	assert.Equal(t, RPM(0), tach.Recent())
	assert.Equal(t, RPM(0), tach.Filtered())

	r := tach.Reading()
	assert.False(t, r.Valid)
	assert.Equal(t, 0, r.Samples)
	assert.Equal(t, "fan0", r.Name)
}

func TestStalledWindowIsMeasuredZero(t *testing.T) {
	tach := oneToOne(5)

	r := tach.CloseWindow()

	assert.True(t, r.Valid)
	assert.Equal(t, RPM(0), r.Recent)
	assert.Equal(t, RPM(0), tach.Filtered())
	assert.Equal(t, uint64(1), r.Windows)
}

func TestReferenceConversion(t *testing.T) {
	tach := New(Options{PulsesPerRev: 2, DebounceTicks: 10, Window: time.Second}, nil)
	feed(tach, 120)

	r := tach.CloseWindow()

	assert.Equal(t, RPM(3600), r.Recent)
	assert.Equal(t, uint32(120), r.Edges)
	assert.Equal(t, uint32(0), tach.Counter().Pending())
}

func TestFilteredUsesValidSamples(t *testing.T) {
	tach := oneToOne(5)

	feed(tach, 10)
	tach.CloseWindow()
	feed(tach, 40)
	tach.CloseWindow()
	feed(tach, 20)
	r := tach.CloseWindow()

	assert.Equal(t, 3, r.Samples)
	assert.Equal(t, []RPM{10, 40, 20}, r.History)
	assert.Equal(t, RPM(20), tach.Filtered())
}

func TestFilteredArrivalOrder(t *testing.T) {
	tests := []struct {
		name    string
		windows []int
		want    RPM
	}{
		{"ramp", []int{10, 20, 30, 40, 50}, 30},
		{"glitch", []int{0, 0, 0, 100, 0}, 0},
		{"outlier after fill", []int{1800, 1800, 1800, 1800, 1800, 0}, 1800},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tach := oneToOne(5)
			for _, n := range tt.windows {
				feed(tach, n)
				tach.CloseWindow()
			}
			assert.Equal(t, tt.want, tach.Filtered())
		})
	}
}

func TestHistoryKeepsLastN(t *testing.T) {
	tach := oneToOne(5)
	for i := 1; i <= 7; i++ {
		feed(tach, i)
		tach.CloseWindow()
	}

	r := tach.Reading()
	assert.Equal(t, 5, r.Samples)
	assert.Equal(t, []RPM{3, 4, 5, 6, 7}, r.History)
	assert.Equal(t, RPM(5), r.Filtered)
	assert.Equal(t, RPM(7), r.Recent)
	assert.Equal(t, uint64(7), r.Windows)
}

func TestAccessorsAreIdempotent(t *testing.T) {
	tach := oneToOne(5)
	feed(tach, 33)
	tach.CloseWindow()
	feed(tach, 11)
	tach.CloseWindow()

	// edges of the open window must not show up
	feed(tach, 99)

	for i := 0; i < 5; i++ {
		assert.Equal(t, RPM(11), tach.Recent())
		assert.Equal(t, RPM(11), tach.Filtered())
	}
	assert.Equal(t, tach.Reading(), tach.Reading())
}

func TestReadingHistoryIsACopy(t *testing.T) {
	tach := oneToOne(5)
	feed(tach, 5)
	tach.CloseWindow()

	r := tach.Reading()
	r.History[0] = 1000

	assert.Equal(t, RPM(5), tach.Filtered())
}

func TestListenersSeeEveryWindow(t *testing.T) {
	tach := oneToOne(5)
	rec := &windowRecorder{}
	require.NoError(t, tach.Register(rec))

	feed(tach, 4)
	tach.CloseWindow()
	tach.CloseWindow()

	require.Equal(t, 2, rec.len())
	assert.Equal(t, RPM(4), rec.readings[0].Recent)
	assert.Equal(t, RPM(0), rec.readings[1].Recent)
	assert.Equal(t, uint64(2), rec.readings[1].Windows)
}

func TestStartOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tach := New(Options{Window: 10 * time.Millisecond}, nil)

	require.NoError(t, tach.Start(ctx))
	assert.ErrorIs(t, tach.Start(ctx), ErrAlreadyStarted)
	assert.ErrorIs(t, tach.Register(&windowRecorder{}), ErrAlreadyStarted)

	cancel()
	tach.Wait()
}

func TestWindowTimerRuns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := edge.NewSim(6000, 2, 64*time.Microsecond, true)
	tach := New(Options{PulsesPerRev: 2, DebounceTicks: 10, Window: 50 * time.Millisecond}, src)
	rec := &windowRecorder{}
	require.NoError(t, tach.Register(rec))

	require.NoError(t, tach.Start(ctx))
	assert.Eventually(t, func() bool { return rec.len() >= 3 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	tach.Wait()

	r := tach.Reading()
	assert.True(t, r.Valid)
	// every simulated bounce was filtered out
	assert.Greater(t, r.Rejected, uint64(0))
	assert.InDelta(t, 6000, float64(r.Filtered), 1800)
}

type failingSource struct{}

func (failingSource) Start(context.Context, edge.Handler) error { return edge.ErrPinNotFound }
func (failingSource) Close() error                               { return nil }
func (failingSource) String() string                             { return "broken" }

func TestStartReportsSourceError(t *testing.T) {
	tach := New(Options{}, failingSource{})

	err := tach.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fan0")
}

// Readers racing the window handler must always see a consistent reading:
// the recent value is the newest history entry and the filtered value is
// the median of exactly that history.
func TestConcurrentReadsAreNeverTorn(t *testing.T) {
	tach := oneToOne(5)
	const windows = 2000

	var done atomic.Bool
	var wg sync.WaitGroup

	// edge "interrupt"
	var sent atomic.Uint64
	wg.Add(1)
	go func() {
		defer wg.Done()
		var tick uint32
		for !done.Load() {
			tick += 50
			if tach.Counter().OnEdge(tick) {
				sent.Add(1)
			}
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var lastWindows uint64
			for !done.Load() {
				r := tach.Reading()
				if !r.Valid {
					continue
				}
				if !assert.Len(t, r.History, r.Samples) ||
					!assert.Equal(t, r.History[len(r.History)-1], r.Recent) ||
					!assert.Equal(t, Median(r.History), r.Filtered) ||
					!assert.GreaterOrEqual(t, r.Windows, lastWindows) {
					return
				}
				lastWindows = r.Windows
				_ = tach.Filtered()
				_ = tach.Recent()
			}
		}()
	}

	var counted uint64
	for i := 0; i < windows; i++ {
		counted += uint64(tach.CloseWindow().Edges)
	}
	done.Store(true)
	wg.Wait()
	counted += uint64(tach.Counter().Swap())

	// nothing lost and nothing counted twice across window boundaries
	assert.Equal(t, sent.Load(), counted)
	assert.Equal(t, uint64(windows), tach.Reading().Windows)
}
