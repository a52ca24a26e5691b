package edge

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"fantach/device/tick"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu    sync.Mutex
	ticks []uint32
}

func (r *recorder) OnEdge(t uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, t)
	return true
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ticks)
}

func TestRisingDetector(t *testing.T) {
	var r rising

	levels := []int{1, 1, 0, 1, 1, 0, 0, 1}
	want := []bool{false, false, false, true, false, false, false, true}
	for i, l := range levels {
		assert.Equal(t, want[i], r.step(l), "sample %d", i)
	}
}

func TestSimStep(t *testing.T) {
	// 1500 rpm at 2 pulses per revolution is one edge every 20ms
	s := NewSim(1500, 2, 64*time.Microsecond, false)

	assert.Equal(t, 20*time.Millisecond, s.EdgeInterval())
	assert.Equal(t, []uint32{312}, s.Step())
	assert.Equal(t, []uint32{625}, s.Step())

	s.SetRPM(0)
	assert.Nil(t, s.Step())
	assert.Equal(t, time.Duration(0), s.EdgeInterval())
}

func TestSimBounce(t *testing.T) {
	s := NewSim(1500, 2, 64*time.Microsecond, true)

	assert.Equal(t, []uint32{312, 312 + bounceTicks}, s.Step())
}

func TestSimDeliversEdges(t *testing.T) {
	s := NewSim(60000, 2, time.Microsecond, false) // one edge every 500µs
	rec := &recorder{}

	require.NoError(t, s.Start(context.Background(), rec))
	assert.ErrorIs(t, s.Start(context.Background(), rec), ErrAlreadyStarted)

	assert.Eventually(t, func() bool { return rec.count() >= 5 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestSimStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSim(1200, 2, time.Microsecond, false)

	require.NoError(t, s.Start(ctx, &recorder{}))
	cancel()
	require.NoError(t, s.Close())
}

type fakePin struct {
	mu       sync.Mutex
	levels   []int
	exported bool
	dir      string
}

func (p *fakePin) Export() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exported = true
	return nil
}

func (p *fakePin) Unexport() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exported = false
	return nil
}

func (p *fakePin) Direction(d string) error {
	p.dir = d
	return nil
}

func (p *fakePin) Read() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.levels) == 0 {
		return 0, nil
	}
	v := p.levels[0]
	p.levels = p.levels[1:]
	return v, nil
}

func TestSysfsDetectsRisingEdges(t *testing.T) {
	pin := &fakePin{levels: []int{0, 1, 1, 0, 1, 0, 1, 1, 0}}
	clock := &tick.Manual{}
	s := &Sysfs{num: 7, poll: time.Millisecond, clock: clock, pin: pin}
	rec := &recorder{}

	require.NoError(t, s.Start(context.Background(), rec))
	assert.Equal(t, "in", pin.dir)

	assert.Eventually(t, func() bool { return rec.count() == 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Close())
	assert.False(t, pin.exported)
	assert.Equal(t, "sysfs:7", s.String())
}

func TestPeriphWaitsForEdges(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO17", EdgesChan: make(chan gpio.Level)}
	clock := &tick.Manual{}
	clock.Set(42)
	p := NewPeriphPin(pin, clock)
	rec := &recorder{}

	require.NoError(t, p.Start(context.Background(), rec))
	for i := 0; i < 3; i++ {
		pin.EdgesChan <- gpio.High
	}

	assert.Eventually(t, func() bool { return rec.count() == 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, p.Close())
	assert.Equal(t, []uint32{42, 42, 42}, rec.ticks)
	assert.Equal(t, "periph:GPIO17", p.String())
}

func TestHandlerFunc(t *testing.T) {
	var n atomic.Int32
	h := HandlerFunc(func(uint32) bool { n.Add(1); return true })

	assert.True(t, h.OnEdge(1))
	assert.Equal(t, int32(1), n.Load())
}
