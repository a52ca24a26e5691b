package edge

import (
	"context"
	"sync"
	"time"

	"github.com/go-errors/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"fantach/device/tick"
	"fantach/log"
)

// waitSlice bounds each WaitForEdge call so the loop notices Close.
const waitSlice = 100 * time.Millisecond

// Periph waits for rising edges through periph.io's pin registry. Edges carry
// no timestamp there, so the tick is read from clock when WaitForEdge returns.
type Periph struct {
	name  string
	clock tick.Clock

	mu   sync.Mutex
	pin  gpio.PinIn
	done chan struct{}
	wg   sync.WaitGroup
}

func NewPeriph(name string, clock tick.Clock) *Periph {
	return &Periph{name: name, clock: clock}
}

// NewPeriphPin uses an already resolved pin and skips host initialization.
func NewPeriphPin(pin gpio.PinIn, clock tick.Clock) *Periph {
	return &Periph{name: pin.Name(), clock: clock, pin: pin}
}

func (p *Periph) String() string {
	return "periph:" + p.name
}

func (p *Periph) Start(ctx context.Context, h Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done != nil {
		return ErrAlreadyStarted
	}

	if p.pin == nil {
		if _, err := host.Init(); err != nil {
			return errors.WrapPrefix(err, p.String(), 0)
		}
		pin := gpioreg.ByName(p.name)
		if pin == nil {
			return errors.WrapPrefix(ErrPinNotFound, p.String(), 0)
		}
		p.pin = pin
	}

	if err := p.pin.In(gpio.PullUp, gpio.RisingEdge); err != nil {
		return errors.WrapPrefix(err, p.String(), 0)
	}

	done := make(chan struct{})
	p.done = done
	pin := p.pin

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			default:
			}
			if pin.WaitForEdge(waitSlice) {
				h.OnEdge(p.clock.Ticks())
			}
		}
	}()
	log.Debugf("%s: waiting for edges", p)

	return nil
}

func (p *Periph) Close() error {
	p.mu.Lock()
	if p.done == nil {
		p.mu.Unlock()
		return nil
	}
	select {
	case <-p.done:
		p.mu.Unlock()
		return nil
	default:
	}
	close(p.done)
	pin := p.pin
	p.mu.Unlock()

	p.wg.Wait()
	return pin.Halt()
}
