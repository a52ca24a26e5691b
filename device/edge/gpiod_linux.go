//go:build linux
// +build linux

package edge

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/go-errors/errors"
	"github.com/warthog618/gpiod"

	"fantach/device/tick"
	"fantach/log"
)

// Gpiod requests a line on a gpio chardev with rising edge detection. The
// kernel timestamps each event, so ticks are taken from the event rather
// than from the time the handler happens to run.
type Gpiod struct {
	chip   string
	offset int
	period time.Duration

	mu   sync.Mutex
	line *gpiod.Line
}

func NewGpiod(chip string, offset int, period time.Duration) *Gpiod {
	return &Gpiod{chip: chip, offset: offset, period: period}
}

func (g *Gpiod) String() string {
	return "gpiod:" + g.chip + ":" + strconv.Itoa(g.offset)
}

func (g *Gpiod) Start(ctx context.Context, h Handler) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.line != nil {
		return ErrAlreadyStarted
	}

	line, err := gpiod.RequestLine(g.chip, g.offset,
		gpiod.WithPullUp,
		gpiod.WithRisingEdge,
		gpiod.WithEventHandler(func(evt gpiod.LineEvent) {
			if evt.Type != gpiod.LineEventRisingEdge {
				return
			}
			h.OnEdge(tick.FromDuration(evt.Timestamp, g.period))
		}))
	if err != nil {
		return errors.WrapPrefix(err, g.String(), 0)
	}
	g.line = line
	log.Debugf("%s: line requested", g)

	return nil
}

func (g *Gpiod) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.line == nil {
		return nil
	}
	err := g.line.Close()
	g.line = nil
	return err
}
