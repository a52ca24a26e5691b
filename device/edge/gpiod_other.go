//go:build !linux
// +build !linux

package edge

import (
	"context"
	"strconv"
	"time"
)

type Gpiod struct {
	chip   string
	offset int
}

func NewGpiod(chip string, offset int, period time.Duration) *Gpiod {
	return &Gpiod{chip: chip, offset: offset}
}

func (g *Gpiod) String() string {
	return "gpiod:" + g.chip + ":" + strconv.Itoa(g.offset)
}

func (g *Gpiod) Start(ctx context.Context, h Handler) error {
	return ErrUnsupported
}

func (g *Gpiod) Close() error {
	return nil
}
