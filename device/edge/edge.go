// Package edge delivers tachometer rising edges to a handler. Each Source
// plays the role of the edge interrupt: it calls Handler.OnEdge from a single
// goroutine, one edge at a time, with the free-running tick value at which the
// edge was seen.
package edge

import (
	"context"

	"github.com/go-errors/errors"
)

// Handler consumes edges. OnEdge must return quickly and never block.
type Handler interface {
	OnEdge(tick uint32) bool
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(tick uint32) bool

func (f HandlerFunc) OnEdge(tick uint32) bool {
	return f(tick)
}

// Source is a configured tachometer input.
type Source interface {
	// Start requests the input and begins delivering edges to h until Close
	// is called. Sources that run their own polling loop also stop when ctx
	// is done.
	Start(ctx context.Context, h Handler) error
	// Close releases the input. It is safe to call more than once.
	Close() error
	String() string
}

var (
	ErrUnsupported    = errors.Errorf("edge source not supported on this platform")
	ErrPinNotFound    = errors.Errorf("edge source pin not found")
	ErrAlreadyStarted = errors.Errorf("edge source already started")
)
