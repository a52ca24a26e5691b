package report

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/go-errors/errors"
	"github.com/tarm/serial"

	"fantach/device/fan"
	"fantach/log"
)

const serialQueue = 16

// SerialSink prints readings on a serial console. Writes happen on their own
// goroutine so a slow port never holds up the window timer; lines that do
// not fit in the queue are dropped.
type SerialSink struct {
	w io.WriteCloser

	mu      sync.RWMutex
	closed  bool
	lines   chan string
	wg      sync.WaitGroup
	dropped atomic.Uint64
}

func OpenSerial(name string, baud int) (*SerialSink, error) {
	port, err := serial.OpenPort(&serial.Config{Name: name, Baud: baud})
	if err != nil {
		return nil, errors.WrapPrefix(err, name, 0)
	}
	return NewSerialSink(port), nil
}

func NewSerialSink(w io.WriteCloser) *SerialSink {
	s := &SerialSink{w: w, lines: make(chan string, serialQueue)}
	s.wg.Add(1)
	go s.writer()
	return s
}

func (s *SerialSink) writer() {
	defer s.wg.Done()
	for line := range s.lines {
		if _, err := io.WriteString(s.w, line); err != nil {
			log.Errorf("serial write: %v", err)
		}
	}
}

func (s *SerialSink) OnWindow(r fan.Reading) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.lines <- Line(r):
	default:
		s.dropped.Add(1)
	}
}

// Dropped is the number of lines lost to a full queue.
func (s *SerialSink) Dropped() uint64 {
	return s.dropped.Load()
}

// Close flushes queued lines and closes the port.
func (s *SerialSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.lines)
	s.mu.Unlock()

	s.wg.Wait()
	return s.w.Close()
}
