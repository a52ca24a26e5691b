// Package report publishes fan readings to the outside world once per
// measurement window: status files, a serial console and the log.
package report

import (
	"fmt"

	"fantach/device/fan"
	"fantach/log"
)

// Line is the one-line text form of a reading used by the serial console.
func Line(r fan.Reading) string {
	if !r.Valid {
		return fmt.Sprintf("fan %d (%s): no measurement yet\n", r.Fan, r.Name)
	}
	return fmt.Sprintf("fan %d (%s): %d rpm (raw %d)\n", r.Fan, r.Name, r.Filtered, r.Recent)
}

// LogSink writes every reading to the debug log.
type LogSink struct{}

func (LogSink) OnWindow(r fan.Reading) {
	log.Debugf("%s: %d rpm filtered %d edges %d rejected %d window %d",
		r.Name, r.Recent, r.Filtered, r.Edges, r.Rejected, r.Windows)
}
