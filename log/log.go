package log

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const timeFormat = "2006-01-02 15:04:05"

var (
	debugOn atomic.Bool
	logger  atomic.Pointer[zerolog.Logger]
)

func init() {
	zerolog.TimeFieldFormat = timeFormat
	SetOutput(os.Stdout)
}

// SetOutput redirects all log output, mostly for tests.
func SetOutput(w io.Writer) {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat, NoColor: true}
	l := zerolog.New(out).With().Timestamp().Logger()
	logger.Store(&l)
}

func SetDebug(on bool) {
	debugOn.Store(on)
}

func IsDebug() bool {
	return debugOn.Load()
}

func Errorf(format string, args ...interface{}) {
	logger.Load().Error().Msgf(format, args...)
}

func Debugf(format string, args ...interface{}) {
	if debugOn.Load() {
		logger.Load().Debug().Msgf(format, args...)
	}
}

func Infof(format string, args ...interface{}) {
	logger.Load().Info().Msgf(format, args...)
}

func Warnf(format string, args ...interface{}) {
	logger.Load().Warn().Msgf(format, args...)
}

func Info(args ...interface{}) {
	logger.Load().Info().Msg(fmt.Sprint(args...))
}

func Error(args ...interface{}) {
	logger.Load().Error().Msg(fmt.Sprint(args...))
}

func Debug(args ...interface{}) {
	if debugOn.Load() {
		logger.Load().Debug().Msg(fmt.Sprint(args...))
	}
}

// Fan returns a logger carrying the fan index as a field.
func Fan(index int) zerolog.Logger {
	return logger.Load().With().Int("fan", index).Logger()
}
