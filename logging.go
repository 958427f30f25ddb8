package sharedstream

import (
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the structured logging sink used by Stream and Share: a
// logiface.Logger fixed to stumpy's
// Event type, the same wiring stumpy's own example ties together with
// stumpy.L.New(stumpy.L.WithStumpy(...)).
type Logger = logiface.Logger[*stumpy.Event]

var defaultLogger = newNoopLogger()

func newNoopLogger() *Logger {
	return stumpy.L.New(logiface.WithLevel[*stumpy.Event](logiface.LevelDisabled))
}

// SetDefaultLogger replaces the package-level logger used by streams and
// sharing drivers constructed without an explicit WithLogger option. Passing
// nil restores the no-op default.
func SetDefaultLogger(l *Logger) {
	if l == nil {
		l = newNoopLogger()
	}
	defaultLogger = l
}

func loggerFor(o streamOptions) *Logger {
	if o.logger != nil {
		return o.logger
	}
	return defaultLogger
}
