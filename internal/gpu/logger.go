//go:build !nogpu

package gpu

import (
	"log/slog"
	"sync/atomic"
)

// The dispatcher logs pipeline setup at Info and per-frame buffer sizes and
// stage dispatches at Debug. Frames are encoded while callers may swap the
// logger, so the pointer is atomic.
var loggerPtr atomic.Pointer[slog.Logger]

var discard = slog.New(slog.DiscardHandler)

func init() {
	loggerPtr.Store(discard)
}

func slogger() *slog.Logger { return loggerPtr.Load() }

// SetLogger installs the logger used by Dispatcher. tilebin.SetLogger calls
// it, so applications normally configure logging there. nil discards.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = discard
	}
	loggerPtr.Store(l)
}

// Logger returns the logger Dispatcher writes to.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
