// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"log/slog"
	"sync/atomic"
)

var (
	discard = slog.New(slog.DiscardHandler)
	logger  atomic.Pointer[slog.Logger]
)

// SetLogger sets the logger of this package and of every
// registered driver that has a SetLogger(*slog.Logger)
// method. Drivers registered later receive it as well.
// A nil l discards records, which is the initial state.
//
// Debug records cover object creation, submission and
// presentation; Info covers drivers and devices; Warn covers
// replaced drivers, retired swapchains and device loss.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = discard
	}
	logger.Store(l)
	for _, drv := range Drivers() {
		propagateLogger(drv, l)
	}
}

// Logger returns the logger set by SetLogger.
func Logger() *slog.Logger { return slogger() }

func slogger() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return discard
}

func propagateLogger(x any, l *slog.Logger) {
	if ls, ok := x.(interface{ SetLogger(*slog.Logger) }); ok {
		ls.SetLogger(l)
	}
}
