package vfo

import (
	"io"
	"log"
)

var debugLogger *log.Logger

// SetDebugLogger installs a logger for verbose clock-recovery diagnostics.
// Pass nil to disable.
func SetDebugLogger(w io.Writer) {
	if w == nil {
		debugLogger = nil
		return
	}
	debugLogger = log.New(w, "[vfo] ", log.LstdFlags|log.Lmicroseconds)
}

func debugf(format string, args ...interface{}) {
	if debugLogger != nil {
		debugLogger.Printf(format, args...)
	}
}
