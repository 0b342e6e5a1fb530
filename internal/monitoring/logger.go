// Package monitoring holds the process-wide log sink used by the command
// line tools and the storage layer.
package monitoring

import (
	"bytes"
	"io"
	"log"
	"sync"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// lineWriter buffers writes and forwards each complete line to Logf.
type lineWriter struct {
	mu     sync.Mutex
	prefix string
	buf    bytes.Buffer
}

// LogWriter returns a writer that sends every complete line written to it
// through Logf, prefixed with prefix. It lets packages that log to an
// io.Writer share the process logger.
func LogWriter(prefix string) io.Writer {
	return &lineWriter{prefix: prefix}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Incomplete line; keep it for the next write.
			w.buf.Reset()
			w.buf.WriteString(line)
			return len(p), nil
		}
		Logf("%s%s", w.prefix, line[:len(line)-1])
	}
}
