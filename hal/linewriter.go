package hal

import (
	"bytes"
	"sync"
)

// LineWriter adapts a Logger to io.Writer. Output is split on newlines; a
// trailing partial line is held until completed.
type LineWriter struct {
	mu      sync.Mutex
	l       Logger
	pending []byte
}

func NewLineWriter(l Logger) *LineWriter {
	return &LineWriter{l: l}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := len(p)
	for {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			w.pending = append(w.pending, p...)
			return n, nil
		}
		if len(w.pending) > 0 {
			w.pending = append(w.pending, p[:i]...)
			w.l.WriteLineBytes(w.pending)
			w.pending = w.pending[:0]
		} else {
			w.l.WriteLineBytes(p[:i])
		}
		p = p[i+1:]
	}
}
