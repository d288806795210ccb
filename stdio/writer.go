package stdio

import (
	"io"
	"sync"
)

// Writer frames lines onto an output stream. Each line, newline included, is
// handed to the underlying writer in a single Write call under a lock, so
// concurrent callers can never interleave bytes within a line.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteLine writes line followed by a newline.
func (w *Writer) WriteLine(line string) error {
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.w.Write(buf)
	return err
}
