package supervisor

import (
	"bytes"
	"sync"
)

// lineWriter calls onLine for every complete line written to it.
type lineWriter struct {
	mu     sync.Mutex
	buf    []byte
	onLine func(string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimRight(w.buf[:i], "\r"))
		w.buf = w.buf[i+1:]
		w.onLine(line)
	}
	// a helper that never ends its lines should not grow the buffer forever
	if len(w.buf) > 64<<10 {
		w.onLine(string(w.buf))
		w.buf = w.buf[:0]
	}
	return len(p), nil
}
