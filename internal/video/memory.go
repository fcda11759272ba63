package video

import (
	"sync"

	"github.com/smazurov/echotherm/internal/thermal"
)

// MemoryWriter keeps frames in memory. It backs tests and dry runs.
type MemoryWriter struct {
	path string

	mu       sync.Mutex
	images   []*thermal.Image
	closed   bool
	failNext error
}

// NewMemoryWriter returns an empty writer for path.
func NewMemoryWriter(path string) *MemoryWriter {
	return &MemoryWriter{path: path}
}

// Path implements Writer.
func (w *MemoryWriter) Path() string { return w.path }

// Write implements Writer, storing a copy of im.
func (w *MemoryWriter) Write(im *thermal.Image) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if err := w.failNext; err != nil {
		w.failNext = nil
		return err
	}
	w.images = append(w.images, im.Clone())
	return nil
}

// FailNext makes the next Write return err.
func (w *MemoryWriter) FailNext(err error) {
	w.mu.Lock()
	w.failNext = err
	w.mu.Unlock()
}

// Frames implements Writer.
func (w *MemoryWriter) Frames() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.images)
}

// Images returns the stored frames.
func (w *MemoryWriter) Images() []*thermal.Image {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*thermal.Image(nil), w.images...)
}

// Closed reports whether Close was called.
func (w *MemoryWriter) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Close implements Writer.
func (w *MemoryWriter) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}
