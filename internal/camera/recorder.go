package camera

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smazurov/echotherm/internal/events"
	"github.com/smazurov/echotherm/internal/imaging"
	"github.com/smazurov/echotherm/internal/metrics"
	"github.com/smazurov/echotherm/internal/thermal"
	"github.com/smazurov/echotherm/internal/video"
)

// DefaultQueueSize bounds the recording queue.
const DefaultQueueSize = 120

const msgThreadStopped = "Failed to take screenshot: the recording thread was stopped."

// recorder owns the screenshot and video pipeline: a bounded FIFO of frame
// copies drained by one worker goroutine.
//
// Lock order: encodeMu -> queueMu. shotMu is never held with another lock.
type recorder struct {
	logger    *slog.Logger
	publish   func(events.Event)
	openVideo video.Opener
	capacity  int

	// encodeMu is held while a frame is being encoded so StopRecording can
	// flush without interleaving with the worker.
	encodeMu sync.Mutex

	queueMu    sync.Mutex
	queueCond  *sync.Cond
	queue      []*thermal.Image
	running    bool
	done       chan struct{}
	shotPath   string
	writer     video.Writer
	lastErr    string
	recStarted time.Time

	shotMu     sync.Mutex
	shotCond   *sync.Cond
	shotBusy   bool
	shotResult *string
}

func newRecorder(logger *slog.Logger, publish func(events.Event), openVideo video.Opener, capacity int) *recorder {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	r := &recorder{
		logger:    logger,
		publish:   publish,
		openVideo: openVideo,
		capacity:  capacity,
	}
	r.queueCond = sync.NewCond(&r.queueMu)
	r.shotCond = sync.NewCond(&r.shotMu)
	return r
}

// start launches the worker for a new session.
func (r *recorder) start() {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.queue = nil
	r.done = make(chan struct{})
	go r.run(r.done)
}

// stop ends the worker, fails a pending screenshot, then flushes and
// closes any open writer.
func (r *recorder) stop() {
	r.queueMu.Lock()
	if !r.running {
		r.queueMu.Unlock()
		return
	}
	r.running = false
	pendingShot := r.shotPath != ""
	r.shotPath = ""
	done := r.done
	r.queueCond.Broadcast()
	r.queueMu.Unlock()

	<-done
	if pendingShot {
		r.deliverShot(msgThreadStopped)
	}
	if msg, ok := r.finishRecording(); ok {
		r.logger.Info(msg)
	}
	metrics.SetQueueDepth(0)
}

func (r *recorder) ready() bool {
	return len(r.queue) > 0 && (r.shotPath != "" || r.writer != nil)
}

func (r *recorder) run(done chan struct{}) {
	defer close(done)
	for {
		r.queueMu.Lock()
		for r.running && !r.ready() {
			r.queueCond.Wait()
		}
		running := r.running
		r.queueMu.Unlock()
		if !running {
			return
		}

		r.encodeMu.Lock()
		r.queueMu.Lock()
		if !r.running || !r.ready() {
			r.queueMu.Unlock()
			r.encodeMu.Unlock()
			continue
		}
		frame := r.queue[0]
		r.queue[0] = nil
		r.queue = r.queue[1:]
		shot := r.shotPath
		r.shotPath = ""
		w := r.writer
		metrics.SetQueueDepth(len(r.queue))
		r.queueMu.Unlock()

		r.service(frame, shot, w)
		r.encodeMu.Unlock()
	}
}

// offer enqueues a copy of im when a screenshot or recording wants it.
// owned means im is not shared with the caller and need not be copied.
func (r *recorder) offer(im *thermal.Image, owned bool) {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()
	if !r.running || (r.shotPath == "" && r.writer == nil) {
		return
	}
	if len(r.queue) >= r.capacity {
		metrics.IncDropped(metrics.DropQueueFull)
		r.logger.Debug("Recording queue full, dropping frame", "capacity", r.capacity)
		return
	}
	if !owned {
		im = im.Clone()
	}
	r.queue = append(r.queue, im)
	metrics.SetQueueDepth(len(r.queue))
	r.queueCond.Signal()
}

// service encodes one frame. Must hold encodeMu.
func (r *recorder) service(frame *thermal.Image, shot string, w video.Writer) {
	if shot != "" {
		var msg string
		err := imaging.EncodeFile(shot, frame)
		if err != nil {
			msg = fmt.Sprintf("Failed to take screenshot %s: %v.", shot, err)
			r.logger.Error("Screenshot failed", "path", shot, "error", err)
		} else {
			msg = fmt.Sprintf("Screenshot saved to %s.", shot)
			r.logger.Info("Screenshot saved", "path", shot, "width", frame.Width, "height", frame.Height)
		}
		r.completed(events.CaptureScreenshot, shot, err == nil, msg)
		r.deliverShot(msg)
	}

	if w != nil {
		if err := w.Write(frame); err != nil {
			r.failRecording(w, err)
		}
	}
}

func (r *recorder) failRecording(w video.Writer, err error) {
	r.queueMu.Lock()
	if r.writer != w {
		r.queueMu.Unlock()
		return
	}
	r.writer = nil
	if r.shotPath == "" {
		r.queue = nil
	}
	r.lastErr = fmt.Sprintf("Recording to %s failed: %v.", w.Path(), err)
	r.queueMu.Unlock()

	r.logger.Error("Recording failed", "path", w.Path(), "error", err)
	if cerr := w.Close(); cerr != nil {
		r.logger.Warn("Closing failed recording", "path", w.Path(), "error", cerr)
	}
	metrics.SetRecording(false)
	metrics.SetQueueDepth(0)
	r.completed(events.CaptureRecording, w.Path(), false, err.Error())
	r.publish(events.RecordingStateChangedEvent{Recording: false, Path: w.Path(), Frames: w.Frames(), Timestamp: time.Now()})
}

// takeScreenshot requests that the next queued frame be written to path
// and blocks until the worker reports the outcome.
func (r *recorder) takeScreenshot(path string) string {
	if !imaging.KnownExtension(filepath.Ext(path)) {
		return fmt.Sprintf("Failed to take screenshot: unsupported image extension %q (use one of %s).",
			filepath.Ext(path), strings.Join(imaging.Extensions, ", "))
	}
	if err := checkWritable(path); err != nil {
		return fmt.Sprintf("Failed to take screenshot: %v.", err)
	}

	r.shotMu.Lock()
	if r.shotBusy {
		r.shotMu.Unlock()
		return "Failed to take screenshot: another screenshot is in progress."
	}
	r.shotBusy = true
	r.shotResult = nil
	r.shotMu.Unlock()

	r.queueMu.Lock()
	if !r.running {
		r.queueMu.Unlock()
		r.shotMu.Lock()
		r.shotBusy = false
		r.shotMu.Unlock()
		return msgThreadStopped
	}
	r.shotPath = path
	r.queueCond.Broadcast()
	r.queueMu.Unlock()

	r.shotMu.Lock()
	defer r.shotMu.Unlock()
	for r.shotResult == nil {
		r.shotCond.Wait()
	}
	msg := *r.shotResult
	r.shotResult = nil
	r.shotBusy = false
	return msg
}

func (r *recorder) deliverShot(msg string) {
	r.shotMu.Lock()
	if r.shotBusy {
		r.shotResult = &msg
		r.shotCond.Broadcast()
	}
	r.shotMu.Unlock()
}

// startRecording opens a writer for path. It does not wait for frames.
func (r *recorder) startRecording(path string) string {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()

	if r.writer != nil {
		return fmt.Sprintf("Camera is already recording to %s.", r.writer.Path())
	}
	if !r.running {
		return "Failed to start recording: the recording thread is not running."
	}
	if err := checkWritable(path); err != nil {
		return fmt.Sprintf("Failed to start recording: %v.", err)
	}
	if ext := filepath.Ext(path); !strings.EqualFold(ext, ".mp4") {
		return fmt.Sprintf("Failed to start recording: the file extension must be .mp4, got %q.", ext)
	}

	w, err := r.openVideo(path)
	if err != nil {
		r.logger.Error("Failed to open video writer", "path", path, "error", err)
		return fmt.Sprintf("Failed to start recording to %s: %v.", path, err)
	}
	r.writer = w
	r.lastErr = ""
	r.recStarted = time.Now()
	metrics.SetRecording(true)
	r.logger.Info("Recording started", "path", path)
	r.publish(events.RecordingStateChangedEvent{Recording: true, Path: path, Timestamp: time.Now()})
	return fmt.Sprintf("Recording to %s.", path)
}

// stopRecording flushes every queued frame into the writer and closes it.
func (r *recorder) stopRecording() string {
	if msg, ok := r.finishRecording(); ok {
		return msg
	}
	r.queueMu.Lock()
	defer r.queueMu.Unlock()
	if r.lastErr != "" {
		msg := r.lastErr
		r.lastErr = ""
		return msg
	}
	return "Recording is not in progress."
}

// finishRecording reports ok=false when no writer was open.
func (r *recorder) finishRecording() (string, bool) {
	r.encodeMu.Lock()
	defer r.encodeMu.Unlock()

	r.queueMu.Lock()
	w := r.writer
	if w == nil {
		r.queueMu.Unlock()
		return "", false
	}
	frames := r.queue
	r.queue = nil
	shot := ""
	if len(frames) > 0 {
		shot = r.shotPath
		r.shotPath = ""
	}
	started := r.recStarted
	r.queueMu.Unlock()

	for i, frame := range frames {
		if i > 0 {
			shot = ""
		}
		r.service(frame, shot, w)
	}

	r.queueMu.Lock()
	failed := r.writer != w
	if !failed {
		r.writer = nil
	}
	r.queueMu.Unlock()
	metrics.SetQueueDepth(0)
	if failed {
		// service already closed the writer and recorded the failure.
		r.queueMu.Lock()
		msg := r.lastErr
		r.lastErr = ""
		r.queueMu.Unlock()
		return msg, true
	}

	metrics.SetRecording(false)
	n := w.Frames()
	if err := w.Close(); err != nil {
		msg := fmt.Sprintf("Recording to %s failed while finalizing: %v.", w.Path(), err)
		r.logger.Error("Failed to finalize recording", "path", w.Path(), "error", err)
		r.completed(events.CaptureRecording, w.Path(), false, msg)
		r.publish(events.RecordingStateChangedEvent{Recording: false, Path: w.Path(), Frames: n, Timestamp: time.Now()})
		return msg, true
	}

	msg := fmt.Sprintf("Stopped recording to %s (%d frames, %s).", w.Path(), n, time.Since(started).Round(time.Second))
	r.logger.Info("Recording stopped", "path", w.Path(), "frames", n)
	r.completed(events.CaptureRecording, w.Path(), true, msg)
	r.publish(events.RecordingStateChangedEvent{Recording: false, Path: w.Path(), Frames: n, Timestamp: time.Now()})
	return msg, true
}

// recording returns the open writer path and frame count.
func (r *recorder) recording() (path string, frames int, ok bool) {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()
	if r.writer == nil {
		return "", 0, false
	}
	return r.writer.Path(), r.writer.Frames(), true
}

// takeLastError returns and clears the last recording failure.
func (r *recorder) takeLastError() string {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()
	msg := r.lastErr
	r.lastErr = ""
	return msg
}

func (r *recorder) completed(kind, path string, ok bool, msg string) {
	metrics.IncCapture(kind, ok)
	r.publish(events.CaptureCompletedEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		Path:      path,
		OK:        ok,
		Message:   msg,
		Timestamp: time.Now(),
	})
}
