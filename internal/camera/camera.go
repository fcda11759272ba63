// Package camera owns the thermal sensor capture session.
//
// A Camera binds to the first sensor a thermal.Manager reports and keeps a
// capture session open while it is connected. Every delivered frame is
// zoomed and written to a loopback device, offered to the recording
// pipeline and, when requested, serialized as radiometric data. Settings
// can be changed at any time from the command server, the HTTP API or NATS
// and survive reconnects.
//
// Locks: lifecycleMu serializes session open/close and worker restarts;
// mu guards the device handle, settings, zoom and sink. lifecycleMu is
// always taken before mu, and mu is never held while a worker is stopped.
package camera

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/smazurov/echotherm/internal/events"
	"github.com/smazurov/echotherm/internal/logging"
	"github.com/smazurov/echotherm/internal/loopback"
	"github.com/smazurov/echotherm/internal/thermal"
	"github.com/smazurov/echotherm/internal/video"
)

var (
	// ErrNotConnected is returned by operations that need a capture session.
	ErrNotConnected = errors.New("camera not connected")
	// ErrInvalidSetting is returned for out-of-range setting values.
	ErrInvalidSetting = errors.New("invalid setting")
)

// Defaults for Options.
const (
	DefaultVisualFormat      = thermal.FormatARGB8888
	DefaultRadiometricFormat = thermal.FormatThermographyFloat
	DefaultLoopbackDevice    = "/dev/video0"
)

// Options configures a Camera. Zero values select defaults.
type Options struct {
	Driver         thermal.Driver
	LoopbackDevice string // empty disables the loopback output
	OpenSink       loopback.Opener
	OpenVideo      video.Opener
	Bus            *events.Bus

	VisualFormat      thermal.Format
	RadiometricFormat thermal.Format
	Palette           int
	ShutterMode       int
	PipelineMode      *int // nil selects PROCESSED
	Sharpen           int
	FlatScene         int
	Gradient          int
	MaxZoom           float64
	ZoomRate          float64

	QueueSize int
	HomeDir   string
	Logger    *slog.Logger
}

// settings are the values that persist across reconnects.
type settings struct {
	visual      thermal.Format
	radiometric thermal.Format
	palette     thermal.Palette
	shutterMode int
	pipeline    thermal.PipelineMode
	filters     [3]thermal.FilterState
	loopback    string
}

// managerHandle closes its manager exactly once.
type managerHandle struct {
	mgr  thermal.Manager
	once sync.Once
	err  error
}

func (h *managerHandle) close() error {
	h.once.Do(func() { h.err = h.mgr.Close() })
	return h.err
}

// Camera is the capture session. Create one with New.
type Camera struct {
	logger    *slog.Logger
	bus       *events.Bus
	driver    thermal.Driver
	openSink  loopback.Opener
	home      string
	rec       *recorder
	shutter   shutterWorker
	radio     radiometricRequest

	lifecycleMu sync.Mutex

	mu         sync.Mutex
	state      string
	manager    *managerHandle
	device     thermal.Device
	chipID     string
	sessionID  string
	cfg        settings
	zoom       Zoom
	sink       loopback.Sink
	sinkFailed bool
	reopenSink bool
	firstFrame bool
	frames     uint64
}

// New creates a stopped camera.
func New(opts Options) *Camera {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("camera")
	}
	if opts.OpenSink == nil {
		opts.OpenSink = loopback.Open
	}
	if opts.OpenVideo == nil {
		opts.OpenVideo = video.NewOpener(video.Options{})
	}
	if !opts.VisualFormat.Visual() {
		opts.VisualFormat = DefaultVisualFormat
	}
	if !opts.RadiometricFormat.Radiometric() {
		opts.RadiometricFormat = DefaultRadiometricFormat
	}
	pipeline := thermal.PipelineProcessed
	if opts.PipelineMode != nil && thermal.PipelineMode(*opts.PipelineMode).Valid() {
		pipeline = thermal.PipelineMode(*opts.PipelineMode)
	}
	palette := thermal.Palette(opts.Palette)
	if !palette.Valid() {
		palette = thermal.PaletteWhiteHot
	}

	c := &Camera{
		logger:   logger,
		bus:      opts.Bus,
		driver:   opts.Driver,
		openSink: opts.OpenSink,
		home:     homeDir(opts.HomeDir),
		state:    events.StateStopped,
		cfg: settings{
			visual:      opts.VisualFormat,
			radiometric: opts.RadiometricFormat,
			palette:     palette,
			shutterMode: opts.ShutterMode,
			pipeline:    pipeline,
			filters: [3]thermal.FilterState{
				thermal.FilterStateOf(opts.Sharpen),
				thermal.FilterStateOf(opts.FlatScene),
				thermal.FilterStateOf(opts.Gradient),
			},
			loopback: opts.LoopbackDevice,
		},
		zoom: NewZoom(),
	}
	if opts.MaxZoom != 0 {
		c.zoom.SetMax(opts.MaxZoom)
	}
	c.zoom.SetRate(opts.ZoomRate)
	c.rec = newRecorder(logging.GetLogger("recorder"), c.publish, opts.OpenVideo, opts.QueueSize)
	return c
}

func (c *Camera) publish(ev events.Event) {
	if c.bus != nil {
		c.bus.Publish(ev)
	}
}

// HomeDir is where captures without a path are written.
func (c *Camera) HomeDir() string {
	return c.home
}

// State returns stopped, searching or connected.
func (c *Camera) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether a capture session is open.
func (c *Camera) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device != nil
}

// Status is a point-in-time view of the camera.
type Status struct {
	State             string   `json:"state" enum:"stopped,searching,connected"`
	ChipID            string   `json:"chip_id,omitempty"`
	SessionID         string   `json:"session_id,omitempty"`
	Frames            uint64   `json:"frames" doc:"Frames delivered in the current session"`
	Palette           string   `json:"palette" example:"WHITE_HOT"`
	ShutterMode       int      `json:"shutter_mode" doc:"Negative: manual, 0: automatic, positive: seconds between triggers"`
	PipelineMode      string   `json:"pipeline_mode" example:"PROCESSED"`
	Sharpen           bool     `json:"sharpen"`
	FlatScene         bool     `json:"flat_scene"`
	Gradient          bool     `json:"gradient"`
	VisualFormat      string   `json:"visual_format" example:"COLOR_ARGB8888"`
	RadiometricFormat string   `json:"radiometric_format" example:"THERMOGRAPHY_FLOAT"`
	Zoom              float64  `json:"zoom"`
	ZoomRate          float64  `json:"zoom_rate"`
	MaxZoom           float64  `json:"max_zoom"`
	ROI               [4]int   `json:"roi" doc:"x, y, width, height"`
	LoopbackDevice    string   `json:"loopback_device"`
	LoopbackOpen      bool     `json:"loopback_open"`
	Recording         bool     `json:"recording"`
	RecordingPath     string   `json:"recording_path,omitempty"`
	RecordingFrames   int      `json:"recording_frames,omitempty"`
	Warnings          []string `json:"warnings,omitempty"`
}

// Snapshot returns the current status without consuming the last error.
func (c *Camera) Snapshot() Status {
	c.mu.Lock()
	roi := c.zoom.ROI()
	st := Status{
		State:             c.state,
		ChipID:            c.chipID,
		SessionID:         c.sessionID,
		Frames:            c.frames,
		Palette:           c.cfg.palette.String(),
		ShutterMode:       c.cfg.shutterMode,
		PipelineMode:      c.cfg.pipeline.String(),
		Sharpen:           c.filterReported(thermal.FilterSharpen),
		FlatScene:         c.filterReported(thermal.FilterFlatScene),
		Gradient:          c.filterReported(thermal.FilterGradient),
		VisualFormat:      c.cfg.visual.String(),
		RadiometricFormat: c.cfg.radiometric.String(),
		Zoom:              c.zoom.Current(),
		ZoomRate:          c.zoom.Rate(),
		MaxZoom:           c.zoom.Max(),
		ROI:               [4]int{roi.Min.X, roi.Min.Y, roi.Dx(), roi.Dy()},
		LoopbackDevice:    c.cfg.loopback,
		LoopbackOpen:      c.sink != nil,
	}
	if c.sinkFailed {
		st.Warnings = append(st.Warnings, "loopback device could not be opened")
	}
	c.mu.Unlock()

	st.RecordingPath, st.RecordingFrames, st.Recording = c.rec.recording()
	return st
}

// filterReported applies the processed-pipeline rule. Must hold mu.
func (c *Camera) filterReported(f thermal.Filter) bool {
	return c.cfg.pipeline != thermal.PipelineProcessed && c.cfg.filters[f] == thermal.FilterEnabled
}

// StatusLine returns a one-line human-readable status. A pending recording
// failure is appended once and then cleared.
func (c *Camera) StatusLine() string {
	st := c.Snapshot()
	lastErr := c.rec.takeLastError()

	var b strings.Builder
	if st.State != events.StateConnected {
		b.WriteString("Waiting for camera to connect.")
	} else {
		fmt.Fprintf(&b, "Camera %s connected; %d frames; palette %s; shutter mode %d; pipeline %s",
			st.ChipID, st.Frames, st.Palette, st.ShutterMode, st.PipelineMode)
		fmt.Fprintf(&b, "; sharpen %s; flat scene %s; gradient %s",
			onOff(st.Sharpen), onOff(st.FlatScene), onOff(st.Gradient))
		fmt.Fprintf(&b, "; zoom %.2f (max %.2f, rate %.2f)", st.Zoom, st.MaxZoom, st.ZoomRate)
		switch {
		case st.LoopbackDevice == "":
			b.WriteString("; loopback disabled")
		case st.LoopbackOpen:
			fmt.Fprintf(&b, "; loopback %s", st.LoopbackDevice)
		default:
			fmt.Fprintf(&b, "; loopback %s not open", st.LoopbackDevice)
		}
		if st.Recording {
			fmt.Fprintf(&b, "; recording to %s (%d frames)", st.RecordingPath, st.RecordingFrames)
		} else {
			b.WriteString("; not recording")
		}
		b.WriteString(".")
	}
	if lastErr != "" {
		b.WriteString(" Last error: ")
		b.WriteString(lastErr)
	}
	return b.String()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// ZoomString returns the current zoom with two decimals.
func (c *Camera) ZoomString() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("%.2f", c.zoom.Current())
}

// ROI returns the current zoom region.
func (c *Camera) ROI() image.Rectangle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zoom.ROI()
}

func (c *Camera) setState(state string) {
	c.mu.Lock()
	prev := c.state
	c.state = state
	chip, session := c.chipID, c.sessionID
	c.mu.Unlock()
	if prev == state {
		return
	}
	c.logger.Info("Camera state changed", "from", prev, "to", state, "chip_id", chip)
	c.publish(events.CameraStateChangedEvent{
		State:     state,
		Previous:  prev,
		ChipID:    chip,
		SessionID: session,
		Timestamp: time.Now(),
	})
}
