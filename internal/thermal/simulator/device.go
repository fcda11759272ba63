package simulator

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/smazurov/echotherm/internal/thermal"
)

var errNotPaired = errors.New("sensor is not paired")

const supportedFormats = thermal.FormatGrayscale | thermal.FormatARGB8888 |
	thermal.FormatThermographyFloat | thermal.FormatThermographyFixed

// Device is a simulated sensor.
type Device struct {
	chipID string
	opts   Options
	mgr    *Manager

	mu       sync.Mutex
	onFrame  func(thermal.Frame)
	palette  thermal.Palette
	pipeline thermal.PipelineMode
	shutter  thermal.ShutterMode
	filters  [3]thermal.FilterState
	formats  thermal.Format
	counter  uint32
	triggers int
	stop     chan struct{}
	done     chan struct{}
	scene    *scene
}

func newDevice(chipID string, opts Options, mgr *Manager) *Device {
	return &Device{
		chipID:   chipID,
		opts:     opts,
		mgr:      mgr,
		pipeline: thermal.PipelineProcessed,
		scene:    newScene(opts.Width, opts.Height),
	}
}

// ChipID implements thermal.Device.
func (d *Device) ChipID() string { return d.chipID }

// RegisterFrameHandler implements thermal.Device.
func (d *Device) RegisterFrameHandler(fn func(thermal.Frame)) error {
	d.mu.Lock()
	d.onFrame = fn
	d.mu.Unlock()
	return nil
}

// StartCaptureSession implements thermal.Device. Frames are produced at
// the configured rate until StopCaptureSession.
func (d *Device) StartCaptureSession(formats thermal.Format) error {
	if formats == 0 || formats&^supportedFormats != 0 {
		return fmt.Errorf("%w: %s", thermal.ErrUnsupportedFormat, formats)
	}
	if d.opts.RequirePairing && !d.mgr.isPaired() {
		return errNotPaired
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return errors.New("capture session already running")
	}
	d.formats = formats
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.run(d.stop, d.done)
	return nil
}

// StopCaptureSession implements thermal.Device. It must not be called from
// the frame handler.
func (d *Device) StopCaptureSession() error {
	d.mu.Lock()
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

// Running reports whether a capture session is active.
func (d *Device) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stop != nil
}

func (d *Device) run(stop, done chan struct{}) {
	defer close(done)
	interval := time.Duration(float64(time.Second) / d.opts.FrameRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			d.deliver(now)
		}
	}
}

func (d *Device) deliver(now time.Time) {
	d.mu.Lock()
	fn := d.onFrame
	d.counter++
	f := d.render(now.UTC())
	d.mu.Unlock()
	if fn != nil {
		fn(f)
	}
}

// Emit renders and delivers one frame synchronously, regardless of
// whether a capture session is running.
func (d *Device) Emit() {
	d.deliver(time.Now())
}

func (d *Device) render(ts time.Time) *frame {
	formats := d.formats
	if formats == 0 {
		formats = supportedFormats
	}
	temps := d.scene.temperatures(ts)
	f := &frame{
		counter: d.counter,
		ts:      ts,
		images:  make(map[thermal.Format]*thermal.Image),
	}
	for _, fmtBit := range []thermal.Format{
		thermal.FormatGrayscale, thermal.FormatARGB8888,
		thermal.FormatThermographyFloat, thermal.FormatThermographyFixed,
	} {
		if formats&fmtBit != 0 {
			f.images[fmtBit] = renderImage(fmtBit, d.palette, d.scene.w, d.scene.h, temps)
		}
	}

	lo, hi, spot := stats(temps, d.scene.w, d.scene.h)
	f.header = []thermal.HeaderField{
		{Key: "chipid", Value: d.chipID},
		{Key: "frame_counter", Value: strconv.FormatUint(uint64(d.counter), 10)},
		{Key: "timestamp_utc_ns", Value: strconv.FormatInt(ts.UnixNano(), 10)},
		{Key: "width", Value: strconv.Itoa(d.scene.w)},
		{Key: "height", Value: strconv.Itoa(d.scene.h)},
		{Key: "pipeline_mode", Value: d.pipeline.String()},
		{Key: "color_palette", Value: d.palette.String()},
		{Key: "shutter_mode", Value: d.shutter.String()},
		{Key: "shutter_count", Value: strconv.Itoa(d.triggers)},
		{Key: "fpa_temp_c", Value: strconv.FormatFloat(31.25, 'f', 2, 64)},
		{Key: "environment_temp_c", Value: strconv.FormatFloat(ambientC, 'f', 2, 64)},
		{Key: "thermography_min_c", Value: strconv.FormatFloat(lo, 'f', 2, 64)},
		{Key: "thermography_max_c", Value: strconv.FormatFloat(hi, 'f', 2, 64)},
		{Key: "thermography_spot_c", Value: strconv.FormatFloat(spot, 'f', 2, 64)},
	}
	return f
}

// SetPipelineMode implements thermal.Device.
func (d *Device) SetPipelineMode(mode thermal.PipelineMode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid pipeline mode %d", int(mode))
	}
	d.mu.Lock()
	d.pipeline = mode
	d.mu.Unlock()
	return nil
}

// SetColorPalette implements thermal.Device.
func (d *Device) SetColorPalette(p thermal.Palette) error {
	if !p.Valid() {
		return fmt.Errorf("invalid color palette %d", int(p))
	}
	d.mu.Lock()
	d.palette = p
	d.mu.Unlock()
	return nil
}

// SetShutterMode implements thermal.Device.
func (d *Device) SetShutterMode(mode thermal.ShutterMode) error {
	if mode != thermal.ShutterAuto && mode != thermal.ShutterManual {
		return fmt.Errorf("invalid shutter mode %d", int(mode))
	}
	d.mu.Lock()
	d.shutter = mode
	d.mu.Unlock()
	return nil
}

// SetFilterState implements thermal.Device.
func (d *Device) SetFilterState(f thermal.Filter, s thermal.FilterState) error {
	if f < thermal.FilterSharpen || f > thermal.FilterGradient {
		return fmt.Errorf("invalid filter %d", int(f))
	}
	d.mu.Lock()
	d.filters[f] = s
	d.mu.Unlock()
	return nil
}

// FilterState implements thermal.Device. Filters read as disabled in the
// processed pipeline.
func (d *Device) FilterState(f thermal.Filter) (thermal.FilterState, error) {
	if f < thermal.FilterSharpen || f > thermal.FilterGradient {
		return thermal.FilterDisabled, fmt.Errorf("invalid filter %d", int(f))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pipeline == thermal.PipelineProcessed {
		return thermal.FilterDisabled, nil
	}
	return d.filters[f], nil
}

// TriggerShutter implements thermal.Device.
func (d *Device) TriggerShutter() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop == nil {
		return thermal.ErrNoSession
	}
	d.triggers++
	d.scene.recalibrate()
	return nil
}

// ShutterTriggers returns how many times the shutter fired.
func (d *Device) ShutterTriggers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.triggers
}

// Palette returns the active palette.
func (d *Device) Palette() thermal.Palette {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.palette
}

// StorePairing implements thermal.Device.
func (d *Device) StorePairing() error {
	d.mgr.markPaired()
	return nil
}

type frame struct {
	counter uint32
	ts      time.Time
	images  map[thermal.Format]*thermal.Image
	header  []thermal.HeaderField
}

func (f *frame) Image(format thermal.Format) (*thermal.Image, error) {
	im, ok := f.images[format]
	if !ok {
		return nil, fmt.Errorf("%w: %s not in session", thermal.ErrUnsupportedFormat, format)
	}
	return im, nil
}

func (f *frame) Header() []thermal.HeaderField { return f.header }
func (f *frame) Counter() uint32               { return f.counter }
func (f *frame) Timestamp() time.Time          { return f.ts }
