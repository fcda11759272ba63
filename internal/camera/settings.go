package camera

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/smazurov/echotherm/internal/config"
	"github.com/smazurov/echotherm/internal/events"
	"github.com/smazurov/echotherm/internal/metrics"
	"github.com/smazurov/echotherm/internal/thermal"
)

// Settings changed while disconnected are stored and applied when the next
// session opens. Setting a value equal to the current one is a no-op.

func (c *Camera) settingChanged(name, value string) {
	c.logger.Info("Setting changed", "setting", name, "value", value)
	c.publish(events.SettingChangedEvent{Setting: name, Value: value, Timestamp: time.Now()})
}

// SetPalette selects the false-color palette.
func (c *Camera) SetPalette(p thermal.Palette) error {
	if !p.Valid() {
		return fmt.Errorf("%w: palette %d", ErrInvalidSetting, int(p))
	}
	c.mu.Lock()
	if c.cfg.palette == p {
		c.mu.Unlock()
		return nil
	}
	if c.device != nil {
		if err := c.device.SetColorPalette(p); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("set palette %s: %w", p, err)
		}
	}
	c.cfg.palette = p
	c.mu.Unlock()

	c.settingChanged("palette", p.String())
	return nil
}

// SetShutterMode sets the shutter schedule: 0 lets the sensor decide, a
// positive value triggers the shutter every mode seconds and a negative
// value disables automatic triggering.
func (c *Camera) SetShutterMode(mode int) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.mu.Lock()
	if c.cfg.shutterMode == mode {
		c.mu.Unlock()
		return nil
	}
	if c.device != nil {
		if err := c.device.SetShutterMode(sensorShutterMode(mode)); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("set shutter mode %d: %w", mode, err)
		}
	}
	c.cfg.shutterMode = mode
	connected := c.device != nil
	c.mu.Unlock()

	// The worker takes mu to trigger; it must not be held here.
	c.shutter.halt()
	if connected && mode > 0 {
		c.shutter.start(time.Duration(mode)*time.Second, c.scheduledShutter)
	}
	c.settingChanged("shutter_mode", strconv.Itoa(mode))
	return nil
}

// SetPipelineMode selects the sensor processing tier. Outside the
// processed mode the stored filter states are re-applied.
func (c *Camera) SetPipelineMode(mode thermal.PipelineMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: pipeline mode %d", ErrInvalidSetting, int(mode))
	}
	c.mu.Lock()
	if c.cfg.pipeline == mode {
		c.mu.Unlock()
		return nil
	}
	if dev := c.device; dev != nil {
		if err := dev.SetPipelineMode(mode); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("set pipeline mode %s: %w", mode, err)
		}
		if mode != thermal.PipelineProcessed {
			c.syncFilters(dev)
		}
	}
	c.cfg.pipeline = mode
	c.mu.Unlock()

	c.settingChanged("pipeline_mode", mode.String())
	return nil
}

// syncFilters pushes stored filter states the sensor disagrees with.
// Must hold mu.
func (c *Camera) syncFilters(dev thermal.Device) {
	for i, want := range c.cfg.filters {
		f := thermal.Filter(i)
		if got, err := dev.FilterState(f); err == nil && got == want {
			continue
		}
		if err := dev.SetFilterState(f, want); err != nil {
			c.logger.Warn("Failed to restore filter", "filter", f.String(), "error", err)
		}
	}
}

var filterSettings = [...]string{
	thermal.FilterSharpen:   "sharpen",
	thermal.FilterFlatScene: "flat_scene",
	thermal.FilterGradient:  "gradient",
}

// SetFilter enables or disables a software filter. The sensor only sees
// the change outside the processed pipeline mode.
func (c *Camera) SetFilter(f thermal.Filter, s thermal.FilterState) error {
	if f < thermal.FilterSharpen || f > thermal.FilterGradient {
		return fmt.Errorf("%w: filter %d", ErrInvalidSetting, int(f))
	}
	c.mu.Lock()
	if c.cfg.filters[f] == s {
		c.mu.Unlock()
		return nil
	}
	if c.device != nil && c.cfg.pipeline != thermal.PipelineProcessed {
		if err := c.device.SetFilterState(f, s); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("set %s filter: %w", f, err)
		}
	}
	c.cfg.filters[f] = s
	c.mu.Unlock()

	c.settingChanged(filterSettings[f], s.String())
	return nil
}

// SetSharpen, SetFlatScene and SetGradient treat any non-zero value as
// enabled.
func (c *Camera) SetSharpen(v int) error {
	return c.SetFilter(thermal.FilterSharpen, thermal.FilterStateOf(v))
}

func (c *Camera) SetFlatScene(v int) error {
	return c.SetFilter(thermal.FilterFlatScene, thermal.FilterStateOf(v))
}

func (c *Camera) SetGradient(v int) error {
	return c.SetFilter(thermal.FilterGradient, thermal.FilterStateOf(v))
}

// TriggerShutter runs a flat-field correction now.
func (c *Camera) TriggerShutter() error {
	return c.triggerShutter(false)
}

func (c *Camera) triggerShutter(scheduled bool) error {
	c.mu.Lock()
	dev := c.device
	if dev == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	err := dev.TriggerShutter()
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("trigger shutter: %w", err)
	}

	source := "manual"
	if scheduled {
		source = "scheduled"
	}
	metrics.IncShutter(source)
	c.logger.Debug("Shutter triggered", "source", source)
	c.publish(events.ShutterTriggeredEvent{Scheduled: scheduled, Timestamp: time.Now()})
	return nil
}

// SetZoom sets the digital zoom factor.
func (c *Camera) SetZoom(z float64) {
	c.mu.Lock()
	prev := c.zoom.Current()
	c.zoom.SetZoom(z)
	cur := c.zoom.Current()
	c.mu.Unlock()

	metrics.SetZoom(cur)
	if cur != prev {
		c.settingChanged("zoom", fmt.Sprintf("%.2f", cur))
	}
}

// SetZoomRate sets the continuous zoom speed applied on every frame.
func (c *Camera) SetZoomRate(r float64) {
	c.mu.Lock()
	prev := c.zoom.Rate()
	c.zoom.SetRate(r)
	cur := c.zoom.Rate()
	c.mu.Unlock()
	if cur != prev {
		c.settingChanged("zoom_rate", strconv.FormatFloat(cur, 'f', -1, 64))
	}
}

// SetMaxZoom sets the zoom ceiling.
func (c *Camera) SetMaxZoom(m float64) {
	c.mu.Lock()
	prev := c.zoom.Max()
	c.zoom.SetMax(m)
	cur, zoom := c.zoom.Max(), c.zoom.Current()
	c.mu.Unlock()

	metrics.SetZoom(zoom)
	if cur != prev {
		c.settingChanged("max_zoom", strconv.FormatFloat(cur, 'f', -1, 64))
	}
}

// SetRadiometricFormat selects the thermography encoding requested from
// the sensor. A running session is restarted.
func (c *Camera) SetRadiometricFormat(f thermal.Format) error {
	if !f.Radiometric() {
		return fmt.Errorf("%w: %s is not a radiometric format", ErrInvalidSetting, f)
	}
	return c.changeSessionSetting("radiometric_format", f.String(), func() bool {
		if c.cfg.radiometric == f {
			return false
		}
		c.cfg.radiometric = f
		return true
	})
}

// SetVisualFormat selects the image format written to the loopback device
// and captures. A running session is restarted.
func (c *Camera) SetVisualFormat(f thermal.Format) error {
	if !f.Visual() {
		return fmt.Errorf("%w: %s is not a visual format", ErrInvalidSetting, f)
	}
	return c.changeSessionSetting("visual_format", f.String(), func() bool {
		if c.cfg.visual == f {
			return false
		}
		c.cfg.visual = f
		return true
	})
}

// SetLoopbackDevice changes the output device path. An empty path disables
// the loopback output. A running session is restarted.
func (c *Camera) SetLoopbackDevice(path string) error {
	return c.changeSessionSetting("loopback_device", path, func() bool {
		if c.cfg.loopback == path {
			return false
		}
		c.cfg.loopback = path
		return true
	})
}

func (c *Camera) changeSessionSetting(name, value string, update func() bool) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.mu.Lock()
	changed := update()
	c.mu.Unlock()
	if !changed {
		return nil
	}
	c.restartSession()
	c.settingChanged(name, value)
	return nil
}

// ApplySettings applies every key present in s. All keys are attempted;
// the errors of those that failed are joined.
func (c *Camera) ApplySettings(s config.CameraSettings) error {
	var errs []error
	if s.Palette != nil {
		errs = append(errs, c.SetPalette(thermal.Palette(*s.Palette)))
	}
	if s.ShutterMode != nil {
		errs = append(errs, c.SetShutterMode(*s.ShutterMode))
	}
	if s.PipelineMode != nil {
		errs = append(errs, c.SetPipelineMode(thermal.PipelineMode(*s.PipelineMode)))
	}
	if s.Sharpen != nil {
		errs = append(errs, c.SetSharpen(*s.Sharpen))
	}
	if s.FlatScene != nil {
		errs = append(errs, c.SetFlatScene(*s.FlatScene))
	}
	if s.Gradient != nil {
		errs = append(errs, c.SetGradient(*s.Gradient))
	}
	if s.RadiometricFormat != nil {
		errs = append(errs, c.SetRadiometricFormat(thermal.Format(*s.RadiometricFormat)))
	}
	if s.MaxZoom != nil {
		c.SetMaxZoom(*s.MaxZoom)
	}
	if s.ZoomRate != nil {
		c.SetZoomRate(*s.ZoomRate)
	}
	return errors.Join(errs...)
}
