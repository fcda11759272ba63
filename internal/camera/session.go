package camera

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/smazurov/echotherm/internal/events"
	"github.com/smazurov/echotherm/internal/metrics"
	"github.com/smazurov/echotherm/internal/thermal"
)

// Start tears down any previous manager, creates a new one and waits for a
// sensor to connect. Failing to create the manager or register the event
// handler is returned; nothing is left running in that case.
func (c *Camera) Start() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if err := c.shutdown(); err != nil {
		c.logger.Warn("Closing previous device manager failed", "error", err)
	}
	if c.driver == nil {
		return errors.New("no thermal driver configured")
	}

	mgr, err := c.driver.NewManager()
	if err != nil {
		return fmt.Errorf("create device manager: %w", err)
	}
	h := &managerHandle{mgr: mgr}

	c.mu.Lock()
	c.manager = h
	c.mu.Unlock()
	c.setState(events.StateSearching)

	err = mgr.RegisterEventHandler(func(dev thermal.Device, ev thermal.Event) {
		c.onEvent(h, dev, ev)
	})
	if err != nil {
		_ = h.close()
		c.mu.Lock()
		c.manager = nil
		c.mu.Unlock()
		c.setState(events.StateStopped)
		return fmt.Errorf("register event handler: %w", err)
	}

	c.logger.Info("Waiting for thermal camera")
	return nil
}

// Stop closes the session and the device manager. It is safe to call
// repeatedly.
func (c *Camera) Stop() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	return c.shutdown()
}

// shutdown must hold lifecycleMu.
func (c *Camera) shutdown() error {
	c.mu.Lock()
	h := c.manager
	c.manager = nil
	c.mu.Unlock()

	c.closeSession()
	c.mu.Lock()
	c.chipID = ""
	c.mu.Unlock()

	var err error
	if h != nil {
		err = h.close()
	}
	c.setState(events.StateStopped)
	return err
}

func (c *Camera) onEvent(h *managerHandle, dev thermal.Device, ev thermal.Event) {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	chip := dev.ChipID()
	c.mu.Lock()
	if c.manager != h {
		c.mu.Unlock()
		return
	}
	bound := c.chipID
	c.mu.Unlock()

	if bound != "" && bound != chip {
		c.logger.Warn("Ignoring event from unknown camera", "chip_id", chip, "bound_chip_id", bound, "event", ev.Kind.String())
		return
	}

	switch ev.Kind {
	case thermal.EventConnect:
		c.logger.Info("Camera connected", "chip_id", chip)
		c.bind(chip)
		c.openSession(dev)
	case thermal.EventReadyToPair:
		c.logger.Info("Camera ready to pair", "chip_id", chip)
		if err := dev.StorePairing(); err != nil {
			c.logger.Warn("Pairing failed", "chip_id", chip, "error", err)
		}
		c.bind(chip)
		c.openSession(dev)
	case thermal.EventDisconnect:
		c.logger.Info("Camera disconnected", "chip_id", chip)
		c.mu.Lock()
		current := c.device == dev
		c.mu.Unlock()
		if current {
			c.closeSession()
		}
	case thermal.EventError:
		c.logger.Error("Camera reported an error", "chip_id", chip, "error", ev.Err)
	default:
		c.logger.Debug("Unhandled camera event", "chip_id", chip, "event", ev.Kind.String())
	}
}

func (c *Camera) bind(chip string) {
	c.mu.Lock()
	if c.chipID == "" {
		c.chipID = chip
	}
	c.mu.Unlock()
}

// openSession starts capturing from dev with the stored settings. Must
// hold lifecycleMu.
func (c *Camera) openSession(dev thermal.Device) {
	c.mu.Lock()
	current := c.device
	c.mu.Unlock()
	if current == dev {
		return
	}
	if current != nil {
		c.closeSession()
	}

	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()

	if err := dev.RegisterFrameHandler(func(f thermal.Frame) { c.handleFrame(dev, f) }); err != nil {
		c.logger.Error("Failed to register frame handler", "error", err)
		return
	}
	if err := dev.SetPipelineMode(cfg.pipeline); err != nil {
		c.logger.Warn("Failed to set pipeline mode", "mode", cfg.pipeline.String(), "error", err)
	}

	c.rec.start()
	c.mu.Lock()
	c.device = dev
	c.sessionID = uuid.NewString()
	c.frames = 0
	c.firstFrame = true
	c.reopenSink = false
	c.sinkFailed = false
	c.mu.Unlock()

	formats := cfg.visual | cfg.radiometric
	if err := dev.StartCaptureSession(formats); err != nil {
		c.logger.Error("Failed to start capture session", "formats", formats.String(), "error", err)
		c.mu.Lock()
		c.device = nil
		c.sessionID = ""
		c.mu.Unlock()
		c.rec.stop()
		return
	}

	if err := dev.SetShutterMode(sensorShutterMode(cfg.shutterMode)); err != nil {
		c.logger.Warn("Failed to set shutter mode", "mode", cfg.shutterMode, "error", err)
	}
	if err := dev.SetColorPalette(cfg.palette); err != nil {
		c.logger.Warn("Failed to set palette", "palette", cfg.palette.String(), "error", err)
	}
	if cfg.pipeline != thermal.PipelineProcessed {
		for f, s := range cfg.filters {
			if err := dev.SetFilterState(thermal.Filter(f), s); err != nil {
				c.logger.Warn("Failed to set filter", "filter", thermal.Filter(f).String(), "error", err)
			}
		}
	}
	if cfg.shutterMode > 0 {
		c.shutter.start(time.Duration(cfg.shutterMode)*time.Second, c.scheduledShutter)
	}

	metrics.SetConnected(true)
	c.logger.Info("Capture session opened",
		"chip_id", dev.ChipID(),
		"formats", formats.String(),
		"palette", cfg.palette.String(),
		"pipeline", cfg.pipeline.String(),
		"shutter_mode", cfg.shutterMode)
	c.setState(events.StateConnected)
}

// closeSession stops both workers and the sensor stream, then releases the
// sink and any open recording. Must hold lifecycleMu and not mu.
func (c *Camera) closeSession() {
	c.mu.Lock()
	dev := c.device
	if dev == nil {
		c.mu.Unlock()
		return
	}
	c.device = nil
	sink := c.sink
	c.sink = nil
	c.sessionID = ""
	searching := c.manager != nil
	c.mu.Unlock()

	c.shutter.halt()
	if err := dev.StopCaptureSession(); err != nil {
		c.logger.Warn("Failed to stop capture session", "error", err)
	}
	c.rec.stop()
	c.radio.finish()
	if sink != nil {
		c.closeSink(sink)
	}

	metrics.SetConnected(false)
	c.logger.Info("Capture session closed", "chip_id", dev.ChipID())
	if searching {
		c.setState(events.StateSearching)
	} else {
		c.setState(events.StateStopped)
	}
}

// restartSession reopens the session so format changes take effect. Must
// hold lifecycleMu.
func (c *Camera) restartSession() {
	c.mu.Lock()
	dev := c.device
	c.mu.Unlock()
	if dev == nil {
		return
	}
	c.closeSession()
	c.openSession(dev)
}

func (c *Camera) scheduledShutter() {
	if err := c.triggerShutter(true); err != nil && !errors.Is(err, ErrNotConnected) {
		c.logger.Warn("Scheduled shutter failed", "error", err)
	}
}

func sensorShutterMode(mode int) thermal.ShutterMode {
	if mode == 0 {
		return thermal.ShutterAuto
	}
	return thermal.ShutterManual
}
