package camera

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/smazurov/echotherm/internal/events"
	"github.com/smazurov/echotherm/internal/imaging"
	"github.com/smazurov/echotherm/internal/loopback"
	"github.com/smazurov/echotherm/internal/metrics"
	"github.com/smazurov/echotherm/internal/thermal"
)

// handleFrame runs on the driver's delivery goroutine for every frame of
// the session opened on dev.
func (c *Camera) handleFrame(dev thermal.Device, f thermal.Frame) {
	start := time.Now()

	c.mu.Lock()
	if c.device != dev {
		c.mu.Unlock()
		return
	}
	c.frames++
	out, owned, pending := c.processVisual(f, start)
	c.mu.Unlock()

	for _, ev := range pending {
		c.publish(ev)
	}
	if out != nil {
		c.rec.offer(out, owned)
	}
	c.captureRadiometric(f)
	metrics.ObserveFrame(time.Since(start))
}

// processVisual zooms the visual image and writes it to the sink. It
// returns the written image and any events to publish once mu is released.
// Must hold mu.
func (c *Camera) processVisual(f thermal.Frame, now time.Time) (*thermal.Image, bool, []events.Event) {
	im, err := f.Image(c.cfg.visual)
	if err != nil {
		c.logger.Debug("Frame has no visual image", "format", c.cfg.visual.String(), "error", err)
		return nil, false, nil
	}

	var pending []events.Event
	if c.firstFrame {
		c.firstFrame = false
		c.zoom.Reset(im.Width, im.Height)
		c.logger.Info("First frame received", "width", im.Width, "height", im.Height, "format", im.Format.String())
		if ev := c.openSinkLocked(im); ev != nil {
			pending = append(pending, ev)
		}
	} else if c.reopenSink {
		c.reopenSink = false
		if ev := c.openSinkLocked(im); ev != nil {
			pending = append(pending, ev)
		}
	}

	c.zoom.Advance(now)
	metrics.SetZoom(c.zoom.Current())

	out, owned := im, false
	if !c.zoom.FullFrame() && imaging.Supported(im.Format) {
		resized, err := imaging.CropResize(im, c.zoom.ROI())
		if err != nil {
			c.logger.Warn("Zoom failed, writing full frame", "roi", c.zoom.ROI(), "error", err)
		} else {
			out, owned = resized, true
		}
	}

	switch {
	case c.sink != nil:
		if err := c.sink.Write(out.Data); err != nil {
			metrics.IncDropped(metrics.DropLoopback)
			if !errors.Is(err, loopback.ErrDropped) {
				c.logger.Debug("Loopback write failed", "device", c.sink.Path(), "error", err)
			}
		}
	case c.cfg.loopback != "":
		metrics.IncDropped(metrics.DropNoSink)
	}
	return out, owned, pending
}

// openSinkLocked opens the loopback device for frames like im. Must hold mu.
func (c *Camera) openSinkLocked(im *thermal.Image) events.Event {
	path := c.cfg.loopback
	if path == "" || c.sink != nil {
		return nil
	}
	sink, err := c.openSink(path, im.Width, im.Height, im.Format)
	if err != nil {
		c.sinkFailed = true
		c.logger.Error("Failed to open loopback device", "device", path, "format", im.Format.String(), "error", err)
		return events.LoopbackStateChangedEvent{Device: path, Error: err.Error(), Timestamp: time.Now()}
	}
	c.sink = sink
	c.sinkFailed = false
	c.logger.Info("Loopback device opened", "device", path, "width", sink.Width(), "height", sink.Height(), "format", sink.Format().String())
	return events.LoopbackStateChangedEvent{
		Device:    path,
		Open:      true,
		Width:     sink.Width(),
		Height:    sink.Height(),
		Format:    sink.Format().String(),
		Timestamp: time.Now(),
	}
}

func (c *Camera) closeSink(sink loopback.Sink) {
	if err := sink.Close(); err != nil {
		c.logger.Warn("Failed to close loopback device", "device", sink.Path(), "error", err)
	}
	c.publish(events.LoopbackStateChangedEvent{Device: sink.Path(), Timestamp: time.Now()})
}

// ReleaseLoopback closes the sink if it writes to node, for example after
// the device disappeared.
func (c *Camera) ReleaseLoopback(node string) {
	c.mu.Lock()
	sink := c.sink
	if sink == nil || sink.Path() != node {
		c.mu.Unlock()
		return
	}
	c.sink = nil
	c.sinkFailed = true
	c.mu.Unlock()

	c.logger.Warn("Loopback device released", "device", node)
	c.closeSink(sink)
}

// RetryLoopback makes the next frame try to open the sink again if node is
// the configured loopback device and it is not open.
func (c *Camera) RetryLoopback(node string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.loopback != node || c.sink != nil || c.device == nil {
		return
	}
	c.reopenSink = true
	c.logger.Info("Loopback device will be reopened", "device", node)
}

func (c *Camera) captureRadiometric(f thermal.Frame) {
	path, format, ok := c.radio.begin()
	if !ok {
		return
	}
	defer c.radio.finish()

	if path == "" {
		path = filepath.Join(c.home, timestampName("radiometric", ".csv", f.Timestamp()))
	}

	var msg string
	im, err := f.Image(format)
	if err == nil {
		err = writeRadiometricCSV(path, f, im)
	}
	if err != nil {
		msg = fmt.Sprintf("Failed to save radiometric screenshot %s: %v.", path, err)
		c.logger.Error("Radiometric capture failed", "path", path, "format", format.String(), "error", err)
	} else {
		msg = fmt.Sprintf("Radiometric screenshot saved to %s.", path)
		c.logger.Info("Radiometric screenshot saved", "path", path, "frame", f.Counter())
	}
	c.rec.completed(events.CaptureRadiometric, path, err == nil, msg)
}

// TakeScreenshot saves the next frame to path and blocks until it has been
// written. An empty path or bare filename is placed in the home directory.
func (c *Camera) TakeScreenshot(path string) string {
	if !c.Connected() {
		return "Failed to take screenshot: no capture session."
	}
	return c.rec.takeScreenshot(resolvePath(path, c.home, timestampName("screenshot", ".png", time.Now())))
}

// StartRecording starts writing frames to an mp4 file.
func (c *Camera) StartRecording(path string) string {
	if !c.Connected() {
		return "Failed to start recording: no capture session."
	}
	return c.rec.startRecording(resolvePath(path, c.home, timestampName("recording", ".mp4", time.Now())))
}

// StopRecording writes every queued frame and closes the recording.
func (c *Camera) StopRecording() string {
	return c.rec.stopRecording()
}

// TakeRadiometricScreenshot asks for the thermography data of the next
// frame to be written as CSV. Only one request may be outstanding; a
// request made while the previous one is being written is rejected.
func (c *Camera) TakeRadiometricScreenshot(path string) string {
	c.mu.Lock()
	connected := c.device != nil
	format := c.cfg.radiometric
	c.mu.Unlock()
	if !connected {
		return "Failed to take radiometric screenshot: no capture session."
	}
	if !format.Radiometric() {
		c.logger.Warn("Unsupported radiometric format, using default", "format", format.String(), "default", DefaultRadiometricFormat.String())
		format = DefaultRadiometricFormat
	}

	if path != "" {
		path = resolvePath(path, c.home, timestampName("radiometric", ".csv", time.Now()))
		if err := checkWritable(path); err != nil {
			return fmt.Sprintf("Failed to take radiometric screenshot: %v.", err)
		}
	} else if err := checkWritable(filepath.Join(c.home, "radiometric.csv")); err != nil {
		return fmt.Sprintf("Failed to take radiometric screenshot: %v.", err)
	}

	if state, ok := c.radio.request(path, format); !ok {
		if state == radioInProgress {
			return "Failed to take radiometric screenshot: a capture is already in progress."
		}
		return "Failed to take radiometric screenshot: a capture is already pending."
	}
	if path == "" {
		return fmt.Sprintf("Radiometric screenshot requested; it will be saved in %s.", c.home)
	}
	return fmt.Sprintf("Radiometric screenshot requested; it will be saved to %s.", path)
}
