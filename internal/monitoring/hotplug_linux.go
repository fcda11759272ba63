//go:build linux

package monitoring

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/echotherm/internal/events"
	"github.com/smazurov/echotherm/internal/logging"
	"github.com/smazurov/echotherm/pkg/linuxav/hotplug"
)

// LoopbackController is the part of the camera the monitor drives.
type LoopbackController interface {
	ReleaseLoopback(node string)
	RetryLoopback(node string)
}

// Source produces uevents until ctx is done and closes the channel on return.
type Source interface {
	Run(ctx context.Context, events chan<- hotplug.Event) error
	Close() error
}

// HotplugMonitor forwards uevents to the camera and the event bus.
type HotplugMonitor struct {
	source Source
	cam    LoopbackController
	bus    *events.Bus
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHotplugMonitor opens the uevent socket for video4linux and usb events.
func NewHotplugMonitor(cam LoopbackController, bus *events.Bus) (*HotplugMonitor, error) {
	mon, err := hotplug.NewMonitor(hotplug.SubsystemVideo4Linux, hotplug.SubsystemUSB)
	if err != nil {
		return nil, err
	}
	return NewWithSource(mon, cam, bus), nil
}

// NewWithSource builds a monitor over an arbitrary uevent source.
func NewWithSource(source Source, cam LoopbackController, bus *events.Bus) *HotplugMonitor {
	return &HotplugMonitor{
		source: source,
		cam:    cam,
		bus:    bus,
		logger: logging.GetLogger("monitoring"),
	}
}

// Start begins consuming events in the background.
func (m *HotplugMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	ch := make(chan hotplug.Event, 16)
	go func() {
		err := m.source.Run(ctx, ch)
		if err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error("Hotplug monitor stopped", "error", err)
		}
	}()
	go func() {
		defer close(m.done)
		for ev := range ch {
			m.handle(ev)
		}
	}()
	m.logger.Info("Hotplug monitoring started")
}

// Stop cancels the event loop and closes the source.
func (m *HotplugMonitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	<-done
	if err := m.source.Close(); err != nil {
		m.logger.Debug("Closing uevent source failed", "error", err)
	}
	m.logger.Info("Hotplug monitoring stopped")
}

func (m *HotplugMonitor) handle(ev hotplug.Event) {
	node := ev.Node()
	m.logger.Debug("Uevent", "action", ev.Action, "subsystem", ev.Subsystem, "node", node)

	if ev.Subsystem == hotplug.SubsystemVideo4Linux && node != "" {
		switch ev.Action {
		case hotplug.ActionRemove:
			m.cam.ReleaseLoopback(node)
		case hotplug.ActionAdd:
			m.cam.RetryLoopback(node)
		}
	}

	// Interface-level usb events repeat the device ones.
	if ev.Subsystem == hotplug.SubsystemUSB && ev.DevType != "usb_device" {
		return
	}
	if ev.Action != hotplug.ActionAdd && ev.Action != hotplug.ActionRemove {
		return
	}
	if m.bus != nil {
		m.bus.Publish(events.DeviceHotplugEvent{
			Action:    ev.Action,
			Subsystem: ev.Subsystem,
			Node:      node,
			USBID:     ev.USBID(),
			Timestamp: time.Now(),
		})
	}
}
