//go:build !linux

package monitoring

import (
	"errors"

	"github.com/smazurov/echotherm/internal/events"
)

// LoopbackController is the part of the camera the monitor drives.
type LoopbackController interface {
	ReleaseLoopback(node string)
	RetryLoopback(node string)
}

// HotplugMonitor is unavailable off Linux.
type HotplugMonitor struct{}

// NewHotplugMonitor always fails off Linux.
func NewHotplugMonitor(LoopbackController, *events.Bus) (*HotplugMonitor, error) {
	return nil, errors.New("hotplug monitoring requires linux")
}

// Start does nothing.
func (m *HotplugMonitor) Start() {}

// Stop does nothing.
func (m *HotplugMonitor) Stop() {}
