// Package simulator is a thermal driver that renders a synthetic scene. It
// stands in for a USB sensor on development hosts and in tests.
package simulator

import (
	"sync"
	"time"

	"github.com/smazurov/echotherm/internal/logging"
	"github.com/smazurov/echotherm/internal/thermal"
)

// DriverName is the registry name of the simulator.
const DriverName = "simulator"

// Options configures simulated sensors.
type Options struct {
	Width     int
	Height    int
	FrameRate float64
	ChipID    string
	// ConnectDelay is how long after handler registration the sensor is
	// plugged in. Negative leaves it unplugged until Plug is called.
	ConnectDelay time.Duration
	// RequirePairing reports READY_TO_PAIR instead of CONNECT until the
	// sensor has been paired once.
	RequirePairing bool
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = 320
	}
	if o.Height <= 0 {
		o.Height = 240
	}
	if o.FrameRate <= 0 {
		o.FrameRate = 9
	}
	if o.ChipID == "" {
		o.ChipID = "SIM000000001"
	}
	return o
}

// Driver creates simulator managers.
type Driver struct {
	opts Options
}

// New returns a driver with the given options.
func New(opts Options) *Driver {
	return &Driver{opts: opts.withDefaults()}
}

func init() {
	thermal.Register(DriverName, New(Options{ConnectDelay: 500 * time.Millisecond}))
}

// NewManager implements thermal.Driver.
func (d *Driver) NewManager() (thermal.Manager, error) {
	return NewManager(d.opts), nil
}

// Manager simulates hotplug of a single sensor.
type Manager struct {
	opts   Options
	logger logging.Logger

	mu      sync.Mutex
	handler func(thermal.Device, thermal.Event)
	device  *Device
	timer   *time.Timer
	closed  bool
	paired  bool
	events  sync.Mutex // serializes handler calls
}

// NewManager returns an unplugged manager.
func NewManager(opts Options) *Manager {
	return &Manager{
		opts:   opts.withDefaults(),
		logger: logging.GetLogger("simulator"),
	}
}

// RegisterEventHandler implements thermal.Manager and schedules the
// first plug-in.
func (m *Manager) RegisterEventHandler(fn func(thermal.Device, thermal.Event)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return thermal.ErrClosed
	}
	m.handler = fn
	if m.opts.ConnectDelay >= 0 {
		m.timer = time.AfterFunc(m.opts.ConnectDelay, m.Plug)
	}
	return nil
}

// Device returns the current sensor, or nil when unplugged.
func (m *Manager) Device() *Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.device
}

// Plug connects the sensor.
func (m *Manager) Plug() {
	m.PlugChip(m.opts.ChipID)
}

// PlugChip connects a sensor with a specific chip ID.
func (m *Manager) PlugChip(chipID string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	dev := newDevice(chipID, m.opts, m)
	m.device = dev
	kind := thermal.EventConnect
	if m.opts.RequirePairing && !m.paired {
		kind = thermal.EventReadyToPair
	}
	m.mu.Unlock()

	m.logger.Info("Simulated sensor plugged", "chip_id", chipID, "event", kind.String())
	m.emit(dev, thermal.Event{Kind: kind})
}

// Unplug disconnects the current sensor.
func (m *Manager) Unplug() {
	m.mu.Lock()
	dev := m.device
	m.device = nil
	m.mu.Unlock()
	if dev == nil {
		return
	}
	m.logger.Info("Simulated sensor unplugged", "chip_id", dev.ChipID())
	m.emit(dev, thermal.Event{Kind: thermal.EventDisconnect})
	_ = dev.StopCaptureSession()
}

// Fail reports an error event for the current sensor.
func (m *Manager) Fail(err error) {
	m.mu.Lock()
	dev := m.device
	m.mu.Unlock()
	if dev == nil {
		return
	}
	m.emit(dev, thermal.Event{Kind: thermal.EventError, Err: err})
}

func (m *Manager) emit(dev *Device, ev thermal.Event) {
	m.mu.Lock()
	fn := m.handler
	closed := m.closed
	m.mu.Unlock()
	if fn == nil || closed {
		return
	}
	m.events.Lock()
	defer m.events.Unlock()
	fn(dev, ev)
}

func (m *Manager) markPaired() {
	m.mu.Lock()
	m.paired = true
	m.mu.Unlock()
}

// Close implements thermal.Manager. No events are delivered afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
	}
	dev := m.device
	m.device = nil
	m.mu.Unlock()

	if dev != nil {
		_ = dev.StopCaptureSession()
	}
	return nil
}

func (m *Manager) isPaired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paired
}
