package led

import (
	"log/slog"
	"sync"

	"github.com/smazurov/echotherm/internal/events"
)

// Roles names the LEDs the manager drives. An empty role is left alone.
type Roles struct {
	Status    string
	Recording string
}

// DefaultRoles matches the NanoPC-T6 layout.
var DefaultRoles = Roles{Status: "system", Recording: "user"}

// Manager mirrors the camera session and recorder state on the board LEDs:
// the status LED blinks while searching and is solid while connected, the
// recording LED beats while a recording runs.
type Manager struct {
	controller Controller
	eventBus   *events.Bus
	roles      Roles
	logger     *slog.Logger

	mu          sync.Mutex
	unsubscribe []func()
	cameraState string
	recording   bool
}

// NewManager creates a manager; Start subscribes it to the bus.
func NewManager(controller Controller, eventBus *events.Bus, roles Roles, logger *slog.Logger) *Manager {
	return &Manager{
		controller:  controller,
		eventBus:    eventBus,
		roles:       roles,
		logger:      logger,
		cameraState: events.StateStopped,
	}
}

// Start subscribes to camera and recording events and sets the initial
// LED state.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsubscribe != nil {
		return
	}
	m.unsubscribe = []func(){
		m.eventBus.Subscribe(m.handleCameraState),
		m.eventBus.Subscribe(m.handleRecording),
	}
	m.applyStatus()
	m.applyRecording()
	m.logger.Info("LED manager started", "status_led", m.roles.Status, "recording_led", m.roles.Recording)
}

// Stop unsubscribes and switches the managed LEDs off.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsubscribe == nil {
		return
	}
	for _, u := range m.unsubscribe {
		u()
	}
	m.unsubscribe = nil
	m.cameraState = events.StateStopped
	m.recording = false
	m.applyStatus()
	m.applyRecording()
	m.logger.Info("LED manager stopped")
}

func (m *Manager) handleCameraState(e events.CameraStateChangedEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsubscribe == nil || e.State == m.cameraState {
		return
	}
	m.cameraState = e.State
	m.logger.Debug("Camera state changed", "state", e.State)
	m.applyStatus()
}

func (m *Manager) handleRecording(e events.RecordingStateChangedEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsubscribe == nil || e.IsEnabled() == m.recording {
		return
	}
	m.recording = e.IsEnabled()
	m.logger.Debug("Recording state changed", "stream_id", e.GetStreamID(), "enabled", m.recording)
	m.applyRecording()
}

func (m *Manager) applyStatus() {
	switch m.cameraState {
	case events.StateConnected:
		m.set(m.roles.Status, true, PatternSolid)
	case events.StateSearching:
		m.set(m.roles.Status, true, PatternBlink)
	default:
		m.set(m.roles.Status, false, "")
	}
}

func (m *Manager) applyRecording() {
	if m.recording {
		m.set(m.roles.Recording, true, PatternHeartbeat)
		return
	}
	m.set(m.roles.Recording, false, "")
}

func (m *Manager) set(led string, enabled bool, pattern string) {
	if led == "" {
		return
	}
	if err := m.controller.Set(led, enabled, pattern); err != nil {
		m.logger.Warn("Failed to set LED", "led", led, "pattern", pattern, "error", err)
	}
}

// GetController returns the underlying controller for direct API access.
func (m *Manager) GetController() Controller {
	return m.controller
}
