// Package thermal defines the boundary between the camera session and a
// thermal sensor SDK.
//
// A Driver creates a Manager, which enumerates sensors and reports
// connect, disconnect, pairing and error events for each Device through a
// registered handler. A Device delivers Frames to its frame handler once a
// capture session has been started with a mask of Formats. Handlers run on
// goroutines owned by the driver.
//
// Drivers register themselves by name:
//
//	import _ "github.com/smazurov/echotherm/internal/thermal/simulator"
//
//	mgr, err := thermal.Open("simulator")
package thermal

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrUnknownDriver     = errors.New("unknown thermal driver")
	ErrUnsupportedFormat = errors.New("unsupported frame format")
	ErrNoSession         = errors.New("no capture session")
	ErrClosed            = errors.New("manager closed")
)

// EventKind is the kind of a manager event.
type EventKind int

const (
	EventConnect EventKind = iota
	EventDisconnect
	EventError
	EventReadyToPair
)

func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "CONNECT"
	case EventDisconnect:
		return "DISCONNECT"
	case EventError:
		return "ERROR"
	case EventReadyToPair:
		return "READY_TO_PAIR"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is delivered to the manager's event handler. Err is set for
// EventError.
type Event struct {
	Kind EventKind
	Err  error
}

// HeaderField is one entry of a frame header, in sensor order.
type HeaderField struct {
	Key   string
	Value string
}

// Frame is one delivery from the sensor holding every format requested
// when the capture session started. A Frame is only valid for the
// duration of the frame handler call.
type Frame interface {
	Image(format Format) (*Image, error)
	Header() []HeaderField
	Counter() uint32
	Timestamp() time.Time
}

// Device is a connected sensor.
type Device interface {
	ChipID() string
	RegisterFrameHandler(fn func(Frame)) error
	StartCaptureSession(formats Format) error
	StopCaptureSession() error
	SetPipelineMode(mode PipelineMode) error
	SetColorPalette(p Palette) error
	SetShutterMode(mode ShutterMode) error
	SetFilterState(f Filter, s FilterState) error
	FilterState(f Filter) (FilterState, error)
	TriggerShutter() error
	// StorePairing pairs the sensor with the host.
	StorePairing() error
}

// Manager enumerates sensors.
type Manager interface {
	RegisterEventHandler(fn func(Device, Event)) error
	Close() error
}

// Driver creates managers.
type Driver interface {
	NewManager() (Manager, error)
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes a driver available by name. It panics on duplicates.
func Register(name string, d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if d == nil {
		panic("thermal: Register driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("thermal: Register called twice for driver " + name)
	}
	drivers[name] = d
}

// Drivers returns the sorted names of registered drivers.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the driver registered under name.
func Lookup(name string) (Driver, error) {
	driversMu.RLock()
	d, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
	}
	return d, nil
}

// Open creates a manager from the named driver.
func Open(name string) (Manager, error) {
	d, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return d.NewManager()
}
