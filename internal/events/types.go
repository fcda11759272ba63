package events

import "time"

// Event type identifiers for kelindar/event.
const (
	TypeCameraStateChanged uint32 = iota + 1
	TypeLoopbackStateChanged
	TypeRecordingStateChanged
	TypeCaptureCompleted
	TypeShutterTriggered
	TypeSettingChanged
	TypeDeviceHotplug
)

// Event is required by kelindar/event.
type Event interface {
	Type() uint32
}

// Camera session states.
const (
	StateStopped   = "stopped"
	StateSearching = "searching"
	StateConnected = "connected"
)

// CameraStateChangedEvent is published on every session state transition.
type CameraStateChangedEvent struct {
	State     string    `json:"state" enum:"stopped,searching,connected" doc:"New session state"`
	Previous  string    `json:"previous" doc:"State before the transition"`
	ChipID    string    `json:"chip_id,omitempty" doc:"Bound sensor chip ID"`
	SessionID string    `json:"session_id,omitempty" doc:"Identifier of the capture session, set while connected"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for CameraStateChangedEvent.
func (e CameraStateChangedEvent) Type() uint32 { return TypeCameraStateChanged }

// LoopbackStateChangedEvent reports the virtual output device opening,
// failing or closing.
type LoopbackStateChangedEvent struct {
	Device    string    `json:"device" example:"/dev/video0"`
	Open      bool      `json:"open"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
	Format    string    `json:"format,omitempty" example:"BA24"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for LoopbackStateChangedEvent.
func (e LoopbackStateChangedEvent) Type() uint32 { return TypeLoopbackStateChanged }

// RecordingStateChangedEvent is published when a video recording starts or stops.
type RecordingStateChangedEvent struct {
	Recording bool      `json:"recording"`
	Path      string    `json:"path"`
	Frames    int       `json:"frames,omitempty" doc:"Frames written, set when the recording stops"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for RecordingStateChangedEvent.
func (e RecordingStateChangedEvent) Type() uint32 { return TypeRecordingStateChanged }

// GetStreamID lets the LED manager treat the recorder as one stream.
func (e RecordingStateChangedEvent) GetStreamID() string { return "recording" }

// IsEnabled reports whether the recording is running.
func (e RecordingStateChangedEvent) IsEnabled() bool { return e.Recording }

// Capture kinds.
const (
	CaptureScreenshot  = "screenshot"
	CaptureRadiometric = "radiometric"
	CaptureRecording   = "recording"
)

// CaptureCompletedEvent reports the outcome of a screenshot, radiometric
// snapshot or finished recording.
type CaptureCompletedEvent struct {
	ID        string    `json:"id" doc:"Unique capture identifier"`
	Kind      string    `json:"kind" enum:"screenshot,radiometric,recording"`
	Path      string    `json:"path"`
	OK        bool      `json:"ok"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for CaptureCompletedEvent.
func (e CaptureCompletedEvent) Type() uint32 { return TypeCaptureCompleted }

// ShutterTriggeredEvent is published after a successful flat-field correction.
type ShutterTriggeredEvent struct {
	Scheduled bool      `json:"scheduled" doc:"True when triggered by the periodic scheduler"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for ShutterTriggeredEvent.
func (e ShutterTriggeredEvent) Type() uint32 { return TypeShutterTriggered }

// SettingChangedEvent is published when a camera setting takes a new value.
type SettingChangedEvent struct {
	Setting   string    `json:"setting" example:"palette"`
	Value     string    `json:"value" example:"IRON"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for SettingChangedEvent.
func (e SettingChangedEvent) Type() uint32 { return TypeSettingChanged }

// DeviceHotplugEvent mirrors a kernel uevent the daemon cares about.
type DeviceHotplugEvent struct {
	Action    string    `json:"action" example:"remove"`
	Subsystem string    `json:"subsystem" example:"video4linux"`
	Node      string    `json:"node,omitempty" example:"/dev/video0"`
	USBID     string    `json:"usb_id,omitempty" example:"289d:0010"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for DeviceHotplugEvent.
func (e DeviceHotplugEvent) Type() uint32 { return TypeDeviceHotplug }
