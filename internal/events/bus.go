package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates an event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish delivers ev to the subscribers of its concrete type.
// Usage: bus.Publish(CameraStateChangedEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case CameraStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case LoopbackStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case RecordingStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case CaptureCompletedEvent:
		event.Publish(b.dispatcher, e)
	case ShutterTriggeredEvent:
		event.Publish(b.dispatcher, e)
	case SettingChangedEvent:
		event.Publish(b.dispatcher, e)
	case DeviceHotplugEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the event type named by its parameter
// and returns an unsubscribe function. Unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e CaptureCompletedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(CameraStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LoopbackStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RecordingStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CaptureCompletedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ShutterTriggeredEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SettingChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DeviceHotplugEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// SubscribeToChannel forwards events of type T into ch, dropping them
// when ch is full.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

// SubscribeAll forwards every event type into ch and returns one function
// removing all of the subscriptions.
func SubscribeAll(bus *Bus, ch chan<- any) func() {
	unsubs := []func(){
		SubscribeToChannel[CameraStateChangedEvent](bus, ch),
		SubscribeToChannel[LoopbackStateChangedEvent](bus, ch),
		SubscribeToChannel[RecordingStateChangedEvent](bus, ch),
		SubscribeToChannel[CaptureCompletedEvent](bus, ch),
		SubscribeToChannel[ShutterTriggeredEvent](bus, ch),
		SubscribeToChannel[SettingChangedEvent](bus, ch),
		SubscribeToChannel[DeviceHotplugEvent](bus, ch),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Name returns the short name used as a subject suffix or SSE event name.
func Name(ev Event) string {
	switch ev.(type) {
	case CameraStateChangedEvent:
		return "camera_state"
	case LoopbackStateChangedEvent:
		return "loopback_state"
	case RecordingStateChangedEvent:
		return "recording_state"
	case CaptureCompletedEvent:
		return "capture"
	case ShutterTriggeredEvent:
		return "shutter"
	case SettingChangedEvent:
		return "setting"
	case DeviceHotplugEvent:
		return "hotplug"
	default:
		return "unknown"
	}
}
