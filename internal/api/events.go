package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/echotherm/internal/events"
)

// sseEventTypes maps SSE event names to payload types, using the same
// names as the NATS subjects.
func sseEventTypes() map[string]any {
	types := make(map[string]any)
	for _, ev := range []events.Event{
		events.CameraStateChangedEvent{},
		events.LoopbackStateChangedEvent{},
		events.RecordingStateChangedEvent{},
		events.CaptureCompletedEvent{},
		events.ShutterTriggeredEvent{},
		events.SettingChangedEvent{},
		events.DeviceHotplugEvent{},
	} {
		types[events.Name(ev)] = ev
	}
	return types
}

func (s *Server) registerSSERoutes() {
	if s.options.EventBus == nil {
		return
	}
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Event stream",
		Description: "Camera state, loopback, recording, capture, shutter, setting and hotplug events. The current camera state is sent first.",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, sseEventTypes(), func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)
		unsubscribe := events.SubscribeAll(s.options.EventBus, eventCh)
		defer unsubscribe()

		st := s.options.Camera.Snapshot()
		if err := send.Data(events.CameraStateChangedEvent{
			State:     st.State,
			Previous:  st.State,
			ChipID:    st.ChipID,
			SessionID: st.SessionID,
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-eventCh:
				if err := send.Data(ev); err != nil {
					return
				}
			}
		}
	})
}
