package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/echotherm/internal/api/models"
	"github.com/smazurov/echotherm/internal/logging"
)

// logHub fans log entries out to stream subscribers, dropping entries for
// subscribers that fall behind.
type logHub struct {
	mu     sync.Mutex
	subs   map[chan logging.Entry]struct{}
	closed bool
}

func newLogHub() *logHub {
	return &logHub{subs: make(map[chan logging.Entry]struct{})}
}

func (h *logHub) subscribe() (<-chan logging.Entry, func()) {
	ch := make(chan logging.Entry, 100)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

func (h *logHub) publish(e logging.Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (h *logHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

func logEvent(e logging.Entry) models.LogEvent {
	return models.LogEvent{Time: e.Time, Level: e.Level, Module: e.Module, Message: e.Message, Attrs: e.Attrs}
}

func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent logs",
		Description: "Returns entries from the in-memory log history, oldest first.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, in *models.LogsRequest) (*models.LogsResponse, error) {
		resp := &models.LogsResponse{}
		resp.Body.Entries = []logging.Entry{}
		entries := logging.Recent().Tail(0)
		for _, e := range entries {
			if in.Module == "" || e.Module == in.Module {
				resp.Body.Entries = append(resp.Body.Entries, e)
			}
		}
		if in.Lines > 0 && len(resp.Body.Entries) > in.Lines {
			resp.Body.Entries = resp.Body.Entries[len(resp.Body.Entries)-in.Lines:]
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "set-log-level",
		Method:        http.MethodPut,
		Path:          "/api/logs/levels/{module}",
		Summary:       "Set module log level",
		Tags:          []string{"logs"},
		Security:      withAuth(),
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{400, 401},
	}, func(_ context.Context, in *models.LogLevelRequest) (*struct{}, error) {
		if !logging.SetModuleLevel(in.Module, in.Body.Level) {
			return nil, huma.Error400BadRequest("Unknown log level " + in.Body.Level)
		}
		s.logger.Info("Log level changed", "target_module", in.Module, "level", in.Body.Level)
		return nil, nil
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log stream",
		Description: "Sends the log history, then new entries as they are written.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": models.LogEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		entries, unsubscribe := s.logs.subscribe()
		defer unsubscribe()

		for _, e := range logging.Recent().Tail(0) {
			if err := send.Data(logEvent(e)); err != nil {
				return
			}
		}
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-entries:
				if !ok {
					return
				}
				if err := send.Data(logEvent(e)); err != nil {
					return
				}
			}
		}
	})
}
