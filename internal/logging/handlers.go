package logging

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

const syslogIdentifier = "echotherm"

// attrState is the WithAttrs/WithGroup bookkeeping shared by the handlers
// in this package.
type attrState struct {
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

func (s attrState) enabled(level slog.Level) bool {
	return level >= s.level.Level()
}

func (s attrState) withAttrs(attrs []slog.Attr) attrState {
	s.attrs = append(slices.Clip(s.attrs), attrs...)
	return s
}

func (s attrState) withGroup(name string) attrState {
	if name != "" {
		s.groups = append(slices.Clip(s.groups), name)
	}
	return s
}

// each visits handler and record attributes in order.
func (s attrState) each(r slog.Record, fn func(slog.Attr)) {
	for _, a := range s.attrs {
		fn(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		fn(a)
		return true
	})
}

// JournalHandler writes records to the systemd journal with attributes as
// upper-case journal fields.
type JournalHandler struct {
	attrState
}

// NewJournalHandler creates a journal handler filtered at level.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{attrState{level: level}}
}

// JournalAvailable reports whether journald's socket is reachable.
func JournalAvailable() bool {
	return journal.Enabled()
}

func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.enabled(level)
}

func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := map[string]string{"SYSLOG_IDENTIFIER": syslogIdentifier}
	prefix := strings.Join(h.groups, "_")
	h.each(r, func(a slog.Attr) { journalField(fields, prefix, a) })
	return journal.Send(r.Message, priority(r.Level), fields)
}

func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &JournalHandler{h.withAttrs(attrs)}
}

func (h *JournalHandler) WithGroup(name string) slog.Handler {
	return &JournalHandler{h.withGroup(name)}
}

func priority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

func journalField(fields map[string]string, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" {
		key = prefix + "_" + key
	}
	key = strings.ToUpper(key)

	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			journalField(fields, key, ga)
		}
		return
	}
	fields[key] = attrString(a.Value)
}

func attrString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

// HistoryHandler stores records in a History and forwards each one to the
// listener registered with OnEntry.
type HistoryHandler struct {
	attrState
	history *History
}

// NewHistoryHandler creates a handler appending to history.
func NewHistoryHandler(history *History, level slog.Leveler) *HistoryHandler {
	return &HistoryHandler{attrState: attrState{level: level}, history: history}
}

func (h *HistoryHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.enabled(level)
}

func (h *HistoryHandler) Handle(_ context.Context, r slog.Record) error {
	e := Entry{
		Time:    r.Time,
		Level:   levelName(r.Level),
		Module:  "main",
		Message: r.Message,
		Attrs:   make(map[string]any),
	}
	prefix := strings.Join(h.groups, ".")
	h.each(r, func(a slog.Attr) {
		if a.Key == "module" {
			e.Module = a.Value.String()
			return
		}
		historyAttr(e.Attrs, prefix, a)
	})
	if len(e.Attrs) == 0 {
		e.Attrs = nil
	}

	h.history.Add(e)
	if fn := currentListener(); fn != nil {
		fn(e)
	}
	return nil
}

func (h *HistoryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &HistoryHandler{attrState: h.withAttrs(attrs), history: h.history}
}

func (h *HistoryHandler) WithGroup(name string) slog.Handler {
	return &HistoryHandler{attrState: h.withGroup(name), history: h.history}
}

func historyAttr(out map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	switch a.Value.Kind() {
	case slog.KindGroup:
		for _, ga := range a.Value.Group() {
			historyAttr(out, key, ga)
		}
	case slog.KindTime, slog.KindDuration, slog.KindAny:
		out[key] = attrString(a.Value)
	default:
		out[key] = a.Value.Any()
	}
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}

// Fanout sends each record to every handler that accepts its level.
type Fanout struct {
	handlers []slog.Handler
}

// NewFanout combines handlers.
func NewFanout(handlers ...slog.Handler) *Fanout {
	return &Fanout{handlers: handlers}
}

func (f *Fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *Fanout) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f *Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		out[i] = h.WithAttrs(attrs)
	}
	return &Fanout{handlers: out}
}

func (f *Fanout) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		out[i] = h.WithGroup(name)
	}
	return &Fanout{handlers: out}
}
