package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func resetRegistry(t *testing.T) {
	t.Helper()
	reg = newRegistry()
	t.Cleanup(func() { reg = newRegistry() })
}

func TestModuleLevelOverride(t *testing.T) {
	resetRegistry(t)

	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"recorder": "debug",
			"protocol": "warn",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"recorder", true, true, true},
		{"protocol", false, false, true},
		{"camera", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			h := GetLogger(tt.module).Handler()
			ctx := context.Background()

			if got := h.Enabled(ctx, slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("Debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := h.Enabled(ctx, slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("Info enabled = %v, want %v", got, tt.wantInfo)
			}
			if got := h.Enabled(ctx, slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("Warn enabled = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	resetRegistry(t)

	before := GetLogger("shutter").Handler()
	if before.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("logger created before Initialize should default to info")
	}

	Initialize(Config{Level: "info", Modules: map[string]string{"shutter": "debug"}})

	// The level var is shared, so handlers handed out earlier follow the reload.
	if !before.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("earlier handler should see debug after Initialize")
	}
}

func TestSetModuleLevel(t *testing.T) {
	resetRegistry(t)
	Initialize(Config{Level: "info"})

	h := GetLogger("zoom").Handler()
	if !SetModuleLevel("zoom", "error") {
		t.Fatal("SetModuleLevel rejected a valid level")
	}
	if h.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("warn should be disabled after raising level to error")
	}
	if SetModuleLevel("zoom", "loud") {
		t.Error("SetModuleLevel accepted an invalid level")
	}
}

func TestHistoryCapturesModuleAndAttrs(t *testing.T) {
	resetRegistry(t)
	Initialize(Config{Level: "debug"})

	var got []Entry
	OnEntry(func(e Entry) { got = append(got, e) })
	defer OnEntry(nil)

	GetLogger("recorder").Warn("encoder exited", "path", "/tmp/a.mp4", "error", errors.New("boom"))

	tail := Recent().Tail(1)
	if len(tail) != 1 {
		t.Fatalf("history len = %d, want 1", len(tail))
	}
	e := tail[0]
	if e.Module != "recorder" || e.Level != "warn" || e.Message != "encoder exited" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.Attrs["path"] != "/tmp/a.mp4" || e.Attrs["error"] != "boom" {
		t.Errorf("unexpected attrs: %v", e.Attrs)
	}
	if len(got) != 1 {
		t.Errorf("listener saw %d entries, want 1", len(got))
	}
}

func TestHistoryGroups(t *testing.T) {
	h := NewHistory(4)
	logger := slog.New(NewHistoryHandler(h, slog.LevelInfo)).With("module", "api").WithGroup("req")
	logger.Info("done", "status", 200)

	e := h.Tail(0)[0]
	if e.Module != "api" {
		t.Errorf("Module = %q, want api", e.Module)
	}
	if e.Attrs["req.status"] != int64(200) {
		t.Errorf("Attrs = %v", e.Attrs)
	}
}

func TestHistoryRing(t *testing.T) {
	h := NewHistory(3)
	for i := range 5 {
		h.Add(Entry{Message: string(rune('a' + i))})
	}
	if h.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", h.Len())
	}

	tests := []struct {
		n    int
		want string
	}{
		{0, "cde"},
		{2, "de"},
		{10, "cde"},
	}
	for _, tt := range tests {
		var sb strings.Builder
		for _, e := range h.Tail(tt.n) {
			sb.WriteString(e.Message)
		}
		if sb.String() != tt.want {
			t.Errorf("Tail(%d) = %q, want %q", tt.n, sb.String(), tt.want)
		}
	}
}

func TestEntryString(t *testing.T) {
	e := Entry{
		Time:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Level:   "info",
		Module:  "camera",
		Message: "connected",
		Attrs:   map[string]any{"b": 2, "a": "x"},
	}
	want := "2024-05-01T12:00:00Z INFO  [camera] connected a=x b=2"
	if got := e.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestFanoutRespectsLevels(t *testing.T) {
	var buf bytes.Buffer
	debug := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	info := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	logger := slog.New(NewFanout(debug, info))
	logger.Debug("debug only")
	logger.Info("both")

	out := buf.String()
	if n := strings.Count(out, "debug only"); n != 1 {
		t.Errorf("debug written %d times, want 1", n)
	}
	if n := strings.Count(out, "both"); n != 2 {
		t.Errorf("info written %d times, want 2", n)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		ok    bool
	}{
		{"debug", slog.LevelDebug, true},
		{"DEBUG", slog.LevelDebug, true},
		{" info ", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"invalid", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseLevel(tt.input)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.input, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestJournalField(t *testing.T) {
	fields := map[string]string{}
	journalField(fields, "", slog.Group("frame", slog.Int("width", 160)))
	journalField(fields, "rec", slog.String("path", "/tmp/x"))
	if fields["FRAME_WIDTH"] != "160" {
		t.Errorf("FRAME_WIDTH = %q", fields["FRAME_WIDTH"])
	}
	if fields["REC_PATH"] != "/tmp/x" {
		t.Errorf("REC_PATH = %q", fields["REC_PATH"])
	}
}
