package api

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/echotherm/internal/api/models"
	"github.com/smazurov/echotherm/internal/camera"
	"github.com/smazurov/echotherm/internal/events"
	"github.com/smazurov/echotherm/internal/logging"
	"github.com/smazurov/echotherm/internal/protocol"
	"github.com/smazurov/echotherm/internal/thermal"
)

// fakeCamera records calls and serves a fixed status.
type fakeCamera struct {
	mu      sync.Mutex
	status  camera.Status
	calls   []string
	shutter error
}

func newFakeCamera() *fakeCamera {
	return &fakeCamera{status: camera.Status{
		State:   events.StateConnected,
		ChipID:  "chip-1",
		Palette: "WHITE_HOT",
		Zoom:    1,
		MaxZoom: 4,
	}}
}

func (f *fakeCamera) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeCamera) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCamera) Snapshot() camera.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeCamera) TriggerShutter() error {
	f.record("shutter")
	return f.shutter
}

func (f *fakeCamera) SetPalette(p thermal.Palette) error {
	if p > thermal.PaletteUser4 {
		return fmt.Errorf("%w: palette %d", camera.ErrInvalidSetting, p)
	}
	f.record("palette " + p.String())
	f.mu.Lock()
	f.status.Palette = p.String()
	f.mu.Unlock()
	return nil
}

func (f *fakeCamera) SetShutterMode(mode int) error {
	f.record(fmt.Sprintf("shutter_mode %d", mode))
	return nil
}

func (f *fakeCamera) SetPipelineMode(mode thermal.PipelineMode) error {
	f.record("pipeline " + mode.String())
	return nil
}

func (f *fakeCamera) SetSharpen(v int) error {
	f.record(fmt.Sprintf("sharpen %d", v))
	return nil
}

func (f *fakeCamera) SetFlatScene(v int) error {
	if v != 0 && v != 1 {
		return camera.ErrInvalidSetting
	}
	f.record(fmt.Sprintf("flat_scene %d", v))
	return nil
}

func (f *fakeCamera) SetGradient(v int) error {
	f.record(fmt.Sprintf("gradient %d", v))
	return nil
}

func (f *fakeCamera) SetZoom(z float64) {
	f.record(fmt.Sprintf("zoom %.1f", z))
	f.mu.Lock()
	f.status.Zoom = min(z, f.status.MaxZoom)
	f.mu.Unlock()
}

func (f *fakeCamera) SetZoomRate(r float64) {
	f.record(fmt.Sprintf("zoom_rate %.1f", r))
}

func (f *fakeCamera) SetMaxZoom(m float64) {
	f.record(fmt.Sprintf("max_zoom %.1f", m))
	f.mu.Lock()
	f.status.MaxZoom = m
	f.mu.Unlock()
}

func (f *fakeCamera) ZoomString() string {
	return fmt.Sprintf("%.2f", f.Snapshot().Zoom)
}

func (f *fakeCamera) StatusLine() string {
	return "Connected to chip-1."
}

func (f *fakeCamera) StartRecording(path string) string {
	f.record("record " + path)
	return "Recording to " + path + "."
}

func (f *fakeCamera) StopRecording() string {
	f.record("stop")
	return "Recording stopped."
}

func (f *fakeCamera) TakeScreenshot(path string) string {
	f.record("screenshot " + path)
	return "Screenshot saved to " + path + "."
}

func (f *fakeCamera) TakeRadiometricScreenshot(path string) string {
	f.record("radiometric " + path)
	return "Radiometric screenshot requested."
}

func (f *fakeCamera) SetRadiometricFormat(thermal.Format) error { return nil }
func (f *fakeCamera) SetVisualFormat(thermal.Format) error      { return nil }
func (f *fakeCamera) SetLoopbackDevice(string) error            { return nil }

func newTestServer(t *testing.T, opts *Options) (*Server, *fakeCamera) {
	t.Helper()
	cam := newFakeCamera()
	if opts == nil {
		opts = &Options{}
	}
	opts.Camera = cam
	return NewServer(opts), cam
}

func do(t *testing.T, s *Server, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthAndStatus(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health = %d: %s", rec.Code, rec.Body)
	}
	health := decode[models.HealthData](t, rec)
	if health.Status != "ok" || health.Camera != events.StateConnected {
		t.Errorf("health = %+v", health)
	}

	rec = do(t, s, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var status struct {
		State   string `json:"state"`
		ChipID  string `json:"chip_id"`
		Palette string `json:"palette"`
		Line    string `json:"line"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.State != events.StateConnected || status.ChipID != "chip-1" || status.Line != "Connected to chip-1." {
		t.Errorf("status = %+v", status)
	}
}

func TestSetZoomAppliesLimitFirst(t *testing.T) {
	s, cam := newTestServer(t, nil)

	rec := do(t, s, http.MethodPut, "/api/zoom", `{"zoom": 6, "max_zoom": 8, "zoom_rate": 0.5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("set zoom = %d: %s", rec.Code, rec.Body)
	}
	zoom := decode[models.ZoomData](t, rec)
	if zoom.Zoom != 6 || zoom.MaxZoom != 8 {
		t.Errorf("zoom = %+v", zoom)
	}

	want := []string{"max_zoom 8.0", "zoom_rate 0.5", "zoom 6.0"}
	if got := cam.Calls(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestUpdateSettings(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantCalls []string
	}{
		{
			name:      "palette and filters",
			body:      `{"palette": 3, "sharpen": true, "gradient": false}`,
			wantCode:  http.StatusOK,
			wantCalls: []string{"palette PRISM", "sharpen 1", "gradient 0"},
		},
		{
			name:     "palette out of range",
			body:     `{"palette": 20}`,
			wantCode: http.StatusUnprocessableEntity,
		},
		{
			name:      "empty body",
			body:      `{}`,
			wantCode:  http.StatusOK,
			wantCalls: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, cam := newTestServer(t, nil)
			rec := do(t, s, http.MethodPatch, "/api/settings", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body)
			}
			if strings.Join(cam.Calls(), ",") != strings.Join(tt.wantCalls, ",") {
				t.Errorf("calls = %v, want %v", cam.Calls(), tt.wantCalls)
			}
		})
	}
}

func TestShutterNotConnected(t *testing.T) {
	s, cam := newTestServer(t, nil)
	cam.shutter = camera.ErrNotConnected

	rec := do(t, s, http.MethodPost, "/api/shutter", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("code = %d, want 409: %s", rec.Code, rec.Body)
	}

	cam.shutter = nil
	rec = do(t, s, http.MethodPost, "/api/shutter", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("code = %d, want 204: %s", rec.Code, rec.Body)
	}
}

func TestCaptureRoutes(t *testing.T) {
	s, cam := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/recording", `{"path": "/tmp/a.mp4"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("start recording = %d: %s", rec.Code, rec.Body)
	}
	if msg := decode[models.MessageData](t, rec); msg.Message != "Recording to /tmp/a.mp4." {
		t.Errorf("message = %q", msg.Message)
	}

	rec = do(t, s, http.MethodDelete, "/api/recording", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stop recording = %d: %s", rec.Code, rec.Body)
	}

	rec = do(t, s, http.MethodPost, "/api/radiometric", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("radiometric = %d: %s", rec.Code, rec.Body)
	}

	want := []string{"record /tmp/a.mp4", "stop", "radiometric "}
	if strings.Join(cam.Calls(), ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", cam.Calls(), want)
	}
}

func TestRunCommands(t *testing.T) {
	cam := newFakeCamera()
	s := NewServer(&Options{Camera: cam, Runner: protocol.NewExecutor(cam)})

	rec := do(t, s, http.MethodPost, "/api/commands", `{"batch": "ZOOM 2|GETZOOM|BOGUS"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("commands = %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Results []models.CommandResult `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("results = %+v", resp.Results)
	}
	if resp.Results[0].Command != "ZOOM 2" || resp.Results[0].Error != "" {
		t.Errorf("result 0 = %+v", resp.Results[0])
	}
	if resp.Results[1].Output != "2.00" {
		t.Errorf("GETZOOM output = %q", resp.Results[1].Output)
	}
	if resp.Results[2].Error == "" {
		t.Error("unknown command should report an error")
	}
}

func TestCommandsRouteNeedsRunner(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodPost, "/api/commands", `{"batch": "SHUTTER"}`)
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("code = %d, want route missing", rec.Code)
	}
}

func TestBasicAuth(t *testing.T) {
	s, _ := newTestServer(t, &Options{AuthUsername: "admin", AuthPassword: "secret"})
	good := "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:secret"))
	bad := "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:wrong"))

	tests := []struct {
		name   string
		path   string
		header []string
		want   int
	}{
		{"health is public", "/api/health", nil, http.StatusOK},
		{"missing credentials", "/api/status", nil, http.StatusUnauthorized},
		{"wrong password", "/api/status", []string{"Authorization", bad}, http.StatusUnauthorized},
		{"bearer rejected", "/api/status", []string{"Authorization", "Bearer x"}, http.StatusUnauthorized},
		{"valid header", "/api/status", []string{"Authorization", good}, http.StatusOK},
		{"valid query", "/api/status?auth=" + base64.StdEncoding.EncodeToString([]byte("admin:secret")), nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, tt.path, "", tt.header...)
			if rec.Code != tt.want {
				t.Errorf("code = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

func TestEventStream(t *testing.T) {
	bus := events.New()
	s, _ := newTestServer(t, &Options{EventBus: bus})

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/events")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("content type = %s", resp.Header.Get("Content-Type"))
	}

	names := make(chan string, 10)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if name, ok := strings.CutPrefix(scanner.Text(), "event:"); ok {
				names <- strings.TrimSpace(name)
			}
		}
	}()

	expect := func(want string) {
		t.Helper()
		select {
		case got := <-names:
			if got != want {
				t.Errorf("event = %q, want %q", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for %s", want)
		}
	}

	expect("camera_state")
	// the stream subscribes before sending the initial state
	bus.Publish(events.ShutterTriggeredEvent{Scheduled: true, Timestamp: time.Now()})
	expect("shutter")
}

func logEntry(msg string) logging.Entry {
	return logging.Entry{Time: time.Now(), Level: "INFO", Module: "test", Message: msg}
}

func TestLogHub(t *testing.T) {
	hub := newLogHub()
	ch, unsubscribe := hub.subscribe()

	hub.publish(logEntry("first"))
	select {
	case e := <-ch:
		if e.Message != "first" {
			t.Errorf("message = %q", e.Message)
		}
	default:
		t.Fatal("entry not delivered")
	}

	unsubscribe()
	unsubscribe()
	hub.publish(logEntry("dropped"))

	ch2, _ := hub.subscribe()
	hub.close()
	if _, ok := <-ch2; ok {
		t.Error("channel should be closed")
	}
	ch3, _ := hub.subscribe()
	if _, ok := <-ch3; ok {
		t.Error("subscribe after close should return a closed channel")
	}
}
