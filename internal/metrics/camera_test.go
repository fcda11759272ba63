package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSnapshotTracksGauges(t *testing.T) {
	SetConnected(true)
	SetZoom(2.5)
	SetRecording(true)
	SetQueueDepth(7)

	s := Current()
	if !s.Connected || s.Zoom != 2.5 || !s.Recording || s.QueueDepth != 7 {
		t.Errorf("snapshot = %+v", s)
	}
	if got := testutil.ToFloat64(zoomLevel); got != 2.5 {
		t.Errorf("zoom gauge = %v", got)
	}
	if got := testutil.ToFloat64(recordingActive); got != 1 {
		t.Errorf("recording gauge = %v", got)
	}

	SetConnected(false)
	SetRecording(false)
	if Current().Connected || testutil.ToFloat64(sessionConnected) != 0 {
		t.Error("connected should be cleared")
	}
}

func TestCounters(t *testing.T) {
	before := Current()
	beforeDrops := testutil.ToFloat64(framesDropped.WithLabelValues(DropQueueFull))

	ObserveFrame(3 * time.Millisecond)
	IncDropped(DropQueueFull)
	IncShutter("manual")

	after := Current()
	if after.Frames != before.Frames+1 || after.Dropped != before.Dropped+1 || after.ShutterCount != before.ShutterCount+1 {
		t.Errorf("before %+v after %+v", before, after)
	}
	if after.LastFrameTime.IsZero() {
		t.Error("last frame time not set")
	}
	if got := testutil.ToFloat64(framesDropped.WithLabelValues(DropQueueFull)); got != beforeDrops+1 {
		t.Errorf("dropped counter = %v", got)
	}

	IncCapture("screenshot", false)
	if got := testutil.ToFloat64(capturesTotal.WithLabelValues("screenshot", "error")); got < 1 {
		t.Errorf("captures counter = %v", got)
	}
	IncCommand("ZOOM", "tcp")
	if got := testutil.ToFloat64(commandsTotal.WithLabelValues("ZOOM", "tcp")); got < 1 {
		t.Errorf("commands counter = %v", got)
	}
}

func TestHandlerExposesNamespace(t *testing.T) {
	SetZoom(1)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "echotherm_camera_zoom") {
		t.Error("zoom metric missing from exposition")
	}
}
