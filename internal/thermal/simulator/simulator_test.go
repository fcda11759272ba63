package simulator

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/echotherm/internal/thermal"
)

type recorder struct {
	mu     sync.Mutex
	events []thermal.EventKind
	ch     chan thermal.EventKind
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan thermal.EventKind, 8)}
}

func (r *recorder) handle(_ thermal.Device, ev thermal.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev.Kind)
	r.mu.Unlock()
	r.ch <- ev.Kind
}

func (r *recorder) wait(t *testing.T) thermal.EventKind {
	t.Helper()
	select {
	case k := <-r.ch:
		return k
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	return 0
}

func TestRegisteredDriver(t *testing.T) {
	if _, err := thermal.Lookup(DriverName); err != nil {
		t.Fatalf("simulator not registered: %v", err)
	}
}

func TestManagerConnectsAfterDelay(t *testing.T) {
	m := NewManager(Options{Width: 8, Height: 6, ConnectDelay: 10 * time.Millisecond})
	defer m.Close()

	rec := newRecorder()
	if err := m.RegisterEventHandler(rec.handle); err != nil {
		t.Fatal(err)
	}
	if k := rec.wait(t); k != thermal.EventConnect {
		t.Fatalf("first event = %s", k)
	}
	if m.Device() == nil || m.Device().ChipID() != "SIM000000001" {
		t.Fatal("device not plugged")
	}

	m.Unplug()
	if k := rec.wait(t); k != thermal.EventDisconnect {
		t.Fatalf("second event = %s", k)
	}
	if m.Device() != nil {
		t.Error("device should be gone")
	}
}

func TestManagerPairing(t *testing.T) {
	m := NewManager(Options{Width: 4, Height: 4, ConnectDelay: -1, RequirePairing: true})
	defer m.Close()
	rec := newRecorder()
	_ = m.RegisterEventHandler(rec.handle)

	m.Plug()
	if k := rec.wait(t); k != thermal.EventReadyToPair {
		t.Fatalf("event = %s, want READY_TO_PAIR", k)
	}
	dev := m.Device()
	if err := dev.StartCaptureSession(thermal.FormatGrayscale); err == nil {
		t.Fatal("unpaired sensor started capture")
	}
	if err := dev.StorePairing(); err != nil {
		t.Fatal(err)
	}
	if err := dev.StartCaptureSession(thermal.FormatGrayscale); err != nil {
		t.Fatal(err)
	}
	_ = dev.StopCaptureSession()

	m.Unplug()
	rec.wait(t)
	m.Plug()
	if k := rec.wait(t); k != thermal.EventConnect {
		t.Errorf("paired sensor reported %s", k)
	}
}

func TestManagerCloseSilencesEvents(t *testing.T) {
	m := NewManager(Options{ConnectDelay: -1})
	rec := newRecorder()
	_ = m.RegisterEventHandler(rec.handle)
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	m.Plug()
	m.Fail(errors.New("boom"))
	select {
	case k := <-rec.ch:
		t.Errorf("event %s after Close", k)
	case <-time.After(50 * time.Millisecond):
	}
	if err := m.RegisterEventHandler(rec.handle); !errors.Is(err, thermal.ErrClosed) {
		t.Errorf("RegisterEventHandler after Close = %v", err)
	}
}

func TestCaptureSessionDeliversFrames(t *testing.T) {
	m := NewManager(Options{Width: 16, Height: 12, FrameRate: 200, ConnectDelay: -1})
	defer m.Close()
	m.Plug()
	dev := m.Device()

	frames := make(chan thermal.Frame, 4)
	_ = dev.RegisterFrameHandler(func(f thermal.Frame) {
		select {
		case frames <- f:
		default:
		}
	})

	if err := dev.StartCaptureSession(thermal.FormatYUY2); !errors.Is(err, thermal.ErrUnsupportedFormat) {
		t.Errorf("YUY2 session = %v", err)
	}
	mask := thermal.FormatARGB8888 | thermal.FormatThermographyFixed
	if err := dev.StartCaptureSession(mask); err != nil {
		t.Fatal(err)
	}
	if err := dev.StartCaptureSession(mask); err == nil {
		t.Error("second StartCaptureSession should fail")
	}

	var f thermal.Frame
	select {
	case f = <-frames:
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered")
	}
	if err := dev.StopCaptureSession(); err != nil {
		t.Fatal(err)
	}
	if dev.Running() {
		t.Error("still running after stop")
	}

	argb, err := f.Image(thermal.FormatARGB8888)
	if err != nil {
		t.Fatal(err)
	}
	if err := argb.Validate(); err != nil {
		t.Fatal(err)
	}
	for i := 3; i < len(argb.Data); i += 4 {
		if argb.Data[i] != 0xff {
			t.Fatal("alpha should be opaque")
		}
	}

	fixed, err := f.Image(thermal.FormatThermographyFixed)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < fixed.Width*fixed.Height; i++ {
		if c := fixed.Celsius(i); c < ambientC-1 || c > bodyC+5 {
			t.Fatalf("pixel %d = %.2f C out of scene range", i, c)
		}
	}
	if _, err := f.Image(thermal.FormatGrayscale); err == nil {
		t.Error("format outside the session mask should fail")
	}
	if f.Counter() == 0 || f.Timestamp().IsZero() || len(f.Header()) == 0 {
		t.Error("frame metadata missing")
	}
}

func TestDeviceSetters(t *testing.T) {
	m := NewManager(Options{Width: 4, Height: 4, ConnectDelay: -1})
	defer m.Close()
	m.Plug()
	dev := m.Device()

	if err := dev.SetColorPalette(thermal.PaletteIron); err != nil || dev.Palette() != thermal.PaletteIron {
		t.Errorf("SetColorPalette: %v", err)
	}
	if err := dev.SetColorPalette(thermal.Palette(40)); err == nil {
		t.Error("invalid palette accepted")
	}
	if err := dev.SetPipelineMode(thermal.PipelineMode(7)); err == nil {
		t.Error("invalid pipeline accepted")
	}

	_ = dev.SetFilterState(thermal.FilterSharpen, thermal.FilterEnabled)
	if s, _ := dev.FilterState(thermal.FilterSharpen); s != thermal.FilterDisabled {
		t.Error("processed pipeline must report filters disabled")
	}
	_ = dev.SetPipelineMode(thermal.PipelineLegacy)
	if s, _ := dev.FilterState(thermal.FilterSharpen); s != thermal.FilterEnabled {
		t.Error("legacy pipeline should report the stored filter")
	}

	if err := dev.TriggerShutter(); !errors.Is(err, thermal.ErrNoSession) {
		t.Errorf("TriggerShutter without session = %v", err)
	}
	_ = dev.StartCaptureSession(thermal.FormatGrayscale)
	defer dev.StopCaptureSession()
	if err := dev.TriggerShutter(); err != nil || dev.ShutterTriggers() != 1 {
		t.Errorf("TriggerShutter = %v, count %d", err, dev.ShutterTriggers())
	}
}

func TestColorizePalettes(t *testing.T) {
	if r, g, b := colorize(thermal.PaletteWhiteHot, 200); r != 200 || g != 200 || b != 200 {
		t.Error("white hot should be gray")
	}
	if r, _, _ := colorize(thermal.PaletteBlackHot, 200); r != 55 {
		t.Error("black hot should invert")
	}
	if _, g, b := colorize(thermal.PaletteGreen, 10); g != 10 || b != 0 {
		t.Error("green palette")
	}
	if ramp(math.Inf(1)) != 255 || ramp(-1) != 0 {
		t.Error("ramp should clamp")
	}
}
