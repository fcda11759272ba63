package camera

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/echotherm/internal/config"
	"github.com/smazurov/echotherm/internal/events"
	"github.com/smazurov/echotherm/internal/loopback"
	"github.com/smazurov/echotherm/internal/thermal"
	"github.com/smazurov/echotherm/internal/thermal/simulator"
)

type managerDriver struct{ m thermal.Manager }

func (d managerDriver) NewManager() (thermal.Manager, error) { return d.m, nil }

type failingDriver struct{}

func (failingDriver) NewManager() (thermal.Manager, error) { return nil, errors.New("no usb access") }

type fakeSink struct {
	path   string
	w, h   int
	format thermal.Format

	mu     sync.Mutex
	writes [][]byte
	closed bool
}

func (s *fakeSink) Path() string           { return s.path }
func (s *fakeSink) Width() int             { return s.w }
func (s *fakeSink) Height() int            { return s.h }
func (s *fakeSink) Format() thermal.Format { return s.format }

func (s *fakeSink) Write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, bytes.Clone(frame))
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) frames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

type sinkLog struct {
	mu    sync.Mutex
	sinks []*fakeSink
	fail  error
}

func (l *sinkLog) open(path string, w, h int, format thermal.Format) (loopback.Sink, error) {
	if _, err := loopback.FrameSize(w, h, format); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail != nil {
		return nil, l.fail
	}
	s := &fakeSink{path: path, w: w, h: h, format: format}
	l.sinks = append(l.sinks, s)
	return s, nil
}

func (l *sinkLog) last() *fakeSink {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.sinks) == 0 {
		return nil
	}
	return l.sinks[len(l.sinks)-1]
}

type testRig struct {
	cam     *Camera
	mgr     *simulator.Manager
	sinks   *sinkLog
	writers *writerLog
	home    string
}

func newRig(t *testing.T, simOpts simulator.Options, mutate func(*Options)) *testRig {
	t.Helper()
	simOpts.ConnectDelay = -1
	simOpts.FrameRate = 0.001 // frames are emitted by the test
	if simOpts.Width == 0 {
		simOpts.Width, simOpts.Height = 32, 24
	}

	rig := &testRig{
		mgr:     simulator.NewManager(simOpts),
		sinks:   &sinkLog{},
		writers: &writerLog{},
		home:    t.TempDir(),
	}
	opts := Options{
		Driver:         managerDriver{rig.mgr},
		LoopbackDevice: "/dev/video42",
		OpenSink:       rig.sinks.open,
		OpenVideo:      rig.writers.open,
		HomeDir:        rig.home,
		Logger:         testLogger(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	rig.cam = New(opts)
	if err := rig.cam.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = rig.cam.Stop() })
	return rig
}

func (r *testRig) connect(t *testing.T) *simulator.Device {
	t.Helper()
	r.mgr.Plug()
	if got := r.cam.State(); got != events.StateConnected {
		t.Fatalf("state after plug = %q", got)
	}
	return r.mgr.Device()
}

func TestNewPipelineDefault(t *testing.T) {
	lite, invalid := int(thermal.PipelineLite), 9
	tests := []struct {
		name string
		mode *int
		want string
	}{
		{"unset", nil, "PROCESSED"},
		{"explicit lite", &lite, "LITE"},
		{"invalid", &invalid, "PROCESSED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := New(Options{PipelineMode: tt.mode, HomeDir: t.TempDir(), Logger: testLogger()})
			snap := cam.Snapshot()
			if snap.PipelineMode != tt.want {
				t.Errorf("PipelineMode = %q, want %q", snap.PipelineMode, tt.want)
			}
			if tt.want == "PROCESSED" && (snap.Sharpen || snap.FlatScene || snap.Gradient) {
				t.Errorf("filters reported enabled in processed mode: %+v", snap)
			}
		})
	}
}

func TestStatusWaitingWithoutCamera(t *testing.T) {
	rig := newRig(t, simulator.Options{}, nil)

	for range 3 {
		if got := rig.cam.StatusLine(); !strings.Contains(got, "Waiting for camera") {
			t.Fatalf("StatusLine() = %q", got)
		}
	}
	if got := rig.cam.State(); got != events.StateSearching {
		t.Errorf("State() = %q, want searching", got)
	}
}

func TestStartFailsWithoutManager(t *testing.T) {
	cam := New(Options{Driver: failingDriver{}, Logger: testLogger()})
	if err := cam.Start(); err == nil {
		t.Fatal("Start should fail when the manager cannot be created")
	}
	if got := cam.State(); got != events.StateStopped {
		t.Errorf("State() = %q", got)
	}
}

func TestStartFailsWhenHandlerRejected(t *testing.T) {
	mgr := simulator.NewManager(simulator.Options{ConnectDelay: -1})
	_ = mgr.Close()
	cam := New(Options{Driver: managerDriver{mgr}, Logger: testLogger()})
	if err := cam.Start(); !errors.Is(err, thermal.ErrClosed) {
		t.Fatalf("Start() = %v, want ErrClosed", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	bus := events.New()
	states := make(chan any, 16)
	defer events.SubscribeToChannel[events.CameraStateChangedEvent](bus, states)()

	rig := newRig(t, simulator.Options{}, func(o *Options) { o.Bus = bus })
	dev := rig.connect(t)
	snap := rig.cam.Snapshot()
	if snap.ChipID != "SIM000000001" || snap.SessionID == "" {
		t.Errorf("snapshot = %+v", snap)
	}

	dev.Emit()
	sink := rig.sinks.last()
	if sink == nil || sink.w != 32 || sink.h != 24 || sink.format != thermal.FormatARGB8888 {
		t.Fatalf("sink = %+v", sink)
	}
	if n := len(sink.frames()); n != 1 {
		t.Fatalf("sink got %d frames", n)
	}
	if len(sink.frames()[0]) != 32*24*4 {
		t.Errorf("frame size %d", len(sink.frames()[0]))
	}

	rig.mgr.Unplug()
	if got := rig.cam.State(); got != events.StateSearching {
		t.Errorf("state after unplug = %q", got)
	}
	if !sink.closed {
		t.Error("sink not closed on disconnect")
	}
	if got := rig.cam.Snapshot().SessionID; got != "" {
		t.Errorf("session id survived disconnect: %q", got)
	}

	// Frames from the old device are ignored.
	dev.Emit()
	if n := len(sink.frames()); n != 1 {
		t.Errorf("stale frame written, sink has %d frames", n)
	}

	if err := rig.cam.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := rig.cam.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if got := rig.cam.State(); got != events.StateStopped {
		t.Errorf("state after stop = %q", got)
	}

	want := []string{events.StateSearching, events.StateConnected, events.StateSearching, events.StateStopped}
	for _, w := range want {
		select {
		case ev := <-states:
			if got := ev.(events.CameraStateChangedEvent).State; got != w {
				t.Errorf("state event %q, want %q", got, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("missing %s event", w)
		}
	}
}

func TestUnknownChipIgnored(t *testing.T) {
	rig := newRig(t, simulator.Options{}, nil)
	first := rig.connect(t)

	rig.mgr.PlugChip("OTHER0000001")
	if got := rig.cam.Snapshot().ChipID; got != "SIM000000001" {
		t.Errorf("bound chip = %q", got)
	}
	first.Emit()
	if rig.sinks.last() == nil {
		t.Error("bound device no longer serviced")
	}
}

func TestReadyToPairConnects(t *testing.T) {
	rig := newRig(t, simulator.Options{RequirePairing: true}, nil)
	rig.connect(t)
}

func TestSinkOpenFailureDropsFrames(t *testing.T) {
	rig := newRig(t, simulator.Options{}, nil)
	rig.sinks.fail = errors.New("permission denied")
	dev := rig.connect(t)

	dev.Emit()
	dev.Emit()
	if rig.sinks.last() != nil {
		t.Fatal("sink should not be open")
	}
	snap := rig.cam.Snapshot()
	if len(snap.Warnings) == 0 || snap.Frames != 2 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestLoopbackDisabled(t *testing.T) {
	rig := newRig(t, simulator.Options{}, func(o *Options) { o.LoopbackDevice = "" })
	dev := rig.connect(t)
	dev.Emit()
	if rig.sinks.last() != nil {
		t.Error("sink opened with loopback disabled")
	}
	if !strings.Contains(rig.cam.StatusLine(), "loopback disabled") {
		t.Errorf("StatusLine() = %q", rig.cam.StatusLine())
	}
}

func TestReleaseAndRetryLoopback(t *testing.T) {
	rig := newRig(t, simulator.Options{}, nil)
	dev := rig.connect(t)
	dev.Emit()
	first := rig.sinks.last()

	rig.cam.ReleaseLoopback("/dev/video42")
	if !first.closed {
		t.Fatal("sink not closed on release")
	}
	dev.Emit()
	if rig.sinks.last() != first {
		t.Fatal("sink reopened before retry")
	}

	rig.cam.RetryLoopback("/dev/video42")
	dev.Emit()
	if rig.sinks.last() == first {
		t.Fatal("sink not reopened after retry")
	}
}

func TestZoomedFramesKeepFullSize(t *testing.T) {
	rig := newRig(t, simulator.Options{}, nil)
	dev := rig.connect(t)
	dev.Emit()

	rig.cam.SetZoom(2)
	if got := rig.cam.ZoomString(); got != "2.00" {
		t.Fatalf("ZoomString() = %q", got)
	}
	dev.Emit()

	frames := rig.sinks.last().frames()
	if len(frames[1]) != 32*24*4 {
		t.Errorf("zoomed frame is %d bytes", len(frames[1]))
	}
	if bytes.Equal(frames[0], frames[1]) {
		t.Error("zoomed frame identical to full frame")
	}
}

func TestZoomScenarios(t *testing.T) {
	rig := newRig(t, simulator.Options{Width: 320, Height: 240}, nil)
	dev := rig.connect(t)
	dev.Emit()

	rig.cam.SetZoom(0.1)
	if got := rig.cam.ZoomString(); got != "1.00" {
		t.Errorf("SetZoom(0.1) -> %s", got)
	}
	if got := rig.cam.ROI(); got.Dx() != 320 || got.Dy() != 240 {
		t.Errorf("ROI = %v, want full frame", got)
	}

	rig.cam.SetZoom(10)
	rig.cam.SetMaxZoom(4)
	if got := rig.cam.ZoomString(); got != "4.00" {
		t.Errorf("after SetMaxZoom(4) zoom = %s", got)
	}
	ref := NewZoom()
	ref.Reset(320, 240)
	ref.SetZoom(4)
	if got := rig.cam.ROI(); got != ref.ROI() {
		t.Errorf("ROI = %v, want %v", got, ref.ROI())
	}
}

func TestRecordingThroughCamera(t *testing.T) {
	rig := newRig(t, simulator.Options{}, nil)

	if got := rig.cam.StartRecording("clip.mp4"); !strings.Contains(got, "no capture session") {
		t.Errorf("StartRecording while disconnected = %q", got)
	}

	dev := rig.connect(t)
	if got := rig.cam.StartRecording("clip.avi"); !strings.Contains(got, "must be .mp4") {
		t.Errorf("StartRecording(clip.avi) = %q", got)
	}
	path := filepath.Join(rig.home, "clip.mp4")
	if got := rig.cam.StartRecording("clip.mp4"); got != "Recording to "+path+"." {
		t.Fatalf("StartRecording = %q", got)
	}
	if got := rig.cam.StartRecording("other.mp4"); !strings.Contains(got, "already recording") {
		t.Errorf("second StartRecording = %q", got)
	}

	for range 5 {
		dev.Emit()
	}
	got := rig.cam.StopRecording()
	if !strings.Contains(got, "(5 frames") {
		t.Errorf("StopRecording = %q", got)
	}
	if w := rig.writers.last(); w.Frames() != 5 || w.Path() != path {
		t.Errorf("writer %s has %d frames", w.Path(), w.Frames())
	}
}

func TestDisconnectClosesRecording(t *testing.T) {
	rig := newRig(t, simulator.Options{}, nil)
	dev := rig.connect(t)
	rig.cam.StartRecording("clip.mp4")
	dev.Emit()
	rig.mgr.Unplug()

	w := rig.writers.last()
	if !w.Closed() || w.Frames() != 1 {
		t.Errorf("writer closed=%v frames=%d", w.Closed(), w.Frames())
	}
}

func TestScreenshotThroughCamera(t *testing.T) {
	rig := newRig(t, simulator.Options{}, nil)
	if got := rig.cam.TakeScreenshot(""); !strings.Contains(got, "no capture session") {
		t.Errorf("TakeScreenshot while disconnected = %q", got)
	}
	dev := rig.connect(t)

	done := make(chan string, 1)
	go func() { done <- rig.cam.TakeScreenshot("shot.bmp") }()

	var msg string
	deadline := time.After(2 * time.Second)
loop:
	for {
		select {
		case msg = <-done:
			break loop
		case <-deadline:
			t.Fatal("screenshot did not complete")
		case <-time.After(5 * time.Millisecond):
			dev.Emit()
		}
	}

	path := filepath.Join(rig.home, "shot.bmp")
	if msg != "Screenshot saved to "+path+"." {
		t.Errorf("TakeScreenshot = %q", msg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Error(err)
	}
}

func TestTwoRadiometricRequestsProduceOneFile(t *testing.T) {
	rig := newRig(t, simulator.Options{}, nil)
	dev := rig.connect(t)

	if got := rig.cam.TakeRadiometricScreenshot(""); !strings.Contains(got, "requested") {
		t.Fatalf("first request = %q", got)
	}
	if got := rig.cam.TakeRadiometricScreenshot("second.csv"); !strings.Contains(got, "already pending") {
		t.Errorf("second request = %q", got)
	}

	dev.Emit()
	dev.Emit()

	files, err := filepath.Glob(filepath.Join(rig.home, "*.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || !strings.HasPrefix(filepath.Base(files[0]), "radiometric_") {
		t.Fatalf("csv files = %v", files)
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"[identification]", "[header]", "chipid,SIM000000001", "[matrix]", "rows,24", "cols,32", "units,celsius"} {
		if !bytes.Contains(data, []byte(want)) {
			t.Errorf("csv missing %q", want)
		}
	}

	// The machine is idle again.
	if got := rig.cam.TakeRadiometricScreenshot("again.csv"); !strings.Contains(got, "requested") {
		t.Errorf("request after capture = %q", got)
	}
}

func TestDirectoryArgumentsGetDefaultNames(t *testing.T) {
	rig := newRig(t, simulator.Options{}, nil)
	dev := rig.connect(t)
	dir := filepath.Join(rig.home, "captures")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	if got := rig.cam.TakeRadiometricScreenshot(dir + "/"); !strings.Contains(got, "requested") {
		t.Fatalf("TakeRadiometricScreenshot = %q", got)
	}
	dev.Emit()
	dev.Emit()
	if files, _ := filepath.Glob(filepath.Join(dir, "radiometric_*.csv")); len(files) != 1 {
		t.Errorf("csv files in %s = %v", dir, files)
	}

	if got := rig.cam.StartRecording(dir); !strings.Contains(got, dir) {
		t.Fatalf("StartRecording = %q", got)
	}
	dev.Emit()
	rig.cam.StopRecording()
	w := rig.writers.last()
	if filepath.Dir(w.Path()) != dir || !strings.HasPrefix(filepath.Base(w.Path()), "recording_") {
		t.Errorf("recording path = %q", w.Path())
	}
}

func TestRadiometricFixedFormat(t *testing.T) {
	rig := newRig(t, simulator.Options{}, func(o *Options) {
		o.RadiometricFormat = thermal.FormatThermographyFixed
	})
	dev := rig.connect(t)
	rig.cam.TakeRadiometricScreenshot("fixed.csv")
	dev.Emit()

	data, err := os.ReadFile(filepath.Join(rig.home, "fixed.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte("format,THERMOGRAPHY_FIXED_10_6")) {
		t.Error("csv does not name the fixed-point format")
	}
}

func TestSettingsAppliedOnConnect(t *testing.T) {
	rig := newRig(t, simulator.Options{}, nil)
	if err := rig.cam.SetPalette(thermal.PaletteIron); err != nil {
		t.Fatal(err)
	}
	if err := rig.cam.SetPalette(thermal.Palette(99)); !errors.Is(err, ErrInvalidSetting) {
		t.Errorf("invalid palette error = %v", err)
	}

	dev := rig.connect(t)
	if got := dev.Palette(); got != thermal.PaletteIron {
		t.Errorf("device palette = %s", got)
	}

	if err := rig.cam.SetPalette(thermal.PaletteAmber); err != nil {
		t.Fatal(err)
	}
	if got := dev.Palette(); got != thermal.PaletteAmber {
		t.Errorf("device palette after set = %s", got)
	}
}

func TestFiltersReportedDisabledWhenProcessed(t *testing.T) {
	rig := newRig(t, simulator.Options{}, nil)
	dev := rig.connect(t)

	if err := rig.cam.SetSharpen(1); err != nil {
		t.Fatal(err)
	}
	if rig.cam.Snapshot().Sharpen {
		t.Error("sharpen reported enabled in processed mode")
	}

	if err := rig.cam.SetPipelineMode(thermal.PipelineLegacy); err != nil {
		t.Fatal(err)
	}
	if !rig.cam.Snapshot().Sharpen {
		t.Error("sharpen not reported after leaving processed mode")
	}
	if got, _ := dev.FilterState(thermal.FilterSharpen); got != thermal.FilterEnabled {
		t.Errorf("device sharpen = %s", got)
	}
}

func TestTriggerShutter(t *testing.T) {
	rig := newRig(t, simulator.Options{}, nil)
	if err := rig.cam.TriggerShutter(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("TriggerShutter while disconnected = %v", err)
	}
	dev := rig.connect(t)
	if err := rig.cam.TriggerShutter(); err != nil {
		t.Fatal(err)
	}
	if got := dev.ShutterTriggers(); got != 1 {
		t.Errorf("triggers = %d", got)
	}
}

func TestShutterModeRestartsWorker(t *testing.T) {
	rig := newRig(t, simulator.Options{}, nil)
	rig.connect(t)

	if err := rig.cam.SetShutterMode(30); err != nil {
		t.Fatal(err)
	}
	if !rig.cam.shutter.running() {
		t.Fatal("scheduler not started for positive mode")
	}
	if err := rig.cam.SetShutterMode(-1); err != nil {
		t.Fatal(err)
	}
	if rig.cam.shutter.running() {
		t.Error("scheduler still running for manual mode")
	}
}

func TestSetVisualFormatRestartsSession(t *testing.T) {
	rig := newRig(t, simulator.Options{}, nil)
	dev := rig.connect(t)
	dev.Emit()
	before := rig.cam.Snapshot().SessionID

	if err := rig.cam.SetVisualFormat(thermal.FormatGrayscale); err != nil {
		t.Fatal(err)
	}
	if err := rig.cam.SetVisualFormat(thermal.FormatThermographyFloat); !errors.Is(err, ErrInvalidSetting) {
		t.Errorf("radiometric format accepted as visual: %v", err)
	}
	after := rig.cam.Snapshot()
	if after.SessionID == before || after.State != events.StateConnected {
		t.Fatalf("session not restarted: %+v", after)
	}

	dev.Emit()
	if s := rig.sinks.last(); s.format != thermal.FormatGrayscale || len(s.frames()[0]) != 32*24 {
		t.Errorf("sink = %+v", s)
	}
}

func TestApplySettings(t *testing.T) {
	rig := newRig(t, simulator.Options{}, nil)
	palette, bad := int(thermal.PaletteSpectra), 42
	maxZoom := 8.0

	err := rig.cam.ApplySettings(config.CameraSettings{
		Palette:      &palette,
		PipelineMode: &bad,
		MaxZoom:      &maxZoom,
	})
	if !errors.Is(err, ErrInvalidSetting) {
		t.Errorf("ApplySettings error = %v", err)
	}
	snap := rig.cam.Snapshot()
	if snap.Palette != "SPECTRA" || snap.MaxZoom != 8 || snap.PipelineMode != "PROCESSED" {
		t.Errorf("snapshot = %+v", snap)
	}
}
