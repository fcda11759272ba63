// Package metrics provides Prometheus metrics for the camera session.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "echotherm"

var (
	sessionConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "connected",
		Help:      "1 while a sensor capture session is open",
	})

	framesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "frames_total",
		Help:      "Frames delivered by the sensor",
	})

	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "frames_dropped_total",
		Help:      "Frames not written to the loopback device or recording queue",
	}, []string{"reason"})

	frameDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "frame_processing_seconds",
		Help:      "Time spent in the frame dispatcher per frame",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
	})

	zoomLevel = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "zoom",
		Help:      "Current digital zoom factor",
	})

	shutterTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "shutter_triggers_total",
		Help:      "Shutter triggers by source",
	}, []string{"source"})

	recordingActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "recorder",
		Name:      "active",
		Help:      "1 while a video recording is open",
	})

	recordingQueue = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "recorder",
		Name:      "queue_depth",
		Help:      "Frames waiting for the recording worker",
	})

	capturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "recorder",
		Name:      "captures_total",
		Help:      "Completed captures by kind and result",
	}, []string{"kind", "result"})

	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "protocol",
		Name:      "commands_total",
		Help:      "Commands executed by verb and transport",
	}, []string{"verb", "transport"})

	// Local copy of the gauges for the JSON status endpoint.
	snap   Snapshot
	snapMu sync.RWMutex
)

// Drop reasons.
const (
	DropLoopback  = "loopback"
	DropQueueFull = "queue_full"
	DropNoSink    = "no_sink"
)

// Snapshot holds the current values exported over the API.
type Snapshot struct {
	Connected     bool      `json:"connected"`
	Frames        uint64    `json:"frames"`
	Dropped       uint64    `json:"dropped"`
	Zoom          float64   `json:"zoom"`
	Recording     bool      `json:"recording"`
	QueueDepth    int       `json:"queue_depth"`
	ShutterCount  uint64    `json:"shutter_count"`
	LastFrameTime time.Time `json:"last_frame_time,omitzero"`
}

// SetConnected records whether a session is open.
func SetConnected(connected bool) {
	sessionConnected.Set(boolGauge(connected))
	update(func(s *Snapshot) { s.Connected = connected })
}

// ObserveFrame counts one delivered frame and its processing time.
func ObserveFrame(d time.Duration) {
	framesTotal.Inc()
	frameDuration.Observe(d.Seconds())
	update(func(s *Snapshot) {
		s.Frames++
		s.LastFrameTime = time.Now()
	})
}

// IncDropped counts a dropped frame.
func IncDropped(reason string) {
	framesDropped.WithLabelValues(reason).Inc()
	update(func(s *Snapshot) { s.Dropped++ })
}

// SetZoom records the zoom factor.
func SetZoom(z float64) {
	zoomLevel.Set(z)
	update(func(s *Snapshot) { s.Zoom = z })
}

// IncShutter counts a shutter trigger. source is "manual" or "scheduled".
func IncShutter(source string) {
	shutterTriggers.WithLabelValues(source).Inc()
	update(func(s *Snapshot) { s.ShutterCount++ })
}

// SetRecording records whether a video is being written.
func SetRecording(active bool) {
	recordingActive.Set(boolGauge(active))
	update(func(s *Snapshot) { s.Recording = active })
}

// SetQueueDepth records the recording queue length.
func SetQueueDepth(n int) {
	recordingQueue.Set(float64(n))
	update(func(s *Snapshot) { s.QueueDepth = n })
}

// IncCapture counts a finished capture.
func IncCapture(kind string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	capturesTotal.WithLabelValues(kind, result).Inc()
}

// IncCommand counts an executed protocol command.
func IncCommand(verb, transport string) {
	commandsTotal.WithLabelValues(verb, transport).Inc()
}

// Current returns a copy of the latest values.
func Current() Snapshot {
	snapMu.RLock()
	defer snapMu.RUnlock()
	return snap
}

func update(fn func(*Snapshot)) {
	snapMu.Lock()
	defer snapMu.Unlock()
	fn(&snap)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
