package camera

import (
	"image"
	"math"
	"time"
)

// DefaultMaxZoom is used until SetMaxZoom is called and whenever it is
// given a non-finite value.
const DefaultMaxZoom = 16.0

// Zoom computes the centered region of interest for digital zoom. The
// zero value is not usable; call NewZoom.
type Zoom struct {
	current float64
	rate    float64
	max     float64
	width   int
	height  int
	roi     image.Rectangle
	last    time.Time
}

// NewZoom returns an idle zoom at 1x with DefaultMaxZoom.
func NewZoom() Zoom {
	return Zoom{current: 1, max: DefaultMaxZoom}
}

// Reset sizes the zoom for a new frame geometry and returns to 1x. Rate and
// maximum are kept. The next Advance only records its timestamp.
func (z *Zoom) Reset(width, height int) {
	z.width, z.height = width, height
	z.current = 1
	z.roi = image.Rect(0, 0, width, height)
	z.last = time.Time{}
}

func (z *Zoom) Current() float64     { return z.current }
func (z *Zoom) Rate() float64        { return z.rate }
func (z *Zoom) Max() float64         { return z.max }
func (z *Zoom) ROI() image.Rectangle { return z.roi }

// FullFrame reports whether the ROI is the whole frame.
func (z *Zoom) FullFrame() bool {
	return z.current == 1
}

// SetZoom clamps v to [1, max] and recomputes the ROI. Non-finite input is
// treated as 1.
func (z *Zoom) SetZoom(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 1
	}
	v = math.Max(1, math.Min(v, z.max))

	if v <= 1 {
		z.full()
		return
	}
	if v >= z.max {
		z.maxed()
		return
	}
	if z.width == 0 || z.height == 0 {
		z.current = v
		return
	}

	w, h := z.size(v)
	switch {
	case w >= z.width && h >= z.height:
		z.full()
	case w < 1 || h < 1:
		z.maxed()
	default:
		z.current = v
		z.roi = z.centered(w, h)
	}
}

// SetRate sets the continuous zoom speed. Positive zooms in, negative
// zooms out, non-finite stops.
func (z *Zoom) SetRate(r float64) {
	if math.IsNaN(r) || math.IsInf(r, 0) {
		r = 0
	}
	z.rate = r
}

// SetMax sets the zoom ceiling, clamping the current zoom down to it.
func (z *Zoom) SetMax(m float64) {
	switch {
	case math.IsNaN(m) || math.IsInf(m, 0):
		m = DefaultMaxZoom
	case m < 1:
		m = 1
	}
	z.max = m
	if z.current > m {
		z.SetZoom(m)
	}
}

// Advance applies the continuous zoom for the time elapsed since the
// previous call.
func (z *Zoom) Advance(now time.Time) {
	if z.last.IsZero() {
		z.last = now
		return
	}
	elapsed := now.Sub(z.last)
	z.last = now
	if z.rate == 0 || elapsed <= 0 {
		return
	}

	delta := (1 + math.Abs(z.rate)) * float64(elapsed.Milliseconds()) / 1000
	if z.rate > 0 {
		z.SetZoom(z.current + delta)
		if z.current >= z.max {
			z.rate = 0
		}
		return
	}
	z.SetZoom(z.current - delta)
	if z.current <= 1 {
		z.rate = 0
	}
}

func (z *Zoom) size(v float64) (w, h int) {
	return int(math.Floor(float64(z.width) / v)), int(math.Floor(float64(z.height) / v))
}

func (z *Zoom) centered(w, h int) image.Rectangle {
	x := (z.width - w) / 2
	y := (z.height - h) / 2
	return image.Rect(x, y, x+w, y+h)
}

func (z *Zoom) full() {
	z.current = 1
	z.roi = image.Rect(0, 0, z.width, z.height)
}

func (z *Zoom) maxed() {
	z.current = z.max
	if z.max <= 1 {
		z.full()
		return
	}
	if z.width == 0 || z.height == 0 {
		return
	}
	w, h := z.size(z.max)
	z.roi = z.centered(max(w, 1), max(h, 1))
}
