package simulator

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/smazurov/echotherm/internal/thermal"
)

const (
	ambientC = 21.5
	bodyC    = 36.4
)

// scene is an ambient gradient with a warm blob orbiting the center and a
// slowly drifting sensor offset that a shutter trigger clears.
type scene struct {
	w, h    int
	start   time.Time
	lastCal time.Time
}

func newScene(w, h int) *scene {
	now := time.Now()
	return &scene{w: w, h: h, start: now, lastCal: now}
}

func (s *scene) recalibrate() {
	s.lastCal = time.Now()
}

func (s *scene) temperatures(ts time.Time) []float64 {
	t := ts.Sub(s.start).Seconds()
	drift := math.Min(ts.Sub(s.lastCal).Seconds()/60, 1.5)

	cx := float64(s.w)/2 + float64(s.w)/4*math.Cos(t/3)
	cy := float64(s.h)/2 + float64(s.h)/4*math.Sin(t/3)
	sigma := float64(min(s.w, s.h)) / 8

	out := make([]float64, s.w*s.h)
	for y := 0; y < s.h; y++ {
		base := ambientC + 2*float64(y)/float64(s.h) + drift
		for x := 0; x < s.w; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			blob := (bodyC - ambientC) * math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma))
			out[y*s.w+x] = base + blob
		}
	}
	return out
}

func stats(temps []float64, w, h int) (lo, hi, spot float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range temps {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi, temps[(h/2)*w+w/2]
}

func renderImage(format thermal.Format, p thermal.Palette, w, h int, temps []float64) *thermal.Image {
	im := thermal.NewImage(format, w, h)
	lo, hi, _ := stats(temps, w, h)
	span := hi - lo
	if span <= 0 {
		span = 1
	}

	for i, c := range temps {
		level := uint8(math.Round(255 * (c - lo) / span))
		switch format {
		case thermal.FormatGrayscale:
			r, _, _ := colorize(p, level)
			im.Data[i] = r
		case thermal.FormatARGB8888:
			r, g, b := colorize(p, level)
			// little-endian 0xAARRGGBB
			im.Data[i*4+0] = b
			im.Data[i*4+1] = g
			im.Data[i*4+2] = r
			im.Data[i*4+3] = 0xff
		case thermal.FormatThermographyFloat:
			binary.LittleEndian.PutUint32(im.Data[i*4:], math.Float32bits(float32(c)))
		case thermal.FormatThermographyFixed:
			binary.LittleEndian.PutUint16(im.Data[i*2:], thermal.CelsiusToFixed(c))
		}
	}
	return im
}

// colorize approximates the sensor palettes closely enough to tell them
// apart on screen.
func colorize(p thermal.Palette, v uint8) (r, g, b uint8) {
	x := float64(v) / 255
	switch p {
	case thermal.PaletteBlackHot:
		return 255 - v, 255 - v, 255 - v
	case thermal.PaletteIron, thermal.PaletteTyrian:
		return ramp(x*1.5), ramp(x*2 - 0.8), ramp(x*4 - 3)
	case thermal.PaletteAmber:
		return v, ramp(x * 0.75), 0
	case thermal.PaletteGreen:
		return 0, v, 0
	case thermal.PaletteSpectra, thermal.PalettePrism, thermal.PaletteHi:
		return ramp(1.5 - math.Abs(4*x-3)), ramp(1.5 - math.Abs(4*x-2)), ramp(1.5 - math.Abs(4*x-1))
	}
	return v, v, v
}

func ramp(x float64) uint8 {
	return uint8(255 * math.Max(0, math.Min(1, x)))
}
