package thermal

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Image is a single-format view of a frame. Data is tightly packed,
// row-major, little-endian for multi-byte samples.
type Image struct {
	Format Format
	Width  int
	Height int
	Data   []byte
}

// NewImage allocates a zeroed image.
func NewImage(format Format, width, height int) *Image {
	return &Image{
		Format: format,
		Width:  width,
		Height: height,
		Data:   make([]byte, width*height*format.BytesPerPixel()),
	}
}

// Stride returns the number of bytes per row.
func (im *Image) Stride() int {
	return im.Width * im.Format.BytesPerPixel()
}

// Validate checks that Data matches the declared geometry.
func (im *Image) Validate() error {
	bpp := im.Format.BytesPerPixel()
	if bpp == 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, im.Format)
	}
	if im.Width <= 0 || im.Height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", im.Width, im.Height)
	}
	if want := im.Width * im.Height * bpp; len(im.Data) != want {
		return fmt.Errorf("image data is %d bytes, want %d", len(im.Data), want)
	}
	return nil
}

// Clone returns a deep copy.
func (im *Image) Clone() *Image {
	out := *im
	out.Data = append([]byte(nil), im.Data...)
	return &out
}

// Celsius returns the temperature of pixel i for radiometric formats.
// Fixed-point samples are 10.6 with a -40 offset.
func (im *Image) Celsius(i int) float64 {
	switch im.Format {
	case FormatThermographyFloat:
		bits := binary.LittleEndian.Uint32(im.Data[i*4:])
		return float64(math.Float32frombits(bits))
	case FormatThermographyFixed:
		return FixedToCelsius(binary.LittleEndian.Uint16(im.Data[i*2:]))
	}
	return math.NaN()
}

// FixedToCelsius converts a 10.6 fixed-point sample.
func FixedToCelsius(raw uint16) float64 {
	return float64(raw)/64 - 40
}

// CelsiusToFixed is the inverse of FixedToCelsius, saturating at the
// representable range.
func CelsiusToFixed(c float64) uint16 {
	v := math.Round((c + 40) * 64)
	switch {
	case v < 0:
		return 0
	case v > math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(v)
}
