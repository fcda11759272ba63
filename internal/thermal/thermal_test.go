package thermal

import (
	"errors"
	"math"
	"testing"
)

func TestFormatString(t *testing.T) {
	tests := []struct {
		f    Format
		want string
	}{
		{FormatARGB8888, "COLOR_ARGB8888"},
		{FormatThermographyFixed, "THERMOGRAPHY_FIXED_10_6"},
		{FormatARGB8888 | FormatThermographyFloat, "THERMOGRAPHY_FLOAT|COLOR_ARGB8888"},
		{Format(0x1), "0x1"},
		{Format(0), "0x0"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.want {
			t.Errorf("Format(0x%x).String() = %q, want %q", uint32(tt.f), got, tt.want)
		}
	}
}

func TestFormatClasses(t *testing.T) {
	tests := []struct {
		f                   Format
		visual, radiometric bool
		bpp                 int
	}{
		{FormatGrayscale, true, false, 1},
		{FormatARGB8888, true, false, 4},
		{FormatYUY2, true, false, 2},
		{FormatThermographyFloat, false, true, 4},
		{FormatThermographyFixed, false, true, 2},
		{FormatCorrected, false, false, 2},
		{FormatARGB8888 | FormatGrayscale, false, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.f.String(), func(t *testing.T) {
			if tt.f.Visual() != tt.visual {
				t.Errorf("Visual() = %v", tt.f.Visual())
			}
			if tt.f.Radiometric() != tt.radiometric {
				t.Errorf("Radiometric() = %v", tt.f.Radiometric())
			}
			if tt.f.BytesPerPixel() != tt.bpp {
				t.Errorf("BytesPerPixel() = %d", tt.f.BytesPerPixel())
			}
		})
	}
	if (FormatARGB8888 | FormatGrayscale).Single() {
		t.Error("mask reported as single format")
	}
}

func TestPaletteAndPipelineNames(t *testing.T) {
	if PaletteIron.String() != "IRON" || PaletteUser4.String() != "USER_4" {
		t.Errorf("palette names: %s %s", PaletteIron, PaletteUser4)
	}
	if Palette(14).Valid() || Palette(-1).Valid() {
		t.Error("out of range palette reported valid")
	}
	if PipelineProcessed.String() != "PROCESSED" || PipelineMode(3).Valid() {
		t.Error("pipeline mode naming/validation")
	}
	if FilterStateOf(7) != FilterEnabled || FilterStateOf(0) != FilterDisabled {
		t.Error("FilterStateOf")
	}
}

func TestFixedPoint(t *testing.T) {
	tests := []struct {
		raw  uint16
		want float64
	}{
		{0, -40},
		{2560, 0},
		{64 * 77, 37},
		{4000, 22.5},
	}
	for _, tt := range tests {
		if got := FixedToCelsius(tt.raw); got != tt.want {
			t.Errorf("FixedToCelsius(%d) = %v, want %v", tt.raw, got, tt.want)
		}
		if got := CelsiusToFixed(tt.want); got != tt.raw {
			t.Errorf("CelsiusToFixed(%v) = %d, want %d", tt.want, got, tt.raw)
		}
	}
	if CelsiusToFixed(-100) != 0 || CelsiusToFixed(5000) != math.MaxUint16 {
		t.Error("CelsiusToFixed should saturate")
	}
}

func TestImageCelsius(t *testing.T) {
	fixed := NewImage(FormatThermographyFixed, 2, 1)
	fixed.Data[0], fixed.Data[1] = 0x00, 0x0a // 2560 -> 0 C
	if got := fixed.Celsius(0); got != 0 {
		t.Errorf("fixed Celsius = %v", got)
	}

	float := NewImage(FormatThermographyFloat, 1, 1)
	bits := math.Float32bits(36.6)
	float.Data[0], float.Data[1], float.Data[2], float.Data[3] = byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24)
	if got := float.Celsius(0); math.Abs(got-36.6) > 1e-5 {
		t.Errorf("float Celsius = %v", got)
	}

	if !math.IsNaN(NewImage(FormatGrayscale, 1, 1).Celsius(0)) {
		t.Error("visual format should not yield a temperature")
	}
}

func TestImageValidateAndClone(t *testing.T) {
	im := NewImage(FormatARGB8888, 3, 2)
	if err := im.Validate(); err != nil {
		t.Fatal(err)
	}
	if im.Stride() != 12 {
		t.Errorf("Stride = %d", im.Stride())
	}

	c := im.Clone()
	c.Data[0] = 9
	if im.Data[0] != 0 {
		t.Error("Clone shares data")
	}

	im.Data = im.Data[:5]
	if im.Validate() == nil {
		t.Error("short data accepted")
	}
	bad := &Image{Format: Format(0x1), Width: 1, Height: 1}
	if err := bad.Validate(); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Validate = %v", err)
	}
}

type nopDriver struct{}

func (nopDriver) NewManager() (Manager, error) { return nil, errors.New("nop") }

func TestRegistry(t *testing.T) {
	Register("test-nop", nopDriver{})

	if _, err := Lookup("test-nop"); err != nil {
		t.Fatal(err)
	}
	if _, err := Open("missing"); !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("Open(missing) = %v", err)
	}
	found := false
	for _, name := range Drivers() {
		if name == "test-nop" {
			found = true
		}
	}
	if !found {
		t.Error("registered driver not listed")
	}

	defer func() {
		if recover() == nil {
			t.Error("duplicate Register should panic")
		}
	}()
	Register("test-nop", nopDriver{})
}

func TestEventKindString(t *testing.T) {
	if EventReadyToPair.String() != "READY_TO_PAIR" || EventKind(9).String() != "EventKind(9)" {
		t.Error("EventKind names")
	}
}
