package thermal

import (
	"fmt"
	"strings"
)

// Format is a frame format bit. Capture sessions are started with a
// bitwise OR of formats so several representations arrive per frame.
type Format uint32

const (
	FormatCorrected         Format = 0x04
	FormatPreAGC            Format = 0x08
	FormatThermographyFloat Format = 0x10
	FormatThermographyFixed Format = 0x20
	FormatGrayscale         Format = 0x40
	FormatARGB8888          Format = 0x80
	FormatRGB565            Format = 0x100
	FormatAYUV              Format = 0x200
	FormatYUY2              Format = 0x400
)

var formatNames = []struct {
	f    Format
	name string
}{
	{FormatCorrected, "CORRECTED"},
	{FormatPreAGC, "PRE_AGC"},
	{FormatThermographyFloat, "THERMOGRAPHY_FLOAT"},
	{FormatThermographyFixed, "THERMOGRAPHY_FIXED_10_6"},
	{FormatGrayscale, "GRAYSCALE"},
	{FormatARGB8888, "COLOR_ARGB8888"},
	{FormatRGB565, "COLOR_RGB565"},
	{FormatAYUV, "COLOR_AYUV"},
	{FormatYUY2, "COLOR_YUY2"},
}

// String returns the format name, or names joined with "|" for a mask.
func (f Format) String() string {
	var parts []string
	rest := f
	for _, n := range formatNames {
		if f&n.f != 0 {
			parts = append(parts, n.name)
			rest &^= n.f
		}
	}
	if rest != 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// Single reports whether f is exactly one known format bit.
func (f Format) Single() bool {
	for _, n := range formatNames {
		if f == n.f {
			return true
		}
	}
	return false
}

// Visual reports whether f is a displayable color or grayscale format.
func (f Format) Visual() bool {
	switch f {
	case FormatGrayscale, FormatARGB8888, FormatRGB565, FormatAYUV, FormatYUY2:
		return true
	}
	return false
}

// Radiometric reports whether f carries calibrated temperatures.
func (f Format) Radiometric() bool {
	return f == FormatThermographyFloat || f == FormatThermographyFixed
}

// BytesPerPixel returns the storage size of one pixel, or 0 when unknown.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatGrayscale:
		return 1
	case FormatCorrected, FormatPreAGC, FormatThermographyFixed, FormatRGB565, FormatYUY2:
		return 2
	case FormatThermographyFloat, FormatARGB8888, FormatAYUV:
		return 4
	}
	return 0
}

// Palette selects the false-color mapping applied by the sensor.
type Palette int

const (
	PaletteWhiteHot Palette = iota
	PaletteBlackHot
	PaletteSpectra
	PalettePrism
	PaletteTyrian
	PaletteIron
	PaletteAmber
	PaletteHi
	PaletteGreen
	PaletteUser0
	PaletteUser1
	PaletteUser2
	PaletteUser3
	PaletteUser4
)

var paletteNames = [...]string{
	"WHITE_HOT", "BLACK_HOT", "SPECTRA", "PRISM", "TYRIAN", "IRON", "AMBER",
	"HI", "GREEN", "USER_0", "USER_1", "USER_2", "USER_3", "USER_4",
}

// Valid reports whether p is a known palette.
func (p Palette) Valid() bool {
	return p >= PaletteWhiteHot && p <= PaletteUser4
}

func (p Palette) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Palette(%d)", int(p))
	}
	return paletteNames[p]
}

// PipelineMode is the sensor's internal processing tier.
type PipelineMode int

const (
	PipelineLite PipelineMode = iota
	PipelineLegacy
	PipelineProcessed
)

// Valid reports whether m is a known pipeline mode.
func (m PipelineMode) Valid() bool {
	return m >= PipelineLite && m <= PipelineProcessed
}

func (m PipelineMode) String() string {
	switch m {
	case PipelineLite:
		return "LITE"
	case PipelineLegacy:
		return "LEGACY"
	case PipelineProcessed:
		return "PROCESSED"
	}
	return fmt.Sprintf("PipelineMode(%d)", int(m))
}

// ShutterMode is the SDK-level shutter behavior.
type ShutterMode int

const (
	ShutterAuto ShutterMode = iota
	ShutterManual
)

func (m ShutterMode) String() string {
	if m == ShutterAuto {
		return "AUTO"
	}
	return "MANUAL"
}

// Filter identifies one of the software image corrections.
type Filter int

const (
	FilterSharpen Filter = iota
	FilterFlatScene
	FilterGradient
)

func (f Filter) String() string {
	switch f {
	case FilterSharpen:
		return "SHARPEN_CORRECTION"
	case FilterFlatScene:
		return "FLAT_SCENE_CORRECTION"
	case FilterGradient:
		return "GRADIENT_CORRECTION"
	}
	return fmt.Sprintf("Filter(%d)", int(f))
}

// FilterState enables or disables a filter.
type FilterState int

const (
	FilterDisabled FilterState = iota
	FilterEnabled
)

// FilterStateOf maps any non-zero value to FilterEnabled.
func FilterStateOf(v int) FilterState {
	if v != 0 {
		return FilterEnabled
	}
	return FilterDisabled
}

func (s FilterState) String() string {
	if s == FilterEnabled {
		return "ENABLED"
	}
	return "DISABLED"
}
