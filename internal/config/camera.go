package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// CameraSettings is the hot-reloadable [camera] table. A nil field means
// the key is absent and the running value is left alone.
type CameraSettings struct {
	Palette           *int
	ShutterMode       *int
	PipelineMode      *int
	Sharpen           *int
	FlatScene         *int
	Gradient          *int
	RadiometricFormat *int
	MaxZoom           *float64
	ZoomRate          *float64
}

// Empty reports whether no key was present.
func (s CameraSettings) Empty() bool {
	return s == CameraSettings{}
}

// LoadCameraSettings reads the [camera] table of the file at path. Integer
// keys accept booleans; unknown keys are ignored.
func LoadCameraSettings(path string) (CameraSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CameraSettings{}, fmt.Errorf("read config: %w", err)
	}

	var doc struct {
		Camera map[string]any `toml:"camera"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return CameraSettings{}, fmt.Errorf("parse config: %w", err)
	}

	var s CameraSettings
	ints := []struct {
		key string
		dst **int
	}{
		{"palette", &s.Palette},
		{"shutter_mode", &s.ShutterMode},
		{"pipeline_mode", &s.PipelineMode},
		{"sharpen", &s.Sharpen},
		{"flat_scene", &s.FlatScene},
		{"gradient", &s.Gradient},
		{"radiometric_format", &s.RadiometricFormat},
	}
	for _, f := range ints {
		raw, ok := doc.Camera[f.key]
		if !ok {
			continue
		}
		n, err := intValue(raw)
		if err != nil {
			return CameraSettings{}, fmt.Errorf("camera.%s: %w", f.key, err)
		}
		*f.dst = &n
	}

	floats := []struct {
		key string
		dst **float64
	}{
		{"max_zoom", &s.MaxZoom},
		{"zoom_rate", &s.ZoomRate},
	}
	for _, f := range floats {
		raw, ok := doc.Camera[f.key]
		if !ok {
			continue
		}
		x, err := floatValue(raw)
		if err != nil {
			return CameraSettings{}, fmt.Errorf("camera.%s: %w", f.key, err)
		}
		*f.dst = &x
	}
	return s, nil
}

func intValue(v any) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case bool:
		return int(boolToInt(n)), nil
	case string:
		if i, ok := ParseIntOrBool(n); ok {
			return i, nil
		}
	}
	return 0, fmt.Errorf("expected integer or boolean, got %T", v)
}

func floatValue(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}
