package config

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/cobra"
)

// daemonOptions mirrors the shape of the daemon's humacli Options.
type daemonOptions struct {
	Config string `help:"Config file path"`

	LoopbackDevice string   `toml:"loopback.device" env:"LOOPBACK_DEVICE"`
	Palette        int      `toml:"camera.palette" env:"PALETTE"`
	Sharpen        int      `toml:"camera.sharpen" env:"SHARPEN"`
	Embedded       bool     `toml:"nats.embedded" env:"NATS_EMBEDDED"`
	MaxZoom        float64  `toml:"camera.max_zoom" env:"MAX_ZOOM"`
	LEDs           []string `toml:"led.names" env:"LED_NAMES"`
}

func writeTOML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "echotherm.toml")
	writeConfig(t, path, content)
	return path
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := writeTOML(t, `
[loopback]
device = "/dev/video9"

[camera]
palette = 5
sharpen = true
max_zoom = 8

[nats]
embedded = true

[led]
names = ["user", "system"]
`)

	opts := &daemonOptions{Config: path}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	want := &daemonOptions{
		Config:         path,
		LoopbackDevice: "/dev/video9",
		Palette:        5,
		Sharpen:        1,
		Embedded:       true,
		MaxZoom:        8,
		LEDs:           []string{"user", "system"},
	}
	if !reflect.DeepEqual(opts, want) {
		t.Errorf("got %+v\nwant %+v", opts, want)
	}
}

func TestLoadConfigFromEnvVars(t *testing.T) {
	t.Setenv("ECHOTHERM_LOOPBACK_DEVICE", "/dev/video3")
	t.Setenv("ECHOTHERM_PALETTE", " 4 ")
	t.Setenv("ECHOTHERM_SHARPEN", "true")
	t.Setenv("ECHOTHERM_NATS_EMBEDDED", "1")
	t.Setenv("ECHOTHERM_MAX_ZOOM", "2.5")
	t.Setenv("ECHOTHERM_LED_NAMES", "a, b")

	opts := &daemonOptions{}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.LoopbackDevice != "/dev/video3" || opts.Palette != 4 || opts.Sharpen != 1 {
		t.Errorf("unexpected values: %+v", opts)
	}
	if !opts.Embedded || opts.MaxZoom != 2.5 {
		t.Errorf("unexpected values: %+v", opts)
	}
	if !reflect.DeepEqual(opts.LEDs, []string{"a", "b"}) {
		t.Errorf("LEDs = %v", opts.LEDs)
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := writeTOML(t, "[camera]\npalette = 2\nsharpen = 1\n[loopback]\ndevice = \"/dev/video1\"\n")
	t.Setenv("ECHOTHERM_PALETTE", "7")
	t.Setenv("ECHOTHERM_LOOPBACK_DEVICE", "/dev/video2")

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("loopback-device", "", "")
	if err := cmd.Flags().Set("loopback-device", "/dev/video5"); err != nil {
		t.Fatal(err)
	}

	opts := &daemonOptions{Config: path, LoopbackDevice: "/dev/video5"}
	if err := LoadConfig(opts, cmd); err != nil {
		t.Fatal(err)
	}

	if opts.LoopbackDevice != "/dev/video5" {
		t.Errorf("flag should win, got %q", opts.LoopbackDevice)
	}
	if opts.Palette != 7 {
		t.Errorf("env should beat file, got %d", opts.Palette)
	}
	if opts.Sharpen != 1 {
		t.Errorf("file value should apply, got %d", opts.Sharpen)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &daemonOptions{Config: filepath.Join(t.TempDir(), "nope.toml"), Palette: 3}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig should not fail for missing file: %v", err)
	}
	if opts.Palette != 3 {
		t.Errorf("defaults should survive, got %d", opts.Palette)
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	path := writeTOML(t, "[camera\ninvalid toml syntax\n")
	if err := LoadConfig(&daemonOptions{Config: path}, nil); err == nil {
		t.Fatal("LoadConfig should fail for invalid TOML")
	}
}

func TestGetNestedValue(t *testing.T) {
	data := map[string]any{
		"camera": map[string]any{
			"filters": map[string]any{"sharpen": true},
			"palette": int64(1),
		},
		"root": "value",
	}

	tests := []struct {
		path     string
		expected any
	}{
		{"root", "value"},
		{"camera.palette", int64(1)},
		{"camera.filters.sharpen", true},
		{"missing", nil},
		{"camera.missing", nil},
		{"root.deeper", nil},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := getNestedValue(data, tt.path); got != tt.expected {
				t.Errorf("getNestedValue(%q) = %v, want %v", tt.path, got, tt.expected)
			}
		})
	}
}

func TestParseIntOrBool(t *testing.T) {
	tests := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"3", 3, true},
		{" -1 ", -1, true},
		{"true", 1, true},
		{"FALSE", 0, true},
		{"", 0, false},
		{"1.5", 0, false},
		{"yes", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseIntOrBool(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseIntOrBool(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFieldNameToFlag(t *testing.T) {
	tests := map[string]string{
		"Port":           "port",
		"ShutterMode":    "shutter-mode",
		"LoopbackDevice": "loopback-device",
	}
	for in, want := range tests {
		if got := fieldNameToFlag(in); got != want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadLoggingConfig(t *testing.T) {
	path := writeTOML(t, `
[logging]
level = "debug"
format = "json"

[logging.modules]
recorder = "warn"
protocol = "error"
`)

	cfg := LoadLoggingConfig(path)
	if cfg.Level != "debug" || cfg.Format != "json" {
		t.Errorf("level/format = %q/%q", cfg.Level, cfg.Format)
	}
	if cfg.Modules["recorder"] != "warn" || cfg.Modules["protocol"] != "error" {
		t.Errorf("modules = %v", cfg.Modules)
	}

	def := LoadLoggingConfig("")
	if def.Level != "info" || def.Format != "text" {
		t.Errorf("defaults = %+v", def)
	}
}
