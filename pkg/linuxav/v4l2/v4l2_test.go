//go:build linux

package v4l2

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFormatFourCC(t *testing.T) {
	tests := []struct {
		name     string
		format   uint32
		expected string
	}{
		{
			name:     "ARGB32 format",
			format:   PixFmtARGB32,
			expected: "BA24",
		},
		{
			name:     "GREY format",
			format:   PixFmtGrey,
			expected: "GREY",
		},
		{
			name:     "YUYV format",
			format:   PixFmtYUYV,
			expected: "YUYV",
		},
		{
			name:     "null bytes",
			format:   0x00000000,
			expected: "\x00\x00\x00\x00",
		},
		{
			name:     "mixed bytes",
			format:   0x01020304,
			expected: "\x04\x03\x02\x01",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FormatFourCC(tt.format)
			if result != tt.expected {
				t.Errorf("FormatFourCC(0x%08X) = %q, want %q", tt.format, result, tt.expected)
			}
		})
	}
}

func TestFourCCRoundTrip(t *testing.T) {
	for _, s := range []string{"BA24", "GREY", "YUYV"} {
		t.Run(s, func(t *testing.T) {
			got := FormatFourCC(FourCC(s[0], s[1], s[2], s[3]))
			if got != s {
				t.Errorf("round trip = %q, want %q", got, s)
			}
		})
	}
}

func TestBytesPerPixel(t *testing.T) {
	tests := []struct {
		name   string
		format uint32
		want   int
	}{
		{"argb", PixFmtARGB32, 4},
		{"grey", PixFmtGrey, 1},
		{"yuyv", PixFmtYUYV, 2},
		{"unknown", FourCC('M', 'J', 'P', 'G'), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BytesPerPixel(tt.format); got != tt.want {
				t.Errorf("BytesPerPixel(%s) = %d, want %d", FormatFourCC(tt.format), got, tt.want)
			}
		})
	}
}

func TestDeviceInfoCaps(t *testing.T) {
	tests := []struct {
		name     string
		info     DeviceInfo
		output   bool
		loopback bool
	}{
		{"loopback output", DeviceInfo{Driver: "v4l2 loopback", Caps: CapVideoOutput | CapVideoCapture}, true, true},
		{"capture only", DeviceInfo{Driver: "uvcvideo", Caps: CapVideoCapture}, false, false},
		{"no caps", DeviceInfo{}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.IsOutput(); got != tt.output {
				t.Errorf("IsOutput() = %v, want %v", got, tt.output)
			}
			if got := tt.info.IsLoopback(); got != tt.loopback {
				t.Errorf("IsLoopback() = %v, want %v", got, tt.loopback)
			}
		})
	}
}

func TestCapToInfoPrefersDeviceCaps(t *testing.T) {
	var c v4l2Capability
	copy(c.driver[:], "v4l2 loopback")
	copy(c.card[:], "EchoTherm")
	c.capabilities = CapDeviceCaps | CapVideoCapture | CapVideoOutput
	c.deviceCaps = CapVideoOutput

	info := capToInfo("/dev/video9", &c)
	if info.Caps != CapVideoOutput {
		t.Errorf("Caps = 0x%x, want 0x%x", info.Caps, CapVideoOutput)
	}
	if info.DeviceName != "EchoTherm" || info.Driver != "v4l2 loopback" {
		t.Errorf("unexpected strings: %+v", info)
	}
}

func TestOpenOutputMissingDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "video99")
	_, err := OpenOutput(path)
	if err == nil {
		t.Fatal("expected error for missing device")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want not-exist", err)
	}
}

func TestOpenOutputRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notadevice")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenOutput(path); err == nil {
		t.Fatal("expected QUERYCAP failure on a regular file")
	}
}

func TestCstr(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{[]byte("abc\x00def"), "abc"},
		{[]byte("abc"), "abc"},
		{[]byte{0}, ""},
	}
	for _, tt := range tests {
		if got := cstr(tt.in); got != tt.want {
			t.Errorf("cstr(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
