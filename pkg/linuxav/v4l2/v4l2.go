//go:build linux

// Package v4l2 provides pure Go bindings to the Video4Linux2 (V4L2) API
// for output device discovery and output format negotiation.
//
// This package does not use cgo, enabling simple cross-compilation for
// different Linux architectures (amd64, arm64, arm).
//
// # Device Enumeration
//
// Use FindOutputDevices to discover devices that accept frames, such as
// v4l2loopback nodes:
//
//	devices, err := v4l2.FindOutputDevices()
//	for _, dev := range devices {
//	    fmt.Printf("%s: %s\n", dev.DevicePath, dev.DeviceName)
//	}
//
// # Writing Frames
//
// Open an output, negotiate a format with a G_FMT/S_FMT exchange and write
// raw frame bytes:
//
//	out, err := v4l2.OpenOutput("/dev/video0")
//	pix, err := out.SetFormat(320, 240, v4l2.PixFmtARGB32)
//	_, err = out.Write(frame) // len(frame) == pix.SizeImage
//	out.Close()
package v4l2

// FourCC builds a V4L2 pixel format code from four characters.
func FourCC(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

// FormatFourCC converts a pixel format code to its four character string.
func FormatFourCC(format uint32) string {
	return string([]byte{
		byte(format),
		byte(format >> 8),
		byte(format >> 16),
		byte(format >> 24),
	})
}

// BytesPerPixel returns the packed pixel size for the formats this package
// knows how to size, or 0 for anything else.
func BytesPerPixel(pixelFormat uint32) int {
	switch pixelFormat {
	case PixFmtARGB32:
		return 4
	case PixFmtGrey:
		return 1
	case PixFmtYUYV:
		return 2
	default:
		return 0
	}
}
