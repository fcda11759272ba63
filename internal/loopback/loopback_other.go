//go:build !linux

package loopback

import "github.com/smazurov/echotherm/internal/thermal"

// PixelFormat is unavailable off Linux.
func PixelFormat(thermal.Format) (uint32, error) {
	return 0, ErrUnsupported
}

// Open is unavailable off Linux.
func Open(string, int, int, thermal.Format) (Sink, error) {
	return nil, ErrUnsupported
}
