// Package loopback writes frames to a v4l2 output device such as a
// v4l2loopback node so other applications can read them as a camera.
package loopback

import (
	"errors"
	"fmt"

	"github.com/smazurov/echotherm/internal/thermal"
)

var (
	// ErrDropped is returned by Write when the device had no room for the
	// frame. The frame is discarded.
	ErrDropped = errors.New("loopback: frame dropped")
	// ErrUnsupported is returned on platforms without v4l2.
	ErrUnsupported = errors.New("loopback: v4l2 output not supported on this platform")
)

// Sink is an opened output device with a negotiated format.
type Sink interface {
	Path() string
	Width() int
	Height() int
	Format() thermal.Format
	Write(frame []byte) error
	Close() error
}

// Opener opens a sink for frames of the given size and format.
type Opener func(path string, width, height int, format thermal.Format) (Sink, error)

// FrameSize returns the byte size of one frame, failing for formats the
// sink cannot carry.
func FrameSize(width, height int, format thermal.Format) (int, error) {
	switch format {
	case thermal.FormatARGB8888:
		return width * height * 4, nil
	case thermal.FormatGrayscale:
		return width * height, nil
	}
	return 0, fmt.Errorf("%w: %s cannot be written to a loopback device", thermal.ErrUnsupportedFormat, format)
}
