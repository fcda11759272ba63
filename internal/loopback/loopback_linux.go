//go:build linux

package loopback

import (
	"errors"
	"fmt"

	"github.com/smazurov/echotherm/internal/thermal"
	"github.com/smazurov/echotherm/pkg/linuxav/v4l2"
)

// PixelFormat maps a sensor format to its v4l2 fourcc.
func PixelFormat(format thermal.Format) (uint32, error) {
	switch format {
	case thermal.FormatARGB8888:
		return v4l2.PixFmtARGB32, nil
	case thermal.FormatGrayscale:
		return v4l2.PixFmtGrey, nil
	}
	return 0, fmt.Errorf("%w: %s has no v4l2 mapping", thermal.ErrUnsupportedFormat, format)
}

// Device is a Sink backed by a v4l2 output node.
type Device struct {
	out    *v4l2.Output
	width  int
	height int
	format thermal.Format
	size   int
}

// Open opens path and negotiates width x height in format.
func Open(path string, width, height int, format thermal.Format) (Sink, error) {
	size, err := FrameSize(width, height, format)
	if err != nil {
		return nil, err
	}
	pixfmt, err := PixelFormat(format)
	if err != nil {
		return nil, err
	}

	out, err := v4l2.OpenOutput(path)
	if err != nil {
		return nil, err
	}
	pix, err := out.SetFormat(uint32(width), uint32(height), pixfmt)
	if err != nil {
		_ = out.Close()
		return nil, err
	}
	if pix.PixelFormat != pixfmt || int(pix.Width) != width || int(pix.Height) != height {
		_ = out.Close()
		return nil, fmt.Errorf("%s negotiated %dx%d %s, want %dx%d %s", path,
			pix.Width, pix.Height, v4l2.FormatFourCC(pix.PixelFormat),
			width, height, v4l2.FormatFourCC(pixfmt))
	}

	return &Device{out: out, width: width, height: height, format: format, size: size}, nil
}

func (d *Device) Path() string           { return d.out.Path() }
func (d *Device) Width() int             { return d.width }
func (d *Device) Height() int            { return d.height }
func (d *Device) Format() thermal.Format { return d.format }

// Write sends one frame. Frames of the wrong size are rejected.
func (d *Device) Write(frame []byte) error {
	if len(frame) != d.size {
		return fmt.Errorf("frame is %d bytes, device expects %d", len(frame), d.size)
	}
	if _, err := d.out.Write(frame); err != nil {
		if errors.Is(err, v4l2.ErrWouldBlock) {
			return ErrDropped
		}
		return err
	}
	return nil
}

// Close releases the device.
func (d *Device) Close() error {
	return d.out.Close()
}
