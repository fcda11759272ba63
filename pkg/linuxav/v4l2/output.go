//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"syscall"
	"unsafe"
)

// ErrWouldBlock is returned by Write when the device has no free buffer.
// The frame is dropped; the caller should move on to the next one.
var ErrWouldBlock = errors.New("v4l2: output would block")

// ErrNotOutput is returned by OpenOutput for nodes without output capability.
var ErrNotOutput = errors.New("v4l2: device is not a video output")

// Output is an open V4L2 video output node.
type Output struct {
	fd   int
	path string
	info DeviceInfo
	pix  PixFormat
}

// OpenOutput opens the node at path and verifies it accepts video output.
func OpenOutput(path string) (*Output, error) {
	fd, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	c, err := queryCap(fd)
	if err != nil {
		closeFd(fd)
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	info := capToInfo(path, c)
	if !info.IsOutput() {
		closeFd(fd)
		return nil, fmt.Errorf("%s: %w", path, ErrNotOutput)
	}

	return &Output{fd: fd, path: path, info: info}, nil
}

// Path returns the device node path.
func (o *Output) Path() string { return o.path }

// Info returns the capability data read at open.
func (o *Output) Info() DeviceInfo { return o.info }

// Format returns the last negotiated format.
func (o *Output) Format() PixFormat { return o.pix }

// GetFormat reads the current output format from the driver.
func (o *Output) GetFormat() (PixFormat, error) {
	var f v4l2Format
	f.typ = bufTypeVideoOutput
	if err := ioctl(o.fd, vidiocGFmt, unsafe.Pointer(&f)); err != nil {
		return PixFormat{}, fmt.Errorf("VIDIOC_G_FMT: %w", err)
	}
	return fromRaw(f.pix()), nil
}

// SetFormat negotiates width x height in pixelFormat. The current format is
// read first so driver-private fields survive, then overwritten and applied.
// The returned format is what the driver accepted, which may differ from
// the request.
func (o *Output) SetFormat(width, height, pixelFormat uint32) (PixFormat, error) {
	var f v4l2Format
	f.typ = bufTypeVideoOutput
	if err := ioctl(o.fd, vidiocGFmt, unsafe.Pointer(&f)); err != nil {
		return PixFormat{}, fmt.Errorf("VIDIOC_G_FMT: %w", err)
	}

	p := f.pix()
	bpp := uint32(BytesPerPixel(pixelFormat))
	p.width = width
	p.height = height
	p.pixelformat = pixelFormat
	p.field = fieldNone
	p.bytesperline = width * bpp
	p.sizeimage = width * height * bpp
	p.colorspace = colorspaceSRGB

	if err := ioctl(o.fd, vidiocSFmt, unsafe.Pointer(&f)); err != nil {
		return PixFormat{}, fmt.Errorf("VIDIOC_S_FMT %dx%d %s: %w", width, height, FormatFourCC(pixelFormat), err)
	}

	o.pix = fromRaw(p)
	return o.pix, nil
}

// Write pushes one frame to the device.
func (o *Output) Write(frame []byte) (int, error) {
	n, err := syscall.Write(o.fd, frame)
	if err != nil {
		if errors.Is(err, syscall.EAGAIN) {
			return 0, ErrWouldBlock
		}
		return n, fmt.Errorf("write %s: %w", o.path, err)
	}
	return n, nil
}

// Close releases the device node.
func (o *Output) Close() error {
	if o.fd < 0 {
		return nil
	}
	err := closeFd(o.fd)
	o.fd = -1
	return err
}

func fromRaw(p *v4l2PixFormat) PixFormat {
	return PixFormat{
		Width:        p.width,
		Height:       p.height,
		PixelFormat:  p.pixelformat,
		Field:        p.field,
		BytesPerLine: p.bytesperline,
		SizeImage:    p.sizeimage,
		Colorspace:   p.colorspace,
	}
}
