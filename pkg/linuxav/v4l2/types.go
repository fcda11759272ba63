//go:build linux

package v4l2

// DeviceInfo contains information about a V4L2 device.
type DeviceInfo struct {
	DevicePath string
	DeviceName string
	Driver     string
	BusInfo    string
	Caps       uint32
}

// IsOutput reports whether the device accepts frames.
func (d DeviceInfo) IsOutput() bool {
	return d.Caps&CapVideoOutput != 0
}

// IsLoopback reports whether the device is backed by the v4l2loopback driver.
func (d DeviceInfo) IsLoopback() bool {
	return d.Driver == "v4l2 loopback"
}

// PixFormat mirrors the single-planar pixel format fields of struct
// v4l2_pix_format that callers care about.
type PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  uint32
	Field        uint32
	BytesPerLine uint32
	SizeImage    uint32
	Colorspace   uint32
}

// Capability flags.
const (
	CapVideoCapture = 0x00000001
	CapVideoOutput  = 0x00000002
	CapDeviceCaps   = 0x80000000
)

// Pixel formats.
const (
	PixFmtARGB32 uint32 = 0x34324142 // 'BA24'
	PixFmtGrey   uint32 = 0x59455247 // 'GREY'
	PixFmtYUYV   uint32 = 0x56595559 // 'YUYV'
)

// Buffer types.
const (
	bufTypeVideoOutput = 2
)

// Field order and colorspace values used for output negotiation.
const (
	fieldNone      = 1
	colorspaceSRGB = 8
)
