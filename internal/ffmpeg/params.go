package ffmpeg

// Input pixel formats accepted on stdin.
const (
	PixFmtBGR24 = "bgr24"
	PixFmtGray  = "gray"
)

// Params describes one rawvideo-on-stdin to file encode.
type Params struct {
	// Input
	Width       int
	Height      int
	PixelFormat string // bgr24 or gray
	FrameRate   int

	// Encoder
	Encoder   string // libx264, mpeg4, h264_v4l2m2m
	Preset    string // software x264 only
	CRF       int    // 0 = encoder default
	Bitrate   string // e.g. "4M", used by hardware and mpeg4 encoders
	ExtraArgs []string

	// Output
	OutputPath string
}
