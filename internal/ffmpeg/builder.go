package ffmpeg

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
)

// Binary is the encoder executable looked up in PATH.
const Binary = "ffmpeg"

// DefaultEncoder is used when Params.Encoder is empty.
const DefaultEncoder = "libx264"

// Encoders lists the encoders BuildArgs knows how to configure.
var Encoders = []string{"libx264", "mpeg4", "h264_v4l2m2m"}

// BuildArgs returns the argv for encoding raw frames from stdin into
// p.OutputPath. The output container is picked by ffmpeg from the file
// extension.
func BuildArgs(p *Params) ([]string, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", p.Width, p.Height)
	}
	if p.PixelFormat != PixFmtBGR24 && p.PixelFormat != PixFmtGray {
		return nil, fmt.Errorf("unsupported input pixel format %q", p.PixelFormat)
	}
	if p.OutputPath == "" {
		return nil, errors.New("missing output path")
	}
	encoder := p.Encoder
	if encoder == "" {
		encoder = DefaultEncoder
	}
	if !slices.Contains(Encoders, encoder) {
		return nil, fmt.Errorf("unsupported encoder %q", encoder)
	}
	fps := p.FrameRate
	if fps <= 0 {
		fps = 9
	}

	args := []string{
		Binary, "-hide_banner", "-nostdin", "-loglevel", "level+info", "-y",
		"-f", "rawvideo",
		"-pixel_format", p.PixelFormat,
		"-video_size", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"-framerate", strconv.Itoa(fps),
		"-i", "pipe:0",
		"-an",
		"-c:v", encoder,
	}

	switch encoder {
	case "libx264":
		preset := p.Preset
		if preset == "" {
			preset = "veryfast"
		}
		args = append(args, "-preset", preset)
		if p.CRF > 0 {
			args = append(args, "-crf", strconv.Itoa(p.CRF))
		}
	default:
		if p.Bitrate != "" {
			args = append(args, "-b:v", p.Bitrate)
		}
	}

	// Thermal frames have odd sizes; yuv420p needs even dimensions.
	args = append(args,
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
	)
	args = append(args, p.ExtraArgs...)
	args = append(args, p.OutputPath)
	return args, nil
}
