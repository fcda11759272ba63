// Package video appends sensor frames to a video file through an ffmpeg
// child process fed with raw frames on stdin.
package video

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smazurov/echotherm/internal/ffmpeg"
	"github.com/smazurov/echotherm/internal/imaging"
	"github.com/smazurov/echotherm/internal/logging"
	"github.com/smazurov/echotherm/internal/process"
	"github.com/smazurov/echotherm/internal/thermal"
)

// DefaultFrameRate is the rate assumed for recordings. Sensors deliver
// roughly nine frames per second.
const DefaultFrameRate = 9

var (
	ErrClosed       = errors.New("video writer closed")
	ErrSizeChanged  = errors.New("frame size changed during recording")
	ErrNoEncoderBin = errors.New("ffmpeg not found in PATH")
)

// Writer receives frames for one output file.
type Writer interface {
	Write(im *thermal.Image) error
	Frames() int
	Path() string
	Close() error
}

// Opener creates writers. The camera holds one so tests can substitute
// an in-memory writer.
type Opener func(path string) (Writer, error)

// Options configures ffmpeg writers.
type Options struct {
	Binary        string
	FrameRate     int
	Encoder       string
	Preset        string
	CRF           int
	Bitrate       string
	FinishTimeout time.Duration
}

// NewOpener returns an Opener producing ffmpeg writers.
func NewOpener(opts Options) Opener {
	return func(path string) (Writer, error) {
		return NewFFmpegWriter(path, opts)
	}
}

// FFmpegWriter encodes frames with ffmpeg. The child is started lazily on
// the first frame because the frame size is not known before.
type FFmpegWriter struct {
	path   string
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	proc   *process.Process
	width  int
	height int
	format thermal.Format
	frames int
	closed bool
}

// NewFFmpegWriter checks that ffmpeg is available and returns a writer
// for path.
func NewFFmpegWriter(path string, opts Options) (*FFmpegWriter, error) {
	if opts.Binary == "" {
		opts.Binary = ffmpeg.Binary
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = DefaultFrameRate
	}
	if opts.FinishTimeout <= 0 {
		opts.FinishTimeout = 10 * time.Second
	}
	if _, err := exec.LookPath(opts.Binary); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoEncoderBin, err)
	}
	return &FFmpegWriter{
		path:   path,
		opts:   opts,
		logger: logging.GetLogger("ffmpeg"),
	}, nil
}

// Path implements Writer.
func (w *FFmpegWriter) Path() string { return w.path }

// Frames implements Writer.
func (w *FFmpegWriter) Frames() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Write implements Writer.
func (w *FFmpegWriter) Write(im *thermal.Image) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.proc == nil {
		if err := w.start(im); err != nil {
			return err
		}
	} else if im.Width != w.width || im.Height != w.height || im.Format != w.format {
		return fmt.Errorf("%w: %dx%d %s, started at %dx%d %s", ErrSizeChanged,
			im.Width, im.Height, im.Format, w.width, w.height, w.format)
	}

	data, err := imaging.DropAlpha(im)
	if err != nil {
		return err
	}
	if _, err := w.proc.Write(data); err != nil {
		return err
	}
	w.frames++
	return nil
}

func (w *FFmpegWriter) start(im *thermal.Image) error {
	pixFmt := ffmpeg.PixFmtBGR24
	switch im.Format {
	case thermal.FormatARGB8888:
	case thermal.FormatGrayscale:
		pixFmt = ffmpeg.PixFmtGray
	default:
		return fmt.Errorf("%w: %s", thermal.ErrUnsupportedFormat, im.Format)
	}

	args, err := ffmpeg.BuildArgs(&ffmpeg.Params{
		Width:       im.Width,
		Height:      im.Height,
		PixelFormat: pixFmt,
		FrameRate:   w.opts.FrameRate,
		Encoder:     w.opts.Encoder,
		Preset:      w.opts.Preset,
		CRF:         w.opts.CRF,
		Bitrate:     w.opts.Bitrate,
		OutputPath:  w.path,
	})
	if err != nil {
		return err
	}
	args[0] = w.opts.Binary

	id := "record-" + uuid.NewString()[:8]
	proc := process.New(id, args, w.logger)
	proc.SetLogParser(w.logger.With("file", filepath.Base(w.path)), ffmpeg.ParseLogLevel)
	if err := proc.Start(); err != nil {
		return err
	}
	w.proc = proc
	w.width, w.height, w.format = im.Width, im.Height, im.Format
	return nil
}

// Close flushes the encoder and waits for the file to be finalized.
func (w *FFmpegWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.proc == nil {
		return nil
	}
	if code := w.proc.Finish(w.opts.FinishTimeout); code != 0 {
		return fmt.Errorf("ffmpeg exited with code %d", code)
	}
	return nil
}
