// Package imaging converts sensor images for the loopback device, still
// image files and the video encoder.
package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/smazurov/echotherm/internal/thermal"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

var ErrUnknownExtension = errors.New("unknown image file extension")

// Extensions lists the still image extensions Encode understands.
var Extensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff"}

// Supported reports whether f can be resized and encoded.
func Supported(f thermal.Format) bool {
	return f == thermal.FormatARGB8888 || f == thermal.FormatGrayscale
}

func unsupported(f thermal.Format) error {
	return fmt.Errorf("%w: %s", thermal.ErrUnsupportedFormat, f)
}

// wrap views the raw sample buffer as a draw-able image. ARGB8888 bytes
// (B, G, R, A) are presented as RGBA without swizzling; interpolation
// treats channels independently so the order survives a resize.
func wrap(im *thermal.Image) (draw.Image, error) {
	rect := image.Rect(0, 0, im.Width, im.Height)
	switch im.Format {
	case thermal.FormatARGB8888:
		return &image.RGBA{Pix: im.Data, Stride: im.Width * 4, Rect: rect}, nil
	case thermal.FormatGrayscale:
		return &image.Gray{Pix: im.Data, Stride: im.Width, Rect: rect}, nil
	}
	return nil, unsupported(im.Format)
}

// CropResize scales the roi of src back up to the full size of src using
// bilinear interpolation.
func CropResize(src *thermal.Image, roi image.Rectangle) (*thermal.Image, error) {
	srcImg, err := wrap(src)
	if err != nil {
		return nil, err
	}
	roi = roi.Intersect(srcImg.Bounds())
	if roi.Empty() {
		return nil, fmt.Errorf("empty region %v", roi)
	}

	dst := thermal.NewImage(src.Format, src.Width, src.Height)
	dstImg, _ := wrap(dst)
	draw.BiLinear.Scale(dstImg, dstImg.Bounds(), srcImg, roi, draw.Src, nil)
	return dst, nil
}

// ToImage converts to a standard image with the real channel order.
func ToImage(im *thermal.Image) (image.Image, error) {
	if err := im.Validate(); err != nil {
		return nil, err
	}
	rect := image.Rect(0, 0, im.Width, im.Height)
	switch im.Format {
	case thermal.FormatARGB8888:
		out := image.NewNRGBA(rect)
		for i := 0; i < len(im.Data); i += 4 {
			out.Pix[i+0] = im.Data[i+2]
			out.Pix[i+1] = im.Data[i+1]
			out.Pix[i+2] = im.Data[i+0]
			out.Pix[i+3] = im.Data[i+3]
		}
		return out, nil
	case thermal.FormatGrayscale:
		out := image.NewGray(rect)
		copy(out.Pix, im.Data)
		return out, nil
	}
	return nil, unsupported(im.Format)
}

// DropAlpha returns the pixels packed for the encoder: 4-channel frames
// become 3-channel B, G, R; grayscale is returned unchanged.
func DropAlpha(im *thermal.Image) ([]byte, error) {
	switch im.Format {
	case thermal.FormatARGB8888:
		n := im.Width * im.Height
		out := make([]byte, n*3)
		for i := 0; i < n; i++ {
			copy(out[i*3:i*3+3], im.Data[i*4:i*4+3])
		}
		return out, nil
	case thermal.FormatGrayscale:
		return im.Data, nil
	}
	return nil, unsupported(im.Format)
}

// Encode writes im to w in the format named by ext.
func Encode(w io.Writer, ext string, im *thermal.Image) error {
	img, err := ToImage(im)
	if err != nil {
		return err
	}
	switch strings.ToLower(ext) {
	case ".png":
		return png.Encode(w, img)
	case ".jpg", ".jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	case ".bmp":
		return bmp.Encode(w, img)
	case ".tif", ".tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	}
	return fmt.Errorf("%w: %q", ErrUnknownExtension, ext)
}

// EncodeFile writes im to path, choosing the encoder from the extension.
// A partially written file is removed on failure.
func EncodeFile(path string, im *thermal.Image) (err error) {
	ext := filepath.Ext(path)
	if !KnownExtension(ext) {
		return fmt.Errorf("%w: %q", ErrUnknownExtension, ext)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	return Encode(f, ext, im)
}

// KnownExtension reports whether ext is one of Extensions.
func KnownExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}
