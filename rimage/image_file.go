package rimage

import (
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/lmittmann/ppm"
	"github.com/pkg/errors"
	"github.com/xfmoulet/qoi"
	"go.uber.org/multierr"
)

// ImageFormat is an on-disk image file format.
type ImageFormat string

// Supported output formats.
const (
	FormatPNG ImageFormat = "png"
	FormatPPM ImageFormat = "ppm"
	FormatQOI ImageFormat = "qoi"
)

// ParseImageFormat validates a format name, ignoring case and a leading dot.
func ParseImageFormat(name string) (ImageFormat, error) {
	switch f := ImageFormat(strings.TrimPrefix(strings.ToLower(name), ".")); f {
	case FormatPNG, FormatPPM, FormatQOI:
		return f, nil
	default:
		return "", errors.Errorf("unknown image format %q, expected one of png, ppm, qoi", name)
	}
}

// EncodeImage writes img to w in the given format. PNG keeps 16-bit gray images lossless;
// PPM and QOI store 8 bits per channel.
func EncodeImage(w io.Writer, format ImageFormat, img image.Image) error {
	switch format {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatPPM:
		return ppm.Encode(w, img)
	case FormatQOI:
		return qoi.Encode(w, img)
	default:
		return errors.Errorf("unknown image format %q", format)
	}
}

// WriteImageToFile writes img to path, choosing the format from the file extension.
func WriteImageToFile(path string, img image.Image) (err error) {
	format, err := ParseImageFormat(filepath.Ext(path))
	if err != nil {
		return err
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return EncodeImage(f, format, img)
}
