// Package rimage converts the raw pixel buffers carried by super frames and ROS image
// messages to Go images, and writes them to files.
package rimage

import (
	"image"
	"math"

	"github.com/pkg/errors"
)

// Pixel encodings, named as in sensor_msgs/image_encodings.h. EncodingNV21 is the planar
// YUV 4:2:0 layout with interleaved VU produced by the Tango color camera.
const (
	EncodingMono8  = "mono8"
	EncodingMono16 = "mono16"
	EncodingRGB8   = "rgb8"
	EncodingBGR8   = "bgr8"
	EncodingRGBA8  = "rgba8"
	Encoding16UC1  = "16UC1"
	EncodingYUV422 = "yuv422"
	EncodingNV21   = "nv21"
)

// ErrUnsupportedEncoding is returned for pixel encodings this package cannot interpret.
var ErrUnsupportedEncoding = errors.New("unsupported pixel encoding")

// BytesPerPixel returns the size of one pixel of a packed encoding. Planar encodings
// (nv21) return ErrUnsupportedEncoding since their rows do not have a fixed pixel size.
func BytesPerPixel(encoding string) (int, error) {
	switch encoding {
	case EncodingMono8:
		return 1, nil
	case EncodingMono16, Encoding16UC1, EncodingYUV422:
		return 2, nil
	case EncodingRGB8, EncodingBGR8:
		return 3, nil
	case EncodingRGBA8:
		return 4, nil
	default:
		return 0, errors.Wrapf(ErrUnsupportedEncoding, "%q has no fixed pixel size", encoding)
	}
}

// ErrImageTooLarge is returned for geometries a ROS message cannot describe or whose byte
// size overflows int.
var ErrImageTooLarge = errors.New("image geometry too large")

// CheckDimensions checks that width and height fit the unsigned 32 bit fields of ROS
// messages and that their product fits an int.
func CheckDimensions(width, height int) error {
	if width < 0 || height < 0 {
		return errors.Errorf("invalid image size (%d, %d)", width, height)
	}
	if uint64(width) > math.MaxUint32 || uint64(height) > math.MaxUint32 {
		return errors.Wrapf(ErrImageTooLarge, "size (%d, %d)", width, height)
	}
	if _, err := mulSize(width, height); err != nil {
		return errors.Wrapf(err, "size (%d, %d)", width, height)
	}
	return nil
}

// mulSize multiplies two non-negative sizes, failing on overflow.
func mulSize(a, b int) (int, error) {
	if a != 0 && b > math.MaxInt/a {
		return 0, errors.Wrapf(ErrImageTooLarge, "%d x %d overflows", a, b)
	}
	return a * b, nil
}

// BufferSize returns the number of bytes a buffer of the given geometry must hold. For packed
// encodings this is step*height; nv21 also carries a half-height chroma plane.
func BufferSize(encoding string, width, height, step int) (int, error) {
	if err := CheckDimensions(width, height); err != nil {
		return 0, err
	}
	if step < 0 || uint64(step) > math.MaxUint32 {
		return 0, errors.Wrapf(ErrImageTooLarge, "row step %d", step)
	}
	rows, err := mulSize(step, height)
	if err != nil {
		return 0, err
	}
	if (encoding == EncodingNV21 || encoding == EncodingYUV422) && width%2 != 0 {
		return 0, errors.Errorf("%s needs an even width, got %d", encoding, width)
	}
	if encoding == EncodingNV21 {
		if height%2 != 0 {
			return 0, errors.Errorf("%s needs an even height, got %d", encoding, height)
		}
		if step < width {
			return 0, errors.Errorf("row step %d shorter than width %d", step, width)
		}
		chroma := step * (height / 2)
		if rows > math.MaxInt-chroma {
			return 0, errors.Wrapf(ErrImageTooLarge, "%s buffer of step %d and height %d overflows", encoding, step, height)
		}
		return rows + chroma, nil
	}
	bpp, err := BytesPerPixel(encoding)
	if err != nil {
		return 0, err
	}
	if step < width*bpp {
		return 0, errors.Errorf("row step %d shorter than %d pixels of %d bytes", step, width, bpp)
	}
	return rows, nil
}

// ToImage interprets data as an image of the given encoding and geometry. The returned image
// shares no memory with data.
func ToImage(encoding string, width, height, step int, data []byte) (image.Image, error) {
	size, err := BufferSize(encoding, width, height, step)
	if err != nil {
		return nil, err
	}
	if len(data) < size {
		return nil, errors.Errorf("%s buffer of %d bytes is too small for %dx%d (step %d), need %d",
			encoding, len(data), width, height, step, size)
	}
	bounds := image.Rect(0, 0, width, height)

	switch encoding {
	case EncodingMono8:
		img := image.NewGray(bounds)
		for y := 0; y < height; y++ {
			copy(img.Pix[y*img.Stride:y*img.Stride+width], data[y*step:])
		}
		return img, nil
	case EncodingMono16, Encoding16UC1:
		// Gray16 is big endian; ROS buffers here are little endian.
		img := image.NewGray16(bounds)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				src := data[y*step+2*x:]
				dst := img.Pix[y*img.Stride+2*x:]
				dst[0], dst[1] = src[1], src[0]
			}
		}
		return img, nil
	case EncodingRGB8, EncodingBGR8:
		img := image.NewNRGBA(bounds)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				src := data[y*step+3*x:]
				dst := img.Pix[y*img.Stride+4*x:]
				if encoding == EncodingRGB8 {
					dst[0], dst[1], dst[2] = src[0], src[1], src[2]
				} else {
					dst[0], dst[1], dst[2] = src[2], src[1], src[0]
				}
				dst[3] = 0xff
			}
		}
		return img, nil
	case EncodingRGBA8:
		img := image.NewNRGBA(bounds)
		for y := 0; y < height; y++ {
			copy(img.Pix[y*img.Stride:y*img.Stride+4*width], data[y*step:])
		}
		return img, nil
	case EncodingYUV422:
		// UYVY: two pixels share one U and one V sample.
		img := image.NewYCbCr(bounds, image.YCbCrSubsampleRatio422)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				src := data[y*step+2*x:]
				img.Y[img.YOffset(x, y)] = src[1]
				if x%2 == 0 {
					ci := img.COffset(x, y)
					img.Cb[ci] = src[0]
					img.Cr[ci] = src[2]
				}
			}
		}
		return img, nil
	case EncodingNV21:
		img := image.NewYCbCr(bounds, image.YCbCrSubsampleRatio420)
		for y := 0; y < height; y++ {
			copy(img.Y[y*img.YStride:y*img.YStride+width], data[y*step:])
		}
		chroma := data[step*height:]
		for y := 0; y < height/2; y++ {
			for x := 0; x < width/2; x++ {
				src := chroma[y*step+2*x:]
				ci := y*img.CStride + x
				img.Cr[ci] = src[0]
				img.Cb[ci] = src[1]
			}
		}
		return img, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedEncoding, "%q", encoding)
	}
}
