package rimage

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/lmittmann/ppm"
	"github.com/xfmoulet/qoi"
	"go.viam.com/test"
)

func testGradient() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 8, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x*30 + y)})
		}
	}
	return img
}

func TestParseImageFormat(t *testing.T) {
	for _, name := range []string{"png", ".PNG", "ppm", "qoi"} {
		_, err := ParseImageFormat(name)
		test.That(t, err, test.ShouldBeNil)
	}
	_, err := ParseImageFormat("jpeg")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestWriteImageToFile(t *testing.T) {
	src := testGradient()
	dir := t.TempDir()

	decoders := map[string]func(f *os.File) (image.Image, error){
		"out.png": func(f *os.File) (image.Image, error) { return png.Decode(f) },
		"out.ppm": func(f *os.File) (image.Image, error) { return ppm.Decode(f) },
		"out.qoi": func(f *os.File) (image.Image, error) { return qoi.Decode(f) },
	}
	for name, decode := range decoders {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			test.That(t, WriteImageToFile(path, src), test.ShouldBeNil)

			//nolint:gosec
			f, err := os.Open(path)
			test.That(t, err, test.ShouldBeNil)
			defer f.Close()

			decoded, err := decode(f)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, decoded.Bounds(), test.ShouldResemble, src.Bounds())
			for y := 0; y < 4; y++ {
				for x := 0; x < 8; x++ {
					got := color.GrayModel.Convert(decoded.At(x, y)).(color.Gray)
					test.That(t, got, test.ShouldResemble, src.GrayAt(x, y))
				}
			}
		})
	}

	test.That(t, WriteImageToFile(filepath.Join(dir, "out.bmp"), src), test.ShouldNotBeNil)
}

func TestDepthMapAsPNG(t *testing.T) {
	dm, err := NewDepthMapFromValues(2, 1, []uint16{1234, 65535})
	test.That(t, err, test.ShouldBeNil)
	path := filepath.Join(t.TempDir(), "depth.png")
	test.That(t, WriteImageToFile(path, dm), test.ShouldBeNil)

	//nolint:gosec
	f, err := os.Open(path)
	test.That(t, err, test.ShouldBeNil)
	defer f.Close()
	decoded, err := png.Decode(f)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, decoded.At(0, 0), test.ShouldResemble, color.Gray16{Y: 1234})
	test.That(t, decoded.At(1, 0), test.ShouldResemble, color.Gray16{Y: 65535})
}
