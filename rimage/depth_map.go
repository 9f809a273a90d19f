package rimage

import (
	"encoding/binary"
	"image"
	"image/color"

	"github.com/pkg/errors"
)

// Depth is the depth in millimeters of a single pixel. Zero means no reading.
type Depth uint16

// MaxDepth is the largest depth a DepthMap can hold.
const MaxDepth = Depth(65535)

// DepthMap is a row-major grid of depths. It implements image.Image as 16-bit gray so it can
// be written with any image encoder.
type DepthMap struct {
	width  int
	height int

	data []Depth
}

// NewEmptyDepthMap returns an all-zero depth map.
func NewEmptyDepthMap(width, height int) *DepthMap {
	return &DepthMap{
		width:  width,
		height: height,
		data:   make([]Depth, width*height),
	}
}

// NewDepthMapFromValues copies values, which must hold width*height row-major depths.
func NewDepthMapFromValues(width, height int, values []uint16) (*DepthMap, error) {
	if err := CheckDimensions(width, height); err != nil {
		return nil, err
	}
	if len(values) != width*height {
		return nil, errors.Errorf("depth buffer of %d values does not match %dx%d", len(values), width, height)
	}
	dm := NewEmptyDepthMap(width, height)
	for i, v := range values {
		dm.data[i] = Depth(v)
	}
	return dm, nil
}

// NewDepthMapFromBytes decodes a 16UC1 buffer with the given row step.
func NewDepthMapFromBytes(width, height, step int, bigEndian bool, data []byte) (*DepthMap, error) {
	size, err := BufferSize(Encoding16UC1, width, height, step)
	if err != nil {
		return nil, err
	}
	if len(data) < size {
		return nil, errors.Errorf("16UC1 buffer of %d bytes is too small for %dx%d (step %d)", len(data), width, height, step)
	}
	var order binary.ByteOrder = binary.LittleEndian
	if bigEndian {
		order = binary.BigEndian
	}
	dm := NewEmptyDepthMap(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dm.data[y*width+x] = Depth(order.Uint16(data[y*step+2*x:]))
		}
	}
	return dm, nil
}

// Width returns the number of columns.
func (dm *DepthMap) Width() int {
	return dm.width
}

// Height returns the number of rows.
func (dm *DepthMap) Height() int {
	return dm.height
}

// GetDepth returns the depth at column x, row y.
func (dm *DepthMap) GetDepth(x, y int) Depth {
	return dm.data[y*dm.width+x]
}

// Set sets the depth at column x, row y.
func (dm *DepthMap) Set(x, y int, val Depth) {
	dm.data[y*dm.width+x] = val
}

// Bytes returns the depths as a little endian 16UC1 buffer with step 2*width.
func (dm *DepthMap) Bytes() []byte {
	out := make([]byte, 2*len(dm.data))
	for i, d := range dm.data {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(d))
	}
	return out
}

// MinMax returns the smallest non-zero and the largest depth, or zeros if there is no reading.
func (dm *DepthMap) MinMax() (Depth, Depth) {
	var lo, hi Depth
	for _, d := range dm.data {
		if d == 0 {
			continue
		}
		if lo == 0 || d < lo {
			lo = d
		}
		if d > hi {
			hi = d
		}
	}
	return lo, hi
}

// ColorModel is 16-bit gray.
func (dm *DepthMap) ColorModel() color.Model {
	return color.Gray16Model
}

// Bounds returns the rectangle (0,0)-(width,height).
func (dm *DepthMap) Bounds() image.Rectangle {
	return image.Rect(0, 0, dm.width, dm.height)
}

// At returns the depth as a color.Gray16.
func (dm *DepthMap) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(dm.Bounds())) {
		return color.Gray16{}
	}
	return color.Gray16{Y: uint16(dm.GetDepth(x, y))}
}
