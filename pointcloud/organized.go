package pointcloud

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Organized is a point cloud with the layout of the image it was projected from. Every slot
// starts out invalid.
type Organized struct {
	width, height int
	points        []r3.Vector
}

// NewOrganized returns a width x height cloud of invalid points.
func NewOrganized(width, height int) *Organized {
	points := make([]r3.Vector, width*height)
	for i := range points {
		points[i] = InvalidPoint()
	}
	return &Organized{width: width, height: height, points: points}
}

// Size returns width*height.
func (cloud *Organized) Size() int {
	return len(cloud.points)
}

// Width returns the number of columns.
func (cloud *Organized) Width() int {
	return cloud.width
}

// Height returns the number of rows.
func (cloud *Organized) Height() int {
	return cloud.height
}

// IsDense reports whether no slot holds an invalid point.
func (cloud *Organized) IsDense() bool {
	for _, p := range cloud.points {
		if !IsValid(p) {
			return false
		}
	}
	return true
}

// MetaData computes the bounds of the valid points.
func (cloud *Organized) MetaData() MetaData {
	meta := NewMetaData()
	for _, p := range cloud.points {
		meta.Merge(p)
	}
	return meta
}

// Set stores p at the pixel (col, row). Distinct pixels may be set concurrently.
func (cloud *Organized) Set(col, row int, p r3.Vector) error {
	if col < 0 || col >= cloud.width || row < 0 || row >= cloud.height {
		return errors.Errorf("pixel (%d, %d) is outside of a %dx%d cloud", col, row, cloud.width, cloud.height)
	}
	cloud.points[row*cloud.width+col] = p
	return nil
}

// At returns the point of pixel (col, row), or an invalid point when out of bounds.
func (cloud *Organized) At(col, row int) r3.Vector {
	if col < 0 || col >= cloud.width || row < 0 || row >= cloud.height {
		return InvalidPoint()
	}
	return cloud.points[row*cloud.width+col]
}

// Iterate calls fn for every slot in row-major order.
func (cloud *Organized) Iterate(numBatches, myBatch int, fn func(i int, p r3.Vector) bool) {
	start, end := batchRange(len(cloud.points), numBatches, myBatch)
	for i := start; i < end; i++ {
		if !fn(i, cloud.points[i]) {
			return
		}
	}
}

// Compact returns an unorganized cloud holding only the valid points, in row-major order.
func (cloud *Organized) Compact() PointCloud {
	out := NewWithPrealloc(len(cloud.points))
	for _, p := range cloud.points {
		if IsValid(p) {
			out.Append(p)
		}
	}
	return out
}
