// Package pointcloud defines the point clouds produced by back projecting depth images and
// reads and writes them as PCD files.
//
// Points are in meters in the optical frame of the sensor that produced them. An invalid
// point (a pixel without depth) is stored as a vector of NaNs.
package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
)

// MetaData is data about what's stored in the point cloud.
type MetaData struct {
	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64

	// Invalid counts the NaN points of the cloud.
	Invalid int

	inited bool // just to prevent someone creating the wrong way
}

// PointCloud is a collection of points laid out Width() x Height(). A cloud with a height of
// one is unorganized; otherwise point i is the pixel (i % Width, i / Width) of its source image.
type PointCloud interface {
	// Size returns the number of points in the cloud, valid or not.
	Size() int
	Width() int
	Height() int

	// IsDense reports whether every point is finite.
	IsDense() bool

	MetaData() MetaData

	// Iterate iterates over all points in the cloud in row-major order and calls the given
	// function for each point. If the supplied function returns false, iteration will stop
	// after the function returns.
	// numBatches lets you divide up the work. 0 means don't divide
	// myBatch is used iff numBatches > 0 and is which batch you want
	Iterate(numBatches, myBatch int, fn func(i int, p r3.Vector) bool)
}

// InvalidPoint is the value stored for pixels without a depth reading.
func InvalidPoint() r3.Vector {
	nan := math.NaN()
	return r3.Vector{X: nan, Y: nan, Z: nan}
}

// IsValid reports whether every coordinate of p is finite.
func IsValid(p r3.Vector) bool {
	for _, v := range []float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// NewMetaData creates a new MetaData.
func NewMetaData() MetaData {
	return MetaData{
		MinX:   math.MaxFloat64,
		MinY:   math.MaxFloat64,
		MinZ:   math.MaxFloat64,
		MaxX:   -math.MaxFloat64,
		MaxY:   -math.MaxFloat64,
		MaxZ:   -math.MaxFloat64,
		inited: true,
	}
}

// Merge updates the meta data with the new point.
func (meta *MetaData) Merge(v r3.Vector) {
	if !meta.inited {
		panic("MetaData not inited")
	}
	if !IsValid(v) {
		meta.Invalid++
		return
	}

	if v.X > meta.MaxX {
		meta.MaxX = v.X
	}
	if v.Y > meta.MaxY {
		meta.MaxY = v.Y
	}
	if v.Z > meta.MaxZ {
		meta.MaxZ = v.Z
	}

	if v.X < meta.MinX {
		meta.MinX = v.X
	}
	if v.Y < meta.MinY {
		meta.MinY = v.Y
	}
	if v.Z < meta.MinZ {
		meta.MinZ = v.Z
	}
}

// batchRange returns the [start, end) slice of size elements handled by myBatch.
func batchRange(size, numBatches, myBatch int) (int, int) {
	if numBatches <= 0 {
		return 0, size
	}
	batchSize := (size + numBatches - 1) / numBatches
	start := myBatch * batchSize
	end := start + batchSize
	if start > size {
		start = size
	}
	if end > size {
		end = size
	}
	return start, end
}

// Points returns a copy of every point of the cloud in row-major order.
func Points(cloud PointCloud) []r3.Vector {
	out := make([]r3.Vector, 0, cloud.Size())
	cloud.Iterate(0, 0, func(_ int, p r3.Vector) bool {
		out = append(out, p)
		return true
	})
	return out
}
