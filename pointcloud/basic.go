package pointcloud

import (
	"github.com/golang/geo/r3"
)

// BasicPointCloud is an unorganized cloud: a list of points with a height of one.
type BasicPointCloud struct {
	points []r3.Vector
	meta   MetaData
}

// New returns an empty unorganized PointCloud.
func New() *BasicPointCloud {
	return NewWithPrealloc(0)
}

// NewWithPrealloc returns an empty unorganized PointCloud with room for size points.
func NewWithPrealloc(size int) *BasicPointCloud {
	return &BasicPointCloud{
		points: make([]r3.Vector, 0, size),
		meta:   NewMetaData(),
	}
}

func (cloud *BasicPointCloud) Size() int {
	return len(cloud.points)
}

func (cloud *BasicPointCloud) Width() int {
	return len(cloud.points)
}

func (cloud *BasicPointCloud) Height() int {
	return 1
}

func (cloud *BasicPointCloud) IsDense() bool {
	return cloud.meta.Invalid == 0
}

func (cloud *BasicPointCloud) MetaData() MetaData {
	return cloud.meta
}

// Append adds p at the end of the cloud.
func (cloud *BasicPointCloud) Append(p r3.Vector) {
	cloud.points = append(cloud.points, p)
	cloud.meta.Merge(p)
}

func (cloud *BasicPointCloud) Iterate(numBatches, myBatch int, fn func(i int, p r3.Vector) bool) {
	start, end := batchRange(len(cloud.points), numBatches, myBatch)
	for i := start; i < end; i++ {
		if !fn(i, cloud.points[i]) {
			return
		}
	}
}
