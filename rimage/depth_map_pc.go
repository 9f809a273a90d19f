package rimage

import (
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/pointcloud"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/rimage/transform"
)

// DefaultDepthScale converts millimeter depths to meters.
const DefaultDepthScale = 0.001

// InvalidDepthPolicy decides what becomes of pixels without a depth reading.
type InvalidDepthPolicy string

const (
	// InvalidDepthNaN keeps the width x height layout and stores a NaN point for such pixels.
	InvalidDepthNaN InvalidDepthPolicy = "nan"
	// InvalidDepthSkip drops such pixels and yields an unorganized 1 x N cloud.
	InvalidDepthSkip InvalidDepthPolicy = "skip"
)

// ParseInvalidDepthPolicy parses a policy name. The empty string selects InvalidDepthNaN.
func ParseInvalidDepthPolicy(name string) (InvalidDepthPolicy, error) {
	switch InvalidDepthPolicy(strings.ToLower(name)) {
	case "", InvalidDepthNaN:
		return InvalidDepthNaN, nil
	case InvalidDepthSkip:
		return InvalidDepthSkip, nil
	default:
		return "", errors.Errorf("unknown invalid depth policy %q, expected %q or %q", name, InvalidDepthNaN, InvalidDepthSkip)
	}
}

// DepthMapToPointCloud back projects every pixel of dm through the pinhole model of
// intrinsics. A pixel's depth times scale gives z; zero depths are invalid and handled
// according to policy.
func DepthMapToPointCloud(
	dm *DepthMap,
	intrinsics *transform.CameraIntrinsics,
	scale float64,
	policy InvalidDepthPolicy,
) (pointcloud.PointCloud, error) {
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	if scale <= 0 {
		return nil, errors.Errorf("depth scale must be positive, got %v", scale)
	}
	if policy != InvalidDepthNaN && policy != InvalidDepthSkip {
		return nil, errors.Errorf("unknown invalid depth policy %q", policy)
	}

	organized := pointcloud.NewOrganized(dm.Width(), dm.Height())
	var group errgroup.Group
	const numLoops = 8
	for loop := 0; loop < numLoops; loop++ {
		group.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = errors.Errorf("panic projecting rows %d mod %d: %v", loop, numLoops, r)
				}
			}()
			for row := loop; row < dm.Height(); row += numLoops {
				for col := 0; col < dm.Width(); col++ {
					z := dm.GetDepth(col, row)
					if z == 0 {
						continue
					}
					pt := intrinsics.PixelToPoint(float64(col), float64(row), float64(z)*scale)
					// in bounds by construction
					//nolint:errcheck
					organized.Set(col, row, pt)
				}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	if policy == InvalidDepthSkip {
		return organized.Compact(), nil
	}
	return organized, nil
}
