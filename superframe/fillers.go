package superframe

import (
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/rimage"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/rimage/transform"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/ros"
)

// fillImage copies a decoded image. The geometry comes from the frame, not from the
// intrinsics.
func fillImage(header ros.Header, raw RawImage) (*ros.Image, error) {
	return ros.NewImage(header, raw.Encoding, raw.Width, raw.Height, raw.Stride, raw.Data)
}

// fillPointCloud builds the 16UC1 depth image of raw and back projects it.
func fillPointCloud(
	header ros.Header,
	raw RawDepth,
	intrinsics *transform.CameraIntrinsics,
	scale float64,
	policy rimage.InvalidDepthPolicy,
) (*ros.Image, *ros.PointCloud2, error) {
	dm, err := rimage.NewDepthMapFromValues(raw.Width, raw.Height, raw.Values)
	if err != nil {
		return nil, nil, err
	}
	depthImage, err := ros.NewImage(header, rimage.Encoding16UC1, raw.Width, raw.Height, 2*raw.Width, dm.Bytes())
	if err != nil {
		return nil, nil, err
	}
	depth, err := rimage.NewDepthMapFromBytes(
		int(depthImage.Width), int(depthImage.Height), int(depthImage.Step), depthImage.IsBigEndian != 0, depthImage.Data)
	if err != nil {
		return nil, nil, err
	}
	cloud, err := rimage.DepthMapToPointCloud(depth, intrinsics, scale, policy)
	if err != nil {
		return nil, nil, err
	}
	return depthImage, ros.NewPointCloud2(header, cloud), nil
}

func fillImu(header ros.Header, sample IMUSample) *ros.Imu {
	return ros.NewImu(header, sample.Orientation, sample.AngularVelocity, sample.LinearAcceleration)
}
