// Package ros implements the ROS 1 messages a super frame is published as, their wire
// encoding, and reading and writing of bag files.
package ros

import (
	"encoding/binary"
	"image"
	"io"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/pointcloud"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/rimage"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/rimage/transform"
)

// Message is a ROS 1 message that can be stored in a bag.
type Message interface {
	// Type is the full message type name, e.g. "sensor_msgs/Image".
	Type() string
	MD5Sum() string
	Definition() string
	// MarshalROS writes the ROS 1 serialization of the message.
	MarshalROS(w io.Writer) error
}

// Header is std_msgs/Header.
type Header struct {
	Seq     uint32 `json:"seq"`
	Stamp   Time   `json:"stamp"`
	FrameID string `json:"frame_id"`
}

// Image is sensor_msgs/Image.
type Image struct {
	Header      Header `json:"header"`
	Height      uint32 `json:"height"`
	Width       uint32 `json:"width"`
	Encoding    string `json:"encoding"`
	IsBigEndian uint8  `json:"is_bigendian"`
	Step        uint32 `json:"step"`
	Data        []byte `json:"data"`
}

// NewImage copies data into a new Image after checking that it holds a full buffer of the
// given geometry.
func NewImage(header Header, encoding string, width, height, step int, data []byte) (*Image, error) {
	size, err := rimage.BufferSize(encoding, width, height, step)
	if err != nil {
		return nil, err
	}
	if len(data) != size {
		return nil, errors.Errorf("%s image %dx%d with step %d needs %d bytes, got %d",
			encoding, width, height, step, size, len(data))
	}
	return &Image{
		Header:   header,
		Height:   uint32(height),
		Width:    uint32(width),
		Encoding: encoding,
		Step:     uint32(step),
		Data:     append([]byte(nil), data...),
	}, nil
}

// Type implements Message.
func (img *Image) Type() string { return "sensor_msgs/Image" }

// MD5Sum implements Message.
func (img *Image) MD5Sum() string { return "060021388200f6f0f447d0fcd9c64743" }

// Definition implements Message.
func (img *Image) Definition() string { return imageDefinition }

// MarshalROS implements Message.
func (img *Image) MarshalROS(w io.Writer) error {
	e := newEncoder(w)
	e.header(img.Header)
	e.uint32(img.Height)
	e.uint32(img.Width)
	e.string(img.Encoding)
	e.uint8(img.IsBigEndian)
	e.uint32(img.Step)
	e.bytes(img.Data)
	return e.err
}

// ToImage converts the pixel buffer to a Go image.
func (img *Image) ToImage() (image.Image, error) {
	if img.Encoding == rimage.Encoding16UC1 || img.Encoding == rimage.EncodingMono16 {
		dm, err := rimage.NewDepthMapFromBytes(int(img.Width), int(img.Height), int(img.Step), img.IsBigEndian != 0, img.Data)
		if err != nil {
			return nil, err
		}
		return dm, nil
	}
	return rimage.ToImage(img.Encoding, int(img.Width), int(img.Height), int(img.Step), img.Data)
}

// RegionOfInterest is sensor_msgs/RegionOfInterest.
type RegionOfInterest struct {
	XOffset   uint32 `json:"x_offset"`
	YOffset   uint32 `json:"y_offset"`
	Height    uint32 `json:"height"`
	Width     uint32 `json:"width"`
	DoRectify bool   `json:"do_rectify"`
}

// DistortionModelFOV is the field of view model of Devernay and Faugeras used by the Tango
// fisheye camera. D holds the single parameter omega.
const DistortionModelFOV = "fov"

// CameraInfo is sensor_msgs/CameraInfo.
type CameraInfo struct {
	Header          Header           `json:"header"`
	Height          uint32           `json:"height"`
	Width           uint32           `json:"width"`
	DistortionModel string           `json:"distortion_model"`
	D               []float64        `json:"D"`
	K               [9]float64       `json:"K"`
	R               [9]float64       `json:"R"`
	P               [12]float64      `json:"P"`
	BinningX        uint32           `json:"binning_x"`
	BinningY        uint32           `json:"binning_y"`
	ROI             RegionOfInterest `json:"roi"`
}

// NewCameraInfo describes a camera with the given intrinsics. R is the identity since the
// Tango cameras are monocular.
func NewCameraInfo(header Header, intrinsics *transform.CameraIntrinsics) *CameraInfo {
	return &CameraInfo{
		Header:          header,
		Height:          uint32(intrinsics.Height),
		Width:           uint32(intrinsics.Width),
		DistortionModel: DistortionModelFOV,
		D:               []float64{intrinsics.Omega},
		K:               intrinsics.CameraMatrix(),
		R:               [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		P:               intrinsics.ProjectionMatrix(),
	}
}

// Type implements Message.
func (ci *CameraInfo) Type() string { return "sensor_msgs/CameraInfo" }

// MD5Sum implements Message.
func (ci *CameraInfo) MD5Sum() string { return "c9a58c1b0b154e0e6da7578cb991d214" }

// Definition implements Message.
func (ci *CameraInfo) Definition() string { return cameraInfoDefinition }

// MarshalROS implements Message.
func (ci *CameraInfo) MarshalROS(w io.Writer) error {
	e := newEncoder(w)
	e.header(ci.Header)
	e.uint32(ci.Height)
	e.uint32(ci.Width)
	e.string(ci.DistortionModel)
	e.uint32(uint32(len(ci.D)))
	e.float64s(ci.D)
	e.float64s(ci.K[:])
	e.float64s(ci.R[:])
	e.float64s(ci.P[:])
	e.uint32(ci.BinningX)
	e.uint32(ci.BinningY)
	e.uint32(ci.ROI.XOffset)
	e.uint32(ci.ROI.YOffset)
	e.uint32(ci.ROI.Height)
	e.uint32(ci.ROI.Width)
	e.bool(ci.ROI.DoRectify)
	return e.err
}

// PointField datatypes.
const (
	PointFieldInt8    uint8 = 1
	PointFieldUint8   uint8 = 2
	PointFieldInt16   uint8 = 3
	PointFieldUint16  uint8 = 4
	PointFieldInt32   uint8 = 5
	PointFieldUint32  uint8 = 6
	PointFieldFloat32 uint8 = 7
	PointFieldFloat64 uint8 = 8
)

// PointField is sensor_msgs/PointField.
type PointField struct {
	Name     string `json:"name"`
	Offset   uint32 `json:"offset"`
	Datatype uint8  `json:"datatype"`
	Count    uint32 `json:"count"`
}

// PointCloud2 is sensor_msgs/PointCloud2.
type PointCloud2 struct {
	Header      Header       `json:"header"`
	Height      uint32       `json:"height"`
	Width       uint32       `json:"width"`
	Fields      []PointField `json:"fields"`
	IsBigEndian bool         `json:"is_bigendian"`
	PointStep   uint32       `json:"point_step"`
	RowStep     uint32       `json:"row_step"`
	Data        []byte       `json:"data"`
	IsDense     bool         `json:"is_dense"`
}

// xyzPointStep is the size of one x y z point; the last four bytes are padding.
const xyzPointStep = 16

// XYZFields are the fields of the clouds produced from depth images.
func XYZFields() []PointField {
	return []PointField{
		{Name: "x", Offset: 0, Datatype: PointFieldFloat32, Count: 1},
		{Name: "y", Offset: 4, Datatype: PointFieldFloat32, Count: 1},
		{Name: "z", Offset: 8, Datatype: PointFieldFloat32, Count: 1},
	}
}

// NewPointCloud2 packs the points of cloud as little endian float32 x y z, keeping the
// cloud's width and height.
func NewPointCloud2(header Header, cloud pointcloud.PointCloud) *PointCloud2 {
	width, height := uint32(cloud.Width()), uint32(cloud.Height())
	if cloud.Size() == 0 {
		width, height = 0, 1
	}
	rowStep := width * xyzPointStep
	data := make([]byte, int(rowStep)*int(height))
	cloud.Iterate(0, 0, func(i int, p r3.Vector) bool {
		off := i * xyzPointStep
		binary.LittleEndian.PutUint32(data[off:], math.Float32bits(float32(p.X)))
		binary.LittleEndian.PutUint32(data[off+4:], math.Float32bits(float32(p.Y)))
		binary.LittleEndian.PutUint32(data[off+8:], math.Float32bits(float32(p.Z)))
		return true
	})
	return &PointCloud2{
		Header:    header,
		Height:    height,
		Width:     width,
		Fields:    XYZFields(),
		PointStep: xyzPointStep,
		RowStep:   rowStep,
		Data:      data,
		IsDense:   cloud.IsDense(),
	}
}

// Type implements Message.
func (pc *PointCloud2) Type() string { return "sensor_msgs/PointCloud2" }

// MD5Sum implements Message.
func (pc *PointCloud2) MD5Sum() string { return "1158d486dd51d683ce2f1be655c3c181" }

// Definition implements Message.
func (pc *PointCloud2) Definition() string { return pointCloud2Definition }

// MarshalROS implements Message.
func (pc *PointCloud2) MarshalROS(w io.Writer) error {
	e := newEncoder(w)
	e.header(pc.Header)
	e.uint32(pc.Height)
	e.uint32(pc.Width)
	e.uint32(uint32(len(pc.Fields)))
	for _, f := range pc.Fields {
		e.string(f.Name)
		e.uint32(f.Offset)
		e.uint8(f.Datatype)
		e.uint32(f.Count)
	}
	e.bool(pc.IsBigEndian)
	e.uint32(pc.PointStep)
	e.uint32(pc.RowStep)
	e.bytes(pc.Data)
	e.bool(pc.IsDense)
	return e.err
}

// Points decodes the x y z float32 fields of every point in row-major order.
func (pc *PointCloud2) Points() ([]r3.Vector, error) {
	var offsets [3]int
	for i, name := range []string{"x", "y", "z"} {
		found := false
		for _, f := range pc.Fields {
			if f.Name == name {
				if f.Datatype != PointFieldFloat32 {
					return nil, errors.Errorf("field %q has datatype %d, expected float32", name, f.Datatype)
				}
				offsets[i] = int(f.Offset)
				found = true
			}
		}
		if !found {
			return nil, errors.Errorf("point cloud has no %q field", name)
		}
	}
	if pc.IsBigEndian {
		return nil, errors.New("big endian point clouds are not supported")
	}
	if int(pc.RowStep)*int(pc.Height) != len(pc.Data) {
		return nil, errors.Errorf("point cloud data of %d bytes does not match row step %d and height %d",
			len(pc.Data), pc.RowStep, pc.Height)
	}

	points := make([]r3.Vector, 0, int(pc.Width)*int(pc.Height))
	read := func(off int) float64 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(pc.Data[off:])))
	}
	for row := 0; row < int(pc.Height); row++ {
		for col := 0; col < int(pc.Width); col++ {
			base := row*int(pc.RowStep) + col*int(pc.PointStep)
			points = append(points, r3.Vector{X: read(base + offsets[0]), Y: read(base + offsets[1]), Z: read(base + offsets[2])})
		}
	}
	return points, nil
}

// ToPointCloud converts the message back to a point cloud, organized when its height is
// greater than one.
func (pc *PointCloud2) ToPointCloud() (pointcloud.PointCloud, error) {
	points, err := pc.Points()
	if err != nil {
		return nil, err
	}
	if pc.Height > 1 {
		organized := pointcloud.NewOrganized(int(pc.Width), int(pc.Height))
		for i, p := range points {
			if err := organized.Set(i%int(pc.Width), i/int(pc.Width), p); err != nil {
				return nil, err
			}
		}
		return organized, nil
	}
	cloud := pointcloud.NewWithPrealloc(len(points))
	for _, p := range points {
		cloud.Append(p)
	}
	return cloud, nil
}

// Quaternion is geometry_msgs/Quaternion.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Vector3 is geometry_msgs/Vector3.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Imu is sensor_msgs/Imu. Zero covariances mean the covariance is unknown.
type Imu struct {
	Header                       Header     `json:"header"`
	Orientation                  Quaternion `json:"orientation"`
	OrientationCovariance        [9]float64 `json:"orientation_covariance"`
	AngularVelocity              Vector3    `json:"angular_velocity"`
	AngularVelocityCovariance    [9]float64 `json:"angular_velocity_covariance"`
	LinearAcceleration           Vector3    `json:"linear_acceleration"`
	LinearAccelerationCovariance [9]float64 `json:"linear_acceleration_covariance"`
}

// NewImu builds an Imu message from an orientation, an angular velocity in rad/s and a
// linear acceleration in m/s^2.
func NewImu(header Header, orientation quat.Number, angularVelocity, linearAcceleration r3.Vector) *Imu {
	return &Imu{
		Header: header,
		Orientation: Quaternion{
			X: orientation.Imag,
			Y: orientation.Jmag,
			Z: orientation.Kmag,
			W: orientation.Real,
		},
		AngularVelocity:    Vector3{X: angularVelocity.X, Y: angularVelocity.Y, Z: angularVelocity.Z},
		LinearAcceleration: Vector3{X: linearAcceleration.X, Y: linearAcceleration.Y, Z: linearAcceleration.Z},
	}
}

// Type implements Message.
func (imu *Imu) Type() string { return "sensor_msgs/Imu" }

// MD5Sum implements Message.
func (imu *Imu) MD5Sum() string { return "6a62c6daae103f4ff57a132d6f95cec2" }

// Definition implements Message.
func (imu *Imu) Definition() string { return imuDefinition }

// MarshalROS implements Message.
func (imu *Imu) MarshalROS(w io.Writer) error {
	e := newEncoder(w)
	e.header(imu.Header)
	e.float64s([]float64{imu.Orientation.X, imu.Orientation.Y, imu.Orientation.Z, imu.Orientation.W})
	e.float64s(imu.OrientationCovariance[:])
	e.float64s([]float64{imu.AngularVelocity.X, imu.AngularVelocity.Y, imu.AngularVelocity.Z})
	e.float64s(imu.AngularVelocityCovariance[:])
	e.float64s([]float64{imu.LinearAcceleration.X, imu.LinearAcceleration.Y, imu.LinearAcceleration.Z})
	e.float64s(imu.LinearAccelerationCovariance[:])
	return e.err
}

// ImuMessage is an Imu message as read back from a bag through ReadBag, with the
// receive time of the record.
type ImuMessage struct {
	Meta struct {
		Secs  int
		Nsecs int
	}
	Data Imu
}
