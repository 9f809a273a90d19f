package superframe_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/logging"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/rimage"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/rimage/transform"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/ros"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/superframe"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/superframe/fake"
)

const (
	fixturePath   = "fake/testdata/frame.json"
	intrinsicsDir = "fake/testdata"
)

func fixtureConfig() superframe.Config {
	return superframe.Config{Path: fixturePath, IntrinsicsDir: intrinsicsDir}
}

func TestParserFixture(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dec := fake.NewDecoder(fake.Config{}, logger)

	p, err := superframe.NewParser(context.Background(), fixtureConfig(), dec, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dec.Outstanding(), test.ShouldEqual, 1)

	stamp := ros.Time{Sec: 10}
	test.That(t, p.Stamp(), test.ShouldResemble, stamp)

	small := p.SmallImage()
	test.That(t, small.Header.Stamp, test.ShouldResemble, stamp)
	test.That(t, small.Header.FrameID, test.ShouldEqual, "camera_fisheye")
	test.That(t, small.Encoding, test.ShouldEqual, rimage.EncodingMono8)
	test.That(t, small.Width, test.ShouldEqual, 8)
	test.That(t, small.Height, test.ShouldEqual, 6)
	test.That(t, small.Step, test.ShouldEqual, 8)
	test.That(t, len(small.Data), test.ShouldEqual, 48)
	test.That(t, small.Data[47], test.ShouldEqual, 128)

	big := p.BigImage()
	test.That(t, big.Header.Stamp, test.ShouldResemble, stamp)
	test.That(t, big.Header.FrameID, test.ShouldEqual, "camera_color")
	test.That(t, big.Encoding, test.ShouldEqual, rimage.EncodingNV21)
	test.That(t, len(big.Data), test.ShouldEqual, 8*6+8*3)

	depth := p.DepthImage()
	test.That(t, depth.Encoding, test.ShouldEqual, rimage.Encoding16UC1)
	test.That(t, depth.Step, test.ShouldEqual, 8)
	test.That(t, len(depth.Data), test.ShouldEqual, 4*3*2)

	cloud := p.PointCloud()
	test.That(t, cloud.Header.Stamp, test.ShouldResemble, stamp)
	test.That(t, cloud.Header.FrameID, test.ShouldEqual, "camera_depth")
	test.That(t, cloud.Width, test.ShouldEqual, 4)
	test.That(t, cloud.Height, test.ShouldEqual, 3)
	test.That(t, cloud.PointStep, test.ShouldEqual, 16)
	test.That(t, cloud.IsDense, test.ShouldBeTrue)
	points, err := cloud.Points()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(points), test.ShouldEqual, 12)
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			test.That(t, points[row*4+col], test.ShouldResemble, r3.Vector{X: float64(col), Y: float64(row), Z: 1})
		}
	}

	imu := p.Imu()
	test.That(t, imu.Header.Stamp, test.ShouldResemble, stamp)
	test.That(t, imu.Header.FrameID, test.ShouldEqual, "imu")
	test.That(t, imu.Orientation, test.ShouldResemble, ros.Quaternion{W: 1})
	test.That(t, imu.AngularVelocity, test.ShouldResemble, ros.Vector3{X: 0.01, Y: -0.02, Z: 0.03})
	test.That(t, imu.LinearAcceleration, test.ShouldResemble, ros.Vector3{X: 0.1, Y: 9.81, Z: -0.2})

	fisheye := p.SmallCameraInfo()
	test.That(t, fisheye.Header.FrameID, test.ShouldEqual, "camera_fisheye")
	test.That(t, fisheye.Width, test.ShouldEqual, 8)
	test.That(t, fisheye.K, test.ShouldResemble, [9]float64{5.5, 0, 3.5, 0, 5.5, 2.5, 0, 0, 1})
	narrow := p.BigCameraInfo()
	test.That(t, narrow.Header.FrameID, test.ShouldEqual, "camera_color")
	test.That(t, narrow.K[0], test.ShouldEqual, 7.25)

	frame, err := p.RawFrame()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frame.Version, test.ShouldEqual, superframe.FormatVersionPeanut)
	test.That(t, frame.Timestamp, test.ShouldEqual, 1800000000)

	test.That(t, p.Close(), test.ShouldBeNil)
	test.That(t, p.Close(), test.ShouldBeNil)
	test.That(t, dec.Opened(), test.ShouldEqual, 1)
	test.That(t, dec.Released(), test.ShouldEqual, 1)

	_, err = p.RawFrame()
	test.That(t, errors.Is(err, superframe.ErrClosed), test.ShouldBeTrue)
	// messages outlive the frame
	test.That(t, len(p.SmallImage().Data), test.ShouldEqual, 48)
}

func writeFixture(t *testing.T, fixture fake.Fixture) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frame.json")
	test.That(t, fake.WriteFixture(path, fixture), test.ShouldBeNil)
	return path
}

func writeIntrinsics(t *testing.T, dir string, sensor transform.Sensor, intrinsics transform.CameraIntrinsics) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, transform.DefaultIntrinsicsFile(sensor)))
	test.That(t, err, test.ShouldBeNil)
	_, err = intrinsics.WriteTo(f)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f.Close(), test.ShouldBeNil)
}

func uniformDepthFixture(width, height int, depth uint16) fake.Fixture {
	return fake.Fixture{
		Version:    uint32(superframe.FormatVersionPeanut),
		Timestamp:  360,
		SmallImage: fake.Image{Width: 2, Height: 2, Stride: 2, Encoding: rimage.EncodingMono8},
		BigImage:   fake.Image{Width: 2, Height: 2, Stride: 6, Encoding: rimage.EncodingRGB8},
		Depth:      fake.Depth{Width: width, Height: height, Fill: depth},
		IMU:        fake.IMU{Orientation: [4]float64{1, 0, 0, 0}},
	}
}

func TestParserUniformDepthProjection(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dec := fake.NewDecoder(fake.Config{}, logger)

	dir := t.TempDir()
	writeIntrinsics(t, dir, transform.SensorDepth, transform.CameraIntrinsics{Width: 6, Height: 5, Fx: 1, Fy: 1})
	writeIntrinsics(t, dir, transform.SensorFisheye, transform.CameraIntrinsics{Width: 2, Height: 2, Fx: 1, Fy: 1})
	writeIntrinsics(t, dir, transform.SensorNarrow, transform.CameraIntrinsics{Width: 2, Height: 2, Fx: 1, Fy: 1})

	for _, tc := range []struct {
		depth  uint16
		meters float64
	}{
		{1000, 1},
		{2000, 2},
		{500, 0.5},
	} {
		path := writeFixture(t, uniformDepthFixture(6, 5, tc.depth))
		p, err := superframe.NewParser(context.Background(), superframe.Config{Path: path, IntrinsicsDir: dir}, dec, logger)
		test.That(t, err, test.ShouldBeNil)

		test.That(t, p.Stamp(), test.ShouldResemble, ros.Time{Nsec: 2000})
		cloud, err := p.PointCloud().ToPointCloud()
		test.That(t, err, test.ShouldBeNil)
		organized, ok := cloud.(interface {
			At(col, row int) r3.Vector
		})
		test.That(t, ok, test.ShouldBeTrue)
		for row := 0; row < 5; row++ {
			for col := 0; col < 6; col++ {
				p := organized.At(col, row)
				test.That(t, p.X, test.ShouldAlmostEqual, float64(col)*tc.meters)
				test.That(t, p.Y, test.ShouldAlmostEqual, float64(row)*tc.meters)
				test.That(t, p.Z, test.ShouldAlmostEqual, tc.meters)
			}
		}
		test.That(t, p.Close(), test.ShouldBeNil)
	}
	test.That(t, dec.Outstanding(), test.ShouldEqual, 0)
}

func TestParserInvalidDepth(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dec := fake.NewDecoder(fake.Config{}, logger)

	fixture := uniformDepthFixture(4, 3, 0)
	fixture.Depth.Values = []uint16{
		1000, 0, 1000, 1000,
		0, 1000, 1000, 1000,
		1000, 1000, 1000, 0,
	}
	path := writeFixture(t, fixture)

	conf := fixtureConfig()
	conf.Path = path
	p, err := superframe.NewParser(context.Background(), conf, dec, logger)
	test.That(t, err, test.ShouldBeNil)
	cloud := p.PointCloud()
	test.That(t, cloud.Width, test.ShouldEqual, 4)
	test.That(t, cloud.Height, test.ShouldEqual, 3)
	test.That(t, cloud.IsDense, test.ShouldBeFalse)
	points, err := cloud.Points()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, math.IsNaN(points[1].Z), test.ShouldBeTrue)
	test.That(t, points[2], test.ShouldResemble, r3.Vector{X: 2, Y: 0, Z: 1})
	test.That(t, p.Close(), test.ShouldBeNil)

	conf.InvalidDepth = rimage.InvalidDepthSkip
	p, err = superframe.NewParser(context.Background(), conf, dec, logger)
	test.That(t, err, test.ShouldBeNil)
	cloud = p.PointCloud()
	test.That(t, cloud.Width, test.ShouldEqual, 9)
	test.That(t, cloud.Height, test.ShouldEqual, 1)
	test.That(t, cloud.IsDense, test.ShouldBeTrue)
	test.That(t, p.Close(), test.ShouldBeNil)
}

func TestParserMissingIntrinsics(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dec := fake.NewDecoder(fake.Config{}, logger)

	dir := t.TempDir()
	writeIntrinsics(t, dir, transform.SensorFisheye, transform.CameraIntrinsics{Width: 2, Height: 2, Fx: 1, Fy: 1})
	test.That(t, os.WriteFile(filepath.Join(dir, "narrow_intrinsics.txt"), []byte("8 6 7.25"), 0o600), test.ShouldBeNil)

	p, err := superframe.NewParser(context.Background(), superframe.Config{Path: fixturePath, IntrinsicsDir: dir}, dec, logger)
	test.That(t, p, test.ShouldBeNil)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, os.ErrNotExist), test.ShouldBeTrue)
	test.That(t, errors.Is(err, transform.ErrMissingField), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "depth_intrinsics.txt")
	test.That(t, err.Error(), test.ShouldContainSubstring, "narrow_intrinsics.txt")
	test.That(t, err.Error(), test.ShouldNotContainSubstring, "fisheye_intrinsics.txt")
	test.That(t, dec.Opened(), test.ShouldEqual, 0)

	conf := fixtureConfig()
	conf.FisheyeIntrinsics = filepath.Join(dir, "nope.txt")
	_, err = superframe.NewParser(context.Background(), conf, dec, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "nope.txt")
	test.That(t, dec.Opened(), test.ShouldEqual, 0)
}

func TestParserDecodeFailure(t *testing.T) {
	logger := logging.NewTestLogger(t)

	t.Run("decoder fails", func(t *testing.T) {
		dec := fake.NewDecoder(fake.Config{FailDecode: true}, logger)
		p, err := superframe.NewParser(context.Background(), fixtureConfig(), dec, logger)
		test.That(t, p, test.ShouldBeNil)
		test.That(t, errors.Is(err, superframe.ErrDecode), test.ShouldBeTrue)
		test.That(t, dec.Opened(), test.ShouldEqual, dec.Released())
	})

	t.Run("unreadable file", func(t *testing.T) {
		dec := fake.NewDecoder(fake.Config{}, logger)
		conf := fixtureConfig()
		conf.Path = filepath.Join(t.TempDir(), "missing.json")
		_, err := superframe.NewParser(context.Background(), conf, dec, logger)
		test.That(t, errors.Is(err, superframe.ErrDecode), test.ShouldBeTrue)
		test.That(t, errors.Is(err, os.ErrNotExist), test.ShouldBeTrue)
		test.That(t, dec.Opened(), test.ShouldEqual, 0)
	})

	t.Run("no frame", func(t *testing.T) {
		dec := fake.NewDecoder(fake.Config{NoFrame: true}, logger)
		_, err := superframe.NewParser(context.Background(), fixtureConfig(), dec, logger)
		test.That(t, errors.Is(err, superframe.ErrDecode), test.ShouldBeTrue)
		test.That(t, dec.Opened(), test.ShouldEqual, 1)
		test.That(t, dec.Outstanding(), test.ShouldEqual, 0)
	})

	t.Run("unsupported version", func(t *testing.T) {
		dec := fake.NewDecoder(fake.Config{}, logger)
		fixture := uniformDepthFixture(4, 3, 1000)
		fixture.Version = 0x300
		conf := fixtureConfig()
		conf.Path = writeFixture(t, fixture)
		_, err := superframe.NewParser(context.Background(), conf, dec, logger)
		test.That(t, errors.Is(err, superframe.ErrUnsupportedVersion), test.ShouldBeTrue)
		test.That(t, dec.Opened(), test.ShouldEqual, 1)
		test.That(t, dec.Outstanding(), test.ShouldEqual, 0)
	})

	t.Run("short image buffer", func(t *testing.T) {
		dec := fake.NewDecoder(fake.Config{}, logger)
		fixture := uniformDepthFixture(4, 3, 1000)
		fixture.BigImage.Data = []byte{1, 2, 3}
		conf := fixtureConfig()
		conf.Path = writeFixture(t, fixture)
		_, err := superframe.NewParser(context.Background(), conf, dec, logger)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "big image")
		test.That(t, dec.Outstanding(), test.ShouldEqual, 0)
	})

	t.Run("release failure is reported", func(t *testing.T) {
		dec := fake.NewDecoder(fake.Config{FailRelease: true, NoFrame: true}, logger)
		_, err := superframe.NewParser(context.Background(), fixtureConfig(), dec, logger)
		test.That(t, errors.Is(err, superframe.ErrDecode), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldContainSubstring, "fake release failure")
		test.That(t, dec.Outstanding(), test.ShouldEqual, 0)
	})

	t.Run("canceled context", func(t *testing.T) {
		dec := fake.NewDecoder(fake.Config{}, logger)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := superframe.NewParser(ctx, fixtureConfig(), dec, logger)
		test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
		test.That(t, dec.Opened(), test.ShouldEqual, 0)
	})
}

func TestParserConfigErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dec := fake.NewDecoder(fake.Config{}, logger)

	_, err := superframe.NewParser(context.Background(), superframe.Config{IntrinsicsDir: intrinsicsDir}, dec, logger)
	test.That(t, err, test.ShouldNotBeNil)

	conf := fixtureConfig()
	conf.DepthScale = -1
	_, err = superframe.NewParser(context.Background(), conf, dec, logger)
	test.That(t, err, test.ShouldNotBeNil)

	conf = fixtureConfig()
	conf.InvalidDepth = "zero"
	_, err = superframe.NewParser(context.Background(), conf, dec, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, dec.Outstanding(), test.ShouldEqual, 0)
}

func TestParserDepthSizeWarning(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	dec := fake.NewDecoder(fake.Config{}, logger)

	conf := fixtureConfig()
	conf.Path = writeFixture(t, uniformDepthFixture(2, 2, 1000))
	p, err := superframe.NewParser(context.Background(), conf, dec, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, logs.FilterMessage("depth image size differs from depth intrinsics").Len(), test.ShouldEqual, 1)
	test.That(t, p.Close(), test.ShouldBeNil)
}

func TestParserTimestampOutOfRange(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dec := fake.NewDecoder(fake.Config{}, logger)

	fixture := uniformDepthFixture(4, 3, 1000)
	fixture.Timestamp = math.MaxUint64
	conf := fixtureConfig()
	conf.Path = writeFixture(t, fixture)

	p, err := superframe.NewParser(context.Background(), conf, dec, logger)
	test.That(t, p, test.ShouldBeNil)
	test.That(t, errors.Is(err, ros.ErrTimeOutOfRange), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "timestamp")
	test.That(t, dec.Opened(), test.ShouldEqual, 1)
	test.That(t, dec.Outstanding(), test.ShouldEqual, 0)
}

func TestParserDepthTooLarge(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dec := fake.NewDecoder(fake.Config{}, logger)

	fixture := uniformDepthFixture(4, 3, 1000)
	fixture.Depth = fake.Depth{Width: 1 << 32, Height: 1 << 32}
	conf := fixtureConfig()
	conf.Path = writeFixture(t, fixture)

	p, err := superframe.NewParser(context.Background(), conf, dec, logger)
	test.That(t, p, test.ShouldBeNil)
	test.That(t, errors.Is(err, rimage.ErrImageTooLarge), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "point cloud")
	test.That(t, dec.Outstanding(), test.ShouldEqual, 0)
}

// panickingHandle stands in for a decoder binding whose frame cannot be read.
type panickingHandle struct {
	released int
}

func (h *panickingHandle) Frame() *superframe.Frame {
	panic("frame memory unmapped")
}

func (h *panickingHandle) Release() error {
	h.released++
	return nil
}

type panickingDecoder struct {
	handle *panickingHandle
}

func (d *panickingDecoder) Decode(ctx context.Context, path string) (superframe.Handle, error) {
	return d.handle, nil
}

func TestParserReleasesOnPanic(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dec := &panickingDecoder{handle: &panickingHandle{}}

	test.That(t, func() {
		//nolint:errcheck
		superframe.NewParser(context.Background(), fixtureConfig(), dec, logger)
	}, test.ShouldPanic)
	test.That(t, dec.handle.released, test.ShouldEqual, 1)
}
