package superframe

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/logging"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/rimage"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/rimage/transform"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/ros"
)

// ErrClosed is returned when using a Parser after Close.
var ErrClosed = errors.New("super frame parser is closed")

// FrameIDs are the frame_id values written into message headers.
type FrameIDs struct {
	Small string `json:"small"`
	Big   string `json:"big"`
	Depth string `json:"depth"`
	IMU   string `json:"imu"`
}

// DefaultFrameIDs returns the frame ids used when none are configured.
func DefaultFrameIDs() FrameIDs {
	return FrameIDs{
		Small: "camera_fisheye",
		Big:   "camera_color",
		Depth: "camera_depth",
		IMU:   "imu",
	}
}

// Config selects the super frame to parse and how to interpret it.
type Config struct {
	// Path is the super frame file.
	Path string

	// Intrinsics files. An empty path selects the sensor's default file name inside
	// IntrinsicsDir, e.g. "depth_intrinsics.txt".
	IntrinsicsDir     string
	DepthIntrinsics   string
	FisheyeIntrinsics string
	NarrowIntrinsics  string

	FrameIDs FrameIDs

	// InvalidDepth decides what becomes of pixels without depth; the default keeps an
	// organized cloud of NaN points.
	InvalidDepth rimage.InvalidDepthPolicy
	// DepthScale converts depth units to meters; zero selects millimeters.
	DepthScale float64
}

func (conf Config) withDefaults() Config {
	out := conf
	if out.DepthIntrinsics == "" {
		out.DepthIntrinsics = filepath.Join(conf.IntrinsicsDir, transform.DefaultIntrinsicsFile(transform.SensorDepth))
	}
	if out.FisheyeIntrinsics == "" {
		out.FisheyeIntrinsics = filepath.Join(conf.IntrinsicsDir, transform.DefaultIntrinsicsFile(transform.SensorFisheye))
	}
	if out.NarrowIntrinsics == "" {
		out.NarrowIntrinsics = filepath.Join(conf.IntrinsicsDir, transform.DefaultIntrinsicsFile(transform.SensorNarrow))
	}
	defaults := DefaultFrameIDs()
	if out.FrameIDs.Small == "" {
		out.FrameIDs.Small = defaults.Small
	}
	if out.FrameIDs.Big == "" {
		out.FrameIDs.Big = defaults.Big
	}
	if out.FrameIDs.Depth == "" {
		out.FrameIDs.Depth = defaults.Depth
	}
	if out.FrameIDs.IMU == "" {
		out.FrameIDs.IMU = defaults.IMU
	}
	if out.InvalidDepth == "" {
		out.InvalidDepth = rimage.InvalidDepthNaN
	}
	if out.DepthScale == 0 {
		out.DepthScale = rimage.DefaultDepthScale
	}
	return out
}

// Intrinsics are the camera parameters of the three sensors of a super frame.
type Intrinsics struct {
	Depth   *transform.CameraIntrinsics
	Fisheye *transform.CameraIntrinsics
	Narrow  *transform.CameraIntrinsics
}

// LoadIntrinsics reads the three intrinsics files of conf. Every file is attempted and
// every failure is reported in the returned error.
func LoadIntrinsics(conf Config) (*Intrinsics, error) {
	conf = conf.withDefaults()
	var (
		out  Intrinsics
		errs error
	)
	for _, target := range []struct {
		path string
		dst  **transform.CameraIntrinsics
	}{
		{conf.DepthIntrinsics, &out.Depth},
		{conf.FisheyeIntrinsics, &out.Fisheye},
		{conf.NarrowIntrinsics, &out.Narrow},
	} {
		intrinsics, err := transform.NewCameraIntrinsicsFromTextFile(target.path)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		*target.dst = intrinsics
	}
	if errs != nil {
		return nil, errs
	}
	return &out, nil
}

// Parser decodes one super frame and holds the messages built from it. A Parser is not
// safe for concurrent use; decode files concurrently with one Parser each.
type Parser struct {
	logger logging.Logger
	path   string
	handle Handle
	closed bool

	stamp           ros.Time
	smallImage      *ros.Image
	bigImage        *ros.Image
	depthImage      *ros.Image
	pointCloud      *ros.PointCloud2
	imu             *ros.Imu
	smallCameraInfo *ros.CameraInfo
	bigCameraInfo   *ros.CameraInfo
}

// NewParser loads the intrinsics, decodes conf.Path with dec and builds every message. On
// error no Parser is returned and the decoded frame, if any, has been released.
func NewParser(ctx context.Context, conf Config, dec Decoder, logger logging.Logger) (*Parser, error) {
	if conf.Path == "" {
		return nil, errors.New("super frame path is required")
	}
	conf = conf.withDefaults()
	if conf.DepthScale < 0 {
		return nil, errors.Errorf("depth scale must be positive, got %v", conf.DepthScale)
	}
	policy, err := rimage.ParseInvalidDepthPolicy(string(conf.InvalidDepth))
	if err != nil {
		return nil, err
	}
	conf.InvalidDepth = policy

	intrinsics, err := LoadIntrinsics(conf)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	handle, err := dec.Decode(ctx, conf.Path)
	if err != nil {
		if errors.Is(err, ErrDecode) {
			return nil, err
		}
		return nil, NewDecodeError(conf.Path, err)
	}

	p := &Parser{
		logger: logger,
		path:   conf.Path,
		handle: handle,
	}
	filled := false
	defer func() {
		// a panic while filling still gives the frame back to the decoder
		if !filled {
			goutils.UncheckedError(p.release())
		}
	}()
	if err := p.fill(conf, intrinsics); err != nil {
		return nil, multierr.Combine(
			errors.Wrapf(err, "error converting super frame %q", conf.Path),
			p.release(),
		)
	}
	filled = true
	logger.Debugw("parsed super frame",
		"path", conf.Path,
		"stamp", p.stamp.Seconds(),
		"points", int(p.pointCloud.Width*p.pointCloud.Height))
	return p, nil
}

func (p *Parser) fill(conf Config, intrinsics *Intrinsics) error {
	frame := p.handle.Frame()
	if frame == nil {
		return NewDecodeError(conf.Path, errors.New("decoder returned no frame"))
	}
	seconds, err := TicksToSeconds(frame.Version, frame.Timestamp)
	if err != nil {
		return err
	}
	if p.stamp, err = ros.NewTime(seconds); err != nil {
		return errors.Wrapf(err, "timestamp of %d ticks", frame.Timestamp)
	}

	if p.smallImage, err = fillImage(p.header(conf.FrameIDs.Small), frame.SmallImage); err != nil {
		return errors.Wrap(err, "small image")
	}
	if p.bigImage, err = fillImage(p.header(conf.FrameIDs.Big), frame.BigImage); err != nil {
		return errors.Wrap(err, "big image")
	}

	if frame.Depth.Width != intrinsics.Depth.Width || frame.Depth.Height != intrinsics.Depth.Height {
		p.logger.Warnw("depth image size differs from depth intrinsics",
			"path", conf.Path,
			"depth", []int{frame.Depth.Width, frame.Depth.Height},
			"intrinsics", []int{intrinsics.Depth.Width, intrinsics.Depth.Height})
	}
	p.depthImage, p.pointCloud, err = fillPointCloud(
		p.header(conf.FrameIDs.Depth), frame.Depth, intrinsics.Depth, conf.DepthScale, conf.InvalidDepth)
	if err != nil {
		return errors.Wrap(err, "point cloud")
	}

	p.imu = fillImu(p.header(conf.FrameIDs.IMU), frame.IMU)
	p.smallCameraInfo = ros.NewCameraInfo(p.header(conf.FrameIDs.Small), intrinsics.Fisheye)
	p.bigCameraInfo = ros.NewCameraInfo(p.header(conf.FrameIDs.Big), intrinsics.Narrow)
	return nil
}

func (p *Parser) header(frameID string) ros.Header {
	return ros.Header{Stamp: p.stamp, FrameID: frameID}
}

func (p *Parser) release() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.handle.Release(); err != nil {
		return errors.Wrapf(err, "error releasing super frame %q", p.path)
	}
	return nil
}

// Close releases the decoded frame. Messages stay valid after Close. Close is idempotent.
func (p *Parser) Close() error {
	return p.release()
}

// Path returns the super frame file.
func (p *Parser) Path() string { return p.path }

// Stamp returns the capture time shared by every message.
func (p *Parser) Stamp() ros.Time { return p.stamp }

// SmallImage returns the fisheye image.
func (p *Parser) SmallImage() *ros.Image { return p.smallImage }

// BigImage returns the narrow color image.
func (p *Parser) BigImage() *ros.Image { return p.bigImage }

// DepthImage returns the 16UC1 depth image the point cloud was projected from.
func (p *Parser) DepthImage() *ros.Image { return p.depthImage }

// PointCloud returns the back projected depth image.
func (p *Parser) PointCloud() *ros.PointCloud2 { return p.pointCloud }

// Imu returns the IMU sample.
func (p *Parser) Imu() *ros.Imu { return p.imu }

// SmallCameraInfo describes the fisheye camera.
func (p *Parser) SmallCameraInfo() *ros.CameraInfo { return p.smallCameraInfo }

// BigCameraInfo describes the narrow camera.
func (p *Parser) BigCameraInfo() *ros.CameraInfo { return p.bigCameraInfo }

// RawFrame returns the decoded frame. It fails with ErrClosed once the Parser is closed.
func (p *Parser) RawFrame() (*Frame, error) {
	if p.closed {
		return nil, ErrClosed
	}
	return p.handle.Frame(), nil
}
