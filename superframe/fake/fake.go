// Package fake implements a super frame decoder that reads JSON fixtures instead of the
// vendor binary format. It counts every handle it opens and releases.
package fake

import (
	"context"
	"encoding/json"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"gonum.org/v1/gonum/num/quat"

	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/logging"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/superframe"
)

// DecoderName is the registry name of the fake decoder.
const DecoderName = "fake"

func init() {
	superframe.RegisterDecoder(DecoderName, func(
		ctx context.Context,
		attributes map[string]interface{},
		logger logging.Logger,
	) (superframe.Decoder, error) {
		var conf Config
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "json", Result: &conf})
		if err != nil {
			return nil, err
		}
		if err := decoder.Decode(attributes); err != nil {
			return nil, errors.Wrap(err, "invalid fake decoder attributes")
		}
		return NewDecoder(conf, logger), nil
	})
}

// Config are the attributes of the fake decoder.
type Config struct {
	// FailDecode makes every Decode fail before a handle is opened.
	FailDecode bool `json:"fail_decode,omitempty"`
	// FailRelease makes every Release report an error. The handle is released regardless.
	FailRelease bool `json:"fail_release,omitempty"`
	// NoFrame makes handles return a nil Frame.
	NoFrame bool `json:"no_frame,omitempty"`
}

// Decoder decodes JSON fixtures written by WriteFixture.
type Decoder struct {
	conf   Config
	logger logging.Logger

	opened   atomic.Int64
	released atomic.Int64
}

// NewDecoder returns a fake decoder.
func NewDecoder(conf Config, logger logging.Logger) *Decoder {
	return &Decoder{conf: conf, logger: logger}
}

// Decode reads the fixture at path.
func (d *Decoder) Decode(ctx context.Context, path string) (superframe.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.conf.FailDecode {
		return nil, superframe.NewDecodeError(path, errors.New("fake decode failure"))
	}
	frame, err := ReadFixture(path)
	if err != nil {
		return nil, superframe.NewDecodeError(path, err)
	}
	if d.conf.NoFrame {
		frame = nil
	}
	d.opened.Inc()
	d.logger.Debugw("opened fake super frame", "path", path)
	return &handle{dec: d, path: path, frame: frame}, nil
}

// Opened returns how many handles were handed out.
func (d *Decoder) Opened() int64 { return d.opened.Load() }

// Released returns how many handles were released.
func (d *Decoder) Released() int64 { return d.released.Load() }

// Outstanding returns how many handles are still held.
func (d *Decoder) Outstanding() int64 { return d.opened.Load() - d.released.Load() }

type handle struct {
	dec      *Decoder
	path     string
	frame    *superframe.Frame
	released atomic.Bool
}

func (h *handle) Frame() *superframe.Frame {
	if h.released.Load() {
		return nil
	}
	return h.frame
}

func (h *handle) Release() error {
	if !h.released.CompareAndSwap(false, true) {
		return errors.Errorf("super frame %q released twice", h.path)
	}
	h.frame = nil
	h.dec.released.Inc()
	if h.dec.conf.FailRelease {
		return errors.New("fake release failure")
	}
	return nil
}

// Image is the fixture form of a RawImage. Data is base64 in JSON; when it is empty every
// byte is set to Fill.
type Image struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Stride   int    `json:"stride"`
	Encoding string `json:"encoding"`
	Data     []byte `json:"data,omitempty"`
	Fill     byte   `json:"fill,omitempty"`
}

// Depth is the fixture form of a RawDepth. When Values is empty every pixel is set to Fill.
type Depth struct {
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Values []uint16 `json:"values,omitempty"`
	Fill   uint16   `json:"fill,omitempty"`
}

// IMU is the fixture form of an IMUSample. Orientation is [w, x, y, z].
type IMU struct {
	Orientation        [4]float64 `json:"orientation"`
	AngularVelocity    [3]float64 `json:"angular_velocity"`
	LinearAcceleration [3]float64 `json:"linear_acceleration"`
}

// Fixture is the JSON document read by the fake decoder.
type Fixture struct {
	Version    uint32 `json:"version"`
	Timestamp  uint64 `json:"timestamp"`
	SmallImage Image  `json:"small_image"`
	BigImage   Image  `json:"big_image"`
	Depth      Depth  `json:"depth"`
	IMU        IMU    `json:"imu"`
}

// ReadFixture reads and expands a fixture file.
func ReadFixture(path string) (*superframe.Frame, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fixture Fixture
	if err := json.Unmarshal(data, &fixture); err != nil {
		return nil, errors.Wrapf(err, "error parsing fixture %q", path)
	}
	return fixture.Frame(), nil
}

// WriteFixture writes fixture to path as JSON.
func WriteFixture(path string, fixture Fixture) error {
	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Frame expands the fixture into a decoded frame.
func (f Fixture) Frame() *superframe.Frame {
	return &superframe.Frame{
		Version:    superframe.FormatVersion(f.Version),
		Timestamp:  f.Timestamp,
		SmallImage: f.SmallImage.raw(),
		BigImage:   f.BigImage.raw(),
		Depth:      f.Depth.raw(),
		IMU: superframe.IMUSample{
			Orientation: quat.Number{
				Real: f.IMU.Orientation[0],
				Imag: f.IMU.Orientation[1],
				Jmag: f.IMU.Orientation[2],
				Kmag: f.IMU.Orientation[3],
			},
			AngularVelocity:    r3.Vector{X: f.IMU.AngularVelocity[0], Y: f.IMU.AngularVelocity[1], Z: f.IMU.AngularVelocity[2]},
			LinearAcceleration: r3.Vector{X: f.IMU.LinearAcceleration[0], Y: f.IMU.LinearAcceleration[1], Z: f.IMU.LinearAcceleration[2]},
		},
	}
}

func (img Image) raw() superframe.RawImage {
	data := img.Data
	if len(data) == 0 {
		size := img.Stride * img.Height
		if img.Encoding == "nv21" {
			size += img.Stride * (img.Height / 2)
		}
		if size > 0 {
			data = make([]byte, size)
			for i := range data {
				data[i] = img.Fill
			}
		}
	}
	return superframe.RawImage{
		Width:    img.Width,
		Height:   img.Height,
		Stride:   img.Stride,
		Encoding: img.Encoding,
		Data:     data,
	}
}

func (d Depth) raw() superframe.RawDepth {
	values := d.Values
	if len(values) == 0 && d.Width*d.Height > 0 {
		values = make([]uint16, d.Width*d.Height)
		for i := range values {
			values[i] = d.Fill
		}
	}
	return superframe.RawDepth{Width: d.Width, Height: d.Height, Values: values}
}
