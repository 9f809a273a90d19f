// Package transform holds the camera models used to relate pixels of the Tango sensors to
// 3D points.
package transform

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

var (
	// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
	ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")
	// ErrMissingField is when an intrinsics file ends before every field was read.
	ErrMissingField = errors.New("intrinsics field missing")
	// ErrMalformedField is when an intrinsics token cannot be parsed as the expected number.
	ErrMalformedField = errors.New("intrinsics field malformed")
	// ErrTrailingData is when an intrinsics file holds more tokens than fields.
	ErrTrailingData = errors.New("unexpected data after intrinsics fields")
)

// NewNoIntrinsicsError is used when the intriniscs are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// Sensor names one of the three cameras of a super frame.
type Sensor string

// The sensors that carry intrinsics.
const (
	SensorDepth   Sensor = "depth"
	SensorFisheye Sensor = "fisheye"
	SensorNarrow  Sensor = "narrow"
)

// DefaultIntrinsicsFile returns the file name used when no intrinsics path is configured for
// the sensor, e.g. "depth_intrinsics.txt".
func DefaultIntrinsicsFile(sensor Sensor) string {
	return string(sensor) + "_intrinsics.txt"
}

// CameraIntrinsics holds the parameters of one Tango camera. Width and height are the size
// of the image, the focal lengths and the principal point are in pixels with (0,0) the center
// of the upper left pixel, Omega is the field of view parameter of the FOV distortion model
// and MaxAngle is the angle of the sensor's maximum field of view, both in radians.
type CameraIntrinsics struct {
	Width    int     `json:"width_px"`
	Height   int     `json:"height_px"`
	Fx       float64 `json:"fx"`
	Fy       float64 `json:"fy"`
	Ppx      float64 `json:"ppx"`
	Ppy      float64 `json:"ppy"`
	Omega    float64 `json:"omega"`
	MaxAngle float64 `json:"max_angle"`
}

// intrinsicsField is one entry of the fixed text layout.
type intrinsicsField struct {
	name    string
	integer bool
	get     func(ci *CameraIntrinsics) float64
	set     func(ci *CameraIntrinsics, v float64)
}

// intrinsicsSchema is the field order of an intrinsics text file.
var intrinsicsSchema = []intrinsicsField{
	{
		name: "width", integer: true,
		get: func(ci *CameraIntrinsics) float64 { return float64(ci.Width) },
		set: func(ci *CameraIntrinsics, v float64) { ci.Width = int(v) },
	},
	{
		name: "height", integer: true,
		get: func(ci *CameraIntrinsics) float64 { return float64(ci.Height) },
		set: func(ci *CameraIntrinsics, v float64) { ci.Height = int(v) },
	},
	{
		name: "fx",
		get:  func(ci *CameraIntrinsics) float64 { return ci.Fx },
		set:  func(ci *CameraIntrinsics, v float64) { ci.Fx = v },
	},
	{
		name: "fy",
		get:  func(ci *CameraIntrinsics) float64 { return ci.Fy },
		set:  func(ci *CameraIntrinsics, v float64) { ci.Fy = v },
	},
	{
		name: "cx",
		get:  func(ci *CameraIntrinsics) float64 { return ci.Ppx },
		set:  func(ci *CameraIntrinsics, v float64) { ci.Ppx = v },
	},
	{
		name: "cy",
		get:  func(ci *CameraIntrinsics) float64 { return ci.Ppy },
		set:  func(ci *CameraIntrinsics, v float64) { ci.Ppy = v },
	},
	{
		name: "omega",
		get:  func(ci *CameraIntrinsics) float64 { return ci.Omega },
		set:  func(ci *CameraIntrinsics, v float64) { ci.Omega = v },
	},
	{
		name: "max_angle",
		get:  func(ci *CameraIntrinsics) float64 { return ci.MaxAngle },
		set:  func(ci *CameraIntrinsics, v float64) { ci.MaxAngle = v },
	},
}

// IntrinsicsFieldNames returns the names of the text fields in file order.
func IntrinsicsFieldNames() []string {
	names := make([]string, 0, len(intrinsicsSchema))
	for _, f := range intrinsicsSchema {
		names = append(names, f.name)
	}
	return names
}

// NewCameraIntrinsicsFromTextFile reads the intrinsics text file at path.
func NewCameraIntrinsicsFromTextFile(path string) (*CameraIntrinsics, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening intrinsics file %q", path)
	}
	defer utils.UncheckedErrorFunc(f.Close)

	intrinsics, err := ReadCameraIntrinsics(f)
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing intrinsics file %q", path)
	}
	return intrinsics, nil
}

// ReadCameraIntrinsics parses whitespace delimited tokens in the order
// width height fx fy cx cy omega max_angle. The record is only returned if every field
// parsed and nothing follows the last one.
func ReadCameraIntrinsics(r io.Reader) (*CameraIntrinsics, error) {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)

	var parsed CameraIntrinsics
	for _, field := range intrinsicsSchema {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, err
			}
			return nil, errors.Wrapf(ErrMissingField, "%q", field.name)
		}
		token := scanner.Text()
		v, err := parseIntrinsicsToken(field, token)
		if err != nil {
			return nil, err
		}
		field.set(&parsed, v)
	}
	if scanner.Scan() {
		return nil, errors.Wrapf(ErrTrailingData, "%q", scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseIntrinsicsToken(field intrinsicsField, token string) (float64, error) {
	if field.integer {
		v, err := strconv.ParseUint(token, 10, 31)
		if err != nil {
			return 0, errors.Wrapf(ErrMalformedField, "%q: %q is not a non-negative integer", field.name, token)
		}
		return float64(v), nil
	}
	v, err := strconv.ParseFloat(token, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.Wrapf(ErrMalformedField, "%q: %q is not a finite number", field.name, token)
	}
	return v, nil
}

// WriteTo writes the intrinsics in the text layout read by ReadCameraIntrinsics, one field per
// line. Floats are written with the shortest representation that parses back to the same value.
func (params *CameraIntrinsics) WriteTo(w io.Writer) (int64, error) {
	var written int64
	for _, field := range intrinsicsSchema {
		var token string
		if field.integer {
			token = strconv.Itoa(int(field.get(params)))
		} else {
			token = strconv.FormatFloat(field.get(params), 'g', -1, 64)
		}
		n, err := fmt.Fprintln(w, token)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// CheckValid checks if the fields for CameraIntrinsics have valid inputs.
func (params *CameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width == 0 || params.Height == 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.Fx <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	return nil
}

// PixelToPoint transforms a pixel with depth to a 3D point using a pinhole back-projection.
// The intrinsics parameters should be the ones of the sensor used to obtain the image that
// contains the pixel.
func (params *CameraIntrinsics) PixelToPoint(x, y, z float64) r3.Vector {
	xOverZ := (x - params.Ppx) / params.Fx
	yOverZ := (y - params.Ppy) / params.Fy
	return r3.Vector{X: xOverZ * z, Y: yOverZ * z, Z: z}
}

// PointToPixel projects a 3D point to a pixel in an image plane.
func (params *CameraIntrinsics) PointToPixel(pt r3.Vector) (float64, float64) {
	if pt.Z != 0. {
		xPx := math.Round((pt.X/pt.Z)*params.Fx + params.Ppx)
		yPx := math.Round((pt.Y/pt.Z)*params.Fy + params.Ppy)
		return xPx, yPx
	}
	// if depth is zero at this pixel, return negative coordinates so that cropping filters it out
	return -1.0, -1.0
}

// CameraMatrix returns the row-major 3x3 matrix
// [[fx 0 ppx], [0 fy ppy], [0 0 1]].
func (params *CameraIntrinsics) CameraMatrix() [9]float64 {
	return [9]float64{
		params.Fx, 0, params.Ppx,
		0, params.Fy, params.Ppy,
		0, 0, 1,
	}
}

// ProjectionMatrix returns the row-major 3x4 projection matrix of a monocular camera,
// [[fx 0 ppx 0], [0 fy ppy 0], [0 0 1 0]].
func (params *CameraIntrinsics) ProjectionMatrix() [12]float64 {
	return [12]float64{
		params.Fx, 0, params.Ppx, 0,
		0, params.Fy, params.Ppy, 0,
		0, 0, 1, 0,
	}
}
