// Package superframe turns a decoded Tango super frame into ROS messages.
//
// A super frame bundles one capture of every Tango sensor: a small fisheye image, a big image
// from the narrow color camera, a depth image and an IMU sample, stamped with a hardware tick
// count. The binary layout belongs to the vendor SDK; this package only sees it through a
// Decoder.
package superframe

import (
	"fmt"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// FormatVersion tags the layout of a super frame and selects its timestamp rule.
type FormatVersion uint32

// FormatVersionPeanut is the format written by the Peanut development kit.
const FormatVersionPeanut FormatVersion = 0x100

func (v FormatVersion) String() string {
	switch v {
	case FormatVersionPeanut:
		return "peanut"
	default:
		return fmt.Sprintf("unknown(%#x)", uint32(v))
	}
}

// RawImage is an image buffer as decoded, with Stride bytes per row.
type RawImage struct {
	Width    int
	Height   int
	Stride   int
	Encoding string
	Data     []byte
}

// RawDepth is a row-major depth image in millimeters. Zero means no reading.
type RawDepth struct {
	Width  int
	Height int
	Values []uint16
}

// IMUSample is one inertial measurement: the device orientation, the angular velocity in
// rad/s and the linear acceleration in m/s^2.
type IMUSample struct {
	Orientation        quat.Number
	AngularVelocity    r3.Vector
	LinearAcceleration r3.Vector
}

// Frame is the content of a decoded super frame. It is owned by the Handle it came from and
// must not be used after the handle is released.
type Frame struct {
	Version   FormatVersion
	Timestamp uint64

	SmallImage RawImage
	BigImage   RawImage
	Depth      RawDepth
	IMU        IMUSample
}
