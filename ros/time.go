package ros

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// ErrTimeOutOfRange is returned for seconds a ROS Time cannot hold.
var ErrTimeOutOfRange = errors.New("time out of range")

// Time is a ROS 1 time: seconds and nanoseconds since the epoch of the clock that produced it.
type Time struct {
	Sec  uint32 `json:"secs"`
	Nsec uint32 `json:"nsecs"`
}

// NewTime converts floating point seconds to a Time, rounding to the nearest nanosecond.
// Seconds that are negative, not finite or past the unsigned 32 bit second counter fail
// with ErrTimeOutOfRange.
func NewTime(seconds float64) (Time, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return Time{}, errors.Wrapf(ErrTimeOutOfRange, "%v seconds", seconds)
	}
	whole := math.Floor(seconds)
	nsec := math.Round((seconds - whole) * 1e9)
	if nsec >= 1e9 {
		whole++
		nsec -= 1e9
	}
	if whole > math.MaxUint32 {
		return Time{}, errors.Wrapf(ErrTimeOutOfRange, "%v seconds exceeds %d", seconds, uint32(math.MaxUint32))
	}
	return Time{Sec: uint32(whole), Nsec: uint32(nsec)}, nil
}

// TimeFromStd converts a time.Time to a ROS Time.
func TimeFromStd(t time.Time) Time {
	return Time{Sec: uint32(t.Unix()), Nsec: uint32(t.Nanosecond())}
}

// Seconds returns t as floating point seconds.
func (t Time) Seconds() float64 {
	return float64(t.Sec) + float64(t.Nsec)/1e9
}

// Before reports whether t is earlier than u.
func (t Time) Before(u Time) bool {
	if t.Sec != u.Sec {
		return t.Sec < u.Sec
	}
	return t.Nsec < u.Nsec
}

// IsZero reports whether t is the zero Time.
func (t Time) IsZero() bool {
	return t.Sec == 0 && t.Nsec == 0
}
