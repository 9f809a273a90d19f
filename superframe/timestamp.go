package superframe

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrUnsupportedVersion matches every *UnsupportedVersionError.
var ErrUnsupportedVersion = errors.New("unsupported super frame format version")

// UnsupportedVersionError is returned for format versions without a timestamp rule.
type UnsupportedVersionError struct {
	Version FormatVersion
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("%s %#x", ErrUnsupportedVersion, uint32(e.Version))
}

// Is makes errors.Is(err, ErrUnsupportedVersion) hold.
func (e *UnsupportedVersionError) Is(target error) bool {
	return target == ErrUnsupportedVersion
}

// peanutTicksPerSecond is the 180MHz hardware clock of the Peanut: 180 ticks per microsecond.
const peanutTicksPerSecond = 180 * 1e6

// TicksToSeconds converts a raw tick count to seconds with the clock rate of version.
func TicksToSeconds(version FormatVersion, ticks uint64) (float64, error) {
	switch version {
	case FormatVersionPeanut:
		return float64(ticks) / peanutTicksPerSecond, nil
	default:
		return 0, &UnsupportedVersionError{Version: version}
	}
}

// SupportedVersions lists the format versions TicksToSeconds accepts.
func SupportedVersions() []FormatVersion {
	return []FormatVersion{FormatVersionPeanut}
}
