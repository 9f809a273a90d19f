package rimage

import (
	"image/color"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestDepthMapFromValues(t *testing.T) {
	dm, err := NewDepthMapFromValues(3, 2, []uint16{0, 1000, 2000, 3000, 0, 500})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dm.Width(), test.ShouldEqual, 3)
	test.That(t, dm.Height(), test.ShouldEqual, 2)
	test.That(t, dm.GetDepth(1, 0), test.ShouldEqual, Depth(1000))
	test.That(t, dm.GetDepth(0, 1), test.ShouldEqual, Depth(3000))

	lo, hi := dm.MinMax()
	test.That(t, lo, test.ShouldEqual, Depth(500))
	test.That(t, hi, test.ShouldEqual, Depth(3000))

	test.That(t, dm.At(2, 1), test.ShouldResemble, color.Gray16{Y: 500})
	test.That(t, dm.At(5, 5), test.ShouldResemble, color.Gray16{})

	_, err = NewDepthMapFromValues(3, 3, []uint16{1, 2})
	test.That(t, err, test.ShouldNotBeNil)

	// 2^32 x 2^32 values wrap to zero; no values must not pass for it
	_, err = NewDepthMapFromValues(1<<32, 1<<32, nil)
	test.That(t, errors.Is(err, ErrImageTooLarge), test.ShouldBeTrue)
}

func TestDepthMapBytesRoundTrip(t *testing.T) {
	dm := NewEmptyDepthMap(2, 2)
	dm.Set(0, 0, 1)
	dm.Set(1, 0, 0x0102)
	dm.Set(1, 1, MaxDepth)

	raw := dm.Bytes()
	test.That(t, raw, test.ShouldResemble, []byte{1, 0, 2, 1, 0, 0, 0xff, 0xff})

	back, err := NewDepthMapFromBytes(2, 2, 4, false, raw)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back, test.ShouldResemble, dm)

	big, err := NewDepthMapFromBytes(1, 1, 2, true, []byte{0x01, 0x02})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, big.GetDepth(0, 0), test.ShouldEqual, Depth(0x0102))

	_, err = NewDepthMapFromBytes(2, 2, 4, false, raw[:6])
	test.That(t, err, test.ShouldNotBeNil)

	lo, hi := NewEmptyDepthMap(2, 2).MinMax()
	test.That(t, lo, test.ShouldEqual, Depth(0))
	test.That(t, hi, test.ShouldEqual, Depth(0))
}
