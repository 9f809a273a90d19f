package ros

import (
	"encoding/binary"
	"io"
	"math"
)

// encoder writes ROS 1 serialized fields, which are little endian and unpadded. The first
// error sticks and later writes are no-ops.
type encoder struct {
	w   io.Writer
	buf [8]byte
	err error
}

func newEncoder(w io.Writer) *encoder {
	return &encoder{w: w}
}

func (e *encoder) write(p []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(p)
}

func (e *encoder) uint8(v uint8) {
	e.buf[0] = v
	e.write(e.buf[:1])
}

func (e *encoder) bool(v bool) {
	if v {
		e.uint8(1)
		return
	}
	e.uint8(0)
}

func (e *encoder) uint32(v uint32) {
	binary.LittleEndian.PutUint32(e.buf[:4], v)
	e.write(e.buf[:4])
}

func (e *encoder) float64(v float64) {
	binary.LittleEndian.PutUint64(e.buf[:8], math.Float64bits(v))
	e.write(e.buf[:8])
}

func (e *encoder) time(t Time) {
	e.uint32(t.Sec)
	e.uint32(t.Nsec)
}

func (e *encoder) string(s string) {
	e.uint32(uint32(len(s)))
	if e.err != nil {
		return
	}
	_, e.err = io.WriteString(e.w, s)
}

func (e *encoder) bytes(p []byte) {
	e.uint32(uint32(len(p)))
	e.write(p)
}

func (e *encoder) float64s(vs []float64) {
	for _, v := range vs {
		e.float64(v)
	}
}

func (e *encoder) header(h Header) {
	e.uint32(h.Seq)
	e.time(h.Stamp)
	e.string(h.FrameID)
}
