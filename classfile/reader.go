package classfile

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// reader is a big-endian cursor over class file bytes. The first failed
// read is sticky: later reads return zero values and err keeps the cause.
type reader struct {
	data []byte
	pos  int
	err  error
}

func newReader(data []byte) *reader {
	return &reader{data: data}
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.pos+n > len(r.data) {
		r.err = errors.Newf("unexpected end of data at offset %d: need %d bytes, have %d",
			r.pos, n, len(r.data)-r.pos)
		return false
	}
	return true
}

func (r *reader) u1() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.pos]
	r.pos++
	return v
}

func (r *reader) u2() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v
}

func (r *reader) u4() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v
}

func (r *reader) u8() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v
}

// bytes returns a copy so callers may keep the slice after the input is
// reused.
func (r *reader) bytes(n int) []byte {
	if n < 0 {
		r.err = errors.Newf("negative length %d at offset %d", n, r.pos)
		return nil
	}
	if !r.need(n) {
		return nil
	}
	b := make([]byte, n)
	copy(b, r.data[r.pos:r.pos+n])
	r.pos += n
	return b
}

func (r *reader) remaining() int {
	return len(r.data) - r.pos
}
