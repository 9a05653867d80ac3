package objgraph

import (
	"encoding/binary"
	"io"
)

func ensureCapacity(buf []byte, minCap int) []byte {
	c := cap(buf)
	if minCap > c {
		if c < 16 {
			c = 16
		}
		for minCap > c {
			c <<= 1
		}
		old := buf
		buf = make([]byte, len(old), c)
		copy(buf, old)
	}
	return buf
}

func grow(buf []byte, n int) (int, []byte) {
	off := len(buf)
	newLen := off + n
	buf = ensureCapacity(buf, newLen)
	return off, buf[:newLen]
}

func appendRaw(buf []byte, chunk []byte) []byte {
	n := len(chunk)
	off, buf := grow(buf, n)
	copy(buf[off:], chunk)
	return buf
}

func appendUint16(buf []byte, v uint16) []byte {
	off, buf := grow(buf, 2)
	binary.LittleEndian.PutUint16(buf[off:], v)
	return buf
}

func appendUint32(buf []byte, v uint32) []byte {
	off, buf := grow(buf, 4)
	binary.LittleEndian.PutUint32(buf[off:], v)
	return buf
}

func appendUint64(buf []byte, v uint64) []byte {
	off, buf := grow(buf, 8)
	binary.LittleEndian.PutUint64(buf[off:], v)
	return buf
}

// reserve grows the capacity of s in multiples of step, so that long-lived
// tables reallocate rarely. It reports false if the table would exceed limit
// (0 means unlimited), leaving s untouched.
func reserve[T any](s []T, extra, step, limit int) ([]T, bool) {
	need := len(s) + extra
	if limit > 0 && need > limit {
		return s, false
	}
	if need <= cap(s) {
		return s, true
	}
	c := ((need + step - 1) / step) * step
	if limit > 0 && c > limit {
		c = limit
	}
	ns := make([]T, len(s), c)
	copy(ns, s)
	return ns, true
}

// Buffer is a growable in-memory byte sink for write channels. Its zero value
// is ready to use.
type Buffer struct {
	Buf []byte
}

var _ io.Writer = (*Buffer)(nil)

func (bb *Buffer) Bytes() []byte {
	return bb.Buf
}

func (bb *Buffer) Len() int {
	return len(bb.Buf)
}

func (bb *Buffer) Reset() {
	bb.Buf = bb.Buf[:0]
}

func (bb *Buffer) EnsureExtra(n int) {
	bb.Buf = ensureCapacity(bb.Buf, len(bb.Buf)+n)
}

func (bb *Buffer) Grow(n int) (off int) {
	off, bb.Buf = grow(bb.Buf, n)
	return
}

func (bb *Buffer) Trim(off int) {
	bb.Buf = bb.Buf[:off]
}

func (bb *Buffer) Write(b []byte) (int, error) {
	bb.Buf = appendRaw(bb.Buf, b)
	return len(b), nil
}

func (bb *Buffer) WriteByte(v byte) error {
	off := bb.Grow(1)
	bb.Buf[off] = v
	return nil
}
