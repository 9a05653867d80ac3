package objgraph

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Unbounded is the in-memory count that stands for "no limit". It is stored
// as all ones in both the 4- and 8-byte count encodings.
const Unbounded = ^uint64(0)

const (
	legacyUnbounded = math.MaxUint32
	legacyMaxCount  = math.MaxUint32 - 1
)

func (ch *Channel) WriteUint16(v uint16) {
	binary.LittleEndian.PutUint16(ch.scratch[:], v)
	ch.WriteBytes(ch.scratch[:2])
}

func (ch *Channel) ReadUint16() uint16 {
	ch.mustRead()
	ch.readFull(ch.scratch[:2])
	return binary.LittleEndian.Uint16(ch.scratch[:2])
}

func (ch *Channel) WriteUint32(v uint32) {
	binary.LittleEndian.PutUint32(ch.scratch[:], v)
	ch.WriteBytes(ch.scratch[:4])
}

func (ch *Channel) ReadUint32() uint32 {
	ch.mustRead()
	ch.readFull(ch.scratch[:4])
	return binary.LittleEndian.Uint32(ch.scratch[:4])
}

func (ch *Channel) WriteInt32(v int32) { ch.WriteUint32(uint32(v)) }
func (ch *Channel) ReadInt32() int32   { return int32(ch.ReadUint32()) }

func (ch *Channel) WriteFloat64(v float64) { ch.WriteUint64(math.Float64bits(v)) }
func (ch *Channel) ReadFloat64() float64   { return math.Float64frombits(ch.ReadUint64()) }

func (ch *Channel) WriteBool(v bool) {
	if v {
		ch.WriteUint8(1)
	} else {
		ch.WriteUint8(0)
	}
}

func (ch *Channel) ReadBool() bool {
	return ch.ReadUint8() != 0
}

// WriteCount writes an unsigned size or index: 8 bytes on 64-bit streams,
// otherwise 4 bytes. A value that does not fit a legacy field sets
// FaultUnderflow64to32 and is truncated to the largest non-sentinel value.
func (ch *Channel) WriteCount(v uint64) {
	if ch.Is64Bit() {
		ch.WriteUint64(v)
		return
	}
	switch {
	case v == Unbounded:
		ch.WriteUint32(legacyUnbounded)
	case v > legacyMaxCount:
		ch.setFault(FaultUnderflow64to32, fmt.Sprintf("count %d does not fit 32 bits", v))
		ch.WriteUint32(legacyMaxCount)
	default:
		ch.WriteUint32(uint32(v))
	}
}

// ReadCount reads a value written by WriteCount.
func (ch *Channel) ReadCount() uint64 {
	if ch.Is64Bit() {
		return ch.ReadUint64()
	}
	v := ch.ReadUint32()
	if v == legacyUnbounded {
		return Unbounded
	}
	return uint64(v)
}

// WriteInt writes a signed offset: 8 bytes on 64-bit streams, otherwise 4
// bytes, truncating with FaultUnderflow64to32 when out of range.
func (ch *Channel) WriteInt(v int64) {
	if ch.Is64Bit() {
		ch.WriteUint64(uint64(v))
		return
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		ch.setFault(FaultUnderflow64to32, fmt.Sprintf("offset %d does not fit 32 bits", v))
	}
	ch.WriteInt32(int32(v))
}

func (ch *Channel) ReadInt() int64 {
	if ch.Is64Bit() {
		return int64(ch.ReadUint64())
	}
	return int64(ch.ReadInt32())
}

// WriteLength writes a slice length, see WriteCount.
func (ch *Channel) WriteLength(n int) {
	ch.WriteCount(uint64(n))
}

// ReadLength reads a slice length. A length that cannot be a real slice
// length (Unbounded, or more than limit when limit > 0) sets FaultFail and
// yields 0, so that callers never allocate for corrupt data.
func (ch *Channel) ReadLength(limit int) int {
	v := ch.ReadCount()
	if v == Unbounded || v > uint64(math.MaxInt) || (limit > 0 && v > uint64(limit)) {
		ch.setFault(FaultFail, fmt.Sprintf("invalid length %d", v))
		return 0
	}
	return int(v)
}
