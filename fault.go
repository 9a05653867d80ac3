package objgraph

import (
	"fmt"
	"strings"
)

// Fault is a sticky bitmask of non-fatal channel conditions. Once a bit is
// set it stays set until ClearFaults.
type Fault uint32

const (
	// FaultFail is set when the underlying buffer or a partition store
	// reports an I/O error.
	FaultFail Fault = 1 << iota

	// FaultEOF is set when a read runs past the end of the buffer.
	FaultEOF

	// FaultOutOfMemory is set when a pass registry or the object catalog
	// would grow beyond Options.MaxObjects.
	FaultOutOfMemory

	// FaultUnderflow64to32 is set when a value does not fit a legacy
	// 32-bit (or 16-bit string length) field and was truncated.
	FaultUnderflow64to32

	faultNone Fault = 0
)

var faultNames = []string{"fail", "eof", "outOfMemory", "underflow64to32"}

func (f Fault) Has(v Fault) bool {
	return f&v == v
}

func (f Fault) String() string {
	if f == faultNone {
		return "good"
	}
	var buf strings.Builder
	for i, name := range faultNames {
		if f&(1<<i) != 0 {
			if buf.Len() > 0 {
				buf.WriteByte('|')
			}
			buf.WriteString(name)
		}
	}
	if rem := f &^ (1<<len(faultNames) - 1); rem != 0 {
		if buf.Len() > 0 {
			buf.WriteByte('|')
		}
		fmt.Fprintf(&buf, "0x%x", uint32(rem))
	}
	return buf.String()
}

// FaultError is the panic value used instead of setting FaultOutOfMemory
// when a channel runs with Options.Strict.
type FaultError struct {
	Fault Fault
	Msg   string
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("objgraph: %v: %s", e.Fault, e.Msg)
}
