package objgraph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownClass   = errors.New("unknown class")
	ErrClassMismatch  = errors.New("class mismatch")
	ErrBadReference   = errors.New("bad object reference")
	ErrNullObject     = errors.New("null object")
	ErrNoPartitions   = errors.New("channel has no partition store")
	ErrNoCatalog      = errors.New("stream has no object catalog")
	ErrNotInCatalog   = errors.New("object is not in the catalog")
	ErrWrongMode      = errors.New("operation not allowed in this channel mode")
	ErrIncompatible   = errors.New("incompatible stream")
	ErrUnsupportedVer = errors.New("unsupported stream version")
	ErrChecksum       = errors.New("checksum mismatch")
)

type DataError struct {
	Data []byte
	Off  int64
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int64, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s at offset %d", e.Msg, e.Off)
	if e.Err != nil {
		fmt.Fprintf(&buf, ": %v", e.Err)
	}
	if n == 0 {
		return buf.String()
	}
	if n <= prefixLen+suffixLen {
		fmt.Fprintf(&buf, ": (%d) %x", n, e.Data)
	} else {
		fmt.Fprintf(&buf, ": (%d) %x...%x", n, e.Data[:prefixLen], e.Data[n-suffixLen:])
	}
	return buf.String()
}

// ClassError reports a class identity that could not be resolved, or an
// object whose class differs from the one the caller asked for.
type ClassError struct {
	ID      ClassID
	Renamed *ClassID
	Off     int64
	Err     error
}

func (e *ClassError) Unwrap() error {
	return e.Err
}

func (e *ClassError) Error() string {
	if e.Renamed != nil {
		return fmt.Sprintf("%v: %v (renamed to %v) at offset %d", e.Err, e.ID, *e.Renamed, e.Off)
	}
	return fmt.Sprintf("%v: %v at offset %d", e.Err, e.ID, e.Off)
}

// ReferenceError reports a back-reference to an index that is not
// registered in the current pass.
type ReferenceError struct {
	Index uint64
	Count uint64
	Off   int64
	Msg   string
}

func refErrf(index, count uint64, off int64, format string, args ...any) error {
	return &ReferenceError{index, count, off, fmt.Sprintf(format, args...)}
}

func (e *ReferenceError) Unwrap() error {
	return ErrBadReference
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%v: index %d (%d registered) at offset %d: %s", ErrBadReference, e.Index, e.Count, e.Off, e.Msg)
}
