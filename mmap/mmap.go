// Package mmap maps files into memory read-only, so that partition files can
// serve detached object bodies without copying them through read calls.
package mmap

import (
	"fmt"
	"math"
	"os"
)

// MaxSize is the largest region Map accepts: the address space limit of
// 64-bit platforms, or what fits an int elsewhere.
const MaxSize = min(math.MaxInt, 0xFFFFFFFFFFFF)

type Options uint

const (
	// SequentialAccess is a hint requesting aggressive read-ahead.
	// Incompatible with RandomAccess. Maps to MADV_SEQUENTIAL on Unix.
	SequentialAccess Options = 1 << 0

	// RandomAccess is a hint that read ahead is less useful than normally.
	// Incompatible with SequentialAccess. Maps to MADV_RANDOM on Unix.
	RandomAccess Options = 1 << 1

	// Prefault is a hint requesting the entire mapping to be loaded in
	// memory. Maps to MAP_POPULATE on Linux, ignored elsewhere.
	Prefault Options = 1 << 2
)

func (o Options) Has(v Options) bool {
	return o&v != 0
}

// Region is a mapped prefix of a file.
type Region struct {
	data []byte
}

// Map maps the first size bytes of f. A zero size yields an empty region
// without a mapping, since the OS rejects empty mappings.
func Map(f *os.File, size int64, opt Options) (*Region, error) {
	if size < 0 || size > MaxSize {
		return nil, fmt.Errorf("mmap: unsupported size %d", size)
	}
	if size == 0 {
		return &Region{}, nil
	}
	b, err := mmap(f, int(size), opt)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", f.Name(), err)
	}
	return &Region{data: b}, nil
}

// Bytes returns the mapped memory. It must not be used after Close.
func (r *Region) Bytes() []byte {
	return r.data
}

func (r *Region) Len() int64 {
	return int64(len(r.data))
}

// Close unmaps the region. It is safe to call more than once.
func (r *Region) Close() error {
	if r.data == nil {
		return nil
	}
	b := r.data
	r.data = nil
	return munmap(b)
}
