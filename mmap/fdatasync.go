package mmap

import "os"

// Fdatasync flushes the data appended to f to stable storage, without
// necessarily flushing file metadata.
//
// A failed sync is not recoverable: the OS may have dropped the dirty pages,
// so the caller must treat the file as corrupted.
func Fdatasync(f *os.File) error {
	return fdatasync(f)
}
