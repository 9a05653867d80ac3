package objgraph

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/andreyvit/objgraph/mmap"
)

// FilePartitions keeps each partition in an append-only file in a directory
// and serves reads from a memory mapping of the file. Offsets are byte
// offsets within the file.
type FilePartitions struct {
	dir  string
	sync bool

	mu     sync.Mutex
	parts  map[uint32]*filePartition
	closed bool
}

type filePartition struct {
	f      *os.File
	size   int64
	region *mmap.Region
}

type FileOptions struct {
	// Sync makes every Append durable before it returns.
	Sync bool
}

func OpenFilePartitions(dir string, opt FileOptions) (*FilePartitions, error) {
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return nil, fmt.Errorf("objgraph: partitions: %w", err)
	}
	return &FilePartitions{
		dir:   dir,
		sync:  opt.Sync,
		parts: make(map[uint32]*filePartition),
	}, nil
}

func (s *FilePartitions) FileName(partition uint32) string {
	return filepath.Join(s.dir, fmt.Sprintf("partition-%08x.bin", partition))
}

func (s *FilePartitions) partition_locked(partition uint32) (*filePartition, error) {
	if s.closed {
		return nil, errors.New("partition store is closed")
	}
	if p := s.parts[partition]; p != nil {
		return p, nil
	}
	f, err := os.OpenFile(s.FileName(partition), os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	p := &filePartition{f: f, size: st.Size()}
	s.parts[partition] = p
	return p, nil
}

func (s *FilePartitions) Append(partition uint32, body []byte) (Locator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.partition_locked(partition)
	if err != nil {
		return Locator{}, fmt.Errorf("objgraph: partition %d: %w", partition, err)
	}
	rec := sealBody(make([]byte, 0, len(body)+checksumSize), body)
	if _, err := p.f.WriteAt(rec, p.size); err != nil {
		return Locator{}, fmt.Errorf("objgraph: partition %d: %w", partition, err)
	}
	if s.sync {
		if err := mmap.Fdatasync(p.f); err != nil {
			return Locator{}, fmt.Errorf("objgraph: partition %d: %w", partition, err)
		}
	}
	loc := Locator{Partition: partition, Offset: uint64(p.size), Length: uint64(len(body))}
	p.size += int64(len(rec))
	return loc, nil
}

func (s *FilePartitions) Fetch(loc Locator) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.partition_locked(loc.Partition)
	if err != nil {
		return nil, fmt.Errorf("objgraph: partition %d: %w", loc.Partition, err)
	}
	end := loc.Offset + loc.Length + checksumSize
	if end < loc.Offset || end > uint64(p.size) {
		return nil, fmt.Errorf("locator %v is out of bounds of %s (%d bytes)", loc, s.FileName(loc.Partition), p.size)
	}
	if p.region == nil || uint64(p.region.Len()) < end {
		if p.region != nil {
			if err := p.region.Close(); err != nil {
				return nil, err
			}
			p.region = nil
		}
		p.region, err = mmap.Map(p.f, p.size, mmap.RandomAccess)
		if err != nil {
			return nil, err
		}
	}
	body, err := openBody(loc, p.region.Bytes()[loc.Offset:end])
	if err != nil {
		return nil, err
	}
	// The mapping is replaced when the file grows.
	return append([]byte(nil), body...), nil
}

func (s *FilePartitions) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	var errs []error
	for _, p := range s.parts {
		if p.region != nil {
			errs = append(errs, p.region.Close())
		}
		errs = append(errs, p.f.Close())
	}
	clear(s.parts)
	return errors.Join(errs...)
}
