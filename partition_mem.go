package objgraph

import (
	"fmt"
	"sync"
)

// MemPartitions is an in-memory PartitionStore, mostly for tests. Offsets
// are byte offsets within a partition.
type MemPartitions struct {
	mu    sync.Mutex
	parts map[uint32]*Buffer
}

func NewMemPartitions() *MemPartitions {
	return &MemPartitions{parts: make(map[uint32]*Buffer)}
}

func (s *MemPartitions) Append(partition uint32, body []byte) (Locator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.parts[partition]
	if p == nil {
		p = &Buffer{}
		s.parts[partition] = p
	}
	loc := Locator{Partition: partition, Offset: uint64(p.Len()), Length: uint64(len(body))}
	p.Buf = sealBody(p.Buf, body)
	return loc, nil
}

func (s *MemPartitions) Fetch(loc Locator) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.parts[loc.Partition]
	if p == nil {
		return nil, fmt.Errorf("partition %d not found", loc.Partition)
	}
	end := loc.Offset + loc.Length + checksumSize
	if end < loc.Offset || end > uint64(p.Len()) {
		return nil, fmt.Errorf("locator %v is out of bounds of partition (%d bytes)", loc, p.Len())
	}
	return openBody(loc, p.Buf[loc.Offset:end])
}

// Size returns the number of bytes stored in a partition.
func (s *MemPartitions) Size(partition uint32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.parts[partition]; p != nil {
		return p.Len()
	}
	return 0
}

// Corrupt flips a byte of a stored partition, for tests of checksum handling.
func (s *MemPartitions) Corrupt(partition uint32, off int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parts[partition].Buf[off] ^= 0xFF
}
