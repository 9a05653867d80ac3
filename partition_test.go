package objgraph

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type closablePartitionStore interface {
	PartitionStore
	Close() error
}

func exercisePartitionStore(t *testing.T, s PartitionStore) []Locator {
	t.Helper()
	bodies := []struct {
		partition uint32
		data      []byte
	}{
		{0, []byte("first")},
		{3, []byte("other partition")},
		{0, []byte("second")},
		{0, nil},
		{0, bytes.Repeat([]byte{0xA5}, 100_000)},
	}
	var locs []Locator
	for _, b := range bodies {
		loc, err := s.Append(b.partition, b.data)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		deepEqual(t, loc.Partition, b.partition)
		deepEqual(t, loc.Length, uint64(len(b.data)))
		locs = append(locs, loc)
	}
	for i := len(bodies) - 1; i >= 0; i-- {
		got, err := s.Fetch(locs[i])
		if err != nil {
			t.Fatalf("Fetch(%v): %v", locs[i], err)
		}
		if !bytes.Equal(got, bodies[i].data) {
			t.Fatalf("Fetch(%v) = %d bytes, wanted %q...", locs[i], len(got), bodies[i].data[:min(len(bodies[i].data), 10)])
		}
	}

	if _, err := s.Fetch(Locator{Partition: 9, Offset: 0, Length: 1}); err == nil {
		t.Fatalf("Fetch from a missing partition succeeded")
	}
	bad := locs[0]
	bad.Length += 1000
	if _, err := s.Fetch(bad); err == nil {
		t.Fatalf("Fetch(%v) succeeded", bad)
	}
	return locs
}

func TestMemPartitions(t *testing.T) {
	s := NewMemPartitions()
	locs := exercisePartitionStore(t, s)
	deepEqual(t, locs[2].Offset, uint64(len("first")+checksumSize))
	deepEqual(t, s.Size(3), len("other partition")+checksumSize)
	deepEqual(t, s.Size(7), 0)

	s.Corrupt(0, 1)
	_, err := s.Fetch(locs[0])
	if !errors.Is(err, ErrChecksum) {
		t.Fatalf("Fetch of corrupt body err = %v, wanted ErrChecksum", err)
	}
}

func TestBoltPartitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parts.db")
	s := must(OpenBoltPartitions(path, BoltOptions{IsTesting: true}))
	locs := exercisePartitionStore(t, s)
	deepEqual(t, locs[0].Offset, uint64(1))
	deepEqual(t, locs[2].Offset, uint64(2))
	ensure(s.Close())

	s = must(OpenBoltPartitions(path, BoltOptions{IsTesting: true}))
	defer s.Close()
	got := must(s.Fetch(locs[1]))
	deepEqual(t, string(got), "other partition")

	shared := NewBoltPartitions(s.Bolt())
	ensure(shared.Close())
	got = must(s.Fetch(locs[2]))
	deepEqual(t, string(got), "second")
}

func TestFilePartitions(t *testing.T) {
	dir := t.TempDir()
	s := must(OpenFilePartitions(dir, FileOptions{Sync: true}))
	locs := exercisePartitionStore(t, s)
	deepEqual(t, locs[2].Offset, uint64(len("first")+checksumSize))

	// grow a partition after it has been mapped
	loc := must(s.Append(0, []byte("late")))
	deepEqual(t, string(must(s.Fetch(loc))), "late")
	ensure(s.Close())
	if _, err := s.Fetch(loc); err == nil {
		t.Fatalf("Fetch after Close succeeded")
	}

	s = must(OpenFilePartitions(dir, FileOptions{}))
	deepEqual(t, string(must(s.Fetch(locs[2]))), "second")
	ensure(s.Close())

	f := must(os.OpenFile(s.FileName(0), os.O_RDWR, 0))
	must(f.WriteAt([]byte{'F'}, 0))
	ensure(f.Close())

	s = must(OpenFilePartitions(dir, FileOptions{}))
	defer s.Close()
	_, err := s.Fetch(locs[0])
	if !errors.Is(err, ErrChecksum) {
		t.Fatalf("Fetch of corrupt body err = %v, wanted ErrChecksum", err)
	}
	deepEqual(t, string(must(s.Fetch(locs[2]))), "second")
}

var (
	_ closablePartitionStore = (*BoltPartitions)(nil)
	_ closablePartitionStore = (*FilePartitions)(nil)
)
