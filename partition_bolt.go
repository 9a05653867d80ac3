package objgraph

import (
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// BoltPartitions keeps each partition in its own Bolt bucket. A locator's
// offset is the record's sequence number within the bucket.
type BoltPartitions struct {
	bdb   *bbolt.DB
	owned bool
}

type BoltOptions struct {
	IsTesting bool
	MmapSize  int
}

// OpenBoltPartitions opens (or creates) a Bolt file at path.
func OpenBoltPartitions(path string, opt BoltOptions) (*BoltPartitions, error) {
	bopt := *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024
	} else {
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}
	bdb, err := bbolt.Open(path, 0666, &bopt)
	if err != nil {
		return nil, fmt.Errorf("objgraph: partitions: %w", err)
	}
	return &BoltPartitions{bdb: bdb, owned: true}, nil
}

// NewBoltPartitions uses an already open Bolt database; Close leaves it open.
func NewBoltPartitions(bdb *bbolt.DB) *BoltPartitions {
	return &BoltPartitions{bdb: bdb}
}

func (s *BoltPartitions) Bolt() *bbolt.DB {
	return s.bdb
}

func (s *BoltPartitions) Close() error {
	if !s.owned {
		return nil
	}
	return s.bdb.Close()
}

func partitionBucketName(partition uint32) []byte {
	return []byte(fmt.Sprintf("partition.%08x", partition))
}

func (s *BoltPartitions) Append(partition uint32, body []byte) (Locator, error) {
	var loc Locator
	err := s.bdb.Update(func(btx *bbolt.Tx) error {
		b, err := btx.CreateBucketIfNotExists(partitionBucketName(partition))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)
		loc = Locator{Partition: partition, Offset: seq, Length: uint64(len(body))}
		return b.Put(key[:], sealBody(make([]byte, 0, len(body)+checksumSize), body))
	})
	if err != nil {
		return Locator{}, fmt.Errorf("objgraph: partition %d: %w", partition, err)
	}
	return loc, nil
}

func (s *BoltPartitions) Fetch(loc Locator) ([]byte, error) {
	var body []byte
	err := s.bdb.View(func(btx *bbolt.Tx) error {
		b := btx.Bucket(partitionBucketName(loc.Partition))
		if b == nil {
			return fmt.Errorf("partition %d not found", loc.Partition)
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], loc.Offset)
		rec := b.Get(key[:])
		if rec == nil {
			return fmt.Errorf("locator %v not found", loc)
		}
		v, err := openBody(loc, rec)
		if err != nil {
			return err
		}
		// Bolt memory is only valid inside the transaction.
		body = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}
