package objgraph

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// PartitionStore keeps detached object bodies outside the main stream.
// Stores are safe for use by several channels at once.
type PartitionStore interface {
	// Append stores body in the given partition and returns its locator.
	Append(partition uint32, body []byte) (Locator, error)

	// Fetch returns the body stored at loc. The result must not be modified.
	Fetch(loc Locator) ([]byte, error)
}

const checksumSize = 8

// sealBody appends the checksum trailer every store keeps after a body.
func sealBody(buf, body []byte) []byte {
	buf = appendRaw(buf, body)
	return appendUint64(buf, xxhash.Sum64(body))
}

// openBody verifies and strips the checksum trailer of a stored record.
func openBody(loc Locator, rec []byte) ([]byte, error) {
	if uint64(len(rec)) != loc.Length+checksumSize {
		return nil, dataErrf(nil, int64(loc.Offset), nil, "partition record %v has %d bytes", loc, len(rec))
	}
	body, trailer := rec[:loc.Length], rec[loc.Length:]
	if binary.LittleEndian.Uint64(trailer) != xxhash.Sum64(body) {
		return nil, dataErrf(body, int64(loc.Offset), ErrChecksum, "partition record %v", loc)
	}
	return body, nil
}
