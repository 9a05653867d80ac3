package objgraph

import "fmt"

// Locator addresses a body stored outside the main stream. Its meaning is
// private to the PartitionStore that issued it.
type Locator struct {
	Partition uint32
	Offset    uint64
	Length    uint64
}

func (loc Locator) String() string {
	return fmt.Sprintf("p%d@%d+%d", loc.Partition, loc.Offset, loc.Length)
}

func (ch *Channel) writeLocator(loc Locator) {
	ch.WriteUint32(loc.Partition)
	ch.WriteCount(loc.Offset)
	ch.WriteCount(loc.Length)
}

func (ch *Channel) readLocator() Locator {
	var loc Locator
	loc.Partition = ch.ReadUint32()
	loc.Offset = ch.ReadCount()
	loc.Length = ch.ReadCount()
	return loc
}
