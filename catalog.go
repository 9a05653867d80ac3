package objgraph

import (
	"fmt"
	"io"
	"slices"
)

const (
	catalogStep  = 4096
	trailerMagic = "OGRC"
	trailerSize  = 8 + len(trailerMagic)
)

// CatalogEntry says where the body of the object with the given pass index
// is stored.
type CatalogEntry struct {
	Index uint64
	Loc   Locator
}

// Catalog lists the detached objects of a stream. Writers fill it as they
// detach objects; Finish stores it at the end of the stream, so that a reader
// can fetch any detached object without decoding what comes before it.
type Catalog struct {
	entries []CatalogEntry
	byIndex map[uint64]int
}

func (c *Catalog) Len() int {
	return len(c.entries)
}

func (c *Catalog) Entries() []CatalogEntry {
	return slices.Clone(c.entries)
}

func (c *Catalog) Lookup(index uint64) (Locator, bool) {
	i, ok := c.byIndex[index]
	if !ok {
		return Locator{}, false
	}
	return c.entries[i].Loc, true
}

func (c *Catalog) add(e CatalogEntry, limit int) bool {
	var ok bool
	c.entries, ok = reserve(c.entries, 1, catalogStep, limit)
	if !ok {
		return false
	}
	if c.byIndex == nil {
		c.byIndex = make(map[uint64]int)
	}
	c.byIndex[e.Index] = len(c.entries)
	c.entries = append(c.entries, e)
	return true
}

func (c *Catalog) reset() {
	c.entries = c.entries[:0]
	clear(c.byIndex)
}

// Catalog returns the object catalog written or read so far.
func (ch *Channel) Catalog() *Catalog {
	return &ch.catalog
}

// Finish ends a stream. Channels with a partition store append the object
// catalog and a fixed-size trailer pointing at it:
//
//	catalog = 7:8 count:count (index:count partition:32 offset:count length:count)*
//	trailer = catalogOffset:64 "OGRC"
//
// No objects can be written after Finish.
func (ch *Channel) Finish() {
	ch.mustWrite()
	if ch.partitions != nil {
		start := ch.off
		ch.WriteUint8(discObjectCatalog)
		ch.WriteLength(len(ch.catalog.entries))
		for _, e := range ch.catalog.entries {
			ch.WriteCount(e.Index)
			ch.writeLocator(e.Loc)
		}
		ch.WriteUint64(uint64(start))
		ch.WriteBytes([]byte(trailerMagic))
		ch.stats.CatalogEntries = len(ch.catalog.entries)
	}
	ch.finished = true
}

// readCatalogBody reads a catalog section whose discriminator has already
// been consumed, plus the trailer after it.
func (ch *Channel) readCatalogBody() error {
	off := ch.off
	// entries beyond MaxObjects are a capacity fault, not a format error
	n := ch.ReadLength(0)
	ch.catalog.reset()
	for range n {
		var e CatalogEntry
		e.Index = ch.ReadCount()
		e.Loc = ch.readLocator()
		if ch.readBroken() {
			return nil
		}
		if !ch.catalog.add(e, ch.maxObjects) {
			ch.capacityFault(fmt.Sprintf("object catalog is full (%d entries)", ch.catalog.Len()))
			return nil
		}
	}
	ch.ReadUint64()
	magic, ok := ch.ReadBytes(len(trailerMagic))
	if ok && string(magic) != trailerMagic {
		return dataErrf(magic, off, ErrIncompatible, "invalid catalog trailer")
	}
	ch.stats.CatalogEntries = ch.catalog.Len()
	return nil
}

// LoadCatalog reads the object catalog from the end of the stream, then
// returns to the current position. The reader must implement io.Seeker and
// must have been positioned at the start of the stream when the channel was
// opened. A capacity fault hit while loading stays set on the channel.
func (ch *Channel) LoadCatalog() (err error) {
	ch.mustRead()
	rs, ok := ch.r.(io.ReadSeeker)
	if !ok {
		return fmt.Errorf("%w: reader does not support seeking", ErrNoCatalog)
	}
	cur, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	base := cur - ch.off

	savedOff, savedFault := ch.off, ch.fault
	defer func() {
		ch.off = savedOff
		ch.fault = savedFault | ch.fault&FaultOutOfMemory
		if _, serr := rs.Seek(cur, io.SeekStart); serr != nil && err == nil {
			err = fmt.Errorf("restoring stream position: %w", serr)
		}
	}()

	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if end-base < int64(trailerSize) {
		return ErrNoCatalog
	}

	if _, err := rs.Seek(end-int64(trailerSize), io.SeekStart); err != nil {
		return err
	}
	ch.off = end - int64(trailerSize) - base
	catOff := ch.ReadUint64()
	magic, _ := ch.ReadBytes(len(trailerMagic))
	if ch.readBroken() || string(magic) != trailerMagic {
		return ErrNoCatalog
	}
	if catOff >= uint64(end-base) {
		return dataErrf(nil, int64(catOff), ErrIncompatible, "catalog offset out of range")
	}

	if _, err := rs.Seek(base+int64(catOff), io.SeekStart); err != nil {
		return err
	}
	ch.off = int64(catOff)
	if disc := ch.ReadUint8(); disc != discObjectCatalog {
		return dataErrf([]byte{disc}, int64(catOff), ErrIncompatible, "catalog offset does not point at a catalog")
	}
	if err := ch.readCatalogBody(); err != nil {
		return err
	}
	if ch.readBroken() {
		return dataErrf(nil, ch.off, ErrIncompatible, "truncated object catalog (%v)", ch.fault)
	}
	return nil
}

// BeginSparsePass starts a pass for random access: FetchObject calls made
// within it share decoded objects. It returns false if a pass is active.
func (ch *Channel) BeginSparsePass() bool {
	ch.mustRead()
	if ch.pass != nil {
		return false
	}
	ch.pass = newSparsePassRegistry(ch.maxObjects)
	for _, e := range ch.catalog.entries {
		ch.pass.SetLocator(e.Index, e.Loc)
	}
	return true
}

// FetchObject decodes the detached object with the given index straight
// from its locator. Back-references inside it resolve to other detached
// objects, which are fetched on demand; a reference to an object that was
// stored inline in the main stream cannot be resolved this way.
func (ch *Channel) FetchObject(index uint64) (Persistent, error) {
	ch.mustRead()
	if ch.partitions == nil {
		return nil, ErrNoPartitions
	}
	loc, ok := ch.catalog.Lookup(index)
	if !ok {
		if ch.catalog.Len() == 0 {
			return nil, ErrNoCatalog
		}
		return nil, fmt.Errorf("%w: #%d", ErrNotInCatalog, index)
	}
	if ch.pass == nil {
		ch.BeginSparsePass()
		defer ch.EndPass()
	} else if !ch.pass.IsSparse() {
		return nil, fmt.Errorf("%w: FetchObject during a sequential pass", ErrWrongMode)
	}
	if obj := ch.pass.Lookup(index); obj != nil {
		return obj, nil
	}
	return ch.readDetached(index, loc, true)
}
