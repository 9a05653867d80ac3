package objgraph

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"math"
	"reflect"
)

// Reference discriminators. The values are part of the stream format.
const (
	discNull          byte = 0
	discIndexed16     byte = 1
	discObject        byte = 2
	discIndexed8      byte = 3
	discIndexed32     byte = 4
	discIndexed64     byte = 5
	discDetached      byte = 6
	discObjectCatalog byte = 7
)

// Back-reference tiers. Each tier reserves its all-ones value, so Indexed8
// carries indices 0..254, Indexed16 up to 65534 and Indexed32 up to 2^32-2.
const (
	maxIndexed8  = math.MaxUint8 - 1
	maxIndexed16 = math.MaxUint16 - 1
	maxIndexed32 = math.MaxUint32 - 1
	maxIndexed64 = math.MaxUint64 - 1
)

func isNilObject(obj Persistent) bool {
	if obj == nil {
		return true
	}
	v := reflect.ValueOf(obj)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// WriteObject writes obj as the root of a graph. If no pass is active, it
// runs in a pass of its own.
func (ch *Channel) WriteObject(obj Persistent) error {
	if isNilObject(obj) {
		return ErrNullObject
	}
	return ch.WriteObjectPointer(obj)
}

// ReadObject reads an object written by WriteObject. A null reference is
// reported as ErrNullObject; an I/O fault yields a nil object and sets the
// channel fault. After the last object it returns io.EOF: streams with
// partitions end with the object catalog, which is loaded, and other streams
// simply run out of bytes, which is not a fault.
func (ch *Channel) ReadObject() (Persistent, error) {
	ch.mustRead()
	start, fault := ch.off, ch.fault
	obj, err := ch.ReadObjectPointer()
	if err != nil {
		return nil, err
	}
	if obj == nil && !ch.readBroken() {
		return nil, ErrNullObject
	}
	if obj == nil && ch.off == start && fault&(FaultFail|FaultEOF) == 0 && ch.fault.Has(FaultEOF) {
		ch.fault = fault
		return nil, io.EOF
	}
	return obj, nil
}

// ReadObjectAs reads an object and checks that it is a T.
func ReadObjectAs[T Persistent](ch *Channel) (T, error) {
	var zero T
	obj, err := ch.ReadObject()
	if err != nil || obj == nil {
		return zero, err
	}
	t, ok := obj.(T)
	if !ok {
		return zero, &ClassError{ID: obj.ClassID(), Off: ch.off, Err: ErrClassMismatch}
	}
	return t, nil
}

// ReadObjectPointerAs reads a reference field that must be nil or a T.
func ReadObjectPointerAs[T Persistent](ch *Channel) (T, error) {
	var zero T
	obj, err := ch.ReadObjectPointer()
	if err != nil || obj == nil {
		return zero, err
	}
	t, ok := obj.(T)
	if !ok {
		return zero, &ClassError{ID: obj.ClassID(), Off: ch.off, Err: ErrClassMismatch}
	}
	return t, nil
}

// ReadObjectPointerOf reads a reference field and checks it against a
// registered class using the class's Cast function.
func (ch *Channel) ReadObjectPointerOf(id ClassID) (Persistent, error) {
	class := ch.reg.Lookup(id)
	if class == nil {
		return nil, &ClassError{ID: id, Off: ch.off, Err: ErrUnknownClass}
	}
	obj, err := ch.ReadObjectPointer()
	if err != nil || obj == nil {
		return nil, err
	}
	if class.Cast != nil && !class.Cast(obj) {
		return nil, &ClassError{ID: obj.ClassID(), Off: ch.off, Err: ErrClassMismatch}
	}
	return obj, nil
}

// WriteObjectPointer writes one reference field. An object that was
// already written in this pass becomes a back-reference; otherwise its body
// follows inline, or goes to a partition if Options.Detach elects it.
func (ch *Channel) WriteObjectPointer(obj Persistent) error {
	ch.mustWrite()
	if ch.BeginPass() {
		defer ch.EndPass()
	}

	if isNilObject(obj) {
		ch.WriteUint8(discNull)
		ch.stats.Nulls++
		return nil
	}
	if idx, ok := ch.pass.IndexOf(obj); ok {
		ch.writeBackRef(idx)
		return nil
	}

	id := obj.ClassID()
	if ch.reg.Lookup(id) == nil {
		return &ClassError{ID: id, Off: ch.off, Err: ErrUnknownClass}
	}
	if ch.version < VersionClassUUID && id.App != ch.primaryApp() {
		return fmt.Errorf("%w: class %v cannot be written to a version %d stream of application %v", ErrIncompatible, id, ch.version, ch.primaryApp())
	}

	if ch.detach != nil {
		if partition, ok := ch.detach(obj); ok {
			return ch.writeDetached(obj, id, partition)
		}
	}

	idx, _, ok := ch.Registrate(obj)
	if !ok {
		ch.WriteUint8(discNull)
		return nil
	}
	ch.WriteUint8(discObject)
	ch.writeClassID(id)
	ch.stats.Inline++
	if err := obj.EncodeFields(ch); err != nil {
		return fmt.Errorf("writing %v #%d: %w", id, idx, err)
	}
	return nil
}

func (ch *Channel) writeBackRef(idx uint64) {
	switch {
	case idx <= maxIndexed8:
		ch.WriteUint8(discIndexed8)
		ch.WriteUint8(uint8(idx))
		ch.stats.BackRefs[0]++
	case idx <= maxIndexed16:
		ch.WriteUint8(discIndexed16)
		ch.WriteUint16(uint16(idx))
		ch.stats.BackRefs[1]++
	case idx <= maxIndexed32:
		ch.WriteUint8(discIndexed32)
		ch.WriteUint32(uint32(idx))
		ch.stats.BackRefs[2]++
	default:
		ch.WriteUint8(discIndexed64)
		ch.WriteUint64(idx)
		ch.stats.BackRefs[3]++
	}
}

func (ch *Channel) writeClassID(id ClassID) {
	ch.WriteUint16(id.Hash)
	if ch.version >= VersionClassUUID {
		ch.WriteBytes(id.App[:])
	}
}

func (ch *Channel) readClassID() ClassID {
	var id ClassID
	id.Hash = ch.ReadUint16()
	if ch.version >= VersionClassUUID {
		raw, _ := ch.ReadBytes(len(id.App))
		copy(id.App[:], raw)
	} else {
		id.App = ch.primaryApp()
	}
	return id
}

// writeDetached registers obj, writes its body (identity and fields) to a
// partition, and leaves only the locator in the main stream.
func (ch *Channel) writeDetached(obj Persistent, id ClassID, partition uint32) error {
	if ch.partitions == nil {
		return fmt.Errorf("detaching %v: %w", id, ErrNoPartitions)
	}
	idx, _, ok := ch.Registrate(obj)
	if !ok {
		ch.WriteUint8(discNull)
		return nil
	}

	var body Buffer
	err := ch.withWriter(&body, func() error {
		ch.writeClassID(id)
		return obj.EncodeFields(ch)
	})
	if err != nil {
		return fmt.Errorf("writing detached %v #%d: %w", id, idx, err)
	}

	loc, err := ch.partitions.Append(partition, body.Bytes())
	if err != nil {
		ch.setFault(FaultFail, err.Error())
		return err
	}
	ch.pass.SetLocator(idx, loc)
	if !ch.catalog.add(CatalogEntry{Index: idx, Loc: loc}, ch.maxObjects) {
		ch.capacityFault(fmt.Sprintf("object catalog is full (%d entries)", ch.catalog.Len()))
	}

	ch.WriteUint8(discDetached)
	ch.writeLocator(loc)
	ch.stats.Detached++
	ch.debugf("objgraph: detached", slog.Uint64("index", idx), slog.String("class", id.String()), slog.String("loc", loc.String()))
	return nil
}

// ReadObjectPointer reads one reference field written by
// WriteObjectPointer and returns the object it refers to, or nil.
func (ch *Channel) ReadObjectPointer() (Persistent, error) {
	ch.mustRead()
	if ch.BeginPass() {
		defer ch.EndPass()
	}

	off := ch.off
	disc := ch.ReadUint8()
	if ch.readBroken() {
		return nil, nil
	}
	switch disc {
	case discNull:
		ch.stats.Nulls++
		return nil, nil
	case discIndexed8, discIndexed16, discIndexed32, discIndexed64:
		return ch.readBackRef(disc, off)
	case discObject:
		ch.stats.Inline++
		return ch.readBody(ch.pass.Next())
	case discDetached:
		loc := ch.readLocator()
		if ch.readBroken() {
			return nil, nil
		}
		if ch.partitions == nil {
			return nil, fmt.Errorf("detached object at offset %d: %w", off, ErrNoPartitions)
		}
		idx := ch.pass.Next()
		ch.pass.SetLocator(idx, loc)
		ch.stats.Detached++
		if obj := ch.pass.Lookup(idx); obj != nil {
			// decoded by an earlier fetch of this sparse pass
			ch.pass.seek(ch.pass.subtreeEnd(idx))
			return obj, nil
		}
		return ch.readDetached(idx, loc, false)
	case discObjectCatalog:
		if err := ch.readCatalogBody(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	default:
		return nil, dataErrf([]byte{disc}, off, nil, "invalid reference discriminator %d", disc)
	}
}

func (ch *Channel) readBackRef(disc byte, off int64) (Persistent, error) {
	var idx, limit uint64
	switch disc {
	case discIndexed8:
		idx, limit = uint64(ch.ReadUint8()), maxIndexed8
	case discIndexed16:
		idx, limit = uint64(ch.ReadUint16()), maxIndexed16
	case discIndexed32:
		idx, limit = uint64(ch.ReadUint32()), maxIndexed32
	default:
		idx, limit = ch.ReadUint64(), maxIndexed64
	}
	if ch.readBroken() {
		return nil, nil
	}
	if idx > limit {
		return nil, refErrf(idx, ch.pass.Next(), off, "reserved index value for discriminator %d", disc)
	}
	ch.stats.countBackRef(disc)

	if obj := ch.pass.Lookup(idx); obj != nil {
		return obj, nil
	}
	if ch.pass.IsSparse() {
		loc, ok := ch.pass.Locator(idx)
		if !ok {
			loc, ok = ch.catalog.Lookup(idx)
		}
		if ok {
			return ch.readDetached(idx, loc, true)
		}
	}
	if idx >= ch.pass.Next() {
		return nil, refErrf(idx, ch.pass.Next(), off, "forward reference")
	}
	return nil, refErrf(idx, ch.pass.Next(), off, "object is not available")
}

// readBody decodes an identity and the fields that follow it, registering
// the new object at index before its fields are decoded.
func (ch *Channel) readBody(index uint64) (Persistent, error) {
	off := ch.off
	id := ch.readClassID()
	if ch.readBroken() {
		return nil, nil
	}
	class, err := ch.reg.Resolve(id, ch.renames)
	if err != nil {
		if ce, ok := err.(*ClassError); ok {
			ce.Off = off
		}
		return nil, err
	}

	obj := class.New()
	registered := true
	if err := ch.pass.AddAt(obj, index); err == errRegistryFull {
		ch.capacityFault(fmt.Sprintf("cannot register %v #%d: %v", class, index, err))
		registered = false
		if index >= ch.pass.Next() {
			ch.pass.seek(index + 1)
		}
	} else if err != nil {
		return nil, refErrf(index, ch.pass.Next(), off, "%v", err)
	}

	if err := obj.DecodeFields(ch); err != nil {
		if registered {
			ch.pass.Remove(index)
		}
		return nil, fmt.Errorf("reading %v #%d: %w", class, index, err)
	}
	return obj, nil
}

// readDetached fetches a detached body and decodes it as object index. A body
// reached out of order (a random fetch, or a back-reference resolved through
// a locator) is numbered from index and leaves the index cursor where it was.
// Otherwise the cursor ends up after the body's subtree, as for inline
// objects.
func (ch *Channel) readDetached(index uint64, loc Locator, outOfOrder bool) (Persistent, error) {
	body, err := ch.partitions.Fetch(loc)
	if err != nil {
		ch.setFault(FaultFail, err.Error())
		return nil, fmt.Errorf("fetching object #%d at %v: %w", index, loc, err)
	}
	ch.stats.Fetched++
	ch.debugf("objgraph: fetched", slog.Uint64("index", index), slog.String("loc", loc.String()))

	var prev uint64
	if outOfOrder {
		prev = ch.pass.seek(index)
	}
	var obj Persistent
	err = ch.withReader(bytes.NewReader(body), func() error {
		var err error
		obj, err = ch.readBody(index)
		return err
	})
	if err == nil && ch.pass.IsSparse() {
		ch.pass.setSubtreeEnd(index, ch.pass.Next())
	}
	if outOfOrder {
		ch.pass.seek(prev)
	}
	return obj, err
}
