package objgraph

import (
	"errors"
	"fmt"
)

var errRegistryFull = errors.New("pass registry is full")

// PassRegistry maps objects to the dense indices they receive during one
// write or read pass. A channel creates one per top-level call and drops it
// when the call returns; indices are meaningless outside that pass.
//
// A sparse registry accepts AddAt at any free index. It is used to decode a
// single detached object straight from its locator, without decoding the
// objects that precede it.
type PassRegistry struct {
	byObj    map[Persistent]uint64
	byIndex  map[uint64]Persistent
	next     uint64
	sparse   bool
	limit    int
	locators map[uint64]Locator

	// ends maps the index of each detached body decoded in a sparse pass to
	// the index following its subtree.
	ends map[uint64]uint64
}

func NewPassRegistry(limit int) *PassRegistry {
	return &PassRegistry{
		byObj:   make(map[Persistent]uint64),
		byIndex: make(map[uint64]Persistent),
		limit:   limit,
	}
}

func newSparsePassRegistry(limit int) *PassRegistry {
	r := NewPassRegistry(limit)
	r.sparse = true
	r.locators = make(map[uint64]Locator)
	r.ends = make(map[uint64]uint64)
	return r
}

func (r *PassRegistry) Len() int {
	return len(r.byIndex)
}

// Next is the index the next new object will receive.
func (r *PassRegistry) Next() uint64 {
	return r.next
}

func (r *PassRegistry) IsSparse() bool {
	return r.sparse
}

// Add registers obj for writing. An object that is already registered keeps
// its index and added is false.
func (r *PassRegistry) Add(obj Persistent) (index uint64, added bool, err error) {
	if idx, ok := r.byObj[obj]; ok {
		return idx, false, nil
	}
	if r.limit > 0 && len(r.byIndex) >= r.limit {
		return 0, false, errRegistryFull
	}
	idx := r.next
	r.byObj[obj] = idx
	r.byIndex[idx] = obj
	r.next++
	return idx, true, nil
}

// AddAt registers an object being read. Unless the registry is sparse, index
// must be the next index. It must be called before the object's fields are
// decoded, so that the fields can refer back to the object.
func (r *PassRegistry) AddAt(obj Persistent, index uint64) error {
	if !r.sparse && index != r.next {
		return fmt.Errorf("registering index %d out of order, expected %d", index, r.next)
	}
	if prev, ok := r.byIndex[index]; ok {
		return fmt.Errorf("index %d already holds %T", index, prev)
	}
	if r.limit > 0 && len(r.byIndex) >= r.limit {
		return errRegistryFull
	}
	r.byObj[obj] = index
	r.byIndex[index] = obj
	if index >= r.next {
		r.next = index + 1
	}
	return nil
}

func (r *PassRegistry) Lookup(index uint64) Persistent {
	return r.byIndex[index]
}

func (r *PassRegistry) IndexOf(obj Persistent) (uint64, bool) {
	idx, ok := r.byObj[obj]
	return idx, ok
}

// Remove drops a provisional registration, typically of an object that
// failed to finish decoding. Removing the most recent index also gives the
// index back.
func (r *PassRegistry) Remove(index uint64) {
	obj, ok := r.byIndex[index]
	if !ok {
		return
	}
	delete(r.byIndex, index)
	delete(r.byObj, obj)
	delete(r.ends, index)
	if index+1 == r.next {
		r.next = index
	}
}

// Flush forgets every registration, so that the next object starts a new
// graph at index 0. Locators are kept.
func (r *PassRegistry) Flush() {
	clear(r.byObj)
	clear(r.byIndex)
	clear(r.ends)
	r.next = 0
}

// SetLocator records where the body of the object at index is stored.
func (r *PassRegistry) SetLocator(index uint64, loc Locator) {
	if r.locators == nil {
		r.locators = make(map[uint64]Locator)
	}
	r.locators[index] = loc
}

func (r *PassRegistry) Locator(index uint64) (Locator, bool) {
	loc, ok := r.locators[index]
	return loc, ok
}

// seek moves the next index, so that a detached body decoded out of order
// numbers its nested objects the way the writer did.
func (r *PassRegistry) seek(index uint64) (prev uint64) {
	prev = r.next
	r.next = index
	return prev
}

func (r *PassRegistry) setSubtreeEnd(index, end uint64) {
	if r.ends != nil {
		r.ends[index] = end
	}
}

// subtreeEnd returns the index following the subtree of the detached body
// decoded at index, or index+1 if it is unknown.
func (r *PassRegistry) subtreeEnd(index uint64) uint64 {
	if end, ok := r.ends[index]; ok {
		return end
	}
	return index + 1
}
