package objgraph_test

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/andreyvit/objgraph"
	"github.com/andreyvit/objgraph/objgraphtest"
)

func detachPointsAndSegments(obj objgraph.Persistent) (uint32, bool) {
	switch obj.(type) {
	case *objgraphtest.Point:
		return 1, true
	case *objgraphtest.Segment:
		return 2, true
	default:
		return 0, false
	}
}

// detachedGraph is written as: root #0 inline, p1 #1 and p2 #2 detached,
// seg #3 detached with back-references to #1 and #2, circle #4 inline.
func detachedGraph() *objgraphtest.Group {
	p1 := &objgraphtest.Point{Shape: objgraphtest.Shape{Name: "p1"}, X: 1}
	p2 := &objgraphtest.Point{Shape: objgraphtest.Shape{Name: "p2"}, X: 2}
	return &objgraphtest.Group{
		Shape: objgraphtest.Shape{Name: "root"},
		Children: []objgraph.Persistent{
			p1,
			p2,
			&objgraphtest.Segment{Shape: objgraphtest.Shape{Name: "seg"}, From: p1, To: p2},
			&objgraphtest.Circle{Shape: objgraphtest.Shape{Name: "c"}, Center: p1},
		},
	}
}

func writeDetached(t *testing.T, store objgraph.PartitionStore, version uint32) []byte {
	t.Helper()
	w, buf := objgraphtest.Writer(t, objgraphtest.Registry(), objgraph.Options{
		Version:    version,
		Partitions: store,
		Detach:     detachPointsAndSegments,
	})
	ensure(w.WriteObject(detachedGraph()))
	w.Finish()
	if !w.Good() {
		t.Fatalf("writer fault: %v", w.Fault())
	}
	st := w.Stats()
	deepEqual(t, st.Detached, 3)
	deepEqual(t, st.Inline, 2)
	deepEqual(t, st.TotalBackRefs(), 3)
	deepEqual(t, st.CatalogEntries, 3)

	indices := make([]uint64, 0, 3)
	for _, e := range w.Catalog().Entries() {
		indices = append(indices, e.Index)
	}
	deepEqual(t, indices, []uint64{1, 2, 3})
	return buf.Bytes()
}

func partitionStores(t *testing.T) map[string]func() objgraph.PartitionStore {
	return map[string]func() objgraph.PartitionStore{
		"mem": func() objgraph.PartitionStore {
			return objgraph.NewMemPartitions()
		},
		"bolt": func() objgraph.PartitionStore {
			s := must(objgraph.OpenBoltPartitions(filepath.Join(t.TempDir(), "parts.db"), objgraph.BoltOptions{IsTesting: true}))
			t.Cleanup(func() { s.Close() })
			return s
		},
		"file": func() objgraph.PartitionStore {
			s := must(objgraph.OpenFilePartitions(t.TempDir(), objgraph.FileOptions{}))
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestDetached_Sequential(t *testing.T) {
	for name, open := range partitionStores(t) {
		for _, version := range []uint32{objgraph.VersionInitial, objgraph.VersionCurrent} {
			t.Run(name, func(t *testing.T) {
				store := open()
				data := writeDetached(t, store, version)

				rd := objgraphtest.Reader(t, objgraphtest.Registry(), data, objgraph.Options{Partitions: store})
				g := must(objgraph.ReadObjectAs[*objgraphtest.Group](rd))
				p1 := g.Children[0].(*objgraphtest.Point)
				p2 := g.Children[1].(*objgraphtest.Point)
				seg := g.Children[2].(*objgraphtest.Segment)
				c := g.Children[3].(*objgraphtest.Circle)
				deepEqual(t, p1.Name, "p1")
				deepEqual(t, p2.X, 2.0)
				if seg.From != p1 || seg.To != p2 || c.Center != p1 {
					t.Fatalf("identities across detached bodies were not preserved")
				}
				deepEqual(t, rd.Stats().Fetched, 3)

				if _, err := rd.ReadObject(); err != io.EOF {
					t.Fatalf("ReadObject after last object err = %v, wanted io.EOF", err)
				}
				deepEqual(t, rd.Catalog().Len(), 3)
				deepEqual(t, rd.Good(), true)
			})
		}
	}
}

func TestDetached_FetchObject(t *testing.T) {
	for name, open := range partitionStores(t) {
		t.Run(name, func(t *testing.T) {
			store := open()
			data := writeDetached(t, store, objgraph.VersionCurrent)

			rd := objgraphtest.Reader(t, objgraphtest.Registry(), data, objgraph.Options{Partitions: store})
			if _, err := rd.FetchObject(1); !errors.Is(err, objgraph.ErrNoCatalog) {
				t.Fatalf("FetchObject before LoadCatalog err = %v, wanted ErrNoCatalog", err)
			}
			off := rd.Offset()
			ensure(rd.LoadCatalog())
			deepEqual(t, rd.Catalog().Len(), 3)
			deepEqual(t, rd.Offset(), off)

			seg := must(rd.FetchObject(3)).(*objgraphtest.Segment)
			deepEqual(t, seg.Name, "seg")
			deepEqual(t, seg.From.Name, "p1")
			deepEqual(t, seg.To.Name, "p2")

			rd.BeginSparsePass()
			p2 := must(rd.FetchObject(2))
			seg = must(rd.FetchObject(3)).(*objgraphtest.Segment)
			if objgraph.Persistent(seg.To) != p2 {
				t.Fatalf("FetchObject in a shared pass duplicated p2")
			}
			rd.EndPass()

			if _, err := rd.FetchObject(0); !errors.Is(err, objgraph.ErrNotInCatalog) {
				t.Fatalf("FetchObject(0) err = %v, wanted ErrNotInCatalog", err)
			}

			// the main stream is still readable from the start
			g := must(objgraph.ReadObjectAs[*objgraphtest.Group](rd))
			deepEqual(t, len(g.Children), 4)
			deepEqual(t, rd.Good(), true)
		})
	}
}

// nestedDetachedGraph is written as: root #0 inline, seg #1 detached, then
// p1 #2 and p2 #3 detached from within seg's body, circle #4 inline.
func nestedDetachedGraph() *objgraphtest.Group {
	p1 := &objgraphtest.Point{Shape: objgraphtest.Shape{Name: "p1"}, X: 1}
	p2 := &objgraphtest.Point{Shape: objgraphtest.Shape{Name: "p2"}, X: 2}
	return &objgraphtest.Group{
		Shape: objgraphtest.Shape{Name: "root"},
		Children: []objgraph.Persistent{
			&objgraphtest.Segment{Shape: objgraphtest.Shape{Name: "seg"}, From: p1, To: p2},
			&objgraphtest.Circle{Shape: objgraphtest.Shape{Name: "c"}, Center: p2},
		},
	}
}

func TestDetached_FetchNested(t *testing.T) {
	for name, open := range partitionStores(t) {
		t.Run(name, func(t *testing.T) {
			store := open()
			w, buf := objgraphtest.Writer(t, objgraphtest.Registry(), objgraph.Options{
				Partitions: store,
				Detach:     detachPointsAndSegments,
			})
			ensure(w.WriteObject(nestedDetachedGraph()))
			w.Finish()
			deepEqual(t, w.Good(), true)
			indices := make([]uint64, 0, 3)
			for _, e := range w.Catalog().Entries() {
				indices = append(indices, e.Index)
			}
			deepEqual(t, indices, []uint64{2, 3, 1})
			data := buf.Bytes()

			rd := objgraphtest.Reader(t, objgraphtest.Registry(), data, objgraph.Options{Partitions: store})
			g := must(objgraph.ReadObjectAs[*objgraphtest.Group](rd))
			seg := g.Children[0].(*objgraphtest.Segment)
			deepEqual(t, seg.To.Name, "p2")
			if g.Children[1].(*objgraphtest.Circle).Center != seg.To {
				t.Fatalf("circle center is not seg.To")
			}

			rd = objgraphtest.Reader(t, objgraphtest.Registry(), data, objgraph.Options{Partitions: store})
			ensure(rd.LoadCatalog())

			seg = must(rd.FetchObject(1)).(*objgraphtest.Segment)
			deepEqual(t, seg.Name, "seg")
			deepEqual(t, seg.From.Name, "p1")
			deepEqual(t, seg.To.Name, "p2")
			deepEqual(t, seg.To.X, 2.0)

			// child, then parent
			rd.BeginSparsePass()
			p2 := must(rd.FetchObject(3))
			seg = must(rd.FetchObject(1)).(*objgraphtest.Segment)
			if objgraph.Persistent(seg.To) != p2 {
				t.Fatalf("seg.To = %p, wanted the fetched p2 %p", seg.To, p2)
			}
			deepEqual(t, seg.From.Name, "p1")
			if must(rd.FetchObject(2)) != objgraph.Persistent(seg.From) {
				t.Fatalf("FetchObject(2) decoded p1 again")
			}
			if must(rd.FetchObject(1)) != objgraph.Persistent(seg) {
				t.Fatalf("FetchObject(1) decoded seg again")
			}
			rd.EndPass()

			// first child, then parent
			rd.BeginSparsePass()
			p1 := must(rd.FetchObject(2))
			seg = must(rd.FetchObject(1)).(*objgraphtest.Segment)
			if objgraph.Persistent(seg.From) != p1 {
				t.Fatalf("seg.From = %p, wanted the fetched p1 %p", seg.From, p1)
			}
			deepEqual(t, seg.To.Name, "p2")
			rd.EndPass()
			deepEqual(t, rd.Good(), true)
		})
	}
}

type seekCounter struct {
	*bytes.Reader
	seeks  int
	failAt int
}

func (s *seekCounter) Seek(offset int64, whence int) (int64, error) {
	s.seeks++
	if s.seeks == s.failAt {
		return 0, errors.New("seek failed")
	}
	return s.Reader.Seek(offset, whence)
}

func TestDetached_LoadCatalogRestore(t *testing.T) {
	store := objgraph.NewMemPartitions()
	data := writeDetached(t, store, objgraph.VersionCurrent)

	t.Run("capacity", func(t *testing.T) {
		rd := objgraphtest.Reader(t, objgraphtest.Registry(), data, objgraph.Options{Partitions: store, MaxObjects: 2})
		off := rd.Offset()
		ensure(rd.LoadCatalog())
		deepEqual(t, rd.Fault(), objgraph.FaultOutOfMemory)
		deepEqual(t, rd.Catalog().Len(), 2)
		deepEqual(t, rd.Offset(), off)
	})

	t.Run("seek back fails", func(t *testing.T) {
		// current, end, trailer, catalog, then back
		src := &seekCounter{Reader: bytes.NewReader(data), failAt: 5}
		rd, err := objgraph.NewReader(src, objgraphtest.Registry(), objgraph.Options{Partitions: store, Logger: objgraphtest.Logger(t)})
		ensure(err)
		if err := rd.LoadCatalog(); err == nil {
			t.Fatalf("LoadCatalog succeeded although the stream position was lost")
		}
		deepEqual(t, src.seeks, 5)
		deepEqual(t, rd.Good(), true)
	})
}

func TestDetached_Errors(t *testing.T) {
	t.Run("no partitions when writing", func(t *testing.T) {
		w, _ := objgraphtest.Writer(t, objgraphtest.Registry(), objgraph.Options{Detach: detachPointsAndSegments})
		err := w.WriteObject(&objgraphtest.Point{})
		if !errors.Is(err, objgraph.ErrNoPartitions) {
			t.Fatalf("WriteObject err = %v, wanted ErrNoPartitions", err)
		}
	})

	t.Run("no partitions when reading", func(t *testing.T) {
		data := writeDetached(t, objgraph.NewMemPartitions(), objgraph.VersionCurrent)
		rd := objgraphtest.Reader(t, objgraphtest.Registry(), data, objgraph.Options{})
		if _, err := rd.ReadObject(); !errors.Is(err, objgraph.ErrNoPartitions) {
			t.Fatalf("ReadObject err = %v, wanted ErrNoPartitions", err)
		}
		if _, err := rd.FetchObject(1); !errors.Is(err, objgraph.ErrNoPartitions) {
			t.Fatalf("FetchObject err = %v, wanted ErrNoPartitions", err)
		}
	})

	t.Run("corrupt body", func(t *testing.T) {
		store := objgraph.NewMemPartitions()
		data := writeDetached(t, store, objgraph.VersionCurrent)
		store.Corrupt(1, 0)
		rd := objgraphtest.Reader(t, objgraphtest.Registry(), data, objgraph.Options{Partitions: store})
		_, err := rd.ReadObject()
		if !errors.Is(err, objgraph.ErrChecksum) {
			t.Fatalf("ReadObject err = %v, wanted ErrChecksum", err)
		}
		deepEqual(t, rd.Fault(), objgraph.FaultFail)
	})

	t.Run("no catalog", func(t *testing.T) {
		w, buf := objgraphtest.Writer(t, objgraphtest.Registry(), objgraph.Options{})
		ensure(w.WriteObject(&objgraphtest.Point{}))
		rd := objgraphtest.Reader(t, objgraphtest.Registry(), buf.Bytes(), objgraph.Options{})
		if err := rd.LoadCatalog(); !errors.Is(err, objgraph.ErrNoCatalog) {
			t.Fatalf("LoadCatalog err = %v, wanted ErrNoCatalog", err)
		}
		must(rd.ReadObject())
		deepEqual(t, rd.Good(), true)
	})

	t.Run("not seekable", func(t *testing.T) {
		data := writeDetached(t, objgraph.NewMemPartitions(), objgraph.VersionCurrent)
		rd, err := objgraph.NewReader(io.MultiReader(bytes.NewReader(data)), objgraphtest.Registry(), objgraph.Options{Logger: objgraphtest.Logger(t)})
		ensure(err)
		if err := rd.LoadCatalog(); !errors.Is(err, objgraph.ErrNoCatalog) {
			t.Fatalf("LoadCatalog err = %v, wanted ErrNoCatalog", err)
		}
	})

	t.Run("capacity", func(t *testing.T) {
		store := objgraph.NewMemPartitions()
		data := writeDetached(t, store, objgraph.VersionCurrent)
		rd := objgraphtest.Reader(t, objgraphtest.Registry(), data, objgraph.Options{Partitions: store, MaxObjects: 2})
		_, err := rd.ReadObject()
		if !errors.Is(err, objgraph.ErrBadReference) {
			t.Fatalf("ReadObject err = %v, wanted ErrBadReference", err)
		}
		deepEqual(t, rd.Fault(), objgraph.FaultOutOfMemory)
	})
}
