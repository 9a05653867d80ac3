package objgraph

import (
	"strings"
	"testing"
)

func TestStrings_Legacy(t *testing.T) {
	w, buf := testWriter(t, VersionInitial, Options{})
	w.WriteString("héllo")
	w.WriteString("")
	w.WriteOptionalString("x", false)
	w.WriteString("a日b")
	deepEqual(t, w.Good(), true)
	deepEqual(t, body(w, buf), []byte{
		5, 0, 'h', 0xE9, 'l', 'l', 'o',
		0, 0,
		0, 0,
		3, 0, 'a', 0x1A, 'b',
	})

	r := testReader(t, buf.Bytes(), Options{})
	deepEqual(t, r.ReadString(), "héllo")
	s, ok := r.ReadOptionalString()
	if s != "" || ok {
		t.Fatalf("empty legacy string = %q, %v, wanted absent", s, ok)
	}
	deepEqual(t, r.ReadString(), "")
	deepEqual(t, r.ReadString(), "a\x1Ab")
	deepEqual(t, r.Good(), true)
}

func TestStrings_LegacyAbsentMarker(t *testing.T) {
	w, buf := testWriter(t, VersionInitial, Options{})
	w.WriteUint16(legacyStringAbsent)
	w.WriteString("z")
	r := testReader(t, buf.Bytes(), Options{})
	s, ok := r.ReadOptionalString()
	if s != "" || ok {
		t.Fatalf("ReadOptionalString = %q, %v, wanted absent", s, ok)
	}
	deepEqual(t, r.ReadString(), "z")
}

func TestStrings_LegacyTruncation(t *testing.T) {
	w, buf := testWriter(t, VersionInitial, Options{})
	w.WriteString(strings.Repeat("a", 0x10000))
	deepEqual(t, w.Fault(), FaultUnderflow64to32)

	r := testReader(t, buf.Bytes(), Options{})
	deepEqual(t, len(r.ReadString()), legacyStringMaxLen)
	deepEqual(t, r.Good(), true)
}

func TestStrings_Unicode(t *testing.T) {
	w, buf := testWriter(t, VersionUnicode, Options{})
	w.WriteString("h€😀")
	w.WriteString("")
	w.WriteOptionalString("", false)
	deepEqual(t, body(w, buf), []byte{
		4, 0, 0, 0, 'h', 0, 0xAC, 0x20, 0x3D, 0xD8, 0x00, 0xDE,
		0, 0, 0, 0,
		0xFF, 0xFF, 0xFF, 0xFF,
	})

	r := testReader(t, buf.Bytes(), Options{})
	deepEqual(t, r.ReadString(), "h€😀")
	s, ok := r.ReadOptionalString()
	if s != "" || !ok {
		t.Fatalf("empty string = %q, %v, wanted present", s, ok)
	}
	s, ok = r.ReadOptionalString()
	if s != "" || ok {
		t.Fatalf("absent string = %q, %v, wanted absent", s, ok)
	}
	deepEqual(t, r.Good(), true)
}

func TestStrings_UnicodeTruncatedData(t *testing.T) {
	w, buf := testWriter(t, VersionCurrent, Options{})
	w.WriteUint32(10)
	w.WriteBytes([]byte{'a', 0})
	r := testReader(t, buf.Bytes(), Options{})
	s, ok := r.ReadOptionalString()
	if s != "" || ok {
		t.Fatalf("ReadOptionalString = %q, %v", s, ok)
	}
	deepEqual(t, r.Fault(), FaultFail|FaultEOF)
}
