package objgraph

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ClassID identifies a persistable class on the wire: a 16-bit hash of the
// canonical class name plus the UUID of the application that owns the class.
// Two classes of one application must not share a hash.
type ClassID struct {
	Hash uint16
	App  uuid.UUID
}

func (id ClassID) String() string {
	if id.App == uuid.Nil {
		return fmt.Sprintf("%04x", id.Hash)
	}
	return fmt.Sprintf("%04x@%v", id.Hash, id.App)
}

func (id ClassID) IsZero() bool {
	return id == ClassID{}
}

// Compare orders identities by hash, then by application UUID bytes.
func (id ClassID) Compare(other ClassID) int {
	if id.Hash != other.Hash {
		if id.Hash < other.Hash {
			return -1
		}
		return 1
	}
	return bytes.Compare(id.App[:], other.App[:])
}

// IdentityOf computes the identity of a class given any spelling of its
// type name, see CanonicalName.
func IdentityOf(rawTypeName string, app uuid.UUID) ClassID {
	return ClassID{Hash: HashName(CanonicalName(rawTypeName)), App: app}
}

var nameKeywords = []string{"class ", "struct ", "union ", "enum ", "const ", "volatile "}

// CanonicalName reduces a decorated type name to the short class name that
// gets hashed. It accepts the spellings produced by the toolchains that have
// written streams over time:
//
//   - C++ RTTI names ("class geo::Circle", "struct Circle", "6Circle");
//   - Go type names ("*geom.Circle", "github.com/x/geom.Circle").
//
// Leading keywords, pointer markers, digit length prefixes and any namespace
// or package qualifier are removed. Generic arguments are kept.
func CanonicalName(raw string) string {
	s := strings.TrimSpace(raw)
	for {
		stripped := false
		for _, kw := range nameKeywords {
			if strings.HasPrefix(s, kw) {
				s = strings.TrimSpace(s[len(kw):])
				stripped = true
			}
		}
		if t := strings.TrimLeft(s, "*&"); t != s {
			s, stripped = t, true
		}
		if t, ok := stripLengthPrefix(s); ok {
			s, stripped = t, true
		}
		if !stripped {
			break
		}
	}

	head, args := s, ""
	if i := strings.IndexAny(s, "[<"); i >= 0 {
		head, args = s[:i], s[i:]
	}
	if i := strings.LastIndex(head, "::"); i >= 0 {
		head = head[i+2:]
	}
	if i := strings.LastIndexByte(head, '/'); i >= 0 {
		head = head[i+1:]
	}
	if i := strings.LastIndexByte(head, '.'); i >= 0 {
		head = head[i+1:]
	}
	return head + args
}

// stripLengthPrefix removes an Itanium-style "<len><name>" prefix, but only
// when the length matches the rest of the string exactly.
func stripLengthPrefix(s string) (string, bool) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i == len(s) {
		return s, false
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil || n != len(s)-i {
		return s, false
	}
	return s[i:], true
}

// HashName folds a canonical name into 16 bits: seed with the length, XOR in
// each little-endian 32-bit word, XOR the zero-padded tail, then fold the high
// half into the low half. The function is part of the wire format.
func HashName(name string) uint16 {
	n := len(name)
	h := uint32(n)
	i := 0
	for ; i+4 <= n; i += 4 {
		h ^= binary.LittleEndian.Uint32([]byte(name[i : i+4]))
		h = bits.RotateLeft32(h, 5)
	}
	if rem := n - i; rem > 0 {
		var tail [4]byte
		copy(tail[:], name[i:])
		w := binary.LittleEndian.Uint32(tail[:])
		w &= 1<<(8*rem) - 1
		h ^= w
	}
	return uint16(h) ^ uint16(h>>16)
}
