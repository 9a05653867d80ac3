package objgraph

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/google/uuid"
)

// Persistent is implemented by every class that can be stored in a stream.
// Implementations must be pointer types: object identity within a pass is
// pointer identity.
//
// EncodeFields and DecodeFields must call the same methods of the embedded
// base class first, and only then transfer the fields the class adds, so
// that writer and reader agree on the field order.
type Persistent interface {
	ClassID() ClassID
	EncodeFields(ch *Channel) error
	DecodeFields(ch *Channel) error
}

// Class is a registry entry. New builds an empty instance for decoding; Cast
// reports whether an object is an instance of this class (or embeds it, if
// the class author says so).
type Class struct {
	ID   ClassID
	Name string
	New  func() Persistent
	Cast func(obj Persistent) bool
}

func (c *Class) String() string {
	return c.Name + "#" + c.ID.String()
}

// Registry maps class identities to classes. It is filled once during
// program setup and is read-only afterwards; registering while a pass is
// running on another goroutine is not supported.
type Registry struct {
	classes []*Class
	byType  map[reflect.Type]*Class
	renames RenameTable
}

func NewRegistry() *Registry {
	return &Registry{
		byType: make(map[reflect.Type]*Class),
	}
}

func compareClass(a *Class, id ClassID) int {
	return a.ID.Compare(id)
}

// Register adds a class. Registering two classes with the same identity is a
// programming error and panics.
func (reg *Registry) Register(c Class) ClassID {
	if c.New == nil {
		panic(fmt.Errorf("objgraph: class %s has no constructor", c.Name))
	}
	i, found := slices.BinarySearchFunc(reg.classes, c.ID, compareClass)
	if found {
		prev := reg.classes[i]
		panic(fmt.Errorf("objgraph: class identity %v of %s is already used by %s", c.ID, c.Name, prev.Name))
	}
	cp := c
	reg.classes = slices.Insert(reg.classes, i, &cp)
	if obj := c.New(); obj != nil {
		reg.byType[reflect.TypeOf(obj)] = &cp
	}
	return c.ID
}

// Register registers *T under the canonical name of T. PT must be *T.
func Register[T any, PT interface {
	*T
	Persistent
}](reg *Registry, app uuid.UUID) ClassID {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	return RegisterNamed[T, PT](reg, typ.String(), app)
}

// RegisterNamed is like Register, but hashes the given name instead of the Go
// type name, which is how classes keep identities written by other
// toolchains.
func RegisterNamed[T any, PT interface {
	*T
	Persistent
}](reg *Registry, rawName string, app uuid.UUID) ClassID {
	name := CanonicalName(rawName)
	return reg.Register(Class{
		ID:   ClassID{Hash: HashName(name), App: app},
		Name: name,
		New: func() Persistent {
			return PT(new(T))
		},
		Cast: func(obj Persistent) bool {
			_, ok := obj.(PT)
			return ok
		},
	})
}

// Classes returns the registered classes in identity order.
func (reg *Registry) Classes() []*Class {
	return slices.Clone(reg.classes)
}

func (reg *Registry) Len() int {
	return len(reg.classes)
}

// Lookup finds a class by exact identity.
func (reg *Registry) Lookup(id ClassID) *Class {
	i, found := slices.BinarySearchFunc(reg.classes, id, compareClass)
	if !found {
		return nil
	}
	return reg.classes[i]
}

// ClassOf returns the registered class of obj's dynamic type.
func (reg *Registry) ClassOf(obj Persistent) *Class {
	return reg.byType[reflect.TypeOf(obj)]
}

// Resolve finds the class for an identity read from a stream. On a miss the
// identity is translated once through renames and looked up again.
func (reg *Registry) Resolve(id ClassID, renames map[ClassID]ClassID) (*Class, error) {
	if c := reg.Lookup(id); c != nil {
		return c, nil
	}
	if to, ok := renames[id]; ok {
		if c := reg.Lookup(to); c != nil {
			return c, nil
		}
		return nil, &ClassError{ID: id, Renamed: &to, Err: ErrUnknownClass}
	}
	return nil, &ClassError{ID: id, Err: ErrUnknownClass}
}

// AddRename declares that identity from, as written by versions [low, high)
// of the stream application with the given index, now means identity to.
func (reg *Registry) AddRename(from, to ClassID, app int, low, high uint32) {
	reg.renames.Add(Rename{Old: from, New: to, App: app, Low: low, High: high})
}

func (reg *Registry) Renames() *RenameTable {
	return &reg.renames
}
