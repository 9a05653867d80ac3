// Package objgraphtest provides sample model classes and helpers for tests of
// code built on objgraph.
package objgraphtest

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/andreyvit/objgraph"
)

var (
	App      = uuid.MustParse("5c6b3a5e-1f0e-4c0e-9a55-6f7e0d8d9b11")
	OtherApp = uuid.MustParse("0b9d6a52-7c1e-4d3b-8f3a-2a4e5c6d7e8f")
)

var (
	ShapeID     = objgraph.IdentityOf("Shape", App)
	PointID     = objgraph.IdentityOf("Point", App)
	CircleID    = objgraph.IdentityOf("Circle", App)
	GroupID     = objgraph.IdentityOf("Group", App)
	LinkID      = objgraph.IdentityOf("Link", App)
	SegmentID   = objgraph.IdentityOf("Segment", App)
	LineCurveID = objgraph.IdentityOf("LineCurve", App)
	LabelID     = objgraph.IdentityOf("Label", OtherApp)
)

// Shape is the base class of the sample geometry model.
type Shape struct {
	Name string
}

func (s *Shape) ClassID() objgraph.ClassID { return ShapeID }

func (s *Shape) EncodeFields(ch *objgraph.Channel) error {
	ch.WriteString(s.Name)
	return nil
}

func (s *Shape) DecodeFields(ch *objgraph.Channel) error {
	s.Name = ch.ReadString()
	return nil
}

type Point struct {
	Shape
	X, Y float64
}

func (p *Point) ClassID() objgraph.ClassID { return PointID }

func (p *Point) EncodeFields(ch *objgraph.Channel) error {
	if err := p.Shape.EncodeFields(ch); err != nil {
		return err
	}
	ch.WriteFloat64(p.X)
	ch.WriteFloat64(p.Y)
	return nil
}

func (p *Point) DecodeFields(ch *objgraph.Channel) error {
	if err := p.Shape.DecodeFields(ch); err != nil {
		return err
	}
	p.X = ch.ReadFloat64()
	p.Y = ch.ReadFloat64()
	return nil
}

type Circle struct {
	Shape
	Center *Point
	Radius float64
}

func (c *Circle) ClassID() objgraph.ClassID { return CircleID }

func (c *Circle) EncodeFields(ch *objgraph.Channel) error {
	if err := c.Shape.EncodeFields(ch); err != nil {
		return err
	}
	if err := ch.WriteObjectPointer(c.Center); err != nil {
		return err
	}
	ch.WriteFloat64(c.Radius)
	return nil
}

func (c *Circle) DecodeFields(ch *objgraph.Channel) error {
	if err := c.Shape.DecodeFields(ch); err != nil {
		return err
	}
	var err error
	c.Center, err = objgraph.ReadObjectPointerAs[*Point](ch)
	if err != nil {
		return err
	}
	c.Radius = ch.ReadFloat64()
	return nil
}

// Group owns a list of arbitrary objects plus free-form attributes.
type Group struct {
	Shape
	Children []objgraph.Persistent
	Attrs    map[string]any
}

func (g *Group) ClassID() objgraph.ClassID { return GroupID }

func (g *Group) EncodeFields(ch *objgraph.Channel) error {
	if err := g.Shape.EncodeFields(ch); err != nil {
		return err
	}
	ch.WriteLength(len(g.Children))
	for _, child := range g.Children {
		if err := ch.WriteObjectPointer(child); err != nil {
			return err
		}
	}
	return ch.WriteValue(g.Attrs)
}

func (g *Group) DecodeFields(ch *objgraph.Channel) error {
	if err := g.Shape.DecodeFields(ch); err != nil {
		return err
	}
	n := ch.ReadLength(1 << 20)
	g.Children = make([]objgraph.Persistent, 0, n)
	for range n {
		child, err := ch.ReadObjectPointer()
		if err != nil {
			return err
		}
		g.Children = append(g.Children, child)
	}
	return ch.ReadValue(&g.Attrs)
}

// Link refers to any object, including one of its own ancestors.
type Link struct {
	Shape
	Target objgraph.Persistent
}

func (l *Link) ClassID() objgraph.ClassID { return LinkID }

func (l *Link) EncodeFields(ch *objgraph.Channel) error {
	if err := l.Shape.EncodeFields(ch); err != nil {
		return err
	}
	return ch.WriteObjectPointer(l.Target)
}

func (l *Link) DecodeFields(ch *objgraph.Channel) error {
	if err := l.Shape.DecodeFields(ch); err != nil {
		return err
	}
	var err error
	l.Target, err = ch.ReadObjectPointer()
	return err
}

// Segment is the current name of a class that older application versions
// wrote as LineCurve.
type Segment struct {
	Shape
	From, To *Point
}

func (s *Segment) ClassID() objgraph.ClassID { return SegmentID }

func (s *Segment) EncodeFields(ch *objgraph.Channel) error {
	if err := s.Shape.EncodeFields(ch); err != nil {
		return err
	}
	if err := ch.WriteObjectPointer(s.From); err != nil {
		return err
	}
	return ch.WriteObjectPointer(s.To)
}

func (s *Segment) DecodeFields(ch *objgraph.Channel) error {
	if err := s.Shape.DecodeFields(ch); err != nil {
		return err
	}
	var err error
	if s.From, err = objgraph.ReadObjectPointerAs[*Point](ch); err != nil {
		return err
	}
	s.To, err = objgraph.ReadObjectPointerAs[*Point](ch)
	return err
}

// LineCurve has the same fields as Segment under the old class name, so that
// tests can produce streams written before the rename.
type LineCurve struct {
	Segment
}

func (s *LineCurve) ClassID() objgraph.ClassID { return LineCurveID }

// Label belongs to a second application.
type Label struct {
	Shape
	Text string
}

func (l *Label) ClassID() objgraph.ClassID { return LabelID }

func (l *Label) EncodeFields(ch *objgraph.Channel) error {
	if err := l.Shape.EncodeFields(ch); err != nil {
		return err
	}
	ch.WriteOptionalString(l.Text, l.Text != "")
	return nil
}

func (l *Label) DecodeFields(ch *objgraph.Channel) error {
	if err := l.Shape.DecodeFields(ch); err != nil {
		return err
	}
	l.Text, _ = ch.ReadOptionalString()
	return nil
}

// Registry returns a registry with every sample class except LineCurve.
func Registry() *objgraph.Registry {
	reg := objgraph.NewRegistry()
	objgraph.Register[Shape](reg, App)
	objgraph.Register[Point](reg, App)
	objgraph.Register[Circle](reg, App)
	objgraph.Register[Group](reg, App)
	objgraph.Register[Link](reg, App)
	objgraph.Register[Segment](reg, App)
	objgraph.Register[Label](reg, OtherApp)
	return reg
}

// LegacyRegistry is Registry with LineCurve in place of Segment.
func LegacyRegistry() *objgraph.Registry {
	reg := objgraph.NewRegistry()
	objgraph.Register[Shape](reg, App)
	objgraph.Register[Point](reg, App)
	objgraph.Register[LineCurve](reg, App)
	return reg
}

// Apps is the application list of streams written by tests.
func Apps(version uint32) []objgraph.AppVersion {
	return []objgraph.AppVersion{{App: App, Version: version}, {App: OtherApp, Version: 1}}
}

// Logger sends channel logs to the test log.
func Logger(t testing.TB) *slog.Logger {
	return slog.New(slog.NewTextHandler(&logWriter{t}, &slog.HandlerOptions{
		AddSource: false,
		Level:     slog.LevelDebug,
	}))
}

// Writer opens a write channel over a fresh buffer. Missing Apps and Logger
// are filled in.
func Writer(t testing.TB, reg *objgraph.Registry, o objgraph.Options) (*objgraph.Channel, *objgraph.Buffer) {
	t.Helper()
	if o.Apps == nil {
		o.Apps = Apps(1)
	}
	if o.Logger == nil {
		o.Logger = Logger(t)
		o.Verbose = true
	}
	var buf objgraph.Buffer
	return objgraph.NewWriter(&buf, reg, o), &buf
}

// Reader opens a read channel over data, failing the test on a header error.
// The underlying reader supports seeking, so LoadCatalog works.
func Reader(t testing.TB, reg *objgraph.Registry, data []byte, o objgraph.Options) *objgraph.Channel {
	t.Helper()
	if o.Logger == nil {
		o.Logger = Logger(t)
		o.Verbose = true
	}
	ch, err := objgraph.NewReader(bytes.NewReader(data), reg, o)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	return ch
}

// RoundTrip writes obj with a fresh registry and stream version, reads it
// back and returns the copy. The channels must end without faults.
func RoundTrip[T objgraph.Persistent](t testing.TB, version uint32, obj T) T {
	t.Helper()
	reg := Registry()
	w, buf := Writer(t, reg, objgraph.Options{Version: version})
	if err := w.WriteObject(obj); err != nil {
		t.Fatalf("WriteObject: %v", err)
	}
	if !w.Good() {
		t.Fatalf("writer fault: %v", w.Fault())
	}

	r := Reader(t, reg, buf.Bytes(), objgraph.Options{})
	got, err := objgraph.ReadObjectAs[T](r)
	if err != nil {
		t.Fatalf("ReadObject: %v", err)
	}
	if !r.Good() {
		t.Fatalf("reader fault: %v", r.Fault())
	}
	return got
}

type logWriter struct{ t testing.TB }

func (c *logWriter) Write(buf []byte) (int, error) {
	msg := string(buf)
	origLen := len(msg)
	msg = strings.TrimSuffix(msg, "\n")
	c.t.Log(msg)
	return origLen, nil
}
