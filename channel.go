package objgraph

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/google/uuid"
)

type channelMode int

const (
	modeRead channelMode = iota
	modeWrite
)

func (m channelMode) String() string {
	if m == modeWrite {
		return "write"
	}
	return "read"
}

// readChunk bounds a single allocation when reading a length-prefixed block,
// so that a corrupt length cannot allocate more than the stream holds.
const readChunk = 64 * 1024

type Options struct {
	// Version is the stream version to write; zero means VersionCurrent.
	// Readers take the version from the stream header.
	Version uint32

	// Apps are the application versions to embed when writing.
	Apps []AppVersion

	// Partitions stores detached bodies. Required to write or read
	// detached objects.
	Partitions PartitionStore

	// Detach elects objects whose bodies go to a partition instead of the
	// main stream. Called once per object, the first time it is written.
	Detach func(obj Persistent) (partition uint32, ok bool)

	// MaxObjects limits the pass registry and the object catalog (0 means
	// unlimited). Exceeding it sets FaultOutOfMemory.
	MaxObjects int

	// Strict makes capacity faults panic with *FaultError instead of
	// setting FaultOutOfMemory.
	Strict bool

	// ValueEncoding selects the encoding of WriteValue payloads.
	ValueEncoding ValueEncoding

	Context context.Context
	Logger  *slog.Logger
	Verbose bool
}

// Channel is a sequential binary stream of objects over a byte buffer,
// opened either for writing or for reading. A channel is used by one
// goroutine at a time.
//
// I/O shortfalls do not produce errors. They set sticky Fault bits, after
// which reads return zero values and writes are dropped; check Good after a
// pass. Protocol violations (unknown classes, bad references) are returned
// as errors from the object-level calls.
type Channel struct {
	reg  *Registry
	mode channelMode
	r    io.Reader
	w    io.Writer
	off  int64

	fault   Fault
	version uint32
	apps    []AppVersion
	renames map[ClassID]ClassID

	pass *PassRegistry

	partitions PartitionStore
	detach     func(obj Persistent) (uint32, bool)
	catalog    Catalog
	maxObjects int
	strict     bool
	valueEnc   ValueEncoding

	context context.Context
	logger  *slog.Logger
	verbose bool

	stats    Stats
	finished bool
	scratch  [8]byte
}

func newChannel(reg *Registry, mode channelMode, o Options) *Channel {
	if reg == nil {
		panic("objgraph: nil registry")
	}
	if o.Context == nil {
		o.Context = context.Background()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return &Channel{
		reg:        reg,
		mode:       mode,
		partitions: o.Partitions,
		detach:     o.Detach,
		maxObjects: o.MaxObjects,
		strict:     o.Strict,
		valueEnc:   o.ValueEncoding,
		context:    o.Context,
		logger:     o.Logger,
		verbose:    o.Verbose,
	}
}

// NewWriter opens a channel that writes a stream to w, starting with the
// stream header.
func NewWriter(w io.Writer, reg *Registry, o Options) *Channel {
	ch := newChannel(reg, modeWrite, o)
	ch.w = w
	ch.version = o.Version
	if ch.version == 0 {
		ch.version = VersionCurrent
	}
	if ch.version < VersionInitial || ch.version > VersionCurrent {
		panic(fmt.Errorf("objgraph: %v: %d", ErrUnsupportedVer, ch.version))
	}
	ch.apps = slices.Clone(o.Apps)
	ch.writeHeader()
	return ch
}

// NewReader opens a channel that reads a stream from r. It parses the
// stream header and computes the class renames that apply to the stream.
func NewReader(r io.Reader, reg *Registry, o Options) (*Channel, error) {
	ch := newChannel(reg, modeRead, o)
	ch.r = r
	if err := ch.readHeader(); err != nil {
		return nil, err
	}
	ch.renames = reg.renames.Active(ch.apps)
	return ch, nil
}

func (ch *Channel) Registry() *Registry { return ch.reg }
func (ch *Channel) Version() uint32     { return ch.version }
func (ch *Channel) Apps() []AppVersion  { return slices.Clone(ch.apps) }
func (ch *Channel) IsWriting() bool     { return ch.mode == modeWrite }
func (ch *Channel) Fault() Fault        { return ch.fault }
func (ch *Channel) Good() bool          { return ch.fault == faultNone }
func (ch *Channel) Stats() Stats        { return ch.stats }

// Offset is the number of bytes transferred on the main stream.
func (ch *Channel) Offset() int64 {
	return ch.off
}

// Is64Bit reports whether counts and offsets are 8 bytes wide.
func (ch *Channel) Is64Bit() bool {
	return ch.version >= Version64Bit
}

// AppVersion returns the version of the given application embedded in the
// stream, if any.
func (ch *Channel) AppVersion(app uuid.UUID) (uint32, bool) {
	for _, av := range ch.apps {
		if av.App == app {
			return av.Version, true
		}
	}
	return 0, false
}

func (ch *Channel) ClearFaults() {
	ch.fault = faultNone
}

func (ch *Channel) setFault(f Fault, msg string) {
	if ch.fault&f == f {
		ch.fault |= f
		return
	}
	ch.fault |= f
	ch.logger.LogAttrs(ch.context, slog.LevelWarn, "objgraph: fault", slog.String("fault", f.String()), slog.String("mode", ch.mode.String()), slog.Int64("off", ch.off), slog.String("msg", msg))
}

func (ch *Channel) capacityFault(msg string) {
	if ch.strict {
		panic(&FaultError{Fault: FaultOutOfMemory, Msg: msg})
	}
	ch.setFault(FaultOutOfMemory, msg)
}

func (ch *Channel) mustRead() {
	if ch.mode != modeRead {
		panic(fmt.Errorf("objgraph: %w: reading from a %v channel", ErrWrongMode, ch.mode))
	}
}

func (ch *Channel) mustWrite() {
	if ch.mode != modeWrite {
		panic(fmt.Errorf("objgraph: %w: writing to a %v channel", ErrWrongMode, ch.mode))
	}
	if ch.finished {
		panic(fmt.Errorf("objgraph: %w: writing to a finished channel", ErrWrongMode))
	}
}

func (ch *Channel) readBroken() bool {
	return ch.fault&(FaultFail|FaultEOF) != 0
}

// WriteBytes writes b and reports whether the buffer accepted all of it.
func (ch *Channel) WriteBytes(b []byte) bool {
	ch.mustWrite()
	if ch.fault.Has(FaultFail) {
		return false
	}
	n, err := ch.w.Write(b)
	ch.off += int64(n)
	if err != nil {
		ch.setFault(FaultFail, err.Error())
		return false
	}
	return true
}

// ReadBytes reads exactly n bytes. On a shortfall it sets FaultEOF (and
// FaultFail) and returns the bytes that were available, padded with zeros.
func (ch *Channel) ReadBytes(n int) ([]byte, bool) {
	ch.mustRead()
	if n < 0 {
		panic("negative length")
	}
	if ch.readBroken() {
		return make([]byte, n), false
	}
	if n <= readChunk {
		buf := make([]byte, n)
		return buf, ch.readFull(buf)
	}
	buf := make([]byte, 0, readChunk)
	for len(buf) < n {
		step := min(n-len(buf), readChunk)
		off, nb := grow(buf, step)
		buf = nb
		if !ch.readFull(buf[off:]) {
			return append(buf, make([]byte, n-len(buf))...), false
		}
	}
	return buf, true
}

func (ch *Channel) readFull(p []byte) bool {
	if ch.readBroken() {
		clear(p)
		return false
	}
	n, err := io.ReadFull(ch.r, p)
	ch.off += int64(n)
	if err != nil {
		clear(p[n:])
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			ch.setFault(FaultEOF|FaultFail, fmt.Sprintf("wanted %d bytes, got %d", len(p), n))
		} else {
			ch.setFault(FaultFail, err.Error())
		}
		return false
	}
	return true
}

func (ch *Channel) WriteUint8(v uint8) {
	ch.scratch[0] = v
	ch.WriteBytes(ch.scratch[:1])
}

func (ch *Channel) ReadUint8() uint8 {
	ch.mustRead()
	ch.readFull(ch.scratch[:1])
	return ch.scratch[0]
}

func (ch *Channel) WriteUint64(v uint64) {
	binary.LittleEndian.PutUint64(ch.scratch[:], v)
	ch.WriteBytes(ch.scratch[:8])
}

func (ch *Channel) ReadUint64() uint64 {
	ch.mustRead()
	ch.readFull(ch.scratch[:8])
	return binary.LittleEndian.Uint64(ch.scratch[:8])
}

// Registrate registers obj in the active pass, see PassRegistry.Add. On a
// capacity fault it returns ok == false.
func (ch *Channel) Registrate(obj Persistent) (index uint64, added, ok bool) {
	pass := ch.activePass()
	index, added, err := pass.Add(obj)
	if err != nil {
		ch.capacityFault(fmt.Sprintf("cannot register %T: %v", obj, err))
		return 0, false, false
	}
	return index, added, true
}

// Unregistrate rolls back the registration of the object at index.
func (ch *Channel) Unregistrate(index uint64) {
	ch.activePass().Remove(index)
}

// Exists returns the index of obj in the active pass.
func (ch *Channel) Exists(obj Persistent) (uint64, bool) {
	return ch.activePass().IndexOf(obj)
}

func (ch *Channel) activePass() *PassRegistry {
	if ch.pass == nil {
		panic("objgraph: no active pass")
	}
	return ch.pass
}

// Pass returns the active pass registry, or nil between passes.
func (ch *Channel) Pass() *PassRegistry {
	return ch.pass
}

// BeginPass starts a pass explicitly, so that several top-level objects
// share one registry. It returns false if a pass is already active.
func (ch *Channel) BeginPass() bool {
	if ch.pass != nil {
		return false
	}
	ch.pass = NewPassRegistry(ch.maxObjects)
	return true
}

// EndPass drops the active pass registry.
func (ch *Channel) EndPass() {
	ch.pass = nil
}

// Flush forgets every object registered in the active pass, so that the next
// object starts an independent graph.
func (ch *Channel) Flush() {
	if ch.pass != nil {
		ch.pass.Flush()
	}
}

// withWriter redirects writes to w for the duration of f.
func (ch *Channel) withWriter(w io.Writer, f func() error) error {
	prevW, prevOff := ch.w, ch.off
	ch.w, ch.off = w, 0
	defer func() {
		ch.w, ch.off = prevW, prevOff
	}()
	return f()
}

// withReader redirects reads to r for the duration of f.
func (ch *Channel) withReader(r io.Reader, f func() error) error {
	prevR, prevOff := ch.r, ch.off
	ch.r, ch.off = r, 0
	defer func() {
		ch.r, ch.off = prevR, prevOff
	}()
	return f()
}

func (ch *Channel) debugf(msg string, attrs ...slog.Attr) {
	if !ch.verbose {
		return
	}
	ch.logger.LogAttrs(ch.context, slog.LevelDebug, msg, attrs...)
}
