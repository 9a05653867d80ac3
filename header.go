package objgraph

import (
	"fmt"

	"github.com/google/uuid"
)

// Stream format versions. Each constant is the first version with the named
// capability; a stream keeps the encodings of the version it was written
// with forever.
const (
	VersionInitial uint32 = 1

	// VersionUnicode switches strings from 16-bit-length Windows-1252 to
	// 32-bit-length UTF-16.
	VersionUnicode uint32 = 3

	// VersionClassUUID adds the owning application UUID to every class
	// identity written in front of an object body.
	VersionClassUUID uint32 = 4

	// Version64Bit widens counts and offsets from 4 to 8 bytes.
	Version64Bit uint32 = 5

	VersionCurrent = Version64Bit
)

const (
	streamMagic      = "OGRF"
	maxStreamAppsLen = 0xFFFF
)

// AppVersion is an application version embedded in the stream header. Class
// identities of legacy streams implicitly belong to the first application.
type AppVersion struct {
	App     uuid.UUID
	Version uint32
}

func (av AppVersion) String() string {
	return fmt.Sprintf("%v/%d", av.App, av.Version)
}

// header = magic:4 version:32 appCount:16 (appUUID:128 appVersion:32)*
func (ch *Channel) writeHeader() {
	ch.WriteBytes([]byte(streamMagic))
	ch.WriteUint32(ch.version)
	if len(ch.apps) > maxStreamAppsLen {
		panic(fmt.Errorf("objgraph: too many application versions: %d", len(ch.apps)))
	}
	ch.WriteUint16(uint16(len(ch.apps)))
	for _, av := range ch.apps {
		ch.WriteBytes(av.App[:])
		ch.WriteUint32(av.Version)
	}
}

func (ch *Channel) readHeader() error {
	magic, _ := ch.ReadBytes(len(streamMagic))
	if !ch.Good() {
		return dataErrf(magic, 0, ErrIncompatible, "truncated stream header (%v)", ch.fault)
	}
	if string(magic) != streamMagic {
		return dataErrf(magic, 0, ErrIncompatible, "invalid stream magic")
	}
	ch.version = ch.ReadUint32()
	if ch.version < VersionInitial || ch.version > VersionCurrent {
		return fmt.Errorf("%w: %d", ErrUnsupportedVer, ch.version)
	}
	n := int(ch.ReadUint16())
	ch.apps = make([]AppVersion, 0, n)
	for range n {
		var av AppVersion
		raw, _ := ch.ReadBytes(len(av.App))
		copy(av.App[:], raw)
		av.Version = ch.ReadUint32()
		ch.apps = append(ch.apps, av)
	}
	if !ch.Good() {
		return dataErrf(nil, ch.off, ErrIncompatible, "truncated stream header (%v)", ch.fault)
	}
	return nil
}

// primaryApp is the application legacy class identities belong to.
func (ch *Channel) primaryApp() uuid.UUID {
	if len(ch.apps) == 0 {
		return uuid.Nil
	}
	return ch.apps[0].App
}
