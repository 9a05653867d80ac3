package objgraph

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Legacy strings: byteLen:16 bytes*, Windows-1252. 0 and 0xFFFF mean absent.
// Unicode strings: unitLen:32 (utf16le units)*. 0xFFFFFFFF means absent.
const (
	legacyStringAbsent  = 0xFFFF
	legacyStringMaxLen  = 0xFFFE
	unicodeStringAbsent = 0xFFFFFFFF
	unicodeStringMaxLen = 0xFFFFFFFE
)

var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// WriteString writes s in the string encoding of the stream version.
// Characters that the legacy code page cannot represent are replaced.
func (ch *Channel) WriteString(s string) {
	ch.WriteOptionalString(s, true)
}

// ReadString reads a string; an absent string reads as "".
func (ch *Channel) ReadString() string {
	s, _ := ch.ReadOptionalString()
	return s
}

// WriteOptionalString writes s, or the absent marker if !present.
func (ch *Channel) WriteOptionalString(s string, present bool) {
	if ch.version < VersionUnicode {
		ch.writeLegacyString(s, present)
	} else {
		ch.writeUnicodeString(s, present)
	}
}

// ReadOptionalString reads a string and whether it was present. Legacy
// streams cannot tell an empty string from an absent one.
func (ch *Channel) ReadOptionalString() (string, bool) {
	if ch.version < VersionUnicode {
		return ch.readLegacyString()
	}
	return ch.readUnicodeString()
}

func (ch *Channel) writeLegacyString(s string, present bool) {
	if !present || s == "" {
		ch.WriteUint16(0)
		return
	}
	raw, err := encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder()).String(s)
	if err != nil {
		ch.setFault(FaultFail, fmt.Sprintf("encoding string: %v", err))
		ch.WriteUint16(0)
		return
	}
	if len(raw) > legacyStringMaxLen {
		ch.setFault(FaultUnderflow64to32, fmt.Sprintf("string of %d bytes does not fit a legacy string", len(raw)))
		raw = raw[:legacyStringMaxLen]
	}
	ch.WriteUint16(uint16(len(raw)))
	ch.WriteBytes([]byte(raw))
}

func (ch *Channel) readLegacyString() (string, bool) {
	n := ch.ReadUint16()
	if n == 0 || n == legacyStringAbsent {
		return "", false
	}
	raw, ok := ch.ReadBytes(int(n))
	if !ok {
		return "", false
	}
	s, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		ch.setFault(FaultFail, fmt.Sprintf("decoding string: %v", err))
		return "", false
	}
	return string(s), true
}

func (ch *Channel) writeUnicodeString(s string, present bool) {
	if !present {
		ch.WriteUint32(unicodeStringAbsent)
		return
	}
	raw, err := utf16LE.NewEncoder().Bytes([]byte(s))
	if err != nil {
		ch.setFault(FaultFail, fmt.Sprintf("encoding string: %v", err))
		ch.WriteUint32(unicodeStringAbsent)
		return
	}
	units := uint64(len(raw) / 2)
	if units > unicodeStringMaxLen {
		ch.setFault(FaultUnderflow64to32, fmt.Sprintf("string of %d code units is too long", units))
		units = unicodeStringMaxLen
		raw = raw[:units*2]
	}
	ch.WriteUint32(uint32(units))
	ch.WriteBytes(raw)
}

func (ch *Channel) readUnicodeString() (string, bool) {
	n := ch.ReadUint32()
	if n == unicodeStringAbsent {
		return "", false
	}
	if n == 0 {
		return "", !ch.readBroken()
	}
	raw, ok := ch.ReadBytes(int(n) * 2)
	if !ok {
		return "", false
	}
	s, err := utf16LE.NewDecoder().Bytes(raw)
	if err != nil {
		ch.setFault(FaultFail, fmt.Sprintf("decoding string: %v", err))
		return "", false
	}
	return string(s), true
}
