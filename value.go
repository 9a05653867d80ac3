package objgraph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// ValueEncoding selects how WriteValue encodes free-form user data, such as
// attribute dictionaries attached to model objects.
type ValueEncoding int

const (
	MsgPack ValueEncoding = iota
	JSON
	CBOR
)

// CBOR values use Core Deterministic Encoding, so equal values always
// produce equal bytes. Maps decoded into any get string keys.
var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("objgraph: CBOR encoder: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("objgraph: CBOR decoder: " + err.Error())
	}
}

func (enc ValueEncoding) String() string {
	switch enc {
	case MsgPack:
		return "msgpack"
	case JSON:
		return "json"
	case CBOR:
		return "cbor"
	default:
		return fmt.Sprintf("ValueEncoding(%d)", int(enc))
	}
}

func (enc ValueEncoding) encode(buf []byte, v any) ([]byte, error) {
	switch enc {
	case MsgPack:
		bb := Buffer{buf}
		e := msgpack.GetEncoder()
		e.Reset(&bb)
		e.SetSortMapKeys(true)
		err := e.Encode(v)
		msgpack.PutEncoder(e)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %T using MsgPack: %w", v, err)
		}
		return bb.Buf, nil
	case JSON:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %T to JSON: %w", v, err)
		}
		return appendRaw(buf, raw), nil
	case CBOR:
		raw, err := cborEnc.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %T to CBOR: %w", v, err)
		}
		return appendRaw(buf, raw), nil
	default:
		panic("unsupported encoding")
	}
}

func (enc ValueEncoding) decode(buf []byte, off int64, ptr any) error {
	switch enc {
	case MsgPack:
		var r bytes.Reader
		r.Reset(buf)
		d := msgpack.GetDecoder()
		d.Reset(&r)
		err := d.Decode(ptr)
		msgpack.PutDecoder(d)
		if err != nil {
			return dataErrf(buf, off, err, "failed to decode msgpack into %T", ptr)
		}
		return nil
	case JSON:
		err := json.Unmarshal(buf, ptr)
		if err != nil {
			return dataErrf(buf, off, err, "failed to decode JSON into %T", ptr)
		}
		return nil
	case CBOR:
		err := cborDec.Unmarshal(buf, ptr)
		if err != nil {
			return dataErrf(buf, off, err, "failed to decode CBOR into %T", ptr)
		}
		return nil
	default:
		panic("unsupported encoding")
	}
}

// WriteValue writes v as a length-prefixed block in the channel's value
// encoding. The block layout is: encoding:8 length:count bytes*.
func (ch *Channel) WriteValue(v any) error {
	ch.mustWrite()
	raw, err := ch.valueEnc.encode(nil, v)
	if err != nil {
		return err
	}
	ch.WriteUint8(uint8(ch.valueEnc))
	ch.WriteLength(len(raw))
	ch.WriteBytes(raw)
	return nil
}

// ReadValue decodes a block written by WriteValue into ptr. The encoding is
// taken from the block, so streams written with either encoding can be read.
func (ch *Channel) ReadValue(ptr any) error {
	enc := ValueEncoding(ch.ReadUint8())
	n := ch.ReadLength(0)
	off := ch.off
	raw, ok := ch.ReadBytes(n)
	if !ok {
		return nil
	}
	if enc > CBOR {
		return dataErrf(raw, off, nil, "unknown value encoding %d", int(enc))
	}
	return enc.decode(raw, off, ptr)
}
