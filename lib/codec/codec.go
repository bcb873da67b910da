package codec

import (
	"errors"
	"fmt"

	pool "github.com/libp2p/go-buffer-pool"
	"google.golang.org/protobuf/encoding/protowire"
)

// BinaryCodec is an interface model that defines the requirements for binary encoding and decoding
// A binary encoder converts data into a compact, non-human-readable binary format, which is highly
// efficient in terms of both storage size and speed for serialization and deserialization
type BinaryCodec interface {
	// MarshalWire() appends the canonical encoding of the object to the encoder
	MarshalWire(e *Encoder)
	// UnmarshalWire() populates the object from a single decoded field
	UnmarshalWire(f Field) error
}

// encodeBufferSize is the initial pooled buffer handed to an encoder
const encodeBufferSize = 1024

var ErrTruncated = errors.New("truncated wire data")

// Marshal() returns the canonical protobuf wire encoding of the object.
// Fields are always written in ascending field number order, so equal objects produce equal bytes
func Marshal(message BinaryCodec) []byte {
	e := &Encoder{buf: pool.Get(encodeBufferSize)[:0]}
	message.MarshalWire(e)
	// copy out of the pooled buffer before returning it
	out := make([]byte, len(e.buf))
	copy(out, e.buf)
	pool.Put(e.buf)
	return out
}

// Unmarshal() decodes every field in data into the object
func Unmarshal(data []byte, ptr BinaryCodec) error {
	return Walk(data, ptr.UnmarshalWire)
}

// Encoder appends protobuf wire fields to a buffer
type Encoder struct{ buf []byte }

// Uvarint() writes a varint field; zero values are omitted like proto3 scalars
func (e *Encoder) Uvarint(num protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, v)
}

// RepeatedUvarint() writes one varint field per value, zeros included
func (e *Encoder) RepeatedUvarint(num protowire.Number, vs []uint64) {
	for _, v := range vs {
		e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
		e.buf = protowire.AppendVarint(e.buf, v)
	}
}

// Bool() writes a boolean as a varint field
func (e *Encoder) Bool(num protowire.Number, v bool) {
	if v {
		e.Uvarint(num, 1)
	}
}

// Bytes() writes a length delimited field; empty values are omitted
func (e *Encoder) Bytes(num protowire.Number, v []byte) {
	if len(v) == 0 {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, v)
}

// String() writes a string field
func (e *Encoder) String(num protowire.Number, v string) {
	if v == "" {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendString(e.buf, v)
}

// Message() writes an embedded message; a nil message is omitted
func (e *Encoder) Message(num protowire.Number, message BinaryCodec) {
	if message == nil {
		return
	}
	nested := &Encoder{buf: pool.Get(encodeBufferSize)[:0]}
	message.MarshalWire(nested)
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, nested.buf)
	pool.Put(nested.buf)
}

// Field is a single decoded wire field
type Field struct {
	Num   protowire.Number
	Type  protowire.Type
	Value uint64 // varint fields
	Bytes []byte // length delimited fields, aliases the input
}

// Walk() calls fn for every field of data in order, skipping groups and fixed width fields
func Walk(data []byte, fn func(f Field) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrTruncated, protowire.ParseError(n))
		}
		data = data[n:]
		f := Field{Num: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			f.Value, n = protowire.ConsumeVarint(data)
		case protowire.BytesType:
			f.Bytes, n = protowire.ConsumeBytes(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrTruncated, protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrTruncated, protowire.ParseError(n))
		}
		data = data[n:]
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// Clone() returns a copy of the bytes that doesn't alias the decoded input
func (f Field) Clone() []byte {
	if len(f.Bytes) == 0 {
		return nil
	}
	out := make([]byte, len(f.Bytes))
	copy(out, f.Bytes)
	return out
}
