package serde

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
)

// Encoding is Big Endian as per the protocol
var Encoding = binary.BigEndian

// ErrShortBuffer is returned when a read goes past the end of the buffer
var ErrShortBuffer = errors.New("read past buffer bound")

// ErrStringTooLong is returned when a string does not fit its int16 length
var ErrStringTooLong = errors.New("string too long")

// nullLength is the length written in place of an absent string or byte slice
const nullLength = -1

// Encoder is a byte slice with an offset. A value that cannot be encoded sets
// a sticky error, Bytes is then meaningless.
type Encoder struct {
	b      []byte // Buffer to hold encoded data
	offset int    // Current position in the buffer
	err    error
}

// BufferIncrement is 4 KiB and represents the size of increment when buffer limit is reached
const BufferIncrement = 4096

// NewEncoder creates a new Encoder with an initial buffer
func NewEncoder() Encoder {
	return Encoder{b: make([]byte, BufferIncrement)}
}

// ensureBufferSpace ensures the buffer has enough space to accommodate the new data
func (e *Encoder) ensureBufferSpace(off int) {
	if off+e.offset > len(e.b) {
		size := len(e.b) + BufferIncrement
		if size < off+e.offset {
			size = off + e.offset + BufferIncrement
		}
		newBuffer := make([]byte, size)
		copy(newBuffer, e.b[:e.offset])
		e.b = newBuffer
	}
}

// PutInt64 encodes a uint64 value into the buffer
func (e *Encoder) PutInt64(i uint64) {
	e.ensureBufferSpace(8)
	Encoding.PutUint64(e.b[e.offset:], i)
	e.offset += 8
}

// PutInt32 encodes a uint32 value into the buffer
func (e *Encoder) PutInt32(i uint32) {
	e.ensureBufferSpace(4)
	Encoding.PutUint32(e.b[e.offset:], i)
	e.offset += 4
}

// PutInt16 encodes a uint16 value into the buffer
func (e *Encoder) PutInt16(i uint16) {
	e.ensureBufferSpace(2)
	Encoding.PutUint16(e.b[e.offset:], i)
	e.offset += 2
}

// PutInt8 encodes a uint8 value into the buffer
func (e *Encoder) PutInt8(i uint8) {
	e.ensureBufferSpace(1)
	e.b[e.offset] = byte(i)
	e.offset++
}

// PutBool encodes a boolean value into the buffer
func (e *Encoder) PutBool(b bool) {
	if b {
		e.PutInt8(1)
		return
	}
	e.PutInt8(0)
}

// PutString encodes a string (int16 length + content) into the buffer
func (e *Encoder) PutString(s string) {
	if len(s) > math.MaxInt16 {
		if e.err == nil {
			e.err = fmt.Errorf("%w: %d bytes, at most %d", ErrStringTooLong, len(s), math.MaxInt16)
		}
		return
	}
	e.ensureBufferSpace(2 + len(s))
	e.PutInt16(uint16(len(s)))
	copy(e.b[e.offset:], s)
	e.offset += len(s)
}

// PutNullString encodes an absent string
func (e *Encoder) PutNullString() {
	e.PutInt16(uint16(0xFFFF))
}

// PutLenBytes encodes a byte slice prefixed by its int32 length
func (e *Encoder) PutLenBytes(b []byte) {
	e.PutInt32(uint32(len(b)))
	e.PutBytes(b)
}

// PutNullBytes encodes an absent byte slice
func (e *Encoder) PutNullBytes() {
	e.PutInt32(math.MaxUint32)
}

// PutBytes copies raw bytes into the buffer, without any length
func (e *Encoder) PutBytes(b []byte) {
	e.ensureBufferSpace(len(b))
	copy(e.b[e.offset:], b)
	e.offset += len(b)
}

// PutArrayLen encodes the number of elements of the array that follows
func (e *Encoder) PutArrayLen(l int) {
	e.PutInt32(uint32(l))
}

// PutStringArray encodes an array of strings
func (e *Encoder) PutStringArray(a []string) {
	e.PutArrayLen(len(a))
	for _, s := range a {
		e.PutString(s)
	}
}

// PutStringMap encodes a map as an array of key/value strings, keys sorted
func (e *Encoder) PutStringMap(m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	e.PutArrayLen(len(keys))
	for _, k := range keys {
		e.PutString(k)
		e.PutString(m[k])
	}
}

// PutLen encodes the total length of the buffer at the start
func (e *Encoder) PutLen() {
	lengthBytes := Encoding.AppendUint32([]byte{}, uint32(e.offset))
	e.b = slices.Insert(e.b[:e.offset], 0, lengthBytes...)
	e.offset += len(lengthBytes)
}

// Err returns the first error met while encoding
func (e *Encoder) Err() error {
	return e.err
}

// Len returns the number of bytes written so far
func (e *Encoder) Len() int {
	return e.offset
}

// Bytes returns the encoded data as a byte slice
func (e *Encoder) Bytes() []byte {
	return e.b[:e.offset]
}

// Decoder is a byte slice and offset. The first out of bound read sets a sticky
// error and every following read returns a zero value.
type Decoder struct {
	b      []byte
	Offset int
	err    error
}

// NewDecoder creates a new Decoder from a byte slice
func NewDecoder(b []byte) Decoder {
	return Decoder{b: b}
}

// Err returns the first error met while decoding
func (d *Decoder) Err() error {
	return d.err
}

// Remaining returns the number of bytes left to decode
func (d *Decoder) Remaining() int {
	if d.err != nil {
		return 0
	}
	return len(d.b) - d.Offset
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.Offset+n > len(d.b) {
		d.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, n, d.Offset, len(d.b)-d.Offset)
		return nil
	}
	res := d.b[d.Offset : d.Offset+n]
	d.Offset += n
	return res
}

// UInt64 decodes a uint64 value from the buffer
func (d *Decoder) UInt64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return Encoding.Uint64(b)
}

// UInt32 decodes a uint32 value from the buffer
func (d *Decoder) UInt32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return Encoding.Uint32(b)
}

// UInt16 decodes a uint16 value from the buffer
func (d *Decoder) UInt16() uint16 {
	b := d.take(2)
	if b == nil {
		return 0
	}
	return Encoding.Uint16(b)
}

// UInt8 decodes a uint8 value from the buffer
func (d *Decoder) UInt8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// Int64 decodes an int64 value from the buffer
func (d *Decoder) Int64() int64 { return int64(d.UInt64()) }

// Int32 decodes an int32 value from the buffer
func (d *Decoder) Int32() int32 { return int32(d.UInt32()) }

// Int16 decodes an int16 value from the buffer
func (d *Decoder) Int16() int16 { return int16(d.UInt16()) }

// Int8 decodes an int8 value from the buffer
func (d *Decoder) Int8() int8 { return int8(d.UInt8()) }

// Bool decodes a boolean value from the buffer
func (d *Decoder) Bool() bool {
	return d.UInt8() > 0
}

// String decodes a string (int16 length + content). An absent string decodes as "".
func (d *Decoder) String() string {
	stringLen := d.Int16()
	if stringLen <= 0 {
		return ""
	}
	return string(d.take(int(stringLen)))
}

// LenBytes decodes an int32 length prefixed byte slice. An absent slice decodes as empty.
func (d *Decoder) LenBytes() []byte {
	bytesLen := d.Int32()
	if bytesLen == nullLength || bytesLen == 0 {
		return []byte{}
	}
	return d.take(int(bytesLen))
}

// GetNBytes decodes `n` bytes from the buffer
func (d *Decoder) GetNBytes(n int) []byte {
	return d.take(n)
}

// Skip moves the offset `n` bytes forward
func (d *Decoder) Skip(n int) {
	d.take(n)
}

// Unread moves the offset `n` bytes back
func (d *Decoder) Unread(n int) {
	if d.err == nil && d.Offset >= n {
		d.Offset -= n
	}
}

// GetRemainingBytes returns every byte left in the buffer
func (d *Decoder) GetRemainingBytes() []byte {
	return d.take(d.Remaining())
}

// ArrayLen decodes the number of elements of the array that follows.
// A count that cannot possibly fit in the remaining bytes is an error.
func (d *Decoder) ArrayLen() int {
	n := d.UInt32()
	if d.err == nil && int64(n) > int64(d.Remaining()) {
		d.err = fmt.Errorf("%w: array of %d elements with %d bytes left", ErrShortBuffer, n, d.Remaining())
		return 0
	}
	return int(n)
}

// StringArray decodes an array of strings
func (d *Decoder) StringArray() []string {
	n := d.ArrayLen()
	res := make([]string, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		res = append(res, d.String())
	}
	return res
}

// StringMap decodes an array of key/value strings
func (d *Decoder) StringMap() map[string]string {
	n := d.ArrayLen()
	res := make(map[string]string, n)
	for i := 0; i < n && d.err == nil; i++ {
		k := d.String()
		res[k] = d.String()
	}
	return res
}
