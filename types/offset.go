package types

import (
	"fmt"
	"time"
)

// OffsetType is the tag of an Offset on the wire
type OffsetType uint16

// Offset types
const (
	OffsetTypeNone      OffsetType = 0
	OffsetTypeFirst     OffsetType = 1
	OffsetTypeLast      OffsetType = 2
	OffsetTypeNext      OffsetType = 3
	OffsetTypeAbsolute  OffsetType = 4
	OffsetTypeTimestamp OffsetType = 5
)

// Offset is where a subscription starts: a relative marker, an absolute
// offset or a timestamp in milliseconds. Only one of them is set.
type Offset struct {
	typ   OffsetType
	value int64
}

// NoOffset is the zero Offset
func NoOffset() Offset { return Offset{typ: OffsetTypeNone} }

// FirstOffset starts at the beginning of the stream
func FirstOffset() Offset { return Offset{typ: OffsetTypeFirst} }

// LastOffset starts at the last chunk of the stream
func LastOffset() Offset { return Offset{typ: OffsetTypeLast} }

// NextOffset starts after the last chunk of the stream
func NextOffset() Offset { return Offset{typ: OffsetTypeNext} }

// AbsoluteOffset starts at offset v
func AbsoluteOffset(v uint64) Offset { return Offset{typ: OffsetTypeAbsolute, value: int64(v)} }

// TimestampOffset starts at the first chunk newer than ms (unix milliseconds)
func TimestampOffset(ms int64) Offset { return Offset{typ: OffsetTypeTimestamp, value: ms} }

// OffsetAt starts at the first chunk newer than t
func OffsetAt(t time.Time) Offset { return TimestampOffset(t.UnixMilli()) }

// Type returns the tag of the offset
func (o Offset) Type() OffsetType { return o.typ }

// Absolute returns the absolute offset, if that is the active tag
func (o Offset) Absolute() (uint64, bool) {
	return uint64(o.value), o.typ == OffsetTypeAbsolute
}

// Timestamp returns the timestamp in milliseconds, if that is the active tag
func (o Offset) Timestamp() (int64, bool) {
	return o.value, o.typ == OffsetTypeTimestamp
}

func (o Offset) String() string {
	switch o.typ {
	case OffsetTypeNone:
		return "none"
	case OffsetTypeFirst:
		return "first"
	case OffsetTypeLast:
		return "last"
	case OffsetTypeNext:
		return "next"
	case OffsetTypeAbsolute:
		return fmt.Sprintf("offset(%d)", uint64(o.value))
	case OffsetTypeTimestamp:
		return fmt.Sprintf("timestamp(%d)", o.value)
	default:
		return fmt.Sprintf("unknown(%d)", o.typ)
	}
}
