package protocol

import (
	"github.com/CefBoud/monstream/serde"
	"github.com/CefBoud/monstream/types"
)

// EncodeOffset writes the offset type, followed by the value for absolute and
// timestamp offsets
func EncodeOffset(e *serde.Encoder, o types.Offset) {
	e.PutInt16(uint16(o.Type()))
	if v, ok := o.Absolute(); ok {
		e.PutInt64(v)
	}
	if ts, ok := o.Timestamp(); ok {
		e.PutInt64(uint64(ts))
	}
}

// DecodeOffset reads an offset written by EncodeOffset
func DecodeOffset(d *serde.Decoder) types.Offset {
	switch types.OffsetType(d.UInt16()) {
	case types.OffsetTypeFirst:
		return types.FirstOffset()
	case types.OffsetTypeLast:
		return types.LastOffset()
	case types.OffsetTypeNext:
		return types.NextOffset()
	case types.OffsetTypeAbsolute:
		return types.AbsoluteOffset(d.UInt64())
	case types.OffsetTypeTimestamp:
		return types.TimestampOffset(d.Int64())
	default:
		return types.NoOffset()
	}
}

// StoreOffset records the offset a consumer reference reached, one way
type StoreOffset struct {
	Reference string
	Stream    string
	Offset    uint64
}

func (s StoreOffset) Key() uint16     { return StoreOffsetKey }
func (s StoreOffset) Version() uint16 { return 1 }
func (s StoreOffset) Encode(e *serde.Encoder) {
	e.PutString(s.Reference)
	e.PutString(s.Stream)
	e.PutInt64(s.Offset)
}

// DecodeStoreOffset parses a store offset command
func DecodeStoreOffset(frame []byte) (StoreOffset, error) {
	var s StoreOffset
	err := decodeCommand(frame, func(d *serde.Decoder) {
		s.Reference = d.String()
		s.Stream = d.String()
		s.Offset = d.UInt64()
	})
	return s, err
}

// QueryOffsetRequest asks for the offset stored for a consumer reference.
// The response is decoded with DecodeSequenceResponse.
type QueryOffsetRequest struct {
	Reference string
	Stream    string
}

func (r QueryOffsetRequest) Key() uint16     { return QueryOffsetKey }
func (r QueryOffsetRequest) Version() uint16 { return 1 }
func (r QueryOffsetRequest) Encode(e *serde.Encoder) {
	e.PutString(r.Reference)
	e.PutString(r.Stream)
}

// DecodeQueryOffsetRequest parses a query offset request
func DecodeQueryOffsetRequest(frame []byte) (QueryOffsetRequest, error) {
	var r QueryOffsetRequest
	err := decodeRequest(frame, func(d *serde.Decoder) {
		r.Reference = d.String()
		r.Stream = d.String()
	})
	return r, err
}
