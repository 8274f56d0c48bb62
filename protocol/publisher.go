package protocol

import (
	"fmt"

	"github.com/CefBoud/monstream/serde"
)

// MaxReferenceLength is the longest publisher or consumer reference accepted
const MaxReferenceLength = 256

// ErrReferenceTooLong is returned for a reference longer than MaxReferenceLength
var ErrReferenceTooLong = fmt.Errorf("reference longer than %d characters", MaxReferenceLength)

// DeclarePublisherRequest binds a publisher id to a stream
type DeclarePublisherRequest struct {
	PublisherID uint8
	Reference   string
	Stream      string
}

func (r DeclarePublisherRequest) Key() uint16     { return DeclarePublisherKey }
func (r DeclarePublisherRequest) Version() uint16 { return 1 }
func (r DeclarePublisherRequest) Encode(e *serde.Encoder) {
	e.PutInt8(r.PublisherID)
	e.PutString(r.Reference)
	e.PutString(r.Stream)
}

// DecodeDeclarePublisherRequest parses a declare publisher request
func DecodeDeclarePublisherRequest(frame []byte) (DeclarePublisherRequest, error) {
	var r DeclarePublisherRequest
	err := decodeRequest(frame, func(d *serde.Decoder) {
		r.PublisherID = d.UInt8()
		r.Reference = d.String()
		r.Stream = d.String()
	})
	return r, err
}

// PublishEntry is a message, or a sub-entry batch, and its publishing id
type PublishEntry struct {
	PublishingID uint64
	Entry
}

// Publish sends messages for a declared publisher, one way
type Publish struct {
	PublisherID uint8
	Entries     []PublishEntry
}

func (p Publish) Key() uint16     { return PublishKey }
func (p Publish) Version() uint16 { return 1 }
func (p Publish) Encode(e *serde.Encoder) {
	e.PutInt8(p.PublisherID)
	e.PutArrayLen(len(p.Entries))
	for _, entry := range p.Entries {
		e.PutInt64(entry.PublishingID)
		entry.encode(e)
	}
}

// DecodePublish parses a publish command
func DecodePublish(frame []byte) (Publish, error) {
	var p Publish
	err := decodeCommand(frame, func(d *serde.Decoder) {
		p.PublisherID = d.UInt8()
		n := d.ArrayLen()
		for i := 0; i < n && d.Err() == nil; i++ {
			id := d.UInt64()
			p.Entries = append(p.Entries, PublishEntry{PublishingID: id, Entry: decodeEntry(d)})
		}
	})
	return p, err
}

// PublishConfirm acknowledges publishing ids
type PublishConfirm struct {
	PublisherID   uint8
	PublishingIDs []uint64
}

func (c PublishConfirm) Key() uint16     { return PublishConfirmKey }
func (c PublishConfirm) Version() uint16 { return 1 }
func (c PublishConfirm) Encode(e *serde.Encoder) {
	e.PutInt8(c.PublisherID)
	e.PutArrayLen(len(c.PublishingIDs))
	for _, id := range c.PublishingIDs {
		e.PutInt64(id)
	}
}

// DecodePublishConfirm parses a publish confirm command
func DecodePublishConfirm(frame []byte) (PublishConfirm, error) {
	var c PublishConfirm
	err := decodeCommand(frame, func(d *serde.Decoder) {
		c.PublisherID = d.UInt8()
		n := d.ArrayLen()
		c.PublishingIDs = make([]uint64, 0, n)
		for i := 0; i < n && d.Err() == nil; i++ {
			c.PublishingIDs = append(c.PublishingIDs, d.UInt64())
		}
	})
	return c, err
}

// PublishingError is a message the server refused
type PublishingError struct {
	PublishingID uint64
	Code         uint16
}

// PublishError reports refused publishing ids
type PublishError struct {
	PublisherID uint8
	Errors      []PublishingError
}

func (p PublishError) Key() uint16     { return PublishErrorKey }
func (p PublishError) Version() uint16 { return 1 }
func (p PublishError) Encode(e *serde.Encoder) {
	e.PutInt8(p.PublisherID)
	e.PutArrayLen(len(p.Errors))
	for _, pe := range p.Errors {
		e.PutInt64(pe.PublishingID)
		e.PutInt16(pe.Code)
	}
}

// DecodePublishError parses a publish error command
func DecodePublishError(frame []byte) (PublishError, error) {
	var p PublishError
	err := decodeCommand(frame, func(d *serde.Decoder) {
		p.PublisherID = d.UInt8()
		n := d.ArrayLen()
		for i := 0; i < n && d.Err() == nil; i++ {
			p.Errors = append(p.Errors, PublishingError{PublishingID: d.UInt64(), Code: d.UInt16()})
		}
	})
	return p, err
}

// QueryPublisherSequenceRequest asks for the last publishing id stored for a reference
type QueryPublisherSequenceRequest struct {
	Reference string
	Stream    string
}

func (r QueryPublisherSequenceRequest) Key() uint16     { return QueryPublisherSequenceKey }
func (r QueryPublisherSequenceRequest) Version() uint16 { return 1 }
func (r QueryPublisherSequenceRequest) Encode(e *serde.Encoder) {
	e.PutString(r.Reference)
	e.PutString(r.Stream)
}

// DecodeQueryPublisherSequenceRequest parses a query publisher sequence request
func DecodeQueryPublisherSequenceRequest(frame []byte) (QueryPublisherSequenceRequest, error) {
	var r QueryPublisherSequenceRequest
	err := decodeRequest(frame, func(d *serde.Decoder) {
		r.Reference = d.String()
		r.Stream = d.String()
	})
	return r, err
}

// SequenceResponse carries a single u64, the sequence or the offset asked for
type SequenceResponse struct {
	RequestKey uint16
	Value      uint64
}

func (r SequenceResponse) Key() uint16     { return r.RequestKey }
func (r SequenceResponse) Version() uint16 { return 1 }
func (r SequenceResponse) Encode(e *serde.Encoder) {
	e.PutInt64(r.Value)
}

// DecodeSequenceResponse parses the response of a query publisher sequence or query offset
func DecodeSequenceResponse(frame []byte) (uint64, error) {
	var v uint64
	err := decodeResponse(frame, func(d *serde.Decoder) {
		v = d.UInt64()
	})
	return v, err
}

// DeletePublisherRequest releases a publisher id
type DeletePublisherRequest struct {
	PublisherID uint8
}

func (r DeletePublisherRequest) Key() uint16     { return DeletePublisherKey }
func (r DeletePublisherRequest) Version() uint16 { return 1 }
func (r DeletePublisherRequest) Encode(e *serde.Encoder) {
	e.PutInt8(r.PublisherID)
}

// DecodeIDRequest parses a request whose body is a single publisher or subscription id
func DecodeIDRequest(frame []byte) (uint8, error) {
	var id uint8
	err := decodeRequest(frame, func(d *serde.Decoder) {
		id = d.UInt8()
	})
	return id, err
}
