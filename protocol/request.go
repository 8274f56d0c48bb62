package protocol

import (
	"fmt"

	"github.com/CefBoud/monstream/serde"
)

// Message is a frame body of a given key and version
type Message interface {
	Key() uint16
	Version() uint16
	Encode(e *serde.Encoder)
}

// MarshalRequest frames a correlated request
func MarshalRequest(correlationID uint32, m Message) ([]byte, error) {
	e := serde.NewFrameEncoder(m.Key(), m.Version())
	e.PutInt32(correlationID)
	m.Encode(&e)
	return finish(&e, m)
}

// MarshalCommand frames a one way command
func MarshalCommand(m Message) ([]byte, error) {
	e := serde.NewFrameEncoder(m.Key(), m.Version())
	m.Encode(&e)
	return finish(&e, m)
}

// MarshalResponse frames the response to the request of key m.Key()
func MarshalResponse(correlationID uint32, code uint16, m Message) ([]byte, error) {
	e := serde.NewFrameEncoder(m.Key()|serde.ResponseFlag, m.Version())
	e.PutInt32(correlationID)
	e.PutInt16(code)
	m.Encode(&e)
	return finish(&e, m)
}

func finish(e *serde.Encoder, m Message) ([]byte, error) {
	if err := e.Err(); err != nil {
		return nil, fmt.Errorf("encode %s: %w", KeyName(m.Key()), err)
	}
	e.PutLen()
	return e.Bytes(), nil
}

// EncodeRequest is MarshalRequest for a message known to be valid. It panics
// if m cannot be encoded.
func EncodeRequest(correlationID uint32, m Message) []byte {
	return must(MarshalRequest(correlationID, m))
}

// EncodeCommand is MarshalCommand for a message known to be valid
func EncodeCommand(m Message) []byte {
	return must(MarshalCommand(m))
}

// EncodeResponse is MarshalResponse for a message known to be valid
func EncodeResponse(correlationID uint32, code uint16, m Message) []byte {
	return must(MarshalResponse(correlationID, code, m))
}

func must(frame []byte, err error) []byte {
	if err != nil {
		panic(err)
	}
	return frame
}

// EmptyResponse is the body of responses that only carry a status code
type EmptyResponse struct {
	RequestKey uint16
}

func (r EmptyResponse) Key() uint16           { return r.RequestKey }
func (r EmptyResponse) Version() uint16       { return 1 }
func (r EmptyResponse) Encode(*serde.Encoder) {}

// ResponseHeader is the start of a response frame
type ResponseHeader struct {
	serde.Header
	CorrelationID uint32
	Code          uint16
}

// ParseResponseHeader reads the correlation id and the status code of a response.
// The metadata response carries no status code, it is reported as OK.
func ParseResponseHeader(frame []byte) (ResponseHeader, error) {
	h, err := serde.ParseHeader(frame)
	if err != nil {
		return ResponseHeader{}, malformed(h, err)
	}
	d := serde.NewBodyDecoder(frame)
	rh := ResponseHeader{Header: h, CorrelationID: d.UInt32(), Code: CodeOK}
	if h.Key != MetadataResponseKey {
		rh.Code = d.UInt16()
	}
	if err := d.Err(); err != nil {
		return rh, malformed(h, err)
	}
	return rh, nil
}

// ParseRequestHeader reads the correlation id of a request sent by the peer
func ParseRequestHeader(frame []byte) (serde.Header, uint32, error) {
	h, err := serde.ParseHeader(frame)
	if err != nil {
		return h, 0, malformed(h, err)
	}
	d := serde.NewBodyDecoder(frame)
	corrID := d.UInt32()
	if err := d.Err(); err != nil {
		return h, 0, malformed(h, err)
	}
	return h, corrID, nil
}

func malformed(h serde.Header, err error) error {
	return &ProtocolError{Key: h.Key, Version: h.Version, Err: fmt.Errorf("%w: %w", ErrMalformedFrame, err)}
}

// decodeFrame runs fn over the body of frame, starting skip bytes after the header
func decodeFrame(frame []byte, skip int, fn func(d *serde.Decoder)) error {
	h, err := serde.ParseHeader(frame)
	if err != nil {
		return malformed(h, err)
	}
	d := serde.NewBodyDecoder(frame)
	d.Skip(skip)
	fn(&d)
	if err := d.Err(); err != nil {
		return malformed(h, err)
	}
	return nil
}

// decodeResponse runs fn over the body of a response, after the status code
func decodeResponse(frame []byte, fn func(d *serde.Decoder)) error {
	return decodeFrame(frame, 4+2, fn)
}

// decodeRequest runs fn over the body of a correlated request, after the correlation id
func decodeRequest(frame []byte, fn func(d *serde.Decoder)) error {
	return decodeFrame(frame, 4, fn)
}

// decodeCommand runs fn over the body of a one way command
func decodeCommand(frame []byte, fn func(d *serde.Decoder)) error {
	return decodeFrame(frame, 0, fn)
}
