package serde

import (
	"fmt"
	"hash/crc32"
)

// ResponseFlag is set on the key of a response frame
const ResponseFlag = uint16(0x8000)

// HeaderSize is the length prefix, the key and the version
const HeaderSize = 4 + 2 + 2

// Header is the start of every frame
type Header struct {
	Length  uint32
	Key     uint16
	Version uint16
}

// IsResponse reports if the response bit is set on the key
func (h Header) IsResponse() bool {
	return h.Key&ResponseFlag != 0
}

// ParseHeader parses the length, key and version of a frame
func ParseHeader(frame []byte) (Header, error) {
	if len(frame) < HeaderSize {
		return Header{}, fmt.Errorf("%w: frame of %d bytes has no header", ErrShortBuffer, len(frame))
	}
	h := Header{
		Length:  Encoding.Uint32(frame),
		Key:     Encoding.Uint16(frame[4:]),
		Version: Encoding.Uint16(frame[6:]),
	}
	if int(h.Length)+4 != len(frame) {
		return h, fmt.Errorf("%w: frame declares %d bytes, got %d", ErrShortBuffer, h.Length, len(frame)-4)
	}
	return h, nil
}

// NewBodyDecoder returns a Decoder positioned right after the frame header
func NewBodyDecoder(frame []byte) Decoder {
	d := NewDecoder(frame)
	d.Skip(HeaderSize)
	return d
}

// NewFrameEncoder returns an Encoder that already holds the key and version.
// Calling PutLen once the body is written produces the frame.
func NewFrameEncoder(key, version uint16) Encoder {
	e := NewEncoder()
	e.PutInt16(key)
	e.PutInt16(version)
	return e
}

// Checksum computes the CRC-32 (IEEE) of b
func Checksum(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}
