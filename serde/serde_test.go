package serde

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
)

func TestPrimitivesRoundTrip(t *testing.T) {
	e := NewEncoder()
	e.PutInt8(0x48)
	e.PutInt8(uint8(0xF3)) // -13 as int8
	e.PutInt16(0x1234)
	e.PutInt16(uint16(0x8001))
	e.PutInt32(0xDEADBEEF)
	e.PutInt32(uint32(0xFFFFFF85)) // -123
	e.PutInt64(math.MaxUint64 - 1)
	e.PutInt64(uint64(0xFFFFFFFFFFFFFC18)) // -1000
	e.PutBool(true)
	e.PutString("stream-éà")
	e.PutString("")
	e.PutNullString()
	e.PutLenBytes([]byte{1, 2, 3})
	e.PutNullBytes()
	e.PutStringArray([]string{"a", "bc"})
	e.PutStringMap(map[string]string{"k2": "v2", "k1": "v1"})

	d := NewDecoder(e.Bytes())
	if v := d.UInt8(); v != 0x48 {
		t.Errorf("Expected UInt8 0x48, got %#x", v)
	}
	if v := d.Int8(); v != -13 {
		t.Errorf("Expected Int8 -13, got %v", v)
	}
	if v := d.UInt16(); v != 0x1234 {
		t.Errorf("Expected UInt16 0x1234, got %#x", v)
	}
	if v := d.Int16(); v != -32767 {
		t.Errorf("Expected Int16 -32767, got %v", v)
	}
	if v := d.UInt32(); v != 0xDEADBEEF {
		t.Errorf("Expected UInt32 0xDEADBEEF, got %#x", v)
	}
	if v := d.Int32(); v != -123 {
		t.Errorf("Expected Int32 -123, got %v", v)
	}
	if v := d.UInt64(); v != math.MaxUint64-1 {
		t.Errorf("Expected UInt64 %v, got %v", uint64(math.MaxUint64-1), v)
	}
	if v := d.Int64(); v != -1000 {
		t.Errorf("Expected Int64 -1000, got %v", v)
	}
	if !d.Bool() {
		t.Errorf("Expected Bool true")
	}
	if v := d.String(); v != "stream-éà" {
		t.Errorf("Expected string 'stream-éà', got %q", v)
	}
	if v := d.String(); v != "" {
		t.Errorf("Expected empty string, got %q", v)
	}
	if v := d.String(); v != "" {
		t.Errorf("Expected null string to decode as empty, got %q", v)
	}
	if v := d.LenBytes(); !bytes.Equal(v, []byte{1, 2, 3}) {
		t.Errorf("Expected bytes [1 2 3], got %v", v)
	}
	if v := d.LenBytes(); len(v) != 0 {
		t.Errorf("Expected null bytes to decode as empty, got %v", v)
	}
	if v := d.StringArray(); len(v) != 2 || v[0] != "a" || v[1] != "bc" {
		t.Errorf("Expected [a bc], got %v", v)
	}
	if v := d.StringMap(); len(v) != 2 || v["k1"] != "v1" || v["k2"] != "v2" {
		t.Errorf("Expected map k1=v1 k2=v2, got %v", v)
	}
	if d.Err() != nil {
		t.Fatalf("Unexpected decode error: %v", d.Err())
	}
	if d.Remaining() != 0 {
		t.Errorf("Expected buffer to be fully consumed, %d bytes left", d.Remaining())
	}
}

func TestNullStringEncoding(t *testing.T) {
	e := NewEncoder()
	e.PutNullString()
	e.PutNullBytes()
	expected := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	if !bytes.Equal(e.Bytes(), expected) {
		t.Errorf("Expected %x, got %x", expected, e.Bytes())
	}
}

func TestReadPastBound(t *testing.T) {
	d := NewDecoder([]byte{0x00, 0x05, 'a', 'b'})
	s := d.String()
	if s != "" {
		t.Errorf("Expected truncated string to decode as empty, got %q", s)
	}
	if !errors.Is(d.Err(), ErrShortBuffer) {
		t.Fatalf("Expected ErrShortBuffer, got %v", d.Err())
	}
	// the error is sticky
	if v := d.UInt8(); v != 0 {
		t.Errorf("Expected zero value after error, got %v", v)
	}

	d = NewDecoder([]byte{0xFF, 0xFF, 0xFF, 0xF0})
	if n := d.ArrayLen(); n != 0 || d.Err() == nil {
		t.Errorf("Expected oversized array count to fail, got %d (%v)", n, d.Err())
	}
}

func TestPutLenAndHeader(t *testing.T) {
	e := NewFrameEncoder(0x0017, 1)
	e.PutLen()
	frame := e.Bytes()
	expected := []byte{0, 0, 0, 4, 0x00, 0x17, 0, 1}
	if !bytes.Equal(frame, expected) {
		t.Fatalf("Expected heartbeat frame %x, got %x", expected, frame)
	}
	h, err := ParseHeader(frame)
	if err != nil {
		t.Fatalf("ParseHeader failed: %v", err)
	}
	if h.Key != 0x17 || h.Version != 1 || h.IsResponse() {
		t.Errorf("Unexpected header %+v", h)
	}
	if _, err := ParseHeader(frame[:6]); err == nil {
		t.Errorf("Expected an error on a truncated header")
	}
	if _, err := ParseHeader(append(frame, 0)); err == nil {
		t.Errorf("Expected an error when the length does not match")
	}
}

func TestEncoderGrowth(t *testing.T) {
	e := NewEncoder()
	big := bytes.Repeat([]byte{7}, 3*BufferIncrement+5)
	e.PutInt8(1)
	e.PutLenBytes(big)
	d := NewDecoder(e.Bytes())
	d.UInt8()
	if v := d.LenBytes(); !bytes.Equal(v, big) {
		t.Errorf("Expected %d bytes to round trip, got %d", len(big), len(v))
	}
}

func TestChecksum(t *testing.T) {
	// CRC-32 IEEE check value
	if c := Checksum([]byte("123456789")); c != 0xCBF43926 {
		t.Errorf("Expected 0xCBF43926, got %#x", c)
	}
}

func TestStringLengthBound(t *testing.T) {
	longest := strings.Repeat("x", math.MaxInt16)
	e := NewEncoder()
	e.PutString(longest)
	e.PutString("next")
	if e.Err() != nil {
		t.Fatalf("Unexpected encode error: %v", e.Err())
	}
	d := NewDecoder(e.Bytes())
	if v := d.String(); v != longest {
		t.Errorf("Expected %d bytes to round trip, got %d", len(longest), len(v))
	}
	if v := d.String(); v != "next" {
		t.Errorf("Expected 'next' after the longest string, got %q", v)
	}

	e = NewEncoder()
	e.PutString(longest + "x")
	e.PutString("next")
	if !errors.Is(e.Err(), ErrStringTooLong) {
		t.Errorf("Expected ErrStringTooLong, got %v", e.Err())
	}
	e = NewEncoder()
	e.PutStringMap(map[string]string{"k": strings.Repeat("v", 70000)})
	if !errors.Is(e.Err(), ErrStringTooLong) {
		t.Errorf("Expected ErrStringTooLong for a map value, got %v", e.Err())
	}
}
