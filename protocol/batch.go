package protocol

import (
	"fmt"

	"github.com/CefBoud/monstream/compress"
	"github.com/CefBoud/monstream/serde"
)

// subEntryFlag marks a sub-entry batch, the 3 next bits are the codec
const subEntryFlag = 0x80

// Entry is one element of a publish or of a chunk: a single message or a
// sub-entry batch built by CreateBatch. Batch takes precedence when both are set.
type Entry struct {
	Message []byte
	Batch   []byte
}

// Records returns the number of messages the entry holds
func (entry Entry) Records() int {
	if entry.Batch != nil {
		if len(entry.Batch) < 3 {
			return 0
		}
		return int(serde.Encoding.Uint16(entry.Batch[1:]))
	}
	return 1
}

func (entry Entry) encode(e *serde.Encoder) {
	if entry.Batch != nil {
		e.PutBytes(entry.Batch)
		return
	}
	e.PutLenBytes(entry.Message)
}

func decodeEntry(d *serde.Decoder) Entry {
	b := d.UInt8()
	d.Unread(1)
	if b&subEntryFlag == 0 {
		return Entry{Message: d.LenBytes()}
	}
	start := d.Offset
	d.Skip(1 + 2 + 4)
	size := d.UInt32()
	d.Skip(int(size))
	if d.Err() != nil {
		return Entry{}
	}
	d.Offset = start
	return Entry{Batch: d.GetNBytes(1 + 2 + 4 + 4 + int(size))}
}

// CreateBatch builds a sub-entry batch: the length prefixed messages, compressed
// with the codec registered for ct, behind the entry header
func CreateBatch(ct compress.CompressionType, registry *compress.Registry, messages [][]byte) ([]byte, error) {
	if ct > compress.MaxCompressionType {
		return nil, fmt.Errorf("compression type %v does not fit an entry header", ct)
	}
	if len(messages) > 0xFFFF {
		return nil, fmt.Errorf("batch of %d messages, at most %d allowed", len(messages), 0xFFFF)
	}
	records := serde.NewEncoder()
	for _, m := range messages {
		records.PutLenBytes(m)
	}
	raw := records.Bytes()
	payload := raw
	if ct != compress.NONE {
		c, err := registry.Get(ct)
		if err != nil {
			return nil, err
		}
		if payload, err = c.Compress(raw); err != nil {
			return nil, fmt.Errorf("compress %v batch: %w", ct, err)
		}
	}

	e := serde.NewEncoder()
	e.PutInt8(subEntryFlag | uint8(ct)<<4)
	e.PutInt16(uint16(len(messages)))
	e.PutInt32(uint32(len(raw)))
	e.PutLenBytes(payload)
	return e.Bytes(), nil
}
