package protocol

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/CefBoud/monstream/compress"
	"github.com/CefBoud/monstream/serde"
)

// slowCompressor is an identity codec whose decompression waits before returning
type slowCompressor struct {
	delay time.Duration
}

func (c slowCompressor) Compress(data []byte) ([]byte, error) {
	return append([]byte(nil), data...), nil
}

func (c slowCompressor) Decompress(data []byte) ([]byte, error) {
	time.Sleep(c.delay)
	return data, nil
}

func batch(t *testing.T, ct compress.CompressionType, registry *compress.Registry, messages ...string) Entry {
	t.Helper()
	raw := make([][]byte, 0, len(messages))
	for _, m := range messages {
		raw = append(raw, []byte(m))
	}
	b, err := CreateBatch(ct, registry, raw)
	if err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	return Entry{Batch: b}
}

func single(m string) Entry {
	return Entry{Message: []byte(m)}
}

func assertMessages(t *testing.T, got [][]byte, expected ...string) {
	t.Helper()
	if len(got) != len(expected) {
		t.Fatalf("Expected %d messages, got %d: %q", len(expected), len(got), got)
	}
	for i := range expected {
		if string(got[i]) != expected[i] {
			t.Errorf("Expected message %d to be %q, got %q", i, expected[i], got[i])
		}
	}
}

func TestDeliverBatchOrder(t *testing.T) {
	registry := compress.NewRegistry()
	frame := EncodeCommand(Deliver{
		SubscriptionID:   4,
		ChunkFirstOffset: 100,
		Entries:          []Entry{single("A"), batch(t, compress.GZIP, registry, "B", "C"), single("D")},
	})
	dd, err := DecodeDeliver(frame, true, registry)
	if err != nil {
		t.Fatalf("DecodeDeliver failed: %v", err)
	}
	if dd.SubscriptionID != 4 || dd.ChunkFirstOffset != 100 || dd.NumEntries != 3 || dd.NumRecords != 4 {
		t.Errorf("Unexpected chunk header %+v", dd)
	}
	messages, err := dd.Messages(context.Background())
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	assertMessages(t, messages, "A", "B", "C", "D")
}

func TestDeliverOutOfOrderDecompression(t *testing.T) {
	registry := compress.NewEmptyRegistry()
	registry.Register(5, slowCompressor{delay: 80 * time.Millisecond})
	registry.Register(6, slowCompressor{})

	frame := EncodeCommand(Deliver{
		Entries: []Entry{
			single("A"),
			batch(t, 5, registry, "B", "C"),
			batch(t, 6, registry, "D", "E", "F"),
			batch(t, compress.NONE, registry, "G"),
			single("H"),
		},
	})
	dd, err := DecodeDeliver(frame, true, registry)
	if err != nil {
		t.Fatalf("DecodeDeliver failed: %v", err)
	}
	messages, err := dd.Messages(context.Background())
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	assertMessages(t, messages, "A", "B", "C", "D", "E", "F", "G", "H")
}

func TestDeliverEveryCodec(t *testing.T) {
	registry := compress.NewRegistry()
	for _, ct := range []compress.CompressionType{compress.GZIP, compress.SNAPPY, compress.LZ4, compress.ZSTD} {
		frame := EncodeCommand(Deliver{Entries: []Entry{batch(t, ct, registry, "x", "yy", "zzz")}})
		dd, err := DecodeDeliver(frame, true, registry)
		if err != nil {
			t.Fatalf("DecodeDeliver %v failed: %v", ct, err)
		}
		messages, err := dd.Messages(context.Background())
		if err != nil {
			t.Fatalf("Messages %v failed: %v", ct, err)
		}
		assertMessages(t, messages, "x", "yy", "zzz")
	}
}

func TestDeliverUnknownCodec(t *testing.T) {
	registry := compress.NewRegistry()
	frame := EncodeCommand(Deliver{Entries: []Entry{batch(t, compress.GZIP, registry, "B")}})
	dd, err := DecodeDeliver(frame, true, compress.NewEmptyRegistry())
	if err != nil {
		t.Fatalf("DecodeDeliver failed: %v", err)
	}
	_, err = dd.Messages(context.Background())
	if !errors.Is(err, compress.ErrNoCompressor) || !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("Expected a missing codec error, got %v", err)
	}
}

func TestDeliverChecksum(t *testing.T) {
	frame := EncodeCommand(Deliver{Entries: []Entry{single("hello")}})
	// flip the last byte of the data
	frame[len(frame)-1] ^= 0xFF

	_, err := DecodeDeliver(frame, true, nil)
	var perr *ProtocolError
	if !errors.As(err, &perr) || !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("Expected a checksum mismatch, got %v", err)
	}

	dd, err := DecodeDeliver(frame, false, nil)
	if err != nil {
		t.Fatalf("Expected decoding to pass with checksum verification disabled: %v", err)
	}
	messages, err := dd.Messages(context.Background())
	if err != nil || len(messages) != 1 || bytes.Equal(messages[0], []byte("hello")) {
		t.Errorf("Expected the corrupted message to be returned as is, got %q (%v)", messages, err)
	}
}

func TestDeliverVersion2(t *testing.T) {
	frame := EncodeCommand(Deliver{FrameVersion: 2, SubscriptionID: 1, CommittedChunkID: 77, Entries: []Entry{single("m")}})
	dd, err := DecodeDeliver(frame, true, nil)
	if err != nil {
		t.Fatalf("DecodeDeliver failed: %v", err)
	}
	if dd.CommittedChunkID != 77 || dd.SubscriptionID != 1 {
		t.Errorf("Unexpected v2 chunk %+v", dd)
	}
}

func TestPublishRoundTrip(t *testing.T) {
	registry := compress.NewRegistry()
	b := batch(t, compress.ZSTD, registry, "a", "b")
	frame := EncodeCommand(Publish{PublisherID: 9, Entries: []PublishEntry{
		{PublishingID: 1, Entry: single("one")},
		{PublishingID: 2, Entry: b},
		{PublishingID: 3, Entry: single("three")},
	}})
	p, err := DecodePublish(frame)
	if err != nil {
		t.Fatalf("DecodePublish failed: %v", err)
	}
	if p.PublisherID != 9 || len(p.Entries) != 3 {
		t.Fatalf("Unexpected publish %+v", p)
	}
	if string(p.Entries[0].Message) != "one" || string(p.Entries[2].Message) != "three" {
		t.Errorf("Unexpected single entries %+v", p.Entries)
	}
	if !bytes.Equal(p.Entries[1].Batch, b.Batch) || p.Entries[1].Records() != 2 || p.Entries[1].PublishingID != 2 {
		t.Errorf("Expected the batch to be written raw and read back intact")
	}
}

func TestDeliverRecordCountsFromTheWire(t *testing.T) {
	frame := EncodeCommand(Deliver{Entries: []Entry{single("A")}})
	// the record count sits after the subscription id, magic, chunk type and entry count
	serde.Encoding.PutUint32(frame[13:], 0xFFFFFFF0)
	dd, err := DecodeDeliver(frame, true, nil)
	if err != nil {
		t.Fatalf("DecodeDeliver failed: %v", err)
	}
	messages, err := dd.Messages(context.Background())
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	assertMessages(t, messages, "A")

	frame = EncodeCommand(Deliver{Entries: []Entry{single("A")}})
	serde.Encoding.PutUint16(frame[11:], 0xFFFF)
	dd, err = DecodeDeliver(frame, true, nil)
	if err != nil {
		t.Fatalf("DecodeDeliver failed: %v", err)
	}
	if _, err := dd.Messages(context.Background()); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("Expected a malformed frame with too many entries, got %v", err)
	}
}

func TestDeliverBatchCountFromTheWire(t *testing.T) {
	registry := compress.NewRegistry()
	for _, ct := range []compress.CompressionType{compress.NONE, compress.GZIP} {
		frame := EncodeCommand(Deliver{Entries: []Entry{batch(t, ct, registry, "B", "C")}})
		// the data starts after the 49 bytes of chunk header, the count follows the entry type
		serde.Encoding.PutUint16(frame[serde.HeaderSize+49+1:], 0xFFFF)
		dd, err := DecodeDeliver(frame, false, registry)
		if err != nil {
			t.Fatalf("DecodeDeliver %v failed: %v", ct, err)
		}
		_, err = dd.Messages(context.Background())
		if !errors.Is(err, ErrMalformedFrame) || !errors.Is(err, serde.ErrShortBuffer) {
			t.Errorf("Expected %v batch with an oversized count to be malformed, got %v", ct, err)
		}
	}
}
