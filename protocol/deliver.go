package protocol

import (
	"context"
	"fmt"

	"github.com/CefBoud/monstream/compress"
	"github.com/CefBoud/monstream/serde"
	"golang.org/x/sync/errgroup"
)

const (
	chunkMagicVersion = uint8(0x50)
	// only user chunks are delivered to subscriptions
	chunkTypeUser = uint8(0)
)

// Deliver is a chunk pushed to a subscription
type Deliver struct {
	SubscriptionID uint8
	// CommittedChunkID is only sent from version 2 on
	CommittedChunkID uint64
	FrameVersion     uint16
	Timestamp        int64
	Epoch            uint64
	ChunkFirstOffset uint64
	Entries          []Entry
}

func (m Deliver) Key() uint16 { return DeliverKey }

func (m Deliver) Version() uint16 {
	if m.FrameVersion == 0 {
		return 1
	}
	return m.FrameVersion
}

func (m Deliver) Encode(e *serde.Encoder) {
	data := serde.NewEncoder()
	records := 0
	for _, entry := range m.Entries {
		entry.encode(&data)
		records += entry.Records()
	}

	e.PutInt8(m.SubscriptionID)
	if m.Version() >= 2 {
		e.PutInt64(m.CommittedChunkID)
	}
	e.PutInt8(chunkMagicVersion)
	e.PutInt8(chunkTypeUser)
	e.PutInt16(uint16(len(m.Entries)))
	e.PutInt32(uint32(records))
	e.PutInt64(uint64(m.Timestamp))
	e.PutInt64(m.Epoch)
	e.PutInt64(m.ChunkFirstOffset)
	e.PutInt32(serde.Checksum(data.Bytes()))
	e.PutInt32(uint32(data.Len()))
	e.PutInt32(0) // trailer length
	e.PutInt32(0) // reserved
	e.PutBytes(data.Bytes())
}

// DeliverData is a decoded chunk whose records are only extracted, and
// decompressed, when Messages is called
type DeliverData struct {
	SubscriptionID   uint8
	CommittedChunkID uint64
	NumEntries       uint16
	NumRecords       uint32
	Timestamp        int64
	Epoch            uint64
	ChunkFirstOffset uint64
	CRC              uint32

	data   []byte
	codecs *compress.Registry
}

// DecodeDeliver parses the chunk header of a deliver frame and checks the data
// checksum when verifyCRC is set. codecs is used later on by Messages.
func DecodeDeliver(frame []byte, verifyCRC bool, codecs *compress.Registry) (*DeliverData, error) {
	h, err := serde.ParseHeader(frame)
	if err != nil {
		return nil, malformed(h, err)
	}
	dd := &DeliverData{codecs: codecs}
	var chunkType uint8
	err = decodeCommand(frame, func(d *serde.Decoder) {
		dd.SubscriptionID = d.UInt8()
		if h.Version >= 2 {
			dd.CommittedChunkID = d.UInt64()
		}
		d.Skip(1) // magic and version
		chunkType = d.UInt8()
		dd.NumEntries = d.UInt16()
		dd.NumRecords = d.UInt32()
		dd.Timestamp = d.Int64()
		dd.Epoch = d.UInt64()
		dd.ChunkFirstOffset = d.UInt64()
		dd.CRC = d.UInt32()
		dataLength := d.UInt32()
		d.Skip(4 + 4) // trailer length and reserved
		dd.data = d.GetNBytes(int(dataLength))
	})
	if err != nil {
		return nil, err
	}
	if chunkType != chunkTypeUser {
		return nil, &ProtocolError{Key: h.Key, Version: h.Version, Err: fmt.Errorf("%w: chunk type %d", ErrMalformedFrame, chunkType)}
	}
	if verifyCRC {
		if crc := serde.Checksum(dd.data); crc != dd.CRC {
			return nil, &ProtocolError{Key: h.Key, Version: h.Version, Err: fmt.Errorf("%w: expected %#08x, computed %#08x", ErrChecksumMismatch, dd.CRC, crc)}
		}
	}
	return dd, nil
}

type batchJob struct {
	part  int
	count int
	codec compress.CompressionType
	blob  []byte
}

// Messages extracts the records of the chunk in order. Compressed sub-entry
// batches are decompressed concurrently, each one filling the part reserved
// for it.
func (dd *DeliverData) Messages(ctx context.Context) ([][]byte, error) {
	d := serde.NewDecoder(dd.data)
	// an entry takes at least 4 bytes, whatever the header claims
	parts := make([][][]byte, 0, min(int(dd.NumEntries), len(dd.data)/4))
	var jobs []batchJob

	for i := 0; i < int(dd.NumEntries); i++ {
		entryType := d.UInt8()
		if d.Err() != nil {
			break
		}
		if entryType&subEntryFlag == 0 {
			d.Unread(1)
			parts = append(parts, [][]byte{d.LenBytes()})
			continue
		}
		codec := compress.CompressionType((entryType & 0x70) >> 4)
		count := int(d.UInt16())
		d.Skip(4) // uncompressed length
		blob := d.LenBytes()
		if d.Err() != nil {
			break
		}
		if codec == compress.NONE {
			records, err := decodeRecords(blob, count)
			if err != nil {
				return nil, dd.malformed(fmt.Errorf("uncompressed batch: %w", err))
			}
			parts = append(parts, records)
			continue
		}
		if _, err := dd.codecs.Get(codec); err != nil {
			return nil, dd.malformed(err)
		}
		jobs = append(jobs, batchJob{part: len(parts), count: count, codec: codec, blob: blob})
		parts = append(parts, nil)
	}
	if err := d.Err(); err != nil {
		return nil, dd.malformed(err)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := dd.codecs.Decompress(job.codec, job.blob)
			if err != nil {
				return dd.malformed(fmt.Errorf("%v batch: %w", job.codec, err))
			}
			records, err := decodeRecords(out, job.count)
			if err != nil {
				return dd.malformed(fmt.Errorf("%v batch: %w", job.codec, err))
			}
			parts[job.part] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, part := range parts {
		total += len(part)
	}
	messages := make([][]byte, 0, total)
	for _, part := range parts {
		messages = append(messages, part...)
	}
	return messages, nil
}

// decodeRecords reads count length prefixed records. A count that cannot fit in
// data is rejected before anything is allocated.
func decodeRecords(data []byte, count int) ([][]byte, error) {
	if count > len(data)/4 {
		return nil, fmt.Errorf("%w: %d records cannot fit in %d bytes", serde.ErrShortBuffer, count, len(data))
	}
	d := serde.NewDecoder(data)
	records := make([][]byte, 0, count)
	for j := 0; j < count; j++ {
		records = append(records, d.LenBytes())
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (dd *DeliverData) malformed(err error) error {
	return &ProtocolError{Key: DeliverKey, Err: fmt.Errorf("%w: %w", ErrMalformedFrame, err)}
}
