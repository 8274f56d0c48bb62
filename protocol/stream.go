package protocol

import (
	"sort"

	"github.com/CefBoud/monstream/serde"
)

// CreateStreamRequest creates a stream with arguments such as max-length-bytes
type CreateStreamRequest struct {
	Stream    string
	Arguments map[string]string
}

func (r CreateStreamRequest) Key() uint16     { return CreateStreamKey }
func (r CreateStreamRequest) Version() uint16 { return 1 }
func (r CreateStreamRequest) Encode(e *serde.Encoder) {
	e.PutString(r.Stream)
	e.PutStringMap(r.Arguments)
}

// DecodeCreateStreamRequest parses a create stream request
func DecodeCreateStreamRequest(frame []byte) (CreateStreamRequest, error) {
	var r CreateStreamRequest
	err := decodeRequest(frame, func(d *serde.Decoder) {
		r.Stream = d.String()
		r.Arguments = d.StringMap()
	})
	return r, err
}

// DeleteStreamRequest deletes a stream
type DeleteStreamRequest struct {
	Stream string
}

func (r DeleteStreamRequest) Key() uint16     { return DeleteStreamKey }
func (r DeleteStreamRequest) Version() uint16 { return 1 }
func (r DeleteStreamRequest) Encode(e *serde.Encoder) {
	e.PutString(r.Stream)
}

// DecodeStreamRequest parses a request whose body is a single stream name
func DecodeStreamRequest(frame []byte) (string, error) {
	var stream string
	err := decodeRequest(frame, func(d *serde.Decoder) {
		stream = d.String()
	})
	return stream, err
}

// StreamStatsRequest asks for the counters of a stream
type StreamStatsRequest struct {
	Stream string
}

func (r StreamStatsRequest) Key() uint16     { return StreamStatsKey }
func (r StreamStatsRequest) Version() uint16 { return 1 }
func (r StreamStatsRequest) Encode(e *serde.Encoder) {
	e.PutString(r.Stream)
}

// StreamStatsResponse holds named counters, e.g. first_chunk_id or committed_chunk_id
type StreamStatsResponse struct {
	Stats map[string]int64
}

func (r StreamStatsResponse) Key() uint16     { return StreamStatsKey }
func (r StreamStatsResponse) Version() uint16 { return 1 }
func (r StreamStatsResponse) Encode(e *serde.Encoder) {
	keys := make([]string, 0, len(r.Stats))
	for k := range r.Stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	e.PutArrayLen(len(keys))
	for _, k := range keys {
		e.PutString(k)
		e.PutInt64(uint64(r.Stats[k]))
	}
}

// DecodeStreamStatsResponse parses a stream stats response
func DecodeStreamStatsResponse(frame []byte) (StreamStatsResponse, error) {
	r := StreamStatsResponse{Stats: map[string]int64{}}
	err := decodeResponse(frame, func(d *serde.Decoder) {
		n := d.ArrayLen()
		for i := 0; i < n && d.Err() == nil; i++ {
			k := d.String()
			r.Stats[k] = d.Int64()
		}
	})
	return r, err
}
