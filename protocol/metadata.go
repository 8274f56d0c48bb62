package protocol

import "github.com/CefBoud/monstream/serde"

// MetadataRequest asks where streams live
type MetadataRequest struct {
	Streams []string
}

func (r MetadataRequest) Key() uint16     { return MetadataKey }
func (r MetadataRequest) Version() uint16 { return 1 }
func (r MetadataRequest) Encode(e *serde.Encoder) {
	e.PutStringArray(r.Streams)
}

// DecodeMetadataRequest parses a metadata request
func DecodeMetadataRequest(frame []byte) (MetadataRequest, error) {
	var r MetadataRequest
	err := decodeRequest(frame, func(d *serde.Decoder) {
		r.Streams = d.StringArray()
	})
	return r, err
}

// Broker is a node referenced in a metadata response
type Broker struct {
	Reference uint16
	Host      string
	Port      uint32
}

// StreamMetadataEntry is the raw description of one stream
type StreamMetadataEntry struct {
	Stream   string
	Code     uint16
	Leader   uint16
	Replicas []uint16
}

// MetadataResponse lists the nodes then the streams asked for
type MetadataResponse struct {
	Brokers []Broker
	Streams []StreamMetadataEntry
}

func (r MetadataResponse) Key() uint16     { return MetadataKey }
func (r MetadataResponse) Version() uint16 { return 1 }
func (r MetadataResponse) Encode(e *serde.Encoder) {
	e.PutArrayLen(len(r.Brokers))
	for _, b := range r.Brokers {
		e.PutInt16(b.Reference)
		e.PutString(b.Host)
		e.PutInt32(b.Port)
	}
	e.PutArrayLen(len(r.Streams))
	for _, s := range r.Streams {
		e.PutString(s.Stream)
		e.PutInt16(s.Code)
		e.PutInt16(s.Leader)
		e.PutArrayLen(len(s.Replicas))
		for _, ref := range s.Replicas {
			e.PutInt16(ref)
		}
	}
}

// EncodeMetadataResponse frames a metadata response, which has no status code
func EncodeMetadataResponse(correlationID uint32, r MetadataResponse) []byte {
	e := serde.NewFrameEncoder(MetadataResponseKey, r.Version())
	e.PutInt32(correlationID)
	r.Encode(&e)
	return must(finish(&e, r))
}

// DecodeMetadataResponse parses a metadata response
func DecodeMetadataResponse(frame []byte) (MetadataResponse, error) {
	var r MetadataResponse
	err := decodeFrame(frame, 4, func(d *serde.Decoder) {
		n := d.ArrayLen()
		for i := 0; i < n && d.Err() == nil; i++ {
			r.Brokers = append(r.Brokers, Broker{Reference: d.UInt16(), Host: d.String(), Port: d.UInt32()})
		}
		n = d.ArrayLen()
		for i := 0; i < n && d.Err() == nil; i++ {
			s := StreamMetadataEntry{Stream: d.String(), Code: d.UInt16(), Leader: d.UInt16()}
			replicas := d.ArrayLen()
			for j := 0; j < replicas && d.Err() == nil; j++ {
				s.Replicas = append(s.Replicas, d.UInt16())
			}
			r.Streams = append(r.Streams, s)
		}
	})
	return r, err
}

// StreamMetadata is where a stream lives. Leader is nil when the server knows
// no leader for it.
type StreamMetadata struct {
	Stream   string
	Leader   *Broker
	Replicas []Broker
}

// Resolve maps every stream known by the server to its leader and replicas.
// Streams returned with a non OK code are left out.
func (r MetadataResponse) Resolve() map[string]StreamMetadata {
	brokers := make(map[uint16]Broker, len(r.Brokers))
	for _, b := range r.Brokers {
		brokers[b.Reference] = b
	}
	res := make(map[string]StreamMetadata, len(r.Streams))
	for _, s := range r.Streams {
		if s.Code != CodeOK {
			continue
		}
		md := StreamMetadata{Stream: s.Stream}
		if leader, ok := brokers[s.Leader]; ok {
			md.Leader = &leader
		}
		for _, ref := range s.Replicas {
			if b, ok := brokers[ref]; ok {
				md.Replicas = append(md.Replicas, b)
			}
		}
		res[s.Stream] = md
	}
	return res
}

// MetadataUpdate tells the client a stream is no longer available on this connection
type MetadataUpdate struct {
	Code   uint16
	Stream string
}

func (m MetadataUpdate) Key() uint16     { return MetadataUpdateKey }
func (m MetadataUpdate) Version() uint16 { return 1 }
func (m MetadataUpdate) Encode(e *serde.Encoder) {
	e.PutInt16(m.Code)
	e.PutString(m.Stream)
}

// DecodeMetadataUpdate parses a metadata update command
func DecodeMetadataUpdate(frame []byte) (MetadataUpdate, error) {
	var m MetadataUpdate
	err := decodeCommand(frame, func(d *serde.Decoder) {
		m.Code = d.UInt16()
		m.Stream = d.String()
	})
	return m, err
}
