package protocol

import "github.com/CefBoud/monstream/serde"

// RouteRequest resolves the streams of a super stream a routing key goes to
type RouteRequest struct {
	RoutingKey  string
	SuperStream string
}

func (r RouteRequest) Key() uint16     { return RouteKey }
func (r RouteRequest) Version() uint16 { return 1 }
func (r RouteRequest) Encode(e *serde.Encoder) {
	e.PutString(r.RoutingKey)
	e.PutString(r.SuperStream)
}

// DecodeRouteRequest parses a route request
func DecodeRouteRequest(frame []byte) (RouteRequest, error) {
	var r RouteRequest
	err := decodeRequest(frame, func(d *serde.Decoder) {
		r.RoutingKey = d.String()
		r.SuperStream = d.String()
	})
	return r, err
}

// PartitionsRequest lists the streams of a super stream
type PartitionsRequest struct {
	SuperStream string
}

func (r PartitionsRequest) Key() uint16     { return PartitionsKey }
func (r PartitionsRequest) Version() uint16 { return 1 }
func (r PartitionsRequest) Encode(e *serde.Encoder) {
	e.PutString(r.SuperStream)
}

// StreamsResponse is the list of streams returned by route and partitions
type StreamsResponse struct {
	RequestKey uint16
	Streams    []string
}

func (r StreamsResponse) Key() uint16     { return r.RequestKey }
func (r StreamsResponse) Version() uint16 { return 1 }
func (r StreamsResponse) Encode(e *serde.Encoder) {
	e.PutStringArray(r.Streams)
}

// DecodeStreamsResponse parses a route or partitions response
func DecodeStreamsResponse(frame []byte) ([]string, error) {
	var streams []string
	err := decodeResponse(frame, func(d *serde.Decoder) {
		streams = d.StringArray()
	})
	return streams, err
}
