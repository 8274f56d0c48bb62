package protocol

import "github.com/CefBoud/monstream/serde"

// PeerPropertiesRequest advertises the client properties
type PeerPropertiesRequest struct {
	Properties map[string]string
}

func (r PeerPropertiesRequest) Key() uint16     { return PeerPropertiesKey }
func (r PeerPropertiesRequest) Version() uint16 { return 1 }
func (r PeerPropertiesRequest) Encode(e *serde.Encoder) {
	e.PutStringMap(r.Properties)
}

// DecodePeerPropertiesRequest parses a peer properties request
func DecodePeerPropertiesRequest(frame []byte) (PeerPropertiesRequest, error) {
	var r PeerPropertiesRequest
	err := decodeRequest(frame, func(d *serde.Decoder) {
		r.Properties = d.StringMap()
	})
	return r, err
}

// PeerPropertiesResponse carries the server properties
type PeerPropertiesResponse struct {
	Properties map[string]string
}

func (r PeerPropertiesResponse) Key() uint16     { return PeerPropertiesKey }
func (r PeerPropertiesResponse) Version() uint16 { return 1 }
func (r PeerPropertiesResponse) Encode(e *serde.Encoder) {
	e.PutStringMap(r.Properties)
}

// DecodePeerPropertiesResponse parses a peer properties response
func DecodePeerPropertiesResponse(frame []byte) (PeerPropertiesResponse, error) {
	var r PeerPropertiesResponse
	err := decodeResponse(frame, func(d *serde.Decoder) {
		r.Properties = d.StringMap()
	})
	return r, err
}
