package protocol

import "github.com/CefBoud/monstream/serde"

// OpenRequest opens a virtual host
type OpenRequest struct {
	Vhost string
}

func (r OpenRequest) Key() uint16     { return OpenKey }
func (r OpenRequest) Version() uint16 { return 1 }
func (r OpenRequest) Encode(e *serde.Encoder) {
	e.PutString(r.Vhost)
}

// DecodeOpenRequest parses an open request
func DecodeOpenRequest(frame []byte) (OpenRequest, error) {
	var r OpenRequest
	err := decodeRequest(frame, func(d *serde.Decoder) {
		r.Vhost = d.String()
	})
	return r, err
}

// OpenResponse carries the connection properties, advertised host and port among them
type OpenResponse struct {
	Properties map[string]string
}

func (r OpenResponse) Key() uint16     { return OpenKey }
func (r OpenResponse) Version() uint16 { return 1 }
func (r OpenResponse) Encode(e *serde.Encoder) {
	e.PutStringMap(r.Properties)
}

// DecodeOpenResponse parses an open response. A response without properties is valid.
func DecodeOpenResponse(frame []byte) (OpenResponse, error) {
	r := OpenResponse{Properties: map[string]string{}}
	err := decodeResponse(frame, func(d *serde.Decoder) {
		if d.Remaining() > 0 {
			r.Properties = d.StringMap()
		}
	})
	return r, err
}
