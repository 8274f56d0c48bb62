package protocol

import "github.com/CefBoud/monstream/serde"

// CloseRequest ends the session. Either side can send it and the peer answers
// with a response bearing the same correlation id.
type CloseRequest struct {
	Code   uint16
	Reason string
}

func (r CloseRequest) Key() uint16     { return CloseKey }
func (r CloseRequest) Version() uint16 { return 1 }
func (r CloseRequest) Encode(e *serde.Encoder) {
	e.PutInt16(r.Code)
	e.PutString(r.Reason)
}

// DecodeCloseRequest parses a close request
func DecodeCloseRequest(frame []byte) (uint32, CloseRequest, error) {
	var corrID uint32
	var r CloseRequest
	err := decodeCommand(frame, func(d *serde.Decoder) {
		corrID = d.UInt32()
		r.Code = d.UInt16()
		r.Reason = d.String()
	})
	return corrID, r, err
}
