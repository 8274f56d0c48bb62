package protocol

import (
	"github.com/CefBoud/monstream/serde"
	"github.com/CefBoud/monstream/types"
)

// ConsumerUpdateRequest is sent by the server to a single active consumer
// group member when it becomes active or inactive
type ConsumerUpdateRequest struct {
	SubscriptionID uint8
	Active         bool
}

func (r ConsumerUpdateRequest) Key() uint16     { return ConsumerUpdateKey }
func (r ConsumerUpdateRequest) Version() uint16 { return 1 }
func (r ConsumerUpdateRequest) Encode(e *serde.Encoder) {
	e.PutInt8(r.SubscriptionID)
	e.PutBool(r.Active)
}

// DecodeConsumerUpdateRequest parses a consumer update request
func DecodeConsumerUpdateRequest(frame []byte) (uint32, ConsumerUpdateRequest, error) {
	var corrID uint32
	var r ConsumerUpdateRequest
	err := decodeCommand(frame, func(d *serde.Decoder) {
		corrID = d.UInt32()
		r.SubscriptionID = d.UInt8()
		r.Active = d.Bool()
	})
	return corrID, r, err
}

// ConsumerUpdateResponse tells the server where the consumer resumes
type ConsumerUpdateResponse struct {
	Offset types.Offset
}

func (r ConsumerUpdateResponse) Key() uint16     { return ConsumerUpdateKey }
func (r ConsumerUpdateResponse) Version() uint16 { return 1 }
func (r ConsumerUpdateResponse) Encode(e *serde.Encoder) {
	EncodeOffset(e, r.Offset)
}

// DecodeConsumerUpdateResponse parses a consumer update response
func DecodeConsumerUpdateResponse(frame []byte) (ConsumerUpdateResponse, error) {
	var r ConsumerUpdateResponse
	err := decodeResponse(frame, func(d *serde.Decoder) {
		r.Offset = DecodeOffset(d)
	})
	return r, err
}
