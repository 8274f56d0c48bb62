package protocol

import (
	"github.com/CefBoud/monstream/serde"
	"github.com/CefBoud/monstream/types"
)

// SubscribeRequest starts a subscription on a stream
type SubscribeRequest struct {
	SubscriptionID uint8
	Stream         string
	Offset         types.Offset
	Credit         uint16
	Properties     map[string]string
}

func (r SubscribeRequest) Key() uint16     { return SubscribeKey }
func (r SubscribeRequest) Version() uint16 { return 1 }
func (r SubscribeRequest) Encode(e *serde.Encoder) {
	e.PutInt8(r.SubscriptionID)
	e.PutString(r.Stream)
	EncodeOffset(e, r.Offset)
	e.PutInt16(r.Credit)
	e.PutStringMap(r.Properties)
}

// DecodeSubscribeRequest parses a subscribe request
func DecodeSubscribeRequest(frame []byte) (SubscribeRequest, error) {
	var r SubscribeRequest
	err := decodeRequest(frame, func(d *serde.Decoder) {
		r.SubscriptionID = d.UInt8()
		r.Stream = d.String()
		r.Offset = DecodeOffset(d)
		r.Credit = d.UInt16()
		if d.Remaining() > 0 {
			r.Properties = d.StringMap()
		}
	})
	return r, err
}

// Credit allows the server to send more chunks to a subscription, one way
type Credit struct {
	SubscriptionID uint8
	Credit         uint16
}

func (c Credit) Key() uint16     { return CreditKey }
func (c Credit) Version() uint16 { return 1 }
func (c Credit) Encode(e *serde.Encoder) {
	e.PutInt8(c.SubscriptionID)
	e.PutInt16(c.Credit)
}

// DecodeCredit parses a credit command
func DecodeCredit(frame []byte) (Credit, error) {
	var c Credit
	err := decodeCommand(frame, func(d *serde.Decoder) {
		c.SubscriptionID = d.UInt8()
		c.Credit = d.UInt16()
	})
	return c, err
}

// CreditResponse is only sent by the server when a credit command failed
type CreditResponse struct {
	Code           uint16
	SubscriptionID uint8
}

func (c CreditResponse) Key() uint16     { return CreditResponseKey }
func (c CreditResponse) Version() uint16 { return 1 }
func (c CreditResponse) Encode(e *serde.Encoder) {
	e.PutInt16(c.Code)
	e.PutInt8(c.SubscriptionID)
}

// DecodeCreditResponse parses a credit response
func DecodeCreditResponse(frame []byte) (CreditResponse, error) {
	var c CreditResponse
	err := decodeCommand(frame, func(d *serde.Decoder) {
		c.Code = d.UInt16()
		c.SubscriptionID = d.UInt8()
	})
	return c, err
}

// UnsubscribeRequest ends a subscription
type UnsubscribeRequest struct {
	SubscriptionID uint8
}

func (r UnsubscribeRequest) Key() uint16     { return UnsubscribeKey }
func (r UnsubscribeRequest) Version() uint16 { return 1 }
func (r UnsubscribeRequest) Encode(e *serde.Encoder) {
	e.PutInt8(r.SubscriptionID)
}
