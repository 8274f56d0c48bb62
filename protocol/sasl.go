package protocol

import (
	"bytes"

	"github.com/CefBoud/monstream/serde"
)

// PlainMechanism is the only SASL mechanism supported
const PlainMechanism = "PLAIN"

// SaslHandshakeRequest asks for the supported mechanisms
type SaslHandshakeRequest struct{}

func (r SaslHandshakeRequest) Key() uint16           { return SaslHandshakeKey }
func (r SaslHandshakeRequest) Version() uint16       { return 1 }
func (r SaslHandshakeRequest) Encode(*serde.Encoder) {}

// SaslHandshakeResponse lists the mechanisms of the server
type SaslHandshakeResponse struct {
	Mechanisms []string
}

func (r SaslHandshakeResponse) Key() uint16     { return SaslHandshakeKey }
func (r SaslHandshakeResponse) Version() uint16 { return 1 }
func (r SaslHandshakeResponse) Encode(e *serde.Encoder) {
	e.PutStringArray(r.Mechanisms)
}

// Supports reports if mechanism is in the list
func (r SaslHandshakeResponse) Supports(mechanism string) bool {
	for _, m := range r.Mechanisms {
		if m == mechanism {
			return true
		}
	}
	return false
}

// DecodeSaslHandshakeResponse parses a SASL handshake response
func DecodeSaslHandshakeResponse(frame []byte) (SaslHandshakeResponse, error) {
	var r SaslHandshakeResponse
	err := decodeResponse(frame, func(d *serde.Decoder) {
		r.Mechanisms = d.StringArray()
	})
	return r, err
}

// SaslAuthenticateRequest sends the credentials for a mechanism
type SaslAuthenticateRequest struct {
	Mechanism string
	Data      []byte
}

// NewPlainAuthenticate builds the PLAIN payload "\0user\0password"
func NewPlainAuthenticate(username, password string) SaslAuthenticateRequest {
	var data bytes.Buffer
	data.WriteByte(0)
	data.WriteString(username)
	data.WriteByte(0)
	data.WriteString(password)
	return SaslAuthenticateRequest{Mechanism: PlainMechanism, Data: data.Bytes()}
}

func (r SaslAuthenticateRequest) Key() uint16     { return SaslAuthenticateKey }
func (r SaslAuthenticateRequest) Version() uint16 { return 1 }
func (r SaslAuthenticateRequest) Encode(e *serde.Encoder) {
	e.PutString(r.Mechanism)
	e.PutLenBytes(r.Data)
}

// Credentials splits a PLAIN payload into username and password
func (r SaslAuthenticateRequest) Credentials() (string, string, bool) {
	parts := bytes.Split(r.Data, []byte{0})
	if len(parts) != 3 || len(parts[0]) != 0 {
		return "", "", false
	}
	return string(parts[1]), string(parts[2]), true
}

// DecodeSaslAuthenticateRequest parses a SASL authenticate request
func DecodeSaslAuthenticateRequest(frame []byte) (SaslAuthenticateRequest, error) {
	var r SaslAuthenticateRequest
	err := decodeRequest(frame, func(d *serde.Decoder) {
		r.Mechanism = d.String()
		r.Data = d.LenBytes()
	})
	return r, err
}
