package protocol

import (
	"errors"
	"fmt"
)

// Response codes
const (
	CodeOK                                = uint16(0x01)
	CodeStreamDoesNotExist                = uint16(0x02)
	CodeSubscriptionIDAlreadyExists       = uint16(0x03)
	CodeSubscriptionIDDoesNotExist        = uint16(0x04)
	CodeStreamAlreadyExists               = uint16(0x05)
	CodeStreamNotAvailable                = uint16(0x06)
	CodeSaslMechanismNotSupported         = uint16(0x07)
	CodeAuthenticationFailure             = uint16(0x08)
	CodeSaslError                         = uint16(0x09)
	CodeSaslChallenge                     = uint16(0x0a)
	CodeSaslAuthenticationFailureLoopback = uint16(0x0b)
	CodeVirtualHostAccessFailure          = uint16(0x0c)
	CodeUnknownFrame                      = uint16(0x0d)
	CodeFrameTooLarge                     = uint16(0x0e)
	CodeInternalError                     = uint16(0x0f)
	CodeAccessRefused                     = uint16(0x10)
	CodePreconditionFailed                = uint16(0x11)
	CodePublisherDoesNotExist             = uint16(0x12)
	CodeNoOffset                          = uint16(0x13)
)

// ResponseCodeText associates response codes with a description
var ResponseCodeText = map[uint16]string{
	CodeOK:                                "ok",
	CodeStreamDoesNotExist:                "stream does not exist",
	CodeSubscriptionIDAlreadyExists:       "subscription id already exists",
	CodeSubscriptionIDDoesNotExist:        "subscription id does not exist",
	CodeStreamAlreadyExists:               "stream already exists",
	CodeStreamNotAvailable:                "stream not available",
	CodeSaslMechanismNotSupported:         "sasl mechanism not supported",
	CodeAuthenticationFailure:             "authentication failure",
	CodeSaslError:                         "sasl error",
	CodeSaslChallenge:                     "sasl challenge",
	CodeSaslAuthenticationFailureLoopback: "sasl authentication failure loopback",
	CodeVirtualHostAccessFailure:          "virtual host access failure",
	CodeUnknownFrame:                      "unknown frame",
	CodeFrameTooLarge:                     "frame too large",
	CodeInternalError:                     "internal error",
	CodeAccessRefused:                     "access refused",
	CodePreconditionFailed:                "precondition failed",
	CodePublisherDoesNotExist:             "publisher does not exist",
	CodeNoOffset:                          "no offset",
}

// StreamError is a non OK status code returned by the server for a command
type StreamError struct {
	Key  uint16
	Code uint16
}

func (e *StreamError) Error() string {
	text, ok := ResponseCodeText[e.Code]
	if !ok {
		text = "unknown response code"
	}
	return fmt.Sprintf("%s failed: %s (code %#04x)", KeyName(e.Key), text, e.Code)
}

// HasCode reports if err is a StreamError with the given code
func HasCode(err error, code uint16) bool {
	var se *StreamError
	return errors.As(err, &se) && se.Code == code
}

// Protocol violations detected while reading frames
var (
	ErrUnknownCommand     = errors.New("unknown command")
	ErrUnsupportedVersion = errors.New("unsupported version")
	ErrMalformedFrame     = errors.New("malformed frame")
	ErrChecksumMismatch   = errors.New("chunk checksum mismatch")
)

// ProtocolError is a frame that could not be understood
type ProtocolError struct {
	Key     uint16
	Version uint16
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error on %s (key %#04x, version %d): %v", KeyName(e.Key), e.Key, e.Version, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
