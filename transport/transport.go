package transport

import (
	"context"
	"errors"
	"time"
)

// ErrFrameTooLarge is returned by Send for a frame above the negotiated frame max
var ErrFrameTooLarge = errors.New("frame larger than the negotiated frame max")

// ErrClosed is returned by Send once the transport is closed
var ErrClosed = errors.New("transport closed")

// Handler receives what happens on a transport. Calls are made from a single
// goroutine, in the order frames arrive.
type Handler interface {
	// OnMessage gets one frame, length prefix included
	OnMessage(frame []byte)
	// OnError reports a failure that does not close the transport by itself
	OnError(err error)
	// OnClose is called exactly once, after the last OnMessage
	OnClose(reason string)
}

// Transport carries frames to and from a node
type Transport interface {
	Connect(ctx context.Context, addr string, h Handler) error
	Send(frame []byte) error
	SetFrameMax(n uint32)
	SetHeartbeat(interval time.Duration)
	Close() error
}
