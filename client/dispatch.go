package client

import (
	"fmt"
	"sync"
	"time"

	log "github.com/CefBoud/monstream/logging"
	"github.com/CefBoud/monstream/protocol"
	"github.com/CefBoud/monstream/serde"
	"github.com/CefBoud/monstream/types"
)

// connHandler receives what the transport reads
type connHandler struct {
	c *Client
}

func (h connHandler) OnMessage(frame []byte) { h.c.onMessage(frame) }
func (h connHandler) OnError(err error)      { h.c.emitError(err) }
func (h connHandler) OnClose(reason string)  { h.c.onClose(reason) }

func (c *Client) onMessage(frame []byte) {
	metricsFrameIn()
	h, err := serde.ParseHeader(frame)
	if err != nil {
		c.emitError(&protocol.ProtocolError{Key: h.Key, Version: h.Version, Err: fmt.Errorf("%w: %w", protocol.ErrMalformedFrame, err)})
		return
	}
	if h.IsResponse() && h.Key != protocol.CreditResponseKey && h.Key != protocol.MetadataResponseKey {
		c.onResponse(h, frame)
		return
	}
	if h.Key == protocol.HeartbeatKey {
		return
	}
	if err := c.onCommand(h, frame); err != nil {
		c.emitError(err)
	}
}

func (c *Client) onResponse(h serde.Header, frame []byte) {
	rh, err := protocol.ParseResponseHeader(frame)
	if err != nil {
		c.emitError(err)
		return
	}
	p, ok := c.takePending(rh.CorrelationID)
	if !ok {
		c.emitError(&protocol.ProtocolError{Key: h.Key, Version: h.Version,
			Err: fmt.Errorf("unexpected response for correlation id %d", rh.CorrelationID)})
		return
	}
	key := h.Key &^ serde.ResponseFlag
	if key != p.key || h.Version != p.version {
		err := &protocol.ProtocolError{Key: h.Key, Version: h.Version,
			Err: fmt.Errorf("%w: key or version does not match the pending %s version %d", protocol.ErrMalformedFrame, protocol.KeyName(p.key), p.version)}
		p.reject(err)
		c.emitError(err)
		return
	}
	if rh.Code != protocol.CodeOK {
		p.reject(&protocol.StreamError{Key: key, Code: rh.Code})
		return
	}
	p.resolve(frame)
}

func (c *Client) onCommand(h serde.Header, frame []byte) error {
	if !protocol.IsServerCommand(h.Key) {
		return &protocol.ProtocolError{Key: h.Key, Version: h.Version, Err: protocol.ErrUnknownCommand}
	}
	if !protocol.IsSupportedServerCommand(h.Key, h.Version) {
		return &protocol.ProtocolError{Key: h.Key, Version: h.Version, Err: protocol.ErrUnsupportedVersion}
	}
	switch h.Key {
	case protocol.PublishConfirmKey:
		return c.onPublishConfirm(frame)
	case protocol.PublishErrorKey:
		return c.onPublishError(frame)
	case protocol.DeliverKey:
		return c.onDeliver(frame)
	case protocol.CreditResponseKey:
		return c.onCreditResponse(frame)
	case protocol.MetadataResponseKey:
		return c.onMetadataResponse(frame)
	case protocol.MetadataUpdateKey:
		return c.onMetadataUpdate(frame)
	case protocol.TuneKey:
		return c.onTune(frame)
	case protocol.CloseKey:
		return c.onServerClose(frame)
	case protocol.ConsumerUpdateKey:
		return c.onConsumerUpdate(frame)
	}
	return nil
}

func (c *Client) onPublishConfirm(frame []byte) error {
	confirm, err := protocol.DecodePublishConfirm(frame)
	if err != nil {
		return err
	}
	c.emit(func(l Listener) { l.OnPublishConfirm(confirm.PublisherID, confirm.PublishingIDs) })
	return nil
}

func (c *Client) onPublishError(frame []byte) error {
	pe, err := protocol.DecodePublishError(frame)
	if err != nil {
		return err
	}
	c.emit(func(l Listener) { l.OnPublishError(pe.PublisherID, pe.Errors) })
	return nil
}

func (c *Client) onDeliver(frame []byte) error {
	data, err := protocol.DecodeDeliver(frame, !c.cfg.DisableDeliverCRC, c.cfg.Codecs)
	if err != nil {
		return err
	}
	c.emit(func(l Listener) { l.OnDeliver(data.SubscriptionID, data) })
	return nil
}

func (c *Client) onCreditResponse(frame []byte) error {
	res, err := protocol.DecodeCreditResponse(frame)
	if err != nil {
		return err
	}
	if res.Code != protocol.CodeOK {
		c.emit(func(l Listener) { l.OnCreditError(res.SubscriptionID, res.Code) })
	}
	return nil
}

func (c *Client) onMetadataResponse(frame []byte) error {
	rh, err := protocol.ParseResponseHeader(frame)
	if err != nil {
		return err
	}
	p, ok := c.takePending(rh.CorrelationID)
	if !ok {
		return &protocol.ProtocolError{Key: rh.Key, Version: rh.Version,
			Err: fmt.Errorf("unexpected response for correlation id %d", rh.CorrelationID)}
	}
	if p.key != protocol.MetadataKey || rh.Version != p.version {
		err := &protocol.ProtocolError{Key: rh.Key, Version: rh.Version,
			Err: fmt.Errorf("%w: key or version does not match the pending %s version %d", protocol.ErrMalformedFrame, protocol.KeyName(p.key), p.version)}
		p.reject(err)
		return err
	}
	p.resolve(frame)
	return nil
}

func (c *Client) onMetadataUpdate(frame []byte) error {
	update, err := protocol.DecodeMetadataUpdate(frame)
	if err != nil {
		return err
	}
	log.Debug("metadata update for stream %q on %s, code %#04x", update.Stream, c.addr, update.Code)
	c.emit(func(l Listener) { l.OnMetadataUpdate(update.Stream, update.Code) })
	return nil
}

func (c *Client) onTune(frame []byte) error {
	server, err := protocol.DecodeTune(frame)
	if err != nil {
		return err
	}
	var sendErr error
	tuned := false
	c.tuneOnce.Do(func() {
		tuned = true
		negotiated := protocol.Negotiate(protocol.Tune{FrameMax: c.cfg.FrameMax, Heartbeat: c.cfg.Heartbeat}, server)
		c.mu.Lock()
		c.tune = negotiated
		c.mu.Unlock()
		c.transport.SetFrameMax(negotiated.FrameMax)
		c.transport.SetHeartbeat(time.Duration(negotiated.Heartbeat) * time.Second)
		sendErr = c.send(protocol.EncodeCommand(negotiated))
		close(c.tuned)
	})
	if !tuned {
		log.Warn("ignoring tune received on %s after negotiation", c.addr)
	}
	return sendErr
}

func (c *Client) onServerClose(frame []byte) error {
	corrID, req, err := protocol.DecodeCloseRequest(frame)
	if err != nil {
		return err
	}
	log.Info("server closed the connection to %s: %s", c.addr, req.Reason)
	c.mu.Lock()
	c.closeReason = req.Reason
	if c.state < StateClosing {
		c.state = StateClosing
	}
	c.mu.Unlock()
	err = c.send(protocol.EncodeResponse(corrID, protocol.CodeOK, protocol.EmptyResponse{RequestKey: protocol.CloseKey}))
	c.transport.Close()
	return err
}

func (c *Client) onConsumerUpdate(frame []byte) error {
	corrID, req, err := protocol.DecodeConsumerUpdateRequest(frame)
	if err != nil {
		return err
	}
	var once sync.Once
	respond := func(offset types.Offset) error {
		err := ErrAlreadyResponded
		once.Do(func() {
			err = c.send(protocol.EncodeResponse(corrID, protocol.CodeOK, protocol.ConsumerUpdateResponse{Offset: offset}))
		})
		return err
	}
	c.emit(func(l Listener) { l.OnConsumerUpdate(req.SubscriptionID, req.Active, respond) })
	return nil
}
