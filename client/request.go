package client

import (
	"context"
	"fmt"
	"time"

	"github.com/CefBoud/monstream/protocol"
)

type result struct {
	frame []byte
	err   error
}

// pendingRequest is a request waiting for the response of the same correlation id
type pendingRequest struct {
	key     uint16
	version uint16
	issued  time.Time
	result  chan result
}

func (p *pendingRequest) resolve(frame []byte) {
	p.result <- result{frame: frame}
}

func (p *pendingRequest) reject(err error) {
	p.result <- result{err: err}
}

// nextCorrelationID returns the id after the last one issued, wrapping to 1
// after the max and skipping ids still pending. Must be called with mu held.
func (c *Client) nextCorrelationID() (uint32, error) {
	for i := 0; i <= len(c.pending); i++ {
		c.correlationID++
		if c.correlationID == 0 || c.correlationID > c.maxCorrelationID {
			c.correlationID = 1
		}
		if _, taken := c.pending[c.correlationID]; !taken {
			return c.correlationID, nil
		}
	}
	return 0, ErrTooManyPending
}

// request sends m and waits for its response frame. A non OK status code is
// returned as a *protocol.StreamError.
func (c *Client) request(ctx context.Context, m protocol.Message) ([]byte, error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	id, err := c.nextCorrelationID()
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	p := &pendingRequest{key: m.Key(), version: m.Version(), issued: time.Now(), result: make(chan result, 1)}
	c.pending[id] = p
	metricsPending(len(c.pending))
	c.mu.Unlock()

	frame, err := protocol.MarshalRequest(id, m)
	if err == nil {
		err = c.send(frame)
	}
	if err != nil {
		c.removePending(id)
		return nil, err
	}
	select {
	case r := <-p.result:
		metricsRequest(p.key, p.issued)
		return r.frame, r.err
	case <-ctx.Done():
		c.removePending(id)
		return nil, ctx.Err()
	}
}

// call is a request only allowed once the session is open
func (c *Client) call(ctx context.Context, m protocol.Message) ([]byte, error) {
	if s := c.State(); s != StateOpen {
		if s == StateClosed {
			return nil, ErrConnectionClosed
		}
		return nil, fmt.Errorf("%w: %v", ErrNotOpen, s)
	}
	return c.request(ctx, m)
}

func (c *Client) removePending(id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
	metricsPending(len(c.pending))
}

// takePending removes and returns the request waiting on id
func (c *Client) takePending(id uint32) (*pendingRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
		metricsPending(len(c.pending))
	}
	return p, ok
}

// sendCommand frames and sends a one way command
func (c *Client) sendCommand(m protocol.Message) error {
	frame, err := protocol.MarshalCommand(m)
	if err != nil {
		return err
	}
	return c.send(frame)
}

func (c *Client) send(frame []byte) error {
	if err := c.transport.Send(frame); err != nil {
		return err
	}
	metricsFrameOut()
	return nil
}

// sweep rejects requests older than the request timeout, checking ten times
// per timeout period
func (c *Client) sweep() {
	interval := max(c.cfg.RequestTimeout/10, time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			c.expire(now)
		case <-c.done:
			return
		}
	}
}

func (c *Client) expire(now time.Time) {
	c.mu.Lock()
	var expired []*pendingRequest
	for id, p := range c.pending {
		if now.Sub(p.issued) > c.cfg.RequestTimeout {
			delete(c.pending, id)
			expired = append(expired, p)
		}
	}
	if len(expired) > 0 {
		metricsPending(len(c.pending))
	}
	c.mu.Unlock()
	for _, p := range expired {
		metricsTimeout()
		p.reject(fmt.Errorf("%s: %w", protocol.KeyName(p.key), ErrRequestTimeout))
	}
}
