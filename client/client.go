// Package client implements a single connection to a stream node: the
// handshake, request correlation and dispatch of server sent frames.
package client

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net"
	"runtime"
	"strconv"
	"sync"
	"time"

	log "github.com/CefBoud/monstream/logging"
	"github.com/CefBoud/monstream/protocol"
	"github.com/CefBoud/monstream/transport"
	"github.com/CefBoud/monstream/types"
	"github.com/hashicorp/go-multierror"
)

// Version is sent in the peer properties
const Version = "0.1.0"

var (
	ErrRequestTimeout   = errors.New("request timeout")
	ErrConnectionClosed = errors.New("connection closed")
	ErrNotOpen          = errors.New("connection is not open")
	ErrTuneTimeout      = errors.New("timed out waiting for tune")
	ErrAlreadyResponded = errors.New("consumer update already answered")
	ErrTooManyPending   = errors.New("no correlation id available")
)

// Option customizes a Client before it connects
type Option func(*Client)

// WithTransport replaces the TCP transport
func WithTransport(newTransport func() transport.Transport) Option {
	return func(c *Client) {
		c.newTransport = newTransport
	}
}

// WithListener registers l before the handshake starts
func WithListener(l Listener) Option {
	return func(c *Client) {
		c.AddListener(l)
	}
}

// WithMaxCorrelationID sets the id after which correlation ids wrap to 1
func WithMaxCorrelationID(n uint32) Option {
	return func(c *Client) {
		c.maxCorrelationID = n
	}
}

// Client is a connection to a stream node
type Client struct {
	cfg          types.Configuration
	addr         string
	transport    transport.Transport
	newTransport func() transport.Transport

	listenersMu  sync.RWMutex
	listeners    map[int]Listener
	nextListener int

	mu               sync.Mutex
	state            State
	pending          map[uint32]*pendingRequest
	correlationID    uint32
	maxCorrelationID uint32
	serverProperties map[string]string
	tune             protocol.Tune
	closeReason      string
	lastErr          error

	tuned     chan struct{}
	tuneOnce  sync.Once
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to host:port and runs the handshake. It returns once the
// session is open.
func Dial(ctx context.Context, host string, port int, cfg types.Configuration, opts ...Option) (*Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		cfg:              cfg,
		addr:             net.JoinHostPort(host, strconv.Itoa(port)),
		listeners:        map[int]Listener{},
		pending:          map[uint32]*pendingRequest{},
		maxCorrelationID: protocol.MaxCorrelationID,
		serverProperties: map[string]string{},
		tuned:            make(chan struct{}),
		done:             make(chan struct{}),
	}
	c.newTransport = func() transport.Transport { return transport.NewTCP(cfg.TLS) }
	for _, opt := range opts {
		opt(c)
	}
	c.transport = c.newTransport()

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := c.transport.Connect(ctx, c.addr, connHandler{c}); err != nil {
		return nil, err
	}
	go c.sweep()

	if err := c.handshake(ctx); err != nil {
		if !errors.Is(err, ErrConnectionClosed) && !errors.Is(err, ErrTuneTimeout) {
			c.emitError(err)
		}
		c.transport.Close()
		<-c.done
		return nil, c.dialError(err)
	}
	log.Debug("connection to %s open, advertised host %q", c.addr, c.AdvertisedHost())
	return c, nil
}

func (c *Client) handshake(ctx context.Context) error {
	c.setState(StateAuthenticating)
	if err := c.peerProperties(ctx); err != nil {
		return err
	}
	if err := c.authenticate(ctx); err != nil {
		return err
	}

	c.setState(StateAwaitingTune)
	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()
	select {
	case <-c.tuned:
	case <-timer.C:
		c.emitError(ErrTuneTimeout)
		return ErrTuneTimeout
	case <-c.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	frame, err := c.request(ctx, protocol.OpenRequest{Vhost: c.cfg.Vhost})
	if err != nil {
		return err
	}
	open, err := protocol.DecodeOpenResponse(frame)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	maps.Copy(c.serverProperties, open.Properties)
	if c.state != StateAwaitingTune {
		return ErrConnectionClosed
	}
	c.state = StateOpen
	return nil
}

func (c *Client) peerProperties(ctx context.Context) error {
	frame, err := c.request(ctx, protocol.PeerPropertiesRequest{Properties: map[string]string{
		"product":         "monstream",
		"version":         Version,
		"platform":        "Go " + runtime.Version(),
		"copyright":       "Copyright (c) the monstream authors",
		"information":     "Licensed under the MIT license",
		"connection_name": c.cfg.ConnectionName,
	}})
	if err != nil {
		return err
	}
	res, err := protocol.DecodePeerPropertiesResponse(frame)
	if err != nil {
		return err
	}
	c.mu.Lock()
	maps.Copy(c.serverProperties, res.Properties)
	c.mu.Unlock()
	return nil
}

func (c *Client) authenticate(ctx context.Context) error {
	frame, err := c.request(ctx, protocol.SaslHandshakeRequest{})
	if err != nil {
		return err
	}
	mechanisms, err := protocol.DecodeSaslHandshakeResponse(frame)
	if err != nil {
		return err
	}
	if !mechanisms.Supports(protocol.PlainMechanism) {
		return &protocol.StreamError{Key: protocol.SaslHandshakeKey, Code: protocol.CodeSaslMechanismNotSupported}
	}
	_, err = c.request(ctx, protocol.NewPlainAuthenticate(c.cfg.Username, c.cfg.Password))
	return err
}

// dialError prefers the last error reported over a generic connection closed
func (c *Client) dialError(err error) error {
	if !errors.Is(err, ErrConnectionClosed) {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastErr != nil {
		return c.lastErr
	}
	return fmt.Errorf("%w: %s", ErrConnectionClosed, c.closeReason)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state < StateClosing {
		c.state = s
	}
}

// State returns the current lifecycle state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Addr is the host:port the client dialed
func (c *Client) Addr() string { return c.addr }

// AdvertisedHost is the host the node reports for itself
func (c *Client) AdvertisedHost() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverProperties["advertised_host"]
}

// ServerProperties returns the properties the server sent during the handshake
func (c *Client) ServerProperties() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.serverProperties)
}

// Tune returns the negotiated frame max and heartbeat
func (c *Client) Tune() protocol.Tune {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tune
}

// Done is closed once the connection is closed and listeners were notified
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close asks the server to close the session, then closes the transport.
// Calling it more than once is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state >= StateClosing {
		c.mu.Unlock()
		return nil
	}
	wasOpen := c.state == StateOpen
	c.state = StateClosing
	c.mu.Unlock()

	var result *multierror.Error
	if wasOpen {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
		_, err := c.request(ctx, protocol.CloseRequest{Code: protocol.CodeOK, Reason: "OK"})
		cancel()
		if err != nil && !errors.Is(err, ErrConnectionClosed) {
			result = multierror.Append(result, fmt.Errorf("close request: %w", err))
		}
	}
	if err := c.transport.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close transport: %w", err))
	}
	return result.ErrorOrNil()
}

// onClose runs once the transport stopped
func (c *Client) onClose(reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		if c.closeReason == "" {
			c.closeReason = reason
		}
		reason = c.closeReason
		pending := c.pending
		c.pending = map[uint32]*pendingRequest{}
		c.mu.Unlock()

		for _, p := range pending {
			p.reject(ErrConnectionClosed)
		}
		metricsPending(0)
		close(c.done)
		log.Debug("connection to %s closed: %s", c.addr, reason)
		c.emit(func(l Listener) { l.OnClose(reason) })
	})
}
