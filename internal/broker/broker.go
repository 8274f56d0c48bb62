// Package broker is an in-process stream node speaking the wire protocol over
// TCP. It backs the tests of the client, mux and pool packages.
package broker

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/CefBoud/monstream/logging"
	"github.com/CefBoud/monstream/protocol"
	"github.com/CefBoud/monstream/serde"
)

// Options shape how the broker answers the handshake
type Options struct {
	Username string
	Password string
	// Mechanisms defaults to PLAIN
	Mechanisms []string
	// FrameMax and Heartbeat are proposed in the tune sent after authentication
	FrameMax  uint32
	Heartbeat uint32
	// NoTune never sends the tune, the client handshake then times out
	NoTune bool
	// AdvertisedHosts are handed to connections in turn. Defaults to the
	// listener host.
	AdvertisedHosts []string
	// Replicas are listed as replicas of every stream in metadata responses
	Replicas []protocol.Broker
	// DeliverVersion is the version of deliver frames, 1 by default
	DeliverVersion uint16
}

// HandlerFunc answers a frame. The returned frame, if any, is written back.
type HandlerFunc func(c *Conn, frame []byte) []byte

// Broker accepts connections and serves streams kept in memory
type Broker struct {
	opts     Options
	listener net.Listener
	host     string
	port     int

	mu        sync.Mutex
	overrides map[uint16]HandlerFunc
	conns     map[int]*Conn
	streams   map[string]*streamLog
	offsets   map[string]uint64
	sequences map[string]uint64
	next      int

	opened   chan *Conn
	accepted atomic.Int32
	closed   atomic.Int32
	wg       sync.WaitGroup
}

// New starts a broker on a random local port
func New(opts Options) (*Broker, error) {
	if len(opts.Mechanisms) == 0 {
		opts.Mechanisms = []string{protocol.PlainMechanism}
	}
	if opts.DeliverVersion == 0 {
		opts.DeliverVersion = 1
	}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("error starting broker: %w", err)
	}
	addr := listener.Addr().(*net.TCPAddr)
	b := &Broker{
		opts:      opts,
		listener:  listener,
		host:      addr.IP.String(),
		port:      addr.Port,
		overrides: map[uint16]HandlerFunc{},
		conns:     map[int]*Conn{},
		streams:   map[string]*streamLog{},
		offsets:   map[string]uint64{},
		sequences: map[string]uint64{},
		opened:    make(chan *Conn, 64),
	}
	if len(b.opts.AdvertisedHosts) == 0 {
		b.opts.AdvertisedHosts = []string{b.host}
	}
	log.Info("broker is listening on %s", listener.Addr())
	b.wg.Add(1)
	go b.acceptLoop()
	return b, nil
}

// Host is the host the broker listens on
func (b *Broker) Host() string { return b.host }

// Port is the port the broker listens on
func (b *Broker) Port() int { return b.port }

// Addr is host:port
func (b *Broker) Addr() string { return net.JoinHostPort(b.host, strconv.Itoa(b.port)) }

// Accepted is the number of connections accepted so far
func (b *Broker) Accepted() int { return int(b.accepted.Load()) }

// Closed is the number of connections that ended
func (b *Broker) Closed() int { return int(b.closed.Load()) }

// Handle replaces the handling of key. A handler returning nil sends nothing.
func (b *Broker) Handle(key uint16, h HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.overrides[key] = h
}

// NextConn waits for the next connection to complete the open step
func (b *Broker) NextConn(timeout time.Duration) (*Conn, error) {
	select {
	case c := <-b.opened:
		return c, nil
	case <-time.After(timeout):
		return nil, errors.New("no connection opened in time")
	}
}

// Conns returns the live connections
func (b *Broker) Conns() []*Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	res := make([]*Conn, 0, len(b.conns))
	for _, c := range b.conns {
		res = append(res, c)
	}
	return res
}

func (b *Broker) acceptLoop() {
	defer b.wg.Done()
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Error("error accepting connection: %v", err)
			continue
		}
		b.accepted.Add(1)
		b.mu.Lock()
		c := &Conn{
			broker:         b,
			conn:           conn,
			ID:             b.next,
			AdvertisedHost: b.opts.AdvertisedHosts[b.next%len(b.opts.AdvertisedHosts)],
			responses:      make(chan []byte, 16),
			received:       map[uint16]int{},
			publishers:     map[uint8]string{},
			subs:           map[uint8]*subscription{},
			tuned:          make(chan struct{}),
		}
		b.conns[c.ID] = c
		b.next++
		b.mu.Unlock()
		b.wg.Add(1)
		go b.HandleConnection(c)
	}
}

// HandleConnection reads frames until the connection ends and dispatches them
func (b *Broker) HandleConnection(c *Conn) {
	defer b.wg.Done()
	defer func() {
		c.conn.Close()
		b.mu.Lock()
		delete(b.conns, c.ID)
		b.mu.Unlock()
		b.closed.Add(1)
	}()
	connectionAddr := c.conn.RemoteAddr().String()
	log.Debug("connection established with %s", connectionAddr)

	for {
		lengthBuffer := make([]byte, 4)
		if _, err := io.ReadFull(c.conn, lengthBuffer); err != nil {
			break
		}
		length := serde.Encoding.Uint32(lengthBuffer)
		buffer := make([]byte, length+4)
		copy(buffer, lengthBuffer)
		if _, err := io.ReadFull(c.conn, buffer[4:]); err != nil {
			break
		}
		h, err := serde.ParseHeader(buffer)
		if err != nil {
			log.Error("bad frame from %s: %v", connectionAddr, err)
			break
		}
		c.record(h.Key)
		if h.IsResponse() {
			c.responses <- buffer
			continue
		}
		log.Trace("received %s version %d from %s", protocol.KeyName(h.Key), h.Version, connectionAddr)
		if response := b.dispatch(c, h.Key, buffer); response != nil {
			if err := c.Push(response); err != nil {
				break
			}
		}
		if c.closing.Load() {
			break
		}
	}
	log.Debug("connection with %s closed", connectionAddr)
}

func (b *Broker) dispatch(c *Conn, key uint16, frame []byte) []byte {
	b.mu.Lock()
	h, ok := b.overrides[key]
	b.mu.Unlock()
	if ok {
		return h(c, frame)
	}
	api, ok := APIDispatcher[key]
	if !ok {
		log.Warn("unhandled key %#04x", key)
		return nil
	}
	return api.Handler(b, c, frame)
}

// Close stops accepting, closes every connection and waits for them to end
func (b *Broker) Close() error {
	err := b.listener.Close()
	for _, c := range b.Conns() {
		c.Close()
	}
	b.wg.Wait()
	return err
}

// Conn is a client connection as seen by the broker
type Conn struct {
	broker  *Broker
	conn    net.Conn
	writeMu sync.Mutex

	ID               int
	AdvertisedHost   string
	ClientProperties map[string]string

	mu         sync.Mutex
	received   map[uint16]int
	clientTune protocol.Tune
	tuned      chan struct{}
	tuneOnce   sync.Once
	publishers map[uint8]string
	subs       map[uint8]*subscription

	responses chan []byte
	corrID    atomic.Uint32
	closing   atomic.Bool
}

// Push writes a frame to the client
func (c *Conn) Push(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(frame)
	return err
}

// Request sends a server initiated request and returns its correlation id
func (c *Conn) Request(m protocol.Message) (uint32, error) {
	corrID := c.corrID.Add(1)
	return corrID, c.Push(protocol.EncodeRequest(corrID, m))
}

// Response waits for the next response frame sent by the client
func (c *Conn) Response(timeout time.Duration) ([]byte, error) {
	select {
	case frame := <-c.responses:
		return frame, nil
	case <-time.After(timeout):
		return nil, errors.New("no response from the client in time")
	}
}

// ClientTune waits for the tune the client answered with
func (c *Conn) ClientTune(timeout time.Duration) (protocol.Tune, error) {
	select {
	case <-c.tuned:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.clientTune, nil
	case <-time.After(timeout):
		return protocol.Tune{}, errors.New("the client sent no tune")
	}
}

// Received is the number of frames of key read on the connection
func (c *Conn) Received(key uint16) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.received[key]
}

func (c *Conn) record(key uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received[key]++
}

// Close drops the connection without any close handshake
func (c *Conn) Close() {
	c.closing.Store(true)
	c.conn.Close()
}
