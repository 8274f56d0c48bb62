package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/CefBoud/monstream/logging"
	"github.com/CefBoud/monstream/protocol"
	"github.com/CefBoud/monstream/serde"
)

const closedByClient = "closed by client"

// TCP is a Transport over a TCP connection, optionally TLS
type TCP struct {
	tlsConfig *tls.Config

	conn    net.Conn
	handler Handler
	writeMu sync.Mutex

	frameMax atomic.Uint32
	lastRead atomic.Int64

	mu          sync.Mutex
	closing     bool
	closeReason string
	done        chan struct{}
}

// NewTCP returns a TCP transport. tlsConfig may be nil.
func NewTCP(tlsConfig *tls.Config) *TCP {
	return &TCP{tlsConfig: tlsConfig, done: make(chan struct{})}
}

// Connect dials addr and starts reading frames
func (t *TCP) Connect(ctx context.Context, addr string, h Handler) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if t.tlsConfig != nil {
		cfg := t.tlsConfig.Clone()
		if cfg.ServerName == "" {
			if host, _, err := net.SplitHostPort(addr); err == nil {
				cfg.ServerName = host
			}
		}
		tlsConn := tls.Client(conn, cfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return fmt.Errorf("tls handshake with %s: %w", addr, err)
		}
		conn = tlsConn
	}
	t.conn = conn
	t.handler = h
	t.lastRead.Store(time.Now().UnixNano())
	log.Debug("connection established with %s", addr)
	go t.readLoop()
	return nil
}

func (t *TCP) readLoop() {
	reason := t.read()
	t.mu.Lock()
	t.closing = true
	if t.closeReason != "" {
		reason = t.closeReason
	}
	t.mu.Unlock()
	t.conn.Close()
	close(t.done)
	log.Debug("connection with %s closed: %s", t.conn.RemoteAddr(), reason)
	t.handler.OnClose(reason)
}

func (t *TCP) read() string {
	for {
		// First, we read the length, then allocate a byte slice based on it.
		// ReadFull (not Read) is used to ensure the entire frame is read.
		lengthBuffer := make([]byte, 4)
		if _, err := io.ReadFull(t.conn, lengthBuffer); err != nil {
			return readError(err)
		}
		// the size is computed in 64 bits so a length close to MaxUint32 cannot wrap
		size := uint64(serde.Encoding.Uint32(lengthBuffer)) + 4
		if max := uint64(t.frameMax.Load()); size > math.MaxUint32 || (max > 0 && size > max) {
			t.handler.OnError(fmt.Errorf("%w: received %d bytes, max %d", ErrFrameTooLarge, size, max))
			return "frame too large"
		}
		buffer := make([]byte, size)
		copy(buffer, lengthBuffer)
		if _, err := io.ReadFull(t.conn, buffer[4:]); err != nil {
			return readError(err)
		}
		t.lastRead.Store(time.Now().UnixNano())
		t.handler.OnMessage(buffer)
	}
}

func readError(err error) string {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return "connection closed by peer"
	}
	return err.Error()
}

// Send writes a whole frame
func (t *TCP) Send(frame []byte) error {
	if max := t.frameMax.Load(); max > 0 && uint64(len(frame)) > uint64(max) {
		return fmt.Errorf("%w: %d bytes, max %d", ErrFrameTooLarge, len(frame), max)
	}
	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.conn.Write(frame); err != nil {
		t.closeWith(fmt.Sprintf("write failed: %v", err))
		return err
	}
	return nil
}

// SetFrameMax bounds the size of frames in both directions. 0 removes the bound.
func (t *TCP) SetFrameMax(n uint32) {
	t.frameMax.Store(n)
}

// SetHeartbeat sends a heartbeat every interval and closes the connection when
// nothing was read for two intervals. 0 disables heartbeats.
func (t *TCP) SetHeartbeat(interval time.Duration) {
	if interval <= 0 {
		return
	}
	heartbeat := protocol.EncodeCommand(protocol.Heartbeat{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				idle := time.Since(time.Unix(0, t.lastRead.Load()))
				if idle > 2*interval {
					log.Warn("no frame received for %v, closing connection", idle)
					t.closeWith("heartbeat timeout")
					return
				}
				if err := t.Send(heartbeat); err != nil {
					return
				}
			case <-t.done:
				return
			}
		}
	}()
}

// Close closes the connection. The handler gets OnClose once reading stopped.
func (t *TCP) Close() error {
	t.closeWith(closedByClient)
	return nil
}

func (t *TCP) closeWith(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closing || t.conn == nil {
		return
	}
	t.closing = true
	t.closeReason = reason
	t.conn.Close()
}
