package types

import (
	"crypto/tls"
	"errors"
	"time"

	"github.com/CefBoud/monstream/compress"
	"github.com/google/uuid"
)

// Defaults applied by WithDefaults
const (
	DefaultVhost          = "/"
	DefaultRequestTimeout = 10 * time.Second
	DefaultConnectTimeout = 10 * time.Second
)

// Configuration holds what a connection needs to reach and open a session on a node
type Configuration struct {
	Username string
	Password string
	Vhost    string

	// FrameMax and Heartbeat (in seconds) are the client side of the tune
	// negotiation. Zero means no preference.
	FrameMax  uint32
	Heartbeat uint32

	RequestTimeout time.Duration
	ConnectTimeout time.Duration
	ConnectionName string

	// DisableDeliverCRC skips the chunk checksum verification of deliveries
	DisableDeliverCRC bool

	// TLS enables TLS on the transport when set
	TLS *tls.Config

	// Codecs decodes compressed sub-entry batches. Share one across connections.
	Codecs *compress.Registry
}

// ErrMissingUsername is returned by Validate
var ErrMissingUsername = errors.New("configuration: username is required")

// WithDefaults returns a copy of c with unset fields filled in
func (c Configuration) WithDefaults() Configuration {
	if c.Vhost == "" {
		c.Vhost = DefaultVhost
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ConnectionName == "" {
		c.ConnectionName = "monstream-" + uuid.NewString()
	}
	if c.Codecs == nil {
		c.Codecs = compress.NewRegistry()
	}
	return c
}

// Validate checks the configuration can be used to authenticate
func (c Configuration) Validate() error {
	if c.Username == "" {
		return ErrMissingUsername
	}
	return nil
}
