// Package pool hands out shared connections to the nodes of a cluster
package pool

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/CefBoud/monstream/client"
	log "github.com/CefBoud/monstream/logging"
	"github.com/CefBoud/monstream/mux"
	"github.com/CefBoud/monstream/types"
	"github.com/hashicorp/go-metrics"
	"github.com/hashicorp/go-multierror"
)

var connectionsKey = []string{"monstream", "pool", "connections"}

// ClientPool shares connections between callers. Every AcquireClient must be
// matched by a ReleaseClient.
type ClientPool interface {
	// AcquireClient returns a connection to one of nodes, by advertised host.
	// A nil nodes accepts any node.
	AcquireClient(ctx context.Context, nodes []string) (*mux.Wrapper, error)
	ReleaseClient(w *mux.Wrapper) error
	Close() error
}

// Option customizes a pool
type Option func(*base)

// WithRand sets the random source used to pick nodes and connections
func WithRand(r *rand.Rand) Option {
	return func(b *base) {
		b.rand = r
	}
}

// WithErrorHandler receives the errors of pooled connections, prefixed by host
func WithErrorHandler(fn func(err error)) Option {
	return func(b *base) {
		b.onError = fn
	}
}

// WithClientOptions are passed to every client.Dial
func WithClientOptions(opts ...client.Option) Option {
	return func(b *base) {
		b.clientOpts = append(b.clientOpts, opts...)
	}
}

// base holds the pooled connections, topologies provide create
type base struct {
	cfg        types.Configuration
	clientOpts []client.Option
	onError    func(error)
	create     func(ctx context.Context, nodes []string) (*client.Client, error)

	randMu sync.Mutex
	rand   *rand.Rand

	mu      sync.Mutex
	clients []*mux.Wrapper
}

func newBase(cfg types.Configuration, opts []Option) *base {
	b := &base{
		cfg: cfg,
		onError: func(err error) {
			log.Error("%v", err)
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.rand == nil {
		b.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return b
}

func (b *base) intn(n int) int {
	b.randMu.Lock()
	defer b.randMu.Unlock()
	return b.rand.Intn(n)
}

func (b *base) dial(ctx context.Context, endpoint types.Endpoint) (*client.Client, error) {
	return client.Dial(ctx, endpoint.Host, endpoint.Port, b.cfg, b.clientOpts...)
}

func matches(nodes []string, host string) bool {
	return nodes == nil || slices.Contains(nodes, host)
}

// AcquireClient reuses a pooled connection matching nodes, or creates one
func (b *base) AcquireClient(ctx context.Context, nodes []string) (*mux.Wrapper, error) {
	if nodes != nil && len(nodes) == 0 {
		return nil, ErrEmptyNodeFilter
	}
	b.mu.Lock()
	var candidates []*mux.Wrapper
	for _, w := range b.clients {
		if !w.Closed() && matches(nodes, w.AdvertisedHost()) {
			candidates = append(candidates, w)
		}
	}
	if len(candidates) > 0 {
		w := candidates[b.intn(len(candidates))]
		w.Ref()
		b.mu.Unlock()
		return w, nil
	}
	b.mu.Unlock()

	c, err := b.create(ctx, nodes)
	if err != nil {
		return nil, err
	}
	return b.addClient(c), nil
}

// addClient pools c, unless a connection to the same advertised host is
// already pooled. c is then closed and the pooled one is returned.
func (b *base) addClient(c *client.Client) *mux.Wrapper {
	host := c.AdvertisedHost()
	b.mu.Lock()
	for _, w := range b.clients {
		if !w.Closed() && w.AdvertisedHost() == host {
			w.Ref()
			b.mu.Unlock()
			log.Debug("already connected to %s, closing the new connection", host)
			c.Close()
			return w
		}
	}
	w := mux.New(c, mux.WithErrorHandler(func(err error) {
		b.onError(fmt.Errorf("%s: %w", host, err))
	}))
	b.clients = append(b.clients, w)
	metrics.SetGauge(connectionsKey, float32(len(b.clients)))
	b.mu.Unlock()

	go func() {
		<-c.Done()
		b.remove(w)
	}()
	return w
}

func (b *base) remove(w *mux.Wrapper) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := slices.Index(b.clients, w)
	if i < 0 {
		return false
	}
	b.clients = slices.Delete(b.clients, i, i+1)
	metrics.SetGauge(connectionsKey, float32(len(b.clients)))
	return true
}

// ReleaseClient drops a reference, the last one closes the connection
func (b *base) ReleaseClient(w *mux.Wrapper) error {
	b.mu.Lock()
	i := slices.Index(b.clients, w)
	if i < 0 {
		b.mu.Unlock()
		// a dead connection leaves the pool while it is still referenced
		if w.Closed() && w.Unref() >= 0 {
			return nil
		}
		return ErrUnknownClient
	}
	if w.Unref() > 0 {
		b.mu.Unlock()
		return nil
	}
	b.clients = slices.Delete(b.clients, i, i+1)
	metrics.SetGauge(connectionsKey, float32(len(b.clients)))
	b.mu.Unlock()
	return w.Close()
}

// Close closes every pooled connection
func (b *base) Close() error {
	b.mu.Lock()
	clients := b.clients
	b.clients = nil
	metrics.SetGauge(connectionsKey, 0)
	b.mu.Unlock()

	var result *multierror.Error
	for _, w := range clients {
		if err := w.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", w.AdvertisedHost(), err))
		}
	}
	return result.ErrorOrNil()
}

// Size is the number of pooled connections
func (b *base) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}
