// Package mux shares one client connection between many publishers and
// consumers, each owning a one byte id of the connection.
package mux

import (
	"errors"
	"fmt"
	"sync"

	"github.com/CefBoud/monstream/client"
	log "github.com/CefBoud/monstream/logging"
	"github.com/CefBoud/monstream/protocol"
	"github.com/CefBoud/monstream/types"
)

var (
	ErrNoFreeSlot       = errors.New("no free slot on the connection")
	ErrSlotNotAllocated = errors.New("slot is not allocated")
	ErrClosed           = errors.New("connection wrapper closed")
)

// PublisherHandlers are the callbacks of a publisher. Nil fields are skipped.
type PublisherHandlers struct {
	OnPublishConfirm    func(publishingIDs []uint64)
	OnPublishError      func(errs []protocol.PublishingError)
	OnStreamUnavailable func(stream string, code uint16)
	OnClose             func(reason string)
}

// ConsumerHandlers are the callbacks of a consumer. Nil fields are skipped.
type ConsumerHandlers struct {
	OnDeliver           func(data *protocol.DeliverData)
	OnConsumerUpdate    func(active bool, respond func(types.Offset) error)
	OnStreamUnavailable func(stream string, code uint16)
	OnClose             func(reason string)
}

type publisher struct {
	stream   string
	handlers PublisherHandlers
}

type consumer struct {
	stream   string
	handlers ConsumerHandlers
}

// Option customizes a Wrapper
type Option func(*Wrapper)

// WithErrorHandler receives connection level errors, credit errors included.
// Errors are logged by default.
func WithErrorHandler(fn func(err error)) Option {
	return func(w *Wrapper) {
		w.onError = fn
	}
}

// Wrapper is a reference counted client shared by operators
type Wrapper struct {
	client         *client.Client
	onError        func(error)
	removeListener func()

	mu             sync.Mutex
	refs           int
	closed         bool
	publisherSlots slots
	consumerSlots  slots
	publishers     [MaxSlots]*publisher
	consumers      [MaxSlots]*consumer
	publisherIndex multiMap[string, uint8]
	consumerIndex  multiMap[string, uint8]
}

// New wraps c with a reference count of 1
func New(c *client.Client, opts ...Option) *Wrapper {
	w := &Wrapper{
		client:         c,
		refs:           1,
		publisherIndex: multiMap[string, uint8]{},
		consumerIndex:  multiMap[string, uint8]{},
		onError: func(err error) {
			log.Error("connection to %s: %v", c.Addr(), err)
		},
	}
	for _, opt := range opts {
		opt(w)
	}
	w.removeListener = c.AddListener(listener{w})
	if c.State() == client.StateClosed {
		w.onClose("connection closed")
	}
	return w
}

// Client returns the wrapped client
func (w *Wrapper) Client() *client.Client { return w.client }

// AdvertisedHost is the advertised host of the wrapped client
func (w *Wrapper) AdvertisedHost() string { return w.client.AdvertisedHost() }

// Ref increments the reference count and returns it
func (w *Wrapper) Ref() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.refs++
	return w.refs
}

// Unref decrements the reference count and returns it
func (w *Wrapper) Unref() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.refs--
	return w.refs
}

// Refs returns the reference count
func (w *Wrapper) Refs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.refs
}

// Closed reports if the wrapped client is closed
func (w *Wrapper) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Close closes the wrapped client
func (w *Wrapper) Close() error {
	return w.client.Close()
}

// AcquirePublisher allocates the lowest free publisher id for stream
func (w *Wrapper) AcquirePublisher(stream string, handlers PublisherHandlers) (uint8, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrClosed
	}
	id, ok := w.publisherSlots.acquire()
	if !ok {
		return 0, fmt.Errorf("publisher: %w", ErrNoFreeSlot)
	}
	w.publishers[id] = &publisher{stream: stream, handlers: handlers}
	w.publisherIndex.add(stream, id)
	return id, nil
}

// ReleasePublisher frees a publisher id
func (w *Wrapper) ReleasePublisher(id uint8) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := w.publishers[id]
	if !w.publisherSlots.release(id) {
		return fmt.Errorf("publisher %d: %w", id, ErrSlotNotAllocated)
	}
	w.publishers[id] = nil
	w.publisherIndex.remove(p.stream, id)
	return nil
}

// AcquireConsumer allocates the lowest free subscription id for stream
func (w *Wrapper) AcquireConsumer(stream string, handlers ConsumerHandlers) (uint8, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrClosed
	}
	id, ok := w.consumerSlots.acquire()
	if !ok {
		return 0, fmt.Errorf("consumer: %w", ErrNoFreeSlot)
	}
	w.consumers[id] = &consumer{stream: stream, handlers: handlers}
	w.consumerIndex.add(stream, id)
	return id, nil
}

// ReleaseConsumer frees a subscription id
func (w *Wrapper) ReleaseConsumer(id uint8) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	c := w.consumers[id]
	if !w.consumerSlots.release(id) {
		return fmt.Errorf("consumer %d: %w", id, ErrSlotNotAllocated)
	}
	w.consumers[id] = nil
	w.consumerIndex.remove(c.stream, id)
	return nil
}

func (w *Wrapper) publisher(id uint8) *publisher {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.publishers[id]
}

func (w *Wrapper) consumer(id uint8) *consumer {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.consumers[id]
}

// evict notifies then releases every operator of stream
func (w *Wrapper) evict(stream string, code uint16) {
	w.mu.Lock()
	pubIDs := w.publisherIndex.values(stream)
	pubs := make([]*publisher, len(pubIDs))
	for i, id := range pubIDs {
		pubs[i] = w.publishers[id]
	}
	conIDs := w.consumerIndex.values(stream)
	cons := make([]*consumer, len(conIDs))
	for i, id := range conIDs {
		cons[i] = w.consumers[id]
	}
	w.mu.Unlock()

	for i, p := range pubs {
		if p.handlers.OnStreamUnavailable != nil {
			p.handlers.OnStreamUnavailable(stream, code)
		}
		w.mu.Lock()
		if w.publishers[pubIDs[i]] == p {
			w.publisherSlots.release(pubIDs[i])
			w.publishers[pubIDs[i]] = nil
			w.publisherIndex.remove(stream, pubIDs[i])
		}
		w.mu.Unlock()
	}
	for i, c := range cons {
		if c.handlers.OnStreamUnavailable != nil {
			c.handlers.OnStreamUnavailable(stream, code)
		}
		w.mu.Lock()
		if w.consumers[conIDs[i]] == c {
			w.consumerSlots.release(conIDs[i])
			w.consumers[conIDs[i]] = nil
			w.consumerIndex.remove(stream, conIDs[i])
		}
		w.mu.Unlock()
	}
}

func (w *Wrapper) onClose(reason string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	var pubs []*publisher
	for _, p := range w.publishers {
		if p != nil {
			pubs = append(pubs, p)
		}
	}
	var cons []*consumer
	for _, c := range w.consumers {
		if c != nil {
			cons = append(cons, c)
		}
	}
	w.publishers = [MaxSlots]*publisher{}
	w.consumers = [MaxSlots]*consumer{}
	w.publisherSlots.reset()
	w.consumerSlots.reset()
	w.publisherIndex = multiMap[string, uint8]{}
	w.consumerIndex = multiMap[string, uint8]{}
	w.mu.Unlock()

	for _, p := range pubs {
		if p.handlers.OnClose != nil {
			p.handlers.OnClose(reason)
		}
	}
	for _, c := range cons {
		if c.handlers.OnClose != nil {
			c.handlers.OnClose(reason)
		}
	}
	w.removeListener()
}

// listener routes client events to operators
type listener struct {
	w *Wrapper
}

func (l listener) OnPublishConfirm(id uint8, publishingIDs []uint64) {
	if p := l.w.publisher(id); p != nil && p.handlers.OnPublishConfirm != nil {
		p.handlers.OnPublishConfirm(publishingIDs)
	}
}

func (l listener) OnPublishError(id uint8, errs []protocol.PublishingError) {
	if p := l.w.publisher(id); p != nil && p.handlers.OnPublishError != nil {
		p.handlers.OnPublishError(errs)
	}
}

func (l listener) OnDeliver(id uint8, data *protocol.DeliverData) {
	if c := l.w.consumer(id); c != nil && c.handlers.OnDeliver != nil {
		c.handlers.OnDeliver(data)
	}
}

func (l listener) OnConsumerUpdate(id uint8, active bool, respond func(types.Offset) error) {
	if c := l.w.consumer(id); c != nil && c.handlers.OnConsumerUpdate != nil {
		c.handlers.OnConsumerUpdate(active, respond)
	}
}

func (l listener) OnCreditError(id uint8, code uint16) {
	l.w.onError(fmt.Errorf("subscription %d: %w", id, &protocol.StreamError{Key: protocol.CreditKey, Code: code}))
}

func (l listener) OnMetadataUpdate(stream string, code uint16) {
	if code != protocol.CodeStreamDoesNotExist {
		l.w.onError(fmt.Errorf("stream %q: %w", stream, &protocol.StreamError{Key: protocol.MetadataUpdateKey, Code: code}))
	}
	l.w.evict(stream, code)
}

func (l listener) OnClose(reason string) { l.w.onClose(reason) }
func (l listener) OnError(err error)     { l.w.onError(err) }
