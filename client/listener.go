package client

import (
	"slices"

	log "github.com/CefBoud/monstream/logging"
	"github.com/CefBoud/monstream/protocol"
	"github.com/CefBoud/monstream/types"
)

// Listener observes the events of a Client. Methods are called from the
// goroutine reading the connection, in the order frames arrive, and must not
// block on a request of the same Client.
type Listener interface {
	OnPublishConfirm(publisherID uint8, publishingIDs []uint64)
	OnPublishError(publisherID uint8, errs []protocol.PublishingError)
	// OnDeliver hands over a chunk whose records are decoded on demand
	OnDeliver(subscriptionID uint8, data *protocol.DeliverData)
	OnCreditError(subscriptionID uint8, code uint16)
	OnMetadataUpdate(stream string, code uint16)
	// OnConsumerUpdate must lead to exactly one call of respond, the server
	// waits for it indefinitely
	OnConsumerUpdate(subscriptionID uint8, active bool, respond func(types.Offset) error)
	OnClose(reason string)
	// OnError reports failures not tied to a pending request
	OnError(err error)
}

// NopListener ignores every event. Embed it to implement only some methods.
type NopListener struct{}

func (NopListener) OnPublishConfirm(uint8, []uint64)                       {}
func (NopListener) OnPublishError(uint8, []protocol.PublishingError)       {}
func (NopListener) OnDeliver(uint8, *protocol.DeliverData)                 {}
func (NopListener) OnCreditError(uint8, uint16)                            {}
func (NopListener) OnMetadataUpdate(string, uint16)                        {}
func (NopListener) OnConsumerUpdate(uint8, bool, func(types.Offset) error) {}
func (NopListener) OnClose(string)                                         {}
func (NopListener) OnError(error)                                          {}

// AddListener registers l and returns a function removing it
func (c *Client) AddListener(l Listener) (remove func()) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = l
	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *Client) emit(fn func(l Listener)) {
	c.listenersMu.RLock()
	ids := make([]int, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	listeners := make([]Listener, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		listeners = append(listeners, c.listeners[id])
	}
	c.listenersMu.RUnlock()
	for _, l := range listeners {
		fn(l)
	}
}

func (c *Client) emitError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	metricsError()
	log.Debug("client %s: %v", c.addr, err)
	c.emit(func(l Listener) { l.OnError(err) })
}
