package pool

import (
	"context"

	"github.com/CefBoud/monstream/client"
	log "github.com/CefBoud/monstream/logging"
	"github.com/CefBoud/monstream/types"
)

// LoadBalancer connects through a single endpoint that forwards each new
// connection to any node, until one lands on a requested node
type LoadBalancer struct {
	*base

	endpoint    types.Endpoint
	maxAttempts int
}

var _ ClientPool = (*LoadBalancer)(nil)

// NewLoadBalancer returns a pool behind endpoint. maxAttempts bounds the
// connections opened by one acquire, 0 means no bound.
func NewLoadBalancer(cfg types.Configuration, endpoint types.Endpoint, maxAttempts int, opts ...Option) *LoadBalancer {
	lb := &LoadBalancer{base: newBase(cfg, opts), endpoint: endpoint, maxAttempts: maxAttempts}
	lb.create = lb.createClient
	return lb
}

func (lb *LoadBalancer) createClient(ctx context.Context, nodes []string) (*client.Client, error) {
	for attempt := 1; lb.maxAttempts == 0 || attempt <= lb.maxAttempts; attempt++ {
		cl, err := lb.dial(ctx, lb.endpoint)
		if err != nil {
			return nil, err
		}
		if matches(nodes, cl.AdvertisedHost()) {
			return cl, nil
		}
		log.Debug("attempt %d reached %s, not one of %v", attempt, cl.AdvertisedHost(), nodes)
		cl.Close()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return nil, &AttemptsExceededError{Nodes: nodes, Attempts: lb.maxAttempts}
}
