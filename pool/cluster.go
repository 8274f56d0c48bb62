package pool

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/CefBoud/monstream/client"
	"github.com/CefBoud/monstream/types"
)

// Cluster connects to nodes known by name. A node must advertise its name as host.
type Cluster struct {
	*base

	nodesMu sync.RWMutex
	nodes   map[string]types.Endpoint
}

var _ ClientPool = (*Cluster)(nil)

// NewCluster returns a pool over nodes, keyed by node name
func NewCluster(cfg types.Configuration, nodes map[string]types.Endpoint, opts ...Option) *Cluster {
	c := &Cluster{base: newBase(cfg, opts), nodes: maps.Clone(nodes)}
	if c.nodes == nil {
		c.nodes = map[string]types.Endpoint{}
	}
	c.create = c.createClient
	return c
}

// AddNode adds or replaces a node
func (c *Cluster) AddNode(name string, endpoint types.Endpoint) {
	c.nodesMu.Lock()
	defer c.nodesMu.Unlock()
	c.nodes[name] = endpoint
}

// RemoveNode forgets a node. Pooled connections to it are left untouched.
func (c *Cluster) RemoveNode(name string) {
	c.nodesMu.Lock()
	defer c.nodesMu.Unlock()
	delete(c.nodes, name)
}

// Nodes returns a copy of the configured nodes
func (c *Cluster) Nodes() map[string]types.Endpoint {
	c.nodesMu.RLock()
	defer c.nodesMu.RUnlock()
	return maps.Clone(c.nodes)
}

func (c *Cluster) createClient(ctx context.Context, nodes []string) (*client.Client, error) {
	c.nodesMu.RLock()
	var eligible []string
	for name := range c.nodes {
		if matches(nodes, name) {
			eligible = append(eligible, name)
		}
	}
	slices.Sort(eligible)
	var name string
	var endpoint types.Endpoint
	if len(eligible) > 0 {
		name = eligible[c.intn(len(eligible))]
		endpoint = c.nodes[name]
	}
	c.nodesMu.RUnlock()
	if name == "" {
		return nil, fmt.Errorf("%w: %v", ErrNoEligibleNode, nodes)
	}

	cl, err := c.dial(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", name, err)
	}
	if advertised := cl.AdvertisedHost(); advertised != name {
		cl.Close()
		return nil, &ConfigError{Node: name, Advertised: advertised}
	}
	return cl, nil
}
