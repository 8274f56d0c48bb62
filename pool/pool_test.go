package pool

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/CefBoud/monstream/client"
	"github.com/CefBoud/monstream/internal/broker"
	"github.com/CefBoud/monstream/protocol"
	"github.com/CefBoud/monstream/types"
)

const waitTimeout = 2 * time.Second

func testConfig() types.Configuration {
	return types.Configuration{Username: "guest", Password: "guest", RequestTimeout: time.Second}
}

func startBroker(t *testing.T, opts broker.Options) *broker.Broker {
	t.Helper()
	opts.Username, opts.Password = "guest", "guest"
	b, err := broker.New(opts)
	if err != nil {
		t.Fatalf("Failed to start broker: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func endpoint(b *broker.Broker) types.Endpoint {
	return types.Endpoint{Host: b.Host(), Port: b.Port()}
}

func seeded() Option {
	return WithRand(rand.New(rand.NewSource(1)))
}

// eventually polls cond until it holds or waitTimeout passes
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEmptyNodeFilter(t *testing.T) {
	lb := NewLoadBalancer(testConfig(), types.Endpoint{Host: "127.0.0.1", Port: 1}, 1)
	if _, err := lb.AcquireClient(context.Background(), []string{}); !errors.Is(err, ErrEmptyNodeFilter) {
		t.Fatalf("Expected ErrEmptyNodeFilter, got %v", err)
	}
}

func TestRefCountClosesOnce(t *testing.T) {
	b := startBroker(t, broker.Options{AdvertisedHosts: []string{"n1"}})
	cluster := NewCluster(testConfig(), map[string]types.Endpoint{"n1": endpoint(b)}, seeded())
	defer cluster.Close()
	ctx := context.Background()

	w1, err := cluster.AcquireClient(ctx, nil)
	if err != nil {
		t.Fatalf("AcquireClient failed: %v", err)
	}
	w2, err := cluster.AcquireClient(ctx, []string{"n1"})
	if err != nil {
		t.Fatalf("AcquireClient failed: %v", err)
	}
	if w1 != w2 || w1.Refs() != 2 {
		t.Fatalf("Expected the connection to be shared with 2 references, got %d", w1.Refs())
	}
	if b.Accepted() != 1 {
		t.Errorf("Expected a single connection, got %d", b.Accepted())
	}
	conn, err := b.NextConn(waitTimeout)
	if err != nil {
		t.Fatal(err)
	}

	if err := cluster.ReleaseClient(w1); err != nil {
		t.Fatalf("ReleaseClient failed: %v", err)
	}
	if w1.Closed() || cluster.Size() != 1 {
		t.Fatalf("Expected the connection to stay open while referenced")
	}
	if err := cluster.ReleaseClient(w2); err != nil {
		t.Fatalf("ReleaseClient failed: %v", err)
	}
	eventually(t, "the connection to close", func() bool { return b.Closed() == 1 })
	if n := conn.Received(protocol.CloseKey); n != 1 {
		t.Errorf("Expected exactly one close request, got %d", n)
	}
	if !w1.Closed() || cluster.Size() != 0 {
		t.Errorf("Expected the connection to leave the pool")
	}
	if err := cluster.ReleaseClient(w1); !errors.Is(err, ErrUnknownClient) {
		t.Errorf("Expected ErrUnknownClient on a third release, got %v", err)
	}
}

func TestClusterMismatch(t *testing.T) {
	b := startBroker(t, broker.Options{AdvertisedHosts: []string{"n2"}})
	cluster := NewCluster(testConfig(), map[string]types.Endpoint{"n1": endpoint(b)})
	defer cluster.Close()

	_, err := cluster.AcquireClient(context.Background(), nil)
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("Expected a ConfigError, got %v", err)
	}
	if cerr.Node != "n1" || cerr.Advertised != "n2" {
		t.Errorf("Unexpected error %+v", cerr)
	}
	eventually(t, "the connection to close", func() bool { return b.Closed() == 1 })
	if cluster.Size() != 0 {
		t.Errorf("Expected the connection not to be pooled")
	}
}

func TestClusterNodes(t *testing.T) {
	b := startBroker(t, broker.Options{AdvertisedHosts: []string{"n2"}})
	cluster := NewCluster(testConfig(), nil)
	defer cluster.Close()
	ctx := context.Background()

	if _, err := cluster.AcquireClient(ctx, nil); !errors.Is(err, ErrNoEligibleNode) {
		t.Fatalf("Expected ErrNoEligibleNode without nodes, got %v", err)
	}
	cluster.AddNode("n2", endpoint(b))
	if _, err := cluster.AcquireClient(ctx, []string{"n1"}); !errors.Is(err, ErrNoEligibleNode) {
		t.Fatalf("Expected ErrNoEligibleNode for an unknown node, got %v", err)
	}
	w, err := cluster.AcquireClient(ctx, []string{"n1", "n2"})
	if err != nil {
		t.Fatalf("AcquireClient failed: %v", err)
	}
	if w.AdvertisedHost() != "n2" {
		t.Errorf("Expected a connection to n2, got %s", w.AdvertisedHost())
	}
	cluster.RemoveNode("n2")
	if len(cluster.Nodes()) != 0 {
		t.Errorf("Expected no node left, got %v", cluster.Nodes())
	}
	// pooled connections outlive their node
	if w2, err := cluster.AcquireClient(ctx, []string{"n2"}); err != nil || w2 != w {
		t.Errorf("Expected the pooled connection to be reused, got %v", err)
	}
}

func TestLoadBalancerAttemptsExceeded(t *testing.T) {
	b := startBroker(t, broker.Options{AdvertisedHosts: []string{"a", "b"}})
	lb := NewLoadBalancer(testConfig(), endpoint(b), 3)
	defer lb.Close()

	_, err := lb.AcquireClient(context.Background(), []string{"c"})
	var aerr *AttemptsExceededError
	if !errors.As(err, &aerr) {
		t.Fatalf("Expected AttemptsExceededError, got %v", err)
	}
	if aerr.Attempts != 3 || len(aerr.Nodes) != 1 || aerr.Nodes[0] != "c" {
		t.Errorf("Unexpected error %+v", aerr)
	}
	if b.Accepted() != 3 {
		t.Errorf("Expected 3 connections, got %d", b.Accepted())
	}
	eventually(t, "every attempt to close", func() bool { return b.Closed() == 3 })
	if lb.Size() != 0 {
		t.Errorf("Expected no connection to be pooled")
	}
}

func TestLoadBalancerFilter(t *testing.T) {
	b := startBroker(t, broker.Options{AdvertisedHosts: []string{"a", "b"}})
	lb := NewLoadBalancer(testConfig(), endpoint(b), 0)
	defer lb.Close()
	ctx := context.Background()

	w, err := lb.AcquireClient(ctx, []string{"b"})
	if err != nil {
		t.Fatalf("AcquireClient failed: %v", err)
	}
	if w.AdvertisedHost() != "b" {
		t.Fatalf("Expected a connection to b, got %s", w.AdvertisedHost())
	}
	eventually(t, "the connection to a to close", func() bool { return b.Closed() == 1 })

	again, err := lb.AcquireClient(ctx, []string{"b"})
	if err != nil || again != w {
		t.Fatalf("Expected the pooled connection, got %v", err)
	}
	if b.Accepted() != 2 {
		t.Errorf("Expected no new connection, got %d accepted", b.Accepted())
	}
}

func TestDeduplicateAdvertisedHost(t *testing.T) {
	b := startBroker(t, broker.Options{AdvertisedHosts: []string{"a"}})
	lb := NewLoadBalancer(testConfig(), endpoint(b), 1)
	defer lb.Close()
	ctx := context.Background()

	w, err := lb.AcquireClient(ctx, nil)
	if err != nil {
		t.Fatalf("AcquireClient failed: %v", err)
	}
	c, err := client.Dial(ctx, b.Host(), b.Port(), testConfig())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	if got := lb.addClient(c); got != w {
		t.Fatalf("Expected the pooled wrapper for the same advertised host")
	}
	if w.Refs() != 2 || lb.Size() != 1 {
		t.Errorf("Expected 2 references on a single connection, got %d on %d", w.Refs(), lb.Size())
	}
	select {
	case <-c.Done():
	case <-time.After(waitTimeout):
		t.Fatalf("Expected the duplicate connection to be closed")
	}
}

func TestCloseAll(t *testing.T) {
	b := startBroker(t, broker.Options{AdvertisedHosts: []string{"a", "b"}})
	lb := NewLoadBalancer(testConfig(), endpoint(b), 0)
	ctx := context.Background()
	for _, node := range []string{"a", "b"} {
		if _, err := lb.AcquireClient(ctx, []string{node}); err != nil {
			t.Fatalf("AcquireClient %s failed: %v", node, err)
		}
	}
	if lb.Size() != 2 {
		t.Fatalf("Expected 2 pooled connections, got %d", lb.Size())
	}
	if err := lb.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	eventually(t, "every connection to close", func() bool { return b.Closed() == 2 })
}

func TestPoolForgetsClosedConnection(t *testing.T) {
	b := startBroker(t, broker.Options{AdvertisedHosts: []string{"a"}})
	lb := NewLoadBalancer(testConfig(), endpoint(b), 1)
	defer lb.Close()

	w, err := lb.AcquireClient(context.Background(), nil)
	if err != nil {
		t.Fatalf("AcquireClient failed: %v", err)
	}
	conn, err := b.NextConn(waitTimeout)
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()
	eventually(t, "the pool to forget the connection", func() bool { return lb.Size() == 0 })
	if !w.Closed() {
		t.Errorf("Expected the wrapper to be closed")
	}
	if err := lb.ReleaseClient(w); err != nil {
		t.Errorf("Expected releasing a dropped connection to succeed, got %v", err)
	}
	if w.Refs() != 0 {
		t.Errorf("Expected no reference left, got %d", w.Refs())
	}
}
