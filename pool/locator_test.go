package pool

import (
	"context"
	"errors"
	"testing"

	"github.com/CefBoud/monstream/internal/broker"
	"github.com/CefBoud/monstream/protocol"
)

func TestLocator(t *testing.T) {
	b := startBroker(t, broker.Options{
		AdvertisedHosts: []string{"leader", "replica"},
		Replicas:        []protocol.Broker{{Reference: 1, Host: "replica", Port: 5552}},
	})
	b.CreateStream("S")
	lb := NewLoadBalancer(testConfig(), endpoint(b), 4)
	defer lb.Close()
	ctx := context.Background()

	held, err := lb.AcquireClient(ctx, []string{"leader"})
	if err != nil {
		t.Fatalf("AcquireClient failed: %v", err)
	}
	conn, err := b.NextConn(waitTimeout)
	if err != nil {
		t.Fatal(err)
	}
	locator, err := NewLocator(lb, DefaultLocatorCacheSize)
	if err != nil {
		t.Fatalf("NewLocator failed: %v", err)
	}

	md, err := locator.Lookup(ctx, "S")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if md.Leader == nil || md.Leader.Host != "leader" || len(md.Replicas) != 1 || md.Replicas[0].Host != "replica" {
		t.Fatalf("Unexpected metadata %+v", md)
	}
	if _, err := locator.Lookup(ctx, "S"); err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if n := conn.Received(protocol.MetadataKey); n != 1 {
		t.Errorf("Expected the second lookup to be cached, got %d metadata requests", n)
	}
	locator.Invalidate("S")
	if _, err := locator.Lookup(ctx, "S"); err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if n := conn.Received(protocol.MetadataKey); n != 2 {
		t.Errorf("Expected a new metadata request after invalidation, got %d", n)
	}

	if _, err := locator.Lookup(ctx, "missing"); !errors.Is(err, ErrStreamNotFound) {
		t.Errorf("Expected ErrStreamNotFound, got %v", err)
	}

	leader, err := locator.AcquireLeader(ctx, "S")
	if err != nil || leader != held {
		t.Fatalf("Expected the leader connection to be reused, got %v", err)
	}
	replica, err := locator.AcquireReplica(ctx, "S")
	if err != nil {
		t.Fatalf("AcquireReplica failed: %v", err)
	}
	if replica.AdvertisedHost() != "replica" {
		t.Errorf("Expected a connection to the replica, got %s", replica.AdvertisedHost())
	}
}
