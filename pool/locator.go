package pool

import (
	"context"
	"fmt"

	"github.com/CefBoud/monstream/mux"
	"github.com/CefBoud/monstream/protocol"
	lru "github.com/hashicorp/golang-lru"
)

// DefaultLocatorCacheSize is the number of streams a Locator remembers
const DefaultLocatorCacheSize = 1024

// Locator finds where streams live and connects to them
type Locator struct {
	pool  ClientPool
	cache *lru.Cache
}

// NewLocator caches the metadata of up to size streams
func NewLocator(pool ClientPool, size int) (*Locator, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Locator{pool: pool, cache: cache}, nil
}

// Lookup returns the leader and replicas of stream
func (l *Locator) Lookup(ctx context.Context, stream string) (protocol.StreamMetadata, error) {
	if v, ok := l.cache.Get(stream); ok {
		return v.(protocol.StreamMetadata), nil
	}
	w, err := l.pool.AcquireClient(ctx, nil)
	if err != nil {
		return protocol.StreamMetadata{}, err
	}
	defer l.pool.ReleaseClient(w)

	md, err := w.Client().Metadata(ctx, []string{stream})
	if err != nil {
		return protocol.StreamMetadata{}, err
	}
	res, ok := md[stream]
	if !ok {
		return protocol.StreamMetadata{}, fmt.Errorf("%w: %s", ErrStreamNotFound, stream)
	}
	l.cache.Add(stream, res)
	return res, nil
}

// Invalidate forgets what is known about stream, e.g. after a metadata update
func (l *Locator) Invalidate(stream string) {
	l.cache.Remove(stream)
}

// AcquireLeader returns a connection to the leader of stream
func (l *Locator) AcquireLeader(ctx context.Context, stream string) (*mux.Wrapper, error) {
	md, err := l.Lookup(ctx, stream)
	if err != nil {
		return nil, err
	}
	if md.Leader == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoLeader, stream)
	}
	return l.pool.AcquireClient(ctx, []string{md.Leader.Host})
}

// AcquireReplica returns a connection to a replica of stream, or to its leader
// when it has no replica
func (l *Locator) AcquireReplica(ctx context.Context, stream string) (*mux.Wrapper, error) {
	md, err := l.Lookup(ctx, stream)
	if err != nil {
		return nil, err
	}
	if len(md.Replicas) == 0 {
		return l.AcquireLeader(ctx, stream)
	}
	hosts := make([]string, 0, len(md.Replicas))
	for _, r := range md.Replicas {
		hosts = append(hosts, r.Host)
	}
	return l.pool.AcquireClient(ctx, hosts)
}
