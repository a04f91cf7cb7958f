// Package geocache is the edge's non-blocking geo lookup: a hot concurrent
// map in front of a TTL map, refilled asynchronously from the relational
// store. The request path never waits on the store; a miss returns
// immediately and the next hit from the same address sees the filled entry.
package geocache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/smartpixl/smartpixl/internal/geo"
	"github.com/smartpixl/smartpixl/internal/metrics"
)

const (
	ttlPositive = time.Hour
	ttlNegative = 15 * time.Minute

	// Hot-tier bulk eviction bound. The hot map has no per-entry TTL; when
	// it grows past this the eviction sweep clears it wholesale and lets the
	// TTL tier repopulate it.
	hotMaxEntries = 200000
	evictInterval = time.Hour
)

// Lookuper is the read side of the relational geo store.
type Lookuper interface {
	Lookup(ctx context.Context, addr string) (*geo.Record, error)
}

type Cache struct {
	hot      *xsync.MapOf[string, *geo.Record]
	ttl      *gocache.Cache
	inflight *xsync.MapOf[string, struct{}]
	misses   chan string
	store    Lookuper
	logger   *zap.Logger
}

func New(store Lookuper, logger *zap.Logger) *Cache {
	return &Cache{
		hot:      xsync.NewMapOf[string, *geo.Record](),
		ttl:      gocache.New(ttlPositive, 10*time.Minute),
		inflight: xsync.NewMapOf[string, struct{}](),
		misses:   make(chan string, 1024),
		store:    store,
		logger:   logger,
	}
}

// Lookup returns the cached record for addr, or nil when nothing is cached
// yet. On a miss the refill is enqueued and Lookup returns immediately.
// A cached negative entry also returns nil but does not re-enqueue.
func (c *Cache) Lookup(addr string) *geo.Record {
	if addr == "" {
		return nil
	}

	if rec, ok := c.hot.Load(addr); ok {
		metrics.GeoCacheLookupsTotal.WithLabelValues("hot").Inc()
		return rec
	}

	if v, ok := c.ttl.Get(addr); ok {
		rec := v.(*geo.Record)
		if rec.NotFound {
			metrics.GeoCacheLookupsTotal.WithLabelValues("negative").Inc()
			return nil
		}
		// Sliding TTL on positive entries; promote back into the hot tier.
		c.ttl.Set(addr, rec, ttlPositive)
		c.hot.Store(addr, rec)
		metrics.GeoCacheLookupsTotal.WithLabelValues("ttl").Inc()
		return rec
	}

	metrics.GeoCacheLookupsTotal.WithLabelValues("miss").Inc()
	c.enqueueRefill(addr)
	return nil
}

func (c *Cache) enqueueRefill(addr string) {
	if _, loaded := c.inflight.LoadOrStore(addr, struct{}{}); loaded {
		return
	}
	select {
	case c.misses <- addr:
	default:
		// Refill queue full; forget the in-flight mark so a later hit can
		// try again.
		c.inflight.Delete(addr)
	}
}

// Run owns the async refill worker and the hot-tier eviction sweep. Refill
// failures are logged and never reach the request path.
func (c *Cache) Run(ctx context.Context) {
	evict := time.NewTicker(evictInterval)
	defer evict.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case addr := <-c.misses:
			c.refill(ctx, addr)

		case <-evict.C:
			if n := c.hot.Size(); n > hotMaxEntries {
				c.hot.Clear()
				c.logger.Info("geo hot tier evicted", zap.Int("entries", n))
			}
		}
	}
}

func (c *Cache) refill(ctx context.Context, addr string) {
	defer c.inflight.Delete(addr)

	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rec, err := c.store.Lookup(lookupCtx, addr)
	if err != nil {
		metrics.GeoCacheLookupsTotal.WithLabelValues("refill_error").Inc()
		c.logger.Warn("geo refill failed", zap.String("address", addr), zap.Error(err))
		return
	}

	if rec == nil {
		// Negative-cache with absolute expiry so a hot unknown address does
		// not loop the store.
		c.ttl.Set(addr, &geo.Record{Address: addr, NotFound: true}, ttlNegative)
		return
	}

	c.ttl.Set(addr, rec, ttlPositive)
	c.hot.Store(addr, rec)
}
