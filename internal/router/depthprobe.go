package router

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DepthProbe is an adapter-provided order-book depth estimate of the
// slippage a given size would incur on a venue (§4.5 "expected_slippage
// comes from an order-book depth probe (adapter-provided, cached <=1s)").
type DepthProbe interface {
	Probe(ctx context.Context, canonicalID, venueCode string, quantity decimal.Decimal) (decimal.Decimal, error)
}

type probeCacheEntry struct {
	slippage  decimal.Decimal
	expiresAt time.Time
}

// cachedProbe wraps a DepthProbe with a <=1s TTL cache so repeated routing
// decisions for the same instrument don't re-probe every adapter on every
// call (§4.5).
type cachedProbe struct {
	probe DepthProbe
	ttl   time.Duration

	mu    sync.Mutex
	cache map[string]probeCacheEntry
}

func newCachedProbe(probe DepthProbe, ttl time.Duration) *cachedProbe {
	if ttl <= 0 {
		ttl = time.Second
	}
	return &cachedProbe{probe: probe, ttl: ttl, cache: make(map[string]probeCacheEntry)}
}

func (c *cachedProbe) slippage(ctx context.Context, canonicalID, venueCode string, quantity decimal.Decimal) (decimal.Decimal, bool) {
	if c.probe == nil {
		return decimal.Zero, false
	}
	key := canonicalID + ":" + venueCode

	c.mu.Lock()
	if e, ok := c.cache[key]; ok && time.Now().Before(e.expiresAt) {
		c.mu.Unlock()
		return e.slippage, true
	}
	c.mu.Unlock()

	slip, err := c.probe.Probe(ctx, canonicalID, venueCode, quantity)
	if err != nil {
		return decimal.Zero, false
	}

	c.mu.Lock()
	c.cache[key] = probeCacheEntry{slippage: slip, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return slip, true
}
