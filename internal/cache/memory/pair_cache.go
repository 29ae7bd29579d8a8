// Package memory provides in-process cache implementations used when Redis
// is disabled and in tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/quantfarm/crossarb/internal/domain"
)

type pairEntry struct {
	symbols   []domain.Symbol
	expiresAt time.Time
}

// PairCache implements domain.PairCache with a TTL-bounded map.
type PairCache struct {
	mu      sync.RWMutex
	entries map[string]pairEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewPairCache creates a PairCache whose entries expire after ttl. A zero
// ttl means entries never expire.
func NewPairCache(ttl time.Duration) *PairCache {
	return &PairCache{
		entries: make(map[string]pairEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// pairKey is order-independent so (a,b) and (b,a) share one entry.
func pairKey(a, b domain.Venue) string {
	if b < a {
		a, b = b, a
	}
	return string(a) + "|" + string(b)
}

// GetCommon returns the cached intersection, or ok=false on miss/expiry.
func (c *PairCache) GetCommon(_ context.Context, a, b domain.Venue) ([]domain.Symbol, bool) {
	c.mu.RLock()
	entry, ok := c.entries[pairKey(a, b)]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, pairKey(a, b))
		c.mu.Unlock()
		return nil, false
	}
	return entry.symbols, true
}

// SetCommon stores the intersection for the pair.
func (c *PairCache) SetCommon(_ context.Context, a, b domain.Venue, symbols []domain.Symbol) {
	entry := pairEntry{symbols: symbols}
	if c.ttl > 0 {
		entry.expiresAt = c.now().Add(c.ttl)
	}
	c.mu.Lock()
	c.entries[pairKey(a, b)] = entry
	c.mu.Unlock()
}
