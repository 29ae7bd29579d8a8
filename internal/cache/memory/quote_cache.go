package memory

import (
	"context"
	"sync"
	"time"

	"github.com/quantfarm/crossarb/internal/domain"
)

type quoteEntry struct {
	quote domain.Quote
	ts    time.Time
}

// QuoteCache implements domain.QuoteCache with a plain map.
type QuoteCache struct {
	mu      sync.RWMutex
	entries map[string]quoteEntry
}

// NewQuoteCache creates an empty QuoteCache.
func NewQuoteCache() *QuoteCache {
	return &QuoteCache{entries: make(map[string]quoteEntry)}
}

func quoteKey(venue domain.Venue, sym domain.Symbol) string {
	return string(venue) + "|" + sym.String()
}

// SetQuote stores the last-seen quote for a venue/symbol.
func (c *QuoteCache) SetQuote(_ context.Context, venue domain.Venue, sym domain.Symbol, q domain.Quote, ts time.Time) error {
	c.mu.Lock()
	c.entries[quoteKey(venue, sym)] = quoteEntry{quote: q, ts: ts}
	c.mu.Unlock()
	return nil
}

// GetQuote returns the last-seen quote, or domain.ErrNotFound.
func (c *QuoteCache) GetQuote(_ context.Context, venue domain.Venue, sym domain.Symbol) (domain.Quote, time.Time, error) {
	c.mu.RLock()
	entry, ok := c.entries[quoteKey(venue, sym)]
	c.mu.RUnlock()
	if !ok {
		return domain.Quote{}, time.Time{}, domain.ErrNotFound
	}
	return entry.quote, entry.ts, nil
}
