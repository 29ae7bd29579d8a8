package domain

import (
	"context"
	"time"
)

// PairCache memoizes the symbol intersection of a venue pair. Venue symbol
// sets are effectively static, so entries carry a bounded TTL rather than
// per-cycle invalidation.
type PairCache interface {
	// GetCommon returns the cached intersection for the pair, or ok=false
	// on a miss or expired entry.
	GetCommon(ctx context.Context, a, b Venue) (symbols []Symbol, ok bool)

	// SetCommon stores the intersection for the pair.
	SetCommon(ctx context.Context, a, b Venue, symbols []Symbol)
}

// QuoteCache holds last-seen top-of-book quotes per venue, written by
// streaming feeds. Venue clients overlay a sufficiently fresh entry over
// their REST ticker snapshot; a stale or missing entry never substitutes
// for a failed fetch.
type QuoteCache interface {
	SetQuote(ctx context.Context, venue Venue, symbol Symbol, q Quote, ts time.Time) error
	GetQuote(ctx context.Context, venue Venue, symbol Symbol) (Quote, time.Time, error)
}
