package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantfarm/crossarb/internal/domain"
)

// PairCache implements domain.PairCache using Redis string keys holding a
// JSON array of canonical symbols. Keys expire after the configured TTL so
// venue listings are re-intersected periodically.
type PairCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewPairCache creates a PairCache backed by the given Client.
func NewPairCache(c *Client, ttl time.Duration, logger *slog.Logger) *PairCache {
	return &PairCache{
		rdb:    c.Underlying(),
		ttl:    ttl,
		logger: logger.With(slog.String("component", "pair_cache")),
	}
}

// pairKey is order-independent so (a,b) and (b,a) share one entry.
func pairKey(a, b domain.Venue) string {
	if b < a {
		a, b = b, a
	}
	return Key("pair", string(a), string(b))
}

// GetCommon returns the cached intersection for the pair. Redis errors are
// logged and reported as misses: the scanner recomputes, it never fails a
// cycle over a cache fault.
func (pc *PairCache) GetCommon(ctx context.Context, a, b domain.Venue) ([]domain.Symbol, bool) {
	raw, err := pc.rdb.Get(ctx, pairKey(a, b)).Bytes()
	if err != nil {
		if err != redis.Nil {
			pc.logger.Warn("pair cache get failed", slog.String("error", err.Error()))
		}
		return nil, false
	}

	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		pc.logger.Warn("pair cache decode failed", slog.String("error", err.Error()))
		return nil, false
	}
	symbols := make([]domain.Symbol, 0, len(names))
	for _, name := range names {
		sym, err := domain.ParseSymbol(name)
		if err != nil {
			continue
		}
		symbols = append(symbols, sym)
	}
	return symbols, true
}

// SetCommon stores the intersection for the pair with the cache TTL.
func (pc *PairCache) SetCommon(ctx context.Context, a, b domain.Venue, symbols []domain.Symbol) {
	names := make([]string, len(symbols))
	for i, sym := range symbols {
		names[i] = sym.String()
	}
	raw, err := json.Marshal(names)
	if err != nil {
		pc.logger.Warn("pair cache encode failed", slog.String("error", err.Error()))
		return
	}
	if err := pc.rdb.Set(ctx, pairKey(a, b), raw, pc.ttl).Err(); err != nil {
		pc.logger.Warn("pair cache set failed", slog.String("error", err.Error()))
	}
}
