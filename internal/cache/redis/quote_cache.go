package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantfarm/crossarb/internal/domain"
)

// QuoteCache implements domain.QuoteCache using Redis hashes. Each quote is
// stored at "crossarb:quote:{venue}:{symbol}" with fields "bid", "ask" and "ts"
// (Unix nanosecond timestamp).
type QuoteCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache backed by the given Client. A zero
// ttl keeps entries until overwritten.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying(), ttl: ttl}
}

func quoteKey(venue domain.Venue, sym domain.Symbol) string {
	return Key("quote", string(venue), sym.String())
}

// SetQuote stores the latest top-of-book for a venue/symbol.
func (qc *QuoteCache) SetQuote(ctx context.Context, venue domain.Venue, sym domain.Symbol, q domain.Quote, ts time.Time) error {
	key := quoteKey(venue, sym)
	fields := map[string]interface{}{
		"bid": strconv.FormatFloat(q.Bid, 'f', -1, 64),
		"ask": strconv.FormatFloat(q.Ask, 'f', -1, 64),
		"ts":  strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := qc.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s %s: %w", venue, sym, err)
	}
	if qc.ttl > 0 {
		if err := qc.rdb.Expire(ctx, key, qc.ttl).Err(); err != nil {
			return fmt.Errorf("redis: expire quote %s %s: %w", venue, sym, err)
		}
	}
	return nil
}

// GetQuote retrieves the latest top-of-book for a venue/symbol. It returns
// domain.ErrNotFound when the key does not exist.
func (qc *QuoteCache) GetQuote(ctx context.Context, venue domain.Venue, sym domain.Symbol) (domain.Quote, time.Time, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(venue, sym)).Result()
	if err != nil {
		return domain.Quote{}, time.Time{}, fmt.Errorf("redis: get quote %s %s: %w", venue, sym, err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, time.Time{}, domain.ErrNotFound
	}

	bid, err := strconv.ParseFloat(vals["bid"], 64)
	if err != nil {
		return domain.Quote{}, time.Time{}, fmt.Errorf("redis: parse bid %s %s: %w", venue, sym, err)
	}
	ask, err := strconv.ParseFloat(vals["ask"], 64)
	if err != nil {
		return domain.Quote{}, time.Time{}, fmt.Errorf("redis: parse ask %s %s: %w", venue, sym, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Quote{}, time.Time{}, fmt.Errorf("redis: parse ts %s %s: %w", venue, sym, err)
	}

	return domain.Quote{Bid: bid, Ask: ask}, time.Unix(0, tsNano), nil
}
