// Package scanner shortlists cross-venue arbitrage opportunities from
// top-of-book quotes. It is the cheap pass: full-depth VWAP repricing of
// the shortlist happens downstream.
package scanner

import (
	"context"
	"log/slog"
	"sort"

	"github.com/quantfarm/crossarb/internal/domain"
	"github.com/quantfarm/crossarb/internal/pricing"
)

// feeMultipliers precomputes the taker adjustment per venue.
type feeMultipliers struct {
	buy  float64 // 1 + taker
	sell float64 // 1 − taker
}

// Scanner compares fee-adjusted top-of-book quotes across every venue pair
// and emits opportunities whose crossing margin clears the configured
// minimum. Symbol intersections per pair are memoized in the PairCache.
type Scanner struct {
	fees      pricing.FeeSchedule
	minMargin float64
	pairs     domain.PairCache
	logger    *slog.Logger
}

// New creates a Scanner. pairs may be an in-process or Redis-backed cache.
func New(fees pricing.FeeSchedule, minMarginPercent float64, pairs domain.PairCache, logger *slog.Logger) *Scanner {
	return &Scanner{
		fees:      fees,
		minMargin: minMarginPercent,
		pairs:     pairs,
		logger:    logger.With(slog.String("component", "scanner")),
	}
}

// Find returns every opportunity with margin ≥ the minimum, sorted
// descending by margin. Input is one cycle's quote set; venues that failed
// to fetch are absent and therefore never compared. The result is
// deterministic for identical input.
func (s *Scanner) Find(ctx context.Context, quotes domain.QuoteSet) []domain.Opportunity {
	venues := make([]domain.Venue, 0, len(quotes))
	for v := range quotes {
		venues = append(venues, v)
	}
	sort.Slice(venues, func(i, j int) bool { return venues[i] < venues[j] })

	mults := make(map[domain.Venue]feeMultipliers, len(venues))
	for _, v := range venues {
		fee := s.fees[v]
		mults[v] = feeMultipliers{buy: 1 + fee, sell: 1 - fee}
	}

	var opps []domain.Opportunity
	for i := 0; i < len(venues)-1; i++ {
		venueA := venues[i]
		quotesA := quotes[venueA]
		for j := i + 1; j < len(venues); j++ {
			venueB := venues[j]
			quotesB := quotes[venueB]

			for _, sym := range s.commonSymbols(ctx, venueA, venueB, quotesA, quotesB) {
				quoteA, okA := quotesA[sym]
				quoteB, okB := quotesB[sym]
				if !okA || !okB {
					continue
				}

				buyA := quoteA.Ask * mults[venueA].buy
				sellA := quoteA.Bid * mults[venueA].sell
				buyB := quoteB.Ask * mults[venueB].buy
				sellB := quoteB.Bid * mults[venueB].sell

				// A missing side arrives as a zero price; it must never
				// participate as free liquidity.
				canBuyA := quoteA.Ask > 0 && quoteB.Bid > 0
				canBuyB := quoteB.Ask > 0 && quoteA.Bid > 0

				// At most one direction crosses after fees for a given
				// pair; the other branch is then excluded.
				if canBuyA && buyA < sellB {
					if margin := (sellB - buyA) / sellB * 100; margin >= s.minMargin {
						opps = append(opps, domain.Opportunity{
							Symbol:        sym,
							BuyVenue:      venueA,
							SellVenue:     venueB,
							BuyPrice:      buyA,
							SellPrice:     sellB,
							MarginPercent: margin,
						})
					}
				} else if canBuyB && buyB < sellA {
					if margin := (sellA - buyB) / sellA * 100; margin >= s.minMargin {
						opps = append(opps, domain.Opportunity{
							Symbol:        sym,
							BuyVenue:      venueB,
							SellVenue:     venueA,
							BuyPrice:      buyB,
							SellPrice:     sellA,
							MarginPercent: margin,
						})
					}
				}
			}
		}
	}

	// Ties keep insertion order; margins are floats so ties are improbable
	// and no secondary key is needed.
	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].MarginPercent > opps[j].MarginPercent
	})
	return opps
}

// commonSymbols returns the cached symbol intersection of a venue pair,
// computing and caching it on a miss. Venue symbol sets are effectively
// static, so the cache carries a TTL rather than per-cycle invalidation.
func (s *Scanner) commonSymbols(ctx context.Context, a, b domain.Venue, quotesA, quotesB domain.VenueQuotes) []domain.Symbol {
	if common, ok := s.pairs.GetCommon(ctx, a, b); ok {
		return common
	}

	common := make([]domain.Symbol, 0, len(quotesA))
	for sym := range quotesA {
		if _, ok := quotesB[sym]; ok {
			common = append(common, sym)
		}
	}
	sort.Slice(common, func(i, j int) bool {
		if common[i].Base != common[j].Base {
			return common[i].Base < common[j].Base
		}
		return common[i].Quote < common[j].Quote
	})

	s.pairs.SetCommon(ctx, a, b, common)
	s.logger.Debug("pair intersection computed",
		slog.String("venue_a", string(a)),
		slog.String("venue_b", string(b)),
		slog.Int("symbols", len(common)),
	)
	return common
}
