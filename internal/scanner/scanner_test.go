package scanner

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quantfarm/crossarb/internal/cache/memory"
	"github.com/quantfarm/crossarb/internal/domain"
	"github.com/quantfarm/crossarb/internal/pricing"
)

var testFees = pricing.FeeSchedule{
	"coinex":  0.001,
	"wallex":  0.001,
	"nobitex": 0.0015,
}

func newTestScanner(minMargin float64) *Scanner {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(testFees, minMargin, memory.NewPairCache(10*time.Minute), logger)
}

func sym(s string) domain.Symbol {
	parsed, err := domain.ParseSymbol(s)
	if err != nil {
		panic(err)
	}
	return parsed
}

func TestFindCrossedPair(t *testing.T) {
	quotes := domain.QuoteSet{
		"coinex": {sym("BTC/USDT"): {Bid: 99.9, Ask: 100}},
		"wallex": {sym("BTC/USDT"): {Bid: 101, Ask: 101.1}},
	}

	opps := newTestScanner(0.3).Find(context.Background(), quotes)
	require.Len(t, opps, 1)

	opp := opps[0]
	require.Equal(t, domain.Venue("coinex"), opp.BuyVenue)
	require.Equal(t, domain.Venue("wallex"), opp.SellVenue)

	buy := 100 * 1.001
	sell := 101 * 0.999
	require.InDelta(t, buy, opp.BuyPrice, 1e-9)
	require.InDelta(t, sell, opp.SellPrice, 1e-9)
	require.InDelta(t, (sell-buy)/sell*100, opp.MarginPercent, 1e-9)
}

func TestFeesCanCloseARawCross(t *testing.T) {
	// Raw ask < raw bid, but taker fees on both legs eat the edge.
	quotes := domain.QuoteSet{
		"coinex": {sym("ETH/USDT"): {Bid: 99.9, Ask: 100}},
		"wallex": {sym("ETH/USDT"): {Bid: 100.05, Ask: 100.2}},
	}

	opps := newTestScanner(0).Find(context.Background(), quotes)
	require.Empty(t, opps)
}

func TestOnlyOneDirectionPerPair(t *testing.T) {
	quotes := domain.QuoteSet{
		"coinex": {sym("BTC/USDT"): {Bid: 99, Ask: 100}},
		"wallex": {sym("BTC/USDT"): {Bid: 105, Ask: 106}},
	}

	opps := newTestScanner(0).Find(context.Background(), quotes)
	require.Len(t, opps, 1)
	require.Equal(t, domain.Venue("coinex"), opps[0].BuyVenue)
	require.Equal(t, domain.Venue("wallex"), opps[0].SellVenue)
}

func TestThresholdFilters(t *testing.T) {
	quotes := domain.QuoteSet{
		"coinex": {sym("BTC/USDT"): {Bid: 99.9, Ask: 100}},
		"wallex": {sym("BTC/USDT"): {Bid: 100.5, Ask: 100.6}},
	}

	// Margin after fees is roughly 0.3%; a 2% floor excludes it.
	require.NotEmpty(t, newTestScanner(0.1).Find(context.Background(), quotes))
	require.Empty(t, newTestScanner(2).Find(context.Background(), quotes))
}

func TestSymbolMissingOnOneVenue(t *testing.T) {
	quotes := domain.QuoteSet{
		"coinex": {
			sym("BTC/USDT"):  {Bid: 99.9, Ask: 100},
			sym("DOGE/USDT"): {Bid: 1, Ask: 1.01},
		},
		"wallex": {sym("BTC/USDT"): {Bid: 105, Ask: 106}},
	}

	opps := newTestScanner(0).Find(context.Background(), quotes)
	require.Len(t, opps, 1)
	require.Equal(t, sym("BTC/USDT"), opps[0].Symbol)
}

func TestSortedDescendingByMargin(t *testing.T) {
	quotes := domain.QuoteSet{
		"coinex": {
			sym("BTC/USDT"): {Bid: 99.9, Ask: 100},
			sym("ETH/USDT"): {Bid: 99.9, Ask: 100},
		},
		"wallex": {
			sym("BTC/USDT"): {Bid: 102, Ask: 103},
			sym("ETH/USDT"): {Bid: 110, Ask: 111},
		},
	}

	opps := newTestScanner(0).Find(context.Background(), quotes)
	require.Len(t, opps, 2)
	require.Equal(t, sym("ETH/USDT"), opps[0].Symbol)
	require.Equal(t, sym("BTC/USDT"), opps[1].Symbol)
	require.Greater(t, opps[0].MarginPercent, opps[1].MarginPercent)
}

func TestFindIsDeterministic(t *testing.T) {
	quotes := domain.QuoteSet{
		"coinex": {
			sym("BTC/USDT"): {Bid: 99.9, Ask: 100},
			sym("ETH/USDT"): {Bid: 50, Ask: 50.1},
		},
		"nobitex": {
			sym("BTC/USDT"): {Bid: 104, Ask: 105},
			sym("ETH/USDT"): {Bid: 52, Ask: 52.5},
		},
		"wallex": {
			sym("BTC/USDT"): {Bid: 103, Ask: 104},
			sym("ETH/USDT"): {Bid: 51, Ask: 51.2},
		},
	}

	s := newTestScanner(0)
	first := s.Find(context.Background(), quotes)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, s.Find(context.Background(), quotes))
	}
}

func TestAbsentVenueNeverCompared(t *testing.T) {
	quotes := domain.QuoteSet{
		"coinex": {sym("BTC/USDT"): {Bid: 99.9, Ask: 100}},
	}
	require.Empty(t, newTestScanner(0).Find(context.Background(), quotes))
}

func TestOneSidedQuoteNotFreeLiquidity(t *testing.T) {
	// coinex has no asks for the symbol; a zero ask must not read as a
	// free buy against wallex's bid.
	quotes := domain.QuoteSet{
		"coinex": {sym("DOGE/USDT"): {Bid: 99, Ask: 0}},
		"wallex": {sym("DOGE/USDT"): {Bid: 105, Ask: 106}},
	}
	require.Empty(t, newTestScanner(0.3).Find(context.Background(), quotes))
}
