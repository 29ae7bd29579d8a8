package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cachemem "github.com/quantfarm/crossarb/internal/cache/memory"
	"github.com/quantfarm/crossarb/internal/domain"
	"github.com/quantfarm/crossarb/internal/pricing"
	"github.com/quantfarm/crossarb/internal/scanner"
	storemem "github.com/quantfarm/crossarb/internal/store/memory"
)

func testParams(mode string) Params {
	return Params{
		Venues:                []domain.Venue{"coinex", "wallex"},
		TMNNative:             map[domain.Venue]bool{"nobitex": true, "wallex": true},
		MinMarginPercent:      0.3,
		MaxMarginPercent:      4,
		CloseMinMarginPercent: 4,
		TradeNotionalUSDT:     200,
		ReferenceVenue:        "nobitex",
		FetchTimeout:          time.Second,
		LegMaxRetries:         1,
		LegRetryDelay:         time.Millisecond,
		OrderTypeOnOpen:       domain.OrderTypeMarket,
		Mode:                  mode,
	}
}

func newTestEngine(gw *fakeGateway, store domain.PositionStore, params Params) *Engine {
	fees := pricing.FeeSchedule{}
	calc := pricing.NewCalculator(fees, 0, domain.ReturnPlain)
	sc := scanner.New(fees, params.MinMarginPercent, cachemem.NewPairCache(time.Minute), discard)
	return New(gw, store, sc, calc, AutoDecline{}, nil, params, discard)
}

func book(venue domain.Venue, sym domain.Symbol, asks, bids []domain.PriceLevel) domain.OrderBook {
	return domain.OrderBook{Venue: venue, Symbol: sym, Asks: asks, Bids: bids, Timestamp: time.Now()}
}

func TestMonitorClosesAboveThreshold(t *testing.T) {
	// Unwinding sells the long on coinex at bid VWAP 106 and buys back
	// the short on wallex at ask VWAP 100: 5.66% clears the 4% bound.
	gw := &fakeGateway{
		placeFn: fillAll,
		books: map[bookKey]domain.OrderBook{
			{"coinex", btcUSDT}: book("coinex", btcUSDT,
				[]domain.PriceLevel{{Price: 107, Size: 10}},
				[]domain.PriceLevel{{Price: 106, Size: 10}}),
			{"wallex", btcUSDT}: book("wallex", btcUSDT,
				[]domain.PriceLevel{{Price: 100, Size: 10}},
				[]domain.PriceLevel{{Price: 99, Size: 10}}),
		},
	}
	store := storemem.NewPositionStore()
	e := newTestEngine(gw, store, testParams(ModeMonitor))
	openedPosition(t, store)

	require.NoError(t, e.Cycle(context.Background()))

	open, err := store.ListOpen(context.Background())
	require.NoError(t, err)
	require.Empty(t, open)
	require.Len(t, store.Closed(), 1)
	require.Len(t, gw.placed(), 2)
}

func TestMonitorLeavesPositionBelowThreshold(t *testing.T) {
	// 1.96% against a 4% bound: the position stays open.
	gw := &fakeGateway{
		placeFn: fillAll,
		books: map[bookKey]domain.OrderBook{
			{"coinex", btcUSDT}: book("coinex", btcUSDT,
				[]domain.PriceLevel{{Price: 103, Size: 10}},
				[]domain.PriceLevel{{Price: 102, Size: 10}}),
			{"wallex", btcUSDT}: book("wallex", btcUSDT,
				[]domain.PriceLevel{{Price: 100, Size: 10}},
				[]domain.PriceLevel{{Price: 99, Size: 10}}),
		},
	}
	store := storemem.NewPositionStore()
	e := newTestEngine(gw, store, testParams(ModeMonitor))
	openedPosition(t, store)

	require.NoError(t, e.Cycle(context.Background()))

	open, err := store.ListOpen(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Empty(t, gw.placed())
}

func TestMonitorStopLossCloses(t *testing.T) {
	// Selling the long at 97 against a 100 buy-back is -3.09%; with a
	// -2% stop loss the position must be cut.
	gw := &fakeGateway{
		placeFn: fillAll,
		books: map[bookKey]domain.OrderBook{
			{"coinex", btcUSDT}: book("coinex", btcUSDT,
				[]domain.PriceLevel{{Price: 98, Size: 10}},
				[]domain.PriceLevel{{Price: 97, Size: 10}}),
			{"wallex", btcUSDT}: book("wallex", btcUSDT,
				[]domain.PriceLevel{{Price: 100, Size: 10}},
				[]domain.PriceLevel{{Price: 99, Size: 10}}),
		},
	}
	store := storemem.NewPositionStore()
	params := testParams(ModeMonitor)
	params.StopLossPercent = -2
	e := newTestEngine(gw, store, params)
	openedPosition(t, store)

	require.NoError(t, e.Cycle(context.Background()))

	require.Len(t, store.Closed(), 1)
}

func TestMonitorSkipsOnInsufficientDepth(t *testing.T) {
	// Depth covers only half the position's notional: the close repricing
	// is a miss and the position must be left untouched, not closed at a
	// fabricated zero price.
	gw := &fakeGateway{
		placeFn: fillAll,
		books: map[bookKey]domain.OrderBook{
			{"coinex", btcUSDT}: book("coinex", btcUSDT,
				[]domain.PriceLevel{{Price: 107, Size: 0.5}},
				[]domain.PriceLevel{{Price: 106, Size: 0.5}}),
			{"wallex", btcUSDT}: book("wallex", btcUSDT,
				[]domain.PriceLevel{{Price: 100, Size: 10}},
				[]domain.PriceLevel{{Price: 99, Size: 10}}),
		},
	}
	store := storemem.NewPositionStore()
	e := newTestEngine(gw, store, testParams(ModeMonitor))
	openedPosition(t, store)

	require.NoError(t, e.Cycle(context.Background()))

	open, err := store.ListOpen(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Empty(t, gw.placed())
}

func TestShouldCloseBounds(t *testing.T) {
	e := newTestEngine(&fakeGateway{}, storemem.NewPositionStore(), testParams(ModeTrade))

	require.True(t, e.shouldClose(6))
	require.True(t, e.shouldClose(4))
	require.False(t, e.shouldClose(2))
	require.False(t, e.shouldClose(-10)) // stop loss disabled by default

	params := testParams(ModeTrade)
	params.StopLossPercent = -2
	e = newTestEngine(&fakeGateway{}, storemem.NewPositionStore(), params)
	require.True(t, e.shouldClose(-2))
	require.True(t, e.shouldClose(-5))
	require.False(t, e.shouldClose(-1))
}

func TestUSDTRateFloorsReferenceMid(t *testing.T) {
	e := newTestEngine(&fakeGateway{}, storemem.NewPositionStore(), testParams(ModeScan))

	quotes := domain.QuoteSet{
		"nobitex": {usdtTMN: {Bid: 99999.4, Ask: 100000.8}},
	}
	require.InDelta(t, 100000, e.usdtRate(quotes), 1e-9)

	require.Zero(t, e.usdtRate(domain.QuoteSet{"nobitex": {}}))
	require.Zero(t, e.usdtRate(domain.QuoteSet{}))
}

func TestSynthesizeTMNAddsDerivedQuotes(t *testing.T) {
	e := newTestEngine(&fakeGateway{}, storemem.NewPositionStore(), testParams(ModeScan))

	btcTMN := btcUSDT.WithQuote(domain.QuoteTMN)
	quotes := domain.QuoteSet{
		"coinex": {btcUSDT: {Bid: 100, Ask: 101}},
		"wallex": {btcUSDT: {Bid: 100, Ask: 101}},
	}
	e.synthesizeTMN(quotes, 100000)

	// coinex has no native TMN markets, so a derived quote appears.
	derived, ok := quotes["coinex"][btcTMN]
	require.True(t, ok)
	require.InDelta(t, 100*100000, derived.Bid, 1e-6)
	require.InDelta(t, 101*100000, derived.Ask, 1e-6)

	// wallex trades TMN natively and must not get synthetic quotes.
	_, ok = quotes["wallex"][btcTMN]
	require.False(t, ok)
}

func TestFinalReturnsSanityCapAndOrder(t *testing.T) {
	e := newTestEngine(&fakeGateway{}, storemem.NewPositionStore(), testParams(ModeScan))

	ethUSDT := domain.Symbol{Base: "ETH", Quote: domain.QuoteUSDT}
	vwaps := pricing.VWAPSet{
		"coinex": {
			btcUSDT: {AskVWAP: 100, BidVWAP: 99, HasAsk: true, HasBid: true},
			ethUSDT: {AskVWAP: 100, BidVWAP: 99, HasAsk: true, HasBid: true},
		},
		"wallex": {
			btcUSDT: {AskVWAP: 111, BidVWAP: 110, HasAsk: true, HasBid: true}, // 9.1%, above cap
			ethUSDT: {AskVWAP: 103, BidVWAP: 102, HasAsk: true, HasBid: true}, // 1.96%
		},
	}
	opps := []domain.Opportunity{
		{Symbol: btcUSDT, BuyVenue: "coinex", SellVenue: "wallex"},
		{Symbol: ethUSDT, BuyVenue: "coinex", SellVenue: "wallex"},
	}

	finals := e.finalReturns(opps, vwaps, 0)
	require.Len(t, finals, 1)
	require.Equal(t, ethUSDT, finals[0].Opportunity.Symbol)
}
