package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quantfarm/crossarb/internal/domain"
	storemem "github.com/quantfarm/crossarb/internal/store/memory"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeGateway scripts order placement per venue and serves canned books.
type fakeGateway struct {
	mu      sync.Mutex
	orders  []domain.OrderRequest
	placeFn func(req domain.OrderRequest) (domain.OrderResult, error)
	books   map[bookKey]domain.OrderBook
	steps   map[bookKey]float64
}

func (g *fakeGateway) FetchTopOfBook(context.Context, domain.Venue, []domain.Symbol) (domain.VenueQuotes, error) {
	return nil, nil
}

func (g *fakeGateway) FetchOrderBook(_ context.Context, venue domain.Venue, sym domain.Symbol) (domain.OrderBook, error) {
	book, ok := g.books[bookKey{venue, sym}]
	if !ok {
		return domain.OrderBook{}, domain.ErrNotFound
	}
	return book, nil
}

func (g *fakeGateway) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	g.mu.Lock()
	g.orders = append(g.orders, req)
	g.mu.Unlock()
	return g.placeFn(req)
}

func (g *fakeGateway) AmountPrecision(venue domain.Venue, sym domain.Symbol) float64 {
	return g.steps[bookKey{venue, sym}]
}

func (g *fakeGateway) placed() []domain.OrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.OrderRequest, len(g.orders))
	copy(out, g.orders)
	return out
}

func fillAll(req domain.OrderRequest) (domain.OrderResult, error) {
	return domain.OrderResult{OrderID: "1", Filled: true, AveragePrice: req.Price}, nil
}

var btcUSDT = domain.Symbol{Base: "BTC", Quote: domain.QuoteUSDT}

func testReturn() domain.FinalReturn {
	return domain.FinalReturn{
		Opportunity: domain.Opportunity{
			Symbol:    btcUSDT,
			BuyVenue:  "coinex",
			SellVenue: "wallex",
		},
		SelectedBuyPrice:         100,
		SelectedSellPrice:        105,
		SelectedReturnPercentage: 4.76,
		TradeNotional:            200,
		USDTRate:                 1,
	}
}

func newTestLifecycle(g *fakeGateway, store domain.PositionStore, esc Escalator) *Lifecycle {
	return NewLifecycle(g, store, esc, nil, 1, time.Millisecond, domain.OrderTypeMarket, discard)
}

func TestOpenPersistsOnlyAfterBothLegsFill(t *testing.T) {
	gw := &fakeGateway{placeFn: fillAll}
	store := storemem.NewPositionStore()
	lc := newTestLifecycle(gw, store, AutoDecline{})

	pos, err := lc.Open(context.Background(), testReturn())
	require.NoError(t, err)
	require.NotEmpty(t, pos.ID)
	require.Equal(t, domain.PositionStatusOpen, pos.Status)
	require.InDelta(t, 200.0/102.5, pos.Amount, 1e-9)
	require.InDelta(t, 100, pos.EntryBuyPrice, 1e-9)
	require.InDelta(t, 105, pos.EntrySellPrice, 1e-9)

	open, err := store.ListOpen(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)

	orders := gw.placed()
	require.Len(t, orders, 2)
	sides := map[domain.Venue]domain.OrderSide{}
	for _, o := range orders {
		sides[o.Venue] = o.Side
	}
	require.Equal(t, domain.OrderSideBuy, sides["coinex"])
	require.Equal(t, domain.OrderSideSell, sides["wallex"])
}

func TestOpenSizesNotionalAtMidpoint(t *testing.T) {
	gw := &fakeGateway{placeFn: fillAll}
	store := storemem.NewPositionStore()
	lc := newTestLifecycle(gw, store, AutoDecline{})

	// 200 notional at midpoint(100, 105) = 102.5, not at the buy price.
	pos, err := lc.Open(context.Background(), testReturn())
	require.NoError(t, err)
	require.InDelta(t, 1.951219512195122, pos.Amount, 1e-12)

	for _, o := range gw.placed() {
		require.InDelta(t, pos.Amount, o.Amount, 1e-12)
	}
}

func TestOpenFlooredToCoarserStep(t *testing.T) {
	gw := &fakeGateway{
		placeFn: fillAll,
		steps: map[bookKey]float64{
			{"coinex", btcUSDT}: 0.001,
			{"wallex", btcUSDT}: 0.3,
		},
	}
	store := storemem.NewPositionStore()
	lc := newTestLifecycle(gw, store, AutoDecline{})

	pos, err := lc.Open(context.Background(), testReturn())
	require.NoError(t, err)
	// 1.95 floored to the 0.3 step shared by both legs.
	require.InDelta(t, 1.8, pos.Amount, 1e-9)
}

func TestOpenUnwindsFilledLegWhenOtherFails(t *testing.T) {
	failSell := errors.New("sell venue down")
	gw := &fakeGateway{
		placeFn: func(req domain.OrderRequest) (domain.OrderResult, error) {
			if req.Venue == "wallex" && req.Side == domain.OrderSideSell {
				return domain.OrderResult{}, failSell
			}
			return fillAll(req)
		},
	}
	store := storemem.NewPositionStore()
	lc := newTestLifecycle(gw, store, AutoDecline{})

	_, err := lc.Open(context.Background(), testReturn())

	var legErr *domain.LegError
	require.ErrorAs(t, err, &legErr)
	require.Equal(t, domain.Venue("wallex"), legErr.Venue)
	require.Equal(t, domain.OrderSideSell, legErr.Side)
	require.ErrorIs(t, err, failSell)
	require.False(t, legErr.FailedAt.IsZero())

	// The filled buy leg must be flattened with an opposing sell on its
	// own venue, and nothing may be persisted.
	orders := gw.placed()
	last := orders[len(orders)-1]
	require.Equal(t, domain.Venue("coinex"), last.Venue)
	require.Equal(t, domain.OrderSideSell, last.Side)
	require.InDelta(t, 200.0/102.5, last.Amount, 1e-9)

	open, err := store.ListOpen(context.Background())
	require.NoError(t, err)
	require.Empty(t, open)
}

func TestOpenBothLegsFailNoUnwind(t *testing.T) {
	gw := &fakeGateway{
		placeFn: func(domain.OrderRequest) (domain.OrderResult, error) {
			return domain.OrderResult{}, domain.ErrVenueUnavailable
		},
	}
	store := storemem.NewPositionStore()
	lc := newTestLifecycle(gw, store, AutoDecline{})

	_, err := lc.Open(context.Background(), testReturn())

	var legErr *domain.LegError
	require.ErrorAs(t, err, &legErr)

	// Two attempts per leg (initial + one retry), no unwind order.
	require.Len(t, gw.placed(), 4)
}

func openedPosition(t *testing.T, store domain.PositionStore) domain.Position {
	t.Helper()
	pos := domain.Position{
		Symbol:         btcUSDT,
		BuyVenue:       "coinex",
		SellVenue:      "wallex",
		Amount:         2,
		EntryBuyPrice:  100,
		EntrySellPrice: 105,
		USDTRate:       1,
		Status:         domain.PositionStatusOpen,
		OpenedAt:       time.Now(),
	}
	id, err := store.Insert(context.Background(), pos)
	require.NoError(t, err)
	pos.ID = id
	return pos
}

func closeReturn() domain.FinalReturn {
	return domain.FinalReturn{
		Opportunity: domain.Opportunity{
			Symbol:    btcUSDT,
			BuyVenue:  "wallex", // buy back the short
			SellVenue: "coinex", // sell the long
		},
		SelectedBuyPrice:         100,
		SelectedSellPrice:        106,
		SelectedReturnPercentage: 5.66,
		TradeNotional:            200,
		USDTRate:                 1,
	}
}

func TestCloseArchivesWithExitPrices(t *testing.T) {
	gw := &fakeGateway{placeFn: fillAll}
	store := storemem.NewPositionStore()
	lc := newTestLifecycle(gw, store, AutoDecline{})
	pos := openedPosition(t, store)

	require.NoError(t, lc.Close(context.Background(), pos, closeReturn()))

	open, err := store.ListOpen(context.Background())
	require.NoError(t, err)
	require.Empty(t, open)

	closed := store.Closed()
	require.Len(t, closed, 1)
	require.Equal(t, pos.ID, closed[0].Position.ID)
	require.InDelta(t, 106, closed[0].Prices.ExitSellPrice, 1e-9)
	require.InDelta(t, 100, closed[0].Prices.ExitBuyPrice, 1e-9)
	require.False(t, closed[0].Prices.ClosedAt.IsZero())

	// Exit legs reverse the entry sides.
	sides := map[domain.Venue]domain.OrderSide{}
	for _, o := range gw.placed() {
		sides[o.Venue] = o.Side
	}
	require.Equal(t, domain.OrderSideSell, sides["coinex"])
	require.Equal(t, domain.OrderSideBuy, sides["wallex"])
}

func TestCloseRollsBackToOpenOnLegFailure(t *testing.T) {
	gw := &fakeGateway{
		placeFn: func(req domain.OrderRequest) (domain.OrderResult, error) {
			if req.Venue == "wallex" {
				return domain.OrderResult{}, domain.ErrVenueUnavailable
			}
			return fillAll(req)
		},
	}
	store := storemem.NewPositionStore()
	lc := newTestLifecycle(gw, store, AutoDecline{})
	pos := openedPosition(t, store)

	err := lc.Close(context.Background(), pos, closeReturn())

	var closeErr *domain.CloseError
	require.ErrorAs(t, err, &closeErr)
	require.Equal(t, pos.ID, closeErr.PositionID)
	require.Equal(t, pos.Amount, closeErr.Amount)
	require.False(t, closeErr.FailedAt.IsZero())

	// Status must be back to open so the next cycle retries the close.
	open, listErr := store.ListOpen(context.Background())
	require.NoError(t, listErr)
	require.Len(t, open, 1)
	require.Equal(t, domain.PositionStatusOpen, open[0].Status)
}

// archiveFailStore fails Archive to exercise the persistence-failure
// rollback path.
type archiveFailStore struct {
	*storemem.PositionStore
}

func (s *archiveFailStore) Archive(context.Context, string, domain.ClosePrices) error {
	return errors.New("archive unavailable")
}

func TestClosePersistenceFailureRollsBack(t *testing.T) {
	gw := &fakeGateway{placeFn: fillAll}
	store := &archiveFailStore{storemem.NewPositionStore()}
	lc := newTestLifecycle(gw, store, AutoDecline{})
	pos := openedPosition(t, store)

	err := lc.Close(context.Background(), pos, closeReturn())

	var closeErr *domain.CloseError
	require.ErrorAs(t, err, &closeErr)

	open, listErr := store.ListOpen(context.Background())
	require.NoError(t, listErr)
	require.Len(t, open, 1)
	require.Equal(t, domain.PositionStatusOpen, open[0].Status)
}

func TestEscalatorKeepRetryingEventuallyFills(t *testing.T) {
	var attempts int
	var mu sync.Mutex
	gw := &fakeGateway{
		placeFn: func(req domain.OrderRequest) (domain.OrderResult, error) {
			if req.Venue == "wallex" {
				mu.Lock()
				attempts++
				n := attempts
				mu.Unlock()
				// Fail the first round of retries; fill in the second.
				if n <= 2 {
					return domain.OrderResult{}, domain.ErrVenueUnavailable
				}
			}
			return fillAll(req)
		},
	}
	store := storemem.NewPositionStore()
	lc := newTestLifecycle(gw, store, &retryBudget{remaining: 1})

	pos, err := lc.Open(context.Background(), testReturn())
	require.NoError(t, err)
	require.NotEmpty(t, pos.ID)

	open, err := store.ListOpen(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
}

// retryBudget answers yes a fixed number of times, then no.
type retryBudget struct {
	mu        sync.Mutex
	remaining int
}

func (r *retryBudget) KeepRetrying(context.Context, *domain.LegError) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.remaining == 0 {
		return false
	}
	r.remaining--
	return true
}
