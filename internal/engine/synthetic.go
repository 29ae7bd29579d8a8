package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/quantfarm/crossarb/internal/domain"
)

// tmnGateway wraps a Gateway so venues without native TMN markets can
// still quote and trade TMN symbols synthetically through their USDT
// markets: book prices are scaled by the cycle's USDT/TMN rate and orders
// are converted back to the USDT market with the inverse rate. Venues with
// native TMN markets pass through untouched.
type tmnGateway struct {
	domain.Gateway
	native map[domain.Venue]bool

	mu   sync.RWMutex
	rate float64
}

func newTMNGateway(inner domain.Gateway, native map[domain.Venue]bool) *tmnGateway {
	return &tmnGateway{Gateway: inner, native: native}
}

// SetRate publishes the cycle's USDT/TMN conversion rate. Zero disables
// synthetic handling until the next cycle resolves a rate.
func (g *tmnGateway) SetRate(rate float64) {
	g.mu.Lock()
	g.rate = rate
	g.mu.Unlock()
}

func (g *tmnGateway) currentRate() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rate
}

func (g *tmnGateway) synthetic(venue domain.Venue, sym domain.Symbol) bool {
	return sym.Quote == domain.QuoteTMN && !g.native[venue]
}

// FetchOrderBook serves synthetic TMN books from the venue's USDT market,
// scaled into TMN. Sizes are base units and stay unchanged.
func (g *tmnGateway) FetchOrderBook(ctx context.Context, venue domain.Venue, sym domain.Symbol) (domain.OrderBook, error) {
	if !g.synthetic(venue, sym) {
		return g.Gateway.FetchOrderBook(ctx, venue, sym)
	}
	rate := g.currentRate()
	if rate <= 0 {
		return domain.OrderBook{}, fmt.Errorf("synthetic %s on %s: no USDT rate this cycle", sym, venue)
	}

	book, err := g.Gateway.FetchOrderBook(ctx, venue, sym.WithQuote(domain.QuoteUSDT))
	if err != nil {
		return domain.OrderBook{}, err
	}
	book.Symbol = sym
	book.Asks = scaleLevels(book.Asks, rate)
	book.Bids = scaleLevels(book.Bids, rate)
	return book, nil
}

func scaleLevels(levels []domain.PriceLevel, rate float64) []domain.PriceLevel {
	out := make([]domain.PriceLevel, len(levels))
	for i, l := range levels {
		out[i] = domain.PriceLevel{Price: l.Price * rate, Size: l.Size}
	}
	return out
}

// PlaceOrder converts a synthetic TMN order to the venue's USDT market.
func (g *tmnGateway) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if !g.synthetic(req.Venue, req.Symbol) {
		return g.Gateway.PlaceOrder(ctx, req)
	}
	rate := g.currentRate()
	if rate <= 0 {
		return domain.OrderResult{}, fmt.Errorf("synthetic %s on %s: no USDT rate this cycle", req.Symbol, req.Venue)
	}

	converted := req
	converted.Symbol = req.Symbol.WithQuote(domain.QuoteUSDT)
	converted.Price = req.Price / rate

	res, err := g.Gateway.PlaceOrder(ctx, converted)
	if err != nil {
		return domain.OrderResult{}, err
	}
	res.AveragePrice *= rate
	return res, nil
}

// AmountPrecision resolves synthetic TMN symbols against the USDT market.
func (g *tmnGateway) AmountPrecision(venue domain.Venue, sym domain.Symbol) float64 {
	if g.synthetic(venue, sym) {
		sym = sym.WithQuote(domain.QuoteUSDT)
	}
	return g.Gateway.AmountPrecision(venue, sym)
}
