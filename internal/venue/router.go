// Package venue routes gateway calls to per-venue REST clients and caches
// instrument precisions. Clients return canonical symbols and units; all
// venue-native naming and rescaling stays below this package.
package venue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/quantfarm/crossarb/internal/domain"
)

// Client is one venue's connectivity. Implementations live in the coinex,
// nobitex and wallex subpackages.
type Client interface {
	Name() domain.Venue

	// FetchTopOfBook returns best bid/ask per canonical symbol. nil
	// symbols requests everything the venue trades.
	FetchTopOfBook(ctx context.Context, symbols []domain.Symbol) (domain.VenueQuotes, error)

	// FetchOrderBook returns a depth snapshot, best level first.
	FetchOrderBook(ctx context.Context, symbol domain.Symbol) (domain.OrderBook, error)

	// PlaceOrder submits one canonical-unit order.
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)

	// Precisions returns the price/amount step table for the venue.
	Precisions(ctx context.Context) (map[domain.Symbol]domain.Precision, error)
}

// Router implements domain.Gateway over a set of venue clients.
type Router struct {
	clients map[domain.Venue]Client
	logger  *slog.Logger

	mu         sync.RWMutex
	precisions map[domain.Venue]map[domain.Symbol]domain.Precision
}

// NewRouter creates a Router over the given clients.
func NewRouter(clients []Client, logger *slog.Logger) *Router {
	m := make(map[domain.Venue]Client, len(clients))
	for _, c := range clients {
		m[c.Name()] = c
	}
	return &Router{
		clients:    m,
		logger:     logger.With(slog.String("component", "venue_router")),
		precisions: make(map[domain.Venue]map[domain.Symbol]domain.Precision),
	}
}

// Venues returns the venues this router serves.
func (r *Router) Venues() []domain.Venue {
	out := make([]domain.Venue, 0, len(r.clients))
	for v := range r.clients {
		out = append(out, v)
	}
	return out
}

func (r *Router) client(v domain.Venue) (Client, error) {
	c, ok := r.clients[v]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedVenue, v)
	}
	return c, nil
}

// FetchTopOfBook implements domain.Gateway.
func (r *Router) FetchTopOfBook(ctx context.Context, venue domain.Venue, symbols []domain.Symbol) (domain.VenueQuotes, error) {
	c, err := r.client(venue)
	if err != nil {
		return nil, err
	}
	return c.FetchTopOfBook(ctx, symbols)
}

// FetchOrderBook implements domain.Gateway.
func (r *Router) FetchOrderBook(ctx context.Context, venue domain.Venue, symbol domain.Symbol) (domain.OrderBook, error) {
	c, err := r.client(venue)
	if err != nil {
		return domain.OrderBook{}, err
	}
	return c.FetchOrderBook(ctx, symbol)
}

// PlaceOrder implements domain.Gateway.
func (r *Router) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	c, err := r.client(req.Venue)
	if err != nil {
		return domain.OrderResult{}, err
	}
	return c.PlaceOrder(ctx, req)
}

// LoadPrecisions fetches and caches the precision tables for every venue.
// A venue that fails to answer keeps its previous table; call again to
// retry. Intended to run once at startup and occasionally after.
func (r *Router) LoadPrecisions(ctx context.Context) error {
	var firstErr error
	for v, c := range r.clients {
		table, err := c.Precisions(ctx)
		if err != nil {
			r.logger.Warn("precision fetch failed",
				slog.String("venue", string(v)),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("precisions for %s: %w", v, err)
			}
			continue
		}
		r.mu.Lock()
		r.precisions[v] = table
		r.mu.Unlock()
	}
	return firstErr
}

// AmountPrecision implements domain.Gateway. Returns zero when the table
// has no entry for the symbol.
func (r *Router) AmountPrecision(venue domain.Venue, symbol domain.Symbol) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.precisions[venue][symbol].Amount
}

// PricePrecision returns the price step for a symbol, or zero when unknown.
func (r *Router) PricePrecision(venue domain.Venue, symbol domain.Symbol) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.precisions[venue][symbol].Price
}
