package domain

import "context"

// Gateway is the engine's view of venue connectivity. Implementations own
// transport, authentication and venue-native symbol rescaling; the engine
// only ever sees canonical symbols and units.
type Gateway interface {
	// FetchTopOfBook returns best bid/ask for the requested symbols on one
	// venue. A partial map is a valid answer on partial failure; symbols
	// with no market are simply absent. Passing nil symbols requests every
	// symbol the venue trades.
	FetchTopOfBook(ctx context.Context, venue Venue, symbols []Symbol) (VenueQuotes, error)

	// FetchOrderBook returns the depth snapshot for one symbol, levels
	// ordered best-first on both sides.
	FetchOrderBook(ctx context.Context, venue Venue, symbol Symbol) (OrderBook, error)

	// PlaceOrder submits one leg and reports the fill. Rejection and
	// timeout surface as errors distinguishable from transport faults.
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)

	// AmountPrecision returns the amount step for a symbol on a venue, or
	// zero when unknown.
	AmountPrecision(venue Venue, symbol Symbol) float64
}
