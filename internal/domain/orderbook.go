package domain

import "time"

// PriceLevel is a single price+size entry in an order book.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderBook is a depth snapshot for one symbol on one venue. Asks are
// ordered ascending by price, bids descending, best level first. An empty
// side means no liquidity on that side, not zero cost.
type OrderBook struct {
	Venue     Venue
	Symbol    Symbol
	Asks      []PriceLevel
	Bids      []PriceLevel
	Timestamp time.Time
}

// Quote is the top-of-book bid and ask for one symbol on one venue.
type Quote struct {
	Bid float64
	Ask float64
}

// Mid returns the bid/ask midpoint, or zero when either side is missing.
func (q Quote) Mid() float64 {
	if q.Bid <= 0 || q.Ask <= 0 {
		return 0
	}
	return (q.Bid + q.Ask) / 2
}

// VenueQuotes maps canonical symbols to top-of-book quotes for one venue.
type VenueQuotes map[Symbol]Quote

// QuoteSet holds one cycle's quotes for every venue that answered. Venues
// whose fetch failed are absent; they never participate as zero liquidity.
type QuoteSet map[Venue]VenueQuotes
