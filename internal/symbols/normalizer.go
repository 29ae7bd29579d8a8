// Package symbols maps venue-native instrument identifiers to canonical
// BASE/QUOTE symbols and applies per-venue rescaling corrections for coins
// whose on-venue unit differs from the canonical unit (e.g. a venue quoting
// PEPE in millions of units).
package symbols

import (
	"github.com/quantfarm/crossarb/internal/domain"
)

// Correction rescales one venue-native base to its canonical equivalent.
// Standardizing multiplies prices by Factor and divides amounts by it;
// converting back for order placement inverts both, exactly once per
// direction.
type Correction struct {
	VenueBase     string
	CanonicalBase string
	Factor        float64
}

// Normalizer holds the per-venue correction tables and the coin filters.
// It is immutable after construction and safe for concurrent use.
type Normalizer struct {
	byVenueBase     map[domain.Venue]map[string]Correction // venue-native base → correction
	byCanonicalBase map[domain.Venue]map[string]Correction // canonical base → correction
	consider        map[string]bool                        // nil means all coins
	ignore          map[string]bool
}

// New builds a Normalizer from per-venue correction lists and the
// consider/ignore coin filters (canonical base symbols).
func New(corrections map[domain.Venue][]Correction, consider, ignore []string) *Normalizer {
	n := &Normalizer{
		byVenueBase:     make(map[domain.Venue]map[string]Correction),
		byCanonicalBase: make(map[domain.Venue]map[string]Correction),
		ignore:          make(map[string]bool, len(ignore)),
	}
	for venue, list := range corrections {
		vb := make(map[string]Correction, len(list))
		cb := make(map[string]Correction, len(list))
		for _, c := range list {
			vb[c.VenueBase] = c
			cb[c.CanonicalBase] = c
		}
		n.byVenueBase[venue] = vb
		n.byCanonicalBase[venue] = cb
	}
	if len(consider) > 0 {
		n.consider = make(map[string]bool, len(consider))
		for _, b := range consider {
			n.consider[b] = true
		}
	}
	for _, b := range ignore {
		n.ignore[b] = true
	}
	return n
}

// Allowed reports whether a canonical base passes the coin filters.
func (n *Normalizer) Allowed(base string) bool {
	if n.ignore[base] {
		return false
	}
	if n.consider != nil && !n.consider[base] {
		return false
	}
	return true
}

// Canonical converts a venue-native base/quote into the canonical symbol and
// the price correction factor to apply (1 when the coin needs none). The
// second return is false when the coin filters exclude the symbol.
func (n *Normalizer) Canonical(venue domain.Venue, base, quote string) (domain.Symbol, float64, bool) {
	factor := 1.0
	if c, ok := n.byVenueBase[venue][base]; ok {
		base = c.CanonicalBase
		factor = c.Factor
	}
	if !n.Allowed(base) {
		return domain.Symbol{}, 0, false
	}
	return domain.Symbol{Base: base, Quote: quote}, factor, true
}

// StandardizeQuote rescales a venue-native quote by the symbol's correction
// factor. Quotes for uncorrected coins pass through unchanged.
func (n *Normalizer) StandardizeQuote(venue domain.Venue, sym domain.Symbol, q domain.Quote) domain.Quote {
	c, ok := n.byCanonicalBase[venue][sym.Base]
	if !ok {
		return q
	}
	return domain.Quote{Bid: q.Bid * c.Factor, Ask: q.Ask * c.Factor}
}

// StandardizeBook rescales every level of a venue-native book: prices are
// multiplied by the correction factor and sizes divided by it, so notional
// value per level is preserved.
func (n *Normalizer) StandardizeBook(venue domain.Venue, book domain.OrderBook) domain.OrderBook {
	c, ok := n.byCanonicalBase[venue][book.Symbol.Base]
	if !ok {
		return book
	}
	scale := func(levels []domain.PriceLevel) []domain.PriceLevel {
		out := make([]domain.PriceLevel, len(levels))
		for i, l := range levels {
			out[i] = domain.PriceLevel{Price: l.Price * c.Factor, Size: l.Size / c.Factor}
		}
		return out
	}
	book.Asks = scale(book.Asks)
	book.Bids = scale(book.Bids)
	return book
}

// ToVenueOrder converts a canonical order (base, amount, price) into
// venue-native units, inverting the standardization exactly once: amounts
// are multiplied by the correction factor, prices divided by it.
func (n *Normalizer) ToVenueOrder(venue domain.Venue, sym domain.Symbol, amount, price float64) (venueBase string, venueAmount, venuePrice float64) {
	c, ok := n.byCanonicalBase[venue][sym.Base]
	if !ok {
		return sym.Base, amount, price
	}
	return c.VenueBase, amount * c.Factor, price / c.Factor
}

// CorrectionFor returns the correction registered for a canonical base on a
// venue, if any.
func (n *Normalizer) CorrectionFor(venue domain.Venue, base string) (Correction, bool) {
	c, ok := n.byCanonicalBase[venue][base]
	return c, ok
}
