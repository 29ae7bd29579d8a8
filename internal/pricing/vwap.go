// Package pricing implements the volume-weighted-average-price costing of
// order books and the fee/slippage/spread net-return calculation.
package pricing

import "github.com/quantfarm/crossarb/internal/domain"

// Result holds the VWAP costing of one book for a target notional. A side
// whose depth could not cover the notional is a miss: its Has flag is false
// and its value is meaningless. Callers must treat a miss as "no
// opportunity", never as a zero price.
type Result struct {
	AskVWAP float64 // average price to buy the target notional
	BidVWAP float64 // average price obtained selling the target notional
	Spread  float64 // AskVWAP − BidVWAP, defined only when both sides resolve

	HasAsk    bool
	HasBid    bool
	HasSpread bool
}

// Cost walks both sides of a book and returns the VWAP needed to fill
// exactly the target notional (in the symbol's quote currency) on each.
// Levels are consumed in book order, best price first; the level that
// crosses the target contributes only the fractional amount needed.
func Cost(book domain.OrderBook, targetNotional float64) Result {
	var r Result
	r.AskVWAP, r.HasAsk = walk(book.Asks, targetNotional)
	r.BidVWAP, r.HasBid = walk(book.Bids, targetNotional)
	if r.HasAsk && r.HasBid {
		r.Spread = r.AskVWAP - r.BidVWAP
		r.HasSpread = true
	}
	return r
}

// walk accumulates cost level by level until the accumulated cost meets or
// exceeds the target, then averages at the crossing point. It reports a
// miss when total depth is insufficient. Zero-price levels are skipped so
// the partial-fill division is never by zero; zero-size levels contribute
// nothing and fall through naturally.
func walk(levels []domain.PriceLevel, target float64) (vwap float64, ok bool) {
	if target <= 0 {
		return 0, false
	}
	var accCost, accVolume float64
	for _, lvl := range levels {
		if lvl.Price <= 0 {
			continue
		}
		levelCost := lvl.Price * lvl.Size
		if accCost+levelCost >= target {
			remaining := target - accCost
			accVolume += remaining / lvl.Price
			accCost += remaining
			return accCost / accVolume, true
		}
		accVolume += lvl.Size
		accCost += levelCost
	}
	return 0, false
}

// Scale converts a result into another quote currency by multiplying every
// resolved price by rate. Used to derive synthetic TMN results from USDT
// books.
func (r Result) Scale(rate float64) Result {
	out := r
	if r.HasAsk {
		out.AskVWAP = r.AskVWAP * rate
	}
	if r.HasBid {
		out.BidVWAP = r.BidVWAP * rate
	}
	if r.HasSpread {
		out.Spread = r.Spread * rate
	}
	return out
}
