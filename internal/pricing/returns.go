package pricing

import "github.com/quantfarm/crossarb/internal/domain"

// FeeSchedule maps each venue to its taker fee fraction.
type FeeSchedule map[domain.Venue]float64

// VWAPSet holds one cycle's costing results per venue per symbol.
type VWAPSet map[domain.Venue]map[domain.Symbol]Result

// Get returns the result for a venue/symbol pair, with ok=false when the
// venue or symbol is absent.
func (s VWAPSet) Get(venue domain.Venue, sym domain.Symbol) (Result, bool) {
	bySymbol, ok := s[venue]
	if !ok {
		return Result{}, false
	}
	r, ok := bySymbol[sym]
	return r, ok
}

// Calculator turns shortlisted opportunities into FinalReturns using
// VWAP-costed prices. Three return variants are always computed; the
// configured variant supplies the Selected prices that drive decisions.
type Calculator struct {
	fees     FeeSchedule
	slippage float64
	variant  domain.ReturnVariant
}

// NewCalculator creates a Calculator. Unknown variants fall back to plain.
func NewCalculator(fees FeeSchedule, slippage float64, variant domain.ReturnVariant) *Calculator {
	switch variant {
	case domain.ReturnPlain, domain.ReturnSlippage, domain.ReturnSlippageSpread:
	default:
		variant = domain.ReturnPlain
	}
	return &Calculator{fees: fees, slippage: slippage, variant: variant}
}

// Variant returns the configured decision variant.
func (c *Calculator) Variant() domain.ReturnVariant { return c.variant }

// FinalReturn prices one opportunity against the cycle's VWAP set. The
// second return is false when either leg's VWAP is a miss; insufficient
// depth is an expected condition and the item is simply dropped.
func (c *Calculator) FinalReturn(opp domain.Opportunity, vwaps VWAPSet, notional, usdtRate float64) (domain.FinalReturn, bool) {
	buyRes, ok := vwaps.Get(opp.BuyVenue, opp.Symbol)
	if !ok || !buyRes.HasAsk {
		return domain.FinalReturn{}, false
	}
	sellRes, ok := vwaps.Get(opp.SellVenue, opp.Symbol)
	if !ok || !sellRes.HasBid {
		return domain.FinalReturn{}, false
	}

	buyFee := c.fees[opp.BuyVenue]
	sellFee := c.fees[opp.SellVenue]

	fr := domain.FinalReturn{
		Opportunity:   opp,
		TradeNotional: notional,
		USDTRate:      usdtRate,
	}

	// Plain: taker fees only.
	fr.NetBuyPrice = buyRes.AskVWAP * (1 + buyFee)
	fr.NetSellPrice = sellRes.BidVWAP * (1 - sellFee)
	fr.ReturnPercentage = domain.NetReturnPercent(fr.NetBuyPrice, fr.NetSellPrice)

	// With slippage: degrade both legs adversely.
	fr.BuyPriceWithSlippage = fr.NetBuyPrice * (1 + c.slippage)
	fr.SellPriceWithSlippage = fr.NetSellPrice * (1 - c.slippage)
	fr.ReturnWithSlippage = domain.NetReturnPercent(fr.BuyPriceWithSlippage, fr.SellPriceWithSlippage)

	// With slippage and spread: each leg additionally pays its own venue's
	// VWAP spread, modeling the cost of not crossing at the exact VWAP.
	spreadOK := buyRes.HasSpread && sellRes.HasSpread
	if spreadOK {
		fr.BuyPriceWithSlippageSpread = fr.BuyPriceWithSlippage + buyRes.Spread
		fr.SellPriceWithSlippageSpread = fr.SellPriceWithSlippage - sellRes.Spread
		fr.ReturnWithSlippageSpread = domain.NetReturnPercent(fr.BuyPriceWithSlippageSpread, fr.SellPriceWithSlippageSpread)
	}

	switch c.variant {
	case domain.ReturnSlippage:
		fr.SelectedBuyPrice = fr.BuyPriceWithSlippage
		fr.SelectedSellPrice = fr.SellPriceWithSlippage
	case domain.ReturnSlippageSpread:
		if !spreadOK {
			// Selected variant is not computable without both spreads.
			return domain.FinalReturn{}, false
		}
		fr.SelectedBuyPrice = fr.BuyPriceWithSlippageSpread
		fr.SelectedSellPrice = fr.SellPriceWithSlippageSpread
	default:
		fr.SelectedBuyPrice = fr.NetBuyPrice
		fr.SelectedSellPrice = fr.NetSellPrice
	}
	fr.SelectedReturnPercentage = domain.NetReturnPercent(fr.SelectedBuyPrice, fr.SelectedSellPrice)

	return fr, true
}

// CloseReturn prices the unwind of an open position: the venue that bought
// is now costed for selling and vice versa. The result's Selected fields
// are what the monitor compares against the close threshold.
func (c *Calculator) CloseReturn(pos domain.Position, vwaps VWAPSet, notional, usdtRate float64) (domain.FinalReturn, bool) {
	reversed := domain.Opportunity{
		Symbol:    pos.Symbol,
		BuyVenue:  pos.SellVenue, // buy back the short
		SellVenue: pos.BuyVenue,  // sell the long
	}
	return c.FinalReturn(reversed, vwaps, notional, usdtRate)
}
