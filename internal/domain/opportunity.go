package domain

// Opportunity is a fee-adjusted top-of-book crossing between two venues.
// Opportunities are ephemeral: recomputed every cycle, never persisted.
type Opportunity struct {
	Symbol        Symbol
	BuyVenue      Venue
	SellVenue     Venue
	BuyPrice      float64 // ask on BuyVenue, taker fee included
	SellPrice     float64 // bid on SellVenue, taker fee deducted
	MarginPercent float64
}

// ReturnVariant selects which net-return computation drives decisions.
type ReturnVariant string

const (
	// ReturnPlain is net of taker fees only.
	ReturnPlain ReturnVariant = "plain"
	// ReturnSlippage additionally degrades both legs by the configured
	// slippage fraction.
	ReturnSlippage ReturnVariant = "slippage"
	// ReturnSlippageSpread additionally charges each venue's own VWAP
	// bid/ask spread against the respective leg.
	ReturnSlippageSpread ReturnVariant = "slippage_spread"
)

// FinalReturn re-prices an opportunity (or an open position being unwound)
// with VWAP-costed execution. All three variants are always present; only
// the Selected* fields influence state transitions.
type FinalReturn struct {
	Opportunity Opportunity

	NetBuyPrice      float64
	NetSellPrice     float64
	ReturnPercentage float64

	BuyPriceWithSlippage  float64
	SellPriceWithSlippage float64
	ReturnWithSlippage    float64

	BuyPriceWithSlippageSpread  float64
	SellPriceWithSlippageSpread float64
	ReturnWithSlippageSpread    float64

	SelectedBuyPrice         float64
	SelectedSellPrice        float64
	SelectedReturnPercentage float64

	TradeNotional float64 // quote-currency notional the VWAPs were costed for
	USDTRate      float64 // reference USDT/TMN rate for this cycle
}

// NetReturnPercent is the uniform net-return formula used everywhere:
// (sell − buy) / sell · 100. Returns zero when sell is not positive.
func NetReturnPercent(buyPrice, sellPrice float64) float64 {
	if sellPrice <= 0 {
		return 0
	}
	return (sellPrice - buyPrice) / sellPrice * 100
}
