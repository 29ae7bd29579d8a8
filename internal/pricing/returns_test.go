package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfarm/crossarb/internal/domain"
)

var testFees = FeeSchedule{"coinex": 0.001, "wallex": 0.001}

func vwapSet(buyAsk, buyBid, sellAsk, sellBid float64) VWAPSet {
	sym := domain.Symbol{Base: "BTC", Quote: "USDT"}
	mk := func(ask, bid float64) Result {
		r := Result{}
		if ask > 0 {
			r.AskVWAP, r.HasAsk = ask, true
		}
		if bid > 0 {
			r.BidVWAP, r.HasBid = bid, true
		}
		if r.HasAsk && r.HasBid {
			r.Spread, r.HasSpread = r.AskVWAP-r.BidVWAP, true
		}
		return r
	}
	return VWAPSet{
		"coinex": {sym: mk(buyAsk, buyBid)},
		"wallex": {sym: mk(sellAsk, sellBid)},
	}
}

func testOpportunity() domain.Opportunity {
	return domain.Opportunity{
		Symbol:    domain.Symbol{Base: "BTC", Quote: "USDT"},
		BuyVenue:  "coinex",
		SellVenue: "wallex",
	}
}

func TestFinalReturnVariants(t *testing.T) {
	calc := NewCalculator(testFees, 0.0005, domain.ReturnPlain)
	vwaps := vwapSet(100, 99.5, 103.5, 103)

	fr, ok := calc.FinalReturn(testOpportunity(), vwaps, 200, 0)
	require.True(t, ok)

	wantBuy := 100 * 1.001
	wantSell := 103 * 0.999
	assert.InDelta(t, wantBuy, fr.NetBuyPrice, 1e-12)
	assert.InDelta(t, wantSell, fr.NetSellPrice, 1e-12)
	assert.InDelta(t, (wantSell-wantBuy)/wantSell*100, fr.ReturnPercentage, 1e-12)

	// Slippage degrades buy up and sell down.
	assert.InDelta(t, wantBuy*1.0005, fr.BuyPriceWithSlippage, 1e-12)
	assert.InDelta(t, wantSell*0.9995, fr.SellPriceWithSlippage, 1e-12)
	assert.Less(t, fr.ReturnWithSlippage, fr.ReturnPercentage)

	// Spread variant charges each leg its own venue's spread.
	buySpread := 100.0 - 99.5
	sellSpread := 103.5 - 103.0
	assert.InDelta(t, fr.BuyPriceWithSlippage+buySpread, fr.BuyPriceWithSlippageSpread, 1e-12)
	assert.InDelta(t, fr.SellPriceWithSlippage-sellSpread, fr.SellPriceWithSlippageSpread, 1e-12)
	assert.Less(t, fr.ReturnWithSlippageSpread, fr.ReturnWithSlippage)

	// Plain variant selected by default.
	assert.Equal(t, fr.NetBuyPrice, fr.SelectedBuyPrice)
	assert.Equal(t, fr.NetSellPrice, fr.SelectedSellPrice)
	assert.Equal(t, fr.ReturnPercentage, fr.SelectedReturnPercentage)
}

func TestFinalReturnSelectionByVariant(t *testing.T) {
	vwaps := vwapSet(100, 99.5, 103.5, 103)

	for _, tc := range []struct {
		variant domain.ReturnVariant
		pick    func(fr domain.FinalReturn) (float64, float64)
	}{
		{domain.ReturnSlippage, func(fr domain.FinalReturn) (float64, float64) {
			return fr.BuyPriceWithSlippage, fr.SellPriceWithSlippage
		}},
		{domain.ReturnSlippageSpread, func(fr domain.FinalReturn) (float64, float64) {
			return fr.BuyPriceWithSlippageSpread, fr.SellPriceWithSlippageSpread
		}},
	} {
		calc := NewCalculator(testFees, 0.0005, tc.variant)
		fr, ok := calc.FinalReturn(testOpportunity(), vwaps, 200, 0)
		require.True(t, ok, string(tc.variant))

		wantBuy, wantSell := tc.pick(fr)
		assert.Equal(t, wantBuy, fr.SelectedBuyPrice, string(tc.variant))
		assert.Equal(t, wantSell, fr.SelectedSellPrice, string(tc.variant))
		assert.InDelta(t, (wantSell-wantBuy)/wantSell*100, fr.SelectedReturnPercentage, 1e-12, string(tc.variant))
	}
}

func TestUnknownVariantFallsBackToPlain(t *testing.T) {
	calc := NewCalculator(testFees, 0.0005, domain.ReturnVariant("bogus"))
	assert.Equal(t, domain.ReturnPlain, calc.Variant())
}

func TestFinalReturnDropsOnMiss(t *testing.T) {
	calc := NewCalculator(testFees, 0.0005, domain.ReturnPlain)

	// Buy side miss: no ask VWAP on the buy venue.
	vwaps := vwapSet(0, 99.5, 103.5, 103)
	_, ok := calc.FinalReturn(testOpportunity(), vwaps, 200, 0)
	assert.False(t, ok)

	// Sell side miss: no bid VWAP on the sell venue.
	vwaps = vwapSet(100, 99.5, 103.5, 0)
	_, ok = calc.FinalReturn(testOpportunity(), vwaps, 200, 0)
	assert.False(t, ok)

	// Venue entirely absent from the cycle.
	vwaps = vwapSet(100, 99.5, 103.5, 103)
	delete(vwaps, "wallex")
	_, ok = calc.FinalReturn(testOpportunity(), vwaps, 200, 0)
	assert.False(t, ok)
}

func TestSpreadVariantRequiresBothSpreads(t *testing.T) {
	calc := NewCalculator(testFees, 0.0005, domain.ReturnSlippageSpread)

	// Sell venue has no ask depth, so its spread is undefined.
	vwaps := vwapSet(100, 99.5, 0, 103)
	_, ok := calc.FinalReturn(testOpportunity(), vwaps, 200, 0)
	assert.False(t, ok)

	// Plain calculator happily prices the same set.
	plain := NewCalculator(testFees, 0.0005, domain.ReturnPlain)
	fr, ok := plain.FinalReturn(testOpportunity(), vwaps, 200, 0)
	require.True(t, ok)
	assert.Zero(t, fr.ReturnWithSlippageSpread)
}

func TestCloseReturnUsesReverseLegs(t *testing.T) {
	calc := NewCalculator(testFees, 0, domain.ReturnPlain)

	sym := domain.Symbol{Base: "BTC", Quote: "USDT"}
	pos := domain.Position{
		Symbol:         sym,
		BuyVenue:       "coinex",
		SellVenue:      "wallex",
		Amount:         1,
		EntryBuyPrice:  100,
		EntrySellPrice: 105,
	}

	// Closing sells the long on coinex (bid walk) and buys back the short
	// on wallex (ask walk).
	vwaps := VWAPSet{
		"coinex": {sym: Result{BidVWAP: 104, HasBid: true, AskVWAP: 104.5, HasAsk: true, Spread: 0.5, HasSpread: true}},
		"wallex": {sym: Result{AskVWAP: 97, HasAsk: true, BidVWAP: 96.5, HasBid: true, Spread: 0.5, HasSpread: true}},
	}

	fr, ok := calc.CloseReturn(pos, vwaps, 100, 0)
	require.True(t, ok)

	wantBuy := 97 * 1.001   // buy back on wallex
	wantSell := 104 * 0.999 // sell the long on coinex
	assert.InDelta(t, wantBuy, fr.SelectedBuyPrice, 1e-12)
	assert.InDelta(t, wantSell, fr.SelectedSellPrice, 1e-12)

	want := (wantSell - wantBuy) / wantSell * 100
	if math.Abs(fr.SelectedReturnPercentage-want) > 1e-12 {
		t.Errorf("close return %v != %v", fr.SelectedReturnPercentage, want)
	}
}
