package symbols

import (
	"math"
	"testing"

	"github.com/quantfarm/crossarb/internal/domain"
)

func testCorrections() map[domain.Venue][]Correction {
	return map[domain.Venue][]Correction{
		"nobitex": {
			{VenueBase: "100K_FLOKI", CanonicalBase: "FLOKI", Factor: 1e-5},
			{VenueBase: "1B_BABYDOGE", CanonicalBase: "BABYDOGE", Factor: 1e-9},
			{VenueBase: "1M_PEPE", CanonicalBase: "PEPE", Factor: 1e-6},
			{VenueBase: "SHIB", CanonicalBase: "SHIB", Factor: 1e-3},
		},
		"wallex": {
			{VenueBase: "1BBABYDOGE", CanonicalBase: "BABYDOGE", Factor: 1e-9},
		},
	}
}

func TestCanonicalMapsVenueBase(t *testing.T) {
	n := New(testCorrections(), nil, nil)

	sym, factor, ok := n.Canonical("nobitex", "1M_PEPE", "USDT")
	if !ok {
		t.Fatal("expected 1M_PEPE to be allowed")
	}
	if sym != (domain.Symbol{Base: "PEPE", Quote: "USDT"}) {
		t.Errorf("expected PEPE/USDT, got %s", sym)
	}
	if factor != 1e-6 {
		t.Errorf("expected factor 1e-6, got %g", factor)
	}

	// Uncorrected coins pass through with factor 1.
	sym, factor, ok = n.Canonical("nobitex", "BTC", "USDT")
	if !ok || sym.Base != "BTC" || factor != 1 {
		t.Errorf("expected BTC/USDT factor 1, got %s factor %g ok=%v", sym, factor, ok)
	}
}

func TestCoinFilters(t *testing.T) {
	n := New(testCorrections(), nil, []string{"OMG"})
	if _, _, ok := n.Canonical("nobitex", "OMG", "USDT"); ok {
		t.Error("ignored coin must not be allowed")
	}

	n = New(testCorrections(), []string{"BTC"}, nil)
	if !n.Allowed("BTC") {
		t.Error("BTC should pass consider filter")
	}
	if n.Allowed("ETH") {
		t.Error("ETH should be excluded by consider filter")
	}
}

func TestRescalingRoundTrip(t *testing.T) {
	n := New(testCorrections(), nil, nil)

	// For every configured correction: venue-native → canonical → venue-native
	// must return the original values within floating-point tolerance.
	for venue, corrs := range testCorrections() {
		for _, c := range corrs {
			venuePrice := 37.5
			venueAmount := 4.25

			sym, factor, ok := n.Canonical(venue, c.VenueBase, "USDT")
			if !ok {
				t.Fatalf("%s/%s: not allowed", venue, c.VenueBase)
			}
			canonicalPrice := venuePrice * factor
			canonicalAmount := venueAmount / factor

			gotBase, gotAmount, gotPrice := n.ToVenueOrder(venue, sym, canonicalAmount, canonicalPrice)
			if gotBase != c.VenueBase {
				t.Errorf("%s: expected venue base %s, got %s", venue, c.VenueBase, gotBase)
			}
			if math.Abs(gotPrice-venuePrice) > 1e-9*venuePrice {
				t.Errorf("%s/%s: price round-trip %g != %g", venue, c.VenueBase, gotPrice, venuePrice)
			}
			if math.Abs(gotAmount-venueAmount) > 1e-9*venueAmount {
				t.Errorf("%s/%s: amount round-trip %g != %g", venue, c.VenueBase, gotAmount, venueAmount)
			}
		}
	}
}

func TestStandardizeBookPreservesNotional(t *testing.T) {
	n := New(testCorrections(), nil, nil)

	book := domain.OrderBook{
		Venue:  "nobitex",
		Symbol: domain.Symbol{Base: "PEPE", Quote: "USDT"},
		Asks: []domain.PriceLevel{
			{Price: 12.0, Size: 3},
			{Price: 12.5, Size: 1},
		},
	}
	std := n.StandardizeBook("nobitex", book)

	for i, lvl := range std.Asks {
		wantNotional := book.Asks[i].Price * book.Asks[i].Size
		gotNotional := lvl.Price * lvl.Size
		if math.Abs(gotNotional-wantNotional) > 1e-9 {
			t.Errorf("level %d: notional %g != %g", i, gotNotional, wantNotional)
		}
	}
	if std.Asks[0].Price != 12.0*1e-6 {
		t.Errorf("expected corrected price %g, got %g", 12.0*1e-6, std.Asks[0].Price)
	}
}
