package pricing

import (
	"math"
	"testing"

	"github.com/quantfarm/crossarb/internal/domain"
)

func level(price, size float64) domain.PriceLevel {
	return domain.PriceLevel{Price: price, Size: size}
}

func TestWalkPartialCrossingLevel(t *testing.T) {
	book := domain.OrderBook{
		Asks: []domain.PriceLevel{level(100, 1), level(101, 2), level(102, 5)},
	}

	res := Cost(book, 201)
	if !res.HasAsk {
		t.Fatal("expected ask side to resolve")
	}
	// Level one fully consumed (cost 100, volume 1), then exactly one unit
	// of level two (cost 101). VWAP = 201 / 2.
	if math.Abs(res.AskVWAP-100.5) > 1e-12 {
		t.Errorf("expected VWAP 100.5, got %v", res.AskVWAP)
	}
}

func TestWalkStopsAtCrossing(t *testing.T) {
	// The third level must never be touched: exact crossing on level two.
	book := domain.OrderBook{
		Asks: []domain.PriceLevel{level(10, 10), level(20, 10), level(1e9, 1)},
	}
	res := Cost(book, 300)
	if !res.HasAsk {
		t.Fatal("expected ask side to resolve")
	}
	// 100 from level one, 200 from level two; volume 10 + 10 = 20.
	if math.Abs(res.AskVWAP-15) > 1e-12 {
		t.Errorf("expected VWAP 15, got %v", res.AskVWAP)
	}
}

func TestWalkInsufficientDepthIsMiss(t *testing.T) {
	book := domain.OrderBook{
		Asks: []domain.PriceLevel{level(100, 1), level(101, 1)},
		Bids: []domain.PriceLevel{level(99, 1)},
	}
	res := Cost(book, 1_000_000)
	if res.HasAsk || res.HasBid || res.HasSpread {
		t.Errorf("expected full miss, got %+v", res)
	}
}

func TestEmptySideIsMissNotZero(t *testing.T) {
	book := domain.OrderBook{
		Asks: []domain.PriceLevel{level(100, 100)},
		Bids: nil,
	}
	res := Cost(book, 500)
	if !res.HasAsk {
		t.Error("ask side should resolve")
	}
	if res.HasBid {
		t.Error("empty bid side must be a miss, not zero proceeds")
	}
	if res.HasSpread {
		t.Error("spread is undefined when one side missed")
	}
}

func TestWalkSkipsDegenerateLevels(t *testing.T) {
	book := domain.OrderBook{
		Asks: []domain.PriceLevel{level(0, 50), level(100, 0), level(100, 10)},
	}
	res := Cost(book, 500)
	if !res.HasAsk {
		t.Fatal("expected ask side to resolve")
	}
	if math.Abs(res.AskVWAP-100) > 1e-12 {
		t.Errorf("expected VWAP 100, got %v", res.AskVWAP)
	}
}

func TestSpread(t *testing.T) {
	book := domain.OrderBook{
		Asks: []domain.PriceLevel{level(101, 10)},
		Bids: []domain.PriceLevel{level(99, 10)},
	}
	res := Cost(book, 300)
	if !res.HasSpread {
		t.Fatal("expected spread to be defined")
	}
	if math.Abs(res.Spread-2) > 1e-12 {
		t.Errorf("expected spread 2, got %v", res.Spread)
	}
}

func TestScale(t *testing.T) {
	res := Result{AskVWAP: 2, BidVWAP: 1.5, Spread: 0.5, HasAsk: true, HasBid: true, HasSpread: true}
	scaled := res.Scale(100_000)
	if scaled.AskVWAP != 200_000 || scaled.BidVWAP != 150_000 || scaled.Spread != 50_000 {
		t.Errorf("unexpected scaled result %+v", scaled)
	}

	miss := Result{}
	if got := miss.Scale(100_000); got != miss {
		t.Errorf("scaling a miss must stay a miss, got %+v", got)
	}
}
