package domain

// OrderSide indicates whether an order buys or sells the base asset.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the opposing side, used when unwinding a stray leg.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderType is the execution style requested from a venue.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderRequest describes one leg to be placed on a venue. Price is the
// limit price for limit orders and advisory for market orders. Values are
// canonical; venue-native rescaling happens inside the gateway.
type OrderRequest struct {
	Venue  Venue
	Symbol Symbol
	Side   OrderSide
	Amount float64
	Price  float64
	Type   OrderType
}

// OrderResult is a venue's answer to an order placement.
type OrderResult struct {
	OrderID      string
	Filled       bool
	AveragePrice float64 // 0 when the venue omits the fill average
}

// Precision holds the price and amount quantization for a symbol on a venue.
// Both are step sizes (e.g. 0.0001), not decimal counts.
type Precision struct {
	Price  float64
	Amount float64
}
