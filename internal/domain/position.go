package domain

import "time"

// PositionStatus tracks the lifecycle of a paired position.
// Transitions: opening → open → closing → closed, with closing → open on
// close failure. No transition skips a state.
type PositionStatus string

const (
	PositionStatusOpening PositionStatus = "opening"
	PositionStatusOpen    PositionStatus = "open"
	PositionStatusClosing PositionStatus = "closing"
	PositionStatusClosed  PositionStatus = "closed"
)

// Valid reports whether s is one of the defined lifecycle states.
func (s PositionStatus) Valid() bool {
	switch s {
	case PositionStatusOpening, PositionStatusOpen, PositionStatusClosing, PositionStatusClosed:
		return true
	}
	return false
}

// Position is a paired long-short trade: long Amount of Symbol on BuyVenue,
// short the same amount on SellVenue. It is the only entity with a durable
// lifecycle; the record is persisted once both entry legs fill.
type Position struct {
	ID             string
	Symbol         Symbol
	BuyVenue       Venue
	SellVenue      Venue
	Amount         float64
	EntryBuyPrice  float64
	EntrySellPrice float64
	USDTRate       float64
	Status         PositionStatus
	OpenedAt       time.Time
}

// ClosePrices carries the exit fill data recorded when a position is
// archived to closed storage.
type ClosePrices struct {
	ExitSellPrice float64 // fill from selling the long on BuyVenue
	ExitBuyPrice  float64 // fill from buying back the short on SellVenue
	ReturnPercent float64
	ClosedAt      time.Time
}
