package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrNoLiquidity       = errors.New("no liquidity")
	ErrInsufficientDepth = errors.New("insufficient order book depth")
	ErrUnsupportedVenue  = errors.New("unsupported venue")
	ErrOrderRejected     = errors.New("order rejected")
	ErrVenueUnavailable  = errors.New("venue unavailable")
)

// LegError reports the failure of one leg of a paired trade after retries
// exhausted. It carries enough context for an operator or supervisor to
// react; it must never be reduced to a bare message.
type LegError struct {
	Symbol   Symbol
	Venue    Venue
	Side     OrderSide
	Amount   float64
	FailedAt time.Time
	Err      error
}

func (e *LegError) Error() string {
	return fmt.Sprintf("%s leg for %s on %s (amount %g) failed: %v",
		e.Side, e.Symbol, e.Venue, e.Amount, e.Err)
}

func (e *LegError) Unwrap() error { return e.Err }

// CloseError reports a failed close attempt. The position's status has
// already been rolled back to open so the next monitoring cycle retries.
type CloseError struct {
	PositionID string
	Symbol     Symbol
	BuyVenue   Venue
	SellVenue  Venue
	Amount     float64
	FailedAt   time.Time
	Err        error
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("close of position %s (%s %s/%s, amount %g) failed: %v",
		e.PositionID, e.Symbol, e.BuyVenue, e.SellVenue, e.Amount, e.Err)
}

func (e *CloseError) Unwrap() error { return e.Err }
