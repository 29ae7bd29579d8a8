package domain

import "context"

// PositionStore persists the durable copy of positions between cycles.
// The lifecycle manager exclusively owns in-memory positions during a
// monitoring pass; the store owns them the rest of the time.
type PositionStore interface {
	// ListOpen returns every position whose status is open or closing.
	ListOpen(ctx context.Context) ([]Position, error)

	// Insert persists a freshly opened position and returns its ID.
	Insert(ctx context.Context, pos Position) (string, error)

	// UpdateStatus flips a position's lifecycle status. Returns
	// ErrNotFound when no such position exists.
	UpdateStatus(ctx context.Context, id string, status PositionStatus) error

	// Archive moves a position from open storage to the closed archive
	// together with its exit prices. Returns ErrNotFound when no such
	// position exists.
	Archive(ctx context.Context, id string, prices ClosePrices) error
}
