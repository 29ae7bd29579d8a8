// Package memory provides an in-process PositionStore used in scan mode
// and in tests, where trades must not touch durable storage.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/quantfarm/crossarb/internal/domain"
)

// ClosedPosition pairs an archived position with its exit prices.
type ClosedPosition struct {
	Position domain.Position
	Prices   domain.ClosePrices
}

// PositionStore implements domain.PositionStore with maps. Safe for
// concurrent use.
type PositionStore struct {
	mu     sync.Mutex
	open   map[string]domain.Position
	closed []ClosedPosition
}

// NewPositionStore creates an empty store.
func NewPositionStore() *PositionStore {
	return &PositionStore{open: make(map[string]domain.Position)}
}

// ListOpen returns every open or closing position.
func (s *PositionStore) ListOpen(_ context.Context) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Position, 0, len(s.open))
	for _, p := range s.open {
		if p.Status == domain.PositionStatusOpen || p.Status == domain.PositionStatusClosing {
			out = append(out, p)
		}
	}
	return out, nil
}

// Insert stores a freshly opened position, assigning an ID when missing.
func (s *PositionStore) Insert(_ context.Context, p domain.Position) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.open[p.ID] = p
	return p.ID, nil
}

// UpdateStatus flips a position's lifecycle status.
func (s *PositionStore) UpdateStatus(_ context.Context, id string, status domain.PositionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.open[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Status = status
	s.open[id] = p
	return nil
}

// Archive moves a position into the closed list with its exit prices.
func (s *PositionStore) Archive(_ context.Context, id string, prices domain.ClosePrices) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.open[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(s.open, id)
	p.Status = domain.PositionStatusClosed
	s.closed = append(s.closed, ClosedPosition{Position: p, Prices: prices})
	return nil
}

// Closed returns a copy of the archived positions.
func (s *PositionStore) Closed() []ClosedPosition {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ClosedPosition, len(s.closed))
	copy(out, s.closed)
	return out
}
