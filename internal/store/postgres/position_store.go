package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfarm/crossarb/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. Open and
// closing positions live in the positions table; Archive moves a row to
// closed_positions in one transaction.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionCols = `id, symbol, buy_venue, sell_venue, amount,
	entry_buy_price, entry_sell_price, usdt_rate, status, opened_at`

func scanPositions(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		var symbol, buyVenue, sellVenue, status string

		if err := rows.Scan(
			&p.ID, &symbol, &buyVenue, &sellVenue, &p.Amount,
			&p.EntryBuyPrice, &p.EntrySellPrice, &p.USDTRate,
			&status, &p.OpenedAt,
		); err != nil {
			return nil, err
		}

		sym, err := domain.ParseSymbol(symbol)
		if err != nil {
			return nil, fmt.Errorf("row %s: %w", p.ID, err)
		}
		p.Symbol = sym
		p.BuyVenue = domain.Venue(buyVenue)
		p.SellVenue = domain.Venue(sellVenue)
		p.Status = domain.PositionStatus(status)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// ListOpen returns every position whose status is open or closing, oldest
// first so long-lived positions are monitored before fresh ones.
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionCols+` FROM positions
		 WHERE status IN ('open', 'closing')
		 ORDER BY opened_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}

// Insert persists a freshly opened position. A missing ID is assigned here.
func (s *PositionStore) Insert(ctx context.Context, p domain.Position) (string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	const query = `
		INSERT INTO positions (
			id, symbol, buy_venue, sell_venue, amount,
			entry_buy_price, entry_sell_price, usdt_rate, status, opened_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Symbol.String(), string(p.BuyVenue), string(p.SellVenue), p.Amount,
		p.EntryBuyPrice, p.EntrySellPrice, p.USDTRate,
		string(p.Status), p.OpenedAt,
	)
	if err != nil {
		return "", fmt.Errorf("postgres: insert position %s: %w", p.ID, err)
	}
	return p.ID, nil
}

// UpdateStatus flips a position's lifecycle status.
func (s *PositionStore) UpdateStatus(ctx context.Context, id string, status domain.PositionStatus) error {
	const query = `
		UPDATE positions SET
			status     = $2,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update position %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Archive moves a position into closed_positions together with its exit
// prices and deletes the open row, all in one transaction.
func (s *PositionStore) Archive(ctx context.Context, id string, prices domain.ClosePrices) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin archive %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertQuery = `
		INSERT INTO closed_positions (
			id, symbol, buy_venue, sell_venue, amount,
			entry_buy_price, entry_sell_price, usdt_rate,
			exit_sell_price, exit_buy_price, return_percent,
			opened_at, closed_at
		)
		SELECT id, symbol, buy_venue, sell_venue, amount,
			entry_buy_price, entry_sell_price, usdt_rate,
			$2, $3, $4, opened_at, $5
		FROM positions WHERE id = $1`

	tag, err := tx.Exec(ctx, insertQuery, id,
		prices.ExitSellPrice, prices.ExitBuyPrice, prices.ReturnPercent, prices.ClosedAt)
	if err != nil {
		return fmt.Errorf("postgres: archive position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM positions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete archived position %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit archive %s: %w", id, err)
	}
	return nil
}

// GetByID retrieves a single open or closing position.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionCols+` FROM positions WHERE id = $1`, id)
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: scan position %s: %w", id, err)
	}
	if len(positions) == 0 {
		return domain.Position{}, domain.ErrNotFound
	}
	return positions[0], nil
}
