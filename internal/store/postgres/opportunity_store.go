package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Jonathan-Vandenberg/arbot/internal/domain"
)

// fkViolation is the PostgreSQL error code for foreign_key_violation.
const fkViolation = "23503"

// OpportunityStore implements domain.OpportunityStore. Appends that hit a
// missing exchange row upsert the referenced venues from the descriptor set
// and retry once.
type OpportunityStore struct {
	pool   *pgxpool.Pool
	venues map[string]domain.VenueDescriptor
}

// NewOpportunityStore creates a store backed by the given pool. venues
// provides the (ws_url, rest_url) defaults for the upsert-and-retry path.
func NewOpportunityStore(pool *pgxpool.Pool, venues map[string]domain.VenueDescriptor) *OpportunityStore {
	return &OpportunityStore{pool: pool, venues: venues}
}

const opportunityCols = `id, symbol, buy_exchange, sell_exchange,
	buy_price, sell_price, spread, spread_percent, estimated_profit,
	buy_fee, sell_fee, total_fee, timestamp`

// Append inserts one opportunity row.
func (s *OpportunityStore) Append(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	if err := s.insert(ctx, opp); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == fkViolation {
			if upErr := s.ensureVenues(ctx, opp.BuyVenue, opp.SellVenue); upErr != nil {
				return fmt.Errorf("postgres: ensure venues: %w", upErr)
			}
			if err := s.insert(ctx, opp); err != nil {
				return fmt.Errorf("postgres: append opportunity %s (retry): %w", opp.ID, err)
			}
			return nil
		}
		return fmt.Errorf("postgres: append opportunity %s: %w", opp.ID, err)
	}
	return nil
}

func (s *OpportunityStore) insert(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	const query = `
		INSERT INTO opportunities (
			id, symbol, buy_exchange, sell_exchange,
			buy_price, sell_price, spread, spread_percent, estimated_profit,
			buy_fee, sell_fee, total_fee, timestamp
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11, $12, $13
		)`

	_, err := s.pool.Exec(ctx, query,
		opp.ID, opp.Symbol, opp.BuyVenue, opp.SellVenue,
		opp.BuyPrice, opp.SellPrice, opp.Spread, opp.SpreadPercent, opp.EstimatedProfit,
		opp.BuyFee, opp.SellFee, opp.TotalFee, opp.DetectedAt,
	)
	return err
}

// ensureVenues upserts the referenced exchange rows with their endpoint
// defaults.
func (s *OpportunityStore) ensureVenues(ctx context.Context, names ...string) error {
	const query = `
		INSERT INTO exchanges (name, ws_url, rest_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO NOTHING`

	for _, name := range names {
		desc := s.venues[name]
		if _, err := s.pool.Exec(ctx, query, name, desc.WsURL, desc.RestURL); err != nil {
			return fmt.Errorf("postgres: upsert exchange %s: %w", name, err)
		}
	}
	return nil
}

// PruneTo deletes all but the newest keep rows by detection time.
func (s *OpportunityStore) PruneTo(ctx context.Context, keep int) error {
	if keep <= 0 {
		return nil
	}
	const query = `
		DELETE FROM opportunities
		WHERE id NOT IN (
			SELECT id FROM opportunities
			ORDER BY timestamp DESC
			LIMIT $1
		)`
	if _, err := s.pool.Exec(ctx, query, keep); err != nil {
		return fmt.Errorf("postgres: prune opportunities: %w", err)
	}
	return nil
}

// Count returns the total number of stored opportunities.
func (s *OpportunityStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM opportunities").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count opportunities: %w", err)
	}
	return count, nil
}

// Latest returns the n most recent opportunities by detection time.
func (s *OpportunityStore) Latest(ctx context.Context, n int) ([]domain.ArbitrageOpportunity, error) {
	query := `SELECT ` + opportunityCols + ` FROM opportunities ORDER BY timestamp DESC`
	args := []any{}
	if n > 0 {
		query += " LIMIT $1"
		args = append(args, n)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: latest opportunities: %w", err)
	}
	defer rows.Close()

	var opps []domain.ArbitrageOpportunity
	for rows.Next() {
		var opp domain.ArbitrageOpportunity
		if err := rows.Scan(
			&opp.ID, &opp.Symbol, &opp.BuyVenue, &opp.SellVenue,
			&opp.BuyPrice, &opp.SellPrice, &opp.Spread, &opp.SpreadPercent, &opp.EstimatedProfit,
			&opp.BuyFee, &opp.SellFee, &opp.TotalFee, &opp.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: latest opportunities rows: %w", err)
	}
	return opps, nil
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
