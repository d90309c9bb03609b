package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TroveFi/yieldrouter/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates an OpportunityStore backed by the given pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const oppSelectCols = `id, token_a, token_b, venue_buy, venue_sell,
	profit, amount_in, gas_cost, score, valid, flash_loan, detected_at, route_payload`

// InsertDirect stores a direct opportunity row.
func (s *OpportunityStore) InsertDirect(ctx context.Context, opp domain.Opportunity) error {
	const query = `
		INSERT INTO opportunities (
			id, token_a, token_b, venue_buy, venue_sell,
			profit, amount_in, gas_cost, score, valid, flash_loan,
			detected_at, route_payload
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	_, err := s.pool.Exec(ctx, query,
		opp.ID, opp.TokenA, opp.TokenB, opp.VenueBuy, opp.VenueSell,
		numeric(opp.Profit), numeric(opp.AmountIn), numeric(opp.GasCost), numeric(opp.Score),
		opp.Valid, opp.RequiresFlashLoan, opp.DetectedAt, opp.RoutePayload,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// InsertTriangular stores a triangular opportunity row.
func (s *OpportunityStore) InsertTriangular(ctx context.Context, opp domain.TriangularOpportunity) error {
	const query = `
		INSERT INTO triangular_opportunities (
			id, token_a, token_b, token_c, venues,
			expected_profit, min_amount_in, gas_cost, score, valid, detected_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

	_, err := s.pool.Exec(ctx, query,
		opp.ID, opp.TokenA, opp.TokenB, opp.TokenC, opp.Venues,
		numeric(opp.ExpectedProfit), numeric(opp.MinAmountIn), numeric(opp.GasCost), numeric(opp.Score),
		opp.Valid, opp.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert triangular opportunity %s: %w", opp.ID, err)
	}
	return nil
}

func scanOpportunity(row pgx.Row) (domain.Opportunity, error) {
	var opp domain.Opportunity
	var profit, amountIn, gasCost, score string
	if err := row.Scan(
		&opp.ID, &opp.TokenA, &opp.TokenB, &opp.VenueBuy, &opp.VenueSell,
		&profit, &amountIn, &gasCost, &score,
		&opp.Valid, &opp.RequiresFlashLoan, &opp.DetectedAt, &opp.RoutePayload,
	); err != nil {
		return domain.Opportunity{}, err
	}
	var err error
	if opp.Profit, err = parseNumeric(profit); err != nil {
		return domain.Opportunity{}, err
	}
	if opp.AmountIn, err = parseNumeric(amountIn); err != nil {
		return domain.Opportunity{}, err
	}
	if opp.GasCost, err = parseNumeric(gasCost); err != nil {
		return domain.Opportunity{}, err
	}
	if opp.Score, err = parseNumeric(score); err != nil {
		return domain.Opportunity{}, err
	}
	return opp, nil
}

func (s *OpportunityStore) listDirect(ctx context.Context, query string, args ...any) ([]domain.Opportunity, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()

	var opps []domain.Opportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate opportunities: %w", err)
	}
	return opps, nil
}

// ListRecent returns the most recent direct opportunities, newest first.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	query := `SELECT ` + oppSelectCols + ` FROM opportunities ORDER BY detected_at DESC`
	if limit > 0 {
		return s.listDirect(ctx, query+` LIMIT $1`, limit)
	}
	return s.listDirect(ctx, query)
}

// ListBefore returns direct opportunities detected strictly before the
// cutoff, oldest first.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error) {
	query := `SELECT ` + oppSelectCols + ` FROM opportunities WHERE detected_at < $1 ORDER BY detected_at ASC`
	return s.listDirect(ctx, query, before)
}

// ListTriangularRecent returns the most recent triangular opportunities,
// newest first.
func (s *OpportunityStore) ListTriangularRecent(ctx context.Context, limit int) ([]domain.TriangularOpportunity, error) {
	query := `
		SELECT id, token_a, token_b, token_c, venues,
		       expected_profit, min_amount_in, gas_cost, score, valid, detected_at
		FROM triangular_opportunities ORDER BY detected_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list triangular opportunities: %w", err)
	}
	defer rows.Close()

	var opps []domain.TriangularOpportunity
	for rows.Next() {
		var opp domain.TriangularOpportunity
		var profit, minAmountIn, gasCost, score string
		if err := rows.Scan(
			&opp.ID, &opp.TokenA, &opp.TokenB, &opp.TokenC, &opp.Venues,
			&profit, &minAmountIn, &gasCost, &score, &opp.Valid, &opp.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan triangular opportunity: %w", err)
		}
		if opp.ExpectedProfit, err = parseNumeric(profit); err != nil {
			return nil, err
		}
		if opp.MinAmountIn, err = parseNumeric(minAmountIn); err != nil {
			return nil, err
		}
		if opp.GasCost, err = parseNumeric(gasCost); err != nil {
			return nil, err
		}
		if opp.Score, err = parseNumeric(score); err != nil {
			return nil, err
		}
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate triangular opportunities: %w", err)
	}
	return opps, nil
}
