package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TroveFi/yieldrouter/internal/domain"
)

// StrategyStore implements domain.StrategyStore using PostgreSQL.
type StrategyStore struct {
	pool *pgxpool.Pool
}

// NewStrategyStore creates a StrategyStore backed by the given pool.
func NewStrategyStore(pool *pgxpool.Pool) *StrategyStore {
	return &StrategyStore{pool: pool}
}

// Upsert inserts or replaces a strategy record.
func (s *StrategyStore) Upsert(ctx context.Context, strat domain.Strategy) error {
	const query = `
		INSERT INTO strategies (
			id, domain, name, protocol, yield_rate_bps, risk_score,
			tvl, max_capacity, min_deposit, active, cross_domain_eligible,
			updated_at, payload
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			domain                = EXCLUDED.domain,
			name                  = EXCLUDED.name,
			protocol              = EXCLUDED.protocol,
			yield_rate_bps        = EXCLUDED.yield_rate_bps,
			risk_score            = EXCLUDED.risk_score,
			tvl                   = EXCLUDED.tvl,
			max_capacity          = EXCLUDED.max_capacity,
			min_deposit           = EXCLUDED.min_deposit,
			active                = EXCLUDED.active,
			cross_domain_eligible = EXCLUDED.cross_domain_eligible,
			updated_at            = EXCLUDED.updated_at,
			payload               = EXCLUDED.payload`

	_, err := s.pool.Exec(ctx, query,
		strat.ID, strat.Domain, strat.Name, strat.Protocol,
		int64(strat.YieldRateBps), int16(strat.RiskScore),
		numeric(strat.TVL), numeric(strat.MaxCapacity), numeric(strat.MinDeposit),
		strat.Active, strat.CrossDomainEligible, strat.UpdatedAt, strat.Payload,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert strategy %s: %w", strat.ID, err)
	}
	return nil
}

const strategySelectCols = `id, domain, name, protocol, yield_rate_bps, risk_score,
	tvl, max_capacity, min_deposit, active, cross_domain_eligible, updated_at, payload`

func scanStrategy(row pgx.Row) (domain.Strategy, error) {
	var (
		strat                      domain.Strategy
		yieldBps                   int64
		riskScore                  int16
		tvl, maxCapacity, minDep   string
	)
	if err := row.Scan(
		&strat.ID, &strat.Domain, &strat.Name, &strat.Protocol,
		&yieldBps, &riskScore, &tvl, &maxCapacity, &minDep,
		&strat.Active, &strat.CrossDomainEligible, &strat.UpdatedAt, &strat.Payload,
	); err != nil {
		return domain.Strategy{}, err
	}
	strat.YieldRateBps = uint64(yieldBps)
	strat.RiskScore = uint8(riskScore)
	var err error
	if strat.TVL, err = parseNumeric(tvl); err != nil {
		return domain.Strategy{}, err
	}
	if strat.MaxCapacity, err = parseNumeric(maxCapacity); err != nil {
		return domain.Strategy{}, err
	}
	if strat.MinDeposit, err = parseNumeric(minDep); err != nil {
		return domain.Strategy{}, err
	}
	return strat, nil
}

// Get returns a strategy by id, or domain.ErrNotFound.
func (s *StrategyStore) Get(ctx context.Context, id string) (domain.Strategy, error) {
	query := `SELECT ` + strategySelectCols + ` FROM strategies WHERE id = $1`
	strat, err := scanStrategy(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Strategy{}, domain.ErrNotFound
		}
		return domain.Strategy{}, fmt.Errorf("postgres: get strategy %s: %w", id, err)
	}
	return strat, nil
}

// List returns all strategy records ordered by id.
func (s *StrategyStore) List(ctx context.Context) ([]domain.Strategy, error) {
	query := `SELECT ` + strategySelectCols + ` FROM strategies ORDER BY id`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list strategies: %w", err)
	}
	defer rows.Close()

	var out []domain.Strategy
	for rows.Next() {
		strat, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan strategy: %w", err)
		}
		out = append(out, strat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate strategies: %w", err)
	}
	return out, nil
}
