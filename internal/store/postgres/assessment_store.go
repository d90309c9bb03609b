package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TroveFi/yieldrouter/internal/domain"
)

// AssessmentStore implements domain.AssessmentStore using PostgreSQL.
type AssessmentStore struct {
	pool *pgxpool.Pool
}

// NewAssessmentStore creates an AssessmentStore backed by the given pool.
func NewAssessmentStore(pool *pgxpool.Pool) *AssessmentStore {
	return &AssessmentStore{pool: pool}
}

// Upsert inserts or replaces the assessment for a subject.
func (s *AssessmentStore) Upsert(ctx context.Context, a domain.RiskAssessment) error {
	const query = `
		INSERT INTO risk_assessments (
			subject, score, confidence, tier, assessed_at, assessor,
			data_hash, valid, expires_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (subject) DO UPDATE SET
			score       = EXCLUDED.score,
			confidence  = EXCLUDED.confidence,
			tier        = EXCLUDED.tier,
			assessed_at = EXCLUDED.assessed_at,
			assessor    = EXCLUDED.assessor,
			data_hash   = EXCLUDED.data_hash,
			valid       = EXCLUDED.valid,
			expires_at  = EXCLUDED.expires_at`

	_, err := s.pool.Exec(ctx, query,
		a.Subject, int16(a.Score), int16(a.Confidence), a.Tier,
		a.AssessedAt, a.Assessor, a.DataHash[:], a.Valid, a.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert assessment %s: %w", a.Subject, err)
	}
	return nil
}

const assessmentSelectCols = `subject, score, confidence, tier, assessed_at,
	assessor, data_hash, valid, expires_at`

func scanAssessment(row pgx.Row) (domain.RiskAssessment, error) {
	var (
		a                 domain.RiskAssessment
		score, confidence int16
		hash              []byte
	)
	if err := row.Scan(
		&a.Subject, &score, &confidence, &a.Tier, &a.AssessedAt,
		&a.Assessor, &hash, &a.Valid, &a.ExpiresAt,
	); err != nil {
		return domain.RiskAssessment{}, err
	}
	a.Score = uint8(score)
	a.Confidence = uint8(confidence)
	copy(a.DataHash[:], hash)
	return a, nil
}

// Get returns the assessment for a subject, or domain.ErrNotFound.
func (s *AssessmentStore) Get(ctx context.Context, subject string) (domain.RiskAssessment, error) {
	query := `SELECT ` + assessmentSelectCols + ` FROM risk_assessments WHERE subject = $1`
	a, err := scanAssessment(s.pool.QueryRow(ctx, query, subject))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RiskAssessment{}, domain.ErrNotFound
		}
		return domain.RiskAssessment{}, fmt.Errorf("postgres: get assessment %s: %w", subject, err)
	}
	return a, nil
}

// List returns all stored assessments ordered by subject.
func (s *AssessmentStore) List(ctx context.Context) ([]domain.RiskAssessment, error) {
	query := `SELECT ` + assessmentSelectCols + ` FROM risk_assessments ORDER BY subject`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list assessments: %w", err)
	}
	defer rows.Close()

	var out []domain.RiskAssessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan assessment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate assessments: %w", err)
	}
	return out, nil
}
