package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditStore implements domain.AuditStore using PostgreSQL. Rows are
// append-only.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates an AuditStore backed by the given pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Log appends one audit event with a JSON payload.
func (s *AuditStore) Log(ctx context.Context, event string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("postgres: marshal audit payload for %s: %w", event, err)
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (event, payload) VALUES ($1, $2)`,
		event, body,
	); err != nil {
		return fmt.Errorf("postgres: insert audit event %s: %w", event, err)
	}
	return nil
}
