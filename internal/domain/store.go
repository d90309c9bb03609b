package domain

import (
	"context"
	"time"
)

// OpportunityStore persists the winning candidates of scan passes.
// Opportunity rows are immutable history; there is no update path.
type OpportunityStore interface {
	InsertDirect(ctx context.Context, opp Opportunity) error
	InsertTriangular(ctx context.Context, opp TriangularOpportunity) error
	ListRecent(ctx context.Context, limit int) ([]Opportunity, error)
	ListTriangularRecent(ctx context.Context, limit int) ([]TriangularOpportunity, error)
	// ListBefore returns all direct opportunities detected strictly before
	// the cutoff, oldest first. Used by the archiver.
	ListBefore(ctx context.Context, before time.Time) ([]Opportunity, error)
}

// StrategyStore persists registered yield strategies.
type StrategyStore interface {
	Upsert(ctx context.Context, s Strategy) error
	Get(ctx context.Context, id string) (Strategy, error)
	List(ctx context.Context) ([]Strategy, error)
}

// AssessmentStore persists risk assessments keyed by subject.
type AssessmentStore interface {
	Upsert(ctx context.Context, a RiskAssessment) error
	Get(ctx context.Context, subject string) (RiskAssessment, error)
	List(ctx context.Context) ([]RiskAssessment, error)
}

// AuditStore records an append-only audit trail of engine decisions.
type AuditStore interface {
	Log(ctx context.Context, event string, payload map[string]any) error
}
