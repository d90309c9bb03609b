// Package risk holds risk assessments for protocols and strategies and
// answers approval queries for the allocator. Assessments carry their own
// expiry; the gate applies the expiry rule on every read rather than trusting
// the stored validity flag, since the upstream risk data source may be stale.
package risk

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/TroveFi/yieldrouter/internal/auth"
	"github.com/TroveFi/yieldrouter/internal/domain"
)

// DefaultAssessmentTTL is applied when an assessment arrives without an
// explicit expiry.
const DefaultAssessmentTTL = 24 * time.Hour

// Gate stores assessments and the emergency set. An emergency flag
// short-circuits every other check and permanently excludes the subject
// until explicitly cleared.
type Gate struct {
	mu          sync.RWMutex
	assessments map[string]domain.RiskAssessment
	emergency   map[string]bool
	authz       *auth.Table
	logger      *slog.Logger
	now         func() time.Time
}

// NewGate creates an empty risk gate.
func NewGate(authz *auth.Table, logger *slog.Logger) *Gate {
	return &Gate{
		assessments: make(map[string]domain.RiskAssessment),
		emergency:   make(map[string]bool),
		authz:       authz,
		logger:      logger.With(slog.String("component", "risk_gate")),
		now:         time.Now,
	}
}

// HashData returns the keccak-256 content hash recorded alongside an
// assessment so downstream consumers can verify the underlying data set.
func HashData(data []byte) [32]byte {
	var out [32]byte
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	copy(out[:], h.Sum(nil))
	return out
}

// SetAssessment records or replaces the assessment for a subject. A zero
// expiry gets DefaultAssessmentTTL from the assessment timestamp; a zero
// timestamp gets the current time. Scores must be in 1..10.
func (g *Gate) SetAssessment(actor string, a domain.RiskAssessment) error {
	if !g.authz.Allowed(actor, auth.CapRiskWrite) {
		return fmt.Errorf("risk: set assessment %s by %q: %w", a.Subject, actor, domain.ErrUnauthorized)
	}
	if a.Subject == "" || a.Score == 0 || a.Score > 10 {
		return fmt.Errorf("risk: set assessment %s: %w", a.Subject, domain.ErrInvalidParameter)
	}
	if a.AssessedAt.IsZero() {
		a.AssessedAt = g.now()
	}
	if a.ExpiresAt.IsZero() {
		a.ExpiresAt = a.AssessedAt.Add(DefaultAssessmentTTL)
	}
	if a.Tier == "" {
		a.Tier = domain.TierForScore(a.Score)
	}
	a.Valid = true

	g.mu.Lock()
	defer g.mu.Unlock()
	g.assessments[a.Subject] = a
	g.logger.Info("assessment recorded",
		slog.String("subject", a.Subject),
		slog.Int("score", int(a.Score)),
		slog.String("tier", a.Tier),
		slog.String("assessor", a.Assessor),
	)
	return nil
}

// Assess returns the current assessment for a subject. It returns
// ErrNotAssessed when none exists and ErrStaleData when the stored one is
// past expiry; it never fabricates a score.
func (g *Gate) Assess(subject string) (domain.RiskAssessment, error) {
	g.mu.RLock()
	a, ok := g.assessments[subject]
	g.mu.RUnlock()
	if !ok {
		return domain.RiskAssessment{}, fmt.Errorf("risk: assess %s: %w", subject, domain.ErrNotAssessed)
	}
	if a.Expired(g.now()) || !a.Valid {
		return domain.RiskAssessment{}, fmt.Errorf("risk: assess %s: %w", subject, domain.ErrStaleData)
	}
	return a, nil
}

// FlagEmergency marks a subject as an emergency protocol. Emergency subjects
// are never approved regardless of score or expiry state.
func (g *Gate) FlagEmergency(actor, subject string) error {
	if !g.authz.Allowed(actor, auth.CapRiskWrite) {
		return fmt.Errorf("risk: flag emergency %s by %q: %w", subject, actor, domain.ErrUnauthorized)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.emergency[subject] = true
	g.logger.Warn("subject flagged as emergency", slog.String("subject", subject))
	return nil
}

// ClearEmergency removes the emergency flag from a subject.
func (g *Gate) ClearEmergency(actor, subject string) error {
	if !g.authz.Allowed(actor, auth.CapRiskWrite) {
		return fmt.Errorf("risk: clear emergency %s by %q: %w", subject, actor, domain.ErrUnauthorized)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.emergency, subject)
	g.logger.Info("emergency flag cleared", slog.String("subject", subject))
	return nil
}

// IsEmergency reports whether a subject carries the emergency flag.
func (g *Gate) IsEmergency(subject string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.emergency[subject]
}

// IsApproved reports whether a subject may receive capital under the given
// risk tolerance. The emergency flag short-circuits all other checks; an
// expired or missing assessment is never approved.
func (g *Gate) IsApproved(subject string, maxRiskTolerance uint8) bool {
	if g.IsEmergency(subject) {
		return false
	}
	a, err := g.Assess(subject)
	if err != nil {
		return false
	}
	return a.Score <= maxRiskTolerance
}

// List returns all stored assessments, including expired ones.
func (g *Gate) List() []domain.RiskAssessment {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]domain.RiskAssessment, 0, len(g.assessments))
	for _, a := range g.assessments {
		out = append(out, a)
	}
	return out
}
