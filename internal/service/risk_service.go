package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/TroveFi/yieldrouter/internal/domain"
	"github.com/TroveFi/yieldrouter/internal/notify"
	"github.com/TroveFi/yieldrouter/internal/risk"
)

// RiskService fronts the in-process risk gate with durable assessment
// storage, an audit trail for emergency actions, and operator notification
// when a subject is flagged. The gate stays authoritative for reads; the
// store exists so assessments survive restarts.
type RiskService struct {
	gate        *risk.Gate
	assessments domain.AssessmentStore
	audit       domain.AuditStore
	notifier    *notify.Notifier
	logger      *slog.Logger
}

// NewRiskService creates a RiskService. Assessments, audit, and notifier may
// be nil in reduced deployments.
func NewRiskService(
	gate *risk.Gate,
	assessments domain.AssessmentStore,
	audit domain.AuditStore,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *RiskService {
	return &RiskService{
		gate:        gate,
		assessments: assessments,
		audit:       audit,
		notifier:    notifier,
		logger:      logger.With(slog.String("component", "risk_service")),
	}
}

// LoadAssessments hydrates the gate from the assessment store at startup.
// Rows that no longer pass gate validation are skipped with a warning rather
// than aborting the load.
func (s *RiskService) LoadAssessments(ctx context.Context, actor string) error {
	if s.assessments == nil {
		return nil
	}
	rows, err := s.assessments.List(ctx)
	if err != nil {
		return fmt.Errorf("risk_service: load assessments: %w", err)
	}
	loaded := 0
	for _, a := range rows {
		if err := s.gate.SetAssessment(actor, a); err != nil {
			s.logger.WarnContext(ctx, "risk_service: skipping stored assessment",
				slog.String("subject", a.Subject),
				slog.String("error", err.Error()),
			)
			continue
		}
		loaded++
	}
	s.logger.InfoContext(ctx, "risk_service: assessments loaded",
		slog.Int("loaded", loaded),
		slog.Int("total", len(rows)),
	)
	return nil
}

// SetAssessment records an assessment in the gate and persists it. Storage
// failure after a successful gate write is logged, not returned; the gate is
// the live source of truth.
func (s *RiskService) SetAssessment(ctx context.Context, actor string, a domain.RiskAssessment) error {
	if err := s.gate.SetAssessment(actor, a); err != nil {
		return err
	}
	if s.assessments != nil {
		if err := s.assessments.Upsert(ctx, a); err != nil {
			s.logger.ErrorContext(ctx, "risk_service: persist assessment failed",
				slog.String("subject", a.Subject),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// FlagEmergency marks a subject as an emergency protocol, audits the action,
// and notifies operators.
func (s *RiskService) FlagEmergency(ctx context.Context, actor, subject string) error {
	if err := s.gate.FlagEmergency(actor, subject); err != nil {
		return err
	}
	if s.audit != nil {
		if err := s.audit.Log(ctx, "emergency_flagged", map[string]any{
			"subject": subject,
			"actor":   actor,
		}); err != nil {
			s.logger.WarnContext(ctx, "risk_service: audit log failed",
				slog.String("error", err.Error()),
			)
		}
	}
	if s.notifier != nil {
		msg := fmt.Sprintf("Subject %s flagged as emergency by %s. Allocation to it is blocked.", subject, actor)
		if err := s.notifier.Notify(ctx, notify.EventEmergencyFlagged, "Emergency flagged", msg); err != nil {
			s.logger.WarnContext(ctx, "risk_service: notify failed",
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// ClearEmergency removes a subject's emergency flag and audits the action.
func (s *RiskService) ClearEmergency(ctx context.Context, actor, subject string) error {
	if err := s.gate.ClearEmergency(actor, subject); err != nil {
		return err
	}
	if s.audit != nil {
		if err := s.audit.Log(ctx, "emergency_cleared", map[string]any{
			"subject": subject,
			"actor":   actor,
		}); err != nil {
			s.logger.WarnContext(ctx, "risk_service: audit log failed",
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}
