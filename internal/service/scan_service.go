package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/TroveFi/yieldrouter/internal/domain"
	"github.com/TroveFi/yieldrouter/internal/notify"
	"github.com/TroveFi/yieldrouter/internal/pricing"
	"github.com/TroveFi/yieldrouter/internal/scanner"
)

// scanLockKey is the distributed lock key ensuring a single in-flight scan
// pass across replicas.
const scanLockKey = "scan_pass"

// ScanConfig holds the tunable parameters for the scan loop.
type ScanConfig struct {
	Interval    time.Duration
	LockTTL     time.Duration
	MaxPriceAge time.Duration
}

// PassResult summarizes one completed scan pass.
type PassResult struct {
	Direct     *domain.Opportunity           `json:"direct,omitempty"`
	Triangular *domain.TriangularOpportunity `json:"triangular,omitempty"`
	Assets     int                           `json:"assets"`
	StaleSkips int                           `json:"stale_skips"`
	Elapsed    time.Duration                 `json:"elapsed"`
}

// ScanService runs scan passes on a schedule: it snapshots price staleness
// once per pass, runs the direct and triangular scans, persists winning
// opportunities, publishes them on the signal bus, and notifies operators.
type ScanService struct {
	scanner  *scanner.Scanner
	pricing  *pricing.Registry
	store    domain.OpportunityStore
	bus      domain.SignalBus
	locks    domain.LockManager
	audit    domain.AuditStore
	notifier *notify.Notifier
	cfg      ScanConfig
	logger   *slog.Logger
	trigger  chan struct{}
}

// NewScanService creates a ScanService. Store, bus, locks, audit, and
// notifier may be nil in reduced deployments; the pass then skips the
// corresponding side effects.
func NewScanService(
	sc *scanner.Scanner,
	prices *pricing.Registry,
	store domain.OpportunityStore,
	bus domain.SignalBus,
	locks domain.LockManager,
	audit domain.AuditStore,
	notifier *notify.Notifier,
	cfg ScanConfig,
	logger *slog.Logger,
) *ScanService {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * cfg.Interval
	}
	if cfg.MaxPriceAge <= 0 {
		cfg.MaxPriceAge = 5 * time.Minute
	}
	return &ScanService{
		scanner:  sc,
		pricing:  prices,
		store:    store,
		bus:      bus,
		locks:    locks,
		audit:    audit,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "scan_service")),
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger returns the channel a caller sends on to request one out-of-cycle
// scan pass from the running loop.
func (s *ScanService) Trigger() chan<- struct{} {
	return s.trigger
}

// RunPass executes one scan pass. Staleness is evaluated once up front so a
// single pass sees a coherent asset set; registry mutations land on the next
// pass. It returns ErrLockHeld when another replica is scanning.
func (s *ScanService) RunPass(ctx context.Context) (*PassResult, error) {
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, scanLockKey, s.cfg.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("scan_service: acquire lock: %w", err)
		}
		defer unlock()
	}

	start := time.Now()
	assets := s.scanner.Assets()
	fresh := make([]string, 0, len(assets))
	stale := 0
	for _, asset := range assets {
		if s.pricing != nil && s.pricing.IsStale(asset, s.cfg.MaxPriceAge) {
			stale++
			continue
		}
		fresh = append(fresh, asset)
	}
	if stale > 0 {
		s.logger.WarnContext(ctx, "excluding stale assets from pass",
			slog.Int("stale", stale),
			slog.Int("fresh", len(fresh)),
		)
	}

	direct, err := s.scanner.ScanDirect(ctx, fresh)
	if err != nil {
		return nil, fmt.Errorf("scan_service: direct scan: %w", err)
	}
	tri, err := s.scanner.ScanTriangular(ctx, fresh)
	if err != nil {
		return nil, fmt.Errorf("scan_service: triangular scan: %w", err)
	}

	result := &PassResult{
		Direct:     direct,
		Triangular: tri,
		Assets:     len(fresh),
		StaleSkips: stale,
		Elapsed:    time.Since(start),
	}
	if direct != nil {
		s.recordDirect(ctx, direct)
	}
	if tri != nil {
		s.recordTriangular(ctx, tri)
	}
	s.logger.InfoContext(ctx, "scan pass complete",
		slog.Int("assets", result.Assets),
		slog.Int("stale_skips", result.StaleSkips),
		slog.Bool("direct_hit", direct != nil),
		slog.Bool("triangular_hit", tri != nil),
		slog.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

func (s *ScanService) recordDirect(ctx context.Context, opp *domain.Opportunity) {
	if s.store != nil {
		if err := s.store.InsertDirect(ctx, *opp); err != nil {
			s.logger.WarnContext(ctx, "persist opportunity failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":      "opportunity_found",
			"kind":       "direct",
			"opp_id":     opp.ID,
			"token_a":    opp.TokenA,
			"token_b":    opp.TokenB,
			"venue_buy":  opp.VenueBuy,
			"venue_sell": opp.VenueSell,
			"profit":     opp.Profit.String(),
			"score":      opp.Score.String(),
		})
		if err := s.bus.Publish(ctx, "opportunities", evt); err != nil {
			s.logger.WarnContext(ctx, "publish opportunity failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.audit != nil {
		_ = s.audit.Log(ctx, "opportunity_found", map[string]any{
			"opp_id":     opp.ID,
			"kind":       "direct",
			"token_a":    opp.TokenA,
			"token_b":    opp.TokenB,
			"venue_buy":  opp.VenueBuy,
			"venue_sell": opp.VenueSell,
			"profit":     opp.Profit.String(),
		})
	}
	if s.notifier != nil {
		msg := notify.FormatOpportunity(opp)
		if err := s.notifier.Notify(ctx, notify.EventOpportunityFound, "Arbitrage opportunity", msg); err != nil {
			s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}
}

func (s *ScanService) recordTriangular(ctx context.Context, opp *domain.TriangularOpportunity) {
	if s.store != nil {
		if err := s.store.InsertTriangular(ctx, *opp); err != nil {
			s.logger.WarnContext(ctx, "persist triangular opportunity failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":  "opportunity_found",
			"kind":   "triangular",
			"opp_id": opp.ID,
			"cycle":  opp.TokenA + "->" + opp.TokenB + "->" + opp.TokenC,
			"venues": opp.Venues,
			"profit": opp.ExpectedProfit.String(),
			"score":  opp.Score.String(),
		})
		if err := s.bus.Publish(ctx, "opportunities", evt); err != nil {
			s.logger.WarnContext(ctx, "publish triangular opportunity failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.audit != nil {
		_ = s.audit.Log(ctx, "opportunity_found", map[string]any{
			"opp_id": opp.ID,
			"kind":   "triangular",
			"cycle":  opp.TokenA + "->" + opp.TokenB + "->" + opp.TokenC,
			"profit": opp.ExpectedProfit.String(),
		})
	}
	if s.notifier != nil {
		msg := notify.FormatTriangular(opp)
		if err := s.notifier.Notify(ctx, notify.EventTriangularFound, "Triangular opportunity", msg); err != nil {
			s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}
}

// Run executes scan passes on the configured interval until ctx is cancelled.
// A pass that loses the lock race is skipped quietly; a pass that fails on an
// unavailable quote source is logged and retried on the next tick rather than
// partially committed.
func (s *ScanService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scan loop started", slog.Duration("interval", s.cfg.Interval))
	defer s.logger.Info("scan loop stopped")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-s.trigger:
		}
		if _, err := s.RunPass(ctx); err != nil {
			switch {
			case errors.Is(err, domain.ErrLockHeld):
				s.logger.DebugContext(ctx, "scan pass skipped, lock held elsewhere")
			case errors.Is(err, domain.ErrQuoteUnavailable):
				s.logger.WarnContext(ctx, "scan pass aborted, quote source unavailable",
					slog.String("error", err.Error()),
				)
			case errors.Is(err, context.Canceled):
				return err
			default:
				s.logger.ErrorContext(ctx, "scan pass failed", slog.String("error", err.Error()))
			}
		}
	}
}
