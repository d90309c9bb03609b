package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/TroveFi/yieldrouter/internal/allocator"
	"github.com/TroveFi/yieldrouter/internal/domain"
	"github.com/TroveFi/yieldrouter/internal/notify"
)

// AllocationService wraps the allocator with persistence, auditing, and
// operator notification. Strategy records live in the allocator's in-memory
// registry and are mirrored to the strategy store.
type AllocationService struct {
	alloc      *allocator.Allocator
	strategies domain.StrategyStore
	audit      domain.AuditStore
	bus        domain.SignalBus
	notifier   *notify.Notifier
	logger     *slog.Logger
}

// NewAllocationService creates an AllocationService. Store, audit, bus, and
// notifier may be nil in reduced deployments.
func NewAllocationService(
	alloc *allocator.Allocator,
	strategies domain.StrategyStore,
	audit domain.AuditStore,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *AllocationService {
	return &AllocationService{
		alloc:      alloc,
		strategies: strategies,
		audit:      audit,
		bus:        bus,
		notifier:   notifier,
		logger:     logger.With(slog.String("component", "allocation_service")),
	}
}

// LoadStrategies hydrates the allocator registry from the strategy store at
// startup. Missing store is a no-op.
func (s *AllocationService) LoadStrategies(ctx context.Context, actor string) error {
	if s.strategies == nil {
		return nil
	}
	records, err := s.strategies.List(ctx)
	if err != nil {
		return fmt.Errorf("allocation_service: load strategies: %w", err)
	}
	for _, rec := range records {
		if err := s.alloc.Upsert(actor, rec); err != nil {
			return fmt.Errorf("allocation_service: hydrate %s: %w", rec.ID, err)
		}
	}
	s.logger.InfoContext(ctx, "strategies hydrated", slog.Int("count", len(records)))
	return nil
}

// RegisterStrategy registers or updates a strategy in the allocator and
// mirrors it to the store.
func (s *AllocationService) RegisterStrategy(ctx context.Context, actor string, strat domain.Strategy) error {
	if err := s.alloc.Upsert(actor, strat); err != nil {
		return err
	}
	if s.strategies != nil {
		if err := s.strategies.Upsert(ctx, strat); err != nil {
			return fmt.Errorf("allocation_service: persist strategy %s: %w", strat.ID, err)
		}
	}
	if s.audit != nil {
		_ = s.audit.Log(ctx, "strategy_registered", map[string]any{
			"strategy": strat.ID,
			"domain":   strat.Domain,
			"protocol": strat.Protocol,
			"actor":    actor,
		})
	}
	return nil
}

// SelectOptimal proxies the allocator's single-strategy selection and audits
// the decision. ErrNoEligibleStrategy passes through untouched; it is a
// normal outcome the caller handles by holding capital idle.
func (s *AllocationService) SelectOptimal(ctx context.Context, amount *big.Int, maxRisk uint8, crossDomainAllowed bool, preferredDomain string) (domain.SelectResult, error) {
	res, err := s.alloc.SelectOptimal(amount, maxRisk, crossDomainAllowed, preferredDomain)
	if err != nil {
		return domain.SelectResult{}, err
	}
	if s.audit != nil {
		_ = s.audit.Log(ctx, "strategy_selected", map[string]any{
			"strategy":        res.StrategyID,
			"domain":          res.Domain,
			"expected_return": res.ExpectedReturn.String(),
			"risk":            int(res.RiskScore),
			"requires_bridge": res.RequiresBridge,
		})
	}
	s.logger.InfoContext(ctx, "strategy selected",
		slog.String("strategy", res.StrategyID),
		slog.String("expected_return", res.ExpectedReturn.String()),
		slog.Bool("requires_bridge", res.RequiresBridge),
	)
	return res, nil
}

// PlanAllocation computes a split allocation, records it as the asset's
// current allocation, and publishes the plan for the execution layer.
func (s *AllocationService) PlanAllocation(ctx context.Context, asset string, total *big.Int, maxRisk uint8) (domain.AllocationPlan, error) {
	plan, err := s.alloc.CalculateAllocation(asset, total, maxRisk)
	if err != nil {
		return domain.AllocationPlan{}, err
	}
	s.alloc.RecordAllocation(plan)

	if s.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":      "allocation_planned",
			"asset":      asset,
			"total":      total.String(),
			"strategies": len(plan.Entries),
		})
		if err := s.bus.Publish(ctx, "allocations", evt); err != nil {
			s.logger.WarnContext(ctx, "publish allocation failed", slog.String("error", err.Error()))
		}
	}
	if s.audit != nil {
		entries := make([]map[string]any, 0, len(plan.Entries))
		for _, e := range plan.Entries {
			entries = append(entries, map[string]any{
				"strategy": e.StrategyID,
				"amount":   e.Amount.String(),
			})
		}
		_ = s.audit.Log(ctx, "allocation_planned", map[string]any{
			"asset":   asset,
			"total":   total.String(),
			"entries": entries,
		})
	}
	return plan, nil
}

// CheckRebalance runs the rebalance predicate for an asset and notifies
// operators when a move is worthwhile.
func (s *AllocationService) CheckRebalance(ctx context.Context, asset string) (bool, error) {
	should, err := s.alloc.ShouldRebalance(asset)
	if err != nil {
		return false, err
	}
	if should && s.notifier != nil {
		msg := fmt.Sprintf("allocation for %s trails the best achievable APY beyond threshold", asset)
		if err := s.notifier.Notify(ctx, notify.EventRebalanceSuggested, "Rebalance suggested", msg); err != nil {
			s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}
	return should, nil
}

// Run watches recorded allocations and re-checks the rebalance predicate on
// the given interval until the context is cancelled. Each check that fires
// notifies operators through CheckRebalance.
func (s *AllocationService) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	s.logger.InfoContext(ctx, "rebalance watcher started",
		slog.Duration("interval", interval),
	)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "rebalance watcher stopped")
			return ctx.Err()
		case <-ticker.C:
			for _, asset := range s.alloc.AllocatedAssets() {
				should, err := s.CheckRebalance(ctx, asset)
				if err != nil {
					s.logger.WarnContext(ctx, "rebalance check failed",
						slog.String("asset", asset),
						slog.String("error", err.Error()),
					)
					continue
				}
				if should {
					s.logger.InfoContext(ctx, "rebalance suggested",
						slog.String("asset", asset),
					)
				}
			}
		}
	}
}
