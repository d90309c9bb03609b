// Package allocator selects yield strategies for incoming capital under a
// risk ceiling and capacity limits, and produces risk-weighted split
// allocations across the registered strategy set.
package allocator

import (
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/TroveFi/yieldrouter/internal/auth"
	"github.com/TroveFi/yieldrouter/internal/domain"
)

const bpsDenominator = 10_000

// Approver answers risk approval queries. Satisfied by *risk.Gate.
type Approver interface {
	IsApproved(subject string, maxRiskTolerance uint8) bool
}

// Config holds allocator parameters.
type Config struct {
	// LocalDomain is the execution domain the caller originates from;
	// strategies elsewhere require a bridge step.
	LocalDomain string
	// RebalanceThresholdBps is the minimum APY improvement before
	// ShouldRebalance recommends moving capital.
	RebalanceThresholdBps uint64
	// DefaultMaxRisk is the tolerance applied by ShouldRebalance when
	// surveying achievable yields.
	DefaultMaxRisk uint8
}

// Allocator holds the strategy registry and current allocations per asset.
type Allocator struct {
	mu          sync.RWMutex
	strategies  map[string]domain.Strategy
	order       []string // stable iteration order (registration order)
	allocations map[string]domain.AllocationPlan

	gate   Approver
	authz  *auth.Table
	cfg    Config
	logger *slog.Logger
}

// New creates an empty allocator.
func New(gate Approver, authz *auth.Table, cfg Config, logger *slog.Logger) *Allocator {
	if cfg.DefaultMaxRisk == 0 {
		cfg.DefaultMaxRisk = 10
	}
	return &Allocator{
		strategies:  make(map[string]domain.Strategy),
		allocations: make(map[string]domain.AllocationPlan),
		gate:        gate,
		authz:       authz,
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "allocator")),
	}
}

// Upsert registers a strategy or replaces an existing record.
func (a *Allocator) Upsert(actor string, s domain.Strategy) error {
	if !a.authz.Allowed(actor, auth.CapStrategyWrite) {
		return fmt.Errorf("allocator: upsert %s by %q: %w", s.ID, actor, domain.ErrUnauthorized)
	}
	if s.ID == "" || s.MaxCapacity == nil || s.MaxCapacity.Sign() <= 0 {
		return fmt.Errorf("allocator: upsert %s: %w", s.ID, domain.ErrInvalidParameter)
	}
	if s.RiskScore == 0 || s.RiskScore > 10 {
		return fmt.Errorf("allocator: upsert %s: risk score %d: %w", s.ID, s.RiskScore, domain.ErrInvalidParameter)
	}
	s = s.Clone()
	if s.TVL == nil {
		s.TVL = new(big.Int)
	}
	if s.MinDeposit == nil {
		s.MinDeposit = new(big.Int)
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.strategies[s.ID]; !ok {
		a.order = append(a.order, s.ID)
	}
	a.strategies[s.ID] = s
	a.logger.Info("strategy registered",
		slog.String("strategy", s.ID),
		slog.String("domain", s.Domain),
		slog.Uint64("yield_bps", s.YieldRateBps),
		slog.Int("risk", int(s.RiskScore)),
	)
	return nil
}

// Get returns a strategy record by id.
func (a *Allocator) Get(id string) (domain.Strategy, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.strategies[id]
	if !ok {
		return domain.Strategy{}, fmt.Errorf("allocator: get %s: %w", id, domain.ErrUnknownStrategy)
	}
	return s.Clone(), nil
}

// List returns all registered strategies in registration order.
func (a *Allocator) List() []domain.Strategy {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]domain.Strategy, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.strategies[id].Clone())
	}
	return out
}

// snapshot returns strategies in registration order under the read lock.
func (a *Allocator) snapshot() []domain.Strategy {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]domain.Strategy, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.strategies[id].Clone())
	}
	return out
}

// eligible applies the common selection filters: active, risk-approved under
// the tolerance, positive headroom, and the cross-domain routing rules.
func (a *Allocator) eligible(s domain.Strategy, maxRisk uint8, crossDomainAllowed bool) bool {
	if !s.Active {
		return false
	}
	if s.RiskScore > maxRisk {
		return false
	}
	if !a.gate.IsApproved(s.ID, maxRisk) {
		return false
	}
	if s.Headroom().Sign() == 0 {
		return false
	}
	if s.Domain != a.cfg.LocalDomain {
		if !crossDomainAllowed || !s.CrossDomainEligible {
			return false
		}
	}
	return true
}

// expectedReturn is the strategy's yield rate weighted by the headroom it can
// actually absorb: min(headroom, amount) * yieldBps / 10000.
func expectedReturn(s domain.Strategy, amount *big.Int) *big.Int {
	effective := s.Headroom()
	if effective.Cmp(amount) > 0 {
		effective.Set(amount)
	}
	ret := new(big.Int).Mul(effective, new(big.Int).SetUint64(s.YieldRateBps))
	return ret.Quo(ret, big.NewInt(bpsDenominator))
}

// SelectOptimal picks the single strategy maximizing expected return for the
// given amount under the risk tolerance. When crossDomainAllowed is false,
// strategies outside the local domain are excluded entirely. On equal
// expected return a strategy in preferredDomain beats one outside it; the
// local domain wins ties when no preference is given.
//
// ErrNoEligibleStrategy is a normal outcome: the caller holds capital idle.
func (a *Allocator) SelectOptimal(amount *big.Int, maxRisk uint8, crossDomainAllowed bool, preferredDomain string) (domain.SelectResult, error) {
	if amount == nil || amount.Sign() <= 0 {
		return domain.SelectResult{}, fmt.Errorf("allocator: select: %w", domain.ErrInvalidParameter)
	}
	if preferredDomain == "" {
		preferredDomain = a.cfg.LocalDomain
	}

	var (
		best       *domain.Strategy
		bestReturn *big.Int
	)
	for _, s := range a.snapshot() {
		s := s
		if !a.eligible(s, maxRisk, crossDomainAllowed) {
			continue
		}
		if s.MinDeposit != nil && amount.Cmp(s.MinDeposit) < 0 {
			continue
		}
		ret := expectedReturn(s, amount)
		if best == nil || ret.Cmp(bestReturn) > 0 {
			best, bestReturn = &s, ret
			continue
		}
		// Tie-break: a preferred-domain strategy displaces an
		// equally-scoring one from another domain.
		if ret.Cmp(bestReturn) == 0 && s.Domain == preferredDomain && best.Domain != preferredDomain {
			best, bestReturn = &s, ret
		}
	}
	if best == nil {
		return domain.SelectResult{}, fmt.Errorf("allocator: select: %w", domain.ErrNoEligibleStrategy)
	}

	return domain.SelectResult{
		StrategyID:     best.ID,
		Domain:         best.Domain,
		ExpectedReturn: bestReturn,
		RiskScore:      best.RiskScore,
		RequiresBridge: best.Domain != a.cfg.LocalDomain,
	}, nil
}

// CalculateAllocation splits total across eligible strategies proportionally
// to available headroom and inversely to risk, capping each share at the
// strategy's remaining capacity. The full total is always distributed; when
// aggregate headroom cannot absorb it the call fails with
// ErrInsufficientCapacity.
func (a *Allocator) CalculateAllocation(asset string, total *big.Int, maxRisk uint8) (domain.AllocationPlan, error) {
	if total == nil || total.Sign() <= 0 {
		return domain.AllocationPlan{}, fmt.Errorf("allocator: allocate %s: %w", asset, domain.ErrInvalidParameter)
	}

	type slot struct {
		s        domain.Strategy
		headroom *big.Int
		weight   *big.Int
		amount   *big.Int
	}
	var (
		slots       []*slot
		sumHeadroom = new(big.Int)
		sumWeight   = new(big.Int)
	)
	for _, s := range a.snapshot() {
		if !a.eligible(s, maxRisk, true) {
			continue
		}
		h := s.Headroom()
		// weight = headroom / risk, carried at fixed-point scale so
		// low-risk strategies attract proportionally more capital.
		w := new(big.Int).Mul(h, domain.PriceScale)
		w.Quo(w, big.NewInt(int64(s.RiskScore)))
		slots = append(slots, &slot{s: s, headroom: h, weight: w, amount: new(big.Int)})
		sumHeadroom.Add(sumHeadroom, h)
		sumWeight.Add(sumWeight, w)
	}
	if sumHeadroom.Cmp(total) < 0 {
		return domain.AllocationPlan{}, fmt.Errorf("allocator: allocate %s: headroom %s < total %s: %w",
			asset, sumHeadroom, total, domain.ErrInsufficientCapacity)
	}

	// Proportional pass, capped at each strategy's headroom.
	remaining := new(big.Int).Set(total)
	for _, sl := range slots {
		share := new(big.Int).Mul(total, sl.weight)
		share.Quo(share, sumWeight)
		if share.Cmp(sl.headroom) > 0 {
			share.Set(sl.headroom)
		}
		if share.Cmp(remaining) > 0 {
			share.Set(remaining)
		}
		sl.amount.Set(share)
		remaining.Sub(remaining, share)
	}
	// Flooring and caps can leave a remainder; sweep it into strategies
	// with leftover headroom in registration order. Aggregate headroom
	// covers the total, so this terminates with remaining == 0.
	for _, sl := range slots {
		if remaining.Sign() == 0 {
			break
		}
		spare := new(big.Int).Sub(sl.headroom, sl.amount)
		if spare.Sign() <= 0 {
			continue
		}
		if spare.Cmp(remaining) > 0 {
			spare.Set(remaining)
		}
		sl.amount.Add(sl.amount, spare)
		remaining.Sub(remaining, spare)
	}

	plan := domain.AllocationPlan{
		Asset:     asset,
		Total:     new(big.Int).Set(total),
		CreatedAt: time.Now().UTC(),
	}
	for _, sl := range slots {
		if sl.amount.Sign() == 0 {
			continue
		}
		plan.Entries = append(plan.Entries, domain.AllocationEntry{
			StrategyID:   sl.s.ID,
			Amount:       sl.amount,
			RiskScore:    sl.s.RiskScore,
			YieldRateBps: sl.s.YieldRateBps,
		})
	}
	return plan, nil
}

// RecordAllocation stores the plan as the current allocation for its asset,
// used by ShouldRebalance as the baseline.
func (a *Allocator) RecordAllocation(plan domain.AllocationPlan) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allocations[plan.Asset] = plan
}

// AllocatedAssets returns the assets with a recorded allocation, sorted.
func (a *Allocator) AllocatedAssets() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	assets := make([]string, 0, len(a.allocations))
	for asset := range a.allocations {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets
}

// CurrentAllocation returns the recorded allocation for an asset.
func (a *Allocator) CurrentAllocation(asset string) (domain.AllocationPlan, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	plan, ok := a.allocations[asset]
	return plan, ok
}

// ShouldRebalance compares the weighted APY of the asset's current allocation
// to the best APY achievable right now and returns true only when the
// improvement exceeds the configured basis-point threshold, so negligible
// gains do not trigger churn that execution costs would eat.
func (a *Allocator) ShouldRebalance(asset string) (bool, error) {
	a.mu.RLock()
	plan, ok := a.allocations[asset]
	a.mu.RUnlock()
	if !ok || len(plan.Entries) == 0 {
		return false, nil
	}

	// Weighted current APY in bps, from live strategy records.
	totalAmount := new(big.Int)
	weighted := new(big.Int)
	for _, e := range plan.Entries {
		s, err := a.Get(e.StrategyID)
		if err != nil {
			continue
		}
		totalAmount.Add(totalAmount, e.Amount)
		weighted.Add(weighted, new(big.Int).Mul(e.Amount, new(big.Int).SetUint64(s.YieldRateBps)))
	}
	if totalAmount.Sign() == 0 {
		return false, nil
	}
	currentBps := new(big.Int).Quo(weighted, totalAmount).Uint64()

	var bestBps uint64
	for _, s := range a.snapshot() {
		if !a.eligible(s, a.cfg.DefaultMaxRisk, true) {
			continue
		}
		if s.YieldRateBps > bestBps {
			bestBps = s.YieldRateBps
		}
	}
	if bestBps <= currentBps {
		return false, nil
	}
	improvement := bestBps - currentBps
	a.logger.Debug("rebalance check",
		slog.String("asset", asset),
		slog.Uint64("current_bps", currentBps),
		slog.Uint64("best_bps", bestBps),
		slog.Uint64("improvement_bps", improvement),
	)
	return improvement > a.cfg.RebalanceThresholdBps, nil
}
