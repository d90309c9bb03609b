package allocator

import (
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/TroveFi/yieldrouter/internal/auth"
	"github.com/TroveFi/yieldrouter/internal/domain"
)

// approveAll approves every subject; individual tests override with denials.
type approveAll struct {
	deny map[string]bool
}

func (g *approveAll) IsApproved(subject string, maxRiskTolerance uint8) bool {
	return !g.deny[subject]
}

func newTestAllocator(gate Approver) *Allocator {
	if gate == nil {
		gate = &approveAll{}
	}
	return New(gate, auth.Open(), Config{
		LocalDomain:           "flow",
		RebalanceThresholdBps: 50,
		DefaultMaxRisk:        10,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func strat(id, dom string, yieldBps uint64, risk uint8, capacity, tvl int64) domain.Strategy {
	return domain.Strategy{
		ID:                  id,
		Domain:              dom,
		Name:                id,
		YieldRateBps:        yieldBps,
		RiskScore:           risk,
		TVL:                 big.NewInt(tvl),
		MaxCapacity:         big.NewInt(capacity),
		MinDeposit:          big.NewInt(0),
		Active:              true,
		CrossDomainEligible: true,
	}
}

func TestUpsertValidation(t *testing.T) {
	a := newTestAllocator(nil)
	cases := []domain.Strategy{
		{ID: "", MaxCapacity: big.NewInt(1), RiskScore: 1},
		{ID: "x", MaxCapacity: nil, RiskScore: 1},
		{ID: "x", MaxCapacity: big.NewInt(0), RiskScore: 1},
		{ID: "x", MaxCapacity: big.NewInt(1), RiskScore: 0},
		{ID: "x", MaxCapacity: big.NewInt(1), RiskScore: 11},
	}
	for _, s := range cases {
		if err := a.Upsert("op", s); !errors.Is(err, domain.ErrInvalidParameter) {
			t.Errorf("upsert %+v err = %v, want ErrInvalidParameter", s, err)
		}
	}
}

func TestSelectOptimalPicksBestReturn(t *testing.T) {
	a := newTestAllocator(nil)
	must(t, a.Upsert("op", strat("low-yield", "flow", 300, 2, 1_000_000, 0)))
	must(t, a.Upsert("op", strat("high-yield", "flow", 800, 3, 1_000_000, 0)))

	res, err := a.SelectOptimal(big.NewInt(10_000), 10, false, "")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if res.StrategyID != "high-yield" {
		t.Errorf("selected %s, want high-yield", res.StrategyID)
	}
	// 10000 * 800 / 10000 = 800
	if res.ExpectedReturn.Cmp(big.NewInt(800)) != 0 {
		t.Errorf("expected return = %s, want 800", res.ExpectedReturn)
	}
	if res.RequiresBridge {
		t.Error("local strategy flagged as requiring a bridge")
	}
}

func TestSelectOptimalRiskCeiling(t *testing.T) {
	a := newTestAllocator(nil)
	must(t, a.Upsert("op", strat("risky", "flow", 2000, 9, 1_000_000, 0)))
	must(t, a.Upsert("op", strat("safe", "flow", 400, 2, 1_000_000, 0)))

	res, err := a.SelectOptimal(big.NewInt(10_000), 5, false, "")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if res.StrategyID != "safe" {
		t.Errorf("selected %s under tolerance 5, want safe", res.StrategyID)
	}
}

func TestSelectOptimalCrossDomain(t *testing.T) {
	a := newTestAllocator(nil)
	must(t, a.Upsert("op", strat("remote", "evm", 900, 3, 1_000_000, 0)))
	must(t, a.Upsert("op", strat("local", "flow", 400, 3, 1_000_000, 0)))

	// Cross-domain disabled: the higher-yield remote strategy is invisible.
	res, err := a.SelectOptimal(big.NewInt(10_000), 10, false, "")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if res.StrategyID != "local" {
		t.Errorf("selected %s with cross-domain off, want local", res.StrategyID)
	}

	res, err = a.SelectOptimal(big.NewInt(10_000), 10, true, "")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if res.StrategyID != "remote" {
		t.Errorf("selected %s with cross-domain on, want remote", res.StrategyID)
	}
	if !res.RequiresBridge {
		t.Error("remote selection not flagged as requiring a bridge")
	}
}

func TestSelectOptimalPreferredDomainTieBreak(t *testing.T) {
	a := newTestAllocator(nil)
	must(t, a.Upsert("op", strat("remote", "evm", 500, 3, 1_000_000, 0)))
	must(t, a.Upsert("op", strat("preferred", "flow", 500, 3, 1_000_000, 0)))

	res, err := a.SelectOptimal(big.NewInt(10_000), 10, true, "flow")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if res.StrategyID != "preferred" {
		t.Errorf("selected %s on tie, want the preferred-domain strategy", res.StrategyID)
	}
}

func TestSelectOptimalMinDeposit(t *testing.T) {
	a := newTestAllocator(nil)
	s := strat("vault", "flow", 500, 3, 1_000_000, 0)
	s.MinDeposit = big.NewInt(50_000)
	must(t, a.Upsert("op", s))

	if _, err := a.SelectOptimal(big.NewInt(10_000), 10, false, ""); !errors.Is(err, domain.ErrNoEligibleStrategy) {
		t.Errorf("select below min deposit err = %v, want ErrNoEligibleStrategy", err)
	}
}

func TestSelectOptimalNoEligible(t *testing.T) {
	a := newTestAllocator(nil)
	full := strat("full", "flow", 500, 3, 1_000, 1_000) // zero headroom
	must(t, a.Upsert("op", full))
	inactive := strat("off", "flow", 500, 3, 1_000_000, 0)
	inactive.Active = false
	must(t, a.Upsert("op", inactive))

	if _, err := a.SelectOptimal(big.NewInt(100), 10, true, ""); !errors.Is(err, domain.ErrNoEligibleStrategy) {
		t.Errorf("err = %v, want ErrNoEligibleStrategy", err)
	}
}

func TestSelectOptimalGateDenial(t *testing.T) {
	gate := &approveAll{deny: map[string]bool{"blocked": true}}
	a := newTestAllocator(gate)
	must(t, a.Upsert("op", strat("blocked", "flow", 900, 2, 1_000_000, 0)))
	must(t, a.Upsert("op", strat("clean", "flow", 300, 2, 1_000_000, 0)))

	res, err := a.SelectOptimal(big.NewInt(10_000), 10, false, "")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if res.StrategyID != "clean" {
		t.Errorf("selected %s, want the gate-approved strategy", res.StrategyID)
	}
}

func TestCalculateAllocationSumsToTotal(t *testing.T) {
	a := newTestAllocator(nil)
	must(t, a.Upsert("op", strat("s1", "flow", 500, 2, 60_000, 0)))
	must(t, a.Upsert("op", strat("s2", "flow", 700, 5, 60_000, 0)))
	must(t, a.Upsert("op", strat("s3", "flow", 900, 10, 60_000, 0)))

	total := big.NewInt(100_000)
	plan, err := a.CalculateAllocation("USDC", total, 10)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	sum := new(big.Int)
	for _, e := range plan.Entries {
		sum.Add(sum, e.Amount)
		if e.Amount.Sign() <= 0 {
			t.Errorf("entry %s has non-positive amount %s", e.StrategyID, e.Amount)
		}
	}
	if sum.Cmp(total) != 0 {
		t.Errorf("entries sum to %s, want exactly %s", sum, total)
	}

	// Lower risk must attract at least as much as equal-headroom higher
	// risk under the inverse-risk weighting.
	byID := map[string]*big.Int{}
	for _, e := range plan.Entries {
		byID[e.StrategyID] = e.Amount
	}
	if byID["s1"].Cmp(byID["s3"]) < 0 {
		t.Errorf("low-risk share %s < high-risk share %s", byID["s1"], byID["s3"])
	}
}

func TestCalculateAllocationCapsAtHeadroom(t *testing.T) {
	a := newTestAllocator(nil)
	must(t, a.Upsert("op", strat("small", "flow", 500, 1, 10_000, 0)))
	must(t, a.Upsert("op", strat("large", "flow", 500, 1, 1_000_000, 0)))

	plan, err := a.CalculateAllocation("USDC", big.NewInt(500_000), 10)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	for _, e := range plan.Entries {
		if e.StrategyID == "small" && e.Amount.Cmp(big.NewInt(10_000)) > 0 {
			t.Errorf("small received %s, above its headroom 10000", e.Amount)
		}
	}
}

func TestCalculateAllocationInsufficientCapacity(t *testing.T) {
	a := newTestAllocator(nil)
	must(t, a.Upsert("op", strat("tiny", "flow", 500, 1, 1_000, 0)))

	_, err := a.CalculateAllocation("USDC", big.NewInt(5_000), 10)
	if !errors.Is(err, domain.ErrInsufficientCapacity) {
		t.Errorf("err = %v, want ErrInsufficientCapacity", err)
	}
}

func TestShouldRebalance(t *testing.T) {
	a := newTestAllocator(nil)
	must(t, a.Upsert("op", strat("current", "flow", 400, 2, 1_000_000, 0)))

	plan, err := a.CalculateAllocation("USDC", big.NewInt(100_000), 10)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	a.RecordAllocation(plan)

	// Best available equals current: no move.
	should, err := a.ShouldRebalance("USDC")
	if err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	if should {
		t.Error("rebalance suggested with no better option")
	}

	// 40 bps better: inside the 50 bps threshold, still no move.
	must(t, a.Upsert("op", strat("slightly-better", "flow", 440, 2, 1_000_000, 0)))
	if should, _ = a.ShouldRebalance("USDC"); should {
		t.Error("rebalance suggested for sub-threshold improvement")
	}

	// 200 bps better: move.
	must(t, a.Upsert("op", strat("much-better", "flow", 600, 2, 1_000_000, 0)))
	if should, _ = a.ShouldRebalance("USDC"); !should {
		t.Error("rebalance not suggested for 200 bps improvement")
	}
}

func TestShouldRebalanceNoAllocation(t *testing.T) {
	a := newTestAllocator(nil)
	should, err := a.ShouldRebalance("USDC")
	if err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	if should {
		t.Error("rebalance suggested for an asset never allocated")
	}
}

func TestAllocatedAssetsSorted(t *testing.T) {
	a := newTestAllocator(nil)
	for _, asset := range []string{"WETH", "FLOW", "USDC"} {
		a.RecordAllocation(domain.AllocationPlan{Asset: asset, Total: big.NewInt(1)})
	}
	got := a.AllocatedAssets()
	want := []string{"FLOW", "USDC", "WETH"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("allocated assets = %v, want %v", got, want)
		}
	}
}

func TestUpsertUnauthorized(t *testing.T) {
	a := New(&approveAll{}, auth.NewTable(map[string]auth.Role{"updater": auth.RoleUpdater}), Config{LocalDomain: "flow"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	// The updater role holds price and risk writes, not strategy writes.
	if err := a.Upsert("updater", strat("s", "flow", 100, 1, 1_000, 0)); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("upsert by updater err = %v, want ErrUnauthorized", err)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
