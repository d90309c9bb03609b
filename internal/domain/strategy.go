package domain

import (
	"math/big"
	"time"
)

// Strategy is a registered yield strategy the allocator can route capital to.
// TVL <= MaxCapacity is a soft target enforced by the allocator, not the
// record; inactive strategies are never selectable.
type Strategy struct {
	ID                  string    `json:"id"`
	Domain              string    `json:"domain"` // execution domain hosting the strategy
	Name                string    `json:"name"`
	Protocol            string    `json:"protocol"`
	YieldRateBps        uint64    `json:"yield_rate_bps"`
	RiskScore           uint8     `json:"risk_score"` // 1 (safest) .. 10
	TVL                 *big.Int  `json:"tvl"`
	MaxCapacity         *big.Int  `json:"max_capacity"`
	MinDeposit          *big.Int  `json:"min_deposit"`
	Active              bool      `json:"active"`
	CrossDomainEligible bool      `json:"cross_domain_eligible"`
	UpdatedAt           time.Time `json:"updated_at"`
	Payload             []byte    `json:"payload,omitempty"`
}

// Headroom returns the remaining capacity before the strategy hits its cap,
// never negative.
func (s Strategy) Headroom() *big.Int {
	if s.MaxCapacity == nil || s.TVL == nil {
		return new(big.Int)
	}
	h := new(big.Int).Sub(s.MaxCapacity, s.TVL)
	if h.Sign() < 0 {
		h.SetInt64(0)
	}
	return h
}

// Clone returns a deep copy of the strategy record.
func (s Strategy) Clone() Strategy {
	cp := s
	if s.TVL != nil {
		cp.TVL = new(big.Int).Set(s.TVL)
	}
	if s.MaxCapacity != nil {
		cp.MaxCapacity = new(big.Int).Set(s.MaxCapacity)
	}
	if s.MinDeposit != nil {
		cp.MinDeposit = new(big.Int).Set(s.MinDeposit)
	}
	if s.Payload != nil {
		cp.Payload = append([]byte(nil), s.Payload...)
	}
	return cp
}

// SelectResult is the outcome of an optimal-strategy selection.
type SelectResult struct {
	StrategyID     string   `json:"strategy_id"`
	Domain         string   `json:"domain"`
	ExpectedReturn *big.Int `json:"expected_return"`
	RiskScore      uint8    `json:"risk_score"`
	RequiresBridge bool     `json:"requires_bridge"`
}

// AllocationEntry is one strategy's share of a split allocation.
type AllocationEntry struct {
	StrategyID   string   `json:"strategy_id"`
	Amount       *big.Int `json:"amount"`
	RiskScore    uint8    `json:"risk_score"`
	YieldRateBps uint64   `json:"yield_rate_bps"`
}

// AllocationPlan is a full split of Total across multiple strategies for one
// asset. The entry amounts always sum to exactly Total.
type AllocationPlan struct {
	Asset     string            `json:"asset"`
	Total     *big.Int          `json:"total"`
	Entries   []AllocationEntry `json:"entries"`
	CreatedAt time.Time         `json:"created_at"`
}
