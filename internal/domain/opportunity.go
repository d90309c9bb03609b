package domain

import (
	"math/big"
	"time"
)

// Opportunity is a two-leg arbitrage candidate produced by a scan pass.
// Instances are immutable once produced; every pass emits fresh records.
//
// VenueBuy is always the venue realizing the lower conversion rate for the
// probed pair, so the direction reads "buy low venue, sell high venue".
// Profit is denominated in output units of the probed leg; Score is
// Profit * PriceScale / GasCost and is zero when GasCost is zero.
type Opportunity struct {
	ID                string    `json:"id"`
	TokenA            string    `json:"token_a"`
	TokenB            string    `json:"token_b"`
	VenueBuy          string    `json:"venue_buy"`
	VenueSell         string    `json:"venue_sell"`
	Profit            *big.Int  `json:"profit"`
	AmountIn          *big.Int  `json:"amount_in"`
	GasCost           *big.Int  `json:"gas_cost"`
	Score             *big.Int  `json:"score"`
	Valid             bool      `json:"valid"`
	RequiresFlashLoan bool      `json:"requires_flash_loan"`
	DetectedAt        time.Time `json:"detected_at"`
	RoutePayload      []byte    `json:"route_payload,omitempty"`
}

// TriangularOpportunity is a three-leg cycle A->B->C->A ending with more of
// the starting asset than it began with. Venues lists the venue used per leg.
type TriangularOpportunity struct {
	ID             string    `json:"id"`
	TokenA         string    `json:"token_a"`
	TokenB         string    `json:"token_b"`
	TokenC         string    `json:"token_c"`
	Venues         []string  `json:"venues"`
	ExpectedProfit *big.Int  `json:"expected_profit"`
	MinAmountIn    *big.Int  `json:"min_amount_in"`
	GasCost        *big.Int  `json:"gas_cost"`
	Score          *big.Int  `json:"score"`
	Valid          bool      `json:"valid"`
	DetectedAt     time.Time `json:"detected_at"`
}

// VenueDescriptor describes a liquidity venue's execution profile.
type VenueDescriptor struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Active              bool   `json:"active"`
	GasOverhead         uint64 `json:"gas_overhead"` // fixed per-swap gas estimate
	FeeBps              int64  `json:"fee_bps"`
	SupportsMultiHop    bool   `json:"supports_multi_hop"`
	SupportsTieredPools bool   `json:"supports_tiered_pools"`
}
