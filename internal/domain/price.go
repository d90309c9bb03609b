package domain

import (
	"math/big"
	"time"
)

// PriceScale is the fixed-point scale for normalized prices: every price is
// expressed with 18 decimals regardless of the asset's native precision.
var PriceScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// AssetPrice is the registry record for a single asset's reference price.
// Records are never deleted; an asset that should no longer be quoted is
// deactivated instead, and an inactive record's price must not be read.
type AssetPrice struct {
	Asset     string    `json:"asset"`
	Price     *big.Int  `json:"price"` // USD, 18-decimal fixed point
	Decimals  uint8     `json:"decimals"`
	UpdatedAt time.Time `json:"updated_at"`
	Active    bool      `json:"active"`
}

// Clone returns a deep copy so callers cannot mutate registry state through
// the shared *big.Int.
func (p AssetPrice) Clone() AssetPrice {
	cp := p
	if p.Price != nil {
		cp.Price = new(big.Int).Set(p.Price)
	}
	return cp
}
