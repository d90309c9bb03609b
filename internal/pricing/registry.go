// Package pricing maintains the asset price registry. Venue-reported prices
// arrive at arbitrary native precision and are stored at the common
// 18-decimal fixed-point scale; readers evaluate staleness explicitly against
// each record's own timestamp.
package pricing

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/TroveFi/yieldrouter/internal/auth"
	"github.com/TroveFi/yieldrouter/internal/domain"
)

// Registry holds one AssetPrice record per registered asset. Records are
// never deleted, only deactivated. All mutating entry points check the
// caller's capability against the auth table.
type Registry struct {
	mu     sync.RWMutex
	prices map[string]*domain.AssetPrice
	authz  *auth.Table
	logger *slog.Logger
	now    func() time.Time
}

// NewRegistry creates an empty price registry.
func NewRegistry(authz *auth.Table, logger *slog.Logger) *Registry {
	return &Registry{
		prices: make(map[string]*domain.AssetPrice),
		authz:  authz,
		logger: logger.With(slog.String("component", "price_registry")),
		now:    time.Now,
	}
}

// Register creates a price record for a new asset. It fails with
// ErrDuplicateAsset when an active record already exists; re-registering a
// deactivated asset reactivates it with the new price and precision.
func (r *Registry) Register(actor, asset string, initialPrice *big.Int, nativeDecimals uint8) error {
	if !r.authz.Allowed(actor, auth.CapPriceWrite) {
		return fmt.Errorf("pricing: register %s by %q: %w", asset, actor, domain.ErrUnauthorized)
	}
	if initialPrice == nil || initialPrice.Sign() <= 0 {
		return fmt.Errorf("pricing: register %s: %w", asset, domain.ErrInvalidPrice)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.prices[asset]; ok && rec.Active {
		return fmt.Errorf("pricing: register %s: %w", asset, domain.ErrDuplicateAsset)
	}
	r.prices[asset] = &domain.AssetPrice{
		Asset:     asset,
		Price:     new(big.Int).Set(initialPrice),
		Decimals:  nativeDecimals,
		UpdatedAt: r.now(),
		Active:    true,
	}
	r.logger.Info("asset registered",
		slog.String("asset", asset),
		slog.Int("decimals", int(nativeDecimals)),
	)
	return nil
}

// Update sets a new price for an active asset.
func (r *Registry) Update(actor, asset string, newPrice *big.Int) error {
	if !r.authz.Allowed(actor, auth.CapPriceWrite) {
		return fmt.Errorf("pricing: update %s by %q: %w", asset, actor, domain.ErrUnauthorized)
	}
	if newPrice == nil || newPrice.Sign() <= 0 {
		return fmt.Errorf("pricing: update %s: %w", asset, domain.ErrInvalidPrice)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.prices[asset]
	if !ok || !rec.Active {
		return fmt.Errorf("pricing: update %s: %w", asset, domain.ErrUnknownAsset)
	}
	rec.Price.Set(newPrice)
	rec.UpdatedAt = r.now()
	return nil
}

// BatchUpdate applies Update semantics per element. Elements whose asset is
// inactive or whose price is non-positive are silently skipped; application
// is partial, not atomic. Only mismatched slice lengths fail the call.
func (r *Registry) BatchUpdate(actor string, assets []string, prices []*big.Int) error {
	if !r.authz.Allowed(actor, auth.CapPriceWrite) {
		return fmt.Errorf("pricing: batch update by %q: %w", actor, domain.ErrUnauthorized)
	}
	if len(assets) != len(prices) {
		return fmt.Errorf("pricing: batch update %d assets / %d prices: %w",
			len(assets), len(prices), domain.ErrLengthMismatch)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	applied := 0
	for i, asset := range assets {
		rec, ok := r.prices[asset]
		if !ok || !rec.Active {
			continue
		}
		if prices[i] == nil || prices[i].Sign() <= 0 {
			continue
		}
		rec.Price.Set(prices[i])
		rec.UpdatedAt = now
		applied++
	}
	r.logger.Debug("batch price update applied",
		slog.Int("requested", len(assets)),
		slog.Int("applied", applied),
	)
	return nil
}

// Deactivate marks an asset inactive. The record stays in the registry.
func (r *Registry) Deactivate(actor, asset string) error {
	if !r.authz.Allowed(actor, auth.CapPriceWrite) {
		return fmt.Errorf("pricing: deactivate %s by %q: %w", asset, actor, domain.ErrUnauthorized)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.prices[asset]
	if !ok || !rec.Active {
		return fmt.Errorf("pricing: deactivate %s: %w", asset, domain.ErrUnknownAsset)
	}
	rec.Active = false
	r.logger.Info("asset deactivated", slog.String("asset", asset))
	return nil
}

// Get returns the record for an active asset.
func (r *Registry) Get(asset string) (domain.AssetPrice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.prices[asset]
	if !ok || !rec.Active {
		return domain.AssetPrice{}, fmt.Errorf("pricing: get %s: %w", asset, domain.ErrUnknownAsset)
	}
	return rec.Clone(), nil
}

// List returns all records, active and inactive.
func (r *Registry) List() []domain.AssetPrice {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.AssetPrice, 0, len(r.prices))
	for _, rec := range r.prices {
		out = append(out, rec.Clone())
	}
	return out
}

// NormalizedValue converts amount (in the asset's native precision) to its
// 18-decimal USD value. For native decimals <= 18 the amount scales up by
// 10^(18-d); for decimals > 18 it scales down, truncating toward zero.
func (r *Registry) NormalizedValue(asset string, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("pricing: normalize %s: %w", asset, domain.ErrInvalidParameter)
	}

	r.mu.RLock()
	rec, ok := r.prices[asset]
	if !ok || !rec.Active {
		r.mu.RUnlock()
		return nil, fmt.Errorf("pricing: normalize %s: %w", asset, domain.ErrUnknownAsset)
	}
	price := new(big.Int).Set(rec.Price)
	decimals := rec.Decimals
	r.mu.RUnlock()

	// value = amount * price / 10^decimals, carried out so the down-scale
	// path floors rather than rounds.
	v := new(big.Int).Mul(amount, price)
	if decimals <= 18 {
		shift := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(18-decimals)), nil)
		v.Mul(v, shift)
		v.Quo(v, domain.PriceScale)
	} else {
		shift := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
		v.Quo(v, shift)
	}
	return v, nil
}

// IsStale reports whether an asset's record is inactive or older than maxAge.
func (r *Registry) IsStale(asset string, maxAge time.Duration) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.prices[asset]
	if !ok || !rec.Active {
		return true
	}
	return r.now().Sub(rec.UpdatedAt) > maxAge
}
