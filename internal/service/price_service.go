package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"time"

	"github.com/TroveFi/yieldrouter/internal/domain"
	"github.com/TroveFi/yieldrouter/internal/pricing"
)

// PriceService fronts the in-process price registry with a write-through
// Redis mirror so other replicas and off-process consumers see updates, and
// publishes price events on the signal bus.
type PriceService struct {
	registry *pricing.Registry
	cache    domain.PriceCache
	bus      domain.SignalBus
	logger   *slog.Logger
}

// NewPriceService creates a PriceService. Cache and bus may be nil; the
// registry is then the only store touched.
func NewPriceService(
	registry *pricing.Registry,
	cache domain.PriceCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *PriceService {
	return &PriceService{
		registry: registry,
		cache:    cache,
		bus:      bus,
		logger:   logger.With(slog.String("component", "price_service")),
	}
}

// Register registers a new asset and mirrors its initial price.
func (s *PriceService) Register(ctx context.Context, actor, asset string, initialPrice *big.Int, nativeDecimals uint8) error {
	if err := s.registry.Register(actor, asset, initialPrice, nativeDecimals); err != nil {
		return err
	}
	s.mirror(ctx, asset)
	return nil
}

// Update replaces an asset's price and mirrors it.
func (s *PriceService) Update(ctx context.Context, actor, asset string, newPrice *big.Int) error {
	if err := s.registry.Update(actor, asset, newPrice); err != nil {
		return err
	}
	s.mirror(ctx, asset)
	return nil
}

// BatchUpdate updates many prices at once. Entries the registry skipped are
// not mirrored; the registry record is the source of truth for what landed.
func (s *PriceService) BatchUpdate(ctx context.Context, actor string, assets []string, prices []*big.Int) error {
	if err := s.registry.BatchUpdate(actor, assets, prices); err != nil {
		return err
	}
	for _, asset := range assets {
		s.mirror(ctx, asset)
	}
	return nil
}

// Deactivate marks an asset inactive. The cache entry is left to expire by
// staleness; readers check the registry's active flag.
func (s *PriceService) Deactivate(ctx context.Context, actor, asset string) error {
	return s.registry.Deactivate(actor, asset)
}

// mirror copies the registry's current record for an asset into the cache and
// publishes a price event. Mirror failures are logged, not returned: the
// registry update already succeeded and stays authoritative.
func (s *PriceService) mirror(ctx context.Context, asset string) {
	rec, err := s.registry.Get(asset)
	if err != nil {
		return
	}
	if s.cache != nil {
		if err := s.cache.SetPrice(ctx, asset, rec.Price, rec.UpdatedAt); err != nil {
			s.logger.WarnContext(ctx, "price cache mirror failed",
				slog.String("asset", asset),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":      "price_update",
			"asset":      asset,
			"price":      rec.Price.String(),
			"updated_at": rec.UpdatedAt.Format(time.RFC3339Nano),
		})
		if err := s.bus.Publish(ctx, "prices", evt); err != nil {
			s.logger.WarnContext(ctx, "publish price update failed",
				slog.String("asset", asset),
				slog.String("error", err.Error()),
			)
		}
	}
}
