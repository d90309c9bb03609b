// Package scanner enumerates token-pair/venue combinations and scores
// round-trip opportunities net of estimated execution cost. A scan pass is a
// pure function of the quote-source snapshot it runs against: no state is
// retained between passes except the asset and venue whitelists and the
// scanner configuration.
//
// Both scans are brute force: O(n^2 * m^2) over assets and venues for the
// direct scan and O(n^3) for the triangular scan. That is acceptable at the
// target scale (tens of assets, single-digit venues); a deployment serving
// hundreds of assets needs pair pruning before this enumeration, not a bigger
// worker pool.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/TroveFi/yieldrouter/internal/auth"
	"github.com/TroveFi/yieldrouter/internal/domain"
)

// Config holds the tunable parameters for scan passes.
type Config struct {
	// ProbeAmount is the fixed reference input used for every quote probe.
	ProbeAmount *big.Int
	// MinProfit is the minimum profit on the probe amount for a candidate
	// to be considered valid.
	MinProfit *big.Int
	// GasPriceWei prices venue gas overhead into execution cost units.
	GasPriceWei *big.Int
	// MaxConcurrent bounds the number of in-flight candidate probes.
	MaxConcurrent int
	// TriangularVenueLegs selects the venue path width for the triangular
	// scan: 2 reuses the first venue for the closing leg, 3 gives every
	// leg its own venue when enough venues are active.
	TriangularVenueLegs int
	// UseFlashLoans marks emitted opportunities as requiring borrowed
	// capital for execution.
	UseFlashLoans bool
}

// Scanner runs discrete scan passes against a QuoteSource.
type Scanner struct {
	quotes domain.QuoteSource
	assets *Whitelist
	venues *Whitelist
	authz  *auth.Table
	logger *slog.Logger

	mu  sync.RWMutex
	cfg Config
}

// New creates a Scanner with empty whitelists.
func New(quotes domain.QuoteSource, authz *auth.Table, cfg Config, logger *slog.Logger) *Scanner {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	if cfg.TriangularVenueLegs != 3 {
		cfg.TriangularVenueLegs = 2
	}
	return &Scanner{
		quotes: quotes,
		assets: NewWhitelist(),
		venues: NewWhitelist(),
		authz:  authz,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "scanner")),
	}
}

// AddAsset adds an asset to the tradable whitelist, effective next pass.
func (s *Scanner) AddAsset(actor, asset string) error {
	if !s.authz.Allowed(actor, auth.CapWhitelistWrite) {
		return fmt.Errorf("scanner: add asset %s by %q: %w", asset, actor, domain.ErrUnauthorized)
	}
	if asset == "" {
		return fmt.Errorf("scanner: add asset: %w", domain.ErrInvalidParameter)
	}
	s.assets.Add(asset)
	return nil
}

// RemoveAsset removes an asset from the tradable whitelist.
func (s *Scanner) RemoveAsset(actor, asset string) error {
	if !s.authz.Allowed(actor, auth.CapWhitelistWrite) {
		return fmt.Errorf("scanner: remove asset %s by %q: %w", asset, actor, domain.ErrUnauthorized)
	}
	if !s.assets.Remove(asset) {
		return fmt.Errorf("scanner: remove asset %s: %w", asset, domain.ErrUnknownAsset)
	}
	return nil
}

// AddVenue adds a venue to the venue whitelist, effective next pass.
func (s *Scanner) AddVenue(actor, venue string) error {
	if !s.authz.Allowed(actor, auth.CapWhitelistWrite) {
		return fmt.Errorf("scanner: add venue %s by %q: %w", venue, actor, domain.ErrUnauthorized)
	}
	if venue == "" {
		return fmt.Errorf("scanner: add venue: %w", domain.ErrInvalidParameter)
	}
	s.venues.Add(venue)
	return nil
}

// RemoveVenue removes a venue from the venue whitelist.
func (s *Scanner) RemoveVenue(actor, venue string) error {
	if !s.authz.Allowed(actor, auth.CapWhitelistWrite) {
		return fmt.Errorf("scanner: remove venue %s by %q: %w", venue, actor, domain.ErrUnauthorized)
	}
	if !s.venues.Remove(venue) {
		return fmt.Errorf("scanner: remove venue %s: %w", venue, domain.ErrNotFound)
	}
	return nil
}

// Assets returns a snapshot of the asset whitelist.
func (s *Scanner) Assets() []string { return s.assets.Snapshot() }

// Venues returns a snapshot of the venue whitelist.
func (s *Scanner) Venues() []string { return s.venues.Snapshot() }

// SetMinProfit updates the profit threshold, effective next pass.
func (s *Scanner) SetMinProfit(actor string, min *big.Int) error {
	if !s.authz.Allowed(actor, auth.CapConfigWrite) {
		return fmt.Errorf("scanner: set min profit by %q: %w", actor, domain.ErrUnauthorized)
	}
	if min == nil || min.Sign() < 0 {
		return fmt.Errorf("scanner: set min profit: %w", domain.ErrInvalidParameter)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.MinProfit = new(big.Int).Set(min)
	return nil
}

// SetGasPrice updates the gas price used for cost normalization.
func (s *Scanner) SetGasPrice(actor string, wei *big.Int) error {
	if !s.authz.Allowed(actor, auth.CapConfigWrite) {
		return fmt.Errorf("scanner: set gas price by %q: %w", actor, domain.ErrUnauthorized)
	}
	if wei == nil || wei.Sign() <= 0 {
		return fmt.Errorf("scanner: set gas price: %w", domain.ErrInvalidParameter)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.GasPriceWei = new(big.Int).Set(wei)
	return nil
}

func (s *Scanner) config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.cfg
	if cfg.ProbeAmount != nil {
		cfg.ProbeAmount = new(big.Int).Set(cfg.ProbeAmount)
	} else {
		cfg.ProbeAmount = new(big.Int).Set(domain.PriceScale)
	}
	if cfg.MinProfit != nil {
		cfg.MinProfit = new(big.Int).Set(cfg.MinProfit)
	} else {
		cfg.MinProfit = new(big.Int)
	}
	if cfg.GasPriceWei != nil {
		cfg.GasPriceWei = new(big.Int).Set(cfg.GasPriceWei)
	} else {
		cfg.GasPriceWei = new(big.Int)
	}
	return cfg
}

// snapshotVenues resolves the venue whitelist against the quote source and
// returns descriptors for venues that are both whitelisted and active, in
// whitelist order. The snapshot is taken once per pass.
func (s *Scanner) snapshotVenues(ctx context.Context) ([]domain.VenueDescriptor, error) {
	active, err := s.quotes.ActiveVenues(ctx)
	if err != nil {
		return nil, fmt.Errorf("scanner: list active venues: %w", err)
	}
	activeSet := make(map[string]bool, len(active))
	for _, v := range active {
		activeSet[v] = true
	}

	var out []domain.VenueDescriptor
	for _, id := range s.venues.Snapshot() {
		if !activeSet[id] {
			continue
		}
		info, err := s.quotes.VenueInfo(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("scanner: venue info %s: %w", id, err)
		}
		if !info.Active {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

// cost returns gasUnits * gasPrice; score returns profit * PriceScale / cost,
// or zero when the cost estimate is zero (the score is undefined there and
// the candidate is not valid).
func costAndScore(profit *big.Int, gasUnits uint64, gasPrice *big.Int) (cost, score *big.Int) {
	cost = new(big.Int).Mul(new(big.Int).SetUint64(gasUnits), gasPrice)
	score = new(big.Int)
	if cost.Sign() > 0 && profit.Sign() > 0 {
		score.Mul(profit, domain.PriceScale)
		score.Quo(score, cost)
	}
	return cost, score
}

type directCandidate struct {
	idx    int
	tokenA string
	tokenB string
	v1     domain.VenueDescriptor
	v2     domain.VenueDescriptor
}

// ScanDirect evaluates every unordered pair of distinct whitelisted assets
// against every ordered pair of distinct active venues and returns the single
// candidate with the maximum profitability score, or nil when no candidate
// clears the profit threshold. Ties go to the first candidate in
// pair-then-venue iteration order. Probes for independent candidates run
// concurrently with bounded parallelism.
//
// If assets is nil the current whitelist snapshot is used; callers that
// pre-filter stale assets pass the filtered set explicitly.
func (s *Scanner) ScanDirect(ctx context.Context, assets []string) (*domain.Opportunity, error) {
	cfg := s.config()
	if assets == nil {
		assets = s.assets.Snapshot()
	}
	venues, err := s.snapshotVenues(ctx)
	if err != nil {
		return nil, err
	}
	if len(assets) < 2 || len(venues) < 2 {
		return nil, nil
	}

	var candidates []directCandidate
	for i := 0; i < len(assets); i++ {
		for j := i + 1; j < len(assets); j++ {
			for vi := range venues {
				for vj := range venues {
					if vi == vj {
						continue
					}
					candidates = append(candidates, directCandidate{
						idx:    len(candidates),
						tokenA: assets[i],
						tokenB: assets[j],
						v1:     venues[vi],
						v2:     venues[vj],
					})
				}
			}
		}
	}

	var (
		bestMu  sync.Mutex
		best    *domain.Opportunity
		bestIdx int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.MaxConcurrent)
	for _, cand := range candidates {
		cand := cand
		g.Go(func() error {
			opp, err := s.evalDirect(gctx, cfg, cand)
			if err != nil {
				return err
			}
			if opp == nil {
				return nil
			}
			bestMu.Lock()
			defer bestMu.Unlock()
			if best == nil || opp.Score.Cmp(best.Score) > 0 ||
				(opp.Score.Cmp(best.Score) == 0 && cand.idx < bestIdx) {
				best = opp
				bestIdx = cand.idx
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if best != nil {
		s.logger.Debug("direct scan winner",
			slog.String("token_a", best.TokenA),
			slog.String("token_b", best.TokenB),
			slog.String("venue_buy", best.VenueBuy),
			slog.String("venue_sell", best.VenueSell),
			slog.String("profit", best.Profit.String()),
		)
	}
	return best, nil
}

// evalDirect probes one asset pair on one venue pair. A zero quote on either
// venue means no liquidity and skips the candidate; transport errors abort
// the pass.
func (s *Scanner) evalDirect(ctx context.Context, cfg Config, c directCandidate) (*domain.Opportunity, error) {
	out1, err := s.quotes.Quote(ctx, c.tokenA, c.tokenB, cfg.ProbeAmount, c.v1.ID)
	if err != nil {
		return nil, fmt.Errorf("scanner: quote %s->%s on %s: %w", c.tokenA, c.tokenB, c.v1.ID, err)
	}
	out2, err := s.quotes.Quote(ctx, c.tokenA, c.tokenB, cfg.ProbeAmount, c.v2.ID)
	if err != nil {
		return nil, fmt.Errorf("scanner: quote %s->%s on %s: %w", c.tokenA, c.tokenB, c.v2.ID, err)
	}
	if out1.Sign() == 0 || out2.Sign() == 0 {
		return nil, nil
	}

	// Order so the first venue is the one realizing the lower conversion
	// rate: enter there, capture the higher rate on the second leg.
	buy, sell := c.v1, c.v2
	profit := new(big.Int).Sub(out2, out1)
	if profit.Sign() < 0 {
		profit.Neg(profit)
		buy, sell = c.v2, c.v1
	}
	if profit.Cmp(cfg.MinProfit) <= 0 {
		return nil, nil
	}

	cost, score := costAndScore(profit, buy.GasOverhead+sell.GasOverhead, cfg.GasPriceWei)
	if cost.Sign() == 0 {
		// Cost estimate unavailable: the score is undefined and the
		// candidate cannot be ranked.
		return nil, nil
	}
	return &domain.Opportunity{
		ID:                uuid.New().String(),
		TokenA:            c.tokenA,
		TokenB:            c.tokenB,
		VenueBuy:          buy.ID,
		VenueSell:         sell.ID,
		Profit:            profit,
		AmountIn:          new(big.Int).Set(cfg.ProbeAmount),
		GasCost:           cost,
		Score:             score,
		Valid:             true,
		RequiresFlashLoan: cfg.UseFlashLoans,
		DetectedAt:        time.Now().UTC(),
	}, nil
}

// CheckPair probes the degenerate round trip X->Y on venue1 then Y->X on
// venue2 and compares the result to the original input. It is a thin wrapper
// over the direct-scan probe and scoring primitives.
func (s *Scanner) CheckPair(ctx context.Context, tokenX, tokenY, venue1, venue2 string) (*domain.Opportunity, error) {
	cfg := s.config()
	v1, err := s.quotes.VenueInfo(ctx, venue1)
	if err != nil {
		return nil, fmt.Errorf("scanner: venue info %s: %w", venue1, err)
	}
	v2, err := s.quotes.VenueInfo(ctx, venue2)
	if err != nil {
		return nil, fmt.Errorf("scanner: venue info %s: %w", venue2, err)
	}

	out1, err := s.quotes.Quote(ctx, tokenX, tokenY, cfg.ProbeAmount, venue1)
	if err != nil {
		return nil, fmt.Errorf("scanner: quote %s->%s on %s: %w", tokenX, tokenY, venue1, err)
	}
	if out1.Sign() == 0 {
		return nil, nil
	}
	back, err := s.quotes.Quote(ctx, tokenY, tokenX, out1, venue2)
	if err != nil {
		return nil, fmt.Errorf("scanner: quote %s->%s on %s: %w", tokenY, tokenX, venue2, err)
	}
	if back.Sign() == 0 {
		return nil, nil
	}

	profit := new(big.Int).Sub(back, cfg.ProbeAmount)
	if profit.Cmp(cfg.MinProfit) <= 0 {
		return nil, nil
	}
	cost, score := costAndScore(profit, v1.GasOverhead+v2.GasOverhead, cfg.GasPriceWei)
	if cost.Sign() == 0 {
		return nil, nil
	}
	return &domain.Opportunity{
		ID:                uuid.New().String(),
		TokenA:            tokenX,
		TokenB:            tokenY,
		VenueBuy:          venue1,
		VenueSell:         venue2,
		Profit:            profit,
		AmountIn:          new(big.Int).Set(cfg.ProbeAmount),
		GasCost:           cost,
		Score:             score,
		Valid:             true,
		RequiresFlashLoan: cfg.UseFlashLoans,
		DetectedAt:        time.Now().UTC(),
	}, nil
}
