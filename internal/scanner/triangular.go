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

	"github.com/TroveFi/yieldrouter/internal/domain"
)

type triCandidate struct {
	idx    int
	tokens [3]string
	path   [3]domain.VenueDescriptor
}

// ScanTriangular simulates the three-leg cycle A->B->C->A for every ordered
// triple of distinct whitelisted assets and returns the best candidate whose
// final amount exceeds the starting amount by more than the profit threshold,
// or nil when none does.
//
// The venue path is fixed per pass from the active venue snapshot: with the
// default two-leg path width the first venue carries the outbound and closing
// legs and the second venue the middle leg; with width 3 and at least three
// active venues every leg gets its own venue. Fewer than two active venues
// skips the whole pass. Candidates are ranked by the same cost-normalized
// score as the direct scan so the two scans stay comparable.
func (s *Scanner) ScanTriangular(ctx context.Context, assets []string) (*domain.TriangularOpportunity, error) {
	cfg := s.config()
	if assets == nil {
		assets = s.assets.Snapshot()
	}
	venues, err := s.snapshotVenues(ctx)
	if err != nil {
		return nil, err
	}
	if len(assets) < 3 || len(venues) < 2 {
		return nil, nil
	}

	var path [3]domain.VenueDescriptor
	if cfg.TriangularVenueLegs == 3 && len(venues) >= 3 {
		path = [3]domain.VenueDescriptor{venues[0], venues[1], venues[2]}
	} else {
		path = [3]domain.VenueDescriptor{venues[0], venues[1], venues[0]}
	}

	var candidates []triCandidate
	for i := range assets {
		for j := range assets {
			if j == i {
				continue
			}
			for k := range assets {
				if k == i || k == j {
					continue
				}
				candidates = append(candidates, triCandidate{
					idx:    len(candidates),
					tokens: [3]string{assets[i], assets[j], assets[k]},
					path:   path,
				})
			}
		}
	}

	var (
		bestMu  sync.Mutex
		best    *domain.TriangularOpportunity
		bestIdx int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.MaxConcurrent)
	for _, cand := range candidates {
		cand := cand
		g.Go(func() error {
			opp, err := s.evalTriangle(gctx, cfg, cand)
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
		s.logger.Debug("triangular scan winner",
			slog.String("cycle", best.TokenA+"->"+best.TokenB+"->"+best.TokenC),
			slog.String("profit", best.ExpectedProfit.String()),
		)
	}
	return best, nil
}

// evalTriangle runs the three legs sequentially; each leg consumes the
// previous leg's output. A zero quote on any leg skips the triple.
func (s *Scanner) evalTriangle(ctx context.Context, cfg Config, c triCandidate) (*domain.TriangularOpportunity, error) {
	amount := new(big.Int).Set(cfg.ProbeAmount)
	legs := [3][2]string{
		{c.tokens[0], c.tokens[1]},
		{c.tokens[1], c.tokens[2]},
		{c.tokens[2], c.tokens[0]},
	}
	var gasUnits uint64
	for leg := 0; leg < 3; leg++ {
		out, err := s.quotes.Quote(ctx, legs[leg][0], legs[leg][1], amount, c.path[leg].ID)
		if err != nil {
			return nil, fmt.Errorf("scanner: quote %s->%s on %s: %w",
				legs[leg][0], legs[leg][1], c.path[leg].ID, err)
		}
		if out.Sign() == 0 {
			return nil, nil
		}
		amount = out
		gasUnits += c.path[leg].GasOverhead
	}

	profit := new(big.Int).Sub(amount, cfg.ProbeAmount)
	if profit.Sign() <= 0 || profit.Cmp(cfg.MinProfit) <= 0 {
		return nil, nil
	}
	cost, score := costAndScore(profit, gasUnits, cfg.GasPriceWei)
	if cost.Sign() == 0 {
		return nil, nil
	}
	return &domain.TriangularOpportunity{
		ID:             uuid.New().String(),
		TokenA:         c.tokens[0],
		TokenB:         c.tokens[1],
		TokenC:         c.tokens[2],
		Venues:         []string{c.path[0].ID, c.path[1].ID, c.path[2].ID},
		ExpectedProfit: profit,
		MinAmountIn:    new(big.Int).Set(cfg.ProbeAmount),
		GasCost:        cost,
		Score:          score,
		Valid:          true,
		DetectedAt:     time.Now().UTC(),
	}, nil
}
