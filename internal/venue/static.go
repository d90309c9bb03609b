// Package venue provides QuoteSource implementations: an EVM router adapter
// for live venues and an in-memory fixture source for tests and dry runs.
package venue

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/TroveFi/yieldrouter/internal/domain"
)

type rate struct {
	num *big.Int
	den *big.Int
}

// StaticSource is an in-memory QuoteSource with fixed conversion rates per
// venue and pair. Quotes are amountIn * num / den; pairs without a configured
// rate quote zero (no liquidity). An injected error simulates a quote-source
// outage.
type StaticSource struct {
	mu     sync.RWMutex
	venues map[string]domain.VenueDescriptor
	order  []string
	rates  map[string]rate // key: venue|tokenIn|tokenOut
	err    error
}

// NewStaticSource returns an empty fixture source.
func NewStaticSource() *StaticSource {
	return &StaticSource{
		venues: make(map[string]domain.VenueDescriptor),
		rates:  make(map[string]rate),
	}
}

func rateKey(venue, tokenIn, tokenOut string) string {
	return venue + "|" + tokenIn + "|" + tokenOut
}

// AddVenue registers a venue descriptor.
func (s *StaticSource) AddVenue(d domain.VenueDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.venues[d.ID]; !ok {
		s.order = append(s.order, d.ID)
	}
	s.venues[d.ID] = d
}

// SetRate fixes the conversion rate for a pair on a venue: out = in*num/den.
func (s *StaticSource) SetRate(venue, tokenIn, tokenOut string, num, den int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[rateKey(venue, tokenIn, tokenOut)] = rate{num: big.NewInt(num), den: big.NewInt(den)}
}

// Fail makes every subsequent call return err until cleared with nil.
func (s *StaticSource) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Quote implements domain.QuoteSource.
func (s *StaticSource) Quote(ctx context.Context, tokenIn, tokenOut string, amountIn *big.Int, venue string) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, fmt.Errorf("venue: static quote: %w: %w", domain.ErrQuoteUnavailable, s.err)
	}
	r, ok := s.rates[rateKey(venue, tokenIn, tokenOut)]
	if !ok {
		return new(big.Int), nil
	}
	out := new(big.Int).Mul(amountIn, r.num)
	return out.Quo(out, r.den), nil
}

// ActiveVenues implements domain.QuoteSource.
func (s *StaticSource) ActiveVenues(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, fmt.Errorf("venue: static venues: %w: %w", domain.ErrQuoteUnavailable, s.err)
	}
	var out []string
	for _, id := range s.order {
		if s.venues[id].Active {
			out = append(out, id)
		}
	}
	return out, nil
}

// VenueInfo implements domain.QuoteSource.
func (s *StaticSource) VenueInfo(ctx context.Context, venue string) (domain.VenueDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.venues[venue]
	if !ok {
		return domain.VenueDescriptor{}, fmt.Errorf("venue: info %s: %w", venue, domain.ErrNotFound)
	}
	return d, nil
}
