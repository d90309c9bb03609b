package domain

import (
	"context"
	"math/big"
)

// QuoteSource abstracts a set of liquidity venues behind a uniform quoting
// contract. A zero amountOut means "no route / no liquidity" and is a normal
// skip condition, never an error; transport failures are surfaced wrapped in
// ErrQuoteUnavailable and abort the calling scan pass.
type QuoteSource interface {
	// Quote returns the output amount for converting amountIn of tokenIn
	// into tokenOut on the given venue.
	Quote(ctx context.Context, tokenIn, tokenOut string, amountIn *big.Int, venue string) (*big.Int, error)

	// ActiveVenues lists the identifiers of venues currently accepting
	// quote requests.
	ActiveVenues(ctx context.Context) ([]string, error)

	// VenueInfo returns the descriptor for a venue. It returns ErrNotFound
	// for unknown venues.
	VenueInfo(ctx context.Context, venue string) (VenueDescriptor, error)
}
