package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrAlreadyExists        = errors.New("already exists")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrUnknownAsset         = errors.New("unknown asset")
	ErrUnknownStrategy      = errors.New("unknown strategy")
	ErrDuplicateAsset       = errors.New("duplicate asset")
	ErrInvalidPrice         = errors.New("invalid price")
	ErrInvalidParameter     = errors.New("invalid parameter")
	ErrLengthMismatch       = errors.New("length mismatch")
	ErrNoEligibleStrategy   = errors.New("no eligible strategy")
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrNotAssessed          = errors.New("subject not assessed")
	ErrStaleData            = errors.New("stale data")
	ErrQuoteUnavailable     = errors.New("quote source unavailable")
	ErrLockHeld             = errors.New("lock already held")
)
