package domain

import "errors"

// Sentinel errors shared across packages. Each component wraps these with
// fmt.Errorf("...: %w", ...) to add context; callers match with errors.Is.
var (
	ErrInvalidPayment  = errors.New("invalid payment")
	ErrInvalidEvent    = errors.New("invalid event")
	ErrDuplicateEvent  = errors.New("duplicate event")
	ErrNotFound        = errors.New("not found")
	ErrEmptyBlock      = errors.New("empty block")
	ErrMissingEvent    = errors.New("missing event")
	ErrIntegrity       = errors.New("integrity error")
	ErrConcurrency     = errors.New("concurrency error")
	ErrStorage         = errors.New("storage error")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOverflow        = errors.New("overflow")
)
