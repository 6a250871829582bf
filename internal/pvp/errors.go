package pvp

import "errors"

// Sentinel errors returned by Controller.ExecutePvP, classified per
// spec.md §4.5/§7.
var (
	ErrLockFailed                = errors.New("pvp: lock failed")
	ErrExecutionFailed           = errors.New("pvp: execution failed")
	ErrTimeout                   = errors.New("pvp: settlement timeout")
	ErrPartialSettlement         = errors.New("pvp: partial settlement")
	ErrValidationError           = errors.New("pvp: validation error")
	ErrSequentialRequiresPartial = errors.New("pvp: sequential mode requires allow_partial_settlement")
)
