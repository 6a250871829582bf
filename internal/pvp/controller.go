// Package pvp implements the PvP (Payment-vs-Payment) Controller: atomic
// two-legged FX settlement with fund locking, external transfer dispatch,
// and rollback/compensation on failure (spec.md §4.5).
package pvp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/deltran/clearing-core/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Controller executes PvP settlements against an AccountStore and a
// BankClient (spec.md §4.5, §6).
type Controller struct {
	accounts       AccountStore
	bank           BankClient
	logger         *zap.Logger
	defaultTimeout time.Duration
	lockExpiry     time.Duration
}

// New builds a Controller. defaultTimeout and lockExpiry come from
// config.PvPConfig.
func New(accounts AccountStore, bank BankClient, logger *zap.Logger, defaultTimeout, lockExpiry time.Duration) *Controller {
	return &Controller{
		accounts:       accounts,
		bank:           bank,
		logger:         logger,
		defaultTimeout: defaultTimeout,
		lockExpiry:     lockExpiry,
	}
}

// legState tracks one leg's progress so a timeout path can report the
// settlement's state at the moment it aborted.
type legState struct {
	mu     sync.Mutex
	status domain.LegStatus
	lockID uuid.UUID
}

func (l *legState) set(status domain.LegStatus) {
	l.mu.Lock()
	l.status = status
	l.mu.Unlock()
}

func (l *legState) get() domain.LegStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// resolveTimeout falls back to the controller's configured default
// (config.PvP.DefaultTimeout, validated at startup to the 30-120s range
// per spec.md §6) when the request doesn't specify one.
func resolveTimeout(requested, configured time.Duration) time.Duration {
	if requested > 0 {
		return requested
	}
	return configured
}

func validateLeg(leg domain.PvPLeg) error {
	if leg.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: leg amount must be positive", ErrValidationError)
	}
	if leg.Currency == "" {
		return fmt.Errorf("%w: leg currency required", ErrValidationError)
	}
	if leg.FromAccount == "" || leg.ToAccount == "" {
		return fmt.Errorf("%w: leg accounts required", ErrValidationError)
	}
	return nil
}

// ExecutePvP runs request through its mode's settlement algorithm, bounded
// by a wall-clock timeout (spec.md §5 Cancellation).
func (c *Controller) ExecutePvP(ctx context.Context, req domain.PvPRequest) (*domain.PvPResult, error) {
	if err := validateLeg(req.LegA); err != nil {
		return nil, err
	}
	if err := validateLeg(req.LegB); err != nil {
		return nil, err
	}
	if req.Mode == domain.PvPSequential && !req.AllowPartialSettlement {
		return nil, ErrSequentialRequiresPartial
	}

	settlementID := req.SettlementID
	if settlementID == uuid.Nil {
		settlementID = uuid.New()
	}

	timeout := resolveTimeout(req.Timeout, c.defaultTimeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	legAState := &legState{status: domain.LegPending}
	legBState := &legState{status: domain.LegPending}

	start := time.Now()

	type outcome struct {
		result *domain.PvPResult
		err    error
	}
	ch := make(chan outcome, 1)

	go func() {
		result, err := c.executeMode(ctx, settlementID, req, legAState, legBState)
		ch <- outcome{result, err}
	}()

	select {
	case o := <-ch:
		return o.result, o.err
	case <-ctx.Done():
		c.logger.Warn("pvp settlement timed out",
			zap.String("settlement_id", settlementID.String()),
			zap.String("leg_a_status", string(legAState.get())),
			zap.String("leg_b_status", string(legBState.get())),
		)
		return &domain.PvPResult{
			SettlementID:  settlementID,
			Status:        domain.PvPFailed,
			LegAStatus:    legAState.get(),
			LegBStatus:    legBState.get(),
			DurationMs:    time.Since(start).Milliseconds(),
			FailureReason: "timeout",
		}, ErrTimeout
	}
}

func (c *Controller) executeMode(ctx context.Context, settlementID uuid.UUID, req domain.PvPRequest, legA, legB *legState) (*domain.PvPResult, error) {
	switch req.Mode {
	case domain.PvPSequential:
		return c.executeSequential(ctx, settlementID, req, legA, legB)
	case domain.PvPSimultaneous, domain.PvPEscrow, domain.PvPCLS:
		// Escrow and CLS select settlement accounts differently but share
		// the Simultaneous atomic envelope (spec.md §4.5).
		return c.executeSimultaneous(ctx, settlementID, req, legA, legB)
	default:
		return nil, fmt.Errorf("%w: unknown pvp mode %q", ErrValidationError, req.Mode)
	}
}

// executeSimultaneous locks both legs, then executes both legs, rolling
// back on any failure at either stage.
func (c *Controller) executeSimultaneous(ctx context.Context, settlementID uuid.UUID, req domain.PvPRequest, legA, legB *legState) (*domain.PvPResult, error) {
	start := time.Now()
	expiry := time.Now().Add(c.lockExpiry)

	lockA, errA := c.accounts.LockFunds(ctx, settlementID, req.LegA.FromAccount, req.LegA.Amount, req.LegA.Currency, expiry)
	if errA == nil {
		legA.lockID = lockA.LockID
		legA.set(domain.LegLocked)
	}
	lockB, errB := c.accounts.LockFunds(ctx, settlementID, req.LegB.FromAccount, req.LegB.Amount, req.LegB.Currency, expiry)
	if errB == nil {
		legB.lockID = lockB.LockID
		legB.set(domain.LegLocked)
	}

	if errA != nil || errB != nil {
		if errA == nil {
			_ = c.accounts.ReleaseLock(ctx, lockA.LockID)
			legA.set(domain.LegRolledBack)
		}
		if errB == nil {
			_ = c.accounts.ReleaseLock(ctx, lockB.LockID)
			legB.set(domain.LegRolledBack)
		}
		c.logger.Warn("pvp lock failed", zap.String("settlement_id", settlementID.String()), zap.Errors("errors", nonNilErrs(errA, errB)))
		return c.failure(settlementID, legA, legB, start, "lock failed"), ErrLockFailed
	}

	legA.set(domain.LegExecuting)
	legB.set(domain.LegExecuting)

	_, execErrA := c.bank.InitiateTransfer(ctx, legTransferRequest(req.LegA))
	_, execErrB := c.bank.InitiateTransfer(ctx, legTransferRequest(req.LegB))

	if execErrA != nil || execErrB != nil {
		_ = c.accounts.ReleaseLock(ctx, lockA.LockID)
		_ = c.accounts.ReleaseLock(ctx, lockB.LockID)
		legA.set(domain.LegRolledBack)
		legB.set(domain.LegRolledBack)
		c.logger.Error("pvp execution failed", zap.String("settlement_id", settlementID.String()), zap.Errors("errors", nonNilErrs(execErrA, execErrB)))
		return c.failure(settlementID, legA, legB, start, "execution failed"), ErrExecutionFailed
	}

	if err := c.accounts.SettleLock(ctx, lockA.LockID); err != nil {
		c.logger.Error("pvp settle leg A failed", zap.Error(err))
	}
	if err := c.accounts.SettleLock(ctx, lockB.LockID); err != nil {
		c.logger.Error("pvp settle leg B failed", zap.Error(err))
	}
	legA.set(domain.LegCompleted)
	legB.set(domain.LegCompleted)

	completedAt := time.Now()
	return &domain.PvPResult{
		SettlementID: settlementID,
		Status:       domain.PvPCompleted,
		LegAStatus:   domain.LegCompleted,
		LegBStatus:   domain.LegCompleted,
		DurationMs:   completedAt.Sub(start).Milliseconds(),
	}, nil
}

// executeSequential settles leg A, commits, then leg B. If leg B cannot be
// locked or executed after leg A has committed, leg A is compensated via a
// reversing transfer and the result is PartialSettlement, not rolled back
// (spec.md §4.5).
func (c *Controller) executeSequential(ctx context.Context, settlementID uuid.UUID, req domain.PvPRequest, legA, legB *legState) (*domain.PvPResult, error) {
	start := time.Now()
	expiry := time.Now().Add(c.lockExpiry)

	legA.set(domain.LegExecuting)
	lockA, err := c.accounts.LockFunds(ctx, settlementID, req.LegA.FromAccount, req.LegA.Amount, req.LegA.Currency, expiry)
	if err != nil {
		legA.set(domain.LegRolledBack)
		return c.failure(settlementID, legA, legB, start, "leg A lock failed"), ErrLockFailed
	}
	if _, err := c.bank.InitiateTransfer(ctx, legTransferRequest(req.LegA)); err != nil {
		_ = c.accounts.ReleaseLock(ctx, lockA.LockID)
		legA.set(domain.LegRolledBack)
		return c.failure(settlementID, legA, legB, start, "leg A execution failed"), ErrExecutionFailed
	}
	if err := c.accounts.SettleLock(ctx, lockA.LockID); err != nil {
		c.logger.Error("pvp settle leg A failed", zap.Error(err))
	}
	legA.set(domain.LegCompleted)

	legB.set(domain.LegExecuting)
	lockB, err := c.accounts.LockFunds(ctx, settlementID, req.LegB.FromAccount, req.LegB.Amount, req.LegB.Currency, expiry)
	if err != nil {
		c.compensateLeg(ctx, settlementID, req.LegA, legA)
		return c.partial(settlementID, legA, legB, start, "leg B lock failed after leg A committed"), ErrPartialSettlement
	}
	if _, err := c.bank.InitiateTransfer(ctx, legTransferRequest(req.LegB)); err != nil {
		_ = c.accounts.ReleaseLock(ctx, lockB.LockID)
		legB.set(domain.LegRolledBack)
		c.compensateLeg(ctx, settlementID, req.LegA, legA)
		return c.partial(settlementID, legA, legB, start, "leg B execution failed after leg A committed"), ErrPartialSettlement
	}
	if err := c.accounts.SettleLock(ctx, lockB.LockID); err != nil {
		c.logger.Error("pvp settle leg B failed", zap.Error(err))
	}
	legB.set(domain.LegCompleted)

	return &domain.PvPResult{
		SettlementID: settlementID,
		Status:       domain.PvPCompleted,
		LegAStatus:   domain.LegCompleted,
		LegBStatus:   domain.LegCompleted,
		DurationMs:   time.Since(start).Milliseconds(),
	}, nil
}

// compensateLeg reverses an already-committed leg by dispatching a
// reversing transfer. Best-effort: failures are logged, since the caller
// is already on the PartialSettlement path and must report it regardless.
func (c *Controller) compensateLeg(ctx context.Context, settlementID uuid.UUID, leg domain.PvPLeg, state *legState) {
	reversal := legTransferRequest(leg)
	reversal.FromAccount, reversal.ToAccount = leg.ToAccount, leg.FromAccount
	if _, err := c.bank.InitiateTransfer(ctx, reversal); err != nil {
		c.logger.Error("pvp compensation transfer failed",
			zap.String("settlement_id", settlementID.String()),
			zap.Error(err),
		)
	}
	state.set(domain.LegRolledBack)
}

func (c *Controller) failure(settlementID uuid.UUID, legA, legB *legState, start time.Time, reason string) *domain.PvPResult {
	return &domain.PvPResult{
		SettlementID:  settlementID,
		Status:        domain.PvPFailed,
		LegAStatus:    legA.get(),
		LegBStatus:    legB.get(),
		DurationMs:    time.Since(start).Milliseconds(),
		FailureReason: reason,
	}
}

func (c *Controller) partial(settlementID uuid.UUID, legA, legB *legState, start time.Time, reason string) *domain.PvPResult {
	return &domain.PvPResult{
		SettlementID:  settlementID,
		Status:        domain.PvPPartial,
		LegAStatus:    legA.get(),
		LegBStatus:    legB.get(),
		DurationMs:    time.Since(start).Milliseconds(),
		FailureReason: reason,
	}
}

func legTransferRequest(leg domain.PvPLeg) TransferRequest {
	return TransferRequest{
		LegID:               leg.LegID.String(),
		FromAccount:         leg.FromAccount,
		ToAccount:           leg.ToAccount,
		Amount:              leg.Amount.String(),
		Currency:            leg.Currency,
		SettlementReference: leg.SettlementReference,
	}
}

func nonNilErrs(errs ...error) []error {
	var out []error
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}
