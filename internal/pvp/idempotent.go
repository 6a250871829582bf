package pvp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/deltran/clearing-core/internal/domain"
	"github.com/deltran/clearing-core/internal/resilience"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSettlementInFlight is returned when a duplicate settlement
// submission arrives while the original is still executing (the
// distributed lock is held by another process).
var ErrSettlementInFlight = errors.New("pvp: settlement already in flight")

// IdempotentExecutor wraps a Controller so repeated ExecutePvP calls for
// the same settlement id return the original outcome instead of moving
// funds twice (spec.md §6: duplicate settlement submissions must be
// idempotent). Grounded on the teacher's
// internal/resilience.IdempotencyManager (Redis-backed, SET NX locking).
type IdempotentExecutor struct {
	controller *Controller
	manager    *resilience.IdempotencyManager
	lockTTL    time.Duration
	logger     *zap.Logger
}

// NewIdempotentExecutor wraps controller with idempotency protection.
// lockTTL should exceed the controller's configured settlement timeout
// so a legitimate in-progress settlement is never mistaken for a stale
// lock by a concurrent retry.
func NewIdempotentExecutor(controller *Controller, manager *resilience.IdempotencyManager, lockTTL time.Duration, logger *zap.Logger) *IdempotentExecutor {
	return &IdempotentExecutor{
		controller: controller,
		manager:    manager,
		lockTTL:    lockTTL,
		logger:     logger,
	}
}

// ExecutePvP runs req through the wrapped Controller at most once per
// settlement id. A second submission for a settlement id that already
// completed replays the stored result; a second submission that arrives
// while the first is still executing returns ErrSettlementInFlight.
func (e *IdempotentExecutor) ExecutePvP(ctx context.Context, req domain.PvPRequest) (*domain.PvPResult, error) {
	key := settlementKey(req)

	if cached, ok := e.lookup(ctx, key); ok {
		e.logger.Info("replaying cached PvP result for duplicate submission",
			zap.String("settlement_key", key))
		return cached, nil
	}

	var result *domain.PvPResult
	var execErr error

	lockErr := e.manager.ExecuteWithLock(ctx, key, e.lockTTL, func() error {
		if cached, ok := e.lookup(ctx, key); ok {
			result = cached
			return nil
		}
		result, execErr = e.controller.ExecutePvP(ctx, req)
		if result == nil {
			return execErr
		}
		if storeErr := e.store(ctx, key, result); storeErr != nil {
			e.logger.Warn("failed to persist idempotency record",
				zap.String("settlement_key", key), zap.Error(storeErr))
		}
		return execErr
	})

	if result != nil {
		return result, execErr
	}
	if lockErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrSettlementInFlight, lockErr)
	}
	return nil, execErr
}

func (e *IdempotentExecutor) lookup(ctx context.Context, key string) (*domain.PvPResult, bool) {
	stored, err := e.manager.Get(ctx, key)
	if err != nil || stored == nil {
		return nil, false
	}

	raw, err := json.Marshal(stored.Response)
	if err != nil {
		e.logger.Warn("failed to re-marshal cached idempotency response",
			zap.String("settlement_key", key), zap.Error(err))
		return nil, false
	}

	var result domain.PvPResult
	if err := json.Unmarshal(raw, &result); err != nil {
		e.logger.Warn("failed to decode cached PvP result",
			zap.String("settlement_key", key), zap.Error(err))
		return nil, false
	}
	return &result, true
}

func (e *IdempotentExecutor) store(ctx context.Context, key string, result *domain.PvPResult) error {
	return e.manager.Store(ctx, key, result, 0)
}

// settlementKey derives a stable idempotency key for req. A caller-supplied
// SettlementID is authoritative; otherwise the key is derived from both leg
// ids, since two submissions naming the same legs are the same settlement
// request regardless of whether a settlement id was assigned client-side.
func settlementKey(req domain.PvPRequest) string {
	if req.SettlementID != uuid.Nil {
		return resilience.GenerateKey("pvp-settlement", req.SettlementID.String())
	}
	return resilience.GenerateKey("pvp-settlement", req.LegA.LegID.String(), req.LegB.LegID.String())
}
