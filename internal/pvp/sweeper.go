package pvp

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LockSweeper periodically releases fund locks whose expiry has passed,
// restoring available balance on accounts left stranded by a timed-out or
// crashed settlement (spec.md §4.5).
type LockSweeper struct {
	accounts AccountStore
	logger   *zap.Logger
	period   time.Duration
}

// NewLockSweeper builds a sweeper. period comes from config.PvPConfig.LockSweepPeriod.
func NewLockSweeper(accounts AccountStore, logger *zap.Logger, period time.Duration) *LockSweeper {
	return &LockSweeper{accounts: accounts, logger: logger, period: period}
}

// Run ticks until ctx is cancelled, sweeping expired locks on each tick.
func (s *LockSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("lock sweeper stopping")
			return
		case now := <-ticker.C:
			if n := s.accounts.SweepExpired(ctx, now); n > 0 {
				s.logger.Info("swept expired fund locks", zap.Int("count", n))
			}
		}
	}
}
