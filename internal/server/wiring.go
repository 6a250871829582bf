package server

import (
	"context"
	"fmt"
	"time"

	"github.com/deltran/clearing-core/internal/bankclient"
	"github.com/deltran/clearing-core/internal/bus"
	"github.com/deltran/clearing-core/internal/config"
	"github.com/deltran/clearing-core/internal/consensus"
	"github.com/deltran/clearing-core/internal/domain"
	"github.com/deltran/clearing-core/internal/netting"
	"github.com/deltran/clearing-core/internal/pathselect"
	"github.com/deltran/clearing-core/internal/pvp"
	"github.com/deltran/clearing-core/internal/resilience"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// dispositionPublisher adapts bus.Producer's generic, context-taking
// publish signature onto consensus.Publisher's synchronous one, since the
// Aggregator's hot path (UpdateDecision) has no caller-supplied context to
// thread through.
type dispositionPublisher struct {
	producer *bus.Producer
}

func (d *dispositionPublisher) PublishDisposition(paymentID uuid.UUID, disposition domain.Disposition) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return d.producer.PublishDisposition(ctx, paymentID.String(), disposition)
}

// settlementComponents bundles the PvP/consensus/netting/path-selection
// stack wired from config, independent of the Event Ledger / worker pool
// the rest of Server already builds.
type settlementComponents struct {
	redisClient  *redis.Client
	natsConn     *bus.Integration
	producer     *bus.Producer
	bankClient   pvp.BankClient
	pvpAccounts  *pvp.MemAccountStore
	pvpExecutor  *pvp.IdempotentExecutor
	lockSweeper  *pvp.LockSweeper
	consensus    *consensus.Aggregator
	nettingEngine *netting.Engine
	nettingWindows *nettingWindowManager
	pathSelector *pathselect.Selector

	*platformComponents
}

// buildSettlementComponents wires the PvP controller, consensus aggregator,
// netting engine and path selector described in SPEC_FULL.md, backed by
// Redis (idempotency) and NATS JetStream (event publication) the same way
// the teacher's own resilience/bus packages are configured elsewhere.
func buildSettlementComponents(cfg *config.Config, logger *zap.Logger) (*settlementComponents, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	platform, err := buildPlatformComponents(cfg, redisClient, logger)
	if err != nil {
		return nil, fmt.Errorf("build platform components: %w", err)
	}

	natsIntegration, err := bus.NewIntegration(&bus.Config{
		URL:          cfg.NATS.URL,
		StreamPrefix: "deltran",
	}, logger, platform.metrics)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	producer := natsIntegration.Producer()

	var bankClient pvp.BankClient
	switch cfg.Settlement.Rail {
	case "swift":
		bankClient = bankclient.NewSWIFTClient(cfg.Settlement.SenderBIC, logger)
	default:
		bankClient = bankclient.NewISO20022Client(cfg.Settlement.SenderBIC, cfg.Settlement.SupportedCurrencies, logger)
	}

	accounts := pvp.NewMemAccountStore()
	controller := pvp.New(accounts, bankClient, logger, cfg.PvP.DefaultTimeout, cfg.PvP.FundLockExpiry)
	idempotencyManager := resilience.NewIdempotencyManager(redisClient, 24*time.Hour)
	executor := pvp.NewIdempotentExecutor(controller, idempotencyManager, cfg.PvP.FundLockExpiry, logger)
	sweeper := pvp.NewLockSweeper(accounts, logger, cfg.PvP.LockSweepPeriod)

	aggregator := consensus.New(&dispositionPublisher{producer: producer}, logger)

	nettingEngine := netting.NewEngine(cfg.Netting.MinEfficiency, cfg.Netting.EnableBilateral)
	nettingWindows := newNettingWindowManager()

	pathSelector, err := pathselect.New(cfg.PathSelect)
	if err != nil {
		return nil, fmt.Errorf("build path selector: %w", err)
	}

	return &settlementComponents{
		redisClient:         redisClient,
		natsConn:            natsIntegration,
		producer:            producer,
		bankClient:          bankClient,
		pvpAccounts:         accounts,
		pvpExecutor:         executor,
		lockSweeper:         sweeper,
		consensus:           aggregator,
		nettingEngine:       nettingEngine,
		nettingWindows:      nettingWindows,
		pathSelector:        pathSelector,
		platformComponents:  platform,
	}, nil
}

func (sc *settlementComponents) Close() error {
	var firstErr error
	if err := sc.natsConn.Close(); err != nil {
		firstErr = err
	}
	if err := sc.redisClient.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := sc.platformComponents.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
