package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/deltran/clearing-core/internal/config"
	"github.com/deltran/clearing-core/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Publisher is the egress seam: finalized blocks are announced on it.
// internal/bus.Producer satisfies this.
type Publisher interface {
	PublishBlock(ctx context.Context, block *domain.Block) error
}

// noopPublisher drops block notifications; used when Ledger is built
// without a bus wired in (e.g. in unit tests).
type noopPublisher struct{}

func (noopPublisher) PublishBlock(context.Context, *domain.Block) error { return nil }

// Ledger is the Event Ledger component: it validates and appends events
// through a single-writer actor, folds them into payment state, and
// finalizes Merkle-committed, hash-chained blocks.
type Ledger struct {
	store              EventStore
	handle             *handle
	logger             *zap.Logger
	clockSkewTolerance time.Duration
	publisher          Publisher
}

// Option configures a Ledger at construction time.
type Option func(*Ledger)

// WithPublisher wires a Publisher for finalized-block egress.
func WithPublisher(p Publisher) Option {
	return func(l *Ledger) { l.publisher = p }
}

// Open constructs a Ledger backed by store, spawning its writer actor.
func Open(cfg *config.Config, logger *zap.Logger, store EventStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:              store,
		handle:             spawnActor(store, logger, cfg.Ledger.BatchSize, cfg.Ledger.BatchTimeout, cfg.Ledger.EnableBatching),
		logger:             logger,
		clockSkewTolerance: cfg.Ledger.ClockSkewTolerance,
		publisher:          noopPublisher{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AppendEvent validates and durably appends a single event, deriving
// EventID/NanoTime/PrevEventID from the current chain tip if unset.
func (l *Ledger) AppendEvent(ctx context.Context, paymentID uuid.UUID, kind domain.EventKind, payment *domain.Payment) (*domain.LedgerEvent, error) {
	prior, err := l.store.GetPaymentEvents(paymentID)
	if err != nil {
		return nil, err
	}

	var prevEventID uuid.UUID
	if len(prior) > 0 {
		prevEventID = prior[len(prior)-1].EventID
	}

	event := &domain.LedgerEvent{
		EventID:      uuid.New(),
		PaymentID:    paymentID,
		Kind:         kind,
		Amount:       payment.Amount,
		Currency:     payment.Currency,
		DebtorBank:   payment.DebtorBank,
		CreditorBank: payment.CreditorBank,
		NanoTime:     time.Now().UnixNano(),
		PrevEventID:  prevEventID,
	}

	if err := l.validateEvent(event); err != nil {
		return nil, err
	}

	if err := l.handle.appendEvent(event); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	return event, nil
}

// validateEvent enforces the ledger's local invariants: positive amount,
// and a timestamp not further in the future than the configured clock-skew
// tolerance.
func (l *Ledger) validateEvent(event *domain.LedgerEvent) error {
	if event.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", domain.ErrInvalidEvent)
	}

	tolerance := l.clockSkewTolerance
	if tolerance <= 0 {
		tolerance = 60 * time.Second
	}
	if event.NanoTime > time.Now().Add(tolerance).UnixNano() {
		return fmt.Errorf("%w: timestamp is too far in the future", domain.ErrInvalidEvent)
	}
	return nil
}

// GetEvent looks up a single event.
func (l *Ledger) GetEvent(eventID uuid.UUID) (*domain.LedgerEvent, error) {
	return l.store.GetEvent(eventID)
}

// GetPaymentEvents returns the full event history for a payment.
func (l *Ledger) GetPaymentEvents(paymentID uuid.UUID) ([]*domain.LedgerEvent, error) {
	return l.store.GetPaymentEvents(paymentID)
}

// GetPaymentState folds a payment's event history into its current view.
// It is the ledger's read-side equivalent of the original's PaymentState
// rebuild: there is no canonical Payment row, only the chain of events.
func (l *Ledger) GetPaymentState(paymentID uuid.UUID) (*domain.Payment, error) {
	events, err := l.store.GetPaymentEvents(paymentID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: payment %s", domain.ErrNotFound, paymentID)
	}

	first := events[0]
	payment := &domain.Payment{
		PaymentID:    paymentID,
		Amount:       first.Amount,
		Currency:     first.Currency,
		DebtorBank:   first.DebtorBank,
		CreditorBank: first.CreditorBank,
		CreatedAt:    first.Timestamp(),
	}

	for _, event := range events {
		if status := event.Kind.ResultingStatus(); status != "" {
			payment.Status = status
		}
		payment.UpdatedAt = event.Timestamp()
	}

	return payment, nil
}

// FinalizeBlock computes the Merkle root over eventIDs, chains the block to
// the current tip, stores it, and publishes it for egress.
func (l *Ledger) FinalizeBlock(ctx context.Context, eventIDs []uuid.UUID) (*domain.Block, error) {
	if len(eventIDs) == 0 {
		return nil, domain.ErrEmptyBlock
	}

	leaves := make([][32]byte, 0, len(eventIDs))
	for _, id := range eventIDs {
		event, err := l.store.GetEvent(id)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMissingEvent, err)
		}
		leaves = append(leaves, hashEvent(event))
	}
	root := merkleRoot(leaves)

	prev, err := l.store.GetLatestBlock()
	if err != nil {
		return nil, err
	}

	var height uint64
	var prevHash [32]byte
	if prev != nil {
		height = prev.Height + 1
		prevHash = computeBlockHash(prev.Height, prev.MerkleRoot, prev.PrevBlockHash)
	}

	block := &domain.Block{
		BlockID:       uuid.New(),
		Height:        height,
		MerkleRoot:    root,
		PrevBlockHash: prevHash,
		EventIDs:      eventIDs,
		FinalizedAt:   time.Now(),
	}

	if err := l.store.PutBlock(block); err != nil {
		return nil, err
	}

	l.logger.Info("block finalized",
		zap.String("block_id", block.BlockID.String()),
		zap.Uint64("height", block.Height),
		zap.Int("event_count", len(eventIDs)),
	)

	if err := l.publisher.PublishBlock(ctx, block); err != nil {
		l.logger.Error("failed to publish finalized block", zap.Error(err))
	}

	return block, nil
}

// GetLatestBlock returns the chain tip, or nil if no block has been
// finalized yet.
func (l *Ledger) GetLatestBlock() (*domain.Block, error) {
	return l.store.GetLatestBlock()
}

// FlushBatch forces any pending batched events to durable storage
// immediately; used by tests and graceful shutdown.
func (l *Ledger) FlushBatch() error {
	return l.handle.flushBatch()
}

// Close flushes any pending batch and stops the writer actor.
func (l *Ledger) Close() error {
	l.handle.close()
	return nil
}
