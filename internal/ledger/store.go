// Package ledger implements the event-sourced ledger: an append-only log of
// LedgerEvents folded into Payment views and periodically committed into
// hash-chained, Merkle-rooted Blocks.
package ledger

import (
	"fmt"
	"sync"

	"github.com/deltran/clearing-core/internal/domain"
	"github.com/google/uuid"
)

// EventStore is the durability seam for the ledger. The in-memory
// implementation below is the reference; a Postgres-backed implementation
// (see internal/database) can satisfy the same interface without the actor
// or any caller needing to change.
type EventStore interface {
	PutEvent(event *domain.LedgerEvent) error
	GetEvent(eventID uuid.UUID) (*domain.LedgerEvent, error)
	GetPaymentEvents(paymentID uuid.UUID) ([]*domain.LedgerEvent, error)
	PutBlock(block *domain.Block) error
	GetLatestBlock() (*domain.Block, error)
	GetBlockByHeight(height uint64) (*domain.Block, error)
}

// MemStore is an in-memory EventStore, sufficient for tests and for a
// single-process deployment. It mirrors the column-family layout of the
// reference store: events keyed by event ID, a per-payment index, and
// blocks keyed by height.
type MemStore struct {
	mu              sync.RWMutex
	events          map[uuid.UUID]*domain.LedgerEvent
	paymentIndex    map[uuid.UUID][]uuid.UUID // payment ID -> ordered event IDs
	blocksByHeight  map[uint64]*domain.Block
	latestHeight    uint64
	hasBlocks       bool
}

// NewMemStore creates an empty in-memory event store.
func NewMemStore() *MemStore {
	return &MemStore{
		events:         make(map[uuid.UUID]*domain.LedgerEvent),
		paymentIndex:   make(map[uuid.UUID][]uuid.UUID),
		blocksByHeight: make(map[uint64]*domain.Block),
	}
}

// PutEvent appends event to the log, indexing it under its payment.
func (s *MemStore) PutEvent(event *domain.LedgerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[event.EventID]; exists {
		return fmt.Errorf("%w: event %s already stored", domain.ErrDuplicateEvent, event.EventID)
	}

	s.events[event.EventID] = event
	s.paymentIndex[event.PaymentID] = append(s.paymentIndex[event.PaymentID], event.EventID)
	return nil
}

// GetEvent looks up a single event by ID.
func (s *MemStore) GetEvent(eventID uuid.UUID) (*domain.LedgerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.events[eventID]
	if !ok {
		return nil, fmt.Errorf("%w: event %s", domain.ErrNotFound, eventID)
	}
	return event, nil
}

// GetPaymentEvents returns all events for a payment in append order.
func (s *MemStore) GetPaymentEvents(paymentID uuid.UUID) ([]*domain.LedgerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.paymentIndex[paymentID]
	events := make([]*domain.LedgerEvent, 0, len(ids))
	for _, id := range ids {
		events = append(events, s.events[id])
	}
	return events, nil
}

// PutBlock stores a finalized block and advances the height cursor.
func (s *MemStore) PutBlock(block *domain.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blocksByHeight[block.Height] = block
	if !s.hasBlocks || block.Height > s.latestHeight {
		s.latestHeight = block.Height
		s.hasBlocks = true
	}
	return nil
}

// GetLatestBlock returns the highest-height block, or nil if none exist.
func (s *MemStore) GetLatestBlock() (*domain.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.hasBlocks {
		return nil, nil
	}
	return s.blocksByHeight[s.latestHeight], nil
}

// GetBlockByHeight looks up a finalized block.
func (s *MemStore) GetBlockByHeight(height uint64) (*domain.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	block, ok := s.blocksByHeight[height]
	if !ok {
		return nil, fmt.Errorf("%w: block at height %d", domain.ErrNotFound, height)
	}
	return block, nil
}
