// Package bankclient implements the PvP egress boundary (pvp.BankClient):
// concrete rail dispatchers that accept the canonical transfer form the
// gateway already carries internally. Wire-format message parsing and
// generation (SWIFT MT, ISO 20022 pacs.008) happen upstream of this core,
// by an external collaborator — this package never builds or parses raw
// wire text (spec.md §6); it only validates and dispatches the canonical
// form down a named rail.
package bankclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/deltran/clearing-core/internal/pvp"
	"github.com/deltran/clearing-core/internal/resilience"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// canonicalTransfer is the rail-agnostic shape every dispatcher validates
// and hands to its rail's reference scheme. It is deliberately smaller than
// a real MT202 or pacs.008 payload: the fields a settlement rail actually
// needs to route and reconcile a leg, nothing a wire parser would own.
type canonicalTransfer struct {
	legID               string
	senderBIC           string
	fromAccount         string
	toAccount           string
	amount              decimal.Decimal
	currency            string
	settlementReference string
}

func buildCanonicalTransfer(senderBIC string, req pvp.TransferRequest) (canonicalTransfer, error) {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return canonicalTransfer{}, fmt.Errorf("bankclient: invalid amount %q: %w", req.Amount, err)
	}
	if req.SettlementReference == "" {
		return canonicalTransfer{}, fmt.Errorf("bankclient: settlement reference is required")
	}
	if req.Currency == "" {
		return canonicalTransfer{}, fmt.Errorf("bankclient: currency is required")
	}
	return canonicalTransfer{
		legID:               req.LegID,
		senderBIC:           senderBIC,
		fromAccount:         req.FromAccount,
		toAccount:           req.ToAccount,
		amount:              amount,
		currency:            req.Currency,
		settlementReference: req.SettlementReference,
	}, nil
}

// railStatusBook is the confirmation ledger every rail dispatcher keeps
// for its own external references. The real rail connection (SWIFT
// network, ISO 20022 messaging gateway) owns actual delivery; this core
// only needs to remember what it already confirmed.
type railStatusBook struct {
	mu       sync.Mutex
	statuses map[string]*pvp.TransferStatus
}

func newRailStatusBook() *railStatusBook {
	return &railStatusBook{statuses: make(map[string]*pvp.TransferStatus)}
}

func (b *railStatusBook) confirm(externalReference string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statuses[externalReference] = &pvp.TransferStatus{
		Status:       "CONFIRMED",
		Confirmation: externalReference,
	}
}

func (b *railStatusBook) lookup(externalReference string) (*pvp.TransferStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	status, ok := b.statuses[externalReference]
	if !ok {
		return nil, fmt.Errorf("bankclient: unknown external reference %q", externalReference)
	}
	return status, nil
}

// dispatchWithFaultTolerance runs fn (the rail-specific send) behind a
// circuit breaker and retry policy shared by every rail dispatcher.
func dispatchWithFaultTolerance(ctx context.Context, breaker *resilience.CircuitBreaker, retryConfig *resilience.RetryConfig, fn func(context.Context) error) error {
	return resilience.RetryContextWithCircuitBreaker(ctx, fn, retryConfig, breaker)
}

func newRailBreaker(name string) (*resilience.CircuitBreaker, *resilience.RetryConfig) {
	return resilience.NewCircuitBreaker(resilience.DefaultConfig(name)), resilience.DefaultRetryConfig()
}

func logDispatchFailure(logger *zap.Logger, rail, legID string, err error) {
	logger.Error("rail transfer dispatch failed",
		zap.String("rail", rail),
		zap.String("leg_id", legID),
		zap.Error(err),
	)
}
