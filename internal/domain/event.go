package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventKind is the closed enumeration of ledger event kinds (spec.md §3).
type EventKind string

const (
	EventPaymentInitiated    EventKind = "PAYMENT_INITIATED"
	EventValidationPassed    EventKind = "VALIDATION_PASSED"
	EventValidationFailed    EventKind = "VALIDATION_FAILED"
	EventSanctionsCleared    EventKind = "SANCTIONS_CLEARED"
	EventSanctionsHit        EventKind = "SANCTIONS_HIT"
	EventRiskApproved        EventKind = "RISK_APPROVED"
	EventRiskRejected        EventKind = "RISK_REJECTED"
	EventQueuedForSettlement EventKind = "QUEUED_FOR_SETTLEMENT"
	EventSettlementStarted   EventKind = "SETTLEMENT_STARTED"
	EventSettlementCompleted EventKind = "SETTLEMENT_COMPLETED"
	EventPaymentCompleted    EventKind = "PAYMENT_COMPLETED"
	EventPaymentRejected     EventKind = "PAYMENT_REJECTED"
	EventPaymentFailed       EventKind = "PAYMENT_FAILED"
)

// terminalKinds are the event kinds that end a payment's per-payment chain.
var terminalKinds = map[EventKind]bool{
	EventPaymentCompleted: true,
	EventPaymentRejected:  true,
	EventPaymentFailed:    true,
}

// IsTerminal reports whether this event kind ends a payment lifecycle.
func (k EventKind) IsTerminal() bool {
	return terminalKinds[k]
}

// ResultingStatus maps an event kind to the PaymentStatus it drives the
// folded Payment view into.
func (k EventKind) ResultingStatus() PaymentStatus {
	switch k {
	case EventPaymentInitiated:
		return PaymentStatusInitiated
	case EventValidationPassed:
		return PaymentStatusValidated
	case EventSanctionsCleared:
		return PaymentStatusScreened
	case EventRiskApproved:
		return PaymentStatusApproved
	case EventQueuedForSettlement:
		return PaymentStatusQueued
	case EventSettlementStarted:
		return PaymentStatusSettling
	case EventSettlementCompleted:
		return PaymentStatusSettled
	case EventPaymentCompleted:
		return PaymentStatusCompleted
	case EventValidationFailed, EventSanctionsHit, EventRiskRejected, EventPaymentRejected:
		return PaymentStatusRejected
	case EventPaymentFailed:
		return PaymentStatusFailed
	default:
		return ""
	}
}

// LedgerEvent is a single immutable state transition appended to the event
// ledger. Events for a given PaymentID form a hash chain via PrevEventID and
// are ordered by NanoTime (spec.md §3, §4.1).
type LedgerEvent struct {
	EventID      uuid.UUID       `json:"event_id"`
	PaymentID    uuid.UUID       `json:"payment_id"`
	Kind         EventKind       `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	DebtorBank   string          `json:"debtor_bank"`
	CreditorBank string          `json:"creditor_bank"`
	NanoTime     int64           `json:"nano_time"`
	PrevEventID  uuid.UUID       `json:"prev_event_id"` // uuid.Nil for the root event
	Signature    []byte          `json:"signature,omitempty"`
	BlockID      *uuid.UUID      `json:"block_id,omitempty"`
}

// Timestamp returns NanoTime as a time.Time for logging/comparison.
func (e *LedgerEvent) Timestamp() time.Time {
	return time.Unix(0, e.NanoTime)
}

// IsRoot reports whether this event is the first in its payment's chain.
func (e *LedgerEvent) IsRoot() bool {
	return e.PrevEventID == uuid.Nil
}
