package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PvPMode selects the execution mechanism for a two-legged FX settlement
// (spec.md §3, §4.5).
type PvPMode string

const (
	PvPSimultaneous PvPMode = "SIMULTANEOUS"
	PvPSequential   PvPMode = "SEQUENTIAL"
	PvPEscrow       PvPMode = "ESCROW"
	PvPCLS          PvPMode = "CLS"
)

// PvPStatus is the settlement-level state machine (spec.md §4.5).
type PvPStatus string

const (
	PvPInitiated    PvPStatus = "INITIATED"
	PvPLockingFunds PvPStatus = "LOCKING_FUNDS"
	PvPFundsLocked  PvPStatus = "FUNDS_LOCKED"
	PvPExecuting    PvPStatus = "EXECUTING"
	PvPCompleted    PvPStatus = "COMPLETED"
	PvPPartial      PvPStatus = "PARTIAL"
	PvPFailed       PvPStatus = "FAILED"
	PvPRolledBack   PvPStatus = "ROLLED_BACK"
)

// LegStatus is the per-leg state machine (spec.md §4.5).
type LegStatus string

const (
	LegPending    LegStatus = "PENDING"
	LegLocked     LegStatus = "LOCKED"
	LegExecuting  LegStatus = "EXECUTING"
	LegCompleted  LegStatus = "COMPLETED"
	LegFailed     LegStatus = "FAILED"
	LegRolledBack LegStatus = "ROLLED_BACK"
)

// PvPLeg is one side of a two-legged FX settlement.
type PvPLeg struct {
	LegID                uuid.UUID
	Currency             string
	Amount               decimal.Decimal
	FromAccount          string
	ToAccount            string
	SettlementReference  string
	ValueDate            time.Time
	Status               LegStatus
}

// PvPRequest is the input to PvP Controller.ExecutePvP.
type PvPRequest struct {
	SettlementID          uuid.UUID
	LegA                  PvPLeg
	LegB                  PvPLeg
	Mode                  PvPMode
	Timeout               time.Duration
	AllowPartialSettlement bool
}

// PvPSettlement is the full durable record of a two-legged settlement.
type PvPSettlement struct {
	SettlementID        uuid.UUID
	LegA                PvPLeg
	LegB                PvPLeg
	Mode                PvPMode
	Timeout             time.Duration
	AllowPartial        bool
	Status              PvPStatus
	NeedsReconciliation bool
	FailureReason       string
	StartedAt           time.Time
	CompletedAt         *time.Time
}

// PvPResult is returned from ExecutePvP.
type PvPResult struct {
	SettlementID  uuid.UUID
	Status        PvPStatus
	LegAStatus    LegStatus
	LegBStatus    LegStatus
	DurationMs    int64
	FailureReason string
}

// FundLockStatus is the closed lifecycle of a FundLock.
type FundLockStatus string

const (
	LockActive   FundLockStatus = "ACTIVE"
	LockSettled  FundLockStatus = "SETTLED"
	LockReleased FundLockStatus = "RELEASED"
	LockExpired  FundLockStatus = "EXPIRED"
)

// FundLock reserves funds on a NostroAccount for the duration of a PvP
// settlement (spec.md §3).
type FundLock struct {
	LockID       uuid.UUID
	AccountID    string
	SettlementID uuid.UUID
	Amount       decimal.Decimal
	Currency     string
	LockedAt     time.Time
	ExpiresAt    time.Time
	Status       FundLockStatus
}

// NostroAccount is an inter-bank account this network settles against.
// Invariant: LedgerBalance == AvailableBalance + LockedBalance, and
// AvailableBalance >= 0 (spec.md §3).
type NostroAccount struct {
	AccountID       string
	BankID          string
	Currency        string
	LedgerBalance   decimal.Decimal
	AvailableBalance decimal.Decimal
	LockedBalance   decimal.Decimal
}

// CheckInvariant verifies the nostro balance identity holds.
func (a *NostroAccount) CheckInvariant() bool {
	sum := a.AvailableBalance.Add(a.LockedBalance)
	return sum.Equal(a.LedgerBalance) && a.AvailableBalance.Sign() >= 0
}
