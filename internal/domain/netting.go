package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PendingPayment is the input to the Obligation Builder and Netting Engine:
// a payment that has cleared consensus and is waiting for a clearing window
// to close (spec.md §3).
type PendingPayment struct {
	PaymentID    uuid.UUID
	Amount       decimal.Decimal
	Currency     string
	DebtorBank   string
	CreditorBank string
	QueuedAt     time.Time
}

// BilateralObligation is a derived directed edge (debtor bank -> creditor
// bank, currency) with the aggregate gross amount and cohort of payments it
// represents. Never stored canonically.
type BilateralObligation struct {
	DebtorBank   string
	CreditorBank string
	Currency     string
	GrossAmount  decimal.Decimal
	PaymentIDs   []uuid.UUID
}

// NetTransfer is a derived directed edge (payer -> receiver, currency)
// produced by multilateral netting.
type NetTransfer struct {
	TransferID   uuid.UUID
	DebtorBank   string
	CreditorBank string
	Currency     string
	NetAmount    decimal.Decimal
	PaymentIDs   []uuid.UUID
}

// SettlementBatch is the output of one netting run for one clearing window.
type SettlementBatch struct {
	BatchID            uuid.UUID
	WindowStart        time.Time
	WindowEnd          time.Time
	Currency           string
	GrossObligations   []BilateralObligation
	NetTransfers       []NetTransfer
	TotalGrossAmount   decimal.Decimal
	TotalNetAmount     decimal.Decimal
	NettingEfficiency  float64
}
