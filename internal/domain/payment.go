// Package domain holds the canonical types shared by every component of the
// clearing core: payments, ledger events, blocks, netting artifacts,
// settlement paths and PvP/nostro state.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus is the externally visible lifecycle status of a Payment,
// folded from its LedgerEvents.
type PaymentStatus string

const (
	PaymentStatusInitiated PaymentStatus = "INITIATED"
	PaymentStatusValidated PaymentStatus = "VALIDATED"
	PaymentStatusScreened  PaymentStatus = "SCREENED"
	PaymentStatusApproved  PaymentStatus = "APPROVED"
	PaymentStatusQueued    PaymentStatus = "QUEUED"
	PaymentStatusSettling  PaymentStatus = "SETTLING"
	PaymentStatusSettled   PaymentStatus = "SETTLED"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusRejected  PaymentStatus = "REJECTED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// IsTerminal reports whether the status ends the payment's lifetime.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusCompleted, PaymentStatusRejected, PaymentStatusFailed:
		return true
	default:
		return false
	}
}

// SupportedCurrencies is the closed ISO 4217 enumeration this network clears.
var SupportedCurrencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "AED": true,
	"INR": true, "CHF": true, "JPY": true, "CNY": true,
}

// IsSupportedCurrency reports whether code is in the closed currency set.
func IsSupportedCurrency(code string) bool {
	return SupportedCurrencies[code]
}

// Payment is a cross-border credit-transfer instruction accepted into the
// clearing network. It is derived, not stored canonically — the LedgerEvent
// stream for a PaymentID is the source of truth; Payment is the folded view.
type Payment struct {
	PaymentID       uuid.UUID       `json:"payment_id"`
	UETR            string          `json:"uetr"`
	EndToEndID      string          `json:"end_to_end_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	DebtorBank      string          `json:"debtor_bank"`
	CreditorBank    string          `json:"creditor_bank"`
	DebtorAccount   string          `json:"debtor_account"`
	CreditorAccount string          `json:"creditor_account"`
	DebtorName      string          `json:"debtor_name"`
	CreditorName    string          `json:"creditor_name"`
	Priority        string          `json:"priority"`
	Reference       string          `json:"reference"`
	Status          PaymentStatus   `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Validate enforces the data-model invariants from spec.md §3: positive
// amount, at most 2 fractional digits, supported currency, debtor != creditor
// bank unless it is a same-bank book transfer.
func (p *Payment) Validate() error {
	if p.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be strictly positive", ErrInvalidPayment)
	}
	if p.Amount.Exponent() < -2 {
		return fmt.Errorf("%w: amount must have at most 2 fractional digits", ErrInvalidPayment)
	}
	if !IsSupportedCurrency(p.Currency) {
		return fmt.Errorf("%w: unsupported currency %q", ErrInvalidPayment, p.Currency)
	}
	if len(p.EndToEndID) > 35 {
		return fmt.Errorf("%w: end_to_end_id exceeds 35 characters", ErrInvalidPayment)
	}
	if p.DebtorBank == "" || p.CreditorBank == "" {
		return fmt.Errorf("%w: debtor and creditor bank are required", ErrInvalidPayment)
	}
	if p.DebtorAccount == "" || p.CreditorAccount == "" {
		return fmt.Errorf("%w: debtor and creditor account are required", ErrInvalidPayment)
	}
	return nil
}

// SameBank reports whether this is a same-bank book transfer, which is
// excluded from netting (§4.2) since it books internally.
func (p *Payment) SameBank() bool {
	return p.DebtorBank == p.CreditorBank
}
