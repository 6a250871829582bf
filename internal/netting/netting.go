// Package netting implements multilateral netting: collapsing gross
// bilateral obligations into the minimum set of net transfers that settle
// the same positions.
package netting

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/deltran/clearing-core/internal/domain"
	"github.com/deltran/clearing-core/internal/obligation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNoPayments is returned when Compute is called with no payments.
var ErrNoPayments = errors.New("netting: no payments to net")

// ErrInsufficientEfficiency is returned when the computed netting
// efficiency falls below the configured minimum.
var ErrInsufficientEfficiency = errors.New("netting: efficiency below minimum")

// Engine computes multilateral netting batches for a clearing window.
type Engine struct {
	minEfficiency   float64
	enableBilateral bool
}

// NewEngine creates a netting engine with the given minimum acceptable
// efficiency and whether bilateral pre-netting is applied before the
// multilateral pass.
func NewEngine(minEfficiency float64, enableBilateral bool) *Engine {
	return &Engine{minEfficiency: minEfficiency, enableBilateral: enableBilateral}
}

// Compute nets a cohort of pending payments into a SettlementBatch,
// processing each currency independently (spec.md §4.3).
func (e *Engine) Compute(windowStart, windowEnd time.Time, payments []domain.PendingPayment) (*domain.SettlementBatch, error) {
	if len(payments) == 0 {
		return nil, ErrNoPayments
	}

	byCurrency := groupByCurrency(payments)
	currencies := sortedCurrencies(byCurrency)

	var allObligations []domain.BilateralObligation
	var allTransfers []domain.NetTransfer
	totalGross := decimal.Zero
	totalNet := decimal.Zero

	for _, currency := range currencies {
		rawObligations := obligation.Build(byCurrency[currency])
		for _, obl := range rawObligations {
			totalGross = totalGross.Add(obl.GrossAmount)
		}

		positionObligations := rawObligations
		if e.enableBilateral {
			positionObligations = applyBilateralNetting(rawObligations)
		}

		transfers := generateNetTransfers(positionObligations, currency)
		for _, t := range transfers {
			totalNet = totalNet.Add(t.NetAmount)
		}

		allObligations = append(allObligations, rawObligations...)
		allTransfers = append(allTransfers, transfers...)
	}

	efficiency := 0.0
	if totalGross.IsPositive() {
		eff, _ := totalGross.Sub(totalNet).Div(totalGross).Float64()
		efficiency = eff
	}

	if efficiency < e.minEfficiency {
		return nil, fmt.Errorf("%w: %.4f < %.4f", ErrInsufficientEfficiency, efficiency, e.minEfficiency)
	}

	currency := ""
	if len(allTransfers) > 0 {
		currency = allTransfers[0].Currency
	} else if len(currencies) > 0 {
		currency = currencies[0]
	}

	return &domain.SettlementBatch{
		BatchID:           uuid.New(),
		WindowStart:       windowStart,
		WindowEnd:         windowEnd,
		Currency:          currency,
		GrossObligations:  allObligations,
		NetTransfers:      allTransfers,
		TotalGrossAmount:  totalGross,
		TotalNetAmount:    totalNet,
		NettingEfficiency: efficiency,
	}, nil
}

func groupByCurrency(payments []domain.PendingPayment) map[string][]domain.PendingPayment {
	out := make(map[string][]domain.PendingPayment)
	for _, p := range payments {
		out[p.Currency] = append(out[p.Currency], p)
	}
	return out
}

func sortedCurrencies(byCurrency map[string][]domain.PendingPayment) []string {
	out := make([]string, 0, len(byCurrency))
	for c := range byCurrency {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// applyBilateralNetting collapses reverse-direction obligation pairs
// (A owes B, B owes A) into a single obligation carrying the difference,
// before the multilateral pass runs. Equal amounts cancel entirely.
func applyBilateralNetting(obligations []domain.BilateralObligation) []domain.BilateralObligation {
	processed := make([]bool, len(obligations))
	var result []domain.BilateralObligation

	for i := range obligations {
		if processed[i] {
			continue
		}
		obl1 := obligations[i]
		foundReverse := false

		for j := i + 1; j < len(obligations); j++ {
			if processed[j] {
				continue
			}
			obl2 := obligations[j]

			if obl1.DebtorBank == obl2.CreditorBank && obl1.CreditorBank == obl2.DebtorBank && obl1.Currency == obl2.Currency {
				diff := obl1.GrossAmount.Sub(obl2.GrossAmount)

				switch diff.Sign() {
				case 1:
					ids := append(append([]uuid.UUID{}, obl1.PaymentIDs...), obl2.PaymentIDs...)
					result = append(result, domain.BilateralObligation{
						DebtorBank:   obl1.DebtorBank,
						CreditorBank: obl1.CreditorBank,
						Currency:     obl1.Currency,
						GrossAmount:  diff,
						PaymentIDs:   ids,
					})
				case -1:
					ids := append(append([]uuid.UUID{}, obl2.PaymentIDs...), obl1.PaymentIDs...)
					result = append(result, domain.BilateralObligation{
						DebtorBank:   obl2.DebtorBank,
						CreditorBank: obl2.CreditorBank,
						Currency:     obl2.Currency,
						GrossAmount:  diff.Abs(),
						PaymentIDs:   ids,
					})
				}
				// case 0: both cancel out, no obligation remains

				processed[i] = true
				processed[j] = true
				foundReverse = true
				break
			}
		}

		if !foundReverse {
			result = append(result, obl1)
			processed[i] = true
		}
	}

	return result
}

// bankPosition is a bank's net position against all counterparties in one
// currency: positive means it is owed money (a net receiver), negative
// means it owes money (a net payer).
type bankPosition struct {
	bankID string
	net    decimal.Decimal
}

func calculateNetPositions(obligations []domain.BilateralObligation) map[string]*bankPosition {
	positions := make(map[string]*bankPosition)

	get := func(bank string) *bankPosition {
		p, ok := positions[bank]
		if !ok {
			p = &bankPosition{bankID: bank}
			positions[bank] = p
		}
		return p
	}

	for _, obl := range obligations {
		get(obl.DebtorBank).net = get(obl.DebtorBank).net.Sub(obl.GrossAmount)
		get(obl.CreditorBank).net = get(obl.CreditorBank).net.Add(obl.GrossAmount)
	}

	return positions
}

// generateNetTransfers greedily matches the largest net payers against the
// largest net receivers, ties broken by lexicographically smaller bank ID
// for deterministic output (spec.md §4.3).
func generateNetTransfers(obligations []domain.BilateralObligation, currency string) []domain.NetTransfer {
	positions := calculateNetPositions(obligations)

	var payers, receivers []*bankPosition
	for _, p := range positions {
		switch {
		case p.net.IsNegative():
			payers = append(payers, p)
		case p.net.IsPositive():
			receivers = append(receivers, p)
		}
	}

	sortByAbsDesc := func(list []*bankPosition) {
		sort.Slice(list, func(i, j int) bool {
			ai, aj := list[i].net.Abs(), list[j].net.Abs()
			if !ai.Equal(aj) {
				return ai.GreaterThan(aj)
			}
			return list[i].bankID < list[j].bankID
		})
	}
	sortByAbsDesc(payers)
	sortByAbsDesc(receivers)

	payerRemaining := make(map[string]decimal.Decimal, len(payers))
	for _, p := range payers {
		payerRemaining[p.bankID] = p.net.Abs()
	}
	receiverRemaining := make(map[string]decimal.Decimal, len(receivers))
	for _, r := range receivers {
		receiverRemaining[r.bankID] = r.net.Abs()
	}

	var transfers []domain.NetTransfer
	for _, payer := range payers {
		for {
			remaining := payerRemaining[payer.bankID]
			if !remaining.IsPositive() {
				break
			}

			var matched *bankPosition
			for _, receiver := range receivers {
				if receiverRemaining[receiver.bankID].IsPositive() {
					matched = receiver
					break
				}
			}
			if matched == nil {
				break
			}

			transferAmount := decimal.Min(remaining, receiverRemaining[matched.bankID])
			if !transferAmount.IsPositive() {
				break
			}

			transfers = append(transfers, domain.NetTransfer{
				TransferID:   uuid.New(),
				DebtorBank:   payer.bankID,
				CreditorBank: matched.bankID,
				Currency:     currency,
				NetAmount:    transferAmount,
			})

			payerRemaining[payer.bankID] = remaining.Sub(transferAmount)
			receiverRemaining[matched.bankID] = receiverRemaining[matched.bankID].Sub(transferAmount)
		}
	}

	return transfers
}
