// Package obligation turns a cohort of pending payments into bilateral
// gross obligations, the input the Netting Engine nets down to transfers.
package obligation

import (
	"sort"

	"github.com/deltran/clearing-core/internal/domain"
	"github.com/google/uuid"
)

type pairKey struct {
	debtor   string
	creditor string
	currency string
}

// Build groups payments by (debtor bank, creditor bank, currency) into
// gross bilateral obligations. Same-bank payments are excluded: they book
// internally and never enter netting (spec.md §4.2).
func Build(payments []domain.PendingPayment) []domain.BilateralObligation {
	grouped := make(map[pairKey]*domain.BilateralObligation)
	var order []pairKey

	for _, p := range payments {
		if p.DebtorBank == p.CreditorBank {
			continue
		}

		key := pairKey{debtor: p.DebtorBank, creditor: p.CreditorBank, currency: p.Currency}
		obl, exists := grouped[key]
		if !exists {
			obl = &domain.BilateralObligation{
				DebtorBank:   p.DebtorBank,
				CreditorBank: p.CreditorBank,
				Currency:     p.Currency,
				PaymentIDs:   []uuid.UUID{},
			}
			grouped[key] = obl
			order = append(order, key)
		}
		obl.GrossAmount = obl.GrossAmount.Add(p.Amount)
		obl.PaymentIDs = append(obl.PaymentIDs, p.PaymentID)
	}

	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.currency != b.currency {
			return a.currency < b.currency
		}
		if a.debtor != b.debtor {
			return a.debtor < b.debtor
		}
		return a.creditor < b.creditor
	})

	out := make([]domain.BilateralObligation, 0, len(order))
	for _, key := range order {
		out = append(out, *grouped[key])
	}
	return out
}
