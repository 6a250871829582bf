package obligation

import (
	"testing"

	"github.com/deltran/clearing-core/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payment(debtor, creditor, currency string, amount float64) domain.PendingPayment {
	return domain.PendingPayment{
		PaymentID:    uuid.New(),
		Amount:       decimal.NewFromFloat(amount),
		Currency:     currency,
		DebtorBank:   debtor,
		CreditorBank: creditor,
	}
}

func TestBuild_AggregatesSamePair(t *testing.T) {
	payments := []domain.PendingPayment{
		payment("BANKA", "BANKB", "USD", 100),
		payment("BANKA", "BANKB", "USD", 50),
	}

	obligations := Build(payments)
	require.Len(t, obligations, 1)
	assert.True(t, obligations[0].GrossAmount.Equal(decimal.NewFromFloat(150)))
	assert.Len(t, obligations[0].PaymentIDs, 2)
}

func TestBuild_ExcludesSameBank(t *testing.T) {
	payments := []domain.PendingPayment{
		payment("BANKA", "BANKA", "USD", 100),
		payment("BANKA", "BANKB", "USD", 50),
	}

	obligations := Build(payments)
	require.Len(t, obligations, 1)
	assert.Equal(t, "BANKB", obligations[0].CreditorBank)
}

func TestBuild_SeparatesByCurrency(t *testing.T) {
	payments := []domain.PendingPayment{
		payment("BANKA", "BANKB", "USD", 100),
		payment("BANKA", "BANKB", "EUR", 100),
	}

	obligations := Build(payments)
	assert.Len(t, obligations, 2)
}

func TestBuild_DeterministicOrder(t *testing.T) {
	payments := []domain.PendingPayment{
		payment("BANKC", "BANKD", "USD", 10),
		payment("BANKA", "BANKB", "USD", 10),
	}

	obligations := Build(payments)
	require.Len(t, obligations, 2)
	assert.Equal(t, "BANKA", obligations[0].DebtorBank)
	assert.Equal(t, "BANKC", obligations[1].DebtorBank)
}
