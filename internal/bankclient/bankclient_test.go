package bankclient

import (
	"context"
	"testing"

	"github.com/deltran/clearing-core/internal/pvp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleLeg() pvp.TransferRequest {
	return pvp.TransferRequest{
		LegID:               "leg-a",
		FromAccount:         "ACC-A",
		ToAccount:           "ACC-B",
		Amount:              "100.00",
		Currency:            "USD",
		SettlementReference: "SETTLE-1",
	}
}

func TestSWIFTClient_InitiateTransfer_ReturnsExternalReference(t *testing.T) {
	client := NewSWIFTClient("DELTUS33XXX", zap.NewNop())

	result, err := client.InitiateTransfer(context.Background(), sampleLeg())

	require.NoError(t, err)
	assert.NotEmpty(t, result.ExternalReference)
}

func TestSWIFTClient_QueryTransfer_ReturnsConfirmedAfterDispatch(t *testing.T) {
	client := NewSWIFTClient("DELTUS33XXX", zap.NewNop())
	req := sampleLeg()

	result, err := client.InitiateTransfer(context.Background(), req)
	require.NoError(t, err)

	status, err := client.QueryTransfer(context.Background(), result.ExternalReference)
	require.NoError(t, err)
	assert.Equal(t, "CONFIRMED", status.Status)
	assert.Equal(t, result.ExternalReference, status.Confirmation)
}

func TestSWIFTClient_QueryTransfer_UnknownReferenceErrors(t *testing.T) {
	client := NewSWIFTClient("DELTUS33XXX", zap.NewNop())

	_, err := client.QueryTransfer(context.Background(), "does-not-exist")

	assert.Error(t, err)
}

func TestSWIFTClient_InitiateTransfer_InvalidAmountErrors(t *testing.T) {
	client := NewSWIFTClient("DELTUS33XXX", zap.NewNop())
	req := sampleLeg()
	req.Amount = "not-a-number"

	_, err := client.InitiateTransfer(context.Background(), req)

	assert.Error(t, err)
}

func TestISO20022Client_InitiateTransfer_ReturnsExternalReference(t *testing.T) {
	client := NewISO20022Client("DELTUS33XXX", []string{"USD", "EUR"}, zap.NewNop())

	result, err := client.InitiateTransfer(context.Background(), sampleLeg())

	require.NoError(t, err)
	assert.NotEmpty(t, result.ExternalReference)
}

func TestISO20022Client_QueryTransfer_ReturnsConfirmedAfterDispatch(t *testing.T) {
	client := NewISO20022Client("DELTUS33XXX", []string{"USD", "EUR"}, zap.NewNop())
	req := sampleLeg()

	result, err := client.InitiateTransfer(context.Background(), req)
	require.NoError(t, err)

	status, err := client.QueryTransfer(context.Background(), result.ExternalReference)
	require.NoError(t, err)
	assert.Equal(t, "CONFIRMED", status.Status)
}

func TestISO20022Client_QueryTransfer_UnknownReferenceErrors(t *testing.T) {
	client := NewISO20022Client("DELTUS33XXX", []string{"USD", "EUR"}, zap.NewNop())

	_, err := client.QueryTransfer(context.Background(), "does-not-exist")

	assert.Error(t, err)
}

func TestISO20022Client_InitiateTransfer_InvalidAmountErrors(t *testing.T) {
	client := NewISO20022Client("DELTUS33XXX", []string{"USD", "EUR"}, zap.NewNop())
	req := sampleLeg()
	req.Amount = "not-a-number"

	_, err := client.InitiateTransfer(context.Background(), req)

	assert.Error(t, err)
}

func TestISO20022Client_InitiateTransfer_MissingSettlementReferenceFailsValidation(t *testing.T) {
	client := NewISO20022Client("DELTUS33XXX", []string{"USD", "EUR"}, zap.NewNop())
	req := sampleLeg()
	req.SettlementReference = ""

	_, err := client.InitiateTransfer(context.Background(), req)

	assert.Error(t, err)
}

func TestBankClients_SatisfyPvPBankClientInterface(t *testing.T) {
	var _ pvp.BankClient = NewSWIFTClient("DELTUS33XXX", zap.NewNop())
	var _ pvp.BankClient = NewISO20022Client("DELTUS33XXX", []string{"USD"}, zap.NewNop())
}
