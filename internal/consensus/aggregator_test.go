package consensus

import (
	"errors"
	"testing"

	"github.com/deltran/clearing-core/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	published []domain.Disposition
	failNext  bool
}

func (p *recordingPublisher) PublishDisposition(paymentID uuid.UUID, disposition domain.Disposition) error {
	if p.failNext {
		p.failNext = false
		return errors.New("publish failed")
	}
	p.published = append(p.published, disposition)
	return nil
}

func TestUpdateDecision_AllApproved_ApprovedPendingSettlement(t *testing.T) {
	a := New(nil, zap.NewNop())
	paymentID := uuid.New()

	a.UpdateDecision(paymentID, "compliance", domain.OutcomeApprove, "")
	a.UpdateDecision(paymentID, "risk", domain.OutcomeApprove, "")
	d := a.UpdateDecision(paymentID, "balance", domain.OutcomeApprove, "")

	assert.Equal(t, domain.DispositionApprovedPendingSettlement, d)
}

func TestUpdateDecision_ComplianceRejectIsTerminalVeto(t *testing.T) {
	a := New(nil, zap.NewNop())
	paymentID := uuid.New()

	a.UpdateDecision(paymentID, "compliance", domain.OutcomeReject, "sanctions hit")
	a.UpdateDecision(paymentID, "risk", domain.OutcomeApprove, "")
	d := a.UpdateDecision(paymentID, "balance", domain.OutcomeApprove, "")

	assert.Equal(t, domain.DispositionRejectedCompliance, d)
}

func TestUpdateDecision_LaterApproveCannotOverturnEarlierReject(t *testing.T) {
	a := New(nil, zap.NewNop())
	paymentID := uuid.New()

	a.UpdateDecision(paymentID, "risk", domain.OutcomeReject, "high risk score")
	// compliance approves after the fact; risk's veto still stands
	d := a.UpdateDecision(paymentID, "compliance", domain.OutcomeApprove, "")

	assert.Equal(t, domain.DispositionRejectedRisk, d)
}

func TestUpdateDecision_InsufficientBalance(t *testing.T) {
	a := New(nil, zap.NewNop())
	paymentID := uuid.New()

	a.UpdateDecision(paymentID, "compliance", domain.OutcomeApprove, "")
	a.UpdateDecision(paymentID, "risk", domain.OutcomeApprove, "")
	d := a.UpdateDecision(paymentID, "balance", domain.OutcomeReject, "insufficient funds")

	assert.Equal(t, domain.DispositionRejectedInsufficientFunds, d)
}

func TestUpdateDecision_ReviewPendsBeforeApproval(t *testing.T) {
	a := New(nil, zap.NewNop())
	paymentID := uuid.New()

	a.UpdateDecision(paymentID, "compliance", domain.OutcomeReview, "manual check needed")
	d := a.UpdateDecision(paymentID, "risk", domain.OutcomeApprove, "")

	assert.Equal(t, domain.DispositionPendingReview, d)
}

func TestUpdateDecision_SettlementFeedbackOverridesWhenPresent(t *testing.T) {
	a := New(nil, zap.NewNop())
	paymentID := uuid.New()

	a.UpdateDecision(paymentID, "compliance", domain.OutcomeApprove, "")
	a.UpdateDecision(paymentID, "risk", domain.OutcomeApprove, "")
	a.UpdateDecision(paymentID, "balance", domain.OutcomeApprove, "")
	d := a.UpdateDecision(paymentID, "settlement", domain.OutcomeSettled, "")

	assert.Equal(t, domain.DispositionSettled, d)
}

func TestUpdateDecision_SettlementFailedIsTerminal(t *testing.T) {
	a := New(nil, zap.NewNop())
	paymentID := uuid.New()

	a.UpdateDecision(paymentID, "compliance", domain.OutcomeApprove, "")
	a.UpdateDecision(paymentID, "risk", domain.OutcomeApprove, "")
	a.UpdateDecision(paymentID, "balance", domain.OutcomeApprove, "")
	d := a.UpdateDecision(paymentID, "settlement", domain.OutcomeFailed, "rail rejected")

	assert.Equal(t, domain.DispositionSettlementFailed, d)
	assert.True(t, d.IsTerminal())
}

func TestUpdateDecision_UnknownServiceIgnored(t *testing.T) {
	a := New(nil, zap.NewNop())
	paymentID := uuid.New()

	a.UpdateDecision(paymentID, "compliance", domain.OutcomeApprove, "")
	d := a.UpdateDecision(paymentID, "bogus-service", domain.OutcomeReject, "")

	// unrecognized service must not move the disposition at all
	assert.Equal(t, domain.DispositionProcessing, d)
	assert.Len(t, a.Decisions(paymentID), 1)
}

func TestUpdateDecision_RepeatedUpdateOverwritesPriorValue(t *testing.T) {
	a := New(nil, zap.NewNop())
	paymentID := uuid.New()

	a.UpdateDecision(paymentID, "risk", domain.OutcomeReject, "initial")
	d := a.UpdateDecision(paymentID, "risk", domain.OutcomeApprove, "re-evaluated")

	assert.NotEqual(t, domain.DispositionRejectedRisk, d)
	decisions := a.Decisions(paymentID)
	assert.Equal(t, domain.OutcomeApprove, decisions[domain.ServiceRisk].Outcome)
}

func TestUpdateDecision_IncompleteDecisionsStayProcessing(t *testing.T) {
	a := New(nil, zap.NewNop())
	paymentID := uuid.New()

	d := a.UpdateDecision(paymentID, "compliance", domain.OutcomeApprove, "")
	assert.Equal(t, domain.DispositionProcessing, d)
}

func TestUpdateDecision_PublishesOnEachUpdate(t *testing.T) {
	pub := &recordingPublisher{}
	a := New(pub, zap.NewNop())
	paymentID := uuid.New()

	a.UpdateDecision(paymentID, "compliance", domain.OutcomeApprove, "")
	a.UpdateDecision(paymentID, "risk", domain.OutcomeApprove, "")

	assert.Len(t, pub.published, 2)
}

func TestUpdateDecision_PublishFailureDoesNotBlockDisposition(t *testing.T) {
	pub := &recordingPublisher{failNext: true}
	a := New(pub, zap.NewNop())
	paymentID := uuid.New()

	d := a.UpdateDecision(paymentID, "compliance", domain.OutcomeReject, "sanctions hit")
	assert.Equal(t, domain.DispositionRejectedCompliance, d)
}
