// Package consensus combines decisions from independent collaborators —
// compliance screening, risk scoring, balance sufficiency, and settlement
// feedback — into a single disposition that governs whether a payment
// proceeds to netting (spec.md §4.6).
package consensus

import (
	"strings"
	"sync"
	"time"

	"github.com/deltran/clearing-core/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Publisher emits disposition changes to downstream consumers (reporting,
// audit export), per spec.md §6's event-publication egress boundary.
type Publisher interface {
	PublishDisposition(paymentID uuid.UUID, disposition domain.Disposition) error
}

type paymentState struct {
	mu        sync.Mutex
	decisions map[domain.ConsensusService]domain.ServiceDecision
}

// Aggregator recomputes a payment's disposition on every collaborator
// update and publishes the result.
type Aggregator struct {
	mu        sync.RWMutex
	payments  map[uuid.UUID]*paymentState
	publisher Publisher
	logger    *zap.Logger
}

// New builds an Aggregator. publisher may be nil if disposition changes
// don't need to be published (e.g. in tests).
func New(publisher Publisher, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		payments:  make(map[uuid.UUID]*paymentState),
		publisher: publisher,
		logger:    logger,
	}
}

func normalizeService(name string) (domain.ConsensusService, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case string(domain.ServiceCompliance):
		return domain.ServiceCompliance, true
	case string(domain.ServiceRisk):
		return domain.ServiceRisk, true
	case string(domain.ServiceBalance):
		return domain.ServiceBalance, true
	case string(domain.ServiceSettlement):
		return domain.ServiceSettlement, true
	default:
		return "", false
	}
}

func (a *Aggregator) stateFor(paymentID uuid.UUID) *paymentState {
	a.mu.RLock()
	st, ok := a.payments[paymentID]
	a.mu.RUnlock()
	if ok {
		return st
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if st, ok := a.payments[paymentID]; ok {
		return st
	}
	st = &paymentState{decisions: make(map[domain.ConsensusService]domain.ServiceDecision)}
	a.payments[paymentID] = st
	return st
}

// UpdateDecision records one collaborator's decision and recomputes the
// payment's disposition. An unrecognized service name is logged and
// ignored, per spec.md §4.6's failure semantics — the current disposition
// is returned unchanged. Repeated updates from the same service overwrite
// the prior value.
func (a *Aggregator) UpdateDecision(paymentID uuid.UUID, serviceName string, outcome domain.DecisionOutcome, details string) domain.Disposition {
	service, ok := normalizeService(serviceName)
	st := a.stateFor(paymentID)

	if !ok {
		a.logger.Warn("consensus: unknown service name ignored",
			zap.String("payment_id", paymentID.String()),
			zap.String("service", serviceName),
		)
		st.mu.Lock()
		disposition := computeDisposition(st.decisions)
		st.mu.Unlock()
		return disposition
	}

	st.mu.Lock()
	st.decisions[service] = domain.ServiceDecision{
		Service:   service,
		Outcome:   outcome,
		Details:   details,
		UpdatedAt: time.Now(),
	}
	disposition := computeDisposition(st.decisions)
	st.mu.Unlock()

	if a.publisher != nil {
		if err := a.publisher.PublishDisposition(paymentID, disposition); err != nil {
			a.logger.Error("consensus: failed to publish disposition",
				zap.String("payment_id", paymentID.String()),
				zap.Error(err),
			)
		}
	}

	return disposition
}

// Disposition returns a payment's current computed disposition without
// recording a new decision.
func (a *Aggregator) Disposition(paymentID uuid.UUID) domain.Disposition {
	st := a.stateFor(paymentID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return computeDisposition(st.decisions)
}

// Decisions returns a snapshot of every collaborator decision recorded so
// far for a payment.
func (a *Aggregator) Decisions(paymentID uuid.UUID) map[domain.ConsensusService]domain.ServiceDecision {
	st := a.stateFor(paymentID)
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make(map[domain.ConsensusService]domain.ServiceDecision, len(st.decisions))
	for k, v := range st.decisions {
		out[k] = v
	}
	return out
}

// computeDisposition applies the strict priority ordering from spec.md
// §4.6. A decision from a later-priority service can never overturn an
// earlier-priority rejection, and an earlier-priority Approve never
// bypasses a later-priority Reject.
func computeDisposition(decisions map[domain.ConsensusService]domain.ServiceDecision) domain.Disposition {
	compliance, hasCompliance := decisions[domain.ServiceCompliance]
	risk, hasRisk := decisions[domain.ServiceRisk]
	balance, hasBalance := decisions[domain.ServiceBalance]
	settlement, hasSettlement := decisions[domain.ServiceSettlement]

	if hasCompliance && compliance.Outcome == domain.OutcomeReject {
		return domain.DispositionRejectedCompliance
	}
	if hasRisk && risk.Outcome == domain.OutcomeReject {
		return domain.DispositionRejectedRisk
	}
	if hasBalance && balance.Outcome == domain.OutcomeReject {
		return domain.DispositionRejectedInsufficientFunds
	}
	if (hasCompliance && compliance.Outcome == domain.OutcomeReview) ||
		(hasRisk && risk.Outcome == domain.OutcomeReview) {
		return domain.DispositionPendingReview
	}
	if hasSettlement {
		switch settlement.Outcome {
		case domain.OutcomeSettled:
			return domain.DispositionSettled
		case domain.OutcomeFailed:
			return domain.DispositionSettlementFailed
		case domain.OutcomeInProgress:
			return domain.DispositionProcessing
		}
	}
	if hasCompliance && compliance.Outcome == domain.OutcomeApprove &&
		hasRisk && risk.Outcome == domain.OutcomeApprove &&
		hasBalance && balance.Outcome == domain.OutcomeApprove {
		return domain.DispositionApprovedPendingSettlement
	}
	return domain.DispositionProcessing
}
