// REST handlers over the real PvP / consensus settlement stack (as
// opposed to the dashboard's demo-data handlers elsewhere in this
// package).
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/deltran/clearing-core/internal/database"
	"github.com/deltran/clearing-core/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type pvpLegRequest struct {
	LegID       string `json:"leg_id"`
	Currency    string `json:"currency"`
	Amount      string `json:"amount"`
	FromAccount string `json:"from_account"`
	ToAccount   string `json:"to_account"`
	Reference   string `json:"reference"`
}

type pvpSettlementRequest struct {
	SettlementID           string        `json:"settlement_id"`
	LegA                   pvpLegRequest `json:"leg_a"`
	LegB                   pvpLegRequest `json:"leg_b"`
	Mode                   string        `json:"mode"`
	TimeoutSeconds         int           `json:"timeout_seconds"`
	AllowPartialSettlement bool          `json:"allow_partial_settlement"`
}

func (r pvpLegRequest) toDomain() (domain.PvPLeg, error) {
	legID := uuid.New()
	if r.LegID != "" {
		parsed, err := uuid.Parse(r.LegID)
		if err != nil {
			return domain.PvPLeg{}, err
		}
		legID = parsed
	}
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return domain.PvPLeg{}, err
	}
	return domain.PvPLeg{
		LegID:               legID,
		Currency:            r.Currency,
		Amount:              amount,
		FromAccount:         r.FromAccount,
		ToAccount:           r.ToAccount,
		SettlementReference: r.Reference,
	}, nil
}

// HandlePvPExecute submits a two-legged payment-versus-payment settlement
// (spec.md §4.5) to the real Controller, wrapped in idempotency
// protection keyed by settlement id.
func (s *Server) HandlePvPExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req pvpSettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	legA, err := req.LegA.toDomain()
	if err != nil {
		http.Error(w, "Invalid leg_a: "+err.Error(), http.StatusBadRequest)
		return
	}
	legB, err := req.LegB.toDomain()
	if err != nil {
		http.Error(w, "Invalid leg_b: "+err.Error(), http.StatusBadRequest)
		return
	}

	settlementID := uuid.New()
	if req.SettlementID != "" {
		parsed, err := uuid.Parse(req.SettlementID)
		if err != nil {
			http.Error(w, "Invalid settlement_id", http.StatusBadRequest)
			return
		}
		settlementID = parsed
	}

	mode := domain.PvPSimultaneous
	switch req.Mode {
	case "sequential":
		mode = domain.PvPSequential
	case "escrow":
		mode = domain.PvPEscrow
	case "cls":
		mode = domain.PvPCLS
	}

	var timeout time.Duration
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}

	domainReq := domain.PvPRequest{
		SettlementID:           settlementID,
		LegA:                   legA,
		LegB:                   legB,
		Mode:                   mode,
		Timeout:                timeout,
		AllowPartialSettlement: req.AllowPartialSettlement,
	}

	result, err := s.settlement.pvpExecutor.ExecutePvP(r.Context(), domainReq)
	if err != nil {
		if result == nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
	}

	if result.Status == domain.PvPFailed || result.Status == domain.PvPPartial {
		s.recordReconciliationFlag(r.Context(), result)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"settlement_id":  result.SettlementID.String(),
		"status":         result.Status,
		"leg_a_status":   result.LegAStatus,
		"leg_b_status":   result.LegBStatus,
		"duration_ms":    result.DurationMs,
		"failure_reason": result.FailureReason,
	})
}

// recordReconciliationFlag persists a settlement-reconciliation audit
// record for any PvP outcome that left one leg in an uncertain state —
// the supplemented reconciliation-flag feature from original_source,
// generalized from the teacher's user-audit log onto settlement records.
func (s *Server) recordReconciliationFlag(ctx context.Context, result *domain.PvPResult) {
	reason := result.FailureReason
	resourceID := result.SettlementID.String()
	errMsg := reason
	log := &database.AuditLog{
		EventType:    "settlement.needs_reconciliation",
		Severity:     "WARNING",
		Action:       "pvp_execute",
		ResourceType: strPtr("pvp_settlement"),
		ResourceID:   &resourceID,
		Result:       string(result.Status),
		ErrorMessage: &errMsg,
	}
	if err := s.settlement.db.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record reconciliation audit log", zap.Error(err))
	}
}

func strPtr(s string) *string { return &s }

type consensusDecisionRequest struct {
	PaymentID string `json:"payment_id"`
	Service   string `json:"service"`
	Outcome   string `json:"outcome"`
	Details   string `json:"details"`
}

// HandleConsensusDecision records one collaborator's decision for a
// payment and returns the recomputed disposition (spec.md §4.6).
func (s *Server) HandleConsensusDecision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req consensusDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	paymentID, err := uuid.Parse(req.PaymentID)
	if err != nil {
		http.Error(w, "Invalid payment_id", http.StatusBadRequest)
		return
	}

	disposition := s.settlement.consensus.UpdateDecision(
		paymentID, req.Service, domain.DecisionOutcome(req.Outcome), req.Details)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"payment_id":  paymentID.String(),
		"disposition": disposition,
		"is_terminal": disposition.IsTerminal(),
	})
}

// HandlePvPAccountSeed seeds a nostro account balance for settlement
// testing and demo environments — the in-memory AccountStore has no
// durable backing, so there is no production path that creates accounts
// except this one.
func (s *Server) HandlePvPAccountSeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		AccountID string `json:"account_id"`
		BankID    string `json:"bank_id"`
		Currency  string `json:"currency"`
		Balance   string `json:"balance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	balance, err := decimal.NewFromString(req.Balance)
	if err != nil {
		http.Error(w, "Invalid balance", http.StatusBadRequest)
		return
	}

	s.settlement.pvpAccounts.Seed(&domain.NostroAccount{
		AccountID:        req.AccountID,
		BankID:           req.BankID,
		Currency:         req.Currency,
		LedgerBalance:    balance,
		AvailableBalance: balance,
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(map[string]interface{}{"status": "seeded"})
}

