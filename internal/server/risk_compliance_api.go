package server

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/deltran/clearing-core/internal/cache"
	"github.com/deltran/clearing-core/internal/compliance"
	"github.com/deltran/clearing-core/internal/domain"
	"github.com/deltran/clearing-core/internal/observability"
	"github.com/google/uuid"
)

// complianceEntityHash derives the cache key Screen results are keyed by —
// stable for the same debtor/creditor pair so repeat checks on the same
// counterparties within the TTL skip re-screening.
func complianceEntityHash(req ComplianceCheckRequest) string {
	sum := sha256.Sum256([]byte(req.DebtorName + "|" + req.DebtorCountry + "|" + req.CreditorName + "|" + req.CreditorCountry))
	return hex.EncodeToString(sum[:])
}

// ========== NETTING WINDOWS API ==========

type NettingWindowOpenRequest struct {
	CorridorID  string    `json:"corridor_id"`
	CutoffTime  time.Time `json:"cutoff_time"`
	WindowType  string    `json:"window_type"` // T+0, T+1
}

type NettingWindowResponse struct {
	WindowID    string    `json:"window_id"`
	CorridorID  string    `json:"corridor_id"`
	Status      string    `json:"status"`
	OpenedAt    time.Time `json:"opened_at"`
	CutoffTime  time.Time `json:"cutoff_time"`
	Message     string    `json:"message"`
}

type NettingPositionsResponse struct {
	WindowID     string             `json:"window_id"`
	Participants []ParticipantPosition `json:"participants"`
	TotalDebits  float64            `json:"total_debits"`
	TotalCredits float64            `json:"total_credits"`
	NetSavings   float64            `json:"net_savings"`
	Efficiency   float64            `json:"efficiency_percent"`
}

type ParticipantPosition struct {
	ParticipantID string  `json:"participant_id"`
	BankBIC       string  `json:"bank_bic"`
	Debits        float64 `json:"debits"`
	Credits       float64 `json:"credits"`
	NetPosition   float64 `json:"net_position"`
	Status        string  `json:"status"`
}

type NettingScheduleResponse struct {
	Corridors []CorridorSchedule `json:"corridors"`
}

type CorridorSchedule struct {
	CorridorID  string           `json:"corridor_id"`
	Windows     []WindowSchedule `json:"windows"`
	Timezone    string           `json:"timezone"`
}

type WindowSchedule struct {
	WindowType string    `json:"window_type"`
	OpenTime   string    `json:"open_time"`
	CloseTime  string    `json:"close_time"`
	NextWindow time.Time `json:"next_window"`
}

type NettingResultsResponse struct {
	WindowID        string                `json:"window_id"`
	Status          string                `json:"status"`
	TotalPayments   int                   `json:"total_payments"`
	GrossAmount     float64               `json:"gross_amount"`
	NetAmount       float64               `json:"net_amount"`
	Savings         float64               `json:"savings"`
	Efficiency      float64               `json:"efficiency_percent"`
	Participants    int                   `json:"participants_count"`
	SettlementBatch string                `json:"settlement_batch_id"`
	Settlements     []NettingSettlementInstruction `json:"settlements"`
}

type NettingSettlementInstruction struct {
	ParticipantID string  `json:"participant_id"`
	BankBIC       string  `json:"bank_bic"`
	NetPosition   float64 `json:"net_position"`
	Direction     string  `json:"direction"` // PAY, RECEIVE
	Status        string  `json:"status"`
}

// ========== LIMITS & CONTROLS API ==========

type LimitSetRequest struct {
	ParticipantID string  `json:"participant_id"`
	LimitType     string  `json:"limit_type"` // DAILY, TRANSACTION, COUNTERPARTY
	Currency      string  `json:"currency"`
	Amount        float64 `json:"amount"`
	Direction     string  `json:"direction"` // SEND, RECEIVE, BOTH
}

type LimitResponse struct {
	LimitID       string    `json:"limit_id"`
	ParticipantID string    `json:"participant_id"`
	LimitType     string    `json:"limit_type"`
	Currency      string    `json:"currency"`
	Amount        float64   `json:"amount"`
	Used          float64   `json:"used"`
	Available     float64   `json:"available"`
	Utilization   float64   `json:"utilization_percent"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type LimitsUsageResponse struct {
	ParticipantID string          `json:"participant_id"`
	Limits        []LimitResponse `json:"limits"`
	TotalExposure float64         `json:"total_exposure"`
	RiskLevel     string          `json:"risk_level"`
}

type ControlAction struct {
	Action        string    `json:"action"` // FREEZE, UNFREEZE, THROTTLE
	ParticipantID string    `json:"participant_id"`
	Reason        string    `json:"reason"`
	Duration      string    `json:"duration,omitempty"`
}

type ControlResponse struct {
	ActionID      string    `json:"action_id"`
	ParticipantID string    `json:"participant_id"`
	Action        string    `json:"action"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason"`
	AppliedAt     time.Time `json:"applied_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// ========== COMPLIANCE API ==========

type ComplianceCheckRequest struct {
	PaymentID      string  `json:"payment_id"`
	DebtorName     string  `json:"debtor_name"`
	CreditorName   string  `json:"creditor_name"`
	DebtorCountry  string  `json:"debtor_country"`
	CreditorCountry string `json:"creditor_country"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
}

type ComplianceCheckResponse struct {
	CheckID         string            `json:"check_id"`
	PaymentID       string            `json:"payment_id"`
	OverallStatus   string            `json:"overall_status"` // PASS, FAIL, REVIEW
	RiskScore       float64           `json:"risk_score"`
	Checks          []ComplianceCheck `json:"checks"`
	Flags           []ComplianceFlag  `json:"flags"`
	RequiresReview  bool              `json:"requires_review"`
	Timestamp       time.Time         `json:"timestamp"`
}

type ComplianceCheck struct {
	CheckType   string    `json:"check_type"`
	Status      string    `json:"status"`
	Details     string    `json:"details"`
	CompletedAt time.Time `json:"completed_at"`
}

type ComplianceFlag struct {
	FlagType    string    `json:"flag_type"`
	Severity    string    `json:"severity"` // LOW, MEDIUM, HIGH, CRITICAL
	Description string    `json:"description"`
	ListName    string    `json:"list_name,omitempty"`
}

type ComplianceReportsResponse struct {
	Reports     []ComplianceReport `json:"reports"`
	TotalCount  int                `json:"total_count"`
}

type ComplianceReport struct {
	ReportID    string    `json:"report_id"`
	ReportType  string    `json:"report_type"` // SAR, STR, CTR
	Status      string    `json:"status"`
	Period      string    `json:"period"`
	TotalCases  int       `json:"total_cases"`
	CreatedAt   time.Time `json:"created_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

type ComplianceRulesResponse struct {
	Rules []ComplianceRule `json:"rules"`
}

type ComplianceRule struct {
	RuleID      string                 `json:"rule_id"`
	Name        string                 `json:"name"`
	Type        string                 `json:"type"`
	Enabled     bool                   `json:"enabled"`
	Conditions  map[string]interface{} `json:"conditions"`
	Actions     []string               `json:"actions"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// ========== RECONCILIATION API ==========

type ReconciliationPositionsResponse struct {
	AsOfDate     string                 `json:"as_of_date"`
	Accounts     []AccountPosition      `json:"accounts"`
	Discrepancies []Discrepancy         `json:"discrepancies"`
	Summary      ReconciliationSummary  `json:"summary"`
}

type AccountPosition struct {
	AccountID       string  `json:"account_id"`
	Currency        string  `json:"currency"`
	InternalBalance float64 `json:"internal_balance"`
	ExternalBalance float64 `json:"external_balance"`
	Difference      float64 `json:"difference"`
	Status          string  `json:"status"`
}

type Discrepancy struct {
	DiscrepancyID string    `json:"discrepancy_id"`
	AccountID     string    `json:"account_id"`
	Amount        float64   `json:"amount"`
	Type          string    `json:"type"`
	DetectedAt    time.Time `json:"detected_at"`
	Status        string    `json:"status"`
}

type ReconciliationSummary struct {
	TotalAccounts     int     `json:"total_accounts"`
	Matched           int     `json:"matched"`
	Mismatched        int     `json:"mismatched"`
	TotalDiscrepancy  float64 `json:"total_discrepancy"`
	ReconciliationRate float64 `json:"reconciliation_rate_percent"`
}

type ReconciliationRunRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Accounts  []string `json:"accounts,omitempty"`
}

type ReconciliationRunResponse struct {
	RunID       string    `json:"run_id"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	Message     string    `json:"message"`
}

type ReconciliationResultsResponse struct {
	RunID          string                `json:"run_id"`
	Status         string                `json:"status"`
	Period         string                `json:"period"`
	Matched        int                   `json:"matched"`
	Mismatched     int                   `json:"mismatched"`
	Adjustments    []ReconciliationAdjustment `json:"adjustments"`
	CompletedAt    time.Time             `json:"completed_at"`
}

type ReconciliationAdjustment struct {
	AdjustmentID string    `json:"adjustment_id"`
	AccountID    string    `json:"account_id"`
	Amount       float64   `json:"amount"`
	Reason       string    `json:"reason"`
	AppliedAt    time.Time `json:"applied_at"`
	ApprovedBy   string    `json:"approved_by"`
}

// API Handlers

// HandleNettingOpen opens a new netting window for a corridor, backed by the
// real nettingWindowManager — corridor_id doubles as the settlement
// currency, since that's the unit the netting engine nets over (spec.md
// §4.3). Payments queued for settlement on that currency from this point
// on accumulate into the window until it closes.
func (s *Server) HandleNettingOpen(w http.ResponseWriter, r *http.Request) {
	var req NettingWindowOpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	window := s.settlement.nettingWindows.Open(req.CorridorID, req.CutoffTime)

	response := NettingWindowResponse{
		WindowID:   window.WindowID,
		CorridorID: window.CorridorID,
		Status:     window.Status,
		OpenedAt:   window.OpenedAt,
		CutoffTime: window.CutoffTime,
		Message:    "Netting window successfully opened",
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(response)
}

// HandleNettingPositions reports the bilateral obligations and net
// transfers the netting engine would produce if the window closed right
// now, computed live off the window's accumulated payments rather than
// mutating its state.
func (s *Server) HandleNettingPositions(w http.ResponseWriter, r *http.Request) {
	windowID := r.URL.Query().Get("window_id")

	window, ok := s.settlement.nettingWindows.Get(windowID)
	if !ok {
		http.Error(w, "netting window not found", http.StatusNotFound)
		return
	}

	response := NettingPositionsResponse{WindowID: windowID}

	if len(window.Payments) == 0 {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		json.NewEncoder(w).Encode(response)
		return
	}

	batch, err := s.settlement.nettingEngine.Compute(window.OpenedAt, time.Now(), window.Payments)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	positions := map[string]*ParticipantPosition{}
	get := func(bank string) *ParticipantPosition {
		p, ok := positions[bank]
		if !ok {
			p = &ParticipantPosition{ParticipantID: bank, BankBIC: bank, Status: "ACTIVE"}
			positions[bank] = p
		}
		return p
	}
	for _, obl := range batch.GrossObligations {
		debit, _ := obl.GrossAmount.Float64()
		get(obl.DebtorBank).Debits += debit
		get(obl.CreditorBank).Credits += debit
	}
	for _, p := range positions {
		p.NetPosition = p.Credits - p.Debits
		response.Participants = append(response.Participants, *p)
		response.TotalDebits += p.Debits
		response.TotalCredits += p.Credits
	}

	gross, _ := batch.TotalGrossAmount.Float64()
	net, _ := batch.TotalNetAmount.Float64()
	response.NetSavings = gross - net
	response.Efficiency = batch.NettingEfficiency * 100

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(response)
}

// HandleComplianceCheck runs sanctions/PEP screening against the payment's
// debtor and creditor through the real SanctionsScreener (spec.md §6
// compliance collaborator feeding consensus), rather than the
// hardcoded PASS stub this handler used to return.
func (s *Server) HandleComplianceCheck(w http.ResponseWriter, r *http.Request) {
	var req ComplianceCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entityHash := complianceEntityHash(req)
	status := "PASS"
	var screening *compliance.ScreeningResult
	if cached, cacheErr := s.settlement.cache.GetComplianceCheck(entityHash); cacheErr == nil {
		screening = &compliance.ScreeningResult{
			Hit:        cached.Status != "PASS",
			RiskLevel:  cached.Status,
			ScreenedAt: cached.CheckedAt,
		}
		status = cached.Status
	} else {
		var err error
		screenStart := time.Now()
		screenCtx, span := observability.TraceSanctionsScreening(r.Context(), s.settlement.tracer, "debtor_creditor_pair")
		screening, err = s.settlement.sanctionsScreener.Screen(screenCtx, &compliance.ScreeningRequest{
			SenderName:      req.DebtorName,
			SenderCountry:   req.DebtorCountry,
			ReceiverName:    req.CreditorName,
			ReceiverCountry: req.CreditorCountry,
		})
		if err != nil {
			observability.RecordError(screenCtx, err)
			span.End()
			http.Error(w, "screening failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if screening.Hit {
			status = "REVIEW"
		}
		span.SetAttributes(
			observability.AttrSanctionsHit.Bool(screening.Hit),
			observability.AttrSanctionsRiskLevel.String(screening.RiskLevel),
		)
		span.End()
		metricsMatches := make([]observability.SanctionsMatch, len(screening.Matches))
		for i, m := range screening.Matches {
			metricsMatches[i] = observability.SanctionsMatch{Source: m.Source, MatchScore: m.MatchScore}
		}
		s.settlement.metrics.RecordSanctionsScreening(screening.Hit, screening.RiskLevel, time.Since(screenStart), metricsMatches)
		_ = s.settlement.cache.StoreComplianceCheck(&cache.ComplianceCheck{
			EntityHash: entityHash,
			Status:     status,
			RiskScore:  float64(len(screening.Matches)) * 25,
			CheckedAt:  screening.ScreenedAt,
			ExpiresAt:  screening.ScreenedAt.Add(15 * time.Minute),
		}, 15*time.Minute)
	}

	checks := make([]ComplianceCheck, 0, 2)
	checks = append(checks, ComplianceCheck{
		CheckType:   "SANCTIONS_SCREENING",
		Status:      status,
		Details:     fmt.Sprintf("%d match(es), risk level %s", len(screening.Matches), screening.RiskLevel),
		CompletedAt: screening.ScreenedAt,
	})

	flags := make([]ComplianceFlag, 0, len(screening.Matches))
	for _, m := range screening.Matches {
		flags = append(flags, ComplianceFlag{
			FlagType:    m.MatchedField,
			Severity:    screening.RiskLevel,
			Description: fmt.Sprintf("matched %q (score %.2f, source %s)", m.MatchedName, m.MatchScore, m.Source),
			ListName:    m.Source,
		})
	}

	if paymentID, parseErr := uuid.Parse(req.PaymentID); parseErr == nil && s.settlement != nil && s.settlement.consensus != nil {
		outcome := domain.OutcomeApprove
		if screening.RequiresReview {
			outcome = domain.OutcomeReview
		} else if screening.Hit {
			outcome = domain.OutcomeReject
		}
		s.settlement.consensus.UpdateDecision(paymentID, string(domain.ServiceCompliance), outcome, status)
	}

	response := ComplianceCheckResponse{
		CheckID:        uuid.New().String(),
		PaymentID:      req.PaymentID,
		OverallStatus:  status,
		RiskScore:      float64(len(screening.Matches)) * 25,
		Checks:         checks,
		Flags:          flags,
		RequiresReview: screening.RequiresReview,
		Timestamp:      screening.ScreenedAt,
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(response)
}

// HandleLimitSet sets a new limit
func (s *Server) HandleLimitSet(w http.ResponseWriter, r *http.Request) {
	var req LimitSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	response := LimitResponse{
		LimitID:       uuid.New().String(),
		ParticipantID: req.ParticipantID,
		LimitType:     req.LimitType,
		Currency:      req.Currency,
		Amount:        req.Amount,
		Used:          0,
		Available:     req.Amount,
		Utilization:   0,
		Status:        "ACTIVE",
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(response)
}

// HandleReconciliationRun initiates reconciliation
func (s *Server) HandleReconciliationRun(w http.ResponseWriter, r *http.Request) {
	var req ReconciliationRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	response := ReconciliationRunResponse{
		RunID:     uuid.New().String(),
		Status:    "RUNNING",
		StartedAt: time.Now(),
		Message:   "Reconciliation started successfully",
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(response)
}
