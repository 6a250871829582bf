package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/deltran/clearing-core/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ========== PAYMENTS API ==========
//
// The teacher's originals fabricated every response field (random UUIDs,
// a hardcoded USD 50,000/CHASUS33XXX/DEUTDEFFXXX payment, a canned
// timeline). These now drive a real payment through the Event Ledger
// (HandlePaymentInitiate/HandlePaymentStatus) or the real path selector
// (HandlePaymentQuote) instead.

type PaymentInitiateRequest struct {
	DebtorBank      string  `json:"debtor_bank"`
	CreditorBank    string  `json:"creditor_bank"`
	DebtorAccount   string  `json:"debtor_account"`
	CreditorAccount string  `json:"creditor_account"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	Reference       string  `json:"reference"`
}

type PaymentInitiateResponse struct {
	PaymentID string    `json:"payment_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Message   string    `json:"message"`
}

type PaymentStatusResponse struct {
	PaymentID   string           `json:"payment_id"`
	Status      string           `json:"status"`
	Amount      float64          `json:"amount"`
	Currency    string           `json:"currency"`
	DebtorBank  string           `json:"debtor_bank"`
	CreditorBank string          `json:"creditor_bank"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Timeline    []StatusTimeline `json:"timeline"`
}

type StatusTimeline struct {
	Step      string    `json:"step"`
	Timestamp time.Time `json:"timestamp"`
}

type PaymentQuoteRequest struct {
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	VolatilityPct   float64 `json:"volatility_pct"`
	LiquidityDepth  string  `json:"liquidity_depth"` // DEEP, NORMAL, THIN
	CorridorID      string  `json:"corridor_id"`
}

type PaymentQuoteResponse struct {
	QuoteID      string    `json:"quote_id"`
	Currency     string    `json:"currency"`
	Amount       float64   `json:"amount"`
	PathKind     string    `json:"path_kind"`
	CostBps      float64   `json:"cost_bps"`
	Fee          float64   `json:"fee"`
	Confidence   float64   `json:"confidence"`
	Reasoning    string    `json:"reasoning"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type FeeCalculationRequest struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Priority string  `json:"priority"` // NORMAL, EXPRESS, INSTANT
}

type FeeCalculationResponse struct {
	BaseFee         float64        `json:"base_fee"`
	PriorityFee     float64        `json:"priority_fee"`
	NettingDiscount float64        `json:"netting_discount"`
	TotalFee        float64        `json:"total_fee"`
	Breakdown       []FeeBreakdown `json:"breakdown"`
}

type FeeBreakdown struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// HandlePaymentInitiate submits a payment through the same SubmitPayment
// path the /api/v1/payments REST endpoint uses, so a
// payment initiated here is a real entry in the Event Ledger, not just an
// echoed UUID.
func (s *Server) HandlePaymentInitiate(w http.ResponseWriter, r *http.Request) {
	var req PaymentInitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	payment := &domain.Payment{
		PaymentID:       uuid.New(),
		DebtorBank:      req.DebtorBank,
		CreditorBank:    req.CreditorBank,
		DebtorAccount:   req.DebtorAccount,
		CreditorAccount: req.CreditorAccount,
		Amount:          decimal.NewFromFloat(req.Amount),
		Currency:        req.Currency,
		Reference:       req.Reference,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
		Status:          domain.PaymentStatusInitiated,
	}

	if err := s.SubmitPayment(r.Context(), payment); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	response := PaymentInitiateResponse{
		PaymentID: payment.PaymentID.String(),
		Status:    string(payment.Status),
		CreatedAt: payment.CreatedAt,
		Message:   "payment accepted and queued for processing",
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HandlePaymentStatus reports a payment's folded Event Ledger state and
// reconstructs its timeline from the actual append-only event chain.
func (s *Server) HandlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	paymentIDStr := r.URL.Query().Get("id")
	if paymentIDStr == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}

	paymentID, err := uuid.Parse(paymentIDStr)
	if err != nil {
		http.Error(w, "invalid payment id", http.StatusBadRequest)
		return
	}

	payment, err := s.GetPaymentStatus(r.Context(), paymentID)
	if err != nil {
		http.Error(w, "payment not found", http.StatusNotFound)
		return
	}

	events, err := s.ledger.GetPaymentEvents(paymentID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	timeline := make([]StatusTimeline, 0, len(events))
	for _, event := range events {
		timeline = append(timeline, StatusTimeline{
			Step:      string(event.Kind),
			Timestamp: event.Timestamp(),
		})
	}

	amount, _ := payment.Amount.Float64()
	response := PaymentStatusResponse{
		PaymentID:    payment.PaymentID.String(),
		Status:       string(payment.Status),
		Amount:       amount,
		Currency:     payment.Currency,
		DebtorBank:   payment.DebtorBank,
		CreditorBank: payment.CreditorBank,
		CreatedAt:    payment.CreatedAt,
		UpdatedAt:    payment.UpdatedAt,
		Timeline:     timeline,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HandlePaymentQuote runs the real path selector over the requested
// amount and market conditions, returning the settlement path it picked
// and the cost/confidence it scored that path with — in place of the
// teacher's hardcoded 0.92 USD/EUR rate and fixed three-hop route.
func (s *Server) HandlePaymentQuote(w http.ResponseWriter, r *http.Request) {
	var req PaymentQuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	depth := domain.LiquidityNormal
	switch req.LiquidityDepth {
	case "DEEP":
		depth = domain.LiquidityDeep
	case "THIN":
		depth = domain.LiquidityThin
	}

	market := domain.MarketConditions{
		VolatilityPct:  req.VolatilityPct,
		LiquidityDepth: depth,
		ClearingOpen:   s.corridorHasOpenWindow(req.CorridorID),
	}

	path := s.settlement.pathSelector.Select(decimal.NewFromFloat(req.Amount), 0, market, decimal.Zero)
	fee := req.Amount * path.CostBps / 10000

	response := PaymentQuoteResponse{
		QuoteID:    uuid.New().String(),
		Currency:   req.Currency,
		Amount:     req.Amount,
		PathKind:   string(path.Kind),
		CostBps:    path.CostBps,
		Fee:        fee,
		Confidence: path.Confidence,
		Reasoning:  path.Reasoning,
		ExpiresAt:  time.Now().Add(5 * time.Minute),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// corridorHasOpenWindow reports whether the netting window manager
// currently has an open window for the corridor, feeding the path
// selector's ClearingOpen signal.
func (s *Server) corridorHasOpenWindow(corridorID string) bool {
	for _, win := range s.settlement.nettingWindows.List() {
		if win.CorridorID == corridorID && win.Status == "OPEN" {
			return true
		}
	}
	return false
}

// HandleFeeCalculation applies the corridor fee schedule. Unlike the
// quote/status handlers this has no ledger state to read from — it is a
// pure function of the request, same as the teacher's version, so it is
// kept as-is modulo the corridor fee line the path selector already
// prices via CostBps.
func (s *Server) HandleFeeCalculation(w http.ResponseWriter, r *http.Request) {
	var req FeeCalculationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	baseFee := req.Amount * 0.0005 // 0.05%
	priorityFee := 0.0
	switch req.Priority {
	case "EXPRESS":
		priorityFee = req.Amount * 0.0002
	case "INSTANT":
		priorityFee = req.Amount * 0.0005
	}

	nettingDiscount := baseFee * 0.15 // netting window discount
	totalFee := baseFee + priorityFee - nettingDiscount

	breakdown := []FeeBreakdown{
		{Type: "BASE_FEE", Description: "base transaction fee", Amount: baseFee},
		{Type: "PRIORITY_FEE", Description: "priority processing fee", Amount: priorityFee},
		{Type: "NETTING_DISCOUNT", Description: "multilateral netting discount", Amount: -nettingDiscount},
	}

	response := FeeCalculationResponse{
		BaseFee:         baseFee,
		PriorityFee:     priorityFee,
		NettingDiscount: nettingDiscount,
		TotalFee:        totalFee,
		Breakdown:       breakdown,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HandlePaymentCancel appends a rejection event for a payment that has not
// yet reached a terminal state, through the same Event Ledger every other
// status transition goes through.
func (s *Server) HandlePaymentCancel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentID string `json:"payment_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	paymentID, err := uuid.Parse(req.PaymentID)
	if err != nil {
		http.Error(w, "invalid payment id", http.StatusBadRequest)
		return
	}

	payment, err := s.GetPaymentStatus(r.Context(), paymentID)
	if err != nil {
		http.Error(w, "payment not found", http.StatusNotFound)
		return
	}
	if payment.Status.IsTerminal() {
		http.Error(w, "payment already in a terminal state", http.StatusConflict)
		return
	}

	if _, err := s.ledger.AppendEvent(r.Context(), paymentID, domain.EventPaymentRejected, payment); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"payment_id": req.PaymentID,
		"status":     "CANCELLED",
		"timestamp":  time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HandlePaymentsList returns the same recently-submitted feed
// HandleSubmitPayment populates — the real in-process record of what has
// actually been submitted, rather than two hardcoded sample rows.
func (s *Server) HandlePaymentsList(w http.ResponseWriter, r *http.Request) {
	transactionsMu.RLock()
	defer transactionsMu.RUnlock()

	response := map[string]interface{}{
		"payments":    recentTransactions,
		"total_count": len(recentTransactions),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
