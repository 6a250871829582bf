package server

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/deltran/clearing-core/internal/domain"
	"github.com/deltran/clearing-core/internal/netting"
)

// nettingWindow tracks one open clearing window: payments accumulate in it
// from the moment they clear consensus until the window closes and the
// netting engine folds them into a SettlementBatch (spec.md §4.3).
type nettingWindow struct {
	WindowID   string
	CorridorID string
	Status     string // OPEN, CLOSED
	OpenedAt   time.Time
	CutoffTime time.Time
	Payments   []domain.PendingPayment
	Result     *domain.SettlementBatch
}

// nettingWindowManager keeps at most one open window per corridor in
// memory, the way pvp.MemAccountStore keeps balances in memory in the pvp
// package — there is no durable backing for window state.
type nettingWindowManager struct {
	mu      sync.Mutex
	windows map[string]*nettingWindow // windowID -> window
	open    map[string]string         // corridorID -> windowID of its open window
}

func newNettingWindowManager() *nettingWindowManager {
	return &nettingWindowManager{
		windows: make(map[string]*nettingWindow),
		open:    make(map[string]string),
	}
}

// Open starts a new window for a corridor, replacing any previously open
// window for the same corridor (the prior one is left CLOSED in the map,
// still queryable by its own window id).
func (m *nettingWindowManager) Open(corridorID string, cutoff time.Time) *nettingWindow {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prevID, ok := m.open[corridorID]; ok {
		m.windows[prevID].Status = "CLOSED"
	}

	windowID := fmt.Sprintf("WINDOW_%s_%d", corridorID, time.Now().UnixNano())
	w := &nettingWindow{
		WindowID:   windowID,
		CorridorID: corridorID,
		Status:     "OPEN",
		OpenedAt:   time.Now(),
		CutoffTime: cutoff,
	}
	m.windows[windowID] = w
	m.open[corridorID] = windowID
	return w
}

// AddPayment enqueues a cleared payment into the open window for its
// corridor, a no-op if that corridor has no open window — the payment
// settles bilaterally via PvP instead of waiting on netting.
func (m *nettingWindowManager) AddPayment(corridorID string, p domain.PendingPayment) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	windowID, ok := m.open[corridorID]
	if !ok {
		return false
	}
	w := m.windows[windowID]
	if w.Status != "OPEN" {
		return false
	}
	w.Payments = append(w.Payments, p)
	return true
}

func (m *nettingWindowManager) Get(windowID string) (*nettingWindow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[windowID]
	return w, ok
}

// List returns every window this process has opened, newest first — there
// is no durable store to page through, so this is the full in-memory set.
func (m *nettingWindowManager) List() []*nettingWindow {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*nettingWindow, 0, len(m.windows))
	for _, w := range m.windows {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.After(out[j].OpenedAt) })
	return out
}

// Close runs the netting engine over a window's accumulated payments and
// marks it CLOSED, regardless of whether Compute succeeded — a window that
// fails the minimum-efficiency check does not reopen on retry.
func (m *nettingWindowManager) Close(windowID string, engine *netting.Engine) (*domain.SettlementBatch, error) {
	m.mu.Lock()
	w, ok := m.windows[windowID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("netting window %s not found", windowID)
	}

	batch, err := engine.Compute(w.OpenedAt, time.Now(), w.Payments)

	m.mu.Lock()
	w.Status = "CLOSED"
	if m.open[w.CorridorID] == windowID {
		delete(m.open, w.CorridorID)
	}
	if err == nil {
		w.Result = batch
	}
	m.mu.Unlock()

	return batch, err
}
