package ledger

import (
	"time"

	"github.com/deltran/clearing-core/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	eventsAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_events_appended_total",
		Help: "Total number of events appended to the ledger.",
	})

	batchesFlushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_batches_flushed_total",
			Help: "Total number of batch flushes, labeled by trigger.",
		},
		[]string{"trigger"},
	)

	batchSizeObserved = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledger_batch_size",
		Help:    "Size of flushed batches.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
	})
)

// appendRequest is a message asking the actor to append one event; it
// carries a response channel so the caller can wait for durability.
type appendRequest struct {
	event    *domain.LedgerEvent
	response chan error
}

// flushRequest asks the actor to flush its current batch immediately.
type flushRequest struct {
	response chan error
}

// actor is the single writer serializing all appends to the EventStore.
// Mirrors the mailbox/batch pattern: one goroutine owns the store, batching
// amortizes durability cost, and a bounded mailbox provides backpressure.
type actor struct {
	store   EventStore
	logger  *zap.Logger
	mailbox chan interface{}

	batch         []*domain.LedgerEvent
	maxBatchSize  int
	batchTimeout  time.Duration
	batchingOn    bool

	shutdown chan chan struct{}
}

const mailboxCapacity = 1000

func newActor(store EventStore, logger *zap.Logger, maxBatchSize int, batchTimeout time.Duration, batchingOn bool) *actor {
	if maxBatchSize <= 0 {
		maxBatchSize = 1
	}
	return &actor{
		store:        store,
		logger:       logger,
		mailbox:      make(chan interface{}, mailboxCapacity),
		batch:        make([]*domain.LedgerEvent, 0, maxBatchSize),
		maxBatchSize: maxBatchSize,
		batchTimeout: batchTimeout,
		batchingOn:   batchingOn,
		shutdown:     make(chan chan struct{}),
	}
}

// run is the actor's event loop. It owns the EventStore exclusively —
// nothing else may call store.PutEvent/PutBlock concurrently.
func (a *actor) run() {
	var timerC <-chan time.Time
	var timer *time.Timer
	if a.batchingOn {
		timer = time.NewTimer(a.batchTimeout)
		timerC = timer.C
		defer timer.Stop()
	}

	for {
		select {
		case msg := <-a.mailbox:
			switch m := msg.(type) {
			case *appendRequest:
				a.handleAppend(m)
				if a.batchingOn && timer != nil {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(a.batchTimeout)
				}
			case *flushRequest:
				m.response <- a.flush("manual")
			}

		case <-timerC:
			if err := a.flush("timeout"); err != nil {
				a.logger.Error("ledger batch flush on timeout failed", zap.Error(err))
			}
			timer.Reset(a.batchTimeout)

		case done := <-a.shutdown:
			_ = a.flush("shutdown")
			close(done)
			return
		}
	}
}

func (a *actor) handleAppend(req *appendRequest) {
	if !a.batchingOn {
		err := a.store.PutEvent(req.event)
		req.response <- err
		if err == nil {
			eventsAppended.Inc()
		}
		return
	}

	a.batch = append(a.batch, req.event)
	req.response <- nil
	eventsAppended.Inc()

	if len(a.batch) >= a.maxBatchSize {
		if err := a.flush("full"); err != nil {
			a.logger.Error("ledger batch flush on full failed", zap.Error(err))
		}
	}
}

func (a *actor) flush(trigger string) error {
	if len(a.batch) == 0 {
		return nil
	}

	batch := a.batch
	a.batch = make([]*domain.LedgerEvent, 0, a.maxBatchSize)

	for _, event := range batch {
		if err := a.store.PutEvent(event); err != nil {
			return err
		}
	}

	batchesFlushed.WithLabelValues(trigger).Inc()
	batchSizeObserved.Observe(float64(len(batch)))
	return nil
}

// handle is the client-facing side of the actor, analogous to LedgerHandle.
type handle struct {
	mailbox chan interface{}
	a       *actor
}

func (h *handle) appendEvent(event *domain.LedgerEvent) error {
	req := &appendRequest{event: event, response: make(chan error, 1)}
	h.mailbox <- req
	return <-req.response
}

func (h *handle) flushBatch() error {
	req := &flushRequest{response: make(chan error, 1)}
	h.mailbox <- req
	return <-req.response
}

func (h *handle) close() {
	done := make(chan struct{})
	h.a.shutdown <- done
	<-done
}

func spawnActor(store EventStore, logger *zap.Logger, maxBatchSize int, batchTimeout time.Duration, batchingOn bool) *handle {
	a := newActor(store, logger, maxBatchSize, batchTimeout, batchingOn)
	go a.run()
	return &handle{mailbox: a.mailbox, a: a}
}
