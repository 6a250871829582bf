// Gateway server implementation
package server

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deltran/clearing-core/internal/bus"
	"github.com/deltran/clearing-core/internal/config"
	"github.com/deltran/clearing-core/internal/domain"
	"github.com/deltran/clearing-core/internal/ledger"
	"github.com/deltran/clearing-core/internal/observability"
	"github.com/deltran/clearing-core/internal/validation"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

var (
	// Metrics
	paymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_payments_total",
			Help: "Total number of payments processed",
		},
		[]string{"status"},
	)

	paymentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_payment_duration_seconds",
			Help:    "Payment processing duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_queue_depth",
			Help: "Current payment queue depth",
		},
	)
)

// Server represents the gateway server
type Server struct {
	config             *config.Config
	logger             *zap.Logger
	ledger             *ledger.Ledger
	validator          *validation.Validator
	workers            []*Worker
	queue              chan *domain.Payment
	paymentQueue       chan *domain.Payment
	wg                 sync.WaitGroup
	shutdown           chan struct{}
	totalTransactions  int64
	failedTransactions int64
	startTime          time.Time

	settlement     *settlementComponents
	sweeperCancel  context.CancelFunc
	dlqCancel      context.CancelFunc
}

// New creates a new gateway server backed by an in-memory Event Ledger,
// the PvP/consensus/netting/path-selection settlement stack, and their
// Redis/NATS backing stores.
func New(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	led := ledger.Open(cfg, logger, ledger.NewMemStore())
	validator := validation.New(cfg, logger)
	queue := make(chan *domain.Payment, cfg.Limits.QueueSize)

	settlement, err := buildSettlementComponents(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("wire settlement stack: %w", err)
	}

	s := &Server{
		config:       cfg,
		logger:       logger,
		ledger:       led,
		validator:    validator,
		queue:        queue,
		paymentQueue: queue,
		shutdown:     make(chan struct{}),
		startTime:    time.Now(),
		settlement:   settlement,
	}

	s.startWorkers()
	settlement.metrics.StartUptimeTracking(s.startTime)

	sweeperCtx, cancel := context.WithCancel(context.Background())
	s.sweeperCancel = cancel
	go settlement.lockSweeper.Run(sweeperCtx)

	dlqCtx, dlqCancel := context.WithCancel(context.Background())
	s.dlqCancel = dlqCancel
	if err := settlement.natsConn.Consumer().Subscribe(
		dlqCtx, "deltran_dlq", "dlq-monitor", "dlq.>", s.handleDLQMessage,
	); err != nil {
		logger.Warn("failed to subscribe DLQ monitor", zap.Error(err))
	}

	return s, nil
}

// handleDLQMessage logs a message the bus.Producer gave up retrying, the
// operator-visible side of internal/bus's dead-letter queue, which
// previously had a writer (Producer.PublishToDLQ) but no reader.
func (s *Server) handleDLQMessage(ctx context.Context, msg *bus.Message) error {
	s.logger.Warn("message moved to dead-letter queue",
		zap.String("msg_id", msg.ID),
		zap.String("corridor_id", msg.CorridorID),
		zap.String("bank_id", msg.BankID),
	)
	return nil
}

// startWorkers starts the worker pool
func (s *Server) startWorkers() {
	s.workers = make([]*Worker, s.config.Limits.WorkerPoolSize)

	for i := 0; i < s.config.Limits.WorkerPoolSize; i++ {
		worker := &Worker{
			id:       i,
			server:   s,
			logger:   s.logger.With(zap.Int("worker_id", i)),
			shutdown: make(chan struct{}),
		}
		s.workers[i] = worker

		s.wg.Add(1)
		go worker.run()
	}

	s.logger.Info("Started worker pool",
		zap.Int("workers", s.config.Limits.WorkerPoolSize),
		zap.Int("queue_size", s.config.Limits.QueueSize),
	)
}

// RegisterServices is the gRPC registration hook; it registers no protobuf
// service on grpcServer and only logs.
func (s *Server) RegisterServices(grpcServer *grpc.Server) {
	// TODO: Register protobuf services
	// pb.RegisterGatewayServiceServer(grpcServer, s)
	s.logger.Info("Registered gRPC services")
}

// SubmitPayment submits a payment for processing
func (s *Server) SubmitPayment(ctx context.Context, payment *domain.Payment) error {
	start := time.Now()
	defer func() {
		paymentDuration.WithLabelValues("submit").Observe(time.Since(start).Seconds())
	}()

	if payment.PaymentID == uuid.Nil {
		payment.PaymentID = uuid.New()
	}
	if err := payment.Validate(); err != nil {
		return err
	}

	now := time.Now()
	payment.CreatedAt = now
	payment.UpdatedAt = now
	payment.Status = domain.PaymentStatusInitiated

	s.logger.Info("Payment submitted",
		zap.String("payment_id", payment.PaymentID.String()),
		zap.String("amount", payment.Amount.String()),
		zap.String("currency", payment.Currency),
	)

	select {
	case s.queue <- payment:
		queueDepth.Set(float64(len(s.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.shutdown:
		return fmt.Errorf("server shutting down")
	}
}

// GetPaymentStatus retrieves payment status
func (s *Server) GetPaymentStatus(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	start := time.Now()
	defer func() {
		paymentDuration.WithLabelValues("get_status").Observe(time.Since(start).Seconds())
	}()

	return s.ledger.GetPaymentState(paymentID)
}

// Close closes the server
func (s *Server) Close() error {
	s.logger.Info("Shutting down gateway server...")

	if s.sweeperCancel != nil {
		s.sweeperCancel()
	}
	if s.dlqCancel != nil {
		s.dlqCancel()
	}

	close(s.shutdown)
	close(s.queue)
	s.wg.Wait()

	if err := s.ledger.Close(); err != nil {
		s.logger.Error("Error closing ledger", zap.Error(err))
	}

	if err := s.settlement.Close(); err != nil {
		s.logger.Error("Error closing settlement stack", zap.Error(err))
	}

	s.logger.Info("Gateway server shutdown complete")
	return nil
}

// Worker processes payments from the queue
type Worker struct {
	id       int
	server   *Server
	logger   *zap.Logger
	shutdown chan struct{}
}

// run runs the worker loop
func (w *Worker) run() {
	defer w.server.wg.Done()

	w.logger.Debug("Worker started")

	for {
		select {
		case payment, ok := <-w.server.queue:
			if !ok {
				w.logger.Debug("Queue closed, worker exiting")
				return
			}

			queueDepth.Set(float64(len(w.server.queue)))

			atomic.AddInt64(&w.server.totalTransactions, 1)
			if err := w.processPayment(payment); err != nil {
				w.logger.Error("Failed to process payment",
					zap.String("payment_id", payment.PaymentID.String()),
					zap.Error(err),
				)
				atomic.AddInt64(&w.server.failedTransactions, 1)
				paymentsTotal.WithLabelValues("failed").Inc()
			} else {
				paymentsTotal.WithLabelValues("succeeded").Inc()
			}

		case <-w.shutdown:
			w.logger.Debug("Worker shutting down")
			return
		}
	}
}

// processPayment runs one payment through validation, sanctions and risk
// screening, recording a ledger event at every transition.
func (w *Worker) processPayment(payment *domain.Payment) error {
	start := time.Now()
	ctx := context.Background()
	amountF, _ := payment.Amount.Float64()
	ctx, span := observability.TracePaymentProcessing(ctx, w.server.settlement.tracer,
		payment.PaymentID.String(), payment.Reference, payment.Currency, amountF)

	defer func() {
		elapsed := time.Since(start)
		paymentDuration.WithLabelValues("process").Observe(elapsed.Seconds())
		w.server.settlement.metrics.RecordPayment(strings.ToLower(string(payment.Status)), payment.Currency, amountF, elapsed)
		span.SetAttributes(observability.AttrPaymentStatus.String(string(payment.Status)))
		span.End()
	}()

	validationResult := w.server.validator.ValidatePayment(payment)
	if !validationResult.Valid {
		w.logger.Warn("Payment validation failed",
			zap.String("payment_id", payment.PaymentID.String()),
			zap.Strings("errors", validationResult.Errors),
		)
		_, err := w.server.ledger.AppendEvent(ctx, payment.PaymentID, domain.EventValidationFailed, payment)
		payment.Status = domain.PaymentStatusRejected
		return err
	}

	if _, err := w.server.ledger.AppendEvent(ctx, payment.PaymentID, domain.EventValidationPassed, payment); err != nil {
		return fmt.Errorf("failed to record validation event: %w", err)
	}
	payment.Status = domain.PaymentStatusValidated

	sanctionsCheck := w.server.validator.CheckSanctions(payment)
	if !sanctionsCheck.Cleared {
		w.logger.Warn("Sanctions check failed",
			zap.String("payment_id", payment.PaymentID.String()),
			zap.Strings("hits", sanctionsCheck.Hits),
		)
		_, err := w.server.ledger.AppendEvent(ctx, payment.PaymentID, domain.EventSanctionsHit, payment)
		payment.Status = domain.PaymentStatusRejected
		if w.server.settlement != nil && w.server.settlement.consensus != nil {
			w.server.settlement.consensus.UpdateDecision(payment.PaymentID, string(domain.ServiceCompliance), domain.OutcomeReject, strings.Join(sanctionsCheck.Hits, "; "))
		}
		return err
	}

	if _, err := w.server.ledger.AppendEvent(ctx, payment.PaymentID, domain.EventSanctionsCleared, payment); err != nil {
		return fmt.Errorf("failed to record sanctions event: %w", err)
	}
	payment.Status = domain.PaymentStatusScreened

	riskAssessment := w.server.validator.AssessRisk(payment)
	if !riskAssessment.Approved {
		w.logger.Warn("Risk assessment rejected",
			zap.String("payment_id", payment.PaymentID.String()),
			zap.Float64("risk_score", riskAssessment.RiskScore),
			zap.Strings("reasons", riskAssessment.Reasons),
		)
		_, err := w.server.ledger.AppendEvent(ctx, payment.PaymentID, domain.EventRiskRejected, payment)
		payment.Status = domain.PaymentStatusRejected
		if w.server.settlement != nil && w.server.settlement.consensus != nil {
			w.server.settlement.consensus.UpdateDecision(payment.PaymentID, string(domain.ServiceRisk), domain.OutcomeReject, strings.Join(riskAssessment.Reasons, "; "))
		}
		return err
	}

	if _, err := w.server.ledger.AppendEvent(ctx, payment.PaymentID, domain.EventRiskApproved, payment); err != nil {
		return fmt.Errorf("failed to record risk event: %w", err)
	}
	payment.Status = domain.PaymentStatusApproved

	// Feed the compliance/risk outcomes to the consensus aggregator so a
	// payment's disposition reflects every collaborator, not just this
	// worker's own pass/fail gate (spec.md §4.6).
	if w.server.settlement != nil && w.server.settlement.consensus != nil {
		w.server.settlement.consensus.UpdateDecision(payment.PaymentID, string(domain.ServiceCompliance), domain.OutcomeApprove, "sanctions screening cleared")
		w.server.settlement.consensus.UpdateDecision(payment.PaymentID, string(domain.ServiceRisk), domain.OutcomeApprove,
			fmt.Sprintf("risk score %.2f", riskAssessment.RiskScore))
	}

	if _, err := w.server.ledger.AppendEvent(ctx, payment.PaymentID, domain.EventQueuedForSettlement, payment); err != nil {
		return fmt.Errorf("failed to queue for settlement: %w", err)
	}
	payment.Status = domain.PaymentStatusQueued

	// Offer the payment to the netting window open for its corridor, if
	// any — payments with no open window settle bilaterally via PvP instead.
	if w.server.settlement != nil && w.server.settlement.nettingWindows != nil {
		w.server.settlement.nettingWindows.AddPayment(payment.Currency, domain.PendingPayment{
			PaymentID:    payment.PaymentID,
			Amount:       payment.Amount,
			Currency:     payment.Currency,
			DebtorBank:   payment.DebtorBank,
			CreditorBank: payment.CreditorBank,
			QueuedAt:     time.Now(),
		})
	}

	w.logger.Info("Payment processed successfully",
		zap.String("payment_id", payment.PaymentID.String()),
		zap.Duration("duration", time.Since(start)),
	)

	return nil
}
