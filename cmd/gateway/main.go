// Gateway server entry point
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deltran/clearing-core/internal/auth"
	"github.com/deltran/clearing-core/internal/config"
	"github.com/deltran/clearing-core/internal/observability"
	"github.com/deltran/clearing-core/internal/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func main() {
	issueOperatorToken := flag.String("issue-operator-token", "", "mint a bootstrap JWT for the named operator (role=operator) and exit; "+
		"production credentials are issued by the operator-facing IAM system this core does not own")
	flag.Parse()

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	if *issueOperatorToken != "" {
		jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret)
		pair, err := jwtManager.GenerateTokenPair(&auth.User{
			ID:       *issueOperatorToken,
			Username: *issueOperatorToken,
			Role:     auth.RoleOperator,
		})
		if err != nil {
			logger.Fatal("Failed to issue operator token", zap.Error(err))
		}
		fmt.Println(pair.AccessToken)
		return
	}

	logger.Info("Starting DelTran Gateway",
		zap.String("version", cfg.Version),
		zap.String("grpc_addr", cfg.Server.GRPCAddr),
		zap.String("http_addr", cfg.Server.HTTPAddr),
	)

	_, tracerCloser, err := observability.InitTracer(observability.TracerConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Tracing.Environment,
		JaegerEndpoint: cfg.Tracing.OTLPEndpoint,
		Enabled:        cfg.Tracing.Enabled,
		SampleRate:     cfg.Tracing.SampleRate,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer tracerCloser.Close()

	// Create gRPC server
	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(cfg.Server.MaxMessageSize),
		grpc.MaxSendMsgSize(cfg.Server.MaxMessageSize),
	)

	// Create gateway server
	gatewayServer, err := server.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create gateway server", zap.Error(err))
	}

	// Register gRPC services
	gatewayServer.RegisterServices(grpcServer)

	// Start gRPC server
	grpcListener, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Fatal("Failed to listen on gRPC port", zap.Error(err))
	}

	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.Server.GRPCAddr))
		if err := grpcServer.Serve(grpcListener); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	// Start HTTP server (metrics + health + web UI + API)
	httpMux := http.NewServeMux()

	// Prometheus metrics endpoint
	httpMux.Handle("/metrics", promhttp.Handler())

	// Health check endpoint backed by the real Postgres/Redis health
	// checker instead of a hardcoded status blob.
	httpMux.HandleFunc("/health", gatewayServer.HandleHealth)

	// REST API endpoints
	httpMux.HandleFunc("/api/v1/metrics/live", gatewayServer.HandleMetricsAPI)
	httpMux.HandleFunc("/api/v1/transactions/recent", gatewayServer.HandleRecentTransactions)
	httpMux.HandleFunc("/api/v1/payments", gatewayServer.HandleSubmitPayment)
	httpMux.HandleFunc("/api/v1/payments/", gatewayServer.HandleGetPayment)

	// Real-time system metrics
	httpMux.HandleFunc("/api/v1/metrics/system", gatewayServer.HandleSystemMetrics)

	// ========== SETTLEMENT APIs (PvP + consensus) ==========
	// These move money and bind settlement decisions, so each sits behind
	// JWT auth, a per-IP rate limiter, and the specific clearing-domain
	// permission it needs — the teacher's auth package, previously unused,
	// now gates the operations it actually protects instead of a login form.
	settlementAuth := func(perm auth.Permission, h http.HandlerFunc) http.Handler {
		return auth.JWTMiddleware(gatewayServer.JWTManager())(
			auth.IPRateLimitMiddleware(gatewayServer.RateLimiter())(
				auth.RequirePermission(perm)(h)))
	}
	httpMux.Handle("/api/v1/settlement/pvp/execute", settlementAuth(auth.PermPaymentCreate, gatewayServer.HandlePvPExecute))
	httpMux.Handle("/api/v1/settlement/pvp/accounts/seed",
		auth.JWTMiddleware(gatewayServer.JWTManager())(
			auth.IPRateLimitMiddleware(gatewayServer.RateLimiter())(
				auth.RequireOperator()(gatewayServer.HandlePvPAccountSeed))))
	httpMux.Handle("/api/v1/settlement/consensus/decide", settlementAuth(auth.PermPaymentUpdate, gatewayServer.HandleConsensusDecision))

	// ========== OPERATIONS APIs ==========
	// Payments
	httpMux.HandleFunc("/api/v1/payments/initiate", gatewayServer.HandlePaymentInitiate)
	httpMux.HandleFunc("/api/v1/payments/status", gatewayServer.HandlePaymentStatus)
	httpMux.HandleFunc("/api/v1/payments/quote", gatewayServer.HandlePaymentQuote)
	httpMux.HandleFunc("/api/v1/payments/fees/calc", gatewayServer.HandleFeeCalculation)
	httpMux.HandleFunc("/api/v1/payments/cancel", gatewayServer.HandlePaymentCancel)
	httpMux.HandleFunc("/api/v1/payments/list", gatewayServer.HandlePaymentsList)

	// Batches & Proofs
	httpMux.HandleFunc("/api/v1/batches/create", gatewayServer.HandleBatchCreate)
	httpMux.HandleFunc("/api/v1/batches/details", gatewayServer.HandleBatchDetails)
	httpMux.HandleFunc("/api/v1/batches/proofs", gatewayServer.HandleBatchProofs)
	httpMux.HandleFunc("/api/v1/batches/close", gatewayServer.HandleBatchClose)
	httpMux.HandleFunc("/api/v1/batches/list", gatewayServer.HandleBatchList)

	// Netting Windows
	httpMux.HandleFunc("/api/v1/netting/open", gatewayServer.HandleNettingOpen)
	httpMux.HandleFunc("/api/v1/netting/positions", gatewayServer.HandleNettingPositions)

	// ========== RISK & COMPLIANCE APIs ==========
	// Limits & Controls
	httpMux.HandleFunc("/api/v1/limits/set", gatewayServer.HandleLimitSet)

	// Compliance
	httpMux.Handle("/api/v1/compliance/check", settlementAuth(auth.PermComplianceCheck, gatewayServer.HandleComplianceCheck))

	// Reconciliation
	httpMux.HandleFunc("/api/v1/reconciliation/run", gatewayServer.HandleReconciliationRun)

	// Audit export (reconciliation flags, compliance checks, ...)
	httpMux.Handle("/api/v1/audit/export",
		auth.JWTMiddleware(gatewayServer.JWTManager())(
			auth.IPRateLimitMiddleware(gatewayServer.RateLimiter())(
				auth.RequirePermission(auth.PermSystemAudit)(http.HandlerFunc(gatewayServer.HandleAuditExport)))))

	// Serve API documentation UI
	webFS := http.FileServer(http.Dir("./web"))
	httpMux.Handle("/", webFS)

	// Ambient middleware chain: request ID tagging, security headers, CORS,
	// then the gateway's own request metrics.
	rootHandler := auth.RequestIDMiddleware()(
		auth.SecurityHeadersMiddleware()(
			auth.CORSMiddleware(cfg.Auth.CORSOrigins)(
				gatewayServer.MetricsMiddleware(httpMux))))

	httpServer := &http.Server{
		Addr:         cfg.Server.HTTPAddr,
		Handler:      rootHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop gRPC server
	grpcServer.GracefulStop()

	// Stop HTTP server
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Close gateway server
	if err := gatewayServer.Close(); err != nil {
		logger.Error("Gateway server close error", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}