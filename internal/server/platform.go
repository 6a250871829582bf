// Platform wiring: the Postgres-backed compliance/audit/health
// infrastructure that sits alongside the settlement stack in wiring.go.
// Kept in its own file since it's wired from a different corner of the
// teacher's codebase (auth, database, compliance, audit, integration)
// than the PvP/consensus/netting stack.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/deltran/clearing-core/internal/audit"
	"github.com/deltran/clearing-core/internal/auth"
	"github.com/deltran/clearing-core/internal/cache"
	"github.com/deltran/clearing-core/internal/compliance"
	"github.com/deltran/clearing-core/internal/config"
	"github.com/deltran/clearing-core/internal/database"
	"github.com/deltran/clearing-core/internal/integration"
	"github.com/deltran/clearing-core/internal/observability"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// platformComponents bundles the operator-facing infrastructure: Postgres
// (sanctions lists, audit log, bank/user directory), sanctions screening,
// audit export, health checking, and JWT auth / rate limiting for the
// settlement and compliance API surface.
type platformComponents struct {
	db                *database.PostgresDB
	sanctionsScreener *compliance.SanctionsScreener
	auditExporter     *audit.AuditExporter
	healthChecker     *integration.HealthChecker
	jwtManager        *auth.JWTManager
	rateLimiter       *auth.RateLimiter
	metrics           *observability.Metrics
	tracer            *observability.Tracer
	cache             *cache.RedisClient
}

func buildPlatformComponents(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) (*platformComponents, error) {
	cacheClient, err := cache.NewRedisClient(cache.CacheConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: 10,
	})
	if err != nil {
		return nil, fmt.Errorf("connect cache redis client: %w", err)
	}

	db, err := database.NewPostgresDB(database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		Database:        cfg.Database.Database,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return &platformComponents{
		db:                db,
		sanctionsScreener: compliance.NewSanctionsScreener(db.DB(), logger),
		auditExporter:     audit.NewAuditExporter(db),
		healthChecker:     integration.NewHealthChecker(db.DB(), redisClient),
		jwtManager:        auth.NewJWTManager(cfg.Auth.JWTSecret),
		rateLimiter:       auth.NewRateLimiter(redisClient, cfg.Auth.RateLimitPerMinute, cfg.Auth.RateLimitBurst),
		metrics:           observability.NewMetrics("deltran", "gateway"),
		tracer:            observability.NewTracer("deltran-gateway"),
		cache:             cacheClient,
	}, nil
}

func (p *platformComponents) Close() error {
	if err := p.cache.Close(); err != nil {
		return err
	}
	return p.db.Close()
}

// JWTManager exposes the auth token manager for route middleware wiring in
// cmd/gateway/main.go.
func (s *Server) JWTManager() *auth.JWTManager {
	return s.settlement.jwtManager
}

// RateLimiter exposes the Redis-backed rate limiter for route middleware
// wiring in cmd/gateway/main.go.
func (s *Server) RateLimiter() *auth.RateLimiter {
	return s.settlement.rateLimiter
}

// RedisClient exposes the raw Redis client backing the settlement server's
// auth.RateLimiter, for cmd/gateway/main.go diagnostics.
func (s *Server) RedisClient() *redis.Client {
	return s.settlement.redisClient
}

// MetricsMiddleware wraps an http.Handler with Prometheus HTTP request
// instrumentation, exposed for cmd/gateway/main.go to apply to the whole
// mux rather than route by route.
func (s *Server) MetricsMiddleware(h http.Handler) http.Handler {
	return observability.MetricsMiddleware(s.settlement.metrics)(h)
}

// HandleAuditExport renders the Postgres audit trail (reconciliation
// flags, compliance checks, and anything else CreateAuditLog recorded)
// to a CSV/XLSX/JSON file an examiner can download. Gated on
// auth.PermSystemAudit since it's a bulk export of operator-visible data.
func (s *Server) HandleAuditExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	since := time.Now().Add(-30 * 24 * time.Hour)
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid since: %v", err), http.StatusBadRequest)
			return
		}
		since = parsed
	}

	format := audit.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = audit.FormatCSV
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	resp, err := s.settlement.auditExporter.ExportAuditTrail(r.Context(), audit.ExportRequest{
		Since:  since,
		Limit:  limit,
		Format: format,
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("export failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// HandleHealth reports real Postgres/Redis health instead of the
// teacher's hardcoded status blob.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.settlement.healthChecker.CheckSystemHealth(r.Context())
	s.settlement.metrics.UpdateServiceHealth(health.Healthy)

	w.Header().Set("Content-Type", "application/json")
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(health)
}
