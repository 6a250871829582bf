// Package integration checks that the Postgres schema and Redis
// connection this process depends on are actually there, the backing
// implementation for Server.HandleHealth.
package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

var (
	ErrDatabaseNotReady = errors.New("database is not ready")
	ErrRedisNotReady    = errors.New("redis is not ready")
	ErrSchemaMissing    = errors.New("database schema is missing")
)

// ComponentStatus is one dependency's health.
type ComponentStatus struct {
	Name    string                 `json:"name"`
	Healthy bool                   `json:"healthy"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemHealth aggregates every dependency's ComponentStatus.
type SystemHealth struct {
	Healthy    bool              `json:"healthy"`
	Components []ComponentStatus `json:"components"`
}

// HealthChecker validates the Postgres schema and Redis connectivity
// this process's database/cache packages actually read and write.
type HealthChecker struct {
	db    *sql.DB
	redis *redis.Client
}

// NewHealthChecker builds a checker over the given Postgres and Redis
// connections.
func NewHealthChecker(db *sql.DB, redis *redis.Client) *HealthChecker {
	return &HealthChecker{db: db, redis: redis}
}

// requiredTables are the deltran schema tables this process's
// internal/database and internal/compliance packages actually query —
// the bank directory, audit trail, and sanctions list/identifiers.
// There is deliberately no users/sessions/payments table: identity
// lives in internal/auth's bearer tokens, payment state in
// internal/ledger, not Postgres.
var requiredTables = []string{"banks", "audit_log", "sanctions_list", "sanctions_identifiers"}

// CheckDatabase validates the connection and that the deltran schema
// carries the tables this process depends on.
func (hc *HealthChecker) CheckDatabase(ctx context.Context) ComponentStatus {
	status := ComponentStatus{Name: "postgres", Details: make(map[string]interface{})}

	if err := hc.db.PingContext(ctx); err != nil {
		status.Healthy = false
		status.Message = fmt.Sprintf("cannot ping database: %v", err)
		return status
	}

	var schemaExists bool
	err := hc.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.schemata WHERE schema_name = 'deltran'
		)
	`).Scan(&schemaExists)
	if err != nil {
		status.Healthy = false
		status.Message = fmt.Sprintf("cannot check schema: %v", err)
		return status
	}
	if !schemaExists {
		status.Healthy = false
		status.Message = "deltran schema does not exist"
		return status
	}

	placeholders := make([]string, len(requiredTables))
	args := make([]interface{}, len(requiredTables))
	for i, table := range requiredTables {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = table
	}

	var tableCount int
	err = hc.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = 'deltran'
		AND table_name IN (%s)
	`, strings.Join(placeholders, ",")), args...).Scan(&tableCount)
	if err != nil {
		status.Healthy = false
		status.Message = fmt.Sprintf("cannot check tables: %v", err)
		return status
	}

	status.Details["schema"] = "deltran"
	status.Details["tables_found"] = tableCount
	status.Details["tables_required"] = len(requiredTables)

	if tableCount != len(requiredTables) {
		status.Healthy = false
		status.Message = fmt.Sprintf("missing tables: found %d, required %d", tableCount, len(requiredTables))
		return status
	}

	status.Healthy = true
	status.Message = "database is healthy"
	return status
}

// CheckRedis validates the Redis connection backing the compliance cache.
func (hc *HealthChecker) CheckRedis(ctx context.Context) ComponentStatus {
	status := ComponentStatus{Name: "redis", Details: make(map[string]interface{})}

	if err := hc.redis.Ping(ctx).Err(); err != nil {
		status.Healthy = false
		status.Message = fmt.Sprintf("cannot ping redis: %v", err)
		return status
	}

	if _, err := hc.redis.Info(ctx, "server").Result(); err != nil {
		status.Healthy = false
		status.Message = fmt.Sprintf("cannot get redis info: %v", err)
		return status
	}

	status.Details["server_info"] = "connected"
	status.Healthy = true
	status.Message = "redis is healthy"
	return status
}

// CheckSystemHealth checks every dependency and rolls the result up
// into one SystemHealth, the body of Server.HandleHealth's /health
// response.
func (hc *HealthChecker) CheckSystemHealth(ctx context.Context) SystemHealth {
	components := []ComponentStatus{
		hc.CheckDatabase(ctx),
		hc.CheckRedis(ctx),
	}

	healthy := true
	for _, comp := range components {
		if !comp.Healthy {
			healthy = false
			break
		}
	}

	return SystemHealth{Healthy: healthy, Components: components}
}
