// Package database provides the Postgres-backed durability layer this
// process actually reads and writes: bank reference data, the
// reconciliation-flag audit trail, and a connection health check.
// Payment state itself lives in the Event Ledger (internal/ledger), not
// here — there is no payments table, by design.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresConfig holds database connection settings.
type PostgresConfig struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// PostgresDB wraps the connection pool backing bank reference data and
// the audit log.
type PostgresDB struct {
	db     *sql.DB
	config PostgresConfig
}

// NewPostgresDB opens and pings a Postgres connection pool.
func NewPostgresDB(config PostgresConfig) (*PostgresDB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host,
		config.Port,
		config.User,
		config.Password,
		config.Database,
		config.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{db: db, config: config}, nil
}

// Close closes the connection pool.
func (p *PostgresDB) Close() error {
	return p.db.Close()
}

// DB returns the underlying sql.DB, for the sanctions screener's and
// health checker's own queries against it.
func (p *PostgresDB) DB() *sql.DB {
	return p.db
}

// Ping checks the database is reachable.
func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// GetStats returns connection pool statistics.
func (p *PostgresDB) GetStats() sql.DBStats {
	return p.db.Stats()
}

// Bank is a corridor participant's reference record.
type Bank struct {
	ID            string     `json:"id"`
	BICCode       string     `json:"bic_code"`
	Name          string     `json:"name"`
	CountryCode   string     `json:"country_code"`
	IsActive      bool       `json:"is_active"`
	OnboardedAt   time.Time  `json:"onboarded_at"`
	RiskRating    *string    `json:"risk_rating,omitempty"`
	KYCStatus     string     `json:"kyc_status"`
	KYCVerifiedAt *time.Time `json:"kyc_verified_at,omitempty"`
}

// GetBankByBIC looks up a corridor participant by BIC.
func (p *PostgresDB) GetBankByBIC(ctx context.Context, bicCode string) (*Bank, error) {
	query := `
		SELECT id, bic_code, name, country_code, is_active, onboarded_at,
		       risk_rating, kyc_status, kyc_verified_at
		FROM deltran.banks
		WHERE bic_code = $1
	`

	var bank Bank
	err := p.db.QueryRowContext(ctx, query, bicCode).Scan(
		&bank.ID, &bank.BICCode, &bank.Name, &bank.CountryCode, &bank.IsActive,
		&bank.OnboardedAt, &bank.RiskRating, &bank.KYCStatus, &bank.KYCVerifiedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("bank not found")
	}
	if err != nil {
		return nil, err
	}

	return &bank, nil
}

// ListActiveBanks returns every onboarded, active corridor participant.
func (p *PostgresDB) ListActiveBanks(ctx context.Context) ([]*Bank, error) {
	query := `
		SELECT id, bic_code, name, country_code, is_active, onboarded_at,
		       risk_rating, kyc_status, kyc_verified_at
		FROM deltran.banks
		WHERE is_active = true
		ORDER BY name ASC
	`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var banks []*Bank
	for rows.Next() {
		var bank Bank
		err := rows.Scan(
			&bank.ID, &bank.BICCode, &bank.Name, &bank.CountryCode, &bank.IsActive,
			&bank.OnboardedAt, &bank.RiskRating, &bank.KYCStatus, &bank.KYCVerifiedAt,
		)
		if err != nil {
			return nil, err
		}
		banks = append(banks, &bank)
	}

	return banks, rows.Err()
}

// AuditLog is one entry in the compliance audit trail — the durable
// record behind settlement reconciliation flags (spec.md §4.5 supplement)
// and any other event this process decides is audit-worthy.
type AuditLog struct {
	ID           int64
	EventID      string
	EventType    string
	Severity     string
	ActorID      *string
	ActorType    *string
	ActorName    *string
	Action       string
	ResourceType *string
	ResourceID   *string
	Result       string
	ErrorMessage *string
	IPAddress    *string
	UserAgent    *string
	RequestID    *string
	Timestamp    time.Time
}

// CreateAuditLog persists an audit log entry.
func (p *PostgresDB) CreateAuditLog(ctx context.Context, log *AuditLog) error {
	query := `
		INSERT INTO deltran.audit_log (
			event_type, severity, actor_id, actor_type, actor_name,
			action, resource_type, resource_id, result, error_message,
			ip_address, user_agent, request_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, event_id, timestamp
	`

	err := p.db.QueryRowContext(ctx, query,
		log.EventType, log.Severity, log.ActorID, log.ActorType, log.ActorName,
		log.Action, log.ResourceType, log.ResourceID, log.Result, log.ErrorMessage,
		log.IPAddress, log.UserAgent, log.RequestID,
	).Scan(&log.ID, &log.EventID, &log.Timestamp)

	return err
}

// ListAuditLogs returns recent audit log entries, newest first, feeding
// the audit exporter's compliance export path.
func (p *PostgresDB) ListAuditLogs(ctx context.Context, since time.Time, limit int) ([]*AuditLog, error) {
	query := `
		SELECT id, event_id, event_type, severity, actor_id, actor_type, actor_name,
		       action, resource_type, resource_id, result, error_message,
		       ip_address, user_agent, request_id, timestamp
		FROM deltran.audit_log
		WHERE timestamp >= $1
		ORDER BY timestamp DESC
		LIMIT $2
	`

	rows, err := p.db.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*AuditLog
	for rows.Next() {
		var l AuditLog
		err := rows.Scan(
			&l.ID, &l.EventID, &l.EventType, &l.Severity, &l.ActorID, &l.ActorType,
			&l.ActorName, &l.Action, &l.ResourceType, &l.ResourceID, &l.Result,
			&l.ErrorMessage, &l.IPAddress, &l.UserAgent, &l.RequestID, &l.Timestamp,
		)
		if err != nil {
			return nil, err
		}
		logs = append(logs, &l)
	}

	return logs, rows.Err()
}

// HealthCheck verifies the connection is alive, the pool has open
// connections, and the bank reference table is queryable.
func (p *PostgresDB) HealthCheck(ctx context.Context) error {
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var count int
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM deltran.banks").Scan(&count); err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	stats := p.GetStats()
	if stats.OpenConnections == 0 {
		return fmt.Errorf("no open connections")
	}

	return nil
}
