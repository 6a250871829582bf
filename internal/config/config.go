// Configuration management
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the gateway configuration
type Config struct {
	Version    string           `yaml:"version"`
	Server     ServerConfig     `yaml:"server"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Limits     LimitsConfig     `yaml:"limits"`
	Banks      []BankConfig     `yaml:"banks"`
	Netting    NettingConfig    `yaml:"netting"`
	PathSelect PathSelectConfig `yaml:"path_select"`
	PvP        PvPConfig        `yaml:"pvp"`
	Redis      RedisConfig      `yaml:"redis"`
	NATS       NATSConfig       `yaml:"nats"`
	Settlement SettlementConfig `yaml:"settlement"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

// TracingConfig points the OpenTelemetry OTLP exporter at a collector
// (Jaeger, Grafana Tempo) for distributed tracing across the settlement
// path (internal/observability.InitTracer).
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled"`
	ServiceName    string  `yaml:"service_name"`
	Environment    string  `yaml:"environment"`
	OTLPEndpoint   string  `yaml:"otlp_endpoint"`
	SampleRate     float64 `yaml:"sample_rate"`
}

// DatabaseConfig points at the Postgres instance backing audit export and
// sanctions-list storage (internal/database.PostgresDB).
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RedisConfig points at the Redis instance backing idempotent settlement
// submission (internal/resilience.IdempotencyManager).
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// NATSConfig points at the JetStream cluster backing event publication.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// SettlementConfig names this node on external payment rails.
type SettlementConfig struct {
	SenderBIC           string   `yaml:"sender_bic"`
	SupportedCurrencies []string `yaml:"supported_currencies"`
	Rail                string   `yaml:"rail"` // "swift" or "iso20022"
}

// AuthConfig configures operator-facing JWT auth and rate limiting on the
// settlement/compliance API surface.
type AuthConfig struct {
	JWTSecret          string   `yaml:"jwt_secret"`
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute"`
	RateLimitBurst     int      `yaml:"rate_limit_burst"`
	CORSOrigins        []string `yaml:"cors_origins"`
}

// NettingConfig tunes the multilateral netting engine.
type NettingConfig struct {
	MinEfficiency   float64 `yaml:"min_efficiency"`
	EnableBilateral bool    `yaml:"enable_bilateral"`
}

// PathSelectConfig holds the scoring thresholds for the settlement path
// selector.
type PathSelectConfig struct {
	InstantBuyThreshold       string  `yaml:"instant_buy_threshold"` // decimal string
	HedgingVolatilityThreshold float64 `yaml:"hedging_volatility_threshold"`
	ClearingBenefitThreshold  float64 `yaml:"clearing_benefit_threshold"`
}

// PvPConfig tunes the payment-versus-payment controller.
type PvPConfig struct {
	DefaultTimeout  time.Duration `yaml:"default_timeout"`
	FundLockExpiry  time.Duration `yaml:"fund_lock_expiry"`
	LockSweepPeriod time.Duration `yaml:"lock_sweep_period"`
	LockRetryAttempts int         `yaml:"lock_retry_attempts"`
}

// ServerConfig represents server settings
type ServerConfig struct {
	GRPCAddr       string `yaml:"grpc_addr"`
	HTTPAddr       string `yaml:"http_addr"`
	MaxMessageSize int    `yaml:"max_message_size"`
}

// LedgerConfig represents ledger client settings
type LedgerConfig struct {
	Addr            string        `yaml:"addr"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	EnableBatching  bool          `yaml:"enable_batching"`
	BatchSize       int           `yaml:"batch_size"`
	BatchTimeout    time.Duration `yaml:"batch_timeout"`
	ClockSkewTolerance time.Duration `yaml:"clock_skew_tolerance"`
}

// LimitsConfig represents rate limiting settings
type LimitsConfig struct {
	MaxPaymentsPerSecond int           `yaml:"max_payments_per_second"`
	MaxPaymentsPerMinute int           `yaml:"max_payments_per_minute"`
	MaxPaymentAmount     string        `yaml:"max_payment_amount"` // Decimal string
	MinPaymentAmount     string        `yaml:"min_payment_amount"` // Decimal string
	WorkerPoolSize       int           `yaml:"worker_pool_size"`
	QueueSize            int           `yaml:"queue_size"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
}

// BankConfig represents bank connector settings
type BankConfig struct {
	BIC              string   `yaml:"bic"`
	Name             string   `yaml:"name"`
	SupportedCurrencies []string `yaml:"supported_currencies"`
	Endpoint         string   `yaml:"endpoint"`
	ConnectorType    string   `yaml:"connector_type"` // "iso20022", "swift", "api"
	Enabled          bool     `yaml:"enabled"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		Server: ServerConfig{
			GRPCAddr:       "0.0.0.0:50052",
			HTTPAddr:       "0.0.0.0:8080",
			MaxMessageSize: 4 * 1024 * 1024, // 4MB
		},
		Ledger: LedgerConfig{
			Addr:            "127.0.0.1:50051",
			ConnectTimeout:  10 * time.Second,
			RequestTimeout:  5 * time.Second,
			MaxRetries:      3,
			RetryBackoff:    100 * time.Millisecond,
			EnableBatching:  true,
			BatchSize:       100,
			BatchTimeout:    10 * time.Millisecond,
			ClockSkewTolerance: 60 * time.Second,
		},
		Netting: NettingConfig{
			MinEfficiency:   0.0,
			EnableBilateral: true,
		},
		PathSelect: PathSelectConfig{
			InstantBuyThreshold:        "100000",
			HedgingVolatilityThreshold: 1.5,
			ClearingBenefitThreshold:   0.002,
		},
		PvP: PvPConfig{
			DefaultTimeout:    60 * time.Second,
			FundLockExpiry:    5 * time.Minute,
			LockSweepPeriod:   10 * time.Second,
			LockRetryAttempts: 3,
		},
		Limits: LimitsConfig{
			MaxPaymentsPerSecond: 1000,
			MaxPaymentsPerMinute: 50000,
			MaxPaymentAmount:     "1000000.00", // $1M
			MinPaymentAmount:     "0.01",       // $0.01
			WorkerPoolSize:       1000,
			QueueSize:            10000,
			RequestTimeout:       30 * time.Second,
		},
		Banks: []BankConfig{
			{
				BIC:              "CHASUS33",
				Name:             "JPMorgan Chase",
				SupportedCurrencies: []string{"USD", "EUR"},
				Endpoint:         "https://chase.example.com/api",
				ConnectorType:    "api",
				Enabled:          true,
			},
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
			DB:   0,
		},
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		Settlement: SettlementConfig{
			SenderBIC:           "DELTUS33XXX",
			SupportedCurrencies: []string{"USD", "EUR", "GBP", "AED", "INR", "PKR", "NIS"},
			Rail:                "iso20022",
		},
		Auth: AuthConfig{
			JWTSecret:          "dev-secret-change-in-production",
			RateLimitPerMinute: 120,
			RateLimitBurst:     20,
			CORSOrigins:        []string{"*"},
		},
		Database: DatabaseConfig{
			Host:            "127.0.0.1",
			Port:            5432,
			Database:        "deltran",
			User:            "deltran",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			ServiceName:  "deltran-gateway",
			Environment:  "development",
			OTLPEndpoint: "127.0.0.1:4317",
			SampleRate:   0.1,
		},
	}
}

// Load loads configuration from file or environment
func Load() (*Config, error) {
	// Check for config file path
	configPath := os.Getenv("GATEWAY_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// Try to load from file
	if _, err := os.Stat(configPath); err == nil {
		return loadFromFile(configPath)
	}

	// Fall back to defaults with env overrides
	cfg := Default()
	applyEnvOverrides(cfg)
	return cfg, nil
}

// loadFromFile loads config from YAML file
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config) {
	if addr := os.Getenv("GATEWAY_GRPC_ADDR"); addr != "" {
		cfg.Server.GRPCAddr = addr
	}
	if addr := os.Getenv("GATEWAY_HTTP_ADDR"); addr != "" {
		cfg.Server.HTTPAddr = addr
	}
	if addr := os.Getenv("GATEWAY_LEDGER_ADDR"); addr != "" {
		cfg.Ledger.Addr = addr
	}
	if addr := os.Getenv("GATEWAY_REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if url := os.Getenv("GATEWAY_NATS_URL"); url != "" {
		cfg.NATS.URL = url
	}
	if host := os.Getenv("GATEWAY_DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if pw := os.Getenv("GATEWAY_DB_PASSWORD"); pw != "" {
		cfg.Database.Password = pw
	}
	if secret := os.Getenv("GATEWAY_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.GRPCAddr == "" {
		return fmt.Errorf("server.grpc_addr is required")
	}
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Ledger.Addr == "" {
		return fmt.Errorf("ledger.addr is required")
	}
	if c.Limits.WorkerPoolSize <= 0 {
		return fmt.Errorf("limits.worker_pool_size must be positive")
	}
	if c.PvP.DefaultTimeout < 30*time.Second || c.PvP.DefaultTimeout > 120*time.Second {
		return fmt.Errorf("pvp.default_timeout must be between 30s and 120s")
	}
	if c.Settlement.SenderBIC == "" {
		return fmt.Errorf("settlement.sender_bic is required")
	}
	if c.Settlement.Rail != "swift" && c.Settlement.Rail != "iso20022" {
		return fmt.Errorf("settlement.rail must be \"swift\" or \"iso20022\"")
	}
	if c.Database.Host == "" || c.Database.Database == "" {
		return fmt.Errorf("database.host and database.database are required")
	}
	if len(c.Auth.JWTSecret) < 8 {
		return fmt.Errorf("auth.jwt_secret must be at least 8 characters")
	}
	return nil
}