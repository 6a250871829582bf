// Package cache provides a thin Redis-backed cache for compliance screening
// results, so a repeated sanctions check against the same debtor/creditor
// pair within the TTL window skips the full screen.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient wraps the Redis client backing the compliance cache.
type RedisClient struct {
	client *redis.Client
	ctx    context.Context
}

// CacheConfig holds Redis connection settings.
type CacheConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewRedisClient dials Redis and verifies the connection with a ping.
func NewRedisClient(config CacheConfig) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: 10,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{client: client, ctx: ctx}, nil
}

// Close closes the Redis connection.
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Ping checks the Redis connection is alive.
func (r *RedisClient) Ping() error {
	return r.client.Ping(r.ctx).Err()
}

// ComplianceCheck is a cached sanctions screening outcome, keyed by a hash
// of the screened debtor/creditor pair so repeat screens within the TTL
// window skip compliance.SanctionsScreener entirely.
type ComplianceCheck struct {
	EntityHash string    `json:"entity_hash"`
	Status     string    `json:"status"`
	RiskScore  float64   `json:"risk_score"`
	CheckedAt  time.Time `json:"checked_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// StoreComplianceCheck caches a compliance check result.
func (r *RedisClient) StoreComplianceCheck(check *ComplianceCheck, ttl time.Duration) error {
	key := fmt.Sprintf("compliance:%s", check.EntityHash)
	data, err := json.Marshal(check)
	if err != nil {
		return fmt.Errorf("failed to marshal compliance check: %w", err)
	}

	return r.client.Set(r.ctx, key, data, ttl).Err()
}

// GetComplianceCheck retrieves a cached compliance check result, returning
// an error if absent or expired so the caller falls back to a live screen.
func (r *RedisClient) GetComplianceCheck(entityHash string) (*ComplianceCheck, error) {
	key := fmt.Sprintf("compliance:%s", entityHash)
	data, err := r.client.Get(r.ctx, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("compliance check not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get compliance check: %w", err)
	}

	var check ComplianceCheck
	if err := json.Unmarshal(data, &check); err != nil {
		return nil, fmt.Errorf("failed to unmarshal compliance check: %w", err)
	}

	return &check, nil
}
