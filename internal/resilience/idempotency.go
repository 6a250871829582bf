package resilience

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrDuplicateRequest = errors.New("duplicate request detected")
	ErrKeyExpired       = errors.New("idempotency key expired")
)

// IdempotencyResult is the cached outcome of a settlement operation,
// keyed so a retried or duplicated submission returns the original
// result instead of re-executing the settlement (pvp.IdempotentExecutor).
type IdempotencyResult struct {
	Key       string      `json:"key"`
	Response  interface{} `json:"response"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// IdempotencyManager backs duplicate-submission protection for the PvP
// settlement path with Redis-held results and a short-lived processing
// lock.
type IdempotencyManager struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string
}

// NewIdempotencyManager creates a new idempotency manager.
func NewIdempotencyManager(redisClient *redis.Client, ttl time.Duration) *IdempotencyManager {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyManager{
		redis:  redisClient,
		ttl:    ttl,
		prefix: "idempotency:settlement:",
	}
}

// Store stores an idempotency result. ttl of 0 uses the manager default.
func (im *IdempotencyManager) Store(ctx context.Context, key string, response interface{}, ttl time.Duration) error {
	if ttl == 0 {
		ttl = im.ttl
	}
	redisKey := im.prefix + key

	result := &IdempotencyResult{
		Key:       key,
		Response:  response,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(ttl),
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := im.redis.Set(ctx, redisKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store in redis: %w", err)
	}

	return nil
}

// Get retrieves a previously stored idempotency result, or nil if absent
// or expired.
func (im *IdempotencyManager) Get(ctx context.Context, key string) (*IdempotencyResult, error) {
	redisKey := im.prefix + key

	data, err := im.redis.Get(ctx, redisKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var result IdempotencyResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}

	if time.Now().UTC().After(result.ExpiresAt) {
		return nil, ErrKeyExpired
	}

	return &result, nil
}

// GenerateKey generates an idempotency key from request data. Used by
// pvp.IdempotentExecutor to derive a settlement key from the settlement
// ID or leg pair.
func GenerateKey(prefix string, data ...string) string {
	h := sha256.New()
	for _, d := range data {
		h.Write([]byte(d))
	}
	hash := hex.EncodeToString(h.Sum(nil))
	if prefix != "" {
		return fmt.Sprintf("%s-%s", prefix, hash[:16])
	}
	return hash[:16]
}

// processingLock is a distributed lock held in Redis for the lifetime of
// one settlement attempt, so two concurrent submissions of the same
// settlement key can't both execute.
type processingLock struct {
	redis *redis.Client
	key   string
	token string
}

func (im *IdempotencyManager) acquireLock(ctx context.Context, key string, ttl time.Duration) (*processingLock, error) {
	lockKey := fmt.Sprintf("%slock:%s", im.prefix, key)
	token := GenerateKey("", key, time.Now().String())

	success, err := im.redis.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !success {
		return nil, fmt.Errorf("lock already held by another process")
	}

	return &processingLock{redis: im.redis, key: lockKey, token: token}, nil
}

// release releases the lock only if it's still held by this token.
func (pl *processingLock) release(ctx context.Context) error {
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`
	_, err := pl.redis.Eval(ctx, script, []string{pl.key}, pl.token).Result()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// ExecuteWithLock runs fn while holding a distributed lock scoped to key,
// releasing it on return regardless of outcome. This is what gives
// pvp.IdempotentExecutor its duplicate-submission protection: of two
// concurrent ExecutePvP calls for the same settlement key, only the lock
// holder reaches the controller; the other's acquisition fails at once
// with an error instead of waiting.
func (im *IdempotencyManager) ExecuteWithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	lock, err := im.acquireLock(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := lock.release(ctx); releaseErr != nil {
			fmt.Printf("failed to release idempotency lock: %v\n", releaseErr)
		}
	}()

	return fn()
}
