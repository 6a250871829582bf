package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	redisClient := &RedisClient{
		client: client,
		ctx:    context.Background(),
	}

	return redisClient, mr
}

func TestComplianceCache(t *testing.T) {
	rc, _ := setupTestRedis(t)
	defer rc.Close()

	check := &ComplianceCheck{
		EntityHash: "hash123",
		Status:     "pass",
		RiskScore:  25.5,
		CheckedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(24 * time.Hour),
	}

	t.Run("Store and Get Compliance Check", func(t *testing.T) {
		err := rc.StoreComplianceCheck(check, 24*time.Hour)
		require.NoError(t, err)

		retrieved, err := rc.GetComplianceCheck("hash123")
		require.NoError(t, err)
		assert.Equal(t, check.Status, retrieved.Status)
		assert.Equal(t, check.RiskScore, retrieved.RiskScore)
	})

	t.Run("Get Non-existent Compliance Check", func(t *testing.T) {
		_, err := rc.GetComplianceCheck("nonexistent")
		assert.Error(t, err)
	})

	t.Run("Expired Compliance Check", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		rc := &RedisClient{client: client, ctx: context.Background()}
		defer rc.Close()

		err := rc.StoreComplianceCheck(check, 10*time.Millisecond)
		require.NoError(t, err)

		mr.FastForward(20 * time.Millisecond)

		_, err = rc.GetComplianceCheck("hash123")
		assert.Error(t, err)
	})
}

func TestPing(t *testing.T) {
	rc, _ := setupTestRedis(t)
	defer rc.Close()

	require.NoError(t, rc.Ping())
}

func BenchmarkComplianceCache(b *testing.B) {
	mr := miniredis.RunT(&testing.T{})
	defer mr.Close()

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	rc := &RedisClient{
		client: client,
		ctx:    context.Background(),
	}

	check := &ComplianceCheck{
		EntityHash: "hash123",
		Status:     "pass",
		RiskScore:  25.5,
		CheckedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(24 * time.Hour),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rc.StoreComplianceCheck(check, time.Hour)
		rc.GetComplianceCheck("hash123")
	}
}
