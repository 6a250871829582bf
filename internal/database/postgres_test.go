package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates a test database connection
func setupTestDB(t *testing.T) *PostgresDB {
	config := PostgresConfig{
		Host:            "localhost",
		Port:            5432,
		Database:        "deltran_test",
		User:            "deltran_app",
		Password:        "changeme123",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}

	db, err := NewPostgresDB(config)
	require.NoError(t, err, "Failed to connect to test database")

	return db
}

func TestPostgresConnection(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	t.Run("Ping Database", func(t *testing.T) {
		err := db.Ping(ctx)
		assert.NoError(t, err)
	})

	t.Run("Check Connection Pool", func(t *testing.T) {
		stats := db.GetStats()
		assert.GreaterOrEqual(t, stats.MaxOpenConnections, 1)
	})

	t.Run("Health Check", func(t *testing.T) {
		err := db.HealthCheck(ctx)
		assert.NoError(t, err)
	})
}

func TestBankQueries(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	t.Run("Get Bank By BIC", func(t *testing.T) {
		bank, err := db.GetBankByBIC(ctx, "CHASUS33XXX")
		require.NoError(t, err)
		assert.NotNil(t, bank)
		assert.Equal(t, "CHASUS33XXX", bank.BICCode)
		assert.Contains(t, bank.Name, "JPMorgan")
		assert.True(t, bank.IsActive)
	})

	t.Run("List Active Banks", func(t *testing.T) {
		banks, err := db.ListActiveBanks(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, banks)

		for _, bank := range banks {
			assert.True(t, bank.IsActive)
		}
	})

	t.Run("Get Non-existent Bank", func(t *testing.T) {
		_, err := db.GetBankByBIC(ctx, "INVALID000")
		assert.Error(t, err)
	})
}

func TestAuditLog(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	var createdEventType string

	t.Run("Create Audit Log", func(t *testing.T) {
		log := &AuditLog{
			EventType:    "settlement.needs_reconciliation",
			Severity:     "WARNING",
			ActorType:    stringPtr("system"),
			ActorName:    stringPtr("pvp-executor"),
			Action:       "pvp_execute",
			ResourceType: stringPtr("pvp_settlement"),
			Result:       "TIMEOUT",
			ErrorMessage: stringPtr("leg B confirmation timed out"),
		}

		err := db.CreateAuditLog(ctx, log)
		require.NoError(t, err)
		assert.NotZero(t, log.ID)
		assert.NotEmpty(t, log.EventID)
		assert.NotZero(t, log.Timestamp)
		createdEventType = log.EventType
	})

	t.Run("List Audit Logs", func(t *testing.T) {
		logs, err := db.ListAuditLogs(ctx, time.Now().Add(-time.Hour), 10)
		require.NoError(t, err)
		assert.NotEmpty(t, logs)

		var found bool
		for _, l := range logs {
			if l.EventType == createdEventType {
				found = true
			}
		}
		assert.True(t, found, "expected the just-created audit log to be listed")
	})
}

func BenchmarkGetBankByBIC(b *testing.B) {
	db := setupTestDB(&testing.T{})
	defer db.Close()

	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := db.GetBankByBIC(ctx, "CHASUS33XXX")
		if err != nil {
			b.Fatal(err)
		}
	}
}

// Helper functions
func stringPtr(s string) *string {
	return &s
}
