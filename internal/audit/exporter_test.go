package audit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/deltran/clearing-core/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestExporter(t *testing.T) *AuditExporter {
	db, err := database.NewPostgresDB(database.PostgresConfig{
		Host:            "localhost",
		Port:            5432,
		Database:        "deltran_test",
		User:            "deltran_app",
		Password:        "changeme123",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: time.Minute,
	})
	require.NoError(t, err, "failed to connect to test database")
	t.Cleanup(func() { db.Close() })

	return NewAuditExporter(db)
}

func TestExportAuditTrail(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	exporter := setupTestExporter(t)
	ctx := context.Background()

	formats := []ExportFormat{FormatCSV, FormatExcel, FormatJSON}
	for _, format := range formats {
		t.Run(string(format), func(t *testing.T) {
			resp, err := exporter.ExportAuditTrail(ctx, ExportRequest{
				Since:  time.Now().Add(-24 * time.Hour),
				Limit:  100,
				Format: format,
			})
			require.NoError(t, err)
			defer os.Remove(resp.FilePath)

			assert.NotEmpty(t, resp.FilePath)
			assert.NotEmpty(t, resp.ComplianceRef)
			_, statErr := os.Stat(resp.FilePath)
			assert.NoError(t, statErr)
		})
	}
}

func TestExportAuditTrailRejectsUnknownFormat(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	exporter := setupTestExporter(t)
	_, err := exporter.ExportAuditTrail(context.Background(), ExportRequest{
		Since:  time.Now().Add(-time.Hour),
		Format: ExportFormat("pdf"),
	})
	assert.Error(t, err)
}
