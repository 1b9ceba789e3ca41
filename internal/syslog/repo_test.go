package syslog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/imageguard-labs/imageguard-backend/pkg/db/models"
	dbtypes "github.com/imageguard-labs/imageguard-backend/pkg/db/types"
	"github.com/imageguard-labs/imageguard-backend/pkg/enums"
)

func setupSyslogTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS system_logs (
  id TEXT PRIMARY KEY,
  org_id TEXT,
  level TEXT NOT NULL,
  source TEXT NOT NULL,
  message TEXT NOT NULL,
  metadata TEXT,
  stack_trace TEXT,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func TestSyslogRepositoryCreateRoundTrip(t *testing.T) {
	db := setupSyslogTestDB(t)
	repo := NewRepository(db)

	orgID := uuid.New()
	entry := &models.SystemLog{
		ID:      uuid.New(),
		OrgID:   &orgID,
		Level:   enums.LogLevelError,
		Source:  "scan_executor",
		Message: "scan failed",
		Metadata: dbtypes.JSONMap{
			"scan_id":  uuid.New().String(),
			"platform": "shopee",
		},
	}
	require.NoError(t, repo.Create(context.Background(), entry))

	var found models.SystemLog
	require.NoError(t, db.First(&found, "id = ?", entry.ID).Error)
	assert.Equal(t, enums.LogLevelError, found.Level)
	assert.Equal(t, "scan_executor", found.Source)
	assert.Equal(t, "shopee", found.Metadata["platform"])
}
