package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/imageguard-labs/imageguard-backend/pkg/db/types"
	"github.com/imageguard-labs/imageguard-backend/pkg/enums"
)

// SystemLog is a persisted operational event, written best-effort.
type SystemLog struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrgID      *uuid.UUID      `gorm:"column:org_id;type:uuid;index"`
	Level      enums.LogLevel  `gorm:"column:level;not null"`
	Source     string          `gorm:"column:source;not null"`
	Message    string          `gorm:"column:message;not null"`
	Metadata   dbtypes.JSONMap `gorm:"column:metadata;type:jsonb"`
	StackTrace *string         `gorm:"column:stack_trace"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}
