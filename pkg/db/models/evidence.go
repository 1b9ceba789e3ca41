package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/imageguard-labs/imageguard-backend/pkg/db/types"
	"github.com/imageguard-labs/imageguard-backend/pkg/enums"
)

// Evidence is a standalone evidence artifact, optionally backed by a file
// in the evidence bucket.
type Evidence struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrgID        uuid.UUID          `gorm:"column:org_id;type:uuid;not null;index"`
	AssetID      uuid.UUID          `gorm:"column:asset_id;type:uuid;not null;index"`
	MatchID      *uuid.UUID         `gorm:"column:match_id;type:uuid"`
	EvidenceType enums.EvidenceType `gorm:"column:evidence_type;not null"`
	Title        string             `gorm:"column:title;not null"`
	Description  *string            `gorm:"column:description"`
	FilePath     *string            `gorm:"column:file_path"`
	FileURL      *string            `gorm:"column:file_url"`
	Metadata     dbtypes.JSONMap    `gorm:"column:metadata;type:jsonb"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName keeps the singular table name; the default pluralizer would
// produce "evidences".
func (Evidence) TableName() string {
	return "evidence"
}
