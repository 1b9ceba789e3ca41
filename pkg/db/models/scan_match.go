package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/imageguard-labs/imageguard-backend/pkg/enums"
)

// ScanMatch is one qualifying listing discovered by a scan. Rows are
// immutable except for the operator-driven status field.
type ScanMatch struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrgID           uuid.UUID         `gorm:"column:org_id;type:uuid;not null;index"`
	ScanID          uuid.UUID         `gorm:"column:scan_id;type:uuid;not null;index"`
	AssetID         uuid.UUID         `gorm:"column:asset_id;type:uuid;not null;index"`
	SourceURL       string            `gorm:"column:source_url;not null"`
	SourcePlatform  enums.Platform    `gorm:"column:source_platform;not null"`
	ThumbnailURL    *string           `gorm:"column:thumbnail_url"`
	Title           *string           `gorm:"column:title"`
	Price           *string           `gorm:"column:price"`
	SimilarityScore int               `gorm:"column:similarity_score;not null"`
	ScoreDegraded   bool              `gorm:"column:score_degraded;not null;default:false"`
	Status          enums.MatchStatus `gorm:"column:status;not null;default:detected"`
	DetectedAt      time.Time         `gorm:"column:detected_at;not null"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
}
