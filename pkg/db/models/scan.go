package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/imageguard-labs/imageguard-backend/pkg/enums"
)

// Scan is one discovery run of an asset across a set of platforms.
type Scan struct {
	ID          uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrgID       uuid.UUID        `gorm:"column:org_id;type:uuid;not null;index"`
	AssetID     uuid.UUID        `gorm:"column:asset_id;type:uuid;not null;index"`
	Status      enums.ScanStatus `gorm:"column:status;not null;default:pending"`
	Platforms   pq.StringArray   `gorm:"column:platforms;type:text[];not null"`
	MatchCount  int              `gorm:"column:match_count;not null;default:0"`
	StartedAt   *time.Time       `gorm:"column:started_at"`
	CompletedAt *time.Time       `gorm:"column:completed_at"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
}
