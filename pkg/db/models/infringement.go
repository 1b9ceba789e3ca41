package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/imageguard-labs/imageguard-backend/pkg/db/types"
	"github.com/imageguard-labs/imageguard-backend/pkg/enums"
)

// Infringement is a tracked case built from a match or created directly.
// It carries the evidence chain: screenshot, AI assessment, generated
// notice, and the reporting trail.
type Infringement struct {
	ID                 uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrgID              uuid.UUID                `gorm:"column:org_id;type:uuid;not null;index"`
	AssetID            uuid.UUID                `gorm:"column:asset_id;type:uuid;not null;index"`
	MatchID            *uuid.UUID               `gorm:"column:match_id;type:uuid"`
	CaseNumber         string                   `gorm:"column:case_number;not null;unique"`
	Status             enums.InfringementStatus `gorm:"column:status;not null;default:pending"`
	Priority           enums.Priority           `gorm:"column:priority;not null;default:low"`
	InfringingURL      string                   `gorm:"column:infringing_url;not null"`
	InfringingPlatform enums.Platform           `gorm:"column:infringing_platform;not null"`
	InfringingSeller   *string                  `gorm:"column:infringing_seller"`
	InfringingTitle    *string                  `gorm:"column:infringing_title"`

	ScreenshotURL     *string    `gorm:"column:screenshot_url"`
	ScreenshotPath    *string    `gorm:"column:screenshot_path"`
	ScreenshotHash    *string    `gorm:"column:screenshot_hash"`
	ScreenshotTakenAt *time.Time `gorm:"column:screenshot_taken_at"`

	AISimilarityScore  *int            `gorm:"column:ai_similarity_score"`
	AIConfidenceScore  *int            `gorm:"column:ai_confidence_score"`
	AIAssessmentReport dbtypes.JSONMap `gorm:"column:ai_assessment_report;type:jsonb"`
	AIConclusion       *string         `gorm:"column:ai_conclusion"`
	AIAssessedAt       *time.Time      `gorm:"column:ai_assessed_at"`

	ReportedAt         *time.Time `gorm:"column:reported_at"`
	ReportedMethod     *string    `gorm:"column:reported_method"`
	ReportedReference  *string    `gorm:"column:reported_reference"`
	ReportEmailContent *string    `gorm:"column:report_email_content"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
