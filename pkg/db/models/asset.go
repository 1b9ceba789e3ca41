package models

import (
	"time"

	"github.com/google/uuid"
)

// Asset is an original image registered for protection. File metadata is
// immutable after upload; only name and description may change.
type Asset struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrgID       uuid.UUID `gorm:"column:org_id;type:uuid;not null;index"`
	Name        string    `gorm:"column:name;not null"`
	Description *string   `gorm:"column:description"`
	FilePath    string    `gorm:"column:file_path;not null"`
	FileURL     string    `gorm:"column:file_url;not null"`
	FileHash    *string   `gorm:"column:file_hash"`
	FileSize    int64     `gorm:"column:file_size;not null"`
	MimeType    string    `gorm:"column:mime_type;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
