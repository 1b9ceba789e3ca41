package syslog

import (
	"context"

	"gorm.io/gorm"

	"github.com/imageguard-labs/imageguard-backend/pkg/db/models"
)

// Repository persists system log rows.
type Repository interface {
	Create(ctx context.Context, entry *models.SystemLog) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a system log repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) Create(ctx context.Context, entry *models.SystemLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}
