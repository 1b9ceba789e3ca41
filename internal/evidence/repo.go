package evidence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/imageguard-labs/imageguard-backend/pkg/db/models"
	"github.com/imageguard-labs/imageguard-backend/pkg/pagination"
)

// Repository exposes persistence helpers for evidence records.
type Repository interface {
	Create(ctx context.Context, record *models.Evidence) error
	Get(ctx context.Context, orgID, evidenceID uuid.UUID) (*models.Evidence, error)
	List(ctx context.Context, params listEvidenceParams) ([]models.Evidence, *pagination.Cursor, error)
	Update(ctx context.Context, record *models.Evidence) error
	Delete(ctx context.Context, orgID, evidenceID uuid.UUID) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an evidence repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listEvidenceParams struct {
	OrgID   uuid.UUID
	AssetID *uuid.UUID
	Limit   int
	Cursor  *pagination.Cursor
}

func (r *repositoryImpl) Create(ctx context.Context, record *models.Evidence) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repositoryImpl) Get(ctx context.Context, orgID, evidenceID uuid.UUID) (*models.Evidence, error) {
	var record models.Evidence
	err := r.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", evidenceID, orgID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repositoryImpl) List(ctx context.Context, params listEvidenceParams) ([]models.Evidence, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.Evidence{}).Where("org_id = ?", params.OrgID)
	if params.AssetID != nil {
		query = query.Where("asset_id = ?", *params.AssetID)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var rows []models.Evidence
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	if len(rows) > normalized {
		rows = rows[:normalized]
		last := rows[normalized-1]
		return rows, &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
	}
	return rows, nil, nil
}

func (r *repositoryImpl) Update(ctx context.Context, record *models.Evidence) error {
	return r.db.WithContext(ctx).Save(record).Error
}

func (r *repositoryImpl) Delete(ctx context.Context, orgID, evidenceID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", evidenceID, orgID).
		Delete(&models.Evidence{}).Error
}
