package assets

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/imageguard-labs/imageguard-backend/pkg/db/models"
	"github.com/imageguard-labs/imageguard-backend/pkg/pagination"
)

// Repository exposes persistence helpers for protected assets.
type Repository interface {
	Create(ctx context.Context, asset *models.Asset) error
	Get(ctx context.Context, orgID, assetID uuid.UUID) (*models.Asset, error)
	List(ctx context.Context, params listAssetsParams) ([]models.Asset, *pagination.Cursor, error)
	Update(ctx context.Context, asset *models.Asset) error
	Delete(ctx context.Context, orgID, assetID uuid.UUID) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an asset repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listAssetsParams struct {
	OrgID  uuid.UUID
	Limit  int
	Cursor *pagination.Cursor
}

func (r *repositoryImpl) Create(ctx context.Context, asset *models.Asset) error {
	return r.db.WithContext(ctx).Create(asset).Error
}

func (r *repositoryImpl) Get(ctx context.Context, orgID, assetID uuid.UUID) (*models.Asset, error) {
	var asset models.Asset
	err := r.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", assetID, orgID).
		First(&asset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

func (r *repositoryImpl) List(ctx context.Context, params listAssetsParams) ([]models.Asset, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.Asset{}).Where("org_id = ?", params.OrgID)
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var rows []models.Asset
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

func (r *repositoryImpl) Update(ctx context.Context, asset *models.Asset) error {
	return r.db.WithContext(ctx).Save(asset).Error
}

func (r *repositoryImpl) Delete(ctx context.Context, orgID, assetID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", assetID, orgID).
		Delete(&models.Asset{}).Error
}
