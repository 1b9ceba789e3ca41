package infringements

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/imageguard-labs/imageguard-backend/pkg/db/models"
	"github.com/imageguard-labs/imageguard-backend/pkg/enums"
	"github.com/imageguard-labs/imageguard-backend/pkg/pagination"
)

// Repository exposes persistence helpers for infringement cases.
type Repository interface {
	Create(ctx context.Context, infringement *models.Infringement) error
	Get(ctx context.Context, orgID, caseID uuid.UUID) (*models.Infringement, error)
	List(ctx context.Context, params listCasesParams) ([]models.Infringement, *pagination.Cursor, error)
	Update(ctx context.Context, infringement *models.Infringement) error
	Delete(ctx context.Context, orgID, caseID uuid.UUID) error
	CountByStatus(ctx context.Context, orgID uuid.UUID) (map[string]int64, error)

	// CaseNumberExists checks across all orgs. Case numbers are globally
	// unique (the table carries a UNIQUE constraint), so number generation
	// must see every org's cases to pick a free one.
	CaseNumberExists(ctx context.Context, caseNumber string) (bool, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a case repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listCasesParams struct {
	OrgID    uuid.UUID
	Status   *enums.InfringementStatus
	Priority *enums.Priority
	Platform *enums.Platform
	Limit    int
	Cursor   *pagination.Cursor
}

func (r *repositoryImpl) Create(ctx context.Context, infringement *models.Infringement) error {
	return r.db.WithContext(ctx).Create(infringement).Error
}

func (r *repositoryImpl) Get(ctx context.Context, orgID, caseID uuid.UUID) (*models.Infringement, error) {
	var infringement models.Infringement
	err := r.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", caseID, orgID).
		First(&infringement).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &infringement, nil
}

func (r *repositoryImpl) List(ctx context.Context, params listCasesParams) ([]models.Infringement, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.Infringement{}).Where("org_id = ?", params.OrgID)
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Priority != nil {
		query = query.Where("priority = ?", *params.Priority)
	}
	if params.Platform != nil {
		query = query.Where("infringing_platform = ?", *params.Platform)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var rows []models.Infringement
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

func (r *repositoryImpl) Update(ctx context.Context, infringement *models.Infringement) error {
	return r.db.WithContext(ctx).Save(infringement).Error
}

func (r *repositoryImpl) Delete(ctx context.Context, orgID, caseID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", caseID, orgID).
		Delete(&models.Infringement{}).Error
}

func (r *repositoryImpl) CountByStatus(ctx context.Context, orgID uuid.UUID) (map[string]int64, error) {
	type row struct {
		Status string
		Total  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&models.Infringement{}).
		Select("status, COUNT(*) AS total").
		Where("org_id = ?", orgID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[strings.ToLower(r.Status)] = r.Total
	}
	return counts, nil
}

func (r *repositoryImpl) CaseNumberExists(ctx context.Context, caseNumber string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Infringement{}).
		Where("case_number = ?", caseNumber).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
