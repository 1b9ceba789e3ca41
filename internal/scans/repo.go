package scans

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/imageguard-labs/imageguard-backend/pkg/db/models"
	"github.com/imageguard-labs/imageguard-backend/pkg/enums"
	"github.com/imageguard-labs/imageguard-backend/pkg/pagination"
)

// Repository exposes persistence helpers for scans and their matches.
type Repository interface {
	Create(ctx context.Context, scan *models.Scan) error
	Get(ctx context.Context, orgID, scanID uuid.UUID) (*models.Scan, error)
	List(ctx context.Context, params listScansParams) ([]models.Scan, *pagination.Cursor, error)
	MarkRunning(ctx context.Context, orgID, scanID uuid.UUID, now time.Time) (bool, error)
	Finalize(ctx context.Context, orgID, scanID uuid.UUID, status enums.ScanStatus, matchCount int, now time.Time) error
	ResetPending(ctx context.Context, orgID, scanID uuid.UUID) error
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.Scan, error)

	CreateMatch(ctx context.Context, match *models.ScanMatch) error
	DeleteMatchesByScan(ctx context.Context, orgID, scanID uuid.UUID) error
	ListMatchesByScan(ctx context.Context, orgID, scanID uuid.UUID) ([]models.ScanMatch, error)
	ListMatches(ctx context.Context, params listMatchesParams) ([]models.ScanMatch, *pagination.Cursor, error)
	GetMatch(ctx context.Context, orgID, matchID uuid.UUID) (*models.ScanMatch, error)
	UpdateMatchStatus(ctx context.Context, orgID, matchID uuid.UUID, status enums.MatchStatus) (bool, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a scan repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listScansParams struct {
	OrgID  uuid.UUID
	Limit  int
	Cursor *pagination.Cursor
}

type listMatchesParams struct {
	OrgID  uuid.UUID
	Limit  int
	Cursor *pagination.Cursor
}

func (r *repositoryImpl) Create(ctx context.Context, scan *models.Scan) error {
	return r.db.WithContext(ctx).Create(scan).Error
}

func (r *repositoryImpl) Get(ctx context.Context, orgID, scanID uuid.UUID) (*models.Scan, error) {
	var scan models.Scan
	err := r.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", scanID, orgID).
		First(&scan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &scan, nil
}

func (r *repositoryImpl) List(ctx context.Context, params listScansParams) ([]models.Scan, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.Scan{}).Where("org_id = ?", params.OrgID)
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var rows []models.Scan
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

// MarkRunning flips a pending or failed scan to running. Returns false when
// the scan is missing or already running/completed.
func (r *repositoryImpl) MarkRunning(ctx context.Context, orgID, scanID uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Scan{}).
		Where("id = ? AND org_id = ? AND status IN ?", scanID, orgID,
			[]string{enums.ScanStatusPending.String(), enums.ScanStatusFailed.String()}).
		Updates(map[string]any{
			"status":       enums.ScanStatusRunning,
			"started_at":   now,
			"completed_at": nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) Finalize(ctx context.Context, orgID, scanID uuid.UUID, status enums.ScanStatus, matchCount int, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Scan{}).
		Where("id = ? AND org_id = ?", scanID, orgID).
		Updates(map[string]any{
			"status":       status,
			"match_count":  matchCount,
			"completed_at": now,
		}).Error
}

func (r *repositoryImpl) ResetPending(ctx context.Context, orgID, scanID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Scan{}).
		Where("id = ? AND org_id = ?", scanID, orgID).
		Updates(map[string]any{
			"status":       enums.ScanStatusPending,
			"match_count":  0,
			"started_at":   nil,
			"completed_at": nil,
		}).Error
}

func (r *repositoryImpl) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.Scan, error) {
	var rows []models.Scan
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.ScanStatusPending, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repositoryImpl) CreateMatch(ctx context.Context, match *models.ScanMatch) error {
	return r.db.WithContext(ctx).Create(match).Error
}

func (r *repositoryImpl) DeleteMatchesByScan(ctx context.Context, orgID, scanID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("scan_id = ? AND org_id = ?", scanID, orgID).
		Delete(&models.ScanMatch{}).Error
}

func (r *repositoryImpl) ListMatchesByScan(ctx context.Context, orgID, scanID uuid.UUID) ([]models.ScanMatch, error) {
	var rows []models.ScanMatch
	err := r.db.WithContext(ctx).
		Where("scan_id = ? AND org_id = ?", scanID, orgID).
		Order("similarity_score DESC, detected_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repositoryImpl) ListMatches(ctx context.Context, params listMatchesParams) ([]models.ScanMatch, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.ScanMatch{}).Where("org_id = ?", params.OrgID)
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var rows []models.ScanMatch
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

func (r *repositoryImpl) GetMatch(ctx context.Context, orgID, matchID uuid.UUID) (*models.ScanMatch, error) {
	var match models.ScanMatch
	err := r.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", matchID, orgID).
		First(&match).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &match, nil
}

func (r *repositoryImpl) UpdateMatchStatus(ctx context.Context, orgID, matchID uuid.UUID, status enums.MatchStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ScanMatch{}).
		Where("id = ? AND org_id = ?", matchID, orgID).
		UpdateColumn("status", status)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
