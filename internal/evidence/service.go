// Package evidence manages standalone evidence artifacts: operator uploads
// and records derived from scan matches, with optional files in the
// evidence bucket.
package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/imageguard-labs/imageguard-backend/pkg/db/models"
	dbtypes "github.com/imageguard-labs/imageguard-backend/pkg/db/types"
	"github.com/imageguard-labs/imageguard-backend/pkg/enums"
	pkgerrors "github.com/imageguard-labs/imageguard-backend/pkg/errors"
	"github.com/imageguard-labs/imageguard-backend/pkg/logger"
	"github.com/imageguard-labs/imageguard-backend/pkg/pagination"
	"github.com/imageguard-labs/imageguard-backend/pkg/storage/gcs"
)

// BlobStore is the slice of the evidence bucket API this service uses.
type BlobStore interface {
	Upload(ctx context.Context, objectName, contentType string, data []byte) (*gcs.ObjectInfo, error)
	Delete(ctx context.Context, objectName string) error
}

// MatchSource reads and flags scan matches for match-derived records.
type MatchSource interface {
	GetMatch(ctx context.Context, orgID, matchID uuid.UUID) (*models.ScanMatch, error)
	UpdateMatchStatus(ctx context.Context, orgID, matchID uuid.UUID, status enums.MatchStatus) (bool, error)
}

// Service defines evidence record operations.
type Service interface {
	Create(ctx context.Context, orgID uuid.UUID, input CreateInput) (*models.Evidence, error)
	CreateFromMatch(ctx context.Context, orgID, matchID uuid.UUID, evidenceType string) (*models.Evidence, error)
	Get(ctx context.Context, orgID, evidenceID uuid.UUID) (*models.Evidence, error)
	List(ctx context.Context, orgID uuid.UUID, params ListParams) (*ListResult, error)
	Update(ctx context.Context, orgID, evidenceID uuid.UUID, input UpdateInput) (*models.Evidence, error)
	Delete(ctx context.Context, orgID, evidenceID uuid.UUID) error
}

// CreateInput carries a manually created evidence record.
type CreateInput struct {
	AssetID      uuid.UUID
	EvidenceType string
	Title        string
	Description  *string
	File         *FileInput
}

// FileInput is an optional attachment.
type FileInput struct {
	Filename    string
	ContentType string
	Data        []byte
}

// UpdateInput carries mutable evidence fields. Nil means keep.
type UpdateInput struct {
	Title       *string
	Description *string
}

// ListParams filters and paginates the evidence list.
type ListParams struct {
	AssetID *uuid.UUID
	Limit   int
	Cursor  string
}

// ListResult wraps returned records and the cursor for the next page.
type ListResult struct {
	Items  []models.Evidence `json:"items"`
	Cursor string            `json:"cursor"`
}

type service struct {
	repo    Repository
	blobs   BlobStore
	matches MatchSource
	logg    *logger.Logger
}

// NewService wires evidence dependencies.
func NewService(repo Repository, blobs BlobStore, matches MatchSource, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "evidence repository required")
	}
	if matches == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "match source required")
	}
	return &service{repo: repo, blobs: blobs, matches: matches, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, orgID uuid.UUID, input CreateInput) (*models.Evidence, error) {
	if orgID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "org id required")
	}
	if input.AssetID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "asset id required")
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title required")
	}
	evidenceType, err := enums.ParseEvidenceType(input.EvidenceType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid evidence type")
	}

	record := &models.Evidence{
		OrgID:        orgID,
		AssetID:      input.AssetID,
		EvidenceType: evidenceType,
		Title:        strings.TrimSpace(input.Title),
		Description:  input.Description,
		Metadata: dbtypes.JSONMap{
			"recorded_at": time.Now().UTC().Format(time.RFC3339),
		},
	}

	if input.File != nil {
		if s.blobs == nil {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "evidence storage is not configured")
		}
		sum := sha256.Sum256(input.File.Data)
		objectName := fmt.Sprintf("evidence/%s/%s_%s", orgID, uuid.NewString(), input.File.Filename)
		info, err := s.blobs.Upload(ctx, objectName, input.File.ContentType, input.File.Data)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload evidence file")
		}
		record.FilePath = &objectName
		record.FileURL = &info.PublicURL
		record.Metadata["file_hash"] = hex.EncodeToString(sum[:])
		record.Metadata["original_filename"] = input.File.Filename
		record.Metadata["content_type"] = input.File.ContentType
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create evidence")
	}
	return record, nil
}

// CreateFromMatch prefills a record from a discovered match and flags the
// match reported, best-effort.
func (s *service) CreateFromMatch(ctx context.Context, orgID, matchID uuid.UUID, evidenceType string) (*models.Evidence, error) {
	if orgID == uuid.Nil || matchID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "org id and match id required")
	}
	parsedType := enums.EvidenceTypeScreenshot
	if evidenceType != "" {
		var err error
		parsedType, err = enums.ParseEvidenceType(evidenceType)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid evidence type")
		}
	}

	match, err := s.matches.GetMatch(ctx, orgID, matchID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "get match")
	}
	if match == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "match not found")
	}

	title := fmt.Sprintf("Match on %s", match.SourcePlatform.DisplayName())
	if match.Title != nil && *match.Title != "" {
		title = *match.Title
	}
	description := fmt.Sprintf("Discovered at %s with similarity score %d", match.SourceURL, match.SimilarityScore)

	record := &models.Evidence{
		OrgID:        orgID,
		AssetID:      match.AssetID,
		MatchID:      &match.ID,
		EvidenceType: parsedType,
		Title:        title,
		Description:  &description,
		Metadata: dbtypes.JSONMap{
			"recorded_at":      time.Now().UTC().Format(time.RFC3339),
			"source_url":       match.SourceURL,
			"source_platform":  match.SourcePlatform.String(),
			"similarity_score": match.SimilarityScore,
		},
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create evidence")
	}

	if _, err := s.matches.UpdateMatchStatus(ctx, orgID, matchID, enums.MatchStatusReported); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "match_id", matchID.String()), "marking match reported failed: "+err.Error())
	}
	return record, nil
}

func (s *service) Get(ctx context.Context, orgID, evidenceID uuid.UUID) (*models.Evidence, error) {
	if orgID == uuid.Nil || evidenceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "org id and evidence id required")
	}

	record, err := s.repo.Get(ctx, orgID, evidenceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "get evidence")
	}
	if record == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "evidence not found")
	}
	return record, nil
}

func (s *service) List(ctx context.Context, orgID uuid.UUID, params ListParams) (*ListResult, error) {
	if orgID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "org id required")
	}

	query := listEvidenceParams{OrgID: orgID, AssetID: params.AssetID, Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list evidence")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) Update(ctx context.Context, orgID, evidenceID uuid.UUID, input UpdateInput) (*models.Evidence, error) {
	record, err := s.Get(ctx, orgID, evidenceID)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "title cannot be empty")
		}
		record.Title = title
	}
	if input.Description != nil {
		record.Description = input.Description
	}

	if err := s.repo.Update(ctx, record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update evidence")
	}
	return record, nil
}

// Delete removes the attachment blob before the row.
func (s *service) Delete(ctx context.Context, orgID, evidenceID uuid.UUID) error {
	record, err := s.Get(ctx, orgID, evidenceID)
	if err != nil {
		return err
	}

	if record.FilePath != nil && *record.FilePath != "" && s.blobs != nil {
		if err := s.blobs.Delete(ctx, *record.FilePath); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete evidence file")
		}
	}
	if err := s.repo.Delete(ctx, orgID, evidenceID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete evidence")
	}
	return nil
}
