// Package assets manages the original images a tenant protects: blob
// storage in the asset bucket plus the metadata rows scans run against.
package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/imageguard-labs/imageguard-backend/pkg/config"
	"github.com/imageguard-labs/imageguard-backend/pkg/db/models"
	pkgerrors "github.com/imageguard-labs/imageguard-backend/pkg/errors"
	"github.com/imageguard-labs/imageguard-backend/pkg/pagination"
	"github.com/imageguard-labs/imageguard-backend/pkg/storage/gcs"
)

// BlobStore is the slice of the bucket API the asset service uses.
type BlobStore interface {
	Upload(ctx context.Context, objectName, contentType string, data []byte) (*gcs.ObjectInfo, error)
	Delete(ctx context.Context, objectName string) error
}

// Service defines asset CRUD operations.
type Service interface {
	Upload(ctx context.Context, orgID uuid.UUID, input UploadInput) (*models.Asset, error)
	Get(ctx context.Context, orgID, assetID uuid.UUID) (*models.Asset, error)
	List(ctx context.Context, orgID uuid.UUID, params pagination.Params) (*ListResult, error)
	Update(ctx context.Context, orgID, assetID uuid.UUID, input UpdateInput) (*models.Asset, error)
	Delete(ctx context.Context, orgID, assetID uuid.UUID) error
}

// UploadInput carries one multipart upload.
type UploadInput struct {
	Name        string
	Description *string
	Filename    string
	ContentType string
	Data        []byte
}

// UpdateInput carries mutable asset fields. Nil means keep.
type UpdateInput struct {
	Name        *string
	Description *string
}

// ListResult wraps returned assets and the cursor for the next page.
type ListResult struct {
	Items  []models.Asset `json:"items"`
	Cursor string         `json:"cursor"`
}

type service struct {
	repo  Repository
	blobs BlobStore
	cfg   config.UploadConfig
}

// NewService wires asset dependencies.
func NewService(repo Repository, blobs BlobStore, cfg config.UploadConfig) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "assets repository required")
	}
	if blobs == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "asset blob store required")
	}
	return &service{repo: repo, blobs: blobs, cfg: cfg}, nil
}

func (s *service) Upload(ctx context.Context, orgID uuid.UUID, input UploadInput) (*models.Asset, error) {
	if orgID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "org id required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "asset name required")
	}
	if len(input.Data) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "asset file required")
	}
	if maxBytes := int64(s.cfg.MaxUploadMB) << 20; int64(len(input.Data)) > maxBytes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("file exceeds %dMB limit", s.cfg.MaxUploadMB))
	}
	if !s.mimeAllowed(input.ContentType) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported content type %q", input.ContentType))
	}

	sum := sha256.Sum256(input.Data)
	hash := hex.EncodeToString(sum[:])
	objectName := fmt.Sprintf("assets/%s/%s%s", orgID, uuid.NewString(), extensionFor(input.ContentType, input.Filename))

	info, err := s.blobs.Upload(ctx, objectName, input.ContentType, input.Data)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload asset blob")
	}

	asset := &models.Asset{
		OrgID:       orgID,
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		FilePath:    objectName,
		FileURL:     info.PublicURL,
		FileHash:    &hash,
		FileSize:    int64(len(input.Data)),
		MimeType:    input.ContentType,
	}
	if err := s.repo.Create(ctx, asset); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create asset")
	}
	return asset, nil
}

func (s *service) Get(ctx context.Context, orgID, assetID uuid.UUID) (*models.Asset, error) {
	if orgID == uuid.Nil || assetID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "org id and asset id required")
	}

	asset, err := s.repo.Get(ctx, orgID, assetID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "get asset")
	}
	if asset == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "asset not found")
	}
	return asset, nil
}

func (s *service) List(ctx context.Context, orgID uuid.UUID, params pagination.Params) (*ListResult, error) {
	if orgID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "org id required")
	}

	query := listAssetsParams{OrgID: orgID, Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list assets")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) Update(ctx context.Context, orgID, assetID uuid.UUID, input UpdateInput) (*models.Asset, error) {
	asset, err := s.Get(ctx, orgID, assetID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "asset name cannot be empty")
		}
		asset.Name = name
	}
	if input.Description != nil {
		asset.Description = input.Description
	}

	if err := s.repo.Update(ctx, asset); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update asset")
	}
	return asset, nil
}

// Delete removes the stored blob before the row. If the blob cannot be
// removed the row is kept so the asset stays discoverable for retry.
func (s *service) Delete(ctx context.Context, orgID, assetID uuid.UUID) error {
	asset, err := s.Get(ctx, orgID, assetID)
	if err != nil {
		return err
	}

	if asset.FilePath != "" {
		if err := s.blobs.Delete(ctx, asset.FilePath); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete asset blob")
		}
	}
	if err := s.repo.Delete(ctx, orgID, assetID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete asset")
	}
	return nil
}

func (s *service) mimeAllowed(contentType string) bool {
	for _, allowed := range s.cfg.AllowedMimes {
		if strings.EqualFold(strings.TrimSpace(allowed), contentType) {
			return true
		}
	}
	return false
}

func extensionFor(contentType, filename string) string {
	switch strings.ToLower(contentType) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	if idx := strings.LastIndex(filename, "."); idx >= 0 {
		return filename[idx:]
	}
	return ""
}
