package controllers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/imageguard-labs/imageguard-backend/api/middleware"
	"github.com/imageguard-labs/imageguard-backend/internal/assets"
	"github.com/imageguard-labs/imageguard-backend/pkg/config"
	"github.com/imageguard-labs/imageguard-backend/pkg/db/models"
	"github.com/imageguard-labs/imageguard-backend/pkg/pagination"
)

type stubAssetService struct {
	uploaded *assets.UploadInput
	deleted  []uuid.UUID
}

func (s *stubAssetService) Upload(ctx context.Context, orgID uuid.UUID, input assets.UploadInput) (*models.Asset, error) {
	s.uploaded = &input
	return &models.Asset{ID: uuid.New(), OrgID: orgID, Name: input.Name}, nil
}

func (s *stubAssetService) Get(ctx context.Context, orgID, assetID uuid.UUID) (*models.Asset, error) {
	return &models.Asset{ID: assetID, OrgID: orgID}, nil
}

func (s *stubAssetService) List(ctx context.Context, orgID uuid.UUID, params pagination.Params) (*assets.ListResult, error) {
	return &assets.ListResult{}, nil
}

func (s *stubAssetService) Update(ctx context.Context, orgID, assetID uuid.UUID, input assets.UpdateInput) (*models.Asset, error) {
	return &models.Asset{ID: assetID, OrgID: orgID}, nil
}

func (s *stubAssetService) Delete(ctx context.Context, orgID, assetID uuid.UUID) error {
	s.deleted = append(s.deleted, assetID)
	return nil
}

func uploadConfig() config.UploadConfig {
	return config.UploadConfig{MaxUploadMB: 10, AllowedMimes: []string{"image/png"}}
}

func multipartUpload(t *testing.T, fields map[string]string, filename string, fileData []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field %s: %v", key, err)
		}
	}
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("create file part: %v", err)
		}
		if _, err := part.Write(fileData); err != nil {
			t.Fatalf("write file part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func TestUploadAssetParsesMultipart(t *testing.T) {
	svc := &stubAssetService{}
	body, contentType := multipartUpload(t, map[string]string{
		"name":        "Product hero shot",
		"description": "original artwork",
	}, "hero.png", []byte("png-bytes"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/assets", body)
	req.Header.Set("Content-Type", contentType)
	req = req.WithContext(middleware.WithOrgID(req.Context(), uuid.NewString()))

	resp := httptest.NewRecorder()
	UploadAsset(svc, uploadConfig(), nil)(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.uploaded == nil {
		t.Fatal("upload not forwarded")
	}
	if svc.uploaded.Name != "Product hero shot" || svc.uploaded.Filename != "hero.png" {
		t.Fatalf("unexpected input: %+v", svc.uploaded)
	}
	if svc.uploaded.Description == nil || *svc.uploaded.Description != "original artwork" {
		t.Fatalf("description not forwarded: %v", svc.uploaded.Description)
	}
	if string(svc.uploaded.Data) != "png-bytes" {
		t.Fatal("file data not forwarded")
	}
}

func TestUploadAssetRequiresFilePart(t *testing.T) {
	body, contentType := multipartUpload(t, map[string]string{"name": "x"}, "", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/assets", body)
	req.Header.Set("Content-Type", contentType)
	req = req.WithContext(middleware.WithOrgID(req.Context(), uuid.NewString()))

	resp := httptest.NewRecorder()
	UploadAsset(&stubAssetService{}, uploadConfig(), nil)(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestDeleteAssetForwardsID(t *testing.T) {
	svc := &stubAssetService{}
	assetID := uuid.New()

	req := withURLParam(authedRequest(http.MethodDelete, "/api/v1/assets/"+assetID.String(), ""), "assetId", assetID.String())
	resp := httptest.NewRecorder()
	DeleteAsset(svc, nil)(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if len(svc.deleted) != 1 || svc.deleted[0] != assetID {
		t.Fatalf("delete not forwarded: %v", svc.deleted)
	}
}
