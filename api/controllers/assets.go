package controllers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/imageguard-labs/imageguard-backend/api/responses"
	"github.com/imageguard-labs/imageguard-backend/api/validators"
	"github.com/imageguard-labs/imageguard-backend/internal/assets"
	"github.com/imageguard-labs/imageguard-backend/pkg/config"
	pkgerrors "github.com/imageguard-labs/imageguard-backend/pkg/errors"
	"github.com/imageguard-labs/imageguard-backend/pkg/logger"
)

// UploadAsset ingests an original image as multipart form data. The file
// part is "file"; "name" and "description" ride alongside as form fields.
func UploadAsset(svc assets.Service, cfg config.UploadConfig, logg *logger.Logger) http.HandlerFunc {
	maxBytes := int64(cfg.MaxUploadMB) << 20
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := orgIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "upload exceeds size limit"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body"))
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "file part required"))
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read upload"))
			return
		}

		input := assets.UploadInput{
			Name:        validators.SanitizeString(r.FormValue("name"), 255),
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		}
		if desc := validators.SanitizeString(r.FormValue("description"), 2000); desc != "" {
			input.Description = &desc
		}

		asset, err := svc.Upload(r.Context(), orgID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, asset)
	}
}

func ListAssets(svc assets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := orgIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := paginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), orgID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func GetAsset(svc assets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := orgIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		assetID, err := pathUUID(r, "assetId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		asset, err := svc.Get(r.Context(), orgID, assetID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, asset)
	}
}

type updateAssetRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
}

func UpdateAsset(svc assets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := orgIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		assetID, err := pathUUID(r, "assetId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateAssetRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if body.Name != nil {
			trimmed := strings.TrimSpace(*body.Name)
			body.Name = &trimmed
		}

		asset, err := svc.Update(r.Context(), orgID, assetID, assets.UpdateInput{
			Name:        body.Name,
			Description: body.Description,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, asset)
	}
}

func DeleteAsset(svc assets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := orgIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		assetID, err := pathUUID(r, "assetId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), orgID, assetID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}
