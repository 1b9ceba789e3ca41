package controllers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/imageguard-labs/imageguard-backend/api/responses"
	"github.com/imageguard-labs/imageguard-backend/api/validators"
	"github.com/imageguard-labs/imageguard-backend/internal/evidence"
	"github.com/imageguard-labs/imageguard-backend/pkg/config"
	pkgerrors "github.com/imageguard-labs/imageguard-backend/pkg/errors"
	"github.com/imageguard-labs/imageguard-backend/pkg/logger"
)

// CreateEvidence records a manual evidence entry. Multipart form data with
// an optional "file" part; asset_id, evidence_type, title and description
// arrive as form fields.
func CreateEvidence(svc evidence.Service, cfg config.UploadConfig, logg *logger.Logger) http.HandlerFunc {
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

		assetID, err := uuid.Parse(strings.TrimSpace(r.FormValue("asset_id")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid asset_id"))
			return
		}

		input := evidence.CreateInput{
			AssetID:      assetID,
			EvidenceType: strings.TrimSpace(r.FormValue("evidence_type")),
			Title:        validators.SanitizeString(r.FormValue("title"), 255),
		}
		if desc := validators.SanitizeString(r.FormValue("description"), 2000); desc != "" {
			input.Description = &desc
		}

		if file, header, fileErr := r.FormFile("file"); fileErr == nil {
			defer file.Close()
			data, readErr := io.ReadAll(file)
			if readErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, readErr, "read upload"))
				return
			}
			input.File = &evidence.FileInput{
				Filename:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Data:        data,
			}
		}

		record, err := svc.Create(r.Context(), orgID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, record)
	}
}

type evidenceFromMatchRequest struct {
	MatchID      uuid.UUID `json:"match_id" validate:"required"`
	EvidenceType string    `json:"evidence_type,omitempty"`
}

func CreateEvidenceFromMatch(svc evidence.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := orgIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body evidenceFromMatchRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.CreateFromMatch(r.Context(), orgID, body.MatchID, body.EvidenceType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, record)
	}
}

func ListEvidence(svc evidence.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := orgIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := paginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := evidence.ListParams{Limit: page.Limit, Cursor: page.Cursor}
		if raw := strings.TrimSpace(r.URL.Query().Get("asset_id")); raw != "" {
			assetID, parseErr := uuid.Parse(raw)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid asset_id"))
				return
			}
			params.AssetID = &assetID
		}

		result, err := svc.List(r.Context(), orgID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func GetEvidence(svc evidence.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := orgIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		evidenceID, err := pathUUID(r, "evidenceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Get(r.Context(), orgID, evidenceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}

type updateEvidenceRequest struct {
	Title       *string `json:"title,omitempty" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
}

func UpdateEvidence(svc evidence.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := orgIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		evidenceID, err := pathUUID(r, "evidenceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateEvidenceRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Update(r.Context(), orgID, evidenceID, evidence.UpdateInput{
			Title:       body.Title,
			Description: body.Description,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}

func DeleteEvidence(svc evidence.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := orgIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		evidenceID, err := pathUUID(r, "evidenceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), orgID, evidenceID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}
