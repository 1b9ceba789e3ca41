package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/imageguard-labs/imageguard-backend/api/responses"
	"github.com/imageguard-labs/imageguard-backend/api/validators"
	"github.com/imageguard-labs/imageguard-backend/internal/infringements"
	"github.com/imageguard-labs/imageguard-backend/pkg/logger"
)

func ListInfringements(svc infringements.Service, logg *logger.Logger) http.HandlerFunc {
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

		params := infringements.ListParams{
			Status:   strings.TrimSpace(r.URL.Query().Get("status")),
			Priority: strings.TrimSpace(r.URL.Query().Get("priority")),
			Platform: strings.TrimSpace(r.URL.Query().Get("platform")),
			Limit:    page.Limit,
			Cursor:   page.Cursor,
		}

		result, err := svc.List(r.Context(), orgID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func InfringementStats(svc infringements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := orgIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		stats, err := svc.Stats(r.Context(), orgID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

func GetInfringement(svc infringements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := orgIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		caseID, err := pathUUID(r, "caseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		infringement, err := svc.Get(r.Context(), orgID, caseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, infringement)
	}
}

type createInfringementRequest struct {
	AssetID  uuid.UUID `json:"asset_id" validate:"required"`
	URL      string    `json:"url" validate:"required,url"`
	Platform string    `json:"platform" validate:"required"`
	Seller   *string   `json:"seller,omitempty"`
	Title    *string   `json:"title,omitempty"`
	Priority *string   `json:"priority,omitempty"`
}

func CreateInfringement(svc infringements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := orgIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createInfringementRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		infringement, err := svc.Create(r.Context(), orgID, infringements.CreateInput{
			AssetID:  body.AssetID,
			URL:      body.URL,
			Platform: body.Platform,
			Seller:   body.Seller,
			Title:    body.Title,
			Priority: body.Priority,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, infringement)
	}
}

type fromMatchRequest struct {
	MatchID uuid.UUID `json:"match_id" validate:"required"`
}

// CreateInfringementFromMatch opens a case seeded from a scan match; the
// match is flagged reported as a side effect.
func CreateInfringementFromMatch(svc infringements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := orgIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body fromMatchRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		infringement, err := svc.CreateFromMatch(r.Context(), orgID, body.MatchID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, infringement)
	}
}

func CaptureInfringementEvidence(svc infringements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := orgIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		caseID, err := pathUUID(r, "caseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		infringement, err := svc.CaptureEvidence(r.Context(), orgID, caseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, infringement)
	}
}

func AssessInfringement(svc infringements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := orgIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		caseID, err := pathUUID(r, "caseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		infringement, err := svc.Assess(r.Context(), orgID, caseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, infringement)
	}
}

func GenerateInfringementReport(svc infringements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := orgIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		caseID, err := pathUUID(r, "caseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		infringement, err := svc.GenerateReport(r.Context(), orgID, caseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, infringement)
	}
}

type markReportedRequest struct {
	Method    string  `json:"method" validate:"required,min=1,max=100"`
	Reference *string `json:"reference,omitempty" validate:"omitempty,max=500"`
}

func MarkInfringementReported(svc infringements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := orgIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		caseID, err := pathUUID(r, "caseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body markReportedRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		infringement, err := svc.MarkReported(r.Context(), orgID, caseID, body.Method, body.Reference)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, infringement)
	}
}

type updateCaseStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func UpdateInfringementStatus(svc infringements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := orgIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		caseID, err := pathUUID(r, "caseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateCaseStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		infringement, err := svc.UpdateStatus(r.Context(), orgID, caseID, body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, infringement)
	}
}

func DeleteInfringement(svc infringements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := orgIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		caseID, err := pathUUID(r, "caseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), orgID, caseID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}
