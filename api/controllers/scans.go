package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/imageguard-labs/imageguard-backend/api/responses"
	"github.com/imageguard-labs/imageguard-backend/api/validators"
	"github.com/imageguard-labs/imageguard-backend/internal/scans"
	"github.com/imageguard-labs/imageguard-backend/pkg/logger"
)

type createScanRequest struct {
	AssetID   uuid.UUID `json:"asset_id" validate:"required"`
	Platforms []string  `json:"platforms,omitempty"`
}

// CreateScan records a scan and dispatches the asynchronous fan-out. The
// response returns immediately with the pending scan.
func CreateScan(svc scans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := orgIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createScanRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		scan, err := svc.Create(r.Context(), orgID, body.AssetID, body.Platforms)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, scan)
	}
}

func ListScans(svc scans.Service, logg *logger.Logger) http.HandlerFunc {
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

// GetScan returns the scan with its matches ranked by similarity.
func GetScan(svc scans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := orgIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		scanID, err := pathUUID(r, "scanId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.Get(r.Context(), orgID, scanID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

func RescanScan(svc scans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := orgIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		scanID, err := pathUUID(r, "scanId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		scan, err := svc.Rescan(r.Context(), orgID, scanID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, scan)
	}
}

func ListMatches(svc scans.Service, logg *logger.Logger) http.HandlerFunc {
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

		result, err := svc.ListMatches(r.Context(), orgID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type updateMatchStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func UpdateMatchStatus(svc scans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := orgIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		matchID, err := pathUUID(r, "matchId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateMatchStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		match, err := svc.UpdateMatchStatus(r.Context(), orgID, matchID, body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, match)
	}
}
