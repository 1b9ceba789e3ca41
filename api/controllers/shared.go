package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/imageguard-labs/imageguard-backend/api/middleware"
	pkgerrors "github.com/imageguard-labs/imageguard-backend/pkg/errors"
	"github.com/imageguard-labs/imageguard-backend/pkg/pagination"
)

// orgIDFrom resolves the tenant scope seeded by the auth middleware.
func orgIDFrom(r *http.Request) (uuid.UUID, error) {
	raw := middleware.OrgIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "org context missing")
	}
	orgID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid org id")
	}
	return orgID, nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name)
	}
	return id, nil
}

func paginationParams(r *http.Request) (pagination.Params, error) {
	params := pagination.Params{
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}
	if limitStr := strings.TrimSpace(r.URL.Query().Get("limit")); limitStr != "" {
		value, err := strconv.Atoi(limitStr)
		if err != nil || value <= 0 {
			return params, pkgerrors.New(pkgerrors.CodeValidation, "limit must be a positive integer")
		}
		params.Limit = value
	}
	return params, nil
}
