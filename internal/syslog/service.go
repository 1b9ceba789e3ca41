// Package syslog records operational events in the database so operators can
// audit scans, captures, and integration failures without shell access to
// the process logs. Writes are best-effort: a failed insert must never fail
// the operation being logged.
package syslog

import (
	"context"

	"github.com/google/uuid"

	dbtypes "github.com/imageguard-labs/imageguard-backend/pkg/db/types"
	"github.com/imageguard-labs/imageguard-backend/pkg/db/models"
	"github.com/imageguard-labs/imageguard-backend/pkg/enums"
	"github.com/imageguard-labs/imageguard-backend/pkg/logger"
)

// Service writes system events. All methods swallow persistence errors.
type Service interface {
	Log(ctx context.Context, orgID *uuid.UUID, level enums.LogLevel, source, message string, metadata map[string]any)
	Info(ctx context.Context, orgID uuid.UUID, source, message string, metadata map[string]any)
	Warn(ctx context.Context, orgID uuid.UUID, source, message string, metadata map[string]any)
	Error(ctx context.Context, orgID uuid.UUID, source, message string, metadata map[string]any)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService wires the system event logger.
func NewService(repo Repository, logg *logger.Logger) Service {
	return &service{repo: repo, logg: logg}
}

func (s *service) Log(ctx context.Context, orgID *uuid.UUID, level enums.LogLevel, source, message string, metadata map[string]any) {
	if !level.IsValid() {
		level = enums.LogLevelInfo
	}

	entry := &models.SystemLog{
		OrgID:   orgID,
		Level:   level,
		Source:  source,
		Message: message,
	}
	if len(metadata) > 0 {
		entry.Metadata = dbtypes.JSONMap(metadata)
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "source", source), "system log write failed", err)
	}
}

func (s *service) Info(ctx context.Context, orgID uuid.UUID, source, message string, metadata map[string]any) {
	s.Log(ctx, orgRef(orgID), enums.LogLevelInfo, source, message, metadata)
}

func (s *service) Warn(ctx context.Context, orgID uuid.UUID, source, message string, metadata map[string]any) {
	s.Log(ctx, orgRef(orgID), enums.LogLevelWarn, source, message, metadata)
}

func (s *service) Error(ctx context.Context, orgID uuid.UUID, source, message string, metadata map[string]any) {
	s.Log(ctx, orgRef(orgID), enums.LogLevelError, source, message, metadata)
}

func orgRef(orgID uuid.UUID) *uuid.UUID {
	if orgID == uuid.Nil {
		return nil
	}
	return &orgID
}
