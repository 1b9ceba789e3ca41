package syslog

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"

	"github.com/imageguard-labs/imageguard-backend/pkg/db/models"
	"github.com/imageguard-labs/imageguard-backend/pkg/enums"
	"github.com/imageguard-labs/imageguard-backend/pkg/logger"
)

type stubRepo struct {
	entries []*models.SystemLog
	err     error
}

func (s *stubRepo) Create(ctx context.Context, entry *models.SystemLog) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func TestLogPersistsEntry(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, quietLogger())
	orgID := uuid.New()

	svc.Error(context.Background(), orgID, "screenshot_capture", "capture failed", map[string]any{"url": "https://x"})

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.Level != enums.LogLevelError || entry.Source != "screenshot_capture" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.OrgID == nil || *entry.OrgID != orgID {
		t.Fatalf("expected org id %s, got %v", orgID, entry.OrgID)
	}
	if entry.Metadata["url"] != "https://x" {
		t.Fatalf("unexpected metadata: %v", entry.Metadata)
	}
}

func TestLogSwallowsPersistenceErrors(t *testing.T) {
	repo := &stubRepo{err: errors.New("db down")}
	svc := NewService(repo, quietLogger())

	// Must not panic or surface the error.
	svc.Info(context.Background(), uuid.New(), "scan_executor", "scan started", nil)
}

func TestLogNilOrgAndUnknownLevel(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, quietLogger())

	svc.Log(context.Background(), nil, enums.LogLevel("verbose"), "worker", "tick", nil)

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	if repo.entries[0].Level != enums.LogLevelInfo {
		t.Fatalf("unknown level should coerce to info, got %s", repo.entries[0].Level)
	}
	if repo.entries[0].OrgID != nil {
		t.Fatal("expected nil org id to persist as NULL")
	}
}
