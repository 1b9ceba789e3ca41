// Package scans owns the scan lifecycle: creation, detached orchestration,
// match persistence, and terminal status transitions.
package scans

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/imageguard-labs/imageguard-backend/internal/search"
	"github.com/imageguard-labs/imageguard-backend/internal/syslog"
	"github.com/imageguard-labs/imageguard-backend/pkg/config"
	"github.com/imageguard-labs/imageguard-backend/pkg/db/models"
	"github.com/imageguard-labs/imageguard-backend/pkg/enums"
	pkgerrors "github.com/imageguard-labs/imageguard-backend/pkg/errors"
	"github.com/imageguard-labs/imageguard-backend/pkg/logger"
	"github.com/imageguard-labs/imageguard-backend/pkg/metrics"
	"github.com/imageguard-labs/imageguard-backend/pkg/pagination"
	"github.com/imageguard-labs/imageguard-backend/pkg/pubsub"
)

// AssetSource resolves the asset a scan runs against.
type AssetSource interface {
	Get(ctx context.Context, orgID, assetID uuid.UUID) (*models.Asset, error)
}

// Orchestrator runs the multi-platform discovery for one asset image.
type Orchestrator interface {
	ExecuteFullScan(ctx context.Context, assetImageURL string, platforms []enums.Platform, progress search.ProgressFunc) (*search.ScanResult, error)
}

// EventPublisher publishes scan lifecycle events. May be nil when no topic
// is configured.
type EventPublisher interface {
	PublishScanEvent(ctx context.Context, event pubsub.ScanEvent) error
}

// Service defines scan operations.
type Service interface {
	Create(ctx context.Context, orgID, assetID uuid.UUID, platforms []string) (*models.Scan, error)
	Run(ctx context.Context, orgID, scanID uuid.UUID) error
	Rescan(ctx context.Context, orgID, scanID uuid.UUID) (*models.Scan, error)
	Dispatch(orgID, scanID uuid.UUID)
	List(ctx context.Context, orgID uuid.UUID, params pagination.Params) (*ListResult, error)
	Get(ctx context.Context, orgID, scanID uuid.UUID) (*Detail, error)
	ListMatches(ctx context.Context, orgID uuid.UUID, params pagination.Params) (*MatchListResult, error)
	UpdateMatchStatus(ctx context.Context, orgID, matchID uuid.UUID, status string) (*models.ScanMatch, error)
}

// ListResult wraps returned scans and the cursor for the next page.
type ListResult struct {
	Items  []models.Scan `json:"items"`
	Cursor string        `json:"cursor"`
}

// MatchListResult wraps returned matches and the cursor for the next page.
type MatchListResult struct {
	Items  []models.ScanMatch `json:"items"`
	Cursor string             `json:"cursor"`
}

// Detail is a scan with its matches, strongest first.
type Detail struct {
	Scan    models.Scan        `json:"scan"`
	Matches []models.ScanMatch `json:"matches"`
}

type service struct {
	repo         Repository
	assets       AssetSource
	orchestrator Orchestrator
	executor     *Executor
	publisher    EventPublisher
	metrics      *metrics.ScanMetrics
	events       syslog.Service
	logg         *logger.Logger
	threshold    int
}

// NewService wires scan dependencies. publisher and scanMetrics may be nil.
func NewService(repo Repository, assets AssetSource, orchestrator Orchestrator, executor *Executor, publisher EventPublisher, scanMetrics *metrics.ScanMetrics, events syslog.Service, logg *logger.Logger, cfg config.ScanConfig) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "scans repository required")
	}
	if assets == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "asset source required")
	}
	if orchestrator == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "scan orchestrator required")
	}
	if executor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "scan executor required")
	}
	if events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "system event logger required")
	}
	return &service{
		repo:         repo,
		assets:       assets,
		orchestrator: orchestrator,
		executor:     executor,
		publisher:    publisher,
		metrics:      scanMetrics,
		events:       events,
		logg:         logg,
		threshold:    cfg.SimilarityThreshold,
	}, nil
}

func (s *service) Create(ctx context.Context, orgID, assetID uuid.UUID, platforms []string) (*models.Scan, error) {
	if orgID == uuid.Nil || assetID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "org id and asset id required")
	}

	resolved, err := resolvePlatforms(platforms)
	if err != nil {
		return nil, err
	}

	asset, err := s.assets.Get(ctx, orgID, assetID)
	if err != nil {
		return nil, err
	}
	if asset.FileURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "asset has no resolvable file URL")
	}

	scan := &models.Scan{
		OrgID:     orgID,
		AssetID:   assetID,
		Status:    enums.ScanStatusPending,
		Platforms: pq.StringArray(resolved),
	}
	if err := s.repo.Create(ctx, scan); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create scan")
	}

	s.Dispatch(orgID, scan.ID)
	return scan, nil
}

// Dispatch hands a scan to the executor. Failures on the detached run are
// finalized so the scan never stays running.
func (s *service) Dispatch(orgID, scanID uuid.UUID) {
	s.executor.Dispatch(
		func(ctx context.Context) error {
			return s.Run(ctx, orgID, scanID)
		},
		func(ctx context.Context, cause error) {
			// A state conflict means another run owns the scan; leave its
			// status alone.
			if pkgerrors.CodeOf(cause) == pkgerrors.CodeStateConflict {
				return
			}
			s.finalizeFailure(ctx, orgID, scanID, cause)
		},
	)
}

func (s *service) Run(ctx context.Context, orgID, scanID uuid.UUID) error {
	started := time.Now()

	ok, err := s.repo.MarkRunning(ctx, orgID, scanID, started.UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark scan running")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "scan is not in a runnable state")
	}

	scan, err := s.repo.Get(ctx, orgID, scanID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load scan")
	}
	if scan == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "scan not found")
	}

	asset, err := s.assets.Get(ctx, orgID, scan.AssetID)
	if err != nil {
		return err
	}

	platforms := make([]enums.Platform, 0, len(scan.Platforms))
	for _, raw := range scan.Platforms {
		if platform, perr := enums.ParsePlatform(raw); perr == nil {
			platforms = append(platforms, platform)
		}
	}

	result, err := s.orchestrator.ExecuteFullScan(ctx, asset.FileURL, platforms, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute scan")
	}

	persisted := 0
	for _, m := range result.Matches {
		// Discovery returns every scored candidate; only scores at or above
		// the acceptance threshold become matches. Degraded scores get no
		// exemption here.
		if m.SimilarityScore < s.threshold {
			continue
		}
		match := &models.ScanMatch{
			OrgID:           orgID,
			ScanID:          scan.ID,
			AssetID:         scan.AssetID,
			SourceURL:       m.SourceURL,
			SourcePlatform:  m.Platform,
			ThumbnailURL:    optional(m.ThumbnailURL),
			Title:           optional(m.Title),
			Price:           optional(m.Price),
			SimilarityScore: m.SimilarityScore,
			ScoreDegraded:   m.ScoreDegraded,
			Status:          enums.MatchStatusDetected,
			DetectedAt:      m.DetectedAt,
		}
		if cerr := s.repo.CreateMatch(ctx, match); cerr != nil {
			s.logg.Error(s.logg.WithField(ctx, "scan_id", scanID.String()), "persisting match failed", cerr)
			s.events.Warn(ctx, orgID, "scan_executor", "match insert skipped", map[string]any{
				"scan_id":    scanID.String(),
				"source_url": m.SourceURL,
			})
			continue
		}
		persisted++
	}

	if err := s.repo.Finalize(ctx, orgID, scanID, enums.ScanStatusCompleted, persisted, time.Now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize scan")
	}

	s.metrics.ObserveDuration(fmt.Sprintf("%d", len(scan.Platforms)), time.Since(started))
	s.metrics.IncCompleted(orgID.String())
	s.publish(ctx, pubsub.EventScanCompleted, orgID, scanID, scan.AssetID, persisted)
	s.events.Info(ctx, orgID, "scan_executor", "scan completed", map[string]any{
		"scan_id":     scanID.String(),
		"match_count": persisted,
	})
	return nil
}

func (s *service) finalizeFailure(ctx context.Context, orgID, scanID uuid.UUID, cause error) {
	if err := s.repo.Finalize(ctx, orgID, scanID, enums.ScanStatusFailed, 0, time.Now().UTC()); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "scan_id", scanID.String()), "finalizing failed scan", err)
	}

	scan, _ := s.repo.Get(ctx, orgID, scanID)
	assetID := uuid.Nil
	if scan != nil {
		assetID = scan.AssetID
	}

	s.metrics.IncFailed(orgID.String())
	s.publish(ctx, pubsub.EventScanFailed, orgID, scanID, assetID, 0)
	s.events.Error(ctx, orgID, "scan_executor", "scan failed", map[string]any{
		"scan_id": scanID.String(),
		"cause":   cause.Error(),
	})
}

func (s *service) publish(ctx context.Context, eventType string, orgID, scanID, assetID uuid.UUID, matchCount int) {
	if s.publisher == nil {
		return
	}
	event := pubsub.ScanEvent{
		Type:       eventType,
		OrgID:      orgID.String(),
		ScanID:     scanID.String(),
		AssetID:    assetID.String(),
		MatchCount: matchCount,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.publisher.PublishScanEvent(ctx, event); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "scan_id", scanID.String()), "scan event publish failed: "+err.Error())
	}
}

func (s *service) Rescan(ctx context.Context, orgID, scanID uuid.UUID) (*models.Scan, error) {
	if orgID == uuid.Nil || scanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "org id and scan id required")
	}

	scan, err := s.repo.Get(ctx, orgID, scanID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "get scan")
	}
	if scan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "scan not found")
	}
	if scan.Status == enums.ScanStatusRunning {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "scan is currently running")
	}

	if err := s.repo.DeleteMatchesByScan(ctx, orgID, scanID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete scan matches")
	}
	if err := s.repo.ResetPending(ctx, orgID, scanID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset scan")
	}

	s.Dispatch(orgID, scanID)

	scan.Status = enums.ScanStatusPending
	scan.MatchCount = 0
	scan.StartedAt = nil
	scan.CompletedAt = nil
	return scan, nil
}

func (s *service) List(ctx context.Context, orgID uuid.UUID, params pagination.Params) (*ListResult, error) {
	if orgID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "org id required")
	}

	query := listScansParams{OrgID: orgID, Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list scans")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) Get(ctx context.Context, orgID, scanID uuid.UUID) (*Detail, error) {
	if orgID == uuid.Nil || scanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "org id and scan id required")
	}

	scan, err := s.repo.Get(ctx, orgID, scanID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "get scan")
	}
	if scan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "scan not found")
	}

	matches, err := s.repo.ListMatchesByScan(ctx, orgID, scanID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list scan matches")
	}
	return &Detail{Scan: *scan, Matches: matches}, nil
}

func (s *service) ListMatches(ctx context.Context, orgID uuid.UUID, params pagination.Params) (*MatchListResult, error) {
	if orgID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "org id required")
	}

	query := listMatchesParams{OrgID: orgID, Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.ListMatches(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list matches")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &MatchListResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) UpdateMatchStatus(ctx context.Context, orgID, matchID uuid.UUID, status string) (*models.ScanMatch, error) {
	if orgID == uuid.Nil || matchID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "org id and match id required")
	}

	parsed, err := enums.ParseMatchStatus(status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid match status")
	}

	found, err := s.repo.UpdateMatchStatus(ctx, orgID, matchID, parsed)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update match status")
	}
	if !found {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "match not found")
	}
	return s.repo.GetMatch(ctx, orgID, matchID)
}

func resolvePlatforms(platforms []string) ([]string, error) {
	if len(platforms) == 0 {
		all := enums.AllPlatforms()
		resolved := make([]string, 0, len(all))
		for _, p := range all {
			resolved = append(resolved, p.String())
		}
		return resolved, nil
	}

	seen := make(map[string]bool, len(platforms))
	resolved := make([]string, 0, len(platforms))
	for _, raw := range platforms {
		platform, err := enums.ParsePlatform(raw)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid platform")
		}
		if seen[platform.String()] {
			continue
		}
		seen[platform.String()] = true
		resolved = append(resolved, platform.String())
	}
	return resolved, nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
