package scans

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/imageguard-labs/imageguard-backend/internal/search"
	"github.com/imageguard-labs/imageguard-backend/pkg/config"
	"github.com/imageguard-labs/imageguard-backend/pkg/db/models"
	"github.com/imageguard-labs/imageguard-backend/pkg/enums"
	pkgerrors "github.com/imageguard-labs/imageguard-backend/pkg/errors"
	"github.com/imageguard-labs/imageguard-backend/pkg/logger"
	"github.com/imageguard-labs/imageguard-backend/pkg/pagination"
	"github.com/imageguard-labs/imageguard-backend/pkg/pubsub"
)

type stubRepo struct {
	mu             sync.Mutex
	scans          map[uuid.UUID]*models.Scan
	matches        []*models.ScanMatch
	matchErrURLs   map[string]error
	finalized      []finalizeCall
	deletedScanIDs []uuid.UUID
	matchByID      map[uuid.UUID]*models.ScanMatch
	statusUpdates  map[uuid.UUID]enums.MatchStatus
}

type finalizeCall struct {
	scanID     uuid.UUID
	status     enums.ScanStatus
	matchCount int
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		scans:         map[uuid.UUID]*models.Scan{},
		matchErrURLs:  map[string]error{},
		matchByID:     map[uuid.UUID]*models.ScanMatch{},
		statusUpdates: map[uuid.UUID]enums.MatchStatus{},
	}
}

func (s *stubRepo) Create(ctx context.Context, scan *models.Scan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scan.ID = uuid.New()
	scan.CreatedAt = time.Now().UTC()
	s.scans[scan.ID] = scan
	return nil
}

func (s *stubRepo) Get(ctx context.Context, orgID, scanID uuid.UUID) (*models.Scan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scan, ok := s.scans[scanID]
	if !ok || scan.OrgID != orgID {
		return nil, nil
	}
	copied := *scan
	return &copied, nil
}

func (s *stubRepo) List(ctx context.Context, params listScansParams) ([]models.Scan, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (s *stubRepo) MarkRunning(ctx context.Context, orgID, scanID uuid.UUID, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scan, ok := s.scans[scanID]
	if !ok || scan.OrgID != orgID {
		return false, nil
	}
	if scan.Status != enums.ScanStatusPending && scan.Status != enums.ScanStatusFailed {
		return false, nil
	}
	scan.Status = enums.ScanStatusRunning
	scan.StartedAt = &now
	return true, nil
}

func (s *stubRepo) Finalize(ctx context.Context, orgID, scanID uuid.UUID, status enums.ScanStatus, matchCount int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if scan, ok := s.scans[scanID]; ok {
		scan.Status = status
		scan.MatchCount = matchCount
		scan.CompletedAt = &now
	}
	s.finalized = append(s.finalized, finalizeCall{scanID: scanID, status: status, matchCount: matchCount})
	return nil
}

func (s *stubRepo) ResetPending(ctx context.Context, orgID, scanID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if scan, ok := s.scans[scanID]; ok {
		scan.Status = enums.ScanStatusPending
		scan.MatchCount = 0
		scan.StartedAt = nil
		scan.CompletedAt = nil
	}
	return nil
}

func (s *stubRepo) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.Scan, error) {
	return nil, nil
}

func (s *stubRepo) CreateMatch(ctx context.Context, match *models.ScanMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.matchErrURLs[match.SourceURL]; ok {
		return err
	}
	match.ID = uuid.New()
	s.matches = append(s.matches, match)
	return nil
}

func (s *stubRepo) DeleteMatchesByScan(ctx context.Context, orgID, scanID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletedScanIDs = append(s.deletedScanIDs, scanID)
	kept := s.matches[:0]
	for _, m := range s.matches {
		if m.ScanID != scanID {
			kept = append(kept, m)
		}
	}
	s.matches = kept
	return nil
}

func (s *stubRepo) ListMatchesByScan(ctx context.Context, orgID, scanID uuid.UUID) ([]models.ScanMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []models.ScanMatch
	for _, m := range s.matches {
		if m.ScanID == scanID {
			rows = append(rows, *m)
		}
	}
	return rows, nil
}

func (s *stubRepo) ListMatches(ctx context.Context, params listMatchesParams) ([]models.ScanMatch, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (s *stubRepo) GetMatch(ctx context.Context, orgID, matchID uuid.UUID) (*models.ScanMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.matchByID[matchID]
	if !ok || match.OrgID != orgID {
		return nil, nil
	}
	copied := *match
	if status, ok := s.statusUpdates[matchID]; ok {
		copied.Status = status
	}
	return &copied, nil
}

func (s *stubRepo) UpdateMatchStatus(ctx context.Context, orgID, matchID uuid.UUID, status enums.MatchStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.matchByID[matchID]
	if !ok || match.OrgID != orgID {
		return false, nil
	}
	s.statusUpdates[matchID] = status
	return true, nil
}

type stubAssets struct {
	assets map[uuid.UUID]*models.Asset
}

func (s *stubAssets) Get(ctx context.Context, orgID, assetID uuid.UUID) (*models.Asset, error) {
	asset, ok := s.assets[assetID]
	if !ok || asset.OrgID != orgID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "asset not found")
	}
	return asset, nil
}

type stubOrchestrator struct {
	mu        sync.Mutex
	result    *search.ScanResult
	err       error
	panicMsg  string
	platforms [][]enums.Platform
}

func (s *stubOrchestrator) ExecuteFullScan(ctx context.Context, assetImageURL string, platforms []enums.Platform, progress search.ProgressFunc) (*search.ScanResult, error) {
	s.mu.Lock()
	s.platforms = append(s.platforms, platforms)
	s.mu.Unlock()
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.result == nil {
		return &search.ScanResult{PlatformCounts: map[string]int{}}, nil
	}
	return s.result, nil
}

type stubPublisher struct {
	mu     sync.Mutex
	events []pubsub.ScanEvent
	err    error
}

func (s *stubPublisher) PublishScanEvent(ctx context.Context, event pubsub.ScanEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

type stubEvents struct {
	mu      sync.Mutex
	entries []string
}

func (s *stubEvents) Log(ctx context.Context, orgID *uuid.UUID, level enums.LogLevel, source, message string, metadata map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, source+": "+message)
}

func (s *stubEvents) Info(ctx context.Context, orgID uuid.UUID, source, message string, metadata map[string]any) {
	s.Log(ctx, &orgID, enums.LogLevelInfo, source, message, metadata)
}

func (s *stubEvents) Warn(ctx context.Context, orgID uuid.UUID, source, message string, metadata map[string]any) {
	s.Log(ctx, &orgID, enums.LogLevelWarn, source, message, metadata)
}

func (s *stubEvents) Error(ctx context.Context, orgID uuid.UUID, source, message string, metadata map[string]any) {
	s.Log(ctx, &orgID, enums.LogLevelError, source, message, metadata)
}

type fixture struct {
	repo         *stubRepo
	assets       *stubAssets
	orchestrator *stubOrchestrator
	executor     *Executor
	publisher    *stubPublisher
	events       *stubEvents
	svc          Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:         newStubRepo(),
		assets:       &stubAssets{assets: map[uuid.UUID]*models.Asset{}},
		orchestrator: &stubOrchestrator{},
		publisher:    &stubPublisher{},
		events:       &stubEvents{},
	}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	f.executor = NewExecutor(5*time.Second, logg)

	svc, err := NewService(f.repo, f.assets, f.orchestrator, f.executor, f.publisher, nil, f.events, logg,
		config.ScanConfig{SimilarityThreshold: 50})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	f.svc = svc
	return f
}

func (f *fixture) addAsset(orgID uuid.UUID) *models.Asset {
	asset := &models.Asset{
		ID:      uuid.New(),
		OrgID:   orgID,
		Name:    "original",
		FileURL: "https://storage.googleapis.com/assets-test/original.png",
	}
	f.assets.assets[asset.ID] = asset
	return asset
}

func (f *fixture) addPendingScan(orgID, assetID uuid.UUID, platforms ...string) *models.Scan {
	scan := &models.Scan{
		OrgID:     orgID,
		AssetID:   assetID,
		Status:    enums.ScanStatusPending,
		Platforms: pq.StringArray(platforms),
	}
	_ = f.repo.Create(context.Background(), scan)
	return scan
}

func TestCreateDefaultsToAllPlatforms(t *testing.T) {
	f := newFixture(t)
	orgID := uuid.New()
	asset := f.addAsset(orgID)

	scan, err := f.svc.Create(context.Background(), orgID, asset.ID, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.executor.Wait()

	if len(scan.Platforms) != 4 {
		t.Fatalf("expected all 4 platforms, got %v", scan.Platforms)
	}
	if scan.Platforms[0] != "shopee" {
		t.Fatalf("expected stable platform order starting with shopee, got %v", scan.Platforms)
	}
}

func TestCreateRejectsUnknownPlatform(t *testing.T) {
	f := newFixture(t)
	orgID := uuid.New()
	asset := f.addAsset(orgID)

	_, err := f.svc.Create(context.Background(), orgID, asset.ID, []string{"amazon"})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateRequiresAssetFileURL(t *testing.T) {
	f := newFixture(t)
	orgID := uuid.New()
	asset := f.addAsset(orgID)
	asset.FileURL = ""

	_, err := f.svc.Create(context.Background(), orgID, asset.ID, []string{"shopee"})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRunPersistsMatchesAndCompletes(t *testing.T) {
	f := newFixture(t)
	orgID := uuid.New()
	asset := f.addAsset(orgID)
	scan := f.addPendingScan(orgID, asset.ID, "shopee", "ruten")

	f.orchestrator.result = &search.ScanResult{
		Matches: []search.Match{
			{Platform: enums.PlatformShopee, SourceURL: "https://shopee.tw/product/1/1", SimilarityScore: 92, DetectedAt: time.Now()},
			{Platform: enums.PlatformRuten, SourceURL: "https://www.ruten.com.tw/item/show?1", SimilarityScore: 61, DetectedAt: time.Now()},
		},
		TotalMatches:   2,
		PlatformCounts: map[string]int{"shopee": 1, "ruten": 1},
	}

	if err := f.svc.Run(context.Background(), orgID, scan.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	stored, _ := f.repo.Get(context.Background(), orgID, scan.ID)
	if stored.Status != enums.ScanStatusCompleted || stored.MatchCount != 2 {
		t.Fatalf("unexpected finalized scan: %+v", stored)
	}
	if stored.CompletedAt == nil || stored.StartedAt == nil {
		t.Fatal("expected started_at and completed_at to be set")
	}
	if len(f.repo.matches) != 2 {
		t.Fatalf("expected 2 persisted matches, got %d", len(f.repo.matches))
	}
	if got := f.orchestrator.platforms[0]; len(got) != 2 {
		t.Fatalf("expected scan platforms forwarded to the orchestrator, got %v", got)
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].Type != pubsub.EventScanCompleted {
		t.Fatalf("expected scan.completed event, got %+v", f.publisher.events)
	}
	if f.publisher.events[0].MatchCount != 2 {
		t.Fatalf("unexpected event match count: %+v", f.publisher.events[0])
	}
}

func TestRunDropsScoresBelowThreshold(t *testing.T) {
	f := newFixture(t)
	orgID := uuid.New()
	asset := f.addAsset(orgID)
	scan := f.addPendingScan(orgID, asset.ID, "shopee")

	f.orchestrator.result = &search.ScanResult{
		Matches: []search.Match{
			{Platform: enums.PlatformShopee, SourceURL: "https://shopee.tw/product/1/1", SimilarityScore: 92, DetectedAt: time.Now()},
			{Platform: enums.PlatformShopee, SourceURL: "https://shopee.tw/product/1/2", SimilarityScore: 50, DetectedAt: time.Now()},
			{Platform: enums.PlatformShopee, SourceURL: "https://shopee.tw/product/1/3", SimilarityScore: 45, ScoreDegraded: true, DetectedAt: time.Now()},
			{Platform: enums.PlatformShopee, SourceURL: "https://shopee.tw/product/1/4", SimilarityScore: 30, DetectedAt: time.Now()},
		},
	}

	if err := f.svc.Run(context.Background(), orgID, scan.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(f.repo.matches) != 2 {
		t.Fatalf("expected only the 92 and 50 scores persisted, got %d", len(f.repo.matches))
	}
	for _, m := range f.repo.matches {
		if m.SimilarityScore < 50 {
			t.Fatalf("persisted match below threshold: %+v", m)
		}
		if m.ScoreDegraded {
			t.Fatalf("degraded score below threshold must not be persisted: %+v", m)
		}
	}
	stored, _ := f.repo.Get(context.Background(), orgID, scan.ID)
	if stored.MatchCount != 2 {
		t.Fatalf("match count must reflect persisted matches only, got %d", stored.MatchCount)
	}
}

func TestRunPersistsDegradedScoresAtThreshold(t *testing.T) {
	f := newFixture(t)
	orgID := uuid.New()
	asset := f.addAsset(orgID)
	scan := f.addPendingScan(orgID, asset.ID, "shopee")

	f.orchestrator.result = &search.ScanResult{
		Matches: []search.Match{
			{Platform: enums.PlatformShopee, SourceURL: "https://shopee.tw/product/1/1", SimilarityScore: 55, ScoreDegraded: true, DetectedAt: time.Now()},
		},
	}

	if err := f.svc.Run(context.Background(), orgID, scan.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(f.repo.matches) != 1 || !f.repo.matches[0].ScoreDegraded {
		t.Fatalf("degraded score meeting the threshold must persist with the flag, got %+v", f.repo.matches)
	}
}

func TestRunSkipsFailedMatchInserts(t *testing.T) {
	f := newFixture(t)
	orgID := uuid.New()
	asset := f.addAsset(orgID)
	scan := f.addPendingScan(orgID, asset.ID, "shopee")

	f.repo.matchErrURLs["https://shopee.tw/product/1/2"] = errors.New("constraint violation")
	f.orchestrator.result = &search.ScanResult{
		Matches: []search.Match{
			{Platform: enums.PlatformShopee, SourceURL: "https://shopee.tw/product/1/1", SimilarityScore: 90, DetectedAt: time.Now()},
			{Platform: enums.PlatformShopee, SourceURL: "https://shopee.tw/product/1/2", SimilarityScore: 85, DetectedAt: time.Now()},
		},
	}

	if err := f.svc.Run(context.Background(), orgID, scan.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	stored, _ := f.repo.Get(context.Background(), orgID, scan.ID)
	if stored.Status != enums.ScanStatusCompleted || stored.MatchCount != 1 {
		t.Fatalf("expected completion with 1 surviving match, got %+v", stored)
	}
}

func TestRunRefusesNonRunnableScan(t *testing.T) {
	f := newFixture(t)
	orgID := uuid.New()
	asset := f.addAsset(orgID)
	scan := f.addPendingScan(orgID, asset.ID, "shopee")
	f.repo.scans[scan.ID].Status = enums.ScanStatusRunning

	err := f.svc.Run(context.Background(), orgID, scan.ID)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestDispatchFinalizesFailureOnPanic(t *testing.T) {
	f := newFixture(t)
	orgID := uuid.New()
	asset := f.addAsset(orgID)
	scan := f.addPendingScan(orgID, asset.ID, "shopee")
	f.orchestrator.panicMsg = "adapter blew up"

	f.svc.Dispatch(orgID, scan.ID)
	f.executor.Wait()

	stored, _ := f.repo.Get(context.Background(), orgID, scan.ID)
	if stored.Status != enums.ScanStatusFailed {
		t.Fatalf("panicked scan must finalize to failed, got %s", stored.Status)
	}
	if stored.CompletedAt == nil {
		t.Fatal("failed scan must carry completed_at")
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].Type != pubsub.EventScanFailed {
		t.Fatalf("expected scan.failed event, got %+v", f.publisher.events)
	}
}

func TestDispatchOrchestratorErrorFinalizesFailure(t *testing.T) {
	f := newFixture(t)
	orgID := uuid.New()
	asset := f.addAsset(orgID)
	scan := f.addPendingScan(orgID, asset.ID, "shopee")
	f.orchestrator.err = errors.New("network partition")

	f.svc.Dispatch(orgID, scan.ID)
	f.executor.Wait()

	stored, _ := f.repo.Get(context.Background(), orgID, scan.ID)
	if stored.Status != enums.ScanStatusFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}
}

func TestRescanResetsAndRedispatches(t *testing.T) {
	f := newFixture(t)
	orgID := uuid.New()
	asset := f.addAsset(orgID)
	scan := f.addPendingScan(orgID, asset.ID, "shopee")
	f.orchestrator.result = &search.ScanResult{
		Matches: []search.Match{
			{Platform: enums.PlatformShopee, SourceURL: "https://shopee.tw/product/1/1", SimilarityScore: 90, DetectedAt: time.Now()},
		},
	}

	if err := f.svc.Run(context.Background(), orgID, scan.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rescanned, err := f.svc.Rescan(context.Background(), orgID, scan.ID)
	if err != nil {
		t.Fatalf("Rescan: %v", err)
	}
	f.executor.Wait()

	if rescanned.Status != enums.ScanStatusPending && rescanned.Status != enums.ScanStatusCompleted {
		// The redispatched run may already have completed; the returned
		// snapshot is pending.
		t.Fatalf("unexpected rescan status %s", rescanned.Status)
	}
	if len(f.repo.deletedScanIDs) != 1 || f.repo.deletedScanIDs[0] != scan.ID {
		t.Fatalf("expected old matches deleted, got %v", f.repo.deletedScanIDs)
	}
}

func TestRescanUnknownScan(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Rescan(context.Background(), uuid.New(), uuid.New())
	if pkgerrors.CodeOf(err) != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateMatchStatusOverwrites(t *testing.T) {
	f := newFixture(t)
	orgID := uuid.New()
	matchID := uuid.New()
	f.repo.matchByID[matchID] = &models.ScanMatch{
		ID: matchID, OrgID: orgID, Status: enums.MatchStatusDetected,
	}

	match, err := f.svc.UpdateMatchStatus(context.Background(), orgID, matchID, "ignored")
	if err != nil {
		t.Fatalf("UpdateMatchStatus: %v", err)
	}
	if match.Status != enums.MatchStatusIgnored {
		t.Fatalf("expected ignored, got %s", match.Status)
	}
}

func TestUpdateMatchStatusValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateMatchStatus(context.Background(), uuid.New(), uuid.New(), "archived")
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = f.svc.UpdateMatchStatus(context.Background(), uuid.New(), uuid.New(), "resolved")
	if pkgerrors.CodeOf(err) != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
