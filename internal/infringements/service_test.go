package infringements

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/imageguard-labs/imageguard-backend/pkg/config"
	"github.com/imageguard-labs/imageguard-backend/pkg/db/models"
	"github.com/imageguard-labs/imageguard-backend/pkg/enums"
	pkgerrors "github.com/imageguard-labs/imageguard-backend/pkg/errors"
	"github.com/imageguard-labs/imageguard-backend/pkg/logger"
	"github.com/imageguard-labs/imageguard-backend/pkg/pagination"
	"github.com/imageguard-labs/imageguard-backend/pkg/screenshot"
	"github.com/imageguard-labs/imageguard-backend/pkg/storage/gcs"
	"github.com/imageguard-labs/imageguard-backend/pkg/vision"
)

type stubRepo struct {
	byID        map[uuid.UUID]*models.Infringement
	caseNumbers map[string]bool
	deleted     []uuid.UUID
	counts      map[string]int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		byID:        map[uuid.UUID]*models.Infringement{},
		caseNumbers: map[string]bool{},
	}
}

func (s *stubRepo) Create(ctx context.Context, infringement *models.Infringement) error {
	infringement.ID = uuid.New()
	s.byID[infringement.ID] = infringement
	s.caseNumbers[infringement.CaseNumber] = true
	return nil
}

func (s *stubRepo) Get(ctx context.Context, orgID, caseID uuid.UUID) (*models.Infringement, error) {
	infringement, ok := s.byID[caseID]
	if !ok || infringement.OrgID != orgID {
		return nil, nil
	}
	copied := *infringement
	return &copied, nil
}

func (s *stubRepo) List(ctx context.Context, params listCasesParams) ([]models.Infringement, *pagination.Cursor, error) {
	var rows []models.Infringement
	for _, c := range s.byID {
		if c.OrgID != params.OrgID {
			continue
		}
		if params.Status != nil && c.Status != *params.Status {
			continue
		}
		if params.Priority != nil && c.Priority != *params.Priority {
			continue
		}
		rows = append(rows, *c)
	}
	return rows, nil, nil
}

func (s *stubRepo) Update(ctx context.Context, infringement *models.Infringement) error {
	s.byID[infringement.ID] = infringement
	return nil
}

func (s *stubRepo) Delete(ctx context.Context, orgID, caseID uuid.UUID) error {
	delete(s.byID, caseID)
	s.deleted = append(s.deleted, caseID)
	return nil
}

func (s *stubRepo) CountByStatus(ctx context.Context, orgID uuid.UUID) (map[string]int64, error) {
	return s.counts, nil
}

func (s *stubRepo) CaseNumberExists(ctx context.Context, caseNumber string) (bool, error) {
	return s.caseNumbers[caseNumber], nil
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

type stubMatches struct {
	byID     map[uuid.UUID]*models.ScanMatch
	statuses map[uuid.UUID]enums.MatchStatus
	flagErr  error
}

func (s *stubMatches) GetMatch(ctx context.Context, orgID, matchID uuid.UUID) (*models.ScanMatch, error) {
	match, ok := s.byID[matchID]
	if !ok || match.OrgID != orgID {
		return nil, nil
	}
	return match, nil
}

func (s *stubMatches) UpdateMatchStatus(ctx context.Context, orgID, matchID uuid.UUID, status enums.MatchStatus) (bool, error) {
	if s.flagErr != nil {
		return false, s.flagErr
	}
	if s.statuses == nil {
		s.statuses = map[uuid.UUID]enums.MatchStatus{}
	}
	s.statuses[matchID] = status
	return true, nil
}

type stubCapturer struct {
	capture *screenshot.Capture
	err     error
	calls   int
}

func (s *stubCapturer) CaptureURL(ctx context.Context, pageURL string) (*screenshot.Capture, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.capture, nil
}

type stubBlobs struct {
	uploads   []string
	deletes   []string
	deleteErr error
}

func (s *stubBlobs) Upload(ctx context.Context, objectName, contentType string, data []byte) (*gcs.ObjectInfo, error) {
	s.uploads = append(s.uploads, objectName)
	return &gcs.ObjectInfo{
		Bucket:    "evidence-test",
		Name:      objectName,
		PublicURL: "https://storage.googleapis.com/evidence-test/" + objectName,
	}, nil
}

func (s *stubBlobs) Delete(ctx context.Context, objectName string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deletes = append(s.deletes, objectName)
	return nil
}

type stubAssessor struct {
	result     *vision.AssessmentResult
	err        error
	targetURLs []string
}

func (s *stubAssessor) Assess(ctx context.Context, originalURL, infringingURL string) (*vision.AssessmentResult, error) {
	s.targetURLs = append(s.targetURLs, infringingURL)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubEvents struct {
	entries []string
}

func (s *stubEvents) Log(ctx context.Context, orgID *uuid.UUID, level enums.LogLevel, source, message string, metadata map[string]any) {
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
	repo     *stubRepo
	assets   *stubAssets
	matches  *stubMatches
	capturer *stubCapturer
	blobs    *stubBlobs
	assessor *stubAssessor
	events   *stubEvents
	svc      Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:    newStubRepo(),
		assets:  &stubAssets{assets: map[uuid.UUID]*models.Asset{}},
		matches: &stubMatches{byID: map[uuid.UUID]*models.ScanMatch{}},
		capturer: &stubCapturer{capture: &screenshot.Capture{
			Bytes:      []byte("png bytes"),
			Hash:       "abc123",
			Format:     "png",
			CapturedAt: time.Now().UTC(),
		}},
		blobs:    &stubBlobs{},
		assessor: &stubAssessor{},
		events:   &stubEvents{},
	}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(f.repo, f.assets, f.matches, f.capturer, f.blobs, f.assessor, f.events, logg,
		config.ScanConfig{CaseNumberPrefix: "IGP"})
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
		Name:    "original artwork",
		FileURL: "https://storage.googleapis.com/assets-test/original.png",
	}
	f.assets.assets[asset.ID] = asset
	return asset
}

func (f *fixture) addCase(orgID, assetID uuid.UUID) *models.Infringement {
	infringement := &models.Infringement{
		OrgID:              orgID,
		AssetID:            assetID,
		CaseNumber:         "IGP-2026-00001",
		Status:             enums.InfringementStatusPending,
		Priority:           enums.PriorityLow,
		InfringingURL:      "https://shopee.tw/product/1/1",
		InfringingPlatform: enums.PlatformShopee,
	}
	_ = f.repo.Create(context.Background(), infringement)
	return infringement
}

var caseNumberRe = regexp.MustCompile(`^IGP-\d{4}-\d{5}$`)

func TestCreateFromMatchCopiesFieldsAndFlagsMatch(t *testing.T) {
	f := newFixture(t)
	orgID := uuid.New()
	asset := f.addAsset(orgID)
	title := "stolen listing"
	matchID := uuid.New()
	f.matches.byID[matchID] = &models.ScanMatch{
		ID:              matchID,
		OrgID:           orgID,
		AssetID:         asset.ID,
		SourceURL:       "https://shopee.tw/product/9/9",
		SourcePlatform:  enums.PlatformShopee,
		Title:           &title,
		SimilarityScore: 93,
	}

	infringement, err := f.svc.CreateFromMatch(context.Background(), orgID, matchID)
	if err != nil {
		t.Fatalf("CreateFromMatch: %v", err)
	}

	if !caseNumberRe.MatchString(infringement.CaseNumber) {
		t.Fatalf("unexpected case number format %q", infringement.CaseNumber)
	}
	if infringement.Priority != enums.PriorityHigh {
		t.Fatalf("score 93 should map to high priority, got %s", infringement.Priority)
	}
	if infringement.InfringingURL != "https://shopee.tw/product/9/9" || infringement.InfringingPlatform != enums.PlatformShopee {
		t.Fatalf("match fields not copied: %+v", infringement)
	}
	if infringement.AISimilarityScore == nil || *infringement.AISimilarityScore != 93 {
		t.Fatalf("expected copied similarity score, got %v", infringement.AISimilarityScore)
	}
	if f.matches.statuses[matchID] != enums.MatchStatusReported {
		t.Fatal("originating match should be flagged reported")
	}
}

func TestCreateFromMatchSurvivesFlagFailure(t *testing.T) {
	f := newFixture(t)
	orgID := uuid.New()
	asset := f.addAsset(orgID)
	matchID := uuid.New()
	f.matches.byID[matchID] = &models.ScanMatch{
		ID: matchID, OrgID: orgID, AssetID: asset.ID,
		SourceURL: "https://shopee.tw/product/9/9", SourcePlatform: enums.PlatformShopee,
		SimilarityScore: 50,
	}
	f.matches.flagErr = errors.New("db hiccup")

	infringement, err := f.svc.CreateFromMatch(context.Background(), orgID, matchID)
	if err != nil {
		t.Fatalf("CreateFromMatch should tolerate a failed match flag: %v", err)
	}
	if infringement.Priority != enums.PriorityLow {
		t.Fatalf("score 50 should map to low priority, got %s", infringement.Priority)
	}
}

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture(t)
	orgID := uuid.New()
	asset := f.addAsset(orgID)

	cases := []struct {
		name  string
		input CreateInput
	}{
		{"missing url", CreateInput{AssetID: asset.ID, Platform: "shopee"}},
		{"missing asset", CreateInput{URL: "https://x", Platform: "shopee"}},
		{"bad platform", CreateInput{AssetID: asset.ID, URL: "https://x", Platform: "etsy"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), orgID, tc.input)
			if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCaptureEvidenceStoresScreenshotAndAdvances(t *testing.T) {
	f := newFixture(t)
	orgID := uuid.New()
	asset := f.addAsset(orgID)
	infringement := f.addCase(orgID, asset.ID)

	updated, err := f.svc.CaptureEvidence(context.Background(), orgID, infringement.ID)
	if err != nil {
		t.Fatalf("CaptureEvidence: %v", err)
	}

	if updated.Status != enums.InfringementStatusEvidenced {
		t.Fatalf("expected evidenced, got %s", updated.Status)
	}
	if updated.ScreenshotHash == nil || *updated.ScreenshotHash != "abc123" {
		t.Fatalf("unexpected screenshot hash: %v", updated.ScreenshotHash)
	}
	if len(f.blobs.uploads) != 1 || !strings.HasPrefix(f.blobs.uploads[0], "evidence/"+orgID.String()+"/") {
		t.Fatalf("unexpected uploads: %v", f.blobs.uploads)
	}
}

func TestCaptureEvidenceOverwriteKeepsStatus(t *testing.T) {
	f := newFixture(t)
	orgID := uuid.New()
	asset := f.addAsset(orgID)
	infringement := f.addCase(orgID, asset.ID)
	f.repo.byID[infringement.ID].Status = enums.InfringementStatusReported

	updated, err := f.svc.CaptureEvidence(context.Background(), orgID, infringement.ID)
	if err != nil {
		t.Fatalf("CaptureEvidence: %v", err)
	}
	if updated.Status != enums.InfringementStatusReported {
		t.Fatalf("recapture must not regress status, got %s", updated.Status)
	}
}

func TestCaptureEvidenceFailureLeavesCaseUntouched(t *testing.T) {
	f := newFixture(t)
	orgID := uuid.New()
	asset := f.addAsset(orgID)
	infringement := f.addCase(orgID, asset.ID)
	f.capturer.err = errors.New("both providers down")

	_, err := f.svc.CaptureEvidence(context.Background(), orgID, infringement.ID)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}

	stored, _ := f.repo.Get(context.Background(), orgID, infringement.ID)
	if stored.Status != enums.InfringementStatusPending || stored.ScreenshotURL != nil {
		t.Fatalf("failed capture must leave the case untouched: %+v", stored)
	}
}

func assessmentResult(score, confidence int, severity, recommendation string) *vision.AssessmentResult {
	result := &vision.AssessmentResult{
		SimilarityScore: score,
		Report:          &vision.AssessmentReport{},
	}
	result.Report.Conclusion.IsInfringement = true
	result.Report.Conclusion.ConfidenceScore = confidence
	result.Report.Conclusion.Severity = severity
	result.Report.Conclusion.LegalRecommendation = recommendation
	return result
}

func TestAssessPrefersScreenshot(t *testing.T) {
	f := newFixture(t)
	orgID := uuid.New()
	asset := f.addAsset(orgID)
	infringement := f.addCase(orgID, asset.ID)
	shot := "https://storage.googleapis.com/evidence-test/evidence/x.png"
	f.repo.byID[infringement.ID].ScreenshotURL = &shot
	f.assessor.result = assessmentResult(91, 88, "high", "issue takedown notice")

	updated, err := f.svc.Assess(context.Background(), orgID, infringement.ID)
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}

	if len(f.assessor.targetURLs) != 1 || f.assessor.targetURLs[0] != shot {
		t.Fatalf("assessment should target the screenshot, got %v", f.assessor.targetURLs)
	}
	if updated.AISimilarityScore == nil || *updated.AISimilarityScore != 91 {
		t.Fatalf("unexpected similarity: %v", updated.AISimilarityScore)
	}
	if updated.Priority != enums.PriorityHigh {
		t.Fatalf("severity high should set priority high, got %s", updated.Priority)
	}
	if updated.AIAssessedAt == nil || updated.AIAssessmentReport == nil {
		t.Fatalf("assessment fields missing: %+v", updated)
	}
}

func TestAssessFallsBackToInfringingURL(t *testing.T) {
	f := newFixture(t)
	orgID := uuid.New()
	asset := f.addAsset(orgID)
	infringement := f.addCase(orgID, asset.ID)
	f.assessor.result = assessmentResult(70, 60, "", "monitor")

	updated, err := f.svc.Assess(context.Background(), orgID, infringement.ID)
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if f.assessor.targetURLs[0] != infringement.InfringingURL {
		t.Fatalf("expected infringing URL target, got %v", f.assessor.targetURLs)
	}
	if updated.Priority != enums.PriorityMedium {
		t.Fatalf("missing severity should default priority to medium, got %s", updated.Priority)
	}
}

func TestGenerateReportRequiresAssessment(t *testing.T) {
	f := newFixture(t)
	orgID := uuid.New()
	asset := f.addAsset(orgID)
	infringement := f.addCase(orgID, asset.ID)

	_, err := f.svc.GenerateReport(context.Background(), orgID, infringement.ID)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error without assessment, got %v", err)
	}

	stored, _ := f.repo.Get(context.Background(), orgID, infringement.ID)
	if stored.ReportEmailContent != nil {
		t.Fatal("report content must stay unset when the precondition fails")
	}
}

func TestGenerateReportRendersNotice(t *testing.T) {
	f := newFixture(t)
	orgID := uuid.New()
	asset := f.addAsset(orgID)
	infringement := f.addCase(orgID, asset.ID)
	now := time.Now().UTC()
	score := 91
	conclusion := "issue takedown notice"
	stored := f.repo.byID[infringement.ID]
	stored.AIAssessedAt = &now
	stored.AISimilarityScore = &score
	stored.AIConclusion = &conclusion

	updated, err := f.svc.GenerateReport(context.Background(), orgID, infringement.ID)
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	if updated.ReportEmailContent == nil {
		t.Fatal("expected rendered notice")
	}
	notice := *updated.ReportEmailContent
	if !strings.Contains(notice, infringement.CaseNumber) || !strings.Contains(notice, infringement.InfringingURL) {
		t.Fatalf("notice missing core fields:\n%s", notice)
	}
}

func TestMarkReportedSetsTrail(t *testing.T) {
	f := newFixture(t)
	orgID := uuid.New()
	asset := f.addAsset(orgID)
	infringement := f.addCase(orgID, asset.ID)
	reference := "ticket-42"

	updated, err := f.svc.MarkReported(context.Background(), orgID, infringement.ID, "platform_form", &reference)
	if err != nil {
		t.Fatalf("MarkReported: %v", err)
	}
	if updated.Status != enums.InfringementStatusReported || updated.ReportedAt == nil {
		t.Fatalf("unexpected reported state: %+v", updated)
	}
	if updated.ReportedMethod == nil || *updated.ReportedMethod != "platform_form" {
		t.Fatalf("unexpected method: %v", updated.ReportedMethod)
	}
}

func TestUpdateStatusGuards(t *testing.T) {
	f := newFixture(t)
	orgID := uuid.New()
	asset := f.addAsset(orgID)

	dismissTarget := f.addCase(orgID, asset.ID)
	if _, err := f.svc.UpdateStatus(context.Background(), orgID, dismissTarget.ID, "dismissed"); err != nil {
		t.Fatalf("dismiss from pending should succeed: %v", err)
	}

	resolveTarget := f.addCase(orgID, asset.ID)
	f.repo.byID[resolveTarget.ID].Status = enums.InfringementStatusEvidenced
	_, err := f.svc.UpdateStatus(context.Background(), orgID, resolveTarget.ID, "resolved")
	if pkgerrors.CodeOf(err) != pkgerrors.CodeStateConflict {
		t.Fatalf("resolve is only legal from reported, got %v", err)
	}

	f.repo.byID[resolveTarget.ID].Status = enums.InfringementStatusReported
	if _, err := f.svc.UpdateStatus(context.Background(), orgID, resolveTarget.ID, "resolved"); err != nil {
		t.Fatalf("resolve from reported should succeed: %v", err)
	}

	_, err = f.svc.UpdateStatus(context.Background(), orgID, resolveTarget.ID, "pending")
	if pkgerrors.CodeOf(err) != pkgerrors.CodeStateConflict {
		t.Fatalf("terminal cases accept no transitions, got %v", err)
	}
}

func TestDeleteRemovesBlobFirstAndToleratesBlobFailure(t *testing.T) {
	f := newFixture(t)
	orgID := uuid.New()
	asset := f.addAsset(orgID)
	infringement := f.addCase(orgID, asset.ID)
	path := "evidence/org/case.png"
	f.repo.byID[infringement.ID].ScreenshotPath = &path

	if err := f.svc.Delete(context.Background(), orgID, infringement.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(f.blobs.deletes) != 1 || f.blobs.deletes[0] != path {
		t.Fatalf("expected blob delete, got %v", f.blobs.deletes)
	}

	second := f.addCase(orgID, asset.ID)
	f.repo.byID[second.ID].ScreenshotPath = &path
	f.blobs.deleteErr = errors.New("storage down")
	if err := f.svc.Delete(context.Background(), orgID, second.ID); err != nil {
		t.Fatalf("row deletion must proceed past a blob failure: %v", err)
	}
}

func TestStatsSumCounts(t *testing.T) {
	f := newFixture(t)
	f.repo.counts = map[string]int64{"pending": 3, "reported": 2, "resolved": 1}

	stats, err := f.svc.Stats(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 6 {
		t.Fatalf("expected total 6, got %d", stats.Total)
	}
	if stats.ByStatus["evidenced"] != 0 || stats.ByStatus["pending"] != 3 {
		t.Fatalf("unexpected by-status counts: %v", stats.ByStatus)
	}
}
