// Package infringements drives the case lifecycle: creation from a match or
// by hand, evidence capture, AI assessment, notice generation, and the
// reporting trail through to disposition.
package infringements

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/imageguard-labs/imageguard-backend/internal/syslog"
	"github.com/imageguard-labs/imageguard-backend/pkg/config"
	"github.com/imageguard-labs/imageguard-backend/pkg/db/models"
	dbtypes "github.com/imageguard-labs/imageguard-backend/pkg/db/types"
	"github.com/imageguard-labs/imageguard-backend/pkg/enums"
	pkgerrors "github.com/imageguard-labs/imageguard-backend/pkg/errors"
	"github.com/imageguard-labs/imageguard-backend/pkg/logger"
	"github.com/imageguard-labs/imageguard-backend/pkg/pagination"
	"github.com/imageguard-labs/imageguard-backend/pkg/report"
	"github.com/imageguard-labs/imageguard-backend/pkg/screenshot"
	"github.com/imageguard-labs/imageguard-backend/pkg/storage/gcs"
	"github.com/imageguard-labs/imageguard-backend/pkg/vision"
)

// AssetSource resolves the protected asset a case refers to.
type AssetSource interface {
	Get(ctx context.Context, orgID, assetID uuid.UUID) (*models.Asset, error)
}

// MatchSource reads and flags scan matches when cases are built from them.
type MatchSource interface {
	GetMatch(ctx context.Context, orgID, matchID uuid.UUID) (*models.ScanMatch, error)
	UpdateMatchStatus(ctx context.Context, orgID, matchID uuid.UUID, status enums.MatchStatus) (bool, error)
}

// Capturer takes page screenshots for evidence.
type Capturer interface {
	CaptureURL(ctx context.Context, pageURL string) (*screenshot.Capture, error)
}

// BlobStore is the slice of the evidence bucket API this service uses.
type BlobStore interface {
	Upload(ctx context.Context, objectName, contentType string, data []byte) (*gcs.ObjectInfo, error)
	Delete(ctx context.Context, objectName string) error
}

// Assessor produces the structured infringement assessment.
type Assessor interface {
	Assess(ctx context.Context, originalURL, infringingURL string) (*vision.AssessmentResult, error)
}

// Service defines case lifecycle operations.
type Service interface {
	CreateFromMatch(ctx context.Context, orgID, matchID uuid.UUID) (*models.Infringement, error)
	Create(ctx context.Context, orgID uuid.UUID, input CreateInput) (*models.Infringement, error)
	Get(ctx context.Context, orgID, caseID uuid.UUID) (*models.Infringement, error)
	List(ctx context.Context, orgID uuid.UUID, params ListParams) (*ListResult, error)
	CaptureEvidence(ctx context.Context, orgID, caseID uuid.UUID) (*models.Infringement, error)
	Assess(ctx context.Context, orgID, caseID uuid.UUID) (*models.Infringement, error)
	GenerateReport(ctx context.Context, orgID, caseID uuid.UUID) (*models.Infringement, error)
	MarkReported(ctx context.Context, orgID, caseID uuid.UUID, method string, reference *string) (*models.Infringement, error)
	UpdateStatus(ctx context.Context, orgID, caseID uuid.UUID, status string) (*models.Infringement, error)
	Delete(ctx context.Context, orgID, caseID uuid.UUID) error
	Stats(ctx context.Context, orgID uuid.UUID) (*StatsResult, error)
}

// CreateInput carries a manually created case.
type CreateInput struct {
	AssetID  uuid.UUID
	URL      string
	Platform string
	Seller   *string
	Title    *string
	Priority *string
}

// ListParams filters and paginates the case list.
type ListParams struct {
	Status   string
	Priority string
	Platform string
	Limit    int
	Cursor   string
}

// ListResult wraps returned cases and the cursor for the next page.
type ListResult struct {
	Items  []models.Infringement `json:"items"`
	Cursor string                `json:"cursor"`
}

// StatsResult is the per-status case count summary.
type StatsResult struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"by_status"`
}

type service struct {
	repo     Repository
	assets   AssetSource
	matches  MatchSource
	capturer Capturer
	blobs    BlobStore
	assessor Assessor
	events   syslog.Service
	logg     *logger.Logger
	prefix   string
}

// NewService wires case lifecycle dependencies.
func NewService(repo Repository, assets AssetSource, matches MatchSource, capturer Capturer, blobs BlobStore, assessor Assessor, events syslog.Service, logg *logger.Logger, cfg config.ScanConfig) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "infringements repository required")
	}
	if assets == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "asset source required")
	}
	if matches == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "match source required")
	}
	if events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "system event logger required")
	}
	prefix := cfg.CaseNumberPrefix
	if prefix == "" {
		prefix = "IGP"
	}
	return &service{
		repo:     repo,
		assets:   assets,
		matches:  matches,
		capturer: capturer,
		blobs:    blobs,
		assessor: assessor,
		events:   events,
		logg:     logg,
		prefix:   prefix,
	}, nil
}

func (s *service) CreateFromMatch(ctx context.Context, orgID, matchID uuid.UUID) (*models.Infringement, error) {
	if orgID == uuid.Nil || matchID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "org id and match id required")
	}

	match, err := s.matches.GetMatch(ctx, orgID, matchID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "get match")
	}
	if match == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "match not found")
	}

	caseNumber, err := s.nextCaseNumber(ctx)
	if err != nil {
		return nil, err
	}

	score := match.SimilarityScore
	infringement := &models.Infringement{
		OrgID:              orgID,
		AssetID:            match.AssetID,
		MatchID:            &match.ID,
		CaseNumber:         caseNumber,
		Status:             enums.InfringementStatusPending,
		Priority:           enums.PriorityForScore(score),
		InfringingURL:      match.SourceURL,
		InfringingPlatform: match.SourcePlatform,
		InfringingTitle:    match.Title,
		AISimilarityScore:  &score,
	}
	if err := s.repo.Create(ctx, infringement); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create case")
	}

	// Best-effort duplicate guard; a failed flag does not undo the case.
	if _, err := s.matches.UpdateMatchStatus(ctx, orgID, matchID, enums.MatchStatusReported); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "match_id", matchID.String()), "marking match reported failed: "+err.Error())
	}

	s.events.Info(ctx, orgID, "case_lifecycle", "case created from match", map[string]any{
		"case_number": caseNumber,
		"match_id":    matchID.String(),
	})
	return infringement, nil
}

func (s *service) Create(ctx context.Context, orgID uuid.UUID, input CreateInput) (*models.Infringement, error) {
	if orgID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "org id required")
	}
	if input.AssetID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "asset id required")
	}
	if strings.TrimSpace(input.URL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "infringing url required")
	}
	platform, err := enums.ParsePlatform(input.Platform)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid platform")
	}

	priority := enums.PriorityLow
	if input.Priority != nil {
		priority, err = enums.ParsePriority(*input.Priority)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid priority")
		}
	}

	if _, err := s.assets.Get(ctx, orgID, input.AssetID); err != nil {
		return nil, err
	}

	caseNumber, err := s.nextCaseNumber(ctx)
	if err != nil {
		return nil, err
	}

	infringement := &models.Infringement{
		OrgID:              orgID,
		AssetID:            input.AssetID,
		CaseNumber:         caseNumber,
		Status:             enums.InfringementStatusPending,
		Priority:           priority,
		InfringingURL:      strings.TrimSpace(input.URL),
		InfringingPlatform: platform,
		InfringingSeller:   input.Seller,
		InfringingTitle:    input.Title,
	}
	if err := s.repo.Create(ctx, infringement); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create case")
	}
	return infringement, nil
}

func (s *service) Get(ctx context.Context, orgID, caseID uuid.UUID) (*models.Infringement, error) {
	if orgID == uuid.Nil || caseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "org id and case id required")
	}

	infringement, err := s.repo.Get(ctx, orgID, caseID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "get case")
	}
	if infringement == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "case not found")
	}
	return infringement, nil
}

func (s *service) List(ctx context.Context, orgID uuid.UUID, params ListParams) (*ListResult, error) {
	if orgID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "org id required")
	}

	query := listCasesParams{OrgID: orgID, Limit: params.Limit}
	if params.Status != "" {
		status, err := enums.ParseInfringementStatus(params.Status)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		query.Status = &status
	}
	if params.Priority != "" {
		priority, err := enums.ParsePriority(params.Priority)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid priority filter")
		}
		query.Priority = &priority
	}
	if params.Platform != "" {
		platform, err := enums.ParsePlatform(params.Platform)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid platform filter")
		}
		query.Platform = &platform
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cases")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

// CaptureEvidence screenshots the infringing page and stores it in the
// evidence bucket. Repeat captures overwrite the previous screenshot fields.
func (s *service) CaptureEvidence(ctx context.Context, orgID, caseID uuid.UUID) (*models.Infringement, error) {
	if s.capturer == nil || s.blobs == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "evidence capture is not configured")
	}

	infringement, err := s.Get(ctx, orgID, caseID)
	if err != nil {
		return nil, err
	}

	capture, err := s.capturer.CaptureURL(ctx, infringement.InfringingURL)
	if err != nil {
		s.events.Error(ctx, orgID, "screenshot_capture", "evidence capture failed", map[string]any{
			"case_number": infringement.CaseNumber,
			"url":         infringement.InfringingURL,
		})
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "capture screenshot")
	}

	objectName := fmt.Sprintf("evidence/%s/%s.%s", orgID, caseID, capture.Format)
	info, err := s.blobs.Upload(ctx, objectName, "image/"+capture.Format, capture.Bytes)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload screenshot")
	}

	takenAt := capture.CapturedAt
	infringement.ScreenshotURL = &info.PublicURL
	infringement.ScreenshotPath = &objectName
	infringement.ScreenshotHash = &capture.Hash
	infringement.ScreenshotTakenAt = &takenAt
	// Recaptures on later statuses keep the lifecycle position.
	if infringement.Status == enums.InfringementStatusPending {
		infringement.Status = enums.InfringementStatusEvidenced
	}

	if err := s.repo.Update(ctx, infringement); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update case")
	}
	return infringement, nil
}

// Assess runs the vision assessment against the stored screenshot when one
// exists, otherwise against the live infringing URL.
func (s *service) Assess(ctx context.Context, orgID, caseID uuid.UUID) (*models.Infringement, error) {
	if s.assessor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "assessment is not configured")
	}

	infringement, err := s.Get(ctx, orgID, caseID)
	if err != nil {
		return nil, err
	}

	asset, err := s.assets.Get(ctx, orgID, infringement.AssetID)
	if err != nil {
		return nil, err
	}
	if asset.FileURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "asset has no resolvable file URL")
	}

	target := infringement.InfringingURL
	if infringement.ScreenshotURL != nil && *infringement.ScreenshotURL != "" {
		target = *infringement.ScreenshotURL
	}

	result, err := s.assessor.Assess(ctx, asset.FileURL, target)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "run assessment")
	}

	now := time.Now().UTC()
	similarity := result.SimilarityScore
	confidence := result.ConfidenceScore()
	conclusion := result.Conclusion()
	infringement.AISimilarityScore = &similarity
	infringement.AIConfidenceScore = &confidence
	infringement.AIConclusion = &conclusion
	infringement.AIAssessedAt = &now
	infringement.AIAssessmentReport = reportToMap(result.Report)

	if priority, perr := enums.ParsePriority(result.Severity()); perr == nil {
		infringement.Priority = priority
	} else {
		infringement.Priority = enums.PriorityMedium
	}

	if err := s.repo.Update(ctx, infringement); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update case")
	}
	return infringement, nil
}

// GenerateReport renders the takedown notice. An assessment must exist
// first; without one the case is rejected and report_email_content stays
// unset.
func (s *service) GenerateReport(ctx context.Context, orgID, caseID uuid.UUID) (*models.Infringement, error) {
	infringement, err := s.Get(ctx, orgID, caseID)
	if err != nil {
		return nil, err
	}
	if infringement.AIAssessedAt == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "case has no assessment; run assess first")
	}

	asset, err := s.assets.Get(ctx, orgID, infringement.AssetID)
	if err != nil {
		return nil, err
	}

	input := report.Input{
		CaseNumber:    infringement.CaseNumber,
		AssetName:     asset.Name,
		AssetURL:      asset.FileURL,
		InfringingURL: infringement.InfringingURL,
		Platform:      infringement.InfringingPlatform.DisplayName(),
		AssessedAt:    *infringement.AIAssessedAt,
		GeneratedAt:   time.Now().UTC(),
	}
	if infringement.InfringingSeller != nil {
		input.Seller = *infringement.InfringingSeller
	}
	if infringement.AISimilarityScore != nil {
		input.SimilarityScore = *infringement.AISimilarityScore
	}
	if infringement.AIConfidenceScore != nil {
		input.ConfidenceScore = *infringement.AIConfidenceScore
	}
	if infringement.AIConclusion != nil {
		input.Conclusion = *infringement.AIConclusion
	}
	if infringement.ScreenshotURL != nil {
		input.ScreenshotURL = *infringement.ScreenshotURL
	}
	if infringement.ScreenshotHash != nil {
		input.ScreenshotHash = *infringement.ScreenshotHash
	}

	notice, err := report.Render(input)
	if err != nil {
		return nil, err
	}

	infringement.ReportEmailContent = &notice
	if err := s.repo.Update(ctx, infringement); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update case")
	}
	return infringement, nil
}

func (s *service) MarkReported(ctx context.Context, orgID, caseID uuid.UUID, method string, reference *string) (*models.Infringement, error) {
	if strings.TrimSpace(method) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reporting method required")
	}

	infringement, err := s.Get(ctx, orgID, caseID)
	if err != nil {
		return nil, err
	}
	if !infringement.Status.CanTransitionTo(enums.InfringementStatusReported) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot report a case in status %s", infringement.Status))
	}

	now := time.Now().UTC()
	infringement.Status = enums.InfringementStatusReported
	infringement.ReportedAt = &now
	infringement.ReportedMethod = &method
	infringement.ReportedReference = reference

	if err := s.repo.Update(ctx, infringement); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update case")
	}
	return infringement, nil
}

func (s *service) UpdateStatus(ctx context.Context, orgID, caseID uuid.UUID, status string) (*models.Infringement, error) {
	next, err := enums.ParseInfringementStatus(status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
	}

	infringement, err := s.Get(ctx, orgID, caseID)
	if err != nil {
		return nil, err
	}
	if !infringement.Status.CanTransitionTo(next) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot transition case from %s to %s", infringement.Status, next))
	}

	infringement.Status = next
	if err := s.repo.Update(ctx, infringement); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update case")
	}
	return infringement, nil
}

// Delete removes the screenshot blob first, then the row. A failed blob
// delete is logged and the row removal proceeds; deletion is irreversible.
func (s *service) Delete(ctx context.Context, orgID, caseID uuid.UUID) error {
	infringement, err := s.Get(ctx, orgID, caseID)
	if err != nil {
		return err
	}

	if infringement.ScreenshotPath != nil && *infringement.ScreenshotPath != "" && s.blobs != nil {
		if err := s.blobs.Delete(ctx, *infringement.ScreenshotPath); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "case_number", infringement.CaseNumber), "screenshot blob delete failed: "+err.Error())
			s.events.Warn(ctx, orgID, "case_lifecycle", "screenshot blob delete failed", map[string]any{
				"case_number": infringement.CaseNumber,
				"path":        *infringement.ScreenshotPath,
			})
		}
	}

	if err := s.repo.Delete(ctx, orgID, caseID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete case")
	}
	return nil
}

func (s *service) Stats(ctx context.Context, orgID uuid.UUID) (*StatsResult, error) {
	if orgID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "org id required")
	}

	counts, err := s.repo.CountByStatus(ctx, orgID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count cases")
	}

	stats := &StatsResult{ByStatus: make(map[string]int64, len(validStatusKeys))}
	for _, status := range validStatusKeys {
		stats.ByStatus[status] = counts[status]
		stats.Total += counts[status]
	}
	return stats, nil
}

var validStatusKeys = []string{
	enums.InfringementStatusPending.String(),
	enums.InfringementStatusEvidenced.String(),
	enums.InfringementStatusReported.String(),
	enums.InfringementStatusResolved.String(),
	enums.InfringementStatusDismissed.String(),
}

// nextCaseNumber draws a random 5-digit suffix. Collisions are unlikely at
// realistic case volumes; a handful of retries keeps them invisible.
func (s *service) nextCaseNumber(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		candidate := fmt.Sprintf("%s-%d-%05d", s.prefix, time.Now().UTC().Year(), rand.Intn(100000))
		exists, err := s.repo.CaseNumberExists(ctx, candidate)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check case number")
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique case number")
}

func reportToMap(assessment *vision.AssessmentReport) dbtypes.JSONMap {
	if assessment == nil {
		return nil
	}
	raw, err := json.Marshal(assessment)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return dbtypes.JSONMap(out)
}
