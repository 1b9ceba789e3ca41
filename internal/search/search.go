// Package search discovers listings that visually match a protected asset.
// Platform adapters return raw listings; the orchestrator scores and ranks
// them. Nothing in this package persists state.
package search

import (
	"context"
	"time"

	"github.com/imageguard-labs/imageguard-backend/pkg/enums"
)

// RawListing is a platform search hit before scoring. Fallback results may
// carry only a product URL and a name.
type RawListing struct {
	ExternalID   string
	Name         string
	Price        float64
	PriceDisplay string
	ImageURL     string
	ProductURL   string
	Seller       string
	Sold         int
	Rating       float64
}

// Adapter searches one platform by keywords.
type Adapter interface {
	Platform() enums.Platform
	Search(ctx context.Context, keywords []string) ([]RawListing, error)
}

// ReverseImageSearcher is implemented by adapters that can additionally
// search by the asset image itself.
type ReverseImageSearcher interface {
	ReverseSearch(ctx context.Context, imageURL string) ([]RawListing, error)
}

// Match is a scored candidate produced by the orchestrator.
type Match struct {
	ID              string
	Platform        enums.Platform
	SourceURL       string
	ThumbnailURL    string
	Title           string
	Price           string
	SimilarityScore int
	ScoreDegraded   bool
	DetectedAt      time.Time
}

// ScanResult is the ranked output of a full multi-platform scan.
type ScanResult struct {
	Matches        []Match
	TotalMatches   int
	PlatformCounts map[string]int
}

// ProgressStatus tracks a platform branch through the fan-out.
type ProgressStatus string

const (
	ProgressSearching ProgressStatus = "searching"
	ProgressCompleted ProgressStatus = "completed"
	ProgressError     ProgressStatus = "error"
)

// Progress is reported per platform as the scan advances.
type Progress struct {
	Platform   enums.Platform
	Status     ProgressStatus
	MatchCount int
	Message    string
}

// ProgressFunc receives progress callbacks. May be nil.
type ProgressFunc func(Progress)
