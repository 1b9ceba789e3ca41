package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/imageguard-labs/imageguard-backend/pkg/config"
	"github.com/imageguard-labs/imageguard-backend/pkg/enums"
	"github.com/imageguard-labs/imageguard-backend/pkg/logger"
	"github.com/imageguard-labs/imageguard-backend/pkg/metrics"
	"github.com/imageguard-labs/imageguard-backend/pkg/vision"
)

const keywordCacheTTL = 24 * time.Hour

// fallbackKeywords are used when keyword generation is unavailable. Generic
// marketplace terms still surface candidates for visual comparison.
var fallbackKeywords = []string{"圖片", "商品"}

// Scorer generates search keywords and compares candidate images against the
// protected asset.
type Scorer interface {
	GenerateKeywords(ctx context.Context, imageURL string) (*vision.KeywordSet, error)
	Compare(ctx context.Context, imageA, imageB string) (*vision.Comparison, error)
}

// KeywordCache stores generated keyword sets keyed by image digest.
type KeywordCache interface {
	GetCachedKeywords(ctx context.Context, imageDigest string) (string, error)
	CacheKeywords(ctx context.Context, imageDigest, payload string, ttl time.Duration) error
}

// Orchestrator fans a scan out across the registered platform adapters,
// scores every candidate, and returns the ranked result. A single platform
// failing never fails the scan.
type Orchestrator struct {
	adapters []Adapter
	scorer   Scorer
	cache    KeywordCache
	metrics  *metrics.ScanMetrics
	logg     *logger.Logger

	degradedScore   int
	lowDefaultScore int
	candidateLimit  int
	maxKeywords     int
}

// NewOrchestrator wires the orchestrator. cache and scanMetrics may be nil.
func NewOrchestrator(cfg config.ScanConfig, logg *logger.Logger, scorer Scorer, cache KeywordCache, scanMetrics *metrics.ScanMetrics, adapters ...Adapter) *Orchestrator {
	return &Orchestrator{
		adapters:        adapters,
		scorer:          scorer,
		cache:           cache,
		metrics:         scanMetrics,
		logg:            logg,
		degradedScore:   cfg.DegradedScore,
		lowDefaultScore: cfg.LowDefaultScore,
		candidateLimit:  cfg.PlatformCandidates,
		maxKeywords:     cfg.MaxKeywords,
	}
}

// ExecuteFullScan searches the selected platforms for copies of the asset
// image and returns every scored candidate ordered by similarity score,
// highest first. Ties keep the adapter registration order. An empty platform
// list scans every registered adapter. Callers decide which scores are worth
// keeping; the orchestrator does not filter.
func (o *Orchestrator) ExecuteFullScan(ctx context.Context, assetImageURL string, platforms []enums.Platform, progress ProgressFunc) (*ScanResult, error) {
	if assetImageURL == "" {
		return nil, fmt.Errorf("asset image URL is required")
	}

	adapters := o.selectAdapters(platforms)
	keywords := o.keywordsFor(ctx, assetImageURL)

	perPlatform := make([][]Match, len(adapters))
	var wg sync.WaitGroup
	for i, adapter := range adapters {
		wg.Add(1)
		go func(idx int, adapter Adapter) {
			defer wg.Done()
			perPlatform[idx] = o.scanPlatform(ctx, adapter, assetImageURL, keywords, progress)
		}(i, adapter)
	}
	wg.Wait()

	result := &ScanResult{PlatformCounts: make(map[string]int)}
	for _, matches := range perPlatform {
		for _, m := range matches {
			result.Matches = append(result.Matches, m)
			result.PlatformCounts[m.Platform.String()]++
		}
	}
	sort.SliceStable(result.Matches, func(i, j int) bool {
		return result.Matches[i].SimilarityScore > result.Matches[j].SimilarityScore
	})
	result.TotalMatches = len(result.Matches)
	return result, nil
}

func (o *Orchestrator) selectAdapters(platforms []enums.Platform) []Adapter {
	if len(platforms) == 0 {
		return o.adapters
	}
	wanted := make(map[enums.Platform]bool, len(platforms))
	for _, p := range platforms {
		wanted[p] = true
	}
	selected := make([]Adapter, 0, len(o.adapters))
	for _, adapter := range o.adapters {
		if wanted[adapter.Platform()] {
			selected = append(selected, adapter)
		}
	}
	return selected
}

func (o *Orchestrator) scanPlatform(ctx context.Context, adapter Adapter, assetImageURL string, keywords []string, progress ProgressFunc) []Match {
	platform := adapter.Platform()
	report(progress, Progress{Platform: platform, Status: ProgressSearching})

	listings, err := adapter.Search(ctx, keywords)
	if err != nil {
		o.logg.Error(o.logg.WithField(ctx, "platform", platform.String()), "platform search failed", err)
		report(progress, Progress{Platform: platform, Status: ProgressError, Message: err.Error()})
		return nil
	}

	if reverse, ok := adapter.(ReverseImageSearcher); ok {
		extra, rerr := reverse.ReverseSearch(ctx, assetImageURL)
		if rerr != nil {
			o.logg.Warn(o.logg.WithField(ctx, "platform", platform.String()), "reverse image search unavailable: "+rerr.Error())
		} else {
			listings = mergeListings(listings, extra)
		}
	}

	if len(listings) > o.candidateLimit {
		listings = listings[:o.candidateLimit]
	}

	matches := make([]Match, 0, len(listings))
	now := time.Now().UTC()
	for _, listing := range listings {
		if listing.ProductURL == "" {
			continue
		}
		score, degraded := o.scoreListing(ctx, assetImageURL, listing)
		matches = append(matches, Match{
			ID:              uuid.NewString(),
			Platform:        platform,
			SourceURL:       listing.ProductURL,
			ThumbnailURL:    listing.ImageURL,
			Title:           listing.Name,
			Price:           listing.PriceDisplay,
			SimilarityScore: score,
			ScoreDegraded:   degraded,
			DetectedAt:      now,
		})
	}

	o.metrics.AddMatches(platform.String(), len(matches))
	report(progress, Progress{Platform: platform, Status: ProgressCompleted, MatchCount: len(matches)})
	return matches
}

// mergeListings appends reverse-search hits after the keyword hits, skipping
// product URLs the keyword search already found.
func mergeListings(base, extra []RawListing) []RawListing {
	seen := make(map[string]bool, len(base))
	for _, listing := range base {
		seen[listing.ProductURL] = true
	}
	for _, listing := range extra {
		if listing.ProductURL == "" || seen[listing.ProductURL] {
			continue
		}
		seen[listing.ProductURL] = true
		base = append(base, listing)
	}
	return base
}

// scoreListing compares the candidate image against the asset. Candidates
// without an image keep a conservative low score; a comparer outage keeps
// the candidate with a degraded score so evidence is not silently lost.
func (o *Orchestrator) scoreListing(ctx context.Context, assetImageURL string, listing RawListing) (int, bool) {
	if listing.ImageURL == "" {
		return o.lowDefaultScore, false
	}

	cmp, err := o.scorer.Compare(ctx, assetImageURL, listing.ImageURL)
	if err != nil {
		o.logg.Warn(o.logg.WithField(ctx, "candidate_url", listing.ProductURL), "image comparison degraded: "+err.Error())
		o.metrics.IncDegradedScore()
		return o.degradedScore, true
	}
	if cmp.SimilarityScore == 0 {
		return neutralScore, false
	}
	return cmp.SimilarityScore, false
}

// neutralScore stands in when the comparer returns no usable score.
const neutralScore = 50

// keywordsFor returns search keywords for the asset image, serving from the
// cache when possible. Generation failures fall back to generic terms.
func (o *Orchestrator) keywordsFor(ctx context.Context, assetImageURL string) []string {
	digest := imageDigest(assetImageURL)

	if o.cache != nil {
		if payload, err := o.cache.GetCachedKeywords(ctx, digest); err == nil && payload != "" {
			var cached []string
			if err := json.Unmarshal([]byte(payload), &cached); err == nil && len(cached) > 0 {
				return cached
			}
		}
	}

	set, err := o.scorer.GenerateKeywords(ctx, assetImageURL)
	if err != nil {
		o.logg.Warn(ctx, "keyword generation failed, using fallback keywords: "+err.Error())
		return fallbackKeywords
	}

	keywords := make([]string, 0, o.maxKeywords)
	for _, kw := range append(set.KeywordsEN, set.KeywordsZH...) {
		if kw == "" {
			continue
		}
		keywords = append(keywords, kw)
		if len(keywords) >= o.maxKeywords {
			break
		}
	}
	if len(keywords) == 0 {
		return fallbackKeywords
	}

	if o.cache != nil {
		if payload, err := json.Marshal(keywords); err == nil {
			if err := o.cache.CacheKeywords(ctx, digest, string(payload), keywordCacheTTL); err != nil {
				o.logg.Warn(ctx, "keyword cache write failed: "+err.Error())
			}
		}
	}
	return keywords
}

func imageDigest(imageURL string) string {
	sum := sha256.Sum256([]byte(imageURL))
	return hex.EncodeToString(sum[:])
}

func report(progress ProgressFunc, p Progress) {
	if progress != nil {
		progress(p)
	}
}
