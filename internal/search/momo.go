package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/imageguard-labs/imageguard-backend/pkg/enums"
)

const defaultMomoBase = "https://www.momoshop.com.tw"

var (
	momoGoodsCodeRe = regexp.MustCompile(`(?:goodsCode=|i_code=)(\d{6,})`)
	momoLinkRe      = regexp.MustCompile(`https://www\.momoshop\.com\.tw/goods/GoodsDetail\.jsp\?i_code=\d+`)
)

// MomoAdapter scrapes the momo search page. momo has no public search API,
// so product codes are pulled out of the result HTML by pattern.
type MomoAdapter struct {
	httpClient *http.Client
	baseURL    string
	fallback   *duckDuckGoFallback
	limit      int
}

// MomoOption configures a MomoAdapter.
type MomoOption func(*MomoAdapter)

// WithMomoHTTPClient overrides the HTTP client.
func WithMomoHTTPClient(c *http.Client) MomoOption {
	return func(a *MomoAdapter) { a.httpClient = c }
}

// WithMomoBase overrides the site base URL.
func WithMomoBase(base string) MomoOption {
	return func(a *MomoAdapter) { a.baseURL = strings.TrimRight(base, "/") }
}

// WithMomoFallbackBase overrides the fallback search base URL.
func WithMomoFallbackBase(base string) MomoOption {
	return func(a *MomoAdapter) { a.fallback.baseURL = base }
}

// NewMomoAdapter builds an adapter that returns at most limit listings.
func NewMomoAdapter(limit int, opts ...MomoOption) *MomoAdapter {
	a := &MomoAdapter{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    defaultMomoBase,
		limit:      limit,
		fallback: &duckDuckGoFallback{
			baseURL: defaultDuckDuckGoBase,
			site:    "momoshop.com.tw",
			linkRe:  momoLinkRe,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.fallback.httpClient = a.httpClient
	return a
}

// Platform implements Adapter.
func (a *MomoAdapter) Platform() enums.Platform { return enums.PlatformMomo }

// Search implements Adapter.
func (a *MomoAdapter) Search(ctx context.Context, keywords []string) ([]RawListing, error) {
	listings, err := a.scrapeSearch(ctx, keywords)
	if err == nil && len(listings) > 0 {
		return listings, nil
	}
	return a.searchFallback(ctx, keywords)
}

func (a *MomoAdapter) scrapeSearch(ctx context.Context, keywords []string) ([]RawListing, error) {
	endpoint := fmt.Sprintf("%s/search/searchShop.jsp?keyword=%s", a.baseURL, url.QueryEscape(strings.Join(keywords, " ")))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", fallbackUserAgent)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("momo returned status %d", resp.StatusCode)
	}

	html, err := io.ReadAll(io.LimitReader(resp.Body, htmlReadLimit))
	if err != nil {
		return nil, err
	}

	codes := momoGoodsCodeRe.FindAllStringSubmatch(string(html), -1)
	seen := make(map[string]bool, len(codes))
	listings := make([]RawListing, 0, a.limit)
	for _, match := range codes {
		code := match[1]
		if seen[code] {
			continue
		}
		seen[code] = true
		listings = append(listings, RawListing{
			ExternalID: code,
			Name:       strings.Join(keywords, " "),
			ProductURL: fmt.Sprintf("https://www.momoshop.com.tw/goods/GoodsDetail.jsp?i_code=%s", code),
		})
		if len(listings) >= a.limit {
			break
		}
	}
	return listings, nil
}

func (a *MomoAdapter) searchFallback(ctx context.Context, keywords []string) ([]RawListing, error) {
	links, err := a.fallback.search(ctx, keywords, a.limit)
	if err != nil {
		return nil, err
	}
	listings := make([]RawListing, 0, len(links))
	for _, match := range links {
		listings = append(listings, RawListing{
			Name:       strings.Join(keywords, " "),
			ProductURL: match[0],
		})
	}
	return listings, nil
}
