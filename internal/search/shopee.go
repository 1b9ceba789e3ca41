package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/imageguard-labs/imageguard-backend/pkg/enums"
)

const (
	defaultShopeeAPIBase   = "https://shopee.tw"
	shopeeImageBase        = "https://cf.shopee.tw/file/"
	shopeePriceDenominator = 100000
)

var shopeeLinkRe = regexp.MustCompile(`https://shopee\.tw/[^\s"'<>]+`)

// ShopeeAdapter queries the Shopee Taiwan search API and falls back to a
// site-restricted web search when the API is unreachable or blocked.
type ShopeeAdapter struct {
	httpClient *http.Client
	apiBase    string
	fallback   *duckDuckGoFallback
	limit      int
}

// ShopeeOption configures a ShopeeAdapter.
type ShopeeOption func(*ShopeeAdapter)

// WithShopeeHTTPClient overrides the HTTP client.
func WithShopeeHTTPClient(c *http.Client) ShopeeOption {
	return func(a *ShopeeAdapter) { a.httpClient = c }
}

// WithShopeeAPIBase overrides the API base URL.
func WithShopeeAPIBase(base string) ShopeeOption {
	return func(a *ShopeeAdapter) { a.apiBase = strings.TrimRight(base, "/") }
}

// WithShopeeFallbackBase overrides the fallback search base URL.
func WithShopeeFallbackBase(base string) ShopeeOption {
	return func(a *ShopeeAdapter) { a.fallback.baseURL = base }
}

// NewShopeeAdapter builds an adapter that returns at most limit listings.
func NewShopeeAdapter(limit int, opts ...ShopeeOption) *ShopeeAdapter {
	a := &ShopeeAdapter{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		apiBase:    defaultShopeeAPIBase,
		limit:      limit,
		fallback: &duckDuckGoFallback{
			baseURL: defaultDuckDuckGoBase,
			site:    "shopee.tw",
			linkRe:  shopeeLinkRe,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.fallback.httpClient = a.httpClient
	return a
}

// Platform implements Adapter.
func (a *ShopeeAdapter) Platform() enums.Platform { return enums.PlatformShopee }

type shopeeSearchResponse struct {
	Items []struct {
		ItemBasic struct {
			ItemID         int64   `json:"itemid"`
			ShopID         int64   `json:"shopid"`
			Name           string  `json:"name"`
			Price          float64 `json:"price"`
			Image          string  `json:"image"`
			HistoricalSold int     `json:"historical_sold"`
			ShopName       string  `json:"shop_name"`
			ItemRating     struct {
				RatingStar float64 `json:"rating_star"`
			} `json:"item_rating"`
		} `json:"item_basic"`
	} `json:"items"`
}

// Search implements Adapter.
func (a *ShopeeAdapter) Search(ctx context.Context, keywords []string) ([]RawListing, error) {
	listings, err := a.searchAPI(ctx, keywords)
	if err == nil && len(listings) > 0 {
		return listings, nil
	}
	return a.searchFallback(ctx, keywords)
}

func (a *ShopeeAdapter) searchAPI(ctx context.Context, keywords []string) ([]RawListing, error) {
	query := url.Values{}
	query.Set("by", "relevancy")
	query.Set("keyword", strings.Join(keywords, " "))
	query.Set("limit", fmt.Sprintf("%d", a.limit))
	query.Set("newest", "0")
	query.Set("order", "desc")
	query.Set("page_type", "search")

	endpoint := fmt.Sprintf("%s/api/v4/search/search_items?%s", a.apiBase, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", fallbackUserAgent)
	req.Header.Set("Referer", "https://shopee.tw/")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("shopee api returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, htmlReadLimit))
	if err != nil {
		return nil, err
	}

	var payload shopeeSearchResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	listings := make([]RawListing, 0, len(payload.Items))
	for _, item := range payload.Items {
		basic := item.ItemBasic
		price := basic.Price / shopeePriceDenominator
		listings = append(listings, RawListing{
			ExternalID:   fmt.Sprintf("%d", basic.ItemID),
			Name:         basic.Name,
			Price:        price,
			PriceDisplay: fmt.Sprintf("NT$ %.0f", price),
			ImageURL:     shopeeImageBase + basic.Image,
			ProductURL:   fmt.Sprintf("https://shopee.tw/product/%d/%d", basic.ShopID, basic.ItemID),
			Seller:       basic.ShopName,
			Sold:         basic.HistoricalSold,
			Rating:       basic.ItemRating.RatingStar,
		})
		if len(listings) >= a.limit {
			break
		}
	}
	return listings, nil
}

func (a *ShopeeAdapter) searchFallback(ctx context.Context, keywords []string) ([]RawListing, error) {
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
