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

const defaultRutenAPIBase = "https://rtapi.ruten.com.tw"

var rutenLinkRe = regexp.MustCompile(`https://www\.ruten\.com\.tw/item/show\?[0-9]+`)

// RutenAdapter searches the Ruten marketplace API. The search endpoint only
// returns product ids, so each scan makes a second call for item details.
type RutenAdapter struct {
	httpClient *http.Client
	apiBase    string
	fallback   *duckDuckGoFallback
	limit      int
}

// RutenOption configures a RutenAdapter.
type RutenOption func(*RutenAdapter)

// WithRutenHTTPClient overrides the HTTP client.
func WithRutenHTTPClient(c *http.Client) RutenOption {
	return func(a *RutenAdapter) { a.httpClient = c }
}

// WithRutenAPIBase overrides the API base URL.
func WithRutenAPIBase(base string) RutenOption {
	return func(a *RutenAdapter) { a.apiBase = strings.TrimRight(base, "/") }
}

// WithRutenFallbackBase overrides the fallback search base URL.
func WithRutenFallbackBase(base string) RutenOption {
	return func(a *RutenAdapter) { a.fallback.baseURL = base }
}

// NewRutenAdapter builds an adapter that returns at most limit listings.
func NewRutenAdapter(limit int, opts ...RutenOption) *RutenAdapter {
	a := &RutenAdapter{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		apiBase:    defaultRutenAPIBase,
		limit:      limit,
		fallback: &duckDuckGoFallback{
			baseURL: defaultDuckDuckGoBase,
			site:    "ruten.com.tw",
			linkRe:  rutenLinkRe,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.fallback.httpClient = a.httpClient
	return a
}

// Platform implements Adapter.
func (a *RutenAdapter) Platform() enums.Platform { return enums.PlatformRuten }

type rutenSearchResponse struct {
	Rows []struct {
		ID string `json:"Id"`
	} `json:"Rows"`
}

type rutenProduct struct {
	ProdID     string    `json:"ProdId"`
	ProdName   string    `json:"ProdName"`
	PriceRange []float64 `json:"PriceRange"`
	SellerID   string    `json:"SellerId"`
	SoldQty    int       `json:"SoldQty"`
}

// Search implements Adapter.
func (a *RutenAdapter) Search(ctx context.Context, keywords []string) ([]RawListing, error) {
	listings, err := a.searchAPI(ctx, keywords)
	if err == nil && len(listings) > 0 {
		return listings, nil
	}
	return a.searchFallback(ctx, keywords)
}

func (a *RutenAdapter) searchAPI(ctx context.Context, keywords []string) ([]RawListing, error) {
	query := url.Values{}
	query.Set("q", strings.Join(keywords, " "))
	query.Set("type", "direct")
	query.Set("sort", "rnk/dc")
	query.Set("limit", fmt.Sprintf("%d", a.limit))

	var search rutenSearchResponse
	endpoint := fmt.Sprintf("%s/api/search/v3/index.php/core/prod?%s", a.apiBase, query.Encode())
	if err := a.getJSON(ctx, endpoint, &search); err != nil {
		return nil, err
	}
	if len(search.Rows) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(search.Rows))
	for _, row := range search.Rows {
		if row.ID != "" {
			ids = append(ids, row.ID)
		}
		if len(ids) >= a.limit {
			break
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var products []rutenProduct
	detail := fmt.Sprintf("%s/api/prod/v2/index.php/prod?id=%s", a.apiBase, strings.Join(ids, ","))
	if err := a.getJSON(ctx, detail, &products); err != nil {
		return nil, err
	}

	listings := make([]RawListing, 0, len(products))
	for _, p := range products {
		var price float64
		if len(p.PriceRange) > 0 {
			price = p.PriceRange[0]
		}
		listings = append(listings, RawListing{
			ExternalID:   p.ProdID,
			Name:         p.ProdName,
			Price:        price,
			PriceDisplay: fmt.Sprintf("NT$ %.0f", price),
			ImageURL:     rutenImageURL(p.ProdID),
			ProductURL:   fmt.Sprintf("https://www.ruten.com.tw/item/show?%s", p.ProdID),
			Seller:       p.SellerID,
			Sold:         p.SoldQty,
		})
		if len(listings) >= a.limit {
			break
		}
	}
	return listings, nil
}

// rutenImageURL derives the thumbnail path from the product id prefix.
func rutenImageURL(prodID string) string {
	if len(prodID) < 4 {
		return ""
	}
	return fmt.Sprintf("https://img.ruten.com.tw/s1/%s/%s", prodID[:4], prodID)
}

func (a *RutenAdapter) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", fallbackUserAgent)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ruten api returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, htmlReadLimit))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func (a *RutenAdapter) searchFallback(ctx context.Context, keywords []string) ([]RawListing, error) {
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
