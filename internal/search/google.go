package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/imageguard-labs/imageguard-backend/pkg/config"
	"github.com/imageguard-labs/imageguard-backend/pkg/enums"
)

const (
	defaultCustomSearchBase = "https://www.googleapis.com/customsearch/v1"
	defaultInstantBase      = "https://api.duckduckgo.com/"
	defaultSerpAPIBase      = "https://serpapi.com/search"
)

// GoogleAdapter finds copies surfaced through web search. With a Custom
// Search key it uses the official API; without one it degrades to the
// DuckDuckGo instant answer endpoint. A SerpAPI key additionally enables
// reverse image lookups.
type GoogleAdapter struct {
	httpClient       *http.Client
	customSearchBase string
	instantBase      string
	serpBase         string
	apiKey           string
	cseID            string
	serpAPIKey       string
	limit            int
}

// GoogleOption configures a GoogleAdapter.
type GoogleOption func(*GoogleAdapter)

// WithGoogleHTTPClient overrides the HTTP client.
func WithGoogleHTTPClient(c *http.Client) GoogleOption {
	return func(a *GoogleAdapter) { a.httpClient = c }
}

// WithCustomSearchBase overrides the Custom Search API base URL.
func WithCustomSearchBase(base string) GoogleOption {
	return func(a *GoogleAdapter) { a.customSearchBase = strings.TrimRight(base, "/") }
}

// WithInstantBase overrides the instant answer base URL.
func WithInstantBase(base string) GoogleOption {
	return func(a *GoogleAdapter) { a.instantBase = base }
}

// WithSerpAPIBase overrides the SerpAPI base URL.
func WithSerpAPIBase(base string) GoogleOption {
	return func(a *GoogleAdapter) { a.serpBase = strings.TrimRight(base, "/") }
}

// NewGoogleAdapter builds an adapter that returns at most limit listings.
func NewGoogleAdapter(cfg config.SearchConfig, limit int, opts ...GoogleOption) *GoogleAdapter {
	a := &GoogleAdapter{
		httpClient:       &http.Client{Timeout: 15 * time.Second},
		customSearchBase: defaultCustomSearchBase,
		instantBase:      defaultInstantBase,
		serpBase:         defaultSerpAPIBase,
		apiKey:           cfg.GoogleAPIKey,
		cseID:            cfg.GoogleCSEID,
		serpAPIKey:       cfg.SerpAPIKey,
		limit:            limit,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Platform implements Adapter.
func (a *GoogleAdapter) Platform() enums.Platform { return enums.PlatformGoogle }

type customSearchResponse struct {
	Items []struct {
		Title string `json:"title"`
		Link  string `json:"link"`
		Pagemap struct {
			CSEThumbnail []struct {
				Src string `json:"src"`
			} `json:"cse_thumbnail"`
		} `json:"pagemap"`
	} `json:"items"`
}

type instantAnswerResponse struct {
	AbstractURL   string `json:"AbstractURL"`
	Heading       string `json:"Heading"`
	RelatedTopics []struct {
		FirstURL string `json:"FirstURL"`
		Text     string `json:"Text"`
	} `json:"RelatedTopics"`
}

// Search implements Adapter.
func (a *GoogleAdapter) Search(ctx context.Context, keywords []string) ([]RawListing, error) {
	if a.apiKey != "" && a.cseID != "" {
		listings, err := a.customSearch(ctx, keywords)
		if err == nil && len(listings) > 0 {
			return listings, nil
		}
	}
	return a.instantSearch(ctx, keywords)
}

func (a *GoogleAdapter) customSearch(ctx context.Context, keywords []string) ([]RawListing, error) {
	query := url.Values{}
	query.Set("key", a.apiKey)
	query.Set("cx", a.cseID)
	query.Set("q", strings.Join(keywords, " "))
	query.Set("num", fmt.Sprintf("%d", a.limit))
	query.Set("searchType", "image")

	var payload customSearchResponse
	if err := a.getJSON(ctx, a.customSearchBase+"?"+query.Encode(), &payload); err != nil {
		return nil, err
	}

	listings := make([]RawListing, 0, len(payload.Items))
	for _, item := range payload.Items {
		listing := RawListing{
			Name:       item.Title,
			ProductURL: item.Link,
		}
		if len(item.Pagemap.CSEThumbnail) > 0 {
			listing.ImageURL = item.Pagemap.CSEThumbnail[0].Src
		}
		listings = append(listings, listing)
		if len(listings) >= a.limit {
			break
		}
	}
	return listings, nil
}

func (a *GoogleAdapter) instantSearch(ctx context.Context, keywords []string) ([]RawListing, error) {
	query := url.Values{}
	query.Set("q", strings.Join(keywords, " "))
	query.Set("format", "json")
	query.Set("no_html", "1")

	var payload instantAnswerResponse
	if err := a.getJSON(ctx, a.instantBase+"?"+query.Encode(), &payload); err != nil {
		return nil, err
	}

	listings := make([]RawListing, 0, a.limit)
	if payload.AbstractURL != "" {
		listings = append(listings, RawListing{
			Name:       payload.Heading,
			ProductURL: payload.AbstractURL,
		})
	}
	for _, topic := range payload.RelatedTopics {
		if topic.FirstURL == "" {
			continue
		}
		listings = append(listings, RawListing{
			Name:       topic.Text,
			ProductURL: topic.FirstURL,
		})
		if len(listings) >= a.limit {
			break
		}
	}
	return listings, nil
}

type serpAPIResponse struct {
	ImageResults []struct {
		Title     string `json:"title"`
		Link      string `json:"link"`
		Thumbnail string `json:"thumbnail"`
		Source    string `json:"source"`
	} `json:"image_results"`
}

// ReverseSearch implements ReverseImageSearcher. It requires a SerpAPI key
// and returns pages where the given image appears.
func (a *GoogleAdapter) ReverseSearch(ctx context.Context, imageURL string) ([]RawListing, error) {
	if a.serpAPIKey == "" {
		return nil, fmt.Errorf("reverse image search is not configured")
	}

	query := url.Values{}
	query.Set("engine", "google_reverse_image")
	query.Set("image_url", imageURL)
	query.Set("api_key", a.serpAPIKey)

	var payload serpAPIResponse
	if err := a.getJSON(ctx, a.serpBase+"?"+query.Encode(), &payload); err != nil {
		return nil, err
	}

	listings := make([]RawListing, 0, len(payload.ImageResults))
	for _, result := range payload.ImageResults {
		listings = append(listings, RawListing{
			Name:       result.Title,
			ProductURL: result.Link,
			ImageURL:   result.Thumbnail,
			Seller:     result.Source,
		})
		if len(listings) >= a.limit {
			break
		}
	}
	return listings, nil
}

func (a *GoogleAdapter) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("search endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, htmlReadLimit))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}
