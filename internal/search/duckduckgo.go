package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

const (
	defaultDuckDuckGoBase = "https://html.duckduckgo.com/html/"
	fallbackUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	htmlReadLimit         = 2 << 20
)

// duckDuckGoFallback runs a site-restricted HTML search and extracts listing
// links with the adapter-supplied pattern. It is the shared second tier for
// adapters whose native endpoint fails.
type duckDuckGoFallback struct {
	httpClient *http.Client
	baseURL    string
	site       string
	linkRe     *regexp.Regexp
}

// search returns (url, optional title) capture pairs for up to limit links.
func (d *duckDuckGoFallback) search(ctx context.Context, keywords []string, limit int) ([][]string, error) {
	query := fmt.Sprintf("site:%s %s", d.site, strings.Join(keywords, " "))
	endpoint := fmt.Sprintf("%s?q=%s", strings.TrimRight(d.baseURL, "/")+"/", url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", fallbackUserAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo returned status %d", resp.StatusCode)
	}

	html, err := io.ReadAll(io.LimitReader(resp.Body, htmlReadLimit))
	if err != nil {
		return nil, err
	}

	all := d.linkRe.FindAllStringSubmatch(string(html), -1)
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
