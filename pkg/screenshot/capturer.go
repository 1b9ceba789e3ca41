package screenshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/imageguard-labs/imageguard-backend/pkg/config"
	pkgerrors "github.com/imageguard-labs/imageguard-backend/pkg/errors"
)

const (
	defaultPrimaryBase       = "https://api.screenshotone.com/take"
	defaultFallbackBase      = "https://image.thum.io/get"
	captureReadLimit   int64 = 32 << 20
	errorReadLimit     int64 = 1024
)

// Capture is a page screenshot with its integrity hash.
type Capture struct {
	Bytes      []byte
	Hash       string
	Format     string
	CapturedAt time.Time
}

// Capturer takes evidence screenshots. ScreenshotOne is the primary
// provider; thum.io serves as the keyless fallback.
type Capturer struct {
	httpClient   *http.Client
	primaryBase  string
	fallbackBase string
	apiKey       string
	viewportWide int
	delaySeconds int
}

// Option configures optional capturer behavior.
type Option func(*Capturer)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Capturer) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithPrimaryBase overrides the ScreenshotOne endpoint.
func WithPrimaryBase(base string) Option {
	return func(c *Capturer) {
		if trimmed := strings.TrimSpace(base); trimmed != "" {
			c.primaryBase = trimmed
		}
	}
}

// WithFallbackBase overrides the thum.io endpoint.
func WithFallbackBase(base string) Option {
	return func(c *Capturer) {
		if trimmed := strings.TrimSpace(base); trimmed != "" {
			c.fallbackBase = trimmed
		}
	}
}

// NewCapturer builds the screenshot capturer from configuration. A missing
// API key is allowed; captures then go straight to the fallback provider.
func NewCapturer(cfg config.ScreenshotConfig, opts ...Option) *Capturer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	width := cfg.ViewportWide
	if width <= 0 {
		width = 1280
	}
	delay := cfg.DelaySeconds
	if delay <= 0 {
		delay = 3
	}

	capturer := &Capturer{
		httpClient:   &http.Client{Timeout: timeout},
		primaryBase:  defaultPrimaryBase,
		fallbackBase: defaultFallbackBase,
		apiKey:       strings.TrimSpace(cfg.APIKey),
		viewportWide: width,
		delaySeconds: delay,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(capturer)
		}
	}

	return capturer
}

// CaptureURL takes a full-page screenshot of the target page. The primary
// provider is tried first when an API key is configured; any primary failure
// falls through to thum.io. Both failing returns a dependency error.
func (c *Capturer) CaptureURL(ctx context.Context, pageURL string) (*Capture, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "screenshot capturer not configured")
	}
	if strings.TrimSpace(pageURL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "page url is required")
	}

	capturedAt := time.Now().UTC()

	if c.apiKey != "" {
		capture, err := c.capturePrimary(ctx, pageURL, capturedAt)
		if err == nil {
			return capture, nil
		}
	}

	capture, err := c.captureFallback(ctx, pageURL, capturedAt)
	if err != nil {
		return nil, err
	}
	return capture, nil
}

func (c *Capturer) capturePrimary(ctx context.Context, pageURL string, capturedAt time.Time) (*Capture, error) {
	params := url.Values{}
	params.Set("access_key", c.apiKey)
	params.Set("url", pageURL)
	params.Set("full_page", "true")
	params.Set("viewport_width", strconv.Itoa(c.viewportWide))
	params.Set("delay", strconv.Itoa(c.delaySeconds))
	params.Set("format", "png")
	params.Set("block_ads", "true")
	params.Set("block_cookie_banners", "true")
	params.Set("cache", "false")

	endpoint := c.primaryBase + "?" + params.Encode()
	return c.fetchImage(ctx, endpoint, "png", capturedAt, "screenshotone capture")
}

func (c *Capturer) captureFallback(ctx context.Context, pageURL string, capturedAt time.Time) (*Capture, error) {
	endpoint := fmt.Sprintf(
		"%s/width/%d/crop/1920/noanimate/%s",
		strings.TrimRight(c.fallbackBase, "/"),
		c.viewportWide,
		url.QueryEscape(pageURL),
	)
	return c.fetchImage(ctx, endpoint, "png", capturedAt, "thum.io capture")
}

func (c *Capturer) fetchImage(ctx context.Context, endpoint, format string, capturedAt time.Time, op string) (*Capture, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build "+op+" request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute "+op+" request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorReadLimit))
		return nil, pkgerrors.Wrap(
			pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			op+" failed",
		)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, captureReadLimit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read "+op+" body")
	}
	if len(data) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, op+" returned empty body")
	}

	return &Capture{
		Bytes:      data,
		Hash:       HashBytes(data),
		Format:     format,
		CapturedAt: capturedAt,
	}, nil
}

// HashBytes returns the hex-encoded SHA-256 digest used for evidence
// integrity.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
