package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/imageguard-labs/imageguard-backend/pkg/config"
	pkgerrors "github.com/imageguard-labs/imageguard-backend/pkg/errors"
)

const (
	defaultBaseURL             = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel               = "gemini-2.0-flash"
	imageReadLimit       int64 = 8 << 20
	responseReadLimit    int64 = 1024
	keywordsPrompt             = "Generate search keywords for this image, for finding similar or identical images online. Return JSON: { \"keywords_en\": string[], \"keywords_zh\": string[], \"description\": string }"
	comparisonPrompt           = "Compare the similarity of these two images. Assess whether they could be different versions of the same image (cropped, color adjusted, watermarked, etc.). Return JSON: { \"similarity_score\": 0-100, \"is_potential_copy\": boolean, \"differences\": string[], \"conclusion\": string }"
	assessmentPromptFmt        = "You are assessing a potential copyright infringement. The first image is the original work, the second is the suspected infringing copy. Compare subjects, backgrounds, and signs of manipulation (watermark removal, cropping, color adjustment). Return JSON: { \"similarity_score\": 0-100, \"report\": { \"subject_comparison\": { \"original_features\": string[], \"infringing_features\": string[], \"match_percentage\": number, \"analysis\": string }, \"background_comparison\": { \"original_bg\": string, \"infringing_bg\": string, \"is_different\": boolean, \"analysis\": string }, \"manipulation_detection\": { \"watermark_removed\": boolean, \"cropped\": boolean, \"color_adjusted\": boolean, \"analysis\": string }, \"conclusion\": { \"is_infringement\": boolean, \"confidence_score\": 0-100, \"severity\": \"low\"|\"medium\"|\"high\"|\"critical\", \"legal_recommendation\": string } } }"
)

var errAPIKeyRequired = errors.New("gemini api key is required")

// Client wraps the Gemini generative language API for image analysis.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the Gemini client from configuration.
func NewClient(cfg config.GeminiConfig, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(cfg.APIKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	client := &Client{
		apiKey:     trimmedKey,
		model:      model,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

// KeywordSet is the generated search vocabulary for an image.
type KeywordSet struct {
	KeywordsEN  []string `json:"keywords_en"`
	KeywordsZH  []string `json:"keywords_zh"`
	Description string   `json:"description"`
}

// Comparison scores the visual similarity of two images.
type Comparison struct {
	SimilarityScore int      `json:"similarity_score"`
	IsPotentialCopy bool     `json:"is_potential_copy"`
	Differences     []string `json:"differences"`
	Conclusion      string   `json:"conclusion"`
}

// AssessmentResult is the structured infringement assessment.
type AssessmentResult struct {
	SimilarityScore int               `json:"similarity_score"`
	Report          *AssessmentReport `json:"report"`
}

// ConfidenceScore returns the model's confidence in the conclusion.
func (r *AssessmentResult) ConfidenceScore() int {
	if r == nil || r.Report == nil {
		return 0
	}
	return r.Report.Conclusion.ConfidenceScore
}

// Severity returns the assessed severity, defaulting to medium.
func (r *AssessmentResult) Severity() string {
	if r == nil || r.Report == nil || r.Report.Conclusion.Severity == "" {
		return "medium"
	}
	return r.Report.Conclusion.Severity
}

// Conclusion returns the human-readable assessment conclusion.
func (r *AssessmentResult) Conclusion() string {
	if r == nil || r.Report == nil {
		return ""
	}
	return r.Report.Conclusion.LegalRecommendation
}

// AssessmentReport mirrors the structured report stored on a case.
type AssessmentReport struct {
	SubjectComparison struct {
		OriginalFeatures   []string `json:"original_features"`
		InfringingFeatures []string `json:"infringing_features"`
		MatchPercentage    float64  `json:"match_percentage"`
		Analysis           string   `json:"analysis"`
	} `json:"subject_comparison"`
	BackgroundComparison struct {
		OriginalBG   string `json:"original_bg"`
		InfringingBG string `json:"infringing_bg"`
		IsDifferent  bool   `json:"is_different"`
		Analysis     string `json:"analysis"`
	} `json:"background_comparison"`
	ManipulationDetection struct {
		WatermarkRemoved bool   `json:"watermark_removed"`
		Cropped          bool   `json:"cropped"`
		ColorAdjusted    bool   `json:"color_adjusted"`
		Analysis         string `json:"analysis"`
	} `json:"manipulation_detection"`
	Conclusion struct {
		IsInfringement      bool   `json:"is_infringement"`
		ConfidenceScore     int    `json:"confidence_score"`
		Severity            string `json:"severity"`
		LegalRecommendation string `json:"legal_recommendation"`
	} `json:"conclusion"`
}

// GenerateKeywords asks the model for search keywords describing the image.
func (c *Client) GenerateKeywords(ctx context.Context, imageURL string) (*KeywordSet, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "vision client not configured")
	}
	if strings.TrimSpace(imageURL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "image url is required")
	}

	imgPart, err := c.fetchImagePart(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	text, err := c.generate(ctx, []part{*imgPart, {Text: keywordsPrompt}})
	if err != nil {
		return nil, err
	}

	var keywords KeywordSet
	if err := decodeJSONBlock(text, &keywords); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "parse keyword response")
	}
	return &keywords, nil
}

// Compare scores the visual similarity between two image URLs.
func (c *Client) Compare(ctx context.Context, imageA, imageB string) (*Comparison, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "vision client not configured")
	}
	if strings.TrimSpace(imageA) == "" || strings.TrimSpace(imageB) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "both image urls are required")
	}

	partA, err := c.fetchImagePart(ctx, imageA)
	if err != nil {
		return nil, err
	}
	partB, err := c.fetchImagePart(ctx, imageB)
	if err != nil {
		return nil, err
	}

	text, err := c.generate(ctx, []part{*partA, *partB, {Text: comparisonPrompt}})
	if err != nil {
		return nil, err
	}

	var comparison Comparison
	if err := decodeJSONBlock(text, &comparison); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "parse comparison response")
	}
	return &comparison, nil
}

// Assess runs the structured infringement assessment between the original
// work and the suspected copy.
func (c *Client) Assess(ctx context.Context, originalURL, infringingURL string) (*AssessmentResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "vision client not configured")
	}
	if strings.TrimSpace(originalURL) == "" || strings.TrimSpace(infringingURL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "original and infringing image urls are required")
	}

	original, err := c.fetchImagePart(ctx, originalURL)
	if err != nil {
		return nil, err
	}
	infringing, err := c.fetchImagePart(ctx, infringingURL)
	if err != nil {
		return nil, err
	}

	text, err := c.generate(ctx, []part{*original, *infringing, {Text: assessmentPromptFmt}})
	if err != nil {
		return nil, err
	}

	var result AssessmentResult
	if err := decodeJSONBlock(text, &result); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "parse assessment response")
	}
	if result.Report == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "assessment response missing report")
	}
	return &result, nil
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

func (c *Client) fetchImagePart(ctx context.Context, imageURL string) (*part, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "build image request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch image")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("image fetch returned status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, imageReadLimit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read image body")
	}
	if len(data) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "image fetch returned empty body")
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	return &part{InlineData: &inlineData{
		MimeType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
	}}, nil
}

func (c *Client) generate(ctx context.Context, parts []part) (string, error) {
	body := struct {
		Contents []struct {
			Parts []part `json:"parts"`
		} `json:"contents"`
	}{
		Contents: []struct {
			Parts []part `json:"parts"`
		}{{Parts: parts}},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal generate request")
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", strings.TrimRight(c.baseURL, "/"), c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build generate request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute generate request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "generate request failed")
	}

	var apiResp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode generate response")
	}

	var builder strings.Builder
	for _, candidate := range apiResp.Candidates {
		for _, p := range candidate.Content.Parts {
			builder.WriteString(p.Text)
		}
		break
	}
	text := builder.String()
	if strings.TrimSpace(text) == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "generate response contained no text")
	}
	return text, nil
}

// decodeJSONBlock extracts the first JSON object from model output, which may
// be wrapped in markdown fences or prose.
func decodeJSONBlock(text string, out any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in model output")
	}
	return json.Unmarshal([]byte(text[start:end+1]), out)
}
