package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/imageguard-labs/imageguard-backend/pkg/config"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(config.GeminiConfig{APIKey: "test-key"}, WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client, server
}

func modelResponse(text string) string {
	payload := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
		},
	}
	raw, _ := json.Marshal(payload)
	return string(raw)
}

func TestGenerateKeywords(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/image.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("fake-png-bytes"))
	})
	mux.HandleFunc("/models/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.String(), "generateContent") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(modelResponse("```json\n{\"keywords_en\":[\"vintage watch\"],\"keywords_zh\":[\"復古手錶\"],\"description\":\"a watch\"}\n```")))
	})

	client, server := newTestClient(t, mux)

	keywords, err := client.GenerateKeywords(context.Background(), server.URL+"/image.png")
	if err != nil {
		t.Fatalf("GenerateKeywords returned error: %v", err)
	}
	if len(keywords.KeywordsEN) != 1 || keywords.KeywordsEN[0] != "vintage watch" {
		t.Fatalf("unexpected english keywords %v", keywords.KeywordsEN)
	}
	if len(keywords.KeywordsZH) != 1 {
		t.Fatalf("unexpected chinese keywords %v", keywords.KeywordsZH)
	}
}

func TestCompareParsesScore(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a.jpg", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("image-a"))
	})
	mux.HandleFunc("/b.jpg", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("image-b"))
	})
	mux.HandleFunc("/models/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(modelResponse(`The result is {"similarity_score":87,"is_potential_copy":true,"differences":["watermark removed"],"conclusion":"likely a copy"}`)))
	})

	client, server := newTestClient(t, mux)

	comparison, err := client.Compare(context.Background(), server.URL+"/a.jpg", server.URL+"/b.jpg")
	if err != nil {
		t.Fatalf("Compare returned error: %v", err)
	}
	if comparison.SimilarityScore != 87 {
		t.Fatalf("expected score 87, got %d", comparison.SimilarityScore)
	}
	if !comparison.IsPotentialCopy {
		t.Fatal("expected potential copy flag")
	}
}

func TestCompareUnreachableImage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a.jpg", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	client, server := newTestClient(t, mux)

	if _, err := client.Compare(context.Background(), server.URL+"/a.jpg", server.URL+"/b.jpg"); err == nil {
		t.Fatal("expected error for unreachable image")
	}
}

func TestAssessRequiresReport(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/orig.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("orig"))
	})
	mux.HandleFunc("/copy.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("copy"))
	})
	mux.HandleFunc("/models/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(modelResponse(`{"similarity_score":90}`)))
	})

	client, server := newTestClient(t, mux)

	if _, err := client.Assess(context.Background(), server.URL+"/orig.png", server.URL+"/copy.png"); err == nil {
		t.Fatal("expected error when report missing")
	}
}

func TestAssessParsesReport(t *testing.T) {
	report := `{"similarity_score":92,"report":{"subject_comparison":{"original_features":["red dial"],"infringing_features":["red dial"],"match_percentage":95,"analysis":"same subject"},"background_comparison":{"original_bg":"white","infringing_bg":"white","is_different":false,"analysis":"identical"},"manipulation_detection":{"watermark_removed":true,"cropped":false,"color_adjusted":false,"analysis":"watermark gone"},"conclusion":{"is_infringement":true,"confidence_score":88,"severity":"high","legal_recommendation":"issue takedown"}}}`

	mux := http.NewServeMux()
	mux.HandleFunc("/orig.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("orig"))
	})
	mux.HandleFunc("/copy.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("copy"))
	})
	mux.HandleFunc("/models/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(modelResponse(report)))
	})

	client, server := newTestClient(t, mux)

	result, err := client.Assess(context.Background(), server.URL+"/orig.png", server.URL+"/copy.png")
	if err != nil {
		t.Fatalf("Assess returned error: %v", err)
	}
	if result.SimilarityScore != 92 {
		t.Fatalf("expected similarity 92, got %d", result.SimilarityScore)
	}
	if result.ConfidenceScore() != 88 {
		t.Fatalf("expected confidence 88, got %d", result.ConfidenceScore())
	}
	if result.Severity() != "high" {
		t.Fatalf("expected severity high, got %q", result.Severity())
	}
	if result.Conclusion() != "issue takedown" {
		t.Fatalf("unexpected conclusion %q", result.Conclusion())
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(config.GeminiConfig{}); err == nil {
		t.Fatal("expected missing api key error")
	}
}

func TestDecodeJSONBlock(t *testing.T) {
	var out struct {
		Value int `json:"value"`
	}
	if err := decodeJSONBlock("prefix {\"value\": 7} suffix", &out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if out.Value != 7 {
		t.Fatalf("expected 7, got %d", out.Value)
	}
	if err := decodeJSONBlock("no json here", &out); err == nil {
		t.Fatal("expected error without JSON object")
	}
}
