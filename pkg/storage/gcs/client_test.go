package gcs

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTokenSourceCachesUntilExpiry(t *testing.T) {
	t.Parallel()

	calls := 0
	ts := &tokenSource{
		fetch: func(ctx context.Context) (string, time.Time, error) {
			calls++
			return "token-1", time.Now().Add(time.Hour), nil
		},
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		token, err := ts.Token(ctx)
		if err != nil {
			t.Fatalf("unexpected token error: %v", err)
		}
		if token != "token-1" {
			t.Fatalf("unexpected token %q", token)
		}
	}
	if calls != 1 {
		t.Fatalf("expected a single fetch, got %d", calls)
	}
}

func TestTokenSourceRefreshesNearExpiry(t *testing.T) {
	t.Parallel()

	calls := 0
	ts := &tokenSource{
		fetch: func(ctx context.Context) (string, time.Time, error) {
			calls++
			return "short-lived", time.Now().Add(30 * time.Second), nil
		},
	}

	ctx := context.Background()
	if _, err := ts.Token(ctx); err != nil {
		t.Fatalf("unexpected token error: %v", err)
	}
	if _, err := ts.Token(ctx); err != nil {
		t.Fatalf("unexpected token error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected refetch inside expiry window, got %d calls", calls)
	}
}

func TestTokenSourcePropagatesFetchError(t *testing.T) {
	t.Parallel()

	ts := &tokenSource{
		fetch: func(ctx context.Context) (string, time.Time, error) {
			return "", time.Time{}, errors.New("metadata unreachable")
		},
	}

	if _, err := ts.Token(context.Background()); err == nil {
		t.Fatal("expected fetch error to propagate")
	}
}

func TestBucketHandles(t *testing.T) {
	t.Parallel()

	client := &Client{assetBucket: "ig-assets", evidenceBucket: "ig-evidence"}

	if got := client.AssetBucket().Name(); got != "ig-assets" {
		t.Fatalf("unexpected asset bucket %q", got)
	}
	if got := client.EvidenceBucket().Name(); got != "ig-evidence" {
		t.Fatalf("unexpected evidence bucket %q", got)
	}
	if got := client.BucketHandle("").Name(); got != "ig-assets" {
		t.Fatalf("empty handle should default to asset bucket, got %q", got)
	}
}

func TestPublicURL(t *testing.T) {
	t.Parallel()

	bucket := &Bucket{name: "ig-evidence"}
	want := "https://storage.googleapis.com/ig-evidence/cases/IGP-2026-00042/screenshot.png"
	if got := bucket.PublicURL("cases/IGP-2026-00042/screenshot.png"); got != want {
		t.Fatalf("unexpected public url %q", got)
	}
}
