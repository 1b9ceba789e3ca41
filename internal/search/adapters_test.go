package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/imageguard-labs/imageguard-backend/pkg/config"
)

func newGoogleTestAdapter(apiKey, cseID, serpKey string, opts ...GoogleOption) *GoogleAdapter {
	cfg := config.SearchConfig{GoogleAPIKey: apiKey, GoogleCSEID: cseID, SerpAPIKey: serpKey}
	return NewGoogleAdapter(cfg, 10, opts...)
}

func TestShopeeAdapter_SearchAPI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v4/search/search_items" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("keyword"); got != "leather bag" {
			t.Fatalf("unexpected keyword %q", got)
		}
		fmt.Fprint(w, `{"items":[{"item_basic":{"itemid":222,"shopid":111,"name":"Leather Bag","price":129900000,"image":"abc123","historical_sold":42,"shop_name":"bagshop","item_rating":{"rating_star":4.8}}}]}`)
	}))
	defer server.Close()

	adapter := NewShopeeAdapter(10, WithShopeeAPIBase(server.URL), WithShopeeHTTPClient(server.Client()))
	listings, err := adapter.Search(context.Background(), []string{"leather bag"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(listings))
	}

	got := listings[0]
	if got.Price != 1299 {
		t.Fatalf("expected price 1299, got %v", got.Price)
	}
	if got.PriceDisplay != "NT$ 1299" {
		t.Fatalf("unexpected price display %q", got.PriceDisplay)
	}
	if got.ProductURL != "https://shopee.tw/product/111/222" {
		t.Fatalf("unexpected product URL %q", got.ProductURL)
	}
	if got.ImageURL != "https://cf.shopee.tw/file/abc123" {
		t.Fatalf("unexpected image URL %q", got.ImageURL)
	}
	if got.Seller != "bagshop" || got.Sold != 42 {
		t.Fatalf("unexpected seller fields: %+v", got)
	}
}

func TestShopeeAdapter_FallsBackToWebSearch(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer api.Close()

	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<a href="https://shopee.tw/product/5/9">hit</a>`)
	}))
	defer fallback.Close()

	adapter := NewShopeeAdapter(10,
		WithShopeeAPIBase(api.URL),
		WithShopeeFallbackBase(fallback.URL),
		WithShopeeHTTPClient(api.Client()),
	)
	listings, err := adapter.Search(context.Background(), []string{"leather bag"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(listings) != 1 || listings[0].ProductURL != "https://shopee.tw/product/5/9" {
		t.Fatalf("unexpected fallback listings: %+v", listings)
	}
}

func TestRutenAdapter_SearchAPI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/search/v3/index.php/core/prod":
			fmt.Fprint(w, `{"Rows":[{"Id":"22405123456789"}]}`)
		case "/api/prod/v2/index.php/prod":
			if got := r.URL.Query().Get("id"); got != "22405123456789" {
				t.Fatalf("unexpected id query %q", got)
			}
			fmt.Fprint(w, `[{"ProdId":"22405123456789","ProdName":"古董海報","PriceRange":[880,1200],"SellerId":"poster_shop","SoldQty":7}]`)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	adapter := NewRutenAdapter(10, WithRutenAPIBase(server.URL), WithRutenHTTPClient(server.Client()))
	listings, err := adapter.Search(context.Background(), []string{"古董海報"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(listings))
	}

	got := listings[0]
	if got.Price != 880 {
		t.Fatalf("expected lowest price 880, got %v", got.Price)
	}
	if got.ImageURL != "https://img.ruten.com.tw/s1/2240/22405123456789" {
		t.Fatalf("unexpected image URL %q", got.ImageURL)
	}
	if got.ProductURL != "https://www.ruten.com.tw/item/show?22405123456789" {
		t.Fatalf("unexpected product URL %q", got.ProductURL)
	}
	if got.Seller != "poster_shop" || got.Sold != 7 {
		t.Fatalf("unexpected seller fields: %+v", got)
	}
}

func TestMomoAdapter_ScrapesGoodsCodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/searchShop.jsp" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `<a href="/goods/GoodsDetail.jsp?i_code=13579246">one</a>
			<img src="/img?goodsCode=13579246">
			<a href="/goods/GoodsDetail.jsp?i_code=24681357">two</a>`)
	}))
	defer server.Close()

	adapter := NewMomoAdapter(10, WithMomoBase(server.URL), WithMomoHTTPClient(server.Client()))
	listings, err := adapter.Search(context.Background(), []string{"poster"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("expected duplicate codes collapsed to 2 listings, got %d", len(listings))
	}
	if listings[0].ProductURL != "https://www.momoshop.com.tw/goods/GoodsDetail.jsp?i_code=13579246" {
		t.Fatalf("unexpected product URL %q", listings[0].ProductURL)
	}
}

func TestGoogleAdapter_CustomSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("cx"); got != "cse-id" {
			t.Fatalf("unexpected cx %q", got)
		}
		fmt.Fprint(w, `{"items":[{"title":"Copied Poster","link":"https://example.com/poster","pagemap":{"cse_thumbnail":[{"src":"https://example.com/t.png"}]}}]}`)
	}))
	defer server.Close()

	adapter := newGoogleTestAdapter("api-key", "cse-id", "", WithCustomSearchBase(server.URL), WithGoogleHTTPClient(server.Client()))
	listings, err := adapter.Search(context.Background(), []string{"poster"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(listings) != 1 || listings[0].ProductURL != "https://example.com/poster" || listings[0].ImageURL != "https://example.com/t.png" {
		t.Fatalf("unexpected listings: %+v", listings)
	}
}

func TestGoogleAdapter_InstantFallbackWithoutKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"AbstractURL":"https://example.com/a","Heading":"Poster","RelatedTopics":[{"FirstURL":"https://example.com/b","Text":"Another"}]}`)
	}))
	defer server.Close()

	adapter := newGoogleTestAdapter("", "", "", WithInstantBase(server.URL), WithGoogleHTTPClient(server.Client()))
	listings, err := adapter.Search(context.Background(), []string{"poster"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(listings) != 2 || listings[0].ProductURL != "https://example.com/a" {
		t.Fatalf("unexpected listings: %+v", listings)
	}
}

func TestGoogleAdapter_ReverseSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("engine"); got != "google_reverse_image" {
			t.Fatalf("unexpected engine %q", got)
		}
		fmt.Fprint(w, `{"image_results":[{"title":"Stolen","link":"https://example.com/x","thumbnail":"https://example.com/x.png","source":"example.com"}]}`)
	}))
	defer server.Close()

	adapter := newGoogleTestAdapter("", "", "serp-key", WithSerpAPIBase(server.URL), WithGoogleHTTPClient(server.Client()))
	listings, err := adapter.ReverseSearch(context.Background(), "https://assets/original.png")
	if err != nil {
		t.Fatalf("ReverseSearch: %v", err)
	}
	if len(listings) != 1 || listings[0].Seller != "example.com" {
		t.Fatalf("unexpected listings: %+v", listings)
	}
}

func TestGoogleAdapter_ReverseSearchRequiresKey(t *testing.T) {
	adapter := newGoogleTestAdapter("", "", "")
	if _, err := adapter.ReverseSearch(context.Background(), "https://assets/original.png"); err == nil {
		t.Fatal("expected error without a SerpAPI key")
	}
}
