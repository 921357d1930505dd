package scraper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFetchNewest_ParsesValidFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]feedDeal{
			{
				URL: "https://example.com/d1", Title: "Deal one", Merchant: "Acme",
				Price: 99.99, Discount: 30, Temperature: 55,
				PublishedAt: time.Now().Format(time.RFC3339),
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second, Config{})
	deals, err := c.FetchNewest(context.Background())
	if err != nil {
		t.Fatalf("FetchNewest: %v", err)
	}
	if len(deals) != 1 {
		t.Fatalf("got %d deals, want 1", len(deals))
	}
	if deals[0].URL != "https://example.com/d1" {
		t.Errorf("URL = %q", deals[0].URL)
	}
	if deals[0].Temperature != 55 {
		t.Errorf("Temperature = %v, want 55", deals[0].Temperature)
	}
}

func TestFetchNewest_SkipsMalformedRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]feedDeal{
			{URL: "", Title: "missing url", Temperature: 10, PublishedAt: time.Now().Format(time.RFC3339)},
			{URL: "https://example.com/ok", Title: "ok deal", Temperature: 20, PublishedAt: time.Now().Format(time.RFC3339)},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second, Config{})
	deals, err := c.FetchNewest(context.Background())
	if err != nil {
		t.Fatalf("FetchNewest: %v", err)
	}
	if len(deals) != 1 {
		t.Fatalf("got %d deals, want 1 (malformed record skipped)", len(deals))
	}
	if deals[0].URL != "https://example.com/ok" {
		t.Errorf("URL = %q", deals[0].URL)
	}
}

func TestFetchNewest_RetriesOn5xxThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode([]feedDeal{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second, Config{RetryDelayBase: time.Millisecond})
	_, err := c.FetchNewest(context.Background())
	if err != nil {
		t.Fatalf("FetchNewest: %v", err)
	}
	if attempts < 2 {
		t.Errorf("attempts = %d, want at least 2", attempts)
	}
}

func TestFetchNewest_FailsFastOn4xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second, Config{RetryDelayBase: time.Millisecond})
	_, err := c.FetchNewest(context.Background())
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %v, want mention of 404", err)
	}
}

func TestFetchNewest_RespectsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_ = json.NewEncoder(w).Encode([]feedDeal{})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	c := NewClient(srv.URL, 2*time.Second, Config{})
	_, err := c.FetchNewest(ctx)
	if err == nil {
		t.Fatal("expected error due to context cancellation")
	}
}
