// Package scraper fetches the source site's "newest deals" feed. Real
// HTML extraction is out of scope for this service (spec §1); this
// client hits a configurable JSON feed URL instead, so the extraction
// mechanism can be swapped without touching the core pipeline.
package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/promodescuentos/dealwatcher/internal/logger"
	"github.com/promodescuentos/dealwatcher/internal/models"
)

// Scraper yields the newest RawDeal records from the source site.
type Scraper interface {
	FetchNewest(ctx context.Context) ([]models.RawDeal, error)
}

// Client is an HTTP-based Scraper implementation.
type Client struct {
	feedURL        string
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
}

// Config holds optional transport/retry configuration.
type Config struct {
	MaxRetries          int
	RetryDelayBase      time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// NewClient builds a Client that polls feedURL.
func NewClient(feedURL string, timeout time.Duration, cfg Config) *Client {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelayBase := cfg.RetryDelayBase
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns <= 0 {
		maxIdleConns = 100
	}
	maxIdleConnsPerHost := cfg.MaxIdleConnsPerHost
	if maxIdleConnsPerHost <= 0 {
		maxIdleConnsPerHost = 10
	}
	idleConnTimeout := cfg.IdleConnTimeout
	if idleConnTimeout <= 0 {
		idleConnTimeout = 90 * time.Second
	}

	return &Client{
		feedURL: feedURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        maxIdleConns,
				MaxIdleConnsPerHost: maxIdleConnsPerHost,
				IdleConnTimeout:     idleConnTimeout,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}
}

// feedDeal is the wire shape of one entry in the newest-deals feed.
type feedDeal struct {
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Merchant    string  `json:"merchant"`
	ImageURL    string  `json:"image_url"`
	Price       float64 `json:"price"`
	Discount    float64 `json:"discount"`
	Coupon      string  `json:"coupon"`
	Description string  `json:"description"`
	Temperature float64 `json:"temperature"`
	PublishedAt string  `json:"published_at"`
	Expired     bool    `json:"expired"`
}

// FetchNewest retrieves the current "newest deals" page and maps it to
// RawDeal records. Records that fail RawDeal.Validate (no URL, or a
// negative temperature) are logged with their raw fields and skipped
// rather than failing the whole fetch. A record with no temperature
// field decodes as 0° and is kept.
func (c *Client) FetchNewest(ctx context.Context) ([]models.RawDeal, error) {
	resp, err := c.doRequest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch newest deals: %w", err)
	}
	defer resp.Body.Close()

	var feed []feedDeal
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to decode deals feed: %w", err)
	}

	deals := make([]models.RawDeal, 0, len(feed))
	for _, fd := range feed {
		raw := models.RawDeal{
			URL:         fd.URL,
			Title:       fd.Title,
			Merchant:    fd.Merchant,
			ImageURL:    fd.ImageURL,
			Price:       fd.Price,
			Discount:    fd.Discount,
			Coupon:      fd.Coupon,
			Description: fd.Description,
			Temperature: fd.Temperature,
			PublishedAt: parsePublishedAt(fd.PublishedAt),
			Expired:     fd.Expired,
		}
		if err := raw.Validate(); err != nil {
			logger.Warn("scraper: skipping malformed record %+v: %v", fd, err)
			continue // malformed record: never fails the cycle
		}
		deals = append(deals, raw)
	}

	return deals, nil
}

func parsePublishedAt(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Now()
	}
	return t
}

// doRequest performs a GET, making up to maxRetries attempts in total
// with linear backoff between them. Network errors and 5xx responses are
// retried; a 4xx response fails at once. With the default maxRetries of 3
// a single call retries up to twice, not once.
func (c *Client) doRequest(ctx context.Context) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
		default:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if !sleepOrCancel(ctx, c.retryDelayBase*time.Duration(i+1)) {
				return nil, fmt.Errorf("request cancelled during retry: %w", ctx.Err())
			}
			continue
		}

		if resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("server error (status %d)", resp.StatusCode)
			if !sleepOrCancel(ctx, c.retryDelayBase*time.Duration(i+1)) {
				return nil, fmt.Errorf("request cancelled during retry: %w", ctx.Err())
			}
			continue
		}

		if resp.StatusCode >= 400 {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("client error (status %d)", resp.StatusCode)
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

func sleepOrCancel(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
