// Package scraper collects company news from Finnhub and stores it for
// indexing. The free API tier allows 30 requests per minute; the client
// paces itself with a token bucket rather than reacting to 429s.
package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited indicates Finnhub rejected a request with 429 even after
// client-side pacing.
var ErrRateLimited = errors.New("rate limited by Finnhub")

// FinnhubItem is one article as Finnhub returns it.
type FinnhubItem struct {
	Category string `json:"category"`
	Datetime int64  `json:"datetime"` // unix seconds
	Headline string `json:"headline"`
	ID       int64  `json:"id"`
	Related  string `json:"related"` // ticker symbol
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

// FinnhubClient calls the Finnhub REST API with client-side rate limiting.
type FinnhubClient struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	limiter *rate.Limiter
}

// NewFinnhubClient creates a client. requestsPerMin should match the
// account tier; the burst of 1 keeps requests evenly spaced.
func NewFinnhubClient(baseURL, apiKey string, requestsPerMin int) *FinnhubClient {
	return &FinnhubClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMin)/60.0), 1),
	}
}

// CompanyNews fetches news for one symbol over a date range (inclusive).
// Blocks on the rate limiter before sending; honors ctx cancellation.
func (c *FinnhubClient) CompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]FinnhubItem, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("from", from.Format("2006-01-02"))
	q.Set("to", to.Format("2006-01-02"))
	q.Set("token", c.apiKey)

	reqURL := c.baseURL + "/company-news?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching company news for %s: %w", symbol, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: symbol %s", ErrRateLimited, symbol)
	case resp.StatusCode != http.StatusOK:
		// Drain a little of the body for the error; token never appears
		// in messages.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("company news for %s: status %d: %s", symbol, resp.StatusCode, body)
	}

	var items []FinnhubItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decoding company news for %s: %w", symbol, err)
	}
	return items, nil
}
