package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

const (
	// maxBodyLength caps extracted article text. Summaries carry most of
	// the retrieval signal; bodies are supplementary.
	maxBodyLength = 8000

	// maxPageBytes caps how much of an article page is downloaded.
	maxPageBytes = 2 << 20
)

// FetchBody downloads an article page and extracts its readable text.
// Failures are expected (paywalls, bot blocks) and reported as errors for
// the caller to log and move past.
func FetchBody(ctx context.Context, httpc *http.Client, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing article URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported article URL scheme %q", parsed.Scheme)
	}

	reqCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("building article request: %w", err)
	}

	resp, err := httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching article: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching article: status %d", resp.StatusCode)
	}

	page, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("reading article page: %w", err)
	}

	text := extractText(page, parsed)
	if text == "" {
		return "", fmt.Errorf("no readable text at %s", parsed.Host)
	}
	if len(text) > maxBodyLength {
		text = text[:maxBodyLength]
	}
	return text, nil
}

// extractText runs readability first and falls back to joining paragraph
// text when the page defeats content extraction.
func extractText(page []byte, pageURL *url.URL) string {
	article, err := readability.FromReader(bytes.NewReader(page), pageURL)
	if err == nil {
		if text := strings.TrimSpace(article.TextContent); text != "" {
			return text
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return ""
	}
	var parts []string
	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		if t := strings.TrimSpace(sel.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, "\n\n")
}
