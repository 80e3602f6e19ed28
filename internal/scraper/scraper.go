package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/finsight/finsight/internal/log"
	"github.com/finsight/finsight/internal/news"
	"github.com/finsight/finsight/internal/ticker"
)

// ArticleStore is the persistence interface the scraper needs.
type ArticleStore interface {
	Insert(ctx context.Context, a *news.Article) (bool, error)
}

// NewsSource fetches company news for one symbol. Satisfied by
// *FinnhubClient; tests substitute a fake.
type NewsSource interface {
	CompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]FinnhubItem, error)
}

// Stats summarizes one scraper run.
type Stats struct {
	Fetched    int // items returned by the source
	Inserted   int // new articles stored
	Duplicates int // already present (by source URL)
	Failed     int // symbols or items that errored
}

// Config controls a scraper run.
type Config struct {
	Tickers         []string // empty: S&P 500 constituents, then Defaults on failure
	WindowDays      int
	FetchBodies     bool
	ConstituentsURL string // empty: DefaultConstituentsURL
}

// Scraper pulls company news into the article store.
type Scraper struct {
	source NewsSource
	store  ArticleStore
	cfg    Config
	logger log.Logger

	httpc *http.Client // body enrichment only
}

// New creates a scraper.
func New(source NewsSource, store ArticleStore, cfg Config, logger log.Logger) *Scraper {
	return &Scraper{
		source: source,
		store:  store,
		cfg:    cfg,
		logger: logger,
		httpc:  &http.Client{Timeout: 20 * time.Second},
	}
}

// Run fetches news for every resolved symbol over the configured window
// and stores new articles. One failing symbol does not abort the run;
// context cancellation does.
func (s *Scraper) Run(ctx context.Context) (Stats, error) {
	symbols, err := s.resolveSymbols()
	if err != nil {
		return Stats{}, err
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -s.cfg.WindowDays)

	s.logger.Info("scrape starting",
		"symbols", len(symbols),
		"from", from.Format("2006-01-02"),
		"to", to.Format("2006-01-02"))

	var stats Stats
	seen := make(map[string]struct{})
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("scrape interrupted: %w", err)
		}

		items, err := s.source.CompanyNews(ctx, symbol, from, to)
		if err != nil {
			if ctx.Err() != nil {
				return stats, fmt.Errorf("scrape interrupted: %w", ctx.Err())
			}
			s.logger.Warn("fetching news failed", "symbol", symbol, "error", err)
			stats.Failed++
			continue
		}
		stats.Fetched += len(items)

		for _, item := range items {
			if item.URL == "" || strings.TrimSpace(item.Headline) == "" {
				continue
			}
			// The same story often appears under several symbols in one
			// run; the store's unique constraint catches cross-run dupes.
			if _, dup := seen[item.URL]; dup {
				stats.Duplicates++
				continue
			}
			seen[item.URL] = struct{}{}

			article := s.toArticle(symbol, item)
			if s.cfg.FetchBodies {
				body, err := FetchBody(ctx, s.httpc, item.URL)
				if err != nil {
					s.logger.Debug("body fetch failed", "url", item.URL, "error", err)
				} else {
					article.Body = body
				}
			}

			inserted, err := s.store.Insert(ctx, article)
			switch {
			case err != nil:
				s.logger.Warn("storing article failed", "url", item.URL, "error", err)
				stats.Failed++
			case inserted:
				stats.Inserted++
			default:
				stats.Duplicates++
			}
		}
	}

	s.logger.Info("scrape finished",
		"fetched", stats.Fetched,
		"inserted", stats.Inserted,
		"duplicates", stats.Duplicates,
		"failed", stats.Failed)
	return stats, nil
}

// resolveSymbols picks the symbols to scrape: configured list first,
// then S&P 500 constituents, then the built-in defaults if the
// constituents page is unreachable.
func (s *Scraper) resolveSymbols() ([]string, error) {
	if len(s.cfg.Tickers) > 0 {
		return s.cfg.Tickers, nil
	}

	pageURL := s.cfg.ConstituentsURL
	if pageURL == "" {
		pageURL = DefaultConstituentsURL
	}
	symbols, err := FetchSP500(pageURL)
	if err != nil {
		s.logger.Warn("constituents fetch failed, using default symbols", "error", err)
		return ticker.Defaults(), nil
	}
	return symbols, nil
}

// toArticle converts a Finnhub item for the requested symbol.
func (s *Scraper) toArticle(symbol string, item FinnhubItem) *news.Article {
	tickers := []string{symbol}
	if related := strings.TrimSpace(item.Related); related != "" && related != symbol {
		tickers = append(tickers, related)
	}

	category := item.Category
	if category == "" {
		category = "news"
	}

	return &news.Article{
		SourceURL:   item.URL,
		Headline:    strings.TrimSpace(item.Headline),
		Summary:     strings.TrimSpace(item.Summary),
		Source:      item.Source,
		Category:    category,
		Tickers:     tickers,
		PublishedAt: time.Unix(item.Datetime, 0).UTC(),
	}
}
