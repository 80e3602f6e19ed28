package scraper

import (
	"fmt"
	"strings"

	"github.com/gocolly/colly/v2"

	"github.com/finsight/finsight/internal/validate"
)

// DefaultConstituentsURL is the Wikipedia page listing S&P 500 members.
const DefaultConstituentsURL = "https://en.wikipedia.org/wiki/List_of_S%26P_500_companies"

// FetchSP500 scrapes the S&P 500 constituents table and returns the
// symbols in page order. Rows whose symbol is not a plain 1-5 letter
// ticker (class shares like BRK.B) are skipped; retrieval filtering
// only ever sees plain symbols.
func FetchSP500(pageURL string) ([]string, error) {
	c := colly.NewCollector(
		colly.UserAgent("finsight/1.0 (news research; contact: ops@finsight.dev)"),
	)

	var (
		symbols  []string
		seen     = make(map[string]struct{})
		visitErr error
	)

	c.OnHTML("table#constituents tbody tr", func(e *colly.HTMLElement) {
		symbol := strings.TrimSpace(e.ChildText("td:nth-of-type(1)"))
		if symbol == "" {
			return
		}
		if err := validate.Ticker(symbol); err != nil {
			return
		}
		if _, dup := seen[symbol]; dup {
			return
		}
		seen[symbol] = struct{}{}
		symbols = append(symbols, symbol)
	})

	c.OnError(func(_ *colly.Response, err error) {
		visitErr = err
	})

	if err := c.Visit(pageURL); err != nil {
		return nil, fmt.Errorf("fetching constituents page: %w", err)
	}
	if visitErr != nil {
		return nil, fmt.Errorf("fetching constituents page: %w", visitErr)
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols found at %s, page layout may have changed", pageURL)
	}
	return symbols, nil
}
