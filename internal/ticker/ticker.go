// Package ticker extracts stock symbols from free-form questions and
// classifies the question so the pipeline can scope retrieval.
package ticker

import (
	"regexp"
	"sort"
	"strings"
)

// QueryType classifies what a question is asking for.
type QueryType string

const (
	StockSpecific        QueryType = "stock_specific"
	MultiStockComparison QueryType = "multi_stock_comparison"
	MarketGeneral        QueryType = "market_general"
	NewsRequest          QueryType = "news_request"
	AnalysisRequest      QueryType = "analysis_request"
	InvestmentAdvice     QueryType = "investment_advice"
	GeneralFinancial     QueryType = "general_financial"
)

// Result is the outcome of ticker extraction for one question.
// Tickers is sorted for deterministic downstream behavior.
type Result struct {
	Tickers    []string  `json:"tickers"`
	Confidence float64   `json:"confidence"`
	QueryType  QueryType `json:"query_type"`
}

// commonTickers are large-cap US symbols worth matching bare in text.
// Matching arbitrary 1-5 letter words would flag ordinary English.
var commonTickers = map[string]struct{}{
	"AAPL": {}, "MSFT": {}, "GOOGL": {}, "GOOG": {}, "AMZN": {},
	"TSLA": {}, "META": {}, "NVDA": {}, "BRK.A": {}, "BRK.B": {},
	"JPM": {}, "JNJ": {}, "V": {}, "PG": {}, "UNH": {},
	"HD": {}, "MA": {}, "BAC": {}, "ABBV": {}, "PFE": {},
	"KO": {}, "AVGO": {}, "PEP": {}, "TMO": {}, "COST": {},
	"DIS": {}, "ABT": {}, "DHR": {}, "VZ": {}, "ADBE": {},
	"NFLX": {}, "XOM": {}, "WMT": {}, "CRM": {}, "LLY": {},
	"ORCL": {}, "ACN": {}, "CVX": {}, "MRK": {}, "QCOM": {},
	"TXN": {}, "AMD": {}, "HON": {}, "NKE": {}, "IBM": {},
	"INTC": {}, "BA": {}, "GS": {}, "CAT": {}, "AMGN": {},
	"SBUX": {}, "INTU": {}, "BKNG": {}, "ISRG": {},
}

// companyNames maps recognizable company names to symbols.
var companyNames = map[string]string{
	"APPLE": "AAPL", "MICROSOFT": "MSFT", "GOOGLE": "GOOGL",
	"ALPHABET": "GOOGL", "AMAZON": "AMZN", "TESLA": "TSLA",
	"META": "META", "FACEBOOK": "META", "NVIDIA": "NVDA",
	"BERKSHIRE": "BRK.A", "JPMORGAN": "JPM", "JOHNSON": "JNJ",
	"VISA": "V", "PROCTER": "PG", "GAMBLE": "PG",
	"NETFLIX": "NFLX", "DISNEY": "DIS", "WALMART": "WMT",
	"COCA": "KO", "COLA": "KO", "INTEL": "INTC",
	"BOEING": "BA", "GOLDMAN": "GS", "SACHS": "GS",
	"STARBUCKS": "SBUX", "ADOBE": "ADBE",
}

// financialKeywords nudge extraction confidence upward.
var financialKeywords = []string{
	"stock", "stocks", "market", "trading", "investment", "portfolio",
	"earnings", "revenue", "profit", "loss", "dividend", "shares",
	"price", "valuation", "bull", "bear", "volatility", "analysis",
	"forecast", "outlook",
}

var (
	symbolRe         = regexp.MustCompile(`\b[A-Z]{1,5}\b`)
	explicitSymbolRe = regexp.MustCompile(`\$[A-Z]{1,5}\b`)
)

// Extract finds stock symbols in a question using two strategies:
// bare symbol matches against the common-ticker set, and company name
// lookups. The result carries a confidence heuristic and a query type.
func Extract(query string) Result {
	upper := strings.ToUpper(query)
	found := make(map[string]struct{})

	for _, candidate := range symbolRe.FindAllString(upper, -1) {
		if _, ok := commonTickers[candidate]; ok {
			found[candidate] = struct{}{}
		}
	}

	for name, symbol := range companyNames {
		if strings.Contains(upper, name) {
			found[symbol] = struct{}{}
		}
	}

	tickers := make([]string, 0, len(found))
	for t := range found {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	return Result{
		Tickers:    tickers,
		Confidence: confidence(query, len(tickers)),
		QueryType:  classify(query, len(tickers)),
	}
}

// classify buckets a question by intent. Ticker presence wins; otherwise
// keyword groups are checked in priority order.
func classify(query string, tickerCount int) QueryType {
	switch {
	case tickerCount == 1:
		return StockSpecific
	case tickerCount > 1:
		return MultiStockComparison
	}

	lower := strings.ToLower(query)
	containsAny := func(terms ...string) bool {
		for _, term := range terms {
			if strings.Contains(lower, term) {
				return true
			}
		}
		return false
	}

	switch {
	case containsAny("market", "economy", "sector", "industry", "overall", "general"):
		return MarketGeneral
	case containsAny("news", "latest", "recent", "update", "announcement"):
		return NewsRequest
	case containsAny("analyze", "analysis", "forecast", "predict", "outlook"):
		return AnalysisRequest
	case containsAny("invest", "buy", "sell", "portfolio", "recommend"):
		return InvestmentAdvice
	default:
		return GeneralFinancial
	}
}

// confidence scores extraction quality in [0, 1]:
// 0.4 base when any ticker is found, +0.2 for multiple tickers,
// +0.1 per financial keyword capped at 0.3, +0.2 for an explicit
// $SYMBOL mention.
func confidence(query string, tickerCount int) float64 {
	score := 0.0
	if tickerCount > 0 {
		score += 0.4
		if tickerCount > 1 {
			score += 0.2
		}
	}

	lower := strings.ToLower(query)
	keywordHits := 0.0
	for _, keyword := range financialKeywords {
		if strings.Contains(lower, keyword) {
			keywordHits += 0.1
		}
	}
	score += min(keywordHits, 0.3)

	if explicitSymbolRe.MatchString(query) {
		score += 0.2
	}

	return min(score, 1.0)
}

// Defaults are the symbols used when extraction finds nothing.
func Defaults() []string {
	return []string{"AAPL", "MSFT", "GOOGL", "AMZN", "TSLA", "META", "NVDA"}
}
