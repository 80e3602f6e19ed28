package ticker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		wantTickers []string
		wantType    QueryType
	}{
		{
			name:        "bare symbol",
			query:       "How is AAPL performing?",
			wantTickers: []string{"AAPL"},
			wantType:    StockSpecific,
		},
		{
			name:        "lowercase symbol",
			query:       "how is tsla doing",
			wantTickers: []string{"TSLA"},
			wantType:    StockSpecific,
		},
		{
			name:        "company name",
			query:       "What is Microsoft's latest earnings report?",
			wantTickers: []string{"MSFT"},
			wantType:    StockSpecific,
		},
		{
			name:        "multiple symbols",
			query:       "Compare AAPL and GOOGL revenue",
			wantTickers: []string{"AAPL", "GOOGL"},
			wantType:    MultiStockComparison,
		},
		{
			name:        "symbol and company name deduped",
			query:       "Is Apple (AAPL) a buy?",
			wantTickers: []string{"AAPL"},
			wantType:    StockSpecific,
		},
		{
			name:        "dollar prefix",
			query:       "thoughts on $NVDA?",
			wantTickers: []string{"NVDA"},
			wantType:    StockSpecific,
		},
		{
			name:        "unknown symbol ignored",
			query:       "how is ZZZZ trading today",
			wantTickers: []string{},
			wantType:    GeneralFinancial,
		},
		{
			name:        "market general",
			query:       "How is the overall market doing?",
			wantTickers: []string{},
			wantType:    MarketGeneral,
		},
		{
			name:        "news request",
			query:       "any recent announcements I should know about",
			wantTickers: []string{},
			wantType:    NewsRequest,
		},
		{
			name:        "analysis request",
			query:       "forecast for next quarter",
			wantTickers: []string{},
			wantType:    AnalysisRequest,
		},
		{
			name:        "investment advice",
			query:       "should I buy or sell right now",
			wantTickers: []string{},
			wantType:    InvestmentAdvice,
		},
		{
			name:        "general financial fallback",
			query:       "explain compound interest",
			wantTickers: []string{},
			wantType:    GeneralFinancial,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.query)
			assert.Equal(t, tt.wantTickers, got.Tickers)
			assert.Equal(t, tt.wantType, got.QueryType)
		})
	}
}

func TestExtractConfidence(t *testing.T) {
	t.Run("no tickers no keywords", func(t *testing.T) {
		got := Extract("hello there")
		assert.Equal(t, 0.0, got.Confidence)
	})

	t.Run("single ticker", func(t *testing.T) {
		got := Extract("AAPL?")
		assert.InDelta(t, 0.4, got.Confidence, 1e-9)
	})

	t.Run("multiple tickers add bonus", func(t *testing.T) {
		got := Extract("AAPL vs MSFT")
		assert.InDelta(t, 0.6, got.Confidence, 1e-9)
	})

	t.Run("financial keywords capped", func(t *testing.T) {
		got := Extract("stock market earnings revenue dividend analysis")
		assert.InDelta(t, 0.3, got.Confidence, 1e-9)
	})

	t.Run("explicit dollar symbol bonus", func(t *testing.T) {
		// 0.4 ticker + 0.2 explicit
		got := Extract("$AAPL")
		assert.InDelta(t, 0.6, got.Confidence, 1e-9)
	})

	t.Run("clamped at one", func(t *testing.T) {
		got := Extract("$AAPL and $MSFT stock market earnings analysis forecast")
		assert.Equal(t, 1.0, got.Confidence)
	})
}

func TestDefaults(t *testing.T) {
	defaults := Defaults()
	assert.NotEmpty(t, defaults)
	assert.Contains(t, defaults, "AAPL")
}
