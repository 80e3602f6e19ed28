package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompanyNews(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/company-news", r.URL.Path)
		q := r.URL.Query()
		gotQuery = map[string]string{
			"symbol": q.Get("symbol"),
			"from":   q.Get("from"),
			"to":     q.Get("to"),
			"token":  q.Get("token"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"category":"company","datetime":1756300000,"headline":"Apple launches product","id":1,"related":"AAPL","source":"Reuters","summary":"New device announced.","url":"https://example.com/a"},
			{"category":"company","datetime":1756200000,"headline":"Supply chain update","id":2,"related":"AAPL","source":"Bloomberg","summary":"Production shifts.","url":"https://example.com/b"}
		]`))
	}))
	defer srv.Close()

	client := NewFinnhubClient(srv.URL, "test-token", 600)
	from := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)

	items, err := client.CompanyNews(context.Background(), "AAPL", from, to)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Apple launches product", items[0].Headline)
	assert.Equal(t, "AAPL", items[0].Related)

	assert.Equal(t, "AAPL", gotQuery["symbol"])
	assert.Equal(t, "2026-08-20", gotQuery["from"])
	assert.Equal(t, "2026-08-27", gotQuery["to"])
	assert.Equal(t, "test-token", gotQuery["token"])
}

func TestCompanyNewsRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewFinnhubClient(srv.URL, "test-token", 600)
	_, err := client.CompanyNews(context.Background(), "AAPL", time.Now().AddDate(0, 0, -7), time.Now())
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestCompanyNewsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewFinnhubClient(srv.URL, "test-token", 600)
	_, err := client.CompanyNews(context.Background(), "AAPL", time.Now().AddDate(0, 0, -7), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	// The token must never leak into error text.
	assert.NotContains(t, err.Error(), "test-token")
}

func TestCompanyNewsContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	// Limiter with a tiny refill rate blocks the second call until the
	// context gives up.
	client := NewFinnhubClient(srv.URL, "test-token", 1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.CompanyNews(ctx, "AAPL", time.Now().AddDate(0, 0, -1), time.Now())
	require.NoError(t, err)
	_, err = client.CompanyNews(ctx, "MSFT", time.Now().AddDate(0, 0, -1), time.Now())
	assert.Error(t, err)
}
