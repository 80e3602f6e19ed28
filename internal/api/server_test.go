package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight/finsight/internal/log"
	"github.com/finsight/finsight/internal/news"
	"github.com/finsight/finsight/internal/pipeline"
	"github.com/finsight/finsight/internal/session"
)

const (
	testWait = 2 * time.Second
	testTick = 5 * time.Millisecond
)

type fakeAnswerer struct {
	mu      sync.Mutex
	err     error
	block   chan struct{}
	started sync.Once
	running chan struct{}
}

func (f *fakeAnswerer) Run(ctx context.Context, question string, cfg pipeline.Config) (*pipeline.Answer, error) {
	f.mu.Lock()
	block := f.block
	err := f.err
	f.mu.Unlock()

	if block != nil {
		if f.running != nil {
			f.started.Do(func() { close(f.running) })
		}
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &pipeline.Answer{Summary: "Answer to: " + question, Sentiment: "neutral", Confidence: 0.5}, nil
}

type fakeStats struct {
	stats news.Stats
	err   error
}

func (f *fakeStats) Count(context.Context) (news.Stats, error) {
	return f.stats, f.err
}

func newTestServer(t *testing.T, answerer session.Answerer, opts ...func(*ServerConfig)) (*httptest.Server, *session.Manager) {
	t.Helper()

	defaults := pipeline.Config{
		Model:         "gemini-2.5-flash",
		AnalysisDepth: "Standard",
		IncludeNews:   true,
		ResultLimit:   5,
	}
	manager := session.NewManager(defaults, answerer, log.NewNop())

	cfg := ServerConfig{
		Logger:   log.NewNop(),
		Sessions: manager,
		Articles: &fakeStats{stats: news.Stats{Total: 42, Embedded: 40}},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	srv, err := NewServer(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, manager
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeResp[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAnswerer{})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestChatCreatesSession(t *testing.T) {
	ts, manager := newTestServer(t, &fakeAnswerer{})

	resp := postJSON(t, ts.URL+"/api/v1/chat", chatRequest{Question: "How are markets doing?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeResp[chatResponse](t, resp)

	assert.NotEqual(t, uuid.Nil, out.SessionID)
	assert.Equal(t, session.RoleAssistant, out.Turn.Role)
	assert.Equal(t, "Answer to: How are markets doing?", out.Turn.Text)

	// The session is live and holds both turns.
	s := manager.Get(out.SessionID)
	require.NotNil(t, s)
	assert.Len(t, s.Turns(), 2)
}

func TestChatContinuesSession(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAnswerer{})

	first := decodeResp[chatResponse](t, postJSON(t, ts.URL+"/api/v1/chat", chatRequest{Question: "first question"}))
	resp := postJSON(t, ts.URL+"/api/v1/chat", chatRequest{
		SessionID: first.SessionID.String(),
		Question:  "second question",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decodeResp[chatResponse](t, resp)
	assert.Equal(t, first.SessionID, second.SessionID)
}

func TestChatValidationFailure(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAnswerer{})

	resp := postJSON(t, ts.URL+"/api/v1/chat", chatRequest{Question: "hi"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	out := decodeResp[errorResponse](t, resp)
	assert.Equal(t, "invalid_question", out.Error)
}

func TestChatTransientFailure(t *testing.T) {
	answerer := &fakeAnswerer{err: &pipeline.Failure{Kind: pipeline.KindTransient, Err: errors.New("model unavailable")}}
	ts, _ := newTestServer(t, answerer)

	resp := postJSON(t, ts.URL+"/api/v1/chat", chatRequest{Question: "How are markets doing?"})
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	out := decodeResp[errorResponse](t, resp)
	assert.Equal(t, "upstream_error", out.Error)
}

func TestChatBusyConflict(t *testing.T) {
	block := make(chan struct{})
	answerer := &fakeAnswerer{block: block, running: make(chan struct{})}
	ts, manager := newTestServer(t, answerer)

	s := manager.Create()

	done := make(chan struct{})
	go func() {
		defer close(done)
		resp := postJSON(t, ts.URL+"/api/v1/chat", chatRequest{
			SessionID: s.ID.String(),
			Question:  "slow question",
		})
		_ = resp.Body.Close()
	}()

	select {
	case <-answerer.running:
	case <-time.After(testWait):
		t.Fatal("first request never reached the answerer")
	}

	// Second submit against the same session while the first is in
	// flight must get a conflict, not queue.
	resp := postJSON(t, ts.URL+"/api/v1/chat", chatRequest{
		SessionID: s.ID.String(),
		Question:  "impatient question",
	})
	out := decodeResp[errorResponse](t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "busy", out.Error)

	close(block)
	<-done
}

func TestChatBadSessionID(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAnswerer{})

	resp := postJSON(t, ts.URL+"/api/v1/chat", chatRequest{SessionID: "not-a-uuid", Question: "How are markets doing?"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestChatMalformedBody(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAnswerer{})

	resp, err := http.Post(ts.URL+"/api/v1/chat", "application/json", bytes.NewReader([]byte("{broken")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestSessionLifecycle(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAnswerer{})

	created := decodeResp[sessionResponse](t, postJSON(t, ts.URL+"/api/v1/sessions", struct{}{}))
	base := fmt.Sprintf("%s/api/v1/sessions/%s", ts.URL, created.SessionID)

	t.Run("get", func(t *testing.T) {
		resp, err := http.Get(base)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decodeResp[sessionResponse](t, resp)
		assert.Equal(t, created.SessionID, got.SessionID)
		assert.Equal(t, "Standard", got.Config.AnalysisDepth)
	})

	t.Run("patch config", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPatch, base+"/config",
			bytes.NewReader([]byte(`{"analysis_depth": "Detailed", "mystery": true}`)))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		cfg := decodeResp[pipeline.Config](t, resp)
		assert.Equal(t, "Detailed", cfg.AnalysisDepth)
	})

	t.Run("patch config invalid value", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPatch, base+"/config",
			bytes.NewReader([]byte(`{"result_limit": 9999}`)))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		out := decodeResp[errorResponse](t, resp)
		assert.Equal(t, "invalid_configuration", out.Error)
	})

	t.Run("export and import", func(t *testing.T) {
		resp, err := http.Get(base + "/export")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		_ = resp.Body.Close()

		// Import into a fresh session.
		other := decodeResp[sessionResponse](t, postJSON(t, ts.URL+"/api/v1/sessions", struct{}{}))
		importURL := fmt.Sprintf("%s/api/v1/sessions/%s/import", ts.URL, other.SessionID)
		resp, err = http.Post(importURL, "application/json", bytes.NewReader(raw))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		imported := decodeResp[sessionResponse](t, resp)
		assert.Equal(t, "Detailed", imported.Config.AnalysisDepth)
	})

	t.Run("import rejects bad snapshot", func(t *testing.T) {
		resp, err := http.Post(base+"/import", "application/json",
			bytes.NewReader([]byte(`{"version": 99}`)))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("reset", func(t *testing.T) {
		resp, err := http.Post(base+"/reset", "application/json", nil)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decodeResp[sessionResponse](t, resp)
		assert.Empty(t, got.Turns)
		// Reset restores the default configuration.
		assert.Equal(t, "Standard", got.Config.AnalysisDepth)
	})
}

func TestSessionNotFound(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAnswerer{})

	resp, err := http.Get(ts.URL + "/api/v1/sessions/" + uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestStats(t *testing.T) {
	ts, manager := newTestServer(t, &fakeAnswerer{})
	manager.Create()

	resp, err := http.Get(ts.URL + "/api/v1/stats")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeResp[statsResponse](t, resp)
	assert.EqualValues(t, 42, out.Articles.Total)
	assert.EqualValues(t, 40, out.Articles.Embedded)
	assert.Equal(t, 1, out.Sessions)
}

func TestRateLimit(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAnswerer{}, func(cfg *ServerConfig) {
		cfg.RateBurst = 2
	})

	var got429 bool
	for i := 0; i < 5; i++ {
		resp, err := http.Get(ts.URL + "/api/v1/stats")
		require.NoError(t, err)
		if resp.StatusCode == http.StatusTooManyRequests {
			got429 = true
			assert.Equal(t, "1", resp.Header.Get("Retry-After"))
		}
		_ = resp.Body.Close()
	}
	assert.True(t, got429, "expected a 429 once the burst was spent")
}

func TestRequestIDEchoed(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAnswerer{})

	resp, err := http.Get(ts.URL + "/api/v1/stats")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestNewServerRequiresDependencies(t *testing.T) {
	_, err := NewServer(ServerConfig{Articles: &fakeStats{}})
	assert.Error(t, err)

	_, err = NewServer(ServerConfig{Sessions: session.NewManager(pipeline.Config{}, &fakeAnswerer{}, log.NewNop())})
	assert.Error(t, err)
}
