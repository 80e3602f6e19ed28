package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/finsight/finsight/internal/log"
	"github.com/finsight/finsight/internal/pipeline"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	testWait = 2 * time.Second
	testTick = 5 * time.Millisecond
)

// fakeAnswerer returns canned answers and can block to simulate an
// in-flight query.
type fakeAnswerer struct {
	mu      sync.Mutex
	answer  *pipeline.Answer
	err     error
	block   chan struct{} // when set, Run waits for it to close
	gotCfgs []pipeline.Config
}

func (f *fakeAnswerer) Run(ctx context.Context, question string, cfg pipeline.Config) (*pipeline.Answer, error) {
	f.mu.Lock()
	f.gotCfgs = append(f.gotCfgs, cfg)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

func defaults() pipeline.Config {
	return pipeline.Config{
		Model:         "gemini-2.5-flash",
		AnalysisDepth: "Standard",
		IncludeNews:   true,
		ResultLimit:   5,
	}
}

func okAnswer() *pipeline.Answer {
	return &pipeline.Answer{Summary: "All quiet.", Sentiment: "neutral", Confidence: 0.6}
}

func TestSubmitSuccess(t *testing.T) {
	answerer := &fakeAnswerer{answer: okAnswer()}
	m := NewManager(defaults(), answerer, log.NewNop())
	s := m.Create()

	turn, err := s.Submit(context.Background(), "How are markets doing?")
	require.NoError(t, err)
	assert.Equal(t, RoleAssistant, turn.Role)
	assert.Equal(t, "All quiet.", turn.Text)
	require.NotNil(t, turn.Answer)

	turns := s.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, RoleUser, turns[0].Role)
	assert.Equal(t, "How are markets doing?", turns[0].Text)
	assert.Equal(t, RoleAssistant, turns[1].Role)

	metrics := s.Metrics()
	assert.Equal(t, 1, metrics.Queries)
	assert.Equal(t, 0, metrics.Failures)
	assert.GreaterOrEqual(t, metrics.AvgLatencyMS, 0.0)

	// The session's configuration reached the answerer.
	require.Len(t, answerer.gotCfgs, 1)
	assert.Equal(t, defaults(), answerer.gotCfgs[0])
}

func TestSubmitInvalidQuestionSkipsAnswerer(t *testing.T) {
	answerer := &fakeAnswerer{answer: okAnswer()}
	m := NewManager(defaults(), answerer, log.NewNop())
	s := m.Create()

	overlong := strings.Repeat("x", 2000)
	_, err := s.Submit(context.Background(), overlong)
	require.Error(t, err)
	assert.Equal(t, pipeline.KindValidation, pipeline.KindOf(err))

	// The rejection happened in the session layer.
	assert.Empty(t, answerer.gotCfgs)

	turns := s.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, RoleUser, turns[0].Role)
	assert.Equal(t, RoleError, turns[1].Role)
	require.NotNil(t, turns[1].Failure)
	assert.Equal(t, pipeline.KindValidation, turns[1].Failure.Kind)

	metrics := s.Metrics()
	assert.Equal(t, 1, metrics.Queries)
	assert.Equal(t, 1, metrics.Failures)

	// The session is not left busy.
	_, err = s.Submit(context.Background(), "How are markets doing?")
	require.NoError(t, err)
}

func TestSubmitFailureRecordsErrorTurn(t *testing.T) {
	answerer := &fakeAnswerer{err: &pipeline.Failure{Kind: pipeline.KindTransient, Err: errors.New("upstream unavailable")}}
	m := NewManager(defaults(), answerer, log.NewNop())
	s := m.Create()

	_, err := s.Submit(context.Background(), "How are markets doing?")
	require.Error(t, err)

	turns := s.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, RoleError, turns[1].Role)
	require.NotNil(t, turns[1].Failure)
	assert.Equal(t, pipeline.KindTransient, turns[1].Failure.Kind)

	metrics := s.Metrics()
	assert.Equal(t, 1, metrics.Queries)
	assert.Equal(t, 1, metrics.Failures)
}

func TestSubmitWhileBusyRejected(t *testing.T) {
	block := make(chan struct{})
	answerer := &fakeAnswerer{answer: okAnswer(), block: block}
	m := NewManager(defaults(), answerer, log.NewNop())
	s := m.Create()

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), "first question")
		done <- err
	}()

	// Wait until the first query is in flight.
	require.Eventually(t, func() bool {
		answerer.mu.Lock()
		defer answerer.mu.Unlock()
		return len(answerer.gotCfgs) == 1
	}, testWait, testTick)

	_, err := s.Submit(context.Background(), "second question")
	assert.ErrorIs(t, err, ErrBusy)

	close(block)
	require.NoError(t, <-done)

	// The rejected submit left no trace in the history.
	turns := s.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "first question", turns[0].Text)
	assert.Equal(t, 1, s.Metrics().Queries)

	// The session accepts queries again.
	_, err = s.Submit(context.Background(), "third question")
	require.NoError(t, err)
}

func TestPatchConfig(t *testing.T) {
	m := NewManager(defaults(), &fakeAnswerer{answer: okAnswer()}, log.NewNop())
	s := m.Create()

	cfg, err := s.PatchConfig(map[string]any{
		"analysis_depth": "Detailed",
		"result_limit":   float64(10), // JSON numbers arrive as float64
		"unknown_knob":   "ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, "Detailed", cfg.AnalysisDepth)
	assert.Equal(t, 10, cfg.ResultLimit)
	assert.Equal(t, "gemini-2.5-flash", cfg.Model)
}

func TestPatchConfigInvalidValueRejectsWholePatch(t *testing.T) {
	m := NewManager(defaults(), &fakeAnswerer{answer: okAnswer()}, log.NewNop())
	s := m.Create()

	_, err := s.PatchConfig(map[string]any{
		"analysis_depth": "Detailed",
		"result_limit":   999,
	})
	require.Error(t, err)
	assert.Equal(t, pipeline.KindConfiguration, pipeline.KindOf(err))

	// Nothing was applied, not even the valid key.
	assert.Equal(t, defaults(), s.Config())
}

func TestReset(t *testing.T) {
	m := NewManager(defaults(), &fakeAnswerer{answer: okAnswer()}, log.NewNop())
	s := m.Create()

	_, err := s.Submit(context.Background(), "How are markets doing?")
	require.NoError(t, err)
	_, err = s.PatchConfig(map[string]any{"analysis_depth": "Basic"})
	require.NoError(t, err)

	s.Reset()
	assert.Empty(t, s.Turns())
	assert.Equal(t, Metrics{}, s.Metrics())
	// Reset restores the defaults, dropping the patched depth.
	assert.Equal(t, defaults().AnalysisDepth, s.Config().AnalysisDepth)
}

func TestManagerGetOrCreate(t *testing.T) {
	m := NewManager(defaults(), &fakeAnswerer{answer: okAnswer()}, log.NewNop())

	s1 := m.GetOrCreate(uuid.Nil)
	require.NotNil(t, s1)
	assert.Equal(t, 1, m.Count())

	assert.Same(t, s1, m.GetOrCreate(s1.ID))
	assert.Equal(t, 1, m.Count())

	s2 := m.GetOrCreate(uuid.New()) // unknown ID gets a fresh session
	assert.NotEqual(t, s1.ID, s2.ID)
	assert.Equal(t, 2, m.Count())

	m.Remove(s1.ID)
	assert.Nil(t, m.Get(s1.ID))
	assert.Equal(t, 1, m.Count())
}

func TestExportImportRoundTrip(t *testing.T) {
	answerer := &fakeAnswerer{answer: okAnswer()}
	m := NewManager(defaults(), answerer, log.NewNop())
	src := m.Create()

	_, err := src.Submit(context.Background(), "How are markets doing?")
	require.NoError(t, err)
	_, err = src.PatchConfig(map[string]any{"analysis_depth": "Detailed"})
	require.NoError(t, err)

	data, err := json.Marshal(src.Export())
	require.NoError(t, err)

	dst := m.Create()
	require.NoError(t, dst.Import(data))

	assert.Equal(t, src.Config(), dst.Config())
	assert.Equal(t, src.Turns(), dst.Turns())
	assert.Equal(t, src.Metrics(), dst.Metrics())

	// Importing the same snapshot again is idempotent.
	require.NoError(t, dst.Import(data))
	assert.Equal(t, src.Turns(), dst.Turns())
}

func TestImportRejectsBadSnapshots(t *testing.T) {
	m := NewManager(defaults(), &fakeAnswerer{answer: okAnswer()}, log.NewNop())

	valid := m.Create().Export()

	cases := []struct {
		name   string
		mutate func(*Snapshot)
	}{
		{name: "wrong version", mutate: func(s *Snapshot) { s.Version = 99 }},
		{name: "empty model", mutate: func(s *Snapshot) { s.Config.Model = "" }},
		{name: "bad analysis depth", mutate: func(s *Snapshot) { s.Config.AnalysisDepth = "extreme" }},
		{name: "bad result limit", mutate: func(s *Snapshot) { s.Config.ResultLimit = 0 }},
		{name: "unknown turn role", mutate: func(s *Snapshot) {
			s.Turns = []Turn{{ID: uuid.New(), Role: "system"}}
		}},
		{name: "error turn without failure", mutate: func(s *Snapshot) {
			s.Turns = []Turn{{ID: uuid.New(), Role: RoleError}}
		}},
		{name: "inconsistent metrics", mutate: func(s *Snapshot) {
			s.Metrics = Metrics{Queries: 1, Failures: 2}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := m.Create()
			_, err := s.PatchConfig(map[string]any{"analysis_depth": "Basic"})
			require.NoError(t, err)
			before := s.Config()

			snap := valid
			tc.mutate(&snap)
			data, err := json.Marshal(snap)
			require.NoError(t, err)

			err = s.Import(data)
			require.Error(t, err)
			assert.Equal(t, pipeline.KindConfiguration, pipeline.KindOf(err))

			// Live state untouched on rejected import.
			assert.Equal(t, before, s.Config())
		})
	}
}

func TestImportMalformedJSON(t *testing.T) {
	m := NewManager(defaults(), &fakeAnswerer{answer: okAnswer()}, log.NewNop())
	s := m.Create()

	err := s.Import([]byte("{not json"))
	require.Error(t, err)
	assert.Equal(t, pipeline.KindConfiguration, pipeline.KindOf(err))
}

func TestImportWhileBusyRejected(t *testing.T) {
	block := make(chan struct{})
	answerer := &fakeAnswerer{answer: okAnswer(), block: block}
	m := NewManager(defaults(), answerer, log.NewNop())
	s := m.Create()

	data, err := json.Marshal(s.Export())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), "blocking question")
		done <- err
	}()
	require.Eventually(t, func() bool {
		answerer.mu.Lock()
		defer answerer.mu.Unlock()
		return len(answerer.gotCfgs) == 1
	}, testWait, testTick)

	assert.ErrorIs(t, s.Import(data), ErrBusy)

	close(block)
	require.NoError(t, <-done)
}
