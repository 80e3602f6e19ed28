// Package session holds per-conversation state: the turn history, the
// effective query configuration, and usage metrics. One query may be in
// flight per session; a submit while busy is rejected, not queued.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finsight/finsight/internal/log"
	"github.com/finsight/finsight/internal/pipeline"
	"github.com/finsight/finsight/internal/validate"
)

// ErrBusy indicates a query is already in flight for this session.
var ErrBusy = errors.New("session busy: a query is already in flight")

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleError     = "error"
)

// Answerer runs one query. Satisfied by *pipeline.Pipeline.
type Answerer interface {
	Run(ctx context.Context, question string, cfg pipeline.Config) (*pipeline.Answer, error)
}

// FailureRecord captures why an error turn exists.
type FailureRecord struct {
	Kind    pipeline.Kind `json:"kind"`
	Message string        `json:"message"`
}

// Turn is one entry in a session's history.
type Turn struct {
	ID        uuid.UUID        `json:"id"`
	Role      string           `json:"role"`
	Text      string           `json:"text,omitempty"`
	Answer    *pipeline.Answer `json:"answer,omitempty"`
	Failure   *FailureRecord   `json:"failure,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Metrics tracks session usage. AvgLatencyMS is a running average over
// successful queries.
type Metrics struct {
	Queries      int     `json:"queries"`
	Failures     int     `json:"failures"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
}

// Session is one conversation. All methods are safe for concurrent use.
type Session struct {
	ID uuid.UUID

	mu        sync.Mutex
	busy      bool
	cfg       pipeline.Config
	defaults  pipeline.Config
	turns     []Turn
	metrics   Metrics
	createdAt time.Time
	updatedAt time.Time

	answerer Answerer
	logger   log.Logger
}

func newSession(id uuid.UUID, cfg pipeline.Config, answerer Answerer, logger log.Logger) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		cfg:       cfg,
		defaults:  cfg,
		createdAt: now,
		updatedAt: now,
		answerer:  answerer,
		logger:    logger,
	}
}

// Config returns the session's current query configuration.
func (s *Session) Config() pipeline.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// PatchConfig applies a configuration patch. Rejected patches leave the
// configuration untouched.
func (s *Session) PatchConfig(patch map[string]any) (pipeline.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged, err := MergeConfig(s.cfg, patch, s.logger)
	if err != nil {
		return s.cfg, &pipeline.Failure{Kind: pipeline.KindConfiguration, Err: err}
	}
	s.cfg = merged
	s.updatedAt = time.Now().UTC()
	return s.cfg, nil
}

// Turns returns a copy of the turn history.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]Turn, len(s.turns))
	copy(cp, s.turns)
	return cp
}

// Metrics returns a copy of the session metrics.
func (s *Session) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// Submit runs one query and appends the resulting turns. While a query
// is in flight further submits return ErrBusy immediately. The user turn
// is always recorded; failures append an error turn and are also
// returned so the transport can map them to a status. Invalid questions
// are rejected here, before the answerer is ever invoked.
func (s *Session) Submit(ctx context.Context, question string) (*Turn, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	cfg := s.cfg
	now := time.Now().UTC()
	s.turns = append(s.turns, Turn{
		ID:        uuid.New(),
		Role:      RoleUser,
		Text:      question,
		CreatedAt: now,
	})
	s.metrics.Queries++

	if verr := validate.Question(question); verr != nil {
		failure := &pipeline.Failure{Kind: pipeline.KindValidation, Err: verr}
		s.metrics.Failures++
		s.turns = append(s.turns, Turn{
			ID:   uuid.New(),
			Role: RoleError,
			Failure: &FailureRecord{
				Kind:    pipeline.KindValidation,
				Message: failure.Error(),
			},
			CreatedAt: now,
		})
		s.updatedAt = now
		s.mu.Unlock()
		return nil, failure
	}

	s.busy = true
	s.mu.Unlock()

	started := time.Now()
	answer, err := s.answerer.Run(ctx, question, cfg)
	elapsed := time.Since(started)

	s.mu.Lock()
	defer func() {
		s.busy = false
		s.updatedAt = time.Now().UTC()
		s.mu.Unlock()
	}()

	if err != nil {
		s.metrics.Failures++
		turn := Turn{
			ID:   uuid.New(),
			Role: RoleError,
			Failure: &FailureRecord{
				Kind:    pipeline.KindOf(err),
				Message: err.Error(),
			},
			CreatedAt: time.Now().UTC(),
		}
		s.turns = append(s.turns, turn)
		s.logger.Warn("query failed",
			"session_id", s.ID,
			"kind", turn.Failure.Kind,
			"error", err)
		return nil, err
	}

	// Running average over successful queries only.
	successes := s.metrics.Queries - s.metrics.Failures
	latency := float64(elapsed.Milliseconds())
	s.metrics.AvgLatencyMS += (latency - s.metrics.AvgLatencyMS) / float64(successes)

	turn := Turn{
		ID:        uuid.New(),
		Role:      RoleAssistant,
		Text:      answer.Summary,
		Answer:    answer,
		CreatedAt: time.Now().UTC(),
	}
	s.turns = append(s.turns, turn)
	return &turn, nil
}

// Reset clears the turn history and metrics and restores the default
// configuration.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
	s.metrics = Metrics{}
	s.cfg = s.defaults
	s.updatedAt = time.Now().UTC()
}
