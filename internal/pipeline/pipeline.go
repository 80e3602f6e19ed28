// Package pipeline answers financial questions over the article store:
// validate, extract tickers, embed, retrieve, prompt, parse.
//
// External calls are sequential and context-aware. Transient provider
// errors are retried with bounded backoff; validation failures never
// reach the network.
package pipeline

import (
	"context"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"

	"github.com/finsight/finsight/internal/log"
	"github.com/finsight/finsight/internal/news"
	"github.com/finsight/finsight/internal/ticker"
	"github.com/finsight/finsight/internal/validate"
)

// Config is the per-query configuration. Sessions keep one of these and
// patch it between queries.
type Config struct {
	Model         string `json:"model"`
	AnalysisDepth string `json:"analysis_depth"`
	IncludeNews   bool   `json:"include_news"`
	ResultLimit   int    `json:"result_limit"`
}

// Answer is the structured result of one query.
type Answer struct {
	Summary          string            `json:"summary"`
	KeyInsights      []string          `json:"key_insights,omitempty"`
	CitedArticleIDs  []uuid.UUID       `json:"cited_article_ids,omitempty"`
	MentionedTickers []string          `json:"mentioned_tickers,omitempty"`
	Sentiment        string            `json:"sentiment,omitempty"`
	Confidence       float64           `json:"confidence"`
	QueryType        ticker.QueryType  `json:"query_type"`
	NoContext        bool              `json:"no_context"` // retrieval found nothing
	Degraded         bool              `json:"degraded"`   // structured parse failed, summary is raw text
	GeneratedAt      time.Time         `json:"generated_at"`
}

// SearchStore is the retrieval interface the pipeline needs.
type SearchStore interface {
	Search(ctx context.Context, query []float32, opts ...news.SearchOption) ([]news.Scored, error)
}

// Embedder turns a question into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Pipeline runs queries end to end.
type Pipeline struct {
	g        *genkit.Genkit
	embedder Embedder
	store    SearchStore
	logger   log.Logger
	budget   int
	retry    RetryConfig
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithPromptBudget sets the prompt character budget.
func WithPromptBudget(chars int) Option {
	return func(p *Pipeline) {
		if chars > 0 {
			p.budget = chars
		}
	}
}

// WithRetryConfig overrides retry behavior. Tests use tight intervals.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(p *Pipeline) { p.retry = cfg }
}

// New creates a pipeline.
func New(g *genkit.Genkit, embedder Embedder, store SearchStore, logger log.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		g:        g,
		embedder: embedder,
		store:    store,
		logger:   logger,
		budget:   12000,
		retry:    DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run answers one question under the given configuration.
func (p *Pipeline) Run(ctx context.Context, question string, cfg Config) (*Answer, error) {
	started := time.Now()

	if err := validate.Question(question); err != nil {
		return nil, fail(KindValidation, err)
	}
	question = validate.Sanitize(question)

	extraction := ticker.Extract(question)
	p.logger.Debug("query analyzed",
		"query_type", extraction.QueryType,
		"tickers", extraction.Tickers,
		"extraction_confidence", extraction.Confidence)

	queryVec, err := withRetry(ctx, p.logger, p.retry, "embedding question",
		func(ctx context.Context) ([]float32, error) {
			return p.embedder.Embed(ctx, question)
		})
	if err != nil {
		return nil, fail(KindTransient, err)
	}

	searchOpts := []news.SearchOption{news.WithLimit(cfg.ResultLimit)}
	if len(extraction.Tickers) > 0 {
		searchOpts = append(searchOpts, news.WithTickers(extraction.Tickers))
	}
	if !cfg.IncludeNews {
		searchOpts = append(searchOpts, news.WithExcludeCategory("news"))
	}

	docs, err := withRetry(ctx, p.logger, p.retry, "searching articles",
		func(ctx context.Context) ([]news.Scored, error) {
			return p.store.Search(ctx, queryVec, searchOpts...)
		})
	if err != nil {
		return nil, fail(KindTransient, err)
	}

	var (
		prompt   string
		included []news.Scored
	)
	noContext := len(docs) == 0
	if noContext {
		prompt = buildNoContextPrompt(question)
	} else {
		prompt, included = buildPrompt(question, cfg.AnalysisDepth, docs, p.budget)
	}

	response, err := withRetry(ctx, p.logger, p.retry, "generating answer",
		func(ctx context.Context) (*ai.ModelResponse, error) {
			return genkit.Generate(ctx, p.g,
				ai.WithModelName(cfg.Model),
				ai.WithPrompt(prompt),
			)
		})
	if err != nil {
		return nil, fail(KindTransient, err)
	}

	text := response.Text()
	answer, err := parseAnswer(text, included)
	if err != nil {
		// The model said something, just not in the requested shape.
		p.logger.Warn("structured parse failed, degrading to plain text", "error", err)
		answer = fallbackAnswer(text)
	}

	answer.QueryType = extraction.QueryType
	answer.NoContext = noContext
	answer.GeneratedAt = time.Now().UTC()
	if len(answer.MentionedTickers) == 0 {
		answer.MentionedTickers = extraction.Tickers
	}

	p.logger.Info("query answered",
		"query_type", extraction.QueryType,
		"retrieved", len(docs),
		"in_prompt", len(included),
		"cited", len(answer.CitedArticleIDs),
		"no_context", noContext,
		"degraded", answer.Degraded,
		"elapsed", time.Since(started))
	return answer, nil
}
