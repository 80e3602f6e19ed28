// Package app wires configuration, storage, and the Genkit AI stack into
// the components the commands run.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/finsight/finsight/db"
	"github.com/finsight/finsight/internal/config"
	"github.com/finsight/finsight/internal/indexer"
	"github.com/finsight/finsight/internal/log"
	"github.com/finsight/finsight/internal/news"
	"github.com/finsight/finsight/internal/pipeline"
	"github.com/finsight/finsight/internal/scraper"
	"github.com/finsight/finsight/internal/session"
)

// App holds the initialized components. Call Close to release resources.
type App struct {
	Genkit   *genkit.Genkit
	Sessions *session.Manager
	Articles *news.Store
	Scraper  *scraper.Scraper
	Indexer  *indexer.Indexer

	pool *pgxpool.Pool
}

// Setup creates and initializes the application.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	a := &App{}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := provideDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.pool = pool

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit with gemini provider")
	}
	a.Genkit = g
	logger.Info("initialized Genkit with gemini provider",
		"model", cfg.ModelName, "embedder", cfg.EmbedderModel)

	embedder, err := provideEmbedder(g, cfg)
	if err != nil {
		return nil, err
	}

	a.Articles = news.NewStore(pool, logger)

	pipe := pipeline.New(g, embedder, a.Articles, logger,
		pipeline.WithPromptBudget(cfg.PromptBudget),
		pipeline.WithRetryConfig(provideRetryConfig(cfg)),
	)

	a.Sessions = session.NewManager(pipeline.Config{
		Model:         cfg.ModelName,
		AnalysisDepth: cfg.AnalysisDepth,
		IncludeNews:   cfg.IncludeNews,
		ResultLimit:   cfg.ResultLimit,
	}, pipe, logger)

	source := scraper.NewFinnhubClient(cfg.Scraper.BaseURL, cfg.Scraper.APIKey, cfg.Scraper.RequestsPerMin)
	a.Scraper = scraper.New(source, a.Articles, scraper.Config{
		Tickers:     cfg.Scraper.Tickers,
		WindowDays:  cfg.Scraper.WindowDays,
		FetchBodies: cfg.Scraper.FetchBodies,
	}, logger)

	a.Indexer = indexer.New(a.Articles, embedder, logger)

	return a, nil
}

// Close releases the database pool. Safe to call on a partially
// initialized App.
func (a *App) Close() error {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return nil
}

// provideDBPool runs migrations and creates the connection pool. Every
// connection registers the pgvector types so embeddings scan natively.
func provideDBPool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	return pool, nil
}

// provideRetryConfig maps the configured retry count onto the default
// backoff intervals.
func provideRetryConfig(cfg *config.Config) pipeline.RetryConfig {
	retry := pipeline.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxRetries = cfg.MaxRetries
	}
	return retry
}

// geminiEmbedder adapts the Genkit embedder action to the single-text
// interface the pipeline and indexer consume.
type geminiEmbedder struct {
	embedder ai.Embedder
}

func provideEmbedder(g *genkit.Genkit, cfg *config.Config) (*geminiEmbedder, error) {
	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	return &geminiEmbedder{embedder: embedder}, nil
}

func (e *geminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	})
	if err != nil {
		return nil, fmt.Errorf("generating embedding: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, errors.New("embedding response is empty")
	}
	vec := resp.Embeddings[0].Embedding
	if len(vec) != news.VectorDimension {
		return nil, fmt.Errorf("%w: got %d, want %d",
			news.ErrDimensionMismatch, len(vec), news.VectorDimension)
	}
	return vec, nil
}
