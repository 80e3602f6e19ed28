// Package indexer embeds stored articles that do not have a vector yet.
package indexer

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/finsight/finsight/internal/log"
	"github.com/finsight/finsight/internal/news"
)

// batchSize bounds one store fetch. Embedding is still one call per
// article; the batch only limits memory.
const batchSize = 32

// EmbedStore is the persistence interface the indexer needs.
type EmbedStore interface {
	ListUnembedded(ctx context.Context, limit int) ([]news.Article, error)
	SetEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error
}

// Embedder turns text into a vector. Satisfied by the Gemini embedder
// adapter in the app package and by the test embedder.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Indexer fills in missing article embeddings.
type Indexer struct {
	store    EmbedStore
	embedder Embedder
	logger   log.Logger
}

// New creates an indexer.
func New(store EmbedStore, embedder Embedder, logger log.Logger) *Indexer {
	return &Indexer{store: store, embedder: embedder, logger: logger}
}

// Run embeds all pending articles sequentially and returns how many were
// indexed. An article that fails to embed is skipped for the rest of the
// run; a run where nothing succeeds returns the last error.
func (ix *Indexer) Run(ctx context.Context) (int, error) {
	indexed := 0
	skipped := make(map[uuid.UUID]struct{})
	var lastErr error

	for {
		if err := ctx.Err(); err != nil {
			return indexed, fmt.Errorf("indexing interrupted: %w", err)
		}

		// Failed articles come back on every fetch; widen the window by
		// the skip count so they cannot starve newer pending articles,
		// and drop them so the loop terminates.
		batch, err := ix.store.ListUnembedded(ctx, batchSize+len(skipped))
		if err != nil {
			return indexed, fmt.Errorf("listing pending articles: %w", err)
		}

		pending := batch[:0]
		for _, a := range batch {
			if _, skip := skipped[a.ID]; !skip {
				pending = append(pending, a)
			}
		}
		if len(pending) == 0 {
			break
		}

		for _, article := range pending {
			embedding, err := ix.embedder.Embed(ctx, article.EmbedText())
			if err != nil {
				if ctx.Err() != nil {
					return indexed, fmt.Errorf("indexing interrupted: %w", ctx.Err())
				}
				ix.logger.Warn("embedding failed", "article_id", article.ID, "error", err)
				skipped[article.ID] = struct{}{}
				lastErr = err
				continue
			}
			if err := ix.store.SetEmbedding(ctx, article.ID, embedding); err != nil {
				ix.logger.Warn("storing embedding failed", "article_id", article.ID, "error", err)
				skipped[article.ID] = struct{}{}
				lastErr = err
				continue
			}
			indexed++
		}
	}

	if indexed == 0 && lastErr != nil {
		return 0, fmt.Errorf("indexing made no progress: %w", lastErr)
	}

	ix.logger.Info("indexing finished", "indexed", indexed, "skipped", len(skipped))
	return indexed, nil
}
