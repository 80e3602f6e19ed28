// Package news defines the article model and its PostgreSQL store.
//
// Articles arrive from the scraper without embeddings; the indexer fills
// them in. Retrieval is cosine similarity over pgvector embeddings.
package news

import (
	"time"

	"github.com/google/uuid"
)

// VectorDimension is the embedding width the articles schema stores.
// Must match the embedder's output dimension.
const VectorDimension = 768

// Article is one scraped news item.
type Article struct {
	ID          uuid.UUID
	SourceURL   string
	Headline    string
	Summary     string
	Body        string
	Source      string
	Category    string
	Tickers     []string
	PublishedAt time.Time
	ScrapedAt   time.Time
	Embedding   []float32 // nil until indexed
}

// Scored pairs an article with its similarity to a query embedding.
// Similarity is 1 - cosine distance, in [0, 1] for normalized vectors.
type Scored struct {
	Article
	Similarity float64
}

// EmbedText is the canonical text fed to the embedder for an article.
// Changing this format invalidates stored embeddings.
func (a *Article) EmbedText() string {
	ticker := ""
	if len(a.Tickers) > 0 {
		ticker = a.Tickers[0]
	}
	return "Headline: " + a.Headline + " Summary: " + a.Summary + " Ticker: " + ticker
}
