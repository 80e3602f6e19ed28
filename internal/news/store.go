package news

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/finsight/finsight/internal/log"
)

// ErrDimensionMismatch indicates an embedding whose width does not match
// the schema's vector column.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// DBTX is the database interface the store needs.
// Satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists articles in PostgreSQL.
type Store struct {
	db     DBTX
	logger log.Logger
}

// NewStore creates an article store.
func NewStore(db DBTX, logger log.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Insert stores an article, skipping duplicates by source URL.
// Returns true if the article was inserted, false if it already existed.
func (s *Store) Insert(ctx context.Context, a *Article) (bool, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.ScrapedAt.IsZero() {
		a.ScrapedAt = time.Now().UTC()
	}

	tag, err := s.db.Exec(ctx, `
		INSERT INTO articles (id, source_url, headline, summary, body, source, category, tickers, published_at, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (source_url) DO NOTHING`,
		a.ID, a.SourceURL, a.Headline, a.Summary, a.Body, a.Source, a.Category,
		a.Tickers, a.PublishedAt, a.ScrapedAt,
	)
	if err != nil {
		return false, fmt.Errorf("inserting article: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Get fetches one article by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Article, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, source_url, headline, summary, body, source, category, tickers, published_at, scraped_at
		FROM articles WHERE id = $1`, id)

	var a Article
	err := row.Scan(&a.ID, &a.SourceURL, &a.Headline, &a.Summary, &a.Body,
		&a.Source, &a.Category, &a.Tickers, &a.PublishedAt, &a.ScrapedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("article %s: not found", id)
		}
		return nil, fmt.Errorf("getting article: %w", err)
	}
	return &a, nil
}

// ListUnembedded returns up to limit articles that have no embedding yet,
// oldest scraped first.
func (s *Store) ListUnembedded(ctx context.Context, limit int) ([]Article, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, source_url, headline, summary, body, source, category, tickers, published_at, scraped_at
		FROM articles
		WHERE embedding IS NULL
		ORDER BY scraped_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing unembedded articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		var a Article
		if err := rows.Scan(&a.ID, &a.SourceURL, &a.Headline, &a.Summary, &a.Body,
			&a.Source, &a.Category, &a.Tickers, &a.PublishedAt, &a.ScrapedAt); err != nil {
			return nil, fmt.Errorf("scanning article: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating articles: %w", err)
	}
	return articles, nil
}

// SetEmbedding writes the embedding for an article.
func (s *Store) SetEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	if len(embedding) != VectorDimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), VectorDimension)
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE articles SET embedding = $1 WHERE id = $2`,
		pgvector.NewVector(embedding), id)
	if err != nil {
		return fmt.Errorf("setting embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("article %s: not found", id)
	}
	return nil
}

// SearchOption customizes a similarity search.
type SearchOption func(*SearchOptions)

// SearchOptions is the resolved form of a search's options. Exported so
// test doubles standing in for the store can apply the same options.
type SearchOptions struct {
	Limit           int
	Tickers         []string
	ExcludeCategory string
}

// ApplySearchOptions resolves options against the defaults.
func ApplySearchOptions(opts ...SearchOption) SearchOptions {
	options := SearchOptions{Limit: 5}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// WithLimit caps the number of results (default 5). Zero means no
// results; negative values are ignored.
func WithLimit(n int) SearchOption {
	return func(o *SearchOptions) {
		if n >= 0 {
			o.Limit = n
		}
	}
}

// WithTickers restricts results to articles tagged with any of the
// given tickers. An empty slice leaves the search unrestricted.
func WithTickers(tickers []string) SearchOption {
	return func(o *SearchOptions) { o.Tickers = tickers }
}

// WithExcludeCategory drops articles in the given category.
func WithExcludeCategory(category string) SearchOption {
	return func(o *SearchOptions) { o.ExcludeCategory = category }
}

// Search returns the most similar embedded articles to the query vector,
// ordered by descending cosine similarity.
func (s *Store) Search(ctx context.Context, query []float32, opts ...SearchOption) ([]Scored, error) {
	if len(query) != VectorDimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), VectorDimension)
	}

	options := ApplySearchOptions(opts...)
	if options.Limit == 0 {
		return nil, nil
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT id, source_url, headline, summary, body, source, category, tickers, published_at, scraped_at,
		       1 - (embedding <=> $1) AS similarity
		FROM articles
		WHERE embedding IS NOT NULL`)

	args := []any{pgvector.NewVector(query)}
	if len(options.Tickers) > 0 {
		args = append(args, options.Tickers)
		fmt.Fprintf(&sb, " AND tickers && $%d", len(args))
	}
	if options.ExcludeCategory != "" {
		args = append(args, options.ExcludeCategory)
		fmt.Fprintf(&sb, " AND category <> $%d", len(args))
	}
	args = append(args, options.Limit)
	fmt.Fprintf(&sb, " ORDER BY embedding <=> $1 LIMIT $%d", len(args))

	rows, err := s.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("searching articles: %w", err)
	}
	defer rows.Close()

	var results []Scored
	for rows.Next() {
		var r Scored
		if err := rows.Scan(&r.ID, &r.SourceURL, &r.Headline, &r.Summary, &r.Body,
			&r.Source, &r.Category, &r.Tickers, &r.PublishedAt, &r.ScrapedAt,
			&r.Similarity); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}

	s.logger.Debug("similarity search completed",
		"results", len(results),
		"limit", options.Limit,
		"tickers", options.Tickers)
	return results, nil
}

// Stats summarizes store contents for the /stats endpoint.
type Stats struct {
	Total    int64 `json:"total_articles"`
	Embedded int64 `json:"embedded_articles"`
}

// Count reports how many articles are stored and how many are embedded.
func (s *Store) Count(ctx context.Context) (Stats, error) {
	var st Stats
	row := s.db.QueryRow(ctx,
		`SELECT count(*), count(embedding) FROM articles`)
	if err := row.Scan(&st.Total, &st.Embedded); err != nil {
		return Stats{}, fmt.Errorf("counting articles: %w", err)
	}
	return st, nil
}
