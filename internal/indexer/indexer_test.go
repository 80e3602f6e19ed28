package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight/finsight/internal/log"
	"github.com/finsight/finsight/internal/news"
	"github.com/finsight/finsight/internal/testutil"
)

type fakeStore struct {
	pending    []news.Article
	embeddings map[uuid.UUID][]float32
	listErr    error
}

func newFakeStore(articles ...news.Article) *fakeStore {
	return &fakeStore{pending: articles, embeddings: make(map[uuid.UUID][]float32)}
}

func (f *fakeStore) ListUnembedded(_ context.Context, limit int) ([]news.Article, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []news.Article
	for _, a := range f.pending {
		if _, done := f.embeddings[a.ID]; done {
			continue
		}
		out = append(out, a)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) SetEmbedding(_ context.Context, id uuid.UUID, embedding []float32) error {
	f.embeddings[id] = embedding
	return nil
}

// failingEmbedder fails for texts containing a marker substring.
type failingEmbedder struct {
	inner  *testutil.Embedder
	marker string
}

func (f *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(text, f.marker) {
		return nil, errors.New("embedding service unavailable")
	}
	return f.inner.Embed(ctx, text)
}

func article(headline string) news.Article {
	return news.Article{
		ID:          uuid.New(),
		SourceURL:   "https://example.com/" + headline,
		Headline:    headline,
		Summary:     "summary",
		Tickers:     []string{"AAPL"},
		PublishedAt: time.Now().UTC(),
	}
}

func TestIndexerRun(t *testing.T) {
	store := newFakeStore(article("one"), article("two"), article("three"))
	embedder := testutil.NewEmbedder(news.VectorDimension)

	ix := New(store, embedder, log.NewNop())
	indexed, err := ix.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, indexed)
	assert.Len(t, store.embeddings, 3)
	assert.EqualValues(t, 3, embedder.Calls())
}

func TestIndexerRunNothingPending(t *testing.T) {
	store := newFakeStore()
	ix := New(store, testutil.NewEmbedder(news.VectorDimension), log.NewNop())
	indexed, err := ix.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, indexed)
}

func TestIndexerRunSkipsFailing(t *testing.T) {
	store := newFakeStore(article("good"), article("bad-article"), article("fine"))
	embedder := &failingEmbedder{inner: testutil.NewEmbedder(news.VectorDimension), marker: "bad-article"}

	ix := New(store, embedder, log.NewNop())
	indexed, err := ix.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, indexed)
	assert.Len(t, store.embeddings, 2)
}

func TestIndexerRunDrainsPastFailingBatch(t *testing.T) {
	// A full window of persistently failing articles must not starve the
	// newer ones behind it.
	var articles []news.Article
	for i := 0; i < batchSize; i++ {
		articles = append(articles, article(fmt.Sprintf("bad-article-%d", i)))
	}
	articles = append(articles, article("fresh"))

	store := newFakeStore(articles...)
	embedder := &failingEmbedder{inner: testutil.NewEmbedder(news.VectorDimension), marker: "bad-article"}

	ix := New(store, embedder, log.NewNop())
	indexed, err := ix.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, indexed)
	assert.Contains(t, store.embeddings, articles[batchSize].ID)
}

func TestIndexerRunNoProgress(t *testing.T) {
	store := newFakeStore(article("only"))
	embedder := testutil.NewEmbedder(news.VectorDimension)
	embedder.Err = errors.New("quota exhausted")

	ix := New(store, embedder, log.NewNop())
	indexed, err := ix.Run(context.Background())
	assert.Error(t, err)
	assert.Zero(t, indexed)
}

func TestIndexerRunCanceled(t *testing.T) {
	store := newFakeStore(article("one"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ix := New(store, testutil.NewEmbedder(news.VectorDimension), log.NewNop())
	_, err := ix.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIndexerRunListError(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("connection refused")

	ix := New(store, testutil.NewEmbedder(news.VectorDimension), log.NewNop())
	_, err := ix.Run(context.Background())
	assert.Error(t, err)
}
