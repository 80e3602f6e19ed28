package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"sync/atomic"
)

// Embedder produces deterministic unit vectors from input text, so tests
// get stable similarity orderings without a network call. The same text
// always yields the same vector.
type Embedder struct {
	Dimension int
	Err       error // returned on every call when set

	calls atomic.Int64
}

// NewEmbedder returns a deterministic embedder of the given dimension.
func NewEmbedder(dimension int) *Embedder {
	return &Embedder{Dimension: dimension}
}

// Embed returns a unit vector derived from the text's FNV hash.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.Err != nil {
		return nil, e.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, e.Dimension)
	var norm float64
	for i := range vec {
		// xorshift keeps each component reproducible from the seed.
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		v := float64(int64(seed%2000)-1000) / 1000.0
		vec[i] = float32(v)
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

// Calls reports how many times Embed was invoked.
func (e *Embedder) Calls() int64 {
	return e.calls.Load()
}
