// Package mock provides a deterministic offline embedder for tests and
// local development. Vectors are derived from a hash of the text, so
// identical text always embeds identically, but there is no real semantic
// similarity between different texts.
package mock

import (
	"context"
	"hash/fnv"
	"math"
)

// Embedder generates hash-seeded unit vectors.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder with all-MiniLM-L6-v2 dimensions.
func New() *Embedder {
	return &Embedder{dimensions: 384}
}

// NewWithDimensions creates a mock embedder of the given size.
func NewWithDimensions(dims int) *Embedder {
	return &Embedder{dimensions: dims}
}

// Embed creates a deterministic embedding from text.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))

	// Hash-seeded LCG keeps the vector a pure function of the text.
	seed := h.Sum64()
	embedding := make([]float32, m.dimensions)
	for i := 0; i < m.dimensions; i++ {
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dimensions
}

// normalize converts the embedding to a unit vector.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = v / norm
	}
	return normalized
}
