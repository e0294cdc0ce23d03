package memory

import (
	"context"
	"time"
)

// EntryType namespaces indexed entries so conversation recall and learned
// pattern recall can be queried separately.
type EntryType string

const (
	// EntryConversation is an embedded user/agent exchange.
	EntryConversation EntryType = "conversation"

	// EntryPattern is an explicitly added learned pattern
	// (e.g. "user_preference", "error_recovery").
	EntryPattern EntryType = "pattern"
)

// Entry is the unit indexed by semantic memory: the source text, its
// embedding, and a flat metadata mapping. Entries are never mutated, only
// inserted or removed wholesale, and each entry carries exactly one
// embedding computed from Text.
type Entry struct {
	ID        string
	Type      EntryType
	Text      string
	Metadata  map[string]string
	Embedding []float32
	CreatedAt time.Time
}

// Result pairs a retrieved entry with its cosine distance from the query.
//
// Distance is 1 - cosine similarity, so it lies in [0, 2]: 0 means the
// texts embedded identically, 2 means opposite. Callers should rely on the
// relative ordering only; absolute values shift when the embedding
// function changes.
type Result struct {
	Entry    Entry
	Distance float32
}

// Store is the vector storage backend. It owns the persisted index
// exclusively: the index survives restarts and reloads persisted
// embeddings without re-embedding the source text.
//
// The SDK ships one implementation, memory/store/chromem.
type Store interface {
	// Add inserts an entry whose Embedding is already set.
	Add(ctx context.Context, e Entry) error

	// Query returns up to k entries of the given type nearest to the
	// embedding, ascending by distance, restricted to entries whose
	// metadata matches every pair in filter. An empty index yields an
	// empty result, not an error.
	Query(ctx context.Context, typ EntryType, embedding []float32, k int, filter map[string]string) ([]Result, error)

	// Remove deletes the entry with the given id. Removing an unknown id
	// is not an error.
	Remove(ctx context.Context, typ EntryType, id string) error

	// Count returns the number of entries of the given type.
	Count(typ EntryType) int

	// Close releases resources.
	Close() error
}

// Embedder converts text to a fixed-length vector. It must be a pure
// function of the text: the same input always produces the same vector.
//
// Implementations: mock (deterministic, offline), openai (remote API),
// onnx (local all-MiniLM-L6-v2, behind the onnx build tag).
type Embedder interface {
	// Embed converts a single text to its embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}
