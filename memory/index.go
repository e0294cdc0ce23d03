package memory

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/becomeliminal/recall-go-sdk/core"
)

// embedCacheSize bounds the text->vector memoization cache. Voice sessions
// repeat short utterances often, and the coordinator queries with the same
// text it just indexed, so the cache saves real embedder calls.
const embedCacheSize = 32 << 20 // 32 MiB of vectors

// Index is the semantic memory front: it embeds text through the
// configured Embedder and maintains the similarity-searchable Store.
// All methods are safe for concurrent use; the store serializes its own
// mutations.
type Index struct {
	store    Store
	embedder Embedder
	cache    *ristretto.Cache
	logger   *zap.Logger
}

// NewIndex creates an Index over the given store and embedder.
func NewIndex(store Store, embedder Embedder, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     embedCacheSize,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Index{
		store:    store,
		embedder: embedder,
		cache:    cache,
		logger:   logger.With(zap.String("component", "memory")),
	}, nil
}

// Add embeds text and inserts it into the index, returning the entry id.
// Insertion is all-or-nothing: if embedding fails, a core.EmbeddingError
// is returned and nothing is stored.
func (ix *Index) Add(ctx context.Context, text string, metadata map[string]string, typ EntryType) (string, error) {
	if text == "" {
		return "", &core.ValidationError{Field: "text", Reason: "must not be empty"}
	}

	embedding, err := ix.embed(ctx, text)
	if err != nil {
		return "", &core.EmbeddingError{Cause: err}
	}

	entry := Entry{
		ID:        uuid.New().String(),
		Type:      typ,
		Text:      text,
		Metadata:  cloneMetadata(metadata),
		Embedding: embedding,
		CreatedAt: time.Now().UTC(),
	}
	if err := ix.store.Add(ctx, entry); err != nil {
		return "", err
	}

	ix.logger.Debug("indexed entry",
		zap.String("id", entry.ID),
		zap.String("type", string(typ)))
	return entry.ID, nil
}

// Query embeds queryText and returns the k nearest entries of the given
// type, ascending by distance. sessionID == "" means no session filter.
// Fewer than k matches returns all of them; an empty index returns an
// empty slice.
func (ix *Index) Query(ctx context.Context, queryText string, k int, sessionID string, typ EntryType) ([]Result, error) {
	if k < 1 {
		return nil, &core.ValidationError{Field: "k", Reason: "must be at least 1"}
	}
	if ix.store.Count(typ) == 0 {
		return nil, nil
	}

	embedding, err := ix.embed(ctx, queryText)
	if err != nil {
		return nil, &core.EmbeddingError{Cause: err}
	}

	var filter map[string]string
	if sessionID != "" {
		filter = map[string]string{"session_id": sessionID}
	}
	return ix.store.Query(ctx, typ, embedding, k, filter)
}

// Remove deletes an entry. Removing an unknown id is a no-op.
func (ix *Index) Remove(ctx context.Context, typ EntryType, id string) error {
	return ix.store.Remove(ctx, typ, id)
}

// Count returns the total number of indexed entries across types.
func (ix *Index) Count() int {
	return ix.store.Count(EntryConversation) + ix.store.Count(EntryPattern)
}

// Close releases the cache and the underlying store.
func (ix *Index) Close() error {
	ix.cache.Close()
	return ix.store.Close()
}

// embed computes the embedding for text, memoized through the cache.
func (ix *Index) embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := ix.cache.Get(text); ok {
		if emb, ok := v.([]float32); ok {
			return emb, nil
		}
	}
	emb, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	ix.cache.Set(text, emb, int64(len(emb)*4))
	return emb, nil
}

func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
