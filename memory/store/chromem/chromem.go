// Package chromem implements the memory.Store interface on top of
// chromem-go, a pure-Go embedded vector database.
package chromem

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/becomeliminal/recall-go-sdk/memory"
)

// timeLayout matches the log store so cross-referencing timestamps is
// painless.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store persists entries in one chromem collection per entry type.
// chromem writes each document to disk on insert, so the index survives
// restarts with embeddings intact.
type Store struct {
	db          *chromem.DB
	collections map[memory.EntryType]*chromem.Collection
	logger      *zap.Logger
	mu          sync.RWMutex
}

// Open opens (creating if needed) a persistent store at path. An empty
// path keeps everything in memory, which tests use.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}

	return &Store{
		db:          db,
		collections: make(map[memory.EntryType]*chromem.Collection),
		logger:      logger.With(zap.String("component", "chromem")),
	}, nil
}

// collection returns the collection for an entry type, creating it on
// first use. Existing collections (from a previous run) are picked up by
// GetOrCreateCollection with their persisted documents.
func (s *Store) collection(typ memory.EntryType) (*chromem.Collection, error) {
	s.mu.RLock()
	col, ok := s.collections[typ]
	s.mu.RUnlock()
	if ok {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[typ]; ok {
		return col, nil
	}

	// Embeddings are always supplied by the caller, so no embedding func.
	col, err := s.db.GetOrCreateCollection(collectionName(typ), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection %q: %w", collectionName(typ), err)
	}
	s.collections[typ] = col
	return col, nil
}

// Add inserts an entry whose embedding is already computed.
func (s *Store) Add(ctx context.Context, e memory.Entry) error {
	col, err := s.collection(e.Type)
	if err != nil {
		return err
	}

	meta := make(map[string]string, len(e.Metadata)+2)
	for k, v := range e.Metadata {
		meta[k] = v
	}
	meta["entry_type"] = string(e.Type)
	meta["created_at"] = e.CreatedAt.UTC().Format(timeLayout)

	err = col.AddDocument(ctx, chromem.Document{
		ID:        e.ID,
		Content:   e.Text,
		Embedding: e.Embedding,
		Metadata:  meta,
	})
	if err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	s.logger.Debug("stored entry", zap.String("id", e.ID), zap.String("type", string(e.Type)))
	return nil
}

// Query returns up to k nearest entries, ascending by cosine distance.
func (s *Store) Query(ctx context.Context, typ memory.EntryType, embedding []float32, k int, filter map[string]string) ([]memory.Result, error) {
	col, err := s.collection(typ)
	if err != nil {
		return nil, err
	}

	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	// chromem rejects nResults larger than the number of matching
	// documents, which we cannot know up front when a filter is set.
	// Back off until the query fits.
	var results []chromem.Result
	for limit := k; limit >= 1; limit-- {
		results, err = col.QueryEmbedding(ctx, embedding, limit, filter, nil)
		if err == nil {
			break
		}
		if isTooFewDocsError(err) {
			if limit == 1 {
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	out := make([]memory.Result, 0, len(results))
	for _, r := range results {
		out = append(out, memory.Result{
			Entry: entryFromResult(typ, r),
			// chromem reports cosine similarity, higher is closer.
			Distance: 1 - r.Similarity,
		})
	}
	return out, nil
}

// Remove deletes an entry by id. Unknown ids are a no-op.
func (s *Store) Remove(ctx context.Context, typ memory.EntryType, id string) error {
	col, err := s.collection(typ)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		// chromem returns an error for ids it has never seen; removal is
		// idempotent by contract.
		if strings.Contains(err.Error(), "not found") {
			return nil
		}
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Count returns the number of entries of the given type.
func (s *Store) Count(typ memory.EntryType) int {
	col, err := s.collection(typ)
	if err != nil {
		return 0
	}
	return col.Count()
}

// Close releases resources. chromem flushes on every write, so there is
// nothing to sync here.
func (s *Store) Close() error {
	return nil
}

func collectionName(typ memory.EntryType) string {
	switch typ {
	case memory.EntryPattern:
		return "patterns"
	default:
		return "conversations"
	}
}

func entryFromResult(typ memory.EntryType, r chromem.Result) memory.Entry {
	meta := make(map[string]string, len(r.Metadata))
	for k, v := range r.Metadata {
		if k == "entry_type" || k == "created_at" {
			continue
		}
		meta[k] = v
	}
	createdAt, _ := time.Parse(timeLayout, r.Metadata["created_at"])

	return memory.Entry{
		ID:        r.ID,
		Type:      typ,
		Text:      r.Content,
		Metadata:  meta,
		Embedding: r.Embedding,
		CreatedAt: createdAt,
	}
}

func isTooFewDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
