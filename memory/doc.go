// Package memory provides the semantic memory of the self-improvement
// pipeline: a similarity-searchable index over past conversation turns and
// learned patterns.
//
// Architecture:
//   - Store: vector storage backend (chromem-go, embedded)
//   - Embedder: text-to-vector conversion (mock for tests, ONNX locally,
//     OpenAI as a remote backend)
//   - Index: orchestrates embedding, caching, insertion, and retrieval
//
// Entries are split into two namespaces, conversations and patterns, so
// the agent can recall past exchanges separately from explicitly taught
// behavior. Embeddings are the persisted artifact: on restart the index
// reloads vectors from disk and never re-embeds existing text.
package memory
