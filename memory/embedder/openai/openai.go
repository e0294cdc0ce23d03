// Package openai implements the memory.Embedder interface against the
// OpenAI embeddings API. It is the remote alternative to the local ONNX
// embedder for deployments that prefer an API over shipping model files.
package openai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Embedder calls the OpenAI embeddings endpoint.
type Embedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// Config configures the OpenAI embedder.
type Config struct {
	// APIKey authenticates against the OpenAI API. Required.
	APIKey string

	// BaseURL overrides the API endpoint for OpenAI-compatible servers.
	BaseURL string

	// Model selects the embedding model. Defaults to text-embedding-3-small.
	Model openai.EmbeddingModel
}

// New creates an OpenAI-backed embedder.
func New(cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("APIKey is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.SmallEmbedding3
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Embedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		dimensions: dimensionsFor(cfg.Model),
	}, nil
}

// Embed converts a single text to its embedding vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("create embedding: empty response")
	}
	return resp.Data[0].Embedding, nil
}

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

func dimensionsFor(model openai.EmbeddingModel) int {
	switch model {
	case openai.LargeEmbedding3:
		return 3072
	default:
		// text-embedding-3-small and ada-002 both emit 1536.
		return 1536
	}
}
