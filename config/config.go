// Package config loads the pipeline configuration from the environment.
// A .env file in the working directory is honored when present.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/becomeliminal/recall-go-sdk/analyzer"
	"github.com/becomeliminal/recall-go-sdk/recall"
)

// Env is the raw environment surface.
type Env struct {
	Enabled        bool   `env:"RECALL_ENABLED" envDefault:"true"`
	DBPath         string `env:"RECALL_DB_PATH" envDefault:"data/conversations.db"`
	VectorPath     string `env:"RECALL_VECTOR_PATH" envDefault:"data/vector_index"`
	ReportInterval int    `env:"RECALL_REPORT_INTERVAL" envDefault:"100"`
	QueueSize      int    `env:"RECALL_QUEUE_SIZE" envDefault:"256"`

	// Embedder selects the embedding backend: mock, openai, or onnx.
	Embedder string `env:"RECALL_EMBEDDER" envDefault:"mock"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`

	ONNXModelPath     string `env:"RECALL_ONNX_MODEL_PATH"`
	ONNXTokenizerPath string `env:"RECALL_ONNX_TOKENIZER_PATH"`
	ONNXLibraryPath   string `env:"RECALL_ONNX_LIBRARY_PATH"`

	// Suggestion rule thresholds.
	P95HighMs        float64 `env:"RECALL_P95_HIGH_MS" envDefault:"5000"`
	P95ElevatedMs    float64 `env:"RECALL_P95_ELEVATED_MS" envDefault:"3000"`
	ErrorRateHighPct float64 `env:"RECALL_ERROR_RATE_HIGH_PCT" envDefault:"10"`
}

// Load parses the environment into a recall.Config.
func Load() (recall.Config, Env, error) {
	_ = godotenv.Load()

	var e Env
	if err := env.Parse(&e); err != nil {
		return recall.Config{}, Env{}, fmt.Errorf("parse environment: %w", err)
	}

	cfg := recall.Config{
		Enabled:        e.Enabled,
		DBPath:         e.DBPath,
		VectorPath:     e.VectorPath,
		ReportInterval: e.ReportInterval,
		QueueSize:      e.QueueSize,
		Analyzer: analyzer.Config{
			P95HighMs:        e.P95HighMs,
			P95ElevatedMs:    e.P95ElevatedMs,
			ErrorRateHighPct: e.ErrorRateHighPct,
		},
	}
	return cfg, e, nil
}
