package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/recall-go-sdk/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, e, err := config.Load()
	require.NoError(t, err)

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "data/conversations.db", cfg.DBPath)
	assert.Equal(t, "data/vector_index", cfg.VectorPath)
	assert.Equal(t, 100, cfg.ReportInterval)
	assert.Equal(t, 256, cfg.QueueSize)
	assert.Equal(t, "mock", e.Embedder)
	assert.InDelta(t, 5000, cfg.Analyzer.P95HighMs, 0.001)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RECALL_ENABLED", "false")
	t.Setenv("RECALL_DB_PATH", "/tmp/test.db")
	t.Setenv("RECALL_REPORT_INTERVAL", "10")
	t.Setenv("RECALL_EMBEDDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("RECALL_P95_HIGH_MS", "1500")

	cfg, e, err := config.Load()
	require.NoError(t, err)

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, 10, cfg.ReportInterval)
	assert.Equal(t, "openai", e.Embedder)
	assert.Equal(t, "sk-test", e.OpenAIAPIKey)
	assert.InDelta(t, 1500, cfg.Analyzer.P95HighMs, 0.001)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("RECALL_REPORT_INTERVAL", "often")

	_, _, err := config.Load()
	assert.Error(t, err)
}
