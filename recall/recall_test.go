package recall_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/becomeliminal/recall-go-sdk/analyzer"
	"github.com/becomeliminal/recall-go-sdk/core"
	"github.com/becomeliminal/recall-go-sdk/memory/embedder/mock"
	"github.com/becomeliminal/recall-go-sdk/recall"
)

func newManager(t *testing.T, cfg recall.Config, opts ...recall.Option) *recall.Manager {
	t.Helper()
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(t.TempDir(), "conversations.db")
	}
	opts = append([]recall.Option{recall.WithEmbedder(mock.New())}, opts...)
	m := recall.New(cfg, opts...)
	require.NoError(t, m.Initialize(context.Background()))
	t.Cleanup(func() { m.Close() })
	return m
}

// waitForMemory polls until the background worker has absorbed n entries.
func waitForMemory(t *testing.T, m *recall.Manager, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, err := m.GetSystemStatus(context.Background())
		require.NoError(t, err)
		if status.MemoryEntries >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("background worker did not absorb %d entries in time", n)
}

func TestDisabledIsNoOp(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "never-created.db")

	m := recall.New(recall.Config{Enabled: false, DBPath: dbPath})
	require.NoError(t, m.Initialize(ctx))
	defer m.Close()

	id, err := m.LogConversation(ctx, recall.LogRequest{
		SessionID:      "s1",
		UserMessage:    "hello",
		AgentResponse:  "hi",
		ResponseTimeMs: 100,
		Success:        true,
	})
	require.NoError(t, err)
	assert.Empty(t, id)

	results, err := m.GetRelevantContext(ctx, "hello", 3, "")
	require.NoError(t, err)
	assert.Empty(t, results)

	summary, err := m.SessionSummary(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, core.SessionSummary{SessionID: "s1"}, summary)

	status, err := m.GetSystemStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.Enabled)

	_, err = os.Stat(dbPath)
	assert.True(t, os.IsNotExist(err), "disabled pipeline must not touch storage")
}

func TestNotInitialized(t *testing.T) {
	ctx := context.Background()
	m := recall.New(recall.Config{Enabled: true}, recall.WithEmbedder(mock.New()))

	_, err := m.LogConversation(ctx, recall.LogRequest{SessionID: "s1"})
	assert.True(t, errors.Is(err, core.ErrNotInitialized))

	_, err = m.GetRelevantContext(ctx, "q", 1, "")
	assert.True(t, errors.Is(err, core.ErrNotInitialized))

	_, err = m.GeneratePerformanceReport(ctx, 1)
	assert.True(t, errors.Is(err, core.ErrNotInitialized))
}

func TestLogValidationSurfaces(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, recall.Config{Enabled: true})

	_, err := m.LogConversation(ctx, recall.LogRequest{SessionID: "", ResponseTimeMs: 10})
	assert.True(t, core.IsValidation(err))

	_, err = m.LogConversation(ctx, recall.LogRequest{SessionID: "s1", ResponseTimeMs: -5})
	assert.True(t, core.IsValidation(err))
}

func TestLogAndRetrieveContext(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, recall.Config{Enabled: true})

	id, err := m.LogConversation(ctx, recall.LogRequest{
		SessionID:      "s1",
		UserMessage:    "remind me to water the plants",
		AgentResponse:  "reminder set for 6pm",
		ResponseTimeMs: 130,
		Success:        true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// A failed turn lands in the log but never in semantic memory.
	_, err = m.LogConversation(ctx, recall.LogRequest{
		SessionID:      "s1",
		UserMessage:    "do the impossible",
		ResponseTimeMs: 80,
		Success:        false,
		ErrorMessage:   "tool unavailable",
	})
	require.NoError(t, err)

	waitForMemory(t, m, 1)

	results, err := m.GetRelevantContext(ctx,
		"User: remind me to water the plants\nAgent: reminder set for 6pm", 5, "s1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].Entry.Metadata["conversation_id"])
	assert.InDelta(t, 0, results[0].Distance, 1e-3)
}

func TestAddPattern(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, recall.Config{Enabled: true})

	id, err := m.AddPattern(ctx, "user_preference", "prefers metric units",
		map[string]string{"confidence": "0.9"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// Patterns live in their own namespace: conversation retrieval does
	// not see them.
	conv, err := m.GetRelevantContext(ctx, "prefers metric units", 3, "")
	require.NoError(t, err)
	assert.Empty(t, conv)
}

func TestFeedbackAndSummary(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, recall.Config{Enabled: true})

	id, err := m.LogConversation(ctx, recall.LogRequest{
		SessionID:      "s1",
		UserMessage:    "hello",
		AgentResponse:  "hi",
		ResponseTimeMs: 200,
		Success:        true,
	})
	require.NoError(t, err)

	require.NoError(t, m.RecordFeedback(ctx, id, "thumbs", "up"))

	summary, err := m.SessionSummary(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Successful)
	assert.InDelta(t, 200, summary.AvgResponseTimeMs, 0.001)
}

func TestEndToEndReport(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, recall.Config{
		Enabled: true,
		Analyzer: analyzer.Config{
			// Ceiling below the actual p95 so the latency rule fires.
			P95HighMs:     400,
			P95ElevatedMs: 200,
		},
	})

	for i := 0; i < 100; i++ {
		req := recall.LogRequest{
			SessionID:      "s1",
			UserMessage:    fmt.Sprintf("question %d", i),
			AgentResponse:  fmt.Sprintf("answer %d", i),
			ResponseTimeMs: 50 + float64(i)*450/99, // spans 50..500
			Success:        true,
		}
		if i < 5 {
			req.Success = false
			req.AgentResponse = ""
			req.ErrorMessage = "synthesis failed"
		}
		_, err := m.LogConversation(ctx, req)
		require.NoError(t, err)
	}

	report, err := m.GeneratePerformanceReport(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, 100, report.Errors.Total)
	assert.InDelta(t, 5.0, report.Errors.Rate, 0.001)

	require.NotNil(t, report.Latency.P95)
	assert.InDelta(t, 50+95*450.0/99, *report.Latency.P95, 0.001)

	var latencyFired bool
	for _, s := range report.Suggestions {
		if s.Category == "response_time" && s.Severity == core.SeverityHigh {
			latencyFired = true
		}
	}
	assert.True(t, latencyFired, "p95 ceiling below actual p95 must produce a suggestion")

	insights, err := m.GetErrorInsights(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, insights.TotalUniqueErrors)
	assert.Equal(t, "synthesis failed", insights.Patterns[0].Message)
	assert.Equal(t, 5, insights.Patterns[0].Count)

	waitForMemory(t, m, 95)
	status, err := m.GetSystemStatus(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 100, status.InteractionsLogged)
	assert.EqualValues(t, 100, status.StoredInteractions)
	assert.Equal(t, 95, status.MemoryEntries, "failed turns stay out of memory")
}

func TestAutoReportTrigger(t *testing.T) {
	ctx := context.Background()
	obsCore, logs := observer.New(zap.InfoLevel)
	m := newManager(t, recall.Config{Enabled: true, ReportInterval: 5},
		recall.WithLogger(zap.New(obsCore)))

	for i := 0; i < 5; i++ {
		_, err := m.LogConversation(ctx, recall.LogRequest{
			SessionID:      "s1",
			UserMessage:    "q",
			AgentResponse:  "a",
			ResponseTimeMs: 100,
			Success:        true,
		})
		require.NoError(t, err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if logs.FilterMessage("improvement report generated").Len() > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("auto report was not generated after reaching the interval")
}

func TestEnhanceInstructions(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, recall.Config{Enabled: true})

	base := "You are a helpful voice assistant."
	assert.Equal(t, base, m.EnhanceInstructions(ctx, base, "anything"),
		"no history keeps the base prompt unchanged")

	_, err := m.LogConversation(ctx, recall.LogRequest{
		SessionID:      "s1",
		UserMessage:    "call me Sam",
		AgentResponse:  "will do, Sam",
		ResponseTimeMs: 90,
		Success:        true,
	})
	require.NoError(t, err)
	waitForMemory(t, m, 1)

	enhanced := m.EnhanceInstructions(ctx, base, "User: call me Sam\nAgent: will do, Sam")
	assert.Contains(t, enhanced, base)
	assert.Contains(t, enhanced, "Relevant past interactions")
	assert.Contains(t, enhanced, "call me Sam")
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, recall.Config{Enabled: true})

	_, err := m.LogConversation(ctx, recall.LogRequest{
		SessionID:      "s1",
		UserMessage:    "q",
		AgentResponse:  "a",
		ResponseTimeMs: 10,
		Success:        true,
	})
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	removed, err := m.Purge(ctx, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
}
