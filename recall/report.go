package recall

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/becomeliminal/recall-go-sdk/analyzer"
	"github.com/becomeliminal/recall-go-sdk/core"
	"github.com/becomeliminal/recall-go-sdk/memory"
)

// GetRelevantContext returns past conversational turns semantically close
// to query, closest first. sessionID == "" searches across sessions.
// Disabled pipelines return an empty result.
func (m *Manager) GetRelevantContext(ctx context.Context, query string, n int, sessionID string) ([]memory.Result, error) {
	if !m.cfg.Enabled {
		return nil, nil
	}
	if !m.initialized.Load() {
		return nil, core.ErrNotInitialized
	}
	return m.index.Query(ctx, query, n, sessionID, memory.EntryConversation)
}

// AddPattern stores an explicitly learned pattern in semantic memory and
// returns its entry id.
func (m *Manager) AddPattern(ctx context.Context, patternType, description string, metadata map[string]string) (string, error) {
	if !m.cfg.Enabled {
		return "", nil
	}
	if !m.initialized.Load() {
		return "", core.ErrNotInitialized
	}

	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["pattern_type"] = patternType

	id, err := m.index.Add(ctx, description, meta, memory.EntryPattern)
	if err != nil {
		return "", err
	}
	m.logger.Info("pattern added",
		zap.String("type", patternType),
		zap.String("id", id))
	return id, nil
}

// EnhanceInstructions injects the most relevant past interactions into a
// base prompt. With no relevant history the base prompt is returned
// unchanged. Retrieval failures degrade to the base prompt as well; a
// worse prompt beats a broken turn.
func (m *Manager) EnhanceInstructions(ctx context.Context, base, query string) string {
	if !m.cfg.Enabled || !m.initialized.Load() {
		return base
	}

	results, err := m.GetRelevantContext(ctx, query, 2, "")
	if err != nil {
		m.logger.Warn("context retrieval for instructions failed", zap.Error(err))
		return base
	}
	if len(results) == 0 {
		return base
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nRelevant past interactions:\n")
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, r.Entry.Text)
	}
	b.WriteString("\nUse the above context if relevant to the current conversation, but prioritize the user's current needs.")
	return b.String()
}

// GeneratePerformanceReport analyzes the trailing window of the given
// number of days against the same-size window immediately preceding it.
func (m *Manager) GeneratePerformanceReport(ctx context.Context, days int) (*analyzer.Report, error) {
	if !m.cfg.Enabled {
		return &analyzer.Report{}, nil
	}
	if !m.initialized.Load() {
		return nil, core.ErrNotInitialized
	}
	if days <= 0 {
		return nil, &core.ValidationError{Field: "days", Reason: "must be positive"}
	}

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -days)
	window, err := m.store.Window(ctx, from, now)
	if err != nil {
		return nil, err
	}
	baseline, err := m.store.Window(ctx, from.AddDate(0, 0, -days), from)
	if err != nil {
		return nil, err
	}
	return analyzer.AnalyzeWithBaseline(window, baseline, m.cfg.Analyzer), nil
}

// RecordFeedback attaches a soft feedback annotation to a previously
// logged interaction.
func (m *Manager) RecordFeedback(ctx context.Context, conversationID, feedbackType, value string) error {
	if !m.cfg.Enabled {
		return nil
	}
	if !m.initialized.Load() {
		return core.ErrNotInitialized
	}
	return m.store.RecordFeedback(ctx, core.Feedback{
		ConversationID: conversationID,
		Type:           feedbackType,
		Value:          value,
	})
}

// SessionSummary aggregates one session's logged turns. Unknown sessions
// yield a zero-filled summary.
func (m *Manager) SessionSummary(ctx context.Context, sessionID string) (core.SessionSummary, error) {
	if !m.cfg.Enabled {
		return core.SessionSummary{SessionID: sessionID}, nil
	}
	if !m.initialized.Load() {
		return core.SessionSummary{}, core.ErrNotInitialized
	}
	return m.store.SessionSummary(ctx, sessionID)
}

// ErrorInsights summarizes distinct failure patterns from the log.
type ErrorInsights struct {
	TotalUniqueErrors int
	Patterns          []core.ErrorPattern
}

// GetErrorInsights groups failed interactions by error message, most
// common first.
func (m *Manager) GetErrorInsights(ctx context.Context) (*ErrorInsights, error) {
	if !m.cfg.Enabled {
		return &ErrorInsights{}, nil
	}
	if !m.initialized.Load() {
		return nil, core.ErrNotInitialized
	}

	patterns, err := m.store.ErrorPatterns(ctx, 20)
	if err != nil {
		return nil, err
	}
	return &ErrorInsights{TotalUniqueErrors: len(patterns), Patterns: patterns}, nil
}

// Status is a cheap introspection snapshot with no side effects.
type Status struct {
	Enabled            bool
	Initialized        bool
	InteractionsLogged int64
	StoredInteractions int64
	MemoryEntries      int
	ReportInterval     int
}

// GetSystemStatus reports the pipeline's current state.
func (m *Manager) GetSystemStatus(ctx context.Context) (Status, error) {
	status := Status{
		Enabled:        m.cfg.Enabled,
		Initialized:    m.initialized.Load(),
		ReportInterval: m.cfg.ReportInterval,
	}
	if !m.cfg.Enabled || !m.initialized.Load() {
		return status, nil
	}

	stored, err := m.store.Count(ctx)
	if err != nil {
		return status, err
	}
	status.InteractionsLogged = m.total.Load()
	status.StoredInteractions = stored
	status.MemoryEntries = m.index.Count()
	return status, nil
}

// Purge deletes interactions older than the given age. Maintenance only;
// run it from a background job, never from the conversational path.
func (m *Manager) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	if !m.cfg.Enabled {
		return 0, nil
	}
	if !m.initialized.Load() {
		return 0, core.ErrNotInitialized
	}
	return m.store.Purge(ctx, olderThan)
}
