package analyzer_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/recall-go-sdk/analyzer"
	"github.com/becomeliminal/recall-go-sdk/core"
)

func interactions(latencies []float64, failures int, errMsg string) []core.Interaction {
	out := make([]core.Interaction, len(latencies))
	for i, lat := range latencies {
		out[i] = core.Interaction{
			SessionID:      "s1",
			UserMessage:    "question",
			AgentResponse:  "answer",
			ResponseTimeMs: lat,
			Success:        i >= failures,
			ErrorMessage:   errMsg,
		}
	}
	return out
}

func TestLatencyEmpty(t *testing.T) {
	stats := analyzer.Latency(nil)
	assert.Zero(t, stats.Count)
	assert.Nil(t, stats.Mean)
	assert.Nil(t, stats.P50)
	assert.Nil(t, stats.P95)
	assert.Nil(t, stats.P99)
}

func TestLatencyPercentiles(t *testing.T) {
	latencies := make([]float64, 100)
	for i := range latencies {
		latencies[i] = float64(i + 1) // 1..100
	}
	stats := analyzer.Latency(interactions(latencies, 0, ""))

	assert.Equal(t, 100, stats.Count)
	require.NotNil(t, stats.Mean)
	assert.InDelta(t, 50.5, *stats.Mean, 0.001)
	assert.Equal(t, 1.0, *stats.Min)
	assert.Equal(t, 100.0, *stats.Max)
	assert.Equal(t, 51.0, *stats.P50)
	assert.Equal(t, 96.0, *stats.P95)
	assert.Equal(t, 100.0, *stats.P99)
}

func TestErrorsRate(t *testing.T) {
	// 2 failures in 20 records is exactly 10%, which must NOT trip the
	// strictly-greater-than high severity rule.
	records := interactions(make([]float64, 20), 2, "boom")
	stats := analyzer.Errors(records)
	assert.Equal(t, 20, stats.Total)
	assert.Equal(t, 2, stats.Failed)
	assert.InDelta(t, 10.0, stats.Rate, 0.001)

	report := analyzer.Analyze(records, analyzer.Config{RecurringErrorCount: 5})
	for _, s := range report.Suggestions {
		assert.NotEqual(t, core.SeverityHigh, s.Severity,
			"10%% error rate must not fire the >10%% rule")
	}

	// 19 of 20 failing does.
	report = analyzer.Analyze(interactions(make([]float64, 20), 19, "boom"), analyzer.Config{})
	var high bool
	for _, s := range report.Suggestions {
		if s.Severity == core.SeverityHigh && s.Category == "error_rate" {
			high = true
		}
	}
	assert.True(t, high)
}

func TestErrorsByMessage(t *testing.T) {
	records := []core.Interaction{
		{SessionID: "s", Success: false, ErrorMessage: "timeout\nstack line"},
		{SessionID: "s", Success: false, ErrorMessage: "timeout\nother stack"},
		{SessionID: "s", Success: false, ErrorMessage: "rate limited"},
		{SessionID: "s", Success: true},
	}
	stats := analyzer.Errors(records)
	require.Len(t, stats.ByMessage, 2)
	assert.Equal(t, "timeout", stats.ByMessage[0].Message, "grouped on first line")
	assert.Equal(t, 2, stats.ByMessage[0].Count)
}

func TestPatterns(t *testing.T) {
	records := []core.Interaction{
		{SessionID: "s", UserMessage: "hi", AgentResponse: string(make([]byte, 600)), Success: true},
		{SessionID: "s", UserMessage: "hi", AgentResponse: "ok", Success: true},
	}
	stats := analyzer.Patterns(records, 500)
	require.NotNil(t, stats.AvgUserLen)
	assert.InDelta(t, 2, *stats.AvgUserLen, 0.001)
	assert.InDelta(t, 0.5, stats.LongResponseShare, 0.001)
}

func TestCompareSignConvention(t *testing.T) {
	recent := interactions([]float64{100, 100, 100, 100}, 0, "")
	historical := interactions([]float64{200, 200, 200, 200}, 1, "x")

	c := analyzer.Compare(recent, historical)
	require.NotNil(t, c)

	// Latency halved: +50% improvement.
	assert.InDelta(t, 50.0, c.LatencyImprovementPct, 0.001)
	// Error rate went from 25% to 0%: +25 points improvement.
	assert.InDelta(t, 25.0, c.ErrorRateImprovementPts, 0.001)
}

func TestCompareInsufficientData(t *testing.T) {
	assert.Nil(t, analyzer.Compare(nil, interactions([]float64{1}, 0, "")))
	assert.Nil(t, analyzer.Compare(interactions([]float64{1}, 0, ""), nil))
}

func TestSuggestSeverityOrdering(t *testing.T) {
	records := make([]core.Interaction, 20)
	for i := range records {
		records[i] = core.Interaction{
			SessionID:      "s1",
			UserMessage:    "q",
			AgentResponse:  string(make([]byte, 600)),
			ResponseTimeMs: 6000,
			Success:        i >= 19, // 19 failures
			ErrorMessage:   "upstream timeout",
		}
	}

	report := analyzer.Analyze(records, analyzer.Config{})
	require.GreaterOrEqual(t, len(report.Suggestions), 4)

	for i := 1; i < len(report.Suggestions); i++ {
		assert.GreaterOrEqual(t, int(report.Suggestions[i-1].Severity), int(report.Suggestions[i].Severity),
			"suggestions ordered high to low")
	}

	// Ties within a severity keep declaration order: the error-rate rule
	// is declared before the latency rule.
	assert.Equal(t, "error_rate", report.Suggestions[0].Category)
	assert.Equal(t, "response_time", report.Suggestions[1].Category)

	assert.Equal(t, report.Summary.Total, len(report.Suggestions))
	assert.Equal(t, 2, report.Summary.High)
}

func TestElevatedLatencyRule(t *testing.T) {
	records := interactions([]float64{3500, 3500, 3500, 3500}, 0, "")
	report := analyzer.Analyze(records, analyzer.Config{})

	require.Len(t, report.Suggestions, 1)
	assert.Equal(t, core.SeverityMedium, report.Suggestions[0].Severity)
	assert.Equal(t, "response_time", report.Suggestions[0].Category)
}

func TestConfigurableThresholds(t *testing.T) {
	records := interactions([]float64{400, 450, 480, 500}, 0, "")

	// Default ceiling: nothing fires.
	report := analyzer.Analyze(records, analyzer.Config{})
	assert.Empty(t, report.Suggestions)

	// Ceiling below the actual p95: the latency rule fires.
	report = analyzer.Analyze(records, analyzer.Config{P95HighMs: 300, P95ElevatedMs: 200})
	require.NotEmpty(t, report.Suggestions)
	assert.Equal(t, "response_time", report.Suggestions[0].Category)
	assert.Equal(t, core.SeverityHigh, report.Suggestions[0].Severity)
}

func ExampleSuggest() {
	records := []core.Interaction{
		{SessionID: "s1", ResponseTimeMs: 7000, Success: true, UserMessage: "q", AgentResponse: "a"},
	}
	report := analyzer.Analyze(records, analyzer.DefaultConfig)
	for _, s := range report.Suggestions {
		fmt.Println(s.Severity, s.Category)
	}
	// Output: high response_time
}
