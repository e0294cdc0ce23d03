// Package analyzer computes performance statistics and ranked improvement
// suggestions over interaction records.
//
// Everything here is pure computation: inputs are in-memory slices, no
// storage or network is touched, and the same records always produce the
// same report. The coordinator feeds it windows read from the interaction
// log.
package analyzer

import (
	"sort"
	"strings"
	"time"

	"github.com/becomeliminal/recall-go-sdk/core"
)

// errorMessageKeyLen caps the grouping key for failure messages: the first
// line, truncated, so stack traces with varying tails collapse into one
// bucket.
const errorMessageKeyLen = 50

// LatencyStats summarizes response latency over a window. All pointer
// fields are nil when the window held no records, which keeps "no data"
// distinguishable from a genuine zero.
type LatencyStats struct {
	Count int
	Mean  *float64
	Min   *float64
	Max   *float64
	P50   *float64
	P95   *float64
	P99   *float64
}

// MessageCount is one distinct failure message and its frequency.
type MessageCount struct {
	Message string
	Count   int
}

// ErrorStats summarizes failures over a window.
type ErrorStats struct {
	Total  int
	Failed int

	// Rate is the failure share as a percentage of Total, e.g. 10.0 for
	// 2 failures in 20 records.
	Rate float64

	// ByMessage lists distinct failure messages, most common first, ties
	// broken alphabetically for determinism.
	ByMessage []MessageCount
}

// PatternStats summarizes structural features of the conversation.
type PatternStats struct {
	Total          int
	AvgUserLen     *float64
	AvgResponseLen *float64

	// LongResponseShare is the fraction of responses longer than the
	// configured verbosity ceiling, in [0, 1].
	LongResponseShare float64
}

// PeriodStats condenses one comparison period.
type PeriodStats struct {
	Interactions int
	AvgLatencyMs float64
	ErrorRatePct float64
}

// Comparison measures recent performance against a historical baseline.
//
// Sign convention, used consistently for every metric: POSITIVE values
// mean IMPROVEMENT. Latency improvement is (historical-recent)/historical
// as a percentage, so latency dropping to half reads +50. Error rate
// improvement is historical minus recent in percentage points.
type Comparison struct {
	Recent     PeriodStats
	Historical PeriodStats

	LatencyImprovementPct   float64
	ErrorRateImprovementPts float64
}

// Suggestion is one actionable finding derived from the rule table.
type Suggestion struct {
	Category string
	Severity core.Severity
	Message  string

	// Value is the metric reading that fired the rule.
	Value float64
}

// Summary counts suggestions per severity.
type Summary struct {
	Total  int
	High   int
	Medium int
	Low    int
}

// Report bundles every analysis the coordinator logs or surfaces.
type Report struct {
	GeneratedAt time.Time
	Latency     LatencyStats
	Errors      ErrorStats
	Patterns    PatternStats
	Suggestions []Suggestion
	Summary     Summary

	// Comparison is set when a baseline window was supplied.
	Comparison *Comparison
}

// Latency computes latency statistics over the given records.
func Latency(records []core.Interaction) LatencyStats {
	if len(records) == 0 {
		return LatencyStats{}
	}

	latencies := make([]float64, 0, len(records))
	var sum float64
	for _, r := range records {
		latencies = append(latencies, r.ResponseTimeMs)
		sum += r.ResponseTimeMs
	}
	sort.Float64s(latencies)

	mean := sum / float64(len(latencies))
	return LatencyStats{
		Count: len(latencies),
		Mean:  &mean,
		Min:   ptr(latencies[0]),
		Max:   ptr(latencies[len(latencies)-1]),
		P50:   ptr(percentile(latencies, 0.50)),
		P95:   ptr(percentile(latencies, 0.95)),
		P99:   ptr(percentile(latencies, 0.99)),
	}
}

// Errors computes failure statistics over the given records.
func Errors(records []core.Interaction) ErrorStats {
	stats := ErrorStats{Total: len(records)}
	if stats.Total == 0 {
		return stats
	}

	counts := make(map[string]int)
	for _, r := range records {
		if r.Success {
			continue
		}
		stats.Failed++
		counts[errorMessageKey(r.ErrorMessage)]++
	}
	stats.Rate = float64(stats.Failed) / float64(stats.Total) * 100

	for msg, n := range counts {
		stats.ByMessage = append(stats.ByMessage, MessageCount{Message: msg, Count: n})
	}
	sort.Slice(stats.ByMessage, func(i, j int) bool {
		if stats.ByMessage[i].Count != stats.ByMessage[j].Count {
			return stats.ByMessage[i].Count > stats.ByMessage[j].Count
		}
		return stats.ByMessage[i].Message < stats.ByMessage[j].Message
	})
	return stats
}

// Patterns computes structural conversation statistics.
func Patterns(records []core.Interaction, longResponseChars int) PatternStats {
	stats := PatternStats{Total: len(records)}
	if stats.Total == 0 {
		return stats
	}

	var userSum, respSum int
	var userN, respN, long int
	for _, r := range records {
		if r.UserMessage != "" {
			userSum += len(r.UserMessage)
			userN++
		}
		if r.AgentResponse != "" {
			respSum += len(r.AgentResponse)
			respN++
			if len(r.AgentResponse) > longResponseChars {
				long++
			}
		}
	}
	if userN > 0 {
		stats.AvgUserLen = ptr(float64(userSum) / float64(userN))
	}
	if respN > 0 {
		stats.AvgResponseLen = ptr(float64(respSum) / float64(respN))
		stats.LongResponseShare = float64(long) / float64(respN)
	}
	return stats
}

// Compare measures the recent window against the historical one. Nil is
// returned when either window has no records, since a ratio against an
// empty baseline is meaningless.
func Compare(recent, historical []core.Interaction) *Comparison {
	recentLat := Latency(recent)
	histLat := Latency(historical)
	if recentLat.Count == 0 || histLat.Count == 0 {
		return nil
	}

	recentErr := Errors(recent)
	histErr := Errors(historical)

	c := &Comparison{
		Recent: PeriodStats{
			Interactions: recentLat.Count,
			AvgLatencyMs: *recentLat.Mean,
			ErrorRatePct: recentErr.Rate,
		},
		Historical: PeriodStats{
			Interactions: histLat.Count,
			AvgLatencyMs: *histLat.Mean,
			ErrorRatePct: histErr.Rate,
		},
		ErrorRateImprovementPts: histErr.Rate - recentErr.Rate,
	}
	if *histLat.Mean != 0 {
		c.LatencyImprovementPct = (*histLat.Mean - *recentLat.Mean) / *histLat.Mean * 100
	}
	return c
}

// Analyze runs every analysis over one window and evaluates the rule
// table.
func Analyze(records []core.Interaction, cfg Config) *Report {
	cfg = cfg.withDefaults()

	report := &Report{
		GeneratedAt: time.Now().UTC(),
		Latency:     Latency(records),
		Errors:      Errors(records),
		Patterns:    Patterns(records, cfg.LongResponseChars),
	}
	report.Suggestions = Suggest(report, cfg)
	report.Summary = summarize(report.Suggestions)
	return report
}

// AnalyzeWithBaseline is Analyze plus a period comparison against the
// baseline window.
func AnalyzeWithBaseline(records, baseline []core.Interaction, cfg Config) *Report {
	report := Analyze(records, cfg)
	report.Comparison = Compare(records, baseline)
	return report
}

func summarize(suggestions []Suggestion) Summary {
	s := Summary{Total: len(suggestions)}
	for _, sg := range suggestions {
		switch sg.Severity {
		case core.SeverityHigh:
			s.High++
		case core.SeverityMedium:
			s.Medium++
		default:
			s.Low++
		}
	}
	return s
}

// percentile is nearest-rank on an already sorted slice.
func percentile(sorted []float64, p float64) float64 {
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func errorMessageKey(msg string) string {
	if msg == "" {
		return "unknown error"
	}
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	if len(msg) > errorMessageKeyLen {
		msg = msg[:errorMessageKeyLen]
	}
	return msg
}

func ptr(v float64) *float64 { return &v }
