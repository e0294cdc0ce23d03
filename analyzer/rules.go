package analyzer

import (
	"fmt"

	"github.com/becomeliminal/recall-go-sdk/core"
)

// Config holds the thresholds the rule table evaluates against.
type Config struct {
	// P95HighMs fires the high-severity latency rule. Default 5000.
	P95HighMs float64

	// P95ElevatedMs fires the medium-severity latency rule for p95
	// between this and P95HighMs. Default 3000.
	P95ElevatedMs float64

	// ErrorRateHighPct fires the high-severity error rule when the
	// failure percentage exceeds it. Default 10.
	ErrorRateHighPct float64

	// RecurringErrorCount fires the recurring-error rule when one
	// distinct message occurred more than this many times. Default 3.
	RecurringErrorCount int

	// LongResponseShare fires the verbosity rule when this fraction of
	// responses exceeds LongResponseChars. Default 0.3.
	LongResponseShare float64

	// LongResponseChars is the verbosity ceiling per response. Default 500.
	LongResponseChars int
}

// DefaultConfig mirrors thresholds tuned for voice interaction, where a
// few seconds of silence already feels broken.
var DefaultConfig = Config{
	P95HighMs:           5000,
	P95ElevatedMs:       3000,
	ErrorRateHighPct:    10,
	RecurringErrorCount: 3,
	LongResponseShare:   0.3,
	LongResponseChars:   500,
}

func (c Config) withDefaults() Config {
	d := DefaultConfig
	if c.P95HighMs == 0 {
		c.P95HighMs = d.P95HighMs
	}
	if c.P95ElevatedMs == 0 {
		c.P95ElevatedMs = d.P95ElevatedMs
	}
	if c.ErrorRateHighPct == 0 {
		c.ErrorRateHighPct = d.ErrorRateHighPct
	}
	if c.RecurringErrorCount == 0 {
		c.RecurringErrorCount = d.RecurringErrorCount
	}
	if c.LongResponseShare == 0 {
		c.LongResponseShare = d.LongResponseShare
	}
	if c.LongResponseChars == 0 {
		c.LongResponseChars = d.LongResponseChars
	}
	return c
}

// rule is one row of the suggestion table. applies inspects the report
// and returns whether the rule fires plus the metric reading behind it;
// message renders that reading for humans.
type rule struct {
	category string
	severity core.Severity
	applies  func(r *Report, cfg Config) (bool, float64)
	message  func(value float64) string
}

// rules is evaluated in declaration order; the output keeps that order
// within each severity, so earlier rows rank higher on ties.
var rules = []rule{
	{
		category: "error_rate",
		severity: core.SeverityHigh,
		applies: func(r *Report, cfg Config) (bool, float64) {
			return r.Errors.Rate > cfg.ErrorRateHighPct, r.Errors.Rate
		},
		message: func(v float64) string {
			return fmt.Sprintf("Error rate is %.1f%%. Investigate and fix common error patterns.", v)
		},
	},
	{
		category: "response_time",
		severity: core.SeverityHigh,
		applies: func(r *Report, cfg Config) (bool, float64) {
			if r.Latency.P95 == nil {
				return false, 0
			}
			return *r.Latency.P95 > cfg.P95HighMs, *r.Latency.P95
		},
		message: func(v float64) string {
			return fmt.Sprintf("95th percentile response time is %.0fms. Consider a faster model or tighter generation limits.", v)
		},
	},
	{
		category: "recurring_error",
		severity: core.SeverityMedium,
		applies: func(r *Report, cfg Config) (bool, float64) {
			if len(r.Errors.ByMessage) == 0 {
				return false, 0
			}
			top := r.Errors.ByMessage[0]
			return top.Count > cfg.RecurringErrorCount, float64(top.Count)
		},
		message: func(v float64) string {
			return fmt.Sprintf("One error message recurred %.0f times. A single root cause is likely.", v)
		},
	},
	{
		category: "response_time",
		severity: core.SeverityMedium,
		applies: func(r *Report, cfg Config) (bool, float64) {
			if r.Latency.P95 == nil {
				return false, 0
			}
			p95 := *r.Latency.P95
			return p95 > cfg.P95ElevatedMs && p95 <= cfg.P95HighMs, p95
		},
		message: func(v float64) string {
			return fmt.Sprintf("95th percentile response time is %.0fms. Monitor for user experience impact.", v)
		},
	},
	{
		category: "response_length",
		severity: core.SeverityLow,
		applies: func(r *Report, cfg Config) (bool, float64) {
			return r.Patterns.LongResponseShare > cfg.LongResponseShare, r.Patterns.LongResponseShare * 100
		},
		message: func(v float64) string {
			return fmt.Sprintf("%.0f%% of responses run long. Voice interactions favor concise replies.", v)
		},
	},
}

// Suggest evaluates the rule table against a report. The result is
// ordered high to low severity; rules of equal severity keep their
// declaration order.
func Suggest(r *Report, cfg Config) []Suggestion {
	cfg = cfg.withDefaults()

	var out []Suggestion
	for _, sev := range []core.Severity{core.SeverityHigh, core.SeverityMedium, core.SeverityLow} {
		for _, rl := range rules {
			if rl.severity != sev {
				continue
			}
			if fired, value := rl.applies(r, cfg); fired {
				out = append(out, Suggestion{
					Category: rl.category,
					Severity: rl.severity,
					Message:  rl.message(value),
					Value:    value,
				})
			}
		}
	}
	return out
}
