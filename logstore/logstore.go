// Package logstore defines the durable interaction log.
//
// The log is the authoritative record of every conversational turn: what
// the user said, what the agent answered, how long it took, and whether it
// succeeded. It is append-mostly, queryable by session, time range, and
// recency, and its relational schema is read directly by external
// dashboards, so the schema is kept stable.
//
// Implementations: sqlite (SDK-provided, embedded), or a hosted relational
// store for production deployments.
package logstore

import (
	"context"
	"time"

	"github.com/becomeliminal/recall-go-sdk/core"
)

// Store is the interaction log backend.
type Store interface {
	// Record persists one interaction and returns its assigned id.
	// SessionID must be non-empty and ResponseTimeMs non-negative, otherwise
	// a core.ValidationError is returned and nothing is written. Store
	// failures surface as core.StorageError.
	Record(ctx context.Context, in core.Interaction) (string, error)

	// Recent returns up to limit interactions, most recent first, optionally
	// filtered to one session (sessionID == "" means all sessions). limit
	// must be positive.
	Recent(ctx context.Context, limit int, sessionID string) ([]core.Interaction, error)

	// Window returns interactions with from <= timestamp < to, most recent
	// first.
	Window(ctx context.Context, from, to time.Time) ([]core.Interaction, error)

	// SessionSummary aggregates one session. A session with no records
	// yields a zero-filled summary, never an error.
	SessionSummary(ctx context.Context, sessionID string) (core.SessionSummary, error)

	// RecordMetric appends one metric. Name must be non-empty.
	RecordMetric(ctx context.Context, m core.Metric) error

	// RecordFeedback attaches a feedback annotation to a logged interaction.
	RecordFeedback(ctx context.Context, fb core.Feedback) error

	// ErrorPatterns groups failed interactions by error message, most
	// common first.
	ErrorPatterns(ctx context.Context, limit int) ([]core.ErrorPattern, error)

	// Stats aggregates the trailing window of the given number of days.
	Stats(ctx context.Context, days int) (core.StoreStats, error)

	// Purge deletes interactions older than the given age and returns how
	// many were removed. Maintenance only, never on the hot path.
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)

	// Count returns the total number of logged interactions.
	Count(ctx context.Context) (int64, error)

	// Close releases the underlying store.
	Close() error
}
