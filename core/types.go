package core

import "time"

// Interaction is one completed conversational turn and its outcome.
// Records are immutable once written; the only later mutation is a
// Feedback annotation keyed by the same ID.
type Interaction struct {
	// ID is assigned by the log store on write.
	ID string

	// SessionID identifies the conversation this turn belongs to. Required.
	SessionID string

	// RoomName is the room/channel the session ran in. Optional.
	RoomName string

	// UserMessage is the transcribed user input for this turn.
	UserMessage string

	// AgentResponse is the agent's spoken reply.
	AgentResponse string

	// ResponseTimeMs is the end-to-end latency for this turn. Never negative.
	ResponseTimeMs float64

	// Success records whether the turn completed without error.
	Success bool

	// ErrorMessage describes the failure when Success is false.
	ErrorMessage string

	// Metadata carries free-form key/value context (tool names, model, etc.).
	Metadata map[string]string

	// Timestamp is the UTC creation time, assigned on write.
	Timestamp time.Time
}

// Metric is a single named measurement, append-only.
type Metric struct {
	ID        string
	SessionID string

	// Name is a free-form metric identifier, e.g. "response_time_ms".
	Name string

	Value     float64
	Metadata  map[string]string
	Timestamp time.Time
}

// Feedback is a soft annotation on a previously logged interaction.
// The interaction itself is never rewritten.
type Feedback struct {
	ID             string
	ConversationID string

	// Type categorizes the feedback, e.g. "thumbs", "correction".
	Type string

	Value     string
	Timestamp time.Time
}

// SessionSummary aggregates the logged turns of one session.
// A session with no records yields the zero value with its SessionID set;
// "no data" is a valid answer, not an error.
type SessionSummary struct {
	SessionID         string
	Total             int
	Successful        int
	Failed            int
	AvgResponseTimeMs float64
}

// ErrorPattern is one distinct failure message and how often it occurred.
type ErrorPattern struct {
	Message        string
	Count          int
	LastOccurrence time.Time
}

// StoreStats aggregates the log store over a trailing window.
type StoreStats struct {
	TotalInteractions int
	Successful        int
	Failed            int
	AvgResponseTimeMs float64
}

// Severity ranks an improvement suggestion.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	default:
		return "low"
	}
}
