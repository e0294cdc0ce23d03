// Package sqlite provides the embedded SQLite implementation of the
// interaction log, backed by the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/becomeliminal/recall-go-sdk/core"
)

// timeLayout keeps timestamps lexicographically ordered so range queries
// work on the TEXT column.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// busyTimeout bounds how long a write waits on the database lock before
// the attempt fails with a StorageError.
const busyTimeout = 5 * time.Second

// Store is the SQLite-backed interaction log.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the log database at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, &core.StorageError{Op: "open", Cause: err}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &core.StorageError{Op: "open", Cause: err}
	}
	// SQLite serializes writers itself; a single connection avoids driver
	// level lock contention between pooled connections.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger.With(zap.String("component", "logstore"))}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info("interaction log opened", zap.String("path", path))
	return s, nil
}

func (s *Store) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS interactions (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			room_name TEXT,
			user_message TEXT,
			agent_response TEXT,
			response_time_ms REAL,
			success INTEGER NOT NULL DEFAULT 1,
			error_message TEXT,
			metadata TEXT,
			timestamp TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS metrics (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			metric_name TEXT NOT NULL,
			metric_value REAL,
			metadata TEXT,
			timestamp TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS feedback (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			feedback_type TEXT,
			feedback_value TEXT,
			timestamp TEXT NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES interactions(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_session ON interactions(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_timestamp ON interactions(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_session ON metrics(session_id)`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return &core.StorageError{Op: "init schema", Cause: err}
		}
	}
	return nil
}

// Record persists one interaction and returns its assigned id.
func (s *Store) Record(ctx context.Context, in core.Interaction) (string, error) {
	if in.SessionID == "" {
		return "", &core.ValidationError{Field: "session_id", Reason: "must not be empty"}
	}
	if in.ResponseTimeMs < 0 {
		return "", &core.ValidationError{Field: "response_time_ms", Reason: "must not be negative"}
	}

	id := uuid.New().String()
	ts := time.Now().UTC()
	meta, err := marshalMetadata(in.Metadata)
	if err != nil {
		return "", &core.ValidationError{Field: "metadata", Reason: err.Error()}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO interactions
		 (id, session_id, room_name, user_message, agent_response,
		  response_time_ms, success, error_message, metadata, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, in.SessionID, in.RoomName, in.UserMessage, in.AgentResponse,
		in.ResponseTimeMs, boolToInt(in.Success), in.ErrorMessage, meta,
		ts.Format(timeLayout),
	)
	if err != nil {
		return "", &core.StorageError{Op: "record", Cause: err}
	}
	return id, nil
}

// Recent returns up to limit interactions, most recent first.
func (s *Store) Recent(ctx context.Context, limit int, sessionID string) ([]core.Interaction, error) {
	if limit <= 0 {
		return nil, &core.ValidationError{Field: "limit", Reason: "must be positive"}
	}

	query := `SELECT id, session_id, room_name, user_message, agent_response,
	          response_time_ms, success, error_message, metadata, timestamp
	          FROM interactions`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &core.StorageError{Op: "recent", Cause: err}
	}
	defer rows.Close()
	return scanInteractions(rows)
}

// Window returns interactions with from <= timestamp < to, most recent first.
func (s *Store) Window(ctx context.Context, from, to time.Time) ([]core.Interaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, room_name, user_message, agent_response,
		 response_time_ms, success, error_message, metadata, timestamp
		 FROM interactions
		 WHERE timestamp >= ? AND timestamp < ?
		 ORDER BY timestamp DESC, id DESC`,
		from.UTC().Format(timeLayout), to.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, &core.StorageError{Op: "window", Cause: err}
	}
	defer rows.Close()
	return scanInteractions(rows)
}

// SessionSummary aggregates one session. No records is a valid answer and
// yields a zero-filled summary.
func (s *Store) SessionSummary(ctx context.Context, sessionID string) (core.SessionSummary, error) {
	summary := core.SessionSummary{SessionID: sessionID}

	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END), 0),
		        AVG(response_time_ms)
		 FROM interactions WHERE session_id = ?`,
		sessionID,
	).Scan(&summary.Total, &summary.Successful, &avg)
	if err != nil {
		return core.SessionSummary{}, &core.StorageError{Op: "session summary", Cause: err}
	}
	summary.Failed = summary.Total - summary.Successful
	if avg.Valid {
		summary.AvgResponseTimeMs = avg.Float64
	}
	return summary, nil
}

// RecordMetric appends one metric row.
func (s *Store) RecordMetric(ctx context.Context, m core.Metric) error {
	if m.Name == "" {
		return &core.ValidationError{Field: "metric_name", Reason: "must not be empty"}
	}
	meta, err := marshalMetadata(m.Metadata)
	if err != nil {
		return &core.ValidationError{Field: "metadata", Reason: err.Error()}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO metrics (id, session_id, metric_name, metric_value, metadata, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), m.SessionID, m.Name, m.Value, meta,
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return &core.StorageError{Op: "record metric", Cause: err}
	}
	return nil
}

// RecordFeedback attaches a feedback annotation to a logged interaction.
func (s *Store) RecordFeedback(ctx context.Context, fb core.Feedback) error {
	if fb.ConversationID == "" {
		return &core.ValidationError{Field: "conversation_id", Reason: "must not be empty"}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (id, conversation_id, feedback_type, feedback_value, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), fb.ConversationID, fb.Type, fb.Value,
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return &core.StorageError{Op: "record feedback", Cause: err}
	}
	return nil
}

// ErrorPatterns groups failed interactions by error message, most common
// first, ties broken by recency.
func (s *Store) ErrorPatterns(ctx context.Context, limit int) ([]core.ErrorPattern, error) {
	if limit <= 0 {
		return nil, &core.ValidationError{Field: "limit", Reason: "must be positive"}
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT error_message, COUNT(*) AS n, MAX(timestamp)
		 FROM interactions
		 WHERE success = 0 AND error_message != ''
		 GROUP BY error_message
		 ORDER BY n DESC, MAX(timestamp) DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, &core.StorageError{Op: "error patterns", Cause: err}
	}
	defer rows.Close()

	var patterns []core.ErrorPattern
	for rows.Next() {
		var p core.ErrorPattern
		var ts string
		if err := rows.Scan(&p.Message, &p.Count, &ts); err != nil {
			return nil, &core.StorageError{Op: "error patterns", Cause: err}
		}
		p.LastOccurrence, _ = time.Parse(timeLayout, ts)
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.StorageError{Op: "error patterns", Cause: err}
	}
	return patterns, nil
}

// Stats aggregates the trailing window of the given number of days.
func (s *Store) Stats(ctx context.Context, days int) (core.StoreStats, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	var stats core.StoreStats
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END), 0),
		        AVG(response_time_ms)
		 FROM interactions WHERE timestamp >= ?`,
		cutoff.Format(timeLayout),
	).Scan(&stats.TotalInteractions, &stats.Successful, &avg)
	if err != nil {
		return core.StoreStats{}, &core.StorageError{Op: "stats", Cause: err}
	}
	stats.Failed = stats.TotalInteractions - stats.Successful
	if avg.Valid {
		stats.AvgResponseTimeMs = avg.Float64
	}
	return stats, nil
}

// Purge deletes interactions older than the given age. Feedback rows for
// purged interactions go with them.
func (s *Store) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(timeLayout)

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM feedback WHERE conversation_id IN
		 (SELECT id FROM interactions WHERE timestamp < ?)`, cutoff); err != nil {
		return 0, &core.StorageError{Op: "purge", Cause: err}
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM interactions WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, &core.StorageError{Op: "purge", Cause: err}
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("purged old interactions", zap.Int64("removed", n))
	}
	return n, nil
}

// Count returns the total number of logged interactions.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM interactions`).Scan(&n); err != nil {
		return 0, &core.StorageError{Op: "count", Cause: err}
	}
	return n, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanInteractions(rows *sql.Rows) ([]core.Interaction, error) {
	var out []core.Interaction
	for rows.Next() {
		var in core.Interaction
		var success int
		var meta sql.NullString
		var room, errMsg sql.NullString
		var ts string
		if err := rows.Scan(&in.ID, &in.SessionID, &room, &in.UserMessage,
			&in.AgentResponse, &in.ResponseTimeMs, &success, &errMsg, &meta, &ts); err != nil {
			return nil, &core.StorageError{Op: "scan", Cause: err}
		}
		in.Success = success != 0
		in.RoomName = room.String
		in.ErrorMessage = errMsg.String
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &in.Metadata); err != nil {
				return nil, &core.StorageError{Op: "scan metadata", Cause: err}
			}
		}
		t, err := time.Parse(timeLayout, ts)
		if err != nil {
			return nil, &core.StorageError{Op: "scan timestamp", Cause: err}
		}
		in.Timestamp = t
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.StorageError{Op: "scan", Cause: err}
	}
	return out, nil
}

func marshalMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
