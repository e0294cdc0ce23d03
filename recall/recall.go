// Package recall is the entry point of the self-improvement pipeline: it
// fans every completed conversational turn out to the interaction log and
// the semantic memory, retrieves relevant history on demand, and
// periodically turns the accumulated record into improvement reports.
//
// The package is a library embedded in the agent process, not a service.
// Its one hard guarantee is that nothing here ever breaks the live
// conversation: the durable log write is the only synchronous step, and
// every other failure is contained and logged as a warning.
package recall

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/becomeliminal/recall-go-sdk/analyzer"
	"github.com/becomeliminal/recall-go-sdk/core"
	"github.com/becomeliminal/recall-go-sdk/logstore"
	logsqlite "github.com/becomeliminal/recall-go-sdk/logstore/sqlite"
	"github.com/becomeliminal/recall-go-sdk/memory"
	chromemstore "github.com/becomeliminal/recall-go-sdk/memory/store/chromem"
)

// taskTimeout bounds each background store or embedding operation.
const taskTimeout = 10 * time.Second

// Config configures the Manager. The zero value is a disabled pipeline;
// config.Load builds one from the environment.
type Config struct {
	// Enabled toggles the whole subsystem. When false every operation is
	// a cheap no-op returning empty results, so the surrounding agent
	// needs no conditional logic.
	Enabled bool

	// DBPath locates the SQLite interaction log.
	DBPath string

	// VectorPath locates the persisted vector index. Empty keeps the
	// index in memory only.
	VectorPath string

	// ReportInterval auto-generates an improvement report every N logged
	// conversations. Zero disables auto-reporting.
	ReportInterval int

	// QueueSize bounds the background write queue. When the queue is
	// full, memory writes are dropped with a warning rather than making
	// the conversation wait. Default 256.
	QueueSize int

	// Analyzer carries the suggestion rule thresholds.
	Analyzer analyzer.Config
}

// Option configures optional Manager collaborators.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to zap.NewNop.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithEmbedder injects the embedding backend. Defaults to the
// deterministic mock embedder.
func WithEmbedder(e memory.Embedder) Option {
	return func(m *Manager) { m.embedder = e }
}

// WithStore injects an interaction log backend, bypassing DBPath.
func WithStore(s logstore.Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithIndex injects a semantic memory index, bypassing VectorPath.
func WithIndex(ix *memory.Index) Option {
	return func(m *Manager) { m.index = ix }
}

// LogRequest carries one completed conversational turn.
type LogRequest struct {
	SessionID      string
	UserMessage    string
	AgentResponse  string
	ResponseTimeMs float64
	RoomName       string
	Success        bool
	ErrorMessage   string
	Metadata       map[string]string
}

// Manager coordinates the interaction log, the semantic memory, and the
// analyzer as one unit. It is safe for concurrent use across sessions;
// within one session, turns are applied in the order they were logged.
type Manager struct {
	cfg      Config
	logger   *zap.Logger
	store    logstore.Store
	index    *memory.Index
	embedder memory.Embedder

	initialized atomic.Bool
	total       atomic.Int64
	sinceReport atomic.Int64

	mu     sync.Mutex
	closed bool
	tasks  chan func(context.Context)
	group  *errgroup.Group
}

// New creates a Manager. Call Initialize before any other operation.
func New(cfg Config, opts ...Option) *Manager {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	m := &Manager{cfg: cfg}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.logger = m.logger.With(zap.String("component", "recall"))
	return m
}

// Initialize opens the underlying stores and starts the background
// worker. It is idempotent and must complete before any other operation;
// operations invoked earlier fail with core.ErrNotInitialized.
func (m *Manager) Initialize(ctx context.Context) error {
	if !m.cfg.Enabled {
		m.logger.Info("self-improvement pipeline disabled")
		m.initialized.Store(true)
		return nil
	}
	if m.initialized.Load() {
		return nil
	}

	if m.store == nil {
		store, err := logsqlite.Open(m.cfg.DBPath, m.logger)
		if err != nil {
			return fmt.Errorf("open interaction log: %w", err)
		}
		m.store = store
	}
	if m.index == nil {
		if m.embedder == nil {
			return fmt.Errorf("initialize: an embedder is required (use WithEmbedder)")
		}
		vs, err := chromemstore.Open(m.cfg.VectorPath, m.logger)
		if err != nil {
			return fmt.Errorf("open vector store: %w", err)
		}
		ix, err := memory.NewIndex(vs, m.embedder, m.logger)
		if err != nil {
			return fmt.Errorf("create memory index: %w", err)
		}
		m.index = ix
	}

	// A single worker keeps per-session causal ordering: tasks drain FIFO.
	m.tasks = make(chan func(context.Context), m.cfg.QueueSize)
	m.group = &errgroup.Group{}
	m.group.Go(func() error {
		for task := range m.tasks {
			tctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
			task(tctx)
			cancel()
		}
		return nil
	})

	m.initialized.Store(true)
	m.logger.Info("self-improvement pipeline initialized",
		zap.String("db", m.cfg.DBPath),
		zap.Int("report_interval", m.cfg.ReportInterval))
	return nil
}

// Enabled reports whether the subsystem is active.
func (m *Manager) Enabled() bool {
	return m.cfg.Enabled
}

// LogConversation records one completed turn. The interaction log write
// is synchronous and authoritative; the semantic memory insertion and the
// latency metric are applied in the background with their own error
// containment. The returned id identifies the logged interaction, or is
// empty when the subsystem is disabled or the store write was degraded to
// a best-effort no-op.
func (m *Manager) LogConversation(ctx context.Context, req LogRequest) (string, error) {
	if !m.cfg.Enabled {
		return "", nil
	}
	if !m.initialized.Load() {
		return "", core.ErrNotInitialized
	}

	id, err := m.store.Record(ctx, core.Interaction{
		SessionID:      req.SessionID,
		RoomName:       req.RoomName,
		UserMessage:    req.UserMessage,
		AgentResponse:  req.AgentResponse,
		ResponseTimeMs: req.ResponseTimeMs,
		Success:        req.Success,
		ErrorMessage:   req.ErrorMessage,
		Metadata:       req.Metadata,
	})
	if err != nil {
		if core.IsValidation(err) {
			return "", err
		}
		// Storage failures never reach the live conversation.
		m.logger.Warn("interaction log write failed", zap.Error(err))
		return "", nil
	}

	m.total.Add(1)
	m.enqueue(func(tctx context.Context) { m.absorb(tctx, id, req) })

	if n := m.sinceReport.Add(1); m.cfg.ReportInterval > 0 && n%int64(m.cfg.ReportInterval) == 0 {
		m.enqueue(m.autoReport)
	}
	return id, nil
}

// absorb is the background half of LogConversation: semantic memory
// insertion and the latency metric.
func (m *Manager) absorb(ctx context.Context, id string, req LogRequest) {
	// Only successful turns become retrievable memories; failures still
	// feed error analysis through the log.
	if req.Success {
		meta := map[string]string{
			"conversation_id": id,
			"session_id":      req.SessionID,
		}
		if req.RoomName != "" {
			meta["room_name"] = req.RoomName
		}
		text := fmt.Sprintf("User: %s\nAgent: %s", req.UserMessage, req.AgentResponse)
		if _, err := m.index.Add(ctx, text, meta, memory.EntryConversation); err != nil {
			m.logger.Warn("memory insertion skipped", zap.String("id", id), zap.Error(err))
		}
	}

	err := m.store.RecordMetric(ctx, core.Metric{
		SessionID: req.SessionID,
		Name:      "response_time_ms",
		Value:     req.ResponseTimeMs,
		Metadata:  map[string]string{"success": fmt.Sprintf("%t", req.Success)},
	})
	if err != nil {
		m.logger.Warn("metric write failed", zap.String("id", id), zap.Error(err))
	}
}

// autoReport runs the periodic analysis. Failures are contained here; the
// trigger is fire-and-forget from the caller's perspective.
func (m *Manager) autoReport(ctx context.Context) {
	report, err := m.GeneratePerformanceReport(ctx, 1)
	if err != nil {
		m.logger.Warn("auto report failed", zap.Error(err))
		return
	}
	m.logger.Info("improvement report generated",
		zap.Int("suggestions", report.Summary.Total),
		zap.Int("high", report.Summary.High))
	for _, s := range report.Suggestions {
		if s.Severity == core.SeverityHigh {
			m.logger.Warn("high priority suggestion",
				zap.String("category", s.Category),
				zap.String("suggestion", s.Message))
		}
	}
}

// enqueue hands a task to the worker without ever blocking the caller.
func (m *Manager) enqueue(task func(context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.tasks == nil {
		return
	}
	select {
	case m.tasks <- task:
	default:
		m.logger.Warn("background queue full, dropping write")
	}
}

// Close drains the background queue and releases both stores. The manager
// must not be used afterwards.
func (m *Manager) Close() error {
	if !m.cfg.Enabled || !m.initialized.Load() {
		return nil
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.tasks)
	m.mu.Unlock()

	_ = m.group.Wait()

	var firstErr error
	if err := m.index.Close(); err != nil {
		firstErr = err
	}
	if err := m.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	m.logger.Info("self-improvement pipeline closed",
		zap.Int64("interactions_logged", m.total.Load()))
	return firstErr
}
