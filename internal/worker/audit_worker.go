// Package worker consumes the AMQP event stream and keeps an audit trail of
// mutations and reconciliations outside the main process.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/storage"
)

// AuditWorker logs every event and writes a snapshot report after each
// completed reconciliation. It reads snapshots from the same SQLite cache the
// app writes, so a report always reflects confirmed state.
type AuditWorker struct {
	storage   *storage.SQLiteRepository
	reportDir string

	mu    sync.Mutex
	stats map[string]*scopeStats
}

type scopeStats struct {
	Mutations int `json:"mutations"`
	Queued    int `json:"queued"`
	Syncs     int `json:"syncs"`
	Replayed  int `json:"replayed"`
}

// report is the JSON document written after each sync.
type reportDocument struct {
	Scope       string     `json:"scope"`
	GeneratedAt time.Time  `json:"generatedAt"`
	Incomes     int        `json:"incomes"`
	Expenses    int        `json:"expenses"`
	Segments    int        `json:"segments"`
	Stats       scopeStats `json:"stats"`
}

func NewAuditWorker(repo *storage.SQLiteRepository, reportDir string) *AuditWorker {
	return &AuditWorker{
		storage:   repo,
		reportDir: reportDir,
		stats:     make(map[string]*scopeStats),
	}
}

// HandleEvent processes one event from the queue.
func (w *AuditWorker) HandleEvent(ctx context.Context, event *amqp.Event) error {
	switch event.Type {
	case amqp.EventMutationRecorded:
		w.recordMutation(event)
		slog.InfoContext(ctx, "Mutation recorded",
			"scope", event.Scope,
			"kind", event.ActionKind,
			"entity", event.Entity,
			"entity_id", event.EntityID,
			"queued", event.Queued)
		return nil

	case amqp.EventSyncCompleted:
		w.recordSync(event)
		slog.InfoContext(ctx, "Sync completed",
			"scope", event.Scope,
			"actions", event.Actions,
			"duration_ms", event.DurationMS)
		return w.writeReport(ctx, event.Scope)

	default:
		return fmt.Errorf("unhandled event type %q", event.Type)
	}
}

// Stats returns a copy of the counters for one scope.
func (w *AuditWorker) Stats(scope string) scopeStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.stats[scope]; ok {
		return *s
	}
	return scopeStats{}
}

func (w *AuditWorker) recordMutation(event *amqp.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.scopeStatsLocked(event.Scope)
	s.Mutations++
	if event.Queued {
		s.Queued++
	}
}

func (w *AuditWorker) recordSync(event *amqp.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.scopeStatsLocked(event.Scope)
	s.Syncs++
	s.Replayed += event.Actions
}

func (w *AuditWorker) scopeStatsLocked(scope string) *scopeStats {
	s, ok := w.stats[scope]
	if !ok {
		s = &scopeStats{}
		w.stats[scope] = s
	}
	return s
}

// writeReport dumps counts and collection sizes for the scope as JSON.
func (w *AuditWorker) writeReport(ctx context.Context, scope string) error {
	data, found, err := w.storage.LoadAppData(ctx, scope)
	if err != nil {
		return fmt.Errorf("load snapshot for report: %w", err)
	}
	if !found {
		slog.WarnContext(ctx, "No cached snapshot for report", "scope", scope)
	}

	doc := reportDocument{
		Scope:       scope,
		GeneratedAt: time.Now().UTC(),
		Incomes:     len(data.Incomes),
		Expenses:    len(data.Expenses),
		Segments:    len(data.Segments),
		Stats:       w.Stats(scope),
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	if err := os.MkdirAll(w.reportDir, 0755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	path := filepath.Join(w.reportDir, fmt.Sprintf("%s.json", scope))
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	slog.InfoContext(ctx, "Audit report written", "scope", scope, "path", path)
	return nil
}
