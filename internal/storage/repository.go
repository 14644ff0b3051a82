// Package storage is the persistent local cache: a durable SQLite mirror of
// the in-memory entity store plus the append-only sync queue. Every mutation
// is written here before any network interaction is attempted, so a crash or
// restart never loses a locally-applied change.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"bilancio/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveAppData overwrites the cached aggregate for the scope.
func (r *SQLiteRepository) SaveAppData(ctx context.Context, scope string, data core.AppData) error {
	blob, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal app data: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO app_data (scope, data, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(scope) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		scope, string(blob))
	if err != nil {
		return fmt.Errorf("save app data: %w", err)
	}
	return nil
}

// LoadAppData returns the cached aggregate for the scope. A missing row
// reports found=false; a row that no longer parses is discarded and treated
// the same way, the fallback the caller substitutes is an empty aggregate.
func (r *SQLiteRepository) LoadAppData(ctx context.Context, scope string) (core.AppData, bool, error) {
	var blob string
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM app_data WHERE scope = ?`, scope).Scan(&blob)
	if err == sql.ErrNoRows {
		return core.AppData{}, false, nil
	}
	if err != nil {
		return core.AppData{}, false, fmt.Errorf("load app data: %w", err)
	}

	var data core.AppData
	if err := json.Unmarshal([]byte(blob), &data); err != nil {
		slog.WarnContext(ctx, "Discarding corrupted cached app data",
			"scope", scope, "error", err)
		if _, delErr := r.db.ExecContext(ctx,
			`DELETE FROM app_data WHERE scope = ?`, scope); delErr != nil {
			slog.ErrorContext(ctx, "Failed to discard corrupted app data",
				"scope", scope, "error", delErr)
		}
		return core.AppData{}, false, nil
	}
	return data, true, nil
}

// DeleteAppData removes the cached aggregate for the scope (session teardown).
func (r *SQLiteRepository) DeleteAppData(ctx context.Context, scope string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM app_data WHERE scope = ?`, scope); err != nil {
		return fmt.Errorf("delete app data: %w", err)
	}
	return nil
}

// EnqueueAction appends an action to the scope's sync queue.
func (r *SQLiteRepository) EnqueueAction(ctx context.Context, scope string, action core.SyncAction) error {
	if err := action.Validate(); err != nil {
		return fmt.Errorf("enqueue action: %w", err)
	}
	payload, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sync_queue (scope, kind, entity, payload) VALUES (?, ?, ?, ?)`,
		scope, string(action.Kind), string(action.Entity), string(payload))
	if err != nil {
		return fmt.Errorf("enqueue action: %w", err)
	}

	slog.DebugContext(ctx, "Sync action queued",
		"scope", scope,
		"kind", action.Kind,
		"entity", action.Entity,
		"target_id", action.TargetID)
	return nil
}

// PendingActions returns all queued actions for the scope in insertion
// order, along with the highest row id read (0 when the queue is empty).
// The row id is the watermark for ClearActionsThrough: actions enqueued
// after this read get higher ids and survive the clear. Rows that no
// longer parse are skipped with a warning.
func (r *SQLiteRepository) PendingActions(ctx context.Context, scope string) ([]core.SyncAction, int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, payload FROM sync_queue WHERE scope = ? ORDER BY id ASC`, scope)
	if err != nil {
		return nil, 0, fmt.Errorf("list pending actions: %w", err)
	}
	defer rows.Close()

	var (
		actions []core.SyncAction
		lastID  int64
	)
	for rows.Next() {
		var (
			id      int64
			payload string
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, 0, fmt.Errorf("scan pending action: %w", err)
		}
		lastID = id
		var action core.SyncAction
		if err := json.Unmarshal([]byte(payload), &action); err != nil {
			slog.WarnContext(ctx, "Skipping corrupted sync queue entry",
				"scope", scope, "row_id", id, "error", err)
			continue
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate pending actions: %w", err)
	}
	return actions, lastID, nil
}

// PendingCount returns the number of queued actions for the scope.
func (r *SQLiteRepository) PendingCount(ctx context.Context, scope string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_queue WHERE scope = ?`, scope).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending actions: %w", err)
	}
	return n, nil
}

// ClearActionsThrough deletes the scope's queued actions up to and including
// maxID, after a confirmed remote save of the replayed batch. Actions
// enqueued after the batch was read have higher row ids and are kept for the
// next pass.
func (r *SQLiteRepository) ClearActionsThrough(ctx context.Context, scope string, maxID int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM sync_queue WHERE scope = ? AND id <= ?`, scope, maxID)
	if err != nil {
		return fmt.Errorf("clear actions: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		slog.InfoContext(ctx, "Sync queue cleared", "scope", scope, "actions", n)
	}
	return nil
}

// ClearActions discards the scope's whole queue. Used when the dataset is
// replaced wholesale (a backup import) and the queued actions no longer
// apply; reconciliation clears with ClearActionsThrough instead.
func (r *SQLiteRepository) ClearActions(ctx context.Context, scope string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE scope = ?`, scope)
	if err != nil {
		return fmt.Errorf("clear actions: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		slog.InfoContext(ctx, "Sync queue discarded", "scope", scope, "actions", n)
	}
	return nil
}
