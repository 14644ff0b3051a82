// Package sync implements the reconciliation engine: when connectivity
// returns, queued local mutations are replayed in insertion order against a
// freshly fetched remote snapshot, the merged result is pushed back to the
// remote and then replaces both the entity store and the local cache.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/remote"
	"bilancio/internal/storage"
)

// Config holds configuration for the sync engine.
type Config struct {
	// RetryInterval is how often a non-empty queue is retried while online,
	// independent of the online-transition trigger (default: 30s).
	RetryInterval time.Duration

	// RemoteTimeout bounds each reconciliation pass so a hung remote call
	// cannot leave the engine syncing forever (default: 30s).
	RemoteTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RetryInterval: 30 * time.Second,
		RemoteTimeout: 30 * time.Second,
	}
}

// ConnectivitySource reports the current online/offline state.
type ConnectivitySource interface {
	IsOnline() bool
}

// Notifier receives a fire-and-forget signal after each successful pass.
// A nil Notifier is valid.
type Notifier interface {
	SyncCompleted(ctx context.Context, scope string, actions int, took time.Duration)
}

// ApplyFunc installs the merged snapshot into the in-memory entity store.
type ApplyFunc func(core.AppData)

// Engine drains the sync queue against the remote store for a single scope.
type Engine struct {
	scope    string
	storage  *storage.SQLiteRepository
	remote   remote.Store
	online   ConnectivitySource
	apply    ApplyFunc
	notifier Notifier
	config   Config

	syncing atomic.Bool // busy flag: one pass at a time

	// Retry loop lifecycle
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func New(scope string, repo *storage.SQLiteRepository, store remote.Store, online ConnectivitySource, apply ApplyFunc, config Config) *Engine {
	if config.RetryInterval <= 0 {
		config.RetryInterval = DefaultConfig().RetryInterval
	}
	if config.RemoteTimeout <= 0 {
		config.RemoteTimeout = DefaultConfig().RemoteTimeout
	}
	return &Engine{
		scope:   scope,
		storage: repo,
		remote:  store,
		online:  online,
		apply:   apply,
		config:  config,
	}
}

// SetNotifier installs an optional completion notifier.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// IsSyncing reports whether a reconciliation pass is currently in flight.
func (e *Engine) IsSyncing() bool {
	return e.syncing.Load()
}

// Reconcile drains the sync queue. It returns immediately, without touching
// any state, when offline, when a pass is already in progress, or when the
// queue is empty. Mutations recorded while a pass is in flight join the
// queue behind the batch being replayed; Reconcile keeps running passes
// until no such tail remains, so nothing durably queued is ever dropped.
// On failure the unreplayed queue is left intact for the next trigger; the
// busy flag is always cleared.
func (e *Engine) Reconcile(ctx context.Context) error {
	if !e.online.IsOnline() {
		return nil
	}
	if !e.syncing.CompareAndSwap(false, true) {
		slog.DebugContext(ctx, "Reconciliation already in progress", "scope", e.scope)
		return nil
	}
	defer e.syncing.Store(false)

	for {
		again, err := e.pass(ctx)
		if err != nil {
			return err
		}
		if !again {
			return nil
		}
		slog.DebugContext(ctx, "Replaying actions queued during the pass", "scope", e.scope)
	}
}

// pass replays one batch against the remote. It reports whether more actions
// arrived behind the batch and a further pass is needed.
func (e *Engine) pass(ctx context.Context) (bool, error) {
	actions, lastID, err := e.storage.PendingActions(ctx, e.scope)
	if err != nil {
		return false, fmt.Errorf("read sync queue: %w", err)
	}
	if len(actions) == 0 {
		return false, nil
	}

	start := time.Now()
	rctx, cancel := context.WithTimeout(ctx, e.config.RemoteTimeout)
	defer cancel()

	// The remote is authoritative for anything not in the local queue:
	// another device may have changed things since we went offline.
	snapshot, found, err := e.remote.Fetch(rctx, e.scope)
	if err != nil {
		return false, fmt.Errorf("fetch remote snapshot: %w", err)
	}
	if !found {
		snapshot = core.AppData{}
	}

	replayed := 0
	for _, action := range actions {
		if err := action.Validate(); err != nil {
			slog.WarnContext(ctx, "Skipping malformed queued action",
				"scope", e.scope, "action_id", action.ID, "error", err)
			continue
		}
		if updateBecameAdd := snapshot.Apply(action); updateBecameAdd {
			// This masks the record having vanished remotely (a reset, or a
			// delete from another source); keep it observable.
			slog.WarnContext(ctx, "Queued update applied as add: record missing from remote",
				"scope", e.scope,
				"entity", action.Entity,
				"target_id", action.TargetID)
		}
		replayed++
	}

	if err := e.remote.Save(rctx, e.scope, snapshot); err != nil {
		return false, fmt.Errorf("save merged snapshot: %w", err)
	}

	// The remote write is confirmed: merged state now replaces the local
	// optimistic state, and only then is the replayed batch cleared. The
	// clear stops at the batch watermark so actions queued while the remote
	// round-trip was in flight stay queued.
	if err := e.storage.SaveAppData(ctx, e.scope, snapshot); err != nil {
		return false, fmt.Errorf("persist merged snapshot: %w", err)
	}
	if e.apply != nil {
		e.apply(snapshot.Clone())
	}
	if err := e.storage.ClearActionsThrough(ctx, e.scope, lastID); err != nil {
		return false, fmt.Errorf("clear sync queue: %w", err)
	}

	remaining, err := e.storage.PendingCount(ctx, e.scope)
	if err != nil {
		return false, fmt.Errorf("recheck sync queue: %w", err)
	}

	took := time.Since(start)
	slog.InfoContext(ctx, "Reconciliation completed",
		"scope", e.scope,
		"actions", replayed,
		"incomes", len(snapshot.Incomes),
		"expenses", len(snapshot.Expenses),
		"segments", len(snapshot.Segments),
		"duration_ms", took.Milliseconds())

	if e.notifier != nil {
		e.notifier.SyncCompleted(ctx, e.scope, replayed, took)
	}
	return remaining > 0, nil
}

// Start begins the periodic retry loop. The loop is a safety net for queues
// that outlive an online transition (for example when the transition's pass
// failed against a flaky remote). Returns an error if already running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("sync engine is already running")
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	stopCh, doneCh := e.stopCh, e.doneCh
	e.mu.Unlock()

	go e.runLoop(ctx, stopCh, doneCh)

	slog.InfoContext(ctx, "Sync engine started",
		"scope", e.scope,
		"retry_interval", e.config.RetryInterval,
		"remote_timeout", e.config.RemoteTimeout)
	return nil
}

// Stop gracefully stops the retry loop and waits for completion.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	stopCh, doneCh := e.stopCh, e.doneCh
	e.mu.Unlock()

	close(stopCh)

	// The loop resets the running flag before closing doneCh.
	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Sync engine stopped gracefully", "scope", e.scope)
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync engine stop timed out", "scope", e.scope)
		return ctx.Err()
	}
	return nil
}

// IsRunning returns whether the retry loop is active.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) runLoop(ctx context.Context, stopCh, doneCh chan struct{}) {
	// Exiting via ctx cancellation must leave the engine restartable, so
	// the running flag is reset here and not only in Stop.
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		close(doneCh)
	}()

	ticker := time.NewTicker(e.config.RetryInterval)
	defer ticker.Stop()

	// Drain anything left over from a previous run
	e.tryReconcile(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tryReconcile(ctx)
		}
	}
}

func (e *Engine) tryReconcile(ctx context.Context) {
	if err := e.Reconcile(ctx); err != nil {
		slog.ErrorContext(ctx, "Reconciliation failed, queue kept for retry",
			"scope", e.scope, "error", err)
	}
}
