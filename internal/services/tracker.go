package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/amqp"
	"bilancio/internal/connectivity"
	"bilancio/internal/core"
	"bilancio/internal/remote"
	"bilancio/internal/storage"
	syncer "bilancio/internal/sync"
)

// Tracker orchestrates the in-memory entity store, the SQLite cache and
// queue, the remote store and the sync engine for a single scope. Mutations
// are optimistic: they land in memory and in the local cache first, then
// either write through to the remote or join the sync queue.
type Tracker struct {
	scope      string
	storage    *storage.SQLiteRepository
	remote     remote.Store
	monitor    *connectivity.Monitor
	engine     *syncer.Engine
	amqpClient *amqp.Client

	remoteTimeout time.Duration

	mu            sync.RWMutex
	data          core.AppData
	loading       bool
	syncListeners []func()
}

func NewTracker(scope string, repo *storage.SQLiteRepository, store remote.Store, monitor *connectivity.Monitor, amqpClient *amqp.Client, syncConfig syncer.Config) *Tracker {
	t := &Tracker{
		scope:         scope,
		storage:       repo,
		remote:        store,
		monitor:       monitor,
		amqpClient:    amqpClient,
		remoteTimeout: syncConfig.RemoteTimeout,
	}
	if t.remoteTimeout <= 0 {
		t.remoteTimeout = syncer.DefaultConfig().RemoteTimeout
	}

	t.engine = syncer.New(scope, repo, store, monitor, t.installSnapshot, syncConfig)
	t.engine.SetNotifier(t)

	// Coming back online is the main sync trigger; the engine's own ticker
	// covers queues that survive a failed pass.
	monitor.Subscribe(func(online bool) {
		if !online {
			return
		}
		go func() {
			if err := t.engine.Reconcile(context.Background()); err != nil {
				slog.Error("Reconciliation after reconnect failed", "scope", t.scope, "error", err)
			}
		}()
	})

	return t
}

// Load hydrates the entity store: local cache first, remote as a fallback for
// a fresh device. Must be called before serving requests.
func (t *Tracker) Load(ctx context.Context) error {
	t.mu.Lock()
	t.loading = true
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.loading = false
		t.mu.Unlock()
	}()

	data, found, err := t.storage.LoadAppData(ctx, t.scope)
	if err != nil {
		return fmt.Errorf("load local cache: %w", err)
	}

	if !found && t.monitor.IsOnline() {
		rctx, cancel := context.WithTimeout(ctx, t.remoteTimeout)
		defer cancel()

		remoteData, remoteFound, err := t.remote.Fetch(rctx, t.scope)
		if err != nil {
			slog.WarnContext(ctx, "Remote fetch during load failed, starting empty",
				"scope", t.scope, "error", err)
		} else if remoteFound {
			data = remoteData
			found = true
			if err := t.storage.SaveAppData(ctx, t.scope, data); err != nil {
				return fmt.Errorf("cache remote snapshot: %w", err)
			}
		}
	}

	data.AssignDefaultColors()

	t.mu.Lock()
	t.data = data
	t.mu.Unlock()

	pending, err := t.storage.PendingCount(ctx, t.scope)
	if err != nil {
		return fmt.Errorf("count pending actions: %w", err)
	}
	slog.InfoContext(ctx, "Tracker loaded",
		"scope", t.scope,
		"cached", found,
		"incomes", len(data.Incomes),
		"expenses", len(data.Expenses),
		"segments", len(data.Segments),
		"pending_actions", pending)
	return nil
}

// Start launches the sync engine's retry loop.
func (t *Tracker) Start(ctx context.Context) error {
	return t.engine.Start(ctx)
}

// Stop shuts the sync engine down.
func (t *Tracker) Stop(ctx context.Context) error {
	return t.engine.Stop(ctx)
}

// AddIncome validates and stores a new income.
func (t *Tracker) AddIncome(ctx context.Context, title string, amount core.Money, date core.Date) (core.Income, error) {
	income := core.Income{
		ID:     uuid.NewString(),
		Title:  title,
		Amount: amount,
		Date:   date,
	}
	if err := income.Validate(); err != nil {
		return core.Income{}, err
	}
	if err := t.mutate(ctx, core.NewAddIncome(income)); err != nil {
		return core.Income{}, err
	}
	return income, nil
}

// UpdateIncome replaces an income by ID. An unknown ID is stored as a new
// record, matching queue replay semantics.
func (t *Tracker) UpdateIncome(ctx context.Context, income core.Income) error {
	if income.ID == "" {
		return core.ErrNotFound
	}
	if err := income.Validate(); err != nil {
		return err
	}
	return t.mutate(ctx, core.NewUpdateIncome(income))
}

// DeleteIncome removes an income. Deleting an absent ID is a no-op.
func (t *Tracker) DeleteIncome(ctx context.Context, id string) error {
	if id == "" {
		return core.ErrNotFound
	}
	return t.mutate(ctx, core.NewDelete(core.EntityIncome, id))
}

// AddExpense validates and stores a new expense. Refused while no segments
// exist or when the segment is unknown.
func (t *Tracker) AddExpense(ctx context.Context, title string, amount core.Money, timestamp time.Time, segmentID string) (core.Expense, error) {
	expense := core.Expense{
		ID:        uuid.NewString(),
		Title:     title,
		Amount:    amount,
		Timestamp: timestamp.UTC(),
		SegmentID: segmentID,
	}
	if err := expense.Validate(); err != nil {
		return core.Expense{}, err
	}
	if err := t.checkSegmentRef(segmentID); err != nil {
		return core.Expense{}, err
	}
	if err := t.mutate(ctx, core.NewAddExpense(expense)); err != nil {
		return core.Expense{}, err
	}
	return expense, nil
}

// UpdateExpense replaces an expense by ID.
func (t *Tracker) UpdateExpense(ctx context.Context, expense core.Expense) error {
	if expense.ID == "" {
		return core.ErrNotFound
	}
	expense.Timestamp = expense.Timestamp.UTC()
	if err := expense.Validate(); err != nil {
		return err
	}
	if err := t.checkSegmentRef(expense.SegmentID); err != nil {
		return err
	}
	return t.mutate(ctx, core.NewUpdateExpense(expense))
}

// DeleteExpense removes an expense. Deleting an absent ID is a no-op.
func (t *Tracker) DeleteExpense(ctx context.Context, id string) error {
	if id == "" {
		return core.ErrNotFound
	}
	return t.mutate(ctx, core.NewDelete(core.EntityExpense, id))
}

// AddSegment validates and stores a new budget segment. An empty color gets
// the next palette default.
func (t *Tracker) AddSegment(ctx context.Context, name string, allocated core.Money, color string) (core.Segment, error) {
	if color == "" {
		t.mu.RLock()
		color = core.DefaultColor(len(t.data.Segments))
		t.mu.RUnlock()
	}
	segment := core.Segment{
		ID:        uuid.NewString(),
		Name:      name,
		Allocated: allocated,
		Color:     color,
	}
	if err := segment.Validate(); err != nil {
		return core.Segment{}, err
	}
	if err := t.mutate(ctx, core.NewAddSegment(segment)); err != nil {
		return core.Segment{}, err
	}
	return segment, nil
}

// UpdateSegment replaces a segment by ID. An empty color keeps the stored
// one.
func (t *Tracker) UpdateSegment(ctx context.Context, segment core.Segment) error {
	if segment.ID == "" {
		return core.ErrNotFound
	}
	if segment.Color == "" {
		t.mu.RLock()
		if existing, ok := t.data.SegmentByID(segment.ID); ok {
			segment.Color = existing.Color
		}
		t.mu.RUnlock()
	}
	if err := segment.Validate(); err != nil {
		return err
	}
	return t.mutate(ctx, core.NewUpdateSegment(segment))
}

// DeleteSegment removes a segment. Refused with ErrSegmentInUse while any
// expense still references it; deleting an absent ID is a no-op.
func (t *Tracker) DeleteSegment(ctx context.Context, id string) error {
	if id == "" {
		return core.ErrNotFound
	}
	t.mu.RLock()
	inUse := t.data.SegmentInUse(id)
	t.mu.RUnlock()
	if inUse {
		return core.ErrSegmentInUse
	}
	return t.mutate(ctx, core.NewDelete(core.EntitySegment, id))
}

// ReplaceAll overwrites the whole dataset from an imported backup: the queue
// is discarded because its actions refer to pre-import state.
func (t *Tracker) ReplaceAll(ctx context.Context, data core.AppData) error {
	data.AssignDefaultColors()

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.storage.SaveAppData(ctx, t.scope, data); err != nil {
		return fmt.Errorf("persist imported data: %w", err)
	}
	if err := t.storage.ClearActions(ctx, t.scope); err != nil {
		return fmt.Errorf("clear sync queue: %w", err)
	}
	t.data = data

	if t.monitor.IsOnline() {
		rctx, cancel := context.WithTimeout(ctx, t.remoteTimeout)
		defer cancel()
		if err := t.remote.Save(rctx, t.scope, data); err != nil {
			// The next write-through or reconciliation will push it.
			slog.WarnContext(ctx, "Remote push of imported data failed",
				"scope", t.scope, "error", err)
		}
	}

	slog.InfoContext(ctx, "Dataset replaced from import",
		"scope", t.scope,
		"incomes", len(data.Incomes),
		"expenses", len(data.Expenses),
		"segments", len(data.Segments))
	return nil
}

// Snapshot returns a copy of the current dataset.
func (t *Tracker) Snapshot() core.AppData {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.data.Clone()
}

// Summary returns the overall totals.
func (t *Tracker) Summary() core.Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return core.Summarize(t.data)
}

// SegmentBreakdown returns per-segment spend in insertion order.
func (t *Tracker) SegmentBreakdown() []core.SegmentSpend {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return core.SegmentBreakdown(t.data)
}

// Scope returns the dataset scope this tracker serves.
func (t *Tracker) Scope() string {
	return t.scope
}

func (t *Tracker) IsOnline() bool {
	return t.monitor.IsOnline()
}

func (t *Tracker) IsSyncing() bool {
	return t.engine.IsSyncing()
}

func (t *Tracker) IsLoading() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.loading
}

// PendingCount reports how many actions wait in the sync queue.
func (t *Tracker) PendingCount(ctx context.Context) (int, error) {
	return t.storage.PendingCount(ctx, t.scope)
}

// TriggerSync runs one reconciliation pass immediately.
func (t *Tracker) TriggerSync(ctx context.Context) error {
	return t.engine.Reconcile(ctx)
}

// SetOnline flips connectivity state, for surfaces that let the user toggle
// it manually.
func (t *Tracker) SetOnline(online bool) {
	t.monitor.SetOnline(online)
}

// OnSyncCompleted registers a callback invoked after every successful
// reconciliation pass, once the merged snapshot is installed. Derived caches
// hang off this: a pass triggered by the retry loop or a reconnect changes
// the dataset without any handler running.
func (t *Tracker) OnSyncCompleted(fn func()) {
	t.mu.Lock()
	t.syncListeners = append(t.syncListeners, fn)
	t.mu.Unlock()
}

// SyncCompleted implements the sync engine's notifier: registered listeners
// fire first, then the event goes out over AMQP.
func (t *Tracker) SyncCompleted(ctx context.Context, scope string, actions int, took time.Duration) {
	t.mu.RLock()
	listeners := make([]func(), len(t.syncListeners))
	copy(listeners, t.syncListeners)
	t.mu.RUnlock()
	for _, fn := range listeners {
		fn()
	}

	if err := t.amqpClient.PublishEvent(ctx, amqp.NewSyncCompleted(scope, actions, took)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync completed event",
			"scope", scope, "error", err)
	}
}

// mutate applies one action to the in-memory store and the local cache, then
// routes it to the remote (online, empty queue) or the sync queue.
func (t *Tracker) mutate(ctx context.Context, action core.SyncAction) error {
	if err := action.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if updateBecameAdd := t.data.Apply(action); updateBecameAdd {
		slog.WarnContext(ctx, "Update of unknown record stored as add",
			"scope", t.scope,
			"entity", action.Entity,
			"target_id", action.TargetID)
	}
	snapshot := t.data.Clone()

	if err := t.storage.SaveAppData(ctx, t.scope, snapshot); err != nil {
		return fmt.Errorf("persist local cache: %w", err)
	}

	queued, err := t.record(ctx, action, snapshot)
	if err != nil {
		return err
	}

	t.publishMutation(ctx, action, queued)
	return nil
}

// record writes the mutation through to the remote when that is safe, and
// appends it to the sync queue otherwise. Returns whether it was queued.
func (t *Tracker) record(ctx context.Context, action core.SyncAction, snapshot core.AppData) (bool, error) {
	pending, err := t.storage.PendingCount(ctx, t.scope)
	if err != nil {
		return false, fmt.Errorf("count pending actions: %w", err)
	}

	if t.monitor.IsOnline() && pending == 0 {
		rctx, cancel := context.WithTimeout(ctx, t.remoteTimeout)
		defer cancel()

		saveErr := t.remote.Save(rctx, t.scope, snapshot)
		if saveErr == nil {
			return false, nil
		}
		// Degrade to the queue so the mutation is never lost; the retry
		// loop will reconcile once the remote recovers.
		slog.WarnContext(ctx, "Remote write failed, queueing mutation",
			"scope", t.scope,
			"entity", action.Entity,
			"kind", action.Kind,
			"error", saveErr)
	}

	if err := t.storage.EnqueueAction(ctx, t.scope, action); err != nil {
		return false, fmt.Errorf("enqueue action: %w", err)
	}
	return true, nil
}

func (t *Tracker) publishMutation(ctx context.Context, action core.SyncAction, queued bool) {
	event := amqp.NewMutationRecorded(t.scope, action.Kind, action.Entity, action.TargetID, queued)
	if err := t.amqpClient.PublishEvent(ctx, event); err != nil {
		slog.ErrorContext(ctx, "Failed to publish mutation event",
			"scope", t.scope, "error", err)
	}
}

func (t *Tracker) checkSegmentRef(segmentID string) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.data.Segments) == 0 {
		return core.ErrNoSegments
	}
	if _, ok := t.data.SegmentByID(segmentID); !ok {
		return core.ErrUnknownSegment
	}
	return nil
}

// installSnapshot replaces the in-memory store after a reconciliation pass.
func (t *Tracker) installSnapshot(data core.AppData) {
	t.mu.Lock()
	t.data = data
	t.mu.Unlock()
}

// Close releases storage and AMQP resources.
func (t *Tracker) Close() error {
	var errs []error

	if t.storage != nil {
		if err := t.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if err := t.amqpClient.Close(); err != nil {
		errs = append(errs, fmt.Errorf("amqp: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("close tracker: %v", errs)
	}
	return nil
}
