package sync

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/remote/memory"
	"bilancio/internal/storage"
)

type stubOnline struct{ online bool }

func (s *stubOnline) IsOnline() bool { return s.online }

type captureNotifier struct {
	scope   string
	actions int
	calls   int
}

func (n *captureNotifier) SyncCompleted(_ context.Context, scope string, actions int, _ time.Duration) {
	n.scope = scope
	n.actions = actions
	n.calls++
}

func newTestRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testSegment() core.Segment {
	return core.Segment{ID: "seg-1", Name: "Food", Allocated: core.Money{Cents: 10000}, Color: "#e74c3c"}
}

func testIncome() core.Income {
	return core.Income{ID: "inc-1", Title: "Salary", Amount: core.Money{Cents: 500000}, Date: core.NewDate(2026, 8, 1)}
}

func testExpense() core.Expense {
	return core.Expense{ID: "exp-1", Title: "Lunch", Amount: core.Money{Cents: 1250}, Timestamp: time.Date(2026, 8, 14, 12, 30, 0, 0, time.UTC), SegmentID: "seg-1"}
}

func TestReconcileDrainsQueue(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	store := memory.New()
	online := &stubOnline{online: true}

	var applied *core.AppData
	engine := New("alice", repo, store, online, func(d core.AppData) { applied = &d }, DefaultConfig())
	notifier := &captureNotifier{}
	engine.SetNotifier(notifier)

	income := testIncome()
	updated := income
	updated.Title = "Salary (August)"
	expense := testExpense()

	for _, a := range []core.SyncAction{
		core.NewAddSegment(testSegment()),
		core.NewAddIncome(income),
		core.NewUpdateIncome(updated),
		core.NewAddExpense(expense),
		core.NewDelete(core.EntityExpense, expense.ID),
	} {
		if err := repo.EnqueueAction(ctx, "alice", a); err != nil {
			t.Fatalf("EnqueueAction: %v", err)
		}
	}

	if err := engine.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	count, err := repo.PendingCount(ctx, "alice")
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty queue after reconcile, got %d actions", count)
	}

	snap, ok := store.Snapshot("alice")
	if !ok {
		t.Fatal("expected remote snapshot after reconcile")
	}
	if len(snap.Incomes) != 1 || snap.Incomes[0].Title != "Salary (August)" {
		t.Errorf("remote incomes = %+v, want single updated income", snap.Incomes)
	}
	if len(snap.Expenses) != 0 {
		t.Errorf("remote expenses = %+v, want none (added then deleted)", snap.Expenses)
	}
	if len(snap.Segments) != 1 || snap.Segments[0].ID != "seg-1" {
		t.Errorf("remote segments = %+v, want seg-1", snap.Segments)
	}

	cached, found, err := repo.LoadAppData(ctx, "alice")
	if err != nil || !found {
		t.Fatalf("LoadAppData: found=%v err=%v", found, err)
	}
	if len(cached.Incomes) != 1 || cached.Incomes[0].Title != "Salary (August)" {
		t.Errorf("local cache incomes = %+v, want merged snapshot", cached.Incomes)
	}

	if applied == nil {
		t.Fatal("expected apply callback to run")
	}
	if len(applied.Incomes) != 1 {
		t.Errorf("applied incomes = %+v, want 1", applied.Incomes)
	}

	if notifier.calls != 1 || notifier.scope != "alice" || notifier.actions != 5 {
		t.Errorf("notifier = %+v, want one call for alice with 5 actions", notifier)
	}
	if engine.IsSyncing() {
		t.Error("busy flag still set after reconcile")
	}
}

func TestReconcileOfflineIsNoop(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	store := memory.New()
	engine := New("alice", repo, store, &stubOnline{online: false}, nil, DefaultConfig())

	if err := repo.EnqueueAction(ctx, "alice", core.NewAddIncome(testIncome())); err != nil {
		t.Fatalf("EnqueueAction: %v", err)
	}
	if err := engine.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	count, _ := repo.PendingCount(ctx, "alice")
	if count != 1 {
		t.Errorf("queue length = %d, want 1 (untouched while offline)", count)
	}
	if fetches, saves := store.Counts(); fetches != 0 || saves != 0 {
		t.Errorf("remote touched while offline: fetches=%d saves=%d", fetches, saves)
	}
}

func TestReconcileEmptyQueueSkipsRemote(t *testing.T) {
	ctx := context.Background()
	engine := New("alice", newTestRepo(t), memory.New(), &stubOnline{online: true}, nil, DefaultConfig())

	if err := engine.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
}

func TestReconcileFailedSaveKeepsQueue(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	store := memory.New()
	engine := New("alice", repo, store, &stubOnline{online: true}, nil, DefaultConfig())

	if err := repo.EnqueueAction(ctx, "alice", core.NewAddIncome(testIncome())); err != nil {
		t.Fatalf("EnqueueAction: %v", err)
	}

	store.FailSave(errors.New("remote unavailable"))
	if err := engine.Reconcile(ctx); err == nil {
		t.Fatal("expected error when remote save fails")
	}

	count, _ := repo.PendingCount(ctx, "alice")
	if count != 1 {
		t.Errorf("queue length = %d, want 1 after failed save", count)
	}
	if engine.IsSyncing() {
		t.Error("busy flag still set after failed reconcile")
	}

	// Remote recovers: the same queue drains on the next pass.
	store.FailSave(nil)
	if err := engine.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile after recovery: %v", err)
	}
	count, _ = repo.PendingCount(ctx, "alice")
	if count != 0 {
		t.Errorf("queue length = %d after recovery, want 0", count)
	}
}

func TestReconcileFailedFetchKeepsQueue(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	store := memory.New()
	engine := New("alice", repo, store, &stubOnline{online: true}, nil, DefaultConfig())

	if err := repo.EnqueueAction(ctx, "alice", core.NewAddIncome(testIncome())); err != nil {
		t.Fatalf("EnqueueAction: %v", err)
	}

	store.FailFetch(errors.New("remote unavailable"))
	if err := engine.Reconcile(ctx); err == nil {
		t.Fatal("expected error when remote fetch fails")
	}
	if _, ok := store.Snapshot("alice"); ok {
		t.Error("nothing should have been saved after a failed fetch")
	}
	count, _ := repo.PendingCount(ctx, "alice")
	if count != 1 {
		t.Errorf("queue length = %d, want 1 after failed fetch", count)
	}
}

func TestReconcileDeleteOfAbsentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	store := memory.New()
	engine := New("alice", repo, store, &stubOnline{online: true}, nil, DefaultConfig())

	if err := repo.EnqueueAction(ctx, "alice", core.NewDelete(core.EntityIncome, "never-existed")); err != nil {
		t.Fatalf("EnqueueAction: %v", err)
	}
	if err := engine.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	count, _ := repo.PendingCount(ctx, "alice")
	if count != 0 {
		t.Errorf("queue length = %d, want 0 after deleting absent record", count)
	}
}

func TestReconcileUpdateOfMissingBecomesAdd(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	store := memory.New()
	engine := New("alice", repo, store, &stubOnline{online: true}, nil, DefaultConfig())

	if err := repo.EnqueueAction(ctx, "alice", core.NewUpdateIncome(testIncome())); err != nil {
		t.Fatalf("EnqueueAction: %v", err)
	}
	if err := engine.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	snap, ok := store.Snapshot("alice")
	if !ok || len(snap.Incomes) != 1 || snap.Incomes[0].ID != "inc-1" {
		t.Errorf("remote = %+v, want update of missing income applied as add", snap.Incomes)
	}
}

func TestReconcilePreservesRemoteChanges(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	store := memory.New()
	engine := New("alice", repo, store, &stubOnline{online: true}, nil, DefaultConfig())

	// Another device wrote while we were offline.
	other := core.Income{ID: "inc-other", Title: "Refund", Amount: core.Money{Cents: 4200}, Date: core.NewDate(2026, 8, 10)}
	if err := store.Save(ctx, "alice", core.AppData{Incomes: []core.Income{other}}); err != nil {
		t.Fatalf("seed remote: %v", err)
	}

	if err := repo.EnqueueAction(ctx, "alice", core.NewAddSegment(testSegment())); err != nil {
		t.Fatalf("EnqueueAction: %v", err)
	}
	if err := engine.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	snap, _ := store.Snapshot("alice")
	if len(snap.Incomes) != 1 || snap.Incomes[0].ID != "inc-other" {
		t.Errorf("remote incomes = %+v, want the other device's income preserved", snap.Incomes)
	}
	if len(snap.Segments) != 1 {
		t.Errorf("remote segments = %+v, want queued segment merged in", snap.Segments)
	}
}

// enqueueOnFetch queues one extra action the first time the remote is
// fetched, after the pass has already read its batch. That is the window a
// mutation recorded by another goroutine falls into.
type enqueueOnFetch struct {
	*memory.Store
	t      *testing.T
	repo   *storage.SQLiteRepository
	action core.SyncAction
	fired  bool
}

func (s *enqueueOnFetch) Fetch(ctx context.Context, scope string) (core.AppData, bool, error) {
	if !s.fired {
		s.fired = true
		if err := s.repo.EnqueueAction(ctx, scope, s.action); err != nil {
			s.t.Fatalf("EnqueueAction mid-pass: %v", err)
		}
	}
	return s.Store.Fetch(ctx, scope)
}

func TestReconcileKeepsMutationQueuedMidPass(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	late := core.Income{ID: "inc-2", Title: "Bonus", Amount: core.Money{Cents: 30000}, Date: core.NewDate(2026, 8, 20)}
	store := &enqueueOnFetch{Store: memory.New(), t: t, repo: repo, action: core.NewAddIncome(late)}
	engine := New("alice", repo, store, &stubOnline{online: true}, nil, DefaultConfig())

	if err := repo.EnqueueAction(ctx, "alice", core.NewAddIncome(testIncome())); err != nil {
		t.Fatalf("EnqueueAction: %v", err)
	}
	if err := engine.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	count, err := repo.PendingCount(ctx, "alice")
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	if count != 0 {
		t.Errorf("queue length = %d, want 0 once the tail has replayed", count)
	}

	snap, ok := store.Snapshot("alice")
	if !ok || len(snap.Incomes) != 2 {
		t.Fatalf("remote incomes = %+v, want the batch and the mid-pass income", snap.Incomes)
	}
	cached, found, err := repo.LoadAppData(ctx, "alice")
	if err != nil || !found {
		t.Fatalf("LoadAppData: found=%v err=%v", found, err)
	}
	if len(cached.Incomes) != 2 {
		t.Errorf("local cache incomes = %+v, want both incomes", cached.Incomes)
	}
}

func TestReconcileConcurrentPassIsNoop(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	store := memory.New()
	store.SetLatency(100 * time.Millisecond)
	engine := New("alice", repo, store, &stubOnline{online: true}, nil, DefaultConfig())

	if err := repo.EnqueueAction(ctx, "alice", core.NewAddIncome(testIncome())); err != nil {
		t.Fatalf("EnqueueAction: %v", err)
	}

	firstDone := make(chan error, 1)
	go func() { firstDone <- engine.Reconcile(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !engine.IsSyncing() {
		if time.Now().After(deadline) {
			t.Fatal("first reconcile never started")
		}
		time.Sleep(time.Millisecond)
	}

	// Second pass while the first is mid-flight must return without work.
	if err := engine.Reconcile(ctx); err != nil {
		t.Fatalf("concurrent Reconcile: %v", err)
	}
	if err := <-firstDone; err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}

	if _, saves := store.Counts(); saves != 1 {
		t.Errorf("saves = %d, want exactly 1", saves)
	}
}

func TestEngineStartStop(t *testing.T) {
	ctx := context.Background()
	engine := New("alice", newTestRepo(t), memory.New(), &stubOnline{online: true}, nil, Config{
		RetryInterval: 10 * time.Millisecond,
		RemoteTimeout: time.Second,
	})

	if err := engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !engine.IsRunning() {
		t.Error("expected engine to be running")
	}
	if err := engine.Start(ctx); err == nil {
		t.Error("expected error starting an already running engine")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := engine.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if engine.IsRunning() {
		t.Error("expected engine to be stopped")
	}
	if err := engine.Stop(stopCtx); err != nil {
		t.Fatalf("Stop when already stopped: %v", err)
	}
}

func TestEngineRestartsAfterContextCancel(t *testing.T) {
	engine := New("alice", newTestRepo(t), memory.New(), &stubOnline{online: true}, nil, Config{
		RetryInterval: 10 * time.Millisecond,
		RemoteTimeout: time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	if err := engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for engine.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("engine still reports running after context cancellation")
		}
		time.Sleep(time.Millisecond)
	}

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("Start after cancellation: %v", err)
	}
	if err := engine.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestEngineRetryLoopDrainsQueue(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	store := memory.New()
	engine := New("alice", repo, store, &stubOnline{online: true}, nil, Config{
		RetryInterval: 10 * time.Millisecond,
		RemoteTimeout: time.Second,
	})

	if err := repo.EnqueueAction(ctx, "alice", core.NewAddIncome(testIncome())); err != nil {
		t.Fatalf("EnqueueAction: %v", err)
	}
	if err := engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer engine.Stop(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		count, err := repo.PendingCount(ctx, "alice")
		if err != nil {
			t.Fatalf("PendingCount: %v", err)
		}
		if count == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("queue not drained by retry loop, %d actions left", count)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
