package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"bilancio/internal/connectivity"
	"bilancio/internal/core"
	"bilancio/internal/remote/memory"
	"bilancio/internal/storage"
	syncer "bilancio/internal/sync"
)

type trackerFixture struct {
	tracker *Tracker
	repo    *storage.SQLiteRepository
	remote  *memory.Store
	monitor *connectivity.Monitor
}

func newFixture(t *testing.T, online bool) *trackerFixture {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	store := memory.New()
	monitor := connectivity.New(online)

	tracker := NewTracker("alice", repo, store, monitor, nil, syncer.Config{
		RetryInterval: time.Hour, // retries only on demand in tests
		RemoteTimeout: 5 * time.Second,
	})
	if err := tracker.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { tracker.Close() })

	return &trackerFixture{tracker: tracker, repo: repo, remote: store, monitor: monitor}
}

func (f *trackerFixture) addSegment(t *testing.T, name string, allocatedCents int64) core.Segment {
	t.Helper()
	seg, err := f.tracker.AddSegment(context.Background(), name, core.Money{Cents: allocatedCents}, "")
	if err != nil {
		t.Fatalf("AddSegment(%s): %v", name, err)
	}
	return seg
}

func (f *trackerFixture) pending(t *testing.T) int {
	t.Helper()
	n, err := f.tracker.PendingCount(context.Background())
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	return n
}

func TestOnlineMutationWritesThrough(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	income, err := f.tracker.AddIncome(ctx, "Salary", core.Money{Cents: 500000}, core.NewDate(2026, 8, 1))
	if err != nil {
		t.Fatalf("AddIncome: %v", err)
	}
	if income.ID == "" {
		t.Error("expected generated income ID")
	}

	if n := f.pending(t); n != 0 {
		t.Errorf("pending = %d, want 0 for online write-through", n)
	}
	snap, ok := f.remote.Snapshot("alice")
	if !ok || len(snap.Incomes) != 1 {
		t.Errorf("remote = %+v, want the income written through", snap.Incomes)
	}
}

func TestOfflineMutationsQueue(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	seg := f.addSegment(t, "Food", 10000)
	if _, err := f.tracker.AddExpense(ctx, "Lunch", core.Money{Cents: 1250}, time.Now(), seg.ID); err != nil {
		t.Fatalf("AddExpense: %v", err)
	}

	if n := f.pending(t); n != 2 {
		t.Errorf("pending = %d, want 2 while offline", n)
	}
	if _, ok := f.remote.Snapshot("alice"); ok {
		t.Error("remote written while offline")
	}

	// Local cache holds the optimistic state.
	cached, found, err := f.repo.LoadAppData(ctx, "alice")
	if err != nil || !found {
		t.Fatalf("LoadAppData: found=%v err=%v", found, err)
	}
	if len(cached.Segments) != 1 || len(cached.Expenses) != 1 {
		t.Errorf("cache = %d segments / %d expenses, want 1/1", len(cached.Segments), len(cached.Expenses))
	}
}

func TestGoingOnlineDrainsQueue(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	income, err := f.tracker.AddIncome(ctx, "Salary", core.Money{Cents: 500000}, core.NewDate(2026, 8, 1))
	if err != nil {
		t.Fatalf("AddIncome: %v", err)
	}
	income.Title = "Salary (net)"
	if err := f.tracker.UpdateIncome(ctx, income); err != nil {
		t.Fatalf("UpdateIncome: %v", err)
	}
	seg := f.addSegment(t, "Food", 10000)
	if n := f.pending(t); n != 3 {
		t.Fatalf("pending = %d, want 3", n)
	}

	f.tracker.SetOnline(true)

	deadline := time.Now().Add(2 * time.Second)
	for f.pending(t) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("queue not drained after going online, %d left", f.pending(t))
		}
		time.Sleep(5 * time.Millisecond)
	}

	snap, ok := f.remote.Snapshot("alice")
	if !ok {
		t.Fatal("expected remote snapshot")
	}
	if len(snap.Incomes) != 1 || snap.Incomes[0].Title != "Salary (net)" {
		t.Errorf("remote incomes = %+v, want single updated income", snap.Incomes)
	}
	if len(snap.Segments) != 1 || snap.Segments[0].ID != seg.ID {
		t.Errorf("remote segments = %+v, want %s", snap.Segments, seg.ID)
	}
}

func TestMutationDuringSyncPassSurvives(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	first, err := f.tracker.AddIncome(ctx, "Salary", core.Money{Cents: 500000}, core.NewDate(2026, 8, 1))
	if err != nil {
		t.Fatalf("AddIncome: %v", err)
	}

	// Slow the remote down so the reconnect pass is still in flight when
	// the second mutation lands.
	f.remote.SetLatency(150 * time.Millisecond)
	f.tracker.SetOnline(true)
	time.Sleep(50 * time.Millisecond)

	second, err := f.tracker.AddIncome(ctx, "Bonus", core.Money{Cents: 30000}, core.NewDate(2026, 8, 20))
	if err != nil {
		t.Fatalf("AddIncome during pass: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for f.pending(t) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("queue not drained, %d left", f.pending(t))
		}
		time.Sleep(5 * time.Millisecond)
	}

	snap, ok := f.remote.Snapshot("alice")
	if !ok {
		t.Fatal("expected remote snapshot")
	}
	ids := make(map[string]bool, len(snap.Incomes))
	for _, inc := range snap.Incomes {
		ids[inc.ID] = true
	}
	if !ids[first.ID] || !ids[second.ID] {
		t.Errorf("remote incomes = %+v, want both mutations", snap.Incomes)
	}

	local := f.tracker.Snapshot()
	if len(local.Incomes) != 2 {
		t.Errorf("local incomes = %+v, want both mutations", local.Incomes)
	}
}

func TestRemoteFailureDegradesToQueue(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.remote.FailSave(errors.New("remote unavailable"))
	if _, err := f.tracker.AddIncome(ctx, "Salary", core.Money{Cents: 500000}, core.NewDate(2026, 8, 1)); err != nil {
		t.Fatalf("AddIncome should succeed despite remote failure: %v", err)
	}
	if n := f.pending(t); n != 1 {
		t.Errorf("pending = %d, want 1 after degraded write", n)
	}

	f.remote.FailSave(nil)
	if err := f.tracker.TriggerSync(ctx); err != nil {
		t.Fatalf("TriggerSync: %v", err)
	}
	if n := f.pending(t); n != 0 {
		t.Errorf("pending = %d after sync, want 0", n)
	}
}

func TestSyncCompletionNotifiesListeners(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	notified := 0
	f.tracker.OnSyncCompleted(func() { notified++ })

	// Force the mutation onto the queue so the next pass has work to do.
	f.remote.FailSave(errors.New("remote unavailable"))
	if _, err := f.tracker.AddIncome(ctx, "Salary", core.Money{Cents: 500000}, core.NewDate(2026, 8, 1)); err != nil {
		t.Fatalf("AddIncome: %v", err)
	}
	if notified != 0 {
		t.Fatalf("listener fired before any pass completed, calls = %d", notified)
	}

	f.remote.FailSave(nil)
	if err := f.tracker.TriggerSync(ctx); err != nil {
		t.Fatalf("TriggerSync: %v", err)
	}
	if notified != 1 {
		t.Errorf("listener calls = %d, want 1 after a successful pass", notified)
	}
}

func TestExpenseNeedsExistingSegment(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.tracker.AddExpense(ctx, "Lunch", core.Money{Cents: 1250}, time.Now(), "seg-x")
	if !errors.Is(err, core.ErrNoSegments) {
		t.Errorf("AddExpense with no segments = %v, want ErrNoSegments", err)
	}

	f.addSegment(t, "Food", 10000)
	_, err = f.tracker.AddExpense(ctx, "Lunch", core.Money{Cents: 1250}, time.Now(), "seg-x")
	if !errors.Is(err, core.ErrUnknownSegment) {
		t.Errorf("AddExpense with unknown segment = %v, want ErrUnknownSegment", err)
	}
}

func TestDeleteSegmentRefusedWhileReferenced(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	seg := f.addSegment(t, "Food", 10000)
	expense, err := f.tracker.AddExpense(ctx, "Lunch", core.Money{Cents: 1250}, time.Now(), seg.ID)
	if err != nil {
		t.Fatalf("AddExpense: %v", err)
	}

	if err := f.tracker.DeleteSegment(ctx, seg.ID); !errors.Is(err, core.ErrSegmentInUse) {
		t.Errorf("DeleteSegment = %v, want ErrSegmentInUse", err)
	}
	if len(f.tracker.Snapshot().Segments) != 1 {
		t.Error("refused delete must not mutate state")
	}

	if err := f.tracker.DeleteExpense(ctx, expense.ID); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	if err := f.tracker.DeleteSegment(ctx, seg.ID); err != nil {
		t.Fatalf("DeleteSegment after freeing: %v", err)
	}
	if len(f.tracker.Snapshot().Segments) != 0 {
		t.Error("segment still present after delete")
	}
}

func TestDeleteAbsentIsNoop(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	if err := f.tracker.DeleteIncome(ctx, "never-existed"); err != nil {
		t.Fatalf("DeleteIncome of absent: %v", err)
	}
	if err := f.tracker.DeleteExpense(ctx, "never-existed"); err != nil {
		t.Fatalf("DeleteExpense of absent: %v", err)
	}
}

func TestSummaryScenario(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	if _, err := f.tracker.AddIncome(ctx, "Salary", core.Money{Cents: 5000000}, core.NewDate(2026, 8, 1)); err != nil {
		t.Fatalf("AddIncome: %v", err)
	}
	seg := f.addSegment(t, "Food", 1000000)
	if _, err := f.tracker.AddExpense(ctx, "Lunch", core.Money{Cents: 50000}, time.Now(), seg.ID); err != nil {
		t.Fatalf("AddExpense: %v", err)
	}

	summary := f.tracker.Summary()
	if summary.TotalIncome.Cents != 5000000 {
		t.Errorf("TotalIncome = %d, want 5000000", summary.TotalIncome.Cents)
	}
	if summary.TotalExpenses.Cents != 50000 {
		t.Errorf("TotalExpenses = %d, want 50000", summary.TotalExpenses.Cents)
	}
	if summary.Balance.Cents != 4950000 {
		t.Errorf("Balance = %d, want 4950000", summary.Balance.Cents)
	}

	breakdown := f.tracker.SegmentBreakdown()
	if len(breakdown) != 1 {
		t.Fatalf("breakdown length = %d, want 1", len(breakdown))
	}
	if breakdown[0].Spent.Cents != 50000 || breakdown[0].Remaining.Cents != 950000 {
		t.Errorf("breakdown = spent %d remaining %d, want 50000/950000",
			breakdown[0].Spent.Cents, breakdown[0].Remaining.Cents)
	}
}

func TestReplaceAllClearsQueueWhileOffline(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	if _, err := f.tracker.AddIncome(ctx, "Old", core.Money{Cents: 100}, core.NewDate(2026, 1, 1)); err != nil {
		t.Fatalf("AddIncome: %v", err)
	}
	if n := f.pending(t); n != 1 {
		t.Fatalf("pending = %d, want 1", n)
	}

	imported := core.AppData{
		Incomes:  []core.Income{{ID: "inc-1", Title: "Imported", Amount: core.Money{Cents: 9900}, Date: core.NewDate(2026, 7, 1)}},
		Segments: []core.Segment{{ID: "seg-1", Name: "Rent", Allocated: core.Money{Cents: 80000}}},
	}
	if err := f.tracker.ReplaceAll(ctx, imported); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}

	if n := f.pending(t); n != 0 {
		t.Errorf("pending = %d after import, want 0", n)
	}
	snap := f.tracker.Snapshot()
	if len(snap.Incomes) != 1 || snap.Incomes[0].Title != "Imported" {
		t.Errorf("store = %+v, want imported income only", snap.Incomes)
	}
	if snap.Segments[0].Color == "" {
		t.Error("imported segment should get a default color")
	}
	if _, ok := f.remote.Snapshot("alice"); ok {
		t.Error("remote written while offline")
	}
}

func TestReplaceAllPushesToRemoteWhenOnline(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	imported := core.AppData{
		Incomes: []core.Income{{ID: "inc-1", Title: "Imported", Amount: core.Money{Cents: 9900}, Date: core.NewDate(2026, 7, 1)}},
	}
	if err := f.tracker.ReplaceAll(ctx, imported); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}

	remoteSnap, ok := f.remote.Snapshot("alice")
	if !ok || len(remoteSnap.Incomes) != 1 || remoteSnap.Incomes[0].Title != "Imported" {
		t.Errorf("remote = %+v, want imported snapshot pushed", remoteSnap.Incomes)
	}
}

func TestLoadFreshDevicePullsRemote(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	store := memory.New()
	ctx := context.Background()
	seeded := core.AppData{Incomes: []core.Income{{ID: "inc-1", Title: "Salary", Amount: core.Money{Cents: 100}, Date: core.NewDate(2026, 8, 1)}}}
	if err := store.Save(ctx, "alice", seeded); err != nil {
		t.Fatalf("seed remote: %v", err)
	}

	tracker := NewTracker("alice", repo, store, connectivity.New(true), nil, syncer.Config{})
	defer tracker.Close()
	if err := tracker.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	snap := tracker.Snapshot()
	if len(snap.Incomes) != 1 || snap.Incomes[0].ID != "inc-1" {
		t.Errorf("store = %+v, want remote snapshot", snap.Incomes)
	}
	if _, found, _ := repo.LoadAppData(ctx, "alice"); !found {
		t.Error("remote snapshot should be cached locally")
	}
}

func TestLoadPrefersLocalCache(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	ctx := context.Background()
	cached := core.AppData{Incomes: []core.Income{{ID: "inc-local", Title: "Local", Amount: core.Money{Cents: 100}, Date: core.NewDate(2026, 8, 1)}}}
	if err := repo.SaveAppData(ctx, "alice", cached); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	store := memory.New()
	if err := store.Save(ctx, "alice", core.AppData{}); err != nil {
		t.Fatalf("seed remote: %v", err)
	}

	tracker := NewTracker("alice", repo, store, connectivity.New(true), nil, syncer.Config{})
	defer tracker.Close()
	if err := tracker.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	snap := tracker.Snapshot()
	if len(snap.Incomes) != 1 || snap.Incomes[0].ID != "inc-local" {
		t.Errorf("store = %+v, want local cache contents", snap.Incomes)
	}
}
