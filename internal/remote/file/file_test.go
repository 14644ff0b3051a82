package file

import (
	"context"
	"testing"
	"time"

	"bilancio/internal/core"
)

func TestFetchAbsent(t *testing.T) {
	store, err := New(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	_, found, err := store.Fetch(context.Background(), "alice")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if found {
		t.Fatalf("fresh scope must report absent")
	}
}

func TestSaveFetchRoundTrip(t *testing.T) {
	store, err := New(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	data := core.AppData{
		Incomes:  []core.Income{{ID: "i1", Title: "Salary", Amount: core.Money{Cents: 5000000}, Date: core.NewDate(2024, 1, 1)}},
		Expenses: []core.Expense{{ID: "e1", Title: "Lunch", Amount: core.Money{Cents: 50000}, Timestamp: core.NewDate(2024, 1, 2).Time, SegmentID: "g1"}},
		Segments: []core.Segment{{ID: "g1", Name: "Food", Allocated: core.Money{Cents: 1000000}, Color: "#4e79a7"}},
	}
	if err := store.Save(ctx, "alice", data); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, found, err := store.Fetch(ctx, "alice")
	if err != nil || !found {
		t.Fatalf("fetch: found=%v err=%v", found, err)
	}
	if len(got.Incomes) != 1 || got.Incomes[0].Amount.Cents != 5000000 {
		t.Fatalf("unexpected incomes: %+v", got.Incomes)
	}
	if len(got.Expenses) != 1 || got.Expenses[0].SegmentID != "g1" {
		t.Fatalf("unexpected expenses: %+v", got.Expenses)
	}
	if len(got.Segments) != 1 || got.Segments[0].Color != "#4e79a7" {
		t.Fatalf("unexpected segments: %+v", got.Segments)
	}

	// other scopes stay independent
	if _, found, _ := store.Fetch(ctx, "bob"); found {
		t.Fatalf("bob should be absent")
	}
}

func TestLatencyHonorsCancellation(t *testing.T) {
	store, err := New(t.TempDir(), 5*time.Second)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, err = store.Fetch(ctx, "alice")
	if err == nil {
		t.Fatalf("expected context error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("fetch did not return promptly on cancellation")
	}
}

func TestScopeNameSanitized(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, 0)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	if err := store.Save(ctx, "../../etc/passwd", core.AppData{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, found, err := store.Fetch(ctx, "../../etc/passwd"); err != nil || !found {
		t.Fatalf("sanitized scope should round-trip: found=%v err=%v", found, err)
	}
}
