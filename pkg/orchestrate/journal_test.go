package orchestrate

import (
	"context"
	"testing"

	"github.com/conveyordev/conveyor/pkg/backend"
	"github.com/conveyordev/conveyor/pkg/kv"
)

func newTestStore() kv.Store {
	return kv.NewMemoryStore()
}

func TestJournalRoundTrip(t *testing.T) {
	j := NewJournal(newTestStore(), "test")
	ctx := context.Background()

	first := newJobHandle("run-0001", "etl/load", nil, nil)
	second := newJobHandle("run-0002", "etl/load", nil, nil)
	if err := j.RecordSubmitted(ctx, "nightly", first); err != nil {
		t.Fatalf("RecordSubmitted: %v", err)
	}
	if err := j.RecordSubmitted(ctx, "nightly", second); err != nil {
		t.Fatalf("RecordSubmitted: %v", err)
	}

	entries, err := j.LoadBatch(ctx, "nightly")
	if err != nil {
		t.Fatalf("LoadBatch: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].ID != "run-0001" || entries[1].ID != "run-0002" {
		t.Errorf("entries out of submission order: %s, %s", entries[0].ID, entries[1].ID)
	}
	if entries[0].State != backend.StatePending {
		t.Errorf("initial state = %s, want pending", entries[0].State)
	}
}

func TestJournalRecordResult(t *testing.T) {
	j := NewJournal(newTestStore(), "test")
	ctx := context.Background()

	h := newJobHandle("run-0001", "etl/load", nil, nil)
	if err := j.RecordSubmitted(ctx, "nightly", h); err != nil {
		t.Fatalf("RecordSubmitted: %v", err)
	}
	if err := j.RecordResult(ctx, "nightly", "run-0001", backend.StateFailed); err != nil {
		t.Fatalf("RecordResult: %v", err)
	}

	entries, err := j.LoadBatch(ctx, "nightly")
	if err != nil {
		t.Fatalf("LoadBatch: %v", err)
	}
	if len(entries) != 1 || entries[0].State != backend.StateFailed {
		t.Fatalf("entries = %+v, want one failed record", entries)
	}
}

func TestJournalUnknownBatch(t *testing.T) {
	j := NewJournal(newTestStore(), "test")

	entries, err := j.LoadBatch(context.Background(), "never-submitted")
	if err != nil {
		t.Fatalf("LoadBatch: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries for an unknown batch, want 0", len(entries))
	}
}

func TestJournalRejectsSecondWriter(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	first := NewJournal(store, "test")
	if err := first.RecordSubmitted(ctx, "nightly", newJobHandle("run-0001", "etl/load", nil, nil)); err != nil {
		t.Fatalf("RecordSubmitted: %v", err)
	}

	// A different process journaling under the same batch name would
	// silently drop entries from the shared index; it must fail instead.
	second := NewJournal(store, "test")
	err := second.RecordSubmitted(ctx, "nightly", newJobHandle("run-0002", "etl/load", nil, nil))
	if err == nil {
		t.Fatal("second writer accepted for an owned batch")
	}

	entries, err := first.LoadBatch(ctx, "nightly")
	if err != nil {
		t.Fatalf("LoadBatch: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "run-0001" {
		t.Fatalf("entries = %+v, want only the first writer's record", entries)
	}
}

func TestJournalForget(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	j := NewJournal(store, "test")
	if err := j.RecordSubmitted(ctx, "nightly", newJobHandle("run-0001", "etl/load", nil, nil)); err != nil {
		t.Fatalf("RecordSubmitted: %v", err)
	}

	if err := j.Forget(ctx, "nightly"); err != nil {
		t.Fatalf("Forget: %v", err)
	}

	entries, err := j.LoadBatch(ctx, "nightly")
	if err != nil {
		t.Fatalf("LoadBatch: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries after Forget, want 0", len(entries))
	}

	// The ownership claim is gone too, so a new writer can reuse the name.
	other := NewJournal(store, "test")
	if err := other.RecordSubmitted(ctx, "nightly", newJobHandle("run-0002", "etl/load", nil, nil)); err != nil {
		t.Fatalf("RecordSubmitted after Forget: %v", err)
	}
}

func TestJournalBatchesAreIsolated(t *testing.T) {
	j := NewJournal(newTestStore(), "test")
	ctx := context.Background()

	if err := j.RecordSubmitted(ctx, "alpha", newJobHandle("run-0001", "etl/load", nil, nil)); err != nil {
		t.Fatalf("RecordSubmitted: %v", err)
	}
	if err := j.RecordSubmitted(ctx, "beta", newJobHandle("run-0002", "etl/load", nil, nil)); err != nil {
		t.Fatalf("RecordSubmitted: %v", err)
	}

	entries, err := j.LoadBatch(ctx, "alpha")
	if err != nil {
		t.Fatalf("LoadBatch: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "run-0001" {
		t.Fatalf("alpha entries = %+v, want only run-0001", entries)
	}
}
