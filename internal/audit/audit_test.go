package audit

import (
	"context"
	"path/filepath"
	"testing"
)

func TestRecordAndForTask(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	ledger, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer ledger.Close()

	ctx := context.Background()
	if err := ledger.RecordStageEvent(ctx, "task-1", "registration", "completed", ""); err != nil {
		t.Fatal(err)
	}
	if err := ledger.RecordStageEvent(ctx, "task-1", "processing", "completed", ""); err != nil {
		t.Fatal(err)
	}
	if err := ledger.RecordStageEvent(ctx, "task-2", "registration", "parked", "bad metadata"); err != nil {
		t.Fatal(err)
	}

	events, err := ledger.ForTask(ctx, "task-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("expected two events for task-1, got %d", len(events))
	}
	if events[0].Stage != "registration" || events[1].Stage != "processing" {
		t.Fatalf("expected oldest-first ordering, got %+v", events)
	}
}

func TestRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	ledger, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer ledger.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := ledger.RecordStageEvent(ctx, "task", "evaluation", "completed", ""); err != nil {
			t.Fatal(err)
		}
	}

	events, err := ledger.Recent(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("expected limit to cap results at 3, got %d", len(events))
	}
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.db")
	ledger, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer ledger.Close()
}
