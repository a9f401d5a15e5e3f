package ledger_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"cordflow/internal/ledger"
	"cordflow/internal/pipeline"
)

func openStore(t *testing.T) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "log", "cordflow.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBatchLifecycle(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if b, err := store.LatestBatch(ctx); err != nil || b != nil {
		t.Fatalf("expected no batches, got %v %v", b, err)
	}
	if err := store.BeginBatch(ctx, "batch-1", 2, 4, "/log/error.log"); err != nil {
		t.Fatal(err)
	}

	ok := pipeline.NewRun("sub-01")
	ok.Status = pipeline.StatusSucceeded
	ok.Stages = []pipeline.StageRecord{{Name: "t2w.segment", Manual: 1}, {Name: "t2w.label"}}
	ok.Missing = []string{"t2w_csa.csv"}
	ok.Started = time.Now().Add(-time.Minute)
	ok.Finished = time.Now()

	failed := pipeline.NewRun("sub-02")
	failed.Status = pipeline.StatusFailed
	failed.FailedStage = "t2w.segment"
	failed.Kind = "ToolInvocationFailure"
	failed.Reason = "exit status 1"

	for _, run := range []*pipeline.Run{failed, ok} {
		if err := store.RecordRun(ctx, "batch-1", run); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.FinishBatch(ctx, "batch-1", 1, 1, 0, 1, false); err != nil {
		t.Fatal(err)
	}

	b, err := store.LatestBatch(ctx)
	if err != nil || b == nil {
		t.Fatalf("LatestBatch: %v %v", b, err)
	}
	if b.ID != "batch-1" || b.Succeeded != 1 || b.Failed != 1 || b.FinishedAt == nil || b.ErrorLog != "/log/error.log" {
		t.Fatalf("unexpected batch %+v", b)
	}

	runs, err := store.Runs(ctx, "batch-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].Subject != "sub-01" {
		t.Fatalf("unexpected runs %+v", runs)
	}
	if runs[0].CompletedStages != 2 || runs[0].ManualArtifacts != 1 || len(runs[0].Missing) != 1 || runs[0].StartedAt == nil {
		t.Fatalf("unexpected sub-01 run %+v", runs[0])
	}
	if runs[1].Status != pipeline.StatusFailed || runs[1].ErrorKind != "ToolInvocationFailure" {
		t.Fatalf("unexpected sub-02 run %+v", runs[1])
	}
}

func TestRecordRunReplaces(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	if err := store.BeginBatch(ctx, "b", 1, 1, ""); err != nil {
		t.Fatal(err)
	}
	run := pipeline.NewRun("sub-01")
	run.Status = pipeline.StatusRunning
	if err := store.RecordRun(ctx, "b", run); err != nil {
		t.Fatal(err)
	}
	run.Status = pipeline.StatusSucceeded
	if err := store.RecordRun(ctx, "b", run); err != nil {
		t.Fatal(err)
	}
	runs, err := store.Runs(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Status != pipeline.StatusSucceeded {
		t.Fatalf("unexpected runs %+v", runs)
	}
}

func TestLatestBatchAndHistory(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	for _, id := range []string{"first", "second"} {
		if err := store.BeginBatch(ctx, id, 1, 1, ""); err != nil {
			t.Fatal(err)
		}
		run := pipeline.NewRun("sub-01")
		run.Status = pipeline.StatusSucceeded
		if err := store.RecordRun(ctx, id, run); err != nil {
			t.Fatal(err)
		}
	}
	b, err := store.LatestBatch(ctx)
	if err != nil || b == nil || b.ID != "second" {
		t.Fatalf("expected second batch, got %+v %v", b, err)
	}
	history, err := store.SubjectHistory(ctx, "sub-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].BatchID != "second" {
		t.Fatalf("unexpected history %+v", history)
	}
	batches, err := store.Batches(ctx, 10)
	if err != nil || len(batches) != 2 {
		t.Fatalf("Batches: %v %v", batches, err)
	}
}

func TestFinishUnknownBatch(t *testing.T) {
	store := openStore(t)
	if err := store.FinishBatch(context.Background(), "missing", 0, 0, 0, 0, false); err == nil {
		t.Fatal("expected error for unknown batch")
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cordflow.db")
	store, err := ledger.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.BeginBatch(context.Background(), "b", 0, 1, ""); err != nil {
		t.Fatal(err)
	}
	store.Close()

	reopened, err := ledger.Open(path)
	if err != nil {
		if errors.Is(err, ledger.ErrSchemaMismatch) {
			t.Fatalf("unexpected schema mismatch: %v", err)
		}
		t.Fatal(err)
	}
	defer reopened.Close()
	b, err := reopened.Batch(context.Background(), "b")
	if err != nil || b == nil {
		t.Fatalf("expected batch after reopen, got %v %v", b, err)
	}
}
