package batch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cordflow/internal/aggregate"
	"cordflow/internal/dataset"
	"cordflow/internal/pipeline"
)

type fakePipeline struct {
	fail     map[string]bool
	panicOn  string
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	started  atomic.Int32
	onStart  func(subject string)
}

func (f *fakePipeline) Run(ctx context.Context, subj dataset.Subject) *pipeline.Run {
	f.started.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxSeen.Load()
		if n <= cur || f.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	if f.onStart != nil {
		f.onStart(subj.ID)
	}
	if subj.ID == f.panicOn {
		panic("boom")
	}
	time.Sleep(f.delay)
	run := pipeline.NewRun(subj.ID)
	run.Started = time.Now()
	switch {
	case f.fail[subj.ID]:
		run.Status = pipeline.StatusFailed
		run.FailedStage = "t2w.segment"
	case ctx.Err() != nil:
		run.Status = pipeline.StatusAborted
	default:
		run.Status = pipeline.StatusSucceeded
	}
	run.Finished = time.Now()
	return run
}

func subjects(t *testing.T, ids ...string) []dataset.Subject {
	t.Helper()
	out, err := dataset.Layout{DataDir: t.TempDir(), ProcessedDir: t.TempDir()}.Subjects(ids)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestRunIsolatesFailures(t *testing.T) {
	fake := &fakePipeline{fail: map[string]bool{"sub-03": true}, delay: 5 * time.Millisecond}
	var mu sync.Mutex
	completed := map[string]pipeline.Status{}
	s, err := New(Options{
		Pipeline: fake,
		Jobs:     2,
		OnRunComplete: func(_ context.Context, batchID string, run *pipeline.Run) {
			mu.Lock()
			defer mu.Unlock()
			completed[run.Subject] = run.Status
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	report := s.Run(context.Background(), "", subjects(t, "sub-01", "sub-02", "sub-03", "sub-04", "sub-05"))

	if report.Succeeded != 4 || report.Failed != 1 || report.Aborted != 0 {
		t.Fatalf("unexpected counts %+v", report)
	}
	for i, run := range report.Runs {
		want := pipeline.StatusSucceeded
		if run.Subject == "sub-03" {
			want = pipeline.StatusFailed
		}
		if run.Status != want {
			t.Fatalf("run %d (%s): expected %s, got %s", i, run.Subject, want, run.Status)
		}
	}
	if report.Runs[2].Subject != "sub-03" {
		t.Fatal("runs must keep input order")
	}
	if got := fake.maxSeen.Load(); got > 2 {
		t.Fatalf("concurrency bound exceeded: %d", got)
	}
	if len(completed) != 5 {
		t.Fatalf("expected completion hook for every subject, got %v", completed)
	}
	if report.BatchID == "" {
		t.Fatal("expected generated batch id")
	}
	if report.ExitCode(Policy{FailWhenNoneSucceeded: true}) != 0 {
		t.Fatal("expected exit 0 when some subjects succeeded")
	}
}

func TestRunRecoversPanickingSubject(t *testing.T) {
	errLog := aggregate.NewErrorLog(filepath.Join(t.TempDir(), "error.log"))
	s, err := New(Options{Pipeline: &fakePipeline{panicOn: "sub-02"}, Jobs: 3, Errors: errLog})
	if err != nil {
		t.Fatal(err)
	}
	report := s.Run(context.Background(), "b1", subjects(t, "sub-01", "sub-02", "sub-03"))
	if report.Succeeded != 2 || report.Failed != 1 {
		t.Fatalf("unexpected counts %+v", report)
	}
	if report.Runs[1].Kind != "UnexpectedTermination" {
		t.Fatalf("expected unexpected termination, got %q", report.Runs[1].Kind)
	}
	lines, _ := errLog.Lines()
	if len(lines) != 1 {
		t.Fatalf("expected panic recorded, got %v", lines)
	}
}

func TestRunStopsDispatchOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errLog := aggregate.NewErrorLog(filepath.Join(t.TempDir(), "error.log"))
	fake := &fakePipeline{delay: 20 * time.Millisecond, onStart: func(subject string) {
		if subject == "sub-01" {
			cancel()
		}
	}}
	s, err := New(Options{Pipeline: fake, Jobs: 1, Errors: errLog})
	if err != nil {
		t.Fatal(err)
	}
	report := s.Run(ctx, "b1", subjects(t, "sub-01", "sub-02", "sub-03"))

	if !report.Cancelled {
		t.Fatal("expected cancelled report")
	}
	if fake.started.Load() != 1 {
		t.Fatalf("expected dispatch to stop after cancel, started %d", fake.started.Load())
	}
	if report.Aborted != 3 {
		t.Fatalf("expected 3 aborted subjects, got %+v", report)
	}
	for _, run := range report.Runs[1:] {
		if run.Reason == "" || run.Kind != "InterruptedRun" {
			t.Fatalf("expected not-started notice for %s, got %+v", run.Subject, run)
		}
	}
	lines, _ := errLog.Lines()
	if len(lines) != 2 {
		t.Fatalf("expected 2 not-started records, got %v", lines)
	}
}

func TestExitCodePolicy(t *testing.T) {
	failed := pipeline.NewRun("sub-01")
	failed.Status = pipeline.StatusFailed
	report := Report{Runs: []*pipeline.Run{failed}}
	report.tally()

	if report.ExitCode(Policy{}) != 0 {
		t.Fatal("default policy must exit 0")
	}
	if report.ExitCode(Policy{FailWhenNoneSucceeded: true}) != 1 {
		t.Fatal("expected exit 1 when none succeeded")
	}

	ok := pipeline.NewRun("sub-02")
	ok.Status = pipeline.StatusSucceeded
	ok.Missing = []string{"t2w_seg.nii.gz"}
	report = Report{Runs: []*pipeline.Run{ok}}
	report.tally()
	if report.PostconditionMisses != 1 {
		t.Fatalf("expected one miss, got %d", report.PostconditionMisses)
	}
	if report.ExitCode(Policy{}) != 0 || report.ExitCode(Policy{StrictPostconditions: true}) != 1 {
		t.Fatal("strict postconditions must only fail when enabled")
	}
}

func TestRunLockIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log", "cordflow.lock")
	first, err := AcquireRunLock(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := AcquireRunLock(path); !errors.Is(err, ErrBatchRunning) {
		t.Fatalf("expected ErrBatchRunning, got %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatal(err)
	}
	second, err := AcquireRunLock(path)
	if err != nil {
		t.Fatalf("expected lock after release: %v", err)
	}
	_ = second.Release()
}

func TestNewRequiresPipeline(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error")
	}
	s, err := New(Options{Pipeline: &fakePipeline{}})
	if err != nil {
		t.Fatal(err)
	}
	if s.Jobs() < 1 {
		t.Fatalf("expected default jobs, got %d", s.Jobs())
	}
}
