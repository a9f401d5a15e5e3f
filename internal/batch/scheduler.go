package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"cordflow/internal/dataset"
	"cordflow/internal/logging"
	"cordflow/internal/pipeline"
	"cordflow/internal/services"
)

// SubjectRunner runs one subject to completion.
type SubjectRunner interface {
	Run(ctx context.Context, subj dataset.Subject) *pipeline.Run
}

// Options configures a Scheduler.
type Options struct {
	Pipeline SubjectRunner
	// Jobs bounds concurrent subjects; zero means one per CPU.
	Jobs         int
	Errors       pipeline.ErrorRecorder
	ErrorLogPath string
	Tables       []string
	Logger       *slog.Logger
	// OnRunComplete is called once per subject, serialized, as soon as its
	// run is final.
	OnRunComplete func(ctx context.Context, batchID string, run *pipeline.Run)
}

// Scheduler dispatches subject pipelines.
type Scheduler struct {
	opts   Options
	jobs   int
	logger *slog.Logger
}

// New validates opts.
func New(opts Options) (*Scheduler, error) {
	if opts.Pipeline == nil {
		return nil, fmt.Errorf("batch: pipeline required")
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{opts: opts, jobs: jobs, logger: logging.NewComponentLogger(logger, "batch")}, nil
}

// Jobs returns the effective worker bound.
func (s *Scheduler) Jobs() int {
	return s.jobs
}

// Run processes subjects and returns the batch summary. Runs appear in the
// order subjects were given.
func (s *Scheduler) Run(ctx context.Context, batchID string, subjects []dataset.Subject) Report {
	if batchID == "" {
		batchID = uuid.NewString()
	}
	report := Report{
		BatchID:  batchID,
		Runs:     make([]*pipeline.Run, len(subjects)),
		Started:  time.Now(),
		ErrorLog: s.opts.ErrorLogPath,
		Tables:   append([]string(nil), s.opts.Tables...),
	}
	for i, subj := range subjects {
		report.Runs[i] = pipeline.NewRun(subj.ID)
	}

	ctx = services.WithBatchID(ctx, batchID)
	logger := logging.WithContext(ctx, s.logger)
	logger.Info("batch started",
		logging.String(logging.FieldEventType, "batch_start"),
		logging.Int("subjects", len(subjects)),
		logging.Int("jobs", s.jobs),
	)

	var (
		wg     sync.WaitGroup
		hookMu sync.Mutex
		sem    = make(chan struct{}, s.jobs)
	)
	finish := func(run *pipeline.Run) {
		if s.opts.OnRunComplete == nil {
			return
		}
		hookMu.Lock()
		defer hookMu.Unlock()
		s.opts.OnRunComplete(context.WithoutCancel(ctx), batchID, run)
	}

	dispatched := 0
dispatch:
	for i, subj := range subjects {
		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}
		if ctx.Err() != nil {
			<-sem
			break dispatch
		}
		dispatched++
		wg.Add(1)
		go func(i int, subj dataset.Subject) {
			defer wg.Done()
			defer func() { <-sem }()
			run := s.runSubject(ctx, subj)
			report.Runs[i] = run
			finish(run)
		}(i, subj)
	}

	for _, run := range report.Runs[dispatched:] {
		s.markNotStarted(logger, run)
		finish(run)
	}
	wg.Wait()

	report.Elapsed = time.Since(report.Started)
	report.tally()
	if ctx.Err() != nil {
		report.Cancelled = true
		logging.WarnWithContext(logger, "batch cancelled", "cancellation_notice",
			logging.Int("dispatched", dispatched),
			logging.Int("not_started", len(subjects)-dispatched),
			logging.Int("succeeded", report.Succeeded),
			logging.String(logging.FieldErrorHint, "rerun the aborted subjects"),
			logging.String(logging.FieldImpact, "completed subjects, metric rows and error records are kept"),
		)
	}
	logger.Info("batch completed",
		logging.String(logging.FieldEventType, "batch_complete"),
		logging.Int("succeeded", report.Succeeded),
		logging.Int("failed", report.Failed),
		logging.Int("aborted", report.Aborted),
		logging.Int("postconditions_missing", report.PostconditionMisses),
		logging.Duration("elapsed", report.Elapsed.Round(time.Millisecond)),
	)
	return report
}

// runSubject isolates a single pipeline, converting a panic into a failed run.
func (s *Scheduler) runSubject(ctx context.Context, subj dataset.Subject) (run *pipeline.Run) {
	started := time.Now()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err := fmt.Errorf("pipeline panicked: %v", r)
		run = pipeline.NewRun(subj.ID)
		run.Status = pipeline.StatusFailed
		run.Kind = services.Kind(err)
		run.Reason = err.Error()
		run.Started = started
		run.Finished = time.Now()
		logging.ErrorWithContext(logging.WithContext(services.WithSubject(ctx, subj.ID), s.logger),
			"subject pipeline panicked", "subject_failed", logging.Error(err))
		if s.opts.Errors != nil {
			_ = s.opts.Errors.RecordFailure(subj.ID, "pipeline", err)
		}
	}()
	run = s.opts.Pipeline.Run(ctx, subj)
	if run == nil {
		run = pipeline.NewRun(subj.ID)
		run.Status = pipeline.StatusFailed
		run.Reason = "pipeline returned no run record"
	}
	return run
}

func (s *Scheduler) markNotStarted(logger *slog.Logger, run *pipeline.Run) {
	err := services.Wrap(services.ErrInterrupted, "", "dispatch", "not started", context.Canceled)
	run.Status = pipeline.StatusAborted
	run.Kind = services.Kind(err)
	run.Reason = services.Message(err)
	logger.Warn("subject not started",
		logging.String(logging.FieldEventType, "subject_aborted"),
		logging.String(logging.FieldSubject, run.Subject),
	)
	if s.opts.Errors != nil {
		if recErr := s.opts.Errors.RecordFailure(run.Subject, "pipeline", err); recErr != nil {
			logger.Error("failed to record aborted subject", logging.Error(recErr))
		}
	}
}
