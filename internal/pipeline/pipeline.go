package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cordflow/internal/artifact"
	"cordflow/internal/dataset"
	"cordflow/internal/fileutil"
	"cordflow/internal/logging"
	"cordflow/internal/resolver"
	"cordflow/internal/services"
	"cordflow/internal/stage"
	"cordflow/internal/stageexec"
	"cordflow/internal/transform"
)

// ErrorRecorder is the shared error log.
type ErrorRecorder interface {
	RecordMissing(subject, artifactName string) error
	RecordFailure(subject, artifactName string, err error) error
}

// Options assembles a pipeline.
type Options struct {
	Stages         []stage.Stage
	Postconditions []artifact.Spec
	Resolver       *resolver.Resolver
	// Registrar builds the registration backend for one subject.
	Registrar  func(dataset.Subject) transform.Registrar
	Anatomical transform.Space
	Metrics    stage.MetricSink
	Errors     ErrorRecorder
	Logger     *slog.Logger
}

// Pipeline is the per-subject stage sequence. It holds no per-subject state
// and may run many subjects concurrently.
type Pipeline struct {
	opts   Options
	logger *slog.Logger
}

// New validates opts and returns a pipeline.
func New(opts Options) (*Pipeline, error) {
	if len(opts.Stages) == 0 {
		return nil, fmt.Errorf("pipeline: no stages declared")
	}
	seen := make(map[string]bool, len(opts.Stages))
	for _, st := range opts.Stages {
		if st == nil || st.Name() == "" {
			return nil, fmt.Errorf("pipeline: unnamed stage")
		}
		if seen[st.Name()] {
			return nil, fmt.Errorf("pipeline: stage %s declared twice", st.Name())
		}
		seen[st.Name()] = true
	}
	for _, spec := range opts.Postconditions {
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("pipeline: postcondition: %w", err)
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{opts: opts, logger: logging.NewComponentLogger(logger, "pipeline")}, nil
}

// Stages returns the declared stages in order.
func (p *Pipeline) Stages() []stage.Stage {
	return append([]stage.Stage(nil), p.opts.Stages...)
}

// Postconditions returns the declared final artifacts.
func (p *Pipeline) Postconditions() []artifact.Spec {
	return append([]artifact.Spec(nil), p.opts.Postconditions...)
}

// Run executes every stage for subj and returns the finalized record.
func (p *Pipeline) Run(ctx context.Context, subj dataset.Subject) *Run {
	run := NewRun(subj.ID)
	run.Status = StatusRunning
	run.Started = time.Now()
	defer func() {
		run.Finished = time.Now()
	}()

	ctx = services.WithSubject(ctx, subj.ID)
	logger := logging.WithContext(ctx, p.logger)
	logger.Info("subject started",
		logging.String(logging.FieldEventType, "subject_start"),
		logging.Int("stages", len(p.opts.Stages)),
	)

	if err := os.MkdirAll(subj.WorkDir, 0o755); err != nil {
		p.fail(logger, run, -1, "setup", services.Wrap(services.ErrConfiguration, "", "create working directory", subj.WorkDir, err))
		return run
	}

	produced, _ := artifact.NewSet()
	var registrar transform.Registrar
	if p.opts.Registrar != nil {
		registrar = p.opts.Registrar(subj)
	}
	chain := transform.NewChain(p.opts.Anatomical, registrar)
	base := stage.Env{
		Subject:  subj,
		Resolver: p.opts.Resolver,
		Chain:    chain,
		Metrics:  p.opts.Metrics,
	}

	for i, st := range p.opts.Stages {
		if err := ctx.Err(); err != nil {
			p.fail(logger, run, i, st.Name(),
				services.Wrap(services.ErrInterrupted, st.Name(), "dispatch", "interrupted before stage start", err))
			return run
		}

		out := stageexec.Run(ctx, stageexec.Options{
			Logger:   p.logger,
			Stage:    st,
			Env:      base,
			Produced: produced,
		})
		if out.Err != nil {
			p.fail(logger, run, i, st.Name(), out.Err)
			return run
		}

		record := StageRecord{Name: st.Name(), RequestID: out.RequestID, Rows: out.Result.Rows, Elapsed: out.Elapsed}
		for _, art := range out.Result.Artifacts {
			if err := produced.Add(art); err != nil {
				p.fail(logger, run, i, st.Name(), services.Wrap(services.ErrValidation, st.Name(), "record output", "", err))
				return run
			}
			record.Artifacts++
			if art.Source == artifact.SourceManual {
				record.Manual++
			}
		}
		for _, edge := range out.Result.Edges {
			record.Registrations = append(record.Registrations, edge.Key().String())
		}
		run.Stages = append(run.Stages, record)
		run.Artifacts = append(run.Artifacts, out.Result.Artifacts...)
	}

	p.checkPostconditions(logger, subj, run)
	for _, edge := range chain.Edges() {
		run.Registrations = append(run.Registrations, edge.Key().String())
	}
	run.Status = StatusSucceeded
	logger.Info("subject completed",
		logging.String(logging.FieldEventType, "subject_complete"),
		logging.Int("completed_stages", run.CompletedStageCount()),
		logging.Int("artifacts", len(run.Artifacts)),
		logging.Int("registrations", len(run.Registrations)),
		logging.Int("postconditions_missing", len(run.Missing)),
		logging.Duration("elapsed", time.Since(run.Started).Round(time.Millisecond)),
	)
	return run
}

func (p *Pipeline) checkPostconditions(logger *slog.Logger, subj dataset.Subject, run *Run) {
	for _, spec := range p.opts.Postconditions {
		if fileutil.Exists(subj.WorkPath(spec)) {
			continue
		}
		run.Missing = append(run.Missing, spec.Name())
		logging.WarnWithContext(logger, "expected artifact missing", "postcondition_missing",
			logging.String("artifact", spec.Name()),
			logging.String(logging.FieldErrorHint, "inspect the stage that produces this artifact"),
			logging.String(logging.FieldImpact, "subject outputs are incomplete"),
		)
		if p.opts.Errors != nil {
			if err := p.opts.Errors.RecordMissing(subj.ID, spec.Name()); err != nil {
				logger.Error("failed to record missing artifact", logging.Error(err))
			}
		}
	}
}

func (p *Pipeline) fail(logger *slog.Logger, run *Run, index int, stageName string, err error) {
	run.StageIndex = index
	run.FailedStage = stageName
	run.Kind = services.Kind(err)
	run.Reason = services.Message(err)

	if services.IsInterrupted(err) {
		run.Status = StatusAborted
		logging.WarnWithContext(logger, "subject aborted", "subject_aborted",
			logging.String("stage", stageName),
			logging.Int("completed_stages", run.CompletedStageCount()),
			logging.String(logging.FieldErrorHint, "rerun the subject to complete it"),
			logging.String(logging.FieldImpact, "completed artifacts are kept; remaining stages did not run"),
		)
	} else {
		run.Status = StatusFailed
		logging.ErrorWithContext(logger, "subject failed", "subject_failed",
			logging.String("failed_stage", stageName),
			logging.String("error_kind", run.Kind),
			logging.String("error_message", run.Reason),
		)
	}

	if p.opts.Errors != nil {
		if recErr := p.opts.Errors.RecordFailure(run.Subject, stageName, err); recErr != nil {
			logger.Error("failed to record stage failure", logging.Error(recErr))
		}
	}
}
