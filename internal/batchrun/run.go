package batchrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"cordflow/internal/aggregate"
	"cordflow/internal/batch"
	"cordflow/internal/config"
	"cordflow/internal/dataset"
	"cordflow/internal/ledger"
	"cordflow/internal/logging"
	"cordflow/internal/pipeline"
	"cordflow/internal/preflight"
	"cordflow/internal/protocol"
	"cordflow/internal/qc"
	"cordflow/internal/resolver"
	"cordflow/internal/services"
	"cordflow/internal/tool"
)

// LockName is the run lock file under the processed directory.
const LockName = ".cordflow.lock"

// Options configures one batch invocation.
type Options struct {
	// Subjects lists explicit subject IDs; empty discovers them with
	// batch.subjects_glob.
	Subjects []string
	// Jobs overrides batch.jobs when positive.
	Jobs int
	// Runner replaces the external tool runner. Tool availability is only
	// checked when it is nil.
	Runner tool.Runner
	Logger *slog.Logger
	// SkipPreflight bypasses the directory and tool checks.
	SkipPreflight bool
}

// Outcome is what a finished batch hands back to the CLI.
type Outcome struct {
	Report   batch.Report
	ExitCode int
	Ledger   string
}

// Run executes a batch. Interrupt signals cancel the batch context; subjects
// in flight are aborted and undispatched subjects are marked not started.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) (Outcome, error) {
	if cfg == nil {
		return Outcome{}, fmt.Errorf("config is required")
	}
	ctx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	lock, err := batch.AcquireRunLock(filepath.Join(cfg.Paths.ProcessedDir, LockName))
	if err != nil {
		return Outcome{}, err
	}
	defer lock.Release()

	proto := protocol.New(protocol.SettingsFromConfig(cfg))
	if !opts.SkipPreflight {
		if err := checkEnvironment(cfg, proto, opts.Runner == nil, logger); err != nil {
			return Outcome{}, err
		}
	}

	subjects, err := selectSubjects(cfg, opts.Subjects)
	if err != nil {
		return Outcome{}, err
	}

	runner := opts.Runner
	if runner == nil {
		runner = tool.NewCommandRunner(cfg.Tools.TimeoutSeconds, cfg.Tools.InterruptGraceSeconds,
			tool.WithBinaries(cfg.Tools.Binaries),
			tool.WithLogger(logger),
		)
	}
	eng, err := newEngine(cfg, proto, runner, logger)
	if err != nil {
		return Outcome{}, err
	}

	store, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		return Outcome{}, fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	jobs := cfg.Batch.Jobs
	if opts.Jobs > 0 {
		jobs = opts.Jobs
	}
	batchID := uuid.NewString()
	sched, err := batch.New(batch.Options{
		Pipeline:     eng.pipeline,
		Jobs:         jobs,
		Errors:       eng.errLog,
		ErrorLogPath: eng.errLog.Path,
		Tables:       eng.tablePaths(),
		Logger:       logger,
		OnRunComplete: func(ctx context.Context, batchID string, run *pipeline.Run) {
			if err := store.RecordRun(ctx, batchID, run); err != nil {
				logger.Error("failed to record subject run",
					logging.String(logging.FieldSubject, run.Subject),
					logging.Error(err),
				)
			}
		},
	})
	if err != nil {
		return Outcome{}, err
	}

	if err := store.BeginBatch(ctx, batchID, len(subjects), sched.Jobs(), eng.errLog.Path); err != nil {
		return Outcome{}, fmt.Errorf("record batch start: %w", err)
	}
	report := sched.Run(ctx, batchID, subjects)

	finishCtx, finishCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer finishCancel()
	if err := store.FinishBatch(finishCtx, batchID, report.Succeeded, report.Failed, report.Aborted,
		report.PostconditionMisses, report.Cancelled); err != nil {
		logger.Error("failed to record batch completion", logging.Error(err))
	}

	policy := batch.Policy{
		FailWhenNoneSucceeded: cfg.Batch.FailWhenNoneSucceeded,
		StrictPostconditions:  cfg.Batch.StrictPostconditions,
	}
	return Outcome{Report: report, ExitCode: report.ExitCode(policy), Ledger: store.Path()}, nil
}

type engine struct {
	pipeline *pipeline.Pipeline
	metrics  *aggregate.Aggregator
	errLog   *aggregate.ErrorLog
}

func newEngine(cfg *config.Config, proto *protocol.Protocol, runner tool.Runner, logger *slog.Logger) (*engine, error) {
	res, err := resolver.New(resolver.Options{
		Runner:          runner,
		Sink:            qc.NewFileSink(cfg.Paths.QCDir),
		QCDir:           cfg.Paths.QCDir,
		VerifyOverrides: cfg.Tools.QCManualOverrides,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	metrics, err := aggregate.NewAggregator(cfg.Paths.ResultsDir, proto.Tables()...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "declare metric tables", "", err)
	}
	errLog := aggregate.NewErrorLog(cfg.ErrorLogPath())
	p, err := pipeline.New(pipeline.Options{
		Stages:         proto.Stages(),
		Postconditions: proto.Postconditions(),
		Resolver:       res,
		Registrar:      proto.Registrar(res),
		Anatomical:     proto.Anatomical(),
		Metrics:        metrics,
		Errors:         errLog,
		Logger:         logger,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "assemble pipeline", "", err)
	}
	return &engine{pipeline: p, metrics: metrics, errLog: errLog}, nil
}

func (e *engine) tablePaths() []string {
	tables := e.metrics.Tables()
	paths := make([]string, 0, len(tables))
	for _, t := range tables {
		paths = append(paths, t.Path)
	}
	return paths
}

func selectSubjects(cfg *config.Config, ids []string) ([]dataset.Subject, error) {
	layout := dataset.Layout{DataDir: cfg.Paths.DataDir, ProcessedDir: cfg.Paths.ProcessedDir}
	if len(ids) == 0 {
		discovered, err := layout.Discover(cfg.Batch.SubjectsGlob)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "", "discover subjects", cfg.Paths.DataDir, err)
		}
		ids = discovered
	}
	if len(ids) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "", "discover subjects",
			fmt.Sprintf("no subjects matching %q under %s", cfg.Batch.SubjectsGlob, cfg.Paths.DataDir), nil)
	}
	subjects, err := layout.Subjects(ids)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "", "select subjects", "", err)
	}
	return subjects, nil
}

// ErrPreflight marks a batch refused by the environment checks.
var ErrPreflight = errors.New("preflight failed")

func checkEnvironment(cfg *config.Config, proto *protocol.Protocol, checkTools bool, logger *slog.Logger) error {
	var problems []string
	for _, r := range preflight.Failed(preflight.RunAll(cfg)) {
		problems = append(problems, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	if checkTools {
		statuses := preflight.CheckSystemDeps(cfg, proto.RequiredTools())
		available := 0
		for _, status := range statuses {
			if status.Available {
				available++
				continue
			}
			problems = append(problems, fmt.Sprintf("%s: %s", status.Name, status.Detail))
		}
		logger.Info("dependency snapshot",
			logging.String(logging.FieldEventType, "dependency_snapshot"),
			logging.Int("tools_required", len(statuses)),
			logging.Int("tools_available", available),
			logging.String("sct_dir", os.Getenv("SCT_DIR")),
		)
	}
	if len(problems) == 0 {
		return nil
	}
	logging.ErrorWithContext(logger, "preflight failed", "preflight_failed",
		logging.Int("problems", len(problems)),
		logging.String("first_problem", problems[0]),
		logging.String(logging.FieldErrorHint, "run cordflow check for details"),
	)
	return fmt.Errorf("%w: %s", ErrPreflight, strings.Join(problems, "; "))
}
