package stageexec

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"cordflow/internal/artifact"
	"cordflow/internal/logging"
	"cordflow/internal/services"
	"cordflow/internal/stage"
)

// Options controls a single stage execution.
type Options struct {
	Logger   *slog.Logger
	Stage    stage.Stage
	Env      stage.Env
	Produced *artifact.Set
}

// Outcome is the classified result of one stage.
type Outcome struct {
	Stage     string
	RequestID string
	Result    stage.Result
	Err       error
	Elapsed   time.Duration
}

// Run executes a stage with boundary logging. The returned error is the
// stage's own error, classified by services.Kind.
func Run(ctx context.Context, opts Options) Outcome {
	out := Outcome{RequestID: uuid.NewString()}
	if opts.Stage == nil {
		out.Err = fmt.Errorf("stage unavailable")
		return out
	}
	out.Stage = opts.Stage.Name()

	stageCtx := services.WithStage(ctx, opts.Stage.Name())
	stageCtx = services.WithModality(stageCtx, string(opts.Stage.Modality()))
	stageCtx = services.WithRequestID(stageCtx, out.RequestID)
	stageLogger := logging.WithContext(stageCtx, opts.Logger)

	stageLogger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int("inputs", len(opts.Stage.Requires())),
	)

	start := time.Now()
	env := opts.Env
	env.Logger = stageLogger
	out.Result, out.Err = execute(stageCtx, opts.Stage, env, opts.Produced)
	out.Elapsed = time.Since(start)

	if out.Err != nil {
		handleFailure(stageLogger, out)
		return out
	}

	stageLogger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("artifacts", len(out.Result.Artifacts)),
		logging.String("sources", sourceSummary(out.Result.Artifacts)),
		logging.Duration("elapsed", out.Elapsed.Round(time.Millisecond)),
	)
	return out
}

func execute(ctx context.Context, st stage.Stage, base stage.Env, produced *artifact.Set) (result stage.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v", st.Name(), r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return stage.Result{}, services.Wrap(services.ErrInterrupted, st.Name(), "start", "cancelled before start", err)
	}
	env, err := stage.NewEnv(base, st, produced)
	if err != nil {
		return stage.Result{}, err
	}
	return st.Run(ctx, env)
}

func handleFailure(logger *slog.Logger, out Outcome) {
	message := strings.TrimSpace(services.Message(out.Err))
	if message == "" {
		message = "stage failed"
	}
	if services.IsInterrupted(out.Err) {
		logger.Warn(
			"stage interrupted",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String("error_kind", services.Kind(out.Err)),
			logging.String("error_message", message),
		)
		return
	}
	logging.ErrorWithContext(logger, "stage failed", "stage_failure",
		logging.String("error_kind", services.Kind(out.Err)),
		logging.String("error_message", message),
		logging.String(logging.FieldErrorHint, hintFor(out.Err)),
		logging.Error(out.Err),
	)
}

func hintFor(err error) string {
	switch services.Kind(err) {
	case "OverrideReadFailure":
		return "fix or remove the manual override under derivatives/labels"
	case "ToolInvocationFailure":
		return "inspect the tool output in the subject log"
	case "MissingUpstreamArtifact":
		return "check the raw inputs and the stage order"
	default:
		return "check logs for details"
	}
}

func sourceSummary(arts []artifact.Artifact) string {
	if len(arts) == 0 {
		return ""
	}
	counts := make(map[artifact.Source]int)
	var order []artifact.Source
	for _, a := range arts {
		if counts[a.Source] == 0 {
			order = append(order, a.Source)
		}
		counts[a.Source]++
	}
	parts := make([]string, 0, len(order))
	for _, src := range order {
		parts = append(parts, fmt.Sprintf("%s=%d", src, counts[src]))
	}
	return strings.Join(parts, " ")
}
