package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"cordflow/internal/fileutil"
	"cordflow/internal/logging"
	"cordflow/internal/services"
)

// Invocation is one synchronous call to an external tool.
type Invocation struct {
	Tool    string
	Args    []string
	Outputs []string
	Dir     string
}

// CommandLine renders the invocation for logs and audit records.
func (inv Invocation) CommandLine() string {
	return strings.TrimSpace(inv.Tool + " " + strings.Join(inv.Args, " "))
}

// Result describes a completed invocation.
type Result struct {
	Tool    string
	Outputs []string
	Elapsed time.Duration
}

// Runner executes tool invocations.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Result, error)
}

// Executor abstracts process execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, dir string, onOutput func(string)) error
}

// Option configures a CommandRunner.
type Option func(*CommandRunner)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(r *CommandRunner) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// WithBinaries maps tool names to explicit executable paths.
func WithBinaries(binaries map[string]string) Option {
	return func(r *CommandRunner) {
		for name, path := range binaries {
			if path = strings.TrimSpace(path); path != "" {
				r.binaries[name] = path
			}
		}
	}
}

// WithLogger sets the logger used for tool output.
func WithLogger(logger *slog.Logger) Option {
	return func(r *CommandRunner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// CommandRunner runs invocations as child processes.
type CommandRunner struct {
	timeout  time.Duration
	binaries map[string]string
	exec     Executor
	logger   *slog.Logger
}

// NewCommandRunner constructs a runner. timeoutSeconds of zero disables the
// per-invocation timeout; graceSeconds bounds how long an interrupted tool may
// take to exit before it is killed.
func NewCommandRunner(timeoutSeconds, graceSeconds int, opts ...Option) *CommandRunner {
	r := &CommandRunner{
		timeout:  time.Duration(timeoutSeconds) * time.Second,
		binaries: make(map[string]string),
		exec:     commandExecutor{grace: time.Duration(graceSeconds) * time.Second},
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Binary resolves the executable used for tool.
func (r *CommandRunner) Binary(tool string) string {
	if path, ok := r.binaries[tool]; ok {
		return path
	}
	return tool
}

// Run executes inv and verifies its declared outputs.
func (r *CommandRunner) Run(ctx context.Context, inv Invocation) (Result, error) {
	stageName, _ := services.StageFromContext(ctx)
	if strings.TrimSpace(inv.Tool) == "" {
		return Result{}, services.Wrap(services.ErrValidation, stageName, "invoke tool", "tool name required", nil)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, services.Wrap(services.ErrInterrupted, stageName, inv.Tool, "not started", err)
	}

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	logger := logging.WithContext(ctx, r.logger)
	logger.Info("tool invoked",
		logging.String(logging.FieldEventType, "tool_invoked"),
		logging.String("tool", inv.Tool),
		logging.String("command", inv.CommandLine()),
	)

	tail := newTailBuffer(20)
	start := time.Now()
	err := r.exec.Run(runCtx, r.Binary(inv.Tool), inv.Args, inv.Dir, func(line string) {
		tail.add(line)
		logger.Debug("tool output", logging.String("tool", inv.Tool), logging.String("line", line))
	})
	elapsed := time.Since(start)

	if err != nil {
		switch {
		case ctx.Err() != nil:
			return Result{}, services.Wrap(services.ErrInterrupted, stageName, inv.Tool, "interrupted", ctx.Err())
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			return Result{}, services.Wrap(services.ErrToolInvocation, stageName, inv.Tool,
				fmt.Sprintf("timed out after %s", r.timeout), err)
		default:
			return Result{}, services.Wrap(services.ErrToolInvocation, stageName, inv.Tool,
				describeFailure(err, tail.lines()), err)
		}
	}

	for _, output := range inv.Outputs {
		if !fileutil.Exists(output) {
			return Result{}, services.Wrap(services.ErrToolInvocation, stageName, inv.Tool,
				fmt.Sprintf("declared output %s was not produced", output), nil)
		}
	}

	logger.Debug("tool finished",
		logging.String("tool", inv.Tool),
		logging.Duration("elapsed", elapsed),
	)
	return Result{Tool: inv.Tool, Outputs: append([]string(nil), inv.Outputs...), Elapsed: elapsed}, nil
}

func describeFailure(err error, tail []string) string {
	var exitErr *exec.ExitError
	msg := "execution failed"
	if errors.As(err, &exitErr) {
		msg = fmt.Sprintf("exit status %d", exitErr.ExitCode())
	}
	if len(tail) > 0 {
		msg += ": " + tail[len(tail)-1]
	}
	return msg
}

type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []string
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, line)
	if len(t.buf) > t.limit {
		t.buf = t.buf[len(t.buf)-t.limit:]
	}
}

func (t *tailBuffer) lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.buf...)
}

var _ Runner = (*CommandRunner)(nil)
