package testsupport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cordflow/internal/services"
	"cordflow/internal/tool"
)

// ScriptedRunner stands in for the external tools. Each invocation writes a
// placeholder for every declared output unless the tool is scripted to fail.
type ScriptedRunner struct {
	mu          sync.Mutex
	calls       map[string]int
	invocations []Call
	failures    map[string]string

	// CSV returns the content written for .csv outputs. Nil writes a
	// single-row table.
	CSV func(inv tool.Invocation, path string) string
	// Hook runs before outputs are written; a non-nil error fails the call.
	Hook func(ctx context.Context, inv tool.Invocation) error
}

// Call records one invocation with the subject it ran for.
type Call struct {
	Subject    string
	Stage      string
	Invocation tool.Invocation
}

// NewScriptedRunner returns a runner where every tool succeeds.
func NewScriptedRunner() *ScriptedRunner {
	return &ScriptedRunner{calls: make(map[string]int), failures: make(map[string]string)}
}

// FailFor makes toolName exit non-zero for subject. An empty subject fails
// the tool for everyone.
func (r *ScriptedRunner) FailFor(toolName, subject string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[failureKey(toolName, subject)] = "scripted failure"
}

// Calls returns how often toolName ran.
func (r *ScriptedRunner) Calls(toolName string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[toolName]
}

// CallsFor returns how often toolName ran for subject.
func (r *ScriptedRunner) CallsFor(toolName, subject string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.invocations {
		if c.Invocation.Tool == toolName && c.Subject == subject {
			n++
		}
	}
	return n
}

// Invocations returns every recorded call in order.
func (r *ScriptedRunner) Invocations() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.invocations...)
}

// Run implements tool.Runner.
func (r *ScriptedRunner) Run(ctx context.Context, inv tool.Invocation) (tool.Result, error) {
	subject, _ := services.SubjectFromContext(ctx)
	stageName, _ := services.StageFromContext(ctx)
	if err := ctx.Err(); err != nil {
		return tool.Result{}, services.Wrap(services.ErrInterrupted, stageName, inv.Tool, "not started", err)
	}

	r.mu.Lock()
	r.calls[inv.Tool]++
	r.invocations = append(r.invocations, Call{Subject: subject, Stage: stageName, Invocation: inv})
	reason, fail := r.failures[failureKey(inv.Tool, subject)]
	if !fail {
		reason, fail = r.failures[failureKey(inv.Tool, "")]
	}
	r.mu.Unlock()

	if r.Hook != nil {
		if err := r.Hook(ctx, inv); err != nil {
			return tool.Result{}, err
		}
	}
	if fail {
		return tool.Result{}, services.Wrap(services.ErrToolInvocation, stageName, inv.Tool, "exit status 1: "+reason, nil)
	}

	for _, out := range inv.Outputs {
		if err := r.writePlaceholder(inv, out); err != nil {
			return tool.Result{}, fmt.Errorf("write placeholder %s: %w", out, err)
		}
	}
	return tool.Result{Tool: inv.Tool, Outputs: append([]string(nil), inv.Outputs...)}, nil
}

func (r *ScriptedRunner) writePlaceholder(inv tool.Invocation, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, ".nii.gz"):
		return os.WriteFile(path, NIfTI(inv.Tool), 0o644)
	case strings.HasSuffix(base, ".csv"):
		content := "Filename,Value\n" + path + ",1\n"
		if r.CSV != nil {
			content = r.CSV(inv, path)
		}
		return os.WriteFile(path, []byte(content), 0o644)
	case filepath.Ext(base) == "":
		if err := os.MkdirAll(path, 0o755); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(path, "template.nii.gz"), NIfTI(inv.Tool), 0o644)
	default:
		return os.WriteFile(path, []byte(inv.Tool), 0o644)
	}
}

func failureKey(toolName, subject string) string {
	return toolName + "@" + subject
}

var _ tool.Runner = (*ScriptedRunner)(nil)
