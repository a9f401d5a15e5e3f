package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cordflow/internal/aggregate"
	"cordflow/internal/artifact"
	"cordflow/internal/dataset"
	"cordflow/internal/pipeline"
	"cordflow/internal/resolver"
	"cordflow/internal/stage"
	"cordflow/internal/testsupport"
	"cordflow/internal/tool"
	"cordflow/internal/transform"
)

var (
	segSpec   = artifact.Spec{Modality: artifact.ModalityT2w, Role: "seg", Kind: artifact.KindMask}
	levelSpec = artifact.Spec{Modality: artifact.ModalityT2w, Role: "seg", Qualifier: "labeled", Kind: artifact.KindLevels}
	csaSpec   = artifact.Spec{Modality: artifact.ModalityT2w, Role: "csa", Kind: artifact.KindMetric}
)

type fixture struct {
	subj   dataset.Subject
	runner *testsupport.ScriptedRunner
	res    *resolver.Resolver
	errLog *aggregate.ErrorLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	subj, err := dataset.Layout{DataDir: filepath.Join(base, "data"), ProcessedDir: filepath.Join(base, "work")}.Subject("sub-01")
	if err != nil {
		t.Fatal(err)
	}
	runner := testsupport.NewScriptedRunner()
	res, err := resolver.New(resolver.Options{Runner: runner})
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{subj: subj, runner: runner, res: res, errLog: aggregate.NewErrorLog(filepath.Join(base, "log", "error.log"))}
}

func toolStage(name, toolName string, out artifact.Spec, inputs ...artifact.Spec) stage.Stage {
	return stage.Definition{
		StageName: name,
		Mod:       out.Modality,
		Inputs:    inputs,
		Programs:  []string{toolName},
		Action: func(ctx context.Context, env *stage.Env) (stage.Result, error) {
			res, err := env.Resolver.Resolve(ctx, resolver.Request{
				Subject:     env.Subject,
				Output:      out,
				Overridable: true,
				Build: func(p resolver.Paths) tool.Invocation {
					return tool.Invocation{Tool: toolName, Args: []string{"-o", p[out]}}
				},
			})
			if err != nil {
				return stage.Result{}, err
			}
			return stage.Result{Artifacts: res.Artifacts}, nil
		},
	}
}

func (f *fixture) pipeline(t *testing.T, stages ...stage.Stage) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(pipeline.Options{
		Stages:         stages,
		Postconditions: []artifact.Spec{segSpec, levelSpec},
		Resolver:       f.res,
		Anatomical:     "t2w",
		Errors:         f.errLog,
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRunSucceeds(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t,
		toolStage("t2w.segment", "sct_deepseg_sc", segSpec),
		toolStage("t2w.label", "sct_label_vertebrae", levelSpec, segSpec),
	)
	run := p.Run(context.Background(), f.subj)
	if run.Status != pipeline.StatusSucceeded {
		t.Fatalf("expected success, got %s (%s)", run.Status, run.Reason)
	}
	if run.CompletedStageCount() != 2 || len(run.Artifacts) != 2 {
		t.Fatalf("unexpected run %+v", run)
	}
	if lines, _ := f.errLog.Lines(); len(lines) != 0 {
		t.Fatalf("expected empty error log, got %v", lines)
	}
	if run.Elapsed() <= 0 {
		t.Fatal("expected elapsed time")
	}
}

func TestRunFailsFast(t *testing.T) {
	f := newFixture(t)
	f.runner.FailFor("sct_label_vertebrae", "sub-01")
	p := f.pipeline(t,
		toolStage("t2w.segment", "sct_deepseg_sc", segSpec),
		toolStage("t2w.label", "sct_label_vertebrae", levelSpec, segSpec),
		toolStage("t2w.csa", "sct_process_segmentation", csaSpec, segSpec),
	)
	run := p.Run(context.Background(), f.subj)
	if run.Status != pipeline.StatusFailed {
		t.Fatalf("expected failure, got %s", run.Status)
	}
	if run.StageIndex != 1 || run.FailedStage != "t2w.label" || run.Kind != "ToolInvocationFailure" {
		t.Fatalf("unexpected failure record %+v", run)
	}
	if run.CompletedStageCount() != 1 {
		t.Fatalf("expected 1 completed stage, got %d", run.CompletedStageCount())
	}
	if f.runner.Calls("sct_process_segmentation") != 0 {
		t.Fatal("stage after the failure must not run")
	}
	lines, _ := f.errLog.Lines()
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "sub-01/t2w.label ToolInvocationFailure:") {
		t.Fatalf("unexpected error log %v", lines)
	}
}

func TestRunPostconditionMissingIsNotFatal(t *testing.T) {
	f := newFixture(t)
	cleanup := stage.Definition{
		StageName: "t2w.cleanup",
		Mod:       artifact.ModalityT2w,
		Action: func(_ context.Context, env *stage.Env) (stage.Result, error) {
			return stage.Result{}, os.Remove(env.Subject.WorkPath(levelSpec))
		},
	}
	p := f.pipeline(t,
		toolStage("t2w.segment", "sct_deepseg_sc", segSpec),
		toolStage("t2w.label", "sct_label_vertebrae", levelSpec, segSpec),
		cleanup,
	)
	run := p.Run(context.Background(), f.subj)
	if run.Status != pipeline.StatusSucceeded {
		t.Fatalf("expected success, got %s (%s)", run.Status, run.Reason)
	}
	lines, _ := f.errLog.Lines()
	want := "sub-01/" + levelSpec.Name() + " does not exist"
	if len(lines) != 1 || lines[0] != want {
		t.Fatalf("expected exactly %q, got %v", want, lines)
	}
	if len(run.Missing) != 1 || run.Missing[0] != levelSpec.Name() {
		t.Fatalf("unexpected missing list %v", run.Missing)
	}
}

func TestRunAbortsBetweenStagesOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	interrupting := stage.Definition{
		StageName: "t2w.segment",
		Mod:       artifact.ModalityT2w,
		Action: func(ctx context.Context, env *stage.Env) (stage.Result, error) {
			cancel()
			return stage.Result{}, nil
		},
	}
	p := f.pipeline(t, interrupting, toolStage("t2w.label", "sct_label_vertebrae", levelSpec))
	run := p.Run(ctx, f.subj)
	if run.Status != pipeline.StatusAborted {
		t.Fatalf("expected aborted, got %s", run.Status)
	}
	if run.CompletedStageCount() != 1 || run.FailedStage != "t2w.label" {
		t.Fatalf("unexpected run %+v", run)
	}
	if f.runner.Calls("sct_label_vertebrae") != 0 {
		t.Fatal("no stage may start after cancellation")
	}
	lines, _ := f.errLog.Lines()
	if len(lines) != 1 || !strings.Contains(lines[0], "InterruptedRun") {
		t.Fatalf("expected cancellation notice in error log, got %v", lines)
	}
}

func TestRunMissingUpstreamFails(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t, toolStage("t2w.label", "sct_label_vertebrae", levelSpec, segSpec))
	run := p.Run(context.Background(), f.subj)
	if run.Status != pipeline.StatusFailed || run.Kind != "MissingUpstreamArtifact" {
		t.Fatalf("expected missing upstream failure, got %s %s", run.Status, run.Kind)
	}
}

func TestRunRecordsRegistrations(t *testing.T) {
	f := newFixture(t)
	registerStage := stage.Definition{
		StageName: "t2w.register",
		Mod:       artifact.ModalityT2w,
		Action: func(ctx context.Context, env *stage.Env) (stage.Result, error) {
			edge, err := env.Chain.Register(ctx, transform.Template, "t2w", nil, nil)
			if err != nil {
				return stage.Result{}, err
			}
			return stage.Result{Edges: []transform.Edge{edge}}, nil
		},
	}
	p, err := pipeline.New(pipeline.Options{
		Stages:     []stage.Stage{registerStage},
		Resolver:   f.res,
		Anatomical: "t2w",
		Registrar: func(dataset.Subject) transform.Registrar {
			return transform.RegistrarFunc(func(_ context.Context, src, dst transform.Space, _ transform.Inputs, _ *transform.Edge) (transform.Edge, error) {
				return transform.Edge{Forward: "warp_template2anat.nii.gz", Inverse: "warp_anat2template.nii.gz"}, nil
			})
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	run := p.Run(context.Background(), f.subj)
	if run.Status != pipeline.StatusSucceeded {
		t.Fatalf("expected success, got %s (%s)", run.Status, run.Reason)
	}
	want := "template->t2w"
	if got := run.Stages[0].Registrations; len(got) != 1 || got[0] != want {
		t.Fatalf("stage registrations = %v, want [%s]", got, want)
	}
	if len(run.Registrations) != 1 || run.Registrations[0] != want {
		t.Fatalf("run registrations = %v, want [%s]", run.Registrations, want)
	}
}

func TestNewRejectsDuplicateStages(t *testing.T) {
	st := toolStage("t2w.segment", "sct_deepseg_sc", segSpec)
	if _, err := pipeline.New(pipeline.Options{Stages: []stage.Stage{st, st}}); err == nil {
		t.Fatal("expected duplicate stage error")
	}
	if _, err := pipeline.New(pipeline.Options{}); err == nil {
		t.Fatal("expected empty pipeline error")
	}
}
