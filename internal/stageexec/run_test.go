package stageexec

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"cordflow/internal/artifact"
	"cordflow/internal/services"
	"cordflow/internal/stage"
)

func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestRunLogsBoundaries(t *testing.T) {
	var buf bytes.Buffer
	seg := artifact.Spec{Modality: artifact.ModalityT2w, Role: "seg", Kind: artifact.KindMask}
	st := stage.Definition{
		StageName: "t2w.segment",
		Mod:       artifact.ModalityT2w,
		Action: func(ctx context.Context, env *stage.Env) (stage.Result, error) {
			if name, _ := services.StageFromContext(ctx); name != "t2w.segment" {
				t.Errorf("stage missing from context")
			}
			return stage.Result{Artifacts: []artifact.Artifact{{Spec: seg, Source: artifact.SourceAutomatic}}}, nil
		},
	}
	produced, _ := artifact.NewSet()
	out := Run(services.WithSubject(context.Background(), "sub-01"), Options{Logger: bufferLogger(&buf), Stage: st, Produced: produced})
	if out.Err != nil {
		t.Fatalf("unexpected error %v", out.Err)
	}
	if out.RequestID == "" {
		t.Fatal("expected request id")
	}
	logs := buf.String()
	for _, want := range []string{`"event_type":"stage_start"`, `"event_type":"stage_complete"`, `"subject":"sub-01"`, `"sources":"automatic=1"`} {
		if !strings.Contains(logs, want) {
			t.Fatalf("expected %s in logs:\n%s", want, logs)
		}
	}
}

func TestRunReportsMissingInput(t *testing.T) {
	var buf bytes.Buffer
	seg := artifact.Spec{Modality: artifact.ModalityT2w, Role: "seg", Kind: artifact.KindMask}
	called := false
	st := stage.Definition{
		StageName: "t2w.label",
		Inputs:    []artifact.Spec{seg},
		Action: func(context.Context, *stage.Env) (stage.Result, error) {
			called = true
			return stage.Result{}, nil
		},
	}
	produced, _ := artifact.NewSet()
	out := Run(context.Background(), Options{Logger: bufferLogger(&buf), Stage: st, Produced: produced})
	if !errors.Is(out.Err, services.ErrMissingUpstream) {
		t.Fatalf("expected ErrMissingUpstream, got %v", out.Err)
	}
	if called {
		t.Fatal("stage must not run without its inputs")
	}
	if !strings.Contains(buf.String(), `"event_type":"stage_failure"`) {
		t.Fatalf("expected failure event:\n%s", buf.String())
	}
}

func TestRunRecoversPanics(t *testing.T) {
	st := stage.Definition{
		StageName: "boom",
		Action: func(context.Context, *stage.Env) (stage.Result, error) {
			panic("unexpected nil image")
		},
	}
	produced, _ := artifact.NewSet()
	out := Run(context.Background(), Options{Stage: st, Produced: produced})
	if out.Err == nil || services.Kind(out.Err) != "UnexpectedTermination" {
		t.Fatalf("expected unexpected termination, got %v", out.Err)
	}
}

func TestRunSkipsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	produced, _ := artifact.NewSet()
	out := Run(ctx, Options{Stage: stage.Definition{StageName: "t2w.segment"}, Produced: produced})
	if !services.IsInterrupted(out.Err) {
		t.Fatalf("expected interrupt, got %v", out.Err)
	}
}
