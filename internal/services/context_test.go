package services_test

import (
	"context"
	"testing"

	"cordflow/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSubject(ctx, "sub-01")
	ctx = services.WithStage(ctx, "t2w.segment")
	ctx = services.WithModality(ctx, "t2w")
	ctx = services.WithBatchID(ctx, "batch-1")
	ctx = services.WithRequestID(ctx, "req-123")

	if subject, ok := services.SubjectFromContext(ctx); !ok || subject != "sub-01" {
		t.Fatalf("unexpected subject: %v %v", subject, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "t2w.segment" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if modality, ok := services.ModalityFromContext(ctx); !ok || modality != "t2w" {
		t.Fatalf("unexpected modality: %v %v", modality, ok)
	}
	if id, ok := services.BatchIDFromContext(ctx); !ok || id != "batch-1" {
		t.Fatalf("unexpected batch id: %v %v", id, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}
