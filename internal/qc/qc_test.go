package qc

import (
	"context"
	"sync"
	"testing"
)

func TestFileSinkAppendsPerSubject(t *testing.T) {
	sink := NewFileSink(t.TempDir())
	ctx := context.Background()

	if err := sink.Record(ctx, Entry{Subject: "sub-01", Artifact: "t2w_seg.nii.gz", Source: "manual"}); err != nil {
		t.Fatal(err)
	}
	if err := sink.Record(ctx, Entry{Subject: "sub-01", Artifact: "t2w_seg_labeled.nii.gz", Source: "automatic", Command: "sct_label_vertebrae"}); err != nil {
		t.Fatal(err)
	}
	if err := sink.Record(ctx, Entry{Subject: "sub-02", Artifact: "t2w_seg.nii.gz", Source: "automatic"}); err != nil {
		t.Fatal(err)
	}

	entries, err := sink.ReadEntries("sub-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Source != "manual" || entries[1].Command != "sct_label_vertebrae" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if entries[0].Time.IsZero() {
		t.Fatal("expected timestamp to be filled")
	}
}

func TestFileSinkRequiresSubject(t *testing.T) {
	sink := NewFileSink(t.TempDir())
	if err := sink.Record(context.Background(), Entry{Artifact: "x"}); err == nil {
		t.Fatal("expected error without subject")
	}
}

func TestFileSinkConcurrentRecords(t *testing.T) {
	sink := NewFileSink(t.TempDir())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sink.Record(context.Background(), Entry{Subject: "sub-01", Artifact: "a", Source: "automatic"})
		}()
	}
	wg.Wait()
	entries, err := sink.ReadEntries("sub-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 20 {
		t.Fatalf("expected 20 entries, got %d", len(entries))
	}
}
