package dataset_test

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"cordflow/internal/artifact"
	"cordflow/internal/dataset"
)

func TestSubjectPaths(t *testing.T) {
	layout := dataset.Layout{DataDir: "/data", ProcessedDir: "/work"}
	subj, err := layout.Subject("sub-01")
	if err != nil {
		t.Fatalf("Subject: %v", err)
	}
	seg := artifact.Spec{Modality: artifact.ModalityT2w, Role: "seg", Kind: artifact.KindMask}
	raw := artifact.Spec{Modality: artifact.ModalityDWI, Kind: artifact.KindImage}

	if got := subj.WorkPath(seg); got != "/work/sub-01/anat/t2w_seg.nii.gz" {
		t.Fatalf("WorkPath = %q", got)
	}
	if got := subj.OverridePath(seg); got != "/data/derivatives/labels/sub-01/anat/sub-01_T2w_seg-manual.nii.gz" {
		t.Fatalf("OverridePath = %q", got)
	}
	if got := subj.RawPath(raw); got != "/data/sub-01/dwi/sub-01_dwi.nii.gz" {
		t.Fatalf("RawPath = %q", got)
	}
}

func TestSubjectsRejectsInvalidIDs(t *testing.T) {
	layout := dataset.Layout{DataDir: "/data", ProcessedDir: "/work"}
	for _, ids := range [][]string{{""}, {"../etc"}, {"sub-01", "sub-01"}} {
		if _, err := layout.Subjects(ids); err == nil {
			t.Fatalf("expected error for %v", ids)
		}
	}
}

func TestDiscoverListsSubjectDirectories(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"sub-02", "sub-01", "derivatives"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "sub-03"), []byte("not a dir"), 0o644); err != nil {
		t.Fatal(err)
	}

	ids, err := dataset.Layout{DataDir: root}.Discover("")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"sub-01", "sub-02"}) {
		t.Fatalf("unexpected subjects %v", ids)
	}
}

func TestReadSubjectsFile(t *testing.T) {
	ids, err := dataset.ReadSubjectsFile(strings.NewReader("# cohort A\nsub-01\n\n  sub-02  \n"))
	if err != nil {
		t.Fatalf("ReadSubjectsFile: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"sub-01", "sub-02"}) {
		t.Fatalf("unexpected ids %v", ids)
	}
}
