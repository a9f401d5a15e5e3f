package artifact

import "testing"

func TestSpecNaming(t *testing.T) {
	tests := []struct {
		spec     Spec
		name     string
		override string
	}{
		{Spec{Modality: ModalityT2w, Kind: KindImage}, "t2w.nii.gz", "sub-01_T2w-manual.nii.gz"},
		{Spec{Modality: ModalityT2w, Role: "seg", Kind: KindMask}, "t2w_seg.nii.gz", "sub-01_T2w_seg-manual.nii.gz"},
		{Spec{Modality: ModalityT2w, Role: "seg", Qualifier: "labeled", Kind: KindLevels}, "t2w_seg_labeled.nii.gz", "sub-01_T2w_seg_labeled-manual.nii.gz"},
		{Spec{Modality: ModalityT2Star, Role: "gmseg", Kind: KindMask}, "t2s_gmseg.nii.gz", "sub-01_T2star_gmseg-manual.nii.gz"},
		{Spec{Modality: ModalityT2w, Role: "csa", Kind: KindMetric}, "t2w_csa.csv", "sub-01_T2w_csa-manual.csv"},
		{Spec{Modality: ModalityDWI, Role: "label", Kind: KindDir}, "dwi_label", "sub-01_dwi_label-manual"},
		{Spec{Modality: ModalityT2w, Role: "warp", Qualifier: "template2anat", Kind: KindWarp, Unprefixed: true}, "warp_template2anat.nii.gz", "sub-01_T2w_warp_template2anat-manual.nii.gz"},
	}
	for _, tc := range tests {
		if got := tc.spec.Name(); got != tc.name {
			t.Fatalf("Name() = %q, want %q", got, tc.name)
		}
		if got := tc.spec.OverrideName("sub-01"); got != tc.override {
			t.Fatalf("OverrideName() = %q, want %q", got, tc.override)
		}
	}
}

func TestSpecValidate(t *testing.T) {
	if err := (Spec{Modality: ModalityT2w, Role: "seg", Kind: KindMask}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := []Spec{
		{Role: "seg", Kind: KindMask},
		{Modality: ModalityT2w, Role: "seg/x", Kind: KindMask},
		{Modality: ModalityT2w, Role: "seg"},
		{Modality: ModalityT2w, Kind: KindImage, Unprefixed: true},
	}
	for _, spec := range bad {
		if err := spec.Validate(); err == nil {
			t.Fatalf("expected validation error for %+v", spec)
		}
	}
}

func TestModalityFolders(t *testing.T) {
	if ModalityDWI.Folder() != "dwi" || ModalityT2Star.Folder() != "anat" {
		t.Fatal("unexpected datatype folders")
	}
}

func TestModalityFromBIDS(t *testing.T) {
	for _, m := range []Modality{ModalityT2w, ModalityT2Star, ModalityDWI} {
		if got, ok := ModalityFromBIDS(m.BIDSSuffix()); !ok || got != m {
			t.Fatalf("%s: got %q ok=%v", m, got, ok)
		}
	}
	if _, ok := ModalityFromBIDS("T1w"); ok {
		t.Fatal("T1w is not a protocol modality")
	}
}

func TestSetIsWriteOnce(t *testing.T) {
	seg := Artifact{Subject: "sub-01", Spec: Spec{Modality: ModalityT2w, Role: "seg", Kind: KindMask}, Path: "/w/t2w_seg.nii.gz"}
	set, err := NewSet(seg)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	if err := set.Add(seg); err == nil {
		t.Fatal("expected duplicate add to fail")
	}
	got, ok := set.Get(Spec{Modality: ModalityT2w, Role: "seg", Kind: KindMask})
	if !ok || got.Path != seg.Path {
		t.Fatalf("unexpected lookup result %+v %v", got, ok)
	}
	if set.Len() != 1 || len(set.All()) != 1 {
		t.Fatal("expected single artifact")
	}
}

func TestSuffixHelpers(t *testing.T) {
	if got := AddSuffix("sub-01_T2w.nii.gz", "_seg-manual"); got != "sub-01_T2w_seg-manual.nii.gz" {
		t.Fatalf("AddSuffix = %q", got)
	}
	if got := AddSuffix("dir/t2.nii", "_mean"); got != "dir/t2_mean.nii" {
		t.Fatalf("AddSuffix = %q", got)
	}
	if got := RemoveSuffix("sub-01_T2w_seg.nii.gz", "_seg"); got != "sub-01_T2w.nii.gz" {
		t.Fatalf("RemoveSuffix = %q", got)
	}
	stem, ext := SplitExt("archive.tar.gz")
	if stem != "archive" || ext != ".tar.gz" {
		t.Fatalf("SplitExt = %q %q", stem, ext)
	}
}
