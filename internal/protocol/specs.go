package protocol

import (
	"strings"

	"cordflow/internal/artifact"
	"cordflow/internal/transform"
)

// Coordinate spaces. Native spaces share their modality's name.
const (
	SpaceT2w   = transform.Space(artifact.ModalityT2w)
	SpaceT2s   = transform.Space(artifact.ModalityT2Star)
	SpaceDWI   = transform.Space(artifact.ModalityDWI)
	Anatomical = SpaceT2w
)

// T2w artifacts.
var (
	T2wRaw      = artifact.Spec{Modality: artifact.ModalityT2w, Kind: artifact.KindImage}
	T2wSeg      = artifact.Spec{Modality: artifact.ModalityT2w, Role: "seg", Kind: artifact.KindMask}
	T2wDiscs    = artifact.Spec{Modality: artifact.ModalityT2w, Role: "labels", Kind: artifact.KindPoints}
	T2wLevels   = artifact.Spec{Modality: artifact.ModalityT2w, Role: "seg", Qualifier: "labeled", Kind: artifact.KindLevels}
	T2wPMJ      = artifact.Spec{Modality: artifact.ModalityT2w, Role: "pmj", Kind: artifact.KindPoints}
	T2wTemplate = artifact.Spec{Modality: artifact.ModalityT2w, Role: "label", Kind: artifact.KindDir}
	T2wCSA      = artifact.Spec{Modality: artifact.ModalityT2w, Role: "csa", Kind: artifact.KindMetric}
)

// T2*w artifacts.
var (
	T2sRaw = artifact.Spec{Modality: artifact.ModalityT2Star, Kind: artifact.KindImage}
	T2sSeg = artifact.Spec{Modality: artifact.ModalityT2Star, Role: "seg", Kind: artifact.KindMask}
	T2sCSA = artifact.Spec{Modality: artifact.ModalityT2Star, Role: "csa", Kind: artifact.KindMetric}
)

// Diffusion artifacts.
var (
	DWIRaw      = artifact.Spec{Modality: artifact.ModalityDWI, Kind: artifact.KindImage}
	DWIBval     = artifact.Spec{Modality: artifact.ModalityDWI, Kind: artifact.KindImage, Ext: ".bval"}
	DWIBvec     = artifact.Spec{Modality: artifact.ModalityDWI, Kind: artifact.KindImage, Ext: ".bvec"}
	DWIMoco     = artifact.Spec{Modality: artifact.ModalityDWI, Role: "moco", Kind: artifact.KindImage}
	DWIMean     = artifact.Spec{Modality: artifact.ModalityDWI, Role: "moco", Qualifier: "dwi_mean", Kind: artifact.KindImage}
	DWISeg      = artifact.Spec{Modality: artifact.ModalityDWI, Role: "seg", Kind: artifact.KindMask}
	DWITemplate = artifact.Spec{Modality: artifact.ModalityDWI, Role: "label", Kind: artifact.KindDir}
)

// DTIMap is the diffusion tensor map for metric (FA, MD, AD, RD).
func DTIMap(metric string) artifact.Spec {
	return artifact.Spec{Modality: artifact.ModalityDWI, Role: strings.ToUpper(metric), Kind: artifact.KindImage}
}

// DTIExtract is the per-subject table extracted from a DTI map.
func DTIExtract(metric string) artifact.Spec {
	spec := DTIMap(metric).WithQualifier("extract")
	spec.Kind = artifact.KindMetric
	return spec
}

// Warps returns the forward (template to native) and inverse warp specs for
// a native space. The anatomical pair carries the fixed names
// sct_register_to_template writes: warp_template2anat and warp_anat2template.
func Warps(dst transform.Space) (artifact.Spec, artifact.Spec) {
	name := string(dst)
	fixed := dst == Anatomical
	if fixed {
		name = "anat"
	}
	mod := artifact.Modality(dst)
	fwd := artifact.Spec{Modality: mod, Role: "warp", Qualifier: "template2" + name, Kind: artifact.KindWarp, Unprefixed: fixed}
	inv := artifact.Spec{Modality: mod, Role: "warp", Qualifier: name + "2template", Kind: artifact.KindWarp, Unprefixed: fixed}
	return fwd, inv
}
