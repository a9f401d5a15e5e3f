package artifact

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies the file product a stage emits.
type Kind string

const (
	KindImage    Kind = "image"
	KindMask     Kind = "mask"
	KindPoints   Kind = "points"
	KindLevels   Kind = "levels"
	KindWarp     Kind = "warp"
	KindCropMask Kind = "crop_mask"
	KindMetric   Kind = "metric"
	KindDir      Kind = "directory"
)

// Source records how an artifact came into existence.
type Source string

const (
	SourceInput     Source = "input"
	SourceManual    Source = "manual"
	SourceAutomatic Source = "automatic"
)

// Modality is an acquisition contrast, which doubles as the name of its
// native coordinate space.
type Modality string

const (
	ModalityT2w    Modality = "t2w"
	ModalityT2Star Modality = "t2s"
	ModalityDWI    Modality = "dwi"
)

// BIDSSuffix returns the contrast suffix used in dataset file names.
func (m Modality) BIDSSuffix() string {
	switch m {
	case ModalityT2w:
		return "T2w"
	case ModalityT2Star:
		return "T2star"
	case ModalityDWI:
		return "dwi"
	default:
		return string(m)
	}
}

// ModalityFromBIDS maps a dataset contrast suffix back to its modality.
func ModalityFromBIDS(suffix string) (Modality, bool) {
	for _, m := range []Modality{ModalityT2w, ModalityT2Star, ModalityDWI} {
		if m.BIDSSuffix() == suffix {
			return m, true
		}
	}
	return "", false
}

// Folder returns the datatype folder a modality lives in.
func (m Modality) Folder() string {
	if m == ModalityDWI {
		return "dwi"
	}
	return "anat"
}

// Spec identifies a logical artifact independently of any subject. The file
// name is derived from it by Name and nowhere else.
type Spec struct {
	Modality  Modality
	Role      string
	Qualifier string
	Kind      Kind
	Ext       string
	// Unprefixed drops the modality from the file name, for tools that
	// write fixed names into their output folder.
	Unprefixed bool
}

// Name renders <modality>[_<role>][_<qualifier>]<ext>.
func (s Spec) Name() string {
	return s.Stem() + s.ext()
}

// Stem is Name without its extension.
func (s Spec) Stem() string {
	var parts []string
	if !s.Unprefixed {
		parts = append(parts, string(s.Modality))
	}
	if s.Role != "" {
		parts = append(parts, s.Role)
	}
	if s.Qualifier != "" {
		parts = append(parts, s.Qualifier)
	}
	return strings.Join(parts, "_")
}

// OverrideName is the file name a manually produced replacement carries:
// <subject>_<BIDS suffix>[_<role>][_<qualifier>]-manual<ext>.
func (s Spec) OverrideName(subject string) string {
	parts := []string{subject, s.Modality.BIDSSuffix()}
	if s.Role != "" {
		parts = append(parts, s.Role)
	}
	if s.Qualifier != "" {
		parts = append(parts, s.Qualifier)
	}
	return strings.Join(parts, "_") + "-manual" + s.ext()
}

// WithQualifier returns a copy of s carrying qualifier.
func (s Spec) WithQualifier(qualifier string) Spec {
	s.Qualifier = qualifier
	return s
}

// Validate rejects specs that would produce ambiguous names.
func (s Spec) Validate() error {
	if s.Modality == "" {
		return errors.New("artifact spec: modality required")
	}
	for _, field := range []string{string(s.Modality), s.Role, s.Qualifier} {
		if strings.ContainsAny(field, "/\\ ") {
			return fmt.Errorf("artifact spec: %q contains a path separator or space", field)
		}
	}
	if s.Unprefixed && s.Role == "" {
		return fmt.Errorf("artifact spec: unprefixed %s needs a role", s.Modality)
	}
	if s.Kind == "" {
		return fmt.Errorf("artifact spec %s: kind required", s.Stem())
	}
	return nil
}

// Extension returns the file extension, including the leading dot.
func (s Spec) Extension() string {
	return s.ext()
}

func (s Spec) String() string {
	return s.Name()
}

func (s Spec) ext() string {
	if s.Ext != "" {
		return s.Ext
	}
	switch s.Kind {
	case KindMetric:
		return ".csv"
	case KindDir:
		return ""
	default:
		return ".nii.gz"
	}
}

// Artifact is a materialized Spec for one subject.
type Artifact struct {
	Subject string
	Spec    Spec
	Path    string
	Source  Source
}

// Name is the artifact's canonical file name.
func (a Artifact) Name() string {
	return a.Spec.Name()
}
