package protocol

import (
	"path/filepath"
	"slices"

	"cordflow/internal/aggregate"
	"cordflow/internal/artifact"
	"cordflow/internal/config"
	"cordflow/internal/dataset"
	"cordflow/internal/resolver"
	"cordflow/internal/stage"
	"cordflow/internal/transform"
)

// Shared table names.
const (
	TableCSAT2w = "csa-t2w"
	TableCSAT2s = "csa-t2s"
	TableDTI    = "dti-fa"
)

// Settings selects the optional modalities and the measurement parameters.
type Settings struct {
	T2Star      bool
	DWI         bool
	CSALevels   string
	DTIMetrics  []string
	TemplateDir string
	QCDir       string
	VerifyQC    bool
}

// SettingsFromConfig derives Settings from the loaded configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		T2Star:      cfg.Protocol.T2Star,
		DWI:         cfg.Protocol.DWI,
		CSALevels:   cfg.Protocol.CSALevels,
		DTIMetrics:  cfg.DTIMetrics(),
		TemplateDir: cfg.Protocol.TemplateDir,
		QCDir:       cfg.Paths.QCDir,
		VerifyQC:    cfg.Tools.QCManualOverrides,
	}
}

// Protocol is the assembled stage list for one configuration.
type Protocol struct {
	settings Settings
	stages   []stage.Stage
	post     []artifact.Spec
	tables   []aggregate.TableSpec
}

// New assembles the protocol for s.
func New(s Settings) *Protocol {
	if s.CSALevels == "" {
		s.CSALevels = "2:3"
	}
	if len(s.DTIMetrics) == 0 {
		s.DTIMetrics = []string{"FA"}
	}
	p := &Protocol{settings: s}
	p.stages = append(p.stages, t2wStages(s)...)
	p.post = []artifact.Spec{T2wSeg, T2wLevels, T2wCSA}
	p.tables = []aggregate.TableSpec{csaTable(TableCSAT2w)}
	if s.T2Star {
		p.stages = append(p.stages, t2sStages(s)...)
		p.post = append(p.post, T2sCSA)
		p.tables = append(p.tables, csaTable(TableCSAT2s))
	}
	if s.DWI {
		p.stages = append(p.stages, dwiStages(s)...)
		p.post = append(p.post, DTIMap("FA"))
		p.tables = append(p.tables, dtiTable())
	}
	return p
}

// Stages returns the ordered stage list.
func (p *Protocol) Stages() []stage.Stage {
	return slices.Clone(p.stages)
}

// Postconditions returns the artifacts a successful subject must have.
func (p *Protocol) Postconditions() []artifact.Spec {
	return slices.Clone(p.post)
}

// Tables returns the shared metric tables the stages append to.
func (p *Protocol) Tables() []aggregate.TableSpec {
	return slices.Clone(p.tables)
}

// Anatomical is the reference space every initializer must touch.
func (p *Protocol) Anatomical() transform.Space {
	return Anatomical
}

// RequiredTools lists every external program the protocol may invoke, sorted.
func (p *Protocol) RequiredTools() []string {
	var tools []string
	for _, st := range p.stages {
		tools = append(tools, st.Tools()...)
	}
	if p.settings.VerifyQC {
		tools = append(tools, resolver.QCTool)
	}
	slices.Sort(tools)
	return slices.Compact(tools)
}

// Registrar returns the registration backend factory for res.
func (p *Protocol) Registrar(res *resolver.Resolver) func(dataset.Subject) transform.Registrar {
	return func(subj dataset.Subject) transform.Registrar {
		return &toolRegistrar{subject: subj, resolver: res, qcDir: p.settings.QCDir}
	}
}

// TemplateImage is a PAM50 template file for contrast.
func (s Settings) TemplateImage(contrast string) string {
	return filepath.Join(s.TemplateDir, "template", "PAM50_"+contrast+".nii.gz")
}

// TemplateCord is the PAM50 spinal cord mask.
func (s Settings) TemplateCord() string {
	return s.TemplateImage("cord")
}
