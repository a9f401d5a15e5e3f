package protocol

import (
	"path/filepath"

	"cordflow/internal/artifact"
	"cordflow/internal/resolver"
	"cordflow/internal/stage"
	"cordflow/internal/transform"
)

// whiteMatterLabel is the PAM50 atlas label for the whole white matter.
const whiteMatterLabel = "51"

func dwiStages(s Settings) []stage.Stage {
	mod := artifact.ModalityDWI
	anatWarp, _ := Warps(SpaceT2w)
	dwiWarp, _ := Warps(SpaceDWI)
	init := transform.Key{Source: transform.Template, Dest: SpaceT2w}

	fa := DTIMap("FA")
	maps := make([]artifact.Spec, 0, len(s.DTIMetrics))
	for _, metric := range s.DTIMetrics {
		if spec := DTIMap(metric); spec != fa {
			maps = append(maps, spec)
		}
	}

	return []stage.Stage{
		importStage(mod, DWIRaw, DWIBval, DWIBvec),
		toolStep{
			name:   "dwi.moco",
			mod:    mod,
			inputs: []artifact.Spec{DWIRaw, DWIBvec},
			tool:   "sct_dmri_moco",
			output: DWIMoco,
			extra:  []artifact.Spec{DWIMean},
			args: func(env *stage.Env, in, out resolver.Paths) []string {
				args := []string{"-i", in[DWIRaw], "-bvec", in[DWIBvec], "-ofolder", filepath.Dir(out[DWIMoco])}
				return append(args, qcArgs(env, s)...)
			},
		}.definition(),
		toolStep{
			name:        "dwi.segment",
			mod:         mod,
			inputs:      []artifact.Spec{DWIMean},
			tool:        "sct_deepseg_sc",
			output:      DWISeg,
			overridable: true,
			qcImage:     DWIMean,
			qcFunction:  "sct_deepseg_sc",
			args: func(env *stage.Env, in, out resolver.Paths) []string {
				args := []string{"-i", in[DWIMean], "-c", "dwi", "-o", out[DWISeg]}
				return append(args, qcArgs(env, s)...)
			},
		}.definition(),
		registerStage("dwi.register", mod,
			[]artifact.Spec{DWIMean, DWISeg, anatWarp},
			[]string{"sct_register_multimodal"},
			SpaceT2w, &init,
			func(s Settings, in resolver.Paths) transform.Inputs {
				return transform.Inputs{
					InputImage:        in[DWIMean],
					InputSeg:          in[DWISeg],
					InputTemplate:     s.TemplateImage("t1"),
					InputTemplateCord: s.TemplateCord(),
				}
			}, s),
		toolStep{
			name:   "dwi.warp_template",
			mod:    mod,
			inputs: []artifact.Spec{DWIMean, dwiWarp},
			tool:   "sct_warp_template",
			output: DWITemplate,
			args: func(_ *stage.Env, in, out resolver.Paths) []string {
				return []string{"-d", in[DWIMean], "-w", in[dwiWarp], "-ofolder", out[DWITemplate]}
			},
		}.definition(),
		toolStep{
			name:   "dwi.dti",
			mod:    mod,
			inputs: []artifact.Spec{DWIMoco, DWIBval, DWIBvec},
			tool:   "sct_dmri_compute_dti",
			output: fa,
			extra:  maps,
			args: func(_ *stage.Env, in, out resolver.Paths) []string {
				prefix := filepath.Join(filepath.Dir(out[fa]), string(artifact.ModalityDWI)+"_")
				return []string{"-i", in[DWIMoco], "-bval", in[DWIBval], "-bvec", in[DWIBvec], "-o", prefix}
			},
		}.definition(),
		toolStep{
			name:    "dwi.metrics",
			mod:     mod,
			inputs:  []artifact.Spec{fa, DWITemplate, DWISeg},
			tool:    "sct_extract_metric",
			output:  DTIExtract("FA"),
			table:   TableDTI,
			columns: dtiColumns,
			segment: DWISeg,
			args: func(_ *stage.Env, in, out resolver.Paths) []string {
				return []string{
					"-i", in[fa],
					"-f", filepath.Join(in[DWITemplate], "atlas"),
					"-l", whiteMatterLabel,
					"-method", "map",
					"-o", out[DTIExtract("FA")],
				}
			},
		}.definition(),
	}
}
