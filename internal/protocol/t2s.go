package protocol

import (
	"cordflow/internal/artifact"
	"cordflow/internal/resolver"
	"cordflow/internal/stage"
	"cordflow/internal/transform"
)

func t2sStages(s Settings) []stage.Stage {
	mod := artifact.ModalityT2Star
	anatWarp, _ := Warps(SpaceT2w)
	init := transform.Key{Source: transform.Template, Dest: SpaceT2w}
	return []stage.Stage{
		importStage(mod, T2sRaw),
		toolStep{
			name:        "t2s.segment",
			mod:         mod,
			inputs:      []artifact.Spec{T2sRaw},
			tool:        "sct_deepseg_sc",
			output:      T2sSeg,
			overridable: true,
			qcImage:     T2sRaw,
			qcFunction:  "sct_deepseg_sc",
			args: func(env *stage.Env, in, out resolver.Paths) []string {
				args := []string{"-i", in[T2sRaw], "-c", "t2s", "-o", out[T2sSeg]}
				return append(args, qcArgs(env, s)...)
			},
		}.definition(),
		registerStage("t2s.register", mod,
			[]artifact.Spec{T2sRaw, T2sSeg, anatWarp},
			[]string{"sct_register_multimodal"},
			SpaceT2w, &init,
			func(s Settings, in resolver.Paths) transform.Inputs {
				return transform.Inputs{
					InputImage:        in[T2sRaw],
					InputSeg:          in[T2sSeg],
					InputTemplate:     s.TemplateImage("t2s"),
					InputTemplateCord: s.TemplateCord(),
				}
			}, s),
		toolStep{
			name:    "t2s.metrics",
			mod:     mod,
			inputs:  []artifact.Spec{T2sSeg},
			tool:    "sct_process_segmentation",
			output:  T2sCSA,
			table:   TableCSAT2s,
			columns: csaColumns,
			segment: T2sSeg,
			args: func(_ *stage.Env, in, out resolver.Paths) []string {
				return []string{"-i", in[T2sSeg], "-o", out[T2sCSA]}
			},
		}.definition(),
	}
}
