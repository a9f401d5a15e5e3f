package protocol

import (
	"context"
	"path/filepath"

	"cordflow/internal/artifact"
	"cordflow/internal/resolver"
	"cordflow/internal/stage"
	"cordflow/internal/tool"
	"cordflow/internal/transform"
)

func t2wStages(s Settings) []stage.Stage {
	mod := artifact.ModalityT2w
	fwd, _ := Warps(SpaceT2w)
	return []stage.Stage{
		importStage(mod, T2wRaw),
		toolStep{
			name:        "t2w.segment",
			mod:         mod,
			inputs:      []artifact.Spec{T2wRaw},
			tool:        "sct_deepseg_sc",
			output:      T2wSeg,
			overridable: true,
			qcImage:     T2wRaw,
			qcFunction:  "sct_deepseg_sc",
			args: func(env *stage.Env, in, out resolver.Paths) []string {
				args := []string{"-i", in[T2wRaw], "-c", "t2", "-o", out[T2wSeg]}
				return append(args, qcArgs(env, s)...)
			},
		}.definition(),
		labelStage(s),
		toolStep{
			name:        "t2w.pmj",
			mod:         mod,
			inputs:      []artifact.Spec{T2wRaw},
			tool:        "sct_detect_pmj",
			output:      T2wPMJ,
			overridable: true,
			qcImage:     T2wRaw,
			qcFunction:  "sct_detect_pmj",
			args: func(env *stage.Env, in, out resolver.Paths) []string {
				args := []string{"-i", in[T2wRaw], "-c", "t2", "-o", out[T2wPMJ]}
				return append(args, qcArgs(env, s)...)
			},
		}.definition(),
		registerStage("t2w.register", mod,
			[]artifact.Spec{T2wRaw, T2wSeg, T2wLevels},
			[]string{"sct_register_to_template"},
			transform.Template, nil,
			func(_ Settings, in resolver.Paths) transform.Inputs {
				return transform.Inputs{
					InputImage:  in[T2wRaw],
					InputSeg:    in[T2wSeg],
					InputLevels: in[T2wLevels],
				}
			}, s),
		toolStep{
			name:   "t2w.warp_template",
			mod:    mod,
			inputs: []artifact.Spec{T2wRaw, fwd},
			tool:   "sct_warp_template",
			output: T2wTemplate,
			args: func(_ *stage.Env, in, out resolver.Paths) []string {
				return []string{"-d", in[T2wRaw], "-w", in[fwd], "-a", "0", "-ofolder", out[T2wTemplate]}
			},
		}.definition(),
		toolStep{
			name:    "t2w.csa",
			mod:     mod,
			inputs:  []artifact.Spec{T2wSeg, T2wLevels},
			tool:    "sct_process_segmentation",
			output:  T2wCSA,
			table:   TableCSAT2w,
			columns: csaColumns,
			segment: T2wSeg,
			args: func(_ *stage.Env, in, out resolver.Paths) []string {
				return []string{"-i", in[T2wSeg], "-vert", s.CSALevels, "-vertfile", in[T2wLevels], "-perlevel", "1", "-o", out[T2wCSA]}
			},
		}.definition(),
	}
}

// labelStage labels vertebral levels. A manual labeled segmentation replaces
// the tool; otherwise a manual disc label file, when present, seeds the
// automatic labeling.
func labelStage(s Settings) stage.Stage {
	return stage.Definition{
		StageName: "t2w.label",
		Mod:       artifact.ModalityT2w,
		Inputs:    []artifact.Spec{T2wRaw, T2wSeg},
		Programs:  []string{"sct_label_vertebrae"},
		Action: func(ctx context.Context, env *stage.Env) (stage.Result, error) {
			in, err := inputPaths(env, []artifact.Spec{T2wRaw, T2wSeg})
			if err != nil {
				return stage.Result{}, err
			}
			var result stage.Result
			discs, found, err := env.Resolver.Optional(ctx, env.Subject, T2wDiscs)
			if err != nil {
				return stage.Result{}, err
			}
			if found {
				result.Add(discs)
			}
			res, err := env.Resolver.Resolve(ctx, resolver.Request{
				Subject:     env.Subject,
				Output:      T2wLevels,
				Overridable: true,
				Verify:      &resolver.Verification{Image: in[T2wRaw], Function: "sct_label_vertebrae"},
				Build: func(out resolver.Paths) tool.Invocation {
					dir := filepath.Dir(out[T2wLevels])
					args := []string{"-i", in[T2wRaw], "-s", in[T2wSeg], "-c", "t2", "-ofolder", dir}
					if found {
						args = append(args, "-discfile", discs.Path)
					}
					return tool.Invocation{Tool: "sct_label_vertebrae", Args: append(args, qcArgs(env, s)...), Dir: dir}
				},
			})
			if err != nil {
				return stage.Result{}, err
			}
			result.Add(res.Artifacts...)
			return result, nil
		},
	}
}
