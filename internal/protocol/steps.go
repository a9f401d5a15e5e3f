package protocol

import (
	"context"
	"path/filepath"

	"cordflow/internal/aggregate"
	"cordflow/internal/artifact"
	"cordflow/internal/resolver"
	"cordflow/internal/services"
	"cordflow/internal/stage"
	"cordflow/internal/tool"
	"cordflow/internal/transform"
)

// argsFunc renders a tool's arguments from the declared input paths and the
// canonical output paths.
type argsFunc func(env *stage.Env, in, out resolver.Paths) []string

// toolStep is a stage whose outputs come from a single tool call.
type toolStep struct {
	name        string
	mod         artifact.Modality
	inputs      []artifact.Spec
	tool        string
	output      artifact.Spec
	extra       []artifact.Spec
	overridable bool
	// qcImage is the declared input a staged override is checked against.
	qcImage    artifact.Spec
	qcFunction string
	args       argsFunc
	// table receives one row parsed from the primary output when set.
	table   string
	columns []string
	segment artifact.Spec
}

func (s toolStep) definition() stage.Stage {
	return stage.Definition{
		StageName: s.name,
		Mod:       s.mod,
		Inputs:    s.inputs,
		Programs:  []string{s.tool},
		Action:    s.run,
	}
}

func (s toolStep) run(ctx context.Context, env *stage.Env) (stage.Result, error) {
	in, err := inputPaths(env, s.inputs)
	if err != nil {
		return stage.Result{}, err
	}
	req := resolver.Request{
		Subject:     env.Subject,
		Output:      s.output,
		Extra:       s.extra,
		Overridable: s.overridable,
		Build: func(out resolver.Paths) tool.Invocation {
			return tool.Invocation{
				Tool: s.tool,
				Args: s.args(env, in, out),
				Dir:  filepath.Dir(out[s.output]),
			}
		},
	}
	if s.overridable && s.qcFunction != "" {
		req.Verify = &resolver.Verification{Image: in[s.qcImage], Function: s.qcFunction}
	}
	res, err := env.Resolver.Resolve(ctx, req)
	if err != nil {
		return stage.Result{}, err
	}
	var result stage.Result
	result.Add(res.Artifacts...)

	if s.table != "" {
		row, err := extractRow(res.Primary().Path, s.columns)
		if err != nil {
			return stage.Result{}, services.Wrap(services.ErrToolInvocation, s.name, "read metrics", res.Primary().Name(), err)
		}
		row[aggregate.SubjectColumn] = env.Subject.ID
		if s.segment != (artifact.Spec{}) {
			if seg, err := env.Input(s.segment); err == nil {
				row[SegSourceColumn] = string(seg.Source)
			}
		}
		if err := env.Metrics.Append(s.table, row); err != nil {
			return stage.Result{}, services.Wrap(services.ErrValidation, s.name, "append metrics", s.table, err)
		}
		result.Rows++
	}
	return result, nil
}

func inputPaths(env *stage.Env, specs []artifact.Spec) (resolver.Paths, error) {
	paths := make(resolver.Paths, len(specs))
	for _, spec := range specs {
		path, err := env.Path(spec)
		if err != nil {
			return nil, err
		}
		paths[spec] = path
	}
	return paths, nil
}

// importStage copies the raw acquisitions for mod into the working area.
func importStage(mod artifact.Modality, specs ...artifact.Spec) stage.Stage {
	return stage.Definition{
		StageName: string(mod) + ".import",
		Mod:       mod,
		Action: func(ctx context.Context, env *stage.Env) (stage.Result, error) {
			var result stage.Result
			for _, spec := range specs {
				art, err := env.Resolver.Import(ctx, env.Subject, spec, env.Subject.RawPath(spec))
				if err != nil {
					return stage.Result{}, err
				}
				result.Add(art)
			}
			return result, nil
		},
	}
}

// registerStage registers src to dst through the subject's transform chain
// and reports the resulting warp files as artifacts.
func registerStage(name string, dst artifact.Modality, inputs []artifact.Spec, programs []string, src transform.Space, init *transform.Key, chainInputs func(s Settings, in resolver.Paths) transform.Inputs, s Settings) stage.Stage {
	return stage.Definition{
		StageName: name,
		Mod:       dst,
		Inputs:    inputs,
		Programs:  programs,
		Action: func(ctx context.Context, env *stage.Env) (stage.Result, error) {
			if env.Chain == nil {
				return stage.Result{}, services.Wrap(services.ErrConfiguration, name, "register", "no transform chain", nil)
			}
			in, err := inputPaths(env, inputs)
			if err != nil {
				return stage.Result{}, err
			}
			edge, err := env.Chain.Register(ctx, src, transform.Space(dst), chainInputs(s, in), init)
			if err != nil {
				return stage.Result{}, err
			}
			fwd, inv := Warps(transform.Space(dst))
			result := stage.Result{Edges: []transform.Edge{edge}}
			result.Add(
				artifact.Artifact{Subject: env.Subject.ID, Spec: fwd, Path: edge.Forward, Source: artifact.SourceAutomatic},
				artifact.Artifact{Subject: env.Subject.ID, Spec: inv, Path: edge.Inverse, Source: artifact.SourceAutomatic},
			)
			return result, nil
		},
	}
}

func qcArgs(env *stage.Env, s Settings) []string {
	if s.QCDir == "" {
		return nil
	}
	return []string{"-qc", s.QCDir, "-qc-subject", env.Subject.ID}
}
