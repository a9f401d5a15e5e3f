package stage

import (
	"context"
	"fmt"
	"log/slog"

	"cordflow/internal/aggregate"
	"cordflow/internal/artifact"
	"cordflow/internal/dataset"
	"cordflow/internal/logging"
	"cordflow/internal/resolver"
	"cordflow/internal/services"
	"cordflow/internal/transform"
)

// Stage is one step of a subject pipeline.
type Stage interface {
	Name() string
	Modality() artifact.Modality
	// Requires lists the artifacts that must exist before Run is called.
	Requires() []artifact.Spec
	// Tools lists the external programs the stage may invoke.
	Tools() []string
	Run(ctx context.Context, env *Env) (Result, error)
}

// Result is what a stage hands back to the pipeline.
type Result struct {
	Artifacts []artifact.Artifact
	Edges     []transform.Edge
	Rows      int
}

// Add appends the artifacts of a resolution.
func (r *Result) Add(arts ...artifact.Artifact) {
	r.Artifacts = append(r.Artifacts, arts...)
}

// MetricSink receives rows for the shared tables.
type MetricSink interface {
	Append(table string, row aggregate.Row) error
}

// Env is the explicit state a stage runs against. Inputs holds only the
// artifacts the stage declared.
type Env struct {
	Subject  dataset.Subject
	Resolver *resolver.Resolver
	Chain    *transform.Chain
	Metrics  MetricSink
	Logger   *slog.Logger

	stage  string
	inputs map[artifact.Spec]artifact.Artifact
}

// NewEnv builds the environment for st, failing with ErrMissingUpstream when
// a declared input has not been produced.
func NewEnv(base Env, st Stage, produced *artifact.Set) (*Env, error) {
	env := base
	env.stage = st.Name()
	env.inputs = make(map[artifact.Spec]artifact.Artifact, len(st.Requires()))
	if env.Logger == nil {
		env.Logger = logging.NewNop()
	}
	for _, spec := range st.Requires() {
		art, ok := produced.Get(spec)
		if !ok {
			return nil, services.Wrap(services.ErrMissingUpstream, st.Name(), "check inputs",
				fmt.Sprintf("required input %s was never produced", spec.Name()), nil)
		}
		env.inputs[spec] = art
	}
	return &env, nil
}

// Input returns a declared input.
func (e *Env) Input(spec artifact.Spec) (artifact.Artifact, error) {
	art, ok := e.inputs[spec]
	if !ok {
		return artifact.Artifact{}, services.Wrap(services.ErrMissingUpstream, e.stage, "read input",
			fmt.Sprintf("%s is not a declared input", spec.Name()), nil)
	}
	return art, nil
}

// Path returns the path of a declared input.
func (e *Env) Path(spec artifact.Spec) (string, error) {
	art, err := e.Input(spec)
	if err != nil {
		return "", err
	}
	return art.Path, nil
}

// Definition is a Stage assembled from its parts.
type Definition struct {
	StageName string
	Mod       artifact.Modality
	Inputs    []artifact.Spec
	Programs  []string
	Action    func(ctx context.Context, env *Env) (Result, error)
}

func (d Definition) Name() string                { return d.StageName }
func (d Definition) Modality() artifact.Modality { return d.Mod }
func (d Definition) Requires() []artifact.Spec   { return d.Inputs }
func (d Definition) Tools() []string             { return d.Programs }

// Run executes the action.
func (d Definition) Run(ctx context.Context, env *Env) (Result, error) {
	if d.Action == nil {
		return Result{}, services.Wrap(services.ErrConfiguration, d.StageName, "run", "stage has no action", nil)
	}
	return d.Action(ctx, env)
}

var _ Stage = Definition{}
