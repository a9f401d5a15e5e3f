package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cordflow/internal/artifact"
	"cordflow/internal/dataset"
	"cordflow/internal/fileutil"
	"cordflow/internal/logging"
	"cordflow/internal/qc"
	"cordflow/internal/services"
	"cordflow/internal/tool"
)

// QCTool is the verification program run against staged manual overrides.
const QCTool = "sct_qc"

// Paths maps each declared output to its canonical working path.
type Paths map[artifact.Spec]string

// Request describes one artifact resolution.
type Request struct {
	Subject dataset.Subject
	// Output is the primary artifact; it is the one a manual override replaces.
	Output artifact.Spec
	// Extra lists further files the tool writes. Overridable requests may not
	// declare any, since an override cannot stand in for them.
	Extra       []artifact.Spec
	Overridable bool
	// Build returns the tool call that writes every declared output.
	Build func(out Paths) tool.Invocation
	// Verify configures the QC pass over a staged override.
	Verify *Verification
}

// Verification names the image a manual override is checked against and the
// QC function it corresponds to.
type Verification struct {
	Image    string
	Function string
}

// Resolution holds the artifacts produced for a request, primary first.
type Resolution struct {
	Artifacts []artifact.Artifact
	Source    artifact.Source
}

// Primary returns the requested artifact.
func (r Resolution) Primary() artifact.Artifact {
	if len(r.Artifacts) == 0 {
		return artifact.Artifact{}
	}
	return r.Artifacts[0]
}

// Options configures a Resolver.
type Options struct {
	Runner          tool.Runner
	Sink            qc.Sink
	QCDir           string
	VerifyOverrides bool
	Logger          *slog.Logger
}

// Resolver implements the manual-before-automatic decision.
type Resolver struct {
	runner          tool.Runner
	sink            qc.Sink
	qcDir           string
	verifyOverrides bool
	logger          *slog.Logger
}

// New constructs a Resolver.
func New(opts Options) (*Resolver, error) {
	if opts.Runner == nil {
		return nil, fmt.Errorf("resolver: tool runner required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Resolver{
		runner:          opts.Runner,
		sink:            opts.Sink,
		qcDir:           opts.QCDir,
		verifyOverrides: opts.VerifyOverrides,
		logger:          logging.NewComponentLogger(logger, "resolver"),
	}, nil
}

// Resolve produces the artifacts for req.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Resolution, error) {
	stageName, _ := services.StageFromContext(ctx)
	if err := req.Output.Validate(); err != nil {
		return Resolution{}, services.Wrap(services.ErrValidation, stageName, "resolve", err.Error(), nil)
	}
	if req.Overridable && len(req.Extra) > 0 {
		return Resolution{}, services.Wrap(services.ErrValidation, stageName, "resolve",
			fmt.Sprintf("%s is overridable but declares extra outputs", req.Output), nil)
	}

	if req.Overridable {
		art, found, err := r.stageOverride(ctx, req.Subject, req.Output, req.Verify)
		if err != nil {
			return Resolution{}, err
		}
		if found {
			return Resolution{Artifacts: []artifact.Artifact{art}, Source: artifact.SourceManual}, nil
		}
	}
	return r.runTool(ctx, req)
}

// Optional stages the manual override for spec if one exists. No tool runs
// when it is absent.
func (r *Resolver) Optional(ctx context.Context, subj dataset.Subject, spec artifact.Spec) (artifact.Artifact, bool, error) {
	return r.stageOverride(ctx, subj, spec, nil)
}

// Import copies a file from the read-only dataset into the working area.
func (r *Resolver) Import(ctx context.Context, subj dataset.Subject, spec artifact.Spec, src string) (artifact.Artifact, error) {
	stageName, _ := services.StageFromContext(ctx)
	if !fileutil.Exists(src) {
		return artifact.Artifact{}, services.Wrap(services.ErrMissingUpstream, stageName, "import",
			fmt.Sprintf("raw input %s not found", src), nil)
	}
	dst := subj.WorkPath(spec)
	if err := fileutil.CopyFileVerified(src, dst); err != nil {
		return artifact.Artifact{}, services.Wrap(services.ErrToolInvocation, stageName, "import",
			fmt.Sprintf("copy %s", src), err)
	}
	art := artifact.Artifact{Subject: subj.ID, Spec: spec, Path: dst, Source: artifact.SourceInput}
	r.audit(ctx, qc.Entry{Subject: subj.ID, Stage: stageName, Artifact: spec.Name(), Source: string(art.Source), Path: dst, Override: src})
	return art, nil
}

func (r *Resolver) stageOverride(ctx context.Context, subj dataset.Subject, spec artifact.Spec, verify *Verification) (artifact.Artifact, bool, error) {
	stageName, _ := services.StageFromContext(ctx)
	override := subj.OverridePath(spec)
	if !fileutil.Exists(override) {
		return artifact.Artifact{}, false, nil
	}
	dst := subj.WorkPath(spec)
	entry := qc.Entry{Subject: subj.ID, Stage: stageName, Artifact: spec.Name(), Source: string(artifact.SourceManual), Path: dst, Override: override}

	fail := func(operation string, err error) (artifact.Artifact, bool, error) {
		entry.Error = err.Error()
		r.audit(ctx, entry)
		return artifact.Artifact{}, false, services.Wrap(services.ErrOverrideRead, stageName, operation,
			fmt.Sprintf("manual override %s", override), err)
	}

	if err := fileutil.VerifyReadable(override); err != nil {
		return fail("verify override", err)
	}
	if err := fileutil.CopyFileVerified(override, dst); err != nil {
		return fail("stage override", err)
	}
	if verify != nil && r.verifyOverrides {
		inv := r.qcInvocation(subj, verify, dst)
		entry.Command = inv.CommandLine()
		if _, err := r.runner.Run(ctx, inv); err != nil {
			if services.IsInterrupted(err) {
				return artifact.Artifact{}, false, err
			}
			return fail("verify override", err)
		}
		entry.Verified = true
	}

	logging.WithContext(ctx, r.logger).Info("manual override used",
		logging.String(logging.FieldEventType, "override_used"),
		logging.String("artifact", spec.Name()),
		logging.String("override", override),
	)
	r.audit(ctx, entry)
	return artifact.Artifact{Subject: subj.ID, Spec: spec, Path: dst, Source: artifact.SourceManual}, true, nil
}

func (r *Resolver) qcInvocation(subj dataset.Subject, verify *Verification, staged string) tool.Invocation {
	return tool.Invocation{
		Tool: QCTool,
		Args: []string{
			"-i", verify.Image,
			"-s", staged,
			"-p", verify.Function,
			"-qc", r.qcDir,
			"-qc-subject", subj.ID,
		},
	}
}

func (r *Resolver) runTool(ctx context.Context, req Request) (Resolution, error) {
	stageName, _ := services.StageFromContext(ctx)
	if req.Build == nil {
		return Resolution{}, services.Wrap(services.ErrValidation, stageName, "resolve",
			fmt.Sprintf("no tool declared for %s", req.Output), nil)
	}
	specs := append([]artifact.Spec{req.Output}, req.Extra...)
	paths := make(Paths, len(specs))
	outputs := make([]string, 0, len(specs))
	for _, spec := range specs {
		path := req.Subject.WorkPath(spec)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return Resolution{}, services.Wrap(services.ErrToolInvocation, stageName, "prepare outputs", path, err)
		}
		paths[spec] = path
		outputs = append(outputs, path)
	}

	inv := req.Build(paths)
	inv.Outputs = outputs
	entry := qc.Entry{Subject: req.Subject.ID, Stage: stageName, Artifact: req.Output.Name(),
		Source: string(artifact.SourceAutomatic), Path: paths[req.Output], Command: inv.CommandLine()}

	if _, err := r.runner.Run(ctx, inv); err != nil {
		entry.Error = err.Error()
		r.audit(ctx, entry)
		return Resolution{}, err
	}
	r.audit(ctx, entry)

	arts := make([]artifact.Artifact, 0, len(specs))
	for _, spec := range specs {
		arts = append(arts, artifact.Artifact{Subject: req.Subject.ID, Spec: spec, Path: paths[spec], Source: artifact.SourceAutomatic})
	}
	return Resolution{Artifacts: arts, Source: artifact.SourceAutomatic}, nil
}

func (r *Resolver) audit(ctx context.Context, entry qc.Entry) {
	if r.sink == nil {
		return
	}
	entry.Time = time.Now().UTC()
	if err := r.sink.Record(ctx, entry); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "qc audit write failed", "qc_audit_failed",
			logging.String("artifact", entry.Artifact),
			logging.Error(err),
			logging.String(logging.FieldImpact, "audit trail is incomplete for this subject"),
		)
	}
}
