package protocol

import (
	"context"
	"path/filepath"

	"cordflow/internal/artifact"
	"cordflow/internal/dataset"
	"cordflow/internal/resolver"
	"cordflow/internal/services"
	"cordflow/internal/tool"
	"cordflow/internal/transform"
)

// Registration input names.
const (
	InputImage        = "image"
	InputSeg          = "seg"
	InputLevels       = "levels"
	InputTemplate     = "template"
	InputTemplateCord = "template_seg"
)

// toolRegistrar computes registrations with the SCT registration tools.
// Cold starts register the template to the anatomical image; warm starts
// register the template to another modality, seeded with an existing
// template edge.
type toolRegistrar struct {
	subject  dataset.Subject
	resolver *resolver.Resolver
	qcDir    string
}

func (r *toolRegistrar) Register(ctx context.Context, src, dst transform.Space, inputs transform.Inputs, init *transform.Edge) (transform.Edge, error) {
	stageName, _ := services.StageFromContext(ctx)
	required := []string{InputImage, InputSeg}
	if init == nil {
		required = append(required, InputLevels)
	} else {
		required = append(required, InputTemplate, InputTemplateCord)
	}
	for _, name := range required {
		if inputs[name] == "" {
			return transform.Edge{}, services.Wrap(services.ErrMissingUpstream, stageName, "register",
				"registration input "+name+" missing", nil)
		}
	}

	fwd, inv := Warps(dst)
	var build func(out resolver.Paths) tool.Invocation
	if init == nil {
		build = func(out resolver.Paths) tool.Invocation {
			dir := filepath.Dir(out[fwd])
			args := []string{
				"-i", inputs[InputImage],
				"-s", inputs[InputSeg],
				"-ldisc", inputs[InputLevels],
				"-c", "t2",
				"-ofolder", dir,
			}
			return tool.Invocation{Tool: "sct_register_to_template", Args: append(args, r.qc()...), Dir: dir}
		}
	} else {
		build = func(out resolver.Paths) tool.Invocation {
			dir := filepath.Dir(out[fwd])
			args := []string{
				"-i", inputs[InputTemplate],
				"-iseg", inputs[InputTemplateCord],
				"-d", inputs[InputImage],
				"-dseg", inputs[InputSeg],
				"-initwarp", init.Forward,
				"-initwarpinv", init.Inverse,
				"-owarp", out[fwd],
				"-owarpinv", out[inv],
				"-ofolder", dir,
			}
			return tool.Invocation{Tool: "sct_register_multimodal", Args: append(args, r.qc()...), Dir: dir}
		}
	}

	res, err := r.resolver.Resolve(ctx, resolver.Request{
		Subject: r.subject,
		Output:  fwd,
		Extra:   []artifact.Spec{inv},
		Build:   build,
	})
	if err != nil {
		return transform.Edge{}, err
	}
	return transform.Edge{
		Source:  src,
		Dest:    dst,
		Forward: res.Artifacts[0].Path,
		Inverse: res.Artifacts[1].Path,
	}, nil
}

func (r *toolRegistrar) qc() []string {
	if r.qcDir == "" {
		return nil
	}
	return []string{"-qc", r.qcDir, "-qc-subject", r.subject.ID}
}
