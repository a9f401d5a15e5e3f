package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"cordflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Only the anatomical modality is enabled; WithModalities opts into the rest.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.ProcessedDir = filepath.Join(base, "data_processed")
	cfgVal.Paths.ResultsDir = filepath.Join(base, "results")
	cfgVal.Paths.LogDir = filepath.Join(base, "log")
	cfgVal.Paths.QCDir = filepath.Join(base, "qc")
	cfgVal.Batch.Jobs = 2
	cfgVal.Tools.InterruptGraceSeconds = 1
	cfgVal.Protocol.T2Star = false
	cfgVal.Protocol.DWI = false

	if err := os.MkdirAll(cfgVal.Paths.DataDir, 0o755); err != nil {
		t.Fatalf("mkdir data dir: %v", err)
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithJobs sets the worker bound.
func WithJobs(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Batch.Jobs = n
	}
}

// WithModalities toggles the optional modalities.
func WithModalities(t2star, dwi bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Protocol.T2Star = t2star
		b.cfg.Protocol.DWI = dwi
	}
}

// WithoutOverrideQC disables the QC pass over manual overrides.
func WithoutOverrideQC() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Tools.QCManualOverrides = false
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}
