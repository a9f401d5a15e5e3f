package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the process-wide directory roots. Each field can be
// overridden by the matching PATH_* environment variable.
type Paths struct {
	DataDir      string `toml:"data_dir"`
	ProcessedDir string `toml:"processed_dir"`
	ResultsDir   string `toml:"results_dir"`
	LogDir       string `toml:"log_dir"`
	QCDir        string `toml:"qc_dir"`
}

// Batch controls subject dispatch and the exit code policy.
type Batch struct {
	// Jobs bounds the number of concurrently running subject pipelines.
	// Zero means one per available CPU.
	Jobs                  int    `toml:"jobs"`
	SubjectsGlob          string `toml:"subjects_glob"`
	FailWhenNoneSucceeded bool   `toml:"fail_when_none_succeeded"`
	StrictPostconditions  bool   `toml:"strict_postconditions"`
}

// Tools contains settings for automated tool invocations.
type Tools struct {
	TimeoutSeconds        int               `toml:"timeout_seconds"`
	InterruptGraceSeconds int               `toml:"interrupt_grace_seconds"`
	QCManualOverrides     bool              `toml:"qc_manual_overrides"`
	Binaries              map[string]string `toml:"binaries"`
}

// Protocol selects which modalities run after the anatomical reference.
type Protocol struct {
	T2Star     bool   `toml:"t2star"`
	DWI        bool   `toml:"dwi"`
	CSALevels  string `toml:"csa_levels"`
	DTIMetrics string `toml:"dti_metrics"`
	// TemplateDir is the PAM50 template folder; environment variables are expanded.
	TemplateDir string `toml:"template_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for cordflow.
//
// Configuration sections by subsystem:
//   - Paths: dataset, working, results, log and QC roots
//   - Batch: worker count, subject discovery and exit policy
//   - Tools: external tool timeouts and binary overrides
//   - Protocol: optional modalities and metric parameters
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Batch    Batch    `toml:"batch"`
	Tools    Tools    `toml:"tools"`
	Protocol Protocol `toml:"protocol"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/cordflow/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("cordflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the writable roots. The dataset root is read-only
// and is never created.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.ProcessedDir, c.Paths.ResultsDir, c.Paths.LogDir, c.Paths.QCDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Binary returns the executable configured for a tool, defaulting to the
// tool name itself.
func (c *Config) Binary(tool string) string {
	if c.Tools.Binaries != nil {
		if bin := strings.TrimSpace(c.Tools.Binaries[tool]); bin != "" {
			return bin
		}
	}
	return tool
}

// DTIMetrics returns the configured diffusion maps in order.
func (c *Config) DTIMetrics() []string {
	var out []string
	for _, part := range strings.Split(c.Protocol.DTIMetrics, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ErrorLogPath is the shared, append-only error log for the batch.
func (c *Config) ErrorLogPath() string {
	return filepath.Join(c.Paths.LogDir, "error.log")
}

// LedgerPath is the SQLite database holding batch history.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.LogDir, "cordflow.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
