package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Environment variables that override [paths] entries.
const (
	EnvDataDir      = "PATH_DATA"
	EnvProcessedDir = "PATH_DATA_PROCESSED"
	EnvResultsDir   = "PATH_RESULTS"
	EnvLogDir       = "PATH_LOG"
	EnvQCDir        = "PATH_QC"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeBatch()
	c.normalizeTools()
	if err := c.normalizeProtocol(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	targets := []struct {
		env   string
		key   string
		value *string
	}{
		{EnvDataDir, "paths.data_dir", &c.Paths.DataDir},
		{EnvProcessedDir, "paths.processed_dir", &c.Paths.ProcessedDir},
		{EnvResultsDir, "paths.results_dir", &c.Paths.ResultsDir},
		{EnvLogDir, "paths.log_dir", &c.Paths.LogDir},
		{EnvQCDir, "paths.qc_dir", &c.Paths.QCDir},
	}
	for _, target := range targets {
		if value, ok := os.LookupEnv(target.env); ok && strings.TrimSpace(value) != "" {
			*target.value = strings.TrimSpace(value)
		}
		expanded, err := expandPath(strings.TrimSpace(*target.value))
		if err != nil {
			return fmt.Errorf("%s: %w", target.key, err)
		}
		*target.value = expanded
	}
	return nil
}

func (c *Config) normalizeBatch() {
	if c.Batch.Jobs == 0 {
		c.Batch.Jobs = runtime.NumCPU()
	}
	c.Batch.SubjectsGlob = strings.TrimSpace(c.Batch.SubjectsGlob)
	if c.Batch.SubjectsGlob == "" {
		c.Batch.SubjectsGlob = defaultSubjectsGlob
	}
}

func (c *Config) normalizeTools() {
	if len(c.Tools.Binaries) == 0 {
		return
	}
	cleaned := make(map[string]string, len(c.Tools.Binaries))
	for tool, bin := range c.Tools.Binaries {
		tool = strings.TrimSpace(tool)
		bin = strings.TrimSpace(bin)
		if tool == "" || bin == "" {
			continue
		}
		cleaned[tool] = bin
	}
	c.Tools.Binaries = cleaned
}

func (c *Config) normalizeProtocol() error {
	c.Protocol.CSALevels = strings.TrimSpace(c.Protocol.CSALevels)
	if c.Protocol.CSALevels == "" {
		c.Protocol.CSALevels = defaultCSALevels
	}
	c.Protocol.DTIMetrics = strings.ToUpper(strings.ReplaceAll(c.Protocol.DTIMetrics, " ", ""))
	if c.Protocol.DTIMetrics == "" {
		c.Protocol.DTIMetrics = defaultDTIMetrics
	}
	dir := strings.TrimSpace(c.Protocol.TemplateDir)
	if dir == "" {
		dir = defaultTemplateDir
	}
	if strings.Contains(dir, "$SCT_DIR") && os.Getenv("SCT_DIR") == "" {
		// Left unexpanded so preflight can report the missing toolbox.
		c.Protocol.TemplateDir = dir
		return nil
	}
	dir = os.ExpandEnv(dir)
	expanded, err := expandPath(dir)
	if err != nil {
		return fmt.Errorf("protocol.template_dir: %w", err)
	}
	c.Protocol.TemplateDir = expanded
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
