package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var csaLevelsPattern = regexp.MustCompile(`^\d+(:\d+)?$`)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateBatch(); err != nil {
		return err
	}
	if err := c.validateTools(); err != nil {
		return err
	}
	if err := c.validateProtocol(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return fmt.Errorf("paths.data_dir must be set (or export %s)", EnvDataDir)
	}
	if c.Paths.ProcessedDir == c.Paths.DataDir {
		return errors.New("paths.processed_dir must differ from paths.data_dir; the dataset is read-only")
	}
	return nil
}

func (c *Config) validateBatch() error {
	if c.Batch.Jobs < 0 {
		return errors.New("batch.jobs must be zero or positive")
	}
	return nil
}

func (c *Config) validateTools() error {
	if c.Tools.TimeoutSeconds < 0 {
		return errors.New("tools.timeout_seconds must be zero or positive")
	}
	if c.Tools.InterruptGraceSeconds < 0 {
		return errors.New("tools.interrupt_grace_seconds must be zero or positive")
	}
	return nil
}

func (c *Config) validateProtocol() error {
	if !csaLevelsPattern.MatchString(c.Protocol.CSALevels) {
		return fmt.Errorf("protocol.csa_levels %q must look like 2:3", c.Protocol.CSALevels)
	}
	hasFA := false
	for _, metric := range c.DTIMetrics() {
		switch metric {
		case "FA":
			hasFA = true
		case "MD", "AD", "RD":
		default:
			return fmt.Errorf("protocol.dti_metrics: unknown metric %q (use FA, MD, AD, RD)", metric)
		}
	}
	if c.Protocol.DWI && !hasFA {
		return errors.New("protocol.dti_metrics must include FA when dwi is enabled")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be console or json", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn, or error", c.Logging.Level)
	}
	return nil
}
