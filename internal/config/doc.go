// Package config loads, normalizes, and validates cordflow configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the PATH_DATA,
// PATH_DATA_PROCESSED, PATH_RESULTS, PATH_LOG and PATH_QC environment
// variables used by batch entry points. The Config type centralizes every knob
// the scheduler and CLI need so that directory roots and tool settings are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
