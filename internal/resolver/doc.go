// Package resolver decides, for each logical artifact, whether a manually
// produced file replaces the automated tool.
//
// A manual override found at its deterministic derivatives path is verified,
// copied into the subject's working area and returned with source manual; the
// tool is never invoked in that case. Otherwise the declared tool runs and its
// outputs are returned with source automatic. Every decision is recorded in
// the QC audit sink.
package resolver
