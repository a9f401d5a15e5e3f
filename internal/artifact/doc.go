// Package artifact models the file products of pipeline stages.
//
// A Spec names a logical artifact (modality, role, qualifier, kind) and is the
// only place file names are derived from, both for working copies and for
// manually supplied overrides. Artifact binds a Spec to a subject and a path,
// and Set tracks what a single run has produced so downstream stages receive
// inputs explicitly.
package artifact
