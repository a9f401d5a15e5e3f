// Package preflight provides readiness checks for the external programs and
// filesystem paths cordflow depends on.
//
// These checks run in two contexts:
//   - "cordflow run" calls RunAll before dispatching any subject. If a check
//     fails the batch does not start, so no subject fails halfway through
//     for want of a binary or a writable directory.
//   - "cordflow check" prints every result, including tool availability.
package preflight
