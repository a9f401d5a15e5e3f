// Package pipeline runs one subject through its ordered stages.
//
// Stages execute strictly in order and the first failure ends the run. Once
// every stage has completed, the declared final artifacts are checked; a
// missing file is written to the shared error log but leaves the run
// Succeeded. Cancellation is observed between stages and ends the run as
// Aborted with an explicit notice.
package pipeline
