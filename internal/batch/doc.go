// Package batch dispatches one subject pipeline per subject over a bounded
// worker pool.
//
// A subject's failure, abort or panic never affects its siblings. When the
// context is cancelled the scheduler stops dispatching, lets in-flight
// subjects observe the interrupt at their next stage boundary, marks the
// undispatched ones as aborted and records an explicit cancellation notice.
package batch
