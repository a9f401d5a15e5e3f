// Package stage defines the unit of work a subject pipeline executes.
//
// A stage declares the artifacts it needs and the tools it may call. The
// pipeline builds an Env holding exactly those inputs, so stages never read
// ambient state; whatever a stage produces comes back in its Result.
package stage
