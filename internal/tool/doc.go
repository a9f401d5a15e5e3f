// Package tool runs the external image-processing programs a pipeline
// depends on.
//
// Every call goes through the same contract: an Invocation names the tool,
// its arguments and the output files it must produce. A Runner executes it
// synchronously and reports a non-zero exit status or a missing declared
// output as services.ErrToolInvocation. Cancelling the context asks the child
// process to stop with an interrupt and waits up to the configured grace
// period before it is killed.
package tool
