// Package stageexec runs one pipeline stage with the standard start, complete
// and failure log events and a fresh request ID.
package stageexec
