// Package aggregate owns the files shared by every subject in a batch: the
// metric tables under PATH_RESULTS and the error log under PATH_LOG.
//
// Each appended row or log line is encoded in full before a single append
// write. Writers in this process serialize on a mutex and writers in other
// processes on a lock file next to the target, so a row is never split or
// interleaved with another.
package aggregate
