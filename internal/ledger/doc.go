// Package ledger records the history of batches and subject runs in SQLite so
// that `cordflow status` can report on past invocations.
package ledger
