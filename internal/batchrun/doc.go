// Package batchrun assembles and runs one batch: it takes the run lock,
// checks the environment, builds the protocol pipeline and records every
// subject run in the ledger as it finishes.
package batchrun
