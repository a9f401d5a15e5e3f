// Command cordflow runs the spinal-cord processing protocol over a batch of
// subjects, prepares manual-correction derivatives, and reports batch
// history from the ledger.
package main
