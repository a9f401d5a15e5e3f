// Package services defines shared utilities consumed by pipeline stages and
// the batch scheduler.
//
// Key responsibilities:
//   - Context helpers that stamp subject IDs, stage names, modalities, batch
//     IDs and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that tag failures with the
//     taxonomy used to decide between failed and aborted subject runs.
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the pipeline.
package services
