// Package manualcorrection prepares the derivatives tree that manual
// overrides are read from.
//
// A YAML task file lists image names under FILES_SEG, FILES_LABEL and
// FILES_PMJ. Prepare maps each entry to the override path the resolver
// checks, seeds segmentation overrides with the automatic result so a rater
// only has to edit it, writes an author sidecar next to every prepared file
// and optionally runs the QC tool over overrides that already exist. No
// image viewer is launched.
package manualcorrection
