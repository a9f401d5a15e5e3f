// Package dataset maps subjects onto the on-disk dataset layout: raw inputs
// under the dataset root, working copies under the processed root, and manual
// overrides under derivatives/labels.
package dataset
