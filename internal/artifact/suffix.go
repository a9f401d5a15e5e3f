package artifact

import (
	"path/filepath"
	"strings"
)

var compoundExtensions = []string{".nii.gz", ".tar.gz"}

// SplitExt splits a file name into stem and extension, treating .nii.gz and
// .tar.gz as single extensions.
func SplitExt(name string) (string, string) {
	dir, file := filepath.Split(name)
	for _, ext := range compoundExtensions {
		if strings.HasSuffix(file, ext) {
			return dir + strings.TrimSuffix(file, ext), ext
		}
	}
	ext := filepath.Ext(file)
	return dir + strings.TrimSuffix(file, ext), ext
}

// AddSuffix inserts suffix between the stem and the extension:
// t2.nii.gz + _seg -> t2_seg.nii.gz.
func AddSuffix(name, suffix string) string {
	stem, ext := SplitExt(name)
	return stem + suffix + ext
}

// RemoveSuffix removes a trailing suffix from the stem:
// t2_seg.nii.gz - _seg -> t2.nii.gz.
func RemoveSuffix(name, suffix string) string {
	stem, ext := SplitExt(name)
	return strings.TrimSuffix(stem, suffix) + ext
}
