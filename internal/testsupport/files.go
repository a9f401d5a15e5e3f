package testsupport

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cordflow/internal/artifact"
	"cordflow/internal/dataset"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, int(size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// NIfTI returns a gzip-compressed image with a valid NIfTI-1 header followed
// by payload.
func NIfTI(payload string) []byte {
	hdr := make([]byte, 352)
	binary.LittleEndian.PutUint32(hdr, 348)
	copy(hdr[344:], "n+1\x00")
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = gz.Write(hdr)
	_, _ = gz.Write([]byte(payload))
	_ = gz.Close()
	return buf.Bytes()
}

// WriteNIfTI writes a minimal valid .nii.gz image at path.
func WriteNIfTI(t testing.TB, path, payload string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, NIfTI(payload), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteRawSubject creates raw images for the requested modalities.
func WriteRawSubject(t testing.TB, dataDir, id string, modalities ...artifact.Modality) {
	t.Helper()
	subj, err := dataset.Layout{DataDir: dataDir}.Subject(id)
	if err != nil {
		t.Fatalf("subject %s: %v", id, err)
	}
	if len(modalities) == 0 {
		modalities = []artifact.Modality{artifact.ModalityT2w, artifact.ModalityT2Star, artifact.ModalityDWI}
	}
	for _, m := range modalities {
		spec := artifact.Spec{Modality: m, Kind: artifact.KindImage}
		WriteNIfTI(t, subj.RawPath(spec), "raw "+id+" "+string(m))
		if m != artifact.ModalityDWI {
			continue
		}
		for ext, content := range map[string]string{".bval": "0 800 800\n", ".bvec": "0 1 0\n0 0 1\n0 0 0\n"} {
			spec.Ext = ext
			path := subj.RawPath(spec)
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("write %s: %v", path, err)
			}
		}
	}
}

// ReadLines returns the non-empty lines of path, or nil when it is missing.
func ReadLines(t testing.TB, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("read %s: %v", path, err)
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
