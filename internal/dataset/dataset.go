package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cordflow/internal/artifact"
)

// OverrideRoot is where manually produced artifacts live, relative to the
// dataset root.
const OverrideRoot = "derivatives/labels"

// Layout holds the dataset root (read-only) and the working root.
type Layout struct {
	DataDir      string
	ProcessedDir string
}

// Subject is one batch entry. It is immutable for the duration of a run.
type Subject struct {
	ID       string
	InputDir string
	WorkDir  string
	dataDir  string
}

// Subject builds the Subject for id under the layout.
func (l Layout) Subject(id string) (Subject, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Subject{}, errors.New("subject id required")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return Subject{}, fmt.Errorf("subject id %q must be a plain directory name", id)
	}
	return Subject{
		ID:       id,
		InputDir: filepath.Join(l.DataDir, id),
		WorkDir:  filepath.Join(l.ProcessedDir, id),
		dataDir:  l.DataDir,
	}, nil
}

// Subjects builds subjects for each id, rejecting duplicates.
func (l Layout) Subjects(ids []string) ([]Subject, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]Subject, 0, len(ids))
	for _, id := range ids {
		subj, err := l.Subject(id)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[subj.ID]; dup {
			return nil, fmt.Errorf("subject %s listed twice", subj.ID)
		}
		seen[subj.ID] = struct{}{}
		out = append(out, subj)
	}
	return out, nil
}

// Discover lists the subject directories under the dataset root matching
// pattern, sorted by name.
func (l Layout) Discover(pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "sub-*"
	}
	matches, err := filepath.Glob(filepath.Join(l.DataDir, pattern))
	if err != nil {
		return nil, fmt.Errorf("discover subjects: %w", err)
	}
	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || !info.IsDir() {
			continue
		}
		ids = append(ids, filepath.Base(match))
	}
	sort.Strings(ids)
	return ids, nil
}

// ReadSubjectsFile parses one subject ID per line. Blank lines and lines
// starting with # are ignored.
func ReadSubjectsFile(r io.Reader) ([]string, error) {
	var ids []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read subjects file: %w", err)
	}
	return ids, nil
}

// RawPath is where the dataset keeps the raw image for spec:
// <data>/<subject>/<folder>/<subject>_<BIDS suffix>.nii.gz.
func (s Subject) RawPath(spec artifact.Spec) string {
	name := s.ID + "_" + spec.Modality.BIDSSuffix() + spec.Extension()
	return filepath.Join(s.InputDir, spec.Modality.Folder(), name)
}

// WorkPath is the canonical working location for spec. Directory artifacts
// are named by their role alone, so the warped template lands in label/.
func (s Subject) WorkPath(spec artifact.Spec) string {
	if spec.Kind == artifact.KindDir && spec.Role != "" {
		return filepath.Join(s.WorkDir, spec.Modality.Folder(), spec.Role)
	}
	return filepath.Join(s.WorkDir, spec.Modality.Folder(), spec.Name())
}

// OverridePath is the deterministic location of a manual override:
// <data>/derivatives/labels/<subject>/<folder>/<override name>.
func (s Subject) OverridePath(spec artifact.Spec) string {
	return filepath.Join(s.dataDir, filepath.FromSlash(OverrideRoot), s.ID, spec.Modality.Folder(), spec.OverrideName(s.ID))
}
