package manualcorrection

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"cordflow/internal/artifact"
)

// Task is one kind of manual correction.
type Task string

const (
	TaskSeg   Task = "FILES_SEG"
	TaskLabel Task = "FILES_LABEL"
	TaskPMJ   Task = "FILES_PMJ"
)

// Tasks lists every task in processing order.
var Tasks = []Task{TaskSeg, TaskLabel, TaskPMJ}

// Role is the artifact role the task corrects.
func (t Task) Role() string {
	switch t {
	case TaskSeg:
		return "seg"
	case TaskLabel:
		return "labels"
	case TaskPMJ:
		return "pmj"
	default:
		return ""
	}
}

// Function is the QC function name reported for the task.
func (t Task) Function() string {
	switch t {
	case TaskSeg:
		return "sct_deepseg_sc"
	case TaskLabel:
		return "sct_label_utils"
	case TaskPMJ:
		return "sct_detect_pmj"
	default:
		return ""
	}
}

// Spec returns the artifact a correction of t on modality produces.
func (t Task) Spec(m artifact.Modality) artifact.Spec {
	kind := artifact.KindPoints
	if t == TaskSeg {
		kind = artifact.KindMask
	}
	return artifact.Spec{Modality: m, Role: t.Role(), Kind: kind}
}

func (t Task) valid() bool {
	return t.Role() != ""
}

// TaskFile maps each task to the image file names that need correcting.
type TaskFile map[Task][]string

// LoadTaskFile reads a task file from disk.
func LoadTaskFile(path string) (TaskFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open task file: %w", err)
	}
	defer f.Close()
	return ParseTaskFile(f)
}

// ParseTaskFile decodes a task file. Paths are reduced to their base names
// and empty task lists are allowed.
func ParseTaskFile(r io.Reader) (TaskFile, error) {
	var raw map[string][]string
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return TaskFile{}, nil
		}
		return nil, fmt.Errorf("parse task file: %w", err)
	}
	out := make(TaskFile, len(raw))
	for key, files := range raw {
		task := Task(strings.TrimSpace(key))
		if !task.valid() {
			return nil, fmt.Errorf("parse task file: unknown task %q", key)
		}
		for _, file := range files {
			file = strings.TrimSpace(file)
			if file == "" {
				continue
			}
			out[task] = append(out[task], filepath.Base(file))
		}
	}
	return out, nil
}

// Files returns the sorted file names for task.
func (tf TaskFile) Files(task Task) []string {
	files := append([]string(nil), tf[task]...)
	sort.Strings(files)
	return files
}

// Entry is a task file name decoded into dataset coordinates.
type Entry struct {
	File     string
	Subject  string
	Folder   string
	Modality artifact.Modality
}

// ParseEntry decodes <subject>_..._<contrast><ext>. The subject is the text
// before the first underscore and the folder is dwi when the contrast is dwi.
func ParseEntry(file string) (Entry, error) {
	stem, _ := artifact.SplitExt(filepath.Base(file))
	parts := strings.Split(stem, "_")
	if len(parts) < 2 || parts[0] == "" {
		return Entry{}, fmt.Errorf("%s: expected <subject>_<contrast>", file)
	}
	contrast := parts[len(parts)-1]
	folder := "anat"
	if contrast == "dwi" {
		folder = "dwi"
	}
	entry := Entry{File: filepath.Base(file), Subject: parts[0], Folder: folder}
	if m, ok := artifact.ModalityFromBIDS(contrast); ok {
		entry.Modality = m
	}
	return entry, nil
}

// Target is the override file name for the entry and task:
// <stem><suffix>-manual<ext>.
func (e Entry) Target(task Task) string {
	return artifact.AddSuffix(e.File, "_"+task.Role()+"-manual")
}
