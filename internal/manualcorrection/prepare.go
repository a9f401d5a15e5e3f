package manualcorrection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"cordflow/internal/artifact"
	"cordflow/internal/dataset"
	"cordflow/internal/fileutil"
	"cordflow/internal/logging"
	"cordflow/internal/resolver"
	"cordflow/internal/tool"
)

// Status is the outcome for one task entry.
type Status string

const (
	StatusPrepared      Status = "prepared"
	StatusExists        Status = "exists"
	StatusPending       Status = "pending"
	StatusMissingSource Status = "missing_source"
	StatusInvalid       Status = "invalid"
	StatusChecked       Status = "checked"
)

// Options configures Prepare.
type Options struct {
	// Layout.DataDir is the dataset receiving derivatives/labels;
	// Layout.ProcessedDir holds the automatic results used as seeds.
	Layout dataset.Layout
	Author string
	// AddSegOnly copies every automatic segmentation that is not listed
	// under FILES_SEG, for segmentations accepted without edits.
	AddSegOnly bool
	// Force overwrites existing overrides.
	Force bool
	// QCOnly skips preparation and only runs QC over existing overrides.
	QCOnly bool
	QCDir  string
	// Runner runs the QC tool; nil skips QC.
	Runner tool.Runner
	Logger *slog.Logger
	Now    func() time.Time
}

// Item records what happened to one entry.
type Item struct {
	Task    Task
	File    string
	Subject string
	Source  string
	Target  string
	Status  Status
	Checked bool
	Err     error
}

// Result summarizes a Prepare call.
type Result struct {
	Items []Item
	// Missing lists source images named in the task file that are absent.
	Missing []string
	QCDir   string
}

// Count returns how many items ended with status.
func (r Result) Count(status Status) int {
	n := 0
	for _, item := range r.Items {
		if item.Status == status {
			n++
		}
	}
	return n
}

// Failed reports whether any item carries an error.
func (r Result) Failed() bool {
	for _, item := range r.Items {
		if item.Err != nil {
			return true
		}
	}
	return false
}

// Sidecar is the JSON written next to each prepared override.
type Sidecar struct {
	Author string `json:"Author"`
	Date   string `json:"Date"`
}

// Prepare creates the derivatives tree for tasks.
func Prepare(ctx context.Context, tasks TaskFile, opts Options) (Result, error) {
	if strings.TrimSpace(opts.Layout.DataDir) == "" {
		return Result{}, errors.New("manual correction: dataset directory required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "manual-correction")
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	started := now()

	result := Result{QCDir: opts.QCDir}
	if result.QCDir == "" {
		result.QCDir = "qc_corr_" + started.Format("20060102150405")
	}
	result.Missing = missingSources(opts.Layout, tasks)
	if len(result.Missing) > 0 {
		logger.Warn("task file lists missing images",
			logging.Int("missing", len(result.Missing)),
			logging.String("first", result.Missing[0]),
			logging.String(logging.FieldEventType, "manual_correction_missing"),
			logging.String(logging.FieldErrorHint, "check the task file names and the dataset path"),
		)
	}

	derivatives := filepath.Join(opts.Layout.DataDir, filepath.FromSlash(dataset.OverrideRoot))
	if err := os.MkdirAll(derivatives, 0o755); err != nil {
		return result, fmt.Errorf("create derivatives folder: %w", err)
	}

	for _, task := range Tasks {
		files := tasks.Files(task)
		if task == TaskSeg && opts.AddSegOnly {
			auto, err := automaticSegmentations(opts.Layout.ProcessedDir)
			if err != nil {
				return result, err
			}
			files = slices.DeleteFunc(auto, func(f string) bool { return slices.Contains(tasks[TaskSeg], f) })
		}
		for _, file := range files {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			item := prepareOne(ctx, task, file, derivatives, result.QCDir, started, opts)
			logItem(logger, item)
			result.Items = append(result.Items, item)
		}
	}

	logger.Info("manual correction prepared",
		logging.String(logging.FieldEventType, "manual_correction_complete"),
		logging.Int("prepared", result.Count(StatusPrepared)),
		logging.Int("pending", result.Count(StatusPending)),
		logging.Int("existing", result.Count(StatusExists)),
		logging.Int("missing_images", len(result.Missing)),
	)
	return result, nil
}

func prepareOne(ctx context.Context, task Task, file, derivatives, qcDir string, started time.Time, opts Options) Item {
	item := Item{Task: task, File: file}
	entry, err := ParseEntry(file)
	if err != nil {
		item.Status, item.Err = StatusInvalid, err
		return item
	}
	item.Subject = entry.Subject
	dir := filepath.Join(derivatives, entry.Subject, entry.Folder)
	item.Target = filepath.Join(dir, entry.Target(task))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		item.Status, item.Err = StatusInvalid, err
		return item
	}
	image := filepath.Join(opts.Layout.DataDir, entry.Subject, entry.Folder, entry.File)

	if !opts.QCOnly {
		exists := fileutil.Exists(item.Target)
		switch {
		case exists && !opts.Force:
			item.Status = StatusExists
		case task != TaskSeg:
			// Point labels are placed by a rater in a viewer.
			item.Status = StatusPending
			if exists {
				item.Status = StatusExists
			}
		default:
			if entry.Modality == "" {
				item.Status, item.Err = StatusInvalid, fmt.Errorf("%s: contrast has no automatic segmentation", file)
				return item
			}
			subj, err := opts.Layout.Subject(entry.Subject)
			if err != nil {
				item.Status, item.Err = StatusInvalid, err
				return item
			}
			item.Source = subj.WorkPath(task.Spec(entry.Modality))
			if !fileutil.Exists(item.Source) {
				item.Status = StatusMissingSource
				return item
			}
			if err := fileutil.CopyFileVerified(item.Source, item.Target); err != nil {
				item.Status, item.Err = StatusInvalid, err
				return item
			}
			if err := writeSidecar(item.Target, opts.Author, started); err != nil {
				item.Status, item.Err = StatusInvalid, err
				return item
			}
			item.Status = StatusPrepared
		}
	}

	if opts.Runner == nil || !fileutil.Exists(item.Target) || (!opts.QCOnly && task == TaskSeg) {
		return item
	}
	_, err = opts.Runner.Run(ctx, tool.Invocation{
		Tool: resolver.QCTool,
		Args: []string{"-i", image, "-s", item.Target, "-p", task.Function(), "-qc", qcDir, "-qc-subject", entry.Subject},
	})
	if err != nil {
		item.Err = err
		return item
	}
	item.Checked = true
	if opts.QCOnly {
		item.Status = StatusChecked
	}
	return item
}

// SidecarPath is the JSON path written next to an override.
func SidecarPath(target string) string {
	stem, _ := artifact.SplitExt(target)
	return stem + ".json"
}

func writeSidecar(target, author string, at time.Time) error {
	data, err := json.MarshalIndent(Sidecar{Author: author, Date: at.Format("2006-01-02 15:04:05")}, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(SidecarPath(target), append(data, '\n'), 0o644)
}

func missingSources(layout dataset.Layout, tasks TaskFile) []string {
	var missing []string
	for _, task := range Tasks {
		for _, file := range tasks.Files(task) {
			entry, err := ParseEntry(file)
			if err != nil {
				continue
			}
			path := filepath.Join(layout.DataDir, entry.Subject, entry.Folder, entry.File)
			if !fileutil.Exists(path) && !slices.Contains(missing, path) {
				missing = append(missing, path)
			}
		}
	}
	return missing
}

// automaticSegmentations lists, as task file names, every subject image
// with an automatic segmentation under processed.
func automaticSegmentations(processed string) ([]string, error) {
	if processed == "" {
		return nil, errors.New("manual correction: processed directory required for add-seg mode")
	}
	byName := map[string]artifact.Modality{}
	for _, m := range []artifact.Modality{artifact.ModalityT2w, artifact.ModalityT2Star, artifact.ModalityDWI} {
		byName[TaskSeg.Spec(m).Name()] = m
	}
	var files []string
	err := filepath.WalkDir(processed, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		m, ok := byName[d.Name()]
		if !ok {
			return nil
		}
		rel, err := filepath.Rel(processed, path)
		if err != nil {
			return err
		}
		subject := strings.Split(filepath.ToSlash(rel), "/")[0]
		files = append(files, subject+"_"+m.BIDSSuffix()+".nii.gz")
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan automatic segmentations: %w", err)
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

func logItem(logger *slog.Logger, item Item) {
	attrs := []logging.Attr{
		logging.String(logging.FieldSubject, item.Subject),
		logging.String("task", string(item.Task)),
		logging.String("file", item.File),
		logging.String("status", string(item.Status)),
		logging.String("target", item.Target),
	}
	if item.Err != nil {
		logging.WarnWithContext(logger, "manual correction entry failed", "manual_correction_failed",
			append(attrs,
				logging.Error(item.Err),
				logging.String(logging.FieldErrorHint, "check the entry name and the processed outputs"),
			)...)
		return
	}
	logger.Debug("manual correction entry", logging.Args(append(attrs, logging.String(logging.FieldEventType, "manual_correction_entry"))...)...)
}
