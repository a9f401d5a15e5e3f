package main

import (
	"fmt"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cordflow/internal/dataset"
	"cordflow/internal/manualcorrection"
)

func newManualCorrectionCommand(ctx *commandContext) *cobra.Command {
	var author string
	var addSegOnly bool
	var force bool
	var qcOnly bool
	var qcDir string
	var noQC bool

	cmd := &cobra.Command{
		Use:   "manual-correction <tasks.yml>",
		Short: "Prepare manual-override files listed in a task file",
		Long: "Prepare derivatives/labels entries for the images listed under FILES_SEG,\n" +
			"FILES_LABEL and FILES_PMJ. Segmentations are seeded from the automatic\n" +
			"results; labels and PMJ files are left for the rater to create.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			tasks, err := manualcorrection.LoadTaskFile(args[0])
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			if strings.TrimSpace(author) == "" {
				author = currentUser()
			}
			dir := strings.TrimSpace(qcDir)
			if dir == "" {
				dir = filepath.Join(cfg.Paths.QCDir, "qc_corr_"+time.Now().Format("20060102150405"))
			}
			opts := manualcorrection.Options{
				Layout:     dataset.Layout{DataDir: cfg.Paths.DataDir, ProcessedDir: cfg.Paths.ProcessedDir},
				Author:     author,
				AddSegOnly: addSegOnly,
				Force:      force,
				QCOnly:     qcOnly,
				QCDir:      dir,
				Logger:     logger,
			}
			if !noQC {
				opts.Runner = ctx.toolRunner(cfg, logger)
			}

			result, err := manualcorrection.Prepare(cmd.Context(), tasks, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderCorrectionResult(result, !noQC, shouldColorize(out)))
			if result.Failed() {
				return &exitError{code: 1, reason: "one or more entries could not be prepared"}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&author, "author", "", "Author recorded in the JSON sidecars (default: current user)")
	cmd.Flags().BoolVar(&addSegOnly, "add-seg-only", false, "Copy every automatic segmentation not listed under FILES_SEG")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing override files")
	cmd.Flags().BoolVar(&qcOnly, "qc-only", false, "Only run QC over existing override files")
	cmd.Flags().StringVar(&qcDir, "qc-dir", "", "QC report folder (default: <qc_dir>/qc_corr_<timestamp>)")
	cmd.Flags().BoolVar(&noQC, "no-qc", false, "Do not run the QC tool")
	return cmd
}

func renderCorrectionResult(result manualcorrection.Result, qc bool, colorize bool) string {
	var b strings.Builder
	if len(result.Items) > 0 {
		rows := make([][]string, 0, len(result.Items))
		for _, item := range result.Items {
			kind := statusOK
			switch item.Status {
			case manualcorrection.StatusPending, manualcorrection.StatusExists:
				kind = statusInfo
			case manualcorrection.StatusMissingSource, manualcorrection.StatusInvalid:
				kind = statusError
			}
			detail := shortTarget(item.Target)
			if item.Err != nil {
				detail = item.Err.Error()
			}
			rows = append(rows, []string{
				string(item.Task),
				item.File,
				colorizeCell(statusLabel(string(item.Status)), kind, colorize),
				yesNo(item.Checked),
				dash(detail),
			})
		}
		b.WriteString(renderTable("Manual correction",
			[]string{"Task", "File", "Status", "QC", "Target"},
			rows, nil))
		b.WriteString("\n")
	}
	for _, missing := range result.Missing {
		b.WriteString(renderStatusLine("Missing image", statusWarn, missing, colorize) + "\n")
	}
	b.WriteString(renderStatusLine("Prepared", statusInfo,
		fmt.Sprintf("%d prepared, %d pending, %d existing", result.Count(manualcorrection.StatusPrepared),
			result.Count(manualcorrection.StatusPending), result.Count(manualcorrection.StatusExists)),
		colorize) + "\n")
	if qc {
		b.WriteString(renderStatusLine("QC report", statusInfo, result.QCDir, colorize) + "\n")
	}
	return b.String()
}

// shortTarget trims target to its path below the dataset root.
func shortTarget(target string) string {
	if target == "" {
		return ""
	}
	marker := string(filepath.Separator) + filepath.FromSlash(dataset.OverrideRoot) + string(filepath.Separator)
	if idx := strings.Index(target, marker); idx >= 0 {
		return target[idx+1:]
	}
	return target
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		if name := strings.TrimSpace(u.Name); name != "" {
			return name
		}
		return u.Username
	}
	return ""
}
