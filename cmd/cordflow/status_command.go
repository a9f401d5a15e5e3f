package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cordflow/internal/ledger"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var list bool
	var subject string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status [batch-id]",
		Short: "Show recorded batches and subject runs",
		Long: "Show the latest batch (or the named one) with its subject runs. --list shows\n" +
			"recent batches; --subject shows every recorded run of one subject.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ledger.Open(cfg.LedgerPath())
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer store.Close()

			reqCtx := cmd.Context()
			switch {
			case list:
				return showBatches(cmd, store, limit, jsonOutput)
			case strings.TrimSpace(subject) != "":
				return showSubject(cmd, store, strings.TrimSpace(subject), jsonOutput)
			}

			var batch *ledger.Batch
			if len(args) == 1 {
				batch, err = store.Batch(reqCtx, strings.TrimSpace(args[0]))
				if err == nil && batch == nil {
					return fmt.Errorf("batch %s not found in %s", args[0], store.Path())
				}
			} else {
				batch, err = store.LatestBatch(reqCtx)
			}
			if err != nil {
				return err
			}
			if batch == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No batches recorded")
				return nil
			}
			runs, err := store.Runs(reqCtx, batch.ID)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, struct {
					Batch ledger.Batch `json:"batch"`
					Runs  []ledger.Run `json:"runs"`
				}{*batch, runs})
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderBatchStatus(*batch, runs, shouldColorize(out)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "List recent batches")
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of batches shown by --list")
	cmd.Flags().StringVar(&subject, "subject", "", "Show the run history of one subject")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of tables")
	return cmd
}

func showBatches(cmd *cobra.Command, store *ledger.Store, limit int, jsonOutput bool) error {
	batches, err := store.Batches(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if jsonOutput {
		if batches == nil {
			batches = []ledger.Batch{}
		}
		return writeJSON(cmd, batches)
	}
	out := cmd.OutOrStdout()
	if len(batches) == 0 {
		fmt.Fprintln(out, "No batches recorded")
		return nil
	}
	rows := make([][]string, 0, len(batches))
	for _, b := range batches {
		rows = append(rows, []string{
			b.ID,
			formatTimestamp(&b.StartedAt),
			batchState(b),
			strconv.Itoa(b.Subjects),
			strconv.Itoa(b.Succeeded),
			strconv.Itoa(b.Failed),
			strconv.Itoa(b.Aborted),
			strconv.Itoa(b.PostconditionsMissing),
		})
	}
	fmt.Fprintln(out, renderTable("",
		[]string{"Batch", "Started", "State", "Subjects", "Succeeded", "Failed", "Aborted", "Missing"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
	))
	return nil
}

func showSubject(cmd *cobra.Command, store *ledger.Store, subject string, jsonOutput bool) error {
	runs, err := store.SubjectHistory(cmd.Context(), subject)
	if err != nil {
		return err
	}
	if jsonOutput {
		if runs == nil {
			runs = []ledger.Run{}
		}
		return writeJSON(cmd, runs)
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintf(out, "No runs recorded for %s\n", subject)
		return nil
	}
	colorize := shouldColorize(out)
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.BatchID,
			formatTimestamp(r.StartedAt),
			colorizeCell(statusLabel(string(r.Status)), runStatusKind(r.Status, len(r.Missing)), colorize),
			strconv.Itoa(r.CompletedStages),
			dash(r.FailedStage),
			dash(describeFailure(r.ErrorKind, r.Reason)),
		})
	}
	fmt.Fprintln(out, renderTable("Subject "+subject,
		[]string{"Batch", "Started", "Status", "Stages", "Failed Stage", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	))
	return nil
}

func renderBatchStatus(b ledger.Batch, runs []ledger.Run, colorize bool) string {
	var sb strings.Builder
	for _, line := range renderSectionHeader("Batch "+b.ID, colorize) {
		sb.WriteString(line + "\n")
	}
	stateKind := statusOK
	switch {
	case b.FinishedAt == nil:
		stateKind = statusInfo
	case b.Cancelled || b.Aborted > 0 || b.Failed > 0 || b.PostconditionsMissing > 0:
		stateKind = statusWarn
	}
	sb.WriteString(renderStatusLine("State", stateKind, batchState(b), colorize) + "\n")
	sb.WriteString(renderStatusLine("Started", statusInfo, formatTimestamp(&b.StartedAt), colorize) + "\n")
	if b.FinishedAt != nil {
		sb.WriteString(renderStatusLine("Finished", statusInfo, formatTimestamp(b.FinishedAt), colorize) + "\n")
	}
	sb.WriteString(renderStatusLine("Subjects", statusInfo,
		fmt.Sprintf("%d total, %d succeeded, %d failed, %d aborted (jobs %d)", b.Subjects, b.Succeeded, b.Failed, b.Aborted, b.Jobs),
		colorize) + "\n")
	sb.WriteString(renderStatusLine("Interrupted", statusInfo, yesNo(b.Cancelled), colorize) + "\n")
	if b.ErrorLog != "" {
		sb.WriteString(renderStatusLine("Error log", statusInfo, b.ErrorLog, colorize) + "\n")
	}

	if len(runs) == 0 {
		return sb.String()
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.Subject,
			colorizeCell(statusLabel(string(r.Status)), runStatusKind(r.Status, len(r.Missing)), colorize),
			strconv.Itoa(r.CompletedStages),
			strconv.Itoa(r.ManualArtifacts),
			dash(r.FailedStage),
			dash(describeFailure(r.ErrorKind, r.Reason)),
			dash(strings.Join(r.Missing, ", ")),
		})
	}
	sb.WriteString("\n")
	sb.WriteString(renderTable("",
		[]string{"Subject", "Status", "Stages", "Manual", "Failed Stage", "Error", "Missing"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft, alignLeft},
	))
	sb.WriteString("\n")
	return sb.String()
}

func batchState(b ledger.Batch) string {
	switch {
	case b.FinishedAt == nil:
		return "Running"
	case b.Cancelled:
		return "Interrupted"
	default:
		return "Finished"
	}
}

func formatTimestamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
