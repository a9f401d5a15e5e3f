package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cordflow/internal/batchrun"
	"cordflow/internal/pipeline"
)

const reasonWidth = 60

type runView struct {
	Subject         string   `json:"subject"`
	Status          string   `json:"status"`
	CompletedStages int      `json:"completed_stages"`
	ManualArtifacts int      `json:"manual_artifacts"`
	FailedStage     string   `json:"failed_stage,omitempty"`
	ErrorKind       string   `json:"error_kind,omitempty"`
	Reason          string   `json:"reason,omitempty"`
	Missing         []string `json:"missing,omitempty"`
	Registrations   []string `json:"registrations,omitempty"`
	ElapsedSeconds  float64  `json:"elapsed_seconds"`
}

type reportView struct {
	BatchID             string    `json:"batch_id"`
	Succeeded           int       `json:"succeeded"`
	Failed              int       `json:"failed"`
	Aborted             int       `json:"aborted"`
	PostconditionMisses int       `json:"postcondition_misses"`
	Cancelled           bool      `json:"cancelled"`
	ExitCode            int       `json:"exit_code"`
	ErrorLog            string    `json:"error_log"`
	Tables              []string  `json:"tables"`
	Ledger              string    `json:"ledger"`
	Runs                []runView `json:"runs"`
}

func newReportView(outcome batchrun.Outcome) reportView {
	r := outcome.Report
	view := reportView{
		BatchID:             r.BatchID,
		Succeeded:           r.Succeeded,
		Failed:              r.Failed,
		Aborted:             r.Aborted,
		PostconditionMisses: r.PostconditionMisses,
		Cancelled:           r.Cancelled,
		ExitCode:            outcome.ExitCode,
		ErrorLog:            r.ErrorLog,
		Tables:              r.Tables,
		Ledger:              outcome.Ledger,
	}
	for _, run := range r.Runs {
		view.Runs = append(view.Runs, runView{
			Subject:         run.Subject,
			Status:          string(run.Status),
			CompletedStages: run.CompletedStageCount(),
			ManualArtifacts: manualCount(run),
			FailedStage:     run.FailedStage,
			ErrorKind:       run.Kind,
			Reason:          run.Reason,
			Missing:         run.Missing,
			Registrations:   run.Registrations,
			ElapsedSeconds:  run.Elapsed().Seconds(),
		})
	}
	return view
}

func manualCount(run *pipeline.Run) int {
	n := 0
	for _, st := range run.Stages {
		n += st.Manual
	}
	return n
}

func renderBatchReport(outcome batchrun.Outcome, colorize bool) string {
	r := outcome.Report
	rows := make([][]string, 0, len(r.Runs))
	for _, run := range r.Runs {
		kind := runStatusKind(run.Status, len(run.Missing))
		rows = append(rows, []string{
			run.Subject,
			colorizeCell(statusLabel(string(run.Status)), kind, colorize),
			strconv.Itoa(run.CompletedStageCount()),
			strconv.Itoa(manualCount(run)),
			dash(run.FailedStage),
			dash(describeFailure(run.Kind, run.Reason)),
			strconv.Itoa(len(run.Missing)),
			formatElapsed(run.Elapsed()),
		})
	}

	var b strings.Builder
	b.WriteString(renderTable("Batch "+r.BatchID,
		[]string{"Subject", "Status", "Stages", "Manual", "Failed Stage", "Error", "Missing", "Elapsed"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft, alignRight, alignRight},
	))
	b.WriteString("\n")

	totals := fmt.Sprintf("%d succeeded, %d failed, %d aborted, %d postcondition misses in %s",
		r.Succeeded, r.Failed, r.Aborted, r.PostconditionMisses, formatElapsed(r.Elapsed))
	kind := statusOK
	switch {
	case r.Failed > 0 && r.Succeeded == 0:
		kind = statusError
	case r.Failed > 0 || r.Aborted > 0 || r.Cancelled || r.PostconditionMisses > 0:
		kind = statusWarn
	}
	b.WriteString(renderStatusLine("Subjects", kind, totals, colorize) + "\n")
	if r.Cancelled {
		b.WriteString(renderStatusLine("Interrupted", statusWarn, "rerun the batch to complete aborted subjects", colorize) + "\n")
	}
	b.WriteString(renderStatusLine("Error log", statusInfo, r.ErrorLog, colorize) + "\n")
	for _, table := range r.Tables {
		b.WriteString(renderStatusLine("Metric table", statusInfo, table, colorize) + "\n")
	}
	if outcome.Ledger != "" {
		b.WriteString(renderStatusLine("Ledger", statusInfo, outcome.Ledger, colorize) + "\n")
	}
	return b.String()
}

func describeFailure(kind, reason string) string {
	if kind == "" {
		return ""
	}
	text := kind
	if reason = strings.TrimSpace(reason); reason != "" {
		text += ": " + reason
	}
	if len(text) > reasonWidth {
		text = text[:reasonWidth-3] + "..."
	}
	return text
}

func formatElapsed(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
