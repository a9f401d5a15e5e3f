package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"cordflow/internal/batchrun"
	"cordflow/internal/dataset"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var jobs int
	var subjectsFile string
	var skipPreflight bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "run [subject...]",
		Short: "Run the protocol over a batch of subjects",
		Long: "Run the protocol over the named subjects, the subjects listed in --subjects-file,\n" +
			"or every directory under the dataset matching batch.subjects_glob.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			ids := append([]string(nil), args...)
			if path := strings.TrimSpace(subjectsFile); path != "" {
				listed, err := readSubjectsFile(path)
				if err != nil {
					return err
				}
				ids = append(ids, listed...)
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}

			outcome, err := batchrun.Run(cmd.Context(), cfg, batchrun.Options{
				Subjects:      ids,
				Jobs:          jobs,
				Runner:        ctx.runner,
				Logger:        logger,
				SkipPreflight: skipPreflight,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := writeJSON(cmd, newReportView(outcome)); err != nil {
					return err
				}
			} else {
				fmt.Fprint(out, renderBatchReport(outcome, shouldColorize(out)))
			}
			if outcome.ExitCode != 0 {
				return &exitError{
					code:   outcome.ExitCode,
					reason: fmt.Sprintf("batch %s finished with exit code %d under the configured policy", outcome.Report.BatchID, outcome.ExitCode),
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "Concurrent subject pipelines (overrides batch.jobs)")
	cmd.Flags().StringVar(&subjectsFile, "subjects-file", "", "File listing one subject ID per line")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Skip the directory and tool checks")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the batch report as JSON")
	return cmd
}

func readSubjectsFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open subjects file: %w", err)
	}
	defer file.Close()
	return dataset.ReadSubjectsFile(file)
}
