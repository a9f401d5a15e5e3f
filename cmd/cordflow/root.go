package main

import (
	"github.com/spf13/cobra"

	"cordflow/internal/tool"
)

func newRootCommand() *cobra.Command {
	return buildRootCommand(nil)
}

// buildRootCommand assembles the command tree. A non-nil runner replaces the
// external tool runner for every command.
func buildRootCommand(runner tool.Runner) *cobra.Command {
	var configFlag string

	ctx := newCommandContext(&configFlag)
	ctx.runner = runner

	rootCmd := &cobra.Command{
		Use:           "cordflow",
		Short:         "Batch orchestrator for spinal-cord MRI pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newCheckCommand(ctx))
	rootCmd.AddCommand(newManualCorrectionCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
