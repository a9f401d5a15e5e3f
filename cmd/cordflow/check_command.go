package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"cordflow/internal/artifact"
	"cordflow/internal/deps"
	"cordflow/internal/preflight"
	"cordflow/internal/protocol"
	"cordflow/internal/stage"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify directories, template files and external tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			proto := protocol.New(protocol.SettingsFromConfig(cfg))
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			failures := 0

			writeSection(out, "Configuration", colorize)
			fmt.Fprintln(out, renderStatusLine("Config file", statusInfo, dash(ctx.configPath), colorize))
			fmt.Fprintln(out, renderStatusLine("Modalities", statusInfo, enabledModalities(cfg.Protocol.T2Star, cfg.Protocol.DWI), colorize))
			fmt.Fprintln(out, renderStatusLine("Override QC", statusInfo, yesNo(cfg.Tools.QCManualOverrides), colorize))

			writeSection(out, "Directories", colorize)
			for _, r := range preflight.RunAll(cfg) {
				kind := statusOK
				if !r.Passed {
					kind = statusError
					failures++
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}

			writeSection(out, "Tools", colorize)
			for _, st := range preflight.CheckSystemDeps(cfg, proto.RequiredTools()) {
				kind := statusOK
				detail := st.Command
				if !st.Available {
					kind = statusError
					detail = st.Detail
					failures++
				} else if st.Detail != "" {
					detail = st.Command + " (" + st.Detail + ")"
				}
				fmt.Fprintln(out, renderStatusLine(st.Name, kind, detail, colorize))
			}

			writeSection(out, "Stages", colorize)
			sctDir := os.Getenv(deps.EnvSCTDir)
			lookup := func(tool string) error {
				if _, ok := deps.ResolveTool(cfg.Binary(tool), sctDir); !ok {
					return fmt.Errorf("%s not found", tool)
				}
				return nil
			}
			for _, st := range proto.Stages() {
				health := stage.CheckTools(st, lookup)
				kind := statusOK
				detail := strings.Join(st.Tools(), ", ")
				if !health.Ready {
					kind = statusWarn
					detail = health.Detail
				}
				fmt.Fprintln(out, renderStatusLine(health.Name, kind, dash(detail), colorize))
			}

			if failures > 0 {
				return &exitError{code: 1, reason: fmt.Sprintf("%d check(s) failed", failures)}
			}
			return nil
		},
	}
}

func writeSection(out io.Writer, title string, colorize bool) {
	fmt.Fprintln(out)
	for _, line := range renderSectionHeader(title, colorize) {
		fmt.Fprintln(out, line)
	}
}

func enabledModalities(t2star, dwi bool) string {
	enabled := []string{string(artifact.ModalityT2w)}
	if t2star {
		enabled = append(enabled, string(artifact.ModalityT2Star))
	}
	if dwi {
		enabled = append(enabled, string(artifact.ModalityDWI))
	}
	return strings.Join(enabled, ", ")
}
