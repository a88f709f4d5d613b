package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/nstogner/selfimprove/pkg/pipeline"
	"github.com/nstogner/selfimprove/pkg/store"
	"github.com/nstogner/selfimprove/pkg/store/jsonl"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var outputRoot string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previous self-improvement runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputRoot == "" {
				cfg, err := root.loadConfig()
				if err != nil {
					return err
				}
				outputRoot = cfg.OutputRoot
			}
			runs, err := jsonl.NewManager(outputRoot).List()
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("No runs recorded in "+outputRoot))
				return nil
			}
			for _, r := range runs {
				fmt.Fprintln(cmd.OutOrStdout(), formatRun(r))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outputRoot, "output-root", "", "directory holding run output (overrides config)")
	return cmd
}

func formatRun(r store.Run) string {
	line := fmt.Sprintf("%s  %-12s  %-8s  %s", labelStyle.Render(r.ID), r.Status,
		r.Duration().Round(time.Second), r.Task)
	if len(r.PatchFiles) > 0 {
		line += dimStyle.Render(fmt.Sprintf("  (%d files patched)", len(r.PatchFiles)))
	}
	return line
}

// recordRun appends report to the run history. Failures are only logged.
func recordRun(m store.Manager, report *pipeline.Report, runErr error) {
	r := store.Run{
		ID:               report.RunID,
		Task:             report.Task,
		Status:           string(report.Status),
		StartedAt:        report.StartedAt,
		FinishedAt:       report.FinishedAt,
		RunDir:           report.RunDir,
		ProblemStatement: report.ProblemStatement,
		AgentExit:        report.AgentExit,
	}
	if report.Artifacts != nil {
		r.PatchPath = report.Artifacts.PatchPath
		r.PatchFiles = report.Artifacts.Patch.Files
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	if err := m.Append(r); err != nil {
		slog.Warn("Failed to record run", "runID", report.RunID, "error", err)
	}
}
