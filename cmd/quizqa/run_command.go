package main

import (
	"github.com/spf13/cobra"

	"quizqa/internal/report"
	"quizqa/internal/workflow"
)

type runOutput struct {
	RunID       string        `json:"run_id"`
	Interrupted bool          `json:"interrupted"`
	Unsaved     bool          `json:"unsaved"`
	ReportPath  string        `json:"report_path,omitempty"`
	LogPath     string        `json:"log_path,omitempty"`
	Report      report.Report `json:"report"`
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts workflow.Options
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate every item that is not yet complete",
		Long: `Evaluate every item that is not yet complete.

Items whose content changed since their last evaluation are evaluated again.
Items missing checks from one backend are sent to that backend only.
Interrupting the run (Ctrl-C) stops new calls, waits for calls in flight,
saves the checkpoint and writes a partial report. Re-run the same command to
resume.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runID := workflow.NewRunID()
			logger, logPath, err := ctx.commandLogger(runID)
			if err != nil {
				return err
			}

			runner := workflow.NewRunner(cfg,
				workflow.WithLogger(logger),
				workflow.WithRunIDs(func() string { return runID }))
			result, err := runner.Run(cmd.Context(), opts)
			if err != nil {
				return err
			}

			if jsonOut {
				if err := writeJSON(cmd, runOutput{
					RunID:       result.RunID,
					Interrupted: result.Interrupted,
					Unsaved:     result.Unsaved,
					ReportPath:  result.ReportPath,
					LogPath:     logPath,
					Report:      result.Report,
				}); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				if err := report.Render(out, result.Report); err != nil {
					return err
				}
				printRunStatus(out, result, logPath, shouldColorize(out))
			}

			switch {
			case result.Unsaved:
				return &exitError{code: exitUnsaved}
			case result.Interrupted:
				return &exitError{code: exitInterrupted}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.ItemsFile, "items", "", "Item source CSV (overrides paths.items_file)")
	cmd.Flags().StringVar(&opts.CheckpointFile, "checkpoint", "", "Checkpoint file (overrides paths.checkpoint_file)")
	cmd.Flags().BoolVar(&opts.RetryFailed, "retry-failed", false, "Re-evaluate checks that failed permanently or were unparseable")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the run summary as JSON")
	return cmd
}
