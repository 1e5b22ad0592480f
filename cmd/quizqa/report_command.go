package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"quizqa/internal/checkpoint"
	"quizqa/internal/report"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var fromCheckpoint bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "report [REPORT.json]",
		Short: "Show a run report",
		Long: `Show a run report.

Without arguments the most recent report in paths.report_dir is shown.
--from-checkpoint summarizes every record in the checkpoint instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			var rep report.Report
			switch {
			case fromCheckpoint:
				if len(args) > 0 {
					return errors.New("--from-checkpoint does not take a report file")
				}
				records, err := checkpoint.ReadFile(cfg.Paths.CheckpointFile)
				if err != nil {
					return err
				}
				rep = report.Build(records, report.Meta{Checkpoint: cfg.Paths.CheckpointFile})
			case len(args) == 1:
				rep, err = report.Read(args[0])
				if err != nil {
					return err
				}
			default:
				path, err := latestReport(cfg.Paths.ReportDir)
				if err != nil {
					return err
				}
				rep, err = report.Read(path)
				if err != nil {
					return err
				}
			}

			if jsonOut {
				return writeJSON(cmd, rep)
			}
			return report.Render(cmd.OutOrStdout(), rep)
		},
	}

	cmd.Flags().BoolVar(&fromCheckpoint, "from-checkpoint", false, "Summarize the checkpoint file instead of a saved report")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the report as JSON")
	return cmd
}

// latestReport returns the most recently modified report in dir.
func latestReport(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "report-*.json"))
	if err != nil {
		return "", fmt.Errorf("list reports: %w", err)
	}
	type candidate struct {
		path    string
		modTime int64
	}
	candidates := make([]candidate, 0, len(matches))
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{path: path, modTime: info.ModTime().UnixNano()})
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no reports in %s; run `quizqa run` or use --from-checkpoint", dir)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].modTime != candidates[j].modTime {
			return candidates[i].modTime > candidates[j].modTime
		}
		return candidates[i].path > candidates[j].path
	})
	return candidates[0].path, nil
}
