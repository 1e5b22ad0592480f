package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"quizqa/internal/checkpoint"
	"quizqa/internal/evaluation"
)

func newCheckpointCommand(ctx *commandContext) *cobra.Command {
	checkpointCmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect the checkpoint file",
	}
	checkpointCmd.AddCommand(newCheckpointStatsCommand(ctx))
	checkpointCmd.AddCommand(newCheckpointShowCommand(ctx))
	return checkpointCmd
}

type checkpointStats struct {
	Path      string                            `json:"path"`
	SizeBytes int64                             `json:"size_bytes"`
	Records   int                               `json:"records"`
	Statuses  map[evaluation.Classification]int `json:"statuses"`
	Checks    int                               `json:"checks"`
	Failures  map[evaluation.Failure]int        `json:"failures"`
	Retryable int                               `json:"retryable"`
}

func collectStats(path string, records []evaluation.Record) checkpointStats {
	stats := checkpointStats{
		Path:     path,
		Records:  len(records),
		Statuses: make(map[evaluation.Classification]int),
		Failures: make(map[evaluation.Failure]int),
	}
	if info, err := os.Stat(path); err == nil {
		stats.SizeBytes = info.Size()
	}
	for _, rec := range records {
		stats.Statuses[rec.Status]++
		for _, result := range rec.Checks {
			stats.Checks++
			if result.Failure != evaluation.FailureNone {
				stats.Failures[result.Failure]++
			}
			if result.Retryable {
				stats.Retryable++
			}
		}
	}
	return stats
}

func newCheckpointStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the records in the checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.Paths.CheckpointFile
			records, err := checkpoint.ReadFile(path)
			if err != nil {
				return err
			}
			stats := collectStats(path, records)
			if jsonOut {
				return writeJSON(cmd, stats)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Checkpoint: %s (%s)\n", path, humanize.Bytes(uint64(stats.SizeBytes)))
			rows := [][]string{
				{"records", humanize.Comma(int64(stats.Records))},
				{"check results", humanize.Comma(int64(stats.Checks))},
			}
			for _, status := range planStatuses {
				if n := stats.Statuses[status]; n > 0 {
					rows = append(rows, []string{"status " + string(status), humanize.Comma(int64(n))})
				}
			}
			for _, failure := range []evaluation.Failure{
				evaluation.FailureTransient,
				evaluation.FailurePermanent,
				evaluation.FailureUnparseable,
				evaluation.FailureCanceled,
			} {
				if n := stats.Failures[failure]; n > 0 {
					rows = append(rows, []string{"failure " + string(failure), humanize.Comma(int64(n))})
				}
			}
			rows = append(rows, []string{"retryable", humanize.Comma(int64(stats.Retryable))})
			fmt.Fprintln(out, renderTable([]column{textColumn("Metric"), countColumn("Value")}, rows, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newCheckpointShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show ITEM_ID",
		Short: "Show the stored record of one item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			records, err := checkpoint.ReadFile(cfg.Paths.CheckpointFile)
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			var rec *evaluation.Record
			for i := range records {
				if records[i].ItemID == id {
					rec = &records[i]
					break
				}
			}
			if rec == nil {
				return fmt.Errorf("item %q not found in %s", id, cfg.Paths.CheckpointFile)
			}
			if jsonOut {
				return writeJSON(cmd, rec)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Item:        %s\n", rec.ItemID)
			if rec.Group != "" {
				fmt.Fprintf(out, "Group:       %s\n", rec.Group)
			}
			fmt.Fprintf(out, "Status:      %s\n", rec.Status)
			if len(rec.Missing) > 0 {
				fmt.Fprintf(out, "Missing:     %s\n", strings.Join(rec.Missing, ", "))
			}
			score := fmt.Sprintf("%.3f (%d/%d passed)", rec.Score, rec.Passed(), len(rec.Checks))
			if shouldColorize(out) {
				score = scoreColor(rec.Score) + score + ansiReset
			}
			fmt.Fprintf(out, "Score:       %s\n", score)
			fmt.Fprintf(out, "Fingerprint: %s\n", rec.Fingerprint)
			fmt.Fprintf(out, "Updated:     %s\n", humanize.Time(rec.UpdatedAt))

			rows := make([][]string, 0, len(rec.Checks))
			for _, name := range rec.CheckNames() {
				result := rec.Checks[name]
				rows = append(rows, []string{
					name,
					result.Backend,
					strconv.Itoa(result.Score),
					string(result.Failure),
					yesNo(result.Retryable),
					result.Rationale,
				})
			}
			fmt.Fprintln(out, renderTable([]column{
				textColumn("Check"),
				textColumn("Backend"),
				countColumn("Score"),
				textColumn("Failure"),
				textColumn("Retryable"),
				proseColumn("Rationale", 60),
			}, rows, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
