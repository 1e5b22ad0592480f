package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"quizqa/internal/evaluation"
	"quizqa/internal/logging"
	"quizqa/internal/workflow"
)

type planOutput struct {
	Items     int                               `json:"items"`
	Unchecked int                               `json:"unchecked"`
	Counts    map[evaluation.Classification]int `json:"counts"`
	Calls     map[string]int                    `json:"calls"`
	Checks    map[string]int                    `json:"checks"`
}

var planStatuses = []evaluation.Classification{
	evaluation.Complete,
	evaluation.NeedsBackend,
	evaluation.Stale,
	evaluation.New,
}

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var opts workflow.Options
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what a run would evaluate without calling any backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runner := workflow.NewRunner(cfg, workflow.WithLogger(logging.NewNop()))
			plan, err := runner.Plan(opts)
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd, planOutput{
					Items:     plan.Items,
					Unchecked: plan.Unchecked,
					Counts:    plan.Counts,
					Calls:     plan.Calls,
					Checks:    plan.Checks,
				})
			}

			out := cmd.OutOrStdout()
			rows := make([][]string, 0, len(planStatuses)+1)
			for _, status := range planStatuses {
				rows = append(rows, []string{string(status), strconv.Itoa(plan.Counts[status])})
			}
			if plan.Unchecked > 0 {
				rows = append(rows, []string{"no applicable checks", strconv.Itoa(plan.Unchecked)})
			}
			fmt.Fprintf(out, "%d items\n", plan.Items)
			fmt.Fprintln(out, renderTable([]column{textColumn("Status"), countColumn("Items")}, rows, nil))

			if len(plan.Calls) == 0 {
				fmt.Fprintln(out, "Nothing to evaluate.")
				return nil
			}
			backends := make([]string, 0, len(plan.Calls))
			for name := range plan.Calls {
				backends = append(backends, name)
			}
			sort.Strings(backends)
			rows = rows[:0]
			var calls, checks int
			for _, name := range backends {
				calls += plan.Calls[name]
				checks += plan.Checks[name]
				rows = append(rows, []string{name, strconv.Itoa(plan.Calls[name]), strconv.Itoa(plan.Checks[name])})
			}
			fmt.Fprintln(out, renderTable([]column{textColumn("Backend"), countColumn("Calls"), countColumn("Checks")}, rows,
				[]string{"total", strconv.Itoa(calls), strconv.Itoa(checks)}))
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.ItemsFile, "items", "", "Item source CSV (overrides paths.items_file)")
	cmd.Flags().StringVar(&opts.CheckpointFile, "checkpoint", "", "Checkpoint file (overrides paths.checkpoint_file)")
	cmd.Flags().BoolVar(&opts.RetryFailed, "retry-failed", false, "Count permanent and unparseable failures as pending")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the plan as JSON")
	return cmd
}
