package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"quizqa/internal/evaluation"
)

var statusOrder = []evaluation.Classification{
	evaluation.Complete,
	evaluation.NeedsBackend,
	evaluation.Stale,
	evaluation.New,
}

// Render writes a human-readable view of r.
func Render(w io.Writer, r Report) error {
	var b strings.Builder

	title := "Run report"
	if r.RunID != "" {
		title += " " + r.RunID
	}
	if r.Partial {
		title += " (PARTIAL)"
	}
	fmt.Fprintln(&b, title)
	if !r.StartedAt.IsZero() && !r.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "Started %s, took %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			humanize.RelTime(r.StartedAt, r.FinishedAt, "", ""))
	}
	if r.Unsaved {
		fmt.Fprintln(&b, "WARNING: results were not saved to the checkpoint")
	}
	fmt.Fprintln(&b)

	summary := [][]string{
		{"Items", humanize.Comma(int64(r.Total))},
		{"Passed", humanize.Comma(int64(r.Passed))},
		{"Failed", humanize.Comma(int64(r.Failed))},
		{"Average score", formatScore(r.AverageScore)},
	}
	if r.Unevaluated > 0 {
		summary = append(summary, []string{"Unevaluated", humanize.Comma(int64(r.Unevaluated))})
	}
	for _, status := range statusOrder {
		if n := r.Statuses[status]; n > 0 {
			summary = append(summary, []string{"Status " + string(status), humanize.Comma(int64(n))})
		}
	}
	if a := r.Activity; a != nil {
		summary = append(summary,
			[]string{"Backend calls", humanize.Comma(int64(a.Calls))},
			[]string{"Calls skipped", humanize.Comma(int64(a.Skipped))},
		)
	}
	b.WriteString(renderTable([]string{"Metric", "Value"}, summary, []text.Align{text.AlignLeft, text.AlignRight}))
	b.WriteString("\n\n")

	if len(r.Checks) > 0 {
		rows := make([][]string, 0, len(r.Checks))
		for _, c := range r.Checks {
			rows = append(rows, []string{
				c.Check,
				humanize.Comma(int64(c.Failed)),
				humanize.Comma(int64(c.Errors)),
				humanize.Comma(int64(c.Total)),
				fmt.Sprintf("%.1f%%", c.Rate()*100),
			})
		}
		b.WriteString(renderTable([]string{"Check", "Failed", "Errors", "Total", "Failure rate"}, rows,
			[]text.Align{text.AlignLeft, text.AlignRight, text.AlignRight, text.AlignRight, text.AlignRight}))
		b.WriteString("\n\n")
	}

	if len(r.Groups) > 0 {
		rows := make([][]string, 0, len(r.Groups))
		for _, g := range r.Groups {
			name := g.Group
			if name == "" {
				name = "(ungrouped)"
			}
			rows = append(rows, []string{
				name,
				humanize.Comma(int64(g.Total)),
				humanize.Comma(int64(g.Passed)),
				humanize.Comma(int64(g.Failed)),
				formatScore(g.AverageScore),
			})
		}
		b.WriteString(renderTable([]string{"Group", "Items", "Passed", "Failed", "Avg score"}, rows,
			[]text.Align{text.AlignLeft, text.AlignRight, text.AlignRight, text.AlignRight, text.AlignRight}))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func formatScore(score float64) string {
	return fmt.Sprintf("%.3f", score)
}

func renderTable(headers []string, rows [][]string, aligns []text.Align) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)
	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range headers {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(headers))
	for i := range headers {
		align := text.AlignLeft
		if i < len(aligns) {
			align = aligns[i]
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}
