package main

import (
	"bytes"
	"strings"
	"testing"

	"quizqa/internal/dispatch"
	"quizqa/internal/workflow"
)

func TestRunStatusLines(t *testing.T) {
	tests := []struct {
		name   string
		result workflow.Result
		status string
		last   string
	}{
		{
			name:   "clean run",
			result: workflow.Result{RunID: "r1", Summary: dispatch.Summary{Calls: 4}},
			status: "[DONE] finished; 4 calls",
			last:   "[DONE] saved",
		},
		{
			name:   "nothing pending",
			result: workflow.Result{RunID: "r1"},
			status: "[DONE] finished; nothing to evaluate",
			last:   "[DONE] saved",
		},
		{
			name:   "failed calls",
			result: workflow.Result{RunID: "r1", Summary: dispatch.Summary{Calls: 5, Failed: 2}},
			status: "[PARTIAL] finished; 2 of 5 calls failed",
			last:   "[DONE] saved",
		},
		{
			name:   "interrupted and unsaved",
			result: workflow.Result{RunID: "r1", Interrupted: true, Unsaved: true, Summary: dispatch.Summary{Calls: 1, Skipped: 7}},
			status: "[PARTIAL] interrupted; 7 calls not made",
			last:   "[UNSAVED] NOT SAVED",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			printRunStatus(&buf, tc.result, "", false)
			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			if len(lines) != 3 {
				t.Fatalf("expected run, status and checkpoint lines, got %q", lines)
			}
			if !strings.Contains(lines[1], "Status:") || !strings.Contains(lines[1], tc.status) {
				t.Fatalf("status line %q does not contain %q", lines[1], tc.status)
			}
			if !strings.Contains(lines[2], "Checkpoint:") || !strings.Contains(lines[2], tc.last) {
				t.Fatalf("checkpoint line %q does not contain %q", lines[2], tc.last)
			}
		})
	}
}

func TestRenderStatusLineColor(t *testing.T) {
	line := statusLine{label: "Checkpoint", outcome: outcomeUnsaved, message: "NOT SAVED"}
	plain := renderStatusLine(line, false)
	if strings.Contains(plain, "\x1b[") {
		t.Fatalf("plain output must not carry escapes: %q", plain)
	}
	colored := renderStatusLine(line, true)
	if !strings.HasPrefix(colored, ansiRed) || !strings.HasSuffix(colored, ansiReset) {
		t.Fatalf("unsaved line should be red: %q", colored)
	}
}

func TestScoreColor(t *testing.T) {
	if scoreColor(1) != ansiGreen || scoreColor(0.5) != ansiYellow || scoreColor(0) != ansiRed {
		t.Fatal("unexpected score colors")
	}
}

func TestRenderTableFooterAndWrap(t *testing.T) {
	out := renderTable(
		[]column{textColumn("Backend"), countColumn("Calls"), proseColumn("Note", 10)},
		[][]string{{"alpha", "3", "one two three four"}, {"beta"}},
		[]string{"total", "3"},
	)
	if !strings.Contains(out, "alpha") || !strings.Contains(out, "beta") {
		t.Fatalf("rows missing from table:\n%s", out)
	}
	if !strings.Contains(strings.ToLower(out), "total") {
		t.Fatalf("footer missing from table:\n%s", out)
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "one two three four") {
			t.Fatalf("prose column should wrap at its width:\n%s", out)
		}
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("a table without columns renders empty")
	}
}
