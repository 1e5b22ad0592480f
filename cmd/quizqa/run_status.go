package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"quizqa/internal/workflow"
)

// runOutcome grades one line of the run summary.
type runOutcome int

const (
	outcomeNote runOutcome = iota
	outcomeDone
	outcomePartial
	outcomeUnsaved
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 12
	statusIndent     = "  "
)

type statusLine struct {
	label   string
	outcome runOutcome
	message string
}

// runStatusLines summarizes a finished run. The checkpoint line always comes
// last so an unsaved run is the final thing the operator reads.
func runStatusLines(result workflow.Result, logPath string) []statusLine {
	lines := []statusLine{{label: "Run", outcome: outcomeNote, message: result.RunID}}
	if result.ReportPath != "" {
		lines = append(lines, statusLine{label: "Report", outcome: outcomeNote, message: result.ReportPath})
	}
	if logPath != "" {
		lines = append(lines, statusLine{label: "Log", outcome: outcomeNote, message: logPath})
	}

	summary := result.Summary
	switch {
	case result.Interrupted:
		lines = append(lines, statusLine{label: "Status", outcome: outcomePartial,
			message: fmt.Sprintf("interrupted; %d calls not made. Re-run to resume", summary.Skipped)})
	case summary.Failed > 0:
		lines = append(lines, statusLine{label: "Status", outcome: outcomePartial,
			message: fmt.Sprintf("finished; %d of %d calls failed", summary.Failed, summary.Calls)})
	case summary.Calls == 0:
		lines = append(lines, statusLine{label: "Status", outcome: outcomeDone, message: "finished; nothing to evaluate"})
	default:
		lines = append(lines, statusLine{label: "Status", outcome: outcomeDone,
			message: fmt.Sprintf("finished; %d calls", summary.Calls)})
	}

	if result.Unsaved {
		lines = append(lines, statusLine{label: "Checkpoint", outcome: outcomeUnsaved,
			message: "NOT SAVED; results of this run exist only in this report"})
	} else {
		lines = append(lines, statusLine{label: "Checkpoint", outcome: outcomeDone, message: "saved"})
	}
	return lines
}

func printRunStatus(out io.Writer, result workflow.Result, logPath string, colorize bool) {
	for _, line := range runStatusLines(result, logPath) {
		fmt.Fprintln(out, renderStatusLine(line, colorize))
	}
}

func renderStatusLine(line statusLine, colorize bool) string {
	text := "[" + outcomeLabel(line.outcome) + "]"
	if line.message != "" {
		text += " " + line.message
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, line.label+":", text)
	if colorize {
		return outcomeColor(line.outcome) + base + ansiReset
	}
	return base
}

func outcomeLabel(outcome runOutcome) string {
	switch outcome {
	case outcomeDone:
		return "DONE"
	case outcomePartial:
		return "PARTIAL"
	case outcomeUnsaved:
		return "UNSAVED"
	default:
		return "INFO"
	}
}

func outcomeColor(outcome runOutcome) string {
	switch outcome {
	case outcomeDone:
		return ansiGreen
	case outcomePartial:
		return ansiYellow
	case outcomeUnsaved:
		return ansiRed
	default:
		return ansiBlue
	}
}

// scoreColor grades a pass rate: full marks green, any pass yellow, none red.
func scoreColor(score float64) string {
	switch {
	case score >= 1:
		return ansiGreen
	case score > 0:
		return ansiYellow
	default:
		return ansiRed
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
