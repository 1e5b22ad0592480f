package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"quizqa/internal/evaluation"
	"quizqa/internal/fileutil"
)

// Activity counts what one run did on the wire.
type Activity struct {
	Tasks     int `json:"tasks"`
	Calls     int `json:"calls"`
	Committed int `json:"committed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// CheckFailures is the failure frequency of one check.
type CheckFailures struct {
	Check string `json:"check"`
	// Failed counts items whose result for this check did not pass.
	Failed int `json:"failed"`
	// Errors counts failures with no genuine verdict (transient, permanent,
	// unparseable).
	Errors int `json:"errors"`
	Total  int `json:"total"`
}

// Rate returns the failure fraction.
func (c CheckFailures) Rate() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Failed) / float64(c.Total)
}

// GroupSummary aggregates the items sharing one grouping key.
type GroupSummary struct {
	Group        string  `json:"group"`
	Total        int     `json:"total"`
	Passed       int     `json:"passed"`
	Failed       int     `json:"failed"`
	AverageScore float64 `json:"average_score"`
}

// Report is the summary of a run's evaluation records.
type Report struct {
	RunID      string    `json:"run_id,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// Partial is set when the run stopped before every pending item was
	// evaluated.
	Partial bool `json:"partial"`
	// Unsaved is set when the checkpoint could not be written.
	Unsaved    bool   `json:"unsaved,omitempty"`
	Checkpoint string `json:"checkpoint,omitempty"`

	Total        int                               `json:"total"`
	Passed       int                               `json:"passed"`
	Failed       int                               `json:"failed"`
	Unevaluated  int                               `json:"unevaluated,omitempty"`
	AverageScore float64                           `json:"average_score"`
	Statuses     map[evaluation.Classification]int `json:"statuses"`
	Checks       []CheckFailures                   `json:"checks"`
	Groups       []GroupSummary                    `json:"groups"`
	Activity     *Activity                         `json:"activity,omitempty"`
}

// Meta carries the run context that records alone cannot supply.
type Meta struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Partial    bool
	Unsaved    bool
	Checkpoint string
	// Expected is the number of items in scope. Items with no record count
	// as unevaluated. Zero means the records are the whole scope.
	Expected int
	Activity *Activity
}

// Build aggregates records into a report. An item passes when it has checks
// and every one of them passed.
func Build(records []evaluation.Record, meta Meta) Report {
	r := Report{
		RunID:      meta.RunID,
		StartedAt:  meta.StartedAt,
		FinishedAt: meta.FinishedAt,
		Partial:    meta.Partial,
		Unsaved:    meta.Unsaved,
		Checkpoint: meta.Checkpoint,
		Total:      len(records),
		Statuses:   make(map[evaluation.Classification]int),
		Checks:     []CheckFailures{},
		Groups:     []GroupSummary{},
		Activity:   meta.Activity,
	}
	if meta.Expected > len(records) {
		r.Unevaluated = meta.Expected - len(records)
	}

	checkStats := make(map[string]*CheckFailures)
	groupStats := make(map[string]*GroupSummary)
	groupScores := make(map[string]float64)
	var scoreSum float64

	for _, rec := range records {
		r.Statuses[rec.Status]++
		scoreSum += rec.Score
		passed := rec.AllPassed()
		if passed {
			r.Passed++
		} else {
			r.Failed++
		}

		g := groupStats[rec.Group]
		if g == nil {
			g = &GroupSummary{Group: rec.Group}
			groupStats[rec.Group] = g
		}
		g.Total++
		if passed {
			g.Passed++
		} else {
			g.Failed++
		}
		groupScores[rec.Group] += rec.Score

		for name, result := range rec.Checks {
			c := checkStats[name]
			if c == nil {
				c = &CheckFailures{Check: name}
				checkStats[name] = c
			}
			c.Total++
			if !result.Passed {
				c.Failed++
			}
			if result.Failure != evaluation.FailureNone {
				c.Errors++
			}
		}
	}
	if r.Total > 0 {
		r.AverageScore = scoreSum / float64(r.Total)
	}

	for _, c := range checkStats {
		r.Checks = append(r.Checks, *c)
	}
	sort.Slice(r.Checks, func(i, j int) bool {
		a, b := r.Checks[i], r.Checks[j]
		if a.Failed != b.Failed {
			return a.Failed > b.Failed
		}
		return a.Check < b.Check
	})

	for key, g := range groupStats {
		g.AverageScore = groupScores[key] / float64(g.Total)
		r.Groups = append(r.Groups, *g)
	}
	sort.Slice(r.Groups, func(i, j int) bool {
		return r.Groups[i].Group < r.Groups[j].Group
	})
	return r
}

// FileName returns the report file name for a run.
func FileName(runID string, partial bool) string {
	if runID == "" {
		runID = "adhoc"
	}
	if partial {
		return fmt.Sprintf("report-%s.partial.json", runID)
	}
	return fmt.Sprintf("report-%s.json", runID)
}

// Write stores r as indented JSON in dir and returns the file path.
func Write(dir string, r Report) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	data = append(data, '\n')
	path := filepath.Join(dir, FileName(r.RunID, r.Partial))
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// Read loads a report written by Write.
func Read(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return Report{}, fmt.Errorf("parse report %s: %w", path, err)
	}
	if r.Statuses == nil {
		r.Statuses = make(map[evaluation.Classification]int)
	}
	return r, nil
}
