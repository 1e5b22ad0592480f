// Package report aggregates evaluation records into a run summary: pass and
// fail counts, average score, failure frequency per check (most frequent
// first) and a per-group breakdown. Reports are written as JSON next to the
// run's other artifacts and rendered as tables for the terminal. A report
// built from an interrupted run is labeled partial.
package report
