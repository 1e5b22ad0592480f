// Package preflight provides readiness checks for the evaluation backends
// and the filesystem paths a run writes to.
//
// The workflow runner calls RunAll before dispatching when run.preflight is
// enabled, and Assess turns the results into a decision:
//   - no referenced backend reachable: the run aborts before any work starts
//   - some backends unreachable: the run continues and their checks will
//     record failures
//   - a directory is not writable: the run continues with the checkpoint
//     degraded to memory only
package preflight
