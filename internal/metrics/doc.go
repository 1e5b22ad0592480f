// Package metrics instruments a run with Prometheus collectors: backend call
// outcomes, throttles and retries, governor rates, token usage, recorded check
// results and checkpoint flushes. Metrics implements the dispatcher's observer
// interface and the governor's rate observer.
package metrics
