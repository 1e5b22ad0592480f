package evaluation

import (
	"sort"
	"time"
)

// Classification is the completion state of an item relative to the checks
// it requires.
type Classification string

const (
	// Complete means every required check from every required backend is present.
	Complete Classification = "complete"
	// NeedsBackend means at least one backend's required checks are absent.
	NeedsBackend Classification = "needs_backend"
	// Stale means the stored record was produced for different content.
	Stale Classification = "stale"
	// New means no record exists.
	New Classification = "new"
)

// Failure explains why a check carries no genuine verdict.
type Failure string

const (
	FailureNone        Failure = ""
	FailureTransient   Failure = "transient"
	FailurePermanent   Failure = "permanent"
	FailureUnparseable Failure = "unparseable response"
	FailureCanceled    Failure = "canceled"
)

// CheckResult is the verdict of one check for one item. A result is never
// edited after it is written; re-evaluation replaces it.
type CheckResult struct {
	Score     int    `json:"score"`
	Passed    bool   `json:"passed"`
	Rationale string `json:"rationale"`
	Backend   string `json:"backend"`
	// Failure is set when the backend produced no usable verdict; the check
	// then counts as failed.
	Failure Failure `json:"failure,omitempty"`
	// Retryable marks failures that another run may be able to fix (retries
	// exhausted on transient errors, or the run stopped before the call).
	Retryable   bool      `json:"retryable,omitempty"`
	RunID       string    `json:"run_id,omitempty"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Failed builds a CheckResult that records a failed evaluation.
func Failed(backend string, failure Failure, reason string, retryable bool) CheckResult {
	return CheckResult{
		Score:     0,
		Passed:    false,
		Rationale: reason,
		Backend:   backend,
		Failure:   failure,
		Retryable: retryable,
	}
}

// Record is the merged, authoritative per-item result.
type Record struct {
	ItemID      string                 `json:"item_id"`
	Fingerprint string                 `json:"fingerprint"`
	ItemType    string                 `json:"item_type,omitempty"`
	Group       string                 `json:"group,omitempty"`
	Checks      map[string]CheckResult `json:"checks"`
	Score       float64                `json:"score"`
	Status      Classification         `json:"status"`
	Missing     []string               `json:"missing_backends,omitempty"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := r
	if r.Checks != nil {
		out.Checks = make(map[string]CheckResult, len(r.Checks))
		for k, v := range r.Checks {
			out.Checks[k] = v
		}
	}
	if r.Missing != nil {
		out.Missing = append([]string(nil), r.Missing...)
	}
	return out
}

// Passed reports the number of checks with a passing score.
func (r Record) Passed() int {
	n := 0
	for _, c := range r.Checks {
		if c.Passed {
			n++
		}
	}
	return n
}

// CheckNames returns the record's check names in sorted order.
func (r Record) CheckNames() []string {
	names := make([]string, 0, len(r.Checks))
	for name := range r.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AllPassed reports whether the record has checks and every one passed.
func (r Record) AllPassed() bool {
	return len(r.Checks) > 0 && r.Passed() == len(r.Checks)
}

// Score returns passed/total over checks, or 0 for an empty set.
func Score(checks map[string]CheckResult) float64 {
	if len(checks) == 0 {
		return 0
	}
	passed := 0
	for _, c := range checks {
		if c.Passed {
			passed++
		}
	}
	return float64(passed) / float64(len(checks))
}

// Requirements maps backend name to the check names that backend must
// produce for an item.
type Requirements map[string][]string

// Backends returns the required backend names in sorted order.
func (r Requirements) Backends() []string {
	names := make([]string, 0, len(r))
	for name, checks := range r {
		if len(checks) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Total returns the number of required checks across backends.
func (r Requirements) Total() int {
	n := 0
	for _, checks := range r {
		n += len(checks)
	}
	return n
}
