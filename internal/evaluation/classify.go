package evaluation

import "sort"

// Policy adjusts which stored results count as present.
type Policy struct {
	// RetryFailed treats permanent and unparseable failures as missing too.
	RetryFailed bool
}

// Verdict is the outcome of classifying one item against its record.
type Verdict struct {
	Class Classification
	// Pending maps backend name to the checks that backend must (re)run.
	Pending Requirements
}

// MissingBackends returns the backends with pending checks, sorted.
func (v Verdict) MissingBackends() []string {
	return v.Pending.Backends()
}

// Classify compares the item's current fingerprint and requirements with its
// stored record. A stored check only satisfies a requirement when it was
// produced by the backend that now owns it.
func Classify(fingerprint string, record *Record, req Requirements, policy Policy) Verdict {
	if record == nil {
		return Verdict{Class: New, Pending: copyRequirements(req)}
	}
	if record.Fingerprint != fingerprint {
		return Verdict{Class: Stale, Pending: copyRequirements(req)}
	}

	pending := Requirements{}
	for backend, checks := range req {
		for _, name := range checks {
			result, ok := record.Checks[name]
			if ok && result.Backend == backend && present(result, policy) {
				continue
			}
			pending[backend] = append(pending[backend], name)
		}
	}
	if len(pending) == 0 {
		return Verdict{Class: Complete, Pending: Requirements{}}
	}
	for backend := range pending {
		sort.Strings(pending[backend])
	}
	return Verdict{Class: NeedsBackend, Pending: pending}
}

func present(result CheckResult, policy Policy) bool {
	if result.Failure == FailureNone {
		return true
	}
	if result.Retryable {
		return false
	}
	return !policy.RetryFailed
}

func copyRequirements(req Requirements) Requirements {
	out := make(Requirements, len(req))
	for backend, checks := range req {
		if len(checks) == 0 {
			continue
		}
		cp := append([]string(nil), checks...)
		sort.Strings(cp)
		out[backend] = cp
	}
	return out
}
