package evaluation

import (
	"reflect"
	"testing"
	"time"
)

var testReq = Requirements{
	"alpha": {"answer_key", "distractors"},
	"beta":  {"grounded"},
}

func pass(backend string) CheckResult {
	return CheckResult{Score: 1, Passed: true, Backend: backend, Rationale: "ok"}
}

func fail(backend string) CheckResult {
	return CheckResult{Score: 0, Passed: false, Backend: backend, Rationale: "no"}
}

func TestClassifyNewAndStale(t *testing.T) {
	v := Classify("fp1", nil, testReq, Policy{})
	if v.Class != New {
		t.Fatalf("expected New, got %s", v.Class)
	}
	if got := v.MissingBackends(); !reflect.DeepEqual(got, []string{"alpha", "beta"}) {
		t.Fatalf("unexpected missing backends %v", got)
	}

	rec := &Record{ItemID: "q1", Fingerprint: "fp0", Checks: map[string]CheckResult{
		"answer_key": pass("alpha"), "distractors": pass("alpha"), "grounded": pass("beta"),
	}}
	v = Classify("fp1", rec, testReq, Policy{})
	if v.Class != Stale {
		t.Fatalf("expected Stale for changed fingerprint, got %s", v.Class)
	}
	if v.Pending.Total() != 3 {
		t.Fatalf("stale item must re-run every check, got %v", v.Pending)
	}
}

func TestClassifyNeedsBackendAndComplete(t *testing.T) {
	rec := &Record{ItemID: "q1", Fingerprint: "fp", Checks: map[string]CheckResult{
		"answer_key": pass("alpha"), "distractors": fail("alpha"),
	}}
	v := Classify("fp", rec, testReq, Policy{})
	if v.Class != NeedsBackend {
		t.Fatalf("expected NeedsBackend, got %s", v.Class)
	}
	if got := v.MissingBackends(); !reflect.DeepEqual(got, []string{"beta"}) {
		t.Fatalf("expected only beta missing, got %v", got)
	}

	rec.Checks["grounded"] = pass("beta")
	if v := Classify("fp", rec, testReq, Policy{}); v.Class != Complete {
		t.Fatalf("expected Complete, got %s (%v)", v.Class, v.Pending)
	}
}

func TestClassifyFailurePolicy(t *testing.T) {
	rec := &Record{ItemID: "q1", Fingerprint: "fp", Checks: map[string]CheckResult{
		"answer_key":  Failed("alpha", FailureTransient, "retries exhausted", true),
		"distractors": Failed("alpha", FailureUnparseable, "unparseable response", false),
		"grounded":    Failed("beta", FailurePermanent, "400 bad request", false),
	}}

	v := Classify("fp", rec, testReq, Policy{})
	if v.Class != NeedsBackend {
		t.Fatalf("retryable failure must count as missing, got %s", v.Class)
	}
	if !reflect.DeepEqual(v.Pending, Requirements{"alpha": {"answer_key"}}) {
		t.Fatalf("unexpected pending %v", v.Pending)
	}

	v = Classify("fp", rec, testReq, Policy{RetryFailed: true})
	if v.Pending.Total() != 3 {
		t.Fatalf("retry-failed must re-run every failed check, got %v", v.Pending)
	}
}

func TestClassifyCheckMovedToOtherBackend(t *testing.T) {
	rec := &Record{ItemID: "q1", Fingerprint: "fp", Checks: map[string]CheckResult{
		"answer_key": pass("alpha"), "distractors": pass("alpha"), "grounded": pass("alpha"),
	}}

	v := Classify("fp", rec, testReq, Policy{})
	if v.Class != NeedsBackend {
		t.Fatalf("result from the previous owner must not count, got %s", v.Class)
	}
	if !reflect.DeepEqual(v.Pending, Requirements{"beta": {"grounded"}}) {
		t.Fatalf("unexpected pending %v", v.Pending)
	}

	merged := Merge(rec, Partial{ItemID: "q1", Fingerprint: "fp", Checks: map[string]CheckResult{
		"grounded": pass("beta"),
	}}, testReq, time.Now())
	if merged.Status != Complete || merged.Checks["grounded"].Backend != "beta" {
		t.Fatalf("re-run by the new owner should complete the item, got %s %+v", merged.Status, merged.Checks["grounded"])
	}
}

func TestMergeUnionAndOverwrite(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	existing := &Record{ItemID: "q1", Fingerprint: "fp", Checks: map[string]CheckResult{
		"answer_key":  pass("alpha"),
		"distractors": fail("alpha"),
	}}
	partial := Partial{ItemID: "q1", Fingerprint: "fp", Checks: map[string]CheckResult{
		"distractors": pass("alpha"),
		"grounded":    fail("beta"),
	}}

	got := Merge(existing, partial, testReq, now)

	for _, name := range []string{"answer_key", "distractors", "grounded"} {
		if _, ok := got.Checks[name]; !ok {
			t.Fatalf("merged record lost check %q", name)
		}
	}
	if !got.Checks["distractors"].Passed {
		t.Fatal("partial result must supersede the existing one")
	}
	if got.Score != 2.0/3.0 {
		t.Fatalf("expected score 2/3, got %v", got.Score)
	}
	if got.Status != Complete || got.Missing != nil {
		t.Fatalf("expected Complete with no missing backends, got %s %v", got.Status, got.Missing)
	}
	if !got.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected UpdatedAt %v", got.UpdatedAt)
	}
	if len(existing.Checks) != 2 || existing.Checks["distractors"].Passed {
		t.Fatal("merge must not mutate the existing record")
	}
}

func TestMergeTransitionsNeedsBackendToComplete(t *testing.T) {
	now := time.Now()
	first := Merge(nil, Partial{ItemID: "q1", Fingerprint: "fp", Checks: map[string]CheckResult{
		"answer_key": pass("alpha"), "distractors": pass("alpha"),
	}}, testReq, now)
	if first.Status != NeedsBackend || !reflect.DeepEqual(first.Missing, []string{"beta"}) {
		t.Fatalf("expected NeedsBackend(beta), got %s %v", first.Status, first.Missing)
	}
	second := Merge(&first, Partial{ItemID: "q1", Fingerprint: "fp", Checks: map[string]CheckResult{
		"grounded": pass("beta"),
	}}, testReq, now)
	if second.Status != Complete {
		t.Fatalf("expected Complete, got %s", second.Status)
	}
	if second.Score != 1 {
		t.Fatalf("expected score 1, got %v", second.Score)
	}
}

func TestMergeDiscardsStaleRecord(t *testing.T) {
	existing := &Record{ItemID: "q1", Fingerprint: "old", Checks: map[string]CheckResult{
		"answer_key": pass("alpha"), "distractors": pass("alpha"), "grounded": pass("beta"),
	}}
	got := Merge(existing, Partial{ItemID: "q1", Fingerprint: "new", Checks: map[string]CheckResult{
		"grounded": fail("beta"),
	}}, testReq, time.Now())
	if len(got.Checks) != 1 {
		t.Fatalf("stale checks must be dropped, got %v", got.CheckNames())
	}
	if got.Fingerprint != "new" || got.Status != NeedsBackend {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestMergeNeverLosesChecks(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e"}
	for mask := 0; mask < 1<<len(names); mask++ {
		for other := 0; other < 1<<len(names); other++ {
			existing := &Record{ItemID: "x", Fingerprint: "fp", Checks: map[string]CheckResult{}}
			partial := Partial{ItemID: "x", Fingerprint: "fp", Checks: map[string]CheckResult{}}
			for i, n := range names {
				if mask&(1<<i) != 0 {
					existing.Checks[n] = fail("alpha")
				}
				if other&(1<<i) != 0 {
					partial.Checks[n] = pass("alpha")
				}
			}
			got := Merge(existing, partial, Requirements{"alpha": names}, time.Now())
			for n := range existing.Checks {
				if _, ok := got.Checks[n]; !ok {
					t.Fatalf("lost existing check %q (mask %b/%b)", n, mask, other)
				}
			}
			for n := range partial.Checks {
				if !got.Checks[n].Passed {
					t.Fatalf("partial check %q not applied (mask %b/%b)", n, mask, other)
				}
			}
		}
	}
}

func TestScoreEmpty(t *testing.T) {
	if Score(nil) != 0 {
		t.Fatal("empty check set must score 0")
	}
}
