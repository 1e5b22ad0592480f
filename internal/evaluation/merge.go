package evaluation

import "time"

// Partial is a set of check results produced by one backend call for one item.
type Partial struct {
	ItemID      string
	Fingerprint string
	ItemType    string
	Group       string
	Checks      map[string]CheckResult
}

// Merge folds partial into existing and returns the new record. The check map
// is the union of both inputs with partial winning on name collisions. When
// existing was produced for a different fingerprint it is discarded first.
// Score, status and missing backends are recomputed against req.
func Merge(existing *Record, partial Partial, req Requirements, now time.Time) Record {
	var out Record
	if existing != nil && existing.Fingerprint == partial.Fingerprint {
		out = existing.Clone()
	} else {
		out = Record{ItemID: partial.ItemID, Checks: map[string]CheckResult{}}
	}
	if out.Checks == nil {
		out.Checks = map[string]CheckResult{}
	}

	out.ItemID = partial.ItemID
	out.Fingerprint = partial.Fingerprint
	if partial.ItemType != "" {
		out.ItemType = partial.ItemType
	}
	if partial.Group != "" {
		out.Group = partial.Group
	}
	for name, result := range partial.Checks {
		out.Checks[name] = result
	}
	out.UpdatedAt = now.UTC()
	Refresh(&out, req)
	return out
}

// Refresh recomputes the derived fields of r.
func Refresh(r *Record, req Requirements) {
	r.Score = Score(r.Checks)
	v := Classify(r.Fingerprint, r, req, Policy{})
	r.Status = v.Class
	r.Missing = v.MissingBackends()
	if len(r.Missing) == 0 {
		r.Missing = nil
	}
}
