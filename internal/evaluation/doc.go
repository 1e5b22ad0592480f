// Package evaluation defines the per-item record model and the two pure
// functions that drive resume: Classify decides what work an item still
// needs, and Merge folds a backend's partial results into the stored record.
//
// Records are keyed by item id and carry the fingerprint they were produced
// for. A fingerprint mismatch makes the record stale; the next merge starts
// from an empty check set instead of mixing verdicts for different content.
package evaluation
