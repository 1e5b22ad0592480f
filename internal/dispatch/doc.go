// Package dispatch runs pending evaluation work against the configured
// backends.
//
// Tasks are ordered so items sharing a group (and therefore a cacheable
// shared context) run together, then cut into sub-batches. Each backend has
// its own lane: a counting semaphore bounding in-flight calls, a rate governor
// shared by every worker of that backend, and a retry controller. After every
// sub-batch the merged records are flushed to the checkpoint store, so an
// interruption loses at most the calls of one sub-batch.
//
// Failures are recorded on the item and never abort the batch.
package dispatch
