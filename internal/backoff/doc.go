// Package backoff implements the retry loop wrapped around every backend call.
//
// Retries are decided from error tags alone (see services.KindOf): throttled
// and transient failures are retried with exponential backoff and jitter,
// everything else surfaces immediately. A response that arrives but cannot be
// decoded is not retried; it gets a single salvage pass instead.
package backoff
