// Package notifications publishes run milestones to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// the runner can publish unconditionally.
package notifications
