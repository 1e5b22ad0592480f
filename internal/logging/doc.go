// Package logging builds the structured slog loggers used by quizqa.
//
// Two formats are supported: a human-oriented console handler that prints the
// component, backend and item as a prefix and key=value pairs after the
// message, and a JSON
// handler for machine ingestion. Field keys live in context.go so that every
// package tags item, backend and run identifiers the same way, and
// WarnWithContext gives degraded-mode warnings a stable event_type.
package logging
