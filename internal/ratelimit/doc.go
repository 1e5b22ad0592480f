// Package ratelimit provides the per-backend adaptive admission control used
// by the dispatcher. A Governor is an explicit value owned by the caller, one
// per backend; nothing in this package holds package-level state.
package ratelimit
