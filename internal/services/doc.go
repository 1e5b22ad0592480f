// Package services holds the cross-cutting contracts shared by backend
// adapters and the evaluation engine.
//
// errors.go defines the sentinel markers that classify every failure as
// throttled, transient, malformed or permanent. Adapters tag errors at the
// wire boundary and the engine only ever inspects tags through KindOf, never
// error strings. context.go carries item, backend, run and correlation
// identifiers so log lines emitted deep inside a call can be attributed.
package services
