// Package checkpoint persists evaluation records between runs.
//
// The on-disk format is a JSON array of records sorted by item id, readable by
// people and by downstream tools that never write it. Writes go through a
// temporary file and a rename, under a gofrs/flock advisory lock, and merge
// with whatever another process committed since the last read: a record
// stamped later on disk is kept over an older one in memory.
//
// Losing the checkpoint is never fatal. A missing or corrupt file loads as an
// empty store; a failed write leaves results in memory and marks the store
// degraded so the run can be reported unsaved.
package checkpoint
