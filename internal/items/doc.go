// Package items loads the tabular item source. Each row becomes an Item with a
// stable id, an optional type and grouping key, the shared context passage,
// and two ordered field lists: the content sent to backends and the covered
// fields hashed by the fingerprinter.
package items
