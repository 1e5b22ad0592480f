// Package checks holds the configured quality checks and turns a set of
// pending checks for one item into a backend request.
package checks
