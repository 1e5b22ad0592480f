// Package backend defines the contract between the dispatcher and the external
// services that evaluate items, and the response format they must return.
//
// Responses are decoded in two stages. Decode is strict and validates against
// a JSON schema built for the requested checks. Salvage is the one lenient
// retry on the same text; it recovers what it can from fenced, wrapped, or
// loosely named output.
package backend
