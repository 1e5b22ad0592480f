// Package anthropic is the evaluation backend for the Anthropic Messages API,
// built on the official SDK with SDK-level retries turned off.
package anthropic
