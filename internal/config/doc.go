// Package config loads, normalizes, and validates quizqa configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and resolves backend API keys from the
// environment variable each backend names. Per-backend throughput knobs get
// kind-specific defaults so a minimal config only names the backends and
// the checks they run.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
