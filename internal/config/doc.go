// Package config loads, normalizes, and validates arpgen configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours ARPGEN_-prefixed environment
// overrides. The Config type centralizes every knob the CLI and assembly
// pipeline need, allowing work directories, OBIWAN invocation settings, and
// library parameters to be discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical fuel types, and clear validation errors.
package config
