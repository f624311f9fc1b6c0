// Package services defines shared utilities consumed by the assembly
// pipeline and external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, point indices, and stage names for
//     logging and tracing.
//   - Structured error markers plus the Wrap helper that keep failure
//     classification consistent (pre-flight configuration/consistency errors
//     versus per-point tool failures).
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability) stays uniform across stages.
package services
