// Package composition reduces nuclide inventory snapshots into heavy-metal
// oxide breakdowns: per-element isotopic vectors, density fractions, derived
// molar masses, and the bulk density recorded in assembly manifests.
package composition
