// Package burnup implements burnup-axis arithmetic for reactor library
// assembly: thinning an ordered burnup sequence while preserving its
// endpoints, converting cumulative burnups into constant-power irradiation
// schedules, and extracting the reported burnup table from depletion
// simulation output.
package burnup
