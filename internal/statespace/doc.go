// Package statespace expands named interpolation axes into the dense
// Cartesian product of state points and records the resulting permutations
// in a JSON manifest consumed by the assembly pipeline.
package statespace
