// Package arpinfo models the interpolation grid of a reactor library: the
// fuel-type-fixed axes, the per-point coordinate vectors and library paths
// addressed by flat row-major index, the burnup axis shared by every point,
// and the arpdata text serialization consumed by downstream interpolation
// tooling.
package arpinfo
