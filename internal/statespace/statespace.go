package statespace

import "sort"

// Axes maps an axis name to the set of values it takes in the state space.
type Axes map[string][]float64

// StatePoint is one combination of axis values defining a single simulation.
type StatePoint map[string]float64

// AxisNames returns the axis names in lexicographic order, the canonical
// dimension order used when expanding permutations.
func (a Axes) AxisNames() []string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Expand produces the dense Cartesian product of the axes as a list of state
// points. Axis values are sorted ascending before the product is taken, so
// the permutation order is deterministic regardless of input ordering: the
// lexicographically first axis varies slowest and the last axis fastest.
// Zero axes, or any axis with zero values, yields zero permutations.
func Expand(axes Axes) []StatePoint {
	if len(axes) == 0 {
		return nil
	}

	names := axes.AxisNames()
	sorted := make([][]float64, len(names))
	total := 1
	for i, name := range names {
		values := append([]float64(nil), axes[name]...)
		sort.Float64s(values)
		if len(values) == 0 {
			return nil
		}
		sorted[i] = values
		total *= len(values)
	}

	points := make([]StatePoint, 0, total)
	indices := make([]int, len(names))
	for {
		point := make(StatePoint, len(names))
		for i, name := range names {
			point[name] = sorted[i][indices[i]]
		}
		points = append(points, point)

		pos := len(indices) - 1
		for pos >= 0 {
			indices[pos]++
			if indices[pos] < len(sorted[pos]) {
				break
			}
			indices[pos] = 0
			pos--
		}
		if pos < 0 {
			return points
		}
	}
}
