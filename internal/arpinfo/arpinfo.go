package arpinfo

import (
	"fmt"
	"sort"
	"strconv"

	"arpgen/internal/services"
	"arpgen/internal/statespace"
)

// FuelType selects the interpolation axes of a reactor library.
type FuelType string

const (
	UOX FuelType = "UOX"
	MOX FuelType = "MOX"
)

// Axes returns the ordered interpolation axis names for the fuel type. The
// order is fixed and defines the dimension order of flat library indices,
// interpolation tags, and the arpdata serialization.
func (f FuelType) Axes() []string {
	switch f {
	case UOX:
		return []string{"enrichment", "mod_dens"}
	case MOX:
		return []string{"pu239_frac", "pu_frac", "mod_dens"}
	}
	return nil
}

// Source describes one permutation feeding the grid: its position in the
// permutation manifest, its state values, and the origin library produced
// by the simulation.
type Source struct {
	Perm      int
	State     statespace.StatePoint
	OriginLib string
}

// Point is one grid point in flat-index order.
type Point struct {
	// Coords is the coordinate vector aligned to the grid axes.
	Coords []float64
	// OriginLib is the path of the raw simulation library.
	OriginLib string
	// Lib is the canonical library filename, assigned by SetCanonicalFilenames.
	Lib string
	// Perm is the index of the permutation record that produced this point.
	Perm int
}

// Grid is the interpolation grid of a reactor library: fixed axes, one point
// per state-space permutation in flat row-major order, and a burnup axis
// shared by every point.
type Grid struct {
	Name     string
	FuelType FuelType

	axes       []string
	axisValues [][]float64
	points     []Point
	burnups    []float64
}

// New builds a grid from permutation sources. dimMap translates axis names to
// the state keys used by the permutations; axes absent from the map use their
// own name as the key. The sources must tile the axes densely: every
// combination of observed axis values occurs exactly once.
func New(name string, fuelType FuelType, sources []Source, dimMap map[string]string) (*Grid, error) {
	axes := fuelType.Axes()
	if axes == nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "",
			fmt.Sprintf("unknown fuel_type %q (only UOX/MOX is supported)", fuelType), nil)
	}
	if len(sources) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "", "",
			"at least one permutation is required", nil)
	}

	coords := make([][]float64, len(sources))
	for i, src := range sources {
		vector := make([]float64, len(axes))
		for d, axis := range axes {
			key := axis
			if mapped, ok := dimMap[axis]; ok {
				key = mapped
			}
			value, ok := src.State[key]
			if !ok {
				return nil, services.Wrap(services.ErrConfiguration, "", "",
					fmt.Sprintf("axis %q (state key %q) missing from permutation %d", axis, key, src.Perm), nil)
			}
			vector[d] = value
		}
		coords[i] = vector
	}

	axisValues := make([][]float64, len(axes))
	total := 1
	for d := range axes {
		seen := make(map[float64]struct{})
		var values []float64
		for _, vector := range coords {
			if _, ok := seen[vector[d]]; ok {
				continue
			}
			seen[vector[d]] = struct{}{}
			values = append(values, vector[d])
		}
		sort.Float64s(values)
		axisValues[d] = values
		total *= len(values)
	}

	if len(sources) != total {
		return nil, services.Wrap(services.ErrConsistency, "", "",
			fmt.Sprintf("%d permutations do not tile the %d-point grid spanned by their axis values", len(sources), total), nil)
	}

	grid := &Grid{
		Name:       name,
		FuelType:   fuelType,
		axes:       axes,
		axisValues: axisValues,
		points:     make([]Point, total),
	}

	occupied := make([]bool, total)
	for i, src := range sources {
		idx := grid.flatIndex(coords[i])
		if occupied[idx] {
			return nil, services.Wrap(services.ErrConsistency, "", "",
				fmt.Sprintf("permutations %s and %s occupy the same grid cell %v",
					grid.points[idx].OriginLib, src.OriginLib, coords[i]), nil)
		}
		occupied[idx] = true
		grid.points[idx] = Point{
			Coords:    coords[i],
			OriginLib: src.OriginLib,
			Perm:      src.Perm,
		}
	}

	return grid, nil
}

func (g *Grid) flatIndex(coords []float64) int {
	idx := 0
	for d, value := range coords {
		pos := 0
		for i, candidate := range g.axisValues[d] {
			if candidate == value {
				pos = i
				break
			}
		}
		idx = idx*len(g.axisValues[d]) + pos
	}
	return idx
}

// NumPoints returns the number of grid points.
func (g *Grid) NumPoints() int { return len(g.points) }

// Axes returns the ordered interpolation axis names.
func (g *Grid) Axes() []string {
	return append([]string(nil), g.axes...)
}

// CoordsOf returns the axis-ordered coordinate vector of point i.
func (g *Grid) CoordsOf(i int) []float64 {
	return append([]float64(nil), g.points[i].Coords...)
}

// OriginOf returns the origin library path of point i.
func (g *Grid) OriginOf(i int) string { return g.points[i].OriginLib }

// LibOf returns the canonical library filename of point i. It is empty until
// SetCanonicalFilenames has run.
func (g *Grid) LibOf(i int) string { return g.points[i].Lib }

// PermOf returns the permutation manifest index of point i.
func (g *Grid) PermOf(i int) int { return g.points[i].Perm }

// Burnups returns the shared burnup axis.
func (g *Grid) Burnups() []float64 {
	return append([]float64(nil), g.burnups...)
}

// SetBurnups replaces the shared burnup axis. Point count, coordinates, and
// canonical filenames are unaffected.
func (g *Grid) SetBurnups(burnups []float64) {
	g.burnups = append([]float64(nil), burnups...)
}

// Thinned returns a snapshot of the grid carrying the supplied burnup axis in
// place of the current one. The source grid is left untouched.
func (g *Grid) Thinned(burnups []float64) *Grid {
	clone := &Grid{
		Name:       g.Name,
		FuelType:   g.FuelType,
		axes:       append([]string(nil), g.axes...),
		axisValues: make([][]float64, len(g.axisValues)),
		points:     make([]Point, len(g.points)),
		burnups:    append([]float64(nil), burnups...),
	}
	for d, values := range g.axisValues {
		clone.axisValues[d] = append([]float64(nil), values...)
	}
	for i, point := range g.points {
		clone.points[i] = Point{
			Coords:    append([]float64(nil), point.Coords...),
			OriginLib: point.OriginLib,
			Lib:       point.Lib,
			Perm:      point.Perm,
		}
	}
	return clone
}

// SetCanonicalFilenames assigns each point its deterministic library
// filename, derived from the grid name, the zero-padded flat index, and the
// extension. Re-invocation yields identical names.
func (g *Grid) SetCanonicalFilenames(extension string) {
	width := len(strconv.Itoa(len(g.points) - 1))
	for i := range g.points {
		g.points[i].Lib = fmt.Sprintf("%s_%0*d%s", g.Name, width, i, extension)
	}
}

// InterpVars returns the axis name to coordinate mapping of point i.
func (g *Grid) InterpVars(i int) map[string]float64 {
	vars := make(map[string]float64, len(g.axes))
	for d, axis := range g.axes {
		vars[axis] = g.points[i].Coords[d]
	}
	return vars
}

// InterpTags renders the interpolation tags of point i as a comma-separated
// axis=value list in axis order.
func (g *Grid) InterpTags(i int) string {
	tags := ""
	for d, axis := range g.axes {
		if d > 0 {
			tags += ","
		}
		tags += axis + "=" + floatString(g.points[i].Coords[d])
	}
	return tags
}

// IDTags renders the identity tags shared by every point.
func (g *Grid) IDTags() string {
	return fmt.Sprintf("assembly_type=%s,fuel_type=%s", g.Name, g.FuelType)
}

// Space returns the axis name to sorted axis values mapping.
func (g *Grid) Space() map[string][]float64 {
	space := make(map[string][]float64, len(g.axes))
	for d, axis := range g.axes {
		space[axis] = append([]float64(nil), g.axisValues[d]...)
	}
	return space
}

func floatString(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
