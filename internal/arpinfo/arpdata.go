package arpinfo

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"arpgen/internal/services"
)

// Arpdata renders the grid into its archive manifest text: the assembly name,
// the axis and burnup cardinalities, the axis values, one coordinate row per
// point in flat-index order, and the shared burnup axis. The output is
// byte-stable for a fixed grid state and round-trips through Parse.
func (g *Grid) Arpdata() string {
	var b strings.Builder

	b.WriteByte('!')
	b.WriteString(g.Name)
	b.WriteByte('\n')

	for _, values := range g.axisValues {
		b.WriteString(strconv.Itoa(len(values)))
		b.WriteByte(' ')
	}
	b.WriteString(strconv.Itoa(len(g.burnups)))
	b.WriteByte('\n')

	for _, values := range g.axisValues {
		writeFloatLine(&b, values)
	}

	for i := range g.points {
		b.WriteByte('\'')
		b.WriteString(g.points[i].Lib)
		b.WriteByte('\'')
		for _, value := range g.points[i].Coords {
			b.WriteByte(' ')
			b.WriteString(floatString(value))
		}
		b.WriteByte('\n')
	}

	writeFloatLine(&b, g.burnups)

	return b.String()
}

func writeFloatLine(b *strings.Builder, values []float64) {
	for i, value := range values {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(floatString(value))
	}
	b.WriteByte('\n')
}

// Parse reconstructs a grid from archive manifest text. The fuel type is
// inferred from the number of axes. Coordinate rows must match the values
// derived from each point's flat index.
func Parse(text string) (*Grid, error) {
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	next := func() (string, bool) {
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" {
				return line, true
			}
		}
		return "", false
	}

	header, ok := next()
	if !ok || !strings.HasPrefix(header, "!") {
		return nil, fmt.Errorf("arpdata: expected !name header, got %q", header)
	}
	name := strings.TrimPrefix(header, "!")

	countsLine, ok := next()
	if !ok {
		return nil, fmt.Errorf("arpdata: missing dimension counts")
	}
	fields := strings.Fields(countsLine)
	counts := make([]int, len(fields))
	for i, field := range fields {
		value, err := strconv.Atoi(field)
		if err != nil || value <= 0 {
			return nil, fmt.Errorf("arpdata: bad dimension count %q", field)
		}
		counts[i] = value
	}

	var fuelType FuelType
	switch len(counts) {
	case 3:
		fuelType = UOX
	case 4:
		fuelType = MOX
	default:
		return nil, fmt.Errorf("arpdata: %d dimension counts do not match a known fuel type", len(counts))
	}
	axes := fuelType.Axes()

	axisValues := make([][]float64, len(axes))
	total := 1
	for d := range axes {
		line, ok := next()
		if !ok {
			return nil, fmt.Errorf("arpdata: missing values for axis %s", axes[d])
		}
		values, err := parseFloatLine(line, counts[d])
		if err != nil {
			return nil, fmt.Errorf("arpdata: axis %s: %w", axes[d], err)
		}
		axisValues[d] = values
		total *= counts[d]
	}

	grid := &Grid{
		Name:       name,
		FuelType:   fuelType,
		axes:       axes,
		axisValues: axisValues,
		points:     make([]Point, total),
	}

	for i := 0; i < total; i++ {
		line, ok := next()
		if !ok {
			return nil, fmt.Errorf("arpdata: missing coordinate row for point %d", i)
		}
		rowFields := strings.Fields(line)
		if len(rowFields) != 1+len(axes) {
			return nil, fmt.Errorf("arpdata: point %d: expected library name and %d coordinates, got %q", i, len(axes), line)
		}
		lib := strings.Trim(rowFields[0], "'")
		if lib == "" {
			return nil, fmt.Errorf("arpdata: point %d: empty library name", i)
		}
		coords := make([]float64, len(axes))
		for d := range axes {
			value, err := strconv.ParseFloat(rowFields[1+d], 64)
			if err != nil {
				return nil, fmt.Errorf("arpdata: point %d: bad coordinate %q", i, rowFields[1+d])
			}
			coords[d] = value
		}
		expected := grid.coordsAt(i)
		for d := range coords {
			if coords[d] != expected[d] {
				return nil, services.Wrap(services.ErrConsistency, "", "",
					fmt.Sprintf("arpdata point %d coordinates %v do not match grid position %v", i, coords, expected), nil)
			}
		}
		grid.points[i] = Point{Coords: coords, Lib: lib, Perm: i}
	}

	burnupLine, ok := next()
	if !ok {
		return nil, fmt.Errorf("arpdata: missing burnup axis")
	}
	burnups, err := parseFloatLine(burnupLine, counts[len(counts)-1])
	if err != nil {
		return nil, fmt.Errorf("arpdata: burnup axis: %w", err)
	}
	grid.burnups = burnups

	if line, ok := next(); ok {
		return nil, fmt.Errorf("arpdata: unexpected trailing content %q", line)
	}

	return grid, nil
}

func (g *Grid) coordsAt(idx int) []float64 {
	coords := make([]float64, len(g.axisValues))
	for d := len(g.axisValues) - 1; d >= 0; d-- {
		n := len(g.axisValues[d])
		coords[d] = g.axisValues[d][idx%n]
		idx /= n
	}
	return coords
}

func parseFloatLine(line string, want int) ([]float64, error) {
	fields := strings.Fields(line)
	if len(fields) != want {
		return nil, fmt.Errorf("expected %d values, got %d", want, len(fields))
	}
	values := make([]float64, len(fields))
	for i, field := range fields {
		value, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("bad value %q", field)
		}
		values[i] = value
	}
	return values, nil
}
