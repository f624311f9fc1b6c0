package burnup

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"arpgen/internal/services"
)

// ParseSimOutput extracts the library burnup column from depletion simulation
// output text. The values appear as the last column of the sub-interval table
// introduced by a "Library Burnup" header; the table ends at the first blank
// line after data rows begin.
func ParseSimOutput(r io.Reader) ([]float64, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var burnups []float64
	inTable := false
	for scanner.Scan() {
		line := scanner.Text()
		if !inTable {
			if strings.Contains(line, "Library Burnup") {
				inTable = true
			}
			continue
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if len(burnups) > 0 {
				break
			}
			continue
		}
		if strings.Trim(trimmed, "- ") == "" {
			continue
		}

		fields := strings.Fields(trimmed)
		value, err := strconv.ParseFloat(fields[len(fields)-1], 64)
		if err != nil {
			// Header continuation rows (units and labels) precede the data.
			if len(burnups) > 0 {
				break
			}
			continue
		}
		burnups = append(burnups, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan simulation output: %w", err)
	}

	if len(burnups) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "", "",
			"no library burnup table found in simulation output", nil)
	}
	return burnups, nil
}

// ParseSimOutputFile reads the named simulation output file and extracts its
// burnup list.
func ParseSimOutputFile(path string) ([]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open simulation output %s: %w", path, err)
	}
	defer file.Close()

	burnups, err := ParseSimOutput(file)
	if err != nil {
		return nil, fmt.Errorf("parse simulation output %s: %w", path, err)
	}
	return burnups, nil
}
