package history

import (
	"fmt"
	"strconv"
	"strings"

	"arpgen/internal/services"
)

// Step is one irradiation history row for a single depletion case, with
// burnup accumulated across the case's rows in GWd/MTIHM.
type Step struct {
	Days      float64 `json:"days"`
	Power     float64 `json:"power"`
	Flux      float64 `json:"flux"`
	Fluence   float64 `json:"fluence"`
	Energy    float64 `json:"energy"`
	InitialHM float64 `json:"initialhm"`
	LibPos    int     `json:"libpos"`
	Case      int     `json:"case"`
	Step      int     `json:"step"`
	Burnup    float64 `json:"burnup"`
}

// Parse extracts the rows for caseID from a concentration-file info table.
// The table is a header line starting with "pos" followed by whitespace-
// separated numeric rows (a trailing state-flag column may follow the
// numerics). Times are seconds on the wire and days on the Step.
func Parse(text string, caseID int) ([]Step, error) {
	var steps []Step
	lastDays := 0.0
	burnup := 0.0
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 10 || fields[0] == "pos" {
			continue
		}
		values := make([]float64, 10)
		numeric := true
		for i := range values {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				numeric = false
				break
			}
			values[i] = v
		}
		if !numeric || int(values[8]) != caseID {
			continue
		}
		days := values[1] / 86400.0
		if values[6] > 0 {
			burnup += values[2] * (days - lastDays) / values[6] / 1000.0
		}
		lastDays = days
		steps = append(steps, Step{
			Days:      days,
			Power:     values[2],
			Flux:      values[3],
			Fluence:   values[4],
			Energy:    values[5],
			InitialHM: values[6],
			LibPos:    int(values[7]),
			Case:      caseID,
			Step:      int(values[9]),
			Burnup:    burnup,
		})
	}
	if len(steps) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "", "",
			fmt.Sprintf("no history rows for case %d", caseID), nil)
	}
	return steps, nil
}
