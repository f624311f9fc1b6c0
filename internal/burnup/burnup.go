package burnup

import (
	"fmt"

	"arpgen/internal/services"
)

// Thin reduces an ordered burnup sequence to every keepEvery-th point while
// always retaining the first and last points. A stride of 1 returns the
// sequence unchanged.
func Thin(points []float64, keepEvery int) ([]float64, error) {
	if keepEvery <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "", "",
			fmt.Sprintf("keep_every=%d must be an integer >0", keepEvery), nil)
	}

	thinned := make([]float64, 0, len(points))
	rm := 1
	for j, value := range points {
		keep := j == 0 || j == len(points)-1
		if !keep && rm >= keepEvery {
			keep = true
		}
		if keep {
			thinned = append(thinned, value)
			rm = 0
		}
		rm++
	}
	return thinned, nil
}

// PowerStep is one constant-power irradiation interval of a depletion history.
type PowerStep struct {
	Power float64 `json:"power"`
	Burn  float64 `json:"burn"`
}

// ConstantPowerSchedule converts cumulative burnups in GWd/MTHM into
// per-interval day durations at a constant specific power in MW/MTHM. The
// final interval is duplicated so the last burnup step has data on both
// sides, matching how depletion sequences consume the schedule.
func ConstantPowerSchedule(burnups []float64, specificPower float64) ([]PowerStep, error) {
	if specificPower <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "", "",
			fmt.Sprintf("specific power %g must be positive", specificPower), nil)
	}
	if len(burnups) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "", "",
			"at least one burnup step is required", nil)
	}
	if burnups[0] != 0 {
		return nil, services.Wrap(services.ErrConfiguration, "", "",
			"burnup step 0.0 GWd/MTHM must be included", nil)
	}

	days := make([]float64, len(burnups))
	for i, gwd := range burnups {
		days[i] = gwd * 1e3 / specificPower
	}

	if len(days) == 1 {
		return []PowerStep{{Power: specificPower, Burn: 0}}, nil
	}

	steps := make([]PowerStep, 0, len(days))
	for i := 0; i < len(days)-1; i++ {
		steps = append(steps, PowerStep{Power: specificPower, Burn: days[i+1] - days[i]})
	}
	steps = append(steps, PowerStep{Power: specificPower, Burn: days[len(days)-1] - days[len(days)-2]})
	return steps, nil
}
