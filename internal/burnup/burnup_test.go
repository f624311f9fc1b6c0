package burnup_test

import (
	"errors"
	"math"
	"strings"
	"testing"

	"arpgen/internal/burnup"
	"arpgen/internal/services"
)

func TestThinKeepsEndpoints(t *testing.T) {
	input := []float64{0, 10, 20, 30, 40}
	got, err := burnup.Thin(input, 2)
	if err != nil {
		t.Fatalf("Thin returned error: %v", err)
	}
	want := []float64{0, 20, 40}
	if len(got) != len(want) {
		t.Fatalf("Thin = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Thin = %v, want %v", got, want)
		}
	}
}

func TestThinStrideOneIsIdentity(t *testing.T) {
	input := []float64{0, 5.5, 11, 16.5}
	got, err := burnup.Thin(input, 1)
	if err != nil {
		t.Fatalf("Thin returned error: %v", err)
	}
	if len(got) != len(input) {
		t.Fatalf("expected identity, got %v", got)
	}
	for i := range input {
		if got[i] != input[i] {
			t.Fatalf("expected identity, got %v", got)
		}
	}
}

func TestThinSingleElement(t *testing.T) {
	got, err := burnup.Thin([]float64{42}, 3)
	if err != nil {
		t.Fatalf("Thin returned error: %v", err)
	}
	if len(got) != 1 || got[0] != 42 {
		t.Fatalf("expected single element retained, got %v", got)
	}
}

func TestThinLengthMonotonicInStride(t *testing.T) {
	input := make([]float64, 17)
	for i := range input {
		input[i] = float64(i)
	}
	prev := len(input) + 1
	for stride := 1; stride <= 8; stride++ {
		got, err := burnup.Thin(input, stride)
		if err != nil {
			t.Fatalf("Thin stride=%d returned error: %v", stride, err)
		}
		if got[0] != input[0] || got[len(got)-1] != input[len(input)-1] {
			t.Fatalf("stride=%d lost an endpoint: %v", stride, got)
		}
		if len(got) > prev {
			t.Fatalf("length grew from %d to %d at stride %d", prev, len(got), stride)
		}
		prev = len(got)
	}
}

func TestThinRejectsNonPositiveStride(t *testing.T) {
	for _, stride := range []int{0, -1} {
		if _, err := burnup.Thin([]float64{0, 1}, stride); !errors.Is(err, services.ErrConfiguration) {
			t.Fatalf("stride=%d: expected configuration error, got %v", stride, err)
		}
	}
}

func TestConstantPowerSchedule(t *testing.T) {
	steps, err := burnup.ConstantPowerSchedule([]float64{0, 10, 20}, 40)
	if err != nil {
		t.Fatalf("ConstantPowerSchedule returned error: %v", err)
	}
	// 10 GWd/MTHM at 40 MW/MTHM is 250 days per interval, with the final
	// interval duplicated.
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %v", steps)
	}
	for i, step := range steps {
		if step.Power != 40 {
			t.Fatalf("step %d power = %g, want 40", i, step.Power)
		}
		if math.Abs(step.Burn-250) > 1e-9 {
			t.Fatalf("step %d burn = %g, want 250", i, step.Burn)
		}
	}
}

func TestConstantPowerScheduleSingleStep(t *testing.T) {
	steps, err := burnup.ConstantPowerSchedule([]float64{0}, 38)
	if err != nil {
		t.Fatalf("ConstantPowerSchedule returned error: %v", err)
	}
	if len(steps) != 1 || steps[0].Burn != 0 || steps[0].Power != 38 {
		t.Fatalf("unexpected schedule: %v", steps)
	}
}

func TestConstantPowerScheduleRequiresZeroStart(t *testing.T) {
	_, err := burnup.ConstantPowerSchedule([]float64{5, 10}, 40)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "0.0 GWd/MTHM") {
		t.Fatalf("unexpected message: %v", err)
	}
}

const sampleOutput = `
 some preamble text

 Sub-Interval   Depletion   Sub-interval   Specific      Burn Length  Decay Length   Library Burnup
      No.       Interval    in interval    Power(MW/MTIHM)  (days)       (days)        (MWd/MTIHM)
 ----------  -----------  ------------  --------------  -----------  ------------  --------------
       0         ****          ****           ****          ****          ****        0.00000E+00
       1            1             1           40.000        250.00        0.0000      1.00000E+04
       2            1             2           40.000        250.00        0.0000      2.00000E+04

 trailing section
`

func TestParseSimOutput(t *testing.T) {
	got, err := burnup.ParseSimOutput(strings.NewReader(sampleOutput))
	if err != nil {
		t.Fatalf("ParseSimOutput returned error: %v", err)
	}
	want := []float64{0, 1e4, 2e4}
	if len(got) != len(want) {
		t.Fatalf("ParseSimOutput = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ParseSimOutput = %v, want %v", got, want)
		}
	}
}

func TestParseSimOutputMissingTable(t *testing.T) {
	_, err := burnup.ParseSimOutput(strings.NewReader("no burnup data here\n"))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}
