package history_test

import (
	"errors"
	"math"
	"testing"

	"arpgen/internal/history"
	"arpgen/internal/services"
)

const infoTable = ` pos         time        power         flux      fluence       energy    initialhm  libpos  case  step  DCGNAB
   1  0.00000e+00  4.00000e+01  0.00000e+00  0.00000e+00  0.00000e+00  1.00000e+00       1     1     0  DC----
   2  2.16000e+07  4.00000e+01  3.00000e+14  6.48000e+21  8.64000e+03  1.00000e+00       2     1     1  DC----
   3  2.16000e+07  0.00000e+00  0.00000e+00  6.48000e+21  8.64000e+03  5.00000e-01       1     2     0  DC----
   4  4.32000e+07  4.00000e+01  3.00000e+14  1.29600e+22  1.72800e+04  1.00000e+00       3     1     2  DC----
`

func TestParse(t *testing.T) {
	steps, err := history.Parse(infoTable, 1)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps for case 1, got %d", len(steps))
	}

	if steps[0].Days != 0 || steps[0].Burnup != 0 {
		t.Fatalf("unexpected first step: %+v", steps[0])
	}
	if math.Abs(steps[1].Days-250) > 1e-9 {
		t.Fatalf("step 1 days = %g, want 250", steps[1].Days)
	}
	// 40 MW for 250 days over 1 MTIHM.
	if math.Abs(steps[1].Burnup-10) > 1e-9 {
		t.Fatalf("step 1 burnup = %g, want 10", steps[1].Burnup)
	}
	if math.Abs(steps[2].Burnup-20) > 1e-9 {
		t.Fatalf("step 2 burnup = %g, want 20", steps[2].Burnup)
	}

	for i, step := range steps {
		if step.Case != 1 {
			t.Fatalf("step %d carries case %d", i, step.Case)
		}
		if step.Step != i {
			t.Fatalf("step %d carries step index %d", i, step.Step)
		}
	}
	if steps[2].LibPos != 3 {
		t.Fatalf("step 2 libpos = %d, want 3", steps[2].LibPos)
	}
}

func TestParseFiltersCases(t *testing.T) {
	steps, err := history.Parse(infoTable, 2)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("expected 1 step for case 2, got %d", len(steps))
	}
	if steps[0].InitialHM != 0.5 {
		t.Fatalf("unexpected initial hm %g", steps[0].InitialHM)
	}
}

func TestParseMissingCase(t *testing.T) {
	_, err := history.Parse(infoTable, 7)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}
