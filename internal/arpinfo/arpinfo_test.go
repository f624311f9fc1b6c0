package arpinfo_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"arpgen/internal/arpinfo"
	"arpgen/internal/services"
	"arpgen/internal/statespace"
)

func uoxSources() []arpinfo.Source {
	points := statespace.Expand(statespace.Axes{
		"enrichment": {1.5, 3.0, 4.5},
		"mod_dens":   {0.4, 0.7},
	})
	sources := make([]arpinfo.Source, len(points))
	for i, state := range points {
		sources[i] = arpinfo.Source{
			Perm:      i,
			State:     state,
			OriginLib: "perm" + string(rune('0'+i)) + "/perm.system.f33",
		}
	}
	return sources
}

func TestNewBuildsDenseGrid(t *testing.T) {
	grid, err := arpinfo.New("w17x17", arpinfo.UOX, uoxSources(), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if grid.NumPoints() != 6 {
		t.Fatalf("expected 6 points, got %d", grid.NumPoints())
	}
	if !reflect.DeepEqual(grid.Axes(), []string{"enrichment", "mod_dens"}) {
		t.Fatalf("unexpected axes: %v", grid.Axes())
	}
	// Flat order: enrichment varies slowest, mod_dens fastest.
	if !reflect.DeepEqual(grid.CoordsOf(0), []float64{1.5, 0.4}) {
		t.Fatalf("unexpected coords for point 0: %v", grid.CoordsOf(0))
	}
	if !reflect.DeepEqual(grid.CoordsOf(5), []float64{4.5, 0.7}) {
		t.Fatalf("unexpected coords for point 5: %v", grid.CoordsOf(5))
	}
	space := grid.Space()
	if !reflect.DeepEqual(space["enrichment"], []float64{1.5, 3.0, 4.5}) {
		t.Fatalf("unexpected enrichment axis: %v", space["enrichment"])
	}
}

func TestNewResolvesDimMap(t *testing.T) {
	sources := []arpinfo.Source{
		{Perm: 0, State: statespace.StatePoint{"enr": 1.5, "coolant_density": 0.4}, OriginLib: "a.f33"},
		{Perm: 1, State: statespace.StatePoint{"enr": 3.0, "coolant_density": 0.4}, OriginLib: "b.f33"},
	}
	dimMap := map[string]string{"enrichment": "enr", "mod_dens": "coolant_density"}
	grid, err := arpinfo.New("lib", arpinfo.UOX, sources, dimMap)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if grid.NumPoints() != 2 {
		t.Fatalf("expected 2 points, got %d", grid.NumPoints())
	}
}

func TestNewRejectsMissingAxisKey(t *testing.T) {
	sources := []arpinfo.Source{
		{Perm: 0, State: statespace.StatePoint{"enrichment": 1.5}, OriginLib: "a.f33"},
	}
	_, err := arpinfo.New("lib", arpinfo.UOX, sources, nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "mod_dens") {
		t.Fatalf("expected error to name the axis, got %v", err)
	}
}

func TestNewRejectsSparseTiling(t *testing.T) {
	sources := uoxSources()[:5]
	_, err := arpinfo.New("lib", arpinfo.UOX, sources, nil)
	if !errors.Is(err, services.ErrConsistency) {
		t.Fatalf("expected consistency error, got %v", err)
	}
}

func TestNewRejectsDuplicateCell(t *testing.T) {
	sources := []arpinfo.Source{
		{Perm: 0, State: statespace.StatePoint{"enrichment": 1.5, "mod_dens": 0.4}, OriginLib: "first.f33"},
		{Perm: 1, State: statespace.StatePoint{"enrichment": 1.5, "mod_dens": 0.4}, OriginLib: "second.f33"},
	}
	_, err := arpinfo.New("lib", arpinfo.UOX, sources, nil)
	if !errors.Is(err, services.ErrConsistency) {
		t.Fatalf("expected consistency error, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "first.f33") || !strings.Contains(msg, "second.f33") {
		t.Fatalf("expected error to name both origins, got %v", err)
	}
}

func TestSetCanonicalFilenamesIdempotent(t *testing.T) {
	grid, err := arpinfo.New("w17x17", arpinfo.UOX, uoxSources(), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	grid.SetCanonicalFilenames(".h5")
	first := make([]string, grid.NumPoints())
	for i := range first {
		first[i] = grid.LibOf(i)
	}
	if first[0] != "w17x17_0.h5" || first[5] != "w17x17_5.h5" {
		t.Fatalf("unexpected canonical names: %v", first)
	}
	grid.SetCanonicalFilenames(".h5")
	for i := range first {
		if grid.LibOf(i) != first[i] {
			t.Fatalf("canonical names changed on re-invocation: %v vs %v", grid.LibOf(i), first[i])
		}
	}
}

func TestCanonicalFilenamesPadWidth(t *testing.T) {
	points := statespace.Expand(statespace.Axes{
		"enrichment": {1, 2, 3, 4, 5, 6},
		"mod_dens":   {0.4, 0.7},
	})
	sources := make([]arpinfo.Source, len(points))
	for i, state := range points {
		sources[i] = arpinfo.Source{Perm: i, State: state, OriginLib: "x.f33"}
	}
	// 12 points share one grid cell per combination, so tiling is dense.
	grid, err := arpinfo.New("big", arpinfo.UOX, sources, nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	grid.SetCanonicalFilenames(".h5")
	if grid.LibOf(0) != "big_00.h5" {
		t.Fatalf("expected zero-padded name, got %q", grid.LibOf(0))
	}
	if grid.LibOf(11) != "big_11.h5" {
		t.Fatalf("expected zero-padded name, got %q", grid.LibOf(11))
	}
}

func TestInterpTagsAndIDTags(t *testing.T) {
	grid, err := arpinfo.New("w17x17", arpinfo.UOX, uoxSources(), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if got := grid.InterpTags(0); got != "enrichment=1.5,mod_dens=0.4" {
		t.Fatalf("unexpected interp tags: %q", got)
	}
	if got := grid.IDTags(); got != "assembly_type=w17x17,fuel_type=UOX" {
		t.Fatalf("unexpected id tags: %q", got)
	}
	vars := grid.InterpVars(3)
	if vars["enrichment"] != 3.0 || vars["mod_dens"] != 0.7 {
		t.Fatalf("unexpected interp vars: %v", vars)
	}
}

func TestSetBurnupsKeepsPointsAndPaths(t *testing.T) {
	grid, err := arpinfo.New("w17x17", arpinfo.UOX, uoxSources(), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	grid.SetBurnups([]float64{0, 10, 20, 30, 40})
	grid.SetCanonicalFilenames(".h5")
	before := grid.LibOf(2)

	grid.SetBurnups([]float64{0, 20, 40})
	if grid.NumPoints() != 6 {
		t.Fatalf("point count changed: %d", grid.NumPoints())
	}
	if grid.LibOf(2) != before {
		t.Fatalf("canonical path changed: %q vs %q", grid.LibOf(2), before)
	}
	if !reflect.DeepEqual(grid.Burnups(), []float64{0, 20, 40}) {
		t.Fatalf("unexpected burnups: %v", grid.Burnups())
	}
}

func TestThinnedLeavesSourceUntouched(t *testing.T) {
	grid, err := arpinfo.New("w17x17", arpinfo.UOX, uoxSources(), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	grid.SetBurnups([]float64{0, 10, 20, 30, 40})
	grid.SetCanonicalFilenames(".h5")

	thinned := grid.Thinned([]float64{0, 20, 40})
	if !reflect.DeepEqual(grid.Burnups(), []float64{0, 10, 20, 30, 40}) {
		t.Fatalf("source grid burnups changed: %v", grid.Burnups())
	}
	if !reflect.DeepEqual(thinned.Burnups(), []float64{0, 20, 40}) {
		t.Fatalf("unexpected thinned burnups: %v", thinned.Burnups())
	}
	if thinned.NumPoints() != grid.NumPoints() {
		t.Fatalf("point count diverged: %d vs %d", thinned.NumPoints(), grid.NumPoints())
	}
	if thinned.LibOf(4) != grid.LibOf(4) {
		t.Fatalf("canonical names diverged: %q vs %q", thinned.LibOf(4), grid.LibOf(4))
	}
}

func TestArpdataRoundTripUOX(t *testing.T) {
	grid, err := arpinfo.New("w17x17", arpinfo.UOX, uoxSources(), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	grid.SetBurnups([]float64{0, 10000, 20000, 30000, 40000})
	grid.SetCanonicalFilenames(".h5")

	text := grid.Arpdata()
	if !strings.HasPrefix(text, "!w17x17\n3 2 5\n") {
		t.Fatalf("unexpected arpdata header:\n%s", text)
	}
	rows := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "'") {
			rows++
		}
	}
	if rows != 6 {
		t.Fatalf("expected 6 coordinate rows, got %d:\n%s", rows, text)
	}

	parsed, err := arpinfo.Parse(text)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if parsed.Name != "w17x17" || parsed.FuelType != arpinfo.UOX {
		t.Fatalf("unexpected identity: %q %q", parsed.Name, parsed.FuelType)
	}
	if !reflect.DeepEqual(parsed.Burnups(), grid.Burnups()) {
		t.Fatalf("burnups did not round trip: %v", parsed.Burnups())
	}
	for i := 0; i < grid.NumPoints(); i++ {
		if !reflect.DeepEqual(parsed.CoordsOf(i), grid.CoordsOf(i)) {
			t.Fatalf("coords for point %d did not round trip: %v vs %v", i, parsed.CoordsOf(i), grid.CoordsOf(i))
		}
		if parsed.LibOf(i) != grid.LibOf(i) {
			t.Fatalf("library name for point %d did not round trip: %q vs %q", i, parsed.LibOf(i), grid.LibOf(i))
		}
	}
	if parsed.Arpdata() != text {
		t.Fatal("serialization is not byte-stable across a round trip")
	}
}

func TestArpdataRoundTripMOX(t *testing.T) {
	points := statespace.Expand(statespace.Axes{
		"pu239_frac": {55, 65},
		"pu_frac":    {4, 7},
		"mod_dens":   {0.45, 0.9},
	})
	sources := make([]arpinfo.Source, len(points))
	for i, state := range points {
		sources[i] = arpinfo.Source{Perm: i, State: state, OriginLib: "x.f33"}
	}
	grid, err := arpinfo.New("mox17", arpinfo.MOX, sources, nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	grid.SetBurnups([]float64{0, 15000})
	grid.SetCanonicalFilenames(".h5")

	parsed, err := arpinfo.Parse(grid.Arpdata())
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if parsed.FuelType != arpinfo.MOX {
		t.Fatalf("expected MOX inferred from axis count, got %q", parsed.FuelType)
	}
	if parsed.NumPoints() != 8 {
		t.Fatalf("expected 8 points, got %d", parsed.NumPoints())
	}
	if !reflect.DeepEqual(parsed.CoordsOf(7), grid.CoordsOf(7)) {
		t.Fatalf("coords did not round trip: %v", parsed.CoordsOf(7))
	}
}

func TestParseRejectsMalformedHeader(t *testing.T) {
	if _, err := arpinfo.Parse("w17x17\n"); err == nil {
		t.Fatal("expected error for missing ! header")
	}
}

func TestParseRejectsCoordinateMismatch(t *testing.T) {
	grid, err := arpinfo.New("w17x17", arpinfo.UOX, uoxSources(), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	grid.SetBurnups([]float64{0, 10})
	grid.SetCanonicalFilenames(".h5")
	text := strings.Replace(grid.Arpdata(), "'w17x17_0.h5' 1.5 0.4", "'w17x17_0.h5' 1.5 0.7", 1)
	if _, err := arpinfo.Parse(text); !errors.Is(err, services.ErrConsistency) {
		t.Fatalf("expected consistency error, got %v", err)
	}
}
