package statespace_test

import (
	"path/filepath"
	"reflect"
	"testing"

	"arpgen/internal/burnup"
	"arpgen/internal/statespace"
)

func TestExpandCardinality(t *testing.T) {
	axes := statespace.Axes{
		"enrichment": {4.5, 1.5, 3.0},
		"mod_dens":   {0.7, 0.4},
	}
	points := statespace.Expand(axes)
	if len(points) != 6 {
		t.Fatalf("expected 6 permutations, got %d", len(points))
	}

	seen := make(map[[2]float64]bool)
	for _, point := range points {
		key := [2]float64{point["enrichment"], point["mod_dens"]}
		if seen[key] {
			t.Fatalf("duplicate permutation %v", point)
		}
		seen[key] = true
	}
}

func TestExpandDeterministicOrder(t *testing.T) {
	first := statespace.Expand(statespace.Axes{
		"enrichment": {4.5, 1.5, 3.0},
		"mod_dens":   {0.7, 0.4},
	})
	second := statespace.Expand(statespace.Axes{
		"mod_dens":   {0.4, 0.7},
		"enrichment": {3.0, 4.5, 1.5},
	})
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical permutation order, got %v vs %v", first, second)
	}

	// The lexicographically first axis varies slowest.
	want := []statespace.StatePoint{
		{"enrichment": 1.5, "mod_dens": 0.4},
		{"enrichment": 1.5, "mod_dens": 0.7},
		{"enrichment": 3.0, "mod_dens": 0.4},
		{"enrichment": 3.0, "mod_dens": 0.7},
		{"enrichment": 4.5, "mod_dens": 0.4},
		{"enrichment": 4.5, "mod_dens": 0.7},
	}
	if !reflect.DeepEqual(first, want) {
		t.Fatalf("unexpected order: %v", first)
	}
}

func TestExpandDegenerateInput(t *testing.T) {
	if points := statespace.Expand(nil); len(points) != 0 {
		t.Fatalf("expected no permutations for nil axes, got %v", points)
	}
	if points := statespace.Expand(statespace.Axes{"enrichment": nil}); len(points) != 0 {
		t.Fatalf("expected no permutations for empty axis, got %v", points)
	}
}

func TestManifestRoundTrip(t *testing.T) {
	manifest := &statespace.Manifest{
		Name: "w17x17",
		Perms: []statespace.Record{
			{
				InputFile: "perm0/perm0.inp",
				State:     statespace.StatePoint{"enrichment": 1.5, "mod_dens": 0.4},
				Burndata:  []burnup.PowerStep{{Power: 40, Burn: 250}},
			},
			{
				InputFile: "perm1/perm1.inp",
				State:     statespace.StatePoint{"enrichment": 1.5, "mod_dens": 0.7},
			},
		},
	}

	path := filepath.Join(t.TempDir(), "permutations.json")
	if err := statespace.SaveManifest(path, manifest); err != nil {
		t.Fatalf("SaveManifest returned error: %v", err)
	}

	loaded, err := statespace.LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest returned error: %v", err)
	}
	if !reflect.DeepEqual(manifest, loaded) {
		t.Fatalf("round trip mismatch: %+v vs %+v", manifest, loaded)
	}
}

func TestLoadManifestMissingFile(t *testing.T) {
	if _, err := statespace.LoadManifest(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing manifest")
	}
}
