package statespace

import (
	"encoding/json"
	"fmt"
	"os"

	"arpgen/internal/burnup"
)

// Record describes one permutation of the state space: the relative path of
// its simulation input file, the state values that produced it, and the
// irradiation schedule planned for it.
type Record struct {
	InputFile string             `json:"input_file"`
	State     StatePoint         `json:"state"`
	Burndata  []burnup.PowerStep `json:"burndata,omitempty"`
}

// Manifest enumerates the permutations of one planned state space.
type Manifest struct {
	Name  string   `json:"name"`
	Perms []Record `json:"perms"`
}

// LoadManifest reads a permutation manifest from disk.
func LoadManifest(path string) (*Manifest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read permutation manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(content, &manifest); err != nil {
		return nil, fmt.Errorf("parse permutation manifest %s: %w", path, err)
	}
	return &manifest, nil
}

// SaveManifest writes a permutation manifest to disk.
func SaveManifest(path string, manifest *Manifest) error {
	content, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encode permutation manifest: %w", err)
	}
	content = append(content, '\n')
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write permutation manifest: %w", err)
	}
	return nil
}
