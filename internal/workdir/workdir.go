package workdir

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"arpgen/internal/services"
)

// Layout resolves the fixed on-disk layout of one assembly working
// directory: the permutation manifest and archive index at the root,
// converted libraries under arplibs, scratch copies under arplibs/tmp.
type Layout struct {
	root string
}

// New roots a layout at dir.
func New(dir string) (Layout, error) {
	if strings.TrimSpace(dir) == "" {
		return Layout{}, errors.New("working directory required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Layout{}, fmt.Errorf("resolve working directory: %w", err)
	}
	return Layout{root: abs}, nil
}

func (l Layout) Root() string { return l.root }

// PermutationManifest is the expanded state-space manifest.
func (l Layout) PermutationManifest() string { return filepath.Join(l.root, "permutations.json") }

// Arpdata is the archive index written after a successful run.
func (l Layout) Arpdata() string { return filepath.Join(l.root, "arpdata.txt") }

// RunManifest is the per-run assembly manifest.
func (l Layout) RunManifest() string { return filepath.Join(l.root, "assemble.json") }

// LibDir holds the converted libraries.
func (l Layout) LibDir() string { return filepath.Join(l.root, "arplibs") }

// ScratchDir holds per-point working copies during a run.
func (l Layout) ScratchDir() string { return filepath.Join(l.root, "arplibs", "tmp") }

// Resolve joins path onto the root (absolute paths pass through) and
// refuses results that escape the working directory.
func (l Layout) Resolve(path string) (string, error) {
	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(l.root, candidate)
	}
	candidate = filepath.Clean(candidate)
	if !l.contains(candidate) {
		return "", services.Wrap(services.ErrConfiguration, "", "",
			fmt.Sprintf("path %q escapes the working directory", path), nil)
	}
	return candidate, nil
}

// Rel rewrites a path under the root as a root-relative path.
func (l Layout) Rel(path string) (string, error) {
	rel, err := filepath.Rel(l.root, path)
	if err != nil {
		return "", fmt.Errorf("relativize %s: %w", path, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", services.Wrap(services.ErrConfiguration, "", "",
			fmt.Sprintf("path %q escapes the working directory", path), nil)
	}
	return rel, nil
}

func (l Layout) contains(path string) bool {
	rel, err := filepath.Rel(l.root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
