package workdir_test

import (
	"errors"
	"path/filepath"
	"testing"

	"arpgen/internal/services"
	"arpgen/internal/workdir"
)

func TestLayoutPaths(t *testing.T) {
	root := t.TempDir()
	layout, err := workdir.New(root)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if layout.Root() != root {
		t.Fatalf("root = %q, want %q", layout.Root(), root)
	}
	if layout.PermutationManifest() != filepath.Join(root, "permutations.json") {
		t.Fatalf("permutation manifest = %q", layout.PermutationManifest())
	}
	if layout.Arpdata() != filepath.Join(root, "arpdata.txt") {
		t.Fatalf("arpdata = %q", layout.Arpdata())
	}
	if layout.RunManifest() != filepath.Join(root, "assemble.json") {
		t.Fatalf("run manifest = %q", layout.RunManifest())
	}
	if layout.LibDir() != filepath.Join(root, "arplibs") {
		t.Fatalf("lib dir = %q", layout.LibDir())
	}
	if layout.ScratchDir() != filepath.Join(root, "arplibs", "tmp") {
		t.Fatalf("scratch dir = %q", layout.ScratchDir())
	}
}

func TestNewRequiresDirectory(t *testing.T) {
	if _, err := workdir.New("   "); err == nil {
		t.Fatal("expected error for empty directory")
	}
}

func TestResolve(t *testing.T) {
	root := t.TempDir()
	layout, err := workdir.New(root)
	if err != nil {
		t.Fatal(err)
	}

	got, err := layout.Resolve("perm0/perm0.f33")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != filepath.Join(root, "perm0", "perm0.f33") {
		t.Fatalf("resolved = %q", got)
	}

	abs := filepath.Join(root, "arplibs", "w17x17_0.h5")
	got, err = layout.Resolve(abs)
	if err != nil {
		t.Fatalf("Resolve returned error for absolute path: %v", err)
	}
	if got != abs {
		t.Fatalf("resolved = %q, want %q", got, abs)
	}

	if _, err := layout.Resolve("../outside"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for escape, got %v", err)
	}
	if _, err := layout.Resolve("/etc/passwd"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for foreign absolute path, got %v", err)
	}
}

func TestRel(t *testing.T) {
	root := t.TempDir()
	layout, err := workdir.New(root)
	if err != nil {
		t.Fatal(err)
	}

	rel, err := layout.Rel(filepath.Join(root, "arplibs", "tmp", "w17x17_2.f33"))
	if err != nil {
		t.Fatalf("Rel returned error: %v", err)
	}
	if rel != filepath.Join("arplibs", "tmp", "w17x17_2.f33") {
		t.Fatalf("rel = %q", rel)
	}

	if _, err := layout.Rel(filepath.Join(root, "..", "elsewhere")); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for escape, got %v", err)
	}
}

func TestLock(t *testing.T) {
	root := t.TempDir()
	layout, err := workdir.New(root)
	if err != nil {
		t.Fatal(err)
	}

	lock, err := workdir.Acquire(layout)
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}

	if _, err := workdir.Acquire(layout); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error while held, got %v", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}

	again, err := workdir.Acquire(layout)
	if err != nil {
		t.Fatalf("Acquire after release returned error: %v", err)
	}
	if err := again.Release(); err != nil {
		t.Fatal(err)
	}
}
