package runledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenPath(filepath.Join(t.TempDir(), "arpgen.db"))
	if err != nil {
		t.Fatalf("OpenPath returned error: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestRunLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	run, err := store.BeginRun(ctx, "w17x17", "UOX", "/work/w17x17")
	if err != nil {
		t.Fatalf("BeginRun returned error: %v", err)
	}
	if run.ID == "" || run.Status != RunRunning || run.StartedAt.IsZero() {
		t.Fatalf("unexpected run: %+v", run)
	}

	fetched, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun returned error: %v", err)
	}
	if fetched == nil || fetched.Name != "w17x17" || fetched.FuelType != "UOX" {
		t.Fatalf("unexpected fetched run: %+v", fetched)
	}
	if fetched.Finished() {
		t.Fatal("running run reports finished")
	}

	if err := store.FinishRun(ctx, run.ID, nil); err != nil {
		t.Fatalf("FinishRun returned error: %v", err)
	}
	fetched, err = store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.Status != RunCompleted || fetched.FinishedAt.IsZero() || fetched.Error != "" {
		t.Fatalf("unexpected completed run: %+v", fetched)
	}
	if !fetched.Finished() {
		t.Fatal("completed run not finished")
	}
}

func TestFinishRunWithError(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	run, err := store.BeginRun(ctx, "w17x17", "UOX", "/work/w17x17")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.FinishRun(ctx, run.ID, errors.New("2 points failed")); err != nil {
		t.Fatal(err)
	}

	fetched, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.Status != RunFailed || fetched.Error != "2 points failed" {
		t.Fatalf("unexpected failed run: %+v", fetched)
	}
}

func TestGetRunMissing(t *testing.T) {
	store := openTestStore(t)
	run, err := store.GetRun(context.Background(), "no-such-id")
	if err != nil {
		t.Fatalf("GetRun returned error: %v", err)
	}
	if run != nil {
		t.Fatalf("expected nil run, got %+v", run)
	}
}

func TestLatestRunAndListing(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.BeginRun(ctx, "w17x17", "UOX", "/work/a")
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.BeginRun(ctx, "w17x17", "UOX", "/work/a")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.BeginRun(ctx, "mox22", "MOX", "/work/b"); err != nil {
		t.Fatal(err)
	}

	latest, err := store.LatestRun(ctx, "/work/a")
	if err != nil {
		t.Fatalf("LatestRun returned error: %v", err)
	}
	if latest == nil || latest.ID != second.ID {
		t.Fatalf("latest = %+v, want run %s", latest, second.ID)
	}

	runs, err := store.Runs(ctx, "/work/a", 10)
	if err != nil {
		t.Fatalf("Runs returned error: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != second.ID || runs[1].ID != first.ID {
		t.Fatalf("unexpected listing: %+v", runs)
	}

	empty, err := store.LatestRun(ctx, "/work/never")
	if err != nil {
		t.Fatal(err)
	}
	if empty != nil {
		t.Fatalf("expected nil for unknown work dir, got %+v", empty)
	}
}

func TestPointLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	run, err := store.BeginRun(ctx, "w17x17", "UOX", "/work/w17x17")
	if err != nil {
		t.Fatal(err)
	}
	origins := []string{"perm0/perm0.f33", "perm1/perm1.f33", "perm2/perm2.f33"}
	if err := store.SeedPoints(ctx, run.ID, origins); err != nil {
		t.Fatalf("SeedPoints returned error: %v", err)
	}

	points, err := store.PointsForRun(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	for i, point := range points {
		if point.Index != i || point.Status != PointPending || point.OriginLib != origins[i] {
			t.Fatalf("unexpected seeded point %d: %+v", i, point)
		}
	}

	if err := store.MarkPointStage(ctx, run.ID, 1, "tagging"); err != nil {
		t.Fatal(err)
	}
	if err := store.CompletePoint(ctx, run.ID, 0, "arplibs/w17x17_0.h5"); err != nil {
		t.Fatal(err)
	}
	if err := store.FailPoint(ctx, run.ID, 2, "converting", errors.New("exit status 3")); err != nil {
		t.Fatal(err)
	}

	points, err = store.PointsForRun(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if points[0].Status != PointCompleted || points[0].Lib != "arplibs/w17x17_0.h5" {
		t.Fatalf("unexpected completed point: %+v", points[0])
	}
	if points[1].Status != PointRunning || points[1].Stage != "tagging" {
		t.Fatalf("unexpected running point: %+v", points[1])
	}
	if points[2].Status != PointFailed || points[2].Stage != "converting" || points[2].Error != "exit status 3" {
		t.Fatalf("unexpected failed point: %+v", points[2])
	}
}

func TestSkipPointOnlyTouchesPending(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	run, err := store.BeginRun(ctx, "w17x17", "UOX", "/work/w17x17")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SeedPoints(ctx, run.ID, []string{"perm0/perm0.f33", "perm1/perm1.f33"}); err != nil {
		t.Fatal(err)
	}
	if err := store.CompletePoint(ctx, run.ID, 0, "arplibs/w17x17_0.h5"); err != nil {
		t.Fatal(err)
	}

	if err := store.SkipPoint(ctx, run.ID, 0); err != nil {
		t.Fatal(err)
	}
	if err := store.SkipPoint(ctx, run.ID, 1); err != nil {
		t.Fatal(err)
	}

	points, err := store.PointsForRun(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if points[0].Status != PointCompleted {
		t.Fatalf("completed point was overwritten: %+v", points[0])
	}
	if points[1].Status != PointSkipped {
		t.Fatalf("pending point not skipped: %+v", points[1])
	}
}
