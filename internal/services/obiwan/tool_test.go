package obiwan_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"arpgen/internal/metrics"
	"arpgen/internal/services"
	"arpgen/internal/services/obiwan"
)

type execCall struct {
	dir    string
	binary string
	args   []string
}

type fakeExecutor struct {
	calls  []execCall
	handle func(ctx context.Context, dir, binary string, args []string) (string, error)
}

func (f *fakeExecutor) Run(ctx context.Context, dir, binary string, args []string) (string, error) {
	f.calls = append(f.calls, execCall{dir: dir, binary: binary, args: args})
	if f.handle != nil {
		return f.handle(ctx, dir, binary, args)
	}
	return "", nil
}

func newTool(t *testing.T, workDir string, fake *fakeExecutor, opts ...obiwan.Option) *obiwan.Tool {
	t.Helper()
	opts = append([]obiwan.Option{obiwan.WithExecutor(fake)}, opts...)
	tool, err := obiwan.New("obiwan", 600, workDir, opts...)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return tool
}

func TestNewRequiresBinaryAndWorkDir(t *testing.T) {
	if _, err := obiwan.New("", 600, t.TempDir()); err == nil {
		t.Fatal("expected error for empty binary")
	}
	if _, err := obiwan.New("obiwan", 600, "  "); err == nil {
		t.Fatal("expected error for empty working directory")
	}
}

func TestSetBurnupsCommandLine(t *testing.T) {
	workDir := t.TempDir()
	fake := &fakeExecutor{}
	tool := newTool(t, workDir, fake)

	file := filepath.Join(workDir, "arplibs", "tmp", "w17x17_0.f33")
	if err := tool.SetBurnups(context.Background(), file, []float64{0, 10.5, 20}); err != nil {
		t.Fatalf("SetBurnups returned error: %v", err)
	}

	if len(fake.calls) != 1 {
		t.Fatalf("expected 1 invocation, got %d", len(fake.calls))
	}
	call := fake.calls[0]
	if call.binary != "obiwan" || call.dir != workDir {
		t.Fatalf("unexpected binary/dir: %q %q", call.binary, call.dir)
	}
	want := []string{"convert", "-i", "-setbu=[0,10.5,20]", file}
	if !reflect.DeepEqual(call.args, want) {
		t.Fatalf("args = %v, want %v", call.args, want)
	}
}

func TestThinBurnupsToleratedExit(t *testing.T) {
	workDir := t.TempDir()
	fake := &fakeExecutor{
		handle: func(_ context.Context, _, _ string, _ []string) (string, error) {
			return "", &obiwan.ExitError{Code: 1, Detail: "spurious"}
		},
	}
	tool := newTool(t, workDir, fake)

	file := filepath.Join(workDir, "arplibs", "tmp", "w17x17_1.f33")
	err := tool.ThinBurnups(context.Background(), file, []float64{0, 20, 40})
	if err == nil {
		t.Fatal("expected an error value")
	}
	var exit *obiwan.ExitError
	if !errors.As(err, &exit) {
		t.Fatalf("expected *ExitError, got %T: %v", err, err)
	}
	if exit.Op != "thin" || exit.Code != 1 {
		t.Fatalf("unexpected exit detail: %+v", exit)
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("exit error should classify as external tool failure: %v", err)
	}

	want := []string{"convert", "-i", "-thin=1", "-tvals=[0,20,40]", file}
	if !reflect.DeepEqual(fake.calls[0].args, want) {
		t.Fatalf("args = %v, want %v", fake.calls[0].args, want)
	}
}

func TestFixupRelocatesStrayOutput(t *testing.T) {
	workDir := t.TempDir()
	scratch := filepath.Join(workDir, "arplibs", "tmp")
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(scratch, "w17x17_3.f33")
	if err := os.WriteFile(file, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	stray := filepath.Join(workDir, "w17x17_3.f33")
	fake := &fakeExecutor{
		handle: func(_ context.Context, dir, _ string, _ []string) (string, error) {
			return "", os.WriteFile(filepath.Join(dir, "w17x17_3.f33"), []byte("rebased"), 0o644)
		},
	}
	m := metrics.New()
	tool := newTool(t, workDir, fake, obiwan.WithMetrics(m))

	if err := tool.SetBurnups(context.Background(), file, []float64{0, 10}); err != nil {
		t.Fatalf("SetBurnups returned error: %v", err)
	}

	if _, err := os.Stat(stray); !os.IsNotExist(err) {
		t.Fatalf("stray output still present: %v", err)
	}
	got, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "rebased" {
		t.Fatalf("library content = %q, want relocated output", got)
	}

	snap, err := m.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if snap["arpgen_fixups_total"] != 1 {
		t.Fatalf("fixups = %v, want 1", snap["arpgen_fixups_total"])
	}
}

func TestTimeoutClassification(t *testing.T) {
	workDir := t.TempDir()
	fake := &fakeExecutor{
		handle: func(ctx context.Context, _, _ string, _ []string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	tool, err := obiwan.New("obiwan", 1, workDir, obiwan.WithExecutor(fake))
	if err != nil {
		t.Fatal(err)
	}

	err = tool.Tag(context.Background(), filepath.Join(workDir, "x.f33"), "a=1", "b=2")
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout classification, got %v", err)
	}
	var exit *obiwan.ExitError
	if errors.As(err, &exit) {
		t.Fatalf("timeout must not classify as tolerable exit: %v", err)
	}
}

func TestTagCommandLine(t *testing.T) {
	workDir := t.TempDir()
	fake := &fakeExecutor{}
	tool := newTool(t, workDir, fake)

	file := filepath.Join(workDir, "arplibs", "tmp", "w17x17_4.f33")
	interp := "enrichment=1.5,mod_dens=0.4"
	id := "assembly_type=w17x17,fuel_type=UOX"
	if err := tool.Tag(context.Background(), file, interp, id); err != nil {
		t.Fatalf("Tag returned error: %v", err)
	}

	want := []string{"tag", "-interptags=" + interp, "-idtags=" + id, file}
	if !reflect.DeepEqual(fake.calls[0].args, want) {
		t.Fatalf("args = %v, want %v", fake.calls[0].args, want)
	}
}

func TestConvertHDF5(t *testing.T) {
	workDir := t.TempDir()
	destDir := filepath.Join(workDir, "arplibs")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		t.Fatal(err)
	}
	fake := &fakeExecutor{
		handle: func(_ context.Context, _, _ string, _ []string) (string, error) {
			return "", os.WriteFile(filepath.Join(destDir, "w17x17_2.h5"), []byte("hdf5"), 0o644)
		},
	}
	tool := newTool(t, workDir, fake)

	file := filepath.Join(workDir, "arplibs", "tmp", "w17x17_2.f33")
	produced, err := tool.ConvertHDF5(context.Background(), file, destDir)
	if err != nil {
		t.Fatalf("ConvertHDF5 returned error: %v", err)
	}
	if produced != filepath.Join(destDir, "w17x17_2.h5") {
		t.Fatalf("produced = %q", produced)
	}

	want := []string{"convert", "-format=hdf5", "-type=f33", file, "-dir=" + destDir}
	if !reflect.DeepEqual(fake.calls[0].args, want) {
		t.Fatalf("args = %v, want %v", fake.calls[0].args, want)
	}
}

func TestConvertHDF5MissingOutput(t *testing.T) {
	workDir := t.TempDir()
	destDir := filepath.Join(workDir, "arplibs")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		t.Fatal(err)
	}
	tool := newTool(t, workDir, &fakeExecutor{})

	_, err := tool.ConvertHDF5(context.Background(), filepath.Join(workDir, "w_0.f33"), destDir)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool failure, got %v", err)
	}
}

func TestViewCaseJSON(t *testing.T) {
	workDir := t.TempDir()
	fake := &fakeExecutor{
		handle: func(_ context.Context, _, _ string, _ []string) (string, error) {
			return `{"responses": {}}`, nil
		},
	}
	tool := newTool(t, workDir, fake)

	f71 := filepath.Join(workDir, "perm0.f71")
	out, err := tool.ViewCaseJSON(context.Background(), f71, -2)
	if err != nil {
		t.Fatalf("ViewCaseJSON returned error: %v", err)
	}
	if !strings.Contains(out, "responses") {
		t.Fatalf("unexpected output %q", out)
	}

	want := []string{"view", "-format=ii.json", f71, "-cases=[-2]"}
	if !reflect.DeepEqual(fake.calls[0].args, want) {
		t.Fatalf("args = %v, want %v", fake.calls[0].args, want)
	}
}

func TestHistory(t *testing.T) {
	workDir := t.TempDir()
	table := ` pos         time        power         flux      fluence       energy    initialhm  libpos  case  step  DCGNAB
   1  0.00000e+00  4.00000e+01  0.00000e+00  0.00000e+00  0.00000e+00  1.00000e+00       1     1     0  DC----
   2  2.16000e+07  4.00000e+01  3.00000e+14  6.48000e+21  8.64000e+03  1.00000e+00       2     1     1  DC----
`
	fake := &fakeExecutor{
		handle: func(_ context.Context, _, _ string, _ []string) (string, error) {
			return table, nil
		},
	}
	tool := newTool(t, workDir, fake)

	f71 := filepath.Join(workDir, "perm1.f71")
	steps, err := tool.History(context.Background(), f71, 1)
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}

	want := []string{"view", "-format=info", f71}
	if !reflect.DeepEqual(fake.calls[0].args, want) {
		t.Fatalf("args = %v, want %v", fake.calls[0].args, want)
	}

	if _, err := tool.History(context.Background(), f71, 9); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found for absent case, got %v", err)
	}
}

func TestConsolidate(t *testing.T) {
	workDir := t.TempDir()
	fake := &fakeExecutor{}
	tool := newTool(t, workDir, fake)

	dest := filepath.Join(workDir, "w17x17.arplib.h5")
	libs := []string{"arplibs/w17x17_0.h5", "arplibs/w17x17_1.h5"}
	if err := tool.Consolidate(context.Background(), dest, libs); err != nil {
		t.Fatalf("Consolidate returned error: %v", err)
	}

	want := []string{"convert", "-format=hdf5", "-name=" + dest, libs[0], libs[1]}
	if !reflect.DeepEqual(fake.calls[0].args, want) {
		t.Fatalf("args = %v, want %v", fake.calls[0].args, want)
	}
}
