package obiwan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"arpgen/internal/fileutil"
	"arpgen/internal/history"
	"arpgen/internal/logging"
	"arpgen/internal/metrics"
	"arpgen/internal/services"
)

// Operation names double as log fields and instrumentation labels.
const (
	opSetBurnups  = "setbu"
	opThin        = "thin"
	opTag         = "tag"
	opConvert     = "hdf5"
	opView        = "ii.json"
	opHistory     = "info"
	opConsolidate = "archive"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, dir, binary string, args []string) (stdout string, err error)
}

// Tool drives the external cross-section tool. Every invocation runs in
// the tool's working directory so stray outputs land somewhere known.
type Tool struct {
	binary  string
	timeout time.Duration
	workDir string
	exec    Executor
	log     *slog.Logger
	metrics *metrics.Metrics
}

// Option configures the tool.
type Option func(*Tool)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(t *Tool) {
		if exec != nil {
			t.exec = exec
		}
	}
}

// WithLogger attaches a logger for invocation and fixup reporting.
func WithLogger(log *slog.Logger) Option {
	return func(t *Tool) {
		if log != nil {
			t.log = log
		}
	}
}

// WithMetrics attaches instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tool) {
		t.metrics = m
	}
}

// New constructs a tool adapter rooted at workDir.
func New(binary string, timeoutSeconds int, workDir string, opts ...Option) (*Tool, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("obiwan binary required")
	}
	workDir = strings.TrimSpace(workDir)
	if workDir == "" {
		return nil, errors.New("obiwan working directory required")
	}
	tool := &Tool{
		binary:  binary,
		timeout: time.Duration(timeoutSeconds) * time.Second,
		workDir: filepath.Clean(workDir),
		exec:    commandExecutor{},
		log:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(tool)
	}
	return tool, nil
}

// SetBurnups rewrites the burnup axis of a library in place.
func (t *Tool) SetBurnups(ctx context.Context, file string, burnups []float64) error {
	args := []string{"convert", "-i", "-setbu=" + bracketList(burnups), file}
	if _, err := t.run(ctx, opSetBurnups, args); err != nil {
		return err
	}
	return t.fixupStrayOutput(file)
}

// ThinBurnups reduces a library to the kept burnup values in place. A
// non-zero exit comes back as an *ExitError for the caller to downgrade
// to a warning; the tool reports spurious failures on this path.
func (t *Tool) ThinBurnups(ctx context.Context, file string, kept []float64) error {
	args := []string{"convert", "-i", "-thin=1", "-tvals=" + bracketList(kept), file}
	_, err := t.run(ctx, opThin, args)
	var exit *ExitError
	if err != nil && !errors.As(err, &exit) {
		return err
	}
	if fixErr := t.fixupStrayOutput(file); fixErr != nil {
		return fixErr
	}
	return err
}

// Tag writes interpolation and identification tags into a library.
func (t *Tool) Tag(ctx context.Context, file, interpTags, idTags string) error {
	args := []string{"tag", "-interptags=" + interpTags, "-idtags=" + idTags, file}
	_, err := t.run(ctx, opTag, args)
	return err
}

// ConvertHDF5 converts a tagged library to HDF5 inside destDir and
// returns the produced file path.
func (t *Tool) ConvertHDF5(ctx context.Context, file, destDir string) (string, error) {
	args := []string{"convert", "-format=hdf5", "-type=f33", file, "-dir=" + destDir}
	if _, err := t.run(ctx, opConvert, args); err != nil {
		return "", err
	}
	base := filepath.Base(file)
	produced := filepath.Join(destDir, strings.TrimSuffix(base, filepath.Ext(base))+".h5")
	if _, err := os.Stat(produced); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "", opConvert,
			fmt.Sprintf("conversion produced no output at %s", produced), err)
	}
	return produced, nil
}

// ViewCaseJSON extracts one case's nuclide inventory as ii.json text.
func (t *Tool) ViewCaseJSON(ctx context.Context, f71 string, caseID int) (string, error) {
	args := []string{"view", "-format=ii.json", f71, fmt.Sprintf("-cases=[%d]", caseID)}
	return t.run(ctx, opView, args)
}

// History reads the irradiation history for one case of a concentration
// file.
func (t *Tool) History(ctx context.Context, f71 string, caseID int) ([]history.Step, error) {
	stdout, err := t.run(ctx, opHistory, []string{"view", "-format=info", f71})
	if err != nil {
		return nil, err
	}
	steps, err := history.Parse(stdout, caseID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f71, err)
	}
	return steps, nil
}

// Consolidate merges libraries into a single HDF5 archive at dest.
func (t *Tool) Consolidate(ctx context.Context, dest string, libs []string) error {
	args := append([]string{"convert", "-format=hdf5", "-name=" + dest}, libs...)
	_, err := t.run(ctx, opConsolidate, args)
	return err
}

func (t *Tool) run(ctx context.Context, op string, args []string) (string, error) {
	runCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	start := time.Now()
	stdout, err := t.exec.Run(runCtx, t.workDir, t.binary, args)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			t.metrics.ObserveTool(op, "timeout")
			return stdout, services.Wrap(services.ErrTimeout, "", op,
				fmt.Sprintf("%s %s timed out after %s", t.binary, op, t.timeout), err)
		}
		var exit *ExitError
		if errors.As(err, &exit) {
			exit.Op = op
			t.metrics.ObserveTool(op, "exit")
			return stdout, err
		}
		t.metrics.ObserveTool(op, "error")
		return stdout, services.Wrap(services.ErrExternalTool, "", op,
			fmt.Sprintf("%s %s failed", t.binary, op), err)
	}
	t.metrics.ObserveTool(op, "ok")
	t.log.DebugContext(ctx, "tool invocation finished",
		logging.String("op", op),
		logging.Duration("elapsed", time.Since(start)))
	return stdout, nil
}

// fixupStrayOutput relocates a library the tool dropped into the working
// directory instead of updating file in place. Some tool builds do this
// after in-place conversions.
func (t *Tool) fixupStrayOutput(file string) error {
	base := filepath.Base(file)
	stray := filepath.Join(t.workDir, strings.TrimSuffix(base, filepath.Ext(base))+".f33")
	if stray == filepath.Clean(file) {
		return nil
	}
	if _, err := os.Stat(stray); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("check stray output %s: %w", stray, err)
	}
	if err := fileutil.MoveFile(stray, file); err != nil {
		return fmt.Errorf("relocate stray output %s: %w", stray, err)
	}
	t.metrics.FixupApplied()
	t.log.Warn("relocated stray tool output",
		logging.String("from", stray),
		logging.String("to", file))
	return nil
}

// bracketList renders values as [a,b,c] with the same float formatting
// the archive index uses.
func bracketList(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
