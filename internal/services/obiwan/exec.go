package obiwan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"arpgen/internal/services"
)

// ExitError reports an invocation that ran to completion and exited
// non-zero. It unwraps to services.ErrExternalTool and carries the
// stderr tail for diagnostics.
type ExitError struct {
	Op     string
	Code   int
	Detail string
}

func (e *ExitError) Error() string {
	op := e.Op
	if op == "" {
		op = "command"
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s exited with status %d: %s", op, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s exited with status %d", op, e.Code)
}

func (e *ExitError) Unwrap() error { return services.ErrExternalTool }

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, dir, binary string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), &ExitError{Code: exitErr.ExitCode(), Detail: stderrTail(stderr.String())}
	}
	return stdout.String(), err
}

// stderrTail keeps the last few non-empty stderr lines for error text.
func stderrTail(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	kept := make([]string, 0, 4)
	for i := len(lines) - 1; i >= 0 && len(kept) < 4; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		kept = append([]string{line}, kept...)
	}
	return strings.Join(kept, "; ")
}
