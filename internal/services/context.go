package services

import "context"

type contextKey string

const (
	pointIndexKey contextKey = "point_index"
	stageKey      contextKey = "stage"
	runIDKey      contextKey = "run_id"
)

// WithPointIndex annotates context with the flat grid index of the point
// being processed.
func WithPointIndex(ctx context.Context, idx int) context.Context {
	return context.WithValue(ctx, pointIndexKey, idx)
}

// PointIndexFromContext extracts the point index if present.
func PointIndexFromContext(ctx context.Context) (int, bool) {
	v := ctx.Value(pointIndexKey)
	if v == nil {
		return 0, false
	}
	if idx, ok := v.(int); ok {
		return idx, true
	}
	return 0, false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRunID annotates context with the assembly run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
