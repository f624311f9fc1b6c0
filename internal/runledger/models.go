package runledger

import "time"

// RunStatus describes a run's lifecycle state.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// PointStatus tracks one grid point through the pipeline.
type PointStatus string

const (
	PointPending   PointStatus = "pending"
	PointRunning   PointStatus = "running"
	PointCompleted PointStatus = "completed"
	PointFailed    PointStatus = "failed"
	PointSkipped   PointStatus = "skipped"
)

// Run is one assembly attempt over a working directory.
type Run struct {
	ID         string
	Name       string
	FuelType   string
	WorkDir    string
	Status     RunStatus
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Finished reports whether the run reached a terminal state.
func (r *Run) Finished() bool {
	return r != nil && (r.Status == RunCompleted || r.Status == RunFailed)
}

// Point is one grid point's progress within a run. Stage names the
// pipeline stage the point is in (or failed in).
type Point struct {
	RunID     string
	Index     int
	OriginLib string
	Lib       string
	Status    PointStatus
	Stage     string
	Error     string
	UpdatedAt time.Time
}
