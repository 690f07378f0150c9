package model

import "time"

// RunStatus is the lifecycle state of a harvest run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsValid reports whether s is a known status.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	}
	return false
}

// Run is one harvest run as recorded in the ledger and announced on the bus.
type Run struct {
	ID               string     `json:"id"`
	Filter           string     `json:"filter"`
	TimeLimitSeconds int        `json:"time_limit_seconds"`
	EventLimit       int64      `json:"event_limit"`
	OutputPath       string     `json:"output_path"`
	Status           RunStatus  `json:"status"`
	EventsAdmitted   int64      `json:"events_admitted"`
	RecordsWritten   int        `json:"records_written"`
	Error            string     `json:"error,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
}

// Duration returns how long the run took, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
