package store

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/harvest/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// RunStore is the run ledger: one row per harvest run.
type RunStore interface {
	// CreateRun records a run in the running state.
	CreateRun(ctx context.Context, run *model.Run) error
	// FinishRun stores the final status, counts and error of a run.
	FinishRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]*model.Run, error)

	Close() error
}
