// Package store persists match runs and their enriched rows.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/zonematch/internal/model"
)

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = eris.New("store: run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Source string          `json:"source,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for match runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, source string) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, stats model.RunStats, runErr error) error
	SaveProgress(ctx context.Context, runID string, stats model.RunStats) error
	ReopenRun(ctx context.Context, runID string, afterLine int64) (int64, error)
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Rows
	WriteRows(ctx context.Context, runID string, rows []model.MatchedRow) (int64, error)
	CountRows(ctx context.Context, runID string) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// finalStatus maps a run outcome to its terminal status and error text.
func finalStatus(runErr error) (model.RunStatus, *string) {
	if runErr == nil {
		return model.RunStatusComplete, nil
	}
	msg := runErr.Error()
	return model.RunStatusFailed, &msg
}

func listLimit(filter RunFilter) int {
	if filter.Limit <= 0 {
		return 100
	}
	return filter.Limit
}
