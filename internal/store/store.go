// Package store persists analysis runs and their summary rows, keeping
// an auditable record of which foods had their results substituted.
package store

import (
	"context"

	"github.com/epifield/outbreak-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Study  string          `json:"study,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for analysis runs.
type Store interface {
	CreateRun(ctx context.Context, studyName, input string) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, strata int, summaries []model.FoodSummary) error
	FailRun(ctx context.Context, runID string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	SummaryRows(ctx context.Context, runID string) ([]model.FoodSummary, error)

	Migrate(ctx context.Context) error
	Close() error
}
