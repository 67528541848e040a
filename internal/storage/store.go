package storage

import (
	"context"

	"tworate/internal/model"
)

// Store persists simulation runs together with the history and lag samples
// derived from them. Get methods report a missing record with ok == false.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveHistory(ctx context.Context, runID string, history model.History) error
	GetHistory(ctx context.Context, runID string) (model.History, bool, error)
	SaveLagSample(ctx context.Context, runID string, sample model.LagSample) error
	GetLagSample(ctx context.Context, runID string, lagMonths int) (model.LagSample, bool, error)
	// DeleteRun removes the run and everything saved under its id. Deleting
	// an unknown run is not an error.
	DeleteRun(ctx context.Context, runID string) error
}
