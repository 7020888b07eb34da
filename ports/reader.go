package ports

import (
	"context"

	"rnadiff/domain/core"
	"rnadiff/domain/expression"
	"rnadiff/domain/run"
	"rnadiff/domain/search"
)

// ReaderPort provides read-only access to stored runs for the API.
// It has no write methods so the API cannot modify runs.
type ReaderPort interface {
	ListRuns(ctx context.Context, limit int) ([]run.Run, error)
	GetRun(ctx context.Context, id core.RunID) (*run.Run, error)
	Results(ctx context.Context, id core.RunID) ([]expression.DifferentialResult, error)
	Hits(ctx context.Context, id core.RunID) ([]search.RankedHit, error)
}

// RunRepository persists pipeline output
type RunRepository interface {
	SaveRun(ctx context.Context, r *run.Run, table *expression.ResultTable) error
	UpdateSearch(ctx context.Context, id core.RunID, status run.Status, queryGene, searchErr string) error
	SaveHits(ctx context.Context, id core.RunID, hits []search.RankedHit) error
}
