package ports

import (
	"context"

	"rnadiff/domain/core"
	"rnadiff/domain/expression"
	"rnadiff/domain/search"
	"rnadiff/internal/profiling"
	"rnadiff/internal/ranking"
)

// RunOutput is everything an output writer renders for one run. Query,
// Hits and SearchError are empty until the search stage has run.
type RunOutput struct {
	RunID       core.RunID
	Table       *expression.ResultTable
	Summary     ranking.Summary
	Profile     *profiling.MatrixProfile
	Query       *search.Query
	Hits        []search.RankedHit
	SearchError string
}

// OutputPort writes run output to files or other sinks. It may be called
// twice per run: after testing and again after the search.
type OutputPort interface {
	WriteRun(ctx context.Context, out RunOutput) error
}
