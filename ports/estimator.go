package ports

import (
	"context"

	"rnadiff/domain/expression"
	"rnadiff/internal/deseq"
)

// EstimatorPort fits the count model and tests one contrast. Adjusted
// p-values in the returned table are NA.
type EstimatorPort interface {
	Estimate(ctx context.Context, m *expression.CountMatrix, design *expression.SampleDesign, contrast expression.Contrast) (*deseq.Analysis, error)
}
