package ports

import (
	"context"

	"rnadiff/domain/search"
)

// SequencePort resolves a gene ID to the nucleotide sequence to search
type SequencePort interface {
	Sequence(ctx context.Context, geneID string) (search.Query, error)
}

// SearchPort runs one remote similarity search and returns at most limit
// hits, best first. Failures wrap core.ErrSearchUnavailable.
type SearchPort interface {
	SearchHits(ctx context.Context, q search.Query, params search.Params, limit int) ([]search.RankedHit, error)
}
