package deseq

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// geneChunk is the number of genes handed to a worker at once
const geneChunk = 64

// geneExecutor runs a per-gene function over index ranges with bounded
// concurrency. Each gene writes only its own slot of pre-sized outputs, so
// results do not depend on scheduling.
type geneExecutor struct {
	workers int
}

func newGeneExecutor(workers int) *geneExecutor {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &geneExecutor{workers: workers}
}

// forEach calls fn(i) for every i in [0, n) and stops early when ctx is
// cancelled
func (ge *geneExecutor) forEach(ctx context.Context, n int, fn func(i int)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ge.workers)
	for start := 0; start < n; start += geneChunk {
		lo, hi := start, min(start+geneChunk, n)
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				fn(i)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
