package app

import (
	"context"
	"fmt"
	"time"

	"rnadiff/domain/core"
	"rnadiff/domain/expression"
	"rnadiff/domain/run"
	"rnadiff/domain/search"
	"rnadiff/internal"
	"rnadiff/internal/deseq"
	"rnadiff/internal/errors"
	"rnadiff/internal/fdr"
	"rnadiff/internal/profiling"
	"rnadiff/internal/ranking"
	"rnadiff/ports"
)

// AnalysisOptions configures the pipeline stages after fitting
type AnalysisOptions struct {
	// Params are recorded in the manifest; FDRMethod, Alpha and Search
	// drive correction, ranking and the search request
	Params            run.Params
	IndependentFilter bool
	SearchEnabled     bool
	// MaxHits caps the stored hit list; <= 0 keeps Search.HitListSize hits
	MaxHits int
}

// AnalysisRequest is one matrix, design and contrast to analyse
type AnalysisRequest struct {
	Matrix   *expression.CountMatrix
	Design   *expression.SampleDesign
	Contrast expression.Contrast
}

// AnalysisResult is the output of one pipeline run. Query and Hits are
// empty when the search stage did not run or failed.
type AnalysisResult struct {
	Manifest  *run.Manifest
	Run       *run.Run
	Analysis  *deseq.Analysis
	Table     *expression.ResultTable
	Summary   ranking.Summary
	Profile   *profiling.MatrixProfile
	QueryGene string
	Query     *search.Query
	Hits      []search.RankedHit
	SearchErr error
}

// AnalysisService runs load-independent stages of an analysis: fit,
// correct, rank, persist and search. Repository, output, profiler and
// search ports are optional.
type AnalysisService struct {
	estimator ports.EstimatorPort
	profiler  ports.ProfilerPort
	sequences ports.SequencePort
	searcher  ports.SearchPort
	repo      ports.RunRepository
	output    ports.OutputPort
	opts      AnalysisOptions
	logger    *internal.Logger
}

// AnalysisDeps groups the ports an AnalysisService calls
type AnalysisDeps struct {
	Estimator ports.EstimatorPort
	Profiler  ports.ProfilerPort
	Sequences ports.SequencePort
	Searcher  ports.SearchPort
	Repo      ports.RunRepository
	Output    ports.OutputPort
}

// NewAnalysisService creates the pipeline service
func NewAnalysisService(deps AnalysisDeps, opts AnalysisOptions, logger *internal.Logger) *AnalysisService {
	if opts.Params.Alpha <= 0 {
		opts.Params.Alpha = ranking.DefaultAlpha
	}
	if opts.Params.FDRMethod == "" {
		opts.Params.FDRMethod = string(fdr.MethodBH)
	}
	if logger == nil {
		logger = internal.NopLogger()
	}
	return &AnalysisService{
		estimator: deps.Estimator,
		profiler:  deps.Profiler,
		sequences: deps.Sequences,
		searcher:  deps.Searcher,
		repo:      deps.Repo,
		output:    deps.Output,
		opts:      opts,
		logger:    logger,
	}
}

// Analyze runs the pipeline. Input, fitting and correction failures return
// no result. A failure after the table exists returns the result with the
// error; a search failure is coded SEARCH_UNAVAILABLE, or QUERY_UNAVAILABLE
// when the top gene has no sequence, and the stored and written result
// table is kept.
func (s *AnalysisService) Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error) {
	start := time.Now()
	if s.estimator == nil {
		return nil, errors.New(errors.CodeInternalError, "analysis service has no estimator")
	}
	if req.Matrix == nil || req.Design == nil {
		return nil, errors.WithCode(errors.CodeInputValidation, core.NewValidationError("request", "count matrix and design are required"))
	}
	method, err := fdr.ParseMethod(s.opts.Params.FDRMethod)
	if err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, err)
	}

	// 1. Fingerprint the inputs
	manifest := run.NewManifest(req.Matrix, req.Design, req.Contrast, s.opts.Params)
	if err := manifest.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid run")
	}
	s.logger.Info("[AnalysisService] run %s: %d genes x %d samples, contrast %s",
		manifest.RunID, req.Matrix.NumGenes(), req.Matrix.NumSamples(), req.Contrast)

	result := &AnalysisResult{Manifest: manifest}

	// 2. Sample QC; a failed profile never stops the run
	if s.profiler != nil {
		profile, err := s.profiler.ProfileMatrix(req.Matrix)
		if err != nil {
			s.logger.Warn("[AnalysisService] sample profile skipped: %v", err)
		} else {
			result.Profile = profile
			for _, sp := range profile.Samples {
				if !sp.Flagged {
					continue
				}
				s.logger.Warn("[AnalysisService] sample %s library size %d is an outlier (robust z %.2f)",
					sp.SampleID, sp.LibrarySize, sp.RobustZ)
			}
		}
	}

	// 3. Fit and test
	analysis, err := s.estimator.Estimate(ctx, req.Matrix, req.Design, req.Contrast)
	if err != nil {
		return nil, errors.Wrap(err, "differential expression failed")
	}
	result.Analysis = analysis
	table := analysis.Table

	// 4. Multiple-testing correction
	padj, err := s.adjust(method, table)
	if err != nil {
		return nil, errors.Wrap(err, "multiple-testing correction failed")
	}
	table.SetPAdj(padj)
	result.Table = table
	result.Summary = ranking.Summarize(table.Results, s.opts.Params.Alpha)
	result.Run = manifest.NewRun(table, result.Summary.Tested, result.Summary.Significant)
	s.logger.Info("[AnalysisService] %d tested, %d significant at %.3g (%d down, %d up)",
		result.Summary.Tested, result.Summary.Significant, result.Summary.Alpha, result.Summary.Down, result.Summary.Up)

	// 5. Keep the table before anything remote happens
	if s.repo != nil {
		if err := s.repo.SaveRun(ctx, result.Run, table); err != nil {
			return result, errors.DatabaseError("failed to save run", err)
		}
	}
	if err := s.write(ctx, result); err != nil {
		return result, err
	}

	// 6. Similarity search for the top down-regulated gene
	if !s.opts.SearchEnabled || s.searcher == nil || s.sequences == nil {
		s.logger.Info("[AnalysisService] search stage disabled")
		s.done(start, result)
		return result, nil
	}
	top, ok := ranking.Top(ranking.DownRegulated(table.Results))
	if !ok {
		s.logger.Warn("[AnalysisService] no down-regulated gene to search")
		s.done(start, result)
		return result, nil
	}
	result.QueryGene = top.GeneID
	result.Run.QueryGene = top.GeneID

	hits, status, searchErr := s.search(ctx, top.GeneID, result)
	if searchErr != nil {
		result.SearchErr = searchErr
		result.Run.Status = status
		result.Run.SearchError = searchErr.Error()
		s.logger.Error("[AnalysisService] search for %s failed: %v", top.GeneID, searchErr)
	} else {
		result.Hits = hits
		result.Run.Status = status
		s.logger.Info("[AnalysisService] %d hits for %s", len(hits), top.GeneID)
	}

	if s.repo != nil {
		if searchErr == nil {
			if err := s.repo.SaveHits(ctx, result.Run.ID, hits); err != nil {
				return result, errors.DatabaseError("failed to save hits", err)
			}
		}
		if err := s.repo.UpdateSearch(ctx, result.Run.ID, result.Run.Status, result.QueryGene, result.Run.SearchError); err != nil {
			return result, errors.DatabaseError("failed to record search outcome", err)
		}
	}
	if err := s.write(ctx, result); err != nil {
		return result, err
	}

	if searchErr != nil {
		return result, searchErr
	}
	s.done(start, result)
	return result, nil
}

func (s *AnalysisService) adjust(method fdr.Method, table *expression.ResultTable) ([]float64, error) {
	p := table.PValues()
	if !s.opts.IndependentFilter {
		return fdr.Adjust(method, p)
	}
	means := make([]float64, len(table.Results))
	for i, r := range table.Results {
		means[i] = r.BaseMean
	}
	filtered, err := fdr.IndependentFilter(means, p, s.opts.Params.Alpha)
	if err != nil {
		return nil, err
	}
	// filtered genes are reported like the min_base_mean cut: no p-value, low_mean
	for _, i := range filtered.Filtered {
		table.Results[i].PValue = expression.NA
		table.Results[i].Status = expression.StatusLowMean
	}
	s.logger.Debug("[AnalysisService] independent filter threshold %.4g drops %d genes, keeps %d rejections",
		filtered.Threshold, len(filtered.Filtered), filtered.Rejections)
	return filtered.PAdj, nil
}

// search resolves the query locally, then runs the remote search. Errors
// carry QUERY_UNAVAILABLE or SEARCH_UNAVAILABLE so callers can tell a
// missing sequence from a service failure.
func (s *AnalysisService) search(ctx context.Context, geneID string, result *AnalysisResult) ([]search.RankedHit, run.Status, error) {
	q, err := s.sequences.Sequence(ctx, geneID)
	if err != nil {
		return nil, run.StatusQueryFailed, errors.QueryUnavailable(fmt.Errorf("%s: %w", geneID, err))
	}
	result.Query = &q

	limit := s.opts.MaxHits
	if limit <= 0 {
		limit = s.opts.Params.Search.HitListSize
	}
	hits, err := s.searcher.SearchHits(ctx, q, s.opts.Params.Search, limit)
	if err != nil {
		return nil, run.StatusSearchFailed, errors.SearchUnavailable(err)
	}
	return hits, run.StatusCompleted, nil
}

func (s *AnalysisService) write(ctx context.Context, result *AnalysisResult) error {
	if s.output == nil {
		return nil
	}
	out := ports.RunOutput{
		RunID:   result.Run.ID,
		Table:   result.Table,
		Summary: result.Summary,
		Profile: result.Profile,
		Query:   result.Query,
		Hits:    result.Hits,
	}
	if result.SearchErr != nil {
		out.SearchError = result.SearchErr.Error()
	}
	if err := s.output.WriteRun(ctx, out); err != nil {
		return errors.Wrap(err, "failed to write results")
	}
	return nil
}

func (s *AnalysisService) done(start time.Time, result *AnalysisResult) {
	s.logger.Info("[AnalysisService] run %s %s in %v", result.Run.ID, result.Run.Status, time.Since(start).Round(time.Millisecond))
}
