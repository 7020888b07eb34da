package deseq

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"rnadiff/domain/core"
	"rnadiff/domain/expression"
	"rnadiff/internal"
)

// usableDispersionFactor excludes genes whose gene-wise estimate sits at the
// lower bound from the trend fit
const usableDispersionFactor = 100

// Options tunes a differential expression run
type Options struct {
	Test           expression.TestKind
	Covariates     []string       // extra design factors, e.g. "time"
	Workers        int            // per-gene worker pool size; <= 0 means NumCPU
	MinBaseMean    float64        // genes below get status low_mean and no p-value
	CooksCutoff    bool           // flag count outliers when every cell has >= 3 samples
	SizeFactorMode SizeFactorMode // ratio when empty
	SizeFactors    []float64      // overrides SizeFactorMode when set
	MaxIterations  int
	Tolerance      float64
}

// DefaultOptions returns Wald testing with Cook's filtering and no
// mean-based filter
func DefaultOptions() Options {
	return Options{
		Test:          expression.TestWald,
		Workers:       runtime.NumCPU(),
		CooksCutoff:   true,
		MaxIterations: 100,
		Tolerance:     1e-8,
	}
}

// Analysis is the output of one estimator run
type Analysis struct {
	Model  *expression.DispersionModel
	Table  *expression.ResultTable
	Design *ModelMatrix
}

// Estimator fits per-gene negative binomial GLMs with shared dispersion
// shrinkage and tests one contrast. Adjusted p-values are left NA for the
// corrector.
type Estimator struct {
	opts   Options
	logger *internal.Logger
	exec   *geneExecutor
}

// NewEstimator creates an estimator; a nil logger discards output
func NewEstimator(opts Options, logger *internal.Logger) *Estimator {
	if opts.Test == "" {
		opts.Test = expression.TestWald
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 100
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = 1e-8
	}
	if logger == nil {
		logger = internal.NopLogger()
	}
	return &Estimator{opts: opts, logger: logger, exec: newGeneExecutor(opts.Workers)}
}

// Estimate validates the inputs, then runs size factors, dispersion
// estimation, GLM fitting and the test. Validation failures return before
// any fitting. Per-gene fit failures are reported through row status.
func (e *Estimator) Estimate(ctx context.Context, m *expression.CountMatrix, design *expression.SampleDesign, contrast expression.Contrast) (*Analysis, error) {
	start := time.Now()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := design.Validate(m, contrast); err != nil {
		return nil, err
	}
	if e.opts.Test != expression.TestWald && e.opts.Test != expression.TestLRT {
		return nil, core.NewValidationError("test", fmt.Sprintf("unknown test %q", e.opts.Test))
	}
	records, err := design.Aligned(m.Samples)
	if err != nil {
		return nil, err
	}
	mm, err := NewModelMatrix(records, contrast, e.opts.Covariates)
	if err != nil {
		return nil, err
	}
	cvec, err := mm.ContrastVector(contrast)
	if err != nil {
		return nil, err
	}

	sf := e.opts.SizeFactors
	if sf != nil {
		if err := ValidateSizeFactors(sf, m.NumSamples()); err != nil {
			return nil, err
		}
		sf = append([]float64(nil), sf...)
	} else if sf, err = SizeFactorsFor(e.opts.SizeFactorMode, m); err != nil {
		return nil, err
	}

	nGenes, nSamples := m.NumGenes(), m.NumSamples()
	model := &expression.DispersionModel{
		SizeFactors: sf,
		BaseMeans:   make([]float64, nGenes),
		BaseVars:    make([]float64, nGenes),
		GeneWise:    make([]float64, nGenes),
		Fitted:      make([]float64, nGenes),
		Final:       make([]float64, nGenes),
		Outlier:     make([]bool, nGenes),
		Converged:   make([]bool, nGenes),
	}
	counts := make([][]float64, nGenes)
	allZero := make([]bool, nGenes)
	for i := 0; i < nGenes; i++ {
		counts[i] = m.RowFloat(i)
		allZero[i] = m.IsAllZero(i)
		model.BaseMeans[i], model.BaseVars[i] = normalizedMoments(counts[i], sf)
	}

	dispDesign := mm
	if mm.ResidualDF() < 1 {
		e.logger.Warn("[Estimator] design has no residual degrees of freedom; estimating dispersion without %s", contrast.FactorName())
		dispDesign = InterceptOnly(nSamples)
	}
	xim := 0.0
	for _, s := range sf {
		xim += 1 / s
	}
	xim /= float64(nSamples)

	e.logger.Debug("[Estimator] gene-wise dispersion for %d genes x %d samples", nGenes, nSamples)
	err = e.exec.forEach(ctx, nGenes, func(i int) {
		if allZero[i] {
			model.GeneWise[i] = expression.NA
			return
		}
		rough := momentsDispersion(model.BaseMeans[i], model.BaseVars[i], xim, nSamples)
		model.GeneWise[i], model.Converged[i] = fitGeneWiseDispersion(counts[i], sf, dispDesign, rough, e.opts.MaxIterations, e.opts.Tolerance)
	})
	if err != nil {
		return nil, err
	}

	use := make([]bool, nGenes)
	for i := range use {
		use[i] = !allZero[i] && model.GeneWise[i] >= usableDispersionFactor*minDispersion
	}
	model.Trend = fitDispersionTrend(model.BaseMeans, model.GeneWise, use)
	for i := range model.Fitted {
		if allZero[i] {
			model.Fitted[i] = expression.NA
			continue
		}
		model.Fitted[i] = model.Trend.At(model.BaseMeans[i])
	}
	e.logger.Debug("[Estimator] dispersion trend %s a0=%.4g a1=%.4g", model.Trend.Kind, model.Trend.A0, model.Trend.A1)

	var logVar float64
	model.PriorVar, logVar = dispersionPriorVar(model.GeneWise, model.Fitted, use, dispDesign.ResidualDF())

	err = e.exec.forEach(ctx, nGenes, func(i int) {
		switch {
		case allZero[i]:
			model.Final[i] = expression.NA
		case model.Trend.Kind == expression.TrendNone:
			model.Final[i] = model.GeneWise[i]
		case isDispersionOutlier(model.GeneWise[i], model.Fitted[i], logVar):
			model.Final[i] = model.GeneWise[i]
			model.Outlier[i] = true
		default:
			alpha, ok := fitMAPDispersion(counts[i], sf, dispDesign, model.Fitted[i], model.PriorVar, e.opts.MaxIterations, e.opts.Tolerance)
			model.Final[i] = alpha
			model.Converged[i] = model.Converged[i] && ok
		}
	})
	if err != nil {
		return nil, err
	}

	cooksCut := math.Inf(1)
	if e.opts.CooksCutoff && minCellSize(mm.cellSizes()) >= minCooksCellSz {
		cooksCut = cooksThreshold(mm.NumCoefficients(), nSamples)
	}

	results := make([]expression.DifferentialResult, nGenes)
	err = e.exec.forEach(ctx, nGenes, func(i int) {
		results[i] = e.testGene(m.Genes[i], counts[i], sf, model.BaseMeans[i], model.Final[i], allZero[i], mm, contrast, cvec, cooksCut)
	})
	if err != nil {
		return nil, err
	}

	table := &expression.ResultTable{Contrast: contrast, Test: e.opts.Test, Results: results}
	tally := table.CountByStatus()
	e.logger.Info("[Estimator] tested %d genes in %v (ok=%d all_zero=%d low_mean=%d outlier=%d not_converged=%d)",
		nGenes, time.Since(start).Round(time.Millisecond), tally[expression.StatusOK], tally[expression.StatusAllZero],
		tally[expression.StatusLowMean], tally[expression.StatusOutlier], tally[expression.StatusNotConverged])
	return &Analysis{Model: model, Table: table, Design: mm}, nil
}

func (e *Estimator) testGene(gene string, y, sf []float64, baseMean, alpha float64, allZero bool,
	mm *ModelMatrix, contrast expression.Contrast, cvec []float64, cooksCut float64) expression.DifferentialResult {
	if allZero {
		return expression.NewUntestedResult(gene, 0, expression.StatusAllZero)
	}

	full := fitNegativeBinomialGLM(y, sf, mm.X, alpha, e.opts.MaxIterations, e.opts.Tolerance)
	if !full.converged {
		e.logger.Debug("[Estimator] %v", core.NewConvergenceError(gene, full.iterations))
		return expression.NewUntestedResult(gene, baseMean, expression.StatusNotConverged)
	}

	est, se := contrastEstimate(full, cvec)
	res := expression.DifferentialResult{
		GeneID:         gene,
		BaseMean:       baseMean,
		Log2FoldChange: est / math.Ln2,
		LfcSE:          se / math.Ln2,
		PAdj:           expression.NA,
		Status:         expression.StatusOK,
	}

	switch e.opts.Test {
	case expression.TestLRT:
		reduced := mm.Without(contrast.FactorName())
		rfit := fitNegativeBinomialGLM(y, sf, reduced.X, alpha, e.opts.MaxIterations, e.opts.Tolerance)
		if !rfit.converged {
			e.logger.Debug("[Estimator] %v (reduced model)", core.NewConvergenceError(gene, rfit.iterations))
			return expression.NewUntestedResult(gene, baseMean, expression.StatusNotConverged)
		}
		stat := math.Max(2*(full.logLik-rfit.logLik), 0)
		res.Statistic = stat
		res.PValue = distuv.ChiSquared{K: float64(mm.DroppedDF(contrast.FactorName()))}.Survival(stat)
	default:
		stat := est / se
		res.Statistic = stat
		res.PValue = 2 * distuv.UnitNormal.CDF(-math.Abs(stat))
	}
	if math.IsNaN(res.PValue) {
		return expression.NewUntestedResult(gene, baseMean, expression.StatusNotConverged)
	}

	if !math.IsInf(cooksCut, 1) {
		cooks := cooksDistances(y, full.mu, full.hat, alpha, mm.NumCoefficients())
		for _, d := range cooks {
			if d > cooksCut {
				res.Statistic, res.PValue = expression.NA, expression.NA
				res.Status = expression.StatusOutlier
				return res
			}
		}
	}
	if baseMean < e.opts.MinBaseMean {
		res.PValue = expression.NA
		res.Status = expression.StatusLowMean
	}
	return res
}

func minCellSize(sizes []int) int {
	out := math.MaxInt
	for _, s := range sizes {
		out = min(out, s)
	}
	return out
}
