package deseq

import (
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
)

const (
	minDispersion = 1e-8
	minPriorVar   = 0.25

	// gridPoints is the resolution of the coarse and the fine line search
	gridPoints = 20

	// outlierSDs is how far above the trend, in robust SDs, a gene-wise
	// estimate must sit to be kept instead of shrunk
	outlierSDs = 2

	// madScale makes the median absolute deviation consistent for a normal
	madScale = 1.4826
)

// maxDispersion bounds the search interval from above
func maxDispersion(nSamples int) float64 {
	return math.Max(10, float64(nSamples))
}

// momentsDispersion is the method-of-moments starting value
// (var - xim*mean) / mean^2 where xim is the mean inverse size factor.
func momentsDispersion(mean, variance, xim float64, nSamples int) float64 {
	if mean <= 0 {
		return minDispersion
	}
	a := (variance - xim*mean) / (mean * mean)
	return clamp(a, minDispersion, maxDispersion(nSamples))
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

// maximizeLogDispersion maximises obj over log(alpha) in [lo, hi]. A coarse
// grid then a fine grid around the best coarse point give a bracketed start
// for a BFGS refinement; the refinement only replaces the grid optimum when
// it improves on it. converged reports whether BFGS terminated normally.
func maximizeLogDispersion(obj func(logAlpha float64) float64, lo, hi float64) (float64, bool) {
	best, bestVal := gridSearch(obj, lo, hi, gridPoints)
	step := (hi - lo) / float64(gridPoints-1)
	best, bestVal = gridSearch(obj, math.Max(lo, best-step), math.Min(hi, best+step), gridPoints)

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return -obj(clamp(x[0], lo, hi))
		},
	}
	problem.Grad = func(grad, x []float64) {
		fd.Gradient(grad, problem.Func, x, nil)
	}
	settings := &optimize.Settings{
		GradientThreshold: 1e-6,
		MajorIterations:   100,
	}
	result, err := optimize.Minimize(problem, []float64{best}, settings, &optimize.BFGS{})
	if err != nil || result == nil {
		return best, false
	}
	refined := clamp(result.X[0], lo, hi)
	if v := obj(refined); v >= bestVal {
		return refined, true
	}
	return best, true
}

func gridSearch(obj func(float64) float64, lo, hi float64, n int) (float64, float64) {
	best, bestVal := lo, math.Inf(-1)
	for k := 0; k < n; k++ {
		x := lo
		if n > 1 {
			x = lo + (hi-lo)*float64(k)/float64(n-1)
		}
		v := obj(x)
		if v > bestVal {
			best, bestVal = x, v
		}
	}
	return best, bestVal
}

// fitGeneWiseDispersion maximises the Cox-Reid adjusted likelihood at the
// means of an initial GLM fit.
func fitGeneWiseDispersion(y, sizeFactors []float64, design *ModelMatrix, start float64, maxIter int, tol float64) (float64, bool) {
	fit := fitNegativeBinomialGLM(y, sizeFactors, design.X, start, maxIter, tol)
	n := design.NumSamples()
	obj := func(logAlpha float64) float64 {
		return coxReidLogLik(y, fit.mu, design.X, math.Exp(logAlpha))
	}
	la, ok := maximizeLogDispersion(obj, math.Log(minDispersion), math.Log(maxDispersion(n)))
	return math.Exp(la), ok
}

// fitMAPDispersion maximises the adjusted likelihood plus a log-normal prior
// centred on the trend value.
func fitMAPDispersion(y, sizeFactors []float64, design *ModelMatrix, trend, priorVar float64, maxIter int, tol float64) (float64, bool) {
	fit := fitNegativeBinomialGLM(y, sizeFactors, design.X, trend, maxIter, tol)
	n := design.NumSamples()
	logTrend := math.Log(trend)
	obj := func(logAlpha float64) float64 {
		d := logAlpha - logTrend
		return coxReidLogLik(y, fit.mu, design.X, math.Exp(logAlpha)) - d*d/(2*priorVar)
	}
	la, ok := maximizeLogDispersion(obj, math.Log(minDispersion), math.Log(maxDispersion(n)))
	return math.Exp(la), ok
}

// dispersionPriorVar estimates the spread of log gene-wise estimates around
// the trend, net of the sampling variance of the log estimate itself. It
// also returns the raw robust variance used to flag outliers.
func dispersionPriorVar(geneWise, fitted []float64, use []bool, residualDF int) (priorVar, logVar float64) {
	var resid []float64
	for i := range geneWise {
		if use[i] && geneWise[i] > 0 && fitted[i] > 0 {
			resid = append(resid, math.Log(geneWise[i])-math.Log(fitted[i]))
		}
	}
	if len(resid) < 2 || residualDF < 1 {
		return minPriorVar, minPriorVar
	}
	mad, err := stats.MedianAbsoluteDeviation(resid)
	if err != nil {
		return minPriorVar, minPriorVar
	}
	sd := mad * madScale
	expected := trigamma(float64(residualDF) / 2)
	return math.Max(sd*sd-expected, minPriorVar), sd * sd
}

// isDispersionOutlier reports a gene-wise value far enough above the trend
// that shrinking it would understate the gene's variability.
func isDispersionOutlier(geneWise, fitted, logVar float64) bool {
	if !(geneWise > 0) || !(fitted > 0) {
		return false
	}
	return math.Log(geneWise) > math.Log(fitted)+outlierSDs*math.Sqrt(logVar)
}
